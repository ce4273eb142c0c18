/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/poreread/pkg/dtype"
)

// Config represents the poreread configuration
type Config struct {
	DataDir  string   `yaml:"data_dir"`
	Port     int      `yaml:"port"`
	Bind     string   `yaml:"bind"`
	Security Security `yaml:"security"`
	Logging  Logging  `yaml:"logging"`
	Cache    Cache    `yaml:"cache"`
	Read     Read     `yaml:"read"`
	Formats  Formats  `yaml:"formats"`
}

// Security contains security-related configuration
type Security struct {
	APIKey string `yaml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// Cache configures the on-disk cache of decoded file headers
type Cache struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Read holds defaults for windowed and streaming reads
type Read struct {
	ChunkSeconds     float64 `yaml:"chunk_seconds"`      // 0 = one second
	MaxWindowSeconds float64 `yaml:"max_window_seconds"` // Largest window served over HTTP, 0 = unlimited
}

// Formats holds the settings of formats whose files carry no header
type Formats struct {
	Chimera Chimera `yaml:"chimera"`
	Raw     Raw     `yaml:"raw"`
}

// Chimera describes the acquisition settings of a Chimera VC100 recording
type Chimera struct {
	Samplerate    float64 `yaml:"samplerate"`
	TIAGain       float64 `yaml:"tia_gain"`
	PreADCGain    float64 `yaml:"pre_adc_gain"`
	CurrentOffset float64 `yaml:"current_offset"`
	ADCVref       float64 `yaml:"adc_vref"`
	ADCBits       int     `yaml:"adc_bits"`
}

// Raw describes headerless binary files of a fixed layout
type Raw struct {
	Extension       string  `yaml:"extension"`
	DType           string  `yaml:"dtype"`
	HeaderBytes     int64   `yaml:"header_bytes"`
	Records         int     `yaml:"records"`
	Channels        int     `yaml:"channels"` // Interleaved channel count
	Samplerate      float64 `yaml:"samplerate"`
	Scale           float64 `yaml:"scale"`
	Offset          float64 `yaml:"offset"`
	Bitmask         uint64  `yaml:"bitmask"`
	Pattern         string  `yaml:"pattern,omitempty"`          // Stamp regex, empty = single file
	ChannelRegex    string  `yaml:"channel_regex,omitempty"`    // First group is the channel number
	TimestampRegex  string  `yaml:"timestamp_regex,omitempty"`  // First group is the timestamp
	TimestampLayout string  `yaml:"timestamp_layout,omitempty"` // time.Parse layout for the timestamp group
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Port:    8080,
		Bind:    "127.0.0.1",
		Security: Security{
			APIKey: "auto",
		},
		Logging: Logging{
			Level: "info",
		},
		Cache: Cache{
			Enabled: true,
			Dir:     "./data/cache",
		},
		Read: Read{
			ChunkSeconds:     1,
			MaxWindowSeconds: 60,
		},
		Formats: Formats{
			Chimera: Chimera{
				Samplerate: 4166666.67,
				TIAGain:    100e6,
				PreADCGain: 1.5,
				ADCVref:    2.5,
				ADCBits:    14,
			},
			Raw: Raw{
				Extension:  ".bin",
				DType:      "<i2",
				Channels:   1,
				Samplerate: 1e5,
				Scale:      1,
			},
		},
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required when the cache is enabled"))
	}
	if c.Read.ChunkSeconds < 0 || c.Read.MaxWindowSeconds < 0 {
		errs = append(errs, errors.New("read durations must not be negative"))
	}
	if err := c.Formats.Chimera.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("formats.chimera: %w", err))
	}
	if err := c.Formats.Raw.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("formats.raw: %w", err))
	}
	return errors.Join(errs...)
}

// Validate checks the Chimera settings
func (c Chimera) Validate() error {
	if c.Samplerate <= 0 {
		return fmt.Errorf("samplerate must be positive, got %v", c.Samplerate)
	}
	if c.TIAGain == 0 || c.PreADCGain == 0 {
		return errors.New("tia_gain and pre_adc_gain must be non-zero")
	}
	if c.ADCVref == 0 {
		return errors.New("adc_vref must be non-zero")
	}
	if c.ADCBits < 1 || c.ADCBits > 16 {
		return fmt.Errorf("adc_bits must be between 1 and 16, got %d", c.ADCBits)
	}
	return nil
}

// Validate checks the raw binary settings
func (r Raw) Validate() error {
	if r.Extension == "" || !strings.HasPrefix(r.Extension, ".") {
		return fmt.Errorf("extension %q must start with a dot", r.Extension)
	}
	dt, err := dtype.Parse(r.DType)
	if err != nil {
		return err
	}
	if r.HeaderBytes < 0 || r.Records < 0 {
		return errors.New("header_bytes and records must not be negative")
	}
	if r.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", r.Channels)
	}
	if r.Samplerate <= 0 {
		return fmt.Errorf("samplerate must be positive, got %v", r.Samplerate)
	}
	if r.Scale == 0 {
		return errors.New("scale must be non-zero")
	}
	if r.Bitmask != 0 && dt.Kind == dtype.Float {
		return fmt.Errorf("bitmask cannot be applied to %s data", dt)
	}
	if (r.TimestampRegex == "") != (r.TimestampLayout == "") {
		return errors.New("timestamp_regex and timestamp_layout must be set together")
	}
	return nil
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	// Validate path to prevent directory traversal
	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Missing keys keep their defaults
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	// Ensure config directory exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig creates a new configuration with a generated API key
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
		config.Cache.Dir = filepath.Join(dataDir, "cache")
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./poreread.yaml"
	}

	// For Linux/macOS, use ~/.config/poreread/config.yaml
	configDir := filepath.Join(homeDir, ".config", "poreread")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
