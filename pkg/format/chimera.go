package format

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/ssargent/poreread/pkg/config"
	"github.com/ssargent/poreread/pkg/dtype"
	"github.com/ssargent/poreread/pkg/reader"
)

var (
	chimeraTimestamp = regexp.MustCompile(`_(\d{8})_(\d{6})`)
	chimeraTag       = regexp.MustCompile(`_CH(\d+)(?:[_.]|$)`)
	chimeraStamps    = []*regexp.Regexp{chimeraTimestamp, regexp.MustCompile(`_CH\d+`)}
)

// Chimera reads Chimera VC100 .log files: headerless little-endian uint16
// codes whose acquisition settings come from the host configuration. File
// names carry the acquisition time as _yyyymmdd_hhmmss and, for multichannel
// rigs, a _CH<n> channel tag.
type Chimera struct {
	settings config.Chimera
	cfg      reader.FileConfig
}

// NewChimera returns the Chimera format for settings.
func NewChimera(settings config.Chimera) (*Chimera, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: chimera: %w", reader.ErrConfig, err)
	}

	gain := settings.TIAGain * settings.PreADCGain
	return &Chimera{
		settings: settings,
		cfg: reader.FileConfig{
			Samplerate: settings.Samplerate,
			DType:      dtype.Uint16,
			Scale:      1e12 * 2 * settings.ADCVref / (65536 * gain),
			Offset:     1e12 * (settings.CurrentOffset - settings.ADCVref/gain),
			Bitmask:    ChimeraBitmask(settings.ADCBits),
			Extras: map[string]string{
				"tia_gain":       formatFloat(settings.TIAGain),
				"pre_adc_gain":   formatFloat(settings.PreADCGain),
				"current_offset": formatFloat(settings.CurrentOffset),
				"adc_vref":       formatFloat(settings.ADCVref),
				"adc_bits":       strconv.Itoa(settings.ADCBits),
			},
		},
	}, nil
}

// ChimeraBitmask keeps the top bits of a 16-bit code.
func ChimeraBitmask(bits int) uint64 {
	return (1<<16 - 1) - (1<<(16-bits) - 1)
}

func (*Chimera) Name() string             { return "chimera" }
func (*Chimera) Extension() string        { return ".log" }
func (*Chimera) Stamps() []*regexp.Regexp { return chimeraStamps }
func (*Chimera) ConcurrentSafe() bool     { return true }

// Fingerprint changes whenever any acquisition setting changes.
func (c *Chimera) Fingerprint() string { return settingsFingerprint(c.settings) }

func (*Chimera) RawType() *dtype.DType {
	dt := dtype.Uint16
	return &dt
}

// Resolve parses the timestamp and channel tag out of the file name.
func (c *Chimera) Resolve(path string) ([]reader.Source, error) {
	base := filepath.Base(path)

	ts, err := chimeraTime(base)
	if err != nil {
		return nil, err
	}

	channel := 0
	if m := chimeraTag.FindStringSubmatch(base); m != nil {
		channel, err = strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: _CH%s in %s", reader.ErrChannelTag, m[1], base)
		}
	}

	cfg := c.cfg
	return []reader.Source{{
		Path:      path,
		Channel:   channel,
		Timestamp: ts,
		Config:    cfg,
	}}, nil
}

func chimeraTime(base string) (time.Time, error) {
	m := chimeraTimestamp.FindStringSubmatch(base)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: no _yyyymmdd_hhmmss stamp in %s", reader.ErrTimestamp, base)
	}
	ts, err := time.ParseInLocation("20060102150405", m[1]+m[2], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", reader.ErrTimestamp, base, err)
	}
	return ts, nil
}
