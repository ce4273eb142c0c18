/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssargent/poreread/pkg/api"
	"github.com/ssargent/poreread/pkg/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the poreread REST API server.

Experiments opened through the API are remembered in the cache database and
reopened when the server restarts. Requests under /api/v1 need the X-API-Key
header; Prometheus metrics are served on /metrics.

Examples:
  poreread serve
  poreread serve --port 9000 --bind 0.0.0.0
  poreread serve --config ./poreread.yaml --api-key mysecretkey`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := container.Config()
		applyServeFlags(cmd, cfg)
		return runServer(cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().String("bind", "", "Address to bind server to (default from config)")
	cmd.Flags().String("api-key", "", "API key for authentication (default from config)")
}

// applyServeFlags overrides cfg with the flags that were set
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("bind") {
		cfg.Bind, _ = cmd.Flags().GetString("bind")
	}
	if cmd.Flags().Changed("api-key") {
		cfg.Security.APIKey, _ = cmd.Flags().GetString("api-key")
	}
}

// serverConfig builds the API server settings from cfg. An "auto" API key is
// replaced by one generated for this run.
func serverConfig(cfg *config.Config) (api.ServerConfig, bool, error) {
	sc := api.ServerConfig{
		Port:             cfg.Port,
		Bind:             cfg.Bind,
		APIKey:           cfg.Security.APIKey,
		DataDir:          cfg.DataDir,
		ChunkSeconds:     cfg.Read.ChunkSeconds,
		MaxWindowSeconds: cfg.Read.MaxWindowSeconds,
	}
	if sc.APIKey != "" && sc.APIKey != "auto" {
		return sc, false, nil
	}
	key, err := config.GenerateSecureKey(32)
	if err != nil {
		return sc, false, err
	}
	sc.APIKey = key
	return sc, true, nil
}

func runServer(cmd *cobra.Command, cfg *config.Config) error {
	logger := container.Logger()

	sc, generated, err := serverConfig(cfg)
	if err != nil {
		return err
	}
	if generated {
		cmd.Printf("Generated API key for this run: %s\n", sc.APIKey)
	}

	registry, err := container.ExperimentRegistry()
	if err != nil {
		return err
	}
	defer registry.CloseAll()

	restored, err := registry.Restore()
	if err != nil {
		return fmt.Errorf("failed to restore experiments: %w", err)
	}
	if restored > 0 {
		logger.Info("restored experiments", zap.Int("count", restored))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Starting poreread server on %s:%d\n", sc.Bind, sc.Port)
	cmd.Printf("Data directory: %s\n", sc.DataDir)

	starter := container.GetServerFactory().CreateServerStarter()
	if err := starter.StartServer(ctx, registry, sc); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
