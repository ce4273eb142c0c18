/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/poreread/pkg/config"
	"github.com/ssargent/poreread/pkg/logging"
)

// upCmd represents the up command
var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Bootstrap and start the poreread server",
	Long: `Bootstrap poreread by creating the configuration and API key if they don't
exist, then start the REST API server. This is the recommended way to get
poreread running.

Examples:
  poreread up
  poreread up --data-dir ./recordings --port 9000
  poreread up --config ./custom-config.yaml --print-key`,
	Annotations: map[string]string{"config": "skip"},
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		printKey, _ := cmd.Flags().GetBool("print-key")
		configPath := configPathFlag(cmd)

		var cfg *config.Config
		if config.ConfigExists(configPath) {
			loaded, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			cmd.Printf("Loaded existing configuration from %s\n", configPath)
		} else {
			cmd.Printf("First run detected. Bootstrapping poreread...\n")
			created, _, err := initializeConfig(configPath, dataDir, false)
			if err != nil {
				return err
			}
			cfg = created
			cmd.Printf("Configuration created at %s\n", configPath)
			if printKey {
				cmd.Printf("API key: %s\n", cfg.Security.APIKey)
			}
		}

		level, _ := cmd.Flags().GetString("log-level")
		if level == "" {
			level = cfg.Logging.Level
		}
		logger, err := logging.New(level)
		if err != nil {
			return err
		}
		container.Configure(cfg, logger)

		applyServeFlags(cmd, cfg)
		return runServer(cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(upCmd)
	upCmd.Flags().StringP("data-dir", "d", "./data", "Data directory used when bootstrapping")
	upCmd.Flags().Bool("print-key", false, "Print the generated API key")
	addServeFlags(upCmd)
}
