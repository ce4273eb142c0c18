/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/poreread/pkg/config"
	"github.com/ssargent/poreread/pkg/di"
	"github.com/ssargent/poreread/pkg/logging"
)

var container *di.Container

// SetContainer sets the dependency container used by the commands
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "poreread",
	Short: "poreread - nanopore recording reader",
	Long: `poreread reads multi-file nanopore electrophysiology recordings
(ABF2, Chimera VC100 and headerless binary) as one continuous time series per
channel, and serves them over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if container == nil {
			return fmt.Errorf("dependency container not initialized")
		}
		if cmd.Annotations["config"] == "skip" {
			return nil
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
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
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if container == nil {
			return nil
		}
		return container.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: OS-specific location)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table, json)")
}

// loadConfig loads the config file named by --config, or the default one.
// Without a config file the defaults apply.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath := configPathFlag(cmd)
	if !config.ConfigExists(configPath) {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(configPath)
}

func configPathFlag(cmd *cobra.Command) string {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	return configPath
}
