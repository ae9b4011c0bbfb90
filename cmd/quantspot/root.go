package main

import (
	"github.com/spf13/cobra"

	"github.com/quantspot/engine/config"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:           "quantspot",
	Short:         "Automated spot-market trading engine",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config (defaults apply when omitted)")
	rootCmd.AddCommand(cmdRun, cmdValidate, cmdStatus, cmdVersion)
}

func loadConfig() (config.Snapshot, error) {
	if flagConfig == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(flagConfig)
}
