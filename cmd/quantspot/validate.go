package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cmdValidate = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("config ok: version=%d mode=%s symbols=%d lock=%s\n",
			cfg.Version, cfg.Execution.Mode, len(cfg.EnabledSymbols()), cfg.DailyLock.Mode)
		return nil
	},
}
