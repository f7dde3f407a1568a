package main

import (
	"fmt"

	"github.com/ethpandaops/pagespeedoor/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, and
environment overrides have been applied. Secrets are redacted.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out, err := cfg.DumpYAML()
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}

	fmt.Print(out)

	return nil
}
