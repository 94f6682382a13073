package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/navtags/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a navtags configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  navtags validate -c navtags.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	interval := cfg.Interval().String()
	if !cfg.PollingEnabled() {
		interval += " (polling disabled)"
	}
	method := cfg.Source.Method
	if method == "" {
		method = "GET"
	}
	decoder := cfg.Source.Decoder.Type
	if decoder == "" {
		decoder = "default"
	}
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = "(none)"
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Config is valid!\n")
	_, _ = fmt.Fprintf(out, "  Port:             %d\n", cfg.Port)
	_, _ = fmt.Fprintf(out, "  Polling interval: %s\n", interval)
	_, _ = fmt.Fprintf(out, "  Source:           %s %s\n", method, cfg.Source.URL)
	_, _ = fmt.Fprintf(out, "  Tag names:        %d\n", len(cfg.Source.Names))
	_, _ = fmt.Fprintf(out, "  Decoder:          %s\n", decoder)
	_, _ = fmt.Fprintf(out, "  Cache dir:        %s\n", cacheDir)

	return nil
}
