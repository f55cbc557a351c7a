// File: cmd/flags.go
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/edespino/oomtoolbox/internal/kconfig"
	"github.com/edespino/oomtoolbox/internal/log"
)

// Shared command flags
var (
	formatFlag   string // Output format (yaml/json/text)
	logLevelFlag string
	logFileFlag  string
	catalogFlag  string // Optional ruleset catalog replacing the embedded one
)

// validateFormat checks if the provided format is "json", "yaml" or "text"
func validateFormat(format string) error {
	if format != "json" && format != "yaml" && format != "text" {
		return fmt.Errorf("invalid format: %s. Valid options are 'json', 'yaml' or 'text'", format)
	}
	return nil
}

// initSharedFlags initializes flags that are shared across multiple commands
func initSharedFlags() {
	// Persistent flags on the root command are available to all subcommands
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "yaml", "Output format: yaml, json or text")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "error", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "Write logs to this file (rotated) instead of stderr")
	rootCmd.PersistentFlags().StringVar(&catalogFlag, "catalog", "", "YAML ruleset catalog to use instead of the embedded one")
}

// resetSharedFlags restores the flag defaults. Tests run several commands in
// one process and cobra does not reset flag values between executions.
func resetSharedFlags() {
	formatFlag = "yaml"
	logLevelFlag = "error"
	logFileFlag = ""
	catalogFlag = ""
}

func setupLogger(level, file string) error {
	lvl, err := log.ParseLogLevel(level)
	if err != nil {
		return err
	}
	log.SetLogger(log.CreateLogger(lvl, file))
	return nil
}

// loadCatalog returns the embedded catalog when path is empty.
func loadCatalog(path string) (*kconfig.Catalog, error) {
	if path == "" {
		return kconfig.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog %s", path)
	}
	c, err := kconfig.LoadCatalog(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load catalog %s", path)
	}
	log.Logger.Infow("loaded ruleset catalog", "path", path, "rulesets", len(c.Rulesets()))
	return c, nil
}
