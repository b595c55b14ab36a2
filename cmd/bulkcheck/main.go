// Command bulkcheck validates upload files offline against the same upload
// configs the server uses.
//
// Usage:
//
//	bulkcheck schemas
//	bulkcheck validate drivers ./drivers.csv --errors-out errors.csv
//	bulkcheck map trips ./export.csv
//	bulkcheck template work_orders > work_orders.csv
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bulkupload/internal/core"
	"github.com/JonMunkholm/bulkupload/internal/core/schemas"
	"github.com/JonMunkholm/bulkupload/internal/logging"
)

var (
	schemaDir string
	logLevel  string
	jsonOut   bool

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "bulkcheck",
	Short:         "Check bulk upload files against upload configs",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.New(cmd.ErrOrStderr(), logLevel, "text")
		if schemaDir == "" {
			return nil
		}
		n, err := schemas.RegisterDir(schemaDir)
		if err != nil {
			return fmt.Errorf("load schemas from %s: %w", schemaDir, err)
		}
		logger.Debug("upload configs loaded", "dir", schemaDir, "count", n)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&schemaDir, "schema-dir", os.Getenv("SCHEMA_DIR"), "directory of extra YAML upload configs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(schemasCmd, validateCmd, mapCmd, templateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// resolveConfig accepts a registered config key or a path to a YAML file.
// A file holding several configs needs key to pick one.
func resolveConfig(ref, key string) (core.UploadConfig, error) {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".yaml", ".yml":
	default:
		return core.Lookup(ref)
	}

	cfgs, err := schemas.LoadFile(ref)
	if err != nil {
		return core.UploadConfig{}, err
	}
	switch {
	case len(cfgs) == 0:
		return core.UploadConfig{}, fmt.Errorf("%s holds no upload configs", ref)
	case key == "" && len(cfgs) == 1:
		return cfgs[0], cfgs[0].Validate()
	case key == "":
		return core.UploadConfig{}, fmt.Errorf("%s holds %d upload configs, pick one with --key", ref, len(cfgs))
	}
	for _, c := range cfgs {
		if c.Key == key {
			return c, c.Validate()
		}
	}
	return core.UploadConfig{}, fmt.Errorf("%w: %s in %s", core.ErrUnknownConfig, key, ref)
}
