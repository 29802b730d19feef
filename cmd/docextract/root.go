package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
)

var (
	cfgFile  string
	envFiles []string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "docextract",
	Short: "Extract structured JSON from documents with a language model",
	Long: `docextract reads a document (PDF, Word, Excel, image, HTML or plain text),
extracts its text, and asks a language model to fill a JSON shape you describe
either as a comma-separated list of headings or as a JSON Schema.

Configuration comes from defaults, an optional YAML file (--config, or
./docextract.yaml, or ~/.docextract/docextract.yaml) and DOCEXTRACT_* environment
variables. A .env file in the working directory is loaded first.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return common.LoadDotEnv(envFiles...)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./docextract.yaml or ~/.docextract/docextract.yaml)",
	)
	rootCmd.PersistentFlags().StringSliceVar(
		&envFiles, "env-file", nil, ".env files to load before reading config (default: .env)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "override log.level (debug, info, warn, error)",
	)

	rootCmd.AddCommand(serveCmd, extractCmd, batchCmd, configCmd, jobsCmd)
}

// loadConfig reads and validates configuration and builds the process logger.
// textLogs forces the human-readable handler for one-shot commands.
func loadConfig(textLogs bool) (*common.Config, *slog.Logger, *slog.LevelVar, error) {
	cfg, err := common.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if textLogs {
		cfg.Log.Format = "text"
	}
	logger, lv := common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "error", err)
		return nil, nil, nil, fmt.Errorf("invalid configuration: %s", common.MessageOf(err))
	}
	return cfg, logger, lv, nil
}
