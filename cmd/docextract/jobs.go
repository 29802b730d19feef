package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/doc-extractor/constants"
	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/repository"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the job ledger (requires database.dsn)",
}

// withLedger loads config without the LLM checks and opens the ledger.
func withLedger(cmd *cobra.Command, fn func(db *repository.DB, jobs *repository.ExtractJobRepository, logger *slog.Logger) error) error {
	cfg, err := common.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	cfg.Log.Format = "text"
	logger, _ := common.NewLogger(cfg.Log, os.Stderr)
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is not set (DOCEXTRACT_DATABASE_DSN or DB_URL)")
	}
	db, jobs, err := openLedger(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db, jobs, logger)
}

var jobsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Ping the ledger database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(db *repository.DB, _ *repository.ExtractJobRepository, _ *slog.Logger) error {
			start := time.Now()
			if err := db.HealthCheck(cmd.Context(), time.Second); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "ledger health: FAIL (%v)\n", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger health: OK (%s, %dms)\n", db.Dialect, time.Since(start).Milliseconds())
			return nil
		})
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count jobs by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(_ *repository.DB, jobs *repository.ExtractJobRepository, _ *slog.Logger) error {
			counts, err := jobs.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}
			statuses := make([]constants.JobStatus, 0, len(counts))
			for s := range counts {
				statuses = append(statuses, s)
			}
			sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
			for _, s := range statuses {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %d\n", s, counts[s])
			}
			return nil
		})
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get JOB_ID",
	Short: "Print one job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(_ *repository.DB, jobs *repository.ExtractJobRepository, _ *slog.Logger) error {
			job, err := jobs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		})
	},
}

func init() {
	jobsCmd.AddCommand(jobsHealthCmd, jobsStatsCmd, jobsGetCmd)
}
