package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/doc-extractor/internal/async"
	"github.com/joseph-ayodele/doc-extractor/internal/export"
	"github.com/joseph-ayodele/doc-extractor/internal/ingest"
	"github.com/joseph-ayodele/doc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

var (
	batchDir        string
	batchOut        string
	batchWorkers    int
	batchQueueSize  int
	batchSkipHidden bool
	batchExts       []string
	batchWatch      bool
	batchDebounce   time.Duration
	batchDrain      time.Duration
	batchShape      shapeFlags
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Extract every supported document under a directory",
	Long: `Walk a directory, run each supported document through the extraction
pipeline on a bounded worker pool, and write all results to one workbook
(File, Status, Error, then one column per schema property).

With --watch the directory is scanned once and then watched; new or rewritten
files are extracted as they appear and each result is printed as one JSON
line. The workbook is written when the command is interrupted.

Examples:
  docextract batch --dir ./invoices --headings "Vendor, Total" --out invoices.xlsx
  docextract batch --dir ./inbox --schema-file shape.json --watch --workers 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, logger, _, err := loadConfig(true)
		if err != nil {
			return err
		}
		mode, modeInput, err := batchShape.resolve()
		if err != nil {
			return err
		}
		// shape errors surface here, before any file is read
		s, err := schema.Build(mode, modeInput)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		b := &batch{
			mode:      mode,
			modeInput: modeInput,
			maxBytes:  a.processor.MaxInputBytes(),
			logger:    logger,
			opts: []async.Option{
				async.WithWorkers(batchWorkers),
				async.WithQueueSize(batchQueueSize),
				async.WithLogger(logger),
			},
		}

		var rows []export.Row
		if batchWatch {
			rows, err = b.watch(ctx, a.processor, cmd)
		} else {
			rows, err = b.once(ctx, a.processor)
		}
		if err != nil {
			return err
		}

		book, err := export.ResultsXLSX(s, rows, logger)
		if err != nil {
			return fmt.Errorf("export xlsx: %w", err)
		}
		if err := os.WriteFile(batchOut, book, 0o644); err != nil {
			return err
		}

		failed := 0
		for _, r := range rows {
			if !r.Result.Success {
				failed++
			}
		}
		logger.Info("batch.done", "files", len(rows), "failed", failed, "out", batchOut)
		fmt.Fprintf(cmd.OutOrStdout(), "%d documents, %d failed, results written to %s\n", len(rows), failed, batchOut)
		return nil
	},
}

type batch struct {
	mode      string
	modeInput string
	maxBytes  int64
	logger    *slog.Logger
	opts      []async.Option
}

func (b *batch) request(path string) (pipeline.Request, error) {
	data, mediaType, err := ingest.ReadFile(path, b.maxBytes)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{
		File:      data,
		MediaType: mediaType,
		Filename:  filepath.Base(path),
		Mode:      b.mode,
		ModeInput: b.modeInput,
	}, nil
}

func (b *batch) job(path string) async.Job {
	return async.Job{ID: path, Load: func() (pipeline.Request, error) { return b.request(path) }}
}

// once extracts everything under batchDir and returns rows in walk order.
func (b *batch) once(ctx context.Context, proc async.Processor) ([]export.Row, error) {
	files, stats, err := ingest.Discover(ctx, batchDir, batchExts, batchSkipHidden)
	if err != nil {
		return nil, err
	}
	b.logger.Info("batch.discovered", "dir", batchDir, "scanned", stats.Scanned, "matched", stats.Matched, "failed", stats.Failed)

	rows := make([]export.Row, len(files))
	var jobs []async.Job
	var slots []int
	for i, f := range files {
		rows[i].File = f.Path
		if f.Err != "" {
			rows[i].Result = pipeline.Result{Success: false, Error: f.Err}
			continue
		}
		jobs = append(jobs, b.job(f.Path))
		slots = append(slots, i)
	}

	for j, o := range async.Run(ctx, proc, jobs, b.opts...) {
		rows[slots[j]].Result = o.Result
	}
	return rows, nil
}

// watch extracts files as they appear until ctx ends, printing one JSON line
// per document. Documents already queued when ctx ends are still extracted,
// bounded by batchDrain.
func (b *batch) watch(ctx context.Context, proc async.Processor, cmd *cobra.Command) ([]export.Row, error) {
	paths, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:       []string{batchDir},
		Exts:        batchExts,
		SkipHidden:  batchSkipHidden,
		InitialScan: true,
		Debounce:    batchDebounce,
		Logger:      b.logger,
	})
	if err != nil {
		return nil, err
	}

	poolCtx := context.WithoutCancel(ctx)
	pool := async.NewPool(poolCtx, proc, b.opts...)
	enc := json.NewEncoder(cmd.OutOrStdout())

	var rows []export.Row
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range pool.Results() {
			row := export.Row{File: o.Job.ID, Result: o.Result}
			rows = append(rows, row)
			_ = enc.Encode(struct {
				File   string          `json:"file"`
				Result pipeline.Result `json:"result"`
			}{row.File, row.Result})
		}
	}()

	for paths != nil || errs != nil {
		select {
		case p, ok := <-paths:
			if !ok {
				paths = nil
				continue
			}
			if err := pool.Enqueue(poolCtx, b.job(p)); err != nil {
				b.logger.Warn("batch.enqueue.failed", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			b.logger.Warn("batch.watch.error", "error", err)
		}
	}

	drainCtx, cancel := context.WithTimeout(poolCtx, batchDrain)
	defer cancel()
	b.logger.Info("batch.draining", "timeout", batchDrain)
	if err := pool.Shutdown(drainCtx); err != nil {
		b.logger.Warn("batch.shutdown.failed", "error", err)
	}
	<-collected
	return rows, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "directory to scan")
	batchCmd.Flags().StringVar(&batchOut, "out", "results.xlsx", "workbook to write")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 4, "concurrent extractions")
	batchCmd.Flags().IntVar(&batchQueueSize, "queue-size", 64, "pending documents before producers block")
	batchCmd.Flags().BoolVar(&batchSkipHidden, "skip-hidden", true, "skip dot files and dot directories")
	batchCmd.Flags().StringSliceVar(&batchExts, "ext", nil, "extensions to include (default: every supported one)")
	batchCmd.Flags().BoolVar(&batchWatch, "watch", false, "keep watching --dir for new files until interrupted")
	batchCmd.Flags().DurationVar(&batchDebounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is picked up in --watch mode")
	batchCmd.Flags().DurationVar(&batchDrain, "drain-timeout", 2*time.Minute, "how long --watch keeps extracting queued documents after an interrupt")
	_ = batchCmd.MarkFlagRequired("dir")
	batchShape.register(batchCmd)
}
