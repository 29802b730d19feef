package main

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/extract"
	"github.com/joseph-ayodele/doc-extractor/internal/llm"
	"github.com/joseph-ayodele/doc-extractor/internal/ocr"
	"github.com/joseph-ayodele/doc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/doc-extractor/internal/repository"
)

// app is the wired pipeline plus everything that needs closing.
type app struct {
	processor *pipeline.Processor
	jobs      *repository.ExtractJobRepository // nil when no ledger is configured
	closers   []func()
}

func newApp(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	engine := ocr.NewEngine(ocr.Config{
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		Pdftotext:     cfg.OCR.Pdftotext,
		Pdftoppm:      cfg.OCR.Pdftoppm,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
		ScratchDir:    cfg.OCR.ScratchDir,
	}, logger)
	router := extract.NewRouter(engine, logger)

	backend, closeBackend, err := llm.NewBackend(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := closeBackend(); err != nil {
			logger.Warn("llm.close.failed", "error", err)
		}
	})

	var opts []pipeline.Option
	if cfg.Database.DSN != "" {
		db, jobs, err := openLedger(ctx, cfg.Database, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.jobs = jobs
		opts = append(opts, pipeline.WithRecorder(jobs))
	}

	a.processor = pipeline.NewProcessor(router, backend, pipeline.Config{
		Model:         cfg.LLM.Model,
		MaxInputBytes: cfg.Limits.MaxUploadBytes,
	}, logger, opts...)

	logger.Info("app.ready",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"ledger", a.jobs != nil,
		"max_input_bytes", a.processor.MaxInputBytes(),
	)
	return a, nil
}

// openLedger connects to the job ledger and creates its table.
func openLedger(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repository.DB, *repository.ExtractJobRepository, error) {
	db, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.DSN,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
		PingAttempts:     cfg.PingAttempts,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	jobs := repository.NewExtractJobRepository(db, logger)
	if err := jobs.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, jobs, nil
}

// close runs closers in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
