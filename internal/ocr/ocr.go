package ocr

import (
	"fmt"
	"log/slog"
	"os"
)

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string
	PSM           int // e.g., 6 is good for uniform block of text

	Pdftotext string // if empty -> "pdftotext"
	Pdftoppm  string // if empty, scanned PDFs are not rasterized
	DPI       int    // rasterization DPI for scanned PDFs, default 300
	MaxPages  int    // 0 = no limit

	ScratchDir string // parent of per-request scratch dirs; "" = os.TempDir()
}

// Engine runs the external OCR and PDF tools.
type Engine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type Option func(*Engine)

// WithRunner replaces the os/exec runner, mostly for tests.
func WithRunner(r Runner) Option {
	return func(e *Engine) { e.runner = r }
}

func NewEngine(cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	e := &Engine{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = NewExecRunner(logger)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// Scratch creates a per-request working directory. cleanup removes it and is
// safe to call more than once.
func (e *Engine) Scratch() (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp(e.cfg.ScratchDir, "docextract-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("ocr.scratch.cleanup_failed", "dir", dir, "error", err)
		}
	}, nil
}
