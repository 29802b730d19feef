package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/doc-extractor/internal/ocr"
)

type ImageExtractor struct {
	engine *ocr.Engine
	logger *slog.Logger
}

func NewImageExtractor(engine *ocr.Engine, logger *slog.Logger) *ImageExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageExtractor{engine: engine, logger: logger}
}

func (e *ImageExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if e.engine == nil {
		return "", failure(FormatImage, errors.New("ocr engine not configured"))
	}
	start := time.Now()
	txt, err := e.engine.OCRImage(ctx, data)
	if err != nil {
		return "", failure(FormatImage, err)
	}
	e.logger.Debug("extract.image.ok", "chars", len(txt), "elapsed_ms", time.Since(start).Milliseconds())
	return txt, nil
}
