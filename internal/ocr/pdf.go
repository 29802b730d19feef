package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// PDFText writes data into a scratch dir and runs pdftotext on it. When the
// text layer is empty and pdftoppm is configured, pages are rasterized and OCRed.
func (e *Engine) PDFText(ctx context.Context, data []byte) (string, error) {
	dir, cleanup, err := e.Scratch()
	if err != nil {
		return "", err
	}
	defer cleanup()

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return "", fmt.Errorf("write scratch pdf: %w", err)
	}

	text, err := e.pdfToText(ctx, in)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" || e.cfg.Pdftoppm == "" {
		return text, nil
	}
	e.logger.Info("ocr.pdf.rasterize", "reason", "empty text layer", "dpi", e.cfg.DPI)
	return e.pdfToOCR(ctx, in, dir)
}

func (e *Engine) pdfToText(ctx context.Context, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}
	// form feeds separate pages
	return strings.ReplaceAll(string(out), "\f", "\n"), nil
}

func (e *Engine) pdfToOCR(ctx context.Context, path, dir string) (string, error) {
	prefix := filepath.Join(dir, "page")
	// pdftoppm -r 300 -png <in.pdf> <dir/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", strconv.Itoa(e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	// prefix-1.png, prefix-2.png, ...
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Slice(matches, func(i, j int) bool { return pageNumber(matches[i]) < pageNumber(matches[j]) })
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", errors.New("pdftoppm produced no images")
	}

	var b strings.Builder
	for _, img := range matches {
		txt, err := e.Tesseract(ctx, img)
		if err != nil {
			e.logger.Warn("ocr.pdf.page_failed", "page", filepath.Base(img), "error", err)
			continue
		}
		if b.Len() > 0 && txt != "" {
			b.WriteString("\n\n")
		}
		b.WriteString(txt)
	}
	return b.String(), nil
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	i := strings.LastIndexByte(base, '-')
	n, _ := strconv.Atoi(base[i+1:])
	return n
}
