package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "golang.org/x/image/tiff"
)

// ToPNG decodes a jpeg, png or tiff image and writes it as PNG into dir.
func ToPNG(data []byte, dir string) (string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	out := filepath.Join(dir, "page.png")
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return "", fmt.Errorf("encode %s as png: %w", format, err)
	}
	return out, f.Close()
}

// OCRImage normalizes the raster into a scratch dir and runs tesseract on it.
// Empty recognition output is returned as "" without error.
func (e *Engine) OCRImage(ctx context.Context, data []byte) (string, error) {
	start := time.Now()
	dir, cleanup, err := e.Scratch()
	if err != nil {
		return "", err
	}
	defer cleanup()

	path, err := ToPNG(data, dir)
	if err != nil {
		return "", err
	}
	txt, err := e.Tesseract(ctx, path)
	if err != nil {
		return "", err
	}
	e.logger.Debug("ocr.image.ok", "chars", len(txt), "elapsed_ms", time.Since(start).Milliseconds())
	return txt, nil
}

// Tesseract runs `tesseract <path> stdout -l <lang>` and normalizes the output.
func (e *Engine) Tesseract(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return Normalize(string(out)), nil
}
