package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/richardlehane/mscfb"
	"github.com/xuri/excelize/v2"
)

// SheetExtractor serializes the first worksheet of an xlsx or xls workbook as CSV.
type SheetExtractor struct {
	logger *slog.Logger
}

func NewSheetExtractor(logger *slog.Logger) *SheetExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetExtractor{logger: logger}
}

func (e *SheetExtractor) Extract(_ context.Context, data []byte) (string, error) {
	start := time.Now()
	var (
		rows   [][]string
		err    error
		method string
	)
	switch {
	case bytes.HasPrefix(data, zipMagic):
		method = "xlsx"
		rows, err = xlsxRows(data)
	case bytes.HasPrefix(data, cfbMagic):
		method = "xls"
		rows, err = xlsRows(data)
	default:
		err = errors.New("not a spreadsheet")
	}
	if err != nil {
		return "", failure(FormatSpreadsheet, err)
	}
	out, err := toCSV(rows)
	if err != nil {
		return "", failure(FormatSpreadsheet, err)
	}
	e.logger.Debug("extract.sheet.ok", "method", method, "rows", len(rows), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

func xlsxRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func xlsRows(data []byte) ([][]string, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open compound file: %w", err)
	}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		switch entry.Name {
		case "Workbook":
			wb, err := io.ReadAll(entry)
			if err != nil {
				return nil, fmt.Errorf("read Workbook stream: %w", err)
			}
			return parseBIFF8(wb)
		case "Book":
			return nil, errors.New("BIFF5 workbooks are not supported")
		}
	}
	return nil, errors.New("Workbook stream not found")
}

// toCSV writes rows top-to-bottom, cells left-to-right.
func toCSV(rows [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
