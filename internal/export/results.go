package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/doc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

const sheetName = "Results"

// Row is one document's outcome in a batch.
type Row struct {
	File   string
	Result pipeline.Result
}

// ResultsXLSX returns a workbook with a header row (File, Status, Error, then
// the schema's property names) and one row per document.
func ResultsXLSX(s *schema.Schema, rows []Row, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, err
	}

	var names []string
	if s != nil {
		names = s.Names()
	}
	headers := append([]string{"File", "Status", "Error"}, names...)
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, err
	}

	for i, r := range rows {
		line := make([]any, 0, len(headers))
		status := "OK"
		if !r.Result.Success {
			status = "FAILED"
		}
		line = append(line, r.File, status, r.Result.Error)
		if r.Result.Success {
			for _, name := range names {
				line = append(line, cellValue(r.Result.Data, name))
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &line); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(sheetName, "A", "A", 40) // file
	_ = f.SetColWidth(sheetName, "B", "B", 10) // status
	_ = f.SetColWidth(sheetName, "C", "C", 40) // error
	if len(names) > 0 {
		first, _ := excelize.ColumnNumberToName(4)
		last, _ := excelize.ColumnNumberToName(3 + len(names))
		_ = f.SetColWidth(sheetName, first, last, 24)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"columns", len(headers),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// cellValue flattens one reconciled value: scalars as-is, arrays and objects
// as compact JSON.
func cellValue(v *schema.Values, name string) any {
	if v == nil {
		return ""
	}
	val, ok := v.Get(name)
	if !ok || val == nil {
		return ""
	}
	switch t := val.(type) {
	case string, bool, float64, int, int64:
		return t
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
