package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/doc-extractor/constants"
	"github.com/joseph-ayodele/doc-extractor/internal/export"
	"github.com/joseph-ayodele/doc-extractor/internal/ingest"
	"github.com/joseph-ayodele/doc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

// shapeFlags are the mutually exclusive ways to describe the output shape.
type shapeFlags struct {
	headings   string
	schemaJSON string
	schemaFile string
}

func (s *shapeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.headings, "headings", "", "comma-separated headings, e.g. \"Vendor, Total, Date\"")
	cmd.Flags().StringVar(&s.schemaJSON, "schema", "", "inline JSON Schema")
	cmd.Flags().StringVar(&s.schemaFile, "schema-file", "", "path to a JSON Schema file")
	cmd.MarkFlagsMutuallyExclusive("headings", "schema", "schema-file")
	cmd.MarkFlagsOneRequired("headings", "schema", "schema-file")
}

// resolve returns the pipeline mode and its input.
func (s *shapeFlags) resolve() (string, string, error) {
	switch {
	case s.headings != "":
		return constants.ModeHeadings, s.headings, nil
	case s.schemaJSON != "":
		return constants.ModeJSON, s.schemaJSON, nil
	case s.schemaFile != "":
		data, err := os.ReadFile(s.schemaFile)
		if err != nil {
			return "", "", fmt.Errorf("read schema file: %w", err)
		}
		return constants.ModeJSON, string(data), nil
	}
	return "", "", errors.New("one of --headings, --schema or --schema-file is required")
}

var (
	extractFile      string
	extractMediaType string
	extractText      string
	extractXLSX      string
	extractShape     shapeFlags
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run one extraction and print the result JSON",
	Long: `Extract structured JSON from a single document or text.

The result is printed to stdout as {"success":true,"data":{...}} or
{"success":false,"error":"..."}. The command exits non-zero on failure.

Examples:
  docextract extract --file invoice.pdf --headings "Vendor, Total, Date"
  docextract extract --text "Revenue grew 10%." --headings Summary
  cat notes.txt | docextract extract --text - --schema-file shape.json --xlsx out.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, logger, _, err := loadConfig(true)
		if err != nil {
			return err
		}
		mode, modeInput, err := extractShape.resolve()
		if err != nil {
			return err
		}

		req := pipeline.Request{Mode: mode, ModeInput: modeInput}
		label := "text"
		switch {
		case extractFile != "":
			data, mediaType, err := ingest.ReadFile(extractFile, cfg.Limits.MaxUploadBytes)
			if err != nil {
				return err
			}
			if extractMediaType != "" {
				mediaType = extractMediaType
			}
			req.File, req.MediaType, req.Filename = data, mediaType, filepath.Base(extractFile)
			label = extractFile
		case extractText == "-":
			data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), cfg.Limits.MaxUploadBytes+1))
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			req.Text = string(data)
		default:
			req.Text = extractText
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		res := a.processor.Process(ctx, req)
		out, err := json.Marshal(res)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		if extractXLSX != "" {
			// header row only; nil when the shape is invalid
			s, _ := schema.Build(mode, modeInput)
			book, err := export.ResultsXLSX(s, []export.Row{{File: label, Result: res}}, logger)
			if err != nil {
				return fmt.Errorf("export xlsx: %w", err)
			}
			if err := os.WriteFile(extractXLSX, book, 0o644); err != nil {
				return err
			}
			logger.Info("extract.xlsx.written", "path", extractXLSX)
		}

		if !res.Success {
			return fmt.Errorf("extraction failed (%s)", res.Kind)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractFile, "file", "", "document to extract from")
	extractCmd.Flags().StringVar(&extractMediaType, "media-type", "", "declared media type (default: detected from extension and content)")
	extractCmd.Flags().StringVar(&extractText, "text", "", "raw text to extract from; - reads stdin")
	extractCmd.Flags().StringVar(&extractXLSX, "xlsx", "", "also write the result to this .xlsx file")
	extractCmd.MarkFlagsMutuallyExclusive("file", "text")
	extractCmd.MarkFlagsOneRequired("file", "text")
	extractShape.register(extractCmd)
}
