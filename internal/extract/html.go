package extract

import (
	"context"
	"html"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// HTMLExtractor sanitizes markup and renders it as markdown.
type HTMLExtractor struct {
	sanitizer *bluemonday.Policy
	strip     *bluemonday.Policy
	md        *converter.Converter
}

func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{
		sanitizer: bluemonday.UGCPolicy(),
		strip:     bluemonday.StrictPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Extract falls back to the visible text when conversion fails or yields nothing.
func (e *HTMLExtractor) Extract(_ context.Context, data []byte) (string, error) {
	raw := strings.ToValidUTF8(string(data), "\uFFFD")
	clean := e.sanitizer.Sanitize(raw)
	md, err := e.md.ConvertString(clean)
	if err == nil && strings.TrimSpace(md) != "" {
		return strings.TrimSpace(md), nil
	}
	return strings.TrimSpace(html.UnescapeString(e.strip.Sanitize(raw))), nil
}
