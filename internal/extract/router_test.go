package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
)

func TestRouteAcceptedMediaTypes(t *testing.T) {
	r := NewRouter(nil, nil)
	cases := map[string]Format{
		"application/pdf":    FormatPDF,
		"application/msword": FormatWord,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatWord,
		"application/vnd.ms-excel": FormatSpreadsheet,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": FormatSpreadsheet,
		"image/jpeg":       FormatImage,
		"image/jpg":        FormatImage,
		"image/png":        FormatImage,
		"image/tiff":       FormatImage,
		"text/plain":       FormatText,
		"text/markdown":    FormatText,
		"text/x-markdown":  FormatText,
		"text/csv":         FormatText,
		"application/json": FormatText,
		"application/rtf":  FormatText,
		"text/rtf":         FormatText,
		"text/html":        FormatHTML,
	}
	for mt, want := range cases {
		t.Run(mt, func(t *testing.T) {
			got, ex, err := r.Route(mt)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.NotNil(t, ex)

			again, _, err := r.Route(mt)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
	assert.Len(t, MediaTypes(), len(cases))
}

func TestRouteStripsParameters(t *testing.T) {
	r := NewRouter(nil, nil)
	f, _, err := r.Route("Text/Plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)
}

func TestRouteUnsupported(t *testing.T) {
	r := NewRouter(nil, nil)
	for _, mt := range []string{"application/zip", "image/*", "text/", "image/gif", ""} {
		_, _, err := r.Route(mt)
		require.Error(t, err, mt)
		assert.Equal(t, common.KindUnsupportedFormat, common.KindOf(err))
		assert.Equal(t, "Unsupported file type: "+mt, common.MessageOf(err))
	}
}

func TestRouterWithOverride(t *testing.T) {
	stub := ExtractorFunc(func(context.Context, []byte) (string, error) { return "stub", nil })
	r := NewRouter(nil, nil).With(FormatPDF, stub)
	_, ex, err := r.Route("application/pdf")
	require.NoError(t, err)
	out, err := ex.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "stub", out)
}

func TestDetectMediaType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMediaType("a.PDF", nil))
	assert.Equal(t, "text/markdown", DetectMediaType("notes.md", nil))
	assert.Equal(t, "application/pdf", DetectMediaType("upload", []byte("%PDF-1.7\n")))
	assert.Equal(t, "image/png", DetectMediaType("", []byte("\x89PNG\r\n\x1a\n0000")))
	assert.Equal(t, "text/plain", DetectMediaType("", []byte("hello")))
}

func TestTextExtractor(t *testing.T) {
	out, err := TextExtractor{}.Extract(context.Background(), []byte("Invoice #7\n\xffTotal"))
	require.NoError(t, err)
	assert.Equal(t, "Invoice #7\n\uFFFDTotal", out)

	out, err = TextExtractor{}.Extract(context.Background(), []byte(`{"a": 1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, out)
}

func TestHTMLExtractor(t *testing.T) {
	e := NewHTMLExtractor()
	out, err := e.Extract(context.Background(), []byte(`<html><body><script>alert(1)</script>
		<h1>Invoice</h1><p>Total: <b>42</b> &amp; tax</p></body></html>`))
	require.NoError(t, err)
	assert.Contains(t, out, "# Invoice")
	assert.Contains(t, out, "**42**")
	assert.Contains(t, out, "tax")
	assert.NotContains(t, out, "alert")
}
