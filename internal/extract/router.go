package extract

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/doc-extractor/constants"
	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/ocr"
)

// mediaFormats is the total routing table. Lookup is exact; no wildcards.
var mediaFormats = map[string]Format{
	constants.MediaTypePDF: FormatPDF,

	constants.MediaTypeDoc:  FormatWord,
	constants.MediaTypeDocx: FormatWord,

	constants.MediaTypeXls:  FormatSpreadsheet,
	constants.MediaTypeXlsx: FormatSpreadsheet,

	constants.MediaTypeJPEG: FormatImage,
	constants.MediaTypeJPG:  FormatImage,
	constants.MediaTypePNG:  FormatImage,
	constants.MediaTypeTIFF: FormatImage,

	constants.MediaTypeText:     FormatText,
	constants.MediaTypeMarkdown: FormatText,
	constants.MediaTypeXMD:      FormatText,
	constants.MediaTypeCSV:      FormatText,
	constants.MediaTypeJSON:     FormatText,
	constants.MediaTypeRTF:      FormatText,
	constants.MediaTypeTextRTF:  FormatText,

	constants.MediaTypeHTML: FormatHTML,
}

// MediaTypes returns every accepted media type.
func MediaTypes() []string {
	out := make([]string, 0, len(mediaFormats))
	for mt := range mediaFormats {
		out = append(out, mt)
	}
	return out
}

// NormalizeMediaType drops parameters and lower-cases the type.
func NormalizeMediaType(mediaType string) string {
	mt, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// FormatFor is the pure table lookup behind Route. Membership is exact after
// NormalizeMediaType, so "Application/PDF; x=y" routes like "application/pdf".
func FormatFor(mediaType string) (Format, bool) {
	f, ok := mediaFormats[NormalizeMediaType(mediaType)]
	return f, ok
}

// Router maps declared media types to extractors.
type Router struct {
	extractors map[Format]Extractor
	logger     *slog.Logger
}

// NewRouter wires the default extractor for every format. engine may be nil,
// in which case images fail and PDFs skip the pdftotext fallback.
func NewRouter(engine *ocr.Engine, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	var pdfFallback PDFTexter
	if engine != nil {
		pdfFallback = engine
	}
	return &Router{
		extractors: map[Format]Extractor{
			FormatPDF:         NewPDFExtractor(pdfFallback, logger),
			FormatWord:        NewWordExtractor(logger),
			FormatSpreadsheet: NewSheetExtractor(logger),
			FormatImage:       NewImageExtractor(engine, logger),
			FormatText:        TextExtractor{},
			FormatHTML:        NewHTMLExtractor(),
		},
		logger: logger,
	}
}

// With replaces the extractor for f and returns r.
func (r *Router) With(f Format, e Extractor) *Router {
	r.extractors[f] = e
	return r
}

// Route returns the extractor for mediaType, or UnsupportedFormat.
func (r *Router) Route(mediaType string) (Format, Extractor, error) {
	f, ok := FormatFor(mediaType)
	if !ok {
		return "", nil, common.NewAppError(common.KindUnsupportedFormat,
			fmt.Sprintf("Unsupported file type: %s", mediaType), nil)
	}
	return f, r.extractors[f], nil
}

// Text returns the extractor used for pasted text.
func (r *Router) Text() Extractor {
	return r.extractors[FormatText]
}

// DetectMediaType guesses a media type from the file name, then from content.
func DetectMediaType(filename string, data []byte) string {
	if mt := constants.MediaTypeForExt(filepath.Ext(filename)); mt != "" {
		return mt
	}
	if mt := mime.TypeByExtension(filepath.Ext(filename)); mt != "" {
		if _, ok := FormatFor(mt); ok {
			return NormalizeMediaType(mt)
		}
	}
	return NormalizeMediaType(http.DetectContentType(data))
}
