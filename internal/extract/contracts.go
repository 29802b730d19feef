package extract

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/doc-extractor/constants"
	"github.com/joseph-ayodele/doc-extractor/internal/common"
)

// Format is the extractor variant a media type routes to.
type Format string

const (
	FormatPDF         Format = constants.PDF
	FormatWord        Format = constants.WORD
	FormatSpreadsheet Format = constants.SPREADSHEET
	FormatImage       Format = constants.IMAGE
	FormatText        Format = constants.TEXT
	FormatHTML        Format = constants.HTML
)

// Extractor turns raw document bytes into plain text.
// An empty result is not an error; callers decide what empty means.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

func failure(f Format, err error) error {
	return common.NewAppError(common.KindExtractionFailure,
		fmt.Sprintf("Could not extract text from %s document: %v", f, err), err)
}
