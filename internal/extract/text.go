package extract

import (
	"context"
	"strings"
)

// TextExtractor decodes bytes as UTF-8 verbatim. Invalid sequences become U+FFFD.
type TextExtractor struct{}

func (TextExtractor) Extract(_ context.Context, data []byte) (string, error) {
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}
