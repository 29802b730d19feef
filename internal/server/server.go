package server

import (
	"context"
	"net/http"
	"time"

	"github.com/joseph-ayodele/doc-extractor/constants"
	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/doc-extractor/internal/repository"
)

// Extractor is the pipeline as seen by the transports.
type Extractor interface {
	Process(ctx context.Context, req pipeline.Request) pipeline.Result
	MaxInputBytes() int64
}

// JobStore reads the optional job ledger.
type JobStore interface {
	Get(ctx context.Context, jobID string) (*repository.ExtractJob, error)
	CountByStatus(ctx context.Context) (map[constants.JobStatus]int, error)
}

type Config struct {
	HTTPAddr       string
	GRPCAddr       string
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// multipart framing and form fields on top of the document itself
const bodySlack = 1 << 20

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(kind common.ErrorKind) int {
	switch kind {
	case common.KindEmptyHeadingList, common.KindMalformedJSON, common.KindInvalidSchema, common.KindInvalidRequest:
		return http.StatusBadRequest
	case common.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case common.KindInputTooLarge:
		return http.StatusRequestEntityTooLarge
	case common.KindEmptyDocumentContent, common.KindExtractionFailure:
		return http.StatusUnprocessableEntity
	case common.KindModelResponseNotJSON, common.KindFieldTypeMismatch, common.KindModelCallFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
