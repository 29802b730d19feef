package pipeline

import (
	"context"
	"time"

	"github.com/joseph-ayodele/doc-extractor/constants"
	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

// Request is one extraction. Exactly one of Text or File must be non-empty.
type Request struct {
	Text      string
	File      []byte
	MediaType string // declared type of File
	Filename  string // informational only
	Mode      string // constants.ModeHeadings | constants.ModeJSON
	ModeInput string
}

// Source reports which input the request carries.
func (r Request) Source() string {
	if len(r.File) > 0 {
		return constants.SourceFile
	}
	return constants.SourceText
}

func (r Request) size() int64 {
	if len(r.File) > 0 {
		return int64(len(r.File))
	}
	return int64(len(r.Text))
}

// Result is the wire shape returned to callers: {success, data} or {success, error}.
type Result struct {
	Success bool           `json:"success"`
	Data    *schema.Values `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`

	Kind      common.ErrorKind    `json:"-"`
	State     constants.JobStatus `json:"-"` // last state reached before Done/Failed
	RequestID string              `json:"-"`
	JobID     string              `json:"-"`
}

// Job describes a pipeline run for a JobRecorder. It never carries document
// text, schema or result.
type Job struct {
	ID        string
	RequestID string
	Source    string
	MediaType string
	Mode      string
	StartedAt time.Time
}

// JobRecorder receives every state transition of a run.
type JobRecorder interface {
	Start(ctx context.Context, job Job) error
	Transition(ctx context.Context, jobID string, to constants.JobStatus) error
	Finish(ctx context.Context, jobID string, status constants.JobStatus, kind common.ErrorKind, message string) error
}
