package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doc-extractor/constants"
	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/extract"
	"github.com/joseph-ayodele/doc-extractor/internal/llm"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

type stubBackend struct {
	reply  string
	err    error
	prompt string
	calls  int
}

func (b *stubBackend) Complete(_ context.Context, _ string, prompt string, _ *schema.Schema) (string, error) {
	b.calls++
	b.prompt = prompt
	return b.reply, b.err
}

type recordedJob struct {
	job         Job
	transitions []constants.JobStatus
	status      constants.JobStatus
	kind        common.ErrorKind
	message     string
}

type memRecorder struct {
	mu   sync.Mutex
	jobs map[string]*recordedJob
	fail bool
}

func newMemRecorder() *memRecorder { return &memRecorder{jobs: map[string]*recordedJob{}} }

func (m *memRecorder) Start(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = &recordedJob{job: job}
	if m.fail {
		return errors.New("ledger down")
	}
	return nil
}

func (m *memRecorder) Transition(_ context.Context, id string, to constants.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].transitions = append(m.jobs[id].transitions, to)
	if m.fail {
		return errors.New("ledger down")
	}
	return nil
}

func (m *memRecorder) Finish(_ context.Context, id string, status constants.JobStatus, kind common.ErrorKind, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.status, j.kind, j.message = status, kind, msg
	if m.fail {
		return errors.New("ledger down")
	}
	return nil
}

func newProcessor(backend llm.Backend, opts ...Option) *Processor {
	return NewProcessor(extract.NewRouter(nil, nil), backend, Config{}, nil, opts...)
}

func resultJSON(t *testing.T, r Result) string {
	t.Helper()
	b, err := json.Marshal(r)
	require.NoError(t, err)
	return string(b)
}

func TestProcessHeadingsFromText(t *testing.T) {
	backend := &stubBackend{reply: `{"Summary":"Revenue grew 10%"}`}
	rec := newMemRecorder()
	p := newProcessor(backend, WithRecorder(rec))

	res := p.Process(context.Background(), Request{
		Text:      "Revenue grew 10%.",
		Mode:      constants.ModeHeadings,
		ModeInput: "Summary",
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, `{"success":true,"data":{"Summary":"Revenue grew 10%"}}`, resultJSON(t, res))
	assert.Contains(t, backend.prompt, "Revenue grew 10%.")
	assert.Contains(t, backend.prompt, "Summary")
	assert.NotEmpty(t, res.RequestID)

	job := rec.jobs[res.JobID]
	require.NotNil(t, job)
	assert.Equal(t, constants.SourceText, job.job.Source)
	assert.Equal(t, res.RequestID, job.job.RequestID)
	assert.Equal(t, []constants.JobStatus{
		constants.JobStatusRouted,
		constants.JobStatusTextExtracted,
		constants.JobStatusSchemaReady,
		constants.JobStatusPromptBuilt,
		constants.JobStatusAwaitingModel,
		constants.JobStatusReconciled,
	}, job.transitions)
	assert.Equal(t, constants.JobStatusDone, job.status)
	assert.Empty(t, job.kind)
}

func TestProcessMalformedSchemaReportsPosition(t *testing.T) {
	backend := &stubBackend{}
	rec := newMemRecorder()
	p := newProcessor(backend, WithRecorder(rec))

	res := p.Process(context.Background(), Request{
		Text:      "anything",
		Mode:      constants.ModeJSON,
		ModeInput: `{"type": "object"`,
	})

	assert.False(t, res.Success)
	assert.Equal(t, common.KindMalformedJSON, res.Kind)
	assert.Contains(t, res.Error, "line 1, column 18")
	assert.Equal(t, constants.JobStatusTextExtracted, res.State)
	assert.Zero(t, backend.calls)

	job := rec.jobs[res.JobID]
	assert.Equal(t, constants.JobStatusFailed, job.status)
	assert.Equal(t, common.KindMalformedJSON, job.kind)
	assert.Equal(t, res.Error, job.message)
}

func TestProcessUnsupportedFile(t *testing.T) {
	backend := &stubBackend{}
	p := newProcessor(backend)

	res := p.Process(context.Background(), Request{
		File:      []byte("PK\x03\x04"),
		MediaType: "application/zip",
		Mode:      constants.ModeHeadings,
		ModeInput: "Summary",
	})

	assert.Equal(t, `{"success":false,"error":"Unsupported file type: application/zip"}`, resultJSON(t, res))
	assert.Equal(t, common.KindUnsupportedFormat, res.Kind)
	assert.Equal(t, constants.JobStatusIdle, res.State)
	assert.Zero(t, backend.calls)
}

func TestProcessFileThroughRouter(t *testing.T) {
	backend := &stubBackend{reply: "```json\n{\"Total\":\"9.99\",\"Extra\":1}\n```"}
	p := newProcessor(backend)

	res := p.Process(context.Background(), Request{
		File:      []byte("Invoice\nTotal: 9.99"),
		MediaType: "text/plain; charset=utf-8",
		Filename:  "invoice.txt",
		Mode:      constants.ModeHeadings,
		ModeInput: "Total, Vendor",
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, `{"success":true,"data":{"Total":"9.99","Vendor":""}}`, resultJSON(t, res))
	assert.Contains(t, backend.prompt, "Total: 9.99")
}

func TestProcessEmptyDocument(t *testing.T) {
	backend := &stubBackend{}
	p := newProcessor(backend)

	res := p.Process(context.Background(), Request{
		File:      []byte(" \n\t "),
		MediaType: "text/plain",
		Mode:      constants.ModeHeadings,
		ModeInput: "Summary",
	})
	assert.False(t, res.Success)
	assert.Equal(t, common.KindEmptyDocumentContent, res.Kind)
	assert.Equal(t, constants.JobStatusRouted, res.State)
	assert.Zero(t, backend.calls)
}

func TestProcessExtractorFailures(t *testing.T) {
	boom := extract.ExtractorFunc(func(context.Context, []byte) (string, error) {
		return "", errors.New("boom")
	})
	router := extract.NewRouter(nil, nil).With(extract.FormatPDF, boom)
	p := NewProcessor(router, &stubBackend{}, Config{}, nil)

	res := p.Process(context.Background(), Request{
		File: []byte("%PDF"), MediaType: "application/pdf",
		Mode: constants.ModeHeadings, ModeInput: "A",
	})
	assert.False(t, res.Success)
	assert.Equal(t, common.KindExtractionFailure, res.Kind)
	assert.NotContains(t, res.Error, "boom")
}

func TestProcessModelFailures(t *testing.T) {
	req := Request{Text: "doc", Mode: constants.ModeJSON,
		ModeInput: `{"type":"object","properties":{"n":{"type":"number"}}}`}

	t.Run("call failed", func(t *testing.T) {
		res := newProcessor(&stubBackend{err: errors.New("429 rate limited")}).Process(context.Background(), req)
		assert.False(t, res.Success)
		assert.Equal(t, common.KindModelCallFailed, res.Kind)
		assert.Equal(t, constants.JobStatusAwaitingModel, res.State)
		assert.NotContains(t, res.Error, "429")
	})

	t.Run("not json", func(t *testing.T) {
		res := newProcessor(&stubBackend{reply: "Sorry, I can't help with that."}).Process(context.Background(), req)
		assert.False(t, res.Success)
		assert.Equal(t, common.KindModelResponseNotJSON, res.Kind)
	})

	t.Run("type mismatch", func(t *testing.T) {
		res := newProcessor(&stubBackend{reply: `{"n":"twelve"}`}).Process(context.Background(), req)
		assert.False(t, res.Success)
		assert.Equal(t, common.KindFieldTypeMismatch, res.Kind)
		assert.Contains(t, res.Error, `"n"`)
	})

	t.Run("missing defaults", func(t *testing.T) {
		res := newProcessor(&stubBackend{reply: `{}`}).Process(context.Background(), req)
		require.True(t, res.Success, res.Error)
		assert.Equal(t, `{"success":true,"data":{"n":0}}`, resultJSON(t, res))
	})
}

func TestProcessInputTooLarge(t *testing.T) {
	backend := &stubBackend{}
	p := NewProcessor(extract.NewRouter(nil, nil), backend, Config{MaxInputBytes: 8}, nil)
	assert.Equal(t, int64(8), p.MaxInputBytes())

	res := p.Process(context.Background(), Request{
		Text: strings.Repeat("x", 9), Mode: constants.ModeHeadings, ModeInput: "A",
	})
	assert.False(t, res.Success)
	assert.Equal(t, common.KindInputTooLarge, res.Kind)
	assert.Zero(t, backend.calls)

	assert.Equal(t, DefaultMaxInputBytes, newProcessor(backend).MaxInputBytes())
}

func TestProcessInvalidRequests(t *testing.T) {
	cases := map[string]Request{
		"no source":     {Mode: constants.ModeHeadings, ModeInput: "A"},
		"both sources":  {Text: "t", File: []byte("f"), MediaType: "text/plain", Mode: constants.ModeHeadings, ModeInput: "A"},
		"no mode input": {Text: "t", Mode: constants.ModeHeadings},
		"unknown mode":  {Text: "t", Mode: "xml", ModeInput: "A"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			backend := &stubBackend{}
			res := newProcessor(backend).Process(context.Background(), req)
			assert.False(t, res.Success)
			assert.Equal(t, common.KindInvalidRequest, res.Kind)
			assert.Equal(t, constants.JobStatusIdle, res.State)
			assert.Zero(t, backend.calls)
		})
	}
}

func TestProcessEmptyHeadings(t *testing.T) {
	for _, in := range []string{" , ,", "   "} {
		res := newProcessor(&stubBackend{}).Process(context.Background(), Request{
			Text: "doc", Mode: constants.ModeHeadings, ModeInput: in,
		})
		assert.False(t, res.Success)
		assert.Equal(t, common.KindEmptyHeadingList, res.Kind, "input %q", in)
	}
}

func TestProcessKeepsCallerRequestID(t *testing.T) {
	ctx := common.WithRequestID(context.Background(), "req-123")
	res := newProcessor(&stubBackend{reply: `{"A":"x"}`}).Process(ctx, Request{
		Text: "doc", Mode: constants.ModeHeadings, ModeInput: "A",
	})
	assert.Equal(t, "req-123", res.RequestID)
}

func TestProcessRecorderErrorsAreIgnored(t *testing.T) {
	rec := newMemRecorder()
	rec.fail = true
	res := newProcessor(&stubBackend{reply: `{"A":"x"}`}, WithRecorder(rec)).Process(context.Background(), Request{
		Text: "doc", Mode: constants.ModeHeadings, ModeInput: "A",
	})
	require.True(t, res.Success)
	assert.Equal(t, constants.JobStatusDone, rec.jobs[res.JobID].status)
}
