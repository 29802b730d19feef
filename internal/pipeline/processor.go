package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/doc-extractor/constants"
	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/extract"
	"github.com/joseph-ayodele/doc-extractor/internal/llm"
	"github.com/joseph-ayodele/doc-extractor/internal/schema"
)

const DefaultMaxInputBytes int64 = 10 << 20

type Config struct {
	Model         string // passed to the backend; "" lets the backend pick
	MaxInputBytes int64  // default 10 MiB
}

type Option func(*Processor)

// WithRecorder reports every transition to r.
func WithRecorder(r JobRecorder) Option {
	return func(p *Processor) { p.recorder = r }
}

// Processor runs route → extract → schema → prompt → model → reconcile.
// It holds no per-request state and is safe for concurrent use.
type Processor struct {
	cfg      Config
	router   *extract.Router
	backend  llm.Backend
	recorder JobRecorder
	logger   *slog.Logger
}

func NewProcessor(router *extract.Router, backend llm.Backend, cfg Config, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = DefaultMaxInputBytes
	}
	p := &Processor{cfg: cfg, router: router, backend: backend, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxInputBytes is the size ceiling applied before routing.
func (p *Processor) MaxInputBytes() int64 { return p.cfg.MaxInputBytes }

// Process runs one request to completion. Failures are reported in the Result,
// never as a Go error.
func (p *Processor) Process(ctx context.Context, req Request) Result {
	ctx, rid := common.EnsureRequestID(ctx)
	r := &run{
		p:      p,
		ctx:    ctx,
		logger: p.logger.With("req_id", rid),
		jobID:  uuid.NewString(),
		state:  constants.JobStatusIdle,
		start:  time.Now(),
	}
	r.begin(req)

	values, err := r.execute(req)
	if err != nil {
		return r.fail(rid, err)
	}
	r.finish()
	return Result{
		Success:   true,
		Data:      values,
		State:     constants.JobStatusReconciled,
		RequestID: rid,
		JobID:     r.jobID,
	}
}

// run is the state of a single Process call.
type run struct {
	p      *Processor
	ctx    context.Context
	logger *slog.Logger
	jobID  string
	state  constants.JobStatus
	start  time.Time
}

func (r *run) execute(req Request) (*schema.Values, error) {
	// 0. request shape and size ceiling
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if n := req.size(); n > r.p.cfg.MaxInputBytes {
		return nil, common.NewAppError(common.KindInputTooLarge,
			fmt.Sprintf("Input is %d bytes, the limit is %d bytes", n, r.p.cfg.MaxInputBytes), nil)
	}

	// 1. route
	var (
		format    extract.Format
		extractor extract.Extractor
		data      []byte
	)
	if req.Source() == constants.SourceFile {
		f, ex, err := r.p.router.Route(req.MediaType)
		if err != nil {
			return nil, err
		}
		format, extractor, data = f, ex, req.File
	} else {
		format, extractor, data = extract.FormatText, r.p.router.Text(), []byte(req.Text)
	}
	r.advance(constants.JobStatusRouted, "format", format, "bytes", len(data))

	// 2. extract
	text, err := extractor.Extract(r.ctx, data)
	if err != nil {
		if common.KindOf(err) == common.KindInternal {
			err = common.NewAppError(common.KindExtractionFailure, "Could not extract text from the document", err)
		}
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, common.NewAppError(common.KindEmptyDocumentContent, "No text could be extracted from the document", nil)
	}
	r.advance(constants.JobStatusTextExtracted, "chars", len(text))

	// 3. schema
	s, err := schema.Build(req.Mode, req.ModeInput)
	if err != nil {
		return nil, err
	}
	r.advance(constants.JobStatusSchemaReady, "fields", s.Len(), "mode", req.Mode)

	// 4. prompt
	prompt, err := llm.BuildPrompt(s, text)
	if err != nil {
		return nil, common.NewAppError(common.KindInternal, "Could not build the prompt", err)
	}
	r.advance(constants.JobStatusPromptBuilt, "prompt_len", len(prompt))

	// 5. model
	r.advance(constants.JobStatusAwaitingModel, "model", r.p.cfg.Model)
	raw, err := r.p.backend.Complete(r.ctx, r.p.cfg.Model, prompt, s)
	if err != nil {
		return nil, common.NewAppError(common.KindModelCallFailed, "The language model request failed", err)
	}

	// 6. reconcile
	values, err := llm.Reconcile(raw, s)
	if err != nil {
		r.logger.Debug("pipeline.reconcile.raw", "raw", truncate(raw, 2048))
		return nil, err
	}
	if err := llm.CheckConformance(s, values); err != nil {
		r.logger.Warn("pipeline.reconcile.nonconformant", "error", err)
	}
	r.advance(constants.JobStatusReconciled, "fields", values.Len())
	return values, nil
}

func validateRequest(req Request) error {
	v := common.NewValidator()
	hasText, hasFile := req.Text != "", len(req.File) > 0
	v.Check(hasText || hasFile, "source", nil, "provide either text or a file")
	v.Check(!(hasText && hasFile), "source", nil, "provide either text or a file, not both")
	// blank headings are left to the schema builder (EmptyHeadingList)
	v.Check(req.ModeInput != "", "modeInput", req.ModeInput, "is required")
	v.Field("mode", req.Mode, common.OneOf(constants.ModeHeadings, constants.ModeJSON))
	return v.AppError()
}

func (r *run) begin(req Request) {
	r.logger.Info("pipeline.start", "job_id", r.jobID, "source", req.Source(), "media_type", req.MediaType, "mode", req.Mode)
	if r.p.recorder == nil {
		return
	}
	err := r.p.recorder.Start(r.ctx, Job{
		ID:        r.jobID,
		RequestID: common.RequestIDFromContext(r.ctx),
		Source:    req.Source(),
		MediaType: req.MediaType,
		Mode:      req.Mode,
		StartedAt: r.start,
	})
	if err != nil {
		r.logger.Warn("pipeline.recorder.start_failed", "job_id", r.jobID, "error", err)
	}
}

func (r *run) advance(to constants.JobStatus, attrs ...any) {
	r.state = to
	attrs = append([]any{"state", string(to), "elapsed_ms", time.Since(r.start).Milliseconds()}, attrs...)
	r.logger.Info("pipeline.transition", attrs...)
	if r.p.recorder == nil {
		return
	}
	if err := r.p.recorder.Transition(r.ctx, r.jobID, to); err != nil {
		r.logger.Warn("pipeline.recorder.transition_failed", "job_id", r.jobID, "state", string(to), "error", err)
	}
}

func (r *run) finish() {
	r.logger.Info("pipeline.done", "job_id", r.jobID, "elapsed_ms", time.Since(r.start).Milliseconds())
	r.record(constants.JobStatusDone, "", "")
}

func (r *run) fail(rid string, err error) Result {
	kind, msg := common.KindOf(err), common.MessageOf(err)
	r.logger.Error("pipeline.failed",
		"job_id", r.jobID,
		"state", string(r.state),
		"kind", string(kind),
		"error", err,
		"elapsed_ms", time.Since(r.start).Milliseconds(),
	)
	r.record(constants.JobStatusFailed, kind, msg)
	if kind == common.KindInternal {
		msg = "Internal error"
	}
	return Result{Success: false, Error: msg, Kind: kind, State: r.state, RequestID: rid, JobID: r.jobID}
}

func (r *run) record(status constants.JobStatus, kind common.ErrorKind, msg string) {
	if r.p.recorder == nil {
		return
	}
	// the ledger write must survive a cancelled request
	ctx := context.WithoutCancel(r.ctx)
	if err := r.p.recorder.Finish(ctx, r.jobID, status, kind, msg); err != nil {
		r.logger.Warn("pipeline.recorder.finish_failed", "job_id", r.jobID, "status", string(status), "error", err)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
