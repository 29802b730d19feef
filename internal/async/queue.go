package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/doc-extractor/internal/pipeline"
)

var ErrQueueClosed = errors.New("queue is shut down")

// Processor is the part of pipeline.Processor the queue drives.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) pipeline.Result
}

// Job is one document submitted for extraction.
type Job struct {
	ID          string // caller key, usually the source path
	Seq         int    // submission order, set by Run
	Request     pipeline.Request
	SubmittedAt time.Time

	// Load, when set, builds the request on the worker right before the run,
	// so queued jobs hold no document bytes. A load error fails the job.
	Load func() (pipeline.Request, error)
}

// Outcome pairs a job with its pipeline result.
type Outcome struct {
	Job     Job
	Result  pipeline.Result
	Elapsed time.Duration
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context) error
}

type Option func(*Pool)

// WithWorkers sets the number of concurrent pipeline runs (default 4).
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets the buffered job capacity (default 64).
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.size = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pool is a bounded worker queue in front of a Processor.
type Pool struct {
	proc    Processor
	workers int
	size    int
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan Job
	out    chan Outcome
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*Pool)(nil)

// NewPool starts the workers. They stop when ctx is cancelled or after Shutdown.
func NewPool(ctx context.Context, proc Processor, opts ...Option) *Pool {
	p := &Pool{proc: proc, workers: 4, size: 64, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.jobs = make(chan Job, p.size)
	p.out = make(chan Outcome, p.workers)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.work(i)
	}
	p.logger.Info("queue.started", "workers", p.workers, "size", p.size)
	return p
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			start := time.Now()
			res := p.run(job)
			o := Outcome{Job: job, Result: res, Elapsed: time.Since(start)}
			p.logger.Info("queue.job.done",
				"worker", id,
				"job", job.ID,
				"success", res.Success,
				"kind", string(res.Kind),
				"elapsed_ms", o.Elapsed.Milliseconds(),
			)
			select {
			case p.out <- o:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) run(job Job) pipeline.Result {
	req := job.Request
	if job.Load != nil {
		loaded, err := job.Load()
		if err != nil {
			return pipeline.Result{Success: false, Error: "Could not read file: " + err.Error()}
		}
		req = loaded
	}
	return p.proc.Process(p.ctx, req)
}

// Enqueue blocks until the job is accepted, ctx ends, or the pool is shut down.
func (p *Pool) Enqueue(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Results yields outcomes in completion order. It is closed once Shutdown returns.
func (p *Pool) Results() <-chan Outcome { return p.out }

// Shutdown stops accepting jobs and waits for queued ones to finish. If ctx ends
// first, in-flight runs are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		p.cancel()
		<-done
	}
	p.cancel()
	close(p.out)
	p.logger.Info("queue.stopped")
	return err
}

// Run pushes jobs through a fresh pool and returns outcomes in submission order.
func Run(ctx context.Context, proc Processor, jobs []Job, opts ...Option) []Outcome {
	pool := NewPool(ctx, proc, opts...)

	go func() {
		for i, job := range jobs {
			job.Seq = i
			if err := pool.Enqueue(ctx, job); err != nil {
				pool.logger.Warn("queue.enqueue.failed", "job", job.ID, "error", err)
				break
			}
		}
		_ = pool.Shutdown(context.Background())
	}()

	out := make([]Outcome, len(jobs))
	seen := make([]bool, len(jobs))
	for o := range pool.Results() {
		out[o.Job.Seq] = o
		seen[o.Job.Seq] = true
	}
	for i := range out {
		if !seen[i] {
			out[i] = Outcome{Job: jobs[i], Result: cancelled(ctx)}
			out[i].Job.Seq = i
		}
	}
	return out
}

func cancelled(ctx context.Context) pipeline.Result {
	msg := "Not processed"
	if err := ctx.Err(); err != nil {
		msg = "Not processed: " + err.Error()
	}
	return pipeline.Result{Success: false, Error: msg}
}
