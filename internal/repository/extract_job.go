package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/doc-extractor/constants"
	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/pipeline"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS extract_job (
	id            TEXT PRIMARY KEY,
	request_id    TEXT NOT NULL,
	source        TEXT NOT NULL,
	media_type    TEXT NOT NULL DEFAULT '',
	mode          TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME
);
CREATE INDEX IF NOT EXISTS extract_job_status_idx ON extract_job(status);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS extract_job (
	id            UUID PRIMARY KEY,
	request_id    TEXT NOT NULL,
	source        TEXT NOT NULL,
	media_type    TEXT NOT NULL DEFAULT '',
	mode          TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS extract_job_status_idx ON extract_job(status);
`

var ErrJobNotFound = errors.New("extract job not found")

// ExtractJob is one ledger row. It never holds document text, schema or result.
type ExtractJob struct {
	ID           string              `json:"id"`
	RequestID    string              `json:"requestId"`
	Source       string              `json:"source"`
	MediaType    string              `json:"mediaType"`
	Mode         string              `json:"mode"`
	Status       constants.JobStatus `json:"status"`
	ErrorKind    common.ErrorKind    `json:"errorKind,omitempty"`
	ErrorMessage string              `json:"error,omitempty"`
	Finished     bool                `json:"finished"`
}

// ExtractJobRepository records pipeline runs. It satisfies pipeline.JobRecorder.
type ExtractJobRepository struct {
	db  *DB
	log *slog.Logger
}

var _ pipeline.JobRecorder = (*ExtractJobRepository)(nil)

func NewExtractJobRepository(db *DB, log *slog.Logger) *ExtractJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &ExtractJobRepository{db: db, log: log}
}

// Migrate creates the extract_job table if it does not exist.
func (r *ExtractJobRepository) Migrate(ctx context.Context) error {
	ddl := sqliteSchema
	if r.db.Dialect == DialectPostgres {
		ddl = postgresSchema
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		r.log.Error("extract_job.migrate.failed", "error", err)
		return common.WrapError(err, "migrate extract_job")
	}
	return nil
}

func (r *ExtractJobRepository) Start(ctx context.Context, job pipeline.Job) error {
	started := job.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO extract_job (id, request_id, source, media_type, mode, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		job.ID, job.RequestID, job.Source, job.MediaType, job.Mode,
		string(constants.JobStatusIdle), started.UTC(),
	)
	if err != nil {
		r.log.Error("extract_job.start.failed", "job_id", job.ID, "error", err)
		return err
	}
	r.log.Debug("extract_job.started", "job_id", job.ID, "source", job.Source)
	return nil
}

func (r *ExtractJobRepository) Transition(ctx context.Context, jobID string, to constants.JobStatus) error {
	return r.update(ctx, jobID, r.db.rebind(`UPDATE extract_job SET status = ? WHERE id = ?`), string(to), jobID)
}

func (r *ExtractJobRepository) Finish(ctx context.Context, jobID string, status constants.JobStatus, kind common.ErrorKind, message string) error {
	err := r.update(ctx, jobID, r.db.rebind(`
		UPDATE extract_job SET status = ?, error_kind = ?, error_message = ?, finished_at = ?
		WHERE id = ?`),
		string(status), string(kind), message, time.Now().UTC(), jobID,
	)
	if err != nil {
		return err
	}
	if status == constants.JobStatusFailed {
		r.log.Warn("extract_job.finished", "job_id", jobID, "status", string(status), "kind", string(kind))
	} else {
		r.log.Info("extract_job.finished", "job_id", jobID, "status", string(status))
	}
	return nil
}

func (r *ExtractJobRepository) update(ctx context.Context, jobID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("extract_job.update.failed", "job_id", jobID, "error", err)
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Get loads one job by id.
func (r *ExtractJobRepository) Get(ctx context.Context, jobID string) (*ExtractJob, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(`
		SELECT id, request_id, source, media_type, mode, status, error_kind, error_message,
		       finished_at IS NOT NULL
		FROM extract_job WHERE id = ?`), jobID)

	var (
		j            ExtractJob
		status, kind string
	)
	err := row.Scan(&j.ID, &j.RequestID, &j.Source, &j.MediaType, &j.Mode, &status, &kind, &j.ErrorMessage, &j.Finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	j.Status = constants.JobStatus(status)
	j.ErrorKind = common.ErrorKind(kind)
	return &j, nil
}

// CountByStatus returns the number of jobs per status.
func (r *ExtractJobRepository) CountByStatus(ctx context.Context) (map[constants.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM extract_job GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := map[constants.JobStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[constants.JobStatus(status)] = n
	}
	return out, rows.Err()
}
