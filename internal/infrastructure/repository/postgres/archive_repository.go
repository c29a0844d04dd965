package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
)

// ArchiveRepository keeps finished jobs so results survive TTL sweeps and restarts.
type ArchiveRepository struct {
	db *sql.DB
}

func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ArchiveRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent api startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	text TEXT,
	extraction_method TEXT,
	suggestions_status TEXT,
	suggestions JSONB,
	suggestions_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_jobs_finished_at ON analysis_jobs(finished_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ArchiveRepository) SaveFinished(ctx context.Context, job domain.Job) error {
	if !job.Finished() {
		return domain.WrapError(domain.ErrInvalidInput, "archive job", fmt.Errorf("job %s is %s", job.ID, job.Status))
	}

	var (
		text              sql.NullString
		method            sql.NullString
		suggestionsStatus sql.NullString
		suggestionsJSON   []byte
		suggestionsError  string
	)
	if res := job.Result; res != nil {
		text = sql.NullString{String: res.Text, Valid: true}
		method = sql.NullString{String: string(res.ExtractionMethod), Valid: res.ExtractionMethod != ""}
		suggestionsStatus = sql.NullString{String: string(res.SuggestionsStatus), Valid: true}
		suggestionsError = res.SuggestionsError
		if res.Suggestions != nil {
			raw, err := json.Marshal(res.Suggestions)
			if err != nil {
				return fmt.Errorf("marshal suggestions: %w", err)
			}
			suggestionsJSON = raw
		}
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO analysis_jobs (
	id, filename, mime_type, storage_key, size_bytes, status, error_message,
	text, extraction_method, suggestions_status, suggestions, suggestions_error, created_at, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	text = EXCLUDED.text,
	extraction_method = EXCLUDED.extraction_method,
	suggestions_status = EXCLUDED.suggestions_status,
	suggestions = EXCLUDED.suggestions,
	suggestions_error = EXCLUDED.suggestions_error,
	finished_at = EXCLUDED.finished_at
`,
		job.ID, job.Source.Filename, job.Source.MimeType, job.Source.StorageKey, job.Source.Size,
		string(job.Status), job.Error, text, method, suggestionsStatus, suggestionsJSON, suggestionsError,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis job: %w", err)
	}
	return nil
}

func (r *ArchiveRepository) FindFinished(ctx context.Context, id string) (domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_key, size_bytes, status, error_message,
	text, extraction_method, suggestions_status, suggestions, suggestions_error, created_at, finished_at
FROM analysis_jobs
WHERE id = $1
`, id)

	var (
		job               domain.Job
		status            string
		text              sql.NullString
		method            sql.NullString
		suggestionsStatus sql.NullString
		suggestionsRaw    []byte
		suggestionsError  string
	)
	err := row.Scan(
		&job.ID, &job.Source.Filename, &job.Source.MimeType, &job.Source.StorageKey, &job.Source.Size,
		&status, &job.Error, &text, &method, &suggestionsStatus, &suggestionsRaw, &suggestionsError,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, domain.WrapError(domain.ErrJobNotFound, "find archived job", fmt.Errorf("id=%s", id))
		}
		return domain.Job{}, fmt.Errorf("scan analysis job: %w", err)
	}

	job.Status = domain.JobStatus(status)
	if suggestionsStatus.Valid {
		job.Result = &domain.Result{
			Text:              text.String,
			ExtractionMethod:  domain.ExtractionMethod(method.String),
			SuggestionsStatus: domain.SuggestionsStatus(suggestionsStatus.String),
			SuggestionsError:  suggestionsError,
		}
		if len(suggestionsRaw) > 0 {
			if err := json.Unmarshal(suggestionsRaw, &job.Result.Suggestions); err != nil {
				return domain.Job{}, fmt.Errorf("unmarshal suggestions: %w", err)
			}
		}
	}
	return job, nil
}
