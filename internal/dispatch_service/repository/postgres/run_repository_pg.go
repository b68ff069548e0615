package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/repository"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the dispatch tables when absent. Idempotent.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

type pgRunRepository struct {
	db *pgxpool.Pool
}

// NewPgRunRepository creates the PostgreSQL-backed run repository.
func NewPgRunRepository(db *pgxpool.Pool) repository.RunRepository {
	return &pgRunRepository{db: db}
}

func (r *pgRunRepository) CreateRun(ctx context.Context, run *domain.BulkRun, jobs []domain.DispatchJob) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO dispatch_runs (
				id, status, template, cursor, total, sent_count, failed_count,
				estimated_duration_ms, created_at, updated_at, started_at, finished_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			run.ID, run.Status, run.Template, run.Cursor, run.Total, run.SentCount, run.FailedCount,
			run.EstimatedDuration.Milliseconds(), run.CreatedAt, run.UpdatedAt, run.StartedAt, run.FinishedAt,
		)
		if err != nil {
			return err
		}
		for i := range jobs {
			job := &jobs[i]
			_, err = tx.Exec(ctx, `
				INSERT INTO dispatch_jobs (
					id, run_id, seq, filename, period_tag, recipient_external_id,
					recipient_name, address, body, status, failure_reason,
					error_detail, provider_message_id, attempted_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
				job.ID, job.RunID, job.Seq, job.Filename, job.PeriodTag, job.RecipientExternalID,
				job.RecipientName, job.Address, job.Body, job.Status, job.FailureReason,
				job.ErrorDetail, job.ProviderMessageID, job.AttemptedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

const runColumns = `
	id, status, template, cursor, total, sent_count, failed_count,
	estimated_duration_ms, created_at, updated_at, started_at, finished_at`

func scanRun(row pgx.Row) (*domain.BulkRun, error) {
	var run domain.BulkRun
	var estimatedMs int64
	err := row.Scan(
		&run.ID, &run.Status, &run.Template, &run.Cursor, &run.Total,
		&run.SentCount, &run.FailedCount, &estimatedMs,
		&run.CreatedAt, &run.UpdatedAt, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.EstimatedDuration = time.Duration(estimatedMs) * time.Millisecond
	return &run, nil
}

func (r *pgRunRepository) GetRun(ctx context.Context, runID string) (*domain.BulkRun, error) {
	run, err := scanRun(r.db.QueryRow(ctx, `SELECT`+runColumns+` FROM dispatch_runs WHERE id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (r *pgRunRepository) ListRuns(ctx context.Context, limit int) ([]domain.BulkRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT`+runColumns+` FROM dispatch_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func (r *pgRunRepository) ListRunsByStatus(ctx context.Context, status domain.RunStatus) ([]domain.BulkRun, error) {
	rows, err := r.db.Query(ctx, `SELECT`+runColumns+` FROM dispatch_runs WHERE status = $1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func collectRuns(rows pgx.Rows) ([]domain.BulkRun, error) {
	var runs []domain.BulkRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *pgRunRepository) ListJobs(ctx context.Context, runID string) ([]domain.DispatchJob, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, run_id, seq, filename, period_tag, recipient_external_id,
		       recipient_name, address, body, status, failure_reason,
		       error_detail, provider_message_id, attempted_at
		FROM dispatch_jobs WHERE run_id = $1 ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.DispatchJob
	for rows.Next() {
		var job domain.DispatchJob
		err := rows.Scan(
			&job.ID, &job.RunID, &job.Seq, &job.Filename, &job.PeriodTag, &job.RecipientExternalID,
			&job.RecipientName, &job.Address, &job.Body, &job.Status, &job.FailureReason,
			&job.ErrorDetail, &job.ProviderMessageID, &job.AttemptedAt,
		)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *pgRunRepository) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error {
	now := time.Now().UTC()
	query := `UPDATE dispatch_runs SET status = $2, updated_at = $3`
	switch status {
	case domain.RunStatusRunning:
		query += `, started_at = COALESCE(started_at, $3)`
	case domain.RunStatusCompleted, domain.RunStatusCancelled:
		query += `, finished_at = COALESCE(finished_at, $3)`
	}
	query += ` WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, runID, status, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (r *pgRunRepository) RecordJobResult(ctx context.Context, runID string, seq int, result domain.JobResult, attemptedAt time.Time) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE dispatch_jobs
			SET status = $3, failure_reason = $4, error_detail = $5,
			    provider_message_id = $6, attempted_at = $7
			WHERE run_id = $1 AND seq = $2 AND status = $8`,
			runID, seq, result.Status, result.FailureReason, result.ErrorDetail,
			result.ProviderMessageID, attemptedAt, domain.JobStatusPending,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("job %d of run %s is not pending; refusing second attempt", seq, runID)
		}

		sentDelta, failedDelta := 0, 0
		switch result.Status {
		case domain.JobStatusSent:
			sentDelta = 1
		case domain.JobStatusFailed:
			failedDelta = 1
		}
		_, err = tx.Exec(ctx, `
			UPDATE dispatch_runs
			SET cursor = cursor + 1, sent_count = sent_count + $2,
			    failed_count = failed_count + $3, updated_at = $4
			WHERE id = $1`,
			runID, sentDelta, failedDelta, time.Now().UTC(),
		)
		return err
	})
}

func (r *pgRunRepository) CancelRemainingJobs(ctx context.Context, runID string) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE dispatch_jobs SET status = $2
		WHERE run_id = $1 AND status = $3`,
		runID, domain.JobStatusCancelled, domain.JobStatusPending,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
