package repository

import (
	"context"
	"time"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
)

// RunRepository persists bulk runs and their job-level results. Every job
// result is durable before the next job starts, so a restarted coordinator
// resumes from the true cursor instead of re-sending.
type RunRepository interface {
	// CreateRun persists a run together with all of its jobs atomically;
	// on error nothing is persisted.
	CreateRun(ctx context.Context, run *domain.BulkRun, jobs []domain.DispatchJob) error
	GetRun(ctx context.Context, runID string) (*domain.BulkRun, error)
	ListRuns(ctx context.Context, limit int) ([]domain.BulkRun, error)
	ListRunsByStatus(ctx context.Context, status domain.RunStatus) ([]domain.BulkRun, error)
	ListJobs(ctx context.Context, runID string) ([]domain.DispatchJob, error)
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error
	// RecordJobResult writes one terminal job result and advances the run's
	// cursor and counters in the same transaction.
	RecordJobResult(ctx context.Context, runID string, seq int, result domain.JobResult, attemptedAt time.Time) error
	// CancelRemainingJobs marks every still-pending job of the run CANCELLED
	// and returns how many were affected.
	CancelRemainingJobs(ctx context.Context, runID string) (int, error)
}

// RecipientRepository reads the employee directory. The directory is owned by
// the HR system; the dispatch engine never writes it.
type RecipientRepository interface {
	ListRecipients(ctx context.Context) ([]domain.Recipient, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Recipient, error)
}
