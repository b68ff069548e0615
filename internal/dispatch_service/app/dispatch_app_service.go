package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/provider"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/repository"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/storage"
)

// Config carries the tunables of the dispatch engine.
type Config struct {
	GatewayTimeout     time.Duration
	OrganizationName   string
	DefaultCountryCode string
}

// DispatchAppService owns the lifecycle of bulk runs: classification of the
// processed area, run construction, sequential paced execution, cancellation
// and progress reporting. One run executes its jobs strictly in order on a
// single logical worker; independent runs may execute concurrently.
type DispatchAppService struct {
	runRepo       repository.RunRepository
	recipientRepo repository.RecipientRepository
	files         storage.FileStore
	gateway       provider.MessageProvider
	matcher       *domain.Matcher
	pacing        *PacingScheduler
	executor      *SendExecutor
	cfg           Config
	logger        *slog.Logger

	mu     sync.Mutex
	active map[string]*runHandle
	wg     sync.WaitGroup
}

type runHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	// draining marks a shutdown-driven stop: the loop exits without
	// finalizing the run, so it stays RUNNING and resumes after restart.
	draining atomic.Bool
}

func NewDispatchAppService(
	runRepo repository.RunRepository,
	recipientRepo repository.RecipientRepository,
	files storage.FileStore,
	gateway provider.MessageProvider,
	matcher *domain.Matcher,
	pacing *PacingScheduler,
	cfg Config,
	logger *slog.Logger,
) *DispatchAppService {
	return &DispatchAppService{
		runRepo:       runRepo,
		recipientRepo: recipientRepo,
		files:         files,
		gateway:       gateway,
		matcher:       matcher,
		pacing:        pacing,
		executor:      NewSendExecutor(files, gateway, cfg.GatewayTimeout, logger),
		cfg:           cfg,
		logger:        logger.With("service", "dispatch_app"),
		active:        make(map[string]*runHandle),
	}
}

// ListClassifiedFiles classifies every document currently in the processed
// area against the live recipient set. Recomputed on every call; recipients
// change between reads, so classification is never cached.
func (s *DispatchAppService) ListClassifiedFiles(ctx context.Context, periodFilter string) ([]domain.ClassifiedFile, error) {
	files, err := s.files.List(ctx, storage.AreaProcessed)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed area: %w", err)
	}
	recipients, err := s.recipientRepo.ListRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}

	classified := make([]domain.ClassifiedFile, 0, len(files))
	for _, file := range files {
		file.PeriodTag = s.matcher.PeriodTag(file.Filename)
		if periodFilter != "" && file.PeriodTag != periodFilter {
			continue
		}
		matched, _ := s.matcher.Match(file.Filename, recipients)
		classified = append(classified, domain.ClassifiedFile{
			File:           file,
			Classification: domain.Classify(file, matched),
			Recipient:      matched,
		})
	}
	return classified, nil
}

// SubmitBulkRun validates the selection, persists the run with all of its
// jobs atomically, and starts executing in the background. Validation failures
// reject the submission synchronously; no partial run is ever persisted.
func (s *DispatchAppService) SubmitBulkRun(ctx context.Context, filenames []string, template string) (*domain.BulkRun, error) {
	if len(filenames) == 0 {
		return nil, &domain.ValidationError{Message: "empty file selection"}
	}
	if strings.TrimSpace(template) == "" {
		return nil, &domain.ValidationError{Message: "empty message template"}
	}
	if err := s.gateway.CheckConnection(ctx); err != nil {
		return nil, err
	}

	classified, err := s.ListClassifiedFiles(ctx, "")
	if err != nil {
		return nil, err
	}
	byName := make(map[string]domain.ClassifiedFile, len(classified))
	for _, cf := range classified {
		byName[cf.File.Filename] = cf
	}

	// Re-validate against current state: the caller's snapshot may be stale.
	var problems []domain.FileProblem
	seen := make(map[string]bool, len(filenames))
	selection := make([]domain.ClassifiedFile, 0, len(filenames))
	for _, name := range filenames {
		if seen[name] {
			problems = append(problems, domain.FileProblem{Filename: name, Reason: "selected more than once"})
			continue
		}
		seen[name] = true

		cf, ok := byName[name]
		if !ok {
			problems = append(problems, domain.FileProblem{Filename: name, Reason: "not present in processed area"})
			continue
		}
		if cf.Classification != domain.ClassificationReady {
			problems = append(problems, domain.FileProblem{
				Filename:       name,
				Classification: cf.Classification,
				Reason:         "file is not READY",
			})
			continue
		}
		body := s.renderBody(template, cf)
		if strings.TrimSpace(body) == "" {
			problems = append(problems, domain.FileProblem{
				Filename:       name,
				Classification: cf.Classification,
				Reason:         "template renders to an empty message",
			})
			continue
		}
		selection = append(selection, cf)
	}
	if len(problems) > 0 {
		return nil, &domain.ValidationError{Message: "selection rejected", Problems: problems}
	}

	now := time.Now().UTC()
	run := &domain.BulkRun{
		ID:                uuid.NewString(),
		Status:            domain.RunStatusPending,
		Template:          template,
		Total:             len(selection),
		EstimatedDuration: s.pacing.Estimate(len(selection)),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	jobs := make([]domain.DispatchJob, 0, len(selection))
	for i, cf := range selection {
		jobs = append(jobs, domain.DispatchJob{
			ID:                  uuid.NewString(),
			RunID:               run.ID,
			Seq:                 i,
			Filename:            cf.File.Filename,
			PeriodTag:           cf.File.PeriodTag,
			RecipientExternalID: cf.Recipient.ExternalID,
			RecipientName:       cf.Recipient.FullName,
			Address:             domain.NormalizePhone(cf.Recipient.Phone, s.cfg.DefaultCountryCode),
			Body:                s.renderBody(template, cf),
			Status:              domain.JobStatusPending,
		})
	}

	if err := s.runRepo.CreateRun(ctx, run, jobs); err != nil {
		return nil, fmt.Errorf("failed to persist bulk run: %w", err)
	}
	s.logger.InfoContext(ctx, "bulk run submitted",
		"run_id", run.ID, "total", run.Total, "estimated_duration", run.EstimatedDuration.String())

	s.startRun(run, jobs)
	return run, nil
}

func (s *DispatchAppService) renderBody(template string, cf domain.ClassifiedFile) string {
	fullName := ""
	if cf.Recipient != nil {
		fullName = cf.Recipient.FullName
	}
	return domain.RenderTemplate(template, domain.TemplateContext{
		FullName:     fullName,
		PeriodLabel:  domain.PeriodLabel(cf.File.PeriodTag),
		Organization: s.cfg.OrganizationName,
	})
}

// startRun registers the run as active and executes it on its own goroutine.
// The run context is detached from the submitting request.
func (s *DispatchAppService) startRun(run *domain.BulkRun, jobs []domain.DispatchJob) {
	runCtx, cancel := context.WithCancel(context.Background())
	handle := &runHandle{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.active[run.ID] = handle
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(handle.done)
		defer func() {
			s.mu.Lock()
			delete(s.active, run.ID)
			s.mu.Unlock()
			cancel()
		}()
		s.executeRun(runCtx, handle, run, jobs)
	}()
}

// executeRun drives one run from its persisted cursor to a terminal state.
// Each job result is durable before the next job starts. Cancellation is
// cooperative: checked before each pacing wait, and a started job always
// reaches a terminal state. A draining stop leaves the run RUNNING instead of
// finalizing it.
func (s *DispatchAppService) executeRun(ctx context.Context, handle *runHandle, run *domain.BulkRun, jobs []domain.DispatchJob) {
	logger := s.logger.With("run_id", run.ID)
	// Results must land even when the run is being cancelled.
	persistCtx := context.Background()

	if err := s.runRepo.UpdateRunStatus(persistCtx, run.ID, domain.RunStatusRunning); err != nil {
		logger.Error("failed to mark run RUNNING", "error", err)
		return
	}
	activeRunsGauge.Inc()
	defer activeRunsGauge.Dec()
	logger.Info("bulk run started", "total", len(jobs), "cursor", run.Cursor)

	firstSeq := run.Cursor
	completed := firstSeq
	cancelled := false
	var inFlight *domain.DispatchJob

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during bulk run", "panic", r, "stack", string(debug.Stack()))
			if inFlight != nil {
				_ = s.runRepo.RecordJobResult(persistCtx, run.ID, inFlight.Seq, domain.JobResult{
					Status:        domain.JobStatusFailed,
					FailureReason: domain.FailureInternalError,
					ErrorDetail:   fmt.Sprintf("panic: %v", r),
				}, time.Now().UTC())
			}
			s.finishRun(persistCtx, run.ID, domain.RunStatusCancelled, logger)
		}
	}()

	for i := firstSeq; i < len(jobs); i++ {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if i > firstSeq {
			if err := s.pacing.Wait(ctx); err != nil {
				cancelled = true
				break
			}
		}

		job := jobs[i]
		inFlight = &job
		// Detach from the run context: cancellation must not abort a gateway
		// call already in flight, or the outcome would be ambiguous.
		result := s.executor.Execute(context.WithoutCancel(ctx), job)
		attemptedAt := time.Now().UTC()

		if err := s.runRepo.RecordJobResult(persistCtx, run.ID, job.Seq, result, attemptedAt); err != nil {
			// Without a durable cursor the no-double-send guarantee is gone;
			// stop instead of guessing.
			logger.Error("failed to persist job result, aborting run", "seq", job.Seq, "error", err)
			inFlight = nil
			cancelled = true
			break
		}
		inFlight = nil
		completed++
		jobsProcessedCounter.WithLabelValues(string(result.Status), string(result.FailureReason)).Inc()
		logger.Info("job finished",
			"seq", job.Seq, "filename", job.Filename, "status", string(result.Status),
			"reason", string(result.FailureReason))
	}

	switch {
	case cancelled && handle.draining.Load():
		// Shutdown, not an operator cancellation: pending jobs stay PENDING
		// and the run resumes from the persisted cursor on the next startup.
		logger.Info("bulk run suspended for shutdown", "cursor", completed, "total", len(jobs))
	case cancelled:
		s.finishRun(persistCtx, run.ID, domain.RunStatusCancelled, logger)
	default:
		s.finishRun(persistCtx, run.ID, domain.RunStatusCompleted, logger)
	}
}

func (s *DispatchAppService) finishRun(ctx context.Context, runID string, status domain.RunStatus, logger *slog.Logger) {
	if status == domain.RunStatusCancelled {
		if n, err := s.runRepo.CancelRemainingJobs(ctx, runID); err != nil {
			logger.Error("failed to cancel remaining jobs", "error", err)
		} else if n > 0 {
			logger.Info("remaining jobs cancelled", "count", n)
		}
	}
	if err := s.runRepo.UpdateRunStatus(ctx, runID, status); err != nil {
		logger.Error("failed to finalize run status", "status", string(status), "error", err)
		return
	}
	runsFinishedCounter.WithLabelValues(string(status)).Inc()
	logger.Info("bulk run finished", "status", string(status))
}

// GetRunProgress returns a point-in-time snapshot, safe to call while the run
// executes.
func (s *DispatchAppService) GetRunProgress(ctx context.Context, runID string) (*domain.RunProgress, error) {
	run, err := s.runRepo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &domain.RunProgress{
		RunID:       run.ID,
		Status:      run.Status,
		Cursor:      run.Cursor,
		Total:       run.Total,
		SentCount:   run.SentCount,
		FailedCount: run.FailedCount,
	}, nil
}

// GetRunSummary returns the full accounting of a run, including every failed
// filename with its reason.
func (s *DispatchAppService) GetRunSummary(ctx context.Context, runID string) (*domain.RunSummary, error) {
	run, err := s.runRepo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.runRepo.ListJobs(ctx, runID)
	if err != nil {
		return nil, err
	}
	summary := &domain.RunSummary{
		RunID:       run.ID,
		Status:      run.Status,
		SentCount:   run.SentCount,
		FailedCount: run.FailedCount,
	}
	for _, job := range jobs {
		if job.Status == domain.JobStatusFailed {
			summary.Failures = append(summary.Failures, domain.JobFailure{
				Filename:            job.Filename,
				RecipientExternalID: job.RecipientExternalID,
				Reason:              job.FailureReason,
				Detail:              job.ErrorDetail,
			})
		}
	}
	return summary, nil
}

func (s *DispatchAppService) ListRuns(ctx context.Context, limit int) ([]domain.BulkRun, error) {
	return s.runRepo.ListRuns(ctx, limit)
}

// CancelRun requests cooperative cancellation. A job already handed to the
// executor finishes; the scheduler releases no further jobs and an in-progress
// pacing wait aborts immediately.
func (s *DispatchAppService) CancelRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	handle, ok := s.active[runID]
	s.mu.Unlock()
	if ok {
		select {
		case <-handle.done:
			// The loop already finished; fall through to the persisted status
			// so a completed run reports terminal instead of success.
		default:
			handle.cancel()
			s.logger.InfoContext(ctx, "cancellation requested", "run_id", runID)
			return nil
		}
	}

	// Not running in this process: either terminal, or stranded by a crash.
	run, err := s.runRepo.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return domain.ErrRunTerminal
	}
	if _, err := s.runRepo.CancelRemainingJobs(ctx, runID); err != nil {
		return err
	}
	return s.runRepo.UpdateRunStatus(ctx, runID, domain.RunStatusCancelled)
}

// SendSingle is the manual redelivery path: one document to one address,
// bypassing queue and pacing but reusing the executor, so file-exists and
// address-shape checks still hold.
func (s *DispatchAppService) SendSingle(ctx context.Context, filename, address, message string) (*domain.JobResult, error) {
	if !domain.HasPlausiblePhone(address) {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("address %q fails the phone shape check", address)}
	}

	body := strings.TrimSpace(message)
	recipientID := ""
	recipientName := ""
	if rec, err := s.lookupByFilename(ctx, filename); err == nil && rec != nil {
		recipientID = rec.ExternalID
		recipientName = rec.FullName
		if body != "" {
			body = domain.RenderTemplate(body, domain.TemplateContext{
				FullName:     rec.FullName,
				PeriodLabel:  domain.PeriodLabel(s.matcher.PeriodTag(filename)),
				Organization: s.cfg.OrganizationName,
			})
		}
	}
	if body == "" {
		body = filename
	}

	job := domain.DispatchJob{
		ID:                  uuid.NewString(),
		Seq:                 0,
		Filename:            filename,
		PeriodTag:           s.matcher.PeriodTag(filename),
		RecipientExternalID: recipientID,
		RecipientName:       recipientName,
		Address:             domain.NormalizePhone(address, s.cfg.DefaultCountryCode),
		Body:                body,
		Status:              domain.JobStatusPending,
	}
	result := s.executor.Execute(ctx, job)
	jobsProcessedCounter.WithLabelValues(string(result.Status), string(result.FailureReason)).Inc()
	return &result, nil
}

func (s *DispatchAppService) lookupByFilename(ctx context.Context, filename string) (*domain.Recipient, error) {
	id, ok := s.matcher.ExternalID(filename)
	if !ok {
		return nil, nil
	}
	rec, err := s.recipientRepo.GetByExternalID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRecipientNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// DeleteFile removes a document from the processed area (operator cleanup of
// permanent orphans).
func (s *DispatchAppService) DeleteFile(ctx context.Context, filename string) error {
	return s.files.Delete(ctx, storage.AreaProcessed, filename)
}

// ResumeInterruptedRuns re-adopts runs left non-terminal by a previous
// process, continuing each from its persisted cursor so completed jobs are
// never re-sent. Call once at startup.
func (s *DispatchAppService) ResumeInterruptedRuns(ctx context.Context) error {
	for _, status := range []domain.RunStatus{domain.RunStatusRunning, domain.RunStatusPending} {
		runs, err := s.runRepo.ListRunsByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to list %s runs: %w", status, err)
		}
		for i := range runs {
			run := runs[i]
			jobs, err := s.runRepo.ListJobs(ctx, run.ID)
			if err != nil {
				return fmt.Errorf("failed to load jobs of run %s: %w", run.ID, err)
			}
			s.logger.InfoContext(ctx, "resuming interrupted run",
				"run_id", run.ID, "cursor", run.Cursor, "total", run.Total)
			s.startRun(&run, jobs)
		}
	}
	return nil
}

// Shutdown stops every active run loop and waits for them to exit or ctx to
// expire. Runs are suspended, not cancelled: they stay RUNNING in the store
// and ResumeInterruptedRuns continues them on the next startup.
func (s *DispatchAppService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	for _, handle := range s.active {
		handle.draining.Store(true)
		handle.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out waiting for active runs")
	}
}
