package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/provider"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/repository"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/storage"
)

// --- In-memory repositories ---

type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]*domain.BulkRun
	jobs map[string][]domain.DispatchJob
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: map[string]*domain.BulkRun{}, jobs: map[string][]domain.DispatchJob{}}
}

func (r *memRunRepo) CreateRun(ctx context.Context, run *domain.BulkRun, jobs []domain.DispatchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	r.jobs[run.ID] = append([]domain.DispatchJob(nil), jobs...)
	return nil
}

func (r *memRunRepo) GetRun(ctx context.Context, runID string) (*domain.BulkRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *memRunRepo) ListRuns(ctx context.Context, limit int) ([]domain.BulkRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BulkRun
	for _, run := range r.runs {
		out = append(out, *run)
	}
	return out, nil
}

func (r *memRunRepo) ListRunsByStatus(ctx context.Context, status domain.RunStatus) ([]domain.BulkRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BulkRun
	for _, run := range r.runs {
		if run.Status == status {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (r *memRunRepo) ListJobs(ctx context.Context, runID string) ([]domain.DispatchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DispatchJob(nil), r.jobs[runID]...), nil
}

func (r *memRunRepo) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return domain.ErrRunNotFound
	}
	run.Status = status
	return nil
}

func (r *memRunRepo) RecordJobResult(ctx context.Context, runID string, seq int, result domain.JobResult, attemptedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return domain.ErrRunNotFound
	}
	jobs := r.jobs[runID]
	if seq < 0 || seq >= len(jobs) {
		return fmt.Errorf("no job with seq %d", seq)
	}
	if jobs[seq].Status != domain.JobStatusPending {
		return fmt.Errorf("job %d is not pending", seq)
	}
	jobs[seq].Status = result.Status
	jobs[seq].FailureReason = result.FailureReason
	jobs[seq].ErrorDetail = result.ErrorDetail
	jobs[seq].ProviderMessageID = result.ProviderMessageID
	jobs[seq].AttemptedAt = &attemptedAt
	run.Cursor++
	switch result.Status {
	case domain.JobStatusSent:
		run.SentCount++
	case domain.JobStatusFailed:
		run.FailedCount++
	}
	return nil
}

func (r *memRunRepo) CancelRemainingJobs(ctx context.Context, runID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := r.jobs[runID]
	n := 0
	for i := range jobs {
		if jobs[i].Status == domain.JobStatusPending {
			jobs[i].Status = domain.JobStatusCancelled
			n++
		}
	}
	return n, nil
}

func (r *memRunRepo) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

var _ repository.RunRepository = (*memRunRepo)(nil)

type memRecipientRepo struct {
	recipients []domain.Recipient
}

func (r *memRecipientRepo) ListRecipients(ctx context.Context) ([]domain.Recipient, error) {
	return append([]domain.Recipient(nil), r.recipients...), nil
}

func (r *memRecipientRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Recipient, error) {
	for i := range r.recipients {
		if r.recipients[i].ExternalID == externalID {
			cp := r.recipients[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrRecipientNotFound
}

var _ repository.RecipientRepository = (*memRecipientRepo)(nil)

// --- Scriptable gateway ---

type fakeGateway struct {
	mu            sync.Mutex
	failAddresses map[string]bool
	disconnected  bool
	sentFiles     []string
}

func (g *fakeGateway) Send(ctx context.Context, details provider.SendRequestDetails) (*provider.SendResponseDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAddresses[details.Recipient] {
		return &provider.SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: "FAILED_400",
			ErrorMessage:   "number not registered on channel",
		}, nil
	}
	g.sentFiles = append(g.sentFiles, details.AttachmentName)
	return &provider.SendResponseDetails{IsSuccess: true, ProviderMessageID: "msg-" + details.AttachmentName}, nil
}

func (g *fakeGateway) CheckConnection(ctx context.Context) error {
	if g.disconnected {
		return fmt.Errorf("%w: instance is closed", domain.ErrGatewayUnavailable)
	}
	return nil
}

func (g *fakeGateway) GetName() string { return "fake" }

func (g *fakeGateway) sent() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.sentFiles...)
}

// --- Fixture ---

type fixture struct {
	service       *DispatchAppService
	runRepo       *memRunRepo
	recipientRepo *memRecipientRepo
	gateway       *fakeGateway
	store         *storage.DirStore
	matcher       *domain.Matcher
	log           *slog.Logger
	processed     string
	sent          string
}

func newFixture(t *testing.T, pacingDelay time.Duration, recipients []domain.Recipient) *fixture {
	t.Helper()
	log := testLogger()
	processed := filepath.Join(t.TempDir(), "processed")
	sentDir := filepath.Join(t.TempDir(), "sent")
	store, err := storage.NewDirStore(processed, sentDir, log)
	require.NoError(t, err)

	matcher, err := domain.NewMatcher(`^(\d+)_(?:holerite_)?(.+)\.pdf$`)
	require.NoError(t, err)

	f := &fixture{
		runRepo:       newMemRunRepo(),
		recipientRepo: &memRecipientRepo{recipients: recipients},
		gateway:       &fakeGateway{failAddresses: map[string]bool{}},
		store:         store,
		matcher:       matcher,
		log:           log,
		processed:     processed,
		sent:          sentDir,
	}
	f.service = f.buildService(t, pacingDelay)
	return f
}

// buildService constructs a coordinator over the fixture's shared state; a
// second call simulates a process restart against the same repositories.
func (f *fixture) buildService(t *testing.T, pacingDelay time.Duration) *DispatchAppService {
	t.Helper()
	service := NewDispatchAppService(
		f.runRepo,
		f.recipientRepo,
		f.store,
		f.gateway,
		f.matcher,
		NewPacingScheduler(pacingDelay, pacingDelay, f.log),
		Config{GatewayTimeout: 2 * time.Second, OrganizationName: "Acme RH", DefaultCountryCode: "55"},
		f.log,
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		service.Shutdown(ctx)
	})
	return service
}

func (f *fixture) writeDoc(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.processed, name), []byte("pdf:"+name), 0o644))
}

func (f *fixture) waitTerminal(t *testing.T, runID string) *domain.BulkRun {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := f.runRepo.GetRun(context.Background(), runID)
		require.NoError(t, err)
		if run.Status.Terminal() {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach a terminal state", runID)
	return nil
}

var testRecipients = []domain.Recipient{
	{ExternalID: "001", FullName: "Maria Souza", Phone: "11 98888-0001"},
	{ExternalID: "002", FullName: "João Lima", Phone: "11 98888-0002"},
	{ExternalID: "003", FullName: "Ana Prado", Phone: "11 98888-0003"},
	{ExternalID: "004", FullName: "Rui Costa"}, // no contact address
}

// --- Tests ---

func TestListClassifiedFiles(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	f.writeDoc(t, "001_holerite_junho_2025.pdf")
	f.writeDoc(t, "004_holerite_junho_2025.pdf")
	f.writeDoc(t, "999_holerite_junho_2025.pdf")

	classified, err := f.service.ListClassifiedFiles(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, classified, 3)

	byName := map[string]domain.ClassifiedFile{}
	for _, cf := range classified {
		byName[cf.File.Filename] = cf
	}
	assert.Equal(t, domain.ClassificationReady, byName["001_holerite_junho_2025.pdf"].Classification)
	assert.Equal(t, "Maria Souza", byName["001_holerite_junho_2025.pdf"].Recipient.FullName)
	assert.Equal(t, domain.ClassificationNoContact, byName["004_holerite_junho_2025.pdf"].Classification)
	assert.Equal(t, domain.ClassificationOrphan, byName["999_holerite_junho_2025.pdf"].Classification)
	assert.Nil(t, byName["999_holerite_junho_2025.pdf"].Recipient)

	// Same inputs, same answer.
	again, err := f.service.ListClassifiedFiles(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, classified, again)
}

func TestListClassifiedFilesPeriodFilter(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	f.writeDoc(t, "001_holerite_junho_2025.pdf")
	f.writeDoc(t, "001_holerite_julho_2025.pdf")

	classified, err := f.service.ListClassifiedFiles(context.Background(), "junho_2025")
	require.NoError(t, err)
	require.Len(t, classified, 1)
	assert.Equal(t, "001_holerite_junho_2025.pdf", classified[0].File.Filename)
}

func TestSubmitBulkRunEmptySelection(t *testing.T) {
	f := newFixture(t, 0, testRecipients)

	_, err := f.service.SubmitBulkRun(context.Background(), nil, "Olá {{name}}")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, f.runRepo.runCount())
}

func TestSubmitBulkRunRejectsNonReadyFiles(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	f.writeDoc(t, "001_holerite_junho_2025.pdf")
	f.writeDoc(t, "999_holerite_junho_2025.pdf") // orphan

	_, err := f.service.SubmitBulkRun(context.Background(),
		[]string{"001_holerite_junho_2025.pdf", "999_holerite_junho_2025.pdf"}, "Olá {{name}}")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Problems, 1)
	assert.Equal(t, "999_holerite_junho_2025.pdf", vErr.Problems[0].Filename)
	assert.Equal(t, domain.ClassificationOrphan, vErr.Problems[0].Classification)
	// No partial run is persisted.
	assert.Equal(t, 0, f.runRepo.runCount())
}

func TestSubmitBulkRunRejectsUnknownAndDuplicateFiles(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	f.writeDoc(t, "001_holerite_junho_2025.pdf")

	_, err := f.service.SubmitBulkRun(context.Background(),
		[]string{"001_holerite_junho_2025.pdf", "001_holerite_junho_2025.pdf", "absent.pdf"}, "Olá")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Problems, 2)
	assert.Equal(t, 0, f.runRepo.runCount())
}

func TestSubmitBulkRunGatewayUnavailable(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	f.writeDoc(t, "001_holerite_junho_2025.pdf")
	f.gateway.disconnected = true

	_, err := f.service.SubmitBulkRun(context.Background(), []string{"001_holerite_junho_2025.pdf"}, "Olá")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Equal(t, 0, f.runRepo.runCount())
}

func TestBulkRunFullAccounting(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	files := []string{
		"001_holerite_junho_2025.pdf",
		"002_holerite_junho_2025.pdf",
		"003_holerite_junho_2025.pdf",
	}
	for _, name := range files {
		f.writeDoc(t, name)
	}
	// The middle recipient's number is rejected by the channel.
	f.gateway.failAddresses["5511988880002"] = true

	run, err := f.service.SubmitBulkRun(context.Background(), files, "Olá {{first_name}}, holerite de {{period}}.")
	require.NoError(t, err)
	assert.Equal(t, 3, run.Total)

	final := f.waitTerminal(t, run.ID)
	assert.Equal(t, domain.RunStatusCompleted, final.Status)
	assert.Equal(t, 3, final.Cursor)
	assert.Equal(t, 2, final.SentCount)
	assert.Equal(t, 1, final.FailedCount)

	summary, err := f.service.GetRunSummary(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "002_holerite_junho_2025.pdf", summary.Failures[0].Filename)
	assert.Equal(t, domain.FailureGatewayRejected, summary.Failures[0].Reason)
	assert.Equal(t, "002", summary.Failures[0].RecipientExternalID)
	assert.Contains(t, summary.Failures[0].Detail, "not registered")

	// Only delivered documents reach the sent area.
	assert.FileExists(t, filepath.Join(f.sent, "001_holerite_junho_2025.pdf"))
	assert.NoFileExists(t, filepath.Join(f.sent, "002_holerite_junho_2025.pdf"))
	assert.FileExists(t, filepath.Join(f.processed, "002_holerite_junho_2025.pdf"))
	assert.FileExists(t, filepath.Join(f.sent, "003_holerite_junho_2025.pdf"))

	// Jobs execute in selection order.
	assert.Equal(t, []string{"001_holerite_junho_2025.pdf", "003_holerite_junho_2025.pdf"}, f.gateway.sent())
}

func TestBulkRunRendersTemplatePerRecipient(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	f.writeDoc(t, "001_holerite_junho_2025.pdf")

	run, err := f.service.SubmitBulkRun(context.Background(),
		[]string{"001_holerite_junho_2025.pdf"},
		"Olá {{first_name}}, segue o holerite de {{period}}. {{organization}}")
	require.NoError(t, err)
	f.waitTerminal(t, run.ID)

	jobs, err := f.runRepo.ListJobs(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Olá Maria, segue o holerite de junho 2025. Acme RH", jobs[0].Body)
	assert.Equal(t, "5511988880001", jobs[0].Address)
}

func TestCancelRunStopsReleasingJobs(t *testing.T) {
	// A long pacing gap leaves a wide window to cancel between jobs 1 and 2.
	f := newFixture(t, 30*time.Second, testRecipients)
	files := []string{
		"001_holerite_junho_2025.pdf",
		"002_holerite_junho_2025.pdf",
		"003_holerite_junho_2025.pdf",
	}
	for _, name := range files {
		f.writeDoc(t, name)
	}

	run, err := f.service.SubmitBulkRun(context.Background(), files, "Olá")
	require.NoError(t, err)

	// Wait for the first job to finish, then cancel during the pacing wait.
	deadline := time.Now().Add(5 * time.Second)
	for {
		progress, err := f.service.GetRunProgress(context.Background(), run.ID)
		require.NoError(t, err)
		if progress.Cursor >= 1 {
			break
		}
		require.True(t, time.Now().Before(deadline), "first job never finished")
		time.Sleep(5 * time.Millisecond)
	}
	start := time.Now()
	require.NoError(t, f.service.CancelRun(context.Background(), run.ID))

	final := f.waitTerminal(t, run.ID)
	assert.Less(t, time.Since(start), 5*time.Second, "cancellation should interrupt the pacing wait")
	assert.Equal(t, domain.RunStatusCancelled, final.Status)
	assert.Equal(t, 1, final.Cursor)
	assert.Equal(t, 1, final.SentCount)

	jobs, err := f.runRepo.ListJobs(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSent, jobs[0].Status)
	assert.Equal(t, domain.JobStatusCancelled, jobs[1].Status)
	assert.Equal(t, domain.JobStatusCancelled, jobs[2].Status)
}

func TestCancelRunAlreadyTerminal(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	f.writeDoc(t, "001_holerite_junho_2025.pdf")

	run, err := f.service.SubmitBulkRun(context.Background(), []string{"001_holerite_junho_2025.pdf"}, "Olá")
	require.NoError(t, err)
	f.waitTerminal(t, run.ID)

	err = f.service.CancelRun(context.Background(), run.ID)
	assert.ErrorIs(t, err, domain.ErrRunTerminal)
}

func TestCancelRunUnknown(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	err := f.service.CancelRun(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestSendSingleSuccess(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	f.writeDoc(t, "001_holerite_junho_2025.pdf")

	result, err := f.service.SendSingle(context.Background(),
		"001_holerite_junho_2025.pdf", "11 98888-0001", "Reenvio para {{name}}")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSent, result.Status)
	assert.FileExists(t, filepath.Join(f.sent, "001_holerite_junho_2025.pdf"))
}

func TestSendSingleFileMissing(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	f.writeDoc(t, "001_holerite_junho_2025.pdf")
	// Simulate a document already delivered and relocated.
	require.NoError(t, os.Rename(
		filepath.Join(f.processed, "001_holerite_junho_2025.pdf"),
		filepath.Join(f.sent, "001_holerite_junho_2025.pdf"),
	))

	result, err := f.service.SendSingle(context.Background(), "001_holerite_junho_2025.pdf", "11 98888-0001", "")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, result.Status)
	assert.Equal(t, domain.FailureFileMissing, result.FailureReason)
}

func TestSendSingleRejectsBadAddress(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	_, err := f.service.SendSingle(context.Background(), "001_holerite_junho_2025.pdf", "ramal 4422", "")
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestShutdownLeavesActiveRunResumable(t *testing.T) {
	// Long pacing keeps the run mid-flight after its first job.
	f := newFixture(t, 30*time.Second, testRecipients)
	files := []string{
		"001_holerite_junho_2025.pdf",
		"002_holerite_junho_2025.pdf",
		"003_holerite_junho_2025.pdf",
	}
	for _, name := range files {
		f.writeDoc(t, name)
	}

	run, err := f.service.SubmitBulkRun(context.Background(), files, "Olá")
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for {
		progress, err := f.service.GetRunProgress(context.Background(), run.ID)
		require.NoError(t, err)
		if progress.Cursor >= 1 {
			break
		}
		require.True(t, time.Now().Before(deadline), "first job never finished")
		time.Sleep(5 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.service.Shutdown(shutdownCtx)

	// A restart-style stop, not a cancellation: the run stays RUNNING with
	// its pending jobs untouched.
	stopped, err := f.runRepo.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, stopped.Status)
	assert.Equal(t, 1, stopped.Cursor)
	jobs, err := f.runRepo.ListJobs(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSent, jobs[0].Status)
	assert.Equal(t, domain.JobStatusPending, jobs[1].Status)
	assert.Equal(t, domain.JobStatusPending, jobs[2].Status)

	// A new coordinator over the same store picks the run up at the cursor.
	restarted := f.buildService(t, 0)
	require.NoError(t, restarted.ResumeInterruptedRuns(context.Background()))
	final := f.waitTerminal(t, run.ID)
	assert.Equal(t, domain.RunStatusCompleted, final.Status)
	assert.Equal(t, 3, final.Cursor)
	assert.Equal(t, 3, final.SentCount)
	// Each document went out exactly once across both processes.
	assert.Equal(t, files, f.gateway.sent())
}

func TestCancelRunAfterLoopFinished(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	now := time.Now().UTC()
	run := &domain.BulkRun{
		ID: "run-done", Status: domain.RunStatusCompleted, Template: "Olá",
		Cursor: 1, Total: 1, SentCount: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.runRepo.CreateRun(context.Background(), run, nil))

	// The loop goroutine has exited but its handle is still registered.
	done := make(chan struct{})
	close(done)
	f.service.mu.Lock()
	f.service.active[run.ID] = &runHandle{cancel: func() {}, done: done}
	f.service.mu.Unlock()

	err := f.service.CancelRun(context.Background(), run.ID)
	assert.ErrorIs(t, err, domain.ErrRunTerminal)
}

func TestResumeInterruptedRuns(t *testing.T) {
	f := newFixture(t, 0, testRecipients)
	f.writeDoc(t, "002_holerite_junho_2025.pdf")
	f.writeDoc(t, "003_holerite_junho_2025.pdf")

	// A run interrupted after its first job: cursor persisted at 1.
	now := time.Now().UTC()
	attempted := now.Add(-time.Minute)
	run := &domain.BulkRun{
		ID: "run-resume", Status: domain.RunStatusRunning, Template: "Olá",
		Cursor: 1, Total: 3, SentCount: 1, CreatedAt: now, UpdatedAt: now,
	}
	jobs := []domain.DispatchJob{
		{ID: "j0", RunID: run.ID, Seq: 0, Filename: "001_holerite_junho_2025.pdf",
			RecipientExternalID: "001", Address: "5511988880001", Body: "Olá",
			Status: domain.JobStatusSent, AttemptedAt: &attempted},
		{ID: "j1", RunID: run.ID, Seq: 1, Filename: "002_holerite_junho_2025.pdf",
			RecipientExternalID: "002", Address: "5511988880002", Body: "Olá",
			Status: domain.JobStatusPending},
		{ID: "j2", RunID: run.ID, Seq: 2, Filename: "003_holerite_junho_2025.pdf",
			RecipientExternalID: "003", Address: "5511988880003", Body: "Olá",
			Status: domain.JobStatusPending},
	}
	require.NoError(t, f.runRepo.CreateRun(context.Background(), run, jobs))

	require.NoError(t, f.service.ResumeInterruptedRuns(context.Background()))
	final := f.waitTerminal(t, run.ID)

	assert.Equal(t, domain.RunStatusCompleted, final.Status)
	assert.Equal(t, 3, final.Cursor)
	assert.Equal(t, 3, final.SentCount)
	// The already-sent job is never re-sent.
	assert.Equal(t, []string{"002_holerite_junho_2025.pdf", "003_holerite_junho_2025.pdf"}, f.gateway.sent())
}
