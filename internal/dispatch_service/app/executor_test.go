package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/provider"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/storage"
)

func newExecutorFixture(t *testing.T, gateway provider.MessageProvider, timeout time.Duration) (*SendExecutor, string, string) {
	t.Helper()
	log := testLogger()
	processed := filepath.Join(t.TempDir(), "processed")
	sent := filepath.Join(t.TempDir(), "sent")
	store, err := storage.NewDirStore(processed, sent, log)
	require.NoError(t, err)
	return NewSendExecutor(store, gateway, timeout, log), processed, sent
}

func pendingJob(filename string) domain.DispatchJob {
	return domain.DispatchJob{
		ID:       "job-1",
		Filename: filename,
		Address:  "5511988887777",
		Body:     "Olá, segue o documento.",
		Status:   domain.JobStatusPending,
	}
}

func TestExecutorSuccessMovesDocument(t *testing.T) {
	exec, processed, sent := newExecutorFixture(t, provider.NewMockProvider(testLogger()), time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(processed, "1_x.pdf"), []byte("pdf"), 0o644))

	result := exec.Execute(context.Background(), pendingJob("1_x.pdf"))
	assert.Equal(t, domain.JobStatusSent, result.Status)
	assert.NotEmpty(t, result.ProviderMessageID)
	assert.NoFileExists(t, filepath.Join(processed, "1_x.pdf"))
	assert.FileExists(t, filepath.Join(sent, "1_x.pdf"))
}

func TestExecutorEmptyBody(t *testing.T) {
	exec, _, _ := newExecutorFixture(t, provider.NewMockProvider(testLogger()), time.Second)

	job := pendingJob("1_x.pdf")
	job.Body = "   "
	result := exec.Execute(context.Background(), job)
	assert.Equal(t, domain.JobStatusFailed, result.Status)
	assert.Equal(t, domain.FailureRenderError, result.FailureReason)
}

func TestExecutorFileMissing(t *testing.T) {
	exec, _, _ := newExecutorFixture(t, provider.NewMockProvider(testLogger()), time.Second)

	result := exec.Execute(context.Background(), pendingJob("absent.pdf"))
	assert.Equal(t, domain.JobStatusFailed, result.Status)
	assert.Equal(t, domain.FailureFileMissing, result.FailureReason)
}

func TestExecutorGatewayRejection(t *testing.T) {
	mock := provider.NewMockProvider(testLogger())
	mock.FailSend = true
	exec, processed, _ := newExecutorFixture(t, mock, time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(processed, "1_x.pdf"), []byte("pdf"), 0o644))

	result := exec.Execute(context.Background(), pendingJob("1_x.pdf"))
	assert.Equal(t, domain.JobStatusFailed, result.Status)
	assert.Equal(t, domain.FailureGatewayRejected, result.FailureReason)
	// A rejected document stays in the processed area for a later retry.
	assert.FileExists(t, filepath.Join(processed, "1_x.pdf"))
}

func TestExecutorGatewayTimeout(t *testing.T) {
	mock := provider.NewMockProvider(testLogger())
	mock.SimulatedDelay = 500 * time.Millisecond
	exec, processed, _ := newExecutorFixture(t, mock, 20*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(processed, "1_x.pdf"), []byte("pdf"), 0o644))

	result := exec.Execute(context.Background(), pendingJob("1_x.pdf"))
	assert.Equal(t, domain.JobStatusFailed, result.Status)
	assert.Equal(t, domain.FailureGatewayTimeout, result.FailureReason)
	assert.FileExists(t, filepath.Join(processed, "1_x.pdf"))
}

// deadlineBoundGateway waits out the call context and then reports the
// deadline the way rate.Limiter.Wait does: as a plain error that does not
// wrap context.DeadlineExceeded.
type deadlineBoundGateway struct{}

func (g *deadlineBoundGateway) Send(ctx context.Context, details provider.SendRequestDetails) (*provider.SendResponseDetails, error) {
	<-ctx.Done()
	return nil, errors.New("rate: Wait(n=1) would exceed context deadline")
}

func (g *deadlineBoundGateway) CheckConnection(ctx context.Context) error { return nil }

func (g *deadlineBoundGateway) GetName() string { return "deadline-bound" }

func TestExecutorGatewayTimeoutUnwrappedDeadlineError(t *testing.T) {
	exec, processed, _ := newExecutorFixture(t, &deadlineBoundGateway{}, 20*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(processed, "1_x.pdf"), []byte("pdf"), 0o644))

	result := exec.Execute(context.Background(), pendingJob("1_x.pdf"))
	assert.Equal(t, domain.JobStatusFailed, result.Status)
	assert.Equal(t, domain.FailureGatewayTimeout, result.FailureReason)
}

func TestExecutorRelocateFailureKeepsMessageID(t *testing.T) {
	exec, processed, sent := newExecutorFixture(t, provider.NewMockProvider(testLogger()), time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(processed, "1_x.pdf"), []byte("pdf"), 0o644))
	// A stale copy in the sent area makes the post-send move refuse to overwrite.
	require.NoError(t, os.WriteFile(filepath.Join(sent, "1_x.pdf"), []byte("old"), 0o644))

	result := exec.Execute(context.Background(), pendingJob("1_x.pdf"))
	assert.Equal(t, domain.JobStatusFailed, result.Status)
	assert.Equal(t, domain.FailureRelocateError, result.FailureReason)
	// The send did happen; the message ID must survive for reconciliation.
	assert.NotEmpty(t, result.ProviderMessageID)
}
