package app

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/provider"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/storage"
)

// SendExecutor performs exactly one dispatch job: fetch the document, call
// the gateway, and on acceptance relocate the document to the sent area.
// Every outcome maps to a terminal JobResult; Execute never retries.
type SendExecutor struct {
	files          storage.FileStore
	gateway        provider.MessageProvider
	gatewayTimeout time.Duration
	logger         *slog.Logger
}

func NewSendExecutor(files storage.FileStore, gateway provider.MessageProvider, gatewayTimeout time.Duration, logger *slog.Logger) *SendExecutor {
	return &SendExecutor{
		files:          files,
		gateway:        gateway,
		gatewayTimeout: gatewayTimeout,
		logger:         logger.With("component", "executor"),
	}
}

func (e *SendExecutor) Execute(ctx context.Context, job domain.DispatchJob) domain.JobResult {
	logger := e.logger.With("job_id", job.ID, "filename", job.Filename, "recipient_id", job.RecipientExternalID)

	// The body was rendered and validated at submission; an empty one here
	// means the record was corrupted out-of-band.
	if strings.TrimSpace(job.Body) == "" {
		return failed(domain.FailureRenderError, "rendered message body is empty")
	}

	attachment, err := e.files.Fetch(ctx, storage.AreaProcessed, job.Filename)
	if err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			logger.WarnContext(ctx, "document vanished from processed area before send")
			return failed(domain.FailureFileMissing, "document no longer present in processed area")
		}
		logger.ErrorContext(ctx, "failed to fetch document", "error", err)
		return failed(domain.FailureInternalError, "document fetch failed: "+err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
	defer cancel()
	resp, err := e.gateway.Send(callCtx, provider.SendRequestDetails{
		JobID:          job.ID,
		Recipient:      job.Address,
		Caption:        job.Body,
		AttachmentName: job.Filename,
		Attachment:     attachment,
		MimeType:       mimeTypeFor(job.Filename),
	})
	if err != nil {
		// Some paths (the provider's rate limiter among them) report the
		// deadline without wrapping context.DeadlineExceeded; the expired
		// call context is the authoritative signal.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			logger.WarnContext(ctx, "gateway call timed out", "timeout", e.gatewayTimeout.String())
			return failed(domain.FailureGatewayTimeout, "gateway call exceeded "+e.gatewayTimeout.String())
		}
		logger.WarnContext(ctx, "gateway call failed", "error", err)
		return failed(domain.FailureGatewayRejected, err.Error())
	}
	if !resp.IsSuccess {
		logger.WarnContext(ctx, "gateway rejected message", "provider_status", resp.ProviderStatus, "detail", resp.ErrorMessage)
		return failed(domain.FailureGatewayRejected, resp.ErrorMessage)
	}

	if err := e.files.Move(ctx, job.Filename, storage.AreaProcessed, storage.AreaSent); err != nil {
		// The recipient already received the document; this failure must not
		// be retried as a send, only reconciled as a file move.
		logger.ErrorContext(ctx, "message delivered but relocation to sent area failed",
			"provider_message_id", resp.ProviderMessageID, "error", err)
		return domain.JobResult{
			Status:            domain.JobStatusFailed,
			FailureReason:     domain.FailureRelocateError,
			ErrorDetail:       err.Error(),
			ProviderMessageID: resp.ProviderMessageID,
		}
	}

	logger.InfoContext(ctx, "document dispatched", "provider_message_id", resp.ProviderMessageID)
	return domain.JobResult{
		Status:            domain.JobStatusSent,
		ProviderMessageID: resp.ProviderMessageID,
	}
}

func failed(reason domain.FailureReason, detail string) domain.JobResult {
	return domain.JobResult{
		Status:        domain.JobStatusFailed,
		FailureReason: reason,
		ErrorDetail:   detail,
	}
}

func mimeTypeFor(filename string) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "application/pdf"
}
