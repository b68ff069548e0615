package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/app"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
)

// DispatchHandler exposes the dispatch engine to the administrative UI.
type DispatchHandler struct {
	service *app.DispatchAppService
	logger  *slog.Logger
}

func NewDispatchHandler(service *app.DispatchAppService, logger *slog.Logger) *DispatchHandler {
	return &DispatchHandler{
		service: service,
		logger:  logger.With("handler", "dispatch"),
	}
}

func (h *DispatchHandler) RegisterRoutes(r chi.Router) {
	r.Get("/files", h.handleListFiles)
	r.Delete("/files/{filename}", h.handleDeleteFile)
	r.Post("/runs", h.handleSubmitRun)
	r.Get("/runs", h.handleListRuns)
	r.Get("/runs/{runID}", h.handleRunProgress)
	r.Get("/runs/{runID}/summary", h.handleRunSummary)
	r.Post("/runs/{runID}/cancel", h.handleCancelRun)
	r.Post("/messages/send", h.handleSendSingle)
}

func (h *DispatchHandler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	period := r.URL.Query().Get("period")
	classified, err := h.service.ListClassifiedFiles(ctx, period)
	if err != nil {
		logger.ErrorContext(ctx, "failed to classify files", "error", err)
		h.respondError(w, logger, err)
		return
	}

	out := make([]ClassifiedFileDTO, 0, len(classified))
	for _, cf := range classified {
		dto := ClassifiedFileDTO{
			Filename:       cf.File.Filename,
			SizeBytes:      cf.File.SizeBytes,
			ProcessedAt:    cf.File.ProcessedAt,
			PeriodTag:      cf.File.PeriodTag,
			Classification: string(cf.Classification),
		}
		if cf.Recipient != nil {
			dto.Recipient = &RecipientDTO{
				ExternalID: cf.Recipient.ExternalID,
				FullName:   cf.Recipient.FullName,
				Phone:      cf.Recipient.Phone,
				Department: cf.Recipient.Department,
			}
		}
		out = append(out, dto)
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *DispatchHandler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	filename := chi.URLParam(r, "filename")
	if err := h.service.DeleteFile(ctx, filename); err != nil {
		logger.WarnContext(ctx, "failed to delete file", "filename", filename, "error", err)
		h.respondError(w, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DispatchHandler) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req SubmitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, GenericErrorResponse{Error: "invalid request payload", Details: err.Error()})
		return
	}

	run, err := h.service.SubmitBulkRun(ctx, req.Filenames, req.Template)
	if err != nil {
		h.respondError(w, logger, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, SubmitRunResponse{
		RunID:             run.ID,
		Total:             run.Total,
		EstimatedDuration: run.EstimatedDuration.String(),
	})
}

func (h *DispatchHandler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	runs, err := h.service.ListRuns(ctx, 50)
	if err != nil {
		h.respondError(w, logger, err)
		return
	}
	out := make([]RunListItemDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunListItemDTO{
			RunID:       run.ID,
			Status:      string(run.Status),
			Total:       run.Total,
			SentCount:   run.SentCount,
			FailedCount: run.FailedCount,
			CreatedAt:   run.CreatedAt,
			FinishedAt:  run.FinishedAt,
		})
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *DispatchHandler) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	progress, err := h.service.GetRunProgress(ctx, chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, logger, err)
		return
	}
	h.respondJSON(w, http.StatusOK, RunProgressDTO{
		RunID:       progress.RunID,
		Status:      string(progress.Status),
		Cursor:      progress.Cursor,
		Total:       progress.Total,
		SentCount:   progress.SentCount,
		FailedCount: progress.FailedCount,
	})
}

func (h *DispatchHandler) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	summary, err := h.service.GetRunSummary(ctx, chi.URLParam(r, "runID"))
	if err != nil {
		h.respondError(w, logger, err)
		return
	}
	out := RunSummaryDTO{
		RunID:       summary.RunID,
		Status:      string(summary.Status),
		SentCount:   summary.SentCount,
		FailedCount: summary.FailedCount,
		Failures:    make([]JobFailureDTO, 0, len(summary.Failures)),
	}
	for _, f := range summary.Failures {
		out.Failures = append(out.Failures, JobFailureDTO{
			Filename:            f.Filename,
			RecipientExternalID: f.RecipientExternalID,
			Reason:              string(f.Reason),
			Detail:              f.Detail,
		})
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *DispatchHandler) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	runID := chi.URLParam(r, "runID")
	if err := h.service.CancelRun(ctx, runID); err != nil {
		h.respondError(w, logger, err)
		return
	}
	logger.InfoContext(ctx, "run cancellation accepted", "run_id", runID)
	w.WriteHeader(http.StatusAccepted)
}

func (h *DispatchHandler) handleSendSingle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req SendSingleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, GenericErrorResponse{Error: "invalid request payload", Details: err.Error()})
		return
	}
	if req.Filename == "" || req.Address == "" {
		h.respondJSON(w, http.StatusBadRequest, GenericErrorResponse{Error: "filename and address are required"})
		return
	}

	result, err := h.service.SendSingle(ctx, req.Filename, req.Address, req.Message)
	if err != nil {
		h.respondError(w, logger, err)
		return
	}
	h.respondJSON(w, http.StatusOK, SendSingleResponse{
		Status:            string(result.Status),
		FailureReason:     string(result.FailureReason),
		ErrorDetail:       result.ErrorDetail,
		ProviderMessageID: result.ProviderMessageID,
	})
}

func (h *DispatchHandler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.logger.Error("failed to encode response", "error", err)
		}
	}
}

func (h *DispatchHandler) respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.respondJSON(w, http.StatusBadRequest, GenericErrorResponse{
			Error:    validationErr.Message,
			Problems: toFileProblemDTOs(validationErr.Problems),
		})
	case errors.Is(err, domain.ErrRunNotFound), errors.Is(err, domain.ErrFileNotFound), errors.Is(err, domain.ErrRecipientNotFound):
		h.respondJSON(w, http.StatusNotFound, GenericErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrRunTerminal):
		h.respondJSON(w, http.StatusConflict, GenericErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrGatewayUnavailable):
		h.respondJSON(w, http.StatusServiceUnavailable, GenericErrorResponse{Error: err.Error()})
	default:
		logger.Error("internal error", "error", err)
		h.respondJSON(w, http.StatusInternalServerError, GenericErrorResponse{Error: "internal server error"})
	}
}
