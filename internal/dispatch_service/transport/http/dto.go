package http

import (
	"time"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
)

// RecipientDTO is the recipient view embedded in file listings.
type RecipientDTO struct {
	ExternalID string `json:"external_id"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone,omitempty"`
	Department string `json:"department,omitempty"`
}

// ClassifiedFileDTO is one entry of GET /files.
type ClassifiedFileDTO struct {
	Filename       string        `json:"filename"`
	SizeBytes      int64         `json:"size_bytes"`
	ProcessedAt    time.Time     `json:"processed_at"`
	PeriodTag      string        `json:"period_tag,omitempty"`
	Classification string        `json:"classification"`
	Recipient      *RecipientDTO `json:"recipient,omitempty"`
}

// SubmitRunRequest is the body of POST /runs.
type SubmitRunRequest struct {
	Filenames []string `json:"filenames"`
	Template  string   `json:"template"`
}

// SubmitRunResponse acknowledges an accepted submission.
type SubmitRunResponse struct {
	RunID             string `json:"run_id"`
	Total             int    `json:"total"`
	EstimatedDuration string `json:"estimated_duration"`
}

// RunProgressDTO is the snapshot returned by GET /runs/{runID}.
type RunProgressDTO struct {
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	Cursor      int    `json:"cursor"`
	Total       int    `json:"total"`
	SentCount   int    `json:"sent_count"`
	FailedCount int    `json:"failed_count"`
}

// JobFailureDTO is one failure entry of a run summary.
type JobFailureDTO struct {
	Filename            string `json:"filename"`
	RecipientExternalID string `json:"recipient_id"`
	Reason              string `json:"reason"`
	Detail              string `json:"detail,omitempty"`
}

// RunSummaryDTO is the full accounting returned by GET /runs/{runID}/summary.
type RunSummaryDTO struct {
	RunID       string          `json:"run_id"`
	Status      string          `json:"status"`
	SentCount   int             `json:"sent_count"`
	FailedCount int             `json:"failed_count"`
	Failures    []JobFailureDTO `json:"failures"`
}

// RunListItemDTO is one entry of GET /runs.
type RunListItemDTO struct {
	RunID       string     `json:"run_id"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	SentCount   int        `json:"sent_count"`
	FailedCount int        `json:"failed_count"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// SendSingleRequest is the body of POST /messages/send.
type SendSingleRequest struct {
	Filename string `json:"filename"`
	Address  string `json:"address"`
	Message  string `json:"message,omitempty"`
}

// SendSingleResponse reports the terminal outcome of a one-off send.
type SendSingleResponse struct {
	Status            string `json:"status"`
	FailureReason     string `json:"failure_reason,omitempty"`
	ErrorDetail       string `json:"error_detail,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// FileProblemDTO names one offending file of a rejected submission.
type FileProblemDTO struct {
	Filename       string `json:"filename"`
	Classification string `json:"classification,omitempty"`
	Reason         string `json:"reason"`
}

// GenericErrorResponse for API errors.
type GenericErrorResponse struct {
	Error    string           `json:"error"`
	Details  string           `json:"details,omitempty"`
	Problems []FileProblemDTO `json:"problems,omitempty"`
}

func toFileProblemDTOs(problems []domain.FileProblem) []FileProblemDTO {
	out := make([]FileProblemDTO, 0, len(problems))
	for _, p := range problems {
		out = append(out, FileProblemDTO{
			Filename:       p.Filename,
			Classification: string(p.Classification),
			Reason:         p.Reason,
		})
	}
	return out
}
