package domain

import "time"

// Recipient is a row from the employee directory. The directory itself is
// maintained by the HR system; the dispatch engine only reads it.
type Recipient struct {
	ExternalID string
	FullName   string
	Phone      string
	Department string
}

// DocumentFile is a blob in one of the document areas. The filename encodes
// the recipient's external identifier and a period tag.
type DocumentFile struct {
	Filename    string
	SizeBytes   int64
	ProcessedAt time.Time
	PeriodTag   string
}

// Classification is the sendability of a document, derived per listing from
// the current recipient set. Never cached past a single read.
type Classification string

const (
	ClassificationReady     Classification = "READY"
	ClassificationNoContact Classification = "NO_CONTACT"
	ClassificationOrphan    Classification = "ORPHAN"
)

// ClassifiedFile pairs a document with its classification and, when matched,
// the resolved recipient.
type ClassifiedFile struct {
	File           DocumentFile
	Classification Classification
	Recipient      *Recipient
}

type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed out of s.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusCancelled
}

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusSent      JobStatus = "SENT"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// FailureReason classifies a terminal job failure for operator reporting.
type FailureReason string

const (
	FailureRenderError     FailureReason = "render_error"
	FailureFileMissing     FailureReason = "file_missing"
	FailureGatewayRejected FailureReason = "gateway_rejected"
	FailureGatewayTimeout  FailureReason = "gateway_timeout"
	// FailureRelocateError means the gateway accepted the message but the
	// document could not be moved to the sent area. The recipient did receive
	// the document; resending would double-deliver. Needs manual reconciliation.
	FailureRelocateError FailureReason = "relocate_error"
	FailureInternalError FailureReason = "internal_error"
)

// DispatchJob is one planned send within a bulk run. Immutable once created;
// only its status fields change, exactly once, to a terminal state.
type DispatchJob struct {
	ID                  string
	RunID               string
	Seq                 int
	Filename            string
	PeriodTag           string
	RecipientExternalID string
	RecipientName       string
	Address             string
	Body                string
	Status              JobStatus
	FailureReason       FailureReason
	ErrorDetail         string
	ProviderMessageID   string
	AttemptedAt         *time.Time
}

// BulkRun is an ordered sequence of dispatch jobs with a monotonic cursor.
// Invariant: SentCount + FailedCount == Cursor (cancelled jobs excluded),
// and the cursor never decreases.
type BulkRun struct {
	ID                string
	Status            RunStatus
	Template          string
	Cursor            int
	Total             int
	SentCount         int
	FailedCount       int
	EstimatedDuration time.Duration
	CreatedAt         time.Time
	UpdatedAt         time.Time
	StartedAt         *time.Time
	FinishedAt        *time.Time
}

// RunProgress is the point-in-time snapshot exposed to callers, safe to read
// while the run executes.
type RunProgress struct {
	RunID       string
	Status      RunStatus
	Cursor      int
	Total       int
	SentCount   int
	FailedCount int
}

// JobFailure is one entry of a completed run's failure accounting.
type JobFailure struct {
	Filename            string
	RecipientExternalID string
	Reason              FailureReason
	Detail              string
}

// RunSummary is the final accounting of a run. Partial success is a normal
// outcome, not an error state of the run itself.
type RunSummary struct {
	RunID       string
	Status      RunStatus
	SentCount   int
	FailedCount int
	Failures    []JobFailure
}

// JobResult is the terminal outcome of executing a single job.
type JobResult struct {
	Status            JobStatus
	FailureReason     FailureReason
	ErrorDetail       string
	ProviderMessageID string
}
