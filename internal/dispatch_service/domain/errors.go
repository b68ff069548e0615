package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRecipientNotFound indicates no recipient carries the requested external ID.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrFileNotFound indicates the document is absent from the requested area.
	ErrFileNotFound = errors.New("document file not found")
	// ErrRunNotFound indicates an unknown run ID.
	ErrRunNotFound = errors.New("bulk run not found")
	// ErrRunTerminal indicates an operation on a run already in COMPLETED or CANCELLED.
	ErrRunTerminal = errors.New("bulk run already terminal")
	// ErrGatewayUnavailable indicates the messaging gateway instance is not connected.
	ErrGatewayUnavailable = errors.New("messaging gateway unavailable")
)

// FileProblem names one offending file of a rejected submission.
type FileProblem struct {
	Filename       string
	Classification Classification
	Reason         string
}

// ValidationError rejects a bulk run submission synchronously; no run is
// created when it is returned.
type ValidationError struct {
	Message  string
	Problems []FileProblem
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		names = append(names, p.Filename)
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(names, ", "))
}
