package provider

import "context"

// SendRequestDetails holds everything a gateway adapter needs to deliver one
// document message.
type SendRequestDetails struct {
	JobID          string // our dispatch job ID, for log correlation
	Recipient      string // normalized international number, digits only
	Caption        string // rendered message text accompanying the attachment
	AttachmentName string
	Attachment     []byte
	MimeType       string
}

// SendResponseDetails is the outcome of a send attempt.
type SendResponseDetails struct {
	ProviderMessageID string
	IsSuccess         bool
	ProviderStatus    string
	ErrorMessage      string
}

// MessageProvider is the contract for a messaging gateway adapter.
type MessageProvider interface {
	Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error)
	// CheckConnection verifies the gateway instance is connected and able to
	// deliver. Called as a preflight before a bulk run starts.
	CheckConnection(ctx context.Context) error
	GetName() string
}
