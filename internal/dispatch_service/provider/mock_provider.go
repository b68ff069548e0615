package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// MockProvider is a test implementation of MessageProvider.
type MockProvider struct {
	logger         *slog.Logger
	FailSend       bool          // simulate a gateway rejection
	Disconnected   bool          // simulate a disconnected instance
	SimulatedDelay time.Duration // simulate network latency
}

func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger.With("provider", "mock")}
}

func (p *MockProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	if p.SimulatedDelay > 0 {
		select {
		case <-time.After(p.SimulatedDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.FailSend {
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: "FAILED_MOCK",
			ErrorMessage:   "mock provider simulated send failure",
		}, nil
	}
	msgID := "mock-" + uuid.NewString()
	p.logger.InfoContext(ctx, "mock send accepted", "job_id", details.JobID, "recipient", details.Recipient, "provider_message_id", msgID)
	return &SendResponseDetails{
		ProviderMessageID: msgID,
		IsSuccess:         true,
		ProviderStatus:    "SENT_MOCK",
	}, nil
}

func (p *MockProvider) CheckConnection(ctx context.Context) error {
	if p.Disconnected {
		return errors.New("mock provider simulated disconnected instance")
	}
	return nil
}

func (p *MockProvider) GetName() string {
	return "mock"
}
