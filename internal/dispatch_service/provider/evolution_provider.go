package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
)

var gatewayRequestDurationHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "docdispatch",
		Name:      "gateway_request_duration_seconds",
		Help:      "Duration of HTTP requests to the messaging gateway.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"provider_name", "endpoint"},
)

// EvolutionProvider talks to an Evolution-API-shaped WhatsApp gateway. The
// gateway hosts a named instance; media is submitted base64-encoded.
type EvolutionProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	serverURL  string
	apiKey     string
	instance   string
	limiter    *rate.Limiter
}

// NewEvolutionProvider builds the adapter. ratePerSec caps outbound calls as
// a floor against provider-side throttling; the pacing scheduler, not this
// limiter, is what spaces bulk sends.
func NewEvolutionProvider(logger *slog.Logger, serverURL, apiKey, instance string, ratePerSec int, httpClient *http.Client) *EvolutionProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &EvolutionProvider{
		logger:     logger.With("provider", "evolution"),
		httpClient: httpClient,
		serverURL:  serverURL,
		apiKey:     apiKey,
		instance:   instance,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

type evolutionMediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	MimeType  string `json:"mimetype"`
	Caption   string `json:"caption"`
	Media     string `json:"media"`
	FileName  string `json:"fileName"`
	Delay     int    `json:"delay"`
}

type evolutionSendResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

type evolutionErrorResponse struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type evolutionConnectionState struct {
	Instance struct {
		State string `json:"state"`
	} `json:"instance"`
}

func (p *EvolutionProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	timer := prometheus.NewTimer(gatewayRequestDurationHist.WithLabelValues(p.GetName(), "sendMedia"))
	defer timer.ObserveDuration()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	mimeType := details.MimeType
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	reqBody := evolutionMediaRequest{
		Number:    details.Recipient,
		MediaType: "document",
		MimeType:  mimeType,
		Caption:   details.Caption,
		Media:     base64.StdEncoding.EncodeToString(details.Attachment),
		FileName:  details.AttachmentName,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendMedia/%s", p.serverURL, p.instance)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", p.apiKey)

	p.logger.DebugContext(ctx, "sending media to gateway",
		"job_id", details.JobID, "recipient", details.Recipient,
		"attachment", details.AttachmentName, "attachment_bytes", len(details.Attachment))

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil {
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: fmt.Sprintf("FAILED_READ_%d", httpResp.StatusCode),
			ErrorMessage:   fmt.Sprintf("gateway responded %d but body could not be read: %v", httpResp.StatusCode, readErr),
		}, nil
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		var sendResp evolutionSendResponse
		if err := json.Unmarshal(respBytes, &sendResp); err != nil {
			// Accepted by the gateway; only the message ID is lost.
			p.logger.WarnContext(ctx, "gateway accepted send but response body was unparseable",
				"job_id", details.JobID, "status_code", httpResp.StatusCode)
			return &SendResponseDetails{
				IsSuccess:      true,
				ProviderStatus: fmt.Sprintf("SENT_%d_UNPARSED", httpResp.StatusCode),
			}, nil
		}
		p.logger.InfoContext(ctx, "gateway accepted media message",
			"job_id", details.JobID, "recipient", details.Recipient, "provider_message_id", sendResp.Key.ID)
		return &SendResponseDetails{
			ProviderMessageID: sendResp.Key.ID,
			IsSuccess:         true,
			ProviderStatus:    fmt.Sprintf("SENT_%d", httpResp.StatusCode),
		}, nil
	}

	errMsg := fmt.Sprintf("gateway error: status %d", httpResp.StatusCode)
	var errResp evolutionErrorResponse
	if err := json.Unmarshal(respBytes, &errResp); err == nil && errResp.Message != "" {
		errMsg = fmt.Sprintf("gateway error: status %d, message: %s", httpResp.StatusCode, errResp.Message)
	} else if len(respBytes) > 0 && len(respBytes) < 200 {
		errMsg = fmt.Sprintf("gateway error: status %d, body: %s", httpResp.StatusCode, string(respBytes))
	}
	p.logger.WarnContext(ctx, "gateway rejected media message",
		"job_id", details.JobID, "recipient", details.Recipient, "status_code", httpResp.StatusCode, "error", errMsg)
	return &SendResponseDetails{
		IsSuccess:      false,
		ProviderStatus: fmt.Sprintf("FAILED_%d", httpResp.StatusCode),
		ErrorMessage:   errMsg,
	}, nil
}

// CheckConnection queries the instance connection state; anything other than
// an "open" (or "connected") instance means sends would be rejected.
func (p *EvolutionProvider) CheckConnection(ctx context.Context) error {
	timer := prometheus.NewTimer(gatewayRequestDurationHist.WithLabelValues(p.GetName(), "connectionState"))
	defer timer.ObserveDuration()

	url := fmt.Sprintf("%s/instance/connectionState/%s", p.serverURL, p.instance)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create connection state request: %w", err)
	}
	httpReq.Header.Set("apikey", p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: connection state returned %d", domain.ErrGatewayUnavailable, httpResp.StatusCode)
	}
	var state evolutionConnectionState
	if err := json.NewDecoder(httpResp.Body).Decode(&state); err != nil {
		return fmt.Errorf("%w: unparseable connection state: %v", domain.ErrGatewayUnavailable, err)
	}
	if state.Instance.State != "open" && state.Instance.State != "connected" {
		return fmt.Errorf("%w: instance %q is %q", domain.ErrGatewayUnavailable, p.instance, state.Instance.State)
	}
	return nil
}

func (p *EvolutionProvider) GetName() string {
	return "evolution"
}
