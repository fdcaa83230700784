package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/offertesting/outreach_services/internal/digest_service/domain"
)

// ResendNotifier delivers digests through the Resend email API.
type ResendNotifier struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       string
}

func NewResendNotifier(logger *slog.Logger, baseURL, apiKey, from string, httpClient *http.Client) *ResendNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ResendNotifier{
		logger:     logger.With("notifier", "resend"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		from:       from,
	}
}

type resendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

type resendEmailResponse struct {
	ID string `json:"id"`
}

type resendErrorResponse struct {
	Name       string `json:"name"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// Send posts one email and returns the Resend message id.
func (n *ResendNotifier) Send(ctx context.Context, msg domain.Notification) (string, error) {
	if n.apiKey == "" {
		return "", fmt.Errorf("resend api key not configured")
	}
	payload, err := json.Marshal(resendEmailRequest{From: n.from, To: msg.To, Subject: msg.Subject, Text: msg.Body})
	if err != nil {
		return "", fmt.Errorf("failed to marshal resend request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create resend request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+n.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := n.httpClient.Do(httpReq)
	if err != nil {
		n.logger.ErrorContext(ctx, "Resend request failed", "error", err)
		return "", fmt.Errorf("resend request: %w", err)
	}
	defer httpResp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1<<16))
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		detail := http.StatusText(httpResp.StatusCode)
		var apiErr resendErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			detail = apiErr.Message
		}
		n.logger.WarnContext(ctx, "Resend rejected the digest", "status_code", httpResp.StatusCode, "message", detail)
		return "", fmt.Errorf("resend returned status %d: %s", httpResp.StatusCode, detail)
	}

	var out resendEmailResponse
	if err := json.Unmarshal(body, &out); err != nil {
		n.logger.WarnContext(ctx, "Resend accepted the digest but the response was not parseable", "error", err)
	}
	return out.ID, nil
}
