package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// UnipileProvider speaks the Unipile REST API for LinkedIn and email accounts.
type UnipileProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewUnipileProvider(logger *slog.Logger, baseURL, apiKey string, httpClient *http.Client) *UnipileProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &UnipileProvider{
		logger:     logger.With("provider", "unipile"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

func (p *UnipileProvider) GetName() string {
	return "unipile"
}

type unipileChatRequest struct {
	AccountID    string   `json:"account_id"`
	AttendeesIDs []string `json:"attendees_ids"`
	Text         string   `json:"text"`
}

type unipileInviteRequest struct {
	AccountID  string `json:"account_id"`
	ProviderID string `json:"provider_id"`
	Message    string `json:"message,omitempty"`
}

type unipileEmailRecipient struct {
	Identifier string `json:"identifier"`
}

type unipileEmailRequest struct {
	AccountID string                  `json:"account_id"`
	To        []unipileEmailRecipient `json:"to"`
	Subject   string                  `json:"subject"`
	Body      string                  `json:"body"`
}

// unipileSendResponse covers the id fields returned by chats, invitations and emails.
type unipileSendResponse struct {
	Object         string `json:"object"`
	ID             string `json:"id"`
	MessageID      string `json:"message_id"`
	ChatID         string `json:"chat_id"`
	ConversationID string `json:"conversation_id"`
	InvitationID   string `json:"invitation_id"`
	TrackingID     string `json:"tracking_id"`
	ProviderID     string `json:"provider_id"`
}

type unipileUserResponse struct {
	ProviderID      string `json:"provider_id"`
	NetworkDistance string `json:"network_distance"`
	IsRelationship  bool   `json:"is_relationship"`
}

type unipileErrorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Status int    `json:"status"`
}

func (p *UnipileProvider) SendMessage(ctx context.Context, req MessageRequest) (*SendResponse, error) {
	body := unipileChatRequest{AccountID: req.AccountID, AttendeesIDs: []string{req.AttendeeID}, Text: req.Text}
	var out unipileSendResponse
	if err := p.do(ctx, http.MethodPost, "/api/v1/chats", body, &out); err != nil {
		return nil, err
	}
	resp := &SendResponse{MessageID: firstNonEmpty(out.MessageID, out.ID), ChatID: firstNonEmpty(out.ChatID, out.ConversationID)}
	p.logger.InfoContext(ctx, "Direct message accepted", "message_id", resp.MessageID, "chat_id", resp.ChatID)
	return resp, nil
}

func (p *UnipileProvider) SendInvitation(ctx context.Context, req InvitationRequest) (*SendResponse, error) {
	body := unipileInviteRequest{AccountID: req.AccountID, ProviderID: req.ProviderID, Message: req.Message}
	var out unipileSendResponse
	if err := p.do(ctx, http.MethodPost, "/api/v1/users/invite", body, &out); err != nil {
		return nil, err
	}
	resp := &SendResponse{MessageID: firstNonEmpty(out.InvitationID, out.ID)}
	p.logger.InfoContext(ctx, "Connection request accepted", "invitation_id", resp.MessageID)
	return resp, nil
}

func (p *UnipileProvider) SendEmail(ctx context.Context, req EmailRequest) (*SendResponse, error) {
	body := unipileEmailRequest{
		AccountID: req.AccountID,
		To:        []unipileEmailRecipient{{Identifier: req.To}},
		Subject:   req.Subject,
		Body:      req.Body,
	}
	var out unipileSendResponse
	if err := p.do(ctx, http.MethodPost, "/api/v1/emails", body, &out); err != nil {
		return nil, err
	}
	resp := &SendResponse{MessageID: firstNonEmpty(out.TrackingID, out.ID, out.ProviderID)}
	p.logger.InfoContext(ctx, "Email accepted", "tracking_id", resp.MessageID)
	return resp, nil
}

func (p *UnipileProvider) GetRelation(ctx context.Context, accountID, providerID string) (*Relation, error) {
	path := "/api/v1/users/" + url.PathEscape(providerID) + "?account_id=" + url.QueryEscape(accountID)
	var out unipileUserResponse
	if err := p.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	rel := &Relation{Connected: out.IsRelationship}
	switch strings.ToUpper(out.NetworkDistance) {
	case "FIRST_DEGREE", "DISTANCE_1":
		rel.Degree = 1
		rel.Connected = true
	case "SECOND_DEGREE", "DISTANCE_2":
		rel.Degree = 2
	case "THIRD_DEGREE", "DISTANCE_3":
		rel.Degree = 3
	}
	return rel, nil
}

func (p *UnipileProvider) CheckAccount(ctx context.Context, accountID string) error {
	return p.do(ctx, http.MethodGet, "/api/v1/accounts/"+url.PathEscape(accountID), nil, nil)
}

// do sends one request and decodes a 2xx body into out. Non-2xx responses become *Error.
func (p *UnipileProvider) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal unipile request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create unipile request: %w", err)
	}
	httpReq.Header.Set("X-API-KEY", p.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := p.httpClient.Do(httpReq)
	providerRequestDuration.WithLabelValues(p.GetName(), method).Observe(time.Since(start).Seconds())
	if err != nil {
		p.logger.ErrorContext(ctx, "Unipile request failed", "error", err, "path", path)
		return &Error{Kind: KindTransport, Message: err.Error()}
	}
	defer httpResp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := http.StatusText(httpResp.StatusCode)
		var apiErr unipileErrorResponse
		if readErr == nil && json.Unmarshal(respBody, &apiErr) == nil && (apiErr.Title != "" || apiErr.Detail != "") {
			msg = strings.TrimSpace(strings.Join(nonEmpty(apiErr.Title, apiErr.Detail), ": "))
		} else if readErr == nil && len(respBody) > 0 && len(respBody) < 200 {
			msg = strings.TrimSpace(string(respBody))
		}
		p.logger.WarnContext(ctx, "Unipile returned an error", "status_code", httpResp.StatusCode, "path", path, "message", msg)
		return &Error{Kind: KindForStatus(httpResp.StatusCode), StatusCode: httpResp.StatusCode, Message: msg}
	}
	if readErr != nil {
		// 2xx with an unreadable body still means the provider accepted the request.
		p.logger.WarnContext(ctx, "Failed to read unipile response body", "error", readErr, "path", path)
		return nil
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			p.logger.WarnContext(ctx, "Unipile accepted the request but the response was not parseable",
				"error", err, "path", path, "status_code", httpResp.StatusCode)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
