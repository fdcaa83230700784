package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/core_domain"
)

// DispatchRequest is a claimed record ready for the transport.
type DispatchRequest struct {
	OutreachID   uuid.UUID
	Channel      core_domain.Channel
	AccountID    string // provider-side account id
	Identity     core_domain.RecipientIdentity
	Subject      string
	Body         string
	CampaignType core_domain.CampaignType
	// ConnectedViaCampaign is true when this campaign already sent the recipient a connection request.
	ConnectedViaCampaign bool
}

// DispatchResult is the normalized outcome. Dispatch never returns an error or panics.
type DispatchResult struct {
	Success           bool
	ProviderMessageID string
	ProviderChatID    string
	ErrorMessage      string
	// Systemic marks failures caused by broken provider credentials.
	Systemic bool
	Duration time.Duration
}

// channelSender is one variant of the capability set.
type channelSender interface {
	precheck(ctx context.Context, req DispatchRequest) error
	send(ctx context.Context, req DispatchRequest) (*SendResponse, error)
}

// Dispatcher routes a claimed record to the sender for its channel.
type Dispatcher struct {
	transport Transport
	senders   map[core_domain.Channel]channelSender
	timeout   time.Duration
	logger    *slog.Logger
}

func NewDispatcher(transport Transport, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	logger = logger.With("component", "dispatcher", "provider", transport.GetName())
	return &Dispatcher{
		transport: transport,
		senders: map[core_domain.Channel]channelSender{
			core_domain.ChannelLinkedInDM:      &directMessageSender{transport: transport},
			core_domain.ChannelLinkedInConnect: &connectionRequestSender{transport: transport, logger: logger},
			core_domain.ChannelEmail:           &emailSender{transport: transport},
		},
		timeout: timeout,
		logger:  logger,
	}
}

// CheckAccount proxies the transport health check under the dispatch timeout.
func (d *Dispatcher) CheckAccount(ctx context.Context, accountID string) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return d.transport.CheckAccount(ctx, accountID)
}

// Dispatch issues at most one outbound send call and normalizes the result.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (result DispatchResult) {
	start := time.Now()
	label := "success"
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "Dispatch panicked", "outreach_id", req.OutreachID, "panic", r)
			label = "panic"
			result = DispatchResult{ErrorMessage: fmt.Sprintf("dispatch panic: %v", r)}
		}
		result.Duration = time.Since(start)
		dispatchTotal.WithLabelValues(string(req.Channel), label).Inc()
	}()

	sender, ok := d.senders[req.Channel]
	if !ok {
		label = "precondition"
		return DispatchResult{ErrorMessage: fmt.Sprintf("unsupported channel %q", req.Channel)}
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := sender.precheck(ctx, req); err != nil {
		label = "precondition"
		d.logger.WarnContext(ctx, "Dispatch precondition failed", "outreach_id", req.OutreachID, "channel", req.Channel, "error", err)
		return DispatchResult{ErrorMessage: err.Error(), Systemic: IsSystemic(err)}
	}

	resp, err := sender.send(ctx, req)
	if err != nil {
		label = "failure"
		msg := err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			label = "timeout"
			msg = fmt.Sprintf("timeout after %s: %s", d.timeout, msg)
		}
		d.logger.WarnContext(ctx, "Dispatch failed", "outreach_id", req.OutreachID, "channel", req.Channel, "error", msg)
		return DispatchResult{ErrorMessage: msg, Systemic: IsSystemic(err)}
	}
	if resp == nil {
		resp = &SendResponse{}
	}

	d.logger.InfoContext(ctx, "Dispatch succeeded", "outreach_id", req.OutreachID, "channel", req.Channel,
		"provider_message_id", resp.MessageID)
	return DispatchResult{Success: true, ProviderMessageID: resp.MessageID, ProviderChatID: resp.ChatID}
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

type directMessageSender struct {
	transport Transport
}

// precheck: networking campaigns message existing connections directly. Cold outreach
// campaigns only message people who accepted this campaign's own connection request.
func (s *directMessageSender) precheck(ctx context.Context, req DispatchRequest) error {
	if req.Identity.ProviderID == "" {
		return errors.New("precondition: recipient has no LinkedIn member id")
	}
	if strings.TrimSpace(req.Body) == "" {
		return errors.New("precondition: message body is empty")
	}
	if req.CampaignType == core_domain.CampaignNetworking {
		return nil
	}

	rel, err := s.transport.GetRelation(ctx, req.AccountID, req.Identity.ProviderID)
	if err != nil {
		return fmt.Errorf("precondition: connection status unavailable: %w", err)
	}
	if !rel.Connected {
		return fmt.Errorf("precondition: not connected (degree %d); cold messaging is not permitted for %s campaigns", rel.Degree, req.CampaignType)
	}
	if !req.ConnectedViaCampaign {
		return errors.New("precondition: existing 1st degree connection; cold outreach does not message existing connections")
	}
	return nil
}

func (s *directMessageSender) send(ctx context.Context, req DispatchRequest) (*SendResponse, error) {
	return s.transport.SendMessage(ctx, MessageRequest{AccountID: req.AccountID, AttendeeID: req.Identity.ProviderID, Text: req.Body})
}

type connectionRequestSender struct {
	transport Transport
	logger    *slog.Logger
}

func (s *connectionRequestSender) precheck(ctx context.Context, req DispatchRequest) error {
	if req.Identity.ProviderID == "" {
		return errors.New("precondition: recipient has no LinkedIn member id")
	}
	rel, err := s.transport.GetRelation(ctx, req.AccountID, req.Identity.ProviderID)
	if err != nil {
		if IsSystemic(err) {
			return err
		}
		// An unknown relation does not block an invitation; the provider rejects duplicates itself.
		s.logger.WarnContext(ctx, "Relation lookup failed, sending invitation anyway", "outreach_id", req.OutreachID, "error", err)
		return nil
	}
	if rel.Connected {
		return errors.New("precondition: already connected")
	}
	return nil
}

func (s *connectionRequestSender) send(ctx context.Context, req DispatchRequest) (*SendResponse, error) {
	return s.transport.SendInvitation(ctx, InvitationRequest{AccountID: req.AccountID, ProviderID: req.Identity.ProviderID, Message: req.Body})
}

type emailSender struct {
	transport Transport
}

func (s *emailSender) precheck(_ context.Context, req DispatchRequest) error {
	if req.Identity.ProviderID == "" {
		return errors.New("precondition: recipient has no email address")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return errors.New("precondition: email subject is empty")
	}
	return nil
}

func (s *emailSender) send(ctx context.Context, req DispatchRequest) (*SendResponse, error) {
	return s.transport.SendEmail(ctx, EmailRequest{AccountID: req.AccountID, To: req.Identity.ProviderID, Subject: req.Subject, Body: req.Body})
}
