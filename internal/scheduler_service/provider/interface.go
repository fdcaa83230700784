package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// MessageRequest is a LinkedIn direct message to one attendee.
type MessageRequest struct {
	AccountID  string
	AttendeeID string
	Text       string
}

// InvitationRequest is a LinkedIn connection request with an optional note.
type InvitationRequest struct {
	AccountID  string
	ProviderID string
	Message    string
}

type EmailRequest struct {
	AccountID string
	To        string
	Subject   string
	Body      string
}

// SendResponse holds the identifiers the provider assigned.
type SendResponse struct {
	MessageID string
	ChatID    string
}

// Relation describes the sending account's connection to a LinkedIn member.
type Relation struct {
	Degree    int // 1 for a first-degree connection, 0 when unknown
	Connected bool
}

// Transport is the external provider API used by every channel variant.
type Transport interface {
	SendMessage(ctx context.Context, req MessageRequest) (*SendResponse, error)
	SendInvitation(ctx context.Context, req InvitationRequest) (*SendResponse, error)
	SendEmail(ctx context.Context, req EmailRequest) (*SendResponse, error)
	GetRelation(ctx context.Context, accountID, providerID string) (*Relation, error)
	// CheckAccount verifies the provider still accepts the account's credentials.
	CheckAccount(ctx context.Context, accountID string) error
	GetName() string
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth" // systemic: no send can succeed
	KindRateLimit ErrorKind = "rate_limit"
	KindRecipient ErrorKind = "recipient"
	KindInvalid   ErrorKind = "invalid_request"
	KindTransport ErrorKind = "transport"
)

// Error is returned by Transport implementations for provider-reported failures.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusNotFound || code == http.StatusUnprocessableEntity:
		return KindRecipient
	case code >= 400 && code < 500:
		return KindInvalid
	default:
		return KindTransport
	}
}

// IsSystemic reports whether err means the provider credentials are broken.
func IsSystemic(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindAuth
}
