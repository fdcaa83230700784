package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/offertesting/outreach_services/internal/core_domain"
)

const (
	testJWTSecret = "test-secret"
	testAPIKey    = "adm_4f1c9e"
)

type MockOperator struct {
	mock.Mock
}

func (m *MockOperator) GetRecord(ctx context.Context, id uuid.UUID) (*core_domain.OutreachRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.OutreachRecord), args.Error(1)
}

func (m *MockOperator) RescheduleRecord(ctx context.Context, id uuid.UUID, scheduledAt time.Time, actor string) (*core_domain.OutreachRecord, error) {
	args := m.Called(ctx, id, scheduledAt, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.OutreachRecord), args.Error(1)
}

func (m *MockOperator) SkipRecord(ctx context.Context, id uuid.UUID, reason, actor string) (*core_domain.OutreachRecord, error) {
	args := m.Called(ctx, id, reason, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.OutreachRecord), args.Error(1)
}

func (m *MockOperator) GetCampaign(ctx context.Context, id uuid.UUID) (*core_domain.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.Campaign), args.Error(1)
}

func (m *MockOperator) SetCampaignStatus(ctx context.Context, id uuid.UUID, to core_domain.CampaignStatus, actor string) (*core_domain.Campaign, error) {
	args := m.Called(ctx, id, to, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.Campaign), args.Error(1)
}

func newTestRouter(op Operator) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(op, AuthConfig{JWTSecret: testJWTSecret, APIKeyHash: HashAPIKey(testAPIKey)}, logger)
}

func signedToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func doRequest(h http.Handler, method, path, auth string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAdminAuthMiddleware(t *testing.T) {
	id := uuid.New()
	rec := &core_domain.OutreachRecord{ID: id, Status: core_domain.StatusPending}

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Bearer", http.StatusUnauthorized},
		{"unsupported scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"wrong api key", "ApiKey nope", http.StatusUnauthorized},
		{"token signed with another secret", "Bearer " + signedToken(t, "other", "ops", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired token", "Bearer " + signedToken(t, testJWTSecret, "ops", time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"valid api key", "ApiKey " + testAPIKey, http.StatusOK},
		{"valid token", "Bearer " + signedToken(t, testJWTSecret, "ops", time.Now().Add(time.Hour)), http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			op := new(MockOperator)
			op.On("GetRecord", mock.Anything, id).Return(rec, nil).Maybe()

			rr := doRequest(newTestRouter(op), http.MethodGet, "/api/v1/records/"+id.String(), tc.auth, nil)
			assert.Equal(t, tc.wantStatus, rr.Code)
		})
	}
}

func TestAdminHandler_Healthz(t *testing.T) {
	rr := doRequest(newTestRouter(new(MockOperator)), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestAdminHandler_RescheduleRecord(t *testing.T) {
	id := uuid.New()
	auth := "Bearer " + signedToken(t, testJWTSecret, "ops@example.com", time.Now().Add(time.Hour))
	at := time.Date(2026, time.October, 15, 13, 0, 0, 0, time.UTC)

	t.Run("reschedules with the token subject as actor", func(t *testing.T) {
		op := new(MockOperator)
		op.On("RescheduleRecord", mock.Anything, id, at, "ops@example.com").
			Return(&core_domain.OutreachRecord{ID: id, Status: core_domain.StatusPending, ScheduledAt: at}, nil).Once()

		rr := doRequest(newTestRouter(op), http.MethodPost, "/api/v1/records/"+id.String()+"/reschedule", auth,
			RescheduleRecordRequestDTO{ScheduledAt: &at})
		require.Equal(t, http.StatusOK, rr.Code)

		var got core_domain.OutreachRecord
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, core_domain.StatusPending, got.Status)
		op.AssertExpectations(t)
	})

	t.Run("empty body means now", func(t *testing.T) {
		op := new(MockOperator)
		op.On("RescheduleRecord", mock.Anything, id, time.Time{}, "ops@example.com").
			Return(&core_domain.OutreachRecord{ID: id, Status: core_domain.StatusPending}, nil).Once()

		rr := doRequest(newTestRouter(op), http.MethodPost, "/api/v1/records/"+id.String()+"/reschedule", auth, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		op.AssertExpectations(t)
	})

	t.Run("sent record is a conflict", func(t *testing.T) {
		op := new(MockOperator)
		op.On("RescheduleRecord", mock.Anything, id, time.Time{}, "ops@example.com").
			Return(nil, fmt.Errorf("%w: cannot reschedule a sent record", core_domain.ErrInvalidTransition)).Once()

		rr := doRequest(newTestRouter(op), http.MethodPost, "/api/v1/records/"+id.String()+"/reschedule", auth, nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Contains(t, rr.Body.String(), "cannot reschedule a sent record")
	})

	t.Run("bad id", func(t *testing.T) {
		rr := doRequest(newTestRouter(new(MockOperator)), http.MethodPost, "/api/v1/records/not-a-uuid/reschedule", auth, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAdminHandler_SkipRecord(t *testing.T) {
	id := uuid.New()
	auth := "ApiKey " + testAPIKey

	t.Run("skips", func(t *testing.T) {
		op := new(MockOperator)
		op.On("SkipRecord", mock.Anything, id, "asked by client", "api-key").
			Return(&core_domain.OutreachRecord{ID: id, Status: core_domain.StatusSkipped, Reason: "asked by client"}, nil).Once()

		rr := doRequest(newTestRouter(op), http.MethodPost, "/api/v1/records/"+id.String()+"/skip", auth,
			SkipRecordRequestDTO{Reason: "asked by client"})
		assert.Equal(t, http.StatusOK, rr.Code)
		op.AssertExpectations(t)
	})

	t.Run("reason too long", func(t *testing.T) {
		long := make([]byte, 501)
		for i := range long {
			long[i] = 'x'
		}
		rr := doRequest(newTestRouter(new(MockOperator)), http.MethodPost, "/api/v1/records/"+id.String()+"/skip", auth,
			SkipRecordRequestDTO{Reason: string(long)})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown record", func(t *testing.T) {
		op := new(MockOperator)
		op.On("SkipRecord", mock.Anything, id, "", "api-key").Return(nil, core_domain.ErrNotFound).Once()

		rr := doRequest(newTestRouter(op), http.MethodPost, "/api/v1/records/"+id.String()+"/skip", auth, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("store failure is opaque", func(t *testing.T) {
		op := new(MockOperator)
		op.On("SkipRecord", mock.Anything, id, "", "api-key").Return(nil, errors.New("pq: connection reset")).Once()

		rr := doRequest(newTestRouter(op), http.MethodPost, "/api/v1/records/"+id.String()+"/skip", auth, nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "connection reset")
	})
}

func TestAdminHandler_Campaigns(t *testing.T) {
	id := uuid.New()
	auth := "ApiKey " + testAPIKey

	t.Run("get", func(t *testing.T) {
		op := new(MockOperator)
		op.On("GetCampaign", mock.Anything, id).
			Return(&core_domain.Campaign{ID: id, Name: "Q4 founders", Status: core_domain.CampaignInProgress, SentCount: 12}, nil).Once()

		rr := doRequest(newTestRouter(op), http.MethodGet, "/api/v1/campaigns/"+id.String(), auth, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var got core_domain.Campaign
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, 12, got.SentCount)
	})

	t.Run("pause", func(t *testing.T) {
		op := new(MockOperator)
		op.On("SetCampaignStatus", mock.Anything, id, core_domain.CampaignPaused, "api-key").
			Return(&core_domain.Campaign{ID: id, Status: core_domain.CampaignPaused}, nil).Once()

		rr := doRequest(newTestRouter(op), http.MethodPut, "/api/v1/campaigns/"+id.String()+"/status", auth,
			CampaignStatusRequestDTO{Status: "paused"})
		assert.Equal(t, http.StatusOK, rr.Code)
		op.AssertExpectations(t)
	})

	t.Run("unknown status", func(t *testing.T) {
		rr := doRequest(newTestRouter(new(MockOperator)), http.MethodPut, "/api/v1/campaigns/"+id.String()+"/status", auth,
			CampaignStatusRequestDTO{Status: "archived"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("illegal lifecycle move", func(t *testing.T) {
		op := new(MockOperator)
		op.On("SetCampaignStatus", mock.Anything, id, core_domain.CampaignDraft, "api-key").
			Return(nil, core_domain.ErrInvalidTransition).Once()

		rr := doRequest(newTestRouter(op), http.MethodPut, "/api/v1/campaigns/"+id.String()+"/status", auth,
			CampaignStatusRequestDTO{Status: "draft"})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}
