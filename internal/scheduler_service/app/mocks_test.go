package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/offertesting/outreach_services/internal/core_domain"
	digestdomain "github.com/offertesting/outreach_services/internal/digest_service/domain"
	"github.com/offertesting/outreach_services/internal/scheduler_service/domain"
	"github.com/offertesting/outreach_services/internal/scheduler_service/provider"
)

// --- Mocks ---

type MockOutreachRepository struct {
	mock.Mock
}

func (m *MockOutreachRepository) NextCandidate(ctx context.Context, now time.Time, channels []core_domain.Channel) (*core_domain.Candidate, error) {
	args := m.Called(ctx, now, channels)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.Candidate), args.Error(1)
}

func (m *MockOutreachRepository) Claim(ctx context.Context, id uuid.UUID, keys []string, scope domain.ClaimScope, at time.Time) error {
	return m.Called(ctx, id, keys, scope, at).Error(0)
}

func (m *MockOutreachRepository) TransitionStatus(ctx context.Context, upd domain.StatusUpdate) error {
	return m.Called(ctx, upd).Error(0)
}

func (m *MockOutreachRepository) Reschedule(ctx context.Context, id uuid.UUID, from []core_domain.OutreachStatus, scheduledAt time.Time, reason string, at time.Time) error {
	return m.Called(ctx, id, from, scheduledAt, reason, at).Error(0)
}

func (m *MockOutreachRepository) GetByID(ctx context.Context, id uuid.UUID) (*core_domain.OutreachRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.OutreachRecord), args.Error(1)
}

func (m *MockOutreachRepository) ListStuckSending(ctx context.Context, claimedBefore time.Time, limit int) ([]core_domain.OutreachRecord, error) {
	args := m.Called(ctx, claimedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]core_domain.OutreachRecord), args.Error(1)
}

func (m *MockOutreachRepository) DayStats(ctx context.Context, dayStart, dayEnd time.Time) (core_domain.DayStats, error) {
	args := m.Called(ctx, dayStart, dayEnd)
	return args.Get(0).(core_domain.DayStats), args.Error(1)
}

type MockCampaignRepository struct {
	mock.Mock
}

func (m *MockCampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*core_domain.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core_domain.Campaign), args.Error(1)
}

func (m *MockCampaignRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to core_domain.CampaignStatus, at time.Time) error {
	return m.Called(ctx, id, from, to, at).Error(0)
}

func (m *MockCampaignRepository) IncrementSentCount(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) PriorSends(ctx context.Context, keys []string, excludeID uuid.UUID) ([]core_domain.PriorSend, error) {
	args := m.Called(ctx, keys, excludeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]core_domain.PriorSend), args.Error(1)
}

func (m *MockHistoryRepository) History(ctx context.Context, keys []string) ([]core_domain.OutreachHistoryEntry, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]core_domain.OutreachHistoryEntry), args.Error(1)
}

func (m *MockHistoryRepository) AppendHistory(ctx context.Context, entry core_domain.OutreachHistoryEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockHistoryRepository) CountSent(ctx context.Context, start, end time.Time, channels []core_domain.Channel) (int, error) {
	args := m.Called(ctx, start, end, channels)
	return args.Int(0), args.Error(1)
}

func (m *MockHistoryRepository) ConnectSentInCampaign(ctx context.Context, campaignID uuid.UUID, keys []string) (bool, error) {
	args := m.Called(ctx, campaignID, keys)
	return args.Bool(0), args.Error(1)
}

type MockBlockListRepository struct {
	mock.Mock
}

func (m *MockBlockListRepository) IsBlocked(ctx context.Context, keys []string) (bool, string, error) {
	args := m.Called(ctx, keys)
	return args.Bool(0), args.String(1), args.Error(2)
}

type MockActivityRepository struct {
	mock.Mock
}

func (m *MockActivityRepository) Append(ctx context.Context, a core_domain.AccountActivity) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockActivityRepository) LastSuccess(ctx context.Context, filter domain.ActivityFilter) (*time.Time, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, e core_domain.AuditEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockAuditRepository) ListForOutreach(ctx context.Context, outreachID uuid.UUID) ([]core_domain.AuditEntry, error) {
	args := m.Called(ctx, outreachID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]core_domain.AuditEntry), args.Error(1)
}

func (m *MockAuditRepository) AppendCampaign(ctx context.Context, e core_domain.CampaignAuditEntry) error {
	return m.Called(ctx, e).Error(0)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) CheckAccount(ctx context.Context, accountID string) error {
	return m.Called(ctx, accountID).Error(0)
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req provider.DispatchRequest) provider.DispatchResult {
	return m.Called(ctx, req).Get(0).(provider.DispatchResult)
}

type MockDigestEnqueuer struct {
	mock.Mock
}

func (m *MockDigestEnqueuer) Enqueue(ctx context.Context, e digestdomain.Entry) error {
	return m.Called(ctx, e).Error(0)
}

type MockOutcomePublisher struct {
	mock.Mock
}

func (m *MockOutcomePublisher) PublishOutcome(ctx context.Context, ev domain.OutcomeEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// --- Matchers ---

func auditStage(stage core_domain.AuditStage) interface{} {
	return mock.MatchedBy(func(e core_domain.AuditEntry) bool { return e.Stage == stage })
}

func transitionTo(to core_domain.OutreachStatus) interface{} {
	return mock.MatchedBy(func(u domain.StatusUpdate) bool { return u.To == to })
}

func digestType(t digestdomain.NotificationType) interface{} {
	return mock.MatchedBy(func(e digestdomain.Entry) bool { return e.Type == t })
}
