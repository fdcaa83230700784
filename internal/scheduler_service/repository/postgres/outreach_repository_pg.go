package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/offertesting/outreach_services/internal/core_domain"
	"github.com/offertesting/outreach_services/internal/platform/database"
	"github.com/offertesting/outreach_services/internal/scheduler_service/domain"
)

const recordColumns = `id, campaign_id, recipient_id, account_id, channel, subject, body, status, scheduled_at, sent_at, claimed_at,
	provider_message_id, provider_chat_id, reason, recipient_keys, created_at, updated_at`

type PgOutreachRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgOutreachRepository(db database.DBTX, logger *slog.Logger) *PgOutreachRepository {
	return &PgOutreachRepository{db: db, logger: logger.With("repository", "outreach_records")}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*core_domain.OutreachRecord, error) {
	rec := &core_domain.OutreachRecord{}
	var channel, status string
	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.RecipientID, &rec.AccountID, &channel, &rec.Subject, &rec.Body, &status,
		&rec.ScheduledAt, &rec.SentAt, &rec.ClaimedAt,
		&rec.ProviderMessageID, &rec.ProviderChatID, &rec.Reason, &rec.RecipientKeys, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Channel = core_domain.Channel(channel)
	rec.Status = core_domain.OutreachStatus(status)
	return rec, nil
}

// NextCandidate selects the oldest due pending record of an in_progress campaign.
// It takes no lock: the claim is the only arbiter between invocations.
func (r *PgOutreachRepository) NextCandidate(ctx context.Context, now time.Time, channels []core_domain.Channel) (*core_domain.Candidate, error) {
	query := `
		SELECT o.id, o.campaign_id, o.recipient_id, o.account_id, o.channel, o.subject, o.body, o.status, o.scheduled_at, o.created_at, o.updated_at,
			p.name, p.linkedin_member_id, p.linkedin_url, p.email,
			c.name, c.type, c.status, c.sent_count,
			a.provider_account_id, a.name, a.status
		FROM outreach_records o
		JOIN campaigns c ON c.id = o.campaign_id
		JOIN recipients p ON p.id = o.recipient_id
		JOIN sending_accounts a ON a.id = o.account_id
		WHERE o.status = 'pending' AND o.scheduled_at <= $1 AND o.channel = ANY($2) AND c.status = 'in_progress'
		ORDER BY o.scheduled_at ASC, o.created_at ASC
		LIMIT 1
	`
	cand := &core_domain.Candidate{}
	rec := &cand.Record
	var channel, status, campaignType, campaignStatus string
	err := r.db.QueryRow(ctx, query, now, channelStrings(channels)).Scan(
		&rec.ID, &rec.CampaignID, &rec.RecipientID, &rec.AccountID, &channel, &rec.Subject, &rec.Body, &status,
		&rec.ScheduledAt, &rec.CreatedAt, &rec.UpdatedAt,
		&cand.Recipient.Name, &cand.Recipient.LinkedInMemberID, &cand.Recipient.LinkedInURL, &cand.Recipient.Email,
		&cand.Campaign.Name, &campaignType, &campaignStatus, &cand.Campaign.SentCount,
		&cand.Account.ProviderAccountID, &cand.Account.Name, &cand.Account.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core_domain.ErrNoCandidate
		}
		r.logger.ErrorContext(ctx, "Error fetching next candidate", "error", err)
		return nil, err
	}
	rec.Channel = core_domain.Channel(channel)
	rec.Status = core_domain.OutreachStatus(status)
	cand.Recipient.ID = rec.RecipientID
	cand.Campaign.ID = rec.CampaignID
	cand.Campaign.Type = core_domain.CampaignType(campaignType)
	cand.Campaign.Status = core_domain.CampaignStatus(campaignStatus)
	cand.Account.ID = rec.AccountID
	return cand, nil
}

// Advisory lock namespaces for pg_advisory_xact_lock(int, int).
const (
	laneLockSpace      = 1
	recipientLockSpace = 2
)

// Claim runs in one transaction. The lane lock is always taken before the key locks,
// and keys are locked in sorted order, so concurrent claims cannot deadlock.
func (r *PgOutreachRepository) Claim(ctx context.Context, id uuid.UUID, keys []string, scope domain.ClaimScope, at time.Time) (err error) {
	if keys == nil {
		keys = []string{}
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error starting claim transaction", "error", err, "outreach_id", id)
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.logger.WarnContext(ctx, "Claim rollback failed", "error", rbErr, "outreach_id", id)
			}
		}
	}()

	lockSQL := `SELECT pg_advisory_xact_lock($1, hashtext($2))`
	if _, err = tx.Exec(ctx, lockSQL, laneLockSpace, scope.Lane); err != nil {
		r.logger.ErrorContext(ctx, "Error locking lane", "error", err, "lane", scope.Lane)
		return err
	}
	for _, key := range sortedUnique(keys) {
		if _, err = tx.Exec(ctx, lockSQL, recipientLockSpace, key); err != nil {
			r.logger.ErrorContext(ctx, "Error locking recipient key", "error", err, "outreach_id", id)
			return err
		}
	}

	// Ledger rows plus other claims still in flight on the lane's channels.
	capSQL := `
		SELECT
			(SELECT count(*) FROM outreach_history WHERE sent_at >= $1 AND sent_at < $2 AND channel = ANY($3))
			+ (SELECT count(*) FROM outreach_records WHERE status = 'sending' AND channel = ANY($3) AND id <> $4)
	`
	var used int
	if err = tx.QueryRow(ctx, capSQL, scope.DayStart, scope.DayEnd, channelStrings(scope.Channels), id).Scan(&used); err != nil {
		r.logger.ErrorContext(ctx, "Error re-counting daily cap", "error", err, "lane", scope.Lane)
		return err
	}
	if used >= scope.DailyCap {
		err = core_domain.ErrDailyCapReached
		return err
	}

	inFlightSQL := `
		SELECT EXISTS (
			SELECT 1 FROM outreach_records
			WHERE id <> $1 AND status IN ('sending', 'sent') AND recipient_keys && $2
		)
	`
	var inFlight bool
	if err = tx.QueryRow(ctx, inFlightSQL, id, keys).Scan(&inFlight); err != nil {
		r.logger.ErrorContext(ctx, "Error checking recipient in flight", "error", err, "outreach_id", id)
		return err
	}
	if inFlight {
		err = core_domain.ErrRecipientInFlight
		return err
	}

	claimSQL := `
		UPDATE outreach_records
		SET status = 'sending', claimed_at = $2, recipient_keys = $3, updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := tx.Exec(ctx, claimSQL, id, at, keys)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error claiming outreach record", "error", err, "outreach_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		err = core_domain.ErrClaimLost
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Error committing claim", "error", err, "outreach_id", id)
		return err
	}
	return nil
}

func sortedUnique(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *PgOutreachRepository) TransitionStatus(ctx context.Context, upd domain.StatusUpdate) error {
	if !core_domain.CanTransition(upd.From, upd.To) {
		return fmt.Errorf("%w: %s -> %s", core_domain.ErrInvalidTransition, upd.From, upd.To)
	}
	// sent_at is written on every transition so that it is set exactly when status is sent.
	var sentAt *time.Time
	if upd.To == core_domain.StatusSent {
		sentAt = upd.SentAt
		if sentAt == nil {
			at := upd.At
			sentAt = &at
		}
	}
	query := `
		UPDATE outreach_records
		SET status = $3, sent_at = $4, provider_message_id = $5, provider_chat_id = $6, reason = $7, updated_at = $8
		WHERE id = $1 AND status = $2
	`
	tag, err := r.db.Exec(ctx, query, upd.ID, string(upd.From), string(upd.To), sentAt,
		upd.ProviderMessageID, upd.ProviderChatID, upd.Reason, upd.At)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating outreach status", "error", err, "outreach_id", upd.ID, "to", upd.To)
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Conditional status update affected no rows", "outreach_id", upd.ID, "from", upd.From, "to", upd.To)
		return core_domain.ErrStatusConflict
	}
	return nil
}

func (r *PgOutreachRepository) Reschedule(ctx context.Context, id uuid.UUID, from []core_domain.OutreachStatus, scheduledAt time.Time, reason string, at time.Time) error {
	query := `
		UPDATE outreach_records
		SET status = 'pending', scheduled_at = $3, reason = $4, sent_at = NULL, updated_at = $5
		WHERE id = $1 AND status = ANY($2)
	`
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	tag, err := r.db.Exec(ctx, query, id, statuses, scheduledAt, reason, at)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error rescheduling outreach record", "error", err, "outreach_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return core_domain.ErrStatusConflict
	}
	r.logger.InfoContext(ctx, "Outreach record rescheduled", "outreach_id", id, "scheduled_at", scheduledAt)
	return nil
}

func (r *PgOutreachRepository) GetByID(ctx context.Context, id uuid.UUID) (*core_domain.OutreachRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM outreach_records WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core_domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting outreach record", "error", err, "outreach_id", id)
		return nil, err
	}
	return rec, nil
}

func (r *PgOutreachRepository) ListStuckSending(ctx context.Context, claimedBefore time.Time, limit int) ([]core_domain.OutreachRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM outreach_records
		WHERE status = 'sending' AND claimed_at < $1
		ORDER BY claimed_at ASC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, claimedBefore, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing stuck records", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []core_domain.OutreachRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PgOutreachRepository) DayStats(ctx context.Context, dayStart, dayEnd time.Time) (core_domain.DayStats, error) {
	query := `
		SELECT
			(SELECT count(*) FROM outreach_records WHERE status = 'sent' AND sent_at >= $1 AND sent_at < $2),
			(SELECT count(*) FROM outreach_records WHERE status = 'pending' AND scheduled_at < $2),
			(SELECT max(scheduled_at) FROM outreach_records WHERE status = 'pending')
	`
	var stats core_domain.DayStats
	if err := r.db.QueryRow(ctx, query, dayStart, dayEnd).Scan(&stats.SentToday, &stats.PendingToday, &stats.LastScheduled); err != nil {
		r.logger.ErrorContext(ctx, "Error loading day stats", "error", err)
		return stats, err
	}
	return stats, nil
}

func channelStrings(channels []core_domain.Channel) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}
