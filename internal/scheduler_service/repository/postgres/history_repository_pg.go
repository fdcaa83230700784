package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/core_domain"
	"github.com/offertesting/outreach_services/internal/platform/database"
)

// PgHistoryRepository reads every dedup source and appends to outreach_history.
type PgHistoryRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgHistoryRepository(db database.DBTX, logger *slog.Logger) *PgHistoryRepository {
	return &PgHistoryRepository{db: db, logger: logger.With("repository", "outreach_history")}
}

// PriorSends unions sent records with sent audit rows. The audit side catches messages
// whose status write was lost after the provider accepted them.
func (r *PgHistoryRepository) PriorSends(ctx context.Context, keys []string, excludeID uuid.UUID) ([]core_domain.PriorSend, error) {
	query := `
		SELECT o.id, o.campaign_id, c.name, k.key, o.sent_at
		FROM outreach_records o
		JOIN campaigns c ON c.id = o.campaign_id
		CROSS JOIN LATERAL unnest(o.recipient_keys) AS k(key)
		WHERE o.status = 'sent' AND o.id <> $2 AND o.recipient_keys && $1 AND k.key = ANY($1)
		UNION
		SELECT a.outreach_id, a.campaign_id, COALESCE(c.name, ''), k.key, a.created_at
		FROM send_audit a
		LEFT JOIN campaigns c ON c.id = a.campaign_id
		CROSS JOIN LATERAL unnest(a.recipient_keys) AS k(key)
		WHERE a.stage = 'sent' AND a.outreach_id <> $2 AND a.recipient_keys && $1 AND k.key = ANY($1)
		ORDER BY 5 ASC, 1 ASC
	`
	rows, err := r.db.Query(ctx, query, keys, excludeID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error loading prior sends", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []core_domain.PriorSend
	for rows.Next() {
		var p core_domain.PriorSend
		if err := rows.Scan(&p.OutreachID, &p.CampaignID, &p.CampaignName, &p.MatchedKey, &p.SentAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PgHistoryRepository) History(ctx context.Context, keys []string) ([]core_domain.OutreachHistoryEntry, error) {
	query := `
		SELECT id, recipient_keys, campaign_id, outreach_id, account_id, channel, subject, sent_at
		FROM outreach_history
		WHERE recipient_keys && $1
		ORDER BY sent_at DESC
	`
	rows, err := r.db.Query(ctx, query, keys)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error loading outreach history", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []core_domain.OutreachHistoryEntry
	for rows.Next() {
		var h core_domain.OutreachHistoryEntry
		var channel string
		if err := rows.Scan(&h.ID, &h.RecipientKeys, &h.CampaignID, &h.OutreachID, &h.AccountID, &channel, &h.Subject, &h.SentAt); err != nil {
			return nil, err
		}
		h.Channel = core_domain.Channel(channel)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *PgHistoryRepository) AppendHistory(ctx context.Context, h core_domain.OutreachHistoryEntry) error {
	query := `
		INSERT INTO outreach_history (id, recipient_keys, campaign_id, outreach_id, account_id, channel, subject, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query, h.ID, h.RecipientKeys, h.CampaignID, h.OutreachID, h.AccountID, string(h.Channel), h.Subject, h.SentAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error appending outreach history", "error", err, "outreach_id", h.OutreachID.UUID)
		return err
	}
	return nil
}

// CountSent is the derived daily count: the ledger is append-only, so it never drifts.
func (r *PgHistoryRepository) CountSent(ctx context.Context, start, end time.Time, channels []core_domain.Channel) (int, error) {
	query := `SELECT count(*) FROM outreach_history WHERE sent_at >= $1 AND sent_at < $2 AND channel = ANY($3)`
	var n int
	if err := r.db.QueryRow(ctx, query, start, end, channelStrings(channels)).Scan(&n); err != nil {
		r.logger.ErrorContext(ctx, "Error counting sends", "error", err)
		return 0, err
	}
	return n, nil
}

func (r *PgHistoryRepository) ConnectSentInCampaign(ctx context.Context, campaignID uuid.UUID, keys []string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM outreach_records
			WHERE campaign_id = $1 AND channel = 'linkedin_connect' AND status = 'sent' AND recipient_keys && $2
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, campaignID, keys).Scan(&exists); err != nil {
		r.logger.ErrorContext(ctx, "Error checking campaign connect", "error", err, "campaign_id", campaignID)
		return false, err
	}
	return exists, nil
}
