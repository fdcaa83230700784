package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/offertesting/outreach_services/internal/digest_service/domain"
	"github.com/offertesting/outreach_services/internal/platform/database"
)

// PgDigestRepository stores digest_queue entries and the single digest_metadata row.
type PgDigestRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgDigestRepository(db database.DBTX, logger *slog.Logger) *PgDigestRepository {
	return &PgDigestRepository{db: db, logger: logger.With("repository", "digest_queue")}
}

func (r *PgDigestRepository) Enqueue(ctx context.Context, e domain.Entry) error {
	query := `
		INSERT INTO digest_queue (id, type, outreach_id, campaign_id, channel, recipient, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query, e.ID, string(e.Type), e.OutreachID, e.CampaignID, e.Channel, e.Recipient, e.Detail, e.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error enqueueing digest entry", "error", err, "type", e.Type)
		return err
	}
	return nil
}

func (r *PgDigestRepository) ListQueued(ctx context.Context, after *domain.QueueCursor, limit int) ([]domain.Entry, error) {
	query := `
		SELECT id, type, outreach_id, campaign_id, channel, recipient, detail, created_at
		FROM digest_queue
		WHERE $1::timestamptz IS NULL OR (created_at, id) > ($1, $2::uuid)
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`
	var afterAt *time.Time
	var afterID *uuid.UUID
	if after != nil {
		afterAt, afterID = &after.CreatedAt, &after.ID
	}
	rows, err := r.db.Query(ctx, query, afterAt, afterID, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing digest queue", "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		var entryType string
		if err := rows.Scan(&e.ID, &entryType, &e.OutreachID, &e.CampaignID, &e.Channel, &e.Recipient, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = domain.NotificationType(entryType)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PgDigestRepository) DeleteEntries(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM digest_queue WHERE id = ANY($1)`, ids)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error deleting digest entries", "error", err, "count", len(ids))
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgDigestRepository) LastDigestAt(ctx context.Context) (*time.Time, error) {
	var last *time.Time
	err := r.db.QueryRow(ctx, `SELECT last_digest_at FROM digest_metadata WHERE id = 1`).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.ErrorContext(ctx, "Error loading last digest time", "error", err)
		return nil, err
	}
	return last, nil
}

// ClaimSlot is a compare-and-set on last_digest_at.
func (r *PgDigestRepository) ClaimSlot(ctx context.Context, previous *time.Time, at time.Time) (bool, error) {
	query := `
		INSERT INTO digest_metadata (id, last_digest_at) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_digest_at = EXCLUDED.last_digest_at
		WHERE digest_metadata.last_digest_at IS NOT DISTINCT FROM $2
	`
	tag, err := r.db.Exec(ctx, query, at, previous)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error claiming digest slot", "error", err, "slot", at)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgDigestRepository) ReleaseSlot(ctx context.Context, claimedAt time.Time, previous *time.Time) error {
	query := `UPDATE digest_metadata SET last_digest_at = $2 WHERE id = 1 AND last_digest_at = $1`
	if _, err := r.db.Exec(ctx, query, claimedAt, previous); err != nil {
		r.logger.ErrorContext(ctx, "Error releasing digest slot", "error", err, "slot", claimedAt)
		return err
	}
	return nil
}
