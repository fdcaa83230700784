package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/offertesting/outreach_services/internal/core_domain"
	"github.com/offertesting/outreach_services/internal/platform/database"
)

type PgCampaignRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgCampaignRepository(db database.DBTX, logger *slog.Logger) *PgCampaignRepository {
	return &PgCampaignRepository{db: db, logger: logger.With("repository", "campaigns")}
}

func (r *PgCampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*core_domain.Campaign, error) {
	query := `SELECT id, name, type, status, sent_count, created_at, updated_at FROM campaigns WHERE id = $1`
	c := &core_domain.Campaign{}
	var campaignType, status string
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &campaignType, &status, &c.SentCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core_domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting campaign", "error", err, "campaign_id", id)
		return nil, err
	}
	c.Type = core_domain.CampaignType(campaignType)
	c.Status = core_domain.CampaignStatus(status)
	return c, nil
}

func (r *PgCampaignRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to core_domain.CampaignStatus, at time.Time) error {
	query := `UPDATE campaigns SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	tag, err := r.db.Exec(ctx, query, id, string(from), string(to), at)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating campaign status", "error", err, "campaign_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return core_domain.ErrStatusConflict
	}
	return nil
}

func (r *PgCampaignRepository) IncrementSentCount(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE campaigns SET sent_count = sent_count + 1, updated_at = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error incrementing campaign sent count", "error", err, "campaign_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return core_domain.ErrNotFound
	}
	return nil
}
