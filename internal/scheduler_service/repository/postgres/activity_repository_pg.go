package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/offertesting/outreach_services/internal/core_domain"
	"github.com/offertesting/outreach_services/internal/platform/database"
	"github.com/offertesting/outreach_services/internal/scheduler_service/domain"
)

// PgActivityRepository stores the append-only account_activity rows spacing is derived from.
type PgActivityRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgActivityRepository(db database.DBTX, logger *slog.Logger) *PgActivityRepository {
	return &PgActivityRepository{db: db, logger: logger.With("repository", "account_activity")}
}

func (r *PgActivityRepository) Append(ctx context.Context, a core_domain.AccountActivity) error {
	query := `
		INSERT INTO account_activity (id, account_id, outreach_id, channel, status, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, a.ID, a.AccountID, a.OutreachID, string(a.Channel), string(a.Status), a.OccurredAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error appending account activity", "error", err, "account_id", a.AccountID)
		return err
	}
	return nil
}

func (r *PgActivityRepository) LastSuccess(ctx context.Context, f domain.ActivityFilter) (*time.Time, error) {
	query := `
		SELECT max(occurred_at) FROM account_activity
		WHERE status = 'success' AND channel = ANY($1) AND ($2::uuid IS NULL OR account_id = $2)
	`
	var last *time.Time
	if err := r.db.QueryRow(ctx, query, channelStrings(f.Channels), f.AccountID).Scan(&last); err != nil {
		r.logger.ErrorContext(ctx, "Error loading last account activity", "error", err)
		return nil, err
	}
	return last, nil
}
