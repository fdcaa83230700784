package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/offertesting/outreach_services/internal/platform/database"
)

type PgBlockListRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgBlockListRepository(db database.DBTX, logger *slog.Logger) *PgBlockListRepository {
	return &PgBlockListRepository{db: db, logger: logger.With("repository", "do_not_message")}
}

func (r *PgBlockListRepository) IsBlocked(ctx context.Context, keys []string) (bool, string, error) {
	if len(keys) == 0 {
		return false, "", nil
	}
	query := `SELECT reason FROM do_not_message WHERE recipient_key = ANY($1) ORDER BY created_at ASC LIMIT 1`
	var reason string
	err := r.db.QueryRow(ctx, query, keys).Scan(&reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, "", nil
		}
		r.logger.ErrorContext(ctx, "Error checking block list", "error", err)
		return false, "", err
	}
	return true, reason, nil
}
