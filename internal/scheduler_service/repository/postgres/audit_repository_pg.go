package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/core_domain"
	"github.com/offertesting/outreach_services/internal/platform/database"
)

// PgAuditRepository writes the immutable send_audit trail. There is no update or delete.
type PgAuditRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgAuditRepository(db database.DBTX, logger *slog.Logger) *PgAuditRepository {
	return &PgAuditRepository{db: db, logger: logger.With("repository", "send_audit")}
}

func (r *PgAuditRepository) Append(ctx context.Context, e core_domain.AuditEntry) error {
	metadata := []byte("{}")
	if len(e.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(e.Metadata); err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}
	keys := e.RecipientKeys
	if keys == nil {
		keys = []string{}
	}
	query := `
		INSERT INTO send_audit (id, outreach_id, campaign_id, channel, recipient_keys, provider_message_id, provider_chat_id,
			status_before, status_after, stage, status_update_success, error_message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.Exec(ctx, query,
		e.ID, e.OutreachID, e.CampaignID, string(e.Channel), keys, e.ProviderMessageID, e.ProviderChatID,
		string(e.StatusBefore), string(e.StatusAfter), string(e.Stage), e.StatusUpdateSuccess, e.ErrorMessage, metadata, e.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error appending audit entry", "error", err, "outreach_id", e.OutreachID, "stage", e.Stage)
		return err
	}
	return nil
}

func (r *PgAuditRepository) AppendCampaign(ctx context.Context, e core_domain.CampaignAuditEntry) error {
	query := `
		INSERT INTO campaign_audit (id, campaign_id, actor, status_before, status_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, e.ID, e.CampaignID, e.Actor, string(e.StatusBefore), string(e.StatusAfter), e.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error appending campaign audit entry", "error", err, "campaign_id", e.CampaignID)
		return err
	}
	return nil
}

func (r *PgAuditRepository) ListForOutreach(ctx context.Context, outreachID uuid.UUID) ([]core_domain.AuditEntry, error) {
	query := `
		SELECT id, outreach_id, campaign_id, channel, recipient_keys, provider_message_id, provider_chat_id,
			status_before, status_after, stage, status_update_success, error_message, metadata, created_at
		FROM send_audit
		WHERE outreach_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, outreachID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing audit entries", "error", err, "outreach_id", outreachID)
		return nil, err
	}
	defer rows.Close()

	var out []core_domain.AuditEntry
	for rows.Next() {
		var e core_domain.AuditEntry
		var channel, before, after, stage string
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.OutreachID, &e.CampaignID, &channel, &e.RecipientKeys, &e.ProviderMessageID, &e.ProviderChatID,
			&before, &after, &stage, &e.StatusUpdateSuccess, &e.ErrorMessage, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Channel = core_domain.Channel(channel)
		e.StatusBefore = core_domain.OutreachStatus(before)
		e.StatusAfter = core_domain.OutreachStatus(after)
		e.Stage = core_domain.AuditStage(stage)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				r.logger.WarnContext(ctx, "Unreadable audit metadata", "audit_id", e.ID, "error", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
