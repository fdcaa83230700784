package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/offertesting/outreach_services/internal/core_domain"
)

// Operator is the recovery surface the admin API drives.
type Operator interface {
	GetRecord(ctx context.Context, id uuid.UUID) (*core_domain.OutreachRecord, error)
	RescheduleRecord(ctx context.Context, id uuid.UUID, scheduledAt time.Time, actor string) (*core_domain.OutreachRecord, error)
	SkipRecord(ctx context.Context, id uuid.UUID, reason, actor string) (*core_domain.OutreachRecord, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*core_domain.Campaign, error)
	SetCampaignStatus(ctx context.Context, id uuid.UUID, to core_domain.CampaignStatus, actor string) (*core_domain.Campaign, error)
}

type AdminHandler struct {
	operator Operator
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAdminHandler(operator Operator, logger *slog.Logger, validate *validator.Validate) *AdminHandler {
	return &AdminHandler{
		operator: operator,
		logger:   logger.With("component", "admin_handler"),
		validate: validate,
	}
}

func (h *AdminHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.operator.GetRecord(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err, "get record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *AdminHandler) RescheduleRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req RescheduleRecordRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	var at time.Time
	if req.ScheduledAt != nil {
		at = req.ScheduledAt.UTC()
	}
	rec, err := h.operator.RescheduleRecord(r.Context(), id, at, ActorFromContext(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err, "reschedule record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *AdminHandler) SkipRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req SkipRecordRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.operator.SkipRecord(r.Context(), id, req.Reason, ActorFromContext(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err, "skip record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *AdminHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, err := h.operator.GetCampaign(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err, "get campaign")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *AdminHandler) SetCampaignStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req CampaignStatusRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.operator.SetCampaignStatus(r.Context(), id, core_domain.CampaignStatus(req.Status), ActorFromContext(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err, "set campaign status")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *AdminHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id: must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// decode reads and validates a JSON body. An empty body decodes to the zero DTO.
func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			h.logger.WarnContext(ctx, "Failed to decode request body", "error", err, "request_id", chi_middleware.GetReqID(ctx))
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return false
		}
	}
	if err := h.validate.StructCtx(ctx, dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return false
	}
	return true
}

func (h *AdminHandler) writeDomainError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, core_domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core_domain.ErrInvalidTransition), errors.Is(err, core_domain.ErrStatusConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "Admin operation failed", "operation", op, "error", err, "request_id", chi_middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponseDTO{Error: msg})
}
