package http

import (
	"time"
)

// RescheduleRecordRequestDTO resets a failed or skipped record. An omitted scheduled_at means now.
type RescheduleRecordRequestDTO struct {
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

type SkipRecordRequestDTO struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type CampaignStatusRequestDTO struct {
	Status string `json:"status" validate:"required,oneof=draft in_progress paused completed"`
}

// ErrorResponseDTO is the body of every non-2xx response.
type ErrorResponseDTO struct {
	Error string `json:"error"`
}
