package core_domain

import (
	"time"

	"github.com/google/uuid"
)

type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "draft"
	CampaignInProgress CampaignStatus = "in_progress"
	CampaignPaused     CampaignStatus = "paused"
	CampaignCompleted  CampaignStatus = "completed"
)

// CampaignType decides whether direct messages need a connection made by the campaign itself.
type CampaignType string

const (
	CampaignNetworking   CampaignType = "networking"    // existing connections, DM allowed
	CampaignColdOutreach CampaignType = "cold_outreach" // connect first, DM only after acceptance
)

type Campaign struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Type      CampaignType   `json:"type"`
	Status    CampaignStatus `json:"status"`
	SentCount int            `json:"sent_count"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:      {CampaignInProgress},
	CampaignInProgress: {CampaignPaused, CampaignCompleted},
	CampaignPaused:     {CampaignInProgress, CampaignCompleted},
}

// CanTransitionCampaign reports whether the campaign lifecycle allows from -> to.
func CanTransitionCampaign(from, to CampaignStatus) bool {
	for _, s := range campaignTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
