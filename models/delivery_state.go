package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DeliveryStateKey is the campaign state key holding the delivery record
const DeliveryStateKey = "delivery_data"

// DeliveryStage is the derived position of a campaign in the publishing pipeline
type DeliveryStage string

const (
	DeliveryStageNoCampaign      DeliveryStage = "no_campaign"
	DeliveryStageCampaignCreated DeliveryStage = "campaign_created"
	DeliveryStageAdSetCreated    DeliveryStage = "adset_created"
	DeliveryStageCreativeCreated DeliveryStage = "creative_created"
	DeliveryStageAdCreated       DeliveryStage = "ad_created"
	DeliveryStagePublished       DeliveryStage = "published"
)

// Remote object statuses
const (
	RemoteStatusPaused = "PAUSED"
	RemoteStatusActive = "ACTIVE"
)

// ErrDeliveryOrderViolated is returned when a later remote id is present without an earlier one
var ErrDeliveryOrderViolated = errors.New("delivery state ordering violated")

// DeliveryState records the remote object ids created for a campaign.
// CampaignID, AdSetID, CreativeID and AdID form an ordered chain. The
// remaining fields are auxiliary and never participate in ordering.
// Every field is optional so that a partial value can be used as a merge patch.
type DeliveryState struct {
	CampaignID *string `json:"campaignId,omitempty"`
	AdSetID    *string `json:"adSetId,omitempty"`
	CreativeID *string `json:"creativeId,omitempty"`
	AdID       *string `json:"adId,omitempty"`

	ImageHash  *string `json:"imageHash,omitempty"`
	LeadFormID *string `json:"leadFormId,omitempty"`

	CampaignStatus *string    `json:"campaignStatus,omitempty"`
	AdStatus       *string    `json:"adStatus,omitempty"`
	PublishedAt    *time.Time `json:"publishedAt,omitempty"`

	LastFailedStep *string    `json:"lastFailedStep,omitempty"`
	LastError      *string    `json:"lastError,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

func present(s *string) bool {
	return s != nil && *s != ""
}

// Stage derives the pipeline stage from the stored ids
func (d DeliveryState) Stage() DeliveryStage {
	switch {
	case present(d.AdID):
		if (d.AdStatus != nil && *d.AdStatus == RemoteStatusActive) ||
			(d.CampaignStatus != nil && *d.CampaignStatus == RemoteStatusActive) {
			return DeliveryStagePublished
		}
		return DeliveryStageAdCreated
	case present(d.CreativeID):
		return DeliveryStageCreativeCreated
	case present(d.AdSetID):
		return DeliveryStageAdSetCreated
	case present(d.CampaignID):
		return DeliveryStageCampaignCreated
	default:
		return DeliveryStageNoCampaign
	}
}

// Complete reports whether every object of the chain exists
func (d DeliveryState) Complete() bool {
	return present(d.CampaignID) && present(d.AdSetID) && present(d.CreativeID) && present(d.AdID)
}

// CheckOrdering verifies that each stored id has all of its predecessors
func (d DeliveryState) CheckOrdering() error {
	chain := []struct {
		name string
		id   *string
	}{
		{"campaignId", d.CampaignID},
		{"adSetId", d.AdSetID},
		{"creativeId", d.CreativeID},
		{"adId", d.AdID},
	}
	missing := ""
	for _, link := range chain {
		if !present(link.id) {
			if missing == "" {
				missing = link.name
			}
			continue
		}
		if missing != "" {
			return fmt.Errorf("%w: %s is set while %s is missing", ErrDeliveryOrderViolated, link.name, missing)
		}
	}
	return nil
}

// Patch encodes the non-nil fields as a shallow merge patch
func (d DeliveryState) Patch() (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delivery patch: %w", err)
	}
	patch := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, fmt.Errorf("failed to encode delivery patch: %w", err)
	}
	return patch, nil
}
