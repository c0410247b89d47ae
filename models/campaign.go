package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/adbridge/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignStatus represents the status of a local campaign
type CampaignStatus string

const (
	CampaignStatusInitiated  CampaignStatus = "initiated"
	CampaignStatusInProgress CampaignStatus = "in-progress"
	CampaignStatusPublished  CampaignStatus = "published"
	CampaignStatusArchived   CampaignStatus = "archived"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusInitiated, CampaignStatusInProgress,
		CampaignStatusPublished, CampaignStatusArchived:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// Campaign goals understood by the ad platform pipeline
const (
	CampaignGoalLeadGeneration = "lead_generation"
	CampaignGoalTraffic        = "traffic"
	CampaignGoalAwareness      = "awareness"
	CampaignGoalEngagement     = "engagement"
	CampaignGoalSales          = "sales"
)

// CampaignSpec represents the JSON specification assembled by the campaign wizard
type CampaignSpec struct {
	Title *string `json:"title,omitempty"`
	Goal  *string `json:"goal,omitempty"`

	// Budget in minor currency units per day
	DailyBudget *int64  `json:"daily_budget,omitempty"`
	Currency    *string `json:"currency,omitempty"`

	// Target audience
	Countries []string `json:"countries,omitempty"`
	AgeMin    *int     `json:"age_min,omitempty"`
	AgeMax    *int     `json:"age_max,omitempty"`
	Genders   []int    `json:"genders,omitempty"` // 1 male, 2 female

	DestinationURL *string    `json:"destination_url,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

// Value implements the driver.Valuer interface for CampaignSpec
func (s CampaignSpec) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for CampaignSpec
func (s *CampaignSpec) Scan(value any) error {
	if value == nil {
		*s = CampaignSpec{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CampaignSpec", value)
	}

	return json.Unmarshal(bytes, s)
}

// CampaignState is the generic per-step state container of a campaign.
// Each top-level key belongs to one wizard step or subsystem.
type CampaignState map[string]json.RawMessage

// Value implements the driver.Valuer interface for CampaignState
func (s CampaignState) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]json.RawMessage(s))
}

// Scan implements the sql.Scanner interface for CampaignState
func (s *CampaignState) Scan(value any) error {
	if value == nil {
		*s = CampaignState{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CampaignState", value)
	}

	m := map[string]json.RawMessage{}
	if len(bytes) > 0 {
		if err := json.Unmarshal(bytes, &m); err != nil {
			return err
		}
	}
	*s = CampaignState(m)
	return nil
}

// Campaign represents a local advertising campaign
type Campaign struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	CustomerID uint           `gorm:"not null;index:idx_campaigns_customer_id" json:"customer_id"`
	Status     CampaignStatus `gorm:"size:32;not null;index:idx_campaigns_status" json:"status"`
	Spec       CampaignSpec   `gorm:"type:jsonb;not null" json:"spec"`
	State      CampaignState  `gorm:"type:jsonb;not null" json:"state"`
	CreatedAt  time.Time      `gorm:"not null;index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusInitiated
	}
	if c.State == nil {
		c.State = CampaignState{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// IsEditable checks if the campaign spec can still be edited
func (c *Campaign) IsEditable() bool {
	return c.Status == CampaignStatusInitiated ||
		c.Status == CampaignStatusInProgress
}

// DeliveryState decodes the delivery record stored in the state container
func (c *Campaign) DeliveryState() (DeliveryState, error) {
	var ds DeliveryState
	raw, ok := c.State[DeliveryStateKey]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return ds, nil
	}
	if err := json.Unmarshal(raw, &ds); err != nil {
		return ds, fmt.Errorf("failed to decode delivery state: %w", err)
	}
	return ds, nil
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID            *uint           `json:"id,omitempty"`
	UUID          *uuid.UUID      `json:"uuid,omitempty"`
	CustomerID    *uint           `json:"customer_id,omitempty"`
	Status        *CampaignStatus `json:"status,omitempty"`
	CreatedAfter  *time.Time      `json:"created_after,omitempty"`
	CreatedBefore *time.Time      `json:"created_before,omitempty"`
}
