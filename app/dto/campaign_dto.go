package dto

import (
	"time"
)

// CreateCampaignRequest represents the request to create a new campaign
type CreateCampaignRequest struct {
	CustomerID     uint       `json:"-"`
	Title          *string    `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Goal           *string    `json:"goal,omitempty" validate:"omitempty,oneof=lead_generation traffic awareness engagement sales"`
	DailyBudget    *int64     `json:"daily_budget,omitempty" validate:"omitempty,gt=0"`
	Currency       *string    `json:"currency,omitempty" validate:"omitempty,len=3"`
	Countries      []string   `json:"countries,omitempty" validate:"omitempty,dive,len=2"`
	AgeMin         *int       `json:"age_min,omitempty" validate:"omitempty,min=13,max=65"`
	AgeMax         *int       `json:"age_max,omitempty" validate:"omitempty,min=13,max=65"`
	Genders        []int      `json:"genders,omitempty" validate:"omitempty,dive,oneof=1 2"`
	DestinationURL *string    `json:"destination_url,omitempty" validate:"omitempty,url"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

// CreateCampaignResponse represents the response to create a new campaign
type CreateCampaignResponse struct {
	Message   string `json:"message"`
	ID        uint   `json:"id"`
	UUID      string `json:"uuid"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// UpdateCampaignRequest patches the campaign specification. Nil fields are kept.
type UpdateCampaignRequest struct {
	UUID           string     `json:"-"`
	CustomerID     uint       `json:"-"`
	Title          *string    `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Goal           *string    `json:"goal,omitempty" validate:"omitempty,oneof=lead_generation traffic awareness engagement sales"`
	DailyBudget    *int64     `json:"daily_budget,omitempty" validate:"omitempty,gt=0"`
	Currency       *string    `json:"currency,omitempty" validate:"omitempty,len=3"`
	Countries      []string   `json:"countries,omitempty" validate:"omitempty,dive,len=2"`
	AgeMin         *int       `json:"age_min,omitempty" validate:"omitempty,min=13,max=65"`
	AgeMax         *int       `json:"age_max,omitempty" validate:"omitempty,min=13,max=65"`
	Genders        []int      `json:"genders,omitempty" validate:"omitempty,dive,oneof=1 2"`
	DestinationURL *string    `json:"destination_url,omitempty" validate:"omitempty,url"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

// UpdateCampaignResponse represents the response to update an existing campaign
type UpdateCampaignResponse struct {
	Message string `json:"message"`
}

// GetCampaignRequest represents the request to get an existing campaign
type GetCampaignRequest struct {
	UUID       string `json:"-"`
	CustomerID uint   `json:"-"`
}

// GetCampaignResponse represents the campaign specification in responses
type GetCampaignResponse struct {
	UUID           string     `json:"uuid"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	Title          *string    `json:"title,omitempty"`
	Goal           *string    `json:"goal,omitempty"`
	DailyBudget    *int64     `json:"daily_budget,omitempty"`
	Currency       *string    `json:"currency,omitempty"`
	Countries      []string   `json:"countries,omitempty"`
	AgeMin         *int       `json:"age_min,omitempty"`
	AgeMax         *int       `json:"age_max,omitempty"`
	Genders        []int      `json:"genders,omitempty"`
	DestinationURL *string    `json:"destination_url,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	DeliveryStage  string     `json:"delivery_stage"`
}

// DeleteCampaignRequest represents the request to delete a campaign
type DeleteCampaignRequest struct {
	UUID       string `json:"-"`
	CustomerID uint   `json:"-"`
}

// DeleteCampaignResponse represents the response to delete a campaign
type DeleteCampaignResponse struct {
	Message string `json:"message"`
}
