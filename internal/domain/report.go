package domain

import (
	"encoding/json"
	"time"

	"signalhub/pkg/validator"

	"github.com/google/uuid"
)

type ReportType string

const (
	ReportRoad        ReportType = "road"
	ReportElectricity ReportType = "electricity"
	ReportWaste       ReportType = "waste"
	ReportWater       ReportType = "water"
	ReportOther       ReportType = "other"
)

type ReportStatus string

const (
	StatusNew        ReportStatus = "new"
	StatusInProgress ReportStatus = "in_progress"
	StatusResolved   ReportStatus = "resolved"
)

// Report is a citizen-submitted issue. ID, OwnerID and CreatedAt are fixed at
// creation. Any valid Status may replace any other; who may change it is
// decided by CanMutate, not by a transition table.
type Report struct {
	ID          uuid.UUID    `json:"id"`
	Type        ReportType   `json:"type" validate:"required,oneof=road electricity waste water other"`
	Description string       `json:"description" validate:"required,trimmed_min=10,trimmed_max=500"`
	Latitude    float64      `json:"latitude" validate:"lat"`  // -90..90
	Longitude   float64      `json:"longitude" validate:"lng"` // -180..180
	PhotoURL    *string      `json:"photo_url" validate:"omitempty,max=1024,url,image_url"`
	Status      ReportStatus `json:"status" validate:"required,oneof=new in_progress resolved"`
	OwnerID     string       `json:"user_id" validate:"required"`
	CreatedAt   time.Time    `json:"created_at"`
}

type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// Validate checks every rule and returns all failures at once.
func (r *Report) Validate() ValidationResult {
	errs := validator.Messages(r)
	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

func (r *Report) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func ReportFromJSON(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Clone returns a deep copy, so cached views never alias caller data.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	if r.PhotoURL != nil {
		u := *r.PhotoURL
		c.PhotoURL = &u
	}
	return &c
}
