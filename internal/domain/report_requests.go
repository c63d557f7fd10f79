package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type CreateReportRequest struct {
	Type        ReportType   `json:"type"`
	Description string       `json:"description"`
	Latitude    *float64     `json:"latitude"`
	Longitude   *float64     `json:"longitude"`
	PhotoURL    *string      `json:"photo_url"`
	Status      ReportStatus `json:"status"`
}

// MissingFields reports absent coordinates, which a zero value cannot express.
func (r CreateReportRequest) MissingFields() []string {
	var out []string
	if r.Latitude == nil {
		out = append(out, "latitude is required")
	}
	if r.Longitude == nil {
		out = append(out, "longitude is required")
	}
	return out
}

func (r CreateReportRequest) ToReport(ownerID string, now time.Time) *Report {
	rep := &Report{
		ID:          uuid.New(),
		Type:        r.Type,
		Description: strings.TrimSpace(r.Description),
		PhotoURL:    normalizePhoto(r.PhotoURL),
		Status:      r.Status,
		OwnerID:     ownerID,
		CreatedAt:   now.UTC(),
	}
	if r.Latitude != nil {
		rep.Latitude = *r.Latitude
	}
	if r.Longitude != nil {
		rep.Longitude = *r.Longitude
	}
	if rep.Status == "" {
		rep.Status = StatusNew
	}
	return rep
}

// UpdateReportRequest is a partial patch. An empty photo_url clears the photo.
type UpdateReportRequest struct {
	Type        *ReportType   `json:"type"`
	Description *string       `json:"description"`
	Latitude    *float64      `json:"latitude"`
	Longitude   *float64      `json:"longitude"`
	PhotoURL    *string       `json:"photo_url"`
	Status      *ReportStatus `json:"status"`
}

// Apply merges the patch into a copy of current. Identity fields are kept.
func (p UpdateReportRequest) Apply(current *Report) *Report {
	merged := current.Clone()
	if p.Type != nil {
		merged.Type = *p.Type
	}
	if p.Description != nil {
		merged.Description = strings.TrimSpace(*p.Description)
	}
	if p.Latitude != nil {
		merged.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		merged.Longitude = *p.Longitude
	}
	if p.PhotoURL != nil {
		merged.PhotoURL = normalizePhoto(p.PhotoURL)
	}
	if p.Status != nil {
		merged.Status = *p.Status
	}
	return merged
}

func normalizePhoto(u *string) *string {
	if u == nil {
		return nil
	}
	s := strings.TrimSpace(*u)
	if s == "" {
		return nil
	}
	return &s
}
