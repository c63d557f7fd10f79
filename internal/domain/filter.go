package domain

import "signalhub/pkg/validator"

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

type GeoFilter struct {
	Latitude  float64 `json:"latitude" validate:"lat"`
	Longitude float64 `json:"longitude" validate:"lng"`
	RadiusKM  float64 `json:"radius_km" validate:"radius_km"`
}

type Filter struct {
	Page   int          `json:"page" validate:"min=1"`
	Limit  int          `json:"limit" validate:"min=1,max=100"`
	Type   ReportType   `json:"type,omitempty" validate:"omitempty,oneof=road electricity waste water other"`
	Status ReportStatus `json:"status,omitempty" validate:"omitempty,oneof=new in_progress resolved"`
	Geo    *GeoFilter   `json:"geo,omitempty"`
}

func (f Filter) Validate() []string {
	return validator.Messages(f)
}

type ReportPage struct {
	Reports []*Report `json:"reports"`
	Total   int64     `json:"total"`
	Page    int       `json:"page"`
	Limit   int       `json:"limit"`
}
