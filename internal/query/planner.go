// Package query turns a report Filter into a deterministic, countable window
// and the predicate that decides filter membership for a single report.
package query

import (
	"math"
	"sort"

	"signalhub/internal/domain"
)

// EarthRadiusKM is the mean radius used by the spherical approximation.
const EarthRadiusKM = 6371.0

// Plan is the executable form of a Filter. Ordering is always created_at DESC,
// id ASC; the predicate is applied before Offset/Limit.
type Plan struct {
	Filter domain.Filter
	Offset int
	Limit  int
}

func New(f domain.Filter) Plan {
	return Plan{
		Filter: f,
		Offset: (f.Page - 1) * f.Limit,
		Limit:  f.Limit,
	}
}

// Match reports whether r belongs to the filtered set, ignoring pagination.
func (p Plan) Match(r *domain.Report) bool {
	return Matches(p.Filter, r)
}

func Matches(f domain.Filter, r *domain.Report) bool {
	if r == nil {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Geo != nil && !WithinRadius(*f.Geo, r.Latitude, r.Longitude) {
		return false
	}
	return true
}

// WithinRadius is inclusive: a point exactly RadiusKM away matches.
func WithinRadius(g domain.GeoFilter, lat, lng float64) bool {
	return Haversine(g.Latitude, g.Longitude, lat, lng) <= g.RadiusKM
}

// Haversine returns the great-circle distance in km between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := deg2rad(lat2 - lat1)
	dLon := deg2rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

func deg2rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Less orders reports newest first with id as tie breaker.
func Less(a, b *domain.Report) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// Apply runs the plan over an in-memory set: filter, order, count, slice. The
// count and the slice come from the same filtered set.
func (p Plan) Apply(all []*domain.Report) ([]*domain.Report, int64) {
	matched := make([]*domain.Report, 0, len(all))
	for _, r := range all {
		if p.Match(r) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return Less(matched[i], matched[j]) })

	total := int64(len(matched))
	if p.Offset >= len(matched) {
		return []*domain.Report{}, total
	}
	end := p.Offset + p.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[p.Offset:end], total
}
