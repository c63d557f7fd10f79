package query_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/internal/domain"
	"signalhub/internal/query"
)

func report(i int, typ domain.ReportType, st domain.ReportStatus, lat, lng float64) *domain.Report {
	return &domain.Report{
		ID:          uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", i)),
		Type:        typ,
		Description: "some description here",
		Latitude:    lat,
		Longitude:   lng,
		Status:      st,
		OwnerID:     "u",
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

func TestNew_Offset(t *testing.T) {
	p := query.New(domain.Filter{Page: 3, Limit: 20})
	assert.Equal(t, 40, p.Offset)
	assert.Equal(t, 20, p.Limit)
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Paris -> London, ~343.5 km on a 6371 km sphere.
	d := query.Haversine(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 343.5, d, 1.0)
	assert.Zero(t, query.Haversine(10, 10, 10, 10))
}

func TestWithinRadius_InclusiveBoundary(t *testing.T) {
	center := domain.GeoFilter{Latitude: 0, Longitude: 0}
	// one degree of latitude on the sphere
	exact := query.Haversine(0, 0, 1, 0)

	center.RadiusKM = exact
	assert.True(t, query.WithinRadius(center, 1, 0))

	center.RadiusKM = exact - 1e-9
	assert.False(t, query.WithinRadius(center, 1, 0))
}

func TestMatches_CombinesFiltersWithAnd(t *testing.T) {
	geo := &domain.GeoFilter{Latitude: 48.85, Longitude: 2.35, RadiusKM: 5}
	f := domain.Filter{Page: 1, Limit: 10, Type: domain.ReportRoad, Status: domain.StatusNew, Geo: geo}

	assert.True(t, query.Matches(f, report(1, domain.ReportRoad, domain.StatusNew, 48.86, 2.36)))
	assert.False(t, query.Matches(f, report(2, domain.ReportWaste, domain.StatusNew, 48.86, 2.36)))
	assert.False(t, query.Matches(f, report(3, domain.ReportRoad, domain.StatusResolved, 48.86, 2.36)))
	assert.False(t, query.Matches(f, report(4, domain.ReportRoad, domain.StatusNew, 45.76, 4.84)))
	assert.False(t, query.Matches(f, nil))
	assert.True(t, query.Matches(domain.Filter{Page: 1, Limit: 1}, report(5, domain.ReportOther, domain.StatusResolved, -10, 100)))
}

func TestPlanApply_OrderAndWindow(t *testing.T) {
	var all []*domain.Report
	for i := 1; i <= 7; i++ {
		all = append(all, report(i, domain.ReportRoad, domain.StatusNew, 0, 0))
	}
	// tie on created_at, broken by id ascending
	tie := report(8, domain.ReportRoad, domain.StatusNew, 0, 0)
	tie.CreatedAt = all[6].CreatedAt
	all = append(all, tie)

	items, total := query.New(domain.Filter{Page: 1, Limit: 3}).Apply(all)
	require.Len(t, items, 3)
	assert.EqualValues(t, 8, total)
	assert.Equal(t, all[6].ID, items[0].ID)
	assert.Equal(t, tie.ID, items[1].ID)
	assert.Equal(t, all[5].ID, items[2].ID)

	items, total = query.New(domain.Filter{Page: 3, Limit: 3}).Apply(all)
	assert.Len(t, items, 2)
	assert.EqualValues(t, 8, total)
}

func TestPlanApply_PageBeyondLast(t *testing.T) {
	all := []*domain.Report{
		report(1, domain.ReportRoad, domain.StatusNew, 0, 0),
		report(2, domain.ReportWater, domain.StatusNew, 0, 0),
	}
	items, total := query.New(domain.Filter{Page: 5, Limit: 10}).Apply(all)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.EqualValues(t, 2, total)
}

func TestPlanApply_CountIsPostFilter(t *testing.T) {
	all := []*domain.Report{
		report(1, domain.ReportRoad, domain.StatusNew, 48.85, 2.35),
		report(2, domain.ReportRoad, domain.StatusNew, 48.86, 2.35),
		report(3, domain.ReportRoad, domain.StatusNew, 40.00, 2.35),
	}
	f := domain.Filter{Page: 1, Limit: 1, Geo: &domain.GeoFilter{Latitude: 48.85, Longitude: 2.35, RadiusKM: 10}}
	items, total := query.New(f).Apply(all)
	assert.Len(t, items, 1)
	assert.EqualValues(t, 2, total)
	assert.LessOrEqual(t, int64(len(items)), total)
}
