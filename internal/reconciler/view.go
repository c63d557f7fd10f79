package reconciler

import (
	"signalhub/internal/domain"
	"signalhub/internal/query"

	"github.com/google/uuid"
)

// View is one page of reports as a query for Filter returned it, kept fresh
// by folding change events in. Generation identifies the filter epoch.
type View struct {
	Filter     domain.Filter    `json:"filter"`
	Generation uint64           `json:"generation"`
	Items      []*domain.Report `json:"items"`
	Total      int64            `json:"total"`
}

func (v View) clone() View {
	out := v
	out.Items = make([]*domain.Report, len(v.Items))
	for i, r := range v.Items {
		out.Items[i] = r.Clone()
	}
	if v.Filter.Geo != nil {
		g := *v.Filter.Geo
		out.Filter.Geo = &g
	}
	return out
}

func (v *View) indexOf(id uuid.UUID) int {
	for i, r := range v.Items {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (v *View) removeAt(i int) {
	v.Items = append(v.Items[:i], v.Items[i+1:]...)
	v.decrement()
}

func (v *View) decrement() {
	if v.Total > 0 {
		v.Total--
	}
}

// Fold applies ev to v and reports whether v changed. Only page 1 can place
// a new row; deeper pages just count it, since its offset is unknown
// without a re-query. Count drift from rows moving into the filter through
// an update is left for the next refresh.
func Fold(v *View, ev domain.ChangeEvent) bool {
	rep := ev.Report
	if rep == nil {
		return false
	}

	switch ev.Kind {
	case domain.EventInsert:
		if !query.Matches(v.Filter, rep) {
			return false
		}
		if v.Filter.Page > 1 {
			v.Total++
			return true
		}
		if i := v.indexOf(rep.ID); i >= 0 {
			v.Items[i] = rep.Clone()
			return true
		}
		items := make([]*domain.Report, 0, len(v.Items)+1)
		items = append(items, rep.Clone())
		items = append(items, v.Items...)
		if v.Filter.Limit > 0 && len(items) > v.Filter.Limit {
			items = items[:v.Filter.Limit]
		}
		v.Items = items
		v.Total++
		return true

	case domain.EventUpdate:
		i := v.indexOf(rep.ID)
		if i < 0 {
			return false
		}
		if query.Matches(v.Filter, rep) {
			v.Items[i] = rep.Clone()
		} else {
			v.removeAt(i)
		}
		return true

	case domain.EventDelete:
		if i := v.indexOf(rep.ID); i >= 0 {
			v.removeAt(i)
			return true
		}
		if query.Matches(v.Filter, rep) && v.Total > 0 {
			v.decrement()
			return true
		}
		return false
	}
	return false
}
