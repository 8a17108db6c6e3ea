package ranking

import "errors"

// Errors returned by the pipeline. Both map to client errors at the API
// boundary; everything else the pipeline does is total.
var (
	// ErrInvalidPageSpec is returned when take <= 0 or skip < 0. A
	// non-positive take would make the page window empty forever, so it is
	// reported instead of silently defaulted.
	ErrInvalidPageSpec = errors.New("invalid page spec: take must be positive and skip non-negative")

	// ErrInvalidCoordinate is returned when the viewer's longitude/latitude
	// is not a finite geographic coordinate. Rejecting it up front keeps NaN
	// distances from silently corrupting filter and sort results.
	ErrInvalidCoordinate = errors.New("invalid viewer coordinate")
)

// Comparison tags a filter or sort with a direction. The same two tags are
// reused across every numeric filter and every sort key; what each tag means
// depends on where it appears:
//
//	radius filter:       LESS keeps distance <= value, MORE keeps distance >= value
//	days filter:         LESS keeps 0 <= days-until <= value, MORE keeps days-until >= value
//	participants filter: LESS keeps count <= value, MORE keeps count >= value
//	DISTANCE sort:       ascending (nearest first) unless MORE
//	DAYS_TO_EVENT sort:  ascending (soonest first) unless MORE
//	POPULARITY sort:     descending (most joined first) unless LESS
//
// The POPULARITY default is inverted relative to the other sorts on purpose:
// "sort by popularity" means most popular first, and MORE keeps that reading
// ("more popular first") consistent with the participants filter's "MORE
// means at least this many".
type Comparison string

const (
	// More selects the at-or-above direction for filters and the descending
	// direction for sorts (see the table above for POPULARITY).
	More Comparison = "MORE"

	// Less selects the at-or-below direction for filters and the ascending
	// direction for sorts.
	Less Comparison = "LESS"
)

// SortBy selects the sort key.
type SortBy string

const (
	SortByDistance    SortBy = "DISTANCE"
	SortByPopularity  SortBy = "POPULARITY"
	SortByDaysToEvent SortBy = "DAYS_TO_EVENT"
)

// NumericFilter is one optional threshold predicate. A nil *NumericFilter on
// FilterSpec means the predicate is skipped entirely; a present filter always
// applies, including with Value == 0 (a zero radius keeps only events at the
// viewer's location, it does not disable the filter).
type NumericFilter struct {
	Value      float64    `json:"value"`
	Comparison Comparison `json:"comparison"`
}

// FilterSpec collects the optional AND-combined predicates. Every field is
// independently optional; the zero value filters nothing.
type FilterSpec struct {
	// Radius filters on the annotated distance in kilometers.
	Radius *NumericFilter `json:"radius,omitempty"`

	// DaysToEvent filters on whole days between the reference date and the
	// event date. LESS admits only future events inside the window; MORE's
	// boundary at exactly zero days is inclusive.
	DaysToEvent *NumericFilter `json:"days_to_event,omitempty"`

	// Participants filters on the externally resolved participant count.
	Participants *NumericFilter `json:"participants,omitempty"`

	// Status keeps events whose lifecycle status is in the set. Empty means
	// no status filtering.
	Status []string `json:"status,omitempty"`

	// Categories is carried for the upstream search-index query and is
	// already applied before candidates reach the pipeline; Filter ignores it.
	Categories []string `json:"categories,omitempty"`
}

// SortSpec selects the ordering. A zero SortBy leaves the input order
// untouched.
type SortSpec struct {
	SortBy     SortBy     `json:"sort_by,omitempty"`
	Comparison Comparison `json:"comparison,omitempty"`
}

// PageSpec selects the result window [Skip*Take, Skip*Take+Take).
type PageSpec struct {
	Skip int `json:"skip"`
	Take int `json:"take"`
}

// Validate reports ErrInvalidPageSpec for windows that cannot advance.
func (p PageSpec) Validate() error {
	if p.Take <= 0 || p.Skip < 0 {
		return ErrInvalidPageSpec
	}
	return nil
}
