package ranking

import (
	"math"
	"sort"
)

// Sort returns a new ordering of events according to spec. The sort is
// stable: events with equal keys keep their input order. An absent or
// unrecognised SortBy returns a copy in the original order, so the
// pass-through is idempotent. The input slice is never reordered in place.
func Sort(events []Ranked, spec SortSpec) []Ranked {
	out := make([]Ranked, len(events))
	copy(out, events)

	less := comparator(spec)
	if less == nil {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// comparator builds the strict-weak ordering for the chosen key, or nil for
// pass-through. Direction defaults per key: distance and days ascending,
// popularity descending (see the Comparison decision table).
func comparator(spec SortSpec) func(a, b Ranked) bool {
	switch spec.SortBy {
	case SortByDistance:
		if spec.Comparison == More {
			return func(a, b Ranked) bool { return greaterFloat(a.DistanceKm, b.DistanceKm) }
		}
		return func(a, b Ranked) bool { return lessFloat(a.DistanceKm, b.DistanceKm) }
	case SortByPopularity:
		if spec.Comparison == Less {
			return func(a, b Ranked) bool { return a.ParticipantCount < b.ParticipantCount }
		}
		return func(a, b Ranked) bool { return a.ParticipantCount > b.ParticipantCount }
	case SortByDaysToEvent:
		if spec.Comparison == More {
			return func(a, b Ranked) bool { return b.Date.Before(a.Date) }
		}
		return func(a, b Ranked) bool { return a.Date.Before(b.Date) }
	default:
		return nil
	}
}

// lessFloat orders finite values normally and pushes NaN after everything,
// regardless of sort direction, so unresolved distances always land at the
// tail of a distance-sorted page.
func lessFloat(a, b float64) bool {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	if aNaN {
		return false
	}
	if bNaN {
		return true
	}
	return a < b
}

// greaterFloat is the descending counterpart of lessFloat, also NaN-last.
func greaterFloat(a, b float64) bool {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	if aNaN {
		return false
	}
	if bNaN {
		return true
	}
	return a > b
}
