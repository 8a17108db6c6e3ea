package ranking

import "time"

const secondsPerDay = 86400

// Filter applies every present sub-filter as an AND-combined predicate,
// short-circuiting per event on the first failing predicate. Predicate order
// does not affect the result. The input slice is not mutated; the returned
// slice shares no backing array with it.
func Filter(events []Ranked, spec FilterSpec, referenceDate time.Time) []Ranked {
	out := make([]Ranked, 0, len(events))
	for _, e := range events {
		if !passRadius(e, spec.Radius) {
			continue
		}
		if !passDaysToEvent(e, spec.DaysToEvent, referenceDate) {
			continue
		}
		if !passParticipants(e, spec.Participants) {
			continue
		}
		if !passStatus(e, spec.Status) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// passRadius keeps events at distance <= value for LESS and >= value for
// MORE. Comparisons against a NaN distance are false, so events with
// unresolved coordinates fail every radius filter.
func passRadius(e Ranked, f *NumericFilter) bool {
	if f == nil {
		return true
	}
	if f.Comparison == Less {
		return e.DistanceKm <= f.Value
	}
	return e.DistanceKm >= f.Value
}

// passDaysToEvent filters on the signed second difference between the event
// date and the reference date. LESS admits only events from the reference
// instant up to value days out; past events always fail it. MORE admits
// everything at or beyond value days, inclusive at the boundary, so
// value == 0 admits an event happening exactly now.
func passDaysToEvent(e Ranked, f *NumericFilter, referenceDate time.Time) bool {
	if f == nil {
		return true
	}
	diffSeconds := e.Date.Sub(referenceDate).Seconds()
	windowSeconds := f.Value * secondsPerDay
	if f.Comparison == Less {
		return diffSeconds >= 0 && diffSeconds <= windowSeconds
	}
	return diffSeconds >= windowSeconds
}

func passParticipants(e Ranked, f *NumericFilter) bool {
	if f == nil {
		return true
	}
	count := float64(e.ParticipantCount)
	if f.Comparison == Less {
		return count <= f.Value
	}
	return count >= f.Value
}

// passStatus keeps events whose status is a member of the set (OR semantics
// across the set). An empty set filters nothing.
func passStatus(e Ranked, statuses []string) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if e.EventStatus == s {
			return true
		}
	}
	return false
}
