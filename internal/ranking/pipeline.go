package ranking

import (
	"time"

	"github.com/onnwee/mingle/internal/event"
	"github.com/onnwee/mingle/internal/geo"
)

// Ranked is a candidate annotated with its distance to the viewer in
// kilometers, rounded to one decimal place. It is a derived, transient
// projection: the pipeline discards it after the response is serialized.
type Ranked struct {
	event.Candidate
	DistanceKm float64 `json:"distance"`
}

// Annotate computes each candidate's distance to the viewer. The input slice
// is never mutated. Viewer coordinates must be finite and in range or
// ErrInvalidCoordinate is returned; candidates with non-finite coordinates
// are kept but carry a NaN distance, which fails every radius predicate and
// sorts after all finite distances.
func Annotate(candidates []event.Candidate, viewerLon, viewerLat float64) ([]Ranked, error) {
	if !geo.ValidCoordinate(viewerLon, viewerLat) {
		return nil, ErrInvalidCoordinate
	}

	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{
			Candidate:  c,
			DistanceKm: geo.RoundKm(geo.DistanceKm(viewerLon, viewerLat, c.Longitude, c.Latitude)),
		}
	}
	return ranked, nil
}

// ReadEvents runs the full pipeline in its fixed order:
// annotate -> filter -> sort -> paginate.
//
// Filtering before sorting avoids comparator work on excluded events, and
// paginating last keeps page windows consistent with the final ordering. An
// empty candidate list is valid and yields an empty, non-error result.
func ReadEvents(candidates []event.Candidate, viewerLon, viewerLat float64, filter FilterSpec, sort SortSpec, page PageSpec, referenceDate time.Time) ([]Ranked, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	ranked, err := Annotate(candidates, viewerLon, viewerLat)
	if err != nil {
		return nil, err
	}

	ranked = Filter(ranked, filter, referenceDate)
	ranked = Sort(ranked, sort)
	return Paginate(ranked, page.Skip, page.Take)
}
