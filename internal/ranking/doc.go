// Package ranking implements the event retrieval pipeline: given a viewer's
// coordinates and a filter/sort/pagination request, it annotates candidate
// events with distance, filters, orders, and slices them.
//
// Basic Usage:
//
//	page, err := ranking.ReadEvents(candidates, viewerLon, viewerLat,
//		ranking.FilterSpec{
//			Radius: &ranking.NumericFilter{Value: 10, Comparison: ranking.Less},
//		},
//		ranking.SortSpec{SortBy: ranking.SortByDistance},
//		ranking.PageSpec{Skip: 0, Take: 20},
//		today,
//	)
//
// Pipeline Order:
//
// The stages always run annotate -> filter -> sort -> paginate. Distance is
// computed first because both the radius filter and the distance sort depend
// on it; pagination runs last so that page windows are taken from the fully
// filtered and ordered list.
//
// Comparison Directions:
//
// The MORE/LESS tags are shared between filters and sorts but mean different
// things per use; the full decision table lives with the Comparison type.
//
// The pipeline is pure: it never mutates its input slice, holds no state
// between calls, and is safe for concurrent use from multiple requests.
package ranking
