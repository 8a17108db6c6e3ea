package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/mingle/internal/event"
	"github.com/onnwee/mingle/internal/middleware"
	"github.com/onnwee/mingle/internal/ranking"
)

// Default page size when the client omits take.
const DefaultPageTake = 10

// EventSearcher resolves a keyword query against the external search index
// and returns the matching event IDs. Implementations that cannot reach the
// index should return an error so the handler can fall back to the database.
type EventSearcher interface {
	Search(ctx context.Context, keyword string, categories []string) ([]int64, error)
}

// CoordinatesDTO carries the viewer's position.
type CoordinatesDTO struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// NumericFilterDTO is the wire shape of a threshold filter. The legacy
// clients send the direction under "isMoreOrLess"; newer ones send
// "comparison". Either is accepted.
type NumericFilterDTO struct {
	Value        float64 `json:"value"`
	IsMoreOrLess string  `json:"isMoreOrLess,omitempty"`
	Comparison   string  `json:"comparison,omitempty"`
}

func (f *NumericFilterDTO) direction() string {
	if f.Comparison != "" {
		return f.Comparison
	}
	return f.IsMoreOrLess
}

// FiltersDTO is the wire shape of the filter block. Every field is optional;
// an absent field skips that predicate entirely.
type FiltersDTO struct {
	Radius       *NumericFilterDTO `json:"radius,omitempty"`
	DaysToEvent  *NumericFilterDTO `json:"daysToEvent,omitempty"`
	Participants *NumericFilterDTO `json:"participants,omitempty"`
	Status       []string          `json:"status,omitempty"`
	Categories   []string          `json:"categories,omitempty"`
}

// SortDTO is the wire shape of the sort block.
type SortDTO struct {
	SortBy       string `json:"sortBy,omitempty"`
	IsMoreOrLess string `json:"isMoreOrLess,omitempty"`
	Comparison   string `json:"comparison,omitempty"`
}

func (s *SortDTO) direction() string {
	if s.Comparison != "" {
		return s.Comparison
	}
	return s.IsMoreOrLess
}

// ReadEventsRequest is the body of POST /events/read and /events/search.
// skip and take arrive as strings, matching the original clients; todaysDate
// is an ISO-8601 date. Keyword is honoured only by the search endpoint.
type ReadEventsRequest struct {
	UserCoordinates CoordinatesDTO `json:"userCoordinates"`
	Filters         *FiltersDTO    `json:"filters,omitempty"`
	Sort            *SortDTO       `json:"sort,omitempty"`
	Skip            string         `json:"skip,omitempty"`
	Take            string         `json:"take,omitempty"`
	TodaysDate      string         `json:"todaysDate,omitempty"`
	Keyword         string         `json:"keyword,omitempty"`
}

// ReadEventsResponse wraps a page of ranked events.
type ReadEventsResponse struct {
	Events []ranking.Ranked `json:"events"`
	Skip   int              `json:"skip"`
	Take   int              `json:"take"`
}

// ReadHandlers holds dependencies for the event listing endpoints.
type ReadHandlers struct {
	eventRepo event.Repository
	searcher  EventSearcher
	now       func() time.Time
}

// NewReadHandlers creates a new ReadHandlers instance. searcher may be nil;
// keyword queries then run against the database directly.
func NewReadHandlers(eventRepo event.Repository, searcher EventSearcher) *ReadHandlers {
	return &ReadHandlers{
		eventRepo: eventRepo,
		searcher:  searcher,
		now:       time.Now,
	}
}

// parseComparison maps a wire direction string onto the ranking comparison
// tag. Empty defaults to LESS, which is the neutral direction for every
// filter and the nearest-first/soonest-first direction for sorts.
func parseComparison(raw string) (ranking.Comparison, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "LESS":
		return ranking.Less, true
	case "MORE":
		return ranking.More, true
	default:
		return "", false
	}
}

// parsePageSpec converts the string-typed skip/take of the wire format.
// Absent skip defaults to 0 and absent take to DefaultPageTake; anything
// non-numeric or out of range is an invalid page spec.
func parsePageSpec(skipRaw, takeRaw string) (ranking.PageSpec, error) {
	page := ranking.PageSpec{Skip: 0, Take: DefaultPageTake}
	if skipRaw != "" {
		skip, err := strconv.Atoi(skipRaw)
		if err != nil {
			return page, ranking.ErrInvalidPageSpec
		}
		page.Skip = skip
	}
	if takeRaw != "" {
		take, err := strconv.Atoi(takeRaw)
		if err != nil {
			return page, ranking.ErrInvalidPageSpec
		}
		page.Take = take
	}
	return page, page.Validate()
}

// buildFilterSpec converts the wire filter block into the pipeline's spec.
// Returns an error message for unknown comparison tags or status labels.
func buildFilterSpec(dto *FiltersDTO) (ranking.FilterSpec, string) {
	var spec ranking.FilterSpec
	if dto == nil {
		return spec, ""
	}
	for _, pair := range []struct {
		name string
		in   *NumericFilterDTO
		out  **ranking.NumericFilter
	}{
		{"radius", dto.Radius, &spec.Radius},
		{"daysToEvent", dto.DaysToEvent, &spec.DaysToEvent},
		{"participants", dto.Participants, &spec.Participants},
	} {
		if pair.in == nil {
			continue
		}
		cmp, ok := parseComparison(pair.in.direction())
		if !ok {
			return spec, "unknown comparison for " + pair.name + " filter"
		}
		*pair.out = &ranking.NumericFilter{Value: pair.in.Value, Comparison: cmp}
	}
	for _, s := range dto.Status {
		if !event.ValidStatus(s) {
			return spec, "unknown event status: " + s
		}
	}
	spec.Status = dto.Status
	spec.Categories = dto.Categories
	return spec, ""
}

// buildSortSpec converts the wire sort block. An absent block or absent
// sortBy leaves the candidate order untouched.
func buildSortSpec(dto *SortDTO) (ranking.SortSpec, string) {
	var spec ranking.SortSpec
	if dto == nil || dto.SortBy == "" {
		return spec, ""
	}
	switch ranking.SortBy(strings.ToUpper(strings.TrimSpace(dto.SortBy))) {
	case ranking.SortByDistance:
		spec.SortBy = ranking.SortByDistance
	case ranking.SortByPopularity:
		spec.SortBy = ranking.SortByPopularity
	case ranking.SortByDaysToEvent:
		spec.SortBy = ranking.SortByDaysToEvent
	default:
		return spec, "unknown sortBy: " + dto.SortBy
	}
	cmp, ok := parseComparison(dto.direction())
	if !ok {
		return spec, "unknown sort comparison"
	}
	spec.Comparison = cmp
	return spec, ""
}

// parseReferenceDate parses the client's todaysDate. Absent falls back to
// the server clock.
func (h *ReadHandlers) parseReferenceDate(raw string) (time.Time, bool) {
	if raw == "" {
		return h.now().UTC(), true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ReadEvents handles POST /events/read - runs the ranking pipeline over
// candidates matching the category filter.
func (h *ReadHandlers) ReadEvents(w http.ResponseWriter, r *http.Request) {
	h.serveRanked(w, r, false)
}

// SearchEvents handles POST /events/search - like ReadEvents but restricts
// candidates by free-text keyword, resolved through the search index when
// one is configured.
func (h *ReadHandlers) SearchEvents(w http.ResponseWriter, r *http.Request) {
	h.serveRanked(w, r, true)
}

func (h *ReadHandlers) serveRanked(w http.ResponseWriter, r *http.Request, withKeyword bool) {
	var req ReadEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	page, err := parsePageSpec(req.Skip, req.Take)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidPageSpec)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidPageSpec, "skip must be a non-negative integer and take a positive integer")
		return
	}

	filter, errMsg := buildFilterSpec(req.Filters)
	if errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	sortSpec, errMsg := buildSortSpec(req.Sort)
	if errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}

	refDate, ok := h.parseReferenceDate(req.TodaysDate)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "todaysDate must be an ISO-8601 date")
		return
	}

	query := event.CandidateQuery{Categories: filter.Categories}
	if withKeyword && req.Keyword != "" {
		if h.searcher != nil {
			ids, err := h.searcher.Search(r.Context(), req.Keyword, filter.Categories)
			if err != nil {
				slog.WarnContext(r.Context(), "search index unavailable, falling back to database", "error", err)
				query.Keyword = req.Keyword
			} else if len(ids) == 0 {
				h.writeRanked(w, r, []ranking.Ranked{}, page)
				return
			} else {
				query.EventIDs = ids
			}
		} else {
			query.Keyword = req.Keyword
		}
	}

	candidates, err := h.eventRepo.Candidates(r.Context(), query)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load event candidates", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve events")
		return
	}

	ranked, err := ranking.ReadEvents(candidates, req.UserCoordinates.Longitude, req.UserCoordinates.Latitude, filter, sortSpec, page, refDate)
	if err != nil {
		switch {
		case errors.Is(err, ranking.ErrInvalidPageSpec):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidPageSpec)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidPageSpec, "skip must be a non-negative integer and take a positive integer")
		case errors.Is(err, ranking.ErrInvalidCoordinate):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidCoordinate)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidCoordinate, "userCoordinates must be finite geographic coordinates")
		default:
			slog.ErrorContext(r.Context(), "ranking pipeline failed", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve events")
		}
		return
	}

	h.writeRanked(w, r, ranked, page)
}

func (h *ReadHandlers) writeRanked(w http.ResponseWriter, r *http.Request, ranked []ranking.Ranked, page ranking.PageSpec) {
	if ranked == nil {
		ranked = []ranking.Ranked{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(ReadEventsResponse{
		Events: ranked,
		Skip:   page.Skip,
		Take:   page.Take,
	}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode events response", "error", err)
	}
}
