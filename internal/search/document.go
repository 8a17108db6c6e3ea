package search

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/mingle/internal/event"
)

// Mapper errors
var (
	ErrMissingEventID   = errors.New("event ID is required")
	ErrMissingEventName = errors.New("event name is required")
)

// Document is the shape of an event record in the search index. Only the
// fields the index searches or filters on are pushed; the full record stays
// in Postgres and is re-read by ID after a search.
type Document struct {
	ObjectID         string   `json:"objectID"`
	EventID          int64    `json:"event_id"`
	EventName        string   `json:"event_name"`
	ShortDescription string   `json:"short_description"`
	Categories       []string `json:"categories"`
	LocationName     string   `json:"location_name"`
	Status           string   `json:"status"`
	Date             string   `json:"date"` // ISO 8601 date
}

// MapEvent converts a domain event to its index document.
func MapEvent(e *event.Event) (Document, error) {
	if e == nil || e.ID <= 0 {
		return Document{}, ErrMissingEventID
	}
	if strings.TrimSpace(e.Name) == "" {
		return Document{}, ErrMissingEventName
	}

	categories := e.Categories
	if categories == nil {
		categories = []string{}
	}

	return Document{
		ObjectID:         "event:" + strconv.FormatInt(e.ID, 10),
		EventID:          e.ID,
		EventName:        e.Name,
		ShortDescription: e.ShortDescription,
		Categories:       categories,
		LocationName:     e.LocationName,
		Status:           e.Status,
		Date:             e.Date.UTC().Format(time.RFC3339),
	}, nil
}
