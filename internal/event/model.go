// Package event provides models and repositories for events and the candidate
// snapshots consumed by the ranking pipeline.
package event

import "time"

// Lifecycle status labels for events.
const (
	StatusUpcoming  = "UPCOMING"
	StatusOngoing   = "ONGOING"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
)

// ValidStatuses lists every recognised lifecycle status.
var ValidStatuses = []string{StatusUpcoming, StatusOngoing, StatusCompleted, StatusCancelled}

// Category codes mirror user preference codes; events are tagged with one or
// more of these and the search index filters on them upstream of ranking.
var ValidCategories = []string{"GM", "MV", "DC", "CL", "BB", "NT", "FB"}

// Location is an optional structured place reference attached to an event.
type Location struct {
	ID      int64  `json:"location_id,omitempty"`
	Suburb  string `json:"suburb"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Price is an optional entry fee with its currency short name.
type Price struct {
	Fee      float64 `json:"fee"`
	Currency string  `json:"currency"`
}

// Creator identifies the user who created an event.
type Creator struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Candidate is an immutable per-event snapshot handed to the ranking
// pipeline. Creator, location, image, price, status, and participant count
// are already resolved by the repository or search-index query that produced
// the list; the pipeline never goes back to storage.
//
// Image, Price, and Location are nil when the event has none.
type Candidate struct {
	EventID          int64     `json:"event_id"`
	EventName        string    `json:"event_name"`
	Date             time.Time `json:"date"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	Longitude        float64   `json:"longitude"`
	Latitude         float64   `json:"latitude"`
	LocationName     string    `json:"location_name"`
	Location         *Location `json:"location,omitempty"`
	ShortDescription string    `json:"short_description"`
	EventImage       *string   `json:"event_image,omitempty"`
	EventPrice       *Price    `json:"event_price,omitempty"`
	EventStatus      string    `json:"event_status"`
	EventCreator     Creator   `json:"event_creator"`
	ParticipantCount int       `json:"participants"`
}

// Event is the full mutable record behind a candidate snapshot. The extra
// fields (long description, categories, timestamps) are not needed by the
// ranking pipeline and stay out of Candidate.
type Event struct {
	ID               int64     `json:"event_id"`
	Name             string    `json:"event_name"`
	Categories       []string  `json:"categories"`
	Date             time.Time `json:"date"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	Longitude        float64   `json:"longitude"`
	Latitude         float64   `json:"latitude"`
	LocationName     string    `json:"location_name"`
	Location         *Location `json:"location,omitempty"`
	ShortDescription string    `json:"short_description"`
	Description      string    `json:"description"`
	Image            *string   `json:"event_image,omitempty"`
	Price            *Price    `json:"event_price,omitempty"`
	Status           string    `json:"event_status"`
	CreatorID        int64     `json:"-"`
	Creator          Creator   `json:"event_creator"`
	CreatedAt        time.Time `json:"-"`
	UpdatedAt        time.Time `json:"-"`
}

// Snapshot projects an Event plus its resolved participant count into the
// immutable Candidate form consumed by ranking.
func (e *Event) Snapshot(participantCount int) Candidate {
	return Candidate{
		EventID:          e.ID,
		EventName:        e.Name,
		Date:             e.Date,
		StartTime:        e.StartTime,
		EndTime:          e.EndTime,
		Longitude:        e.Longitude,
		Latitude:         e.Latitude,
		LocationName:     e.LocationName,
		Location:         e.Location,
		ShortDescription: e.ShortDescription,
		EventImage:       e.Image,
		EventPrice:       e.Price,
		EventStatus:      e.Status,
		EventCreator:     e.Creator,
		ParticipantCount: participantCount,
	}
}

// ValidStatus reports whether s is a recognised lifecycle status.
func ValidStatus(s string) bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ValidCategory reports whether c is a recognised category code.
func ValidCategory(c string) bool {
	for _, v := range ValidCategories {
		if c == v {
			return true
		}
	}
	return false
}
