// Package participation tracks which users joined which events and resolves
// the participant counts used in ranking.
package participation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Common errors for participation operations.
var (
	ErrAlreadyJoined = errors.New("user already joined this event")
	ErrNotJoined     = errors.New("user has not joined this event")
)

// Participation represents one user's join record for an event.
type Participation struct {
	EventID  int64     `json:"event_id"`
	UserID   int64     `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Repository defines participation data operations.
type Repository interface {
	// Join records the user as a participant. Joining twice is an error.
	Join(ctx context.Context, eventID, userID int64) error

	// Leave removes the user's join record. Leaving without having joined
	// is an error.
	Leave(ctx context.Context, eventID, userID int64) error

	// IsParticipant reports whether the user has joined the event.
	IsParticipant(ctx context.Context, eventID, userID int64) (bool, error)

	// CountForEvent returns the number of participants for one event.
	CountForEvent(ctx context.Context, eventID int64) (int, error)

	// CountsForEvents returns participant counts keyed by event ID. Events
	// with no participants are absent from the map.
	CountsForEvents(ctx context.Context, eventIDs []int64) (map[int64]int, error)

	// ListForUser returns the event IDs the user has joined, oldest first.
	ListForUser(ctx context.Context, userID int64) ([]int64, error)
}

// InMemoryRepository is an in-memory Repository for tests and local
// development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	seq     int64
	byEvent map[int64]map[int64]joinRecord // eventID -> userID -> record
}

type joinRecord struct {
	at  time.Time
	seq int64
}

// NewInMemoryRepository creates an empty in-memory participation repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byEvent: make(map[int64]map[int64]joinRecord)}
}

func (r *InMemoryRepository) Join(_ context.Context, eventID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.byEvent[eventID]
	if !ok {
		users = make(map[int64]joinRecord)
		r.byEvent[eventID] = users
	}
	if _, joined := users[userID]; joined {
		return ErrAlreadyJoined
	}
	r.seq++
	users[userID] = joinRecord{at: time.Now(), seq: r.seq}
	return nil
}

func (r *InMemoryRepository) Leave(_ context.Context, eventID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.byEvent[eventID]
	if !ok {
		return ErrNotJoined
	}
	if _, joined := users[userID]; !joined {
		return ErrNotJoined
	}
	delete(users, userID)
	return nil
}

func (r *InMemoryRepository) IsParticipant(_ context.Context, eventID, userID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, ok := r.byEvent[eventID]
	if !ok {
		return false, nil
	}
	_, joined := users[userID]
	return joined, nil
}

func (r *InMemoryRepository) CountForEvent(_ context.Context, eventID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEvent[eventID]), nil
}

func (r *InMemoryRepository) CountsForEvents(_ context.Context, eventIDs []int64) (map[int64]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[int64]int, len(eventIDs))
	for _, id := range eventIDs {
		if n := len(r.byEvent[id]); n > 0 {
			counts[id] = n
		}
	}
	return counts, nil
}

func (r *InMemoryRepository) ListForUser(_ context.Context, userID int64) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type joined struct {
		eventID int64
		seq     int64
	}
	var records []joined
	for eventID, users := range r.byEvent {
		if rec, ok := users[userID]; ok {
			records = append(records, joined{eventID, rec.seq})
		}
	}
	// Oldest first, matching the Postgres ORDER BY.
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].seq < records[j-1].seq; j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
	out := make([]int64, len(records))
	for i, rec := range records {
		out[i] = rec.eventID
	}
	return out, nil
}

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed participation repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Join(ctx context.Context, eventID, userID int64) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO event_participants (event_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (event_id, user_id) DO NOTHING`, eventID, userID)
	if err != nil {
		return fmt.Errorf("insert participation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert participation rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyJoined
	}
	return nil
}

func (r *PostgresRepository) Leave(ctx context.Context, eventID, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM event_participants WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	if err != nil {
		return fmt.Errorf("delete participation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete participation rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotJoined
	}
	return nil
}

func (r *PostgresRepository) IsParticipant(ctx context.Context, eventID, userID int64) (bool, error) {
	var joined bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM event_participants WHERE event_id = $1 AND user_id = $2
		)`, eventID, userID).Scan(&joined)
	if err != nil {
		return false, fmt.Errorf("check participation: %w", err)
	}
	return joined, nil
}

func (r *PostgresRepository) CountForEvent(ctx context.Context, eventID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_participants WHERE event_id = $1`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) CountsForEvents(ctx context.Context, eventIDs []int64) (map[int64]int, error) {
	if len(eventIDs) == 0 {
		return map[int64]int{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, COUNT(*)
		FROM event_participants
		WHERE event_id = ANY($1)
		GROUP BY event_id`, pq.Array(eventIDs))
	if err != nil {
		return nil, fmt.Errorf("count participants by event: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int, len(eventIDs))
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan participant count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participant counts: %w", err)
	}
	return counts, nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id FROM event_participants
		WHERE user_id = $1
		ORDER BY joined_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participation: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participations: %w", err)
	}
	return out, nil
}
