package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Common errors for event operations.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrNotCreator    = errors.New("only the event creator may modify the event")
)

// CandidateQuery narrows the candidate list before ranking. Category and
// keyword narrowing here mirrors what the hosted search index does; the
// repository path exists so reads keep working when the index is down.
type CandidateQuery struct {
	// Categories keeps events tagged with at least one of the codes.
	Categories []string
	// Keyword is a case-insensitive substring match on name and short
	// description.
	Keyword string
	// EventIDs restricts the result to the given IDs, preserving no
	// particular order. Used when the search index supplies the ID list.
	EventIDs []int64
}

// Repository defines event data operations. Candidates returns snapshots
// with creator, location, image, price, status, and participant count
// already resolved, ready for the ranking pipeline.
type Repository interface {
	Create(ctx context.Context, e *Event) (int64, error)
	GetByID(ctx context.Context, id int64) (*Event, error)
	Update(ctx context.Context, e *Event) error
	Delete(ctx context.Context, id, creatorID int64) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	Candidates(ctx context.Context, q CandidateQuery) ([]Candidate, error)
	// UpdatedSince returns up to limit events created or modified at or
	// after since, oldest first. The search-index sync loop pages through
	// this to keep the index aligned with the table.
	UpdatedSince(ctx context.Context, since time.Time, limit int) ([]*Event, error)
}

// ParticipantCounter resolves join counts per event. Implemented by the
// participation repository; split out so the in-memory event repository can
// be tested without it.
type ParticipantCounter interface {
	CountsForEvents(ctx context.Context, eventIDs []int64) (map[int64]int, error)
}

// InMemoryRepository is an in-memory Repository used in tests and local
// development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	events  map[int64]*Event
	counter ParticipantCounter
}

// NewInMemoryRepository creates an empty in-memory repository. counter may
// be nil, in which case every candidate carries a zero participant count.
func NewInMemoryRepository(counter ParticipantCounter) *InMemoryRepository {
	return &InMemoryRepository{
		nextID:  1,
		events:  make(map[int64]*Event),
		counter: counter,
	}
}

func (r *InMemoryRepository) Create(_ context.Context, e *Event) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	eventCopy := *e
	eventCopy.ID = r.nextID
	eventCopy.CreatedAt = now
	eventCopy.UpdatedAt = now
	if eventCopy.Status == "" {
		eventCopy.Status = StatusUpcoming
	}
	r.nextID++
	r.events[eventCopy.ID] = &eventCopy
	return eventCopy.ID, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id int64) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	eventCopy := *e
	return &eventCopy, nil
}

func (r *InMemoryRepository) Update(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.events[e.ID]
	if !ok {
		return ErrEventNotFound
	}
	if existing.CreatorID != e.CreatorID {
		return ErrNotCreator
	}
	eventCopy := *e
	eventCopy.CreatedAt = existing.CreatedAt
	eventCopy.UpdatedAt = time.Now()
	r.events[e.ID] = &eventCopy
	return nil
}

func (r *InMemoryRepository) Delete(_ context.Context, id, creatorID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.events[id]
	if !ok {
		return ErrEventNotFound
	}
	if existing.CreatorID != creatorID {
		return ErrNotCreator
	}
	delete(r.events, id)
	return nil
}

func (r *InMemoryRepository) UpdateStatus(_ context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.events[id]
	if !ok {
		return ErrEventNotFound
	}
	existing.Status = status
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryRepository) Candidates(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	r.mu.RLock()
	matched := make([]*Event, 0, len(r.events))
	for _, e := range r.events {
		if matchesQuery(e, q) {
			matched = append(matched, e)
		}
	}
	r.mu.RUnlock()

	// Deterministic order for tests: by ID.
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	counts := map[int64]int{}
	if r.counter != nil && len(matched) > 0 {
		ids := make([]int64, len(matched))
		for i, e := range matched {
			ids[i] = e.ID
		}
		var err error
		counts, err = r.counter.CountsForEvents(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve participant counts: %w", err)
		}
	}

	out := make([]Candidate, len(matched))
	for i, e := range matched {
		out[i] = e.Snapshot(counts[e.ID])
	}
	return out, nil
}

func (r *InMemoryRepository) UpdatedSince(_ context.Context, since time.Time, limit int) ([]*Event, error) {
	r.mu.RLock()
	matched := make([]*Event, 0)
	for _, e := range r.events {
		if !e.UpdatedAt.Before(since) {
			eventCopy := *e
			matched = append(matched, &eventCopy)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func matchesQuery(e *Event, q CandidateQuery) bool {
	if len(q.EventIDs) > 0 {
		found := false
		for _, id := range q.EventIDs {
			if e.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.Categories) > 0 {
		found := false
		for _, want := range q.Categories {
			for _, have := range e.Categories {
				if want == have {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	if q.Keyword != "" {
		kw := strings.ToLower(q.Keyword)
		if !strings.Contains(strings.ToLower(e.Name), kw) &&
			!strings.Contains(strings.ToLower(e.ShortDescription), kw) {
			return false
		}
	}
	return true
}

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed event repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, e *Event) (int64, error) {
	const q = `
		INSERT INTO events (
			event_name, date, start_time, end_time, longitude, latitude,
			location_name, location_id, short_description, description,
			event_image, price_fee, price_currency, event_status, event_creator
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING event_id`

	var locationID sql.NullInt64
	if e.Location != nil {
		locationID = sql.NullInt64{Int64: e.Location.ID, Valid: true}
	}
	var fee sql.NullFloat64
	var currency sql.NullString
	if e.Price != nil {
		fee = sql.NullFloat64{Float64: e.Price.Fee, Valid: true}
		currency = sql.NullString{String: e.Price.Currency, Valid: true}
	}
	status := e.Status
	if status == "" {
		status = StatusUpcoming
	}

	var id int64
	err := r.db.QueryRowContext(ctx, q,
		e.Name, e.Date, e.StartTime, e.EndTime, e.Longitude, e.Latitude,
		e.LocationName, locationID, e.ShortDescription, e.Description,
		e.Image, fee, currency, status, e.CreatorID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	if len(e.Categories) > 0 {
		if err := r.replaceCategories(ctx, id, e.Categories); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *PostgresRepository) replaceCategories(ctx context.Context, eventID int64, categories []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM event_categories WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("clear event categories: %w", err)
	}
	for _, c := range categories {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO event_categories (event_id, category_code) VALUES ($1, $2)`, eventID, c); err != nil {
			return fmt.Errorf("insert event category: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Event, error) {
	const q = `
		SELECT e.event_id, e.event_name, e.date, e.start_time, e.end_time,
		       e.longitude, e.latitude, e.location_name,
		       l.location_id, l.suburb, l.city, l.state, l.country,
		       e.short_description, e.description, e.event_image,
		       e.price_fee, e.price_currency, e.event_status,
		       e.event_creator, u.username, u.first_name || ' ' || u.last_name,
		       e.created_at, e.updated_at,
		       COALESCE(array_agg(c.category_code) FILTER (WHERE c.category_code IS NOT NULL), '{}')
		FROM events e
		JOIN users u ON u.user_id = e.event_creator
		LEFT JOIN locations l ON l.location_id = e.location_id
		LEFT JOIN event_categories c ON c.event_id = e.event_id
		WHERE e.event_id = $1
		GROUP BY e.event_id, l.location_id, u.user_id`

	var (
		e          Event
		locID      sql.NullInt64
		suburb     sql.NullString
		city       sql.NullString
		state      sql.NullString
		country    sql.NullString
		image      sql.NullString
		fee        sql.NullFloat64
		currency   sql.NullString
		categories pq.StringArray
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&e.ID, &e.Name, &e.Date, &e.StartTime, &e.EndTime,
		&e.Longitude, &e.Latitude, &e.LocationName,
		&locID, &suburb, &city, &state, &country,
		&e.ShortDescription, &e.Description, &image,
		&fee, &currency, &e.Status,
		&e.CreatorID, &e.Creator.Username, &e.Creator.DisplayName,
		&e.CreatedAt, &e.UpdatedAt, &categories,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select event: %w", err)
	}

	if locID.Valid {
		e.Location = &Location{
			ID:      locID.Int64,
			Suburb:  suburb.String,
			City:    city.String,
			State:   state.String,
			Country: country.String,
		}
	}
	if image.Valid {
		e.Image = &image.String
	}
	if fee.Valid {
		e.Price = &Price{Fee: fee.Float64, Currency: currency.String}
	}
	e.Categories = categories
	return &e, nil
}

func (r *PostgresRepository) Update(ctx context.Context, e *Event) error {
	const q = `
		UPDATE events
		SET event_name = $1, date = $2, start_time = $3, end_time = $4,
		    longitude = $5, latitude = $6, location_name = $7,
		    short_description = $8, description = $9, event_image = $10,
		    price_fee = $11, price_currency = $12, updated_at = now()
		WHERE event_id = $13 AND event_creator = $14`

	var fee sql.NullFloat64
	var currency sql.NullString
	if e.Price != nil {
		fee = sql.NullFloat64{Float64: e.Price.Fee, Valid: true}
		currency = sql.NullString{String: e.Price.Currency, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, q,
		e.Name, e.Date, e.StartTime, e.EndTime, e.Longitude, e.Latitude,
		e.LocationName, e.ShortDescription, e.Description, e.Image,
		fee, currency, e.ID, e.CreatorID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish missing event from foreign creator.
		if _, err := r.GetByID(ctx, e.ID); err != nil {
			return err
		}
		return ErrNotCreator
	}

	if err := r.replaceCategories(ctx, e.ID, e.Categories); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id, creatorID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE event_id = $1 AND event_creator = $2`, id, creatorID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrNotCreator
	}
	return nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET event_status = $1, updated_at = now() WHERE event_id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event status rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdatedSince(ctx context.Context, since time.Time, limit int) ([]*Event, error) {
	query := `
		SELECT e.event_id, e.event_name, e.date, e.start_time, e.end_time,
		       e.longitude, e.latitude, e.location_name,
		       e.short_description, e.description, e.event_status,
		       e.event_creator, e.created_at, e.updated_at,
		       COALESCE(array_agg(c.category_code) FILTER (WHERE c.category_code IS NOT NULL), '{}')
		FROM events e
		LEFT JOIN event_categories c ON c.event_id = e.event_id
		WHERE e.updated_at >= $1
		GROUP BY e.event_id
		ORDER BY e.updated_at, e.event_id`
	args := []any{since}
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $2"
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select updated events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var (
			e          Event
			categories pq.StringArray
		)
		if err := rows.Scan(
			&e.ID, &e.Name, &e.Date, &e.StartTime, &e.EndTime,
			&e.Longitude, &e.Latitude, &e.LocationName,
			&e.ShortDescription, &e.Description, &e.Status,
			&e.CreatorID, &e.CreatedAt, &e.UpdatedAt, &categories,
		); err != nil {
			return nil, fmt.Errorf("scan updated event: %w", err)
		}
		e.Categories = categories
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updated events: %w", err)
	}
	return out, nil
}

// Candidates builds ranking snapshots in one query; the participant count is
// resolved by a correlated subquery so the pipeline never re-reads storage.
func (r *PostgresRepository) Candidates(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	query := `
		SELECT e.event_id, e.event_name, e.date, e.start_time, e.end_time,
		       e.longitude, e.latitude, e.location_name,
		       l.location_id, l.suburb, l.city, l.state, l.country,
		       e.short_description, e.event_image,
		       e.price_fee, e.price_currency, e.event_status,
		       u.username, u.first_name || ' ' || u.last_name,
		       (SELECT COUNT(*) FROM event_participants p WHERE p.event_id = e.event_id)
		FROM events e
		JOIN users u ON u.user_id = e.event_creator
		LEFT JOIN locations l ON l.location_id = e.location_id`

	var (
		clauses []string
		args    []any
	)
	if len(q.EventIDs) > 0 {
		args = append(args, pq.Array(q.EventIDs))
		clauses = append(clauses, fmt.Sprintf("e.event_id = ANY($%d)", len(args)))
	}
	if len(q.Categories) > 0 {
		args = append(args, pq.Array(q.Categories))
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM event_categories c WHERE c.event_id = e.event_id AND c.category_code = ANY($%d))", len(args)))
	}
	if q.Keyword != "" {
		args = append(args, "%"+strings.ToLower(q.Keyword)+"%")
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(e.event_name) LIKE $%d OR LOWER(e.short_description) LIKE $%d)", len(args), len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY e.event_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c        Candidate
			locID    sql.NullInt64
			suburb   sql.NullString
			city     sql.NullString
			state    sql.NullString
			country  sql.NullString
			image    sql.NullString
			fee      sql.NullFloat64
			currency sql.NullString
		)
		if err := rows.Scan(
			&c.EventID, &c.EventName, &c.Date, &c.StartTime, &c.EndTime,
			&c.Longitude, &c.Latitude, &c.LocationName,
			&locID, &suburb, &city, &state, &country,
			&c.ShortDescription, &image,
			&fee, &currency, &c.EventStatus,
			&c.EventCreator.Username, &c.EventCreator.DisplayName,
			&c.ParticipantCount,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if locID.Valid {
			c.Location = &Location{
				ID:      locID.Int64,
				Suburb:  suburb.String,
				City:    city.String,
				State:   state.String,
				Country: country.String,
			}
		}
		if image.Valid {
			c.EventImage = &image.String
		}
		if fee.Valid {
			c.EventPrice = &Price{Fee: fee.Float64, Currency: currency.String}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}
