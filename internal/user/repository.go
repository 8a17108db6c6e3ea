package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Common errors for user operations.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already registered")
)

// Repository defines user data operations.
type Repository interface {
	Create(ctx context.Context, u *User) (int64, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdateProfile updates name fields and preferences.
	UpdateProfile(ctx context.Context, u *User) error

	// UpdateCoordinates stores the user's location for distance ranking.
	UpdateCoordinates(ctx context.Context, id int64, longitude, latitude float64) error

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	// MarkVerified records email verification.
	MarkVerified(ctx context.Context, id int64) error

	// MarkLoggedIn clears the first-login flag after the first successful login.
	MarkLoggedIn(ctx context.Context, id int64) error
}

// InMemoryRepository is an in-memory Repository for tests and local
// development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu         sync.RWMutex
	nextID     int64
	users      map[int64]*User
	byUsername map[string]int64
	byEmail    map[string]int64
}

// NewInMemoryRepository creates an empty in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		nextID:     1,
		users:      make(map[int64]*User),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
	}
}

func (r *InMemoryRepository) Create(_ context.Context, u *User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username := strings.ToLower(u.Username)
	email := strings.ToLower(u.Email)
	if _, taken := r.byUsername[username]; taken {
		return 0, ErrUsernameTaken
	}
	if _, taken := r.byEmail[email]; taken {
		return 0, ErrEmailTaken
	}

	now := time.Now()
	userCopy := *u
	userCopy.ID = r.nextID
	userCopy.FirstLogin = true
	userCopy.CreatedAt = now
	userCopy.UpdatedAt = now
	r.nextID++
	r.users[userCopy.ID] = &userCopy
	r.byUsername[username] = userCopy.ID
	r.byEmail[email] = userCopy.ID
	return userCopy.ID, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id int64) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	userCopy := *u
	return &userCopy, nil
}

func (r *InMemoryRepository) GetByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	userCopy := *r.users[id]
	return &userCopy, nil
}

func (r *InMemoryRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	userCopy := *r.users[id]
	return &userCopy, nil
}

func (r *InMemoryRepository) UpdateProfile(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.Preferences = append([]string(nil), u.Preferences...)
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryRepository) UpdateCoordinates(_ context.Context, id int64, longitude, latitude float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	existing.Longitude = &longitude
	existing.Latitude = &latitude
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryRepository) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	existing.PasswordHash = passwordHash
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryRepository) MarkVerified(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	now := time.Now()
	existing.Verified = true
	existing.VerifiedAt = &now
	existing.UpdatedAt = now
	return nil
}

func (r *InMemoryRepository) MarkLoggedIn(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	existing.FirstLogin = false
	existing.UpdatedAt = time.Now()
	return nil
}

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed user repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, u *User) (int64, error) {
	const q = `
		INSERT INTO users (username, email, first_name, last_name, password_hash, birth_date, preferences)
		VALUES (LOWER($1), LOWER($2), $3, $4, $5, $6, $7)
		RETURNING user_id`

	var id int64
	err := r.db.QueryRowContext(ctx, q,
		u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash,
		u.BirthDate, pq.Array(u.Preferences)).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			if strings.Contains(pqErr.Constraint, "email") {
				return 0, ErrEmailTaken
			}
			return 0, ErrUsernameTaken
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

const userColumns = `user_id, username, email, first_name, last_name, password_hash,
	birth_date, preferences, longitude, latitude, verified, verified_at, first_login,
	created_at, updated_at`

func (r *PostgresRepository) scanUser(row *sql.Row) (*User, error) {
	var (
		u           User
		birthDate   sql.NullTime
		preferences pq.StringArray
		longitude   sql.NullFloat64
		latitude    sql.NullFloat64
		verifiedAt  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.PasswordHash, &birthDate, &preferences, &longitude, &latitude,
		&u.Verified, &verifiedAt, &u.FirstLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Preferences = preferences
	if birthDate.Valid {
		u.BirthDate = &birthDate.Time
	}
	if longitude.Valid && latitude.Valid {
		u.Longitude = &longitude.Float64
		u.Latitude = &latitude.Float64
	}
	if verifiedAt.Valid {
		u.VerifiedAt = &verifiedAt.Time
	}
	return &u, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, id))
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = LOWER($1)`, username))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, email))
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, u *User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET first_name = $1, last_name = $2, preferences = $3, updated_at = now()
		WHERE user_id = $4`,
		u.FirstName, u.LastName, pq.Array(u.Preferences), u.ID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return checkAffected(res)
}

func (r *PostgresRepository) UpdateCoordinates(ctx context.Context, id int64, longitude, latitude float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET longitude = $1, latitude = $2, updated_at = now()
		WHERE user_id = $3`, longitude, latitude, id)
	if err != nil {
		return fmt.Errorf("update coordinates: %w", err)
	}
	return checkAffected(res)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $1, updated_at = now()
		WHERE user_id = $2`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return checkAffected(res)
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET verified = TRUE, verified_at = now(), updated_at = now()
		WHERE user_id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return checkAffected(res)
}

func (r *PostgresRepository) MarkLoggedIn(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET first_login = FALSE, updated_at = now()
		WHERE user_id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark logged in: %w", err)
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}
