// Package user provides the user model and repositories for accounts,
// category preferences, and stored coordinates.
package user

import "time"

// User is an account record. PasswordHash is never serialised.
type User struct {
	ID           int64      `json:"user_id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	Preferences  []string   `json:"preferences"`
	Longitude    *float64   `json:"longitude,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Verified     bool       `json:"verified"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	FirstLogin   bool       `json:"first_login"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DisplayName joins the first and last name for event creator snapshots.
func (u *User) DisplayName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// HasCoordinates reports whether the user has stored a location. Both
// coordinates are set together or not at all.
func (u *User) HasCoordinates() bool {
	return u.Longitude != nil && u.Latitude != nil
}
