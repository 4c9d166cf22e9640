package server

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Roles carried by user records and access tokens.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// ErrNotFound is returned by the stores when no matching row exists.
var ErrNotFound = errors.New("not found")

// User is a credential-store record. Users are provisioned via the useradd
// CLI command and never deleted by this service.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// UserStore is the credential store.
type UserStore interface {
	ByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, u *User) error
}

// NewUserStore returns the SQL-backed credential store.
func NewUserStore(db *sql.DB) UserStore {
	return &sqlUserStore{db: db}
}

type sqlUserStore struct {
	db *sql.DB
}

func (s *sqlUserStore) ByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at
		 FROM users
		 WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *sqlUserStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.CreatedAt,
	)
	return err
}

// HashPassword generates a bcrypt hash of the password.
// bcrypt cost of 12 is a good balance of security and performance.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword compares a password with its hash.
func verifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
