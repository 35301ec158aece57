// Package store defines the persistence contracts the security core
// depends on. Schema design is out of scope; the core only needs user
// lookup by id/email and minimal issue CRUD for the cached resource.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// User is a portal account. Role is stored as text and parsed into the
// closed enum at the trust boundary.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Issue is a reported civic issue.
type Issue struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	ReporterID  int64     `json:"reporter_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserStore looks up portal accounts.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// IssueStore manages reported issues.
type IssueStore interface {
	List(ctx context.Context) ([]*Issue, error)
	Find(ctx context.Context, id int64) (*Issue, error)
	Create(ctx context.Context, issue *Issue) error
	Update(ctx context.Context, issue *Issue) error
	Delete(ctx context.Context, id int64) error
}
