package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// queryTimeout bounds every store call so a degraded database fails fast
// instead of stalling request handling.
const queryTimeout = 5 * time.Second

var (
	_ UserStore  = (*PGUserStore)(nil)
	_ IssueStore = (*PGIssueStore)(nil)
)

// PGUserStore implements UserStore using PostgreSQL.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db}
}

func (s *PGUserStore) FindByID(ctx context.Context, id int64) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, created_at, updated_at from users where id=$1`, id,
	)
	return scanUser(row)
}

func (s *PGUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, role, created_at, updated_at from users where lower(email)=$1`,
		strings.ToLower(strings.TrimSpace(email)),
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// PGIssueStore implements IssueStore using PostgreSQL.
type PGIssueStore struct {
	db *sql.DB
}

func NewPGIssueStore(db *sql.DB) *PGIssueStore {
	return &PGIssueStore{db: db}
}

func (s *PGIssueStore) List(ctx context.Context) ([]*Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`select id, title, description, status, reporter_id, created_at, updated_at from issues order by created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Issue
	for rows.Next() {
		var issue Issue
		if err := rows.Scan(&issue.ID, &issue.Title, &issue.Description, &issue.Status, &issue.ReporterID, &issue.CreatedAt, &issue.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &issue)
	}
	return res, rows.Err()
}

func (s *PGIssueStore) Find(ctx context.Context, id int64) (*Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		`select id, title, description, status, reporter_id, created_at, updated_at from issues where id=$1`, id,
	)
	var issue Issue
	if err := row.Scan(&issue.ID, &issue.Title, &issue.Description, &issue.Status, &issue.ReporterID, &issue.CreatedAt, &issue.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &issue, nil
}

func (s *PGIssueStore) Create(ctx context.Context, issue *Issue) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx,
		`insert into issues(title, description, status, reporter_id) values($1,$2,$3,$4) returning id, created_at, updated_at`,
		issue.Title, issue.Description, issue.Status, issue.ReporterID,
	)
	return row.Scan(&issue.ID, &issue.CreatedAt, &issue.UpdatedAt)
}

func (s *PGIssueStore) Update(ctx context.Context, issue *Issue) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx,
		`update issues set title=$2, description=$3, status=$4, updated_at=now() where id=$1`,
		issue.ID, issue.Title, issue.Description, issue.Status,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGIssueStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `delete from issues where id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
