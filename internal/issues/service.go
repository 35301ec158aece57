// Package issues provides the issue resource used by the portal. Reads go
// through the cache-aside layer; every mutation invalidates the affected
// cache entries before returning, so a read immediately after a successful
// write never observes the pre-mutation value.
package issues

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"civio.org/internal/cache"
	"civio.org/internal/store"
)

// ErrInvalidInput indicates a rejected issue payload.
var ErrInvalidInput = errors.New("issues: invalid input")

// Issue lifecycle states.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
)

const listCacheKey = "issues:all"

func itemCacheKey(id int64) string {
	return "issue:" + strconv.FormatInt(id, 10)
}

// Service wraps the issue store with caching and validation.
type Service struct {
	store   store.IssueStore
	cache   *cache.Cache
	itemTTL time.Duration
	listTTL time.Duration
}

// NewService constructs the issue service. itemTTL and listTTL bound how
// long cached reads may be served between mutations and natural expiry.
func NewService(issueStore store.IssueStore, c *cache.Cache, itemTTL, listTTL time.Duration) *Service {
	if itemTTL <= 0 {
		itemTTL = 5 * time.Minute
	}
	if listTTL <= 0 {
		listTTL = time.Minute
	}
	return &Service{store: issueStore, cache: c, itemTTL: itemTTL, listTTL: listTTL}
}

// Get returns one issue, cache-aside.
func (s *Service) Get(ctx context.Context, id int64) (*store.Issue, error) {
	return cache.Aside(ctx, s.cache, itemCacheKey(id), s.itemTTL, func(ctx context.Context) (*store.Issue, error) {
		return s.store.Find(ctx, id)
	})
}

// List returns all issues, cache-aside.
func (s *Service) List(ctx context.Context) ([]*store.Issue, error) {
	return cache.Aside(ctx, s.cache, listCacheKey, s.listTTL, func(ctx context.Context) ([]*store.Issue, error) {
		return s.store.List(ctx)
	})
}

// Create validates and stores a new issue, then invalidates list caches
// before returning.
func (s *Service) Create(ctx context.Context, issue *store.Issue) error {
	issue.Title = strings.TrimSpace(issue.Title)
	issue.Description = strings.TrimSpace(issue.Description)
	if issue.Status == "" {
		issue.Status = StatusOpen
	}
	if err := validate(issue); err != nil {
		return err
	}
	if err := s.store.Create(ctx, issue); err != nil {
		return err
	}
	s.invalidate(ctx, issue.ID)
	return nil
}

// Update persists changes to an existing issue and invalidates its caches
// before returning.
func (s *Service) Update(ctx context.Context, issue *store.Issue) error {
	issue.Title = strings.TrimSpace(issue.Title)
	issue.Description = strings.TrimSpace(issue.Description)
	if issue.ID <= 0 {
		return ErrInvalidInput
	}
	if err := validate(issue); err != nil {
		return err
	}
	if err := s.store.Update(ctx, issue); err != nil {
		return err
	}
	s.invalidate(ctx, issue.ID)
	return nil
}

// Delete removes an issue and invalidates its caches before returning.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidInput
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// invalidate runs synchronously on the mutation path: the caller's response
// is not written until the affected keys are gone.
func (s *Service) invalidate(ctx context.Context, id int64) {
	s.cache.Delete(ctx, itemCacheKey(id))
	s.cache.DeleteByPrefix(ctx, "issues:")
}

func validate(issue *store.Issue) error {
	if issue.Title == "" {
		return ErrInvalidInput
	}
	switch issue.Status {
	case StatusOpen, StatusInProgress, StatusResolved:
		return nil
	default:
		return ErrInvalidInput
	}
}
