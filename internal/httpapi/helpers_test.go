package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"civio.org/internal/auth"
	"civio.org/internal/cache"
	"civio.org/internal/issues"
	"civio.org/internal/obs"
	"civio.org/internal/store"
)

// memUserStore is an in-memory UserStore with error injection.
type memUserStore struct {
	mu    sync.Mutex
	users map[int64]*store.User
	fail  error
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[int64]*store.User)}
}

func (m *memUserStore) add(u store.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := u
	m.users[u.ID] = &copied
}

func (m *memUserStore) remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *memUserStore) setRole(id int64, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Role = role
	}
}

func (m *memUserStore) setFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *memUserStore) FindByID(ctx context.Context, id int64) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUserStore) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

// memIssueStore is an in-memory IssueStore.
type memIssueStore struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*store.Issue
}

func newMemIssueStore() *memIssueStore {
	return &memIssueStore{nextID: 1, items: make(map[int64]*store.Issue)}
}

func (m *memIssueStore) List(ctx context.Context) ([]*store.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.Issue, 0, len(m.items))
	for _, issue := range m.items {
		copied := *issue
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memIssueStore) Find(ctx context.Context, id int64) (*store.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *issue
	return &copied, nil
}

func (m *memIssueStore) Create(ctx context.Context, issue *store.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue.ID = m.nextID
	m.nextID++
	issue.CreatedAt = time.Now()
	issue.UpdatedAt = issue.CreatedAt
	copied := *issue
	m.items[issue.ID] = &copied
	return nil
}

func (m *memIssueStore) Update(ctx context.Context, issue *store.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.items[issue.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Title = issue.Title
	existing.Description = issue.Description
	existing.Status = issue.Status
	existing.UpdatedAt = time.Now()
	return nil
}

func (m *memIssueStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

// memBackend is an in-memory cache.Backend.
type memBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemBackend() *memBackend { return &memBackend{data: make(map[string]string)} }

func (b *memBackend) Get(ctx context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (b *memBackend) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *memBackend) Delete(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.data, k)
	}
	return nil
}

func (b *memBackend) DeleteByPrefix(ctx context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			delete(b.data, k)
		}
	}
	return nil
}

func (b *memBackend) Ping(ctx context.Context) error { return nil }

// testClock is a settable time source shared with the token service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: time.Now()} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	api     *API
	handler http.Handler
	users   *memUserStore
	tokens  *auth.TokenService
	clock   *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newTestClock()
	tokens, err := auth.NewTokenService("test-access-secret", "test-refresh-secret", auth.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	users := newMemUserStore()
	users.add(store.User{ID: 1, Email: "citizen@city.example", Role: "citizen", PasswordHash: mustHash(t, "citizen-pass")})
	users.add(store.User{ID: 2, Email: "officer@city.example", Role: "officer", PasswordHash: mustHash(t, "officer-pass")})
	users.add(store.User{ID: 3, Email: "admin@city.example", Role: "admin", PasswordHash: mustHash(t, "admin-pass")})

	issueService := issues.NewService(newMemIssueStore(), cache.New(newMemBackend()), time.Minute, time.Minute)
	api := New(Options{
		Tokens:  tokens,
		Users:   users,
		Issues:  issueService,
		Version: "test",
	})
	return &testEnv{api: api, handler: api.Handler(), users: users, tokens: tokens, clock: clock}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return hash
}

func (e *testEnv) accessTokenFor(t *testing.T, id int64, email string, role auth.Role) string {
	t.Helper()
	token, _, err := e.tokens.IssueAccessToken(auth.Principal{ID: id, Email: email, Role: role})
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

// captureAuditLog redirects the shared logger so tests can count emitted
// decision records.
func captureAuditLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func refreshCookieFrom(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}
