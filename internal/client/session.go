// Package client provides the portal's HTTP client side: a Session that
// holds the current access token in memory and coordinates refreshes so
// that any number of concurrent callers hitting an expired token trigger
// exactly one network refresh. The refresh credential itself lives in an
// HttpOnly cookie managed by the jar; this package never sees it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when the session cannot be refreshed; the
// caller must log in again.
var ErrSessionExpired = errors.New("client: session expired")

const refreshFlightKey = "refresh"

// Session coordinates one user session against the API. It is safe for
// concurrent use; all goroutines sharing a Session share its token and its
// refresh flights. Coordination is per-process only: two separate processes
// (or browser tabs) each refresh on their own.
type Session struct {
	base   *url.URL
	client *http.Client

	mu          sync.Mutex
	accessToken string

	flight singleflight.Group
}

// NewSession builds a Session for the API at baseURL. The provided client
// is used for all calls; pass nil for a default with a fresh cookie jar.
// The client must carry a cookie jar or refreshes will never succeed.
func NewSession(baseURL string, httpClient *http.Client) (*Session, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("client: cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	return &Session{base: base, client: httpClient}, nil
}

// AccessToken returns the held access token, if any.
func (s *Session) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.accessToken != ""
}

// SetAccessToken stores the token obtained at login.
func (s *Session) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
}

// Clear drops the held token at logout.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
}

// Login authenticates with credentials and primes the session: the access
// token is held in memory, the refresh cookie lands in the jar.
func (s *Session) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return fmt.Errorf("client: encode login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/v1/auth/login"), strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("client: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("client: login: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: login failed with status %d", resp.StatusCode)
	}
	token, err := decodeAccessToken(resp.Body)
	if err != nil {
		return err
	}
	s.SetAccessToken(token)
	return nil
}

// Refresh exchanges the refresh cookie for a new token pair. Concurrent
// callers share one in-flight HTTP call: all of them receive the same new
// token on success, and all of them receive ErrSessionExpired on failure,
// in which case the held token is cleared.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	v, err, _ := s.flight.Do(refreshFlightKey, func() (any, error) {
		token, err := s.refreshOnce(ctx)
		if err != nil {
			s.Clear()
			return "", err
		}
		s.SetAccessToken(token)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) refreshOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/v1/auth/refresh"), nil)
	if err != nil {
		return "", fmt.Errorf("client: build refresh request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("client: refresh: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("client: refresh failed with status %d", resp.StatusCode)
	}
	return decodeAccessToken(resp.Body)
}

// Do sends the request with the held bearer token attached. If the server
// answers 401 with an expired-token code, it refreshes the session once
// and retries; a second 401 is returned to the caller as is. Requests with
// a body must set GetBody (http.NewRequest does for common types) or the
// retry is skipped.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	token, _ := s.AccessToken()
	attachBearer(req, token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if !isExpiredResponse(resp) {
		return resp, nil
	}

	retry, err := cloneForRetry(req)
	if err != nil {
		return nil, err
	}
	token, err = s.Refresh(req.Context())
	if err != nil {
		return nil, err
	}
	attachBearer(retry, token)
	return s.client.Do(retry)
}

func (s *Session) endpoint(path string) string {
	ref := *s.base
	ref.Path = strings.TrimRight(ref.Path, "/") + path
	return ref.String()
}

func attachBearer(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// isExpiredResponse reads the 401 body to tell an expired token (refresh
// and retry) from a rejected one (give up). The read bytes are put back so
// the caller still sees the full body when the response is handed through.
func isExpiredResponse(resp *http.Response) bool {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return false
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false
	}
	return payload.Code == "TOKEN_EXPIRED"
}

func cloneForRetry(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("client: cannot retry request without GetBody")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("client: rewind request body: %w", err)
	}
	retry.Body = body
	return retry, nil
}

func decodeAccessToken(r io.Reader) (string, error) {
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("client: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("client: response carries no access token")
	}
	return payload.AccessToken, nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<20))
	_ = body.Close()
}
