package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"civio.org/internal/auth"
	"civio.org/internal/cache"
	"civio.org/internal/issues"
	"civio.org/internal/obs"
	"civio.org/internal/store"
)

// ReadyProbe checks the dependencies /readyz reports on.
type ReadyProbe struct {
	DB    *sql.DB
	Cache *cache.Cache
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	// The cache is advisory; an unreachable backend degrades reads but
	// does not make the service unready.
	return nil
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	tokens     *auth.TokenService
	users      store.UserStore
	issues     *issues.Service
	readyProbe ReadyProbe
	version    string
	// secureCookies toggles the Secure attribute on the refresh cookie
	// (on in production).
	secureCookies bool
}

// Options carries the collaborators the API wires together.
type Options struct {
	Tokens        *auth.TokenService
	Users         store.UserStore
	Issues        *issues.Service
	ReadyProbe    ReadyProbe
	Version       string
	SecureCookies bool
}

func New(opts Options) *API {
	a := &API{
		mux:           http.NewServeMux(),
		tokens:        opts.Tokens,
		users:         opts.Users,
		issues:        opts.Issues,
		readyProbe:    opts.ReadyProbe,
		version:       opts.Version,
		secureCookies: opts.SecureCookies,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session lifecycle
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	// protected issue resource
	a.mux.HandleFunc("/v1/issues", a.handleIssues)
	a.mux.HandleFunc("/v1/issues/", a.handleIssueByID)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = Logging(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "civio-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "civio-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
