package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"meetbook.org/internal/auth"
	"meetbook.org/internal/meetings"
	"meetbook.org/internal/obs"
	"meetbook.org/internal/stream"
)

const (
	serviceName         = "meetbook"
	defaultMaxBodyBytes = 1 << 20
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Auth     *auth.Service
	Cookies  *auth.CookieCodec
	Meetings *meetings.Service
	Events   *stream.Hub
	Ready    readinessChecker
	Version  string
}

// Option tweaks API behaviour.
type Option func(*API)

// WithCookieSecure marks the session cookie Secure.
func WithCookieSecure(secure bool) Option {
	return func(a *API) { a.cookieSecure = secure }
}

// WithRenderer replaces the embedded HTML views.
func WithRenderer(r Renderer) Option {
	return func(a *API) {
		if r != nil {
			a.views = r
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// API is the HTTP layer.
type API struct {
	mux          *http.ServeMux
	readyProbe   readinessChecker
	version      string
	auth         *auth.Service
	cookies      *auth.CookieCodec
	meetings     *meetings.Service
	stream       *stream.Hub
	views        Renderer
	cookieSecure bool
	maxBodyBytes int64

	closeOnce sync.Once
	closing   chan struct{}
}

// New wires routes. Auth, Cookies and Meetings are required.
func New(d Deps, opts ...Option) (*API, error) {
	if d.Auth == nil || d.Cookies == nil || d.Meetings == nil {
		return nil, errors.New("httpapi: auth, cookies and meetings are required")
	}
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   d.Ready,
		version:      d.Version,
		auth:         d.Auth,
		cookies:      d.Cookies,
		meetings:     d.Meetings,
		stream:       d.Events,
		maxBodyBytes: defaultMaxBodyBytes,
		closing:      make(chan struct{}),
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.views == nil {
		views, err := NewTemplateRenderer()
		if err != nil {
			return nil, err
		}
		a.views = views
	}

	// health/ready/metrics
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())
	a.mux.Handle("GET /static/", staticHandler())

	// pages and auth
	a.mux.HandleFunc("GET /{$}", a.page("index"))
	a.mux.HandleFunc("GET /login", a.page("login"))
	a.mux.HandleFunc("POST /login", a.handleLogin)
	a.mux.HandleFunc("GET /signup", a.page("signup"))
	a.mux.HandleFunc("POST /signup", a.handleSignup)
	a.mux.HandleFunc("POST /logout", a.handleLogout)

	// meetings, owner-scoped
	a.mux.Handle("GET /meetings", a.requireSession(http.HandlerFunc(a.handleListMeetings)))
	a.mux.Handle("POST /meetings/create", a.requireSession(http.HandlerFunc(a.handleCreateMeeting)))
	a.mux.Handle("POST /meetings/delete/{id}", a.requireSession(http.HandlerFunc(a.handleDeleteMeeting)))
	a.mux.Handle("GET /meetings/events", a.requireSession(http.HandlerFunc(a.handleMeetingEvents)))

	return a, nil
}

// Handler returns the mux wrapped in the standard middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// CloseStreams ends open event streams. Register it with
// http.Server.RegisterOnShutdown so Shutdown does not wait on them.
func (a *API) CloseStreams() {
	a.closeOnce.Do(func() { close(a.closing) })
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		obs.Logger().WarnContext(r.Context(), "readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// result is the {success, message} envelope used by the auth endpoints.
type result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeResult(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, result{Success: code < 400, Message: msg})
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}
