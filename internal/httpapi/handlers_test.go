package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"meetbook.org/internal/auth"
	"meetbook.org/internal/meetings"
	"meetbook.org/internal/stream"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testEnv struct {
	t        *testing.T
	srv      *httptest.Server
	api      *API
	users    *auth.MemoryStore
	meetings meetings.Store
}

type envOption func(*testEnv)

func withMeetingStore(s meetings.Store) envOption {
	return func(e *testEnv) { e.meetings = s }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{t: t, users: auth.NewMemoryStore(), meetings: meetings.NewInMemory()}
	for _, opt := range opts {
		opt(env)
	}

	authSvc, err := auth.NewService(env.users, env.users.Sessions(),
		auth.WithPasswordParams(auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}))
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	codec, err := auth.NewCookieCodec(testSecret)
	if err != nil {
		t.Fatalf("cookie codec: %v", err)
	}
	hub := stream.New()

	api, err := New(Deps{
		Auth:     authSvc,
		Cookies:  codec,
		Meetings: meetings.NewService(env.meetings, meetings.WithPublisher(hub)),
		Events:   hub,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	env.api = api
	env.srv = httptest.NewServer(api.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

// client is a browser-like user agent with its own cookie jar that does not
// follow redirects, so tests can assert on them.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func (e *testEnv) newClient() *client {
	e.t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		e.t.Fatalf("cookiejar: %v", err)
	}
	return &client{
		t:    e.t,
		base: e.srv.URL,
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Timeout: 5 * time.Second,
		},
	}
}

func (c *client) do(req *http.Request) *http.Response {
	c.t.Helper()
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	return resp
}

func (c *client) postJSON(path string, body any) *http.Response {
	c.t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		c.t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, strings.NewReader(string(payload)))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) postForm(path string, values url.Values) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.base+path, strings.NewReader(values.Encode()))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *client) get(path string, accept string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.do(req)
}

func (c *client) signup(username, password string) result {
	c.t.Helper()
	return decode[result](c.t, c.postJSON("/signup", credentials{Username: username, Password: password}))
}

func (c *client) login(username, password string) result {
	c.t.Helper()
	return decode[result](c.t, c.postJSON("/login", credentials{Username: username, Password: password}))
}

func (c *client) listMeetings() []meetings.Meeting {
	c.t.Helper()
	resp := c.get("/meetings", "application/json")
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		c.t.Fatalf("list meetings: status %d", resp.StatusCode)
	}
	return decode[struct {
		Meetings []meetings.Meeting `json:"meetings"`
	}](c.t, resp).Meetings
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("expected redirect to %s, got %s", location, got)
	}
}

func TestSignupLoginMeetingsFlow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.newClient()

	if res := alice.signup("alice", "pw1"); !res.Success {
		t.Fatalf("signup failed: %+v", res)
	}
	if res := alice.signup("alice", "other"); res.Success || res.Message != msgUsernameTaken {
		t.Fatalf("expected duplicate signup rejection, got %+v", res)
	}
	if res := alice.login("alice", "wrong"); res.Success || res.Message != msgInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %+v", res)
	}
	if res := alice.login("alice", "pw1"); !res.Success {
		t.Fatalf("login failed: %+v", res)
	}

	expectRedirect(t, alice.postForm("/meetings/create", url.Values{"name": {"standup"}, "description": {"daily"}}), "/meetings")

	items := alice.listMeetings()
	if len(items) != 1 || items[0].Name != "standup" || items[0].Description != "daily" {
		t.Fatalf("unexpected meetings: %+v", items)
	}
	if len(items[0].ID) != 32 {
		t.Fatalf("expected 32-char opaque id, got %q", items[0].ID)
	}

	resp := alice.get("/meetings", "")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "standup") {
		t.Fatalf("meetings view missing item: status=%d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected content type: %s", resp.Header.Get("Content-Type"))
	}

	expectRedirect(t, alice.postForm("/meetings/delete/"+items[0].ID, nil), "/meetings")
	if items := alice.listMeetings(); len(items) != 0 {
		t.Fatalf("expected empty list after delete, got %+v", items)
	}

	expectRedirect(t, alice.postForm("/logout", nil), "/")
	expectRedirect(t, alice.get("/meetings", ""), "/login")
}

func TestOwnerIsolationOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.newClient(), env.newClient()

	for _, u := range []struct {
		c    *client
		name string
	}{{alice, "alice"}, {bob, "bob"}} {
		if res := u.c.signup(u.name, "pw-"+u.name); !res.Success {
			t.Fatalf("signup %s: %+v", u.name, res)
		}
		if res := u.c.login(u.name, "pw-"+u.name); !res.Success {
			t.Fatalf("login %s: %+v", u.name, res)
		}
	}

	expectRedirect(t, alice.postJSON("/meetings/create", meetingRequest{Name: "retro"}), "/meetings")
	aliceItems := alice.listMeetings()
	if len(aliceItems) != 1 {
		t.Fatalf("expected one meeting for alice, got %d", len(aliceItems))
	}

	if items := bob.listMeetings(); len(items) != 0 {
		t.Fatalf("bob sees alice's meetings: %+v", items)
	}

	// A foreign delete looks like success but removes nothing.
	expectRedirect(t, bob.postForm("/meetings/delete/"+aliceItems[0].ID, nil), "/meetings")
	if items := alice.listMeetings(); len(items) != 1 {
		t.Fatalf("alice's meeting was deleted by bob")
	}
}

func TestUnauthenticatedRedirects(t *testing.T) {
	env := newTestEnv(t)
	anon := env.newClient()

	expectRedirect(t, anon.get("/meetings", ""), "/login")
	expectRedirect(t, anon.postForm("/meetings/create", url.Values{"name": {"x"}}), "/login")
	expectRedirect(t, anon.postForm("/meetings/delete/abc", nil), "/login")
	expectRedirect(t, anon.get("/meetings/events", ""), "/login")

	// Logging out without a session is harmless.
	expectRedirect(t, anon.postForm("/logout", nil), "/")
}

func TestTamperedCookieIsRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient()
	if res := c.signup("carol", "pw"); !res.Success {
		t.Fatalf("signup: %+v", res)
	}
	if res := c.login("carol", "pw"); !res.Success {
		t.Fatalf("login: %+v", res)
	}

	u, _ := url.Parse(env.srv.URL)
	cookies := c.http.Jar.Cookies(u)
	if len(cookies) != 1 || cookies[0].Name != SessionCookie {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}
	forged := *cookies[0]
	forged.Value = cookies[0].Value[:len(cookies[0].Value)-2] + "xx"
	c.http.Jar.SetCookies(u, []*http.Cookie{&forged})

	expectRedirect(t, c.get("/meetings", ""), "/login")
}

func TestSessionCookieAttributes(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient()
	c.signup("dave", "pw")
	resp := c.postJSON("/login", credentials{Username: "dave", Password: "pw"})
	resp.Body.Close()

	var sc *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == SessionCookie {
			sc = ck
		}
	}
	if sc == nil {
		t.Fatal("session cookie not set")
	}
	if !sc.HttpOnly || sc.SameSite != http.SameSiteStrictMode || sc.Path != "/" || sc.MaxAge <= 0 {
		t.Fatalf("unexpected cookie attributes: %+v", sc)
	}
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient()

	resp := c.postJSON("/signup", credentials{Username: "  ", Password: "pw"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if res := decode[result](t, resp); res.Success {
		t.Fatal("expected failure")
	}

	resp = c.postJSON("/login", map[string]any{"username": "x", "password": "y", "extra": true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
}

func TestLoginAcceptsFormBody(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient()
	c.signup("erin", "pw")

	resp := c.postForm("/login", url.Values{"username": {"erin"}, "password": {"pw"}})
	if res := decode[result](t, resp); !res.Success {
		t.Fatalf("form login failed: %+v", res)
	}
	if items := c.listMeetings(); len(items) != 0 {
		t.Fatalf("unexpected meetings: %+v", items)
	}
}

type brokenMeetings struct{}

func (brokenMeetings) Insert(context.Context, meetings.Meeting) error { return errors.New("db down") }
func (brokenMeetings) ListByOwner(context.Context, int64) ([]meetings.Meeting, error) {
	return nil, errors.New("db down")
}
func (brokenMeetings) DeleteByIDAndOwner(context.Context, string, int64) (int64, error) {
	return 0, errors.New("db down")
}

func TestStorageErrorsReturn500(t *testing.T) {
	env := newTestEnv(t, withMeetingStore(brokenMeetings{}))
	c := env.newClient()
	c.signup("frank", "pw")
	c.login("frank", "pw")

	for _, resp := range []*http.Response{
		c.postForm("/meetings/create", url.Values{"name": {"x"}}),
		c.postForm("/meetings/delete/abc", nil),
		c.get("/meetings", ""),
	} {
		resp.Body.Close()
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("%s %s: expected 500, got %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode)
		}
	}
}

func TestMeetingEventsStream(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient()
	c.signup("gina", "pw")
	c.login("gina", "pw")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/meetings/events", nil)
	resp := c.do(req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected stream response: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	reader := bufio.NewReader(resp.Body)
	if line, err := reader.ReadString('\n'); err != nil || !strings.HasPrefix(line, ": stream started") {
		t.Fatalf("missing stream preamble: %q %v", line, err)
	}

	expectRedirect(t, c.postForm("/meetings/create", url.Values{"name": {"sync"}}), "/meetings")

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "event: ") {
			if strings.TrimSpace(line) != "event: "+string(meetings.EventCreated) {
				t.Fatalf("unexpected event line: %q", line)
			}
			data, err := reader.ReadString('\n')
			if err != nil || !strings.Contains(data, `"name":"sync"`) {
				t.Fatalf("unexpected data line: %q %v", data, err)
			}
			return
		}
	}
}

func TestCloseStreamsEndsOpenStreams(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient()
	c.signup("hana", "pw")
	c.login("hana", "pw")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/meetings/events", nil)
	resp := c.do(req)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("read preamble: %v", err)
	}
	env.api.CloseStreams()
	env.api.CloseStreams()

	if _, err := io.ReadAll(reader); err != nil {
		t.Fatalf("stream did not end cleanly: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("stream outlived CloseStreams")
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	c := env.newClient()

	health := decode[map[string]any](t, c.get("/healthz", ""))
	if health["status"] != "ok" || health["service"] != serviceName {
		t.Fatalf("unexpected health: %v", health)
	}
	ready := decode[map[string]any](t, c.get("/readyz", ""))
	if ready["status"] != "ready" {
		t.Fatalf("unexpected ready: %v", ready)
	}

	resp := c.get("/", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("landing page: status=%d request id=%q", resp.StatusCode, resp.Header.Get("X-Request-ID"))
	}

	resp = c.get("/static/app.js", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("static asset: status %d", resp.StatusCode)
	}
}

func TestReadyFailure(t *testing.T) {
	users := auth.NewMemoryStore()
	authSvc, _ := auth.NewService(users, users.Sessions())
	codec, _ := auth.NewCookieCodec(testSecret)
	api, err := New(Deps{
		Auth:     authSvc,
		Cookies:  codec,
		Meetings: meetings.NewService(meetings.NewInMemory()),
		Ready:    failingReadiness{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestNewRequiresServices(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("expected error without services")
	}
}
