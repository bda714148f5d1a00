package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.Counter != nil {
		return m.GetCounter().GetValue()
	}
	return m.GetGauge().GetValue()
}

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                         "/",
		"/":                        "/",
		"/metrics":                 "/metrics",
		"/meetings":                "/meetings",
		"/meetings?x=1":            "/meetings",
		"/meetings/delete/abc123":  "/meetings/delete/:id",
		"/meetings/delete/":        "unmatched",
		"/meetings/delete/abc/def": "unmatched",
		"/wp-admin.php":            "unmatched",
		"/login":                   "/login",
		"/static/app.js":           "/static/*",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentRecordsStatus(t *testing.T) {
	Init()
	Init()

	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := value(t, httpRequestsTotal.WithLabelValues(http.MethodGet, "/meetings/delete/:id", "418"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/meetings/delete/xyz", nil))

	after := value(t, httpRequestsTotal.WithLabelValues(http.MethodGet, "/meetings/delete/:id", "418"))
	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", after-before)
	}
	if got := value(t, httpInFlight); got != 0 {
		t.Fatalf("in-flight gauge not released: %v", got)
	}
}

func TestStatusWriterFlushes(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := NewStatusWriter(rr)
	_, _ = sw.Write([]byte("data"))
	sw.WriteHeader(http.StatusInternalServerError)
	sw.Flush()
	if !rr.Flushed {
		t.Fatal("expected underlying recorder to be flushed")
	}
	if sw.Status() != http.StatusOK {
		t.Fatalf("late WriteHeader must not change the recorded status, got %d", sw.Status())
	}
}

func TestRecordAuth(t *testing.T) {
	before := value(t, authAttempts.WithLabelValues("login", "ok"))
	RecordAuth("login", "ok")
	if got := value(t, authAttempts.WithLabelValues("login", "ok")); got-before != 1 {
		t.Fatalf("unexpected auth counter delta: %v", got-before)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.Info("hidden")
	l.Warn("shown", "k", "v")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "shown" || entry["k"] != "v" {
		t.Fatalf("unexpected entry: %v", entry)
	}

	if _, err := NewLogger(&buf, "loud", "json"); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, err := NewLogger(&buf, "info", "xml"); err == nil {
		t.Fatal("expected invalid format error")
	}
}

func TestLogRequestUsesSharedLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer SetLogger(prev)

	LogRequest(context.Background(), slog.String("request_id", "r1"), slog.Int("status", 200))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["msg"] != "request_complete" || entry["request_id"] != "r1" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
