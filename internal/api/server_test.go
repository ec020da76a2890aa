package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/netpulse/internal/hub"
	"github.com/nerrad567/netpulse/internal/infrastructure/config"
	"github.com/nerrad567/netpulse/internal/infrastructure/database"
	"github.com/nerrad567/netpulse/internal/infrastructure/logging"
	"github.com/nerrad567/netpulse/internal/telemetry"
	"github.com/nerrad567/netpulse/internal/wire"
	"github.com/nerrad567/netpulse/migrations"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingSink captures frames delivered by the broadcaster.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *recordingSink) Send(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]byte(nil), frame...))
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) messages() []wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.Message, 0, len(r.frames))
	for _, f := range r.frames {
		m, err := wire.Decode(f)
		if err == nil {
			out = append(out, m)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// testServer creates a Server over a fresh broadcaster.
func testServer(t *testing.T, mutate ...func(*Deps)) (*Server, *hub.Broadcaster) {
	t.Helper()

	b := hub.New(hub.Options{Logger: logging.Discard()})
	t.Cleanup(b.Close)

	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
			CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		WS: config.WebSocketConfig{
			Path:           config.DefaultHubPath,
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:      logging.Discard(),
		Broadcaster: b,
		Version:     "test",
		Now:         func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup
	return srv, b
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

func openHistory(t *testing.T) (*database.DB, *telemetry.SQLiteHistory) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db, telemetry.NewSQLiteHistory(db.DB)
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{Broadcaster: hub.New(hub.Options{})}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without broadcaster should fail")
	}
}

func TestHealthCheck_NotStarted(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.Handler(), http.MethodGet, "/api/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decodeBody(t, w)
	if resp["ok"] != true {
		t.Errorf("ok = %v, want true", resp["ok"])
	}
	if resp["at"] != "2026-03-01T12:00:00Z" {
		t.Errorf("at = %v, want 2026-03-01T12:00:00Z", resp["at"])
	}
}

func TestHealth_ContentType(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.Handler(), http.MethodGet, "/api/health", "")

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.Handler(), http.MethodGet, "/api/health", "")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/broadcast", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://ops.example"}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://elsewhere.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.Handler(), http.MethodGet, "/api/nonexistent", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Device Status Tests ───────────────────────────────────────────

func TestDeviceStatus_NotifiesGroupOnly(t *testing.T) {
	srv, b := testServer(t)

	member, other := &recordingSink{}, &recordingSink{}
	memberID, _ := b.Connect(member)
	if _, err := b.Connect(other); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := b.JoinGroup(memberID, telemetry.DeviceGroup("alpha")); err != nil {
		t.Fatalf("JoinGroup() error = %v", err)
	}

	w := do(t, srv.Handler(), http.MethodPost, "/api/devices/alpha/status", `{"status":"rebooting"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusAccepted, w.Body.String())
	}
	if resp := decodeBody(t, w); resp["accepted"] != true {
		t.Errorf("accepted = %v, want true", resp["accepted"])
	}

	waitFor(t, "group notification", func() bool { return len(member.messages()) == 1 })
	msg := member.messages()[0]
	if msg.Target != wire.TargetReceiveNotification {
		t.Fatalf("target = %q", msg.Target)
	}
	text, err := msg.StringArg(0)
	if err != nil {
		t.Fatalf("StringArg() error = %v", err)
	}
	if want := "Status updated for alpha: rebooting at 2026-03-01T12:00:00Z"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}

	time.Sleep(20 * time.Millisecond)
	if n := len(other.messages()); n != 0 {
		t.Errorf("non-member received %d frames", n)
	}
}

func TestDeviceStatus_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty status", `{"status":""}`, ErrCodeValidation},
		{"blank status", `{"status":"   "}`, ErrCodeValidation},
		{"missing status", `{}`, ErrCodeValidation},
		{"invalid json", `{"status":`, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t)
			w := do(t, srv.Handler(), http.MethodPost, "/api/devices/alpha/status", tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if resp := decodeBody(t, w); resp["code"] != tt.code {
				t.Errorf("code = %v, want %s", resp["code"], tt.code)
			}
		})
	}
}

// ─── Broadcast Tests ───────────────────────────────────────────────

func TestBroadcast_ReachesEveryConnection(t *testing.T) {
	srv, b := testServer(t)

	sinks := []*recordingSink{{}, {}, {}}
	for i, s := range sinks {
		id, err := b.Connect(s)
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if i == 0 {
			_ = b.JoinGroup(id, telemetry.DeviceGroup("bravo"))
		}
	}

	w := do(t, srv.Handler(), http.MethodPost, "/api/broadcast", `{"message":"maintenance"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp := decodeBody(t, w); resp["sent"] != true {
		t.Errorf("sent = %v, want true", resp["sent"])
	}

	for i, s := range sinks {
		waitFor(t, "broadcast", func() bool { return len(s.messages()) == 1 })
		text, _ := s.messages()[0].StringArg(0) //nolint:errcheck // compared below
		if text != "maintenance" {
			t.Errorf("sink %d text = %q, want maintenance", i, text)
		}
	}
}

func TestBroadcast_RejectsEmptyMessage(t *testing.T) {
	srv, _ := testServer(t)

	for _, body := range []string{`{"message":""}`, `{}`, `not json`} {
		w := do(t, srv.Handler(), http.MethodPost, "/api/broadcast", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

// ─── History Tests ─────────────────────────────────────────────────

func TestHistory_Disabled(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.Handler(), http.MethodGet, "/api/devices/alpha/history", "")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	_, history := openHistory(t)
	srv, _ := testServer(t, func(d *Deps) { d.History = history })

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		s := telemetry.NewSample("alpha", 20+float64(i), 40, fixedNow.Add(time.Duration(i)*time.Second))
		if err := history.Record(ctx, s); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	w := do(t, srv.Handler(), http.MethodGet, "/api/devices/alpha/history?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.DeviceID != "alpha" || resp.Count != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Samples[0].CPU != 23 || resp.Samples[1].CPU != 22 {
		t.Errorf("samples not newest-first: %+v", resp.Samples)
	}
}

func TestHistory_EmptyDevice(t *testing.T) {
	_, history := openHistory(t)
	srv, _ := testServer(t, func(d *Deps) { d.History = history })

	w := do(t, srv.Handler(), http.MethodGet, "/api/devices/zulu/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"samples":[]`) {
		t.Errorf("body = %s, want empty samples array", w.Body.String())
	}
}

func TestHistory_InvalidLimit(t *testing.T) {
	_, history := openHistory(t)
	srv, _ := testServer(t, func(d *Deps) { d.History = history })

	for _, limit := range []string{"0", "-1", "201", "abc"} {
		w := do(t, srv.Handler(), http.MethodGet, "/api/devices/alpha/history?limit="+limit, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", limit, w.Code)
		}
	}
}

// ─── Metrics Tests ─────────────────────────────────────────────────

type fakeBackend bool

func (f fakeBackend) IsConnected() bool { return bool(f) }

func TestMetrics(t *testing.T) {
	db, _ := openHistory(t)
	srv, b := testServer(t, func(d *Deps) {
		d.MQTT = fakeBackend(true)
		d.DB = db.DB
	})

	id, _ := b.Connect(&recordingSink{})
	_ = b.JoinGroup(id, telemetry.DeviceGroup("alpha"))

	w := do(t, srv.Handler(), http.MethodGet, "/api/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var m SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Version != "test" {
		t.Errorf("Version = %q", m.Version)
	}
	if m.Hub.Connections != 1 || m.Hub.Groups != 1 {
		t.Errorf("Hub = %+v", m.Hub)
	}
	if m.Hub.GroupMembers[telemetry.DeviceGroup("alpha")] != 1 {
		t.Errorf("GroupMembers = %v", m.Hub.GroupMembers)
	}
	if m.MQTT == nil || !m.MQTT.Connected {
		t.Errorf("MQTT = %+v", m.MQTT)
	}
	if m.InfluxDB != nil {
		t.Errorf("InfluxDB = %+v, want omitted", m.InfluxDB)
	}
	if m.Database == nil {
		t.Error("Database metrics missing")
	}
	if m.Producer != nil {
		t.Error("Producer metrics should be omitted without a producer")
	}
}
