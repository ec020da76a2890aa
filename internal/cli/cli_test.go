package cli

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/netpulse/internal/api"
	"github.com/nerrad567/netpulse/internal/hub"
	"github.com/nerrad567/netpulse/internal/infrastructure/config"
	"github.com/nerrad567/netpulse/internal/infrastructure/logging"
	"github.com/nerrad567/netpulse/internal/session"
	"github.com/nerrad567/netpulse/internal/telemetry"
	"github.com/nerrad567/netpulse/internal/wire"
)

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type frameSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *frameSink) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, msg)
	return nil
}

func (s *frameSink) Close() error { return nil }

func (s *frameSink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.frames {
		m, err := wire.Decode(f)
		if err != nil || m.Target != wire.TargetReceiveNotification {
			continue
		}
		if text, err := m.StringArg(0); err == nil {
			out = append(out, text)
		}
	}
	return out
}

func newServer(t *testing.T) (*hub.Broadcaster, *httptest.Server) {
	t.Helper()
	b := hub.New(hub.Options{Logger: logging.Discard()})
	t.Cleanup(b.Close)

	srv, err := api.New(api.Deps{
		Config: config.APIConfig{CORS: config.CORSConfig{AllowedOrigins: []string{"*"}}},
		WS: config.WebSocketConfig{
			Path:           config.DefaultHubPath,
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:      logging.Discard(),
		Broadcaster: b,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("api.New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close() //nolint:errcheck // Test cleanup
	})
	return b, ts
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr syncBuffer
	root := NewRootCommand(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthCommand(t *testing.T) {
	_, ts := newServer(t)

	out, _, err := execute(t, "health", "--api", ts.URL)
	if err != nil {
		t.Fatalf("health error = %v", err)
	}
	if !strings.Contains(out, `"ok":true`) {
		t.Errorf("output = %q, want ok:true", out)
	}
}

func TestHealthCommandUnreachable(t *testing.T) {
	if _, _, err := execute(t, "health", "--api", "http://127.0.0.1:1"); err == nil {
		t.Error("health against a closed port: expected error")
	}
}

func TestBroadcastCommand(t *testing.T) {
	b, ts := newServer(t)
	sink := &frameSink{}
	if _, err := b.Connect(sink); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	out, _, err := execute(t, "broadcast", "--api", ts.URL, "maintenance", "at", "noon")
	if err != nil {
		t.Fatalf("broadcast error = %v", err)
	}
	if !strings.Contains(out, `"sent":true`) {
		t.Errorf("output = %q", out)
	}
	waitFor(t, "broadcast delivery", func() bool { return len(sink.texts()) == 1 })
	if got := sink.texts()[0]; got != "maintenance at noon" {
		t.Errorf("notification = %q", got)
	}
}

func TestStatusCommand(t *testing.T) {
	b, ts := newServer(t)
	member := &frameSink{}
	id, err := b.Connect(member)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := b.JoinGroup(id, telemetry.DeviceGroup("bravo")); err != nil {
		t.Fatalf("JoinGroup() error = %v", err)
	}

	if _, _, err := execute(t, "status", "--api", ts.URL, "bravo", "rebooting"); err != nil {
		t.Fatalf("status error = %v", err)
	}
	waitFor(t, "status delivery", func() bool { return len(member.texts()) == 1 })
	if got := member.texts()[0]; !strings.HasPrefix(got, "Status updated for bravo: rebooting at ") {
		t.Errorf("notification = %q", got)
	}
}

func TestStatusCommandReportsServerError(t *testing.T) {
	_, ts := newServer(t)

	_, _, err := execute(t, "status", "--api", ts.URL, "bravo", " ")
	if err == nil {
		t.Fatal("blank status: expected error")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "validation_error") {
		t.Errorf("error = %v, want 400 validation_error", err)
	}
}

func TestStatusCommandNeedsArguments(t *testing.T) {
	if _, _, err := execute(t, "status", "bravo"); err == nil {
		t.Error("status with one argument: expected usage error")
	}
}

func TestWatchCommandPrintsSamples(t *testing.T) {
	b, ts := newServer(t)
	hubURL := "ws" + strings.TrimPrefix(ts.URL, "http") + config.DefaultHubPath

	var stdout, stderr syncBuffer
	root := NewRootCommand(&stdout, &stderr)
	root.SetArgs([]string{"watch", "--url", hubURL, "--group", "alpha", "--capacity", "5", "--duration", "2s"})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(context.Background()) }()

	waitFor(t, "alpha membership", func() bool {
		return len(b.MembersOf(telemetry.DeviceGroup("alpha"))) == 1
	})

	pub := hub.NewPublisher(b)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := pub.SampleToDevice(telemetry.NewSample("alpha", 45.2, 60.1, at)); err != nil {
		t.Fatalf("SampleToDevice() error = %v", err)
	}
	if _, err := pub.NotifyAll(telemetry.Notification{Text: "maintenance"}); err != nil {
		t.Fatalf("NotifyAll() error = %v", err)
	}
	waitFor(t, "sample output", func() bool {
		return strings.Contains(stdout.String(), "** maintenance")
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop after --duration")
	}

	out := stdout.String()
	for _, want := range []string{
		"-- connected",
		"alpha",
		"cpu= 45.2%",
		"mem= 60.1%",
		"received 1 samples, 1 buffered (capacity 5)",
		"latest alpha cpu=45.2 mem=60.1 at 2026-03-01T12:00:00Z",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWatchCommandUnreachable(t *testing.T) {
	_, _, err := execute(t, "watch", "--url", "ws://127.0.0.1:1/hubs/network", "--duration", "1s")
	if err == nil {
		t.Error("watch against a closed port: expected error")
	}
}

func TestWatchEndsWhenConnectionLost(t *testing.T) {
	b, ts := newServer(t)
	hubURL := "ws" + strings.TrimPrefix(ts.URL, "http") + config.DefaultHubPath

	var stdout, stderr syncBuffer
	g := &globals{logLevel: "error", stdout: &stdout, stderr: &stderr}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, g, session.Options{
			URL:         hubURL,
			RetryDelays: []time.Duration{},
			Logger:      logging.Discard(),
		}, "alpha")
	}()

	var members []string
	waitFor(t, "alpha membership", func() bool {
		members = b.MembersOf(telemetry.DeviceGroup("alpha"))
		return len(members) == 1
	})
	b.Disconnect(members[0])

	select {
	case err := <-done:
		if !errors.Is(err, session.ErrRetriesExhausted) {
			t.Errorf("watch error = %v, want ErrRetriesExhausted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch kept running after the connection was lost")
	}
	if ctx.Err() != nil {
		t.Error("watch only returned once its context expired")
	}
	if out := stdout.String(); !strings.Contains(out, "-- disconnected") {
		t.Errorf("output missing disconnected state:\n%s", out)
	}
}
