package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/netpulse/internal/infrastructure/logging"
	"github.com/nerrad567/netpulse/internal/telemetry"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("NETPULSE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_InvalidSettings(t *testing.T) {
	t.Setenv("NETPULSE_CONFIG", writeConfig(t, `
database:
  enabled: true
  path: ""
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail validation with an empty database path")
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("NETPULSE_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("NETPULSE_CONFIG", "/custom/path/config.yaml")

	if path := getConfigPath(); path != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q", path)
	}
}

func TestRun_StartupAndShutdown(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	t.Setenv("NETPULSE_CONFIG", writeConfig(t, fmt.Sprintf(`
database:
  enabled: true
  path: %q
  wal_mode: true
  busy_timeout: 5
  retention_hours: 1

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stderr

api:
  host: "127.0.0.1"
  port: %d

producer:
  enabled: true
  interval_ms: 20
  devices: [alpha, bravo]
`, filepath.Join(dir, "netpulse.db"), port)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/devices/alpha/history?limit=5", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		select {
		case err := <-errCh:
			t.Fatalf("run() exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never served history: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v, want nil on clean shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestRecorderOrNil(t *testing.T) {
	if recorderOrNil(nil) != nil {
		t.Error("recorderOrNil(nil) != nil")
	}

	var calls int
	one := telemetry.RecorderFunc(func(context.Context, telemetry.Sample) error {
		calls++
		return nil
	})
	if _, ok := recorderOrNil(telemetry.MultiRecorder{one}).(telemetry.RecorderFunc); !ok {
		t.Error("single recorder should be returned unwrapped")
	}

	multi := recorderOrNil(telemetry.MultiRecorder{one, one})
	if err := multi.Record(context.Background(), telemetry.Sample{}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

type fakePruner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakePruner) Prune(_ context.Context, olderThan time.Duration) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 3, p.err
}

func (p *fakePruner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestPruneHistoryRunsImmediatelyAndStops(t *testing.T) {
	for _, failing := range []bool{false, true} {
		t.Run(fmt.Sprintf("failing=%v", failing), func(t *testing.T) {
			store := &fakePruner{}
			if failing {
				store.err = errors.New("disk I/O error")
			}
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				pruneHistory(ctx, store, time.Hour, logging.Discard())
			}()

			deadline := time.Now().Add(2 * time.Second)
			for store.Calls() == 0 {
				if time.Now().After(deadline) {
					t.Fatal("prune never ran")
				}
				time.Sleep(5 * time.Millisecond)
			}
			cancel()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("pruneHistory did not return after cancel")
			}
		})
	}
}
