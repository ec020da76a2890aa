package mqttbridge

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseStatusLength(t *testing.T) {
	now := time.Unix(0, 0)

	if _, _, err := parseStatus([]byte(strings.Repeat("x", maxStatusLength)), now); err != nil {
		t.Errorf("status at limit: error = %v", err)
	}
	_, _, err := parseStatus([]byte(strings.Repeat("x", maxStatusLength+1)), now)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("status over limit: error = %v, want ErrInvalidStatus", err)
	}
}

func TestParseStatusZeroTimestampFallsBack(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	status, at, err := parseStatus([]byte(`{"status":"ok","timestamp":"0001-01-01T00:00:00Z"}`), now)
	if err != nil {
		t.Fatalf("parseStatus() error = %v", err)
	}
	if status != "ok" || !at.Equal(now) {
		t.Errorf("parseStatus() = (%q, %v), want (ok, %v)", status, at, now)
	}
}
