package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"limit_chaser/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	body = strings.ReplaceAll(body, "$DIR", filepath.ToSlash(dir))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestBootstrap_PaperMode(t *testing.T) {
	path := writeConfig(t, `
mode: paper
engine:
  poll_interval_ms: 20
  max_quote_age_ms: 5000
paper:
  symbols:
    AAPL: { bid: "150.00", ask: "150.02", size: 100 }
  tick_interval_ms: 20
storage:
  path: $DIR/journal.db
logging:
  level: error
  dir: $DIR/logs
`)

	b := NewBootstrap(path)
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := b.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	handle, err := b.Service.Start(context.Background(), "AAPL", domain.SideBuy, 10)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		o, _ := b.Service.Snapshot(handle)
		if o.VenueOrderID != "" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("order never reached the venue")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := b.Close(closeCtx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	o, _ := b.Service.Snapshot(handle)
	if !o.State.IsTerminal() {
		t.Errorf("Expected a terminal order after close, got %s", o.State)
	}
}

func TestBootstrap_MissingConfig(t *testing.T) {
	b := NewBootstrap(filepath.Join(t.TempDir(), "absent.yaml"))
	if err := b.Initialize(); !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}
