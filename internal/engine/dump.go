package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"limit_chaser/internal/domain"
	"limit_chaser/internal/event"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// recoverPanic fails the order and writes a state dump if the loop panicked.
func (m *Manager) recoverPanic() {
	r := recover()
	if r == nil {
		return
	}
	m.logger.Error("CRITICAL_PANIC_DETECTED",
		slog.Any("panic", r),
		slog.String("stack", string(debug.Stack())))

	m.mu.Lock()
	if !m.order.State.IsTerminal() {
		m.fail(event.KindInternal, fmt.Errorf("panic: %v", r))
	}
	m.mu.Unlock()

	path := filepath.Join(m.cfg.DumpDir, "panic_dump_"+m.order.Handle+".json")
	if err := m.DumpState(path); err != nil {
		m.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}

// DumpState writes the order and its full event history to filename (for post-mortem).
func (m *Manager) DumpState(filename string) error {
	m.logger.Info("Dumping internal state...", slog.String("file", filename))

	m.mu.Lock()
	data := struct {
		Order         domain.WorkingOrder `json:"order"`
		StopRequested bool                `json:"stop_requested"`
		StaleCycles   int                 `json:"stale_cycles"`
		Events        []event.Event       `json:"events"`
	}{
		Order:         m.order.Snapshot(),
		StopRequested: m.stopRequested,
		StaleCycles:   m.staleCycles,
	}
	m.mu.Unlock()
	data.Events = m.events.Events()

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		return fmt.Errorf("write state dump: %w", err)
	}
	return nil
}
