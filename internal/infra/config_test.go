package infra

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"limit_chaser/internal/domain"
)

const paperYAML = `
app:
  name: limit_chaser
mode: paper
engine:
  poll_interval_ms: 250
  quote_mode: stream
paper:
  fill_probability: 0.5
  symbols:
    AAPL:
      bid: "150.00"
      ask: "150.02"
      size: 100
`

func TestParseConfig_PaperDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(paperYAML))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.PollInterval() != 250*time.Millisecond {
		t.Errorf("Expected 250ms poll interval, got %s", cfg.PollInterval())
	}
	if cfg.VenueTimeout() != 5*time.Second {
		t.Errorf("Expected default venue timeout, got %s", cfg.VenueTimeout())
	}
	if cfg.Engine.AwayTicks != 1 {
		t.Errorf("Expected away_ticks default 1, got %d", cfg.Engine.AwayTicks)
	}
	if cfg.Engine.QuoteMode != QuoteModeStream {
		t.Errorf("Expected stream mode, got %s", cfg.Engine.QuoteMode)
	}
	sym, ok := cfg.Paper.Symbols["AAPL"]
	if !ok || sym.Bid.String() != "150" || sym.Size != 100 {
		t.Errorf("unexpected paper symbol %+v", sym)
	}
}

func TestParseConfig_Validation(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"unknown mode", "mode: demo\n", "mode"},
		{"live without url", "mode: live\n", "broker.rest_url"},
		{"live without keys", "mode: live\nbroker:\n  rest_url: https://api.example.com\n", "broker.access_key"},
		{"bad quote mode", "engine:\n  quote_mode: push\n", "engine.quote_mode"},
		{"crossed seed", "paper:\n  symbols:\n    X:\n      bid: \"2\"\n      ask: \"1\"\n", "paper.symbols.X"},
		{"quote age below poll", "engine:\n  poll_interval_ms: 1000\n  max_quote_age_ms: 100\n", "engine.max_quote_age_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			var ce *domain.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, ce.Field)
			}
		})
	}
}

func TestParseConfig_EnvOverride(t *testing.T) {
	t.Setenv("LIMIT_CHASER_MODE", "live")
	t.Setenv("LIMIT_CHASER_BROKER_KEY", "key")
	t.Setenv("LIMIT_CHASER_BROKER_SECRET", "secret")

	cfg, err := ParseConfig([]byte("broker:\n  rest_url: https://api.example.com\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Mode != ModeLive || cfg.Broker.AccessKey != "key" || cfg.Broker.SecretKey != "secret" {
		t.Errorf("env overrides not applied: %+v", cfg.Broker)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoadConfig_SampleFile(t *testing.T) {
	if _, err := os.Stat("../../configs/config.yaml"); err != nil {
		t.Skip("sample config not present")
	}
	if _, err := LoadConfig("../../configs/config.yaml"); err != nil {
		t.Errorf("sample config should load: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
