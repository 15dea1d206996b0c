package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"limit_chaser/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	ModePaper = "paper"
	ModeLive  = "live"

	QuoteModePoll   = "poll"
	QuoteModeStream = "stream"
)

// PaperSymbol seeds the simulated market for one symbol.
type PaperSymbol struct {
	Bid  decimal.Decimal `yaml:"bid"`
	Ask  decimal.Decimal `yaml:"ask"`
	Size int64           `yaml:"size"`
}

// Config holds all application settings.
// After LoadConfig reads the file, secrets are overridden from the environment.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Mode string `yaml:"mode"` // paper | live

	Broker struct {
		RestURL   string  `yaml:"rest_url"`
		WSURL     string  `yaml:"ws_url"`
		AccessKey string  `yaml:"access_key"`
		SecretKey string  `yaml:"secret_key"`
		AccountID string  `yaml:"account_id"`
		RateLimit float64 `yaml:"rate_limit"` // requests per second
		Burst     int     `yaml:"burst"`
		TimeoutMS int     `yaml:"timeout_ms"`
	} `yaml:"broker"`

	Engine struct {
		PollIntervalMS int    `yaml:"poll_interval_ms"`
		VenueTimeoutMS int    `yaml:"venue_timeout_ms"`
		MaxQuoteAgeMS  int    `yaml:"max_quote_age_ms"`
		StaleWarnAfter int    `yaml:"stale_warn_after"`
		AwayTicks      int    `yaml:"away_ticks"`
		QuoteMode      string `yaml:"quote_mode"` // poll | stream
	} `yaml:"engine"`

	Paper struct {
		Symbols         map[string]PaperSymbol `yaml:"symbols"`
		FillProbability float64                `yaml:"fill_probability"`
		PartialFills    bool                   `yaml:"partial_fills"`
		TickIntervalMS  int                    `yaml:"tick_interval_ms"`
		Seed            int64                  `yaml:"seed"`
	} `yaml:"paper"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	HTTP struct {
		Addr        string `yaml:"addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"http"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrConfigNotFound)
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, applies environment overrides and defaults, then validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "limit_chaser"
	}
	if c.Mode == "" {
		c.Mode = ModePaper
	}
	if c.Broker.RateLimit <= 0 {
		c.Broker.RateLimit = 2
	}
	if c.Broker.Burst <= 0 {
		c.Broker.Burst = 1
	}
	if c.Broker.TimeoutMS <= 0 {
		c.Broker.TimeoutMS = 5000
	}
	if c.Engine.PollIntervalMS <= 0 {
		c.Engine.PollIntervalMS = 500
	}
	if c.Engine.VenueTimeoutMS <= 0 {
		c.Engine.VenueTimeoutMS = 5000
	}
	if c.Engine.MaxQuoteAgeMS <= 0 {
		c.Engine.MaxQuoteAgeMS = 5000
	}
	if c.Engine.StaleWarnAfter <= 0 {
		c.Engine.StaleWarnAfter = 10
	}
	if c.Engine.AwayTicks <= 0 {
		c.Engine.AwayTicks = 1
	}
	if c.Engine.QuoteMode == "" {
		c.Engine.QuoteMode = QuoteModePoll
	}
	if c.Paper.TickIntervalMS <= 0 {
		c.Paper.TickIntervalMS = 250
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8080"
	}
	if c.HTTP.MetricsAddr == "" {
		c.HTTP.MetricsAddr = "127.0.0.1:6060"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModePaper:
		for sym, s := range c.Paper.Symbols {
			if !s.Bid.IsPositive() || !s.Ask.IsPositive() || s.Bid.GreaterThan(s.Ask) {
				return configErr("paper.symbols." + sym, "bid and ask must be positive and not crossed")
			}
		}
		if c.Paper.FillProbability < 0 || c.Paper.FillProbability > 1 {
			return configErr("paper.fill_probability", "must be within [0, 1]")
		}
	case ModeLive:
		if !hasPrefix(c.Broker.RestURL, "http://") && !hasPrefix(c.Broker.RestURL, "https://") {
			return configErr("broker.rest_url", "invalid REST URL: %s", c.Broker.RestURL)
		}
		if c.Engine.QuoteMode == QuoteModeStream &&
			!hasPrefix(c.Broker.WSURL, "ws://") && !hasPrefix(c.Broker.WSURL, "wss://") {
			return configErr("broker.ws_url", "invalid WS URL: %s", c.Broker.WSURL)
		}
		if c.Broker.AccessKey == "" || c.Broker.SecretKey == "" {
			return configErr("broker.access_key", "credentials are required in live mode")
		}
	default:
		return configErr("mode", "must be paper or live, got %s", c.Mode)
	}

	if c.Engine.QuoteMode != QuoteModePoll && c.Engine.QuoteMode != QuoteModeStream {
		return configErr("engine.quote_mode", "must be poll or stream, got %s", c.Engine.QuoteMode)
	}
	if c.Engine.MaxQuoteAgeMS < c.Engine.PollIntervalMS {
		return configErr("engine.max_quote_age_ms", "must not be shorter than poll_interval_ms")
	}
	return nil
}

func configErr(field, format string, args ...any) error {
	return &domain.ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

func hasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

// overrideWithEnv overwrites settings when the matching environment variable is set.
func overrideWithEnv(cfg *Config) {
	if mode := os.Getenv("LIMIT_CHASER_MODE"); mode != "" {
		cfg.Mode = mode
	}
	if key := os.Getenv("LIMIT_CHASER_BROKER_KEY"); key != "" {
		cfg.Broker.AccessKey = key
	}
	if secret := os.Getenv("LIMIT_CHASER_BROKER_SECRET"); secret != "" {
		cfg.Broker.SecretKey = secret
	}
	if account := os.Getenv("LIMIT_CHASER_BROKER_ACCOUNT"); account != "" {
		cfg.Broker.AccountID = account
	}
	if addr := os.Getenv("LIMIT_CHASER_HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if level := os.Getenv("LIMIT_CHASER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// PollInterval is the quote poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMS) * time.Millisecond
}

// VenueTimeout bounds one venue round trip.
func (c *Config) VenueTimeout() time.Duration {
	return time.Duration(c.Engine.VenueTimeoutMS) * time.Millisecond
}

// MaxQuoteAge is the age beyond which a quote is stale.
func (c *Config) MaxQuoteAge() time.Duration {
	return time.Duration(c.Engine.MaxQuoteAgeMS) * time.Millisecond
}

// BrokerTimeout is the HTTP client timeout for the live venue.
func (c *Config) BrokerTimeout() time.Duration {
	return time.Duration(c.Broker.TimeoutMS) * time.Millisecond
}

// TickInterval is how often the paper market moves.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Paper.TickIntervalMS) * time.Millisecond
}
