package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"limit_chaser/internal/api"
	"limit_chaser/internal/domain"
	"limit_chaser/internal/engine"
	"limit_chaser/internal/execution"
	"limit_chaser/internal/exposure"
	"limit_chaser/internal/infra"
	"limit_chaser/internal/infra/broker"
	"limit_chaser/internal/infra/storage"
	"limit_chaser/internal/quote"
	"limit_chaser/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// quoteFeed is a quote source that can also value positions.
type quoteFeed interface {
	domain.QuoteSource
	domain.MarkSource
}

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config   *infra.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *infra.Metrics
	Journal  *storage.Journal
	Service  *service.OrderService
	API      *api.Server

	market *execution.SimMarket
	stream *broker.StreamWorker
	wg     sync.WaitGroup
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize loads configuration and builds every component. Nothing runs until Run.
func (b *Bootstrap) Initialize() error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	b.Logger.Info("🚀 Bootstrapping limit_chaser...", slog.String("version", cfg.App.Version))

	// 3. Metrics
	b.Registry = prometheus.NewRegistry()
	b.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	b.Metrics = infra.NewMetrics(b.Registry)

	// 4. Journal (DB)
	journal, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	b.Journal = journal
	b.Logger.Info("✅ Journal initialized")

	// 5. Venue and market data
	book := quote.NewBook()
	var (
		venue   domain.Venue
		md      domain.MarketData
		fills   domain.FillFeed
		watcher service.Watcher
	)
	switch cfg.Mode {
	case infra.ModePaper:
		paper := execution.NewPaperVenue(execution.PaperConfig{
			FillProbability: cfg.Paper.FillProbability,
			PartialFills:    cfg.Paper.PartialFills,
			Seed:            cfg.Paper.Seed,
		}, b.Logger)
		symbols := make(map[string]execution.SimSymbol, len(cfg.Paper.Symbols))
		for sym, s := range cfg.Paper.Symbols {
			symbols[sym] = execution.SimSymbol{Bid: s.Bid, Ask: s.Ask, Size: s.Size}
		}
		b.market = execution.NewSimMarket(symbols, cfg.TickInterval(), cfg.Paper.Seed, book, paper, b.Logger)
		venue, md, fills = paper, b.market, paper
		b.Logger.Info("✅ Paper venue ready", slog.Int("symbols", len(symbols)))

	case infra.ModeLive:
		client := broker.NewClient(broker.ClientConfig{
			BaseURL:   cfg.Broker.RestURL,
			AccessKey: cfg.Broker.AccessKey,
			SecretKey: cfg.Broker.SecretKey,
			AccountID: cfg.Broker.AccountID,
			RateLimit: cfg.Broker.RateLimit,
			Burst:     cfg.Broker.Burst,
			Timeout:   cfg.BrokerTimeout(),
		}, b.Logger)
		venue, md = client, client
		if cfg.Broker.WSURL != "" {
			b.stream = broker.NewStreamWorker(cfg.Broker.WSURL, book, b.Logger)
			fills = b.stream
			if cfg.Engine.QuoteMode == infra.QuoteModeStream {
				watcher = b.stream
			}
		} else {
			b.Logger.Warn("No broker stream configured; fills are seen only through status queries")
		}
		b.Logger.Info("✅ Broker client ready", slog.String("rest_url", cfg.Broker.RestURL))

	default:
		return fmt.Errorf("unsupported mode %q", cfg.Mode)
	}

	// 6. Quote source
	var quotes quoteFeed
	if cfg.Engine.QuoteMode == infra.QuoteModeStream {
		quotes = quote.NewStream(book, cfg.MaxQuoteAge())
	} else {
		quotes = quote.NewPoller(md, cfg.PollInterval(), cfg.MaxQuoteAge())
	}

	// 7. Order service and API
	svc, err := service.NewOrderService(service.Deps{
		Venue:   venue,
		Quotes:  quotes,
		Fills:   fills,
		Watcher: watcher,
		Tracker: exposure.NewTracker(quotes),
		Journal: journal,
		Metrics: b.Metrics,
		Logger:  b.Logger,
	}, service.Config{
		Engine: engine.Config{
			VenueTimeout:   cfg.VenueTimeout(),
			PollInterval:   cfg.PollInterval(),
			StaleWarnAfter: cfg.Engine.StaleWarnAfter,
			DumpDir:        cfg.Logging.Dir,
		},
		AwayTicks:    cfg.Engine.AwayTicks,
		QuoteTimeout: cfg.VenueTimeout(),
	})
	if err != nil {
		return err
	}
	b.Service = svc
	b.API = api.NewServer(svc, journal, b.Logger)

	b.Logger.Info("✅ Order service ready",
		slog.String("quote_mode", cfg.Engine.QuoteMode),
		slog.Int("away_ticks", cfg.Engine.AwayTicks))
	return nil
}

// Run starts the background workers: market simulation or broker stream, and the fill router.
func (b *Bootstrap) Run(ctx context.Context) error {
	if b.market != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.market.Run(ctx)
		}()
	}
	if b.stream != nil {
		if err := b.stream.Connect(ctx); err != nil {
			return fmt.Errorf("connect broker stream: %w", err)
		}
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.Service.Run(ctx); err != nil {
			b.Logger.Error("Fill router failed", slog.Any("error", err))
		}
	}()
	return nil
}

// Close stops every order and releases resources. ctx bounds how long orders get to cancel.
func (b *Bootstrap) Close(ctx context.Context) error {
	var errs []error
	if b.Service != nil {
		if err := b.Service.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown orders: %w", err))
		}
	}
	if b.stream != nil {
		b.stream.Disconnect()
	}
	b.wg.Wait()
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}
