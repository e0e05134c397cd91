// Package main consumes a websocket tick feed through the live pipeline.
// On SIGINT/SIGTERM the feed is closed and open positions are flushed
// through the EOD exit before the session ledger is written.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"orderflow-lab/internal/backtest"
	"orderflow-lab/internal/config"
	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/idhash"
	"orderflow-lab/internal/ingestion"
	"orderflow-lab/internal/logging"
	"orderflow-lab/internal/observability"
	"orderflow-lab/internal/pipeline"
	"orderflow-lab/internal/reporting"
	"orderflow-lab/internal/storage"
	"orderflow-lab/internal/storage/migrations"
	pgstore "orderflow-lab/internal/storage/postgres"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Parse flags
	configPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	feedURL := flag.String("feed-url", "", "Websocket tick feed URL (overrides config)")
	symbol := flag.String("symbol", "", "Instrument symbol (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Do not persist the session ledger to PostgreSQL")
	outputDir := flag.String("output-dir", "output", "Directory for the session ledger CSV")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *feedURL != "" {
		cfg.Live.FeedURL = *feedURL
	}
	if *symbol != "" {
		cfg.Live.Symbol = *symbol
	}
	if *metricsAddr != "" {
		cfg.Live.MetricsAddr = *metricsAddr
	}
	if *useMemory {
		cfg.Storage.UseMemory = true
	}

	logger, err := logging.New(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.Named("live")

	if cfg.Live.FeedURL == "" {
		logger.Fatal("feed url is required (--feed-url or " + config.EnvFeedURL + ")")
	}
	if cfg.Live.Symbol == "" {
		logger.Fatal("symbol is required (--symbol or live.symbol)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *outputDir); err != nil {
		logger.Fatal("live session failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.Config, outputDir string) error {
	pc, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(observability.DefaultNamespace, reg)

	runID := idhash.NewRunID()
	live, err := pipeline.NewLive(pc, pipeline.LiveOptions{
		RunID:     runID,
		Symbol:    cfg.Live.Symbol,
		QueueSize: cfg.Live.QueueSize,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	var tradeStore storage.TradeStore
	if !cfg.Storage.UseMemory && cfg.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return err
		}
		tradeStore = storage.NewInstrumentedTradeStore(pgstore.NewTradeStore(pool), "postgres", metrics)
	}

	srv := startHTTP(logger, cfg.Live.MetricsAddr, reg, live)

	wsCfg := ingestion.DefaultWSFeedConfig()
	feed := ingestion.NewWSFeed(cfg.Live.FeedURL, cfg.Live.Symbol, &wsCfg, logger)
	ticks, err := feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe feed: %w", err)
	}

	live.Start()
	logger.Info("live session started",
		zap.String("run_id", runID),
		zap.String("symbol", cfg.Live.Symbol),
		zap.String("feed", cfg.Live.FeedURL),
	)

	consumeErr := make(chan error, 1)
	go func() { consumeErr <- live.Consume(ctx, ticks) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested, flushing open positions")
	case <-live.Done():
		logger.Warn("live pipeline exited")
	case err := <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("feed consumer stopped", zap.Error(err))
		}
	}

	if err := feed.Close(); err != nil {
		logger.Warn("close feed", zap.Error(err))
	}
	logger.Info("feed closed", zap.Int64("dropped_messages", feed.Dropped()))
	feedErr := feed.Err()
	if feedErr != nil {
		logger.Error("feed rejected the session", zap.Error(feedErr))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	res, stopErr := live.Stop(stopCtx)
	if res != nil {
		if err := saveSession(stopCtx, tradeStore, res, outputDir); err != nil {
			logger.Error("save session", zap.Error(err))
		}
		summary := reporting.Summarize(res.Trades)
		logger.Info("session summary",
			zap.Int("trades", summary.TotalTrades),
			zap.Int("eod", summary.Count(domain.ExitReasonEOD)),
			zap.Float64("dollars", summary.TotalDollars),
		)
	}

	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	return errors.Join(stopErr, feedErr)
}

// startHTTP serves /metrics, /health and a JSON /snapshot of live state.
func startHTTP(logger *zap.Logger, addr string, reg *prometheus.Registry, live *pipeline.Live) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(newSnapshotView(live.Snapshot())); err != nil {
			logger.Warn("encode snapshot", zap.Error(err))
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}

// snapshotView is the JSON shape of pipeline.Snapshot. Profile levels are
// flattened because float64 map keys do not encode.
type snapshotView struct {
	Ticks           int                          `json:"ticks"`
	LastTimestampMs int64                        `json:"last_timestamp_ms"`
	Levels          []domain.PriceLevelAggregate `json:"levels"`
	OpenPositions   []domain.Position            `json:"open_positions"`
	Trades          int                          `json:"trades"`
}

func newSnapshotView(s pipeline.Snapshot) snapshotView {
	prices := make([]float64, 0, len(s.Profile))
	for p := range s.Profile {
		prices = append(prices, p)
	}
	slices.Sort(prices)

	levels := make([]domain.PriceLevelAggregate, 0, len(prices))
	for _, p := range prices {
		levels = append(levels, s.Profile[p])
	}
	return snapshotView{
		Ticks:           s.Ticks,
		LastTimestampMs: s.LastTimestampMs,
		Levels:          levels,
		OpenPositions:   s.OpenPositions,
		Trades:          len(s.Trades),
	}
}

// saveSession persists the ledger when a store is configured and always
// writes it as CSV.
func saveSession(ctx context.Context, store storage.TradeStore, res *backtest.Results, outputDir string) error {
	if store != nil && len(res.Trades) > 0 {
		ledger := make([]*domain.Trade, 0, len(res.Trades))
		for i := range res.Trades {
			ledger = append(ledger, &res.Trades[i])
		}
		if err := store.InsertBulk(ctx, ledger); err != nil {
			return fmt.Errorf("persist trades: %w", err)
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(outputDir, fmt.Sprintf("live_trades_%s.csv", res.RunID))
	if err := os.WriteFile(path, []byte(reporting.RenderTradesCSV(res.Trades)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
