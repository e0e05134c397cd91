// Package main runs the batch order-flow pipeline over a CSV file or a
// stored tick range and writes the trade ledger and summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"orderflow-lab/internal/config"
	"orderflow-lab/internal/domain"
	"orderflow-lab/internal/idhash"
	"orderflow-lab/internal/ingestion"
	"orderflow-lab/internal/logging"
	"orderflow-lab/internal/observability"
	"orderflow-lab/internal/pipeline"
	"orderflow-lab/internal/replay"
	"orderflow-lab/internal/reporting"
	"orderflow-lab/internal/storage"
	chstore "orderflow-lab/internal/storage/clickhouse"
	"orderflow-lab/internal/storage/memory"
	"orderflow-lab/internal/storage/migrations"
	pgstore "orderflow-lab/internal/storage/postgres"
)

type options struct {
	configPath    string
	csvPath       string
	symbol        string
	from, to      string
	resort        bool
	lookaheadBias bool
	compare       bool
	useMemory     bool
	persist       bool
	runID         string
	outputDir     string
}

func main() {
	var opts options

	// Parse flags
	flag.StringVar(&opts.configPath, "config", "", "YAML config file (defaults apply when empty)")
	flag.StringVar(&opts.csvPath, "csv", "", "Tick CSV file; when empty ticks are read from the tick store")
	flag.StringVar(&opts.symbol, "symbol", "", "Instrument symbol (required)")
	flag.StringVar(&opts.from, "from", "", "Range start for stored ticks (epoch ms or timestamp)")
	flag.StringVar(&opts.to, "to", "", "Range end for stored ticks, inclusive")
	flag.BoolVar(&opts.resort, "resort", false, "Re-sort out-of-order CSV rows instead of rejecting the file")
	flag.BoolVar(&opts.lookaheadBias, "lookahead-bias", false, "Skip the signal shift; results are labeled LOOKAHEAD_BIAS")
	flag.BoolVar(&opts.compare, "compare", false, "Run causal and look-ahead modes and report the P&L inflation")
	flag.BoolVar(&opts.useMemory, "use-memory", false, "Use in-memory storage")
	flag.BoolVar(&opts.persist, "persist", false, "Persist trades and signals to the trade store")
	flag.StringVar(&opts.runID, "run-id", "", "Run identifier (random when empty)")
	flag.StringVar(&opts.outputDir, "output-dir", "output", "Directory for ledger CSV and Markdown report")

	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if opts.useMemory {
		cfg.Storage.UseMemory = true
	}

	logger, err := logging.New(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.Named("backtest")

	// Validate required flags
	if opts.symbol == "" {
		logger.Fatal("--symbol is required")
	}
	if opts.compare && opts.lookaheadBias {
		logger.Fatal("--compare and --lookahead-bias are mutually exclusive")
	}
	if opts.runID == "" {
		opts.runID = idhash.NewRunID()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, opts); err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.Config, opts options) error {
	pc, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(observability.DefaultNamespace, reg)

	ticks, err := loadTicks(ctx, logger, cfg, opts, metrics)
	if err != nil {
		return err
	}
	if len(ticks) == 0 {
		return fmt.Errorf("no ticks for %s", opts.symbol)
	}

	p, err := pipeline.New(pc, logger)
	if err != nil {
		return err
	}
	p.WithMetrics(metrics)

	tradeStore, signalStore, closeStores, err := openLedgerStores(ctx, cfg, opts.persist, metrics)
	if err != nil {
		return err
	}
	defer closeStores()

	gen := reporting.NewGenerator(tradeStore)

	if opts.compare {
		cmp, err := p.Compare(ctx, ticks, opts.runID, opts.symbol)
		if err != nil {
			return err
		}
		for _, res := range []*pipeline.Result{cmp.Causal, cmp.Lookahead} {
			if err := persist(ctx, tradeStore, signalStore, res, opts.persist); err != nil {
				return err
			}
			if err := writeRun(gen, res, opts.outputDir); err != nil {
				return err
			}
		}
		comparison := gen.CompareTrades(cmp.Causal.Backtest.Trades, cmp.Lookahead.Backtest.Trades)
		path := filepath.Join(opts.outputDir, fmt.Sprintf("comparison_%s.md", opts.runID))
		if err := writeFile(path, reporting.RenderComparisonMarkdown(comparison)); err != nil {
			return err
		}
		logger.Info("look-ahead comparison",
			zap.String("run_id", opts.runID),
			zap.Float64("causal_dollars", comparison.Causal.TotalDollars),
			zap.Float64("lookahead_dollars", comparison.Lookahead.TotalDollars),
			zap.Float64("inflation_dollars", comparison.InflationDollars),
			zap.String("report", path),
		)
		return writeMetrics(reg, opts)
	}

	mode := domain.ModeCausal
	if opts.lookaheadBias {
		mode = domain.ModeLookahead
	}
	res, err := p.Run(ctx, ticks, opts.runID, opts.symbol, mode)
	if err != nil {
		return err
	}
	if err := persist(ctx, tradeStore, signalStore, res, opts.persist); err != nil {
		return err
	}
	if err := writeRun(gen, res, opts.outputDir); err != nil {
		return err
	}
	return writeMetrics(reg, opts)
}

// writeMetrics dumps the run's counters in the node_exporter textfile format.
func writeMetrics(g prometheus.Gatherer, opts options) error {
	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(opts.outputDir, fmt.Sprintf("metrics_%s.prom", opts.runID))
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// loadTicks decodes the CSV file, or reads the requested range from ClickHouse.
func loadTicks(ctx context.Context, logger *zap.Logger, cfg *config.Config, opts options, metrics *observability.Metrics) ([]*domain.Tick, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if opts.csvPath != "" {
		res, err := ingestion.DecodeCSVFile(opts.csvPath, ingestion.CSVOptions{
			Symbol:   opts.symbol,
			Location: loc,
			Resort:   opts.resort,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", opts.csvPath, err)
		}
		logger.Info("csv decoded",
			zap.Int("rows", res.Rows),
			zap.Int("ticks", len(res.Ticks)),
			zap.Int("skipped", res.Skipped),
			zap.Bool("resorted", res.Resorted),
		)
		return res.Ticks, nil
	}

	if cfg.Storage.UseMemory {
		return nil, fmt.Errorf("--csv is required with in-memory storage")
	}
	if cfg.Storage.ClickHouseDSN == "" {
		return nil, fmt.Errorf("clickhouse dsn is required to read stored ticks (set %s)", config.EnvClickHouseDSN)
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	defer conn.Close()

	runner := replay.NewRunner(storage.NewInstrumentedTickStore(chstore.NewTickStore(conn), "clickhouse", metrics))
	if opts.from == "" && opts.to == "" {
		return runner.LoadAll(ctx, opts.symbol)
	}
	from, err := ingestion.ParseTimestamp(opts.from, loc)
	if err != nil {
		return nil, fmt.Errorf("--from: %w", err)
	}
	to, err := ingestion.ParseTimestamp(opts.to, loc)
	if err != nil {
		return nil, fmt.Errorf("--to: %w", err)
	}
	return runner.Load(ctx, opts.symbol, from, to)
}

// openLedgerStores returns Postgres stores when persisting to a database,
// in-memory stores otherwise.
func openLedgerStores(ctx context.Context, cfg *config.Config, persist bool, metrics *observability.Metrics) (storage.TradeStore, storage.SignalStore, func(), error) {
	if !persist || cfg.Storage.UseMemory {
		return memory.NewTradeStore(), memory.NewSignalStore(), func() {}, nil
	}
	if cfg.Storage.PostgresDSN == "" {
		return nil, nil, nil, fmt.Errorf("postgres dsn is required with --persist (set %s)", config.EnvPostgresDSN)
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	trades := storage.NewInstrumentedTradeStore(pgstore.NewTradeStore(pool), "postgres", metrics)
	signals := storage.NewInstrumentedSignalStore(pgstore.NewSignalStore(pool), "postgres", metrics)
	return trades, signals, pool.Close, nil
}

func persist(ctx context.Context, trades storage.TradeStore, signals storage.SignalStore, res *pipeline.Result, enabled bool) error {
	if !enabled {
		return nil
	}

	records := make([]*domain.SignalRecord, 0, len(res.Causal))
	for i, cs := range res.Causal {
		records = append(records, &domain.SignalRecord{RunID: res.RunID, Index: i, CausalSignal: cs})
	}
	if err := signals.InsertBulk(ctx, records); err != nil {
		return fmt.Errorf("persist signals: %w", err)
	}

	ledger := make([]*domain.Trade, 0, len(res.Backtest.Trades))
	for i := range res.Backtest.Trades {
		ledger = append(ledger, &res.Backtest.Trades[i])
	}
	if err := trades.InsertBulk(ctx, ledger); err != nil {
		return fmt.Errorf("persist trades: %w", err)
	}
	return nil
}

// writeRun writes the ledger CSV and Markdown report of one run.
func writeRun(gen *reporting.Generator, res *pipeline.Result, outputDir string) error {
	report := gen.FromTrades(res.RunID, res.Symbol, res.Mode, res.Backtest.Trades)

	if err := writeFile(filepath.Join(outputDir, fmt.Sprintf("trades_%s.csv", res.RunID)),
		reporting.RenderTradesCSV(report.Trades)); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outputDir, fmt.Sprintf("exit_reasons_%s.csv", res.RunID)),
		reporting.RenderExitReasonsCSV(report.Summary)); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outputDir, fmt.Sprintf("report_%s.md", res.RunID)),
		reporting.RenderMarkdown(report)); err != nil {
		return err
	}

	fmt.Printf("run %s (%s): %d trades, %d target, %d stop, %d eod, %d end of data, %.2f points, $%.2f\n",
		res.RunID, res.Mode, report.Summary.TotalTrades,
		report.Summary.Count(domain.ExitReasonTarget),
		report.Summary.Count(domain.ExitReasonStop),
		report.Summary.Count(domain.ExitReasonEOD),
		report.Summary.Count(domain.ExitReasonEndOfData),
		report.Summary.TotalPoints, report.Summary.TotalDollars)
	return nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
