// Package main loads a time and sales CSV file into the tick store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"orderflow-lab/internal/config"
	"orderflow-lab/internal/ingestion"
	"orderflow-lab/internal/logging"
	"orderflow-lab/internal/observability"
	"orderflow-lab/internal/storage"
	chstore "orderflow-lab/internal/storage/clickhouse"
	"orderflow-lab/internal/storage/memory"
	"orderflow-lab/internal/storage/migrations"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	csvPath := flag.String("csv", "", "Tick CSV file: Timestamp;Precio;Volumen;Lado (required)")
	symbol := flag.String("symbol", "", "Symbol stamped on every tick (required)")
	resort := flag.Bool("resort", false, "Re-sort out-of-order rows instead of rejecting the file")
	batchSize := flag.Int("batch-size", ingestion.DefaultBatchSize, "Ticks per insert batch")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of ClickHouse (dry run)")
	metricsFile := flag.String("metrics-file", "", "Write store metrics in textfile format to this path")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.Named("ingest")

	// Validate required flags
	if *csvPath == "" {
		logger.Fatal("--csv is required")
	}
	if *symbol == "" {
		logger.Fatal("--symbol is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(observability.DefaultNamespace, reg)

	if err := run(ctx, logger, cfg, metrics, *csvPath, *symbol, *resort, *batchSize, *useMemory || cfg.Storage.UseMemory); err != nil {
		logger.Fatal("ingest failed", zap.Error(err))
	}
	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, reg); err != nil {
			logger.Fatal("write metrics", zap.Error(err))
		}
	}
	logger.Info("ingest complete")
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.Config, metrics *observability.Metrics, csvPath, symbol string, resort bool, batchSize int, useMemory bool) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	res, err := ingestion.DecodeCSVFile(csvPath, ingestion.CSVOptions{
		Symbol:   symbol,
		Location: loc,
		Resort:   resort,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("decode %s: %w", csvPath, err)
	}
	logger.Info("csv decoded",
		zap.String("path", csvPath),
		zap.Int("rows", res.Rows),
		zap.Int("ticks", len(res.Ticks)),
		zap.Int("skipped", res.Skipped),
		zap.Bool("resorted", res.Resorted),
	)
	if len(res.Ticks) == 0 {
		return fmt.Errorf("no valid ticks in %s", csvPath)
	}

	var tickStore storage.TickStore = memory.NewTickStore()
	database := "memory"
	if !useMemory {
		if cfg.Storage.ClickHouseDSN == "" {
			return fmt.Errorf("clickhouse dsn is required when not using memory storage (set %s)", config.EnvClickHouseDSN)
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		defer conn.Close()

		tickStore = chstore.NewTickStore(conn)
		database = "clickhouse"
	}
	tickStore = storage.NewInstrumentedTickStore(tickStore, database, metrics)

	manager := ingestion.NewManager(ingestion.ManagerOptions{
		Source:    ingestion.NewSliceSource(res.Ticks),
		Store:     tickStore,
		BatchSize: batchSize,
		Logger:    logger,
	})

	from := res.Ticks[0].TimestampMs
	to := res.Ticks[len(res.Ticks)-1].TimestampMs
	n, err := manager.IngestTicks(ctx, symbol, from, to)
	if err != nil {
		return err
	}

	logger.Info("ticks ingested",
		zap.String("symbol", symbol),
		zap.Int("count", n),
		zap.Int64("from_ms", from),
		zap.Int64("to_ms", to),
	)
	return nil
}
