package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pumpportal-archiver/internal/archiver"
	"pumpportal-archiver/internal/batcher"
	"pumpportal-archiver/internal/observability"
	"pumpportal-archiver/internal/registry"
	"pumpportal-archiver/internal/stats"
	"pumpportal-archiver/internal/storage"
	chstore "pumpportal-archiver/internal/storage/clickhouse"
	"pumpportal-archiver/internal/storage/memory"
	"pumpportal-archiver/internal/storage/migrations"
	pgstore "pumpportal-archiver/internal/storage/postgres"
	"pumpportal-archiver/internal/stream"
)

func main() {
	endpoint := flag.String("endpoint", "wss://pumpportal.fun/api/data", "Upstream WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "Optional ClickHouse DSN for the analytics mirror")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	batchSize := flag.Int("batch-size", 50, "Rows buffered before a flush is forced")
	flushInterval := flag.Duration("flush-interval", 5*time.Second, "Maximum time between flushes")
	statsInterval := flag.Duration("stats-interval", 10*time.Second, "Interval between stats snapshots")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "Ceiling on waiting for the next frame")
	initialBackoff := flag.Duration("initial-backoff", 1*time.Second, "Initial reconnect delay")
	maxBackoff := flag.Duration("max-backoff", 60*time.Second, "Maximum reconnect delay")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stdout, "[archiver] ", log.LstdFlags|log.Lshortfile)

	if *endpoint == "" {
		logger.Fatal("--endpoint is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, logger, options{
		endpoint:       *endpoint,
		postgresDSN:    *postgresDSN,
		clickhouseDSN:  *clickhouseDSN,
		useMemory:      *useMemory,
		batchSize:      *batchSize,
		flushInterval:  *flushInterval,
		statsInterval:  *statsInterval,
		readTimeout:    *readTimeout,
		initialBackoff: *initialBackoff,
		maxBackoff:     *maxBackoff,
	})

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type options struct {
	endpoint       string
	postgresDSN    string
	clickhouseDSN  string
	useMemory      bool
	batchSize      int
	flushInterval  time.Duration
	statsInterval  time.Duration
	readTimeout    time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// run wires storage, registry, batcher, reporter, and supervisor, then
// blocks until shutdown or an unrecoverable storage failure.
func run(ctx context.Context, logger *log.Logger, opts options) error {
	var gateway storage.Gateway = memory.NewGateway()

	if !opts.useMemory {
		pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return err
		}
		gateway = pgstore.NewGateway(pool)
	}

	var archive storage.TransactionArchive
	if opts.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, opts.clickhouseDSN)
		if err != nil {
			return err
		}
		defer conn.Close()
		archive = chstore.NewTransactionArchive(conn)
		logger.Println("ClickHouse mirror enabled")
	}

	reg := registry.New()
	if err := reg.Load(ctx, gateway); err != nil {
		return err
	}
	logger.Printf("Loaded %d known mints", reg.Size())

	counters := &stats.Counters{}

	b := batcher.New(batcher.Options{
		Gateway:       gateway,
		Archive:       archive,
		Counters:      counters,
		BatchSize:     opts.batchSize,
		FlushInterval: opts.flushInterval,
		Logger:        logger,
	})

	reporter := stats.NewReporter(stats.ReporterOptions{
		Registry: reg,
		Counters: counters,
		Gateway:  gateway,
		Interval: opts.statsInterval,
		Logger:   logger,
	})

	runner := archiver.NewRunner(archiver.Options{
		Registry: reg,
		Batcher:  b,
		Reporter: reporter,
		Counters: counters,
		Logger:   logger,
	})

	streamCfg := stream.DefaultConfig()
	streamCfg.ReadTimeout = opts.readTimeout
	streamCfg.InitialBackoff = opts.initialBackoff
	streamCfg.MaxBackoff = opts.maxBackoff

	runner.SetSupervisor(stream.New(stream.Options{
		Endpoint: opts.endpoint,
		Config:   &streamCfg,
		Registry: reg,
		Handler:  runner,
		Counters: counters,
		Logger:   logger,
	}))

	logger.Printf("Starting ingestion from %s", opts.endpoint)
	return runner.Run(ctx)
}
