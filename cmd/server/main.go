// Package main runs the full queue marketplace watcher:
// - Detection engine polling the ledger gateway for queue state
// - Feed and board schedulers driving cycles for each consumer context
// - HTTP API serving history, queue state, stats and scheduler control
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"queue-market-watch/internal/detect"
	"queue-market-watch/internal/domain"
	"queue-market-watch/internal/ledger"
	"queue-market-watch/internal/ledger/stub"
	"queue-market-watch/internal/observability"
	"queue-market-watch/internal/scheduler"
	"queue-market-watch/internal/server"
	"queue-market-watch/internal/storage"
	chstore "queue-market-watch/internal/storage/clickhouse"
	"queue-market-watch/internal/storage/memory"
	"queue-market-watch/internal/storage/migrations"
	pgstore "queue-market-watch/internal/storage/postgres"
)

// stores holds the storage implementations behind the engine.
type stores struct {
	activities  storage.ActivityStore
	checkpoints storage.CheckpointStore
	archive     storage.ArchiveStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	gatewayEndpoint := flag.String("gateway-endpoint", os.Getenv("LEDGER_GATEWAY_ENDPOINT"), "Ledger gateway JSON-RPC endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional, enables the archive)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	useStub := flag.Bool("use-stub", false, "Run against a built-in simulated marketplace instead of a gateway")
	feedInterval := flag.Duration("feed-interval", 5*time.Second, "Activity feed poll interval")
	boardInterval := flag.Duration("board-interval", 10*time.Second, "Queue board poll interval")
	queueRefresh := flag.Duration("queue-refresh", 30*time.Second, "Queue list cache lifetime")
	historyCapacity := flag.Int("history-capacity", 100, "Activity history capacity")
	workers := flag.Int("workers", detect.DefaultWorkers, "Concurrent queue fetches per cycle")
	httpAddr := flag.String("http-addr", ":8080", "HTTP API listen address")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *gatewayEndpoint == "" && !*useStub {
		logger.Fatal("--gateway-endpoint is required (or --use-stub)")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	st, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, *historyCapacity)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")
	hub := server.NewHub(log.New(os.Stdout, "[ws] ", log.LstdFlags))

	var source ledger.Source = ledger.NewHTTPClient(*gatewayEndpoint)
	if *useStub {
		source = startSimulation(ctx, logger)
	}

	// Create engine
	engine, err := detect.NewEngine(detect.Options{
		Source:       source,
		Store:        st.activities,
		Checkpoints:  st.checkpoints,
		Archive:      st.archive,
		Metrics:      metrics,
		Logger:       log.New(os.Stdout, "[detect] ", log.LstdFlags),
		Workers:      *workers,
		QueueRefresh: *queueRefresh,
		OnActivities: hub.Broadcast,
	})
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	// Restore checkpoints and seed baselines so startup is silent
	if err := engine.Initialize(ctx); err != nil {
		logger.Fatalf("Failed to initialize engine: %v", err)
	}

	// One scheduler per consumer context, both driving the same engine
	feed, err := scheduler.NewScheduler(scheduler.Options{
		Name:     "feed",
		Interval: *feedInterval,
		Tick:     func(ctx context.Context) error { _, err := engine.PollOnce(ctx); return err },
		Logger:   log.New(os.Stdout, "[feed] ", log.LstdFlags),
		Metrics:  metrics,
	})
	if err != nil {
		logger.Fatalf("Failed to create feed scheduler: %v", err)
	}
	board, err := scheduler.NewScheduler(scheduler.Options{
		Name:     "board",
		Interval: *boardInterval,
		Tick:     func(ctx context.Context) error { _, err := engine.PollOnce(ctx); return err },
		Logger:   log.New(os.Stdout, "[board] ", log.LstdFlags),
		Metrics:  metrics,
	})
	if err != nil {
		logger.Fatalf("Failed to create board scheduler: %v", err)
	}

	srv, err := server.NewServer(server.Options{
		Engine:     engine,
		Schedulers: []*scheduler.Scheduler{feed, board},
		Archive:    st.archive,
		Hub:        hub,
		Logger:     logger,
		Addr:       *httpAddr,
	})
	if err != nil {
		logger.Fatalf("Failed to create HTTP server: %v", err)
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}

		// Wait for second signal for immediate shutdown
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

	if err := feed.Start(ctx); err != nil {
		logger.Fatalf("Failed to start feed scheduler: %v", err)
	}
	if err := board.Start(ctx); err != nil {
		logger.Fatalf("Failed to start board scheduler: %v", err)
	}
	origin := *gatewayEndpoint
	if *useStub {
		origin = "simulated marketplace"
	}
	logger.Printf("Watching queues via %s (feed every %v, board every %v)", origin, *feedInterval, *boardInterval)

	if err := srv.Start(); err != nil {
		logger.Printf("HTTP server error: %v", err)
	}

	// HTTP server stopped; wind down the schedulers before exiting
	feed.Stop()
	board.Stop()
	close(done)
	cancel()

	logger.Println("Shutdown complete")
}

// createStores creates the activity, checkpoint and archive stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, capacity int) (*stores, func(), error) {
	st := &stores{}
	cleanup := func() {}

	if useMemory {
		st.activities = memory.NewActivityStore(capacity)
		st.checkpoints = memory.NewCheckpointStore()
		st.archive = memory.NewArchiveStore()
		return st, cleanup, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}
	st.activities = pgstore.NewActivityStore(pool, capacity)
	st.checkpoints = pgstore.NewCheckpointStore(pool)
	cleanup = pool.Close

	// ClickHouse archive is optional
	if clickhouseDSN != "" {
		var conn *chstore.Conn
		conn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		st.archive = chstore.NewArchiveStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return st, cleanup, nil
}

// startSimulation returns a stub marketplace with a few queues and a
// background driver performing random joins, listings, sales and
// cancellations, for trying out the service without a gateway.
func startSimulation(ctx context.Context, logger *log.Logger) *stub.Source {
	src := stub.NewSource()
	src.SetQueue(1, "bakery-counter", "sim-creator-1")
	src.SetQueue(2, "visa-office", "sim-creator-2")
	for i := 0; i < 4; i++ {
		src.Join(1, fmt.Sprintf("sim-holder-%d", i))
		src.Join(2, fmt.Sprintf("sim-holder-%d", i+4))
	}

	go func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()

		next := 8
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			queueID := uint32(1 + rng.Intn(2))
			queues, _ := src.ListQueues(ctx)
			var count uint32
			for _, q := range queues {
				if q.QueueID == queueID {
					count = q.TokenCount
				}
			}

			switch rng.Intn(4) {
			case 0:
				src.Join(queueID, fmt.Sprintf("sim-holder-%d", next))
				next++
			case 1:
				src.List(queueID, uint32(rng.Intn(int(count))), uint64(1+rng.Intn(50))*domain.PriceUnit)
			case 2:
				src.Buy(queueID, uint32(rng.Intn(int(count))), fmt.Sprintf("sim-holder-%d", next))
				next++
			case 3:
				src.Cancel(queueID, uint32(rng.Intn(int(count))))
			}
		}
	}()

	logger.Println("Running against the simulated marketplace")
	return src
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
