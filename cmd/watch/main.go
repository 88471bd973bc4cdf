// Package main provides a terminal watcher over the queue marketplace.
// In --once mode it prints the current queue board and exits; in follow
// mode it polls continuously and prints activities as they are detected.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queue-market-watch/internal/detect"
	"queue-market-watch/internal/domain"
	"queue-market-watch/internal/ledger"
	"queue-market-watch/internal/storage/memory"
)

func main() {
	// Parse flags
	gatewayEndpoint := flag.String("gateway-endpoint", os.Getenv("LEDGER_GATEWAY_ENDPOINT"), "Ledger gateway JSON-RPC endpoint")
	interval := flag.Duration("interval", 5*time.Second, "Poll interval in follow mode")
	once := flag.Bool("once", false, "Print the current queue board and exit")
	outputJSON := flag.Bool("json", false, "Output activities as JSON")

	flag.Parse()

	// Setup structured logger
	logger := log.New(os.Stderr, "[watch] ", log.LstdFlags)

	// Validate required flags
	if *gatewayEndpoint == "" {
		logger.Fatal("--gateway-endpoint is required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	engine, err := detect.NewEngine(detect.Options{
		Source: ledger.NewHTTPClient(*gatewayEndpoint),
		Store:  memory.NewActivityStore(memory.DefaultCapacity),
		Logger: logger,
		OnActivities: func(batch []*domain.Activity) {
			for _, a := range batch {
				printActivity(a, *outputJSON)
			}
		},
	})
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	// Seed baselines so only changes from now on are reported
	if err := engine.Initialize(ctx); err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}

	if *once {
		printBoard(engine)
		return
	}

	logger.Printf("Watching %s every %v", *gatewayEndpoint, *interval)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.PollOnce(ctx); err != nil {
				logger.Printf("Poll failed: %v", err)
			}
		}
	}
}

// printBoard writes the current state of every queue to stdout.
func printBoard(engine *detect.Engine) {
	for _, q := range engine.Queues() {
		fmt.Printf("%s (queue %d, creator %s): %d tokens\n",
			q.Name, q.QueueID, domain.ShortAddress(q.Creator), q.TokenCount)

		snap, ok := engine.Snapshot(q.QueueID)
		if !ok {
			continue
		}
		for _, tok := range snap {
			listed := " "
			if tok.IsForSale() {
				listed = "*"
			}
			fmt.Printf("  %s #%-4d %s  price %s\n",
				listed, tok.TokenID, domain.ShortAddress(tok.Owner), domain.FormatPrice(tok.Price))
		}
	}
}

// printActivity writes one detected activity to stdout.
func printActivity(a *domain.Activity, asJSON bool) {
	if asJSON {
		json.NewEncoder(os.Stdout).Encode(a)
		return
	}

	ts := time.UnixMilli(a.Timestamp).Format("15:04:05")
	switch a.Kind {
	case domain.KindJoin:
		fmt.Printf("%s  JOIN    %s #%d by %s\n", ts, a.QueueName, a.TokenID, domain.ShortAddress(a.Owner))
	case domain.KindList:
		fmt.Printf("%s  LIST    %s #%d by %s at %s\n", ts, a.QueueName, a.TokenID, domain.ShortAddress(a.Owner), formatPtr(a.Price))
	case domain.KindSale:
		buyer := "unknown"
		if a.Buyer != nil {
			buyer = domain.ShortAddress(*a.Buyer)
		}
		fmt.Printf("%s  SALE    %s #%d %s -> %s at %s\n", ts, a.QueueName, a.TokenID, domain.ShortAddress(a.Owner), buyer, formatPtr(a.Price))
	case domain.KindCancel:
		fmt.Printf("%s  CANCEL  %s #%d by %s (was %s)\n", ts, a.QueueName, a.TokenID, domain.ShortAddress(a.Owner), formatPtr(a.Price))
	}
}

func formatPtr(price *uint64) string {
	if price == nil {
		return "n/a"
	}
	return domain.FormatPrice(*price)
}
