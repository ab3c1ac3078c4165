package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/config"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/ledgerd"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/logging"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/store"
)

func main() {
	configPath := flag.String("config", envOr("LEDGERD_CONFIG", config.DefaultPath), "Path to orchledger.yml")
	addr := flag.String("addr", envOr("LEDGERD_ADDR", ":8080"), "Listen address")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	// 1. Load configuration; the backend is the store ledgerd serves.
	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Store.Backend == config.BackendHTTP {
		fmt.Fprintf(os.Stderr, "Error: ledgerd cannot serve an http backend (store.url points at another ledgerd)\n")
		os.Exit(1)
	}

	logger, err := logging.New(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 2. Open the backend
	st, closer, err := store.Open(cfg.Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open %s store: %v\n", cfg.Store.Backend, err)
		os.Exit(1)
	}
	defer closer.Close()

	token := os.Getenv("LEDGERD_TOKEN")
	if token == "" {
		log.Printf("[WARN] LEDGERD_TOKEN not set; /ledger accepts unauthenticated requests")
	}

	// 3. Start serving
	srv := ledgerd.NewServer(st, ledgerd.Options{
		Addr:   *addr,
		Token:  token,
		Logger: logger.With(zap.String("backend", cfg.Store.Backend)),
	})
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Printf("[INFO] ledgerd serving %s backend on %s", cfg.Store.Backend, srv.Addr())

	// 4. Wait for a shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Printf("[INFO] Received signal %v, shutting down gracefully...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[ERROR] Shutdown: %v", err)
	}
	log.Printf("[INFO] ledgerd stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
