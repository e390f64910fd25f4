package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alterecho/alterecho/pkg/client"
	"github.com/alterecho/alterecho/pkg/config"
	"github.com/alterecho/alterecho/pkg/store"
	"github.com/alterecho/alterecho/pkg/utils"
)

// main wires the local store and backend client together and leaves the
// process running for a frontend to drive. It also fires the best-effort
// model warmup so the first chat does not pay the cold-start cost.
func main() {
	utils.InitLogger()
	logger := utils.GetLogger()

	cfg, cfgPath, err := config.Load()
	if err != nil {
		logger.Warn("failed to load config, using defaults", "error", err)
		cfg = &config.AppConfig{}
	} else {
		logger.Info("loaded config", "path", cfgPath)
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "path", dataDir, "error", err)
		os.Exit(1)
	}
	dbPath := filepath.Join(dataDir, "alterecho.db")
	st, err := store.Open(dbPath)
	if err != nil {
		logger.Error("failed to open local store", "path", dbPath, "error", err)
		os.Exit(1)
	}

	backendURL := cfg.BackendURL()
	cl := client.New(backendURL, st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if status := cl.Warmup(ctx); !status.OK {
		logger.Warn("backend warmup degraded", "message", status.Message)
	}

	sessions, err := st.ListSessions(ctx)
	if err != nil {
		logger.Error("failed to list sessions", "error", err)
		os.Exit(1)
	}
	fmt.Printf("alterecho ready: backend %s, %d local session(s)\n", backendURL, len(sessions))

	<-ctx.Done()
	logger.Info("shutting down")
}
