package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"campledger/config"
	"campledger/gateway"
	"campledger/native/attribution"
	"campledger/native/campaign"
	"campledger/native/common"
	"campledger/observability/logging"
	"campledger/state"
	"campledger/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "./config.toml", "path to the service configuration file")
	flag.Parse()

	logger := logging.Setup("campd", os.Getenv("CAMPD_ENV"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("storage ready", logging.MaskField("dir", cfg.DataDir))

	manager := state.NewManager(db)

	ledger := campaign.NewEngine(cfg.Ledger())
	ledger.SetState(manager)
	if len(cfg.PausedModules) > 0 {
		pauses := make(common.StaticPauses, len(cfg.PausedModules))
		for _, module := range cfg.PausedModules {
			pauses[module] = true
		}
		ledger.SetPauses(pauses)
	}

	hook := attribution.NewEngine(cfg.Ledger())
	hook.SetState(manager)
	hook.SetRegistry(attribution.NewMemoryRegistry())
	if err := ledger.RegisterHook(cfg.Hook(), hook); err != nil {
		logger.Error("register hook", "error", err)
		os.Exit(1)
	}

	server := gateway.NewServer(ledger, hook, logger)
	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: time.Duration(cfg.ReadTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.IdleTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("campaign ledger listening", "address", cfg.ListenAddress, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down campaign ledger")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
