package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/vidledger/internal/api"
	"github.com/timmy/vidledger/internal/config"
	"github.com/timmy/vidledger/internal/journal"
	"github.com/timmy/vidledger/internal/logger"
	"github.com/timmy/vidledger/internal/master"
	"github.com/timmy/vidledger/internal/repository"
	"github.com/timmy/vidledger/internal/service"
)

func main() {
	logCfg := logger.ConfigFromEnv()
	logCfg.ServiceName = "vidledger-api"
	appLogger := logger.New(logCfg)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	var runs service.RunLister
	if cfg.Database.Enabled {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			appLogger.WithError(err).Warn("Run history unavailable")
		} else {
			defer repository.Close(db)
			runs = repository.NewRunRepository(db)
		}
	}

	// The API never writes, so the journal carries no run id.
	ledger := service.NewLedgerService(
		master.New(cfg.Paths.Master),
		journal.New(cfg.Paths.Journal, ""),
		runs,
		appLogger,
	)

	router := api.SetupRouter(ledger, &cfg.Server, appLogger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":   cfg.Server.Port,
			"mode":   cfg.Server.Mode,
			"master": cfg.Paths.Master,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
