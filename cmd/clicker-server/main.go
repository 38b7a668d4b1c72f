// Package main is the entry point for the clicker economy server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
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

	"github.com/google/uuid"

	"github.com/pawclicker/server/internal/engine"
	"github.com/pawclicker/server/internal/events"
	"github.com/pawclicker/server/internal/infra/archive"
	"github.com/pawclicker/server/internal/infra/storage"
	"github.com/pawclicker/server/internal/network"
	"github.com/pawclicker/server/internal/platform/config"
	"github.com/pawclicker/server/internal/platform/logger"
	"github.com/pawclicker/server/internal/platform/metrics"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config")
	flag.Parse()

	log.Println("[CLICKER-SERVER] Initializing economy server...")
	appLogger := logger.NewLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.Error("Failed to load config: " + err.Error())
		os.Exit(1)
	}
	tuning := cfg.Tuning.Resolve()
	collector := metrics.NewCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persisters run in the order listed; a failure in one does not stop the others.
	var persisters events.MultiPersister
	var reconstructor *storage.Reconstructor
	var closers []func() error

	if cfg.Storage.SQLitePath != "" {
		appLogger.Info("Initializing SQLite ledger '" + cfg.Storage.SQLitePath + "'...")
		db, err := storage.InitSQLite(cfg.Storage.SQLitePath, storage.PoolSettings{
			MaxOpenConns: tuning.DBMaxOpenConns,
			MaxIdleConns: tuning.DBMaxIdleConns,
		})
		if err != nil {
			appLogger.Error("Failed to initialize SQLite: " + err.Error())
			os.Exit(1)
		}
		closers = append(closers, db.Close)

		sessionID := uuid.NewString()
		repo, err := storage.NewSQLiteEventRepository(ctx, db, sessionID)
		if err != nil {
			appLogger.Error("Failed to open ledger session: " + err.Error())
			os.Exit(1)
		}
		appLogger.Info("Ledger session " + sessionID)
		persisters = append(persisters, storage.NewLedgerPersister(repo, collector))
		reconstructor = storage.NewReconstructor(repo)
	}

	if cfg.Storage.ArchiveDir != "" {
		appLogger.Info("Archiving events under '" + cfg.Storage.ArchiveDir + "'")
		arch := archive.NewEventArchive(cfg.Storage.ArchiveDir, collector)
		persisters = append(persisters, arch)
		closers = append(closers, arch.Close)
	}

	var persister events.EventPersister
	if len(persisters) > 0 {
		persister = persisters
	}

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewEventLog(tuning.EventRetention, persister)

	appLogger.Info("Bootstrapping economy engine...")
	eng := engine.NewEngine(engine.Settings{
		AutoCollectFraction: cfg.Economy.AutoCollectFraction,
		Curve:               cfg.Economy.Curve,
		Resources:           cfg.Economy.Resources,
		Gates:               cfg.Economy.Gates,
	}, eventLog, appLogger, collector)

	ticker := engine.NewTicker(eng, cfg.Economy.FrameInterval(), tuning.CommandQueue, appLogger, collector)
	go ticker.Start(ctx)

	economy := network.NewEconomy(ticker, cfg.Economy.TapTextLifetime)

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(economy, network.Options{
		BroadcastBuffer:      tuning.BroadcastChannelBuffer,
		ClientSendBuffer:     tuning.ClientSendBuffer,
		MaxClients:           tuning.MaxClients,
		MaxMessagesPerSecond: tuning.MaxMessagesPerSecond,
		AllowedOrigins:       cfg.Server.AllowedOrigins,
	}, appLogger, collector)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	network.NewEconomyAPI(economy, appLogger).RegisterRoutes(mux)
	network.NewHistoryHandler(eventLog, reconstructor, appLogger).RegisterRoutes(mux)
	mux.HandleFunc("/metrics", collector.Handler())
	mux.HandleFunc("/metrics/prometheus", collector.PrometheusHandler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Println("[CLICKER-SERVER] HTTP API & WS Server listening on " + cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[CLICKER-SERVER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[CLICKER-SERVER] Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("HTTP shutdown: " + err.Error())
	}

	ticker.Stop()
	<-ticker.Done()
	cancel()
	eventLog.Close()
	for _, c := range closers {
		if err := c(); err != nil {
			appLogger.Warn("Close: " + err.Error())
		}
	}
}
