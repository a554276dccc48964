package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/juchain-labs/bridge-relayer/pkg/config"
	"github.com/juchain-labs/bridge-relayer/pkg/db"
	"github.com/juchain-labs/bridge-relayer/pkg/ethereum"
	"github.com/juchain-labs/bridge-relayer/pkg/pgutil"
	"github.com/juchain-labs/bridge-relayer/pkg/relayer"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting JuChain-BSC Bridge Relayer")

	// Initialize database
	bunDB, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer bunDB.Close()
	store := db.NewStore(bunDB)
	logger.Info("Database connection established")

	ctx := context.Background()

	// Initialize chain clients
	juClient, err := ethereum.NewClient(ctx, db.ChainJU, cfg.JuChain, cfg.Relayer, logger)
	if err != nil {
		logger.Fatal("Failed to initialize JuChain client", zap.Error(err))
	}
	defer juClient.Close()

	bscClient, err := ethereum.NewClient(ctx, db.ChainBSC, cfg.BSC, cfg.Relayer, logger)
	if err != nil {
		logger.Fatal("Failed to initialize BSC client", zap.Error(err))
	}
	defer bscClient.Close()

	// Start relayer engine first so we can reference it in HTTP handlers
	clients := map[string]relayer.ChainClient{
		db.ChainJU:  juClient,
		db.ChainBSC: bscClient,
	}
	engine := relayer.NewEngine(cfg, store, clients, logger)
	if err := engine.Start(ctx); err != nil {
		logger.Fatal("Failed to start relayer engine", zap.Error(err))
	}
	defer engine.Stop()

	// Setup HTTP server for API and metrics
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint (liveness)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Readiness endpoint - returns 503 until the initial catch-up scan is done
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !engine.IsReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	})

	// Metrics endpoint
	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.Int("port", cfg.Monitoring.MetricsPort))
	}

	// API routes
	r.Route("/api/bridge", func(r chi.Router) {
		r.Get("/", handleListEvents(store, logger))
		r.Get("/user/{address}", handleListUserEvents(store, logger))
	})

	// Start HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("address", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, gracefully shutting down...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Relayer stopped")
}

func handleListEvents(store *db.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := store.ListEvents(r.Context())
		if err != nil {
			logger.Error("Failed to list bridge events", zap.Error(err))
			http.Error(w, "Failed to list bridge events", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"events": events}); err != nil {
			logger.Error("Failed to encode response", zap.Error(err))
		}
	}
}

func handleListUserEvents(store *db.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address := chi.URLParam(r, "address")
		events, err := store.ListEventsByUser(r.Context(), address)
		if err != nil {
			logger.Error("Failed to list user bridge events", zap.Error(err), zap.String("address", address))
			http.Error(w, "Failed to list bridge events", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"events": events}); err != nil {
			logger.Error("Failed to encode response", zap.Error(err))
		}
	}
}
