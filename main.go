package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"image-hunter/internal/codec"
	"image-hunter/internal/database"
	"image-hunter/internal/dispatcher"
	"image-hunter/internal/filesystem"
	"image-hunter/internal/handlers"
	"image-hunter/internal/indexer"
	"image-hunter/internal/logging"
	"image-hunter/internal/memory"
	"image-hunter/internal/metrics"
	"image-hunter/internal/middleware"
	"image-hunter/internal/startup"
)

const (
	shutdownTimeout = 30 * time.Second
	statsInterval   = time.Minute
)

func main() {
	startTime := time.Now()

	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	filesystem.SetObserver(metrics.NewFilesystemObserver())
	metrics.InitializeMetrics()

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	budget := memory.NewBudget(0, monitor)
	startup.LogMemoryInit(memResult, budget)

	if _, err := filesystem.PurgeSpool(config.SpoolDir, 0); err != nil {
		logging.Warn("Failed to purge spool directory: %v", err)
	}

	c := codec.Select(config.VipsEnabled)
	startup.LogCodecInit(c.Name(), config.VipsEnabled)

	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath, config.MediaDir)
	if err != nil {
		logging.Fatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	collector := metrics.NewCollector(db.MetricsProvider(), statsInterval)
	collector.Start()

	startup.LogIndexerInit(config.IndexInterval)
	idx := indexer.New(db, c, config.MediaDir, config.IndexInterval)
	if err := idx.Start(); err != nil {
		logging.Fatal("Failed to start indexer: %v", err)
	}
	startup.LogIndexerStarted()

	err = dispatcher.Configure(config.Display, dispatcher.Config{
		SpoolDir:    config.SpoolDir,
		Fetch:       config.Fetch,
		Index:       db,
		Codec:       c,
		Budget:      budget,
		Monitor:     monitor,
		MaxAttempts: config.MaxAttempts,
		Defaults:    config.Defaults,
	})
	if err != nil {
		logging.Fatal("Failed to configure dispatcher: %v", err)
	}
	hunter := dispatcher.Instance(config.Display)
	startup.LogDispatcherStarted(config.SpoolDir, config.MaxAttempts)

	h := handlers.New(hunter, idx, db, handlers.DefaultHuntTimeout)
	router := setupRouter(h, config.MetricsEnabled)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           middleware.Logger(loggingConfig)(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      handlers.DefaultHuntTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		handleShutdown(srv, func() {
			startup.LogShutdownStep("Stopping dispatcher")
			hunter.Shutdown()
			startup.LogShutdownStepComplete("Dispatcher stopped")

			startup.LogShutdownStep("Stopping indexer")
			idx.Stop()
			startup.LogShutdownStepComplete("Indexer stopped")

			collector.Stop()
			monitor.Stop()
			codec.StopVips()

			startup.LogShutdownStep("Closing database")
			if err := db.Close(); err != nil {
				logging.Warn("Database close error: %v", err)
			} else {
				startup.LogShutdownStepComplete("Database closed")
			}
		})
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers, metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	if metricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/hunt", h.Hunt).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/hunt/{tag}", h.CancelHunt).Methods(http.MethodDelete)
	api.HandleFunc("/media/{id:[0-9]+}", h.GetMedia).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/reindex", h.TriggerReindex).Methods(http.MethodPost)

	return r
}

// handleShutdown waits for SIGINT or SIGTERM, drains the HTTP server and then
// runs stop.
func handleShutdown(srv *http.Server, stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	stop()
	startup.LogShutdownComplete()
}
