package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"tripsync/internal/app"
	"tripsync/internal/config"
	"tripsync/internal/domain"
	"tripsync/internal/handler"
	internalRedis "tripsync/internal/redis"
	"tripsync/internal/repository/postgres"
	"tripsync/internal/service"
	"tripsync/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic first so the datastores can be instrumented.
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	server := wireServer(runCtx, db, redisClient, nrApp, cfg)

	go func() {
		log.Printf("Starting %s client on port %s", cfg.Client.Role, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	// Stop the reconciler and sync sweeps before draining HTTP.
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// wireServer wires all dependencies, starts the background loops and
// returns the HTTP server.
func wireServer(ctx context.Context, db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) *http.Server {
	// Durable local state and broadcast topics.
	tripStorage := internalRedis.NewTripStorage(redisClient, cfg.Client.ID)
	orderStorage := internalRedis.NewOrderStorage(redisClient, cfg.Client.ID)
	broker := internalRedis.NewBroker(redisClient)

	pricing := domain.PricingParams{
		BaseCost:      cfg.Pricing.BaseCost,
		OnWayPerKm:    cfg.Pricing.OnWayPerKm,
		OnWayPerMin:   cfg.Pricing.OnWayPerMin,
		WaitingPerMin: cfg.Pricing.WaitingPerMin,
		TripPerKm:     cfg.Pricing.TripPerKm,
		TripPerMin:    cfg.Pricing.TripPerMin,
	}

	trips := store.NewTripStore(tripStorage, broker, pricing)
	if err := trips.Load(ctx); err != nil {
		log.Fatalf("failed to load active trip: %v", err)
	}
	if id := trips.ActiveTripID(); id != "" {
		log.Printf("Resumed active trip %s", id)
	}
	orders := store.NewOrderStore(orderStorage)

	// Remote source of truth.
	orderRepo := postgres.NewOrderRepository(db)

	// Services.
	bridge := service.LogBridge{}
	finisher := service.NewFinishCoordinator(trips, orders, orderRepo, bridge)
	tripService := service.NewTripService(trips, orders, finisher, bridge)
	syncService := service.NewSyncService(orders, orderRepo, cfg.Sync.Interval)

	// Reconciliation producers: broadcast topic plus the row-change feed.
	var rowIDs <-chan string
	rowFeed, err := postgres.NewRowFeed(cfg.Database.DSN())
	if err != nil {
		log.Printf("row-change feed unavailable, relying on polling: %v", err)
	} else {
		rowIDs = rowFeed.IDs()
		go rowFeed.Run(ctx)
	}

	reconciler := service.NewReconciler(
		tripService, trips, orderRepo,
		brokerSource{broker}, rowIDs,
		cfg.Sync.PollInterval, cfg.Sync.TerminalGrace,
	)
	go reconciler.Run(ctx)
	go syncService.Run(ctx)

	// HTTP surface.
	tripHandler := handler.NewTripHandler(tripService)
	orderHandler := handler.NewOrderHandler(orders, syncService)

	router := app.NewRouter(app.RouterDeps{
		TripHandler:  tripHandler,
		OrderHandler: orderHandler,
		RedisClient:  redisClient,
		NewRelicApp:  nrApp,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// brokerSource adapts the redis broker to the reconciler's EventSource.
type brokerSource struct {
	broker *internalRedis.Broker
}

func (s brokerSource) Subscribe(ctx context.Context, tripID string) (service.EventStream, error) {
	return s.broker.Subscribe(ctx, tripID)
}
