package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IANDYI/pku-menu-service/internal/adapters/handler"
	"github.com/IANDYI/pku-menu-service/internal/adapters/metrics"
	"github.com/IANDYI/pku-menu-service/internal/adapters/middleware"
	"github.com/IANDYI/pku-menu-service/internal/adapters/repository"
	"github.com/IANDYI/pku-menu-service/internal/config"
	"github.com/IANDYI/pku-menu-service/internal/core/services"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database with retry logic
	db, err := config.ConnectDatabase(cfg.DatabaseURL, 5, 2*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := config.InitDatabase(db); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	metrics.Register(prometheus.DefaultRegisterer)
	recorder := metrics.NewRecorder()

	// Breach events go to caregivers' alerting through RabbitMQ
	breachPublisher, err := repository.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.BreachQueueName)
	if err != nil {
		log.Fatalf("Failed to initialize RabbitMQ publisher: %v", err)
	}
	defer breachPublisher.Close()

	redisClient, err := repository.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize repositories
	sqlRepo := repository.NewSQLRepository(db, repository.Options{
		BreakerMaxRequests: cfg.CircuitBreakerMaxRequests,
		BreakerInterval:    cfg.CircuitBreakerInterval,
		BreakerTimeout:     cfg.CircuitBreakerTimeout,
	})
	generationLock := repository.NewRedisGenerationLock(redisClient, cfg.GenerationLockTTL)

	// Initialize services
	emitter := services.NewCriticalFactEmitter(sqlRepo, breachPublisher).WithMetrics(recorder)
	pantry := services.NewPantryResolver(sqlRepo, sqlRepo, cfg.DefaultPricePerGram)
	candidates := services.NewCandidateGenerator(sqlRepo, services.NewVarietyEngine(sqlRepo), pantry)
	generationService := services.NewMenuGenerationService(sqlRepo, sqlRepo, sqlRepo, candidates, pantry, emitter).
		WithMetrics(recorder)
	generator := services.NewLockingGenerator(generationService, generationLock)
	menuService := services.NewMenuService(sqlRepo, sqlRepo, sqlRepo, sqlRepo, emitter)

	// Generation requests from other services are processed in this pod as well;
	// RabbitMQ distributes them across replicas
	generationConsumer, err := repository.NewGenerationConsumer(cfg.RabbitMQURL, cfg.GenerationQueueName, generator)
	if err != nil {
		log.Fatalf("Failed to initialize RabbitMQ generation consumer: %v", err)
	}
	generationConsumer.WithRequeueDelay(cfg.GenerationRequeueDelay)
	defer generationConsumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	go func() {
		if err := generationConsumer.StartConsuming(consumerCtx); err != nil {
			log.Printf("Generation consumer error: %v", err)
		}
	}()

	// Initialize handlers
	menuHandler := handler.NewMenuHandler(generator, menuService)
	factHandler := handler.NewCriticalFactHandler(menuService)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	// Initialize JWT middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTPublicKey)
	defer authMiddleware.Stop()

	// Setup HTTP router
	mux := http.NewServeMux()

	// Health endpoints (OpenShift compatible, no auth required)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /health/ready", healthHandler.Ready)
	mux.HandleFunc("GET /health/live", healthHandler.Live)

	// Generation - staff: any patient, PATIENT: own menus only
	mux.HandleFunc("POST /patients/{patient_id}/menus/daily", authMiddleware.RequireAuth(menuHandler.GenerateDaily))
	mux.HandleFunc("POST /patients/{patient_id}/menus/weekly", authMiddleware.RequireAuth(menuHandler.GenerateWeekly))

	// Menu days and entries
	mux.HandleFunc("GET /menu-days/{day_id}", authMiddleware.RequireAuth(menuHandler.GetMenuDay))
	mux.HandleFunc("GET /menu-days/{day_id}/validation", authMiddleware.RequireAuth(menuHandler.ValidateMenuDay))
	mux.HandleFunc("GET /menu-days/{day_id}/progress", authMiddleware.RequireAuth(menuHandler.DayProgress))
	mux.HandleFunc("POST /menu-days/{day_id}/entries", authMiddleware.RequireAuth(menuHandler.AddEntry))
	mux.HandleFunc("PUT /menu-entries/{entry_id}/consumption", authMiddleware.RequireAuth(menuHandler.RecordConsumption))
	mux.HandleFunc("POST /dishes/compose", authMiddleware.RequireAuth(menuHandler.ComposeDish))

	// Critical facts - resolution is CAREGIVER only
	mux.HandleFunc("GET /patients/{patient_id}/critical-facts", authMiddleware.RequireAuth(factHandler.ListCriticalFacts))
	mux.HandleFunc("POST /critical-facts/{fact_id}/resolve", authMiddleware.RequireRole(factHandler.ResolveCriticalFact, middleware.RoleCaregiver))

	// Wrap mux with metrics middleware to track all HTTP requests
	loggedRouter := middleware.MetricsMiddleware(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      loggedRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // weekly generation can take a while
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting PKU Menu Service on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Cancel consumer context first to stop processing new messages
	consumerCancel()
	log.Println("Generation consumer stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
