package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/campuscare/pharmacy-backend/internal/pharmacy/events"
	"github.com/campuscare/pharmacy-backend/internal/pharmacy/handler"
	"github.com/campuscare/pharmacy-backend/internal/pharmacy/repository"
	"github.com/campuscare/pharmacy-backend/internal/pharmacy/service"
	"github.com/campuscare/pharmacy-backend/pkg/actor"
	"github.com/campuscare/pharmacy-backend/pkg/config"
	"github.com/campuscare/pharmacy-backend/pkg/database"
	"github.com/campuscare/pharmacy-backend/pkg/httputil"
	"github.com/campuscare/pharmacy-backend/pkg/logger"
	"github.com/campuscare/pharmacy-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("pharmacy-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("pharmacy-service", cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewPharmacyEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	medicineRepo := repository.NewMedicineRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	prescriptionRepo := repository.NewPrescriptionRepository(db)
	dummyRepo := repository.NewDummyMedicineRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	// Initialize services
	dispensingService := service.NewDispensingService(
		db, db, medicineRepo, batchRepo, prescriptionRepo, dummyRepo, ledgerRepo, publisher, log,
	)
	substitutionService := service.NewSubstitutionService(
		db, medicineRepo, batchRepo, prescriptionRepo, dummyRepo, publisher, log,
	)
	stockImporter := service.NewStockImporter(db, medicineRepo, dispensingService, log)

	// Initialize handlers
	medicineHandler := handler.NewMedicineHandler(db, medicineRepo, batchRepo, ledgerRepo, cfg.Pharmacy, log)
	stockHandler := handler.NewStockHandler(dispensingService, stockImporter, batchRepo, cfg.Pharmacy, log)
	prescriptionHandler := handler.NewPrescriptionHandler(dispensingService, substitutionService, prescriptionRepo, ledgerRepo, log)
	dummyHandler := handler.NewDummyMedicineHandler(db, dummyRepo, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Name", "X-User-Role"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(actor.Middleware) // Extract acting user from gateway headers

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "pharmacy-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		// Medicine catalog
		r.Route("/medicines", func(r chi.Router) {
			r.Get("/", medicineHandler.List)
			r.Post("/", medicineHandler.Create)
			r.Get("/{id}", medicineHandler.Get)
			r.Put("/{id}", medicineHandler.Update)
			r.Get("/{id}/batches", medicineHandler.ListBatches)
			r.Get("/{id}/movements", medicineHandler.Movements)
			r.Get("/{id}/fefo-preview", stockHandler.PreviewFefo)
		})

		// Stock
		r.Route("/stock", func(r chi.Router) {
			r.Post("/receipts", stockHandler.ReceiveBatch)
			r.Post("/import", stockHandler.Import)
			r.Get("/expiring", stockHandler.Expiring)
		})
		r.Post("/batches/{id}/loss", stockHandler.AdjustLoss)

		// Placeholder medicines
		r.Route("/dummy-medicines", func(r chi.Router) {
			r.Get("/", dummyHandler.ListUnreplaced)
			r.Get("/{id}", dummyHandler.Get)
		})

		// Prescriptions
		r.Route("/prescriptions", func(r chi.Router) {
			r.Post("/", prescriptionHandler.Create)
			r.Get("/{id}", prescriptionHandler.Get)
		})
		r.Get("/students/{id}/prescriptions", prescriptionHandler.ListByStudent)

		// Prescription items
		r.Route("/prescription-items/{id}", func(r chi.Router) {
			r.Post("/dispense", prescriptionHandler.DispenseItem)
			r.Post("/substitute", prescriptionHandler.Substitute)
			r.Get("/dispensings", prescriptionHandler.ItemDispensings)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
