package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/Merlin1A/cafe-backend/internal/cache"
	"github.com/Merlin1A/cafe-backend/internal/config"
	"github.com/Merlin1A/cafe-backend/internal/database"
	"github.com/Merlin1A/cafe-backend/internal/logger"
	"github.com/Merlin1A/cafe-backend/internal/messaging"
	"github.com/Merlin1A/cafe-backend/internal/services/catalog"
	"github.com/Merlin1A/cafe-backend/internal/services/order"
	"github.com/Merlin1A/cafe-backend/internal/services/payment"
	"github.com/Merlin1A/cafe-backend/internal/services/pricing"
	"github.com/Merlin1A/cafe-backend/internal/services/printing"
)

const menuCacheTTL = 5 * time.Minute

func main() {
	var (
		port    = flag.Int("port", 0, "HTTP port (overrides HTTP_PORT)")
		envFile = flag.String("env-file", ".env", "Environment file to load")
		sweep   = flag.Bool("sweep", true, "Run the print job retry/cleanup sweeper")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	log := logger.New("cafe-backend")
	requestID := logger.GenerateRequestID()

	log.Info("service_started", "Starting cafe backend", requestID, map[string]interface{}{
		"port": cfg.HTTP.Port,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	if err := run(ctx, cfg, log, requestID, *sweep); err != nil {
		log.Error("service_failed", "Cafe backend failed", requestID, err, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, requestID string, sweep bool) error {
	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	broker, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer broker.Close()
	publisher := messaging.NewPublisher(broker, log)
	log.Info("broker_connected", "Connected to RabbitMQ", requestID, nil)

	// Read path components.
	menuCache := cache.New(menuCacheTTL)
	catalogReader := catalog.NewReader(db, menuCache, log)
	pricer := pricing.NewEngine(catalogReader, cfg.Orders.TaxRate)

	// Payment.
	gateway := payment.NewGateway(cfg.Payment, log)
	paymentRepo := payment.NewRepository(db)
	webhookHandler := payment.NewWebhookHandler(cfg.Payment.WebhookSecret, paymentRepo, publisher, log)

	// Printing.
	printRepo := printing.NewRepository(db)
	dispatcher := printing.NewDispatcher(printRepo, publisher, cfg.Printing, log)
	printHandler := printing.NewHandler(dispatcher, cfg.Printing.AgentToken, log)

	// Order pipeline.
	orderRepo := order.NewRepository(db)
	estimator := order.NewEstimator(orderRepo, cfg.Orders, log)
	orderService := order.NewService(orderRepo, pricer, estimator, gateway, dispatcher, publisher, cfg.Orders.ActivePageSize, log)
	orderHandler := order.NewHandler(orderService, log)

	router := mux.NewRouter()
	router.Use(requestLogging(log))

	catalog.NewHandler(catalogReader, log).RegisterRoutes(router)
	orderHandler.RegisterRoutes(router)
	printHandler.RegisterRoutes(router)
	router.HandleFunc("/webhooks/payment", webhookHandler.HandleWebhook).Methods(http.MethodPost)
	router.HandleFunc("/health", healthHandler(db, broker)).Methods(http.MethodGet)

	if sweep {
		go dispatcher.RunSweeper(ctx)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http_listening", "HTTP server listening", requestID, map[string]interface{}{
			"addr": server.Addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// healthHandler probes the database and the broker in parallel.
func healthHandler(db *database.DB, broker *messaging.Connection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			return db.Ping(ctx)
		})
		g.Go(func() error {
			if broker.IsClosed() {
				return errors.New("broker connection closed")
			}
			return nil
		})

		w.Header().Set("Content-Type", "application/json")
		if err := g.Wait(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"unhealthy","error":%q}`, err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"healthy"}`)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogging logs every request with its status and latency.
func requestLogging(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug("http_request", "Handled request", "", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}
