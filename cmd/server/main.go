package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundflow/be-fund-requests/internal/client"
	"github.com/fundflow/be-fund-requests/internal/config"
	"github.com/fundflow/be-fund-requests/internal/database"
	"github.com/fundflow/be-fund-requests/internal/handler"
	"github.com/fundflow/be-fund-requests/internal/middleware"
	"github.com/fundflow/be-fund-requests/internal/outbox"
	"github.com/fundflow/be-fund-requests/internal/repository"
	"github.com/fundflow/be-fund-requests/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := newLogger(cfg)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Fund Requests Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	requestRepo := repository.NewFundRequestRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	userRepo := repository.NewUserRepository(db)
	delegationRepo := repository.NewDelegationRepository(db)
	assignmentRepo := repository.NewFinalReceiverRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize resolvers and services
	approverResolver := service.NewApproverResolver(userRepo, cfg.Approvals.AllowFallbackLookup, log)
	delegationResolver := service.NewDelegationResolver(delegationRepo, time.Now, log)
	finalReceivers := service.NewFinalReceiverProvider(workflowRepo, userRepo, log)
	notifier := service.NewNotificationService(outboxRepo, log)

	requestService := service.NewRequestService(
		requestRepo,
		approvalRepo,
		workflowRepo,
		assignmentRepo,
		userRepo,
		auditRepo,
		delegationRepo,
		approverResolver,
		delegationResolver,
		finalReceivers,
		notifier,
		log,
	)

	// Initialize mail publisher and outbox drainer
	mailPublisher, err := client.NewMailPublisher(cfg.NATS.URL, cfg.NATS.Subject, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer mailPublisher.Close()
	log.Info().Str("subject", cfg.NATS.Subject).Msg("Mail publisher initialized")

	drainer := outbox.New(outboxRepo, mailPublisher, cfg.Outbox.DrainInterval, cfg.Outbox.BatchSize, log)
	go drainer.Run(ctx)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(requestService, finalReceivers, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Fund request routes
	mux.HandleFunc("/api/v1/requests", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListRequests(w, r)
		case http.MethodPost:
			httpHandler.CreateRequest(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/requests/get", httpHandler.GetRequest)
	mux.HandleFunc("/api/v1/requests/approve", httpHandler.Approve)
	mux.HandleFunc("/api/v1/requests/reject", httpHandler.Reject)
	mux.HandleFunc("/api/v1/requests/sendback", httpHandler.SendBack)
	mux.HandleFunc("/api/v1/requests/resubmit", httpHandler.Resubmit)
	mux.HandleFunc("/api/v1/requests/reassign", httpHandler.Reassign)
	mux.HandleFunc("/api/v1/requests/final/complete", httpHandler.CompleteFinal)
	mux.HandleFunc("/api/v1/requests/audit", httpHandler.AuditTrail)
	mux.HandleFunc("/api/v1/approvals/pending", httpHandler.PendingApprovals)
	mux.HandleFunc("/api/v1/workflows", httpHandler.CreateWorkflow)
	mux.HandleFunc("/api/v1/workflows/final-receivers", httpHandler.FinalReceivers)
	mux.HandleFunc("/api/v1/delegations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListDelegations(w, r)
		case http.MethodPost:
			httpHandler.CreateDelegation(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/delegations/revoke", httpHandler.RevokeDelegation)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log)(h)
	h = middleware.Recovery(&log)(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// newLogger builds the service logger. LOG_LEVEL overrides the default level.
func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	var out zerolog.Logger
	if cfg.Service.Environment == "development" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		out = zerolog.New(os.Stdout)
	}

	return out.Level(level).With().
		Timestamp().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Logger()
}
