package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"agentbackend/clients/alpaca"
	"agentbackend/clients/buildexec"
	"agentbackend/clients/codestore"
	"agentbackend/clients/k8sdeploy"
	"agentbackend/config"
	"agentbackend/db"
	"agentbackend/handlers"
	"agentbackend/middleware"
	"agentbackend/milestonenotif"
	agents "agentbackend/services/agents"
	"agentbackend/services/txmanager"
	"agentbackend/services/users"
	"agentbackend/usecases/backtest"
	"agentbackend/usecases/brokerage"
	"agentbackend/usecases/deployment"
	"agentbackend/usecases/lifecycle"
	"agentbackend/usecases/submission"
)

func main() {
	if err := run(); err != nil {
		log.Printf("❌ Fatal error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// Initialize error alert middleware
	alertMiddleware := middleware.NewErrorAlertMiddleware(middleware.SlackAlertConfig{
		WebhookURL:  cfg.AlertWebhookURL,
		Environment: cfg.Environment,
		AppName:     "agentbackend",
		LogsURL:     cfg.ServerLogsURL,
	})

	// Initialize milestone notifications (no-op when the webhook is unset)
	milestonenotif.Init(cfg.AlertWebhookURL, cfg.Environment)

	// Initialize database connection
	dbConn, err := db.NewConnection(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	// Initialize repositories with shared connection
	agentsRepo := db.NewPostgresAgentsRepository(dbConn, cfg.DatabaseSchema)
	eventsRepo := db.NewPostgresStatusEventsRepository(dbConn, cfg.DatabaseSchema)
	usersRepo := db.NewPostgresUsersRepository(dbConn, cfg.DatabaseSchema)

	// Initialize transaction manager
	txManager := txmanager.NewTransactionManager(dbConn)

	agentsService := agents.NewAgentsService(agentsRepo, eventsRepo, txManager)
	usersService := users.NewUsersService(usersRepo)

	// External clients for each lifecycle stage
	codeStoreClient := codestore.NewClient(afero.NewOsFs(), cfg.CodeStoreDir)
	brokerageClient := alpaca.NewClient(
		cfg.AlpacaConfig.BaseURL,
		cfg.AlpacaConfig.APIKey,
		cfg.AlpacaConfig.APISecret,
	)
	buildExecutorClient := buildexec.NewClient(
		cfg.BuildExecutorConfig.BaseURL,
		cfg.BuildExecutorConfig.APIToken,
	)
	deploymentClient, err := k8sdeploy.NewClient(
		cfg.DeployConfig.Namespace,
		cfg.DeployConfig.AgentImage,
		cfg.DeployConfig.Kubeconfig,
	)
	if err != nil {
		return err
	}

	defaultFundingAmount, err := decimal.NewFromString(cfg.FundingAmountUSD)
	if err != nil {
		return err
	}

	backtestUseCase := backtest.NewBacktestUseCase(agentsService, buildExecutorClient, backtest.Params{
		StartDate:   cfg.BacktestConfig.StartDate,
		EndDate:     cfg.BacktestConfig.EndDate,
		InitialCash: cfg.BacktestConfig.InitialCash,
		Symbols:     cfg.BacktestConfig.Symbols,
		Timeframe:   cfg.BacktestConfig.Timeframe,
	})
	submissionUseCase := submission.NewSubmissionUseCase(agentsService, codeStoreClient, backtestUseCase)
	brokerageUseCase := brokerage.NewBrokerageUseCase(agentsService, brokerageClient)
	deploymentUseCase := deployment.NewDeploymentUseCase(agentsService, deploymentClient, cfg.MaxRunningDeployments)
	lifecycleUseCase := lifecycle.NewLifecycleUseCase(agentsService)

	agentsHandler := handlers.NewAgentsHTTPHandler(
		submissionUseCase,
		lifecycleUseCase,
		backtestUseCase,
		brokerageUseCase,
		deploymentUseCase,
		defaultFundingAmount,
	)
	callbacksHandler := handlers.NewCallbacksHTTPHandler(
		backtestUseCase,
		brokerageUseCase,
		deploymentUseCase,
		cfg.CallbackToken,
	)
	authMiddleware := middleware.NewClerkAuthMiddleware(usersService, cfg.ClerkConfig.SecretKey)

	// Create a new router
	router := mux.NewRouter()

	// Setup endpoints with the new router
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	agentsHandler.SetupEndpoints(apiRouter, authMiddleware)
	callbacksHandler.SetupEndpoints(apiRouter)

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			log.Printf("❌ Failed to write health check response: %v", err)
		}
	}).Methods("GET")

	// Periodically poll the deployment platform so workload readiness is
	// observed even when a callback is lost
	reconcileTicker := time.NewTicker(time.Duration(cfg.ReconcileIntervalSeconds) * time.Second)
	go func() {
		for range reconcileTicker.C {
			_ = alertMiddleware.WrapBackgroundTask("ReconcileRunningDeployments", func() error {
				return deploymentUseCase.ReconcileRunningDeployments(context.Background())
			})()
		}
	}()
	defer reconcileTicker.Stop()

	// Setup CORS middleware
	allowedOrigins := strings.Split(cfg.CORSAllowedOrigins, ",")
	for i, origin := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(origin)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// Setup and handle graceful shutdown
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           alertMiddleware.HTTPMiddleware(c.Handler(router)),
		ReadHeaderTimeout: 30 * time.Second,
	}

	return handleGracefulShutdown(server)
}

func handleGracefulShutdown(server *http.Server) error {
	// Channel to listen for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Printf("✅ Listening on http://localhost%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	<-stop
	log.Printf("🛑 Shutdown signal received, cleaning up...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown server gracefully
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
		return err
	}

	log.Printf("✅ Server stopped gracefully")
	return nil
}
