package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/api/handlers"
	"github.com/dvloznov/savings-autopilot/internal/api/middleware"
	"github.com/dvloznov/savings-autopilot/internal/app"
	"github.com/dvloznov/savings-autopilot/internal/config"
	"github.com/dvloznov/savings-autopilot/internal/logger"
)

func main() {
	log := logger.New("savings-api")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	deps, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer deps.Close()

	// Initialize handlers
	rulesHandler := handlers.NewRulesHandler(deps.Rules, log)
	historyHandler := handlers.NewHistoryHandler(deps.Records, log)
	analyticsHandler := handlers.NewAnalyticsHandler(deps.Analytics, log)
	batchHandler := handlers.NewBatchHandler(deps.Batch, log)
	analysisHandler := handlers.NewAnalysisHandler(
		deps.Transactions, deps.Detector, deps.Surplus,
		cfg.AnalysisWindowDays, cfg.SafetyBufferPercent, log,
	)

	// Create router
	mux := http.NewServeMux()

	// Rules endpoints
	mux.HandleFunc("/api/rules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			rulesHandler.ListRules(w, r)
		case http.MethodPost:
			rulesHandler.CreateRule(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/rules/", func(w http.ResponseWriter, r *http.Request) {
		ruleID := strings.TrimPrefix(r.URL.Path, "/api/rules/")
		if ruleID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Rule ID is required")
			return
		}
		switch r.Method {
		case http.MethodGet:
			rulesHandler.GetRule(w, r, ruleID)
		case http.MethodDelete:
			rulesHandler.DeactivateRule(w, r, ruleID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// History endpoint
	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			historyHandler.ListHistory(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Analytics endpoint
	mux.HandleFunc("/api/analytics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			analyticsHandler.GetAnalytics(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Manual batch trigger
	mux.HandleFunc("/api/batch/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			batchHandler.RunBatch(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Analysis previews
	mux.HandleFunc("/api/analysis/income", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			analysisHandler.DetectIncome(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/analysis/surplus", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			analysisHandler.CalculateSurplus(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
