// Package handlers implements the HTTP API: rule management, transfer
// history, analytics, manual batch triggering, and income/surplus previews.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/savings-autopilot/internal/api/middleware"
	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
	"github.com/dvloznov/savings-autopilot/internal/income"
	"github.com/dvloznov/savings-autopilot/internal/surplus"
)

// RulesHandler handles transfer-rule endpoints.
type RulesHandler struct {
	rules engine.RuleRepository
	log   zerolog.Logger
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(rules engine.RuleRepository, log zerolog.Logger) *RulesHandler {
	return &RulesHandler{rules: rules, log: log}
}

// CreateRule handles POST /api/rules
func (h *RulesHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rule, err := domain.NewTransferRule(&req, time.Now())
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			middleware.WriteError(w, http.StatusBadRequest, ve.Error())
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid rule")
		return
	}

	if err := h.rules.CreateRule(ctx, rule); err != nil {
		h.log.Error().Err(err).Msg("Failed to create rule")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create rule")
		return
	}

	h.log.Info().
		Str("rule_id", rule.ID).
		Str("user_id", rule.UserID).
		Str("transfer_type", string(rule.TransferType)).
		Msg("Transfer rule created")

	middleware.WriteJSON(w, http.StatusCreated, rule)
}

// ListRules handles GET /api/rules
func (h *RulesHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	userID := query.Get("user_id")

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			limit = n
		}
	}

	rules, err := h.rules.ListRules(ctx, userID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list rules")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// GetRule handles GET /api/rules/{id}
func (h *RulesHandler) GetRule(w http.ResponseWriter, r *http.Request, ruleID string) {
	ctx := r.Context()

	rule, err := h.rules.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Rule not found")
			return
		}
		h.log.Error().Err(err).Str("rule_id", ruleID).Msg("Failed to get rule")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get rule")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, rule)
}

// DeactivateRule handles DELETE /api/rules/{id}. Deactivation is logical:
// the rule stops executing but its history stays queryable.
func (h *RulesHandler) DeactivateRule(w http.ResponseWriter, r *http.Request, ruleID string) {
	ctx := r.Context()

	rule, err := h.rules.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrRuleNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Rule not found")
			return
		}
		h.log.Error().Err(err).Str("rule_id", ruleID).Msg("Failed to get rule")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to deactivate rule")
		return
	}

	if rule.IsActive {
		rule.IsActive = false
		rule.UpdatedAt = time.Now()
		if err := h.rules.UpdateRule(ctx, rule); err != nil {
			if errors.Is(err, domain.ErrRuleClaimed) {
				middleware.WriteError(w, http.StatusConflict, "Rule is being processed, try again")
				return
			}
			h.log.Error().Err(err).Str("rule_id", ruleID).Msg("Failed to deactivate rule")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to deactivate rule")
			return
		}
		h.log.Info().Str("rule_id", ruleID).Msg("Transfer rule deactivated")
	}

	middleware.WriteJSON(w, http.StatusOK, rule)
}

// HistoryHandler handles transfer-history endpoints.
type HistoryHandler struct {
	records engine.RecordRepository
	log     zerolog.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(records engine.RecordRepository, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{records: records, log: log}
}

// ListHistory handles GET /api/history
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := engine.HistoryFilter{
		UserID: query.Get("user_id"),
		GoalID: query.Get("goal_id"),
		RuleID: query.Get("rule_id"),
	}

	if fromStr := query.Get("from"); fromStr != "" {
		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid from format")
			return
		}
		filter.From = from
	}

	if toStr := query.Get("to"); toStr != "" {
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid to format")
			return
		}
		filter.To = to
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = n
		}
	}

	records, err := h.records.QueryHistory(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query history")
		return
	}

	if records == nil {
		records = []*domain.TransferRecord{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// AnalyticsHandler handles aggregate-analytics endpoints.
type AnalyticsHandler struct {
	analytics *engine.Analytics
	log       zerolog.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(analytics *engine.Analytics, log zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, log: log}
}

// GetAnalytics handles GET /api/analytics
func (h *AnalyticsHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()

	from := time.Now().AddDate(0, 0, -30)
	to := time.Now()
	var err error

	if fromStr := query.Get("from"); fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid from format")
			return
		}
	}

	if toStr := query.Get("to"); toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid to format")
			return
		}
	}

	result, err := h.analytics.Compute(ctx, from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute analytics")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute analytics")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// BatchHandler handles manual batch-sweep triggering.
type BatchHandler struct {
	batch *engine.BatchProcessor
	log   zerolog.Logger
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(batch *engine.BatchProcessor, log zerolog.Logger) *BatchHandler {
	return &BatchHandler{batch: batch, log: log}
}

// RunBatch handles POST /api/batch/run
func (h *BatchHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.batch.Run(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Batch sweep failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Batch sweep failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// AnalysisHandler handles income and surplus preview endpoints. Previews
// run the same analysis the engine uses, without touching any rule.
type AnalysisHandler struct {
	transactions engine.TransactionProvider
	detector     *income.Detector
	surplus      *surplus.Calculator

	windowDays    int
	bufferPercent float64
	log           zerolog.Logger
}

// NewAnalysisHandler creates a new analysis handler with default window and
// safety buffer; query parameters can override both per request.
func NewAnalysisHandler(
	transactions engine.TransactionProvider,
	detector *income.Detector,
	surplusCalc *surplus.Calculator,
	windowDays int,
	bufferPercent float64,
	log zerolog.Logger,
) *AnalysisHandler {
	if windowDays <= 0 {
		windowDays = 90
	}
	return &AnalysisHandler{
		transactions:  transactions,
		detector:      detector,
		surplus:       surplusCalc,
		windowDays:    windowDays,
		bufferPercent: bufferPercent,
		log:           log,
	}
}

// DetectIncome handles GET /api/analysis/income
func (h *AnalysisHandler) DetectIncome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, accountID, windowDays, ok := h.analysisParams(w, r)
	if !ok {
		return
	}

	from := time.Now().AddDate(0, 0, -windowDays)
	txs, err := h.transactions.GetAccountTransactions(ctx, userID, accountID, from)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to fetch transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	analysis, err := h.detector.Detect(txs)
	if err != nil {
		if errors.Is(err, domain.ErrNoIncomeDetected) {
			middleware.WriteError(w, http.StatusNotFound, "No recurring income detected")
			return
		}
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Income detection failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Income detection failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, analysis)
}

// CalculateSurplus handles GET /api/analysis/surplus
func (h *AnalysisHandler) CalculateSurplus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, accountID, windowDays, ok := h.analysisParams(w, r)
	if !ok {
		return
	}

	buffer := h.bufferPercent
	if bufferStr := r.URL.Query().Get("buffer_percent"); bufferStr != "" {
		if f, err := strconv.ParseFloat(bufferStr, 64); err == nil && f >= 0 {
			buffer = f
		}
	}

	from := time.Now().AddDate(0, 0, -windowDays)
	txs, err := h.transactions.GetAccountTransactions(ctx, userID, accountID, from)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to fetch transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	calc, err := h.surplus.Calculate(txs, buffer, windowDays)
	if err != nil {
		if errors.Is(err, domain.ErrNoIncomeDetected) {
			middleware.WriteError(w, http.StatusNotFound, "No recurring income detected")
			return
		}
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Surplus calculation failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Surplus calculation failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, calc)
}

// analysisParams extracts the shared preview parameters, writing the error
// response itself when validation fails.
func (h *AnalysisHandler) analysisParams(w http.ResponseWriter, r *http.Request) (userID, accountID string, windowDays int, ok bool) {
	query := r.URL.Query()

	userID = query.Get("user_id")
	accountID = query.Get("account_id")
	if userID == "" || accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id and account_id are required")
		return "", "", 0, false
	}

	windowDays = h.windowDays
	if windowStr := query.Get("window_days"); windowStr != "" {
		n, err := strconv.Atoi(windowStr)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "window_days must be a positive integer")
			return "", "", 0, false
		}
		windowDays = n
	}

	return userID, accountID, windowDays, true
}
