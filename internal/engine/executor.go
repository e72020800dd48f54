package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/savings-autopilot/internal/clock"
	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/schedule"
)

// ExecutorConfig tunes retry timing and external-call deadlines.
type ExecutorConfig struct {
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	ProviderTimeout time.Duration
}

// Executor runs a single execution attempt for one rule: compute the
// amount, perform the transfer, persist the audit record, and mutate the
// rule's scheduling state. Every attempt produces exactly one
// TransferRecord; retries are new attempts with new records.
type Executor struct {
	rules     RuleRepository
	records   RecordRepository
	transfers TransferProvider
	goals     GoalLedger
	notify    NotificationDispatcher
	amounts   *AmountCalculator
	clk       clock.Clock
	log       zerolog.Logger
	cfg       ExecutorConfig
}

// NewExecutor wires an Executor.
func NewExecutor(
	rules RuleRepository,
	records RecordRepository,
	transfers TransferProvider,
	goals GoalLedger,
	notify NotificationDispatcher,
	amounts *AmountCalculator,
	clk clock.Clock,
	log zerolog.Logger,
	cfg ExecutorConfig,
) *Executor {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Hour
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 24 * time.Hour
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	return &Executor{
		rules:     rules,
		records:   records,
		transfers: transfers,
		goals:     goals,
		notify:    notify,
		amounts:   amounts,
		clk:       clk,
		log:       log,
		cfg:       cfg,
	}
}

// ExecuteRule performs one attempt for a claimed rule and returns its audit
// record. The caller owns the claim; ExecuteRule persists all rule updates
// (which also release the lease) before returning.
func (e *Executor) ExecuteRule(ctx context.Context, rule *domain.TransferRule) (*domain.TransferRecord, error) {
	now := e.clk.Now()

	record := &domain.TransferRecord{
		ID:                 uuid.NewString(),
		RuleID:             rule.ID,
		GoalID:             rule.GoalID,
		UserID:             rule.UserID,
		SourceAccountID:    rule.SourceAccountID,
		TargetSubaccountID: rule.TargetSubaccountID,
		Status:             domain.StatusPending,
		ScheduledDate:      rule.NextExecutionDate,
		RetryCount:         rule.RetryCount,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.records.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("ExecuteRule: save pending record: %w", err)
	}

	// Deactivation wins over everything else: no attempt, no retry.
	if !rule.IsActive || rule.Expired(now) {
		return e.finishCancelled(ctx, rule, record)
	}

	result, err := e.amounts.Calculate(ctx, rule, now)
	if err != nil {
		if domain.IsSkippable(err) {
			return e.finishSkipped(ctx, rule, record, err.Error())
		}
		if domain.IsRetryable(err) {
			return e.finishFailure(ctx, rule, record, err)
		}
		// Configuration problems are not retried; they surface for review.
		return e.finishInvalid(ctx, rule, record, err)
	}

	record.Amount = round2(result.Amount)
	record.DetectedIncomeAmount = result.DetectedIncome
	record.IncomeSource = result.IncomeSource
	record.SurplusCalculation = result.Surplus

	if record.Amount <= 0 {
		return e.finishSkipped(ctx, rule, record, "computed amount is zero for this cycle")
	}

	record.Status = domain.StatusProcessing
	record.UpdatedAt = e.clk.Now()
	if err := e.records.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("ExecuteRule: save processing record: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	transfer, err := e.transfers.PerformTransfer(callCtx, TransferRequest{
		SourceAccountID:    rule.SourceAccountID,
		TargetSubaccountID: rule.TargetSubaccountID,
		Amount:             record.Amount,
		IdempotencyKey:     record.ID,
	})
	if err != nil {
		return e.finishFailure(ctx, rule, record, err)
	}

	return e.finishSuccess(ctx, rule, record, transfer)
}

// finishSuccess marks the record Completed, advances the rule's schedule,
// resets its retry state, and applies the deposit to the goal.
func (e *Executor) finishSuccess(ctx context.Context, rule *domain.TransferRule, record *domain.TransferRecord, transfer *TransferResult) (*domain.TransferRecord, error) {
	now := e.clk.Now()

	record.Status = domain.StatusCompleted
	record.ExecutedDate = &now
	record.ExternalTransactionID = transfer.ExternalTransactionID
	record.UpdatedAt = now
	if err := e.records.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("ExecuteRule: save completed record: %w", err)
	}

	rule.RetryCount = 0
	rule.LastError = ""
	rule.RetryAfter = nil
	rule.LastExecutionDate = &now
	rule.NextExecutionDate = schedule.NextExecutionDate(schedule.BaseDate(rule), rule.Frequency)
	rule.ClaimedUntil = nil
	rule.UpdatedAt = now
	if err := e.rules.UpdateRule(ctx, rule); err != nil {
		return record, fmt.Errorf("ExecuteRule: update rule after success: %w", err)
	}

	e.applyToGoal(ctx, rule, record)
	return record, nil
}

// applyToGoal updates the goal balance and emits the completion event when
// this deposit crosses the target. Goal and notification failures never
// roll back the completed transfer; they are logged and left behind.
func (e *Executor) applyToGoal(ctx context.Context, rule *domain.TransferRule, record *domain.TransferRecord) {
	memo := fmt.Sprintf("automated transfer %s", record.ID)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	deposit, err := e.goals.ApplyDeposit(callCtx, rule.TargetSubaccountID, record.Amount, memo)
	if err != nil {
		e.log.Error().Err(err).
			Str("rule_id", rule.ID).
			Str("record_id", record.ID).
			Msg("Goal balance update failed after completed transfer")
		return
	}

	if deposit.Crossed() && e.notify != nil {
		title := "Goal reached"
		msg := fmt.Sprintf("%s hit its target of %.2f", deposit.GoalName, deposit.TargetAmount)
		if err := e.notify.Notify(ctx, rule.UserID, "goal_completed", title, msg, map[string]interface{}{
			"goal_id":     deposit.GoalID,
			"balance":     deposit.NewBalance,
			"target":      deposit.TargetAmount,
			"record_id":   record.ID,
		}); err != nil {
			e.log.Warn().Err(err).Str("user_id", rule.UserID).Msg("Goal completion notification failed")
		}
	}
}

// finishSkipped records a zero-amount cycle. The schedule still advances;
// the retry state is cleared because nothing failed.
func (e *Executor) finishSkipped(ctx context.Context, rule *domain.TransferRule, record *domain.TransferRecord, reason string) (*domain.TransferRecord, error) {
	now := e.clk.Now()

	record.Status = domain.StatusSkipped
	record.ErrorMessage = reason
	record.UpdatedAt = now
	if err := e.records.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("ExecuteRule: save skipped record: %w", err)
	}

	rule.RetryAfter = nil
	rule.LastExecutionDate = &now
	rule.NextExecutionDate = schedule.NextExecutionDate(schedule.BaseDate(rule), rule.Frequency)
	rule.ClaimedUntil = nil
	rule.UpdatedAt = now
	if err := e.rules.UpdateRule(ctx, rule); err != nil {
		return record, fmt.Errorf("ExecuteRule: update rule after skip: %w", err)
	}
	return record, nil
}

// finishCancelled records an attempt against a deactivated or expired rule.
func (e *Executor) finishCancelled(ctx context.Context, rule *domain.TransferRule, record *domain.TransferRecord) (*domain.TransferRecord, error) {
	now := e.clk.Now()

	record.Status = domain.StatusCancelled
	record.ErrorMessage = "rule deactivated"
	record.UpdatedAt = now
	if err := e.records.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("ExecuteRule: save cancelled record: %w", err)
	}

	// No further retries once deactivated.
	rule.RetryAfter = nil
	rule.ClaimedUntil = nil
	rule.UpdatedAt = now
	if err := e.rules.UpdateRule(ctx, rule); err != nil {
		return record, fmt.Errorf("ExecuteRule: update rule after cancel: %w", err)
	}
	return record, nil
}

// finishInvalid records a terminal failure for a misconfigured rule.
// Retrying cannot fix the configuration, so no backoff timer is set and the
// rule is parked out of the scheduling queue for manual review.
func (e *Executor) finishInvalid(ctx context.Context, rule *domain.TransferRule, record *domain.TransferRecord, cause error) (*domain.TransferRecord, error) {
	now := e.clk.Now()

	record.Status = domain.StatusFailed
	record.ErrorMessage = cause.Error()
	record.UpdatedAt = now
	if err := e.records.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("ExecuteRule: save failed record: %w", err)
	}

	rule.RetryCount = rule.MaxRetries
	rule.RetryAfter = nil
	rule.LastError = cause.Error()
	rule.ClaimedUntil = nil
	rule.UpdatedAt = now
	if err := e.rules.UpdateRule(ctx, rule); err != nil {
		return record, fmt.Errorf("ExecuteRule: update rule after invalid config: %w", err)
	}
	return record, nil
}

// finishFailure applies the retry policy: while the retry budget lasts the
// record goes to Retrying and the rule gets a backoff timer; once the
// budget is spent the record goes to Failed and the rule is left active but
// flagged through LastError for manual review.
func (e *Executor) finishFailure(ctx context.Context, rule *domain.TransferRule, record *domain.TransferRecord, cause error) (*domain.TransferRecord, error) {
	now := e.clk.Now()
	record.ErrorMessage = cause.Error()
	record.UpdatedAt = now

	if rule.RetryCount < rule.MaxRetries {
		rule.RetryCount++
		record.Status = domain.StatusRetrying
		record.RetryCount = rule.RetryCount

		delay := schedule.RetryDelay(rule.RetryCount, e.cfg.BackoffBase, e.cfg.BackoffMax)
		retryAt := now.Add(delay)
		rule.RetryAfter = &retryAt
		rule.LastError = cause.Error()
	} else {
		record.Status = domain.StatusFailed
		record.RetryCount = rule.RetryCount

		rule.RetryAfter = nil
		rule.LastError = fmt.Sprintf("%v: %v", domain.ErrRetriesExhausted, cause)
	}

	if err := e.records.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("ExecuteRule: save failed record: %w", err)
	}

	rule.ClaimedUntil = nil
	rule.UpdatedAt = now
	if err := e.rules.UpdateRule(ctx, rule); err != nil {
		return record, fmt.Errorf("ExecuteRule: update rule after failure: %w", err)
	}
	return record, nil
}

// round2 rounds a currency amount to cents.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
