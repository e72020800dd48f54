package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/savings-autopilot/internal/clock"
	"github.com/dvloznov/savings-autopilot/internal/domain"
)

// BatchConfig tunes one sweep of the batch processor.
type BatchConfig struct {
	// BatchLimit caps how many rules one sweep may process.
	BatchLimit int

	// WorkerCount bounds concurrency within the sweep.
	WorkerCount int

	// ClaimLease is how long a worker's claim on a rule stays valid; it
	// must comfortably exceed a single attempt's worst-case duration.
	ClaimLease time.Duration
}

// BatchProcessor selects due rules, runs them through the executor with
// bounded concurrency, and emits the summary report plus per-user
// notifications. Rule failures are isolated: one rule's error never
// aborts the sweep.
type BatchProcessor struct {
	rules    RuleRepository
	executor *Executor
	reports  ReportStore
	notify   NotificationDispatcher
	clk      clock.Clock
	log      zerolog.Logger
	cfg      BatchConfig
}

// NewBatchProcessor wires a BatchProcessor.
func NewBatchProcessor(
	rules RuleRepository,
	executor *Executor,
	reports ReportStore,
	notify NotificationDispatcher,
	clk clock.Clock,
	log zerolog.Logger,
	cfg BatchConfig,
) *BatchProcessor {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 8
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	return &BatchProcessor{
		rules:    rules,
		executor: executor,
		reports:  reports,
		notify:   notify,
		clk:      clk,
		log:      log,
		cfg:      cfg,
	}
}

// outcome is one rule's result inside a sweep.
type outcome struct {
	rule   *domain.TransferRule
	record *domain.TransferRecord
	err    error
}

// Run executes one batch sweep and returns its summary report.
func (b *BatchProcessor) Run(ctx context.Context) (*domain.SummaryReport, error) {
	now := b.clk.Now()

	candidates, err := b.selectRules(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("batch: select rules: %w", err)
	}

	b.log.Info().Int("candidates", len(candidates)).Msg("Batch sweep starting")

	outcomes := b.processAll(ctx, candidates)
	report := b.buildReport(outcomes)

	if b.reports != nil {
		if err := b.reports.SaveReport(ctx, report); err != nil {
			b.log.Error().Err(err).Msg("Failed to save summary report")
		}
	}

	b.dispatchNotifications(ctx, outcomes)

	b.log.Info().
		Int("processed", report.Processed).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Float64("total_moved", report.TotalMoved).
		Msg("Batch sweep finished")

	return report, nil
}

// selectRules gathers due and retry-due rules up to the batch limit,
// deduplicated by ID.
func (b *BatchProcessor) selectRules(ctx context.Context, now time.Time) ([]*domain.TransferRule, error) {
	due, err := b.rules.QueryDueRules(ctx, now, b.cfg.BatchLimit)
	if err != nil {
		return nil, err
	}

	remaining := b.cfg.BatchLimit - len(due)
	var retryable []*domain.TransferRule
	if remaining > 0 {
		retryable, err = b.rules.QueryRetryableRules(ctx, now, remaining)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(due)+len(retryable))
	var out []*domain.TransferRule
	for _, r := range append(due, retryable...) {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out, nil
}

// processAll fans the candidate rules out over the worker pool. Each rule
// is claimed before execution; claim conflicts mean another run owns it
// and the rule is silently left alone.
func (b *BatchProcessor) processAll(ctx context.Context, candidates []*domain.TransferRule) []outcome {
	jobs := make(chan *domain.TransferRule)
	results := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < b.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rule := range jobs {
				results <- b.processOne(ctx, rule)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, rule := range candidates {
			select {
			case jobs <- rule:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var outcomes []outcome
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// processOne claims and executes a single rule, isolating its failure.
func (b *BatchProcessor) processOne(ctx context.Context, rule *domain.TransferRule) outcome {
	now := b.clk.Now()

	claimed, err := b.rules.ClaimRule(ctx, rule.ID, now.Add(b.cfg.ClaimLease))
	if err != nil {
		if errors.Is(err, domain.ErrRuleClaimed) {
			b.log.Debug().Str("rule_id", rule.ID).Msg("Rule claimed by another run, skipping")
		} else {
			b.log.Error().Err(err).Str("rule_id", rule.ID).Msg("Failed to claim rule")
		}
		return outcome{rule: rule, err: err}
	}

	record, err := b.executor.ExecuteRule(ctx, claimed)
	if err != nil {
		b.log.Error().Err(err).Str("rule_id", rule.ID).Msg("Rule execution errored")
		// Best effort: never leave a stale lease behind.
		if relErr := b.rules.ReleaseRule(ctx, rule.ID); relErr != nil {
			b.log.Warn().Err(relErr).Str("rule_id", rule.ID).Msg("Failed to release claim")
		}
	}
	return outcome{rule: claimed, record: record, err: err}
}

// buildReport aggregates sweep outcomes into a summary report.
func (b *BatchProcessor) buildReport(outcomes []outcome) *domain.SummaryReport {
	report := &domain.SummaryReport{
		ID:          uuid.NewString(),
		GeneratedAt: b.clk.Now(),
	}

	for _, o := range outcomes {
		if o.record == nil {
			continue
		}
		report.Processed++
		switch o.record.Status {
		case domain.StatusCompleted:
			report.Succeeded++
			report.TotalMoved += o.record.Amount
		case domain.StatusSkipped:
			report.Skipped++
		case domain.StatusRetrying, domain.StatusFailed:
			report.Failed++
		}
	}
	return report
}

// dispatchNotifications sends one batched notification per affected user.
// Delivery is best-effort; failures are logged and dropped.
func (b *BatchProcessor) dispatchNotifications(ctx context.Context, outcomes []outcome) {
	if b.notify == nil {
		return
	}

	type userSummary struct {
		completed int
		failed    int
		moved     float64
	}
	byUser := make(map[string]*userSummary)

	for _, o := range outcomes {
		if o.record == nil {
			continue
		}
		s := byUser[o.record.UserID]
		if s == nil {
			s = &userSummary{}
			byUser[o.record.UserID] = s
		}
		switch o.record.Status {
		case domain.StatusCompleted:
			s.completed++
			s.moved += o.record.Amount
		case domain.StatusFailed:
			s.failed++
		}
	}

	// Deterministic dispatch order keeps logs and tests stable.
	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	for _, userID := range users {
		s := byUser[userID]
		if s.completed == 0 && s.failed == 0 {
			continue
		}

		msg := fmt.Sprintf("%d transfer(s) completed, %.2f moved to your goals", s.completed, s.moved)
		if s.failed > 0 {
			msg = fmt.Sprintf("%s; %d transfer(s) need attention", msg, s.failed)
		}

		if err := b.notify.Notify(ctx, userID, "transfer_summary", "Savings update", msg, map[string]interface{}{
			"completed":   s.completed,
			"failed":      s.failed,
			"total_moved": s.moved,
		}); err != nil {
			b.log.Warn().Err(err).Str("user_id", userID).Msg("Summary notification failed")
		}
	}
}
