package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/savings-autopilot/internal/engine"
	"github.com/dvloznov/savings-autopilot/internal/infra/inmemory"
)

func newBatch(env *testEnv, reports engine.ReportStore) *engine.BatchProcessor {
	return engine.NewBatchProcessor(env.rules, env.executor, reports, env.notify, env.clk, zerolog.Nop(), engine.BatchConfig{
		BatchLimit:  100,
		WorkerCount: 4,
		ClaimLease:  5 * time.Minute,
	})
}

func TestBatchRunSummary(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(start)
	env.transfer.failAccounts = map[string]bool{"acct-bad": true}
	ctx := context.Background()

	ok := fixedRule("ok", 200, start.AddDate(0, 0, -1))
	env.mustCreate(t, ok)

	bad := fixedRule("bad", 100, start.AddDate(0, 0, -1))
	bad.UserID = "user-2"
	bad.SourceAccountID = "acct-bad"
	env.mustCreate(t, bad)

	notDue := fixedRule("later", 50, start.AddDate(0, 0, 7))
	env.mustCreate(t, notDue)

	reports := inmemory.NewReportStore()
	report, err := newBatch(env, reports).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Processed != 2 {
		t.Errorf("processed = %d, want 2", report.Processed)
	}
	if report.Succeeded != 1 || report.Failed != 1 || report.Skipped != 0 {
		t.Errorf("succeeded/failed/skipped = %d/%d/%d, want 1/1/0", report.Succeeded, report.Failed, report.Skipped)
	}
	if report.TotalMoved != 200 {
		t.Errorf("total moved = %g, want 200", report.TotalMoved)
	}

	// One rule's provider failure never blocks the others.
	okStored, _ := env.rules.GetRule(ctx, ok.ID)
	if !okStored.NextExecutionDate.After(start) {
		t.Error("successful rule's schedule did not advance")
	}
	badStored, _ := env.rules.GetRule(ctx, bad.ID)
	if badStored.RetryAfter == nil {
		t.Error("failed rule has no retry timer")
	}

	saved, _ := reports.ListReportsBefore(ctx, start.AddDate(0, 0, 1))
	if len(saved) != 1 {
		t.Errorf("saved reports = %d, want 1", len(saved))
	}

	// Only users with completed or failed transfers get a summary, and the
	// retrying user has neither yet.
	summaries := env.notify.byKind("transfer_summary")
	if len(summaries) != 1 || summaries[0].userID != "user-1" {
		t.Errorf("summaries = %+v, want one for user-1", summaries)
	}
}

func TestBatchSkipsClaimedRules(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(start)
	ctx := context.Background()

	rule := fixedRule("r1", 200, start.AddDate(0, 0, -1))
	env.mustCreate(t, rule)

	// Another run already owns the rule.
	if _, err := env.rules.ClaimRule(ctx, rule.ID, start.Add(10*time.Minute)); err != nil {
		t.Fatalf("pre-claim failed: %v", err)
	}

	report, err := newBatch(env, nil).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Processed != 0 {
		t.Errorf("processed = %d, want 0 while the claim is held", report.Processed)
	}
	if env.transfer.callCount() != 0 {
		t.Error("claimed rule was executed anyway")
	}
}

func TestBatchPicksUpRetryableRules(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(start)
	ctx := context.Background()

	rule := fixedRule("r1", 200, start.AddDate(0, 0, -1))
	rule.RetryCount = 1
	rule.LastError = "bank provider: timeout"
	retryAt := start.Add(-time.Hour)
	rule.RetryAfter = &retryAt
	env.mustCreate(t, rule)

	report, err := newBatch(env, nil).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Processed != 1 || report.Succeeded != 1 {
		t.Errorf("processed/succeeded = %d/%d, want 1/1", report.Processed, report.Succeeded)
	}

	stored, _ := env.rules.GetRule(ctx, rule.ID)
	if stored.RetryCount != 0 || stored.RetryAfter != nil || stored.LastError != "" {
		t.Errorf("retry state not cleared after successful retry: %+v", stored)
	}
}

func TestBatchHonorsLimit(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(start)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		env.mustCreate(t, fixedRule(id, 10, start.AddDate(0, 0, -1)))
	}

	batch := engine.NewBatchProcessor(env.rules, env.executor, nil, env.notify, env.clk, zerolog.Nop(), engine.BatchConfig{
		BatchLimit:  2,
		WorkerCount: 2,
		ClaimLease:  5 * time.Minute,
	})

	report, err := batch.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Processed != 2 {
		t.Errorf("processed = %d, want the batch limit of 2", report.Processed)
	}

	// The remainder is picked up by the next sweep.
	report, err = batch.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if report.Processed != 1 {
		t.Errorf("second sweep processed = %d, want 1", report.Processed)
	}
}
