package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
	"github.com/dvloznov/savings-autopilot/internal/infra/inmemory"
)

func TestAnalyticsCompute(t *testing.T) {
	ctx := context.Background()
	rules := inmemory.NewRuleStore()
	records := inmemory.NewRecordStore()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	fixed := fixedRule("fixed", 100, base)
	if err := rules.CreateRule(ctx, fixed); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	pct := fixedRule("pct", 10, base)
	pct.TransferType = domain.TransferTypePercentageIncome
	if err := rules.CreateRule(ctx, pct); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	seed := []*domain.TransferRecord{
		{ID: "a", RuleID: "fixed", Status: domain.StatusCompleted, Amount: 100, CreatedAt: base},
		{ID: "b", RuleID: "fixed", Status: domain.StatusCompleted, Amount: 150, CreatedAt: base.AddDate(0, 0, 1)},
		{ID: "c", RuleID: "pct", Status: domain.StatusFailed, CreatedAt: base.AddDate(0, 0, 2)},
		{ID: "d", RuleID: "gone", Status: domain.StatusSkipped, CreatedAt: base.AddDate(0, 0, 3)},
		{ID: "e", RuleID: "fixed", Status: domain.StatusCompleted, Amount: 999, CreatedAt: base.AddDate(0, 1, 0)}, // outside window
	}
	for _, rec := range seed {
		if err := records.SaveRecord(ctx, rec); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
	}

	got, err := engine.NewAnalytics(records, rules).Compute(ctx, base, base.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if got.TotalAttempts != 4 {
		t.Errorf("total attempts = %d, want 4", got.TotalAttempts)
	}
	if got.TotalMoved != 250 {
		t.Errorf("total moved = %g, want 250", got.TotalMoved)
	}
	if got.SuccessRate != 0.5 {
		t.Errorf("success rate = %g, want 0.5", got.SuccessRate)
	}
	if got.ByStatus[domain.StatusCompleted] != 2 || got.ByStatus[domain.StatusFailed] != 1 || got.ByStatus[domain.StatusSkipped] != 1 {
		t.Errorf("by status = %v", got.ByStatus)
	}

	// Attempts whose rule no longer exists still count toward the totals,
	// just not the per-type breakdown.
	if got.ByTransferType[domain.TransferTypeFixed] != 2 {
		t.Errorf("fixed attempts = %d, want 2", got.ByTransferType[domain.TransferTypeFixed])
	}
	if got.ByTransferType[domain.TransferTypePercentageIncome] != 1 {
		t.Errorf("percentage attempts = %d, want 1", got.ByTransferType[domain.TransferTypePercentageIncome])
	}
}

func TestAnalyticsEmptyWindow(t *testing.T) {
	ctx := context.Background()
	got, err := engine.NewAnalytics(inmemory.NewRecordStore(), inmemory.NewRuleStore()).
		Compute(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if got.TotalAttempts != 0 || got.SuccessRate != 0 {
		t.Errorf("empty window produced attempts=%d rate=%g", got.TotalAttempts, got.SuccessRate)
	}
}
