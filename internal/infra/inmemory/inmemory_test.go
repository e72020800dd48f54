package inmemory

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/clock"
	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

func sampleRule() *domain.TransferRule {
	end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	retry := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	return &domain.TransferRule{
		ID:                 "rule-1",
		GoalID:             "goal-1",
		UserID:             "user-1",
		SourceAccountID:    "acct-1",
		TargetSubaccountID: "sub-1",
		TransferType:       domain.TransferTypePercentageIncome,
		Amount:             10,
		Frequency:          domain.FrequencyMonthly,
		StartDate:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            &end,
		IsActive:           true,
		NextExecutionDate:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		LastExecutionDate:  &last,
		RetryCount:         1,
		MaxRetries:         3,
		LastError:          "provider timeout",
		RetryAfter:         &retry,

		IncomeDetectionEnabled:   true,
		MinimumIncomeThreshold:   250,
		MaximumTransferPerPeriod: 500,

		CreatedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 2, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestRuleRoundTrip(t *testing.T) {
	store := NewRuleStore()
	ctx := context.Background()

	original := sampleRule()
	if err := store.CreateRule(ctx, original); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	got, err := store.GetRule(ctx, original.ID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if !reflect.DeepEqual(original, got) {
		t.Errorf("round trip mismatch:\n  put: %+v\n  got: %+v", original, got)
	}

	// Mutating the returned copy must not leak into the store.
	got.Amount = 99
	again, _ := store.GetRule(ctx, original.ID)
	if again.Amount != original.Amount {
		t.Error("store returned a shared reference, not a copy")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()

	executed := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	original := &domain.TransferRecord{
		ID:                 "rec-1",
		RuleID:             "rule-1",
		GoalID:             "goal-1",
		UserID:             "user-1",
		SourceAccountID:    "acct-1",
		TargetSubaccountID: "sub-1",
		Amount:             125.50,
		Status:             domain.StatusCompleted,
		ScheduledDate:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		ExecutedDate:       &executed,

		ExternalTransactionID: "ext-42",
		RetryCount:            2,
		DetectedIncomeAmount:  3000,
		IncomeSource:          "ACME SALARY",
		SurplusCalculation: &domain.SurplusCalculation{
			TotalIncome:       3000,
			EssentialExpenses: 1500,
			CalculatedSurplus: 900,
		},
		CreatedAt: time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC),
		UpdatedAt: executed,
	}

	if err := store.SaveRecord(ctx, original); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}

	got, err := store.QueryHistory(ctx, engine.HistoryFilter{UserID: "user-1"})
	if err != nil {
		t.Fatalf("QueryHistory failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if !reflect.DeepEqual(original, got[0]) {
		t.Errorf("round trip mismatch:\n  put: %+v\n  got: %+v", original, got[0])
	}
}

func TestQueryDueRules(t *testing.T) {
	store := NewRuleStore()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	due := sampleRule()
	due.ID = "due"
	due.RetryAfter = nil
	due.RetryCount = 0
	due.NextExecutionDate = now.AddDate(0, 0, -1)

	future := sampleRule()
	future.ID = "future"
	future.RetryAfter = nil
	future.RetryCount = 0
	future.NextExecutionDate = now.AddDate(0, 0, 5)

	exhausted := sampleRule()
	exhausted.ID = "exhausted"
	exhausted.RetryAfter = nil
	exhausted.RetryCount = 3
	exhausted.NextExecutionDate = now.AddDate(0, 0, -1)

	waiting := sampleRule()
	waiting.ID = "waiting"
	waiting.NextExecutionDate = now.AddDate(0, 0, -1)
	// RetryAfter still set from sampleRule: belongs to the retry queue.

	inactive := sampleRule()
	inactive.ID = "inactive"
	inactive.RetryAfter = nil
	inactive.RetryCount = 0
	inactive.IsActive = false
	inactive.NextExecutionDate = now.AddDate(0, 0, -1)

	for _, r := range []*domain.TransferRule{due, future, exhausted, waiting, inactive} {
		if err := store.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule(%s) failed: %v", r.ID, err)
		}
	}

	got, err := store.QueryDueRules(ctx, now, 10)
	if err != nil {
		t.Fatalf("QueryDueRules failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "due" {
		ids := make([]string, len(got))
		for i, r := range got {
			ids[i] = r.ID
		}
		t.Errorf("QueryDueRules returned %v, want [due]", ids)
	}

	retryable, err := store.QueryRetryableRules(ctx, time.Date(2024, 2, 2, 11, 0, 0, 0, time.UTC), 10)
	if err != nil {
		t.Fatalf("QueryRetryableRules failed: %v", err)
	}
	if len(retryable) != 1 || retryable[0].ID != "waiting" {
		t.Errorf("QueryRetryableRules returned %d rules, want [waiting]", len(retryable))
	}
}

func TestClaimRuleExclusivity(t *testing.T) {
	fake := clock.NewFake(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	store := NewRuleStoreWithClock(fake)
	ctx := context.Background()

	rule := sampleRule()
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	until := fake.Now().Add(5 * time.Minute)
	claimed, err := store.ClaimRule(ctx, rule.ID, until)
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}

	if _, err := store.ClaimRule(ctx, rule.ID, until); !errors.Is(err, domain.ErrRuleClaimed) {
		t.Errorf("second claim error = %v, want ErrRuleClaimed", err)
	}

	// Lease expiry frees the rule.
	fake.Advance(10 * time.Minute)
	if _, err := store.ClaimRule(ctx, rule.ID, fake.Now().Add(5*time.Minute)); err != nil {
		t.Errorf("claim after lease expiry failed: %v", err)
	}

	// A stale copy (pre-claim version) must not update.
	stale := sampleRule()
	stale.Version = 0
	_ = claimed
	if err := store.UpdateRule(ctx, stale); !errors.Is(err, domain.ErrRuleClaimed) {
		t.Errorf("stale update error = %v, want ErrRuleClaimed", err)
	}
}

func TestUpdateRuleVersioning(t *testing.T) {
	store := NewRuleStore()
	ctx := context.Background()

	rule := sampleRule()
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	rule.Amount = 20
	if err := store.UpdateRule(ctx, rule); err != nil {
		t.Fatalf("UpdateRule failed: %v", err)
	}
	if rule.Version != 1 {
		t.Errorf("caller's version = %d, want 1 after update", rule.Version)
	}

	got, _ := store.GetRule(ctx, rule.ID)
	if got.Amount != 20 || got.Version != 1 {
		t.Errorf("stored rule = amount %g version %d, want 20/1", got.Amount, got.Version)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()

	old := &domain.TransferRecord{ID: "old", CreatedAt: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)}
	recent := &domain.TransferRecord{ID: "recent", CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	for _, r := range []*domain.TransferRecord{old, recent} {
		if err := store.SaveRecord(ctx, r); err != nil {
			t.Fatalf("SaveRecord failed: %v", err)
		}
	}

	deleted, err := store.DeleteOlderThan(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	remaining, _ := store.QueryHistory(ctx, engine.HistoryFilter{})
	if len(remaining) != 1 || remaining[0].ID != "recent" {
		t.Errorf("remaining records wrong: %+v", remaining)
	}
}

func TestPatternCacheTTL(t *testing.T) {
	fake := clock.NewFake(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	cache := NewPatternCacheWithClock(fake)
	ctx := context.Background()

	analysis := &domain.IncomeAnalysis{MonthlyIncome: 5000, Confidence: 0.9}
	cache.Put(ctx, "income:u1:a1:30", analysis, time.Hour)

	got, ok := cache.Get(ctx, "income:u1:a1:30")
	if !ok || got.MonthlyIncome != 5000 {
		t.Fatalf("Get returned %v/%v, want cached analysis", got, ok)
	}

	fake.Advance(2 * time.Hour)
	if _, ok := cache.Get(ctx, "income:u1:a1:30"); ok {
		t.Error("Get returned entry after TTL expiry")
	}
}

func TestGoalLedgerDeposit(t *testing.T) {
	ledger := NewGoalLedger()
	ctx := context.Background()

	ledger.PutGoal(&domain.Goal{
		ID: "goal-1", UserID: "user-1", SubaccountID: "sub-1",
		Name: "Holiday", TargetAmount: 1000, CurrentAmount: 900,
	})

	result, err := ledger.ApplyDeposit(ctx, "sub-1", 150, "test")
	if err != nil {
		t.Fatalf("ApplyDeposit failed: %v", err)
	}
	if result.PreviousBalance != 900 || result.NewBalance != 1050 {
		t.Errorf("balances = %g -> %g, want 900 -> 1050", result.PreviousBalance, result.NewBalance)
	}
	if !result.Crossed() {
		t.Error("deposit crossing the target must report Crossed")
	}

	// Second deposit does not re-cross.
	result, err = ledger.ApplyDeposit(ctx, "sub-1", 50, "test")
	if err != nil {
		t.Fatalf("ApplyDeposit failed: %v", err)
	}
	if result.Crossed() {
		t.Error("already-completed goal must not report Crossed again")
	}

	if _, err := ledger.ApplyDeposit(ctx, "missing", 10, "test"); !errors.Is(err, domain.ErrGoalNotFound) {
		t.Errorf("missing goal error = %v, want ErrGoalNotFound", err)
	}
}
