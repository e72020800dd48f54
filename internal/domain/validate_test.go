package domain

import (
	"errors"
	"testing"
	"time"
)

func validRequest() *CreateRuleRequest {
	return &CreateRuleRequest{
		GoalID:             "goal-1",
		UserID:             "user-1",
		SourceAccountID:    "acct-1",
		TargetSubaccountID: "sub-1",
		TransferType:       TransferTypeFixed,
		Amount:             100,
		Frequency:          FrequencyMonthly,
		StartDate:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidateCreateRule(t *testing.T) {
	end := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mutate  func(*CreateRuleRequest)
		wantErr bool
	}{
		{name: "valid fixed rule", mutate: func(r *CreateRuleRequest) {}, wantErr: false},
		{
			name:    "zero amount",
			mutate:  func(r *CreateRuleRequest) { r.Amount = 0 },
			wantErr: true,
		},
		{
			name:    "negative amount",
			mutate:  func(r *CreateRuleRequest) { r.Amount = -50 },
			wantErr: true,
		},
		{
			name: "percentage above 100",
			mutate: func(r *CreateRuleRequest) {
				r.TransferType = TransferTypePercentageIncome
				r.IncomeDetectionEnabled = true
				r.Amount = 150
			},
			wantErr: true,
		},
		{
			name: "percentage of exactly 100 is allowed",
			mutate: func(r *CreateRuleRequest) {
				r.TransferType = TransferTypePercentageIncome
				r.IncomeDetectionEnabled = true
				r.Amount = 100
			},
			wantErr: false,
		},
		{
			name:    "end date before start date",
			mutate:  func(r *CreateRuleRequest) { r.EndDate = &end },
			wantErr: true,
		},
		{
			name:    "unknown transfer type",
			mutate:  func(r *CreateRuleRequest) { r.TransferType = "LOTTERY" },
			wantErr: true,
		},
		{
			name:    "unknown frequency",
			mutate:  func(r *CreateRuleRequest) { r.Frequency = "HOURLY" },
			wantErr: true,
		},
		{
			name: "income rule without detection enabled",
			mutate: func(r *CreateRuleRequest) {
				r.TransferType = TransferTypePercentageIncome
				r.Amount = 10
				r.IncomeDetectionEnabled = false
			},
			wantErr: true,
		},
		{
			name: "surplus rule without surplus enabled",
			mutate: func(r *CreateRuleRequest) {
				r.TransferType = TransferTypeSmartSurplus
				r.Amount = 50
				r.SurplusCalculationEnabled = false
			},
			wantErr: true,
		},
		{
			name:    "missing user",
			mutate:  func(r *CreateRuleRequest) { r.UserID = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := ValidateCreateRule(req)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCreateRule() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("expected *ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestNewTransferRule(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	req := validRequest()

	rule, err := NewTransferRule(req, now)
	if err != nil {
		t.Fatalf("NewTransferRule failed: %v", err)
	}

	if rule.ID == "" {
		t.Error("expected generated rule ID")
	}
	if !rule.IsActive {
		t.Error("new rule must be active")
	}
	if !rule.NextExecutionDate.Equal(req.StartDate) {
		t.Errorf("NextExecutionDate = %v, want start date %v", rule.NextExecutionDate, req.StartDate)
	}
	if rule.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default %d", rule.MaxRetries, DefaultMaxRetries)
	}
	if !rule.CreatedAt.Equal(now) || !rule.UpdatedAt.Equal(now) {
		t.Error("timestamps must come from the injected clock")
	}
}

func TestRuleClaimAndRetryHelpers(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	rule := &TransferRule{RetryCount: 3, MaxRetries: 3}

	if !rule.RetriesExhausted() {
		t.Error("RetriesExhausted() = false with retryCount == maxRetries")
	}

	lease := now.Add(5 * time.Minute)
	rule.ClaimedUntil = &lease
	if !rule.IsClaimed(now) {
		t.Error("IsClaimed() = false inside lease window")
	}
	if rule.IsClaimed(now.Add(10 * time.Minute)) {
		t.Error("IsClaimed() = true after lease expiry")
	}
}

func TestSkippableAndRetryableClassification(t *testing.T) {
	if !IsSkippable(ErrNoIncomeDetected) {
		t.Error("ErrNoIncomeDetected must be skippable")
	}
	if !IsSkippable(ErrNoSurplusAvailable) {
		t.Error("ErrNoSurplusAvailable must be skippable")
	}
	if IsSkippable(errors.New("boom")) {
		t.Error("arbitrary errors are not skippable")
	}

	pe := NewProviderError("transfer", errors.New("timeout"))
	if !IsRetryable(pe) {
		t.Error("provider errors must be retryable")
	}
	if IsRetryable(NewValidationError("amount", "bad")) {
		t.Error("validation errors are never retryable")
	}
}
