// Package domain defines the core entities of the savings engine: transfer
// rules, execution records, and the derived income/surplus analysis types.
package domain

import (
	"time"
)

// TransferType selects the strategy used to compute a rule's transfer amount.
type TransferType string

const (
	// TransferTypeFixed moves a constant amount each cycle.
	TransferTypeFixed TransferType = "FIXED_AMOUNT"
	// TransferTypePercentageIncome moves a percentage of detected income.
	TransferTypePercentageIncome TransferType = "PERCENTAGE_INCOME"
	// TransferTypeIncomeBased is a legacy alias that dispatches identically
	// to TransferTypePercentageIncome.
	TransferTypeIncomeBased TransferType = "INCOME_BASED"
	// TransferTypeSmartSurplus moves a percentage of the computed surplus.
	TransferTypeSmartSurplus TransferType = "SMART_SURPLUS"
)

// IsValid reports whether t is a known transfer type.
func (t TransferType) IsValid() bool {
	switch t {
	case TransferTypeFixed, TransferTypePercentageIncome, TransferTypeIncomeBased, TransferTypeSmartSurplus:
		return true
	}
	return false
}

// IsPercentage reports whether the rule's Amount field is interpreted as a
// percentage rather than an absolute currency amount.
func (t TransferType) IsPercentage() bool {
	return t == TransferTypePercentageIncome || t == TransferTypeIncomeBased || t == TransferTypeSmartSurplus
}

// Frequency is a rule's recurrence cadence.
type Frequency string

const (
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyBiWeekly  Frequency = "BIWEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
)

// IsValid reports whether f is a known frequency.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

// TransferRule is one user-configured recurring transfer instruction.
// Rules are mutated only by rule management and by the batch processor after
// each execution attempt; deletion is logical (IsActive=false) so the audit
// trail keeps a valid reference.
type TransferRule struct {
	ID                 string       `json:"id"`
	GoalID             string       `json:"goal_id"`
	UserID             string       `json:"user_id"`
	SourceAccountID    string       `json:"source_account_id"`
	TargetSubaccountID string       `json:"target_subaccount_id"`
	TransferType       TransferType `json:"transfer_type"`

	// Amount is an absolute currency amount for FIXED_AMOUNT rules and a
	// percentage in (0,100] for all other types.
	Amount float64 `json:"amount"`

	Frequency Frequency  `json:"frequency"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	IsActive  bool       `json:"is_active"`

	NextExecutionDate time.Time  `json:"next_execution_date"`
	LastExecutionDate *time.Time `json:"last_execution_date,omitempty"`

	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
	LastError  string     `json:"last_error,omitempty"`
	RetryAfter *time.Time `json:"retry_after,omitempty"`

	IncomeDetectionEnabled    bool    `json:"income_detection_enabled"`
	MinimumIncomeThreshold    float64 `json:"minimum_income_threshold"`
	MaximumTransferPerPeriod  float64 `json:"maximum_transfer_per_period"`
	SurplusCalculationEnabled bool    `json:"surplus_calculation_enabled"`

	// Version is the optimistic-concurrency counter; every persisted update
	// increments it, and claims are conditional on it.
	Version int64 `json:"version"`

	// ClaimedUntil is the lease expiry while a batch worker owns the rule.
	ClaimedUntil *time.Time `json:"claimed_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultMaxRetries applies when a rule is created without an explicit limit.
const DefaultMaxRetries = 3

// IsClaimed reports whether the rule is currently leased to a worker.
func (r *TransferRule) IsClaimed(now time.Time) bool {
	return r.ClaimedUntil != nil && r.ClaimedUntil.After(now)
}

// RetriesExhausted reports whether the rule has used up its retry budget.
// An exhausted rule stays active and is surfaced for manual review via
// LastError; it is never auto-deactivated.
func (r *TransferRule) RetriesExhausted() bool {
	return r.RetryCount >= r.MaxRetries
}

// Expired reports whether the rule's optional end date has passed.
func (r *TransferRule) Expired(now time.Time) bool {
	return r.EndDate != nil && now.After(*r.EndDate)
}
