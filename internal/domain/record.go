package domain

import (
	"time"
)

// TransferStatus is the state of one execution attempt.
type TransferStatus string

const (
	// StatusPending indicates the attempt has been recorded but not started.
	StatusPending TransferStatus = "PENDING"
	// StatusProcessing indicates the external transfer call is in flight.
	StatusProcessing TransferStatus = "PROCESSING"
	// StatusCompleted indicates the transfer succeeded. Terminal.
	StatusCompleted TransferStatus = "COMPLETED"
	// StatusRetrying indicates the attempt failed and a later attempt is
	// scheduled per the backoff policy.
	StatusRetrying TransferStatus = "RETRYING"
	// StatusFailed indicates the attempt failed with no retries left. Terminal.
	StatusFailed TransferStatus = "FAILED"
	// StatusCancelled indicates the rule was deactivated before or during the
	// attempt. Terminal.
	StatusCancelled TransferStatus = "CANCELLED"
	// StatusSkipped indicates the computed amount was zero for this cycle.
	// Audit-only terminal state: the schedule advances, nothing is moved.
	StatusSkipped TransferStatus = "SKIPPED"
)

// IsTerminal reports whether no further transition from s is allowed.
func (s TransferStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}

// TransferRecord is the immutable audit entry for one execution attempt.
// Every attempt gets its own record; a rule whose attempt is retried N times
// leaves N+1 records linked by RuleID. Records are never overwritten once
// terminal, only superseded by the next attempt's record.
type TransferRecord struct {
	ID                 string  `json:"id"`
	RuleID             string  `json:"rule_id"`
	GoalID             string  `json:"goal_id"`
	UserID             string  `json:"user_id"`
	SourceAccountID    string  `json:"source_account_id"`
	TargetSubaccountID string  `json:"target_subaccount_id"`
	Amount             float64 `json:"amount"`

	Status        TransferStatus `json:"status"`
	ScheduledDate time.Time      `json:"scheduled_date"`
	ExecutedDate  *time.Time     `json:"executed_date,omitempty"`

	ExternalTransactionID string `json:"external_transaction_id,omitempty"`
	ErrorMessage          string `json:"error_message,omitempty"`
	RetryCount            int    `json:"retry_count"`

	// Income/surplus snapshot captured when the amount was computed, so the
	// audit trail explains where the number came from.
	DetectedIncomeAmount float64             `json:"detected_income_amount,omitempty"`
	IncomeSource         string              `json:"income_source,omitempty"`
	SurplusCalculation   *SurplusCalculation `json:"surplus_calculation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Goal is the savings destination a rule feeds. The engine reads the target
// and applies deposits; goal management itself lives outside the core.
type Goal struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	SubaccountID  string    `json:"subaccount_id"`
	Name          string    `json:"name"`
	TargetAmount  float64   `json:"target_amount"`
	CurrentAmount float64   `json:"current_amount"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SummaryReport aggregates one batch sweep for reporting and archival.
type SummaryReport struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Processed   int       `json:"processed"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	TotalMoved  float64   `json:"total_moved"`
}
