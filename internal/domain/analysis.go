package domain

import (
	"time"
)

// Transaction is one row from the account transaction provider. Deposits
// carry positive amounts, spending negative.
type Transaction struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

// IncomeType classifies a detected income pattern by its description.
type IncomeType string

const (
	IncomeTypeSalary     IncomeType = "SALARY"
	IncomeTypeFreelance  IncomeType = "FREELANCE"
	IncomeTypeBusiness   IncomeType = "BUSINESS"
	IncomeTypeInvestment IncomeType = "INVESTMENT"
	IncomeTypeGovernment IncomeType = "GOVERNMENT"
	IncomeTypeOther      IncomeType = "OTHER"
)

// IncomePattern is one recurring deposit detected from transaction history.
// Derived on demand from the transaction window; never a source of truth,
// though it may be cached with a short TTL.
type IncomePattern struct {
	SourceDescription string     `json:"source_description"`
	IncomeType        IncomeType `json:"income_type"`

	// Amount is the representative (average) deposit amount of the group.
	Amount float64 `json:"amount"`

	// FrequencyDays is the average inter-arrival interval in days.
	FrequencyDays float64 `json:"frequency_days"`

	// ConfidenceScore is always within [0,1].
	ConfidenceScore float64 `json:"confidence_score"`

	LastOccurrence   time.Time `json:"last_occurrence"`
	OccurrenceCount  int       `json:"occurrence_count"`
	VarianceOfAmount float64   `json:"variance_of_amount"`
	NextExpectedDate time.Time `json:"next_expected_date"`
}

// IncomeAnalysis is the detector's aggregate result over a window.
type IncomeAnalysis struct {
	Patterns []IncomePattern `json:"patterns"`

	// MonthlyIncome is the estimated total monthly income across patterns.
	MonthlyIncome float64 `json:"monthly_income"`

	// Confidence is the amount-weighted average of pattern confidences.
	Confidence float64 `json:"confidence"`
}

// PrimarySource returns the description of the largest detected pattern by
// monthly contribution, or "" when no pattern exists.
func (a *IncomeAnalysis) PrimarySource() string {
	best := ""
	bestMonthly := 0.0
	for _, p := range a.Patterns {
		if p.FrequencyDays <= 0 {
			continue
		}
		monthly := p.Amount * (30 / p.FrequencyDays)
		if monthly > bestMonthly {
			bestMonthly = monthly
			best = p.SourceDescription
		}
	}
	return best
}

// SurplusCalculation is the derived spending analysis used by smart-surplus
// rules. CalculatedSurplus is never negative.
type SurplusCalculation struct {
	TotalIncome               float64 `json:"total_income"`
	EssentialExpenses         float64 `json:"essential_expenses"`
	DiscretionaryExpenses     float64 `json:"discretionary_expenses"`
	SafetyBuffer              float64 `json:"safety_buffer"`
	CalculatedSurplus         float64 `json:"calculated_surplus"`
	RecommendedTransferAmount float64 `json:"recommended_transfer_amount"`
	ConfidenceLevel           float64 `json:"confidence_level"`
	AnalysisPeriodDays        int     `json:"analysis_period_days"`
}

// TransferAnalytics is the weekly aggregate computed from the audit trail.
type TransferAnalytics struct {
	From           time.Time              `json:"from"`
	To             time.Time              `json:"to"`
	TotalAttempts  int                    `json:"total_attempts"`
	SuccessRate    float64                `json:"success_rate"`
	TotalMoved     float64                `json:"total_moved"`
	ByStatus       map[TransferStatus]int `json:"by_status"`
	ByTransferType map[TransferType]int   `json:"by_transfer_type"`
}
