// Package surplus estimates how much of a user's income is safely
// transferable after essential spending and a safety buffer.
package surplus

import (
	"math"
	"strings"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/income"
)

// essentialKeywords categorize spending as non-discretionary. The match is
// heuristic; the confidence level below reflects that.
var essentialKeywords = []string{
	"rent", "mortgage", "utilities", "insurance", "groceries", "supermarket",
	"fuel", "petrol", "phone", "internet", "council", "rates", "electricity",
	"gas", "water", "medical", "pharmacy", "childcare", "loan repayment",
	"strata", "public transport",
}

// transferKeywords exclude account plumbing from spending entirely.
var transferKeywords = []string{"transfer", "xfer", "savings autopilot"}

// conservatismFactor trims the recommended transfer below the raw surplus.
const conservatismFactor = 0.8

// spendingConfidence is the fixed confidence assigned to the keyword-based
// expense categorization.
const spendingConfidence = 0.8

// Calculator combines income detection with spending categorization.
// Stateless and safe for concurrent use.
type Calculator struct {
	detector *income.Detector
}

// NewCalculator creates a Calculator using the given income detector.
func NewCalculator(detector *income.Detector) *Calculator {
	return &Calculator{detector: detector}
}

// Calculate produces a SurplusCalculation from the transaction window.
// CalculatedSurplus is never negative; a fully consumed income yields a
// zero-surplus result, not an error. Income detection failure propagates
// as domain.ErrNoIncomeDetected.
func (c *Calculator) Calculate(txs []domain.Transaction, safetyBufferPercent float64, periodDays int) (*domain.SurplusCalculation, error) {
	analysis, err := c.detector.Detect(txs)
	if err != nil {
		return nil, err
	}
	if periodDays <= 0 {
		periodDays = 90
	}

	essential, discretionary := categorizeSpending(txs)

	// Spending is summed over the whole window; normalize to 30 days so it
	// is comparable with the monthly income estimate.
	scale := 30 / float64(periodDays)
	essential *= scale
	discretionary *= scale

	monthlyIncome := analysis.MonthlyIncome
	buffer := monthlyIncome * safetyBufferPercent / 100
	surplus := math.Max(0, monthlyIncome-essential-discretionary-buffer)

	return &domain.SurplusCalculation{
		TotalIncome:               monthlyIncome,
		EssentialExpenses:         essential,
		DiscretionaryExpenses:     discretionary,
		SafetyBuffer:              buffer,
		CalculatedSurplus:         surplus,
		RecommendedTransferAmount: surplus * conservatismFactor,
		ConfidenceLevel:           (analysis.Confidence + spendingConfidence) / 2,
		AnalysisPeriodDays:        periodDays,
	}, nil
}

// categorizeSpending splits outgoing transactions into essential and
// discretionary monthly totals, skipping transfers.
func categorizeSpending(txs []domain.Transaction) (essential, discretionary float64) {
	for _, tx := range txs {
		if tx.Amount >= 0 {
			continue
		}
		desc := strings.ToLower(tx.Description)
		if containsAny(desc, transferKeywords) {
			continue
		}
		spend := -tx.Amount
		if containsAny(desc, essentialKeywords) {
			essential += spend
		} else {
			discretionary += spend
		}
	}
	return essential, discretionary
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
