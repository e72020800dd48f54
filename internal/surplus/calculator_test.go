package surplus

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/income"
)

func tx(amount float64, desc string, y int, m time.Month, d int) domain.Transaction {
	return domain.Transaction{
		ID:          desc,
		Amount:      amount,
		Description: desc,
		Date:        time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}
}

// monthOfSpending builds one month of salary plus categorized spending.
// With a 30-day analysis period the monthly normalization is the identity,
// so the expected values below are exact.
func monthOfSpending(salary, essential, discretionary float64) []domain.Transaction {
	txs := []domain.Transaction{
		// Two salary deposits 30 days apart so a pattern can form; the
		// second lands just outside the 30-day spending window.
		tx(salary, "EMPLOYER SALARY", 2024, time.January, 1),
		tx(salary, "EMPLOYER SALARY", 2024, time.January, 31),
	}
	if essential > 0 {
		txs = append(txs,
			tx(-essential/2, "RENT", 2024, time.January, 2),
			tx(-essential/2, "GROCERIES STORE", 2024, time.January, 10),
		)
	}
	if discretionary > 0 {
		txs = append(txs, tx(-discretionary, "RESTAURANT DINNER", 2024, time.January, 15))
	}
	return txs
}

func newCalc() *Calculator {
	return NewCalculator(income.NewDetector(income.Config{}))
}

func TestCalculateSurplus(t *testing.T) {
	// income=5000, essential=3000, discretionary=1200, buffer=20% (1000)
	// => raw surplus -200, clamped to 0.
	txs := monthOfSpending(5000, 3000, 1200)

	calc := newCalc()
	result, err := calc.Calculate(txs, 20, 30)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	if math.Abs(result.TotalIncome-5000) > 1 {
		t.Errorf("TotalIncome = %g, want 5000", result.TotalIncome)
	}
	if math.Abs(result.EssentialExpenses-3000) > 1 {
		t.Errorf("EssentialExpenses = %g, want 3000", result.EssentialExpenses)
	}
	if math.Abs(result.DiscretionaryExpenses-1200) > 1 {
		t.Errorf("DiscretionaryExpenses = %g, want 1200", result.DiscretionaryExpenses)
	}
	if math.Abs(result.SafetyBuffer-1000) > 1 {
		t.Errorf("SafetyBuffer = %g, want 1000", result.SafetyBuffer)
	}
	if result.CalculatedSurplus != 0 {
		t.Errorf("CalculatedSurplus = %g, want 0 (never negative)", result.CalculatedSurplus)
	}
	if result.RecommendedTransferAmount != 0 {
		t.Errorf("RecommendedTransferAmount = %g, want 0", result.RecommendedTransferAmount)
	}
}

func TestCalculatePositiveSurplus(t *testing.T) {
	// income=5000, essential=2000, discretionary=500, buffer=10% (500)
	// => surplus 2000, recommended 1600.
	txs := monthOfSpending(5000, 2000, 500)

	calc := newCalc()
	result, err := calc.Calculate(txs, 10, 30)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	if math.Abs(result.CalculatedSurplus-2000) > 5 {
		t.Errorf("CalculatedSurplus = %g, want ~2000", result.CalculatedSurplus)
	}
	if math.Abs(result.RecommendedTransferAmount-1600) > 5 {
		t.Errorf("RecommendedTransferAmount = %g, want ~1600", result.RecommendedTransferAmount)
	}
	if result.ConfidenceLevel <= 0 || result.ConfidenceLevel > 1 {
		t.Errorf("ConfidenceLevel = %g, out of range", result.ConfidenceLevel)
	}
	if result.AnalysisPeriodDays != 30 {
		t.Errorf("AnalysisPeriodDays = %d, want 30", result.AnalysisPeriodDays)
	}
}

func TestCalculateSurplusNeverNegative(t *testing.T) {
	// Spending wildly exceeds income.
	txs := monthOfSpending(2000, 5000, 4000)

	calc := newCalc()
	result, err := calc.Calculate(txs, 50, 30)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if result.CalculatedSurplus < 0 {
		t.Errorf("CalculatedSurplus = %g, must never be negative", result.CalculatedSurplus)
	}
}

func TestCalculateNoIncome(t *testing.T) {
	txs := []domain.Transaction{
		tx(-500, "RENT", 2024, time.January, 2),
		tx(-100, "RESTAURANT", 2024, time.January, 5),
	}

	calc := newCalc()
	_, err := calc.Calculate(txs, 10, 30)
	if !errors.Is(err, domain.ErrNoIncomeDetected) {
		t.Errorf("Calculate error = %v, want ErrNoIncomeDetected", err)
	}
}

func TestTransfersExcludedFromSpending(t *testing.T) {
	txs := monthOfSpending(5000, 1000, 0)
	txs = append(txs, tx(-2000, "TRANSFER TO SAVINGS", 2024, time.January, 20))

	calc := newCalc()
	result, err := calc.Calculate(txs, 0, 30)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if result.DiscretionaryExpenses != 0 {
		t.Errorf("DiscretionaryExpenses = %g, transfers must not count as spending", result.DiscretionaryExpenses)
	}
}
