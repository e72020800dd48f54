package income

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
)

func tx(amount float64, desc string, y int, m time.Month, d int) domain.Transaction {
	return domain.Transaction{
		ID:          desc,
		Amount:      amount,
		Description: desc,
		Date:        time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}
}

func TestDetectMonthlySalary(t *testing.T) {
	// $3000 on the 1st of three consecutive months.
	txs := []domain.Transaction{
		tx(3000, "ACME CORP SALARY", 2024, time.January, 1),
		tx(3000, "ACME CORP SALARY", 2024, time.February, 1),
		tx(3000, "ACME CORP SALARY", 2024, time.March, 1),
	}

	d := NewDetector(Config{})
	analysis, err := d.Detect(txs)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(analysis.Patterns) != 1 {
		t.Fatalf("got %d patterns, want 1", len(analysis.Patterns))
	}
	p := analysis.Patterns[0]

	if p.Amount != 3000 {
		t.Errorf("pattern amount = %g, want 3000", p.Amount)
	}
	if math.Abs(p.FrequencyDays-30) > 1.5 {
		t.Errorf("frequency = %g days, want ~30", p.FrequencyDays)
	}
	if p.ConfidenceScore <= 0.7 {
		t.Errorf("confidence = %g, want > 0.7", p.ConfidenceScore)
	}
	if p.IncomeType != domain.IncomeTypeSalary {
		t.Errorf("income type = %s, want SALARY", p.IncomeType)
	}
	if p.OccurrenceCount != 3 {
		t.Errorf("occurrence count = %d, want 3", p.OccurrenceCount)
	}

	wantNext := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)
	if p.NextExpectedDate.Sub(wantNext).Abs() > 36*time.Hour {
		t.Errorf("next expected = %v, want ~%v", p.NextExpectedDate, wantNext)
	}

	if math.Abs(analysis.MonthlyIncome-3000) > 150 {
		t.Errorf("monthly income = %g, want ~3000", analysis.MonthlyIncome)
	}
}

func TestDetectEmptyWindow(t *testing.T) {
	d := NewDetector(Config{})

	_, err := d.Detect(nil)
	if !errors.Is(err, domain.ErrNoIncomeDetected) {
		t.Errorf("Detect(nil) error = %v, want ErrNoIncomeDetected", err)
	}

	_, err = d.Detect([]domain.Transaction{})
	if !errors.Is(err, domain.ErrNoIncomeDetected) {
		t.Errorf("Detect(empty) error = %v, want ErrNoIncomeDetected", err)
	}
}

func TestDetectIgnoresSpendingAndPlumbing(t *testing.T) {
	txs := []domain.Transaction{
		tx(-120, "GROCERIES", 2024, time.January, 3),
		tx(-2000, "RENT PAYMENT", 2024, time.January, 5),
		tx(5000, "INTERNAL TRANSFER FROM SAVINGS", 2024, time.January, 10),
		tx(5000, "INTERNAL TRANSFER FROM SAVINGS", 2024, time.February, 10),
		tx(50, "SMALL DEPOSIT", 2024, time.January, 12),
	}

	d := NewDetector(Config{})
	_, err := d.Detect(txs)
	if !errors.Is(err, domain.ErrNoIncomeDetected) {
		t.Errorf("Detect error = %v, want ErrNoIncomeDetected (transfers and spending excluded)", err)
	}
}

func TestDetectLargeDepositHeuristic(t *testing.T) {
	// No income keyword, but regular large deposits qualify.
	txs := []domain.Transaction{
		tx(2500, "ACME PTY LTD", 2024, time.January, 5),
		tx(2500, "ACME PTY LTD", 2024, time.January, 19),
		tx(2500, "ACME PTY LTD", 2024, time.February, 2),
		tx(2500, "ACME PTY LTD", 2024, time.February, 16),
		tx(2500, "ACME PTY LTD", 2024, time.March, 1),
	}

	d := NewDetector(Config{})
	analysis, err := d.Detect(txs)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	p := analysis.Patterns[0]
	if math.Abs(p.FrequencyDays-14) > 0.5 {
		t.Errorf("frequency = %g, want 14 (fortnightly)", p.FrequencyDays)
	}
	// Fortnightly $2500 is roughly $5357/month.
	if math.Abs(analysis.MonthlyIncome-2500*30.0/14.0) > 1 {
		t.Errorf("monthly income = %g, want %g", analysis.MonthlyIncome, 2500*30.0/14.0)
	}
}

func TestDetectToleratesMinorAmountVariance(t *testing.T) {
	// Amounts within the same $10 bucket group together.
	txs := []domain.Transaction{
		tx(3002, "PAYROLL WEEKLY", 2024, time.January, 1),
		tx(2998, "PAYROLL WEEKLY", 2024, time.January, 8),
		tx(3001, "PAYROLL WEEKLY", 2024, time.January, 15),
		tx(2999, "PAYROLL WEEKLY", 2024, time.January, 22),
	}

	d := NewDetector(Config{})
	analysis, err := d.Detect(txs)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(analysis.Patterns) != 1 {
		t.Fatalf("got %d patterns, want 1 grouped pattern", len(analysis.Patterns))
	}
	if analysis.Patterns[0].OccurrenceCount != 4 {
		t.Errorf("occurrence count = %d, want 4", analysis.Patterns[0].OccurrenceCount)
	}
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	inputs := [][]domain.Transaction{
		nil,
		{tx(3000, "SALARY", 2024, time.January, 1)},
		{
			tx(3000, "SALARY", 2024, time.January, 1),
			tx(3000, "SALARY", 2024, time.January, 1), // same-day duplicate
		},
		{
			tx(1500, "WAGE", 2024, time.January, 1),
			tx(1500, "WAGE", 2024, time.January, 2),
			tx(1500, "WAGE", 2024, time.January, 3),
			tx(1500, "WAGE", 2024, time.January, 4),
			tx(1500, "WAGE", 2024, time.January, 5),
			tx(1500, "WAGE", 2024, time.January, 6),
		},
	}

	d := NewDetector(Config{MinConfidence: 0.01})
	for i, txs := range inputs {
		analysis, err := d.Detect(txs)
		if err != nil {
			continue // no pattern is a valid outcome, not a crash
		}
		for _, p := range analysis.Patterns {
			if p.ConfidenceScore < 0 || p.ConfidenceScore > 1 {
				t.Errorf("input %d: confidence %g out of [0,1]", i, p.ConfidenceScore)
			}
		}
		if analysis.Confidence < 0 || analysis.Confidence > 1 {
			t.Errorf("input %d: overall confidence %g out of [0,1]", i, analysis.Confidence)
		}
	}
}

func TestClassifyIncome(t *testing.T) {
	tests := []struct {
		desc string
		want domain.IncomeType
	}{
		{"ACME SALARY", domain.IncomeTypeSalary},
		{"weekly payroll", domain.IncomeTypeSalary},
		{"INVOICE 4021 CONSULTING", domain.IncomeTypeFreelance},
		{"quarterly dividend", domain.IncomeTypeInvestment},
		{"pension payment", domain.IncomeTypeGovernment},
		{"mystery money", domain.IncomeTypeOther},
	}
	for _, tt := range tests {
		if got := classifyIncome(tt.desc); got != tt.want {
			t.Errorf("classifyIncome(%q) = %s, want %s", tt.desc, got, tt.want)
		}
	}
}

func TestPrimarySource(t *testing.T) {
	analysis := &domain.IncomeAnalysis{
		Patterns: []domain.IncomePattern{
			{SourceDescription: "SIDE GIG", Amount: 500, FrequencyDays: 30},
			{SourceDescription: "MAIN SALARY", Amount: 3000, FrequencyDays: 30},
		},
	}
	if got := analysis.PrimarySource(); got != "MAIN SALARY" {
		t.Errorf("PrimarySource() = %q, want MAIN SALARY", got)
	}
}
