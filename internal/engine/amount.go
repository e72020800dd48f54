package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/income"
	"github.com/dvloznov/savings-autopilot/internal/surplus"
)

// incomeWindowDays is the transaction window for percentage-of-income rules.
const incomeWindowDays = 30

// AmountResult is the computed transfer amount plus the analysis snapshot
// that produced it, carried into the audit record.
type AmountResult struct {
	Amount         float64
	DetectedIncome float64
	IncomeSource   string
	Surplus        *domain.SurplusCalculation
}

// AmountCalculatorConfig tunes the analysis windows.
type AmountCalculatorConfig struct {
	// SurplusWindowDays is the window for smart-surplus analysis.
	SurplusWindowDays int

	// SafetyBufferPercent is the surplus safety buffer.
	SafetyBufferPercent float64

	// CacheTTL bounds income-analysis cache staleness.
	CacheTTL time.Duration
}

// AmountCalculator dispatches on a rule's transfer type to compute the
// concrete amount for one cycle.
type AmountCalculator struct {
	transactions TransactionProvider
	detector     *income.Detector
	surplus      *surplus.Calculator
	cache        PatternCache
	cfg          AmountCalculatorConfig
}

// NewAmountCalculator wires the calculator. cache may be nil to disable
// income-analysis caching.
func NewAmountCalculator(
	transactions TransactionProvider,
	detector *income.Detector,
	surplusCalc *surplus.Calculator,
	cache PatternCache,
	cfg AmountCalculatorConfig,
) *AmountCalculator {
	if cfg.SurplusWindowDays <= 0 {
		cfg.SurplusWindowDays = 90
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 6 * time.Hour
	}
	return &AmountCalculator{
		transactions: transactions,
		detector:     detector,
		surplus:      surplusCalc,
		cache:        cache,
		cfg:          cfg,
	}
}

// Calculate computes the transfer amount for rule as of now. A zero result
// means "skip this cycle"; callers must still advance the schedule. The cap
// is applied after percentage math, never before.
func (c *AmountCalculator) Calculate(ctx context.Context, rule *domain.TransferRule, now time.Time) (*AmountResult, error) {
	switch rule.TransferType {
	case domain.TransferTypeFixed:
		return &AmountResult{Amount: rule.Amount}, nil

	case domain.TransferTypePercentageIncome, domain.TransferTypeIncomeBased:
		return c.percentageOfIncome(ctx, rule, now)

	case domain.TransferTypeSmartSurplus:
		return c.smartSurplus(ctx, rule, now)

	default:
		return nil, domain.NewValidationError("transfer_type", fmt.Sprintf("unknown type %q", rule.TransferType))
	}
}

func (c *AmountCalculator) percentageOfIncome(ctx context.Context, rule *domain.TransferRule, now time.Time) (*AmountResult, error) {
	if !rule.IncomeDetectionEnabled {
		return nil, domain.NewValidationError("income_detection_enabled", "required for income-based rules")
	}

	analysis, err := c.analyzeIncome(ctx, rule, now, incomeWindowDays)
	if err != nil {
		return nil, err
	}

	amount := rule.Amount / 100 * analysis.MonthlyIncome
	return &AmountResult{
		Amount:         c.applyCap(rule, amount),
		DetectedIncome: analysis.MonthlyIncome,
		IncomeSource:   analysis.PrimarySource(),
	}, nil
}

func (c *AmountCalculator) smartSurplus(ctx context.Context, rule *domain.TransferRule, now time.Time) (*AmountResult, error) {
	from := now.AddDate(0, 0, -c.cfg.SurplusWindowDays)
	txs, err := c.transactions.GetAccountTransactions(ctx, rule.UserID, rule.SourceAccountID, from)
	if err != nil {
		return nil, domain.NewProviderError("transaction", err)
	}

	calc, err := c.surplus.Calculate(txs, c.cfg.SafetyBufferPercent, c.cfg.SurplusWindowDays)
	if err != nil {
		return nil, err
	}

	amount := rule.Amount / 100 * calc.CalculatedSurplus
	return &AmountResult{
		Amount:  c.applyCap(rule, amount),
		Surplus: calc,
	}, nil
}

// analyzeIncome runs income detection over the rule's source account,
// consulting the advisory cache first.
func (c *AmountCalculator) analyzeIncome(ctx context.Context, rule *domain.TransferRule, now time.Time, windowDays int) (*domain.IncomeAnalysis, error) {
	key := fmt.Sprintf("income:%s:%s:%d", rule.UserID, rule.SourceAccountID, windowDays)
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	from := now.AddDate(0, 0, -windowDays)
	txs, err := c.transactions.GetAccountTransactions(ctx, rule.UserID, rule.SourceAccountID, from)
	if err != nil {
		return nil, domain.NewProviderError("transaction", err)
	}

	detector := c.detector
	if rule.MinimumIncomeThreshold > 0 {
		detector = income.NewDetector(income.Config{MinAmount: rule.MinimumIncomeThreshold})
	}

	analysis, err := detector.Detect(txs)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Put(ctx, key, analysis, c.cfg.CacheTTL)
	}
	return analysis, nil
}

// applyCap bounds the computed amount by the rule's per-period maximum.
func (c *AmountCalculator) applyCap(rule *domain.TransferRule, amount float64) float64 {
	if rule.MaximumTransferPerPeriod > 0 && amount > rule.MaximumTransferPerPeriod {
		return rule.MaximumTransferPerPeriod
	}
	return amount
}
