// Package income detects recurring income deposits in a window of account
// transactions and scores how confident the engine can be in each pattern.
package income

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
)

// incomeKeywords marks a deposit as candidate income regardless of size.
var incomeKeywords = []string{
	"salary", "wage", "payroll", "pension", "benefit",
	"dividend", "interest", "commission", "bonus", "deposit",
}

// excludeKeywords disqualify large deposits from the size heuristic; they
// are account plumbing, not income.
var excludeKeywords = []string{"transfer", "withdrawal", "fee", "refund", "reversal"}

// largeDepositFloor is the size heuristic: deposits above this count as
// candidate income even without a keyword match.
const largeDepositFloor = 1000.0

// amountBucket groups candidate deposits whose amounts round to the same
// $10 step, tolerating minor fee variance between pay runs.
const amountBucket = 10.0

// Config tunes the detector. Zero values select the documented defaults.
type Config struct {
	// MinAmount is the minimum deposit considered candidate income.
	MinAmount float64

	// MinConfidence rejects patterns scoring below it. Default 0.7.
	MinConfidence float64
}

// Detector finds recurring income patterns. Stateless and safe for
// concurrent use.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector, applying defaults for zero config fields.
func NewDetector(cfg Config) *Detector {
	if cfg.MinAmount <= 0 {
		cfg.MinAmount = 100
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.7
	}
	return &Detector{cfg: cfg}
}

// Detect analyzes the transaction window and returns the accepted income
// patterns with a monthly income estimate. It returns
// domain.ErrNoIncomeDetected when the window is empty or holds no pattern
// above the confidence cutoff; it never panics on malformed input.
func (d *Detector) Detect(txs []domain.Transaction) (*domain.IncomeAnalysis, error) {
	candidates := d.filterCandidates(txs)
	if len(candidates) == 0 {
		return nil, domain.ErrNoIncomeDetected
	}

	groups := groupByAmount(candidates)

	var patterns []domain.IncomePattern
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		p, ok := d.buildPattern(group)
		if !ok {
			continue
		}
		patterns = append(patterns, p)
	}

	if len(patterns) == 0 {
		return nil, domain.ErrNoIncomeDetected
	}

	// Stable output order: largest representative amount first.
	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Amount > patterns[j].Amount
	})

	return &domain.IncomeAnalysis{
		Patterns:      patterns,
		MonthlyIncome: monthlyEstimate(patterns),
		Confidence:    weightedConfidence(patterns),
	}, nil
}

// filterCandidates keeps deposits that look like income: at or above the
// minimum amount and either keyword-matched or large enough for the size
// heuristic.
func (d *Detector) filterCandidates(txs []domain.Transaction) []domain.Transaction {
	var out []domain.Transaction
	for _, tx := range txs {
		if tx.Amount < d.cfg.MinAmount {
			continue
		}
		desc := strings.ToLower(tx.Description)
		if matchesAny(desc, incomeKeywords) {
			out = append(out, tx)
			continue
		}
		if tx.Amount > largeDepositFloor && !matchesAny(desc, excludeKeywords) {
			out = append(out, tx)
		}
	}
	return out
}

// buildPattern computes stats for one amount group and scores it. Returns
// ok=false when the group has no usable cadence or scores below the cutoff.
func (d *Detector) buildPattern(group []domain.Transaction) (domain.IncomePattern, bool) {
	sort.Slice(group, func(i, j int) bool { return group[i].Date.Before(group[j].Date) })

	intervals := make([]float64, 0, len(group)-1)
	for i := 1; i < len(group); i++ {
		days := group[i].Date.Sub(group[i-1].Date).Hours() / 24
		intervals = append(intervals, days)
	}

	avgInterval := mean(intervals)
	if avgInterval <= 0 {
		// Same-day duplicates carry no cadence.
		return domain.IncomePattern{}, false
	}

	amounts := make([]float64, len(group))
	for i, tx := range group {
		amounts[i] = tx.Amount
	}
	avgAmount := mean(amounts)
	amountVar := variance(amounts, avgAmount)

	last := group[len(group)-1]
	score := confidenceScore(len(group), avgAmount, amountVar, avgInterval)
	if score < d.cfg.MinConfidence {
		return domain.IncomePattern{}, false
	}

	return domain.IncomePattern{
		SourceDescription: last.Description,
		IncomeType:        classifyIncome(last.Description),
		Amount:            avgAmount,
		FrequencyDays:     avgInterval,
		ConfidenceScore:   score,
		LastOccurrence:    last.Date,
		OccurrenceCount:   len(group),
		VarianceOfAmount:  amountVar,
		NextExpectedDate:  last.Date.Add(time.Duration(avgInterval * 24 * float64(time.Hour))),
	}, true
}

// confidenceScore is the weighted sum of four factors, clamped to [0,1]:
// occurrence count (full weight at 5+ occurrences, 0.4), amount regularity
// (0.3), cadence (0.2 weekly, 0.15 monthly, 0.05 slower), and a consistency
// bonus (0.1 when amount deviation is under 5% of the amount).
func confidenceScore(count int, avgAmount, amountVar, avgInterval float64) float64 {
	occurrence := math.Min(float64(count)/5, 1) * 0.4

	regularity := 0.0
	if avgAmount > 0 {
		relDev := math.Sqrt(amountVar) / avgAmount
		regularity = math.Max(0, 1-relDev) * 0.3
	}

	frequency := 0.05
	switch {
	case avgInterval <= 7:
		frequency = 0.2
	case avgInterval <= 31:
		frequency = 0.15
	}

	consistency := 0.0
	if avgAmount > 0 && math.Sqrt(amountVar) < 0.05*avgAmount {
		consistency = 0.1
	}

	return clamp01(occurrence + regularity + frequency + consistency)
}

// classifyIncome maps a deposit description to an income type.
func classifyIncome(description string) domain.IncomeType {
	desc := strings.ToLower(description)
	switch {
	case matchesAny(desc, []string{"salary", "wage", "payroll", "pay "}):
		return domain.IncomeTypeSalary
	case matchesAny(desc, []string{"freelance", "contract", "invoice", "consulting"}):
		return domain.IncomeTypeFreelance
	case matchesAny(desc, []string{"business", "sales", "revenue"}):
		return domain.IncomeTypeBusiness
	case matchesAny(desc, []string{"dividend", "interest", "distribution"}):
		return domain.IncomeTypeInvestment
	case matchesAny(desc, []string{"pension", "benefit", "centrelink", "government"}):
		return domain.IncomeTypeGovernment
	default:
		return domain.IncomeTypeOther
	}
}

// groupByAmount buckets candidates by amount rounded to the nearest $10.
func groupByAmount(txs []domain.Transaction) map[int64][]domain.Transaction {
	groups := make(map[int64][]domain.Transaction)
	for _, tx := range txs {
		key := int64(math.Round(tx.Amount / amountBucket))
		groups[key] = append(groups[key], tx)
	}
	return groups
}

// monthlyEstimate sums each pattern's contribution normalized to 30 days.
func monthlyEstimate(patterns []domain.IncomePattern) float64 {
	total := 0.0
	for _, p := range patterns {
		if p.FrequencyDays <= 0 {
			continue
		}
		total += p.Amount * (30 / p.FrequencyDays)
	}
	return total
}

// weightedConfidence averages pattern confidences weighted by amount.
func weightedConfidence(patterns []domain.IncomePattern) float64 {
	var weighted, total float64
	for _, p := range patterns {
		weighted += p.ConfidenceScore * p.Amount
		total += p.Amount
	}
	if total == 0 {
		return 0
	}
	return clamp01(weighted / total)
}

func matchesAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func variance(xs []float64, avg float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - avg
		sum += d * d
	}
	return sum / float64(len(xs))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
