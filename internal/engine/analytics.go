package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
)

// Analytics computes aggregate transfer statistics from the audit trail.
// Run weekly by the worker, and on demand through the API.
type Analytics struct {
	records RecordRepository
	rules   RuleRepository
}

// NewAnalytics wires the analytics job.
func NewAnalytics(records RecordRepository, rules RuleRepository) *Analytics {
	return &Analytics{records: records, rules: rules}
}

// Compute aggregates all attempts in [from, to): success rate, volume, and
// breakdowns by status and transfer type.
func (a *Analytics) Compute(ctx context.Context, from, to time.Time) (*domain.TransferAnalytics, error) {
	records, err := a.records.QueryHistory(ctx, HistoryFilter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("analytics: query records: %w", err)
	}

	result := &domain.TransferAnalytics{
		From:           from,
		To:             to,
		ByStatus:       make(map[domain.TransferStatus]int),
		ByTransferType: make(map[domain.TransferType]int),
	}

	// Rule lookups are cached per run; many records share a rule.
	types := make(map[string]domain.TransferType)

	for _, rec := range records {
		result.TotalAttempts++
		result.ByStatus[rec.Status]++

		if rec.Status == domain.StatusCompleted {
			result.TotalMoved += rec.Amount
		}

		t, ok := types[rec.RuleID]
		if !ok {
			rule, err := a.rules.GetRule(ctx, rec.RuleID)
			if err != nil {
				// Rule may be gone from a different retention policy; the
				// record still counts toward totals.
				continue
			}
			t = rule.TransferType
			types[rec.RuleID] = t
		}
		result.ByTransferType[t]++
	}

	if result.TotalAttempts > 0 {
		result.SuccessRate = float64(result.ByStatus[domain.StatusCompleted]) / float64(result.TotalAttempts)
	}
	return result, nil
}
