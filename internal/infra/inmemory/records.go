package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// RecordStore is an in-memory RecordRepository.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]*domain.TransferRecord
}

// NewRecordStore creates an empty record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]*domain.TransferRecord)}
}

// SaveRecord implements engine.RecordRepository.
func (s *RecordStore) SaveRecord(ctx context.Context, record *domain.TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	if record.SurplusCalculation != nil {
		sc := *record.SurplusCalculation
		cp.SurplusCalculation = &sc
	}
	s.records[record.ID] = &cp
	return nil
}

// QueryHistory implements engine.RecordRepository. Results come back
// newest first.
func (s *RecordStore) QueryHistory(ctx context.Context, filter engine.HistoryFilter) ([]*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TransferRecord
	for _, rec := range s.records {
		if filter.UserID != "" && rec.UserID != filter.UserID {
			continue
		}
		if filter.GoalID != "" && rec.GoalID != filter.GoalID {
			continue
		}
		if filter.RuleID != "" && rec.RuleID != filter.RuleID {
			continue
		}
		if !filter.From.IsZero() && rec.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !rec.CreatedAt.Before(filter.To) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteOlderThan implements engine.RecordRepository.
func (s *RecordStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ engine.RecordRepository = (*RecordStore)(nil)
