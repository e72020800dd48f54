package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// ReportStore is an in-memory engine.ReportStore.
type ReportStore struct {
	mu      sync.RWMutex
	reports map[string]*domain.SummaryReport
}

// NewReportStore creates an empty report store.
func NewReportStore() *ReportStore {
	return &ReportStore{reports: make(map[string]*domain.SummaryReport)}
}

// SaveReport implements engine.ReportStore.
func (s *ReportStore) SaveReport(ctx context.Context, report *domain.SummaryReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *report
	s.reports[report.ID] = &cp
	return nil
}

// ListReportsBefore implements engine.ReportStore, oldest first.
func (s *ReportStore) ListReportsBefore(ctx context.Context, cutoff time.Time) ([]*domain.SummaryReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.SummaryReport
	for _, report := range s.reports {
		if report.GeneratedAt.Before(cutoff) {
			cp := *report
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.Before(out[j].GeneratedAt) })
	return out, nil
}

// DeleteReport implements engine.ReportStore.
func (s *ReportStore) DeleteReport(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reports, id)
	return nil
}

var _ engine.ReportStore = (*ReportStore)(nil)
