// Package inmemory provides in-memory implementations of the engine's
// repositories. They are safe for concurrent use and suitable for tests and
// single-instance development; production deployments use the Postgres and
// BigQuery backends.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/clock"
	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// RuleStore is an in-memory RuleRepository. Claiming is serialized under
// the store mutex, which gives the same exclusivity a conditional database
// update would.
type RuleStore struct {
	mu    sync.RWMutex
	rules map[string]*domain.TransferRule
	clk   clock.Clock
}

// NewRuleStore creates an empty rule store on the system clock.
func NewRuleStore() *RuleStore {
	return NewRuleStoreWithClock(clock.Real{})
}

// NewRuleStoreWithClock creates a rule store with an injected clock so
// lease expiry is testable.
func NewRuleStoreWithClock(clk clock.Clock) *RuleStore {
	return &RuleStore{rules: make(map[string]*domain.TransferRule), clk: clk}
}

// CreateRule implements engine.RuleRepository.
func (s *RuleStore) CreateRule(ctx context.Context, rule *domain.TransferRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rule
	s.rules[rule.ID] = &cp
	return nil
}

// GetRule implements engine.RuleRepository.
func (s *RuleStore) GetRule(ctx context.Context, id string) (*domain.TransferRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, domain.ErrRuleNotFound
	}
	cp := *rule
	return &cp, nil
}

// QueryDueRules implements engine.RuleRepository. Rules waiting on a retry
// timer or flagged for manual review are excluded.
func (s *RuleStore) QueryDueRules(ctx context.Context, now time.Time, limit int) ([]*domain.TransferRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TransferRule
	for _, rule := range s.rules {
		if !rule.IsActive || rule.RetryAfter != nil || rule.RetriesExhausted() {
			continue
		}
		if rule.NextExecutionDate.After(now) {
			continue
		}
		cp := *rule
		out = append(out, &cp)
	}
	sortByNextExecution(out)
	return truncate(out, limit), nil
}

// QueryRetryableRules implements engine.RuleRepository.
func (s *RuleStore) QueryRetryableRules(ctx context.Context, now time.Time, limit int) ([]*domain.TransferRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TransferRule
	for _, rule := range s.rules {
		if !rule.IsActive || rule.RetryAfter == nil {
			continue
		}
		if rule.RetryAfter.After(now) {
			continue
		}
		cp := *rule
		out = append(out, &cp)
	}
	sortByNextExecution(out)
	return truncate(out, limit), nil
}

// UpdateRule implements engine.RuleRepository with an optimistic version
// check: the caller's copy must match the stored version.
func (s *RuleStore) UpdateRule(ctx context.Context, rule *domain.TransferRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rules[rule.ID]
	if !ok {
		return domain.ErrRuleNotFound
	}
	if current.Version != rule.Version {
		return domain.ErrRuleClaimed
	}

	cp := *rule
	cp.Version++
	s.rules[rule.ID] = &cp
	rule.Version = cp.Version
	return nil
}

// ClaimRule implements engine.RuleRepository. The claim fails while an
// unexpired lease is held.
func (s *RuleStore) ClaimRule(ctx context.Context, id string, until time.Time) (*domain.TransferRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, domain.ErrRuleNotFound
	}
	if rule.IsClaimed(s.clk.Now()) {
		return nil, domain.ErrRuleClaimed
	}

	lease := until
	rule.ClaimedUntil = &lease
	rule.Version++

	cp := *rule
	return &cp, nil
}

// ReleaseRule implements engine.RuleRepository.
func (s *RuleStore) ReleaseRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok {
		return domain.ErrRuleNotFound
	}
	rule.ClaimedUntil = nil
	return nil
}

// ListRules implements engine.RuleRepository.
func (s *RuleStore) ListRules(ctx context.Context, userID string, limit int) ([]*domain.TransferRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TransferRule
	for _, rule := range s.rules {
		if userID != "" && rule.UserID != userID {
			continue
		}
		cp := *rule
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func sortByNextExecution(rules []*domain.TransferRule) {
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].NextExecutionDate.Before(rules[j].NextExecutionDate)
	})
}

func truncate(rules []*domain.TransferRule, limit int) []*domain.TransferRule {
	if limit > 0 && len(rules) > limit {
		return rules[:limit]
	}
	return rules
}

var _ engine.RuleRepository = (*RuleStore)(nil)
