package inmemory

import (
	"context"
	"sync"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// GoalLedger is an in-memory engine.GoalLedger keyed by subaccount.
type GoalLedger struct {
	mu    sync.Mutex
	goals map[string]*domain.Goal // subaccountID -> goal
}

// NewGoalLedger creates an empty goal ledger.
func NewGoalLedger() *GoalLedger {
	return &GoalLedger{goals: make(map[string]*domain.Goal)}
}

// PutGoal registers or replaces a goal.
func (l *GoalLedger) PutGoal(goal *domain.Goal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *goal
	l.goals[goal.SubaccountID] = &cp
}

// GetGoal returns a copy of the goal for the subaccount, if any.
func (l *GoalLedger) GetGoal(subaccountID string) (*domain.Goal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	goal, ok := l.goals[subaccountID]
	if !ok {
		return nil, false
	}
	cp := *goal
	return &cp, true
}

// ApplyDeposit implements engine.GoalLedger.
func (l *GoalLedger) ApplyDeposit(ctx context.Context, subaccountID string, amount float64, memo string) (*engine.DepositResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	goal, ok := l.goals[subaccountID]
	if !ok {
		return nil, domain.ErrGoalNotFound
	}

	previous := goal.CurrentAmount
	goal.CurrentAmount += amount

	return &engine.DepositResult{
		GoalID:          goal.ID,
		GoalName:        goal.Name,
		PreviousBalance: previous,
		NewBalance:      goal.CurrentAmount,
		TargetAmount:    goal.TargetAmount,
	}, nil
}

var _ engine.GoalLedger = (*GoalLedger)(nil)
