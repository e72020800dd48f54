package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dvloznov/savings-autopilot/internal/clock"
	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

const (
	goalsTable    = "goals"
	depositsTable = "goal_deposits"
)

// GoalLedger implements engine.GoalLedger on Postgres. Each deposit locks
// the goal row so balance updates serialize, and leaves a ledger entry in
// goal_deposits.
type GoalLedger struct {
	db  *gorm.DB
	clk clock.Clock
}

// NewGoalLedger creates a ledger on db.
func NewGoalLedger(db *gorm.DB, clk clock.Clock) *GoalLedger {
	if clk == nil {
		clk = clock.Real{}
	}
	return &GoalLedger{db: db, clk: clk}
}

type goalDB struct {
	ID            string  `gorm:"type:varchar(36);primaryKey"`
	UserID        string  `gorm:"type:varchar(36);index;not null"`
	SubaccountID  string  `gorm:"type:varchar(36);uniqueIndex;not null"`
	Name          string  `gorm:"not null"`
	TargetAmount  float64 `gorm:"type:decimal(15,2);not null"`
	CurrentAmount float64 `gorm:"type:decimal(15,2);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type depositDB struct {
	ID           string  `gorm:"type:varchar(36);primaryKey"`
	GoalID       string  `gorm:"type:varchar(36);index;not null"`
	SubaccountID string  `gorm:"type:varchar(36);index;not null"`
	Amount       float64 `gorm:"type:decimal(15,2);not null"`
	Memo         string  `gorm:"type:varchar(255)"`
	CreatedAt    time.Time
}

// CreateGoal persists a new goal.
func (l *GoalLedger) CreateGoal(ctx context.Context, goal *domain.Goal) error {
	gdb := &goalDB{
		ID:            goal.ID,
		UserID:        goal.UserID,
		SubaccountID:  goal.SubaccountID,
		Name:          goal.Name,
		TargetAmount:  goal.TargetAmount,
		CurrentAmount: goal.CurrentAmount,
		CreatedAt:     goal.CreatedAt,
		UpdatedAt:     goal.UpdatedAt,
	}
	if err := l.db.WithContext(ctx).Table(goalsTable).Create(gdb).Error; err != nil {
		return fmt.Errorf("CreateGoal: %w", err)
	}
	return nil
}

// GetGoal returns the goal owning the subaccount.
func (l *GoalLedger) GetGoal(ctx context.Context, subaccountID string) (*domain.Goal, error) {
	var gdb goalDB
	if err := l.db.WithContext(ctx).Table(goalsTable).Where("subaccount_id = ?", subaccountID).First(&gdb).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrGoalNotFound
		}
		return nil, fmt.Errorf("GetGoal: %w", err)
	}
	return &domain.Goal{
		ID:            gdb.ID,
		UserID:        gdb.UserID,
		SubaccountID:  gdb.SubaccountID,
		Name:          gdb.Name,
		TargetAmount:  gdb.TargetAmount,
		CurrentAmount: gdb.CurrentAmount,
		CreatedAt:     gdb.CreatedAt,
		UpdatedAt:     gdb.UpdatedAt,
	}, nil
}

// ApplyDeposit implements engine.GoalLedger.
func (l *GoalLedger) ApplyDeposit(ctx context.Context, subaccountID string, amount float64, memo string) (*engine.DepositResult, error) {
	now := l.clk.Now()
	var result *engine.DepositResult

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var gdb goalDB
		if err := tx.Table(goalsTable).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("subaccount_id = ?", subaccountID).
			First(&gdb).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrGoalNotFound
			}
			return err
		}

		previous := gdb.CurrentAmount
		newBalance := previous + amount

		if err := tx.Table(goalsTable).
			Where("id = ?", gdb.ID).
			Updates(map[string]interface{}{
				"current_amount": newBalance,
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}

		entry := &depositDB{
			ID:           uuid.NewString(),
			GoalID:       gdb.ID,
			SubaccountID: subaccountID,
			Amount:       amount,
			Memo:         memo,
			CreatedAt:    now,
		}
		if err := tx.Table(depositsTable).Create(entry).Error; err != nil {
			return err
		}

		result = &engine.DepositResult{
			GoalID:          gdb.ID,
			GoalName:        gdb.Name,
			PreviousBalance: previous,
			NewBalance:      newBalance,
			TargetAmount:    gdb.TargetAmount,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrGoalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("ApplyDeposit: %w", err)
	}
	return result, nil
}

var _ engine.GoalLedger = (*GoalLedger)(nil)
