// Package postgres persists transfer rules and goals in Postgres through
// GORM. Claims and rule updates are conditional writes so concurrent batch
// runs never own the same rule.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dvloznov/savings-autopilot/internal/clock"
	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

const rulesTable = "transfer_rules"

// RuleRepository implements engine.RuleRepository on Postgres.
type RuleRepository struct {
	db  *gorm.DB
	clk clock.Clock
}

// NewRuleRepository creates a repository on db.
func NewRuleRepository(db *gorm.DB, clk clock.Clock) *RuleRepository {
	if clk == nil {
		clk = clock.Real{}
	}
	return &RuleRepository{db: db, clk: clk}
}

type ruleDB struct {
	ID                 string `gorm:"type:varchar(36);primaryKey"`
	GoalID             string `gorm:"type:varchar(36);index;not null"`
	UserID             string `gorm:"type:varchar(36);index;not null"`
	SourceAccountID    string `gorm:"type:varchar(36);not null"`
	TargetSubaccountID string `gorm:"type:varchar(36);not null"`
	TransferType       string `gorm:"type:varchar(32);not null"`

	Amount    float64 `gorm:"type:decimal(15,2);not null"`
	Frequency string  `gorm:"type:varchar(16);not null"`
	StartDate time.Time
	EndDate   *time.Time
	IsActive  bool    `gorm:"index"`

	NextExecutionDate time.Time `gorm:"index"`
	LastExecutionDate *time.Time

	RetryCount int
	MaxRetries int
	LastError  string `gorm:"type:text"`
	RetryAfter *time.Time

	IncomeDetectionEnabled    bool
	MinimumIncomeThreshold    float64 `gorm:"type:decimal(15,2)"`
	MaximumTransferPerPeriod  float64 `gorm:"type:decimal(15,2)"`
	SurplusCalculationEnabled bool

	Version      int64 `gorm:"not null;default:0"`
	ClaimedUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func toDomainRule(rdb *ruleDB) *domain.TransferRule {
	return &domain.TransferRule{
		ID:                 rdb.ID,
		GoalID:             rdb.GoalID,
		UserID:             rdb.UserID,
		SourceAccountID:    rdb.SourceAccountID,
		TargetSubaccountID: rdb.TargetSubaccountID,
		TransferType:       domain.TransferType(rdb.TransferType),
		Amount:             rdb.Amount,
		Frequency:          domain.Frequency(rdb.Frequency),
		StartDate:          rdb.StartDate,
		EndDate:            rdb.EndDate,
		IsActive:           rdb.IsActive,
		NextExecutionDate:  rdb.NextExecutionDate,
		LastExecutionDate:  rdb.LastExecutionDate,
		RetryCount:         rdb.RetryCount,
		MaxRetries:         rdb.MaxRetries,
		LastError:          rdb.LastError,
		RetryAfter:         rdb.RetryAfter,

		IncomeDetectionEnabled:    rdb.IncomeDetectionEnabled,
		MinimumIncomeThreshold:    rdb.MinimumIncomeThreshold,
		MaximumTransferPerPeriod:  rdb.MaximumTransferPerPeriod,
		SurplusCalculationEnabled: rdb.SurplusCalculationEnabled,

		Version:      rdb.Version,
		ClaimedUntil: rdb.ClaimedUntil,
		CreatedAt:    rdb.CreatedAt,
		UpdatedAt:    rdb.UpdatedAt,
	}
}

func toDBRule(r *domain.TransferRule) *ruleDB {
	return &ruleDB{
		ID:                 r.ID,
		GoalID:             r.GoalID,
		UserID:             r.UserID,
		SourceAccountID:    r.SourceAccountID,
		TargetSubaccountID: r.TargetSubaccountID,
		TransferType:       string(r.TransferType),
		Amount:             r.Amount,
		Frequency:          string(r.Frequency),
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		IsActive:           r.IsActive,
		NextExecutionDate:  r.NextExecutionDate,
		LastExecutionDate:  r.LastExecutionDate,
		RetryCount:         r.RetryCount,
		MaxRetries:         r.MaxRetries,
		LastError:          r.LastError,
		RetryAfter:         r.RetryAfter,

		IncomeDetectionEnabled:    r.IncomeDetectionEnabled,
		MinimumIncomeThreshold:    r.MinimumIncomeThreshold,
		MaximumTransferPerPeriod:  r.MaximumTransferPerPeriod,
		SurplusCalculationEnabled: r.SurplusCalculationEnabled,

		Version:      r.Version,
		ClaimedUntil: r.ClaimedUntil,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// CreateRule implements engine.RuleRepository.
func (r *RuleRepository) CreateRule(ctx context.Context, rule *domain.TransferRule) error {
	rdb := toDBRule(rule)
	if err := r.db.WithContext(ctx).Table(rulesTable).Create(rdb).Error; err != nil {
		return fmt.Errorf("CreateRule: %w", err)
	}
	return nil
}

// GetRule implements engine.RuleRepository.
func (r *RuleRepository) GetRule(ctx context.Context, id string) (*domain.TransferRule, error) {
	var rdb ruleDB
	if err := r.db.WithContext(ctx).Table(rulesTable).Where("id = ?", id).First(&rdb).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, fmt.Errorf("GetRule: %w", err)
	}
	return toDomainRule(&rdb), nil
}

// QueryDueRules implements engine.RuleRepository.
func (r *RuleRepository) QueryDueRules(ctx context.Context, now time.Time, limit int) ([]*domain.TransferRule, error) {
	var rows []ruleDB
	q := r.db.WithContext(ctx).Table(rulesTable).
		Where("is_active AND retry_after IS NULL AND retry_count < max_retries AND next_execution_date <= ?", now).
		Order("next_execution_date")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("QueryDueRules: %w", err)
	}
	return toDomainRules(rows), nil
}

// QueryRetryableRules implements engine.RuleRepository.
func (r *RuleRepository) QueryRetryableRules(ctx context.Context, now time.Time, limit int) ([]*domain.TransferRule, error) {
	var rows []ruleDB
	q := r.db.WithContext(ctx).Table(rulesTable).
		Where("is_active AND retry_after IS NOT NULL AND retry_after <= ?", now).
		Order("next_execution_date")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("QueryRetryableRules: %w", err)
	}
	return toDomainRules(rows), nil
}

// UpdateRule implements engine.RuleRepository. The write is conditional on
// the caller's version; a conflict means another worker got there first.
func (r *RuleRepository) UpdateRule(ctx context.Context, rule *domain.TransferRule) error {
	rdb := toDBRule(rule)
	rdb.Version = rule.Version + 1

	result := r.db.WithContext(ctx).Table(rulesTable).
		Where("id = ? AND version = ?", rule.ID, rule.Version).
		Select("*").Omit("id", "created_at").
		Updates(rdb)
	if result.Error != nil {
		return fmt.Errorf("UpdateRule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetRule(ctx, rule.ID); err != nil {
			return err
		}
		return domain.ErrRuleClaimed
	}

	rule.Version = rdb.Version
	return nil
}

// ClaimRule implements engine.RuleRepository. The lease is taken with one
// conditional UPDATE so only a single worker can win it.
func (r *RuleRepository) ClaimRule(ctx context.Context, id string, until time.Time) (*domain.TransferRule, error) {
	now := r.clk.Now()

	result := r.db.WithContext(ctx).Table(rulesTable).
		Where("id = ? AND (claimed_until IS NULL OR claimed_until <= ?)", id, now).
		Updates(map[string]interface{}{
			"claimed_until": until,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("ClaimRule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetRule(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrRuleClaimed
	}

	return r.GetRule(ctx, id)
}

// ReleaseRule implements engine.RuleRepository.
func (r *RuleRepository) ReleaseRule(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Table(rulesTable).
		Where("id = ?", id).
		Update("claimed_until", nil)
	if result.Error != nil {
		return fmt.Errorf("ReleaseRule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// ListRules implements engine.RuleRepository, newest first.
func (r *RuleRepository) ListRules(ctx context.Context, userID string, limit int) ([]*domain.TransferRule, error) {
	q := r.db.WithContext(ctx).Table(rulesTable).Order("created_at DESC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []ruleDB
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListRules: %w", err)
	}
	return toDomainRules(rows), nil
}

func toDomainRules(rows []ruleDB) []*domain.TransferRule {
	out := make([]*domain.TransferRule, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainRule(&rows[i]))
	}
	return out
}

var _ engine.RuleRepository = (*RuleRepository)(nil)
