// Package engine orchestrates the automated savings pipeline: amount
// calculation, transfer execution with retry, and the periodic batch sweep.
// All collaborators are consumed through the interfaces below; concrete
// implementations live under internal/infra and internal/transfer.
package engine

import (
	"context"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
)

// RuleRepository stores transfer rules. Implementations must make Claim an
// atomic conditional update so two overlapping batch runs can never own the
// same rule at once.
type RuleRepository interface {
	// CreateRule persists a new rule.
	CreateRule(ctx context.Context, rule *domain.TransferRule) error

	// GetRule returns the rule or domain.ErrRuleNotFound.
	GetRule(ctx context.Context, id string) (*domain.TransferRule, error)

	// QueryDueRules returns up to limit active, unclaimed rules whose next
	// execution date has passed, excluding rules flagged for manual review
	// (retry budget spent) and rules waiting on a retry timer.
	QueryDueRules(ctx context.Context, now time.Time, limit int) ([]*domain.TransferRule, error)

	// QueryRetryableRules returns up to limit active rules whose retry
	// timer has elapsed.
	QueryRetryableRules(ctx context.Context, now time.Time, limit int) ([]*domain.TransferRule, error)

	// UpdateRule persists rule conditionally on its Version matching the
	// stored version, then increments it. Returns domain.ErrRuleClaimed on
	// a version conflict.
	UpdateRule(ctx context.Context, rule *domain.TransferRule) error

	// ClaimRule leases the rule to the caller until the given instant. It
	// fails with domain.ErrRuleClaimed while another lease is in force.
	// The returned copy reflects the new version and lease.
	ClaimRule(ctx context.Context, id string, until time.Time) (*domain.TransferRule, error)

	// ReleaseRule clears the lease without touching anything else. Safe to
	// call on an unclaimed rule.
	ReleaseRule(ctx context.Context, id string) error

	// ListRules returns rules for a user, newest first.
	ListRules(ctx context.Context, userID string, limit int) ([]*domain.TransferRule, error)
}

// HistoryFilter narrows a transfer history query. Zero fields are ignored.
type HistoryFilter struct {
	UserID string
	GoalID string
	RuleID string
	From   time.Time
	To     time.Time
	Limit  int
}

// RecordRepository stores the immutable audit trail of execution attempts.
type RecordRepository interface {
	// SaveRecord inserts or updates the record keyed by ID. Terminal
	// records are only ever superseded by new records, never rewritten.
	SaveRecord(ctx context.Context, record *domain.TransferRecord) error

	// QueryHistory returns records matching the filter, newest first.
	QueryHistory(ctx context.Context, filter HistoryFilter) ([]*domain.TransferRecord, error)

	// DeleteOlderThan removes records created before cutoff, returning how
	// many were removed. Used only by the retention job.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TransactionProvider reads account transactions for income and surplus
// analysis. Read-only.
type TransactionProvider interface {
	GetAccountTransactions(ctx context.Context, userID, accountID string, from time.Time) ([]domain.Transaction, error)
}

// TransferRequest is one transfer instruction for the external provider.
type TransferRequest struct {
	SourceAccountID    string
	TargetSubaccountID string
	Amount             float64

	// IdempotencyKey is the transfer record ID; providers must treat a
	// repeated key as the same transfer.
	IdempotencyKey string
}

// TransferResult reports a successful transfer.
type TransferResult struct {
	ExternalTransactionID string
}

// TransferProvider performs the actual movement of money. Implementations
// may be real bank rails or the virtual ledger-only backend; failures must
// be wrapped as *domain.ProviderError so the engine retries them.
type TransferProvider interface {
	PerformTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// DepositResult reports a goal balance update.
type DepositResult struct {
	GoalID          string
	GoalName        string
	PreviousBalance float64
	NewBalance      float64
	TargetAmount    float64
}

// GoalLedger applies completed transfers to goal balances.
type GoalLedger interface {
	ApplyDeposit(ctx context.Context, subaccountID string, amount float64, memo string) (*DepositResult, error)
}

// Crossed reports whether this deposit moved the goal balance across its
// target. The comparison of previous against new balance makes the
// completion event fire exactly once per crossing.
func (d *DepositResult) Crossed() bool {
	return d.TargetAmount > 0 && d.PreviousBalance < d.TargetAmount && d.NewBalance >= d.TargetAmount
}

// NotificationDispatcher delivers user notifications. Best-effort: failures
// are logged and never roll back a completed transfer.
type NotificationDispatcher interface {
	Notify(ctx context.Context, userID, kind, title, message string, data map[string]interface{}) error
}

// PatternCache is an advisory cache for income analyses. Implementations
// may lose entries at any time; callers must treat misses as normal.
type PatternCache interface {
	Get(ctx context.Context, key string) (*domain.IncomeAnalysis, bool)
	Put(ctx context.Context, key string, analysis *domain.IncomeAnalysis, ttl time.Duration)
}

// ReportStore persists batch summary reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report *domain.SummaryReport) error
	ListReportsBefore(ctx context.Context, cutoff time.Time) ([]*domain.SummaryReport, error)
	DeleteReport(ctx context.Context, id string) error
}

// ReportArchiver moves aged summary reports to long-term storage.
type ReportArchiver interface {
	ArchiveReport(ctx context.Context, report *domain.SummaryReport) error
}
