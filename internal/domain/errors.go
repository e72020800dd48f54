package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine. Wrapping with %w preserves
// errors.Is checks at the batch boundary.
var (
	// ErrNoIncomeDetected means the transaction window held no qualifying
	// income pattern. Skip-this-cycle, never retried.
	ErrNoIncomeDetected = errors.New("no income detected")

	// ErrNoSurplusAvailable means the surplus calculation produced nothing
	// transferable. Skip-this-cycle, never retried.
	ErrNoSurplusAvailable = errors.New("no surplus available")

	// ErrRuleNotFound is returned by rule repositories for unknown IDs.
	ErrRuleNotFound = errors.New("transfer rule not found")

	// ErrRecordNotFound is returned by record repositories for unknown IDs.
	ErrRecordNotFound = errors.New("transfer record not found")

	// ErrGoalNotFound is returned by the goal ledger for unknown subaccounts.
	ErrGoalNotFound = errors.New("goal not found")

	// ErrRuleClaimed means another worker holds the lease on the rule.
	ErrRuleClaimed = errors.New("rule already claimed")

	// ErrRuleInactive means the rule was deactivated; no attempt is made.
	ErrRuleInactive = errors.New("rule is inactive")

	// ErrRetriesExhausted flags a permanent failure after the retry budget
	// is spent. The rule stays active for manual review.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// ValidationError rejects a bad rule configuration at creation time.
// Validation errors are never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule: %s %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ProviderError wraps a transient failure from an external provider.
// Provider errors are retryable with backoff.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err as a transient provider failure.
func NewProviderError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Err: err}
}

// IsSkippable reports whether err means "skip this cycle": the schedule
// advances but no transfer happens and nothing is retried.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrNoIncomeDetected) || errors.Is(err, ErrNoSurplusAvailable)
}

// IsRetryable reports whether err should consume a retry attempt.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
