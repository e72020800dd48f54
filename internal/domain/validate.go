package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// validate is shared; validator instances cache struct metadata.
var validate = validator.New()

// CreateRuleRequest carries everything needed to create a TransferRule.
// Struct tags cover the shape checks; ValidateCreateRule adds the
// cross-field invariants the tags cannot express.
type CreateRuleRequest struct {
	GoalID             string       `json:"goal_id" validate:"required"`
	UserID             string       `json:"user_id" validate:"required"`
	SourceAccountID    string       `json:"source_account_id" validate:"required"`
	TargetSubaccountID string       `json:"target_subaccount_id" validate:"required"`
	TransferType       TransferType `json:"transfer_type" validate:"required"`
	Amount             float64      `json:"amount" validate:"gt=0"`
	Frequency          Frequency    `json:"frequency" validate:"required"`
	StartDate          time.Time    `json:"start_date" validate:"required"`
	EndDate            *time.Time   `json:"end_date,omitempty"`

	MaxRetries                int     `json:"max_retries" validate:"gte=0,lte=10"`
	IncomeDetectionEnabled    bool    `json:"income_detection_enabled"`
	MinimumIncomeThreshold    float64 `json:"minimum_income_threshold" validate:"gte=0"`
	MaximumTransferPerPeriod  float64 `json:"maximum_transfer_per_period" validate:"gte=0"`
	SurplusCalculationEnabled bool    `json:"surplus_calculation_enabled"`
}

// ValidateCreateRule checks a rule-creation request. It returns a
// *ValidationError describing the first violated invariant, or nil.
func ValidateCreateRule(req *CreateRuleRequest) error {
	if err := validate.Struct(req); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return NewValidationError(errs[0].Field(), "failed "+errs[0].Tag()+" check")
		}
		return NewValidationError("request", err.Error())
	}

	if !req.TransferType.IsValid() {
		return NewValidationError("transfer_type", "must be one of FIXED_AMOUNT, PERCENTAGE_INCOME, INCOME_BASED, SMART_SURPLUS")
	}
	if !req.Frequency.IsValid() {
		return NewValidationError("frequency", "must be one of DAILY, WEEKLY, BIWEEKLY, MONTHLY, QUARTERLY")
	}
	if req.TransferType.IsPercentage() && req.Amount > 100 {
		return NewValidationError("amount", "percentage must be in (0,100]")
	}
	if req.EndDate != nil && !req.EndDate.After(req.StartDate) {
		return NewValidationError("end_date", "must be after start_date")
	}
	if req.TransferType == TransferTypePercentageIncome || req.TransferType == TransferTypeIncomeBased {
		if !req.IncomeDetectionEnabled {
			return NewValidationError("income_detection_enabled", "required for income-based rules")
		}
	}
	if req.TransferType == TransferTypeSmartSurplus && !req.SurplusCalculationEnabled {
		return NewValidationError("surplus_calculation_enabled", "required for smart-surplus rules")
	}
	return nil
}

// NewTransferRule builds an active TransferRule from a validated request.
// The first execution is due on the start date.
func NewTransferRule(req *CreateRuleRequest, now time.Time) (*TransferRule, error) {
	if err := ValidateCreateRule(req); err != nil {
		return nil, err
	}

	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}

	return &TransferRule{
		ID:                 uuid.NewString(),
		GoalID:             req.GoalID,
		UserID:             req.UserID,
		SourceAccountID:    req.SourceAccountID,
		TargetSubaccountID: req.TargetSubaccountID,
		TransferType:       req.TransferType,
		Amount:             req.Amount,
		Frequency:          req.Frequency,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		IsActive:           true,
		NextExecutionDate:  req.StartDate,
		MaxRetries:         maxRetries,

		IncomeDetectionEnabled:    req.IncomeDetectionEnabled,
		MinimumIncomeThreshold:    req.MinimumIncomeThreshold,
		MaximumTransferPerPeriod:  req.MaximumTransferPerPeriod,
		SurplusCalculationEnabled: req.SurplusCalculationEnabled,

		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
