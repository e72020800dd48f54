// Package bigquery persists the transfer audit trail and reads account
// transactions from BigQuery. Rules and goals live in Postgres; BigQuery
// holds the append-heavy, analytics-facing data.
package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

const (
	recordsTable      = "transfer_records"
	transactionsTable = "account_transactions"
	dateFormat        = "2006-01-02"
)

// TransferRecordRow mirrors the transfer_records table schema.
type TransferRecordRow struct {
	RecordID           string `bigquery:"record_id"` // REQUIRED
	RuleID             string `bigquery:"rule_id"`
	GoalID             string `bigquery:"goal_id"`
	UserID             string `bigquery:"user_id"`
	SourceAccountID    string `bigquery:"source_account_id"`
	TargetSubaccountID string `bigquery:"target_subaccount_id"`

	Amount        float64    `bigquery:"amount"`
	Status        string     `bigquery:"status"`
	ScheduledDate civil.Date `bigquery:"scheduled_date"`

	ExecutedTS            bigquery.NullTimestamp `bigquery:"executed_ts"`
	ExternalTransactionID bigquery.NullString    `bigquery:"external_transaction_id"`
	ErrorMessage          bigquery.NullString    `bigquery:"error_message"`
	RetryCount            int64                  `bigquery:"retry_count"`

	DetectedIncomeAmount bigquery.NullFloat64 `bigquery:"detected_income_amount"`
	IncomeSource         bigquery.NullString  `bigquery:"income_source"`
	SurplusCalculation   bigquery.NullString  `bigquery:"surplus_calculation"` // JSON snapshot

	CreatedTS time.Time `bigquery:"created_ts"`
	UpdatedTS time.Time `bigquery:"updated_ts"`
}

// RecordStore implements engine.RecordRepository on BigQuery.
type RecordStore struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewRecordStore creates a store using the provided BigQuery client.
func NewRecordStore(client *bigquery.Client, projectID, datasetID string) *RecordStore {
	return &RecordStore{client: client, projectID: projectID, datasetID: datasetID}
}

func (s *RecordStore) table() string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, recordsTable)
}

// SaveRecord implements engine.RecordRepository. An upsert keyed by record
// ID lets one attempt move through its states in place while keeping one
// row per attempt.
func (s *RecordStore) SaveRecord(ctx context.Context, record *domain.TransferRecord) error {
	row := recordToRow(record)

	q := s.client.Query(fmt.Sprintf(`
		MERGE %s t
		USING (SELECT @record_id AS record_id) src
		ON t.record_id = src.record_id
		WHEN MATCHED THEN UPDATE SET
			amount = @amount,
			status = @status,
			executed_ts = @executed_ts,
			external_transaction_id = @external_transaction_id,
			error_message = @error_message,
			retry_count = @retry_count,
			detected_income_amount = @detected_income_amount,
			income_source = @income_source,
			surplus_calculation = @surplus_calculation,
			updated_ts = @updated_ts
		WHEN NOT MATCHED THEN INSERT (
			record_id, rule_id, goal_id, user_id,
			source_account_id, target_subaccount_id,
			amount, status, scheduled_date,
			executed_ts, external_transaction_id, error_message, retry_count,
			detected_income_amount, income_source, surplus_calculation,
			created_ts, updated_ts
		) VALUES (
			@record_id, @rule_id, @goal_id, @user_id,
			@source_account_id, @target_subaccount_id,
			@amount, @status, @scheduled_date,
			@executed_ts, @external_transaction_id, @error_message, @retry_count,
			@detected_income_amount, @income_source, @surplus_calculation,
			@created_ts, @updated_ts
		)
	`, s.table()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "record_id", Value: row.RecordID},
		{Name: "rule_id", Value: row.RuleID},
		{Name: "goal_id", Value: row.GoalID},
		{Name: "user_id", Value: row.UserID},
		{Name: "source_account_id", Value: row.SourceAccountID},
		{Name: "target_subaccount_id", Value: row.TargetSubaccountID},
		{Name: "amount", Value: row.Amount},
		{Name: "status", Value: row.Status},
		{Name: "scheduled_date", Value: row.ScheduledDate},
		{Name: "executed_ts", Value: row.ExecutedTS},
		{Name: "external_transaction_id", Value: row.ExternalTransactionID},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "retry_count", Value: row.RetryCount},
		{Name: "detected_income_amount", Value: row.DetectedIncomeAmount},
		{Name: "income_source", Value: row.IncomeSource},
		{Name: "surplus_calculation", Value: row.SurplusCalculation},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "updated_ts", Value: row.UpdatedTS},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("SaveRecord: run merge: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("SaveRecord: wait merge: %w", err)
	}
	if status.Err() != nil {
		return fmt.Errorf("SaveRecord: merge failed: %w", status.Err())
	}
	return nil
}

// QueryHistory implements engine.RecordRepository, newest first.
func (s *RecordStore) QueryHistory(ctx context.Context, filter engine.HistoryFilter) ([]*domain.TransferRecord, error) {
	query := fmt.Sprintf(`
		SELECT
			record_id, rule_id, goal_id, user_id,
			source_account_id, target_subaccount_id,
			amount, status, scheduled_date,
			executed_ts, external_transaction_id, error_message, retry_count,
			detected_income_amount, income_source, surplus_calculation,
			created_ts, updated_ts
		FROM %s
		WHERE TRUE
	`, s.table())

	var params []bigquery.QueryParameter
	if filter.UserID != "" {
		query += " AND user_id = @user_id"
		params = append(params, bigquery.QueryParameter{Name: "user_id", Value: filter.UserID})
	}
	if filter.GoalID != "" {
		query += " AND goal_id = @goal_id"
		params = append(params, bigquery.QueryParameter{Name: "goal_id", Value: filter.GoalID})
	}
	if filter.RuleID != "" {
		query += " AND rule_id = @rule_id"
		params = append(params, bigquery.QueryParameter{Name: "rule_id", Value: filter.RuleID})
	}
	if !filter.From.IsZero() {
		query += " AND created_ts >= @from_ts"
		params = append(params, bigquery.QueryParameter{Name: "from_ts", Value: filter.From})
	}
	if !filter.To.IsZero() {
		query += " AND created_ts < @to_ts"
		params = append(params, bigquery.QueryParameter{Name: "to_ts", Value: filter.To})
	}
	query += " ORDER BY created_ts DESC"
	if filter.Limit > 0 {
		query += " LIMIT @row_limit"
		params = append(params, bigquery.QueryParameter{Name: "row_limit", Value: int64(filter.Limit)})
	}

	q := s.client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryHistory: query read: %w", err)
	}

	var out []*domain.TransferRecord
	for {
		var row TransferRecordRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryHistory: iter next: %w", err)
		}
		out = append(out, rowToRecord(&row))
	}
	return out, nil
}

// DeleteOlderThan implements engine.RecordRepository.
func (s *RecordStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	q := s.client.Query(fmt.Sprintf("DELETE FROM %s WHERE created_ts < @cutoff", s.table()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "cutoff", Value: cutoff},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeleteOlderThan: run delete: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeleteOlderThan: wait delete: %w", err)
	}
	if status.Err() != nil {
		return 0, fmt.Errorf("DeleteOlderThan: delete failed: %w", status.Err())
	}

	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

func recordToRow(r *domain.TransferRecord) *TransferRecordRow {
	row := &TransferRecordRow{
		RecordID:           r.ID,
		RuleID:             r.RuleID,
		GoalID:             r.GoalID,
		UserID:             r.UserID,
		SourceAccountID:    r.SourceAccountID,
		TargetSubaccountID: r.TargetSubaccountID,
		Amount:             r.Amount,
		Status:             string(r.Status),
		ScheduledDate:      civil.DateOf(r.ScheduledDate),
		RetryCount:         int64(r.RetryCount),
		CreatedTS:          r.CreatedAt,
		UpdatedTS:          r.UpdatedAt,
	}

	if r.ExecutedDate != nil {
		row.ExecutedTS = bigquery.NullTimestamp{Timestamp: *r.ExecutedDate, Valid: true}
	}
	if r.ExternalTransactionID != "" {
		row.ExternalTransactionID = bigquery.NullString{StringVal: r.ExternalTransactionID, Valid: true}
	}
	if r.ErrorMessage != "" {
		row.ErrorMessage = bigquery.NullString{StringVal: r.ErrorMessage, Valid: true}
	}
	if r.DetectedIncomeAmount != 0 {
		row.DetectedIncomeAmount = bigquery.NullFloat64{Float64: r.DetectedIncomeAmount, Valid: true}
	}
	if r.IncomeSource != "" {
		row.IncomeSource = bigquery.NullString{StringVal: r.IncomeSource, Valid: true}
	}
	if r.SurplusCalculation != nil {
		if encoded, err := json.Marshal(r.SurplusCalculation); err == nil {
			row.SurplusCalculation = bigquery.NullString{StringVal: string(encoded), Valid: true}
		}
	}
	return row
}

func rowToRecord(row *TransferRecordRow) *domain.TransferRecord {
	r := &domain.TransferRecord{
		ID:                 row.RecordID,
		RuleID:             row.RuleID,
		GoalID:             row.GoalID,
		UserID:             row.UserID,
		SourceAccountID:    row.SourceAccountID,
		TargetSubaccountID: row.TargetSubaccountID,
		Amount:             row.Amount,
		Status:             domain.TransferStatus(row.Status),
		ScheduledDate:      row.ScheduledDate.In(time.UTC),
		RetryCount:         int(row.RetryCount),
		CreatedAt:          row.CreatedTS,
		UpdatedAt:          row.UpdatedTS,
	}

	if row.ExecutedTS.Valid {
		ts := row.ExecutedTS.Timestamp
		r.ExecutedDate = &ts
	}
	if row.ExternalTransactionID.Valid {
		r.ExternalTransactionID = row.ExternalTransactionID.StringVal
	}
	if row.ErrorMessage.Valid {
		r.ErrorMessage = row.ErrorMessage.StringVal
	}
	if row.DetectedIncomeAmount.Valid {
		r.DetectedIncomeAmount = row.DetectedIncomeAmount.Float64
	}
	if row.IncomeSource.Valid {
		r.IncomeSource = row.IncomeSource.StringVal
	}
	if row.SurplusCalculation.Valid {
		var sc domain.SurplusCalculation
		if err := json.Unmarshal([]byte(row.SurplusCalculation.StringVal), &sc); err == nil {
			r.SurplusCalculation = &sc
		}
	}
	return r
}

var _ engine.RecordRepository = (*RecordStore)(nil)
