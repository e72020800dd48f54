package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// AccountTransactionRow mirrors the account_transactions table schema fed by
// the upstream ingestion pipeline.
type AccountTransactionRow struct {
	TransactionID   string              `bigquery:"transaction_id"` // REQUIRED
	UserID          string              `bigquery:"user_id"`
	AccountID       string              `bigquery:"account_id"`
	TransactionDate civil.Date          `bigquery:"transaction_date"`
	Amount          float64             `bigquery:"amount"`
	Description     bigquery.NullString `bigquery:"description"`
}

// TransactionStore implements engine.TransactionProvider on BigQuery.
// Read-only; the ingestion pipeline owns writes to this table.
type TransactionStore struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewTransactionStore creates a provider using the given BigQuery client.
func NewTransactionStore(client *bigquery.Client, projectID, datasetID string) *TransactionStore {
	return &TransactionStore{client: client, projectID: projectID, datasetID: datasetID}
}

// GetAccountTransactions implements engine.TransactionProvider. Results come
// back oldest first, which is the order the income detector expects.
func (s *TransactionStore) GetAccountTransactions(ctx context.Context, userID, accountID string, from time.Time) ([]domain.Transaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			user_id,
			account_id,
			transaction_date,
			amount,
			description
		FROM `+"`%s.%s.%s`"+`
		WHERE user_id = @user_id
		  AND account_id = @account_id
		  AND transaction_date >= @from_date
		ORDER BY transaction_date
	`, s.projectID, s.datasetID, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "account_id", Value: accountID},
		{Name: "from_date", Value: civil.DateOf(from)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAccountTransactions: query read: %w", err)
	}

	var out []domain.Transaction
	for {
		var row AccountTransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("GetAccountTransactions: iter next: %w", err)
		}
		out = append(out, domain.Transaction{
			ID:          row.TransactionID,
			Amount:      row.Amount,
			Description: row.Description.StringVal,
			Date:        row.TransactionDate.In(time.UTC),
		})
	}
	return out, nil
}

var _ engine.TransactionProvider = (*TransactionStore)(nil)
