// internal/repository/postgres/transaction_repository.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vaspay-service/internal/domain/transaction"
	xerrors "vaspay-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const txnColumns = `id, user_id, type, reference, provider_ref, amount, selling_price, cost, margin,
	network, plan_id, phone_number, description, status, failure_reason,
	provider, provider_confirmed, provider_response, created_at, updated_at`

// Create inserts a ledger row. The unique index on reference is the
// idempotency backstop: a replayed reference comes back as
// xerrors.ErrDuplicateEntry, never as a second row.
func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	return r.create(ctx, r.db, t)
}

// CreateWithTx inserts a ledger row inside an existing transaction, so the
// insert can commit atomically with the wallet movement it describes.
func (r *TransactionRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, t *transaction.Transaction) error {
	return r.create(ctx, tx, t)
}

func (r *TransactionRepository) create(ctx context.Context, q querier, t *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (
			user_id, type, reference, provider_ref, amount, selling_price, cost, margin,
			network, plan_id, phone_number, description, status, failure_reason,
			provider, provider_confirmed, provider_response
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at
	`

	var responseJSON []byte
	var err error
	if t.ProviderResponse != nil {
		responseJSON, err = json.Marshal(t.ProviderResponse)
		if err != nil {
			return fmt.Errorf("failed to marshal provider_response: %w", err)
		}
	}

	err = q.QueryRow(
		ctx, query,
		t.UserID, t.Type, t.Reference, t.ProviderRef, t.Amount, t.SellingPrice, t.Cost, t.Margin,
		t.Network, t.PlanID, t.PhoneNumber, t.Description, t.Status, t.FailureReason,
		t.Provider, t.ProviderConfirmed, responseJSON,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return xerrors.ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, userID, id int64) (*transaction.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transactions WHERE id = $1 AND user_id = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, id, userID))
}

func (r *TransactionRepository) FindByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transactions WHERE reference = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, reference))
}

func (r *TransactionRepository) FindByProviderRef(ctx context.Context, providerRef string) (*transaction.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transactions WHERE provider_ref = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, providerRef))
}

// FindInFlight looks for a recent unresolved purchase with the same shape.
// This is a best-effort duplicate screen for fast retries; the reference
// unique index remains the hard guarantee.
func (r *TransactionRepository) FindInFlight(ctx context.Context, userID int64, txnType transaction.TransactionType, sellingPrice float64, phoneNumber string, window time.Duration) (*transaction.Transaction, error) {
	query := `
		SELECT ` + txnColumns + `
		FROM transactions
		WHERE user_id = $1 AND type = $2 AND selling_price = $3 AND phone_number = $4
		  AND status = 'FAILED' AND failure_reason = $5
		  AND created_at > $6
		ORDER BY created_at DESC
		LIMIT 1
	`
	cutoff := time.Now().Add(-window)
	return r.scanOne(r.db.QueryRow(ctx, query, userID, txnType, sellingPrice, phoneNumber, transaction.ReasonInProgress, cutoff))
}

// PromoteToSuccessTx flips an in-progress row to SUCCESS. The WHERE clause
// is the compare-and-set: only a row still carrying the in-progress reason
// moves, so replays and races collapse into a no-op. A SUCCESS row is never
// demoted.
func (r *TransactionRepository) PromoteToSuccessTx(ctx context.Context, tx pgx.Tx, reference string, provider, providerRef, description string, cost, margin float64, providerResponse map[string]interface{}) error {
	query := `
		UPDATE transactions
		SET status = 'SUCCESS', failure_reason = NULL,
		    provider = $2, provider_ref = $3, description = $4,
		    cost = $5, margin = $6, provider_response = $7, updated_at = NOW()
		WHERE reference = $1 AND status = 'FAILED' AND failure_reason = $8
	`

	var responseJSON []byte
	var err error
	if providerResponse != nil {
		responseJSON, err = json.Marshal(providerResponse)
		if err != nil {
			return fmt.Errorf("failed to marshal provider_response: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, query, reference, provider, providerRef, description, cost, margin, responseJSON, transaction.ReasonInProgress)
	if err != nil {
		return fmt.Errorf("failed to promote transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrConflict
	}
	return nil
}

// MarkFailed records the final failure reason on an in-progress row.
func (r *TransactionRepository) MarkFailed(ctx context.Context, reference, reason string) error {
	query := `
		UPDATE transactions
		SET failure_reason = $2, updated_at = NOW()
		WHERE reference = $1 AND status = 'FAILED'
	`
	if _, err := r.db.Exec(ctx, query, reference, reason); err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	return nil
}

// MarkConfirmed sets provider_confirmed and, when the row is still
// in-progress, promotes it to SUCCESS in the same statement. SUCCESS rows
// only gain the confirmation flag.
func (r *TransactionRepository) MarkConfirmed(ctx context.Context, reference string) error {
	query := `
		UPDATE transactions
		SET provider_confirmed = TRUE,
		    status = 'SUCCESS',
		    failure_reason = NULL,
		    updated_at = NOW()
		WHERE reference = $1 AND (status = 'SUCCESS' OR failure_reason = $2)
	`
	tag, err := r.db.Exec(ctx, query, reference, transaction.ReasonInProgress)
	if err != nil {
		return fmt.Errorf("failed to confirm transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// List returns a user's transactions with optional filters, newest first.
func (r *TransactionRepository) List(ctx context.Context, userID int64, filters transaction.ListFilters) ([]transaction.Transaction, int64, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", argNum))
	args = append(args, userID)
	argNum++

	if filters.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argNum))
		args = append(args, *filters.Type)
		argNum++
	}
	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filters.Status)
		argNum++
	}
	if filters.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argNum))
		args = append(args, *filters.DateFrom)
		argNum++
	}
	if filters.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argNum))
		args = append(args, *filters.DateTo)
		argNum++
	}

	where := strings.Join(conditions, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM transactions WHERE " + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	if filters.PageSize <= 0 {
		filters.PageSize = 20
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(
		"SELECT "+txnColumns+" FROM transactions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, argNum, argNum+1,
	)
	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []transaction.Transaction
	for rows.Next() {
		t, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		txns = append(txns, *t)
	}
	return txns, total, rows.Err()
}

// Stats aggregates a user's ledger for the given window.
func (r *TransactionRepository) Stats(ctx context.Context, userID int64, since time.Time) (*transaction.TransactionStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'SUCCESS'),
		       COUNT(*) FILTER (WHERE status = 'FAILED'),
		       COALESCE(SUM(selling_price) FILTER (WHERE status = 'SUCCESS'), 0)
		FROM transactions
		WHERE user_id = $1 AND created_at >= $2
	`

	var s transaction.TransactionStats
	err := r.db.QueryRow(ctx, query, userID, since).Scan(
		&s.TotalTransactions, &s.Successful, &s.Failed, &s.TotalVolume,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute transaction stats: %w", err)
	}
	if s.TotalTransactions > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalTransactions) * 100
	}
	return &s, nil
}

func (r *TransactionRepository) scanOne(row pgx.Row) (*transaction.Transaction, error) {
	t, err := r.scanRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) scanRow(row pgx.Row) (*transaction.Transaction, error) {
	var t transaction.Transaction
	var responseJSON []byte

	err := row.Scan(
		&t.ID, &t.UserID, &t.Type, &t.Reference, &t.ProviderRef, &t.Amount, &t.SellingPrice, &t.Cost, &t.Margin,
		&t.Network, &t.PlanID, &t.PhoneNumber, &t.Description, &t.Status, &t.FailureReason,
		&t.Provider, &t.ProviderConfirmed, &responseJSON, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(responseJSON) > 0 {
		json.Unmarshal(responseJSON, &t.ProviderResponse)
	}
	return &t, nil
}
