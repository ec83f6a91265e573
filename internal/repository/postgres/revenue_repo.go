// internal/repository/postgres/revenue_repository.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"vaspay-service/internal/domain/transaction"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RevenueRepository struct {
	db *pgxpool.Pool
}

func NewRevenueRepository(db *pgxpool.Pool) *RevenueRepository {
	return &RevenueRepository{db: db}
}

// Create books one revenue row. Revenue is append-only; corrections are
// booked as negative rows, never as updates.
func (r *RevenueRepository) Create(ctx context.Context, rev *transaction.CorporateRevenue) error {
	return r.create(ctx, r.db, rev)
}

func (r *RevenueRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, rev *transaction.CorporateRevenue) error {
	return r.create(ctx, tx, rev)
}

func (r *RevenueRepository) create(ctx context.Context, q querier, rev *transaction.CorporateRevenue) error {
	if rev.ID == "" {
		rev.ID = uuid.NewString()
	}

	query := `
		INSERT INTO corporate_revenues (id, user_id, source, amount, reference, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := q.QueryRow(
		ctx, query,
		rev.ID, rev.UserID, rev.Source, rev.Amount, rev.Reference, rev.Description,
	).Scan(&rev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create revenue record: %w", err)
	}
	return nil
}

// TotalBySource sums revenue per source since a cutoff.
func (r *RevenueRepository) TotalBySource(ctx context.Context, since time.Time) (map[string]float64, error) {
	query := `
		SELECT source, COALESCE(SUM(amount), 0)
		FROM corporate_revenues
		WHERE created_at >= $1
		GROUP BY source
	`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var source string
		var amount float64
		if err := rows.Scan(&source, &amount); err != nil {
			return nil, err
		}
		totals[source] = amount
	}
	return totals, rows.Err()
}
