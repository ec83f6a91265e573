// internal/repository/postgres/recovery_repository.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"vaspay-service/internal/domain/transaction"
	xerrors "vaspay-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecoveryRepository persists the reconciliation side tables: emergency
// pricing tags, plan mismatch logs, and post-vend anomalies.
type RecoveryRepository struct {
	db *pgxpool.Pool
}

func NewRecoveryRepository(db *pgxpool.Pool) *RecoveryRepository {
	return &RecoveryRepository{db: db}
}

func (r *RecoveryRepository) CreateTag(ctx context.Context, tag *transaction.EmergencyPricingTag) error {
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}

	query := `
		INSERT INTO emergency_pricing_tags (id, user_id, reference, network, plan_id, emergency_cost, normal_cost, status, recovery_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		tag.ID, tag.UserID, tag.Reference, tag.Network, tag.PlanID,
		tag.EmergencyCost, tag.NormalCost, tag.Status, tag.RecoveryDeadline,
	).Scan(&tag.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create emergency tag: %w", err)
	}
	return nil
}

// DueTags returns pending tags whose recovery deadline has passed.
func (r *RecoveryRepository) DueTags(ctx context.Context, now time.Time, limit int) ([]transaction.EmergencyPricingTag, error) {
	query := `
		SELECT id, user_id, reference, network, plan_id, emergency_cost, normal_cost, status, recovery_deadline, processed_at, created_at
		FROM emergency_pricing_tags
		WHERE status = $1 AND recovery_deadline <= $2
		ORDER BY recovery_deadline
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, transaction.TagPendingRecovery, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due tags: %w", err)
	}
	defer rows.Close()

	var tags []transaction.EmergencyPricingTag
	for rows.Next() {
		var t transaction.EmergencyPricingTag
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Reference, &t.Network, &t.PlanID,
			&t.EmergencyCost, &t.NormalCost, &t.Status, &t.RecoveryDeadline, &t.ProcessedAt, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// ClaimTagTx flips a tag PENDING_RECOVERY -> COMPLETED. The status guard in
// the WHERE clause makes each tag processable exactly once even with
// overlapping job runs.
func (r *RecoveryRepository) ClaimTagTx(ctx context.Context, tx pgx.Tx, tagID string) error {
	query := `
		UPDATE emergency_pricing_tags
		SET status = $2, processed_at = NOW()
		WHERE id = $1 AND status = $3
	`

	tag, err := tx.Exec(ctx, query, tagID, transaction.TagCompleted, transaction.TagPendingRecovery)
	if err != nil {
		return fmt.Errorf("failed to claim emergency tag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrConflict
	}
	return nil
}

type RecoveryStats struct {
	Pending        int64   `json:"pending"`
	Completed      int64   `json:"completed"`
	PendingOverage float64 `json:"pending_overage"`
	RecoveredTotal float64 `json:"recovered_total"`
}

func (r *RecoveryRepository) Stats(ctx context.Context) (*RecoveryStats, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE status = $1),
		       COUNT(*) FILTER (WHERE status = $2),
		       COALESCE(SUM(GREATEST(emergency_cost - normal_cost, 0)) FILTER (WHERE status = $1), 0),
		       COALESCE(SUM(GREATEST(emergency_cost - normal_cost, 0)) FILTER (WHERE status = $2), 0)
		FROM emergency_pricing_tags
	`

	var s RecoveryStats
	err := r.db.QueryRow(ctx, query, transaction.TagPendingRecovery, transaction.TagCompleted).Scan(
		&s.Pending, &s.Completed, &s.PendingOverage, &s.RecoveredTotal,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute recovery stats: %w", err)
	}
	return &s, nil
}

func (r *RecoveryRepository) CreateMismatch(ctx context.Context, m *transaction.PlanMismatchLog) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	query := `
		INSERT INTO plan_mismatch_logs (id, user_id, reference, network, requested_plan, delivered_plan, provider, requires_refund, requires_investigation, provider_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		m.ID, m.UserID, m.Reference, m.Network, m.RequestedPlan, m.DeliveredPlan, m.Provider, m.RequiresRefund, m.RequiresInvestigation, m.ProviderResponse,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan mismatch log: %w", err)
	}
	return nil
}

func (r *RecoveryRepository) CreateAnomaly(ctx context.Context, a *transaction.ReconciliationAnomaly) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = transaction.AnomalyOpen
	}

	query := `
		INSERT INTO reconciliation_anomalies (id, user_id, reference, amount, detail, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		a.ID, a.UserID, a.Reference, a.Amount, a.Detail, a.Status,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reconciliation anomaly: %w", err)
	}
	return nil
}

func (r *RecoveryRepository) OpenAnomalies(ctx context.Context, limit int) ([]transaction.ReconciliationAnomaly, error) {
	query := `
		SELECT id, user_id, reference, amount, detail, status, resolved_at, created_at
		FROM reconciliation_anomalies
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, transaction.AnomalyOpen, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	defer rows.Close()

	var out []transaction.ReconciliationAnomaly
	for rows.Next() {
		var a transaction.ReconciliationAnomaly
		if err := rows.Scan(&a.ID, &a.UserID, &a.Reference, &a.Amount, &a.Detail, &a.Status, &a.ResolvedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *RecoveryRepository) ResolveAnomaly(ctx context.Context, id string) error {
	query := `
		UPDATE reconciliation_anomalies
		SET status = $2, resolved_at = NOW()
		WHERE id = $1 AND status = $3
	`
	tag, err := r.db.Exec(ctx, query, id, transaction.AnomalyResolved, transaction.AnomalyOpen)
	if err != nil {
		return fmt.Errorf("failed to resolve anomaly: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
