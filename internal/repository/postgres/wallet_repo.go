// internal/repository/postgres/wallet_repository.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"vaspay-service/internal/domain/wallet"
	xerrors "vaspay-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WalletRepository struct {
	db *pgxpool.Pool
}

func NewWalletRepository(db *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create provisions the single wallet row for a user. The unique index on
// user_id makes double provisioning a clean conflict.
func (r *WalletRepository) Create(ctx context.Context, w *wallet.Wallet) error {
	query := `
		INSERT INTO wallets (user_id, balance, currency, status, account_reference, account_number, bank_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		w.UserID, w.Balance, w.Currency, w.Status, w.AccountReference, w.AccountNumber, w.BankName,
	).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return xerrors.ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r *WalletRepository) FindByUserID(ctx context.Context, userID int64) (*wallet.Wallet, error) {
	return r.findByUser(ctx, r.db, userID)
}

func (r *WalletRepository) findByUser(ctx context.Context, q querier, userID int64) (*wallet.Wallet, error) {
	query := `
		SELECT id, user_id, balance, currency, status, account_reference, account_number, bank_name, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`

	var w wallet.Wallet
	err := q.QueryRow(ctx, query, userID).Scan(
		&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.Status,
		&w.AccountReference, &w.AccountNumber, &w.BankName, &w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}
	return &w, nil
}

// CreditTx adds amount to the wallet in a single atomic statement and
// returns the new balance. Suspended wallets still accept deposits.
func (r *WalletRepository) CreditTx(ctx context.Context, tx pgx.Tx, userID int64, amount float64) (float64, error) {
	query := `
		UPDATE wallets
		SET balance = balance + $1, updated_at = NOW()
		WHERE user_id = $2
		RETURNING balance
	`

	var balance float64
	err := tx.QueryRow(ctx, query, amount, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, xerrors.ErrWalletNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit wallet: %w", err)
	}
	return balance, nil
}

// DebitTx subtracts amount iff the balance covers it; the non-negative
// guard lives in the WHERE clause so concurrent debits cannot overdraw.
func (r *WalletRepository) DebitTx(ctx context.Context, tx pgx.Tx, userID int64, amount float64) (float64, error) {
	query := `
		UPDATE wallets
		SET balance = balance - $1, updated_at = NOW()
		WHERE user_id = $2 AND status = 'active' AND balance >= $1
		RETURNING balance
	`

	var balance float64
	err := tx.QueryRow(ctx, query, amount, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Zero rows: wallet missing, suspended, or short on funds.
		w, ferr := r.findByUser(ctx, tx, userID)
		if ferr != nil {
			return 0, ferr
		}
		if !w.IsActive() {
			return 0, xerrors.ErrWalletSuspended
		}
		return 0, xerrors.ErrInsufficientBalance
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit wallet: %w", err)
	}
	return balance, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
