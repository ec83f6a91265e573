// internal/repository/postgres/ledger_store.go
package postgres

import (
	"context"
	"fmt"

	"vaspay-service/internal/domain/transaction"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerStore composes the repositories into the multi-statement atomic
// operations the money paths need. Each method is one database
// transaction: either every row moves or none do.
type LedgerStore struct {
	db       *DB
	wallets  *WalletRepository
	txns     *TransactionRepository
	revenues *RevenueRepository
	recovery *RecoveryRepository
}

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{
		db:       NewDB(pool),
		wallets:  NewWalletRepository(pool),
		txns:     NewTransactionRepository(pool),
		revenues: NewRevenueRepository(pool),
		recovery: NewRecoveryRepository(pool),
	}
}

func (s *LedgerStore) Wallets() *WalletRepository        { return s.wallets }
func (s *LedgerStore) Transactions() *TransactionRepository { return s.txns }
func (s *LedgerStore) Revenues() *RevenueRepository      { return s.revenues }
func (s *LedgerStore) Recovery() *RecoveryRepository     { return s.recovery }

// DebitAndPromoteParams describes the post-vend settlement: charge the
// wallet, promote the in-progress row, book the margin.
type DebitAndPromoteParams struct {
	UserID           int64
	Reference        string
	SellingPrice     float64
	Cost             float64
	Margin           float64
	Provider         string
	ProviderRef      string
	Description      string
	ProviderResponse map[string]interface{}
	RevenueSource    string
	RevenueNote      string
}

// DebitAndPromote settles a successful vend. The debit carries the
// non-negative balance guard, the promote carries the status CAS; both
// commit together or not at all. Returns the balance after the debit.
func (s *LedgerStore) DebitAndPromote(ctx context.Context, p DebitAndPromoteParams) (float64, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin settle tx: %w", err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := s.wallets.DebitTx(ctx, tx, p.UserID, p.SellingPrice)
	if err != nil {
		return 0, err
	}

	if err := s.txns.PromoteToSuccessTx(ctx, tx, p.Reference, p.Provider, p.ProviderRef, p.Description, p.Cost, p.Margin, p.ProviderResponse); err != nil {
		return 0, err
	}

	if p.Margin > 0 {
		rev := &transaction.CorporateRevenue{
			UserID:      p.UserID,
			Source:      p.RevenueSource,
			Amount:      p.Margin,
			Reference:   p.Reference,
			Description: p.RevenueNote,
		}
		if err := s.revenues.CreateWithTx(ctx, tx, rev); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit settle tx: %w", err)
	}
	return newBalance, nil
}

// CreditParams describes an idempotent wallet credit: a deposit from the
// funding provider or a recovery compensation.
type CreditParams struct {
	UserID      int64
	Reference   string // idempotency key; provider reference for deposits
	GrossAmount float64
	Fee         float64
	Description string
	Provider    string
	FeeSource   string
	Raw         map[string]interface{}
}

// Credit applies a wallet credit exactly once. The funding transaction row
// is inserted first; a duplicate reference aborts with ErrDuplicateEntry
// before any balance moves. Returns the balance after the credit.
func (s *LedgerStore) Credit(ctx context.Context, p CreditParams) (float64, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin credit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	net := p.GrossAmount - p.Fee
	txn := &transaction.Transaction{
		UserID:            p.UserID,
		Type:              transaction.TypeWalletFunding,
		Reference:         p.Reference,
		Amount:            p.GrossAmount,
		SellingPrice:      net,
		Status:            transaction.StatusSuccess,
		ProviderConfirmed: true,
		ProviderResponse:  p.Raw,
	}
	txn.Provider = nullString(p.Provider)
	txn.Description = nullString(p.Description)

	if err := s.txns.CreateWithTx(ctx, tx, txn); err != nil {
		return 0, err
	}

	newBalance, err := s.wallets.CreditTx(ctx, tx, p.UserID, net)
	if err != nil {
		return 0, err
	}

	if p.Fee > 0 {
		rev := &transaction.CorporateRevenue{
			UserID:      p.UserID,
			Source:      p.FeeSource,
			Amount:      p.Fee,
			Reference:   p.Reference,
			Description: p.Description,
		}
		if err := s.revenues.CreateWithTx(ctx, tx, rev); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit credit tx: %w", err)
	}
	return newBalance, nil
}

// CompensateTag pays an emergency-pricing overage back to the user. The
// tag claim is the compare-and-set that makes the compensation run once;
// the credit rides in the same database transaction.
func (s *LedgerStore) CompensateTag(ctx context.Context, tag *transaction.EmergencyPricingTag) (float64, error) {
	overage := tag.Overage()
	if overage <= 0 {
		// Nothing owed; still complete the tag so it stops coming due.
		tx, err := s.db.BeginTx(ctx)
		if err != nil {
			return 0, fmt.Errorf("begin compensate tx: %w", err)
		}
		defer tx.Rollback(ctx)
		if err := s.recovery.ClaimTagTx(ctx, tx, tag.ID); err != nil {
			return 0, err
		}
		return 0, tx.Commit(ctx)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin compensate tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.recovery.ClaimTagTx(ctx, tx, tag.ID); err != nil {
		return 0, err
	}

	txn := &transaction.Transaction{
		UserID:            tag.UserID,
		Type:              transaction.TypeWalletFunding,
		Reference:         "RECOVERY_" + tag.ID,
		Amount:            overage,
		SellingPrice:      overage,
		Status:            transaction.StatusSuccess,
		ProviderConfirmed: true,
	}
	txn.Description = nullString(fmt.Sprintf("Emergency pricing refund for %s", tag.Reference))
	if err := s.txns.CreateWithTx(ctx, tx, txn); err != nil {
		return 0, err
	}

	newBalance, err := s.wallets.CreditTx(ctx, tx, tag.UserID, overage)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit compensate tx: %w", err)
	}
	return newBalance, nil
}
