// internal/service/wallet/wallet_service.go
package wallet

import (
	"context"
	"time"

	"vaspay-service/internal/domain/transaction"
	walletdomain "vaspay-service/internal/domain/wallet"
	xerrors "vaspay-service/internal/pkg/errors"
	"vaspay-service/internal/pkg/reqid"

	"go.uber.org/zap"
)

type WalletStore interface {
	Create(ctx context.Context, w *walletdomain.Wallet) error
	FindByUserID(ctx context.Context, userID int64) (*walletdomain.Wallet, error)
}

type TransactionStore interface {
	FindByID(ctx context.Context, userID, id int64) (*transaction.Transaction, error)
	FindByReference(ctx context.Context, reference string) (*transaction.Transaction, error)
	List(ctx context.Context, userID int64, filters transaction.ListFilters) ([]transaction.Transaction, int64, error)
	Stats(ctx context.Context, userID int64, since time.Time) (*transaction.TransactionStats, error)
}

// Service owns wallet provisioning and the read side: balances,
// transaction history, receipts.
type Service struct {
	wallets WalletStore
	txns    TransactionStore
	logger  *zap.Logger
}

func NewService(wallets WalletStore, txns TransactionStore, logger *zap.Logger) *Service {
	return &Service{wallets: wallets, txns: txns, logger: logger}
}

// Provision creates the user's wallet with its funding account reference.
// Idempotent: if the wallet already exists, the existing one is returned.
func (s *Service) Provision(ctx context.Context, userID int64) (*walletdomain.Wallet, error) {
	w := &walletdomain.Wallet{
		UserID:   userID,
		Currency: "NGN",
		Status:   walletdomain.WalletStatusActive,
	}
	w.AccountReference.String = reqid.AccountReference(userID)
	w.AccountReference.Valid = true

	if err := s.wallets.Create(ctx, w); err != nil {
		if xerrors.Is(err, xerrors.ErrDuplicateEntry) {
			return s.wallets.FindByUserID(ctx, userID)
		}
		return nil, err
	}

	s.logger.Info("wallet provisioned",
		zap.Int64("user_id", userID),
		zap.String("account_reference", w.AccountReference.String))
	return w, nil
}

func (s *Service) Get(ctx context.Context, userID int64) (*walletdomain.Wallet, error) {
	return s.wallets.FindByUserID(ctx, userID)
}

func (s *Service) Balance(ctx context.Context, userID int64) (*walletdomain.BalanceSummary, error) {
	w, err := s.wallets.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &walletdomain.BalanceSummary{Balance: w.Balance, Currency: w.Currency}, nil
}

// FundingAccount returns the virtual account details deposits should be
// sent to.
func (s *Service) FundingAccount(ctx context.Context, userID int64) (*walletdomain.FundingAccount, error) {
	w, err := s.wallets.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !w.AccountReference.Valid {
		return nil, xerrors.Wrap(xerrors.ErrNotFound, "no funding account provisioned")
	}
	return &walletdomain.FundingAccount{
		AccountReference: w.AccountReference.String,
		AccountNumber:    w.AccountNumber.String,
		BankName:         w.BankName.String,
	}, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID int64, filters transaction.ListFilters) (*transaction.ListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	txns, total, err := s.txns.List(ctx, userID, filters)
	if err != nil {
		return nil, err
	}

	totalPages := int(total) / filters.PageSize
	if int(total)%filters.PageSize != 0 {
		totalPages++
	}

	return &transaction.ListResponse{
		Transactions: txns,
		Total:        total,
		Page:         filters.Page,
		PageSize:     filters.PageSize,
		TotalPages:   totalPages,
	}, nil
}

// Receipt builds the user-facing view of a single transaction. Ownership
// is enforced by the scoped lookup.
func (s *Service) Receipt(ctx context.Context, userID, txnID int64) (*transaction.Receipt, error) {
	t, err := s.txns.FindByID(ctx, userID, txnID)
	if err != nil {
		return nil, err
	}
	return buildReceipt(t), nil
}

// ReceiptByReference resolves a receipt by its idempotency reference.
// The reference index is global, so ownership is checked explicitly.
func (s *Service) ReceiptByReference(ctx context.Context, userID int64, reference string) (*transaction.Receipt, error) {
	if reference == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "reference is required")
	}
	t, err := s.txns.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, xerrors.ErrNotFound
	}
	return buildReceipt(t), nil
}

func (s *Service) Stats(ctx context.Context, userID int64, since time.Time) (*transaction.TransactionStats, error) {
	return s.txns.Stats(ctx, userID, since)
}

func buildReceipt(t *transaction.Transaction) *transaction.Receipt {
	r := &transaction.Receipt{
		Reference: t.Reference,
		Type:      string(t.Type),
		Status:    string(t.Status),
		Amount:    t.Amount,
		Charged:   t.SellingPrice,
		Confirmed: t.ProviderConfirmed,
		Date:      t.CreatedAt,
	}
	// Rows still carrying the in-progress reason read as pending to users.
	if t.InProgress() {
		r.Status = "PENDING"
	}
	if t.Network.Valid {
		r.Network = t.Network.String
	}
	if t.PhoneNumber.Valid {
		r.PhoneNumber = t.PhoneNumber.String
	}
	if t.Description.Valid {
		r.Description = t.Description.String
	}
	if t.Provider.Valid {
		r.Provider = t.Provider.String
	}
	return r
}
