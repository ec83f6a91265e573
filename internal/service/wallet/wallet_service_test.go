package wallet

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"vaspay-service/internal/domain/transaction"
	walletdomain "vaspay-service/internal/domain/wallet"
	xerrors "vaspay-service/internal/pkg/errors"

	"go.uber.org/zap"
)

type fakeWallets struct {
	byUser    map[int64]*walletdomain.Wallet
	createErr error
}

func (f *fakeWallets) Create(ctx context.Context, w *walletdomain.Wallet) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.byUser[w.UserID] = w
	return nil
}

func (f *fakeWallets) FindByUserID(ctx context.Context, userID int64) (*walletdomain.Wallet, error) {
	if w, ok := f.byUser[userID]; ok {
		return w, nil
	}
	return nil, xerrors.ErrWalletNotFound
}

type fakeTxns struct {
	byID  map[int64]*transaction.Transaction
	byRef map[string]*transaction.Transaction
	list  []transaction.Transaction
}

func (f *fakeTxns) FindByID(ctx context.Context, userID, id int64) (*transaction.Transaction, error) {
	if t, ok := f.byID[id]; ok && t.UserID == userID {
		return t, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeTxns) FindByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	if t, ok := f.byRef[reference]; ok {
		return t, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeTxns) List(ctx context.Context, userID int64, filters transaction.ListFilters) ([]transaction.Transaction, int64, error) {
	return f.list, int64(len(f.list)), nil
}

func (f *fakeTxns) Stats(ctx context.Context, userID int64, since time.Time) (*transaction.TransactionStats, error) {
	return &transaction.TransactionStats{}, nil
}

func newService() (*Service, *fakeWallets, *fakeTxns) {
	w := &fakeWallets{byUser: map[int64]*walletdomain.Wallet{}}
	t := &fakeTxns{byID: map[int64]*transaction.Transaction{}, byRef: map[string]*transaction.Transaction{}}
	return NewService(w, t, zap.NewNop()), w, t
}

func TestProvision_SetsAccountReference(t *testing.T) {
	svc, _, _ := newService()

	w, err := svc.Provision(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.AccountReference.Valid || w.AccountReference.String != "VASPAY7" {
		t.Errorf("account reference = %+v, want VASPAY7", w.AccountReference)
	}
	if w.Status != walletdomain.WalletStatusActive || w.Currency != "NGN" {
		t.Errorf("unexpected wallet defaults: %+v", w)
	}
}

func TestProvision_Idempotent(t *testing.T) {
	svc, wallets, _ := newService()
	existing := &walletdomain.Wallet{UserID: 7, Balance: 250, Currency: "NGN", Status: walletdomain.WalletStatusActive}
	wallets.byUser[7] = existing
	wallets.createErr = xerrors.ErrDuplicateEntry

	w, err := svc.Provision(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Balance != 250 {
		t.Errorf("expected the existing wallet back, got %+v", w)
	}
}

func TestBalance(t *testing.T) {
	svc, wallets, _ := newService()
	wallets.byUser[7] = &walletdomain.Wallet{UserID: 7, Balance: 1234.56, Currency: "NGN"}

	b, err := svc.Balance(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Balance != 1234.56 || b.Currency != "NGN" {
		t.Errorf("balance = %+v", b)
	}

	if _, err := svc.Balance(context.Background(), 99); !xerrors.Is(err, xerrors.ErrWalletNotFound) {
		t.Errorf("error = %v, want ErrWalletNotFound", err)
	}
}

func TestListTransactions_PaginationDefaults(t *testing.T) {
	svc, _, txns := newService()
	txns.list = make([]transaction.Transaction, 3)

	resp, err := svc.ListTransactions(context.Background(), 7, transaction.ListFilters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Page != 1 || resp.PageSize != 20 {
		t.Errorf("defaults not applied: page=%d size=%d", resp.Page, resp.PageSize)
	}
	if resp.Total != 3 || resp.TotalPages != 1 {
		t.Errorf("totals: %+v", resp)
	}
}

func TestReceipt_InProgressReadsAsPending(t *testing.T) {
	svc, _, txns := newService()
	txns.byID[42] = &transaction.Transaction{
		ID:            42,
		UserID:        7,
		Type:          transaction.TypeAirtime,
		Reference:     "VASPAY_AIRTIME_7_1_ABCDEFGH",
		Amount:        500,
		SellingPrice:  500,
		Status:        transaction.StatusFailed,
		FailureReason: sql.NullString{String: transaction.ReasonInProgress, Valid: true},
		Network:       sql.NullString{String: "MTN", Valid: true},
	}

	r, err := svc.Receipt(context.Background(), 7, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != "PENDING" {
		t.Errorf("status = %q, want PENDING for an in-progress row", r.Status)
	}
	if r.Network != "MTN" {
		t.Errorf("network = %q", r.Network)
	}
}

func TestReceiptByReference(t *testing.T) {
	svc, _, txns := newService()
	txns.byRef["VASPAY_DATA_7_1_ABCDEFGH"] = &transaction.Transaction{
		ID:        43,
		UserID:    7,
		Type:      transaction.TypeData,
		Reference: "VASPAY_DATA_7_1_ABCDEFGH",
		Amount:    1000,
		Status:    transaction.StatusSuccess,
	}

	r, err := svc.ReceiptByReference(context.Background(), 7, "VASPAY_DATA_7_1_ABCDEFGH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Reference != "VASPAY_DATA_7_1_ABCDEFGH" || r.Status != string(transaction.StatusSuccess) {
		t.Errorf("receipt = %+v", r)
	}

	// Another user's reference must not resolve.
	if _, err := svc.ReceiptByReference(context.Background(), 8, "VASPAY_DATA_7_1_ABCDEFGH"); !xerrors.Is(err, xerrors.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}

	if _, err := svc.ReceiptByReference(context.Background(), 7, ""); !xerrors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput for empty reference", err)
	}
}

func TestReceipt_ScopedToOwner(t *testing.T) {
	svc, _, txns := newService()
	txns.byID[42] = &transaction.Transaction{ID: 42, UserID: 8, Reference: "R"}

	if _, err := svc.Receipt(context.Background(), 7, 42); !xerrors.Is(err, xerrors.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for another user's row", err)
	}
}
