package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"vaspay-service/internal/domain/notification"
	"vaspay-service/internal/domain/transaction"
	"vaspay-service/internal/domain/user"
	wsdomain "vaspay-service/internal/domain/websocket"
	xerrors "vaspay-service/internal/pkg/errors"
	"vaspay-service/internal/repository/postgres"

	"go.uber.org/zap"
)

const testSecret = "webhook-secret"

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type fakeTxns struct {
	byRef     map[string]*transaction.Transaction
	confirmed []string
}

func (f *fakeTxns) FindByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	if t, ok := f.byRef[reference]; ok {
		return t, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeTxns) FindByProviderRef(ctx context.Context, providerRef string) (*transaction.Transaction, error) {
	for _, t := range f.byRef {
		if t.ProviderRef.Valid && t.ProviderRef.String == providerRef {
			return t, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeTxns) MarkConfirmed(ctx context.Context, reference string) error {
	f.confirmed = append(f.confirmed, reference)
	return nil
}

type fakeLedger struct {
	credits    []postgres.CreditParams
	newBalance float64
	err        error
}

func (f *fakeLedger) Credit(ctx context.Context, p postgres.CreditParams) (float64, error) {
	f.credits = append(f.credits, p)
	if f.err != nil {
		return 0, f.err
	}
	return f.newBalance, nil
}

type fakeUsers struct {
	byID    map[int64]*user.User
	byEmail map[string]*user.User
}

func (f *fakeUsers) FindByID(ctx context.Context, id int64) (*user.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, xerrors.ErrNotFound
}

type fakeNotifier struct {
	sent []*notification.CreateNotificationRequest
}

func (f *fakeNotifier) CreateAndPush(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error) {
	f.sent = append(f.sent, req)
	return &notification.Notification{}, nil
}

type fakePusher struct {
	updates []wsdomain.BalanceUpdateData
}

func (f *fakePusher) BroadcastBalanceUpdate(userID int64, data wsdomain.BalanceUpdateData) {
	f.updates = append(f.updates, data)
}

type harness struct {
	txns     *fakeTxns
	ledger   *fakeLedger
	users    *fakeUsers
	notifier *fakeNotifier
	pusher   *fakePusher
	svc      *Service
}

func newHarness() *harness {
	h := &harness{
		txns:   &fakeTxns{byRef: map[string]*transaction.Transaction{}},
		ledger: &fakeLedger{newBalance: 5470},
		users: &fakeUsers{
			byID: map[int64]*user.User{
				7: {ID: 7, Email: "basic@example.com", Tier: "basic"},
				9: {ID: 9, Email: "premium@example.com", Tier: "premium"},
			},
			byEmail: map[string]*user.User{
				"basic@example.com": {ID: 7, Email: "basic@example.com", Tier: "basic"},
			},
		},
		notifier: &fakeNotifier{},
		pusher:   &fakePusher{},
	}
	h.svc = NewService(h.txns, h.ledger, h.users, h.notifier, h.pusher, Config{
		Secret:     testSecret,
		DepositFee: 30,
	}, zap.NewNop())
	return h
}

func depositBody(t *testing.T, accountRef string, amount float64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"eventType": "SUCCESSFUL_TRANSACTION",
		"eventData": map[string]interface{}{
			"amountPaid":           amount,
			"transactionReference": "MNFY-DEP-1",
			"paymentReference":     "PAY-1",
			"customer":             map[string]interface{}{"email": "basic@example.com"},
			"product":              map[string]interface{}{"type": "RESERVED_ACCOUNT", "reference": accountRef},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestProcess_InvalidSignature(t *testing.T) {
	h := newHarness()
	body := depositBody(t, "VASPAY7", 1000)

	_, err := h.svc.Process(context.Background(), body, "deadbeef")
	if !errors.Is(err, xerrors.ErrSignatureInvalid) {
		t.Fatalf("error = %v, want ErrSignatureInvalid", err)
	}
	if len(h.ledger.credits) != 0 {
		t.Error("no credit on a forged webhook")
	}
}

func TestProcess_DepositWithFee(t *testing.T) {
	h := newHarness()
	body := depositBody(t, "VASPAY7", 5500)

	ack, err := h.svc.Process(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ack.Processed {
		t.Errorf("ack = %+v, want processed", ack)
	}

	if len(h.ledger.credits) != 1 {
		t.Fatalf("credits = %d, want 1", len(h.ledger.credits))
	}
	c := h.ledger.credits[0]
	if c.UserID != 7 || c.GrossAmount != 5500 || c.Fee != 30 {
		t.Errorf("unexpected credit params: %+v", c)
	}
	if c.Reference != "MNFY-DEP-1" {
		t.Errorf("reference = %q, want provider reference", c.Reference)
	}

	if len(h.pusher.updates) != 1 || h.pusher.updates[0].Balance != 5470 {
		t.Errorf("balance push missing or wrong: %+v", h.pusher.updates)
	}
	if len(h.notifier.sent) != 1 {
		t.Errorf("notifications = %d, want 1", len(h.notifier.sent))
	}
}

func TestProcess_PremiumFeeWaived(t *testing.T) {
	h := newHarness()
	body := depositBody(t, "VASPAY9", 1000)

	_, err := h.svc.Process(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ledger.credits[0].Fee != 0 {
		t.Errorf("fee = %v, want waived for premium", h.ledger.credits[0].Fee)
	}
}

func TestProcess_DuplicateDeliveryAcked(t *testing.T) {
	h := newHarness()
	h.ledger.err = xerrors.ErrDuplicateEntry
	body := depositBody(t, "VASPAY7", 1000)

	ack, err := h.svc.Process(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("duplicate delivery must ack, got error: %v", err)
	}
	if ack.Message != "Already processed" {
		t.Errorf("message = %q", ack.Message)
	}
	if len(h.pusher.updates) != 0 {
		t.Error("no balance push for a duplicate")
	}
}

func TestProcess_PurchaseConfirmation(t *testing.T) {
	h := newHarness()
	h.txns.byRef["VASPAY_AIRTIME_7_1_ABCDEFGH"] = &transaction.Transaction{
		Reference: "VASPAY_AIRTIME_7_1_ABCDEFGH",
		Type:      transaction.TypeAirtime,
	}
	body, _ := json.Marshal(map[string]interface{}{
		"eventType": "SUCCESSFUL_TRANSACTION",
		"eventData": map[string]interface{}{
			"amountPaid":           500,
			"transactionReference": "VASPAY_AIRTIME_7_1_ABCDEFGH",
		},
	})

	ack, err := h.svc.Process(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.Message != "Purchase confirmation processed" {
		t.Errorf("message = %q", ack.Message)
	}
	if len(h.txns.confirmed) != 1 || h.txns.confirmed[0] != "VASPAY_AIRTIME_7_1_ABCDEFGH" {
		t.Errorf("confirmed = %v", h.txns.confirmed)
	}
	// The confirmation must never be treated as an inbound deposit.
	if len(h.ledger.credits) != 0 {
		t.Error("purchase confirmation must not credit the wallet")
	}
}

func TestProcess_PurchaseConfirmationByProviderRef(t *testing.T) {
	h := newHarness()
	h.txns.byRef["VASPAY_AIRTIME_7_1_ABCDEFGH"] = &transaction.Transaction{
		UserID:      7,
		Reference:   "VASPAY_AIRTIME_7_1_ABCDEFGH",
		Type:        transaction.TypeAirtime,
		ProviderRef: sql.NullString{String: "MNFY|20240101|000123", Valid: true},
	}
	// The provider's confirmation carries its own transaction reference,
	// not ours, and a resolvable customer email.
	body, _ := json.Marshal(map[string]interface{}{
		"eventType": "SUCCESSFUL_TRANSACTION",
		"eventData": map[string]interface{}{
			"amountPaid":           500,
			"transactionReference": "MNFY|20240101|000123",
			"customer":             map[string]interface{}{"email": "basic@example.com"},
		},
	})

	ack, err := h.svc.Process(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.Message != "Purchase confirmation processed" {
		t.Errorf("message = %q", ack.Message)
	}
	if len(h.txns.confirmed) != 1 || h.txns.confirmed[0] != "VASPAY_AIRTIME_7_1_ABCDEFGH" {
		t.Errorf("confirmed = %v, want the internal reference of the matched row", h.txns.confirmed)
	}
	// Routing this into the funding path would refund the user their own
	// purchase.
	if len(h.ledger.credits) != 0 {
		t.Error("confirmation matched by provider ref must not credit the wallet")
	}
}

func TestProcess_BlankReferenceGetsDerivedKey(t *testing.T) {
	h := newHarness()
	deposit := func(amount float64) []byte {
		body, _ := json.Marshal(map[string]interface{}{
			"eventType": "SUCCESSFUL_TRANSACTION",
			"eventData": map[string]interface{}{
				"amountPaid": amount,
				"product":    map[string]interface{}{"type": "RESERVED_ACCOUNT", "reference": "VASPAY7"},
			},
		})
		return body
	}

	first := deposit(1000)
	if _, err := h.svc.Process(context.Background(), first, sign(first)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := deposit(2000)
	if _, err := h.svc.Process(context.Background(), second, sign(second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.ledger.credits) != 2 {
		t.Fatalf("credits = %d, want 2", len(h.ledger.credits))
	}
	refA, refB := h.ledger.credits[0].Reference, h.ledger.credits[1].Reference
	if refA == "" || refB == "" {
		t.Fatal("blank-reference deposits must get a derived key")
	}
	// Distinct events must not collide on the derived key; redelivery of
	// the same body must reproduce it so the unique index can dedupe.
	if refA == refB {
		t.Errorf("distinct events derived the same key %q", refA)
	}
	if _, err := h.svc.Process(context.Background(), first, sign(first)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ledger.credits[2].Reference != refA {
		t.Errorf("redelivered event derived %q, want %q", h.ledger.credits[2].Reference, refA)
	}
}

func TestProcess_FlatFormat(t *testing.T) {
	h := newHarness()
	body, _ := json.Marshal(map[string]interface{}{
		"paymentStatus":        "PAID",
		"completed":            true,
		"accountReference":     "VASPAY 7",
		"amountPaid":           2000,
		"transactionReference": "MNFY-FLAT-1",
	})

	ack, err := h.svc.Process(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ack.Processed {
		t.Errorf("ack = %+v", ack)
	}
	if h.ledger.credits[0].UserID != 7 {
		t.Errorf("user = %d, want 7 parsed from spaced account reference", h.ledger.credits[0].UserID)
	}
}

func TestProcess_EmailFallback(t *testing.T) {
	h := newHarness()
	body, _ := json.Marshal(map[string]interface{}{
		"eventType": "SUCCESSFUL_TRANSACTION",
		"eventData": map[string]interface{}{
			"amountPaid":           1500,
			"transactionReference": "MNFY-EMAIL-1",
			"customer":             map[string]interface{}{"email": "basic@example.com"},
		},
	})

	_, err := h.svc.Process(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ledger.credits[0].UserID != 7 {
		t.Errorf("user = %d, want 7 via email fallback", h.ledger.credits[0].UserID)
	}
}

func TestProcess_UnmatchedAcked(t *testing.T) {
	h := newHarness()
	body, _ := json.Marshal(map[string]interface{}{
		"eventType": "SUCCESSFUL_TRANSACTION",
		"eventData": map[string]interface{}{
			"amountPaid":           1000,
			"transactionReference": "MNFY-ORPHAN-1",
			"customer":             map[string]interface{}{"email": "stranger@example.com"},
		},
	})

	ack, err := h.svc.Process(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("unmatched webhook must still ack, got %v", err)
	}
	if ack.Processed {
		t.Error("unmatched webhook must not be marked processed")
	}
	if len(h.ledger.credits) != 0 {
		t.Error("no credit without an attributed user")
	}
}

func TestProcess_ZeroAmountIgnored(t *testing.T) {
	h := newHarness()
	body := depositBody(t, "VASPAY7", 0)

	ack, err := h.svc.Process(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.Processed || ack.Message != "Zero amount ignored" {
		t.Errorf("ack = %+v", ack)
	}
}

func TestProcess_NotPaidAcked(t *testing.T) {
	h := newHarness()
	body, _ := json.Marshal(map[string]interface{}{
		"paymentStatus": "PENDING",
		"completed":     false,
	})

	ack, err := h.svc.Process(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.Processed {
		t.Error("incomplete payment must not process")
	}
}

func TestProcess_AmountBelowFee(t *testing.T) {
	h := newHarness()
	body := depositBody(t, "VASPAY7", 20)

	_, err := h.svc.Process(context.Background(), body, sign(body))
	if !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
	if len(h.ledger.credits) != 0 {
		t.Error("no credit when the fee exceeds the deposit")
	}
}
