package purchase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"vaspay-service/internal/domain/notification"
	"vaspay-service/internal/domain/pricing"
	"vaspay-service/internal/domain/transaction"
	"vaspay-service/internal/domain/user"
	"vaspay-service/internal/domain/wallet"
	wsdomain "vaspay-service/internal/domain/websocket"
	xerrors "vaspay-service/internal/pkg/errors"
	"vaspay-service/internal/provider"
	"vaspay-service/internal/repository/postgres"

	"go.uber.org/zap"
)

// --- fakes ---

type fakeWallets struct {
	wallet *wallet.Wallet
	err    error
}

func (f *fakeWallets) FindByUserID(ctx context.Context, userID int64) (*wallet.Wallet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.wallet, nil
}

type fakeTxns struct {
	created    []*transaction.Transaction
	createErr  error
	inFlight   *transaction.Transaction
	failures   map[string]string
}

func (f *fakeTxns) Create(ctx context.Context, t *transaction.Transaction) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, t)
	return nil
}

func (f *fakeTxns) FindInFlight(ctx context.Context, userID int64, txnType transaction.TransactionType, sellingPrice float64, phoneNumber string, window time.Duration) (*transaction.Transaction, error) {
	if f.inFlight == nil {
		return nil, xerrors.ErrNotFound
	}
	return f.inFlight, nil
}

func (f *fakeTxns) MarkFailed(ctx context.Context, reference, reason string) error {
	if f.failures == nil {
		f.failures = make(map[string]string)
	}
	f.failures[reference] = reason
	return nil
}

type fakeSettler struct {
	params     []postgres.DebitAndPromoteParams
	newBalance float64
	err        error
}

func (f *fakeSettler) DebitAndPromote(ctx context.Context, p postgres.DebitAndPromoteParams) (float64, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return 0, f.err
	}
	return f.newBalance, nil
}

type fakeRecovery struct {
	tags       []*transaction.EmergencyPricingTag
	mismatches []*transaction.PlanMismatchLog
	anomalies  []*transaction.ReconciliationAnomaly
}

func (f *fakeRecovery) CreateTag(ctx context.Context, t *transaction.EmergencyPricingTag) error {
	f.tags = append(f.tags, t)
	return nil
}

func (f *fakeRecovery) CreateMismatch(ctx context.Context, m *transaction.PlanMismatchLog) error {
	f.mismatches = append(f.mismatches, m)
	return nil
}

func (f *fakeRecovery) CreateAnomaly(ctx context.Context, a *transaction.ReconciliationAnomaly) error {
	f.anomalies = append(f.anomalies, a)
	return nil
}

type fakeUsers struct{ tier string }

func (f *fakeUsers) FindByID(ctx context.Context, id int64) (*user.User, error) {
	tier := f.tier
	if tier == "" {
		tier = "basic"
	}
	return &user.User{ID: id, Email: "u@example.com", Tier: tier}, nil
}

type fakeOracle struct {
	quote pricing.Quote
	err   error
}

func (f *fakeOracle) Quote(ctx context.Context, svc pricing.ServiceType, network string, amount float64, tier, planID string) (pricing.Quote, error) {
	if f.err != nil {
		return pricing.Quote{}, f.err
	}
	return f.quote, nil
}

type fakeAdapter struct {
	name   string
	result *provider.Result
	err    error
	calls  int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Purchase(ctx context.Context, req provider.Request) (*provider.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeNotifier struct {
	sent []*notification.CreateNotificationRequest
}

func (f *fakeNotifier) CreateAndPush(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error) {
	f.sent = append(f.sent, req)
	return &notification.Notification{Title: req.Title}, nil
}

type fakePusher struct {
	updates []wsdomain.BalanceUpdateData
}

func (f *fakePusher) BroadcastBalanceUpdate(userID int64, data wsdomain.BalanceUpdateData) {
	f.updates = append(f.updates, data)
}

// --- harness ---

type harness struct {
	wallets  *fakeWallets
	txns     *fakeTxns
	settler  *fakeSettler
	recovery *fakeRecovery
	notifier *fakeNotifier
	pusher   *fakePusher
	oracle   *fakeOracle
	primary  *fakeAdapter
	fallback *fakeAdapter
	svc      *Service
}

func newHarness() *harness {
	h := &harness{
		wallets: &fakeWallets{wallet: &wallet.Wallet{
			UserID: 7, Balance: 10000, Currency: "NGN", Status: wallet.WalletStatusActive,
		}},
		txns:     &fakeTxns{},
		settler:  &fakeSettler{newBalance: 9500},
		recovery: &fakeRecovery{},
		notifier: &fakeNotifier{},
		pusher:   &fakePusher{},
		oracle:   &fakeOracle{quote: pricing.Quote{SellingPrice: 500, Cost: 495, Margin: 5, Strategy: "airtime_margin"}},
		primary: &fakeAdapter{name: "monnify", result: &provider.Result{
			Provider: "monnify", ProviderRef: "MNFY-1", Description: "MTN Airtime", VendAmount: 500,
		}},
		fallback: &fakeAdapter{name: "peyflex", result: &provider.Result{
			Provider: "peyflex", ProviderRef: "PFX-1", Description: "MTN Airtime", VendAmount: 500,
		}},
	}

	h.svc = NewService(
		h.wallets, h.txns, h.settler, h.recovery, &fakeUsers{}, h.oracle,
		[]provider.Adapter{h.primary, h.fallback},
		h.notifier, h.pusher,
		Config{
			AirtimeMinAmount:         100,
			AirtimeMaxAmount:         5000,
			DuplicateWindow:          5 * time.Minute,
			EmergencyMultiplier:      2.0,
			EmergencyThresholdFactor: 0.8,
			EmergencyRecoveryWindow:  24 * time.Hour,
			PlanAmountTolerance:      50,
		},
		zap.NewNop(),
	)
	return h
}

func airtimeInput() *transaction.BuyAirtimeInput {
	return &transaction.BuyAirtimeInput{Network: "MTN", Amount: 500, PhoneNumber: "08012345678"}
}

// --- tests ---

func TestBuyAirtime_HappyPath(t *testing.T) {
	h := newHarness()

	result, err := h.svc.BuyAirtime(context.Background(), 7, airtimeInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ledger row opened FAILED-in-progress before the vend.
	if len(h.txns.created) != 1 {
		t.Fatalf("created %d rows, want 1", len(h.txns.created))
	}
	row := h.txns.created[0]
	if row.Status != transaction.StatusFailed || !row.InProgress() {
		t.Errorf("row opened as %s/%v, want FAILED in-progress", row.Status, row.FailureReason)
	}
	if !strings.HasPrefix(row.Reference, "VASPAY_AIRTIME_7_") {
		t.Errorf("reference = %q", row.Reference)
	}

	// Settlement promoted the same reference with the primary's result.
	if len(h.settler.params) != 1 {
		t.Fatalf("settler called %d times, want 1", len(h.settler.params))
	}
	p := h.settler.params[0]
	if p.Reference != row.Reference || p.Provider != "monnify" || p.SellingPrice != 500 || p.Margin != 5 {
		t.Errorf("unexpected settle params: %+v", p)
	}

	if result.NewBalance != 9500 || result.Provider != "monnify" {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(h.pusher.updates) != 1 || h.pusher.updates[0].Balance != 9500 {
		t.Errorf("balance push missing or wrong: %+v", h.pusher.updates)
	}
	if len(h.txns.failures) != 0 {
		t.Errorf("unexpected failure marks: %v", h.txns.failures)
	}
}

func TestBuyAirtime_FailoverOrder(t *testing.T) {
	h := newHarness()
	h.primary.err = &provider.Error{Provider: "monnify", Code: "HTTP_500", Message: "down"}

	result, err := h.svc.BuyAirtime(context.Background(), 7, airtimeInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.primary.calls != 1 || h.fallback.calls != 1 {
		t.Errorf("calls: primary=%d fallback=%d, want 1/1", h.primary.calls, h.fallback.calls)
	}
	if result.Provider != "peyflex" {
		t.Errorf("provider = %q, want peyflex", result.Provider)
	}
}

func TestBuyAirtime_BothProvidersFail_NoDebit(t *testing.T) {
	h := newHarness()
	h.primary.err = &provider.Error{Provider: "monnify", Message: "down"}
	h.fallback.err = &provider.Error{Provider: "peyflex", Message: "also down"}

	_, err := h.svc.BuyAirtime(context.Background(), 7, airtimeInput())
	if !errors.Is(err, xerrors.ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}

	if len(h.settler.params) != 0 {
		t.Error("wallet must not be debited when no provider delivered")
	}

	ref := h.txns.created[0].Reference
	reason, ok := h.txns.failures[ref]
	if !ok {
		t.Fatal("failure reason not recorded")
	}
	if !strings.Contains(reason, "monnify") || !strings.Contains(reason, "peyflex") {
		t.Errorf("failure reason should name both providers: %q", reason)
	}
	if len(h.pusher.updates) != 0 {
		t.Error("no balance push expected on failure")
	}
}

func TestBuyAirtime_DuplicateInFlight(t *testing.T) {
	h := newHarness()
	h.txns.inFlight = &transaction.Transaction{Reference: "VASPAY_AIRTIME_7_1_X"}

	_, err := h.svc.BuyAirtime(context.Background(), 7, airtimeInput())
	if !errors.Is(err, xerrors.ErrDuplicateRequest) {
		t.Fatalf("error = %v, want ErrDuplicateRequest", err)
	}
	if len(h.txns.created) != 0 {
		t.Error("no ledger row should be opened for a duplicate")
	}
	if h.primary.calls != 0 {
		t.Error("provider must not be called for a duplicate")
	}
}

func TestBuyAirtime_DuplicateReference(t *testing.T) {
	h := newHarness()
	h.txns.createErr = xerrors.ErrDuplicateEntry

	_, err := h.svc.BuyAirtime(context.Background(), 7, airtimeInput())
	if !errors.Is(err, xerrors.ErrDuplicateRequest) {
		t.Fatalf("error = %v, want ErrDuplicateRequest", err)
	}
	if h.primary.calls != 0 {
		t.Error("provider must not be called when the insert conflicts")
	}
}

func TestBuyAirtime_InsufficientBalance_NoVend(t *testing.T) {
	h := newHarness()
	h.wallets.wallet.Balance = 100

	_, err := h.svc.BuyAirtime(context.Background(), 7, airtimeInput())
	if !errors.Is(err, xerrors.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
	if len(h.txns.created) != 0 || h.primary.calls != 0 || len(h.settler.params) != 0 {
		t.Error("nothing should happen on a short balance")
	}
}

func TestBuyAirtime_SuspendedWallet(t *testing.T) {
	h := newHarness()
	h.wallets.wallet.Status = wallet.WalletStatusSuspended

	_, err := h.svc.BuyAirtime(context.Background(), 7, airtimeInput())
	if !errors.Is(err, xerrors.ErrWalletSuspended) {
		t.Fatalf("error = %v, want ErrWalletSuspended", err)
	}
}

func TestBuyAirtime_AmountBounds(t *testing.T) {
	h := newHarness()

	for _, amount := range []float64{50, 6000} {
		input := airtimeInput()
		input.Amount = amount
		_, err := h.svc.BuyAirtime(context.Background(), 7, input)
		if !errors.Is(err, xerrors.ErrInvalidInput) {
			t.Errorf("amount %v: error = %v, want ErrInvalidInput", amount, err)
		}
	}
}

func TestBuyAirtime_EmergencyPricingTagged(t *testing.T) {
	h := newHarness()
	// Expected normal cost for a 500 airtime vend is 495; a quote cost of
	// 900 clears the 0.8 * 2x threshold (792).
	h.oracle.quote = pricing.Quote{SellingPrice: 500, Cost: 900, Margin: 0}

	_, err := h.svc.BuyAirtime(context.Background(), 7, airtimeInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.recovery.tags) != 1 {
		t.Fatalf("tags = %d, want 1", len(h.recovery.tags))
	}
	tag := h.recovery.tags[0]
	if tag.Status != transaction.TagPendingRecovery {
		t.Errorf("tag status = %s, want PENDING_RECOVERY", tag.Status)
	}
	if tag.EmergencyCost != 900 || tag.NormalCost != 495 {
		t.Errorf("tag costs = %v/%v", tag.EmergencyCost, tag.NormalCost)
	}
	if tag.RecoveryDeadline.Before(time.Now()) {
		t.Error("recovery deadline should be in the future")
	}
	if len(h.notifier.sent) != 1 {
		t.Errorf("expected emergency pricing notification, got %d", len(h.notifier.sent))
	}
}

func TestBuyAirtime_SettlementFailureEscalates(t *testing.T) {
	h := newHarness()
	h.settler.err = xerrors.ErrInsufficientBalance

	_, err := h.svc.BuyAirtime(context.Background(), 7, airtimeInput())
	if !errors.Is(err, xerrors.ErrInternal) {
		t.Fatalf("error = %v, want ErrInternal", err)
	}

	if len(h.recovery.anomalies) != 1 {
		t.Fatalf("anomalies = %d, want 1", len(h.recovery.anomalies))
	}
	a := h.recovery.anomalies[0]
	if a.Amount != 500 || a.UserID != 7 {
		t.Errorf("unexpected anomaly: %+v", a)
	}

	ref := h.txns.created[0].Reference
	if _, ok := h.txns.failures[ref]; !ok {
		t.Error("row should carry the settlement failure reason")
	}
	if len(h.pusher.updates) != 0 {
		t.Error("no balance push after failed settlement")
	}
}

func TestBuyData_PlanMismatchTriggersFailover(t *testing.T) {
	h := newHarness()
	h.oracle.quote = pricing.Quote{SellingPrice: 300, Cost: 294, Margin: 0, Strategy: "data_face_value"}
	// Primary delivers the wrong bundle; fallback delivers the right one.
	h.primary.result = &provider.Result{
		Provider: "monnify", Description: "MTN 2GB Monthly", VendAmount: 600,
		Raw: map[string]interface{}{"planName": "MTN 2GB Monthly"},
	}
	h.fallback.result = &provider.Result{Provider: "peyflex", Description: "MTN 1GB 30 days", VendAmount: 300}

	result, err := h.svc.BuyData(context.Background(), 7, &transaction.BuyDataInput{
		Network: "MTN", PlanID: "MTN-1GB-30D", Amount: 300, PhoneNumber: "08012345678",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Provider != "peyflex" {
		t.Errorf("provider = %q, want fallback after mismatch", result.Provider)
	}
	if len(h.recovery.mismatches) != 1 {
		t.Fatalf("mismatches = %d, want 1", len(h.recovery.mismatches))
	}
	m := h.recovery.mismatches[0]
	if m.Provider != "monnify" || !m.RequiresRefund || !m.RequiresInvestigation {
		t.Errorf("unexpected mismatch log: %+v", m)
	}
	if m.ProviderResponse == nil {
		t.Error("mismatch log must carry the raw provider response")
	}

	// The user is told the delivered plan is under review.
	var alerted bool
	for _, n := range h.notifier.sent {
		if n.Title == "Data Plan Issue Detected" {
			alerted = true
		}
	}
	if !alerted {
		t.Error("mismatch must notify the user that it is under review")
	}
}

func TestBuyData_AllMismatched_NoDebit(t *testing.T) {
	h := newHarness()
	h.oracle.quote = pricing.Quote{SellingPrice: 300, Cost: 294, Margin: 0}
	h.primary.result = &provider.Result{Provider: "monnify", Description: "MTN 2GB Monthly", VendAmount: 600}
	h.fallback.result = &provider.Result{Provider: "peyflex", Description: "Glo 5GB", VendAmount: 900}

	_, err := h.svc.BuyData(context.Background(), 7, &transaction.BuyDataInput{
		Network: "MTN", PlanID: "MTN-1GB-30D", Amount: 300, PhoneNumber: "08012345678",
	})
	if !errors.Is(err, xerrors.ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}
	if len(h.settler.params) != 0 {
		t.Error("no debit when every delivery mismatched")
	}
	if len(h.recovery.mismatches) != 2 {
		t.Errorf("mismatches = %d, want 2", len(h.recovery.mismatches))
	}

	var alerts int
	for _, n := range h.notifier.sent {
		if n.Title == "Data Plan Issue Detected" {
			alerts++
		}
	}
	if alerts != 2 {
		t.Errorf("mismatch alerts = %d, want one per mismatched delivery", alerts)
	}
}
