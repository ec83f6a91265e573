// internal/service/purchase/purchase_service.go
package purchase

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"vaspay-service/internal/domain/notification"
	"vaspay-service/internal/domain/pricing"
	"vaspay-service/internal/domain/transaction"
	"vaspay-service/internal/domain/user"
	"vaspay-service/internal/domain/wallet"
	wsdomain "vaspay-service/internal/domain/websocket"
	xerrors "vaspay-service/internal/pkg/errors"
	"vaspay-service/internal/pkg/reqid"
	"vaspay-service/internal/provider"
	"vaspay-service/internal/repository/postgres"

	"go.uber.org/zap"
)

type WalletStore interface {
	FindByUserID(ctx context.Context, userID int64) (*wallet.Wallet, error)
}

type TransactionStore interface {
	Create(ctx context.Context, t *transaction.Transaction) error
	FindInFlight(ctx context.Context, userID int64, txnType transaction.TransactionType, sellingPrice float64, phoneNumber string, window time.Duration) (*transaction.Transaction, error)
	MarkFailed(ctx context.Context, reference, reason string) error
}

// Settler is the atomic post-vend settlement: wallet debit with balance
// guard plus status promotion, one database transaction.
type Settler interface {
	DebitAndPromote(ctx context.Context, p postgres.DebitAndPromoteParams) (float64, error)
}

type RecoveryStore interface {
	CreateTag(ctx context.Context, tag *transaction.EmergencyPricingTag) error
	CreateMismatch(ctx context.Context, m *transaction.PlanMismatchLog) error
	CreateAnomaly(ctx context.Context, a *transaction.ReconciliationAnomaly) error
}

type UserStore interface {
	FindByID(ctx context.Context, id int64) (*user.User, error)
}

type Notifier interface {
	CreateAndPush(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error)
}

type BalancePusher interface {
	BroadcastBalanceUpdate(userID int64, data wsdomain.BalanceUpdateData)
}

type Config struct {
	AirtimeMinAmount         float64
	AirtimeMaxAmount         float64
	DuplicateWindow          time.Duration
	EmergencyMultiplier      float64
	EmergencyThresholdFactor float64
	EmergencyRecoveryWindow  time.Duration
	PlanAmountTolerance      float64
}

// Service drives the purchase state machine: price, screen duplicates,
// open the ledger row FAILED-in-progress, vend with ordered failover,
// settle atomically, then the non-critical tail (push, tags, alerts).
type Service struct {
	wallets  WalletStore
	txns     TransactionStore
	settler  Settler
	recovery RecoveryStore
	users    UserStore
	oracle   pricing.Oracle
	adapters []provider.Adapter // strict failover order
	notifier Notifier
	pusher   BalancePusher
	cfg      Config
	logger   *zap.Logger
}

func NewService(
	wallets WalletStore,
	txns TransactionStore,
	settler Settler,
	recovery RecoveryStore,
	users UserStore,
	oracle pricing.Oracle,
	adapters []provider.Adapter,
	notifier Notifier,
	pusher BalancePusher,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		wallets:  wallets,
		txns:     txns,
		settler:  settler,
		recovery: recovery,
		users:    users,
		oracle:   oracle,
		adapters: adapters,
		notifier: notifier,
		pusher:   pusher,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *Service) BuyAirtime(ctx context.Context, userID int64, input *transaction.BuyAirtimeInput) (*transaction.PurchaseResult, error) {
	if input.Amount < s.cfg.AirtimeMinAmount || input.Amount > s.cfg.AirtimeMaxAmount {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput,
			fmt.Sprintf("amount must be between ₦%.0f and ₦%.0f", s.cfg.AirtimeMinAmount, s.cfg.AirtimeMaxAmount))
	}

	return s.execute(ctx, userID, purchaseSpec{
		txnType:     transaction.TypeAirtime,
		service:     pricing.ServiceAirtime,
		network:     strings.ToUpper(input.Network),
		amount:      input.Amount,
		phoneNumber: input.PhoneNumber,
	})
}

func (s *Service) BuyData(ctx context.Context, userID int64, input *transaction.BuyDataInput) (*transaction.PurchaseResult, error) {
	if input.PlanID == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "plan id is required")
	}

	return s.execute(ctx, userID, purchaseSpec{
		txnType:      transaction.TypeData,
		service:      pricing.ServiceData,
		network:      strings.ToUpper(input.Network),
		amount:       input.Amount,
		planID:       input.PlanID,
		phoneNumber:  input.PhoneNumber,
		validatePlan: true,
	})
}

func (s *Service) BuyBill(ctx context.Context, userID int64, input *transaction.BuyBillInput) (*transaction.PurchaseResult, error) {
	return s.execute(ctx, userID, purchaseSpec{
		txnType:     transaction.TypeBill,
		service:     pricing.ServiceBill,
		network:     strings.ToUpper(input.BillerCode),
		amount:      input.Amount,
		billerCode:  input.BillerCode,
		productCode: input.ProductCode,
		customerID:  input.CustomerID,
		phoneNumber: input.CustomerPhone,
	})
}

type purchaseSpec struct {
	txnType      transaction.TransactionType
	service      pricing.ServiceType
	network      string
	amount       float64
	planID       string
	billerCode   string
	productCode  string
	customerID   string
	phoneNumber  string
	validatePlan bool
}

func (s *Service) execute(ctx context.Context, userID int64, spec purchaseSpec) (*transaction.PurchaseResult, error) {
	tier := "basic"
	if u, err := s.users.FindByID(ctx, userID); err == nil {
		tier = u.Tier
	}

	quote, err := s.oracle.Quote(ctx, spec.service, spec.network, spec.amount, tier, spec.planID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, err.Error())
	}

	expected := pricing.ExpectedCost(spec.service, spec.amount)
	emergencyPricing := quote.Cost >= expected*s.cfg.EmergencyMultiplier*s.cfg.EmergencyThresholdFactor
	if emergencyPricing {
		s.logger.Warn("emergency pricing detected",
			zap.Int64("user_id", userID),
			zap.Float64("cost", quote.Cost),
			zap.Float64("expected", expected))
	}

	// Best-effort duplicate screen: a same-shaped in-flight purchase in
	// the window is almost always a double tap. The unique reference
	// index below remains the hard guarantee.
	if pending, err := s.txns.FindInFlight(ctx, userID, spec.txnType, quote.SellingPrice, spec.phoneNumber, s.cfg.DuplicateWindow); err == nil && pending != nil {
		s.logger.Warn("duplicate purchase blocked",
			zap.Int64("user_id", userID),
			zap.String("pending_reference", pending.Reference))
		return nil, xerrors.ErrDuplicateRequest
	}

	w, err := s.wallets.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !w.IsActive() {
		return nil, xerrors.ErrWalletSuspended
	}
	if w.Balance < quote.SellingPrice {
		return nil, xerrors.Wrap(xerrors.ErrInsufficientBalance,
			fmt.Sprintf("required ₦%.2f, available ₦%.2f", quote.SellingPrice, w.Balance))
	}

	// Open the ledger row before touching any provider. FAILED with the
	// in-progress reason: a crash from here on leaves a correct record,
	// never a stuck pending one.
	reference := reqid.New(userID, string(spec.txnType))
	txn := &transaction.Transaction{
		UserID:        userID,
		Type:          spec.txnType,
		Reference:     reference,
		Amount:        spec.amount,
		SellingPrice:  quote.SellingPrice,
		Cost:          quote.Cost,
		Margin:        quote.Margin,
		Status:        transaction.StatusFailed,
		FailureReason: sql.NullString{String: transaction.ReasonInProgress, Valid: true},
		Network:       sql.NullString{String: spec.network, Valid: spec.network != ""},
		PlanID:        sql.NullString{String: spec.planID, Valid: spec.planID != ""},
		PhoneNumber:   sql.NullString{String: spec.phoneNumber, Valid: spec.phoneNumber != ""},
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		if xerrors.Is(err, xerrors.ErrDuplicateEntry) {
			return nil, xerrors.ErrDuplicateRequest
		}
		return nil, err
	}

	result, vendErr := s.vend(ctx, userID, reference, spec)
	if vendErr != nil {
		if err := s.txns.MarkFailed(ctx, reference, vendErr.Error()); err != nil {
			s.logger.Error("failed to record vend failure", zap.String("reference", reference), zap.Error(err))
		}
		return nil, xerrors.Wrap(xerrors.ErrProvider, vendErr.Error())
	}

	newBalance, err := s.settler.DebitAndPromote(ctx, postgres.DebitAndPromoteParams{
		UserID:           userID,
		Reference:        reference,
		SellingPrice:     quote.SellingPrice,
		Cost:             quote.Cost,
		Margin:           quote.Margin,
		Provider:         result.Provider,
		ProviderRef:      result.ProviderRef,
		Description:      result.Description,
		ProviderResponse: result.Raw,
		RevenueSource:    "vas_margin",
		RevenueNote:      fmt.Sprintf("%s margin - %s", spec.txnType, spec.network),
	})
	if err != nil {
		// Value was delivered upstream but the debit did not commit. This
		// must never be silently retried: escalate a persisted anomaly
		// for manual settlement.
		s.escalateSettlementFailure(ctx, userID, reference, quote.SellingPrice, err)
		return nil, xerrors.Wrap(xerrors.ErrInternal, "purchase delivered but settlement failed; flagged for reconciliation")
	}

	s.pusher.BroadcastBalanceUpdate(userID, wsdomain.BalanceUpdateData{
		Balance:   newBalance,
		Currency:  w.Currency,
		Reference: reference,
		Reason:    "purchase",
	})

	if emergencyPricing {
		s.tagEmergency(ctx, userID, reference, spec, quote, expected)
	}

	s.logger.Info("purchase complete",
		zap.Int64("user_id", userID),
		zap.String("reference", reference),
		zap.String("type", string(spec.txnType)),
		zap.String("provider", result.Provider),
		zap.Float64("charged", quote.SellingPrice),
		zap.Float64("margin", quote.Margin))

	return &transaction.PurchaseResult{
		Reference:      reference,
		Status:         string(transaction.StatusSuccess),
		Provider:       result.Provider,
		Description:    result.Description,
		AmountCharged:  quote.SellingPrice,
		NewBalance:     newBalance,
		SavingsMessage: quote.SavingsMessage,
	}, nil
}

// vend tries each adapter in order and returns the first acceptable
// result. Provider errors and delivered-plan mismatches both count as a
// failed attempt; the combined trail becomes the failure reason when every
// adapter is exhausted.
func (s *Service) vend(ctx context.Context, userID int64, reference string, spec purchaseSpec) (*provider.Result, error) {
	req := provider.Request{
		Kind:        kindFor(spec.txnType),
		Network:     spec.network,
		Amount:      spec.amount,
		PlanID:      spec.planID,
		BillerCode:  spec.billerCode,
		ProductCode: spec.productCode,
		CustomerID:  spec.customerID,
		PhoneNumber: spec.phoneNumber,
		Reference:   reference,
	}

	var failures []string
	for _, adapter := range s.adapters {
		result, err := adapter.Purchase(ctx, req)
		if err != nil {
			s.logger.Warn("provider attempt failed",
				zap.String("provider", adapter.Name()),
				zap.String("reference", reference),
				zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", adapter.Name(), err))
			continue
		}

		if spec.validatePlan && !s.deliveredPlanMatches(spec, result) {
			s.logMismatch(ctx, userID, reference, spec, result)
			failures = append(failures, fmt.Sprintf("%s: plan mismatch, delivered %q", adapter.Name(), result.Description))
			continue
		}

		return result, nil
	}

	if len(failures) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	return nil, fmt.Errorf("all providers failed: %s", strings.Join(failures, "; "))
}

// deliveredPlanMatches checks that what the provider vended is the plan
// the user asked for: amount within tolerance and at least one shared
// plan key term.
func (s *Service) deliveredPlanMatches(spec purchaseSpec, result *provider.Result) bool {
	amountOK := math.Abs(result.VendAmount-spec.amount) <= s.cfg.PlanAmountTolerance
	nameOK := provider.SimilarPlanNames(spec.planID, result.Description)
	return amountOK && nameOK
}

func (s *Service) logMismatch(ctx context.Context, userID int64, reference string, spec purchaseSpec, result *provider.Result) {
	m := &transaction.PlanMismatchLog{
		UserID:                userID,
		Reference:             reference,
		Network:               spec.network,
		RequestedPlan:         spec.planID,
		DeliveredPlan:         fmt.Sprintf("%s (₦%.2f)", result.Description, result.VendAmount),
		Provider:              result.Provider,
		RequiresRefund:        true,
		RequiresInvestigation: true,
		ProviderResponse:      result.Raw,
	}
	if err := s.recovery.CreateMismatch(ctx, m); err != nil {
		s.logger.Error("failed to log plan mismatch", zap.String("reference", reference), zap.Error(err))
		return
	}

	s.logger.Warn("plan mismatch logged",
		zap.String("reference", reference),
		zap.String("requested", spec.planID),
		zap.String("delivered", result.Description),
		zap.String("provider", result.Provider))

	s.notify(ctx, userID, "Data Plan Issue Detected",
		fmt.Sprintf("The plan delivered for your %s data purchase did not match what you ordered. Our team is reviewing it and any difference owed will be refunded.", spec.network),
		notification.TypeAlert,
		map[string]interface{}{
			"reference":      reference,
			"requested_plan": spec.planID,
			"delivered_plan": result.Description,
			"provider":       result.Provider,
		})
}

func (s *Service) tagEmergency(ctx context.Context, userID int64, reference string, spec purchaseSpec, quote pricing.Quote, normalCost float64) {
	tag := &transaction.EmergencyPricingTag{
		UserID:           userID,
		Reference:        reference,
		Network:          spec.network,
		PlanID:           spec.planID,
		EmergencyCost:    quote.Cost,
		NormalCost:       normalCost,
		Status:           transaction.TagPendingRecovery,
		RecoveryDeadline: time.Now().Add(s.cfg.EmergencyRecoveryWindow),
	}
	if err := s.recovery.CreateTag(ctx, tag); err != nil {
		// Tagging must not fail the purchase; the ledger row is already SUCCESS.
		s.logger.Error("failed to tag emergency transaction", zap.String("reference", reference), zap.Error(err))
		return
	}

	s.notify(ctx, userID, "Emergency Pricing Used",
		fmt.Sprintf("Your %s purchase used emergency pricing during provider maintenance. Any overcharge will be adjusted automatically within %s.",
			spec.network, s.cfg.EmergencyRecoveryWindow),
		notification.TypeAlert,
		map[string]interface{}{"reference": reference, "emergency_cost": quote.Cost})
}

func (s *Service) escalateSettlementFailure(ctx context.Context, userID int64, reference string, amount float64, cause error) {
	s.logger.Error("post-vend settlement failed",
		zap.Int64("user_id", userID),
		zap.String("reference", reference),
		zap.Float64("amount", amount),
		zap.Error(cause))

	anomaly := &transaction.ReconciliationAnomaly{
		UserID:    userID,
		Reference: reference,
		Amount:    amount,
		Detail:    fmt.Sprintf("value delivered by provider but wallet debit failed: %v", cause),
	}
	if err := s.recovery.CreateAnomaly(ctx, anomaly); err != nil {
		s.logger.Error("failed to persist reconciliation anomaly",
			zap.String("reference", reference), zap.Error(err))
	}

	if err := s.txns.MarkFailed(ctx, reference, "settlement failed after vend; pending reconciliation"); err != nil {
		s.logger.Error("failed to update settlement failure reason",
			zap.String("reference", reference), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, userID int64, title, message string, ntype notification.NotificationType, metadata map[string]interface{}) {
	_, err := s.notifier.CreateAndPush(ctx, &notification.CreateNotificationRequest{
		IdentityID: userID,
		Title:      title,
		Message:    message,
		Type:       ntype,
		Metadata:   metadata,
	})
	if err != nil {
		s.logger.Warn("notification delivery failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func kindFor(t transaction.TransactionType) provider.Kind {
	switch t {
	case transaction.TypeData:
		return provider.KindData
	case transaction.TypeBill:
		return provider.KindBill
	default:
		return provider.KindAirtime
	}
}
