// internal/service/webhook/webhook_service.go
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"vaspay-service/internal/domain/notification"
	"vaspay-service/internal/domain/transaction"
	"vaspay-service/internal/domain/user"
	wsdomain "vaspay-service/internal/domain/websocket"
	xerrors "vaspay-service/internal/pkg/errors"
	"vaspay-service/internal/pkg/reqid"
	"vaspay-service/internal/repository/postgres"

	"go.uber.org/zap"
)

type TransactionStore interface {
	FindByReference(ctx context.Context, reference string) (*transaction.Transaction, error)
	FindByProviderRef(ctx context.Context, providerRef string) (*transaction.Transaction, error)
	MarkConfirmed(ctx context.Context, reference string) error
}

// Crediter applies a wallet credit exactly once: the funding ledger row
// and the balance move commit together, and a duplicate reference
// surfaces as ErrDuplicateEntry before any money moves.
type Crediter interface {
	Credit(ctx context.Context, p postgres.CreditParams) (float64, error)
}

type UserStore interface {
	FindByID(ctx context.Context, id int64) (*user.User, error)
	FindByEmail(ctx context.Context, email string) (*user.User, error)
}

type Notifier interface {
	CreateAndPush(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error)
}

type BalancePusher interface {
	BroadcastBalanceUpdate(userID int64, data wsdomain.BalanceUpdateData)
}

type Config struct {
	Secret     string // shared secret for the HMAC-SHA512 signature
	DepositFee float64
}

// Ack is what goes back to the funding provider. The provider retries on
// anything other than a 2xx, so every handled outcome acknowledges; only
// a bad signature or an unprocessable amount is rejected.
type Ack struct {
	Processed bool   `json:"processed"`
	Message   string `json:"message"`
}

// Service consumes funding-provider webhooks: verifies the signature over
// the raw body, routes purchase confirmations to the existing ledger row,
// and credits deposits idempotently.
type Service struct {
	txns     TransactionStore
	ledger   Crediter
	users    UserStore
	notifier Notifier
	pusher   BalancePusher
	cfg      Config
	logger   *zap.Logger
}

func NewService(txns TransactionStore, ledger Crediter, users UserStore, notifier Notifier, pusher BalancePusher, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		txns:     txns,
		ledger:   ledger,
		users:    users,
		notifier: notifier,
		pusher:   pusher,
		cfg:      cfg,
		logger:   logger,
	}
}

// VerifySignature checks the HMAC-SHA512 hex digest of the raw request
// body against the provider-supplied header value in constant time.
func (s *Service) VerifySignature(rawBody []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(s.cfg.Secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// event is the decoded webhook payload. The provider has shipped two
// shapes over time: the classic envelope with everything under eventData,
// and a flat one with top-level fields. Both are accepted.
type event struct {
	EventType     string `json:"eventType"`
	PaymentStatus string `json:"paymentStatus"`
	Completed     bool   `json:"completed"`

	EventData *eventData `json:"eventData"`

	// Flat-format fields.
	AccountReference     string  `json:"accountReference"`
	AmountPaid           float64 `json:"amountPaid"`
	TransactionReference string  `json:"transactionReference"`
	PaymentReference     string  `json:"paymentReference"`
	CustomerEmail        string  `json:"customerEmail"`
}

type eventData struct {
	AmountPaid           float64 `json:"amountPaid"`
	TransactionReference string  `json:"transactionReference"`
	PaymentReference     string  `json:"paymentReference"`
	Customer             struct {
		Email string `json:"email"`
	} `json:"customer"`
	Product struct {
		Type      string `json:"type"`
		Reference string `json:"reference"`
	} `json:"product"`
}

func (e *event) shouldProcess() bool {
	return e.EventType == "SUCCESSFUL_TRANSACTION" ||
		(strings.EqualFold(e.PaymentStatus, "PAID") && e.Completed)
}

func (e *event) reference() string {
	if e.EventData != nil && e.EventData.TransactionReference != "" {
		return e.EventData.TransactionReference
	}
	if e.TransactionReference != "" {
		return e.TransactionReference
	}
	if e.EventData != nil && e.EventData.PaymentReference != "" {
		return e.EventData.PaymentReference
	}
	return e.PaymentReference
}

func (e *event) amount() float64 {
	if e.EventData != nil && e.EventData.AmountPaid > 0 {
		return e.EventData.AmountPaid
	}
	return e.AmountPaid
}

func (e *event) accountRef() string {
	if e.EventData != nil && e.EventData.Product.Type == "RESERVED_ACCOUNT" {
		return e.EventData.Product.Reference
	}
	return e.AccountReference
}

func (e *event) customerEmail() string {
	if e.EventData != nil && e.EventData.Customer.Email != "" {
		return e.EventData.Customer.Email
	}
	return e.CustomerEmail
}

// Process handles a verified webhook body. Signature verification happens
// first; everything after that acknowledges rather than errors, so the
// provider's retry loop is never fed a transient failure it can amplify.
func (s *Service) Process(ctx context.Context, rawBody []byte, signature string) (*Ack, error) {
	if !s.VerifySignature(rawBody, signature) {
		s.logger.Warn("webhook signature rejected")
		return nil, xerrors.ErrSignatureInvalid
	}

	var evt event
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrBadRequest, "malformed webhook payload")
	}

	if !evt.shouldProcess() {
		s.logger.Info("webhook acknowledged without processing",
			zap.String("event_type", evt.EventType),
			zap.String("payment_status", evt.PaymentStatus))
		return &Ack{Processed: false, Message: "Webhook received"}, nil
	}

	reference := evt.reference()

	// A successful-transaction event that maps onto one of our own
	// purchase rows is the provider confirming a vend, not new money
	// arriving. The provider echoes either our request reference or its
	// own transaction reference (stored as provider_ref at settlement),
	// so both are checked. Confirm the row and stop: crediting here would
	// refund the user their own purchase.
	if existing := s.findPurchase(ctx, reference); existing != nil {
		if err := s.txns.MarkConfirmed(ctx, existing.Reference); err != nil {
			s.logger.Error("failed to confirm purchase from webhook",
				zap.String("reference", existing.Reference), zap.Error(err))
		} else {
			s.logger.Info("purchase confirmed by provider webhook",
				zap.String("reference", existing.Reference),
				zap.String("webhook_reference", reference),
				zap.String("type", string(existing.Type)))
		}
		return &Ack{Processed: true, Message: "Purchase confirmation processed"}, nil
	}

	amount := evt.amount()
	if amount <= 0 {
		s.logger.Warn("webhook with zero amount ignored", zap.String("reference", reference))
		return &Ack{Processed: false, Message: "Zero amount ignored"}, nil
	}

	userID, ok := s.resolveUser(ctx, &evt)
	if !ok {
		// Acknowledge anyway: a 4xx would put the provider into a retry
		// loop for an event we will never be able to attribute.
		s.logger.Warn("webhook could not be matched to a user",
			zap.String("reference", reference),
			zap.String("account_reference", evt.accountRef()),
			zap.Error(xerrors.ErrUnmatchedWebhook))
		return &Ack{Processed: false, Message: "Acknowledged but unprocessed"}, nil
	}

	fee := s.depositFee(ctx, userID)
	net := amount - fee
	if net <= 0 {
		s.logger.Warn("deposit too small after fee",
			zap.Int64("user_id", userID),
			zap.Float64("amount", amount),
			zap.Float64("fee", fee))
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "amount too small to process")
	}

	if reference == "" {
		// No provider reference to dedupe on. Derive a stable key from the
		// body so redeliveries of the same event still collide on the
		// unique index instead of inserting a second blank-keyed row.
		sum := sha512.Sum512(rawBody)
		reference = "MNFY-EVT-" + strings.ToUpper(hex.EncodeToString(sum[:12]))
		s.logger.Warn("funding webhook without a reference, key derived from body",
			zap.Int64("user_id", userID),
			zap.String("reference", reference))
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(rawBody, &raw)

	newBalance, err := s.ledger.Credit(ctx, postgres.CreditParams{
		UserID:      userID,
		Reference:   reference,
		GrossAmount: amount,
		Fee:         fee,
		Description: "Wallet deposit via monnify",
		Provider:    "monnify",
		FeeSource:   "deposit_fee",
		Raw:         raw,
	})
	if err != nil {
		if xerrors.Is(err, xerrors.ErrDuplicateEntry) {
			s.logger.Info("duplicate deposit webhook ignored", zap.String("reference", reference))
			return &Ack{Processed: true, Message: "Already processed"}, nil
		}
		s.logger.Error("deposit credit failed",
			zap.Int64("user_id", userID),
			zap.String("reference", reference),
			zap.Error(err))
		return nil, err
	}

	s.pusher.BroadcastBalanceUpdate(userID, wsdomain.BalanceUpdateData{
		Balance:   newBalance,
		Currency:  "NGN",
		Reference: reference,
		Reason:    "deposit",
	})

	s.notify(ctx, userID, net, fee, newBalance, reference)

	s.logger.Info("wallet funded",
		zap.Int64("user_id", userID),
		zap.String("reference", reference),
		zap.Float64("paid", amount),
		zap.Float64("fee", fee),
		zap.Float64("credited", net),
		zap.Float64("new_balance", newBalance))

	return &Ack{Processed: true, Message: "Wallet funded successfully"}, nil
}

// findPurchase resolves a webhook reference to one of our own purchase
// rows, matching the internal request reference first and the provider's
// transaction reference second.
func (s *Service) findPurchase(ctx context.Context, reference string) *transaction.Transaction {
	if reference == "" {
		return nil
	}
	if t, err := s.txns.FindByReference(ctx, reference); err == nil && isPurchase(t.Type) {
		return t
	}
	if t, err := s.txns.FindByProviderRef(ctx, reference); err == nil && isPurchase(t.Type) {
		return t
	}
	return nil
}

// resolveUser attributes the deposit. The account reference on our
// reserved accounts encodes the user id; the payer email is the fallback
// for transfers that arrive without one.
func (s *Service) resolveUser(ctx context.Context, evt *event) (int64, bool) {
	if ref := evt.accountRef(); ref != "" {
		if id, ok := reqid.ParseAccountReference(ref); ok {
			return id, true
		}
	}
	if email := evt.customerEmail(); email != "" {
		if u, err := s.users.FindByEmail(ctx, email); err == nil {
			return u.ID, true
		}
	}
	return 0, false
}

// depositFee returns the flat deposit fee, waived for premium users. A
// failed user lookup charges the fee rather than waiving it.
func (s *Service) depositFee(ctx context.Context, userID int64) float64 {
	u, err := s.users.FindByID(ctx, userID)
	if err == nil && u.IsPremium() {
		return 0
	}
	return s.cfg.DepositFee
}

func (s *Service) notify(ctx context.Context, userID int64, credited, fee, newBalance float64, reference string) {
	message := fmt.Sprintf("₦%.2f added to your wallet. New balance: ₦%.2f", credited, newBalance)
	if fee > 0 {
		message += fmt.Sprintf(" (₦%.0f deposit fee applied)", fee)
	}
	_, err := s.notifier.CreateAndPush(ctx, &notification.CreateNotificationRequest{
		IdentityID: userID,
		Title:      "Wallet Funded Successfully",
		Message:    message,
		Type:       notification.TypeDeposit,
		Metadata: map[string]interface{}{
			"reference":   reference,
			"credited":    credited,
			"deposit_fee": fee,
			"received_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		s.logger.Warn("deposit notification failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func isPurchase(t transaction.TransactionType) bool {
	switch t {
	case transaction.TypeAirtime, transaction.TypeData, transaction.TypeBill:
		return true
	}
	return false
}
