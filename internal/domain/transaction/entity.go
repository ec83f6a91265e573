// internal/domain/transaction/entity.go
package transaction

import (
	"database/sql"
	"time"
)

type TransactionType string

const (
	TypeWalletFunding   TransactionType = "WALLET_FUNDING"
	TypeAirtime         TransactionType = "AIRTIME"
	TypeData            TransactionType = "DATA"
	TypeBill            TransactionType = "BILL"
	TypeKYCVerification TransactionType = "KYC_VERIFICATION"
)

// TransactionStatus is deliberately binary. A row is opened FAILED with
// ReasonInProgress and promoted to SUCCESS only once money has actually
// moved; a crash mid-flight therefore leaves a correct record behind.
type TransactionStatus string

const (
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

// ReasonInProgress marks a transaction row that was opened before the
// provider call and has not yet been resolved either way.
const ReasonInProgress = "Transaction in progress"

type Transaction struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	Type      TransactionType `json:"type" db:"type"`

	// Reference is the service-generated idempotency key; unique index.
	// ProviderRef is the upstream provider's own reference for the event.
	Reference   string         `json:"reference" db:"reference"`
	ProviderRef sql.NullString `json:"provider_ref,omitempty" db:"provider_ref"`

	// Amount is the face value the user asked for. SellingPrice is what
	// the wallet was debited (or credited, for funding). Cost is what the
	// provider charged us; Margin = SellingPrice - Cost.
	Amount       float64 `json:"amount" db:"amount"`
	SellingPrice float64 `json:"selling_price" db:"selling_price"`
	Cost         float64 `json:"cost" db:"cost"`
	Margin       float64 `json:"margin" db:"margin"`

	Network     sql.NullString `json:"network,omitempty" db:"network"`
	PlanID      sql.NullString `json:"plan_id,omitempty" db:"plan_id"`
	PhoneNumber sql.NullString `json:"phone_number,omitempty" db:"phone_number"`
	Description sql.NullString `json:"description,omitempty" db:"description"`

	Status        TransactionStatus `json:"status" db:"status"`
	FailureReason sql.NullString    `json:"failure_reason,omitempty" db:"failure_reason"`

	// Provider is which adapter actually vended ("monnify", "peyflex").
	Provider          sql.NullString         `json:"provider,omitempty" db:"provider"`
	ProviderConfirmed bool                   `json:"provider_confirmed" db:"provider_confirmed"`
	ProviderResponse  map[string]interface{} `json:"provider_response,omitempty" db:"provider_response"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// InProgress reports whether the row is an unresolved in-flight record.
func (t *Transaction) InProgress() bool {
	return t.Status == StatusFailed && t.FailureReason.Valid && t.FailureReason.String == ReasonInProgress
}

// CorporateRevenue records margin and fee income, one row per earning event.
type CorporateRevenue struct {
	ID          string    `json:"id" db:"id"` // uuid
	UserID      int64     `json:"user_id" db:"user_id"`
	Source      string    `json:"source" db:"source"` // vas_margin, deposit_fee, emergency_overage_reversal
	Amount      float64   `json:"amount" db:"amount"`
	Reference   string    `json:"reference" db:"reference"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type TagStatus string

const (
	TagPendingRecovery TagStatus = "PENDING_RECOVERY"
	TagCompleted       TagStatus = "COMPLETED"
)

// EmergencyPricingTag marks a purchase that was fulfilled at an abnormal
// provider cost so the overage can be compensated back to the user later.
type EmergencyPricingTag struct {
	ID               string       `json:"id" db:"id"` // uuid
	UserID           int64        `json:"user_id" db:"user_id"`
	Reference        string       `json:"reference" db:"reference"`
	Network          string       `json:"network" db:"network"`
	PlanID           string       `json:"plan_id" db:"plan_id"`
	EmergencyCost    float64      `json:"emergency_cost" db:"emergency_cost"`
	NormalCost       float64      `json:"normal_cost" db:"normal_cost"`
	Status           TagStatus    `json:"status" db:"status"`
	RecoveryDeadline time.Time    `json:"recovery_deadline" db:"recovery_deadline"`
	ProcessedAt      sql.NullTime `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
}

// Overage is the amount owed back to the user.
func (t *EmergencyPricingTag) Overage() float64 {
	over := t.EmergencyCost - t.NormalCost
	if over < 0 {
		return 0
	}
	return over
}

// PlanMismatchLog records a delivery where the provider vended a different
// plan than requested. Kept for investigation and possible refund.
type PlanMismatchLog struct {
	ID            string    `json:"id" db:"id"` // uuid
	UserID        int64     `json:"user_id" db:"user_id"`
	Reference     string    `json:"reference" db:"reference"`
	Network       string    `json:"network" db:"network"`
	RequestedPlan string    `json:"requested_plan" db:"requested_plan"`
	DeliveredPlan string    `json:"delivered_plan" db:"delivered_plan"`
	Provider      string    `json:"provider" db:"provider"`
	RequiresRefund bool     `json:"requires_refund" db:"requires_refund"`
	RequiresInvestigation bool `json:"requires_investigation" db:"requires_investigation"`
	// ProviderResponse is the raw vend response that exposed the mismatch,
	// kept for the investigation.
	ProviderResponse map[string]interface{} `json:"provider_response,omitempty" db:"provider_response"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type AnomalyStatus string

const (
	AnomalyOpen     AnomalyStatus = "OPEN"
	AnomalyResolved AnomalyStatus = "RESOLVED"
)

// ReconciliationAnomaly is raised when value was delivered but the wallet
// debit could not be applied. The user got service without paying; the row
// exists so finance can settle it manually.
type ReconciliationAnomaly struct {
	ID         string        `json:"id" db:"id"` // uuid
	UserID     int64         `json:"user_id" db:"user_id"`
	Reference  string        `json:"reference" db:"reference"`
	Amount     float64       `json:"amount" db:"amount"`
	Detail     string        `json:"detail" db:"detail"`
	Status     AnomalyStatus `json:"status" db:"status"`
	ResolvedAt sql.NullTime  `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

type TransactionStats struct {
	TotalTransactions int64   `json:"total_transactions"`
	Successful        int64   `json:"successful"`
	Failed            int64   `json:"failed"`
	TotalVolume       float64 `json:"total_volume"`
	SuccessRate       float64 `json:"success_rate"`
}
