// internal/domain/pricing/pricing.go
package pricing

import (
	"context"
	"fmt"
	"strings"
)

type ServiceType string

const (
	ServiceAirtime ServiceType = "AIRTIME"
	ServiceData    ServiceType = "DATA"
	ServiceBill    ServiceType = "BILL"
)

// Quote is what the purchase flow charges and records. The ledger treats
// it as opaque: it debits SellingPrice, records Cost, and books Margin as
// revenue, regardless of how the numbers were derived.
type Quote struct {
	SellingPrice   float64 `json:"selling_price"`
	Cost           float64 `json:"cost"`
	Margin         float64 `json:"margin"`
	Strategy       string  `json:"strategy"`
	SavingsMessage string  `json:"savings_message,omitempty"`
}

// Oracle prices a requested service for a user tier. Implementations may
// consult catalogs, caches, or remote services; callers only rely on the
// Quote contract.
type Oracle interface {
	Quote(ctx context.Context, svc ServiceType, network string, amount float64, tier string, planID string) (Quote, error)
}

// Engine is the default table-driven oracle: airtime carries a percentage
// margin, data and bills sell at face value with the discount taken on the
// cost side.
type Engine struct {
	AirtimeMarginRate float64 // user pays amount, cost = amount * (1 - rate)
	DataDiscountRate  float64 // user pays amount, cost = amount * (1 - rate)
	PremiumTiers      map[string]bool
}

func NewEngine() *Engine {
	return &Engine{
		AirtimeMarginRate: 0.01,
		DataDiscountRate:  0.02,
		PremiumTiers:      map[string]bool{"premium": true, "admin": true},
	}
}

func (e *Engine) Quote(ctx context.Context, svc ServiceType, network string, amount float64, tier string, planID string) (Quote, error) {
	if amount <= 0 {
		return Quote{}, fmt.Errorf("pricing: non-positive amount %.2f", amount)
	}

	switch svc {
	case ServiceAirtime:
		cost := amount * (1 - e.AirtimeMarginRate)
		return Quote{
			SellingPrice: amount,
			Cost:         cost,
			Margin:       amount - cost,
			Strategy:     "airtime_margin",
		}, nil
	case ServiceData:
		cost := amount * (1 - e.DataDiscountRate)
		q := Quote{
			SellingPrice: amount,
			Cost:         cost,
			Margin:       0, // data sells at face value; discount covers provider spread
			Strategy:     "data_face_value",
		}
		if e.PremiumTiers[strings.ToLower(tier)] {
			q.SavingsMessage = fmt.Sprintf("You saved ₦%.2f on this %s bundle", amount-cost, network)
		}
		return q, nil
	case ServiceBill:
		return Quote{
			SellingPrice: amount,
			Cost:         amount,
			Margin:       0,
			Strategy:     "bill_pass_through",
		}, nil
	default:
		return Quote{}, fmt.Errorf("pricing: unknown service type %q", svc)
	}
}

// ExpectedCost is the baseline used by emergency-pricing detection: what a
// vend of this face amount should roughly cost under normal conditions.
func ExpectedCost(svc ServiceType, amount float64) float64 {
	if svc == ServiceAirtime {
		return amount * 0.99
	}
	return amount
}
