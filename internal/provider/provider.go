// internal/provider/provider.go
package provider

import (
	"context"
	"fmt"
)

type Kind string

const (
	KindAirtime Kind = "AIRTIME"
	KindData    Kind = "DATA"
	KindBill    Kind = "BILL"
)

// Request is one vend attempt. Reference is the caller's idempotency key
// and doubles as the provider-side reference where the API accepts one.
type Request struct {
	Kind        Kind
	Network     string
	Amount      float64
	PlanID      string // data plans; caller-catalog identifier
	BillerCode  string // bill payments
	ProductCode string // bill payments
	CustomerID  string // bill payments (meter/smartcard number)
	PhoneNumber string
	Reference   string
}

// Result is a confirmed vend. VendAmount is what the provider says it
// charged; Description names the delivered product and feeds plan
// validation downstream.
type Result struct {
	Provider    string
	ProviderRef string
	VendRef     string
	Description string
	VendAmount  float64
	Raw         map[string]interface{}
}

// Adapter hides one upstream provider: its auth, catalog lookups, customer
// validation, and vend/requery flow. Failures come back as *Error so the
// orchestrator can tell expected provider trouble from bugs.
type Adapter interface {
	Name() string
	Purchase(ctx context.Context, req Request) (*Result, error)
}

// Error is the uniform provider failure. Raw transport and decode errors
// never cross the adapter boundary.
type Error struct {
	Provider string
	Code     string
	Message  string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func newError(provider, code, format string, args ...interface{}) *Error {
	return &Error{Provider: provider, Code: code, Message: fmt.Sprintf(format, args...)}
}
