// internal/domain/transaction/dto.go
package transaction

import "time"

type BuyAirtimeInput struct {
	Network     string  `json:"network" binding:"required"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	PhoneNumber string  `json:"phone_number" binding:"required"`
}

type BuyDataInput struct {
	Network     string  `json:"network" binding:"required"`
	PlanID      string  `json:"plan_id" binding:"required"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	PhoneNumber string  `json:"phone_number" binding:"required"`
}

type BuyBillInput struct {
	BillerCode     string  `json:"biller_code" binding:"required"`
	ProductCode    string  `json:"product_code" binding:"required"`
	Amount         float64 `json:"amount" binding:"required,gt=0"`
	CustomerID     string  `json:"customer_id" binding:"required"`
	CustomerPhone  string  `json:"customer_phone"`
}

// PurchaseResult is the handler-facing outcome of a vend attempt.
type PurchaseResult struct {
	Reference      string  `json:"reference"`
	Status         string  `json:"status"`
	Provider       string  `json:"provider,omitempty"`
	Description    string  `json:"description,omitempty"`
	AmountCharged  float64 `json:"amount_charged"`
	NewBalance     float64 `json:"new_balance"`
	SavingsMessage string  `json:"savings_message,omitempty"`
}

type ListFilters struct {
	Type     *TransactionType   `form:"type"`
	Status   *TransactionStatus `form:"status"`
	DateFrom *time.Time         `form:"date_from"`
	DateTo   *time.Time         `form:"date_to"`
	Page     int                `form:"page" binding:"min=1"`
	PageSize int                `form:"page_size" binding:"min=1,max=100"`
}

type ListResponse struct {
	Transactions []Transaction `json:"transactions"`
	Total        int64         `json:"total"`
	Page         int           `json:"page"`
	PageSize     int           `json:"page_size"`
	TotalPages   int           `json:"total_pages"`
}

// Receipt is the user-facing view of a completed transaction.
type Receipt struct {
	Reference   string    `json:"reference"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Amount      float64   `json:"amount"`
	Charged     float64   `json:"charged"`
	Network     string    `json:"network,omitempty"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Description string    `json:"description,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	Confirmed   bool      `json:"confirmed"`
	Date        time.Time `json:"date"`
}
