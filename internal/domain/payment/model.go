package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MethodCash  = "CASH"
	MethodMoMo  = "MOMO"
	MethodVNPay = "VNPAY"
)

const (
	StatusPending   = "Pending"
	StatusPaid      = "Paid"
	StatusFailed    = "Failed"
	StatusCancelled = "Cancelled"
)

var validStatuses = map[string]bool{
	StatusPending:   true,
	StatusPaid:      true,
	StatusFailed:    true,
	StatusCancelled: true,
}

// Payment is a charge against a patient, settled in cash or through a
// wallet gateway. Amounts are in VND.
type Payment struct {
	ID           int64           `json:"id"`
	PatientID    int64           `json:"patient_id"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Method       string          `json:"method"`
	Status       string          `json:"status"`
	OrderRef     string          `json:"order_ref"`
	GatewayTxnID *string         `json:"gateway_txn_id,omitempty"`
	PayURL       *string         `json:"pay_url,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
}

type Filter struct {
	PatientID *int64
	Status    string
}

// Settlement is the outcome a gateway callback reports for an order.
type Settlement struct {
	// Gateway is the method whose callback reported the outcome.
	Gateway  string
	OrderRef string
	Amount   decimal.Decimal
	Success  bool
	TxnID    string
}
