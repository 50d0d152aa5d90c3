package payment

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetByOrderRef(ctx context.Context, ref string) (*Payment, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Payment, int, error)
	// SetCheckout records the gateway and pay URL of a Pending payment. It
	// reports false when the payment is no longer Pending or a checkout with
	// another method already holds a pay URL.
	SetCheckout(ctx context.Context, id int64, method string, payURL *string) (bool, error)
	// Settle moves a Pending payment to status. It reports false when the
	// payment was no longer Pending.
	Settle(ctx context.Context, id int64, status string, txnID *string, paidAt *time.Time) (bool, error)
}
