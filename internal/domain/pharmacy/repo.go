package pharmacy

import (
	"context"
	"time"
)

type MedicineRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id int64) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f MedicineFilter, limit, offset int) ([]*Medicine, int, error)
	ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*Medicine, error)
	// AdjustStock adds delta to the stock, refusing to go below zero.
	AdjustStock(ctx context.Context, id int64, delta int) (*Medicine, error)
	// DecrementStock removes qty only when at least qty is on hand. It reports
	// false, without error, when the stock is short.
	DecrementStock(ctx context.Context, id int64, qty int) (bool, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	AddItem(ctx context.Context, item *PrescriptionItem) error
	GetByID(ctx context.Context, id int64) (*Prescription, error)
	// GetWithItems loads the prescription, its items in insertion order and
	// each item's medicine name and current stock.
	GetWithItems(ctx context.Context, id int64) (*Prescription, error)
	List(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error)
	// TransitionStatus moves the prescription to status `to` only if its
	// current status is one of from. It reports whether a row changed.
	TransitionStatus(ctx context.Context, id int64, to string, from ...string) (bool, error)
}

type DispensingRepository interface {
	Create(ctx context.Context, r *DispensingRecord) error
	List(ctx context.Context, f DispensingFilter, limit, offset int) ([]*DispensingRecord, int, error)
}
