package pharmacy

import (
	"context"
	"errors"
)

// Dispense hands out every line item of a prescription on behalf of staffID.
//
// Preconditions are checked in order and the first failure is returned with
// nothing written: the prescription exists, it is not already Filled, it is
// not Cancelled or Expired, it has items, and stock covers every medicine for
// the total quantity prescribed of it (the first item at which a medicine runs
// short is reported, with the quantity needed up to that item).
//
// The writes then run in one transaction: a dispensing record and a stock
// decrement per item in stored order, then the flip to Filled. Both the
// decrement and the flip are conditional, so a concurrent dispense that got
// there first makes this one fail with InsufficientStockError or
// AlreadyDispensedError instead of overdrawing stock. Any other failure is a
// WriteError. Nothing is retried.
func (s *Service) Dispense(ctx context.Context, prescriptionID, staffID int64) ([]*DispensingRecord, error) {
	p, err := s.prescription.GetWithItems(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusFilled {
		return nil, &AlreadyDispensedError{PrescriptionID: p.ID}
	}
	if !p.Dispensable() {
		return nil, &PrescriptionInactiveError{PrescriptionID: p.ID, Status: p.Status}
	}
	if len(p.Items) == 0 {
		return nil, ErrNoItems
	}
	need := make(map[int64]int, len(p.Items))
	for _, it := range p.Items {
		need[it.MedicineID] += it.Quantity
		if it.medicineStock < need[it.MedicineID] {
			return nil, &InsufficientStockError{
				MedicineID:   it.MedicineID,
				MedicineName: it.MedicineName,
				Available:    it.medicineStock,
				Requested:    need[it.MedicineID],
			}
		}
	}

	var records []*DispensingRecord
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		records = records[:0]
		// quantity this transaction has already taken, per medicine
		taken := make(map[int64]int, len(p.Items))
		now := s.now().UTC()
		for _, it := range p.Items {
			rec := &DispensingRecord{
				PatientID:         p.PatientID,
				MedicineID:        it.MedicineID,
				PrescriptionID:    p.ID,
				Quantity:          it.Quantity,
				DispensedByUserID: staffID,
				DispensedAt:       now,
			}
			if err := s.dispensings.Create(ctx, rec); err != nil {
				return err
			}

			ok, err := s.medicines.DecrementStock(ctx, it.MedicineID, it.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return s.shortStock(ctx, it, taken[it.MedicineID])
			}
			taken[it.MedicineID] += it.Quantity
			records = append(records, rec)
		}

		filled, err := s.prescription.TransitionStatus(ctx, p.ID, StatusFilled, StatusActive, StatusPartiallyFilled)
		if err != nil {
			return err
		}
		if !filled {
			return s.notFillable(ctx, p.ID)
		}
		return nil
	})
	if err != nil {
		var already *AlreadyDispensedError
		var short *InsufficientStockError
		var inactive *PrescriptionInactiveError
		if errors.As(err, &already) || errors.As(err, &short) || errors.As(err, &inactive) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &WriteError{Err: err}
	}
	return records, nil
}

// shortStock builds the error for a decrement that lost a race. taken is
// what earlier items of this transaction already removed; it is added back
// since the rollback returns it.
func (s *Service) shortStock(ctx context.Context, it *PrescriptionItem, taken int) error {
	e := &InsufficientStockError{
		MedicineID:   it.MedicineID,
		MedicineName: it.MedicineName,
		Requested:    taken + it.Quantity,
	}
	if m, err := s.medicines.GetByID(ctx, it.MedicineID); err == nil {
		e.Available = m.StockQuantity + taken
	}
	return e
}

// notFillable explains why the status flip matched no row.
func (s *Service) notFillable(ctx context.Context, id int64) error {
	p, err := s.prescription.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == StatusFilled {
		return &AlreadyDispensedError{PrescriptionID: id}
	}
	return &PrescriptionInactiveError{PrescriptionID: id, Status: p.Status}
}
