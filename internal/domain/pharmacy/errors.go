package pharmacy

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrNoItems          = errors.New("prescription has no items to dispense")
	ErrMedicineInUse    = errors.New("medicine is referenced by prescriptions or dispensing records")
	ErrNegativeStock    = errors.New("stock adjustment would make stock negative")
	ErrInvalidReference = errors.New("referenced patient, doctor or medicine does not exist")
	ErrNotCancellable   = errors.New("only active prescriptions can be cancelled")
)

// AlreadyDispensedError is returned when a prescription has already been
// filled. It is a permanent rejection, not a transient fault.
type AlreadyDispensedError struct {
	PrescriptionID int64
}

func (e *AlreadyDispensedError) Error() string {
	return fmt.Sprintf("prescription %d has already been dispensed", e.PrescriptionID)
}

// PrescriptionInactiveError is returned for cancelled or expired prescriptions.
type PrescriptionInactiveError struct {
	PrescriptionID int64
	Status         string
}

func (e *PrescriptionInactiveError) Error() string {
	return fmt.Sprintf("prescription %d is %s and cannot be dispensed", e.PrescriptionID, e.Status)
}

// InsufficientStockError names the first line item that cannot be covered.
type InsufficientStockError struct {
	MedicineID   int64
	MedicineName string
	Available    int
	Requested    int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.MedicineName, e.Available, e.Requested)
}

// WriteError wraps any failure of the dispensing transaction itself. Nothing
// from the failed transaction is persisted.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidInput}, args...)...)
}
