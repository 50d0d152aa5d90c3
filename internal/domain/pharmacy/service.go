package pharmacy

import (
	"context"
	"strings"
	"time"

	"github.com/hospital/hms/internal/platform/db"
)

type Service struct {
	tx           db.Transactor
	medicines    MedicineRepository
	prescription PrescriptionRepository
	dispensings  DispensingRepository
	now          func() time.Time
}

func NewService(tx db.Transactor, medicines MedicineRepository, prescriptions PrescriptionRepository, dispensings DispensingRepository) *Service {
	return &Service{
		tx:           tx,
		medicines:    medicines,
		prescription: prescriptions,
		dispensings:  dispensings,
		now:          time.Now,
	}
}

// -- Medicine --

func validateMedicine(m *Medicine) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return invalid("name is required")
	}
	if m.UnitPrice.IsNegative() {
		return invalid("unit_price must not be negative")
	}
	if m.StockQuantity < 0 {
		return invalid("stock_quantity must not be negative")
	}
	return nil
}

func (s *Service) CreateMedicine(ctx context.Context, m *Medicine) error {
	if err := validateMedicine(m); err != nil {
		return err
	}
	return s.medicines.Create(ctx, m)
}

func (s *Service) GetMedicine(ctx context.Context, id int64) (*Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

func (s *Service) UpdateMedicine(ctx context.Context, m *Medicine) error {
	if err := validateMedicine(m); err != nil {
		return err
	}
	return s.medicines.Update(ctx, m)
}

func (s *Service) DeleteMedicine(ctx context.Context, id int64) error {
	return s.medicines.Delete(ctx, id)
}

func (s *Service) ListMedicines(ctx context.Context, f MedicineFilter, limit, offset int) ([]*Medicine, int, error) {
	return s.medicines.List(ctx, f, limit, offset)
}

// AdjustStock applies a manual stock correction or delivery.
func (s *Service) AdjustStock(ctx context.Context, id int64, delta int) (*Medicine, error) {
	if delta == 0 {
		return nil, invalid("delta must not be zero")
	}
	return s.medicines.AdjustStock(ctx, id, delta)
}

// ListExpiring returns medicines whose expiry date falls within the next
// days days, including those already expired.
func (s *Service) ListExpiring(ctx context.Context, days int) ([]*Medicine, error) {
	if days < 0 || days > 3650 {
		return nil, invalid("days must be between 0 and 3650")
	}
	cutoff := s.now().AddDate(0, 0, days)
	return s.medicines.ListExpiringBefore(ctx, cutoff)
}

// -- Prescription --

func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	if p.PatientID <= 0 {
		return invalid("patient_id is required")
	}
	if p.DoctorID <= 0 {
		return invalid("doctor_id is required")
	}
	if len(p.Items) == 0 {
		return invalid("at least one item is required")
	}
	for i, it := range p.Items {
		if it.MedicineID <= 0 {
			return invalid("items[%d].medicine_id is required", i)
		}
		if it.Quantity <= 0 {
			return invalid("items[%d].quantity must be positive", i)
		}
	}
	p.Status = StatusActive

	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.prescription.Create(ctx, p); err != nil {
			return err
		}
		for _, it := range p.Items {
			it.PrescriptionID = p.ID
			if err := s.prescription.AddItem(ctx, it); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) GetPrescription(ctx context.Context, id int64) (*Prescription, error) {
	return s.prescription.GetWithItems(ctx, id)
}

func (s *Service) ListPrescriptions(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
	if f.Status != "" && !validPrescriptionStatuses[f.Status] {
		return nil, 0, invalid("unknown status %q", f.Status)
	}
	return s.prescription.List(ctx, f, limit, offset)
}

// CancelPrescription moves an active prescription to Cancelled.
func (s *Service) CancelPrescription(ctx context.Context, id int64) (*Prescription, error) {
	ok, err := s.prescription.TransitionStatus(ctx, id, StatusCancelled, StatusActive, StatusPartiallyFilled)
	if err != nil {
		return nil, err
	}
	p, err := s.prescription.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotCancellable
	}
	return p, nil
}

func (s *Service) ListDispensings(ctx context.Context, f DispensingFilter, limit, offset int) ([]*DispensingRecord, int, error) {
	return s.dispensings.List(ctx, f, limit, offset)
}
