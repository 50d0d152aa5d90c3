package medicalrecord

import (
	"context"
	"time"

	"github.com/hospital/hms/internal/platform/auth"
)

type Service struct {
	repo Repository
	now  func() time.Time
	// loc decides which calendar day "today" is.
	loc *time.Location
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now, loc: time.Local}
}

// Location is the zone date-only visit dates are read in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// afterToday reports whether t falls on a later calendar day than now.
func (s *Service) afterToday(t time.Time) bool {
	y, m, d := s.now().In(s.loc).Date()
	tomorrow := time.Date(y, m, d+1, 0, 0, 0, 0, s.loc)
	return !t.Before(tomorrow)
}

func (s *Service) Create(ctx context.Context, r *MedicalRecord) error {
	if r.PatientID <= 0 {
		return invalid("patient_id is required")
	}
	if r.DoctorID <= 0 {
		return invalid("doctor_id is required")
	}
	if r.VisitDate.IsZero() {
		r.VisitDate = s.now()
	}
	if s.afterToday(r.VisitDate) {
		return invalid("visit_date is in the future")
	}
	return s.repo.Create(ctx, r)
}

func (s *Service) Get(ctx context.Context, id int64) (*MedicalRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies ch on behalf of by. Only the doctor who wrote the record or
// an admin may edit it.
func (s *Service) Update(ctx context.Context, id int64, ch Changes, by auth.Principal) (*MedicalRecord, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !by.HasRole(auth.RoleAdmin) && (by.DoctorID == nil || *by.DoctorID != r.DoctorID) {
		return nil, ErrNotAuthor
	}
	ch.apply(r)
	if s.afterToday(r.VisitDate) {
		return nil, invalid("visit_date is in the future")
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*MedicalRecord, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}
