package ward

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hospital/hms/internal/platform/db"
)

type Service struct {
	tx          db.Transactor
	rooms       RoomRepository
	assignments AssignmentRepository
	now         func() time.Time
}

func NewService(tx db.Transactor, rooms RoomRepository, assignments AssignmentRepository) *Service {
	return &Service{tx: tx, rooms: rooms, assignments: assignments, now: time.Now}
}

// -- Rooms --

func validateRoom(r *Room) error {
	r.RoomNumber = strings.TrimSpace(r.RoomNumber)
	if r.RoomNumber == "" {
		return invalid("room_number is required")
	}
	if !validRoomTypes[r.RoomType] {
		return invalid("room_type must be one of General, Private, ICU, Emergency")
	}
	if r.Capacity <= 0 {
		return invalid("capacity must be positive")
	}
	if r.DailyRate.IsNegative() {
		return invalid("daily_rate must not be negative")
	}
	return nil
}

func (s *Service) CreateRoom(ctx context.Context, r *Room) error {
	if err := validateRoom(r); err != nil {
		return err
	}
	switch r.Status {
	case "":
		r.Status = RoomAvailable
	case RoomAvailable, RoomMaintenance:
	default:
		return invalid("status must be Available or Maintenance")
	}
	r.CurrentOccupancy = 0
	return s.rooms.Create(ctx, r)
}

func (s *Service) GetRoom(ctx context.Context, id int64) (*Room, error) {
	return s.rooms.GetByID(ctx, id)
}

func (s *Service) ListRooms(ctx context.Context, f RoomFilter, limit, offset int) ([]*Room, int, error) {
	if f.RoomType != "" && !validRoomTypes[f.RoomType] {
		return nil, 0, invalid("unknown room_type %q", f.RoomType)
	}
	return s.rooms.List(ctx, f, limit, offset)
}

// UpdateRoom rewrites a room's descriptive fields. The requested status may
// be Available or Maintenance; Occupied follows from occupancy.
func (s *Service) UpdateRoom(ctx context.Context, in *Room) (*Room, error) {
	if err := validateRoom(in); err != nil {
		return nil, err
	}
	var out *Room
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		cur, err := s.rooms.GetForUpdate(ctx, in.ID)
		if err != nil {
			return err
		}
		if in.Capacity < cur.CurrentOccupancy {
			return invalid("capacity %d is below current occupancy %d", in.Capacity, cur.CurrentOccupancy)
		}

		next := *in
		next.CurrentOccupancy = cur.CurrentOccupancy
		switch in.Status {
		case "":
			next.Status = cur.Status
		case RoomMaintenance:
			if cur.CurrentOccupancy > 0 {
				return ErrRoomNotEmpty
			}
		case RoomAvailable, RoomOccupied:
			next.Status = RoomAvailable
		default:
			return invalid("unknown status %q", in.Status)
		}
		next.settle()

		if err := s.rooms.Update(ctx, &next); err != nil {
			return err
		}
		out = &next
		return nil
	})
	return out, err
}

func (s *Service) DeleteRoom(ctx context.Context, id int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		r, err := s.rooms.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if r.CurrentOccupancy > 0 {
			return ErrRoomNotEmpty
		}
		return s.rooms.Delete(ctx, id)
	})
}

// -- Assignments --

// Assign places a patient in a room. The room row stays locked for the whole
// transaction so two admissions cannot both take its last bed.
func (s *Service) Assign(ctx context.Context, roomID, patientID int64, notes string) (*RoomAssignment, error) {
	if roomID <= 0 || patientID <= 0 {
		return nil, invalid("room_id and patient_id are required")
	}

	var out *RoomAssignment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		room, err := s.rooms.GetForUpdate(ctx, roomID)
		if err != nil {
			return err
		}
		if room.Status == RoomMaintenance || room.Full() {
			return &RoomUnavailableError{
				RoomID:    room.ID,
				Status:    room.Status,
				Occupancy: room.CurrentOccupancy,
				Capacity:  room.Capacity,
			}
		}

		_, err = s.assignments.ActiveForPatient(ctx, patientID)
		switch {
		case err == nil:
			return ErrAlreadyAssigned
		case !errors.Is(err, ErrAssignmentNotFound):
			return err
		}

		a := &RoomAssignment{
			RoomID:     roomID,
			PatientID:  patientID,
			AssignedAt: s.now(),
			Status:     AssignmentActive,
			Notes:      strings.TrimSpace(notes),
		}
		if err := s.assignments.Create(ctx, a); err != nil {
			return err
		}

		room.CurrentOccupancy++
		room.settle()
		if err := s.rooms.SetOccupancy(ctx, room.ID, room.CurrentOccupancy, room.Status); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// Discharge closes an active assignment and frees its bed.
func (s *Service) Discharge(ctx context.Context, id int64) (*RoomAssignment, error) {
	var out *RoomAssignment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.assignments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != AssignmentActive {
			return ErrAlreadyDischarged
		}

		// Room first, matching Assign's lock order.
		room, err := s.rooms.GetForUpdate(ctx, a.RoomID)
		if err != nil {
			return err
		}

		at := s.now()
		ok, err := s.assignments.Discharge(ctx, id, at)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyDischarged
		}

		if room.CurrentOccupancy > 0 {
			room.CurrentOccupancy--
		}
		room.settle()
		if err := s.rooms.SetOccupancy(ctx, room.ID, room.CurrentOccupancy, room.Status); err != nil {
			return err
		}

		a.Status = AssignmentDischarged
		a.DischargedAt = &at
		out = a
		return nil
	})
	return out, err
}

func (s *Service) GetAssignment(ctx context.Context, id int64) (*RoomAssignment, error) {
	return s.assignments.GetByID(ctx, id)
}

func (s *Service) ListAssignments(ctx context.Context, f AssignmentFilter, limit, offset int) ([]*RoomAssignment, int, error) {
	switch f.Status {
	case "", AssignmentActive, AssignmentDischarged:
	default:
		return nil, 0, invalid("unknown status %q", f.Status)
	}
	return s.assignments.List(ctx, f, limit, offset)
}
