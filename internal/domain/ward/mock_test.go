package ward

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// memStore backs both ward repositories. Transactions are serialized and
// roll back by restoring a snapshot.
type memStore struct {
	mu          sync.Mutex
	txMu        sync.Mutex
	nextID      int64
	rooms       map[int64]Room
	assignments map[int64]RoomAssignment
	// history marks rooms whose delete must fail with ErrRoomInUse.
	history map[int64]bool
}

func newMemStore() *memStore {
	return &memStore{
		rooms:       make(map[int64]Room),
		assignments: make(map[int64]RoomAssignment),
		history:     make(map[int64]bool),
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	rooms := make(map[int64]Room, len(s.rooms))
	for k, v := range s.rooms {
		rooms[k] = v
	}
	assignments := make(map[int64]RoomAssignment, len(s.assignments))
	for k, v := range s.assignments {
		assignments[k] = v
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.rooms, s.assignments = rooms, assignments
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) addRoom(number string, capacity int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.rooms[s.nextID] = Room{
		ID: s.nextID, RoomNumber: number, RoomType: RoomGeneral, Capacity: capacity,
		Status: RoomAvailable, DailyRate: decimal.NewFromInt(500000),
	}
	return s.nextID
}

func (s *memStore) room(id int64) Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[id]
}

type memRooms struct{ s *memStore }

func (r memRooms) Create(_ context.Context, rm *Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.rooms {
		if existing.RoomNumber == rm.RoomNumber {
			return ErrRoomNumberTaken
		}
	}
	r.s.nextID++
	rm.ID = r.s.nextID
	rm.CreatedAt = time.Now()
	rm.UpdatedAt = rm.CreatedAt
	r.s.rooms[rm.ID] = *rm
	return nil
}

func (r memRooms) GetByID(_ context.Context, id int64) (*Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rm, ok := r.s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &rm, nil
}

func (r memRooms) GetForUpdate(ctx context.Context, id int64) (*Room, error) {
	return r.GetByID(ctx, id)
}

func (r memRooms) Update(_ context.Context, rm *Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.rooms[rm.ID]
	if !ok {
		return ErrRoomNotFound
	}
	for id, existing := range r.s.rooms {
		if id != rm.ID && existing.RoomNumber == rm.RoomNumber {
			return ErrRoomNumberTaken
		}
	}
	rm.CurrentOccupancy = cur.CurrentOccupancy
	rm.CreatedAt = cur.CreatedAt
	rm.UpdatedAt = time.Now()
	r.s.rooms[rm.ID] = *rm
	return nil
}

func (r memRooms) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[id]; !ok {
		return ErrRoomNotFound
	}
	if r.s.history[id] {
		return ErrRoomInUse
	}
	delete(r.s.rooms, id)
	return nil
}

func (r memRooms) List(_ context.Context, f RoomFilter, limit, offset int) ([]*Room, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*Room
	for _, rm := range r.s.rooms {
		rm := rm
		if f.RoomType != "" && rm.RoomType != f.RoomType {
			continue
		}
		if f.Status != "" && rm.Status != f.Status {
			continue
		}
		if f.HasBeds && (rm.Status == RoomMaintenance || rm.Full()) {
			continue
		}
		out = append(out, &rm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomNumber < out[j].RoomNumber })
	return page(out, limit, offset), len(out), nil
}

func (r memRooms) SetOccupancy(_ context.Context, id int64, occupancy int, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rm, ok := r.s.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	rm.CurrentOccupancy = occupancy
	rm.Status = status
	r.s.rooms[id] = rm
	return nil
}

type memAssignments struct{ s *memStore }

func (r memAssignments) Create(_ context.Context, a *RoomAssignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.assignments {
		if existing.PatientID == a.PatientID && existing.Status == AssignmentActive {
			return ErrAlreadyAssigned
		}
	}
	r.s.nextID++
	a.ID = r.s.nextID
	r.s.assignments[a.ID] = *a
	r.s.history[a.RoomID] = true
	return nil
}

func (r memAssignments) GetByID(_ context.Context, id int64) (*RoomAssignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	return &a, nil
}

func (r memAssignments) ActiveForPatient(_ context.Context, patientID int64) (*RoomAssignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.assignments {
		if a.PatientID == patientID && a.Status == AssignmentActive {
			return &a, nil
		}
	}
	return nil, ErrAssignmentNotFound
}

func (r memAssignments) Discharge(_ context.Context, id int64, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok || a.Status != AssignmentActive {
		return false, nil
	}
	a.Status = AssignmentDischarged
	a.DischargedAt = &at
	r.s.assignments[id] = a
	return true, nil
}

func (r memAssignments) List(_ context.Context, f AssignmentFilter, limit, offset int) ([]*RoomAssignment, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*RoomAssignment
	for _, a := range r.s.assignments {
		a := a
		if f.RoomID != nil && a.RoomID != *f.RoomID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), len(out), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func newTestService() (*Service, *memStore) {
	s := newMemStore()
	return NewService(s, memRooms{s}, memAssignments{s}), s
}
