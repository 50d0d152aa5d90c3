package ward

import (
	"context"
	"time"
)

type RoomRepository interface {
	Create(ctx context.Context, r *Room) error
	GetByID(ctx context.Context, id int64) (*Room, error)
	// GetForUpdate reads the room and locks it until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Room, error)
	Update(ctx context.Context, r *Room) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f RoomFilter, limit, offset int) ([]*Room, int, error)
	SetOccupancy(ctx context.Context, id int64, occupancy int, status string) error
}

type AssignmentRepository interface {
	Create(ctx context.Context, a *RoomAssignment) error
	GetByID(ctx context.Context, id int64) (*RoomAssignment, error)
	ActiveForPatient(ctx context.Context, patientID int64) (*RoomAssignment, error)
	// Discharge closes an Active assignment. It reports false when the
	// assignment was no longer Active.
	Discharge(ctx context.Context, id int64, at time.Time) (bool, error)
	List(ctx context.Context, f AssignmentFilter, limit, offset int) ([]*RoomAssignment, int, error)
}
