package ward

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoomGeneral   = "General"
	RoomPrivate   = "Private"
	RoomICU       = "ICU"
	RoomEmergency = "Emergency"
)

const (
	RoomAvailable   = "Available"
	RoomOccupied    = "Occupied"
	RoomMaintenance = "Maintenance"
)

const (
	AssignmentActive     = "Active"
	AssignmentDischarged = "Discharged"
)

var validRoomTypes = map[string]bool{
	RoomGeneral:   true,
	RoomPrivate:   true,
	RoomICU:       true,
	RoomEmergency: true,
}

type Room struct {
	ID               int64           `json:"id"`
	RoomNumber       string          `json:"room_number"`
	RoomType         string          `json:"room_type"`
	Capacity         int             `json:"capacity"`
	CurrentOccupancy int             `json:"current_occupancy"`
	Status           string          `json:"status"`
	DailyRate        decimal.Decimal `json:"daily_rate"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Full reports whether every bed is taken.
func (r *Room) Full() bool {
	return r.CurrentOccupancy >= r.Capacity
}

// settle derives Available/Occupied from occupancy. Maintenance is left alone.
func (r *Room) settle() {
	if r.Status == RoomMaintenance {
		return
	}
	if r.Full() {
		r.Status = RoomOccupied
	} else {
		r.Status = RoomAvailable
	}
}

type RoomAssignment struct {
	ID           int64      `json:"id"`
	RoomID       int64      `json:"room_id"`
	PatientID    int64      `json:"patient_id"`
	AssignedAt   time.Time  `json:"assigned_at"`
	DischargedAt *time.Time `json:"discharged_at,omitempty"`
	Status       string     `json:"status"`
	Notes        string     `json:"notes"`
}

type RoomFilter struct {
	RoomType string
	Status   string
	// HasBeds keeps rooms that are not in maintenance and not full.
	HasBeds bool
}

type AssignmentFilter struct {
	RoomID    *int64
	PatientID *int64
	Status    string
}
