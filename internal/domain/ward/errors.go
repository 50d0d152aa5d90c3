package ward

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrRoomNotFound       = errors.New("room not found")
	ErrAssignmentNotFound = errors.New("room assignment not found")
	ErrRoomNumberTaken    = errors.New("room number already exists")
	ErrRoomNotEmpty       = errors.New("room still has patients assigned")
	ErrRoomInUse          = errors.New("room has assignment history and cannot be deleted")
	ErrAlreadyAssigned    = errors.New("patient already has an active room assignment")
	ErrAlreadyDischarged  = errors.New("room assignment has already been discharged")
	ErrInvalidReference   = errors.New("patient or room does not exist")
)

// RoomUnavailableError is returned when a room cannot take another patient.
type RoomUnavailableError struct {
	RoomID    int64
	Status    string
	Occupancy int
	Capacity  int
}

func (e *RoomUnavailableError) Error() string {
	if e.Status == RoomMaintenance {
		return fmt.Sprintf("room %d is under maintenance", e.RoomID)
	}
	return fmt.Sprintf("room %d is full (%d/%d)", e.RoomID, e.Occupancy, e.Capacity)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
