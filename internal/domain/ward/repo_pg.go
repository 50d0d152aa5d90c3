package ward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hospital/hms/internal/platform/db"
)

// =========== Room Repository ===========

type roomRepoPG struct{ pool *pgxpool.Pool }

func NewRoomRepoPG(pool *pgxpool.Pool) RoomRepository {
	return &roomRepoPG{pool: pool}
}

func (r *roomRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const roomCols = `id, room_number, room_type, capacity, current_occupancy, status, daily_rate::text, created_at, updated_at`

func scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	var rate string
	err := row.Scan(&rm.ID, &rm.RoomNumber, &rm.RoomType, &rm.Capacity, &rm.CurrentOccupancy,
		&rm.Status, &rate, &rm.CreatedAt, &rm.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	if rm.DailyRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse daily_rate %q: %w", rate, err)
	}
	return &rm, nil
}

func (r *roomRepoPG) Create(ctx context.Context, rm *Room) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO room (room_number, room_type, capacity, current_occupancy, status, daily_rate)
		VALUES ($1, $2, $3, $4, $5, $6::numeric)
		RETURNING id, created_at, updated_at`,
		rm.RoomNumber, rm.RoomType, rm.Capacity, rm.CurrentOccupancy, rm.Status, rm.DailyRate.String(),
	).Scan(&rm.ID, &rm.CreatedAt, &rm.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrRoomNumberTaken
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (r *roomRepoPG) GetByID(ctx context.Context, id int64) (*Room, error) {
	return scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM room WHERE id = $1`, id))
}

func (r *roomRepoPG) GetForUpdate(ctx context.Context, id int64) (*Room, error) {
	return scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM room WHERE id = $1 FOR UPDATE`, id))
}

func (r *roomRepoPG) Update(ctx context.Context, rm *Room) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE room SET room_number = $2, room_type = $3, capacity = $4, status = $5,
			daily_rate = $6::numeric, updated_at = NOW()
		WHERE id = $1
		RETURNING current_occupancy, updated_at`,
		rm.ID, rm.RoomNumber, rm.RoomType, rm.Capacity, rm.Status, rm.DailyRate.String(),
	).Scan(&rm.CurrentOccupancy, &rm.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrRoomNotFound
	case db.IsUniqueViolation(err):
		return ErrRoomNumberTaken
	case db.IsCheckViolation(err):
		return invalid("capacity is below current occupancy")
	case err != nil:
		return fmt.Errorf("update room: %w", err)
	}
	return nil
}

func (r *roomRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM room WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrRoomInUse
		}
		return fmt.Errorf("delete room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *roomRepoPG) List(ctx context.Context, f RoomFilter, limit, offset int) ([]*Room, int, error) {
	q := db.NewListQuery("room", roomCols).
		EqIfNotEmpty("room_type", f.RoomType).
		EqIfNotEmpty("status", f.Status).
		OrderBy("room_number ASC")
	if f.HasBeds {
		q.Where("status <> ? AND current_occupancy < capacity", RoomMaintenance)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rooms: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var items []*Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rm)
	}
	return items, total, rows.Err()
}

func (r *roomRepoPG) SetOccupancy(ctx context.Context, id int64, occupancy int, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE room SET current_occupancy = $2, status = $3, updated_at = NOW()
		WHERE id = $1`, id, occupancy, status)
	if err != nil {
		return fmt.Errorf("set occupancy of room %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// =========== Assignment Repository ===========

type assignmentRepoPG struct{ pool *pgxpool.Pool }

func NewAssignmentRepoPG(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepoPG{pool: pool}
}

func (r *assignmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const assignmentCols = `id, room_id, patient_id, assigned_at, discharged_at, status, notes`

func scanAssignment(row pgx.Row) (*RoomAssignment, error) {
	var a RoomAssignment
	err := row.Scan(&a.ID, &a.RoomID, &a.PatientID, &a.AssignedAt, &a.DischargedAt, &a.Status, &a.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepoPG) Create(ctx context.Context, a *RoomAssignment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO room_assignment (room_id, patient_id, assigned_at, status, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		a.RoomID, a.PatientID, a.AssignedAt, a.Status, a.Notes,
	).Scan(&a.ID)
	switch {
	case db.IsUniqueViolation(err):
		return ErrAlreadyAssigned
	case db.IsForeignKeyViolation(err):
		return ErrInvalidReference
	case err != nil:
		return fmt.Errorf("insert room assignment: %w", err)
	}
	return nil
}

func (r *assignmentRepoPG) GetByID(ctx context.Context, id int64) (*RoomAssignment, error) {
	return scanAssignment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM room_assignment WHERE id = $1`, id))
}

func (r *assignmentRepoPG) ActiveForPatient(ctx context.Context, patientID int64) (*RoomAssignment, error) {
	return scanAssignment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM room_assignment WHERE patient_id = $1 AND status = $2`,
		patientID, AssignmentActive))
}

func (r *assignmentRepoPG) Discharge(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE room_assignment SET status = $2, discharged_at = $3
		WHERE id = $1 AND status = $4`,
		id, AssignmentDischarged, at, AssignmentActive)
	if err != nil {
		return false, fmt.Errorf("discharge assignment %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *assignmentRepoPG) List(ctx context.Context, f AssignmentFilter, limit, offset int) ([]*RoomAssignment, int, error) {
	q := db.NewListQuery("room_assignment", assignmentCols).
		EqIfSet("room_id", f.RoomID).
		EqIfSet("patient_id", f.PatientID).
		EqIfNotEmpty("status", f.Status).
		OrderBy("assigned_at DESC, id DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count room assignments: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list room assignments: %w", err)
	}
	defer rows.Close()

	var items []*RoomAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
