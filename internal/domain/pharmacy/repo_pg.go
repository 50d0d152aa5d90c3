package pharmacy

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

// =========== Medicine Repository ===========

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository {
	return &medicineRepoPG{pool: pool}
}

func (r *medicineRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const medCols = `id, name, type, brand, unit_price::text, stock_quantity, expiry_date, created_at, updated_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	var price string
	if err := row.Scan(&m.ID, &m.Name, &m.Type, &m.Brand, &price, &m.StockQuantity,
		&m.ExpiryDate, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse unit_price %q: %w", price, err)
	}
	m.UnitPrice = p
	return &m, nil
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicine (name, type, brand, unit_price, stock_quantity, expiry_date)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING id, created_at, updated_at`,
		m.Name, m.Type, m.Brand, m.UnitPrice.String(), m.StockQuantity, m.ExpiryDate,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert medicine: %w", err)
	}
	return nil
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id int64) (*Medicine, error) {
	return scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medCols+` FROM medicine WHERE id = $1`, id))
}

// Update rewrites the descriptive fields. Stock only moves through
// AdjustStock and DecrementStock.
func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicine SET name = $2, type = $3, brand = $4, unit_price = $5::numeric,
			expiry_date = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING stock_quantity, created_at, updated_at`,
		m.ID, m.Name, m.Type, m.Brand, m.UnitPrice.String(), m.ExpiryDate,
	).Scan(&m.StockQuantity, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update medicine: %w", err)
	}
	return nil
}

func (r *medicineRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medicine WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrMedicineInUse
		}
		return fmt.Errorf("delete medicine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *medicineRepoPG) List(ctx context.Context, f MedicineFilter, limit, offset int) ([]*Medicine, int, error) {
	q := db.NewListQuery("medicine", medCols).
		Contains("name", f.Name).
		EqIfNotEmpty("type", f.Type).
		OrderBy("name ASC, id ASC")
	if f.LowStockAt > 0 {
		q.Where("stock_quantity <= ?", f.LowStockAt)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medicines: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medicines: %w", err)
	}
	defer rows.Close()
	items, err := collectMedicines(rows)
	return items, total, err
}

func (r *medicineRepoPG) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*Medicine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medCols+` FROM medicine
		WHERE expiry_date IS NOT NULL AND expiry_date <= $1
		ORDER BY expiry_date ASC, id ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expiring medicines: %w", err)
	}
	defer rows.Close()
	return collectMedicines(rows)
}

func collectMedicines(rows pgx.Rows) ([]*Medicine, error) {
	var items []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *medicineRepoPG) AdjustStock(ctx context.Context, id int64, delta int) (*Medicine, error) {
	m, err := scanMedicine(r.conn(ctx).QueryRow(ctx, `
		UPDATE medicine SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING `+medCols, id, delta))
	if errors.Is(err, ErrNotFound) {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM medicine WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check medicine: %w", err)
		}
		if exists {
			return nil, ErrNegativeStock
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}
	return m, nil
}

func (r *medicineRepoPG) DecrementStock(ctx context.Context, id int64, qty int) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2`, id, qty)
	if err != nil {
		return false, fmt.Errorf("decrement stock of medicine %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const rxCols = `id, patient_id, doctor_id, diagnosis, instructions, status, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.DoctorID, &p.Diagnosis, &p.Instructions,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription (patient_id, doctor_id, diagnosis, instructions, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		p.PatientID, p.DoctorID, p.Diagnosis, p.Instructions, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepoPG) AddItem(ctx context.Context, item *PrescriptionItem) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescription_item (prescription_id, medicine_id, quantity, dosage, frequency, duration)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		item.PrescriptionID, item.MedicineID, item.Quantity, item.Dosage, item.Frequency, item.Duration,
	).Scan(&item.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: medicine %d", ErrInvalidReference, item.MedicineID)
		}
		return fmt.Errorf("insert prescription item: %w", err)
	}
	return nil
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id int64) (*Prescription, error) {
	return scanPrescription(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescription WHERE id = $1`, id))
}

func (r *prescriptionRepoPG) GetWithItems(ctx context.Context, id int64) (*Prescription, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT pi.id, pi.prescription_id, pi.medicine_id, m.name, m.stock_quantity,
			pi.quantity, pi.dosage, pi.frequency, pi.duration
		FROM prescription_item pi
		JOIN medicine m ON m.id = pi.medicine_id
		WHERE pi.prescription_id = $1
		ORDER BY pi.id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("load prescription items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it PrescriptionItem
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.MedicineID, &it.MedicineName,
			&it.medicineStock, &it.Quantity, &it.Dosage, &it.Frequency, &it.Duration); err != nil {
			return nil, fmt.Errorf("scan prescription item: %w", err)
		}
		p.Items = append(p.Items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prescription items: %w", err)
	}
	return p, nil
}

func (r *prescriptionRepoPG) List(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
	q := db.NewListQuery("prescription", rxCols).
		EqIfSet("patient_id", f.PatientID).
		EqIfSet("doctor_id", f.DoctorID).
		EqIfNotEmpty("status", f.Status).
		OrderBy("created_at DESC, id DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prescriptions: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *prescriptionRepoPG) TransitionStatus(ctx context.Context, id int64, to string, from ...string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`, id, to, from)
	if err != nil {
		return false, fmt.Errorf("update prescription %d status: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// =========== Dispensing Repository ===========

type dispensingRepoPG struct{ pool *pgxpool.Pool }

func NewDispensingRepoPG(pool *pgxpool.Pool) DispensingRepository {
	return &dispensingRepoPG{pool: pool}
}

func (r *dispensingRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const dispCols = `id, patient_id, medicine_id, prescription_id, quantity, dispensed_by_user_id, dispensed_at`

func (r *dispensingRepoPG) Create(ctx context.Context, rec *DispensingRecord) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO dispensing_record (patient_id, medicine_id, prescription_id, quantity,
			dispensed_by_user_id, dispensed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		rec.PatientID, rec.MedicineID, rec.PrescriptionID, rec.Quantity,
		rec.DispensedByUserID, rec.DispensedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert dispensing record: %w", err)
	}
	return nil
}

func (r *dispensingRepoPG) List(ctx context.Context, f DispensingFilter, limit, offset int) ([]*DispensingRecord, int, error) {
	q := db.NewListQuery("dispensing_record", dispCols).
		EqIfSet("patient_id", f.PatientID).
		EqIfSet("medicine_id", f.MedicineID).
		EqIfSet("prescription_id", f.PrescriptionID).
		OrderBy("dispensed_at DESC, id DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dispensing records: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list dispensing records: %w", err)
	}
	defer rows.Close()

	var items []*DispensingRecord
	for rows.Next() {
		var d DispensingRecord
		if err := rows.Scan(&d.ID, &d.PatientID, &d.MedicineID, &d.PrescriptionID, &d.Quantity,
			&d.DispensedByUserID, &d.DispensedAt); err != nil {
			return nil, 0, fmt.Errorf("scan dispensing record: %w", err)
		}
		items = append(items, &d)
	}
	return items, total, rows.Err()
}
