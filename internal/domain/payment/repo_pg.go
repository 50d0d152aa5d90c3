package payment

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const paymentCols = `id, patient_id, amount::text, description, method, status, order_ref::text,
	gateway_txn_id, pay_url, created_at, paid_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var amount string
	err := row.Scan(&p.ID, &p.PatientID, &amount, &p.Description, &p.Method, &p.Status,
		&p.OrderRef, &p.GatewayTxnID, &p.PayURL, &p.CreatedAt, &p.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Payment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payment (patient_id, amount, description, method, status, order_ref)
		VALUES ($1, $2::numeric, $3, $4, $5, $6::uuid)
		RETURNING id, created_at`,
		p.PatientID, p.Amount.String(), p.Description, p.Method, p.Status, p.OrderRef,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Payment, error) {
	return scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM payment WHERE id = $1`, id))
}

func (r *repoPG) GetByOrderRef(ctx context.Context, ref string) (*Payment, error) {
	// A malformed ref cannot match any uuid; compare as text to avoid a cast error.
	return scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM payment WHERE order_ref::text = $1`, ref))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Payment, int, error) {
	q := db.NewListQuery("payment", paymentCols).
		EqIfSet("patient_id", f.PatientID).
		EqIfNotEmpty("status", f.Status).
		OrderBy("created_at DESC, id DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var items []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) SetCheckout(ctx context.Context, id int64, method string, payURL *string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment SET method = $2, pay_url = $3
		WHERE id = $1 AND status = $4 AND (pay_url IS NULL OR method = $2)`, id, method, payURL, StatusPending)
	if err != nil {
		return false, fmt.Errorf("set checkout of payment %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Settle(ctx context.Context, id int64, status string, txnID *string, paidAt *time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment SET status = $2, gateway_txn_id = COALESCE($3, gateway_txn_id), paid_at = $4
		WHERE id = $1 AND status = $5`, id, status, txnID, paidAt, StatusPending)
	if err != nil {
		return false, fmt.Errorf("settle payment %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}
