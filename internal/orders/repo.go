package orders

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists orders. Missing orders are reported as ORDER_NOT_FOUND.
type Store interface {
	Insert(ctx context.Context, o Order) error
	// InsertIfAbsent is Insert that treats an existing id as success.
	InsertIfAbsent(ctx context.Context, o Order) (inserted bool, err error)
	Get(ctx context.Context, id string) (Order, error)
	GetByReference(ctx context.Context, ref string) (Order, error)
	// Transition moves the order with the given reference out of pending.
	// changed is false when the order was already terminal; the returned
	// order is the current row either way.
	Transition(ctx context.Context, ref string, to Status, message string) (o Order, changed bool, err error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]Order, error)
}

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, buyer_id, seller_id, item_id, amount_cents, currency, platform_fee_cents,
	external_payment_reference, status, failure_message, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.ItemID, &o.AmountCents, &o.Currency, &o.PlatformFeeCents,
		&o.ExternalPaymentReference, &status, &o.FailureMessage, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	return o, err
}

func (r *Repo) Insert(ctx context.Context, o Order) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, seller_id, item_id, amount_cents, currency, platform_fee_cents,
		                   external_payment_reference, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')`,
		o.ID, o.BuyerID, o.SellerID, o.ItemID, o.AmountCents, o.Currency, o.PlatformFeeCents, o.ExternalPaymentReference)
	return apperr.FromSQL(err, apperr.CodeOrderNotFound)
}

func (r *Repo) InsertIfAbsent(ctx context.Context, o Order) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, seller_id, item_id, amount_cents, currency, platform_fee_cents,
		                   external_payment_reference, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9)
		ON CONFLICT (id) DO NOTHING`,
		o.ID, o.BuyerID, o.SellerID, o.ItemID, o.AmountCents, o.Currency, o.PlatformFeeCents, o.ExternalPaymentReference, o.CreatedAt)
	if err != nil {
		return false, apperr.FromSQL(err, apperr.CodeOrderNotFound)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return Order{}, apperr.FromSQL(err, apperr.CodeOrderNotFound)
	}
	return o, nil
}

func (r *Repo) GetByReference(ctx context.Context, ref string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_payment_reference=$1`, ref))
	if err != nil {
		return Order{}, apperr.FromSQL(err, apperr.CodeOrderNotFound)
	}
	return o, nil
}

// Transition is a single guarded UPDATE: of two concurrent deliveries only one
// sees a row come back, the other falls through to the read.
func (r *Repo) Transition(ctx context.Context, ref string, to Status, message string) (Order, bool, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders
		SET status=$2, failure_message=$3, updated_at=now()
		WHERE external_payment_reference=$1 AND status='pending'
		RETURNING `+orderColumns,
		ref, string(to), message))
	if err == nil {
		return o, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Order{}, false, apperr.FromSQL(err, apperr.CodeOrderNotFound)
	}
	current, err := r.GetByReference(ctx, ref)
	if err != nil {
		return Order{}, false, err
	}
	return current, false, nil
}

func (r *Repo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+`
		FROM orders WHERE status='pending' AND created_at < $1
		ORDER BY created_at LIMIT $2`, before, limit)
	if err != nil {
		return nil, apperr.FromSQL(err, apperr.CodeOrderNotFound)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
