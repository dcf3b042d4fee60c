package payouts

import (
	"context"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Payout is a transfer of seller balance to the seller's external account. Its
// id is the processor's payout id.
type Payout struct {
	ID            string    `json:"payout_id"`
	SellerID      string    `json:"seller_id"`
	AmountCents   int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        Status    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Store interface {
	// Create inserts a pending payout; an existing id is left untouched.
	Create(ctx context.Context, p Payout) (inserted bool, err error)
	// Settle moves a payout to p.Status. A missing payout is inserted in that
	// state; a terminal one is left untouched.
	Settle(ctx context.Context, p Payout) (changed bool, err error)
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]Payout, error)
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Create(ctx context.Context, p Payout) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO payouts(id, seller_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.SellerID, p.AmountCents, p.Currency)
	if err != nil {
		return false, apperr.FromSQL(err, apperr.CodeNotFound)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) Settle(ctx context.Context, p Payout) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO payouts(id, seller_id, amount_cents, currency, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status=EXCLUDED.status, failure_reason=EXCLUDED.failure_reason, updated_at=now()
		WHERE payouts.status='pending'`,
		p.ID, p.SellerID, p.AmountCents, p.Currency, string(p.Status), p.FailureReason)
	if err != nil {
		return false, apperr.FromSQL(err, apperr.CodeNotFound)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) ListBySeller(ctx context.Context, sellerID string, limit int) ([]Payout, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, seller_id, amount_cents, currency, status, failure_reason, created_at, updated_at
		FROM payouts WHERE seller_id=$1 ORDER BY created_at DESC LIMIT $2`, sellerID, limit)
	if err != nil {
		return nil, apperr.FromSQL(err, apperr.CodeNotFound)
	}
	defer rows.Close()

	out := []Payout{}
	for rows.Next() {
		var p Payout
		var status string
		if err := rows.Scan(&p.ID, &p.SellerID, &p.AmountCents, &p.Currency, &status, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Status = Status(status)
		out = append(out, p)
	}
	return out, rows.Err()
}
