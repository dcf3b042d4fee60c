package sellers

import (
	"context"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists seller accounts. Lookups of a missing seller return
// NOT_ONBOARDED; lookups by external id return ACCOUNT_NOT_FOUND.
type Store interface {
	Get(ctx context.Context, sellerID string) (Account, error)
	GetByExternalID(ctx context.Context, externalAccountID string) (Account, error)
	// Insert stores acc unless the seller already has an account, and returns
	// whichever row is stored afterwards.
	Insert(ctx context.Context, acc Account) (Account, error)
	UpdateCapabilities(ctx context.Context, externalAccountID string, charges, payouts bool) (Account, error)
}

type Repo struct{ DB *pgxpool.Pool }

const accountColumns = `seller_id, external_account_id, charges_enabled, payouts_enabled, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var a Account
	err := row.Scan(&a.SellerID, &a.ExternalAccountID, &a.ChargesEnabled, &a.PayoutsEnabled, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *Repo) Get(ctx context.Context, sellerID string) (Account, error) {
	a, err := scanAccount(r.DB.QueryRow(ctx, `SELECT `+accountColumns+` FROM seller_accounts WHERE seller_id=$1`, sellerID))
	if err != nil {
		return Account{}, apperr.FromSQL(err, apperr.CodeNotOnboarded)
	}
	return a, nil
}

func (r *Repo) GetByExternalID(ctx context.Context, externalAccountID string) (Account, error) {
	a, err := scanAccount(r.DB.QueryRow(ctx, `SELECT `+accountColumns+` FROM seller_accounts WHERE external_account_id=$1`, externalAccountID))
	if err != nil {
		return Account{}, apperr.FromSQL(err, apperr.CodeAccountNotFound)
	}
	return a, nil
}

func (r *Repo) Insert(ctx context.Context, acc Account) (Account, error) {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO seller_accounts(seller_id, external_account_id, charges_enabled, payouts_enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (seller_id) DO NOTHING`,
		acc.SellerID, acc.ExternalAccountID, acc.ChargesEnabled, acc.PayoutsEnabled)
	if err != nil {
		return Account{}, apperr.FromSQL(err, apperr.CodeNotOnboarded)
	}
	return r.Get(ctx, acc.SellerID)
}

// UpdateCapabilities overwrites both flags; last write wins.
func (r *Repo) UpdateCapabilities(ctx context.Context, externalAccountID string, charges, payouts bool) (Account, error) {
	a, err := scanAccount(r.DB.QueryRow(ctx, `
		UPDATE seller_accounts
		SET charges_enabled=$2, payouts_enabled=$3, updated_at=now()
		WHERE external_account_id=$1
		RETURNING `+accountColumns,
		externalAccountID, charges, payouts))
	if err != nil {
		return Account{}, apperr.FromSQL(err, apperr.CodeAccountNotFound)
	}
	return a, nil
}
