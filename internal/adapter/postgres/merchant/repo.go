// Package merchant persists the processor-side ledger entities: accounts,
// customers, products, prices and charges. Each row mirrors one object at
// the external payment processor, keyed by the processor's identifier.
package merchant

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/coursekit/coursekit-backend/internal/adapter/postgres"
	"github.com/coursekit/coursekit-backend/internal/domain"
)

// Repo provides merchant ledger persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new merchant repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// GetAccountByIdentifier returns a merchant account by its processor-side
// identifier.
func (r *Repo) GetAccountByIdentifier(ctx context.Context, identifier string) (*domain.MerchantAccount, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var a domain.MerchantAccount
	err := q.QueryRow(ctx,
		`SELECT id, label, identifier, status, created_at
		 FROM merchant_accounts WHERE identifier = $1`,
		identifier,
	).Scan(&a.ID, &a.Label, &a.Identifier, &a.Status, &a.CreatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "merchant_account", identifier)
	}
	return &a, nil
}

// GetChargeByIdentifier returns a charge by its processor-side identifier.
// Charge identifiers are unique per account, and refund webhooks carry no
// account hint, so the lookup spans all accounts.
func (r *Repo) GetChargeByIdentifier(ctx context.Context, identifier string) (*domain.MerchantCharge, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var c domain.MerchantCharge
	err := q.QueryRow(ctx,
		`SELECT id, user_id, merchant_account_id, merchant_customer_id,
		        merchant_product_id, identifier, status, created_at
		 FROM merchant_charges WHERE identifier = $1`,
		identifier,
	).Scan(&c.ID, &c.UserID, &c.MerchantAccountID, &c.MerchantCustomerID,
		&c.MerchantProductID, &c.Identifier, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "merchant_charge", identifier)
	}
	return &c, nil
}

// GetCustomerByUser returns the processor-side customer for a user on the
// given account, if one exists.
func (r *Repo) GetCustomerByUser(ctx context.Context, accountID, userID uuid.UUID) (*domain.MerchantCustomer, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var c domain.MerchantCustomer
	err := q.QueryRow(ctx,
		`SELECT id, user_id, merchant_account_id, identifier, status, created_at
		 FROM merchant_customers
		 WHERE merchant_account_id = $1 AND user_id = $2`,
		accountID, userID,
	).Scan(&c.ID, &c.UserID, &c.MerchantAccountID, &c.Identifier, &c.Status, &c.CreatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "merchant_customer", userID.String())
	}
	return &c, nil
}

// CreateCharge records a new processor-side charge.
func (r *Repo) CreateCharge(ctx context.Context, c *domain.MerchantCharge) (*domain.MerchantCharge, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var created domain.MerchantCharge
	err := q.QueryRow(ctx,
		`INSERT INTO merchant_charges
		     (id, user_id, merchant_account_id, merchant_customer_id,
		      merchant_product_id, identifier, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, user_id, merchant_account_id, merchant_customer_id,
		           merchant_product_id, identifier, status, created_at`,
		c.ID, c.UserID, c.MerchantAccountID, c.MerchantCustomerID,
		c.MerchantProductID, c.Identifier, c.Status,
	).Scan(&created.ID, &created.UserID, &created.MerchantAccountID,
		&created.MerchantCustomerID, &created.MerchantProductID,
		&created.Identifier, &created.Status, &created.CreatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "merchant_charge", c.Identifier)
	}
	return &created, nil
}
