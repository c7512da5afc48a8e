package userstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/saasbilling/pkg/billing"
	"github.com/dmitrymomot/saasbilling/pkg/pg"
)

const userColumns = `id, email, name, subscription_tier, subscription_status, subscription_end_date,
	stripe_customer_id, stripe_subscription_id, lemonsqueezy_customer_id, lemonsqueezy_subscription_id,
	created_at, updated_at`

// PostgresStore persists users through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("userstore: nil pgx pool")
	}
	return &PostgresStore{pool: pool}
}

// Put inserts or replaces a user.
func (s *PostgresStore) Put(ctx context.Context, u billing.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, subscription_tier, subscription_status, subscription_end_date,
			stripe_customer_id, stripe_subscription_id, lemonsqueezy_customer_id, lemonsqueezy_subscription_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			subscription_tier = EXCLUDED.subscription_tier,
			subscription_status = EXCLUDED.subscription_status,
			subscription_end_date = EXCLUDED.subscription_end_date,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			lemonsqueezy_customer_id = EXCLUDED.lemonsqueezy_customer_id,
			lemonsqueezy_subscription_id = EXCLUDED.lemonsqueezy_subscription_id,
			updated_at = now()`,
		u.ID, u.Email, u.Name, string(u.SubscriptionTier), string(u.SubscriptionStatus), u.SubscriptionEndDate,
		u.StripeCustomerID, u.StripeSubscriptionID, u.LemonSqueezyCustomerID, u.LemonSqueezySubscriptionID,
	)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*billing.User, error) {
	return s.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) FindBySubscription(ctx context.Context, provider billing.ProviderName, subscriptionID string) (*billing.User, error) {
	col, ok := subscriptionColumn(provider)
	if !ok || subscriptionID == "" {
		return nil, billing.ErrUserNotFound
	}
	return s.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE `+col+` = $1 LIMIT 1`, subscriptionID)
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, id string, upd billing.SubscriptionUpdate) error {
	var expect *string
	if upd.ExpectStatus != nil {
		v := string(*upd.ExpectStatus)
		expect = &v
	}
	var endDate *time.Time
	if upd.EndDate != nil {
		v := upd.EndDate.UTC()
		endDate = &v
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			subscription_status = COALESCE(NULLIF($2::text, ''), subscription_status),
			subscription_end_date = COALESCE($3::timestamptz, subscription_end_date),
			updated_at = now()
		WHERE id = $1 AND ($4::text IS NULL OR subscription_status = $4::text)`,
		id, string(upd.Status), endDate, expect,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return billing.ErrUserNotFound
	}
	return billing.ErrStatusConflict
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...any) (*billing.User, error) {
	var (
		u            billing.User
		tier, status string
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.Name, &tier, &status, &u.SubscriptionEndDate,
		&u.StripeCustomerID, &u.StripeSubscriptionID, &u.LemonSqueezyCustomerID, &u.LemonSqueezySubscriptionID,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrUserNotFound
		}
		return nil, err
	}
	u.SubscriptionTier = billing.Tier(tier)
	u.SubscriptionStatus = billing.Status(status)
	return &u, nil
}
