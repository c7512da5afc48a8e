package userstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dmitrymomot/saasbilling/pkg/billing"
)

type userRecord struct {
	ID                         string     `gorm:"type:varchar(36);primaryKey"`
	Email                      string     `gorm:"type:varchar(191);not null;default:''"`
	Name                       string     `gorm:"type:varchar(191);not null;default:''"`
	SubscriptionTier           string     `gorm:"type:varchar(20);not null;default:'free'"`
	SubscriptionStatus         string     `gorm:"type:varchar(20);not null;default:'active'"`
	SubscriptionEndDate        *time.Time `gorm:"type:datetime(3)"`
	StripeCustomerID           string     `gorm:"type:varchar(191);not null;default:''"`
	StripeSubscriptionID       string     `gorm:"type:varchar(191);not null;default:'';index:idx_users_stripe_subscription"`
	LemonSqueezyCustomerID     string     `gorm:"column:lemonsqueezy_customer_id;type:varchar(191);not null;default:''"`
	LemonSqueezySubscriptionID string     `gorm:"column:lemonsqueezy_subscription_id;type:varchar(191);not null;default:'';index:idx_users_lemonsqueezy_subscription"`
	CreatedAt                  time.Time  `gorm:"type:datetime(3);autoCreateTime"`
	UpdatedAt                  time.Time  `gorm:"type:datetime(3);autoUpdateTime"`
}

func (userRecord) TableName() string { return "users" }

func (r userRecord) toUser() *billing.User {
	return &billing.User{
		ID:                         r.ID,
		Email:                      r.Email,
		Name:                       r.Name,
		SubscriptionTier:           billing.Tier(r.SubscriptionTier),
		SubscriptionStatus:         billing.Status(r.SubscriptionStatus),
		SubscriptionEndDate:        r.SubscriptionEndDate,
		StripeCustomerID:           r.StripeCustomerID,
		StripeSubscriptionID:       r.StripeSubscriptionID,
		LemonSqueezyCustomerID:     r.LemonSqueezyCustomerID,
		LemonSqueezySubscriptionID: r.LemonSqueezySubscriptionID,
		CreatedAt:                  r.CreatedAt,
		UpdatedAt:                  r.UpdatedAt,
	}
}

func recordFromUser(u billing.User) userRecord {
	return userRecord{
		ID:                         u.ID,
		Email:                      u.Email,
		Name:                       u.Name,
		SubscriptionTier:           string(u.SubscriptionTier),
		SubscriptionStatus:         string(u.SubscriptionStatus),
		SubscriptionEndDate:        u.SubscriptionEndDate,
		StripeCustomerID:           u.StripeCustomerID,
		StripeSubscriptionID:       u.StripeSubscriptionID,
		LemonSqueezyCustomerID:     u.LemonSqueezyCustomerID,
		LemonSqueezySubscriptionID: u.LemonSqueezySubscriptionID,
	}
}

// MySQLStore persists users through gorm. The schema is created by the
// embedded goose migrations, not by AutoMigrate.
type MySQLStore struct {
	db *gorm.DB
}

// NewMySQLStore wraps an open gorm handle.
func NewMySQLStore(db *gorm.DB) *MySQLStore {
	if db == nil {
		panic("userstore: nil gorm handle")
	}
	return &MySQLStore{db: db}
}

// Put inserts or replaces a user.
func (s *MySQLStore) Put(ctx context.Context, u billing.User) error {
	rec := recordFromUser(u)
	return s.db.WithContext(ctx).Save(&rec).Error
}

func (s *MySQLStore) GetUser(ctx context.Context, id string) (*billing.User, error) {
	var rec userRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrUserNotFound
		}
		return nil, err
	}
	return rec.toUser(), nil
}

func (s *MySQLStore) FindBySubscription(ctx context.Context, provider billing.ProviderName, subscriptionID string) (*billing.User, error) {
	col, ok := subscriptionColumn(provider)
	if !ok || subscriptionID == "" {
		return nil, billing.ErrUserNotFound
	}

	var rec userRecord
	if err := s.db.WithContext(ctx).Where(col+" = ?", subscriptionID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrUserNotFound
		}
		return nil, err
	}
	return rec.toUser(), nil
}

func (s *MySQLStore) UpdateSubscription(ctx context.Context, id string, upd billing.SubscriptionUpdate) error {
	values := map[string]any{"updated_at": time.Now().UTC()}
	if upd.Status != "" {
		values["subscription_status"] = string(upd.Status)
	}
	if upd.EndDate != nil {
		values["subscription_end_date"] = upd.EndDate.UTC()
	}

	q := s.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", id)
	if upd.ExpectStatus != nil {
		q = q.Where("subscription_status = ?", string(*upd.ExpectStatus))
	}
	res := q.Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Zero rows: either the user is gone or the guard did not match.
	var count int64
	if err := s.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return billing.ErrUserNotFound
	}
	if upd.ExpectStatus != nil {
		return billing.ErrStatusConflict
	}
	return nil
}
