package billing

import (
	"context"
	"time"
)

// SubscriptionUpdate changes the stored subscription fields of a user.
type SubscriptionUpdate struct {
	// Status replaces the stored status unless empty.
	Status Status
	// EndDate replaces the stored end date when non-nil.
	EndDate *time.Time
	// ExpectStatus, when non-nil, makes the update conditional on the stored
	// status still being this value. A mismatch returns ErrStatusConflict.
	ExpectStatus *Status
}

// UserStore persists users and their subscription fields.
type UserStore interface {
	// GetUser returns ErrUserNotFound for unknown IDs.
	GetUser(ctx context.Context, id string) (*User, error)
	// FindBySubscription looks a user up by provider subscription ID.
	FindBySubscription(ctx context.Context, provider ProviderName, subscriptionID string) (*User, error)
	UpdateSubscription(ctx context.Context, id string, upd SubscriptionUpdate) error
}
