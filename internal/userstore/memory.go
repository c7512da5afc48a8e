package userstore

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/saasbilling/pkg/billing"
)

// MemoryStore keeps users in a map. It is used in development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]billing.User
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]billing.User),
		now:   time.Now,
	}
}

// Put inserts or replaces a user.
func (s *MemoryStore) Put(_ context.Context, u billing.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.SubscriptionEndDate = cloneTime(u.SubscriptionEndDate)
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*billing.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, billing.ErrUserNotFound
	}
	u.SubscriptionEndDate = cloneTime(u.SubscriptionEndDate)
	return &u, nil
}

func (s *MemoryStore) FindBySubscription(_ context.Context, provider billing.ProviderName, subscriptionID string) (*billing.User, error) {
	if subscriptionID == "" {
		return nil, billing.ErrUserNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		var match bool
		switch provider {
		case billing.ProviderStripe:
			match = u.StripeSubscriptionID == subscriptionID
		case billing.ProviderLemonSqueezy:
			match = u.LemonSqueezySubscriptionID == subscriptionID
		}
		if match {
			u.SubscriptionEndDate = cloneTime(u.SubscriptionEndDate)
			return &u, nil
		}
	}
	return nil, billing.ErrUserNotFound
}

func (s *MemoryStore) UpdateSubscription(_ context.Context, id string, upd billing.SubscriptionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return billing.ErrUserNotFound
	}
	if upd.ExpectStatus != nil && u.SubscriptionStatus != *upd.ExpectStatus {
		return billing.ErrStatusConflict
	}

	if upd.Status != "" {
		u.SubscriptionStatus = upd.Status
	}
	if upd.EndDate != nil {
		u.SubscriptionEndDate = cloneTime(upd.EndDate)
	}
	u.UpdatedAt = s.now()
	s.users[id] = u
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
