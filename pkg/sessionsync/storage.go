package sessionsync

import (
	"context"
	"sync"
)

// Change is a storage notification. Watchers are told only when a value
// actually changes; writing the stored value again is silent.
type Change struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Storage is the fallback transport's shared key-value store.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Watch delivers changes to key until ctx is done.
	Watch(ctx context.Context, key string) (<-chan Change, error)
}

// MemoryStorage is a process-local Storage.
type MemoryStorage struct {
	mu       sync.Mutex
	values   map[string]string
	watchers map[string]map[chan Change]struct{}
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values:   make(map[string]string),
		watchers: make(map[string]map[chan Change]struct{}),
	}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.values[key]; ok && old == value {
		return nil
	}
	s.values[key] = value
	s.notify(Change{Key: key, Value: value})
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	s.notify(Change{Key: key, Deleted: true})
	return nil
}

func (s *MemoryStorage) Watch(ctx context.Context, key string) (<-chan Change, error) {
	ch := make(chan Change, 64)

	s.mu.Lock()
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[chan Change]struct{})
	}
	s.watchers[key][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers[key], ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

// notify must be called with s.mu held. Full watchers miss the change.
func (s *MemoryStorage) notify(c Change) {
	for ch := range s.watchers[c.Key] {
		select {
		case ch <- c:
		default:
		}
	}
}
