package sessionsync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// setIfChanged stores ARGV[1] under KEYS[1] and publishes a change on
// KEYS[2] only when the stored value differs.
var setIfChanged = redis.NewScript(`
local old = redis.call("GET", KEYS[1])
if old == ARGV[1] then return 0 end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("PUBLISH", KEYS[2], ARGV[2])
return 1
`)

// RedisStorage is a Storage shared by every process using the same Redis.
// Keys expire after ttl so an interrupted delete does not leave them behind.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStorage(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStorage {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisStorage{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStorage) key(k string) string {
	return s.prefix + k
}

func (s *RedisStorage) changes(k string) string {
	return s.prefix + k + ":changes"
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	note, err := json.Marshal(Change{Key: key, Value: value})
	if err != nil {
		return err
	}
	return setIfChanged.Run(ctx, s.client,
		[]string{s.key(key), s.changes(key)},
		value, string(note), s.ttl.Milliseconds(),
	).Err()
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	n, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil || n == 0 {
		return err
	}
	note, err := json.Marshal(Change{Key: key, Deleted: true})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.changes(key), note).Err()
}

func (s *RedisStorage) Watch(ctx context.Context, key string) (<-chan Change, error) {
	ps := s.client.Subscribe(ctx, s.changes(key))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan Change, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if json.Unmarshal([]byte(m.Payload), &c) != nil {
					continue
				}
				select {
				case out <- c:
				default:
				}
			}
		}
	}()
	return out, nil
}
