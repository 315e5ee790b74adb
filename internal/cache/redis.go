package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a shared redis instance. Expiry is
// delegated to redis TTLs; entries with TTL zero are stored without expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// key builds the final redis key with prefix.
func (s *RedisStore) key(fingerprint string) string {
	if s.prefix == "" {
		return "entry:" + fingerprint
	}
	return s.prefix + ":entry:" + fingerprint
}

func (s *RedisStore) Get(ctx context.Context, fingerprint string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, storageErr("get", err)
	}

	raw, err := s.client.Get(ctx, s.key(fingerprint)).Bytes()
	if err == redis.Nil {
		// Key does not exist or expired server-side: a clean miss.
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, storageErr("get", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, storageErr("get", err)
	}

	// Redis TTL drift can lag the entry's own clock slightly.
	if entry.IsExpired(time.Now()) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (s *RedisStore) Put(ctx context.Context, fingerprint string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return storageErr("put", err)
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return storageErr("put", err)
	}

	var expiry time.Duration
	if entry.TTL > 0 {
		expiry = entry.TTL
	}

	if err := s.client.Set(ctx, s.key(fingerprint), raw, expiry).Err(); err != nil {
		return storageErr("put", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return storageErr("delete", err)
	}
	if err := s.client.Del(ctx, s.key(fingerprint)).Err(); err != nil {
		return storageErr("delete", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return nil }

// Ping checks if the redis connection is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
