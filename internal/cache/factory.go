package cache

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	// Backend is "disk", "memory" or "redis".
	Backend    string
	Dir        string
	MaxEntries int
	Prefix     string
	// JanitorInterval drives expired-entry sweeps for disk and memory.
	JanitorInterval time.Duration
}

// NewStore builds the configured backend. redisClient is only consulted for
// the redis backend.
func NewStore(cfg Config, redisClient *redis.Client) (Store, error) {
	switch cfg.Backend {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis backend selected but no redis client configured")
		}
		return NewRedisStore(redisClient, cfg.Prefix), nil
	case "memory":
		return NewMemoryStore(cfg.MaxEntries, cfg.JanitorInterval), nil
	case "disk", "":
		return NewDiskStore(cfg.Dir, cfg.MaxEntries, cfg.JanitorInterval)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
