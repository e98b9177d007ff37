package storage

import (
	"fmt"
	"time"
)

// Options selects and configures a backend for Open.
type Options struct {
	// Backend is "memory", "file" or "redis".
	Backend string

	// Dir is the FileStore directory.
	Dir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

// Open creates the configured Store. Callers should close it when it
// implements io.Closer.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		s, err := NewFileStore(opts.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := NewRedisStore(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisTTL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (must be memory, file, or redis)", opts.Backend)
	}
}
