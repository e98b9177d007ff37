// Package storage persists named model artifacts.
//
// Three backends implement Store:
//   - MemoryStore: process-local map, used by tests and single-process runs
//   - FileStore: one <name>.json file per artifact under a directory
//   - RedisStore: shared key/value storage for multi-instance serving
//
// Stores move opaque bytes; encoding and schema checks belong to the caller.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Record is one stored artifact.
type Record struct {
	Name     string    `json:"name"`
	Data     []byte    `json:"data"`
	StoredAt time.Time `json:"stored_at"`
}

// Store saves and loads artifacts by name.
type Store interface {
	// Put stores rec, replacing any artifact with the same name.
	Put(ctx context.Context, rec Record) error

	// Get returns the artifact called name. found is false when it does not
	// exist; err is reserved for backend failures.
	Get(ctx context.Context, name string) (rec Record, found bool, err error)
}

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_.-]{0,251}[a-zA-Z0-9])?$`)

// ValidateName rejects names that are empty or unsafe as a file name or key.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact name required")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid artifact name %q: only alphanumeric, dots, hyphens, and underscores allowed", name)
	}
	return nil
}
