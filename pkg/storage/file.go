package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore writes each artifact to <dir>/<name>.json. Writes go to a
// temporary file first and are renamed into place, so readers never observe a
// partially written artifact.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("artifact directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file backing name.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Put writes rec.Data atomically. Get reports the file's mtime as StoredAt.
func (s *FileStore) Put(ctx context.Context, rec Record) error {
	if err := ValidateName(rec.Name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+rec.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(rec.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(rec.Name)); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// Get reads the artifact file.
func (s *FileStore) Get(ctx context.Context, name string) (Record, bool, error) {
	if err := ValidateName(name); err != nil {
		return Record{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	path := s.Path(name)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("stat artifact: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, false, fmt.Errorf("read artifact: %w", err)
	}
	return Record{Name: name, Data: data, StoredAt: info.ModTime().UTC()}, true, nil
}
