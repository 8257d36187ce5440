// Package storage persists fingerprint database snapshots. Three backends are
// available: a single checksummed file, a SQLite database and a Badger
// key-value directory.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/himanishpuri/soundmark/pkg/models"
)

// Store saves and restores complete snapshots. Save replaces whatever the
// store held before.
type Store interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	Load(ctx context.Context) (*models.Snapshot, error)
	Close() error
}

// Kind names a backend.
type Kind string

const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
	KindBadger Kind = "badger"
)

// ParseKind accepts a backend name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindFile, KindSQLite, KindBadger:
		return k, nil
	case "", "gob":
		return KindFile, nil
	}
	return "", fmt.Errorf("%w: unknown store kind %q", models.ErrInvalidInput, s)
}

// DefaultPath is the location a backend uses when none is given.
func DefaultPath(kind Kind) string {
	switch kind {
	case KindSQLite:
		return DefaultDBFile
	case KindBadger:
		return DefaultBadgerDir
	}
	return DefaultSnapshotFile
}

// Open returns the backend of the given kind rooted at path. For the file
// backend path is a file, for badger it is a directory.
func Open(kind Kind, path string) (Store, error) {
	switch kind {
	case KindFile:
		return NewFileStore(path), nil
	case KindSQLite:
		return NewSQLiteStore(path)
	case KindBadger:
		return NewBadgerStore(path)
	}
	return nil, fmt.Errorf("%w: unknown store kind %q", models.ErrInvalidInput, kind)
}
