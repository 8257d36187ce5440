package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/himanishpuri/soundmark/pkg/models"
	"github.com/himanishpuri/soundmark/pkg/utils"
)

const DefaultSnapshotFile = "soundmark.snap"

// FileStore keeps the snapshot in a single file. Saves go to a temporary file
// in the same directory that is then renamed over the target.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultSnapshotFile
	}
	return &FileStore{path: path}
}

// Path is the snapshot file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := utils.MakeDir(dir); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer utils.DeleteFile(tmpPath)

	if err := Encode(tmp, snap); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	return utils.MoveFile(tmpPath, s.path)
}

// Load returns an empty snapshot when the file does not exist yet.
func (s *FileStore) Load(ctx context.Context) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func (s *FileStore) Close() error { return nil }
