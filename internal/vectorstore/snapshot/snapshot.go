// Package snapshot persists index entries to a single local file.
//
// Two formats are supported and chosen by file extension: ".db" and
// ".sqlite" are written as a SQLite database, anything else as a gob stream.
// Both are written to a temporary file in the destination directory, synced
// and renamed into place, so a crash never leaves a half-written snapshot at
// the destination path.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"groundedrag/internal/domain"
)

// Version is the current snapshot format version.
const Version = 1

// Meta describes the index a snapshot was taken from.
type Meta struct {
	Version   int
	Embedder  string
	Dimension int
	CreatedAt time.Time
}

// Snapshot is the persisted form of an index.
type Snapshot struct {
	Meta    Meta
	Entries []domain.IndexEntry
}

// Codec encodes and decodes snapshots at a path.
type Codec interface {
	Name() string
	Write(ctx context.Context, path string, s *Snapshot) error
	Read(ctx context.Context, path string) (*Snapshot, error)
}

// CodecFor picks the codec for a path from its extension.
func CodecFor(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return sqliteCodec{}
	default:
		return gobCodec{}
	}
}

// Save writes s to path with the codec matching its extension.
func Save(ctx context.Context, path string, s *Snapshot) error {
	if s.Meta.Version == 0 {
		s.Meta.Version = Version
	}
	if s.Meta.CreatedAt.IsZero() {
		s.Meta.CreatedAt = time.Now().UTC()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	return CodecFor(path).Write(ctx, path, s)
}

// Load reads a snapshot from path. It fails with ErrIndexNotFound when the
// path does not exist and ErrCorruptIndex when the file cannot be decoded or
// its vectors are inconsistent.
func Load(ctx context.Context, path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrCorruptIndex, path)
	}
	s, err := CodecFor(path).Read(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrCorruptIndex) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrCorruptIndex, path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrCorruptIndex, path, err)
	}
	return s, nil
}

func (s *Snapshot) validate() error {
	if s.Meta.Version != Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Meta.Version)
	}
	for i, e := range s.Entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("entry %d has an empty vector", i)
		}
		if len(e.Vector) != s.Meta.Dimension {
			return fmt.Errorf("entry %d has %d dimensions, expected %d", i, len(e.Vector), s.Meta.Dimension)
		}
	}
	return nil
}

// writeAtomic creates a temp file next to path, lets fill write it, syncs it
// and renames it over path.
func writeAtomic(path string, fill func(tmp string) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if err = f.Close(); err != nil {
		return err
	}

	if err = fill(tmp); err != nil {
		return err
	}

	f, err = os.OpenFile(tmp, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
