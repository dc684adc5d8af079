package snapshot

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
)

type gobCodec struct{}

func (gobCodec) Name() string { return "gob" }

func (gobCodec) Write(ctx context.Context, path string, s *Snapshot) error {
	return writeAtomic(path, func(tmp string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		w := bufio.NewWriter(f)
		if err := gob.NewEncoder(w).Encode(s); err != nil {
			_ = f.Close()
			return fmt.Errorf("encode snapshot: %w", err)
		}
		if err := w.Flush(); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	})
}

func (gobCodec) Read(ctx context.Context, path string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}
