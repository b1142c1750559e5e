package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// FileStore keeps sync records in one JSON file, loaded at open and
// rewritten atomically on every update. An absent or empty file means
// nothing has been synced yet.
type FileStore struct {
	path string

	mu   sync.Mutex
	recs map[string]Record
}

// OpenFileStore loads the store at path, creating an empty one in memory
// if the file does not exist yet. The file itself is created on the
// first Put.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, recs: make(map[string]Record)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.recs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, remoteID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[remoteID]
	return rec, ok, nil
}

func (s *FileStore) Put(ctx context.Context, remoteID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[remoteID] = rec
	if err := s.flush(); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) All(ctx context.Context) (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Record, len(s.recs))
	for id, rec := range s.recs {
		out[id] = rec
	}
	return out, nil
}

func (s *FileStore) Close() error {
	return nil
}

// flush rewrites the whole file. The mutex serializes writers in this
// process; the advisory lock serializes against other processes so two
// rewrites never interleave. Callers hold s.mu.
func (s *FileStore) flush() error {
	lock, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer lock.Close()
	if err := lockFile(lock); err != nil {
		return err
	}
	defer func() { _ = unlockFile(lock) }()

	data, err := json.MarshalIndent(s.recs, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
