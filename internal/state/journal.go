package state

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JournalEntry is one line of the operation journal.
type JournalEntry struct {
	Time     time.Time `json:"time"`
	Op       string    `json:"op"` // pull or push
	Project  string    `json:"project,omitempty"`
	Root     string    `json:"root,omitempty"`
	RemoteID string    `json:"remoteId"`
	Path     string    `json:"path,omitempty"`
	Version  int       `json:"version,omitempty"`
	Outcome  string    `json:"outcome"`
	Error    string    `json:"error,omitempty"`
}

// Journal is an append-only JSONL log of sync and push outcomes. Each
// entry is one JSON object per line, so history survives crashes and can
// be inspected with standard line tools.
type Journal struct {
	path string
	mu   sync.Mutex
}

// OpenJournal returns the journal for the project directory dir. The
// file is created on first append.
func OpenJournal(dir string) *Journal {
	return &Journal{path: filepath.Join(dir, ".confsync", "journal.jsonl")}
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Append writes one entry as a single line. Each entry is written with
// one Write call on an O_APPEND handle, so concurrent appenders cannot
// interleave bytes within a line.
func (j *Journal) Append(entry JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// ReadSince returns entries whose time is at or after cutoff, oldest
// first. A zero cutoff returns everything; a missing journal returns
// nothing. Malformed lines are skipped so one torn write cannot poison
// the whole history.
func (j *Journal) ReadSince(cutoff time.Time) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if !cutoff.IsZero() && entry.Time.Before(cutoff) {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}
