package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"
)

// ErrUnavailable means the snapshot could not be read after the bounded
// retry budget. Callers treat it as "no update this tick", never as fatal.
var ErrUnavailable = errors.New("snapshot: unavailable")

const (
	writeRenameRetries = 50
	readRetries        = 5
	readRetryDelay     = 20 * time.Millisecond
)

// Store reads and writes the shared snapshot file. Writers use the
// temp-then-rename pattern so a concurrent reader never observes a
// half-written document; readers tolerate transient locks and partial
// writes with bounded retry rather than blocking waits.
type Store struct {
	path string
}

// NewStore returns a store over the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the transport file location.
func (s *Store) Path() string { return s.path }

// Write publishes a snapshot atomically. Some platforms briefly lock the
// destination during a concurrent read, so the rename is retried with a
// randomized 1-10ms pause. Exhausting the retries skips this publish; the
// next tick writes fresh state anyway.
func (s *Store) Write(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	defer os.Remove(tmp)

	var renameErr error
	for i := 0; i < writeRenameRetries; i++ {
		renameErr = os.Rename(tmp, s.path)
		if renameErr == nil {
			return nil
		}
		time.Sleep(time.Duration(1+rand.Intn(10)) * time.Millisecond)
	}
	return fmt.Errorf("rename snapshot after %d attempts: %w", writeRenameRetries, renameErr)
}

// Read returns the latest snapshot and its content hash. Missing files and
// decode failures (partial writes in progress) are retried with a short
// backoff up to the attempt budget, then reported as ErrUnavailable.
func (s *Store) Read() (Snapshot, string, error) {
	var lastErr error
	for i := 0; i < readRetries; i++ {
		if i > 0 {
			time.Sleep(readRetryDelay)
		}

		data, err := os.ReadFile(s.path)
		if err != nil {
			lastErr = err
			continue
		}
		if len(data) == 0 {
			lastErr = errors.New("empty snapshot file")
			continue
		}

		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			lastErr = err
			continue
		}
		return snap, snap.ContentHash(), nil
	}
	return Snapshot{}, "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
