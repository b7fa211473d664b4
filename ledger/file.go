package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/copier/pkg/id"
)

// FileLedger keeps all records in one JSON document on disk. Every mutation
// rewrites the whole document under a single writer lock; the record count
// is small (one per copied trade) so this stays cheap.
type FileLedger struct {
	mu      sync.Mutex
	path    string
	records map[string]CopyRecord
}

// NewFile opens or creates a JSON-file ledger. A missing or corrupt file
// starts empty rather than failing: the engine rebuilds linkage from live
// follower comments on its first pass.
func NewFile(path string) (*FileLedger, error) {
	l := &FileLedger{
		path:    path,
		records: make(map[string]CopyRecord),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := l.flushLocked(); err != nil {
				return nil, err
			}
			return l, nil
		}
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &l.records); err != nil {
			l.records = make(map[string]CopyRecord)
		}
	}
	return l, nil
}

func (l *FileLedger) flushLocked() error {
	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger temp: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename ledger: %w", err)
	}
	return nil
}

func (l *FileLedger) Upsert(rec CopyRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID == "" {
		rec.ID = id.New()
	}
	if rec.Status == "" {
		rec.Status = StatusOpen
	}
	l.records[Key(rec.MasterTicket, rec.FollowerLogin)] = rec
	return l.flushLocked()
}

func (l *FileLedger) MarkClosed(masterTicket, followerLogin int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := Key(masterTicket, followerLogin)
	rec, ok := l.records[key]
	if !ok {
		return nil
	}
	rec.Status = StatusClosed
	rec.ClosedAt = time.Now().UTC()
	l.records[key] = rec
	return l.flushLocked()
}

func (l *FileLedger) Get(masterTicket, followerLogin int64) (CopyRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[Key(masterTicket, followerLogin)]
	return rec, ok, nil
}

func (l *FileLedger) ListOpen(followerLogin int64) ([]CopyRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []CopyRecord
	for _, rec := range l.records {
		if rec.Status != StatusOpen {
			continue
		}
		if followerLogin != 0 && rec.FollowerLogin != followerLogin {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MasterTicket < out[j].MasterTicket })
	return out, nil
}

func (l *FileLedger) List(followerLogin int64) ([]CopyRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []CopyRecord
	for _, rec := range l.records {
		if followerLogin != 0 && rec.FollowerLogin != followerLogin {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MasterTicket < out[j].MasterTicket })
	return out, nil
}

func (l *FileLedger) Close() error {
	return nil
}
