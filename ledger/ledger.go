// Package ledger persists the mapping between master tickets and the
// follower orders copied from them. The engine re-derives truth from live
// terminal state every tick; the ledger only tracks identity linkage, so
// reads that are stale by one write are acceptable.
package ledger

import (
	"fmt"
	"time"
)

// Status of a copy record. Records are never deleted, only marked closed,
// preserving the audit trail.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// CopyRecord links one master ticket to the follower order copied from it
// on one follower account. Key = (MasterTicket, FollowerLogin).
type CopyRecord struct {
	ID             string    `json:"id"`
	MasterTicket   int64     `json:"master_ticket"`
	FollowerTicket int64     `json:"follower_ticket"`
	FollowerLogin  int64     `json:"follower_login"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Volume         float64   `json:"volume"`
	Status         Status    `json:"status"`
	OpenedAt       time.Time `json:"opened_at"`
	ClosedAt       time.Time `json:"closed_at,omitempty"`
}

// Key returns the composite lookup key for a record.
func Key(masterTicket, followerLogin int64) string {
	return fmt.Sprintf("%d_%d", masterTicket, followerLogin)
}

// Ledger is the persisted copy-record store. All mutations are serialized by
// the backend; implementations must survive process restart without losing
// OPEN/CLOSED status.
type Ledger interface {
	// Upsert inserts or replaces the record for its composite key.
	Upsert(rec CopyRecord) error
	// MarkClosed transitions the record to CLOSED and stamps ClosedAt.
	// Missing records are a no-op.
	MarkClosed(masterTicket, followerLogin int64) error
	// Get returns the record for the composite key; ok is false on miss.
	Get(masterTicket, followerLogin int64) (CopyRecord, bool, error)
	// ListOpen returns OPEN records for a follower; login 0 returns all.
	ListOpen(followerLogin int64) ([]CopyRecord, error)
	// List returns all records for a follower regardless of status;
	// login 0 returns every record. Audit view.
	List(followerLogin int64) ([]CopyRecord, error)
	Close() error
}
