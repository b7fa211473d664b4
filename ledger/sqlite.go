package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/copier/pkg/id"
)

// SQLiteLedger stores copy records in a local SQLite database. The composite
// primary key (master_ticket, follower_login) makes Upsert idempotent.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite ledger at path.
func NewSQLite(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) Upsert(rec CopyRecord) error {
	if rec.ID == "" {
		rec.ID = id.New()
	}
	if rec.Status == "" {
		rec.Status = StatusOpen
	}

	var closedAt interface{}
	if !rec.ClosedAt.IsZero() {
		closedAt = rec.ClosedAt
	}

	_, err := l.db.Exec(`
		INSERT INTO copy_records
		(id, master_ticket, follower_ticket, follower_login, symbol, side, volume, status, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(master_ticket, follower_login) DO UPDATE SET
			follower_ticket = excluded.follower_ticket,
			symbol = excluded.symbol,
			side = excluded.side,
			volume = excluded.volume,
			status = excluded.status,
			opened_at = excluded.opened_at,
			closed_at = excluded.closed_at`,
		rec.ID, rec.MasterTicket, rec.FollowerTicket, rec.FollowerLogin,
		rec.Symbol, rec.Side, rec.Volume, string(rec.Status), rec.OpenedAt, closedAt,
	)
	return err
}

func (l *SQLiteLedger) MarkClosed(masterTicket, followerLogin int64) error {
	_, err := l.db.Exec(`
		UPDATE copy_records SET status = ?, closed_at = ?
		WHERE master_ticket = ? AND follower_login = ?`,
		string(StatusClosed), time.Now().UTC(), masterTicket, followerLogin,
	)
	return err
}

func (l *SQLiteLedger) Get(masterTicket, followerLogin int64) (CopyRecord, bool, error) {
	row := l.db.QueryRow(`
		SELECT id, master_ticket, follower_ticket, follower_login, symbol, side, volume, status, opened_at, closed_at
		FROM copy_records WHERE master_ticket = ? AND follower_login = ?`,
		masterTicket, followerLogin,
	)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return CopyRecord{}, false, nil
	}
	if err != nil {
		return CopyRecord{}, false, err
	}
	return rec, true, nil
}

func (l *SQLiteLedger) ListOpen(followerLogin int64) ([]CopyRecord, error) {
	query := `
		SELECT id, master_ticket, follower_ticket, follower_login, symbol, side, volume, status, opened_at, closed_at
		FROM copy_records WHERE status = ?`
	args := []interface{}{string(StatusOpen)}
	if followerLogin != 0 {
		query += ` AND follower_login = ?`
		args = append(args, followerLogin)
	}
	query += ` ORDER BY master_ticket`

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CopyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) List(followerLogin int64) ([]CopyRecord, error) {
	query := `
		SELECT id, master_ticket, follower_ticket, follower_login, symbol, side, volume, status, opened_at, closed_at
		FROM copy_records`
	var args []interface{}
	if followerLogin != 0 {
		query += ` WHERE follower_login = ?`
		args = append(args, followerLogin)
	}
	query += ` ORDER BY master_ticket`

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CopyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (CopyRecord, error) {
	var rec CopyRecord
	var status string
	var closedAt sql.NullTime
	err := s.Scan(
		&rec.ID, &rec.MasterTicket, &rec.FollowerTicket, &rec.FollowerLogin,
		&rec.Symbol, &rec.Side, &rec.Volume, &status, &rec.OpenedAt, &closedAt,
	)
	if err != nil {
		return CopyRecord{}, err
	}
	rec.Status = Status(status)
	if closedAt.Valid {
		rec.ClosedAt = closedAt.Time
	}
	return rec, nil
}
