package ledger

const schema = `
CREATE TABLE IF NOT EXISTS copy_records (
	id TEXT NOT NULL,
	master_ticket INTEGER NOT NULL,
	follower_ticket INTEGER NOT NULL,
	follower_login INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	volume REAL NOT NULL,
	status TEXT NOT NULL,
	opened_at DATETIME NOT NULL,
	closed_at DATETIME,
	PRIMARY KEY (master_ticket, follower_login)
);

CREATE INDEX IF NOT EXISTS idx_copy_records_status ON copy_records(status, follower_login);
`
