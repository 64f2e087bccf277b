package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Journal is a durable, hash-chained audit log backed by a local
// sqlite database. It reloads the chain tip on open, so appends across
// restarts keep extending the same chain.
type Journal struct {
	mu    sync.Mutex
	db    *sql.DB
	chain *ChainLogger
}

// Open opens (creating if needed) the journal database at path and
// positions the chain at the last stored hash.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			operation TEXT NOT NULL,
			previous_hash TEXT NOT NULL,
			payload TEXT NOT NULL,
			hash TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}

	var lastHash string
	err = db.QueryRow(`SELECT hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&lastHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &Journal{db: db, chain: NewChainLogger()}, nil
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("failed to read chain tip: %w", err)
	default:
		return &Journal{db: db, chain: NewChainLoggerFrom(lastHash)}, nil
	}
}

// Record appends one operation to the journal. The chain append and
// the database insert happen under one lock so stored order matches
// chain order.
func (j *Journal) Record(ctx context.Context, operation, payload string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := j.chain.Append(operation, payload)
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO audit_log (timestamp, operation, previous_hash, payload, hash)
		VALUES (?, ?, ?, ?, ?)
	`, entry.Timestamp, entry.Operation, entry.PreviousHash, entry.Payload, entry.Hash)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Entries returns the full journal in append order.
func (j *Journal) Entries(ctx context.Context) ([]*LogEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT timestamp, operation, previous_hash, payload, hash
		FROM audit_log ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.Timestamp, &e.Operation, &e.PreviousHash, &e.Payload, &e.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Verify re-reads the whole journal and checks the hash chain.
func (j *Journal) Verify(ctx context.Context) (bool, error) {
	entries, err := j.Entries(ctx)
	if err != nil {
		return false, err
	}
	return VerifyChain(entries), nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
