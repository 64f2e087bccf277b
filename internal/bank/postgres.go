package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/retail-ledger/internal/statement"
)

// PostgresStore persists bank batches and their transactions.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

// ImportBatch inserts a statement batch. The overlap check, the
// authorized overwrite-delete and the inserts run in one SERIALIZABLE
// transaction so two concurrent imports cannot both observe "no
// conflict".
func (ps *PostgresStore) ImportBatch(ctx context.Context, batch *Batch, rows []statement.Row, overwrite bool) (int64, error) {
	const maxRetries = 3

	var batchID int64
	for attempt := 0; attempt < maxRetries; attempt++ {
		id, err := ps.importBatchTx(ctx, batch, rows, overwrite)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "40001" {
				if attempt == maxRetries-1 {
					return 0, fmt.Errorf("failed to import batch after %d retries due to serialization failure: %w", maxRetries, err)
				}
				time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
				continue
			}
			return 0, err
		}
		batchID = id
		break
	}
	return batchID, nil
}

func (ps *PostgresStore) importBatchTx(ctx context.Context, batch *Batch, rows []statement.Row, overwrite bool) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := ps.Pool.Acquire(queryCtx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(queryCtx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(queryCtx)

	conflictRows, err := tx.Query(queryCtx, `
		SELECT id, bank, original_filename, date_from, date_to, created_at
		FROM bank_batches
		WHERE bank = $1 AND date_from <= $3 AND date_to >= $2
		FOR UPDATE
	`, batch.Bank, batch.DateFrom, batch.DateTo)
	if err != nil {
		return 0, fmt.Errorf("failed to check period conflicts: %w", err)
	}
	conflicts, err := scanBatches(conflictRows)
	if err != nil {
		return 0, err
	}

	if len(conflicts) > 0 {
		if !overwrite {
			return 0, &ConflictError{Batches: conflicts}
		}
		ids := make([]int64, len(conflicts))
		for i, b := range conflicts {
			ids[i] = b.ID
		}
		// bank_transactions rows go with their batch (ON DELETE CASCADE).
		if _, err := tx.Exec(queryCtx, `DELETE FROM bank_batches WHERE id = ANY($1)`, ids); err != nil {
			return 0, fmt.Errorf("failed to delete conflicting batches: %w", err)
		}
	}

	var batchID int64
	err = tx.QueryRow(queryCtx, `
		INSERT INTO bank_batches (bank, original_filename, date_from, date_to)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, batch.Bank, batch.Filename, batch.DateFrom, batch.DateTo).Scan(&batchID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}

	_, err = tx.CopyFrom(queryCtx,
		pgx.Identifier{"bank_transactions"},
		[]string{"batch_id", "date", "concept", "description", "amount"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{batchID, r.Date, r.Concept, r.Description, r.Amount}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transactions: %w", err)
	}

	if err := tx.Commit(queryCtx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return batchID, nil
}

func scanBatches(rows pgx.Rows) ([]Batch, error) {
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.Bank, &b.Filename, &b.DateFrom, &b.DateTo, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListTransactions returns movements for one institution, optionally
// bounded by date, ordered by date then insertion.
func (ps *PostgresStore) ListTransactions(ctx context.Context, bank string, from, to *time.Time) ([]Transaction, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := `
		SELECT t.id, t.batch_id, t.date, t.concept, t.description, t.amount
		FROM bank_transactions t
		JOIN bank_batches b ON b.id = t.batch_id
		WHERE 1=1
	`
	args := []any{}
	argCount := 1

	if bank != "" {
		query += fmt.Sprintf(" AND b.bank = $%d", argCount)
		args = append(args, bank)
		argCount++
	}
	if from != nil {
		query += fmt.Sprintf(" AND t.date >= $%d", argCount)
		args = append(args, *from)
		argCount++
	}
	if to != nil {
		query += fmt.Sprintf(" AND t.date <= $%d", argCount)
		args = append(args, *to)
		argCount++
	}
	query += " ORDER BY t.date, t.id"

	rows, err := ps.Pool.Query(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.BatchID, &t.Date, &t.Concept, &t.Description, &t.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
