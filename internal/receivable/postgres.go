package receivable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists clients and their transactions.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

const maxRetries = 3

// withSerializableTx runs fn in a SERIALIZABLE transaction, retrying on
// serialization failure. Concurrent allocations against the same
// transaction cannot both observe the pre-payment remaining amount.
func (ps *PostgresStore) withSerializableTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := ps.runTx(ctx, fn)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "40001" {
				if attempt == maxRetries-1 {
					return fmt.Errorf("transaction failed after %d retries due to serialization failure: %w", maxRetries, err)
				}
				time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
				continue
			}
			return err
		}
		return nil
	}
	return nil
}

func (ps *PostgresStore) runTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := ps.Pool.Acquire(queryCtx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(queryCtx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(queryCtx)

	if err := fn(queryCtx, tx); err != nil {
		return err
	}
	if err := tx.Commit(queryCtx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const selectTransaction = `
	SELECT id, external_id, client_id, date, description, original_amount, paid_amount, payments, status, created_at
	FROM account_transactions
`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		t        Transaction
		payments []byte
	)
	err := row.Scan(&t.ID, &t.ExternalID, &t.ClientID, &t.Date, &t.Description,
		&t.OriginalAmount, &t.PaidAmount, &payments, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(payments) > 0 {
		if err := json.Unmarshal(payments, &t.Payments); err != nil {
			return nil, fmt.Errorf("failed to decode payment history: %w", err)
		}
	}
	return &t, nil
}

func scanTransactions(rows pgx.Rows) ([]*Transaction, error) {
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// AllocatePayment locks the candidate transactions, runs the in-memory
// allocation, writes back the changed rows and re-derives the client's
// totals, all in one transaction.
func (ps *PostgresStore) AllocatePayment(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	var result *AllocationResult
	err := ps.withSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		candidates, err := lockCandidates(ctx, tx, req)
		if err != nil {
			return err
		}
		switch req.Mode {
		case ModeSelectedFull, ModeSelectedPartial:
			// The caller's list order drives the greedy spread.
			candidates = orderByRequest(candidates, req.TransactionIDs)
		default:
			SortOldestFirst(candidates)
		}

		before := make(map[uuid.UUID]decimal.Decimal, len(candidates))
		for _, t := range candidates {
			before[t.ID] = t.PaidAmount
		}

		var applied decimal.Decimal
		switch req.Mode {
		case ModeSelectedFull, ModeFullSettlement:
			applied = SettleAll(candidates, req.Date)
		case ModeSelectedPartial, ModeOldestFirst:
			applied = AllocateAmount(candidates, req.Amount, req.Date)
		default:
			return fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
		}
		if applied.IsZero() {
			return ErrNoOutstanding
		}

		result = &AllocationResult{Applied: applied}
		for _, t := range candidates {
			if t.PaidAmount.Equal(before[t.ID]) {
				continue
			}
			result.Touched = append(result.Touched, t.ID)
			if t.Status == StatusPaid {
				result.Settled++
			}

			payments, err := json.Marshal(t.Payments)
			if err != nil {
				return fmt.Errorf("failed to encode payment history: %w", err)
			}
			_, err = tx.Exec(ctx, `
				UPDATE account_transactions
				SET paid_amount = $2, payments = $3, status = $4
				WHERE id = $1
			`, t.ID, t.PaidAmount, payments, t.Status)
			if err != nil {
				return fmt.Errorf("failed to update transaction: %w", err)
			}
		}

		debt, status, err := recomputeClient(ctx, tx, req.ClientID)
		if err != nil {
			return err
		}
		result.ClientDebt = debt
		result.ClientStatus = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// orderByRequest arranges the locked rows in the order the caller
// listed them; ids that resolved to no row are skipped.
func orderByRequest(candidates []*Transaction, ids []uuid.UUID) []*Transaction {
	byID := make(map[uuid.UUID]*Transaction, len(candidates))
	for _, t := range candidates {
		byID[t.ID] = t
	}
	ordered := make([]*Transaction, 0, len(candidates))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

// lockCandidates selects the transactions a strategy may touch, with
// row locks held until commit.
func lockCandidates(ctx context.Context, tx pgx.Tx, req AllocationRequest) ([]*Transaction, error) {
	query := selectTransaction + ` WHERE client_id = $1`
	args := []any{req.ClientID}
	argCount := 2

	switch req.Mode {
	case ModeSelectedFull, ModeSelectedPartial:
		query += fmt.Sprintf(" AND id = ANY($%d)", argCount)
		args = append(args, req.TransactionIDs)
		argCount++
	case ModeOldestFirst:
		query += " AND original_amount > paid_amount"
		if req.From != nil {
			query += fmt.Sprintf(" AND date >= $%d", argCount)
			args = append(args, *req.From)
			argCount++
		}
		if req.To != nil {
			query += fmt.Sprintf(" AND date <= $%d", argCount)
			args = append(args, *req.To)
			argCount++
		}
	case ModeFullSettlement:
		query += " AND original_amount > paid_amount"
	}
	query += " ORDER BY date, created_at, id FOR UPDATE"

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select transactions: %w", err)
	}
	return scanTransactions(rows)
}

// recomputeClient re-derives total_debt and status from the client's
// full transaction set and writes them back.
func recomputeClient(ctx context.Context, tx pgx.Tx, clientID uuid.UUID) (decimal.Decimal, Status, error) {
	rows, err := tx.Query(ctx, selectTransaction+` WHERE client_id = $1`, clientID)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to load client transactions: %w", err)
	}
	txs, err := scanTransactions(rows)
	if err != nil {
		return decimal.Zero, "", err
	}

	flat := make([]Transaction, len(txs))
	for i, t := range txs {
		flat[i] = *t
	}
	debt, status := DeriveClient(flat)

	tag, err := tx.Exec(ctx, `
		UPDATE account_clients SET total_debt = $2, status = $3 WHERE id = $1
	`, clientID, debt, status)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("failed to update client totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return decimal.Zero, "", ErrClientNotFound
	}
	return debt, status, nil
}

func (ps *PostgresStore) CreateClient(ctx context.Context, client *Client) error {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := ps.Pool.Exec(queryCtx, `
		INSERT INTO account_clients (id, external_id, first_name, last_name, phone, total_debt, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, client.ID, client.ExternalID, client.FirstName, client.LastName, client.Phone, client.TotalDebt, client.Status)
	if err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

func (ps *PostgresStore) UpdateClient(ctx context.Context, id uuid.UUID, patch ClientPatch) (*Client, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	row := ps.Pool.QueryRow(queryCtx, `
		UPDATE account_clients
		SET first_name = COALESCE($2, first_name),
		    last_name = COALESCE($3, last_name),
		    phone = COALESCE($4, phone)
		WHERE id = $1
		RETURNING id, external_id, first_name, last_name, phone, total_debt, status, created_at, source_created_at
	`, id, patch.FirstName, patch.LastName, patch.Phone)

	client, err := scanClient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return client, nil
}

// DeleteClient removes the client; the foreign key cascades to their
// transactions.
func (ps *PostgresStore) DeleteClient(ctx context.Context, id uuid.UUID) error {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tag, err := ps.Pool.Exec(queryCtx, `DELETE FROM account_clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.ExternalID, &c.FirstName, &c.LastName, &c.Phone, &c.TotalDebt, &c.Status, &c.CreatedAt, &c.SourceCreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (ps *PostgresStore) ClientWithTransactions(ctx context.Context, id uuid.UUID) (*Client, []Transaction, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	row := ps.Pool.QueryRow(queryCtx, `
		SELECT id, external_id, first_name, last_name, phone, total_debt, status, created_at, source_created_at
		FROM account_clients WHERE id = $1
	`, id)
	client, err := scanClient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrClientNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load client: %w", err)
	}

	rows, err := ps.Pool.Query(queryCtx, selectTransaction+` WHERE client_id = $1 ORDER BY date, created_at, id`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load client transactions: %w", err)
	}
	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, nil, err
	}

	flat := make([]Transaction, len(txs))
	for i, t := range txs {
		flat[i] = *t
	}
	return client, flat, nil
}

func (ps *PostgresStore) ListClients(ctx context.Context, status Status) ([]Client, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := `
		SELECT id, external_id, first_name, last_name, phone, total_debt, status, created_at, source_created_at
		FROM account_clients
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY last_name, first_name, id`

	rows, err := ps.Pool.Query(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

// CreateTransaction inserts the receivable and re-derives the owning
// client's totals in the same transaction.
func (ps *PostgresStore) CreateTransaction(ctx context.Context, t *Transaction) error {
	return ps.withSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		payments, err := json.Marshal(t.Payments)
		if err != nil {
			return fmt.Errorf("failed to encode payment history: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO account_transactions (id, external_id, client_id, date, description, original_amount, paid_amount, payments, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, t.ID, t.ExternalID, t.ClientID, t.Date, t.Description, t.OriginalAmount, t.PaidAmount, payments, t.Status)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		_, _, err = recomputeClient(ctx, tx, t.ClientID)
		return err
	})
}

// DeleteTransaction removes the receivable and re-derives the owning
// client's totals in the same transaction.
func (ps *PostgresStore) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	return ps.withSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var clientID uuid.UUID
		err := tx.QueryRow(ctx, `
			DELETE FROM account_transactions WHERE id = $1 RETURNING client_id
		`, id).Scan(&clientID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}
		_, _, err = recomputeClient(ctx, tx, clientID)
		return err
	})
}

// ImportAccounts upserts clients and transactions by external
// identifier and recomputes exactly the touched clients, all in one
// transaction. A payload client whose row already holds the same
// values is left alone and does not enter the recompute set.
func (ps *PostgresStore) ImportAccounts(ctx context.Context, clients []ImportClient, txs []NormalizedTransaction) (*ImportSummary, error) {
	var summary *ImportSummary
	err := ps.withSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		summary = &ImportSummary{}
		touched := map[uuid.UUID]struct{}{}

		for _, c := range clients {
			// The DO UPDATE is guarded: an unchanged row produces no
			// RETURNING row, which is how we tell "nothing to recompute".
			var id uuid.UUID
			err := tx.QueryRow(ctx, `
				INSERT INTO account_clients (id, external_id, first_name, last_name, phone, total_debt, status, source_created_at)
				VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
				ON CONFLICT (external_id) DO UPDATE SET
					first_name = EXCLUDED.first_name,
					last_name = EXCLUDED.last_name,
					phone = EXCLUDED.phone,
					source_created_at = COALESCE(EXCLUDED.source_created_at, account_clients.source_created_at)
				WHERE (account_clients.first_name, account_clients.last_name, account_clients.phone)
				      IS DISTINCT FROM (EXCLUDED.first_name, EXCLUDED.last_name, EXCLUDED.phone)
				   OR (account_clients.source_created_at IS NULL AND EXCLUDED.source_created_at IS NOT NULL)
				RETURNING id
			`, uuid.New(), string(c.ID), c.FirstName, c.LastName, c.Phone, StatusPaid, nullableTime(c.CreatedAt.Time)).Scan(&id)
			if errors.Is(err, pgx.ErrNoRows) {
				summary.ClientsUpserted++
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to upsert client %s: %w", c.ID, err)
			}
			summary.ClientsUpserted++
			touched[id] = struct{}{}
		}

		for _, t := range txs {
			clientID, created, err := resolveClient(ctx, tx, t.ClientExternalID)
			if err != nil {
				return err
			}
			if created {
				summary.StubClientsCreated++
			}
			touched[clientID] = struct{}{}

			payments, err := json.Marshal(t.Payments)
			if err != nil {
				return fmt.Errorf("failed to encode payment history: %w", err)
			}
			// The exporting system's createdAt drives the oldest-first
			// tie-break, so it must survive the round trip; without one
			// the insert time stands in.
			_, err = tx.Exec(ctx, `
				INSERT INTO account_transactions (id, external_id, client_id, date, description, original_amount, paid_amount, payments, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))
				ON CONFLICT (external_id) DO UPDATE SET
					client_id = EXCLUDED.client_id,
					date = EXCLUDED.date,
					description = EXCLUDED.description,
					original_amount = EXCLUDED.original_amount,
					paid_amount = EXCLUDED.paid_amount,
					payments = EXCLUDED.payments,
					status = EXCLUDED.status,
					created_at = COALESCE($10, account_transactions.created_at)
			`, uuid.New(), t.ExternalID, clientID, t.Date, t.Description, t.OriginalAmount, t.PaidAmount, payments, t.Status, nullableTime(t.SourceCreatedAt))
			if err != nil {
				return fmt.Errorf("failed to upsert transaction %s: %w", t.ExternalID, err)
			}
			summary.TransactionsUpserted++
		}

		for clientID := range touched {
			if _, _, err := recomputeClient(ctx, tx, clientID); err != nil {
				return err
			}
			summary.ClientsRecomputed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// resolveClient finds a client by external identifier, creating a bare
// stub when the reference points at nobody.
func resolveClient(ctx context.Context, tx pgx.Tx, externalID string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM account_clients WHERE external_id = $1`, externalID).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("failed to look up client %s: %w", externalID, err)
	}

	id = uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO account_clients (id, external_id, first_name, last_name, phone, total_debt, status)
		VALUES ($1, $2, '', '', '', 0, $3)
	`, id, externalID, StatusPaid)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to create stub client %s: %w", externalID, err)
	}
	return id, true, nil
}

// RecomputeAll re-derives every client's totals. Repair operation; the
// per-client derivation is the same one every write path uses.
func (ps *PostgresStore) RecomputeAll(ctx context.Context) (int, error) {
	var count int
	err := ps.withSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id FROM account_clients`)
		if err != nil {
			return fmt.Errorf("failed to list clients: %w", err)
		}
		var ids []uuid.UUID
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan client id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			if _, _, err := recomputeClient(ctx, tx, id); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (ps *PostgresStore) ListTransactions(ctx context.Context, from, to *time.Time) ([]Transaction, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := selectTransaction + ` WHERE 1=1`
	args := []any{}
	argCount := 1

	if from != nil {
		query += fmt.Sprintf(" AND date >= $%d", argCount)
		args = append(args, *from)
		argCount++
	}
	if to != nil {
		query += fmt.Sprintf(" AND date <= $%d", argCount)
		args = append(args, *to)
		argCount++
	}
	query += " ORDER BY date, created_at, id"

	rows, err := ps.Pool.Query(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}

	flat := make([]Transaction, len(txs))
	for i, t := range txs {
		flat[i] = *t
	}
	return flat, nil
}
