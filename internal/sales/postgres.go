package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists POS batches, their records and the manual
// register entries.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

// ImportBatch inserts a POS batch. The period-conflict check, the
// authorized overwrite-delete and the inserts run in one SERIALIZABLE
// transaction so two concurrent imports cannot both observe "no
// conflict".
func (ps *PostgresStore) ImportBatch(ctx context.Context, batch *Batch, records []POSRecord, overwrite bool) (int64, error) {
	const maxRetries = 3

	var batchID int64
	for attempt := 0; attempt < maxRetries; attempt++ {
		id, err := ps.importBatchTx(ctx, batch, records, overwrite)
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

func (ps *PostgresStore) importBatchTx(ctx context.Context, batch *Batch, records []POSRecord, overwrite bool) (int64, error) {
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

	conflicts, err := findConflicts(queryCtx, tx, batch)
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
		// pos_records and sales_manual_entries go with their batch
		// (ON DELETE CASCADE).
		if _, err := tx.Exec(queryCtx, `DELETE FROM upload_batches WHERE id = ANY($1)`, ids); err != nil {
			return 0, fmt.Errorf("failed to delete conflicting batches: %w", err)
		}
	}

	var batchID int64
	err = tx.QueryRow(queryCtx, `
		INSERT INTO upload_batches (original_filename, date_from, date_to, single_date, is_single_day, is_only_today, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, batch.Filename, batch.DateFrom, batch.DateTo, batch.SingleDate, batch.IsSingleDay, batch.IsOnlyToday, batch.Note).Scan(&batchID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}

	_, err = tx.CopyFrom(queryCtx,
		pgx.Identifier{"pos_records"},
		[]string{"batch_id", "section_code", "section", "family_code", "family", "plu_code", "product", "unit_label", "weight", "amount", "units"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{batchID, r.SectionCode, r.Section, r.FamilyCode, r.Family, r.PLUCode, r.Product, r.UnitLabel, r.Weight, r.Amount, r.Units}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pos records: %w", err)
	}

	if err := tx.Commit(queryCtx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return batchID, nil
}

// findConflicts locks and returns batches whose period intersects the
// incoming one. Single-day batches intersect when the day falls inside
// the other period; range batches when the ranges overlap.
func findConflicts(ctx context.Context, tx pgx.Tx, batch *Batch) ([]Batch, error) {
	var (
		rows pgx.Rows
		err  error
	)
	const selectBatch = `
		SELECT id, original_filename, date_from, date_to, single_date, is_single_day, is_only_today, note, created_at
		FROM upload_batches
	`
	if batch.IsSingleDay {
		rows, err = tx.Query(ctx, selectBatch+`
			WHERE (is_single_day AND single_date = $1)
			   OR (NOT is_single_day AND date_from <= $1 AND date_to >= $1)
			FOR UPDATE
		`, batch.SingleDate)
	} else {
		rows, err = tx.Query(ctx, selectBatch+`
			WHERE (is_single_day AND single_date BETWEEN $1 AND $2)
			   OR (NOT is_single_day AND date_from <= $2 AND date_to >= $1)
			FOR UPDATE
		`, batch.DateFrom, batch.DateTo)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check period conflicts: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.Filename, &b.DateFrom, &b.DateTo, &b.SingleDate, &b.IsSingleDay, &b.IsOnlyToday, &b.Note, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// UpsertManualEntry writes the register entry for one (batch, date),
// replacing any prior values.
func (ps *PostgresStore) UpsertManualEntry(ctx context.Context, entry *ManualEntry) error {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := ps.Pool.Exec(queryCtx, `
		INSERT INTO sales_manual_entries (batch_id, date, voided, opening_cash, cash_in, debits, expenses, vouchers, closing_cash, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (batch_id, date) DO UPDATE SET
			voided = EXCLUDED.voided,
			opening_cash = EXCLUDED.opening_cash,
			cash_in = EXCLUDED.cash_in,
			debits = EXCLUDED.debits,
			expenses = EXCLUDED.expenses,
			vouchers = EXCLUDED.vouchers,
			closing_cash = EXCLUDED.closing_cash,
			total = EXCLUDED.total
	`, entry.BatchID, entry.Date, entry.Voided, entry.OpeningCash, entry.CashIn,
		entry.Debits, entry.Expenses, entry.Vouchers, entry.ClosingCash, entry.Total)
	if err != nil {
		return fmt.Errorf("failed to upsert manual entry: %w", err)
	}
	return nil
}

// batchDay resolves a batch to its calendar day. Range batches report
// under their starting day.
const batchDay = `COALESCE(b.single_date, b.date_from)`

// DailySales returns one aggregated row per batch day of the selected
// window, joined with that day's manual entry when one exists. A zero
// month widens the window to the whole year.
func (ps *PostgresStore) DailySales(ctx context.Context, year int, month time.Month) ([]DayInput, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := `
		SELECT b.id, ` + batchDay + ` AS day,
		       COALESCE(SUM(r.amount), 0), COALESCE(SUM(r.weight), 0), COALESCE(SUM(r.units), 0), COUNT(r.id),
		       m.batch_id, m.date, m.voided, m.opening_cash, m.cash_in, m.debits, m.expenses, m.vouchers, m.closing_cash, m.total
		FROM upload_batches b
		LEFT JOIN pos_records r ON r.batch_id = b.id
		LEFT JOIN sales_manual_entries m ON m.batch_id = b.id AND m.date = ` + batchDay + `
		WHERE EXTRACT(YEAR FROM ` + batchDay + `) = $1`
	args := []any{year}
	if month != 0 {
		query += ` AND EXTRACT(MONTH FROM ` + batchDay + `) = $2`
		args = append(args, int(month))
	}
	query += `
		GROUP BY b.id, day, m.batch_id, m.date, m.voided, m.opening_cash, m.cash_in, m.debits, m.expenses, m.vouchers, m.closing_cash, m.total
		ORDER BY day, b.id
	`

	rows, err := ps.Pool.Query(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily sales: %w", err)
	}
	defer rows.Close()

	var days []DayInput
	for rows.Next() {
		var (
			day      DayInput
			batchID  *int64
			date     *time.Time
			voided   decimal.NullDecimal
			opening  decimal.NullDecimal
			cashIn   decimal.NullDecimal
			debits   decimal.NullDecimal
			expenses decimal.NullDecimal
			vouchers decimal.NullDecimal
			closing  decimal.NullDecimal
			total    decimal.NullDecimal
		)
		err := rows.Scan(&day.BatchID, &day.Date,
			&day.Sales, &day.Weight, &day.Units, &day.Rows,
			&batchID, &date, &voided, &opening, &cashIn,
			&debits, &expenses, &vouchers, &closing, &total)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily sales: %w", err)
		}
		if batchID != nil {
			day.Manual = &ManualEntry{
				BatchID:     *batchID,
				Date:        *date,
				Voided:      voided.Decimal,
				OpeningCash: opening.Decimal,
				CashIn:      cashIn.Decimal,
				Debits:      debits.Decimal,
				Expenses:    expenses.Decimal,
				Vouchers:    vouchers.Decimal,
				ClosingCash: closing.Decimal,
				Total:       total.Decimal,
			}
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// ProductTrend aggregates one product's records per batch day.
func (ps *PostgresStore) ProductTrend(ctx context.Context, product string, from, to *time.Time) ([]TrendPoint, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := `
		SELECT ` + batchDay + ` AS day,
		       COALESCE(SUM(r.amount), 0), COALESCE(SUM(r.weight), 0), COALESCE(SUM(r.units), 0)
		FROM pos_records r
		JOIN upload_batches b ON b.id = r.batch_id
		WHERE r.product = $1`
	args := []any{product}
	argCount := 2
	if from != nil {
		query += fmt.Sprintf(" AND %s >= $%d", batchDay, argCount)
		args = append(args, *from)
		argCount++
	}
	if to != nil {
		query += fmt.Sprintf(" AND %s <= $%d", batchDay, argCount)
		args = append(args, *to)
		argCount++
	}
	query += `
		GROUP BY day
		ORDER BY day
	`

	rows, err := ps.Pool.Query(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query product trend: %w", err)
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Date, &p.Amount, &p.Weight, &p.Units); err != nil {
			return nil, fmt.Errorf("failed to scan trend point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Years lists the years with batches, most recent first.
func (ps *PostgresStore) Years(ctx context.Context) ([]int, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := ps.Pool.Query(queryCtx, `
		SELECT DISTINCT EXTRACT(YEAR FROM `+batchDay+`)::int AS year
		FROM upload_batches b
		WHERE `+batchDay+` IS NOT NULL
		ORDER BY year DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query years: %w", err)
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("failed to scan year: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// Months lists the months of one year with batches, most recent first.
func (ps *PostgresStore) Months(ctx context.Context, year int) ([]time.Month, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := ps.Pool.Query(queryCtx, `
		SELECT DISTINCT EXTRACT(MONTH FROM `+batchDay+`)::int AS month
		FROM upload_batches b
		WHERE EXTRACT(YEAR FROM `+batchDay+`) = $1
		ORDER BY month DESC
	`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query months: %w", err)
	}
	defer rows.Close()

	var months []time.Month
	for rows.Next() {
		var m int
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("failed to scan month: %w", err)
		}
		months = append(months, time.Month(m))
	}
	return months, rows.Err()
}
