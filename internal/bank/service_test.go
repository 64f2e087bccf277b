package bank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/retail-ledger/internal/statement"
)

type fakeStore struct {
	batches   []*Batch
	rows      []statement.Row
	overwrite bool
	importErr error
	txs       []Transaction
}

func (f *fakeStore) ImportBatch(ctx context.Context, batch *Batch, rows []statement.Row, overwrite bool) (int64, error) {
	if f.importErr != nil {
		return 0, f.importErr
	}
	f.batches = append(f.batches, batch)
	f.rows = rows
	f.overwrite = overwrite
	return 7, nil
}

func (f *fakeStore) ListTransactions(ctx context.Context, bank string, from, to *time.Time) ([]Transaction, error) {
	return f.txs, nil
}

const importSample = "Fecha;Comprobante;Concepto;Oficina;Descripcion;Concepto ampliado;Importe\n" +
	"01/01/2024;1;X;1;VENTA;ACREDITACION;1.000,00\n" +
	"10/01/2024;2;X;1;LUZ;SERVICIO;-250,50\n"

func TestImportStatement(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil, nil)

	summary, err := svc.ImportStatement(context.Background(), ImportRequest{
		Bank:     statement.BankSantander,
		Filename: "resumen.csv",
		Data:     []byte(importSample),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7), summary.BatchID)
	assert.Equal(t, 2, summary.Movements)
	assert.Equal(t, 1000.00, summary.Income)
	assert.Equal(t, 250.50, summary.Expense)
	assert.Equal(t, 749.50, summary.Net)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), summary.DateFrom)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), summary.DateTo)

	require.Len(t, store.batches, 1)
	assert.Equal(t, summary.DateFrom, store.batches[0].DateFrom)
	assert.Len(t, store.rows, 2)
}

func TestImportStatementParseErrorPropagates(t *testing.T) {
	svc := NewService(&fakeStore{}, nil, nil)

	_, err := svc.ImportStatement(context.Background(), ImportRequest{
		Bank:     statement.BankSantander,
		Filename: "vacio.csv",
		Data:     []byte("nada;;;;;\n"),
	})
	require.Error(t, err)
	assert.True(t, statement.IsKind(err, statement.KindNoRows))
}

func TestImportStatementConflictPropagates(t *testing.T) {
	conflict := &ConflictError{Batches: []Batch{{ID: 3, Bank: "santander"}}}
	svc := NewService(&fakeStore{importErr: conflict}, nil, nil)

	_, err := svc.ImportStatement(context.Background(), ImportRequest{
		Bank:     statement.BankSantander,
		Filename: "resumen.csv",
		Data:     []byte(importSample),
	})
	require.Error(t, err)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Batches, 1)
}

func TestBuildStats(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }
	stats := buildStats([]Transaction{
		{Date: d(2), Concept: "VENTAS", Description: "ACRED", Amount: 100},
		{Date: d(2), Concept: "VENTAS", Amount: 50},
		{Date: d(1), Concept: "LUZ", Description: "EDEN", Amount: -30},
		{Date: d(3), Concept: "", Amount: -20},
	})

	assert.Equal(t, 150.0, stats.Income)
	assert.Equal(t, 50.0, stats.Expense)
	assert.Equal(t, 100.0, stats.Net)
	assert.Equal(t, 4, stats.Movements)
	assert.Equal(t, d(1), stats.DateFrom)
	assert.Equal(t, d(3), stats.DateTo)

	require.Len(t, stats.DailySeries, 3)
	assert.Equal(t, d(1), stats.DailySeries[0].Date)
	assert.Equal(t, 30.0, stats.DailySeries[0].Expense)
	assert.Equal(t, 150.0, stats.DailySeries[1].Income)

	require.Len(t, stats.IncomeByLabel, 1)
	assert.Equal(t, ConceptTotal{Label: "VENTAS", Total: 150, Count: 2}, stats.IncomeByLabel[0])

	require.Len(t, stats.ExpenseByLabel, 2)
	assert.Equal(t, "LUZ", stats.ExpenseByLabel[0].Label)
	assert.Equal(t, "(sin concepto)", stats.ExpenseByLabel[1].Label)

	entries := stats.IncomeEntries["VENTAS"]
	require.Len(t, entries, 2)
	assert.Equal(t, "(sin descripcion)", entries[1].Description)
}
