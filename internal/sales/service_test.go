package sales

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	batch     *Batch
	records   []POSRecord
	overwrite bool
	importErr error

	entry *ManualEntry

	years      []int
	months     []time.Month
	days       []DayInput
	salesYear  int
	salesMonth time.Month

	trend        []TrendPoint
	trendProduct string
}

func (f *fakeStore) ImportBatch(ctx context.Context, batch *Batch, records []POSRecord, overwrite bool) (int64, error) {
	if f.importErr != nil {
		return 0, f.importErr
	}
	f.batch = batch
	f.records = records
	f.overwrite = overwrite
	return 11, nil
}

func (f *fakeStore) UpsertManualEntry(ctx context.Context, entry *ManualEntry) error {
	f.entry = entry
	return nil
}

func (f *fakeStore) DailySales(ctx context.Context, year int, month time.Month) ([]DayInput, error) {
	f.salesYear = year
	f.salesMonth = month
	if month == 0 {
		return f.days, nil
	}
	var filtered []DayInput
	for _, d := range f.days {
		if d.Date.Month() == month {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

func (f *fakeStore) Years(ctx context.Context) ([]int, error) {
	return f.years, nil
}

func (f *fakeStore) Months(ctx context.Context, year int) ([]time.Month, error) {
	return f.months, nil
}

func (f *fakeStore) ProductTrend(ctx context.Context, product string, from, to *time.Time) ([]TrendPoint, error) {
	f.trendProduct = product
	return f.trend, nil
}

func TestImportPOSSingleDate(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil, nil)

	date := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	result, err := svc.ImportPOS(context.Background(), ImportRequest{
		Filename: "ventas.csv",
		Data:     []byte(posSample),
		Date:     &date,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(11), result.BatchID)
	assert.Equal(t, 3, result.Summary.Totals.Rows)

	require.NotNil(t, store.batch.SingleDate)
	assert.True(t, store.batch.IsSingleDay)
	assert.Equal(t, day(2024, 3, 5), *store.batch.SingleDate, "time of day must be dropped")
}

func TestImportPOSCollapsedRange(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil, nil)

	from := day(2024, 3, 5)
	to := day(2024, 3, 5)
	_, err := svc.ImportPOS(context.Background(), ImportRequest{
		Filename: "ventas.csv",
		Data:     []byte(posSample),
		DateFrom: &from,
		DateTo:   &to,
	})
	require.NoError(t, err)

	assert.True(t, store.batch.IsSingleDay)
	require.NotNil(t, store.batch.SingleDate)
	assert.Equal(t, from, *store.batch.SingleDate)
	assert.Nil(t, store.batch.DateFrom)
}

func TestImportPOSOnlyToday(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC) }

	_, err := svc.ImportPOS(context.Background(), ImportRequest{
		Filename:  "ventas.csv",
		Data:      []byte(posSample),
		OnlyToday: true,
	})
	require.NoError(t, err)

	assert.True(t, store.batch.IsOnlyToday)
	require.NotNil(t, store.batch.SingleDate)
	assert.Equal(t, day(2024, 3, 7), *store.batch.SingleDate)
}

func TestImportPOSInvalidPeriods(t *testing.T) {
	svc := NewService(&fakeStore{}, nil, nil)

	_, err := svc.ImportPOS(context.Background(), ImportRequest{
		Filename: "ventas.csv",
		Data:     []byte(posSample),
	})
	require.ErrorIs(t, err, ErrInvalidPeriod)

	from := day(2024, 3, 10)
	to := day(2024, 3, 5)
	_, err = svc.ImportPOS(context.Background(), ImportRequest{
		Filename: "ventas.csv",
		Data:     []byte(posSample),
		DateFrom: &from,
		DateTo:   &to,
	})
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestImportPOSConflictPropagates(t *testing.T) {
	conflict := &ConflictError{Batches: []Batch{{ID: 2}}}
	svc := NewService(&fakeStore{importErr: conflict}, nil, nil)

	date := day(2024, 3, 5)
	_, err := svc.ImportPOS(context.Background(), ImportRequest{
		Filename: "ventas.csv",
		Data:     []byte(posSample),
		Date:     &date,
	})
	require.Error(t, err)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Batches, 1)
}

func TestDailyBoardDefaultsToLatestYear(t *testing.T) {
	store := &fakeStore{
		years:  []int{2024, 2023},
		months: []time.Month{time.March, time.February},
		days: []DayInput{
			{Date: day(2024, 3, 1), Sales: 100, Manual: manual(5, 20)},
			{Date: day(2024, 3, 2), Sales: 50, Manual: manual(999, 10)},
		},
	}
	svc := NewService(store, nil, nil)

	board, err := svc.DailyBoard(context.Background(), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 2024, board.Year)
	assert.Equal(t, time.Month(0), board.Month, "no requested month, none imposed")
	require.Len(t, board.Days, 2)
	assert.Equal(t, 20.0, board.Days[1].OpeningCash)
	assert.Equal(t, 2, board.Stats.Days)
}

// Without a month the board covers the whole year and the register
// chain carries closings across month boundaries.
func TestDailyBoardYearWideChain(t *testing.T) {
	store := &fakeStore{
		years:  []int{2024},
		months: []time.Month{time.March, time.February},
		days: []DayInput{
			{Date: day(2024, 2, 29), Sales: 100, Manual: manual(5, 40)},
			{Date: day(2024, 3, 1), Sales: 50, Manual: manual(999, 10)},
		},
	}
	svc := NewService(store, nil, nil)

	board, err := svc.DailyBoard(context.Background(), 2024, 0)
	require.NoError(t, err)

	assert.Equal(t, time.Month(0), store.salesMonth, "month filter must not be applied")
	require.Len(t, board.Days, 2)
	assert.Equal(t, 40.0, board.Days[1].OpeningCash, "March 1 opens with February 29's closing")

	// An explicit month still narrows the window.
	board, err = svc.DailyBoard(context.Background(), 2024, time.March)
	require.NoError(t, err)
	assert.Equal(t, time.March, store.salesMonth)
	require.Len(t, board.Days, 1)
	assert.Equal(t, 999.0, board.Days[0].OpeningCash, "first day of the window keeps its own opening")
}

func TestDailyBoardNoData(t *testing.T) {
	svc := NewService(&fakeStore{}, nil, nil)

	_, err := svc.DailyBoard(context.Background(), 0, 0)
	require.ErrorIs(t, err, ErrNoBoardData)
}

func TestProductTrend(t *testing.T) {
	store := &fakeStore{
		trend: []TrendPoint{
			{Date: day(2024, 3, 5), Amount: 1200.456, Weight: 3.14159, Units: 2},
			{Date: day(2024, 3, 6), Amount: 800, Weight: 1.9999, Units: 1},
		},
	}
	svc := NewService(store, nil, nil)

	points, err := svc.ProductTrend(context.Background(), "  MILANESA DE POLLO ", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "MILANESA DE POLLO", store.trendProduct)
	require.Len(t, points, 2)
	assert.Equal(t, 1200.46, points[0].Amount)
	assert.Equal(t, 3.142, points[0].Weight)
	assert.Equal(t, 2.0, points[0].Units)
	assert.Equal(t, 2.0, points[1].Weight, "weights round to three decimals")
}

func TestProductTrendRequiresProduct(t *testing.T) {
	svc := NewService(&fakeStore{}, nil, nil)

	_, err := svc.ProductTrend(context.Background(), "   ", nil, nil)
	require.ErrorIs(t, err, ErrNoProduct)
}
