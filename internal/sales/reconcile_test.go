package sales

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func manual(opening, closing float64) *ManualEntry {
	return &ManualEntry{
		OpeningCash: decimal.NewFromFloat(opening),
		ClosingCash: decimal.NewFromFloat(closing),
	}
}

func TestReconcileCarryForward(t *testing.T) {
	days := []DayInput{
		{Date: day(2024, 3, 1), Sales: 100, Manual: manual(5, 20)},
		{Date: day(2024, 3, 2), Sales: 50, Manual: manual(999, 10)},
	}

	out := Reconcile(days)
	require.Len(t, out, 2)

	first := out[0]
	assert.True(t, first.FirstOfChain)
	assert.Equal(t, 5.0, first.OpeningCash)
	assert.Equal(t, 100.0+5.0-20.0, first.Total)

	second := out[1]
	assert.False(t, second.FirstOfChain)
	assert.Equal(t, 20.0, second.OpeningCash, "second day must open with the first day's closing")
	assert.Equal(t, 50.0+20.0-10.0, second.Total)
}

func TestReconcileTotalFormula(t *testing.T) {
	entry := &ManualEntry{
		Voided:      decimal.NewFromFloat(3),
		OpeningCash: decimal.NewFromFloat(10),
		CashIn:      decimal.NewFromFloat(7),
		Debits:      decimal.NewFromFloat(4),
		Expenses:    decimal.NewFromFloat(2),
		Vouchers:    decimal.NewFromFloat(1),
		ClosingCash: decimal.NewFromFloat(15),
	}
	out := Reconcile([]DayInput{{Date: day(2024, 3, 1), Sales: 200, Manual: entry}})
	require.Len(t, out, 1)

	// sales + opening + cashIn - closing - voided - debits - expenses - vouchers
	assert.Equal(t, 200.0+10+7-15-3-4-2-1, out[0].Total)
}

func TestReconcileSortsAndHandlesMissingManual(t *testing.T) {
	days := []DayInput{
		{Date: day(2024, 3, 3), Sales: 30},
		{Date: day(2024, 3, 1), Sales: 10, Manual: manual(2, 8)},
		{Date: day(2024, 3, 2), Sales: 20, Manual: manual(0, 5)},
	}

	out := Reconcile(days)
	require.Len(t, out, 3)
	assert.Equal(t, day(2024, 3, 1), out[0].Date)
	assert.Equal(t, 2.0, out[0].OpeningCash)
	assert.Equal(t, 8.0, out[1].OpeningCash)
	// A day without a manual entry opens with the prior closing and
	// contributes no register adjustments.
	assert.Equal(t, 5.0, out[2].OpeningCash)
	assert.Equal(t, 30.0+5.0, out[2].Total)
}

func TestWeeklyRollup(t *testing.T) {
	out := Reconcile([]DayInput{
		{Date: day(2024, 3, 4), Sales: 100, Manual: manual(0, 0)},  // ISO week 10
		{Date: day(2024, 3, 5), Sales: 50, Manual: manual(0, 0)},   // ISO week 10
		{Date: day(2024, 3, 11), Sales: 200, Manual: manual(0, 0)}, // ISO week 11
	})

	weeks := WeeklyRollup(out)
	require.Len(t, weeks, 2)

	assert.Equal(t, 2024, weeks[0].Year)
	assert.Equal(t, 10, weeks[0].Week)
	assert.Equal(t, day(2024, 3, 4), weeks[0].Start)
	assert.Equal(t, day(2024, 3, 5), weeks[0].End)
	assert.Equal(t, 150.0, weeks[0].Total)

	assert.Equal(t, 11, weeks[1].Week)
	assert.Equal(t, 200.0, weeks[1].Total)
}

func TestSummarize(t *testing.T) {
	out := Reconcile([]DayInput{
		{Date: day(2024, 3, 1), Sales: 100},
		{Date: day(2024, 3, 2), Sales: 301},
	})

	stats := Summarize(out)
	assert.Equal(t, 2, stats.Days)
	assert.Equal(t, 401.0, stats.TotalSales)
	assert.Equal(t, 200.5, stats.AverageDaily)
	require.NotNil(t, stats.MaxDay)
	assert.Equal(t, day(2024, 3, 2), stats.MaxDay.Date)
	assert.Equal(t, 301.0, stats.MaxDay.Total)
}

func TestSummarizeEmpty(t *testing.T) {
	stats := Summarize(nil)
	assert.Equal(t, 0, stats.Days)
	assert.Equal(t, 0.0, stats.AverageDaily)
	assert.Nil(t, stats.MaxDay)
}
