package sales

import (
	"math"
	"sort"
	"time"
)

// DayInput is one calendar day of aggregated sales, joined with the
// day's manual register entry when one exists.
type DayInput struct {
	BatchID int64
	Date    time.Time
	Sales   float64
	Weight  float64
	Units   float64
	Rows    int
	Manual  *ManualEntry
}

// DayReconciliation is the derived register closing for one day. It is
// recomputed from its inputs on every read and never stored.
type DayReconciliation struct {
	BatchID      int64
	Date         time.Time
	Sales        float64
	Weight       float64
	Units        float64
	Rows         int
	OpeningCash  float64
	CashIn       float64
	Debits       float64
	Expenses     float64
	Vouchers     float64
	Voided       float64
	ClosingCash  float64
	Total        float64
	FirstOfChain bool
}

type manualValues struct {
	voided, opening, cashIn, debits, expenses, vouchers, closing float64
}

func manualFloats(m *ManualEntry) manualValues {
	if m == nil {
		return manualValues{}
	}
	return manualValues{
		voided:   m.Voided.InexactFloat64(),
		opening:  m.OpeningCash.InexactFloat64(),
		cashIn:   m.CashIn.InexactFloat64(),
		debits:   m.Debits.InexactFloat64(),
		expenses: m.Expenses.InexactFloat64(),
		vouchers: m.Vouchers.InexactFloat64(),
		closing:  m.ClosingCash.InexactFloat64(),
	}
}

// Reconcile folds the day sequence into the register chain. The first
// day of the sequence takes its own manual opening value; every later
// day opens with the previous day's manual closing. Because the fold
// runs over exactly the days it is given, filtering the window first
// also moves the chain's starting point; the first day of a filtered
// month does not look up the prior month's closing balance.
//
// No rounding happens here; the chain carries full precision and
// callers round at presentation time.
func Reconcile(days []DayInput) []DayReconciliation {
	ordered := make([]DayInput, len(days))
	copy(ordered, days)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	out := make([]DayReconciliation, 0, len(ordered))
	previousClosing := 0.0
	for i, day := range ordered {
		m := manualFloats(day.Manual)

		opening := previousClosing
		if i == 0 {
			opening = m.opening
		}
		previousClosing = m.closing

		total := day.Sales + opening + m.cashIn - m.closing - m.voided - m.debits - m.expenses - m.vouchers
		out = append(out, DayReconciliation{
			BatchID:      day.BatchID,
			Date:         day.Date,
			Sales:        day.Sales,
			Weight:       day.Weight,
			Units:        day.Units,
			Rows:         day.Rows,
			OpeningCash:  opening,
			CashIn:       m.cashIn,
			Debits:       m.debits,
			Expenses:     m.expenses,
			Vouchers:     m.vouchers,
			Voided:       m.voided,
			ClosingCash:  m.closing,
			Total:        total,
			FirstOfChain: i == 0,
		})
	}
	return out
}

// WeekSummary is the ISO-week rollup of reconciled days.
type WeekSummary struct {
	Year  int
	Week  int
	Start time.Time
	End   time.Time
	Total float64
}

// WeeklyRollup groups reconciled days by ISO (year, week), preserving
// the order in which weeks first appear. Totals are rounded for output.
func WeeklyRollup(days []DayReconciliation) []WeekSummary {
	type weekKey struct{ year, week int }

	index := map[weekKey]int{}
	var weeks []WeekSummary
	for _, day := range days {
		year, week := day.Date.ISOWeek()
		key := weekKey{year, week}
		i, ok := index[key]
		if !ok {
			i = len(weeks)
			index[key] = i
			weeks = append(weeks, WeekSummary{Year: year, Week: week, Start: day.Date, End: day.Date})
		}
		if day.Date.Before(weeks[i].Start) {
			weeks[i].Start = day.Date
		}
		if day.Date.After(weeks[i].End) {
			weeks[i].End = day.Date
		}
		weeks[i].Total += day.Total
	}
	for i := range weeks {
		weeks[i].Total = round2(weeks[i].Total)
	}
	return weeks
}

// MaxDay is the best reconciled day of the window.
type MaxDay struct {
	Date  time.Time
	Total float64
}

// BoardStats summarizes the reconciled window.
type BoardStats struct {
	TotalSales   float64
	Days         int
	AverageDaily float64
	MaxDay       *MaxDay
}

// Summarize computes window totals over reconciled days.
func Summarize(days []DayReconciliation) BoardStats {
	stats := BoardStats{Days: len(days)}
	for _, day := range days {
		stats.TotalSales += day.Total
		if stats.MaxDay == nil || day.Total > stats.MaxDay.Total {
			stats.MaxDay = &MaxDay{Date: day.Date, Total: round2(day.Total)}
		}
	}
	if stats.Days > 0 {
		stats.AverageDaily = round2(stats.TotalSales / float64(stats.Days))
	}
	stats.TotalSales = round2(stats.TotalSales)
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
