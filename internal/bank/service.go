package bank

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/example/retail-ledger/internal/statement"
	"github.com/example/retail-ledger/pkg/audit"
)

// Store is the persistence contract the service needs. ImportBatch must
// perform the conflict check, any authorized overwrite-delete and the row
// inserts inside a single transaction.
type Store interface {
	ImportBatch(ctx context.Context, batch *Batch, rows []statement.Row, overwrite bool) (int64, error)
	ListTransactions(ctx context.Context, bank string, from, to *time.Time) ([]Transaction, error)
}

// Service imports statement files and reports over the movement ledger.
type Service struct {
	store   Store
	log     *slog.Logger
	journal *audit.Journal
}

func NewService(store Store, log *slog.Logger, journal *audit.Journal) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log, journal: journal}
}

// ImportRequest carries one uploaded statement file.
type ImportRequest struct {
	Bank      string
	Filename  string
	Data      []byte
	Overwrite bool
}

// ImportSummary is returned after a successful import.
type ImportSummary struct {
	BatchID   int64
	Income    float64
	Expense   float64
	Net       float64
	DateFrom  time.Time
	DateTo    time.Time
	Movements int
}

// ImportStatement parses the file for the selected institution and
// stores the resulting batch. An unauthorized period overlap surfaces as
// *ConflictError; file-level parse failures as *statement.Error.
func (s *Service) ImportStatement(ctx context.Context, req ImportRequest) (*ImportSummary, error) {
	parser, err := statement.ForBank(req.Bank, req.Filename)
	if err != nil {
		return nil, err
	}
	rows, err := parser.Parse(req.Data, req.Filename)
	if err != nil {
		return nil, err
	}
	from, to, ok := statement.Range(rows)
	if !ok {
		return nil, &statement.Error{Kind: statement.KindNoRows, Variant: req.Bank, Message: "no dated movements"}
	}

	batch := &Batch{
		Bank:     req.Bank,
		Filename: req.Filename,
		DateFrom: from,
		DateTo:   to,
	}
	batchID, err := s.store.ImportBatch(ctx, batch, rows, req.Overwrite)
	if err != nil {
		return nil, err
	}

	summary := summarizeRows(rows)
	summary.BatchID = batchID
	summary.DateFrom = from
	summary.DateTo = to

	s.log.Info("bank statement imported",
		"bank", req.Bank,
		"batch_id", batchID,
		"movements", summary.Movements,
		"from", from.Format(time.DateOnly),
		"to", to.Format(time.DateOnly),
	)
	if s.journal != nil {
		s.journal.Record(ctx, "bank.import", fmt.Sprintf("bank=%s batch=%d movements=%d", req.Bank, batchID, summary.Movements))
	}
	return summary, nil
}

func summarizeRows(rows []statement.Row) *ImportSummary {
	summary := &ImportSummary{Movements: len(rows)}
	for _, r := range rows {
		if r.Amount > 0 {
			summary.Income += r.Amount
		} else {
			summary.Expense += -r.Amount
		}
	}
	summary.Income = round2(summary.Income)
	summary.Expense = round2(summary.Expense)
	summary.Net = round2(summary.Income - summary.Expense)
	return summary
}

// StatsFilter narrows the reporting window.
type StatsFilter struct {
	Bank string
	From *time.Time
	To   *time.Time
}

// ConceptTotal aggregates movements sharing a concept label.
type ConceptTotal struct {
	Label string
	Total float64
	Count int
}

// DayFlow is one day of the income/expense series.
type DayFlow struct {
	Date    time.Time
	Income  float64
	Expense float64
}

// ConceptEntry is a single movement listed under its concept.
type ConceptEntry struct {
	Date        time.Time
	Description string
	Amount      float64
}

// Stats is the bank ledger report.
type Stats struct {
	Income         float64
	Expense        float64
	Net            float64
	Movements      int
	DateFrom       time.Time
	DateTo         time.Time
	IncomeByLabel  []ConceptTotal
	ExpenseByLabel []ConceptTotal
	DailySeries    []DayFlow
	IncomeEntries  map[string][]ConceptEntry
	ExpenseEntries map[string][]ConceptEntry
}

// Stats builds the movement report for one institution and window.
func (s *Service) Stats(ctx context.Context, filter StatsFilter) (*Stats, error) {
	txs, err := s.store.ListTransactions(ctx, filter.Bank, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank transactions: %w", err)
	}
	return buildStats(txs), nil
}

const conceptListLimit = 20

func buildStats(txs []Transaction) *Stats {
	stats := &Stats{
		Movements:      len(txs),
		IncomeEntries:  map[string][]ConceptEntry{},
		ExpenseEntries: map[string][]ConceptEntry{},
	}

	byDay := map[time.Time]*DayFlow{}
	incomeByLabel := map[string]*ConceptTotal{}
	expenseByLabel := map[string]*ConceptTotal{}

	for _, tx := range txs {
		if stats.DateFrom.IsZero() || tx.Date.Before(stats.DateFrom) {
			stats.DateFrom = tx.Date
		}
		if tx.Date.After(stats.DateTo) {
			stats.DateTo = tx.Date
		}

		day, ok := byDay[tx.Date]
		if !ok {
			day = &DayFlow{Date: tx.Date}
			byDay[tx.Date] = day
		}

		label := tx.Concept
		if label == "" {
			label = "(sin concepto)"
		}
		description := tx.Description
		if description == "" {
			description = "(sin descripcion)"
		}

		if tx.Amount > 0 {
			stats.Income += tx.Amount
			day.Income += tx.Amount
			bump(incomeByLabel, label, tx.Amount)
			stats.IncomeEntries[label] = append(stats.IncomeEntries[label], ConceptEntry{Date: tx.Date, Description: description, Amount: round2(tx.Amount)})
		} else if tx.Amount < 0 {
			stats.Expense += -tx.Amount
			day.Expense += -tx.Amount
			bump(expenseByLabel, label, -tx.Amount)
			stats.ExpenseEntries[label] = append(stats.ExpenseEntries[label], ConceptEntry{Date: tx.Date, Description: description, Amount: round2(-tx.Amount)})
		}
	}

	stats.Income = round2(stats.Income)
	stats.Expense = round2(stats.Expense)
	stats.Net = round2(stats.Income - stats.Expense)

	for _, day := range byDay {
		stats.DailySeries = append(stats.DailySeries, DayFlow{Date: day.Date, Income: round2(day.Income), Expense: round2(day.Expense)})
	}
	sort.Slice(stats.DailySeries, func(i, j int) bool {
		return stats.DailySeries[i].Date.Before(stats.DailySeries[j].Date)
	})

	stats.IncomeByLabel = topConcepts(incomeByLabel)
	stats.ExpenseByLabel = topConcepts(expenseByLabel)
	return stats
}

func bump(m map[string]*ConceptTotal, label string, amount float64) {
	entry, ok := m[label]
	if !ok {
		entry = &ConceptTotal{Label: label}
		m[label] = entry
	}
	entry.Total += amount
	entry.Count++
}

func topConcepts(m map[string]*ConceptTotal) []ConceptTotal {
	out := make([]ConceptTotal, 0, len(m))
	for _, entry := range m {
		out = append(out, ConceptTotal{Label: entry.Label, Total: round2(entry.Total), Count: entry.Count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > conceptListLimit {
		out = out[:conceptListLimit]
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
