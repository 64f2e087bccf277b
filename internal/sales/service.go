package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/retail-ledger/pkg/audit"
)

// ErrInvalidPeriod means the upload carried no usable date selection.
var ErrInvalidPeriod = errors.New("upload period is incomplete")

// ErrNoBoardData means no batch covers the requested window.
var ErrNoBoardData = errors.New("no sales data for the requested period")

// ErrNoProduct means a product trend was requested without naming the
// product.
var ErrNoProduct = errors.New("product is required")

// Store is the persistence contract for POS batches. ImportBatch must
// run the period-conflict check, any authorized overwrite-delete and
// the record inserts inside a single transaction.
type Store interface {
	ImportBatch(ctx context.Context, batch *Batch, records []POSRecord, overwrite bool) (int64, error)
	UpsertManualEntry(ctx context.Context, entry *ManualEntry) error
	// DailySales aggregates one row per batch day of the year; a zero
	// month means no month filter.
	DailySales(ctx context.Context, year int, month time.Month) ([]DayInput, error)
	Years(ctx context.Context) ([]int, error)
	Months(ctx context.Context, year int) ([]time.Month, error)
	ProductTrend(ctx context.Context, product string, from, to *time.Time) ([]TrendPoint, error)
}

// Service imports POS exports and serves the reconciliation board.
type Service struct {
	store   Store
	log     *slog.Logger
	journal *audit.Journal
	now     func() time.Time
}

func NewService(store Store, log *slog.Logger, journal *audit.Journal) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log, journal: journal, now: time.Now}
}

// ImportRequest carries one uploaded POS export and its period
// selection. Exactly one of the selection styles must resolve: the
// only-today shortcut, an explicit single date, or a from/to range.
type ImportRequest struct {
	Filename  string
	Data      []byte
	OnlyToday bool
	Date      *time.Time
	DateFrom  *time.Time
	DateTo    *time.Time
	Note      string
	Overwrite bool
}

// ImportResult is returned after a successful import.
type ImportResult struct {
	BatchID int64
	Period  string
	Summary *Aggregate
}

// ImportPOS parses the export, resolves the declared period and stores
// the batch. An unauthorized period overlap surfaces as *ConflictError.
func (s *Service) ImportPOS(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	records, err := ReadPOSFile(req.Data)
	if err != nil {
		return nil, err
	}

	batch, err := s.resolvePeriod(req)
	if err != nil {
		return nil, err
	}
	batch.Filename = req.Filename
	batch.Note = req.Note

	batchID, err := s.store.ImportBatch(ctx, batch, records, req.Overwrite)
	if err != nil {
		return nil, err
	}
	batch.ID = batchID

	s.log.Info("pos export imported",
		"batch_id", batchID,
		"rows", len(records),
		"period", batch.PeriodLabel(),
	)
	if s.journal != nil {
		s.journal.Record(ctx, "sales.import", fmt.Sprintf("batch=%d rows=%d period=%s", batchID, len(records), batch.PeriodLabel()))
	}

	return &ImportResult{
		BatchID: batchID,
		Period:  batch.PeriodLabel(),
		Summary: AggregateRecords(records),
	}, nil
}

// resolvePeriod normalizes the three upload styles into one batch
// period. A range whose ends coincide collapses into a single day.
func (s *Service) resolvePeriod(req ImportRequest) (*Batch, error) {
	switch {
	case req.OnlyToday:
		today := midnight(s.now())
		return &Batch{SingleDate: &today, IsSingleDay: true, IsOnlyToday: true}, nil
	case req.Date != nil:
		date := midnight(*req.Date)
		return &Batch{SingleDate: &date, IsSingleDay: true}, nil
	case req.DateFrom != nil && req.DateTo != nil:
		from, to := midnight(*req.DateFrom), midnight(*req.DateTo)
		if to.Before(from) {
			return nil, fmt.Errorf("%w: range ends before it starts", ErrInvalidPeriod)
		}
		if from.Equal(to) {
			return &Batch{SingleDate: &from, IsSingleDay: true}, nil
		}
		return &Batch{DateFrom: &from, DateTo: &to}, nil
	default:
		return nil, ErrInvalidPeriod
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// UpsertManualEntry records the operator's register count for one day
// of a batch, replacing any prior entry for the same (batch, date).
func (s *Service) UpsertManualEntry(ctx context.Context, entry *ManualEntry) error {
	entry.Date = midnight(entry.Date)
	if err := s.store.UpsertManualEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to save manual entry: %w", err)
	}
	s.log.Info("manual register entry saved",
		"batch_id", entry.BatchID,
		"date", entry.Date.Format(time.DateOnly),
	)
	return nil
}

// Board is the monthly reconciliation view.
type Board struct {
	Year   int
	Month  time.Month
	Years  []int
	Months []time.Month
	Days   []DayReconciliation
	Weeks  []WeekSummary
	Stats  BoardStats
}

// DailyBoard loads the aggregated sales joined with manual entries and
// folds them into the register chain. A zero year selects the most
// recent year with data. A zero month is not defaulted: the board then
// covers the whole year and the chain runs across month boundaries.
// The first day of the covered window opens with its own manual
// opening value.
func (s *Service) DailyBoard(ctx context.Context, year int, month time.Month) (*Board, error) {
	years, err := s.store.Years(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list years: %w", err)
	}
	if len(years) == 0 {
		return nil, ErrNoBoardData
	}
	if year == 0 {
		year = years[0]
	}

	months, err := s.store.Months(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list months: %w", err)
	}

	days, err := s.store.DailySales(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily sales: %w", err)
	}

	reconciled := Reconcile(days)
	for i := range reconciled {
		d := &reconciled[i]
		d.Sales = round2(d.Sales)
		d.OpeningCash = round2(d.OpeningCash)
		d.ClosingCash = round2(d.ClosingCash)
		d.CashIn = round2(d.CashIn)
		d.Debits = round2(d.Debits)
		d.Expenses = round2(d.Expenses)
		d.Vouchers = round2(d.Vouchers)
		d.Voided = round2(d.Voided)
		d.Total = round2(d.Total)
		d.Weight = round3(d.Weight)
		d.Units = round3(d.Units)
	}

	return &Board{
		Year:   year,
		Month:  month,
		Years:  years,
		Months: months,
		Days:   reconciled,
		Weeks:  WeeklyRollup(reconciled),
		Stats:  Summarize(reconciled),
	}, nil
}

// TrendPoint is one day of a single product's sales history.
type TrendPoint struct {
	Date   time.Time
	Amount float64
	Weight float64
	Units  float64
}

// ProductTrend sums one product's amount, weight and units per batch
// day, oldest first. Nil window bounds leave that side open.
func (s *Service) ProductTrend(ctx context.Context, product string, from, to *time.Time) ([]TrendPoint, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		return nil, ErrNoProduct
	}

	points, err := s.store.ProductTrend(ctx, product, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load product trend: %w", err)
	}
	for i := range points {
		points[i].Amount = round2(points[i].Amount)
		points[i].Weight = round3(points[i].Weight)
		points[i].Units = round3(points[i].Units)
	}
	return points, nil
}
