// Package sales ingests point-of-sale exports and reconciles each day's
// machine-aggregated sales against the manually counted cash register,
// carrying the closing balance forward as the next day's opening.
package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Batch is one POS upload. It covers either a date range or a single
// day; its records and manual entries are owned by the batch.
type Batch struct {
	ID          int64
	Filename    string
	DateFrom    *time.Time
	DateTo      *time.Time
	SingleDate  *time.Time
	IsSingleDay bool
	IsOnlyToday bool
	Note        string
	CreatedAt   time.Time
}

// PeriodLabel describes the period a batch covers.
func (b *Batch) PeriodLabel() string {
	switch {
	case b.SingleDate != nil:
		return b.SingleDate.Format("02/01/2006")
	case b.DateFrom != nil && b.DateTo != nil:
		return b.DateFrom.Format("02/01/2006") + " al " + b.DateTo.Format("02/01/2006")
	case b.DateFrom != nil:
		return b.DateFrom.Format("02/01/2006")
	case b.DateTo != nil:
		return b.DateTo.Format("02/01/2006")
	default:
		return fmt.Sprintf("Lote #%d", b.ID)
	}
}

// POSRecord is one raw line of a POS export after normalization.
type POSRecord struct {
	SectionCode string
	Section     string
	FamilyCode  string
	Family      string
	PLUCode     string
	Product     string
	UnitLabel   string
	Weight      float64
	Amount      float64
	Units       float64
}

// ManualEntry holds the operator-entered register adjustments for one
// day of a batch. At most one entry exists per (batch, date).
type ManualEntry struct {
	BatchID     int64
	Date        time.Time
	Voided      decimal.Decimal
	OpeningCash decimal.Decimal
	CashIn      decimal.Decimal
	Debits      decimal.Decimal
	Expenses    decimal.Decimal
	Vouchers    decimal.Decimal
	ClosingCash decimal.Decimal
	Total       decimal.Decimal
}

// ConflictError reports batches already covering the imported period.
type ConflictError struct {
	Batches []Batch
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d existing batches overlap the imported period", len(e.Batches))
}
