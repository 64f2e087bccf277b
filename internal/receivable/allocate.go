package receivable

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Apply puts amount against one transaction, clamped to its remaining
// debt, and returns what was actually applied. A non-positive amount or
// a settled transaction is a no-op returning zero. On settlement the
// paid amount snaps to the original amount so rounding drift cannot
// leave a phantom residue.
func Apply(tx *Transaction, amount decimal.Decimal, date time.Time) decimal.Decimal {
	remaining := tx.Remaining()
	if !amount.IsPositive() || !remaining.IsPositive() {
		return decimal.Zero
	}

	applied := amount
	if remaining.LessThan(applied) {
		applied = remaining
	}

	tx.PaidAmount = tx.PaidAmount.Add(applied)
	tx.Payments = append(tx.Payments, Payment{Date: date, Amount: applied})

	if tx.Remaining().IsZero() {
		tx.PaidAmount = tx.OriginalAmount
		tx.Status = StatusPaid
	} else {
		tx.Status = StatusPartial
	}
	return applied
}

// SettleAll pays every transaction to completion and returns the total
// applied.
func SettleAll(txs []*Transaction, date time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(Apply(tx, tx.Remaining(), date))
	}
	return total
}

// AllocateAmount spreads amount greedily over the transactions in the
// given order, stopping when the amount is exhausted or everything is
// settled. Returns the total applied.
func AllocateAmount(txs []*Transaction, amount decimal.Decimal, date time.Time) decimal.Decimal {
	total := decimal.Zero
	left := amount
	for _, tx := range txs {
		if !left.IsPositive() {
			break
		}
		applied := Apply(tx, left, date)
		left = left.Sub(applied)
		total = total.Add(applied)
	}
	return total
}

// SortOldestFirst orders transactions by date, then creation time, then
// id, so allocation pays down the oldest debt first and ties break
// deterministically.
func SortOldestFirst(txs []*Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// DeriveClient computes the two derived client fields from the full
// transaction set. Pending sums the remaining debt of transactions that
// still owe; statuses of settled transactions do not influence the
// client status. Idempotent: the output depends only on the input.
func DeriveClient(txs []Transaction) (pending decimal.Decimal, status Status) {
	pending = decimal.Zero
	var anyOverdue, anyPartial bool
	for i := range txs {
		tx := &txs[i]
		if !tx.Outstanding() {
			continue
		}
		pending = pending.Add(tx.Remaining())
		switch tx.Status {
		case StatusOverdue:
			anyOverdue = true
		case StatusPartial:
			anyPartial = true
		}
	}

	switch {
	case pending.IsZero():
		return decimal.Zero, StatusPaid
	case anyOverdue:
		return pending, StatusOverdue
	case anyPartial:
		return pending, StatusPartial
	default:
		return pending, StatusActive
	}
}
