// Package receivable tracks client debt as a ledger of transactions and
// partial payments. Client totals and statuses are derived from the
// transaction set and recomputed by the ledger, never written directly.
package receivable

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status classifies a client or a transaction by its outstanding debt.
type Status string

const (
	StatusActive  Status = "active"
	StatusPartial Status = "partial"
	StatusOverdue Status = "overdue"
	StatusPaid    Status = "paid"
)

// Mode selects a payment-allocation strategy.
type Mode string

const (
	// ModeSelectedFull settles every listed transaction in full.
	ModeSelectedFull Mode = "selected-full"
	// ModeSelectedPartial spreads an amount over the listed
	// transactions in list order.
	ModeSelectedPartial Mode = "selected-partial"
	// ModeOldestFirst spreads an amount over outstanding transactions,
	// oldest debt first.
	ModeOldestFirst Mode = "oldest-first"
	// ModeFullSettlement settles every outstanding transaction of the
	// client, unconstrained by amount.
	ModeFullSettlement Mode = "full-settlement"
)

var (
	// ErrNoOutstanding means an allocation had nothing to apply to.
	ErrNoOutstanding = errors.New("no outstanding transactions to apply the payment to")
	// ErrInvalidMode means the allocation mode is not one of the four strategies.
	ErrInvalidMode = errors.New("invalid allocation mode")
	// ErrInvalidAmount means an amount-driven allocation got a non-positive amount.
	ErrInvalidAmount = errors.New("payment amount must be positive")
	// ErrClientNotFound means no client matches the given identifier.
	ErrClientNotFound = errors.New("client not found")
	// ErrTransactionNotFound means no transaction matches the given identifier.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Client is one account holder. TotalDebt and Status are derived from
// the client's transactions.
type Client struct {
	ID         uuid.UUID
	ExternalID string
	FirstName  string
	LastName   string
	Phone      string
	TotalDebt  decimal.Decimal
	Status     Status
	CreatedAt  time.Time
	// SourceCreatedAt is the creation timestamp reported by the system
	// the client was imported from, when the export carried one.
	SourceCreatedAt *time.Time
}

// Payment is one applied amount in a transaction's history. The history
// is append-only.
type Payment struct {
	Date   time.Time       `json:"fecha"`
	Amount decimal.Decimal `json:"monto"`
}

// Transaction is one receivable owed by a client.
type Transaction struct {
	ID             uuid.UUID
	ExternalID     string
	ClientID       uuid.UUID
	Date           time.Time
	Description    string
	OriginalAmount decimal.Decimal
	PaidAmount     decimal.Decimal
	Payments       []Payment
	Status         Status
	CreatedAt      time.Time
}

// Remaining is the outstanding part of the transaction, never negative.
func (t *Transaction) Remaining() decimal.Decimal {
	remaining := t.OriginalAmount.Sub(t.PaidAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Outstanding reports whether the transaction still carries debt.
func (t *Transaction) Outstanding() bool {
	return t.OriginalAmount.GreaterThan(t.PaidAmount)
}
