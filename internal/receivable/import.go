package receivable

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// flexID accepts an external identifier serialized as either a JSON
// string or a number; exported payloads are inconsistent about this.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	return fmt.Errorf("identifier is neither string nor number: %s", data)
}

// flexDate accepts the date formats seen in exported payloads.
type flexDate struct {
	time.Time
}

var flexDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
}

func (f *flexDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		f.Time = time.Time{}
		return nil
	}
	for _, layout := range flexDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized date %q", s)
}

// ImportPayload is the bulk account export consumed by ImportAccounts.
// Field names follow the producing system.
type ImportPayload struct {
	Clients      []ImportClient      `json:"clientes"`
	Transactions []ImportTransaction `json:"transacciones"`
}

type ImportClient struct {
	ID        flexID   `json:"id"`
	FirstName string   `json:"nombre"`
	LastName  string   `json:"apellido"`
	Phone     string   `json:"telefono"`
	CreatedAt flexDate `json:"fechaCreacion"`
}

type ImportTransaction struct {
	ID             flexID          `json:"id"`
	ClientID       flexID          `json:"clienteId"`
	Date           flexDate        `json:"fecha"`
	Description    string          `json:"descripcion"`
	OriginalAmount decimal.Decimal `json:"monto"`
	PaidAmount     decimal.Decimal `json:"montoPagado"`
	Payments       []ImportPayment `json:"pagos"`
	Status         string          `json:"estado"`
	CreatedAt      flexDate        `json:"createdAt"`
}

type ImportPayment struct {
	Date   flexDate        `json:"fecha"`
	Amount decimal.Decimal `json:"monto"`
}

// ParseImportPayload decodes and validates a bulk export. Transactions
// without an identifier or client reference are rejected; a negative
// original amount is rejected rather than clamped.
func ParseImportPayload(data []byte) (*ImportPayload, error) {
	var payload ImportPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode import payload: %w", err)
	}
	for i, c := range payload.Clients {
		if c.ID == "" {
			return nil, fmt.Errorf("client %d has no identifier", i)
		}
	}
	for i, tx := range payload.Transactions {
		if tx.ID == "" {
			return nil, fmt.Errorf("transaction %d has no identifier", i)
		}
		if tx.ClientID == "" {
			return nil, fmt.Errorf("transaction %s references no client", tx.ID)
		}
		if tx.OriginalAmount.IsNegative() {
			return nil, fmt.Errorf("transaction %s has negative original amount", tx.ID)
		}
	}
	return &payload, nil
}

// normalizeStatus maps the producing system's status labels onto the
// ledger's. Unknown labels default to active; the recompute pass
// corrects the client-level view regardless.
func normalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pagado", "paid":
		return StatusPaid
	case "parcial", "partial":
		return StatusPartial
	case "vencido", "overdue":
		return StatusOverdue
	default:
		return StatusActive
	}
}

// NormalizedTransaction is an import transaction after status and
// payment-history normalization, ready for upsert.
type NormalizedTransaction struct {
	ExternalID       string
	ClientExternalID string
	Date             time.Time
	Description      string
	OriginalAmount   decimal.Decimal
	PaidAmount       decimal.Decimal
	Payments         []Payment
	Status           Status
	SourceCreatedAt  time.Time
}

// Normalize converts the raw payload transaction. A missing paid amount
// falls back to the sum of the payment history; the history itself is
// carried as-is.
func (t *ImportTransaction) Normalize() NormalizedTransaction {
	payments := make([]Payment, 0, len(t.Payments))
	paymentsSum := decimal.Zero
	for _, p := range t.Payments {
		payments = append(payments, Payment{Date: p.Date.Time, Amount: p.Amount})
		paymentsSum = paymentsSum.Add(p.Amount)
	}

	paid := t.PaidAmount
	if paid.IsZero() && paymentsSum.IsPositive() {
		paid = paymentsSum
	}
	if paid.GreaterThan(t.OriginalAmount) {
		paid = t.OriginalAmount
	}

	status := normalizeStatus(t.Status)
	if paid.Equal(t.OriginalAmount) && t.OriginalAmount.IsPositive() {
		status = StatusPaid
	}

	return NormalizedTransaction{
		ExternalID:       string(t.ID),
		ClientExternalID: string(t.ClientID),
		Date:             t.Date.Time,
		Description:      strings.TrimSpace(t.Description),
		OriginalAmount:   t.OriginalAmount,
		PaidAmount:       paid,
		Payments:         payments,
		Status:           status,
		SourceCreatedAt:  t.CreatedAt.Time,
	}
}
