package receivable

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/retail-ledger/pkg/audit"
)

// AllocationRequest selects a client, a strategy and its inputs.
type AllocationRequest struct {
	ClientID       uuid.UUID
	Mode           Mode
	Amount         decimal.Decimal
	Date           time.Time
	TransactionIDs []uuid.UUID
	From           *time.Time
	To             *time.Time
}

// AllocationResult reports what one allocation changed.
type AllocationResult struct {
	Applied      decimal.Decimal
	Settled      int
	Touched      []uuid.UUID
	ClientDebt   decimal.Decimal
	ClientStatus Status
}

// ImportSummary reports what a bulk import changed.
type ImportSummary struct {
	ClientsUpserted      int
	StubClientsCreated   int
	TransactionsUpserted int
	ClientsRecomputed    int
}

// Store is the persistence contract. AllocatePayment and ImportAccounts
// must run their reads, writes and the client recompute inside one
// transaction each, so a failure leaves no partial ledger mutation.
type Store interface {
	AllocatePayment(ctx context.Context, req AllocationRequest) (*AllocationResult, error)
	CreateClient(ctx context.Context, client *Client) error
	UpdateClient(ctx context.Context, id uuid.UUID, patch ClientPatch) (*Client, error)
	DeleteClient(ctx context.Context, id uuid.UUID) error
	ClientWithTransactions(ctx context.Context, id uuid.UUID) (*Client, []Transaction, error)
	ListClients(ctx context.Context, status Status) ([]Client, error)
	CreateTransaction(ctx context.Context, tx *Transaction) error
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	ImportAccounts(ctx context.Context, clients []ImportClient, txs []NormalizedTransaction) (*ImportSummary, error)
	RecomputeAll(ctx context.Context) (int, error)
	ListTransactions(ctx context.Context, from, to *time.Time) ([]Transaction, error)
}

// Service is the receivables ledger.
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

// Pay applies a payment against a client's outstanding transactions
// using the requested strategy. An allocation that applies nothing
// fails with ErrNoOutstanding.
func (s *Service) Pay(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	switch req.Mode {
	case ModeSelectedFull, ModeFullSettlement:
	case ModeSelectedPartial, ModeOldestFirst:
		if !req.Amount.IsPositive() {
			return nil, ErrInvalidAmount
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	if req.Date.IsZero() {
		req.Date = s.now().UTC()
	}

	result, err := s.store.AllocatePayment(ctx, req)
	if err != nil {
		return nil, err
	}

	s.log.Info("payment allocated",
		"client_id", req.ClientID,
		"mode", string(req.Mode),
		"applied", result.Applied.StringFixed(2),
		"settled", result.Settled,
	)
	if s.journal != nil {
		s.journal.Record(ctx, "receivable.pay", fmt.Sprintf("client=%s mode=%s applied=%s", req.ClientID, req.Mode, result.Applied.StringFixed(2)))
	}
	return result, nil
}

// NewClientInput is the manual client-creation form.
type NewClientInput struct {
	ExternalID string
	FirstName  string
	LastName   string
	Phone      string
}

// CreateClient registers a client with no debt.
func (s *Service) CreateClient(ctx context.Context, input NewClientInput) (*Client, error) {
	client := &Client{
		ID:         uuid.New(),
		ExternalID: input.ExternalID,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		Phone:      input.Phone,
		TotalDebt:  decimal.Zero,
		Status:     StatusPaid,
	}
	if client.ExternalID == "" {
		client.ExternalID = client.ID.String()
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

// ClientPatch updates the editable client fields. Nil means unchanged.
type ClientPatch struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

func (s *Service) UpdateClient(ctx context.Context, id uuid.UUID, patch ClientPatch) (*Client, error) {
	return s.store.UpdateClient(ctx, id, patch)
}

// DeleteClient removes a client and, by ownership, all their
// transactions.
func (s *Service) DeleteClient(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteClient(ctx, id)
}

// NewTransactionInput is the manual transaction-creation form.
type NewTransactionInput struct {
	ClientID       uuid.UUID
	Date           time.Time
	Description    string
	OriginalAmount decimal.Decimal
}

// CreateTransaction registers a new receivable. The amount must be
// strictly positive; a past-dated debt is born overdue rather than
// active.
func (s *Service) CreateTransaction(ctx context.Context, input NewTransactionInput) (*Transaction, error) {
	if !input.OriginalAmount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	date := input.Date
	if date.IsZero() {
		date = s.now().UTC()
	}

	status := StatusActive
	today := s.now().UTC().Truncate(24 * time.Hour)
	if date.Before(today) {
		status = StatusOverdue
	}

	tx := &Transaction{
		ID:             uuid.New(),
		ClientID:       input.ClientID,
		Date:           date,
		Description:    input.Description,
		OriginalAmount: input.OriginalAmount,
		PaidAmount:     decimal.Zero,
		Status:         status,
	}
	tx.ExternalID = tx.ID.String()

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// DeleteTransaction removes one receivable; the owning client's totals
// are recomputed in the same transaction.
func (s *Service) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteTransaction(ctx, id)
}

// Statement is a client's full position.
type Statement struct {
	Client        *Client
	Transactions  []Transaction
	TotalOriginal decimal.Decimal
	TotalPaid     decimal.Decimal
	TotalPending  decimal.Decimal
}

// ClientStatement lists a client's transactions with ledger totals.
func (s *Service) ClientStatement(ctx context.Context, id uuid.UUID) (*Statement, error) {
	client, txs, err := s.store.ClientWithTransactions(ctx, id)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		Client:        client,
		Transactions:  txs,
		TotalOriginal: decimal.Zero,
		TotalPaid:     decimal.Zero,
		TotalPending:  decimal.Zero,
	}
	for i := range txs {
		st.TotalOriginal = st.TotalOriginal.Add(txs[i].OriginalAmount)
		st.TotalPaid = st.TotalPaid.Add(txs[i].PaidAmount)
		st.TotalPending = st.TotalPending.Add(txs[i].Remaining())
	}
	return st, nil
}

// ListClients filters clients by status; an empty status lists all.
func (s *Service) ListClients(ctx context.Context, status Status) ([]Client, error) {
	return s.store.ListClients(ctx, status)
}

// ImportAccounts upserts the payload's clients and transactions by
// external identifier, creating stub clients for transactions that
// reference an unknown one, then recomputes exactly the touched
// clients.
func (s *Service) ImportAccounts(ctx context.Context, data []byte) (*ImportSummary, error) {
	payload, err := ParseImportPayload(data)
	if err != nil {
		return nil, err
	}

	normalized := make([]NormalizedTransaction, 0, len(payload.Transactions))
	for i := range payload.Transactions {
		normalized = append(normalized, payload.Transactions[i].Normalize())
	}

	summary, err := s.store.ImportAccounts(ctx, payload.Clients, normalized)
	if err != nil {
		return nil, err
	}

	s.log.Info("accounts imported",
		"clients", summary.ClientsUpserted,
		"stubs", summary.StubClientsCreated,
		"transactions", summary.TransactionsUpserted,
		"recomputed", summary.ClientsRecomputed,
	)
	if s.journal != nil {
		s.journal.Record(ctx, "receivable.import", fmt.Sprintf("clients=%d transactions=%d", summary.ClientsUpserted, summary.TransactionsUpserted))
	}
	return summary, nil
}

// RecomputeAll re-derives totals and status for every client. Safe to
// run at any time as a repair operation.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	count, err := s.store.RecomputeAll(ctx)
	if err != nil {
		return 0, err
	}
	s.log.Info("client totals recomputed", "clients", count)
	return count, nil
}

// MonthFlow is one month of the receivables report.
type MonthFlow struct {
	Year      int
	Month     time.Month
	NewDebt   decimal.Decimal
	Collected decimal.Decimal
}

// DayFlow is one day of the receivables report.
type DayFlow struct {
	Date      time.Time
	NewDebt   decimal.Decimal
	Collected decimal.Decimal
}

// Report is the receivables activity report over a window.
type Report struct {
	TotalOriginal decimal.Decimal
	TotalPaid     decimal.Decimal
	TotalPending  decimal.Decimal
	Months        []MonthFlow
	Days          []DayFlow
}

// StatsReport groups receivable activity by month and by day: debt
// registered on the transaction date, collections on each payment date.
func (s *Service) StatsReport(ctx context.Context, from, to *time.Time) (*Report, error) {
	txs, err := s.store.ListTransactions(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return buildReport(txs), nil
}

func buildReport(txs []Transaction) *Report {
	report := &Report{
		TotalOriginal: decimal.Zero,
		TotalPaid:     decimal.Zero,
		TotalPending:  decimal.Zero,
	}

	type monthKey struct {
		year  int
		month time.Month
	}
	months := map[monthKey]*MonthFlow{}
	days := map[time.Time]*DayFlow{}

	monthOf := func(t time.Time) *MonthFlow {
		key := monthKey{t.Year(), t.Month()}
		m, ok := months[key]
		if !ok {
			m = &MonthFlow{Year: key.year, Month: key.month, NewDebt: decimal.Zero, Collected: decimal.Zero}
			months[key] = m
		}
		return m
	}
	dayOf := func(t time.Time) *DayFlow {
		key := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		d, ok := days[key]
		if !ok {
			d = &DayFlow{Date: key, NewDebt: decimal.Zero, Collected: decimal.Zero}
			days[key] = d
		}
		return d
	}

	for i := range txs {
		tx := &txs[i]
		report.TotalOriginal = report.TotalOriginal.Add(tx.OriginalAmount)
		report.TotalPaid = report.TotalPaid.Add(tx.PaidAmount)
		report.TotalPending = report.TotalPending.Add(tx.Remaining())

		m := monthOf(tx.Date)
		m.NewDebt = m.NewDebt.Add(tx.OriginalAmount)
		d := dayOf(tx.Date)
		d.NewDebt = d.NewDebt.Add(tx.OriginalAmount)

		for _, p := range tx.Payments {
			pm := monthOf(p.Date)
			pm.Collected = pm.Collected.Add(p.Amount)
			pd := dayOf(p.Date)
			pd.Collected = pd.Collected.Add(p.Amount)
		}
	}

	for _, m := range months {
		report.Months = append(report.Months, *m)
	}
	sort.Slice(report.Months, func(i, j int) bool {
		if report.Months[i].Year != report.Months[j].Year {
			return report.Months[i].Year < report.Months[j].Year
		}
		return report.Months[i].Month < report.Months[j].Month
	})

	for _, d := range days {
		report.Days = append(report.Days, *d)
	}
	sort.Slice(report.Days, func(i, j int) bool {
		return report.Days[i].Date.Before(report.Days[j].Date)
	})
	return report
}
