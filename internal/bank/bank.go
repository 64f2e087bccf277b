// Package bank keeps the ledger of imported bank movements: upload
// batches scoped to the date range they cover, period-conflict handling
// between batches of the same institution, and movement summaries.
package bank

import (
	"fmt"
	"time"
)

// Batch is one statement upload for one institution. Its transactions
// are owned by the batch and removed with it.
type Batch struct {
	ID        int64
	Bank      string
	Filename  string
	DateFrom  time.Time
	DateTo    time.Time
	CreatedAt time.Time
}

// Transaction is a persisted statement row.
type Transaction struct {
	ID          int64
	BatchID     int64
	Date        time.Time
	Concept     string
	Description string
	Amount      float64
}

// ConflictError reports prior batches of the same institution whose date
// range intersects the incoming one. The caller may retry with the
// overwrite flag set to replace them.
type ConflictError struct {
	Batches []Batch
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d existing batches overlap the imported period", len(e.Batches))
}
