// Package statement extracts dated money movements from the raw bank
// export files each institution produces. Every parser receives the file
// bytes plus the original filename and returns the movements in file
// order; persistence and period bookkeeping belong to the bank package.
package statement

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Row is a single normalized bank movement. Amounts are signed: positive
// means credit/income, negative means debit/expense.
type Row struct {
	Date        time.Time
	Concept     string
	Description string
	Amount      float64
}

// Parser converts one institution's raw export into movements.
type Parser interface {
	Parse(data []byte, filename string) ([]Row, error)
}

// Supported institutions.
const (
	BankSantander = "santander"
	BankBancon    = "bancon"
)

// Parser variant identifiers.
const (
	VariantSantander         = "santander"
	VariantBanconCSV         = "bancon-csv"
	VariantBanconSpreadsheet = "bancon-spreadsheet"
)

var registry = map[string]Parser{
	VariantSantander:         santanderParser{},
	VariantBanconCSV:         banconCSVParser{},
	VariantBanconSpreadsheet: banconSpreadsheetParser{},
}

// Lookup returns the parser for an explicit variant identifier.
func Lookup(variant string) (Parser, error) {
	p, ok := registry[variant]
	if !ok {
		return nil, fmt.Errorf("unknown parser variant %q", variant)
	}
	return p, nil
}

// ForBank selects the parser for an institution. Bancón uploads arrive
// either as delimited text or as a spreadsheet, so the filename extension
// picks the variant.
func ForBank(bank, filename string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(bank)) {
	case BankSantander:
		return registry[VariantSantander], nil
	case BankBancon:
		if strings.EqualFold(filepath.Ext(filename), ".csv") {
			return registry[VariantBanconCSV], nil
		}
		return registry[VariantBanconSpreadsheet], nil
	default:
		return nil, fmt.Errorf("unknown bank %q", bank)
	}
}

// Range returns the [min, max] dates covered by a row set. ok is false
// for an empty set.
func Range(rows []Row) (from, to time.Time, ok bool) {
	for _, r := range rows {
		if !ok {
			from, to, ok = r.Date, r.Date, true
			continue
		}
		if r.Date.Before(from) {
			from = r.Date
		}
		if r.Date.After(to) {
			to = r.Date
		}
	}
	return from, to, ok
}
