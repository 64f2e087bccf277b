package sales

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/example/retail-ledger/internal/normalize"
)

// ErrUnreadablePOSFile means no encoding attempt produced readable text.
var ErrUnreadablePOSFile = errors.New("could not decode POS export")

var posBOM = []byte{0xEF, 0xBB, 0xBF}

// ReadPOSFile parses a comma-delimited POS export. The header row maps
// column names to positions; rows with malformed cells keep their
// parseable values (a bad amount becomes 0, never an aborted batch).
func ReadPOSFile(data []byte) ([]POSRecord, error) {
	var text string
	if trimmed := bytes.TrimPrefix(data, posBOM); utf8.Valid(trimmed) {
		text = string(trimmed)
	} else if out, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
		text = string(out)
	} else {
		return nil, ErrUnreadablePOSFile
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, ErrUnreadablePOSFile
	}
	cols := map[string]int{}
	for idx, name := range header {
		cols[strings.ToUpper(strings.TrimSpace(name))] = idx
	}

	var records []POSRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		field := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		records = append(records, POSRecord{
			SectionCode: field("CODSECCION"),
			Section:     field("DSCSECCION"),
			FamilyCode:  field("CODFAMILIA"),
			Family:      field("DSCFAMILIA"),
			PLUCode:     field("NROPLU"),
			Product:     field("NOMPLU"),
			UnitLabel:   field("UNI"),
			Weight:      normalize.ParseAmount(field("PESO")),
			Amount:      normalize.ParseAmount(field("IMP")),
			Units:       normalize.ParseUnits(field("UNI")),
		})
	}
	return records, nil
}

// GroupTotal aggregates POS records sharing a label.
type GroupTotal struct {
	Label  string
	Count  int
	Weight float64
	Units  float64
	Amount float64
}

// AggregateTotals are the batch-level sums.
type AggregateTotals struct {
	Rows   int
	Weight float64
	Units  float64
	Amount float64
}

// Aggregate is the import-time summary of a POS batch.
type Aggregate struct {
	Totals      AggregateTotals
	BySection   []GroupTotal
	TopProducts []GroupTotal
}

const topProductLimit = 20

// AggregateRecords sums a record set, grouping by section and product.
// Weights and unit counts round to 3 decimals, amounts to 2.
func AggregateRecords(records []POSRecord) *Aggregate {
	agg := &Aggregate{Totals: AggregateTotals{Rows: len(records)}}

	bySection := map[string]*GroupTotal{}
	byProduct := map[string]*GroupTotal{}
	for _, r := range records {
		agg.Totals.Weight += r.Weight
		agg.Totals.Units += r.Units
		agg.Totals.Amount += r.Amount

		section := r.Section
		if section == "" {
			section = r.SectionCode
		}
		addGroup(bySection, section, r)
		addGroup(byProduct, r.Product, r)
	}

	agg.Totals.Weight = round3(agg.Totals.Weight)
	agg.Totals.Units = round3(agg.Totals.Units)
	agg.Totals.Amount = round2(agg.Totals.Amount)

	agg.BySection = sortedGroups(bySection, 0)
	agg.TopProducts = sortedGroups(byProduct, topProductLimit)
	return agg
}

func addGroup(m map[string]*GroupTotal, label string, r POSRecord) {
	entry, ok := m[label]
	if !ok {
		entry = &GroupTotal{Label: label}
		m[label] = entry
	}
	entry.Count++
	entry.Weight += r.Weight
	entry.Units += r.Units
	entry.Amount += r.Amount
}

func sortedGroups(m map[string]*GroupTotal, limit int) []GroupTotal {
	out := make([]GroupTotal, 0, len(m))
	for _, entry := range m {
		out = append(out, GroupTotal{
			Label:  entry.Label,
			Count:  entry.Count,
			Weight: round3(entry.Weight),
			Units:  round3(entry.Units),
			Amount: round2(entry.Amount),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Label < out[j].Label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
