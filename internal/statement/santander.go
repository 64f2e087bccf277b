package statement

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/example/retail-ledger/internal/normalize"
)

// santanderParser handles the Santander home-banking CSV export: a
// semicolon-delimited file where the real movement table is preceded by
// assorted summary blocks. Only the last header block is kept; a
// "saldo al" row marks the end of the table.
type santanderParser struct{}

func (santanderParser) Parse(data []byte, filename string) ([]Row, error) {
	text, derr := decodeText(data, []string{encUTF8BOM, encLatin1, encCP1252})
	if derr != nil {
		derr.Variant = VariantSantander
		return nil, derr
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []Row
	collecting := false

scan:
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed line; skip it, the rest of the file may be fine.
			continue
		}
		if len(record) < 5 {
			continue
		}
		first := strings.ToLower(strings.TrimSpace(record[0]))

		switch {
		case strings.HasPrefix(first, "fecha") && strings.Contains(strings.ToLower(cell(record, 6)), "importe"):
			// New header block: discard whatever was collected before.
			rows = nil
			collecting = true
			continue
		case strings.Contains(first, "ultimos movimientos") || strings.Contains(first, "movimientos del dia"):
			collecting = false
			continue
		}
		if !collecting {
			continue
		}
		if strings.HasPrefix(first, "saldo al") {
			break scan
		}

		date, err := normalize.ParseDate(record[0])
		if err != nil {
			continue
		}

		concept := normalize.CleanConcept(cellOr(record, 5, cell(record, 2)))
		description := strings.TrimSpace(cell(record, 4))
		amountRaw := cellOr(record, 6, cell(record, 4))
		if concept == "" {
			concept = description
		}
		rows = append(rows, Row{
			Date:        date,
			Concept:     concept,
			Description: description,
			Amount:      normalize.ParseAmount(amountRaw),
		})
	}

	if len(rows) == 0 {
		return nil, &Error{Kind: KindNoRows, Variant: VariantSantander, Message: "file contains no movements"}
	}
	return rows, nil
}

func cell(record []string, idx int) string {
	if idx < len(record) {
		return record[idx]
	}
	return ""
}

func cellOr(record []string, idx int, fallback string) string {
	if idx < len(record) {
		return record[idx]
	}
	return fallback
}
