package statement

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/example/retail-ledger/internal/normalize"
)

// banconCSVParser handles the Bancón delimited export. Column positions
// are not fixed across exports, so the header is detected by scanning
// every row for the known column labels; collection starts once a row
// resolves at least {date, concept, amount}.
type banconCSVParser struct{}

type columnSet struct {
	date        int
	concept     int
	description int
	amount      int
	hasDesc     bool
}

func detectColumns(values []string) (columnSet, bool) {
	cols := columnSet{date: -1, concept: -1, amount: -1}
	for idx, value := range values {
		lower := strings.ToLower(value)
		switch {
		case strings.Contains(lower, "fecha") && !strings.Contains(lower, "hora"):
			cols.date = idx
		case strings.Contains(lower, "concepto") || strings.Contains(lower, "concept"):
			cols.concept = idx
		case strings.Contains(lower, "descripcion") || strings.Contains(lower, "detalle"):
			cols.description = idx
			cols.hasDesc = true
		case strings.Contains(lower, "monto") || strings.Contains(lower, "importe"):
			cols.amount = idx
		}
	}
	return cols, cols.date >= 0 && cols.concept >= 0 && cols.amount >= 0
}

func (banconCSVParser) Parse(data []byte, filename string) ([]Row, error) {
	text, derr := decodeText(data, []string{encLatin1, encUTF8BOM})
	if derr != nil {
		derr.Variant = VariantBanconCSV
		return nil, derr
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []Row
	var cols columnSet
	haveCols := false

scan:
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		normalized := make([]string, len(record))
		empty := true
		for i, c := range record {
			normalized[i] = strings.TrimSpace(c)
			if normalized[i] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		if strings.HasPrefix(strings.ToLower(normalized[0]), "saldo al") {
			break scan
		}
		if detected, ok := detectColumns(normalized); ok {
			cols, haveCols = detected, true
			continue
		}
		if !haveCols {
			continue
		}

		dateVal := cell(normalized, cols.date)
		if dateVal == "" {
			continue
		}
		date, err := normalize.ParseDate(dateVal)
		if err != nil {
			continue
		}

		concept := normalize.CleanConcept(cell(normalized, cols.concept))
		description := ""
		if cols.hasDesc {
			description = normalize.CleanConcept(cell(normalized, cols.description))
		}
		if concept == "" {
			concept = description
		}
		rows = append(rows, Row{
			Date:        date,
			Concept:     concept,
			Description: description,
			Amount:      normalize.ParseAmount(cell(normalized, cols.amount)),
		})
	}

	if len(rows) == 0 {
		return nil, &Error{Kind: KindNoRows, Variant: VariantBanconCSV, Message: "file contains no movements"}
	}
	return rows, nil
}
