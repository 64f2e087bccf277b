package statement

import (
	"bytes"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/retail-ledger/internal/normalize"
)

// banconSpreadsheetParser handles the Bancón workbook export. The first
// sheet carries a single header row; date cells may be stored either as
// text or as spreadsheet date serials, which must be converted through
// the workbook's date system.
type banconSpreadsheetParser struct{}

func (banconSpreadsheetParser) Parse(data []byte, filename string) ([]Row, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: KindUnreadableFile, Variant: VariantBanconSpreadsheet, Message: "could not open workbook"}
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, &Error{Kind: KindNoRows, Variant: VariantBanconSpreadsheet, Message: "workbook has no sheets"}
	}
	grid, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, &Error{Kind: KindUnreadableFile, Variant: VariantBanconSpreadsheet, Message: "could not read first sheet"}
	}
	if len(grid) == 0 {
		return nil, &Error{Kind: KindMissingColumns, Variant: VariantBanconSpreadsheet, Message: "missing header row"}
	}

	cols, ok := detectColumns(grid[0])
	if !ok {
		return nil, &Error{Kind: KindMissingColumns, Variant: VariantBanconSpreadsheet, Message: "expected date, concept and amount headers"}
	}

	use1904 := false
	if props, err := book.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		use1904 = *props.Date1904
	}

	var rows []Row
	for _, record := range grid[1:] {
		dateVal := cell(record, cols.date)
		if dateVal == "" {
			continue
		}
		date, err := spreadsheetDate(dateVal, use1904)
		if err != nil {
			continue
		}

		concept := normalize.CleanConcept(cell(record, cols.concept))
		description := ""
		if cols.hasDesc {
			description = normalize.CleanConcept(cell(record, cols.description))
		}
		if concept == "" {
			concept = description
		}
		rows = append(rows, Row{
			Date:        date,
			Concept:     concept,
			Description: description,
			Amount:      normalize.ParseAmount(cell(record, cols.amount)),
		})
	}

	if len(rows) == 0 {
		return nil, &Error{Kind: KindNoRows, Variant: VariantBanconSpreadsheet, Message: "workbook contains no movements"}
	}
	return rows, nil
}

// spreadsheetDate accepts both textual dates and raw date serials.
func spreadsheetDate(value string, use1904 bool) (time.Time, error) {
	if date, err := normalize.ParseDate(value); err == nil {
		return date, nil
	}
	serial, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, err
	}
	t, err := excelize.ExcelDateToTime(serial, use1904)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
