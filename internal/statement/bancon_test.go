package statement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const banconCSVSample = `Banco Bancon - Resumen;;;
Cuenta;123-456;;
Fecha;Concepto;Detalle;Importe
10/02/2024;PAGO SERVICIO;LUZ;-500,25
;;;
11/02/2024;ACREDITACION;VENTA / - VAR /;1.000,00
Saldo al 11/02/2024;;;1500,00
12/02/2024;NO DEBE;APARECER;1,00
`

func TestBanconCSV(t *testing.T) {
	rows, err := banconCSVParser{}.Parse([]byte(banconCSVSample), "bancon.csv")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, "PAGO SERVICIO", rows[0].Concept)
	assert.Equal(t, "LUZ", rows[0].Description)
	assert.Equal(t, -500.25, rows[0].Amount)

	assert.Equal(t, 1000.00, rows[1].Amount)
	assert.NotContains(t, rows[1].Description, "VAR")
}

func TestBanconCSVShuffledColumns(t *testing.T) {
	sample := "Importe;Fecha;Concepto\n" +
		"-200,00;05/02/2024;DEBITO AUTOMATICO\n"
	rows, err := banconCSVParser{}.Parse([]byte(sample), "bancon.csv")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, -200.00, rows[0].Amount)
	assert.Equal(t, "DEBITO AUTOMATICO", rows[0].Concept)
	assert.Equal(t, "", rows[0].Description)
}

func TestBanconCSVIgnoresHoraColumn(t *testing.T) {
	sample := "Fecha hora;Fecha;Concepto;Importe\n" +
		"12:30;05/02/2024;PAGO;10,00\n"
	rows, err := banconCSVParser{}.Parse([]byte(sample), "bancon.csv")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), rows[0].Date)
}

func TestBanconCSVNoRows(t *testing.T) {
	_, err := banconCSVParser{}.Parse([]byte("sin;encabezado;alguno\n1;2;3\n"), "bancon.csv")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNoRows))
}

func buildWorkbook(t *testing.T, header []interface{}, rows ...[]interface{}) []byte {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()

	sheet := book.GetSheetList()[0]
	require.NoError(t, book.SetSheetRow(sheet, "A1", &header))
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheet, cellRef, &row))
	}

	buf, err := book.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestBanconSpreadsheet(t *testing.T) {
	data := buildWorkbook(t,
		[]interface{}{"Fecha", "Concepto", "Descripcion", "Monto"},
		[]interface{}{"05/03/2024", "TRANSFERENCIA CUIT 20123456789", "COBRO", "1.234,56"},
		[]interface{}{45356, "PAGO", "SERVICIO", -300.5},
		[]interface{}{"", "FILA SIN FECHA", "X", "10"},
	)

	rows, err := banconSpreadsheetParser{}.Parse(data, "bancon.xlsx")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, 1234.56, rows[0].Amount)
	assert.NotContains(t, rows[0].Concept, "20123456789")

	// Serial 45356 is 2024-03-05 in the 1900 date system.
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), rows[1].Date)
	assert.Equal(t, -300.5, rows[1].Amount)
}

func TestBanconSpreadsheetMissingColumns(t *testing.T) {
	data := buildWorkbook(t,
		[]interface{}{"Fecha", "Descripcion"},
		[]interface{}{"05/03/2024", "COBRO"},
	)

	_, err := banconSpreadsheetParser{}.Parse(data, "bancon.xlsx")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMissingColumns))
}

func TestBanconSpreadsheetUnreadable(t *testing.T) {
	_, err := banconSpreadsheetParser{}.Parse([]byte("esto no es un workbook"), "bancon.xlsx")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnreadableFile))
}
