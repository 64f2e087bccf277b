package statement

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const santanderSample = `Resumen de movimientos;;;;;;
Fecha;Comprobante;Concepto;Oficina;Descripcion;Concepto ampliado;Importe
01/01/2024;0000;X;001;VIEJO;MOVIMIENTO VIEJO;-10,00
Ultimos movimientos;;;;;;
Fecha;Comprobante;Concepto;Oficina;Descripcion;Concepto ampliado;Importe
15/01/2024;0001;PAGO;001;PAGO PROVEEDOR;TRANSFERENCIA VAR 20123456789;-1.500,50
no es fecha;0001;PAGO;001;BASURA;BASURA;-1,00
16/01/2024;0002;DEP;001;DEPOSITO EFECTIVO;DEPOSITO;2.000,00
Saldo al 16/01/2024;;;;;;500,00
17/01/2024;0003;DEP;001;NO DEBE APARECER;NO;1,00
`

func TestSantanderKeepsOnlyLastHeaderBlock(t *testing.T) {
	parser, err := Lookup(VariantSantander)
	require.NoError(t, err)

	rows, err := parser.Parse([]byte(santanderSample), "movimientos.csv")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, -1500.50, rows[0].Amount)
	assert.Equal(t, "PAGO PROVEEDOR", rows[0].Description)
	assert.NotContains(t, rows[0].Concept, "VAR")
	assert.NotContains(t, rows[0].Concept, "20123456789")

	assert.Equal(t, 2000.00, rows[1].Amount)
}

func TestSantanderEmptyConceptFallsBackToDescription(t *testing.T) {
	sample := strings.Join([]string{
		"Fecha;Comprobante;Concepto;Oficina;Descripcion;Concepto ampliado;Importe",
		"15/01/2024;0001;X;001;DEPOSITO EN VENTANILLA;30112223334;100,00",
	}, "\n")

	rows, err := santanderParser{}.Parse([]byte(sample), "movimientos.csv")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "DEPOSITO EN VENTANILLA", rows[0].Concept)
}

func TestSantanderNoRows(t *testing.T) {
	_, err := santanderParser{}.Parse([]byte("algo;que;no;es;un;resumen\n"), "x.csv")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNoRows))
}

func TestSantanderLatin1(t *testing.T) {
	sample := "Fecha;Comprobante;Concepto;Oficina;Descripcion;Concepto ampliado;Importe\n" +
		"15/01/2024;0001;X;001;CR\xc9DITO;ACREDITACI\xd3N;100,00\n"
	rows, err := santanderParser{}.Parse([]byte(sample), "x.csv")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CRÉDITO", rows[0].Description)
}

func TestRange(t *testing.T) {
	_, _, ok := Range(nil)
	assert.False(t, ok)

	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }
	from, to, ok := Range([]Row{{Date: d(12)}, {Date: d(3)}, {Date: d(25)}})
	require.True(t, ok)
	assert.Equal(t, d(3), from)
	assert.Equal(t, d(25), to)
}

func TestForBank(t *testing.T) {
	p, err := ForBank("santander", "resumen.csv")
	require.NoError(t, err)
	assert.IsType(t, santanderParser{}, p)

	p, err = ForBank("bancon", "movimientos.CSV")
	require.NoError(t, err)
	assert.IsType(t, banconCSVParser{}, p)

	p, err = ForBank("Bancon", "movimientos.xlsx")
	require.NoError(t, err)
	assert.IsType(t, banconSpreadsheetParser{}, p)

	_, err = ForBank("galicia", "x.csv")
	require.Error(t, err)
}
