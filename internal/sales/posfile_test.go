package sales

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const posSample = "CODSECCION,DSCSECCION,CODFAMILIA,DSCFAMILIA,NROPLU,NOMPLU,UNI,PESO,IMP\n" +
	"1,CARNICERIA,10,VACUNO,100,ASADO,\"2,5\",\"2,500\",\"12.500,00\"\n" +
	"1,CARNICERIA,10,VACUNO,101,VACIO,UND,\"1,200\",\"8.000,50\"\n" +
	"2,ALMACEN,20,BEBIDAS,200,GASEOSA,3,0,\"4.500,00\"\n"

func TestReadPOSFile(t *testing.T) {
	records, err := ReadPOSFile([]byte(posSample))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "CARNICERIA", records[0].Section)
	assert.Equal(t, "ASADO", records[0].Product)
	assert.Equal(t, 2.5, records[0].Weight)
	assert.Equal(t, 12500.0, records[0].Amount)
	assert.Equal(t, 2.5, records[0].Units)

	// A unit label counts as one sold unit.
	assert.Equal(t, 1.0, records[1].Units)
	assert.Equal(t, 3.0, records[2].Units)
}

func TestReadPOSFileLatin1(t *testing.T) {
	data := []byte("CODSECCION,DSCSECCION,CODFAMILIA,DSCFAMILIA,NROPLU,NOMPLU,UNI,PESO,IMP\n" +
		"1,PANADER\xcdA,10,PAN,100,MIGN\xd3N,1,0,\"100,00\"\n")

	records, err := ReadPOSFile(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "PANADERÍA", records[0].Section)
	assert.Equal(t, "MIGNÓN", records[0].Product)
}

func TestReadPOSFileShuffledColumns(t *testing.T) {
	data := []byte("IMP,NOMPLU,DSCSECCION\n\"250,00\",FACTURA,PANADERIA\n")

	records, err := ReadPOSFile(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 250.0, records[0].Amount)
	assert.Equal(t, "FACTURA", records[0].Product)
	assert.Equal(t, "PANADERIA", records[0].Section)
	assert.Equal(t, 0.0, records[0].Weight)
}

func TestAggregateRecords(t *testing.T) {
	records, err := ReadPOSFile([]byte(posSample))
	require.NoError(t, err)

	agg := AggregateRecords(records)
	assert.Equal(t, 3, agg.Totals.Rows)
	assert.Equal(t, 25000.5, agg.Totals.Amount)
	assert.Equal(t, 3.7, agg.Totals.Weight)
	assert.Equal(t, 6.5, agg.Totals.Units)

	require.Len(t, agg.BySection, 2)
	assert.Equal(t, "CARNICERIA", agg.BySection[0].Label)
	assert.Equal(t, 20500.5, agg.BySection[0].Amount)
	assert.Equal(t, 2, agg.BySection[0].Count)
	assert.Equal(t, "ALMACEN", agg.BySection[1].Label)

	require.Len(t, agg.TopProducts, 3)
	assert.Equal(t, "ASADO", agg.TopProducts[0].Label)
	assert.Equal(t, "VACIO", agg.TopProducts[1].Label)
	assert.Equal(t, "GASEOSA", agg.TopProducts[2].Label)
}
