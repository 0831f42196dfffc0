package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pykello/pgaccel/pkg/common"
)

func buildTestTable(t *testing.T, rows int) *Table {
	orderkeys := make([]int64, rows)
	quantities := make([]int64, rows)
	shipmodes := make([]string, rows)
	modes := []string{"AIR", "FOB", "MAIL", "RAIL", "SHIP"}
	for i := 0; i < rows; i++ {
		orderkeys[i] = int64(i / 4)
		quantities[i] = int64(i%50+1) * 100
		shipmodes[i] = modes[i%len(modes)]
	}

	table := NewTable("lineitem")
	require.NoError(t, table.AppendColumn(
		ColumnDesc{Name: "l_orderkey", Type: common.Int32Type(), Layout: RawLayout},
		RawChunks(common.Int32Type(), orderkeys)))
	require.NoError(t, table.AppendColumn(
		ColumnDesc{Name: "l_shipmode", Type: common.StringType(), Layout: DictLayout},
		DictChunks(common.StringType(), shipmodes)))
	require.NoError(t, table.AppendColumn(
		ColumnDesc{Name: "l_quantity", Type: common.DecimalType(2), Layout: RawLayout},
		RawChunks(common.DecimalType(2), quantities)))
	return table
}

func Test_table_basic(t *testing.T) {
	const rows = 2*RowGroupSize + 1234
	table := buildTestTable(t, rows)

	assert.Equal(t, 3, table.ColumnCount())
	assert.Equal(t, 3, table.RowGroupCount())
	assert.Equal(t, uint64(rows), table.RowCount())
	assert.Equal(t, RowGroupSize, table.RowGroup(0).Size)
	assert.Equal(t, 1234, table.RowGroup(2).Size)

	idx, found := table.ColumnIndex("L_ShipMode")
	require.True(t, found)
	assert.Equal(t, 1, idx)

	_, found = table.ColumnIndex("no_such_column")
	assert.False(t, found)
}

func Test_table_roundtrip(t *testing.T) {
	const rows = RowGroupSize + 77
	table := buildTestTable(t, rows)

	path := filepath.Join(t.TempDir(), "lineitem.pgaccel")
	require.NoError(t, table.Save(path))

	loaded, err := LoadTable("lineitem", path, nil)
	require.NoError(t, err)

	assert.Equal(t, table.ColumnCount(), loaded.ColumnCount())
	assert.Equal(t, table.RowGroupCount(), loaded.RowGroupCount())
	assert.Equal(t, table.RowCount(), loaded.RowCount())

	for colIdx, desc := range table.Schema() {
		assert.Equal(t, desc.Type, loaded.Schema()[colIdx].Type)
	}

	// spot check values across the group boundary
	orig := table.RowGroup(1).Columns[0].(*RawColumn)
	got := loaded.RowGroup(1).Columns[0].(*RawColumn)
	require.Equal(t, 77, orig.Len())
	require.Equal(t, orig.Len(), got.Len())
	for i := 0; i < orig.Len(); i++ {
		require.Equal(t, orig.Value(i), got.Value(i))
	}

	origDict := table.RowGroup(0).Columns[1].(*DictColumn[string])
	gotDict := loaded.RowGroup(0).Columns[1].(*DictColumn[string])
	assert.Equal(t, origDict.Dict(), gotDict.Dict())
}

func Test_table_load_subset(t *testing.T) {
	table := buildTestTable(t, 5000)
	path := filepath.Join(t.TempDir(), "lineitem.pgaccel")
	require.NoError(t, table.Save(path))

	loaded, err := LoadTable("lineitem", path, []string{"L_QUANTITY"})
	require.NoError(t, err)

	assert.Equal(t, 1, loaded.ColumnCount())
	assert.Equal(t, "l_quantity", loaded.Schema()[0].Name)
	assert.Equal(t, uint64(5000), loaded.RowCount())
}

func Test_table_load_missing(t *testing.T) {
	_, err := LoadTable("nope", filepath.Join(t.TempDir(), "nope.pgaccel"), nil)
	assert.ErrorIs(t, err, common.ErrIo)
}

func Test_registry(t *testing.T) {
	registry := NewRegistry()
	registry.Register(buildTestTable(t, 100))

	table, err := registry.Lookup("LINEITEM")
	require.NoError(t, err)
	assert.Equal(t, "lineitem", table.Name())

	assert.Equal(t, []string{"lineitem"}, registry.Names())

	require.NoError(t, registry.Forget("lineitem"))
	_, err = registry.Lookup("lineitem")
	assert.ErrorIs(t, err, common.ErrInvalid)
	assert.ErrorIs(t, registry.Forget("lineitem"), common.ErrInvalid)
}
