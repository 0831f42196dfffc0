package storage

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/util"
)

func Test_raw_column_widths(t *testing.T) {
	cases := []struct {
		vals  []int64
		width int
	}{
		{[]int64{0, 1, 127}, 1},
		{[]int64{-128, 0, 127}, 1},
		{[]int64{0, 128}, 2},
		{[]int64{-30000, 20000}, 2},
		{[]int64{0, 1 << 20}, 4},
		{[]int64{0, 1 << 40}, 8},
		{[]int64{-(1 << 40), 5}, 8},
	}

	for _, c := range cases {
		col := NewRawColumn(common.Int64Type(), c.vals)
		assert.Equal(t, c.width, col.BytesPerValue(), "vals: %v", c.vals)
		for i, v := range c.vals {
			assert.Equal(t, v, col.Value(i))
			assert.LessOrEqual(t, col.Min(), v)
			assert.GreaterOrEqual(t, col.Max(), v)
		}
	}
}

func Test_raw_column_random(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vals := make([]int64, 10000)
	for i := range vals {
		vals[i] = int64(rng.Intn(100000) - 50000)
	}
	col := NewRawColumn(common.Int32Type(), vals)
	assert.Equal(t, 4, col.BytesPerValue())
	for i, v := range vals {
		require.Equal(t, v, col.Value(i))
	}
}

func Test_dict_column_build(t *testing.T) {
	vals := []string{"MAIL", "AIR", "TRUCK", "AIR", "SHIP", "MAIL", "AIR"}
	col := NewDictColumn(common.StringType(), vals)

	assert.Equal(t, []string{"AIR", "MAIL", "SHIP", "TRUCK"}, col.Dict())
	assert.Equal(t, 1, col.BytesPerValue())
	assert.Equal(t, len(vals), col.Len())

	// the dict is strictly increasing and every index addresses it
	for i := 1; i < col.DictLen(); i++ {
		assert.Less(t, col.Dict()[i-1], col.Dict()[i])
	}
	for i := 0; i < col.Len(); i++ {
		idx := int(col.Values()[i])
		require.Less(t, idx, col.DictLen())
		assert.Equal(t, vals[i], col.Dict()[idx])
	}
}

func Test_dict_column_wide_indices(t *testing.T) {
	vals := make([]int32, 5000)
	for i := range vals {
		vals[i] = int32(i % 300)
	}
	col := NewDictColumn(common.DateType(), vals)

	assert.Equal(t, 300, col.DictLen())
	assert.Equal(t, 2, col.BytesPerValue())

	out := make([]uint16, col.Len())
	col.To16(out)
	for i := range vals {
		require.Equal(t, vals[i], col.Dict()[out[i]])
	}
}

func Test_column_data_roundtrip(t *testing.T) {
	dir := t.TempDir()

	rawVals := []int64{510, 220, 99, 12345, -7}
	dictVals := []string{"FOB", "AIR", "RAIL", "AIR"}
	dateVals := []int32{9538, 9539, 9538}

	path := filepath.Join(dir, "columns.bin")
	serial, err := util.NewFileSerialize(path)
	require.NoError(t, err)
	require.NoError(t, NewRawColumn(common.DecimalType(2), rawVals).Save(serial))
	require.NoError(t, NewDictColumn(common.StringType(), dictVals).Save(serial))
	require.NoError(t, NewDictColumn(common.DateType(), dateVals).Save(serial))
	require.NoError(t, serial.Close())

	deserial, err := util.NewFileDeserialize(path)
	require.NoError(t, err)
	defer deserial.Close()

	data, err := LoadColumnData(deserial, common.DecimalType(2))
	require.NoError(t, err)
	raw := data.(*RawColumn)
	assert.Equal(t, len(rawVals), raw.Len())
	for i, v := range rawVals {
		assert.Equal(t, v, raw.Value(i))
	}
	assert.Equal(t, int64(-7), raw.Min())
	assert.Equal(t, int64(12345), raw.Max())

	data, err = LoadColumnData(deserial, common.StringType())
	require.NoError(t, err)
	dict := data.(*DictColumn[string])
	assert.Equal(t, []string{"AIR", "FOB", "RAIL"}, dict.Dict())
	assert.Equal(t, len(dictVals), dict.Len())

	data, err = LoadColumnData(deserial, common.DateType())
	require.NoError(t, err)
	dates := data.(*DictColumn[int32])
	assert.Equal(t, []int32{9538, 9539}, dates.Dict())
}

func Test_column_data_load_errors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.bin")

	serial, err := util.NewFileSerialize(path)
	require.NoError(t, err)
	require.NoError(t, util.Write[uint8](7, serial))
	require.NoError(t, serial.Close())

	deserial, err := util.NewFileDeserialize(path)
	require.NoError(t, err)
	defer deserial.Close()

	_, err = LoadColumnData(deserial, common.Int32Type())
	assert.ErrorIs(t, err, common.ErrInvalid)
}

func Test_raw_layout_rejects_strings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.bin")

	serial, err := util.NewFileSerialize(path)
	require.NoError(t, err)
	require.NoError(t, NewRawColumn(common.Int32Type(), []int64{1, 2}).Save(serial))
	require.NoError(t, serial.Close())

	deserial, err := util.NewFileDeserialize(path)
	require.NoError(t, err)
	defer deserial.Close()

	_, err = LoadColumnData(deserial, common.StringType())
	assert.ErrorIs(t, err, common.ErrInvalid)
}
