package compute

import (
	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/storage"
	"github.com/pykello/pgaccel/pkg/util"
)

// SumColumnData adds up every value of one raw column data, sign-extended
// to 64 bits.
func SumColumnData(data storage.ColumnData) (int64, error) {
	col, ok := data.(*storage.RawColumn)
	if !ok {
		return 0, common.Invalidf("sum over dictionary-encoded columns is not supported")
	}

	var result int64
	switch col.BytesPerValue() {
	case 1:
		for _, v := range util.ToSlice[int8](col.Values(), 1)[:col.Len()] {
			result += int64(v)
		}
	case 2:
		for _, v := range util.ToSlice[int16](col.Values(), 2)[:col.Len()] {
			result += int64(v)
		}
	case 4:
		for _, v := range util.ToSlice[int32](col.Values(), 4)[:col.Len()] {
			result += int64(v)
		}
	case 8:
		for _, v := range util.ToSlice[int64](col.Values(), 8)[:col.Len()] {
			result += v
		}
	}
	return result, nil
}

// SumAll folds SumColumnData over all row groups of one table column.
func SumAll(table *storage.Table, columnIdx int) (int64, error) {
	var result int64
	for g := 0; g < table.RowGroupCount(); g++ {
		sum, err := SumColumnData(table.RowGroup(g).Columns[columnIdx])
		if err != nil {
			return 0, err
		}
		result += sum
	}
	return result, nil
}
