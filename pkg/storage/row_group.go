package storage

import (
	"github.com/pykello/pgaccel/pkg/util"
)

// RowGroup bundles one column data per schema column plus the common row
// count. SelBitmap is attached by a filter node during execution; nil
// means every row is selected.
type RowGroup struct {
	Columns   []ColumnData
	Size      int
	SelBitmap *util.Bitmap
}

func (rg *RowGroup) Column(idx int) ColumnData {
	return rg.Columns[idx]
}
