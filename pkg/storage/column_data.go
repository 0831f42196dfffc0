// Copyright 2024 pykello
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/util"
)

// RowGroupSize is the maximum number of rows per row group. The dict index
// width table (< 256 distinct values: 1 byte, otherwise 2) depends on it.
const RowGroupSize = 1 << 16

// ColumnLayout tags are persisted as the first byte of every serialized
// column data.
type ColumnLayout uint8

const (
	DictLayout ColumnLayout = 0
	RawLayout  ColumnLayout = 1
)

func (layout ColumnLayout) String() string {
	switch layout {
	case DictLayout:
		return "DICT"
	case RawLayout:
		return "RAW"
	}
	return "UNKNOWN"
}

// DefaultLayout is the encoding policy: String and Date columns are
// dictionary encoded so they can serve as group-by keys, everything else
// stores raw values at minimal width.
func DefaultLayout(typ common.AccelType) ColumnLayout {
	switch typ.Num {
	case common.TypeString, common.TypeDate:
		return DictLayout
	}
	return RawLayout
}

// ColumnData holds the values of one column within one row group.
// Implementations are immutable once built.
type ColumnData interface {
	Layout() ColumnLayout
	Len() int
	Save(serial util.Serialize) error
}

// LoadColumnData reads one serialized column data of the given type.
func LoadColumnData(deserial util.Deserialize, typ common.AccelType) (ColumnData, error) {
	var tag uint8
	if err := util.Read[uint8](&tag, deserial); err != nil {
		return nil, common.Iof("reading column data tag: %v", err)
	}

	switch ColumnLayout(tag) {
	case DictLayout:
		switch typ.Num {
		case common.TypeString:
			return loadDictColumn[string](deserial, typ)
		case common.TypeDate, common.TypeInt32:
			return loadDictColumn[int32](deserial, typ)
		case common.TypeInt64, common.TypeDecimal:
			return loadDictColumn[int64](deserial, typ)
		}
		return nil, common.Invalidf("invalid type for DictColumn: %s", typ)

	case RawLayout:
		if !typ.IsNumeric() {
			return nil, common.Invalidf("invalid type for RawColumn: %s", typ)
		}
		return loadRawColumn(deserial, typ)
	}

	return nil, common.Invalidf("unknown column data tag: %d", tag)
}
