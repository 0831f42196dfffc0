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
	"slices"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/util"
)

// DictValue is the set of in-memory dictionary entry types: String columns
// keep native strings, Date and Int32 use int32, Int64 and Decimal int64.
type DictValue interface {
	~string | ~int32 | ~int64
}

// DictColumn keeps a sorted, deduplicated dictionary and per-row indices
// into it. Indices are 1 byte while the dictionary has fewer than 256
// entries, 2 bytes otherwise; the index buffer is 64-byte aligned.
type DictColumn[T DictValue] struct {
	typ    common.AccelType
	size   int
	dict   []T
	values []byte
}

// NewDictColumn builds a dict column from at most RowGroupSize values.
func NewDictColumn[T DictValue](typ common.AccelType, vals []T) *DictColumn[T] {
	util.AssertFunc(len(vals) > 0 && len(vals) <= RowGroupSize)

	distinct := make(map[T]struct{})
	for _, v := range vals {
		distinct[v] = struct{}{}
	}
	dict := make([]T, 0, len(distinct))
	for v := range distinct {
		dict = append(dict, v)
	}
	slices.Sort(dict)

	indexMap := make(map[T]int, len(dict))
	for i, v := range dict {
		indexMap[v] = i
	}

	col := &DictColumn[T]{
		typ:  typ,
		size: len(vals),
		dict: dict,
	}

	if len(dict) < 256 {
		col.values = util.AlignedAlloc(col.size)
		for i, v := range vals {
			col.values[i] = uint8(indexMap[v])
		}
	} else {
		col.values = util.AlignedAlloc(2 * col.size)
		cells := util.ToSlice[uint16](col.values, 2)
		for i, v := range vals {
			cells[i] = uint16(indexMap[v])
		}
	}

	return col
}

func (col *DictColumn[T]) Layout() ColumnLayout {
	return DictLayout
}

func (col *DictColumn[T]) Len() int {
	return col.size
}

func (col *DictColumn[T]) Type() common.AccelType {
	return col.typ
}

func (col *DictColumn[T]) DictLen() int {
	return len(col.dict)
}

func (col *DictColumn[T]) Dict() []T {
	return col.dict
}

func (col *DictColumn[T]) BytesPerValue() int {
	if len(col.dict) < 256 {
		return 1
	}
	return 2
}

func (col *DictColumn[T]) Values() []byte {
	return col.values
}

// Label formats dictionary entry idx as text.
func (col *DictColumn[T]) Label(idx int) string {
	switch v := any(col.dict[idx]).(type) {
	case string:
		return v
	case int32:
		return col.typ.FormatValue(int64(v))
	case int64:
		return col.typ.FormatValue(v)
	}
	return ""
}

func (col *DictColumn[T]) Labels() []string {
	result := make([]string, len(col.dict))
	for i := range col.dict {
		result[i] = col.Label(i)
	}
	return result
}

// To16 widens the per-row indices to 2 bytes. The aggregation engine uses
// the widened indices directly as group IDs.
func (col *DictColumn[T]) To16(out []uint16) {
	switch col.BytesPerValue() {
	case 1:
		for i := 0; i < col.size; i++ {
			out[i] = uint16(col.values[i])
		}
	case 2:
		copy(out[:col.size], util.ToSlice[uint16](col.values, 2))
	}
}

func (col *DictColumn[T]) Save(serial util.Serialize) error {
	if err := util.Write[uint8](uint8(DictLayout), serial); err != nil {
		return err
	}
	if err := util.Write[int32](int32(len(col.dict)), serial); err != nil {
		return err
	}
	for _, v := range col.dict {
		if err := writeDictValue(serial, v); err != nil {
			return err
		}
	}
	if err := util.Write[int32](int32(col.size), serial); err != nil {
		return err
	}
	return serial.WriteData(col.values, col.size*col.BytesPerValue())
}

func writeDictValue[T DictValue](serial util.Serialize, value T) error {
	switch v := any(value).(type) {
	case string:
		return util.WriteString(v, serial)
	case int32:
		return util.Write[int32](v, serial)
	case int64:
		return util.Write[int64](v, serial)
	}
	return common.Invalidf("unsupported dict value type")
}

func readDictValue[T DictValue](deserial util.Deserialize) (T, error) {
	var out T
	var err error
	switch p := any(&out).(type) {
	case *string:
		*p, err = util.ReadString(deserial)
	case *int32:
		err = util.Read[int32](p, deserial)
	case *int64:
		err = util.Read[int64](p, deserial)
	}
	return out, err
}

func loadDictColumn[T DictValue](deserial util.Deserialize, typ common.AccelType) (*DictColumn[T], error) {
	col := &DictColumn[T]{typ: typ}

	var dictLen int32
	if err := util.Read[int32](&dictLen, deserial); err != nil {
		return nil, common.Iof("reading DictColumn header: %v", err)
	}
	col.dict = make([]T, dictLen)
	for i := range col.dict {
		v, err := readDictValue[T](deserial)
		if err != nil {
			return nil, common.Iof("reading DictColumn dictionary: %v", err)
		}
		col.dict[i] = v
	}

	var size int32
	if err := util.Read[int32](&size, deserial); err != nil {
		return nil, common.Iof("reading DictColumn header: %v", err)
	}
	col.size = int(size)

	col.values = util.AlignedAlloc(col.size * col.BytesPerValue())
	if err := deserial.ReadData(col.values, col.size*col.BytesPerValue()); err != nil {
		return nil, common.Iof("reading DictColumn values: %v", err)
	}

	return col, nil
}
