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
	"math"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/util"
)

// RawColumn stores values directly in the narrowest signed integer width
// that contains the observed [minValue, maxValue] range. The values buffer
// is 64-byte aligned so vector kernels can load full registers from it.
type RawColumn struct {
	typ           common.AccelType
	size          int
	bytesPerValue int
	minValue      int64
	maxValue      int64
	values        []byte
}

// NewRawColumn builds a raw column from at most RowGroupSize values.
func NewRawColumn(typ common.AccelType, vals []int64) *RawColumn {
	util.AssertFunc(len(vals) > 0 && len(vals) <= RowGroupSize)

	minValue, maxValue := vals[0], vals[0]
	for _, v := range vals {
		if v < minValue {
			minValue = v
		}
		if v > maxValue {
			maxValue = v
		}
	}

	col := &RawColumn{
		typ:      typ,
		size:     len(vals),
		minValue: minValue,
		maxValue: maxValue,
	}

	switch {
	case minValue >= math.MinInt8 && maxValue <= math.MaxInt8:
		col.bytesPerValue = 1
	case minValue >= math.MinInt16 && maxValue <= math.MaxInt16:
		col.bytesPerValue = 2
	case minValue >= math.MinInt32 && maxValue <= math.MaxInt32:
		col.bytesPerValue = 4
	default:
		col.bytesPerValue = 8
	}

	col.values = util.AlignedAlloc(col.bytesPerValue * col.size)
	switch col.bytesPerValue {
	case 1:
		cells := util.ToSlice[int8](col.values, 1)
		for i, v := range vals {
			cells[i] = int8(v)
		}
	case 2:
		cells := util.ToSlice[int16](col.values, 2)
		for i, v := range vals {
			cells[i] = int16(v)
		}
	case 4:
		cells := util.ToSlice[int32](col.values, 4)
		for i, v := range vals {
			cells[i] = int32(v)
		}
	case 8:
		cells := util.ToSlice[int64](col.values, 8)
		for i, v := range vals {
			cells[i] = v
		}
	}

	return col
}

func (col *RawColumn) Layout() ColumnLayout {
	return RawLayout
}

func (col *RawColumn) Len() int {
	return col.size
}

func (col *RawColumn) Type() common.AccelType {
	return col.typ
}

func (col *RawColumn) BytesPerValue() int {
	return col.bytesPerValue
}

func (col *RawColumn) Min() int64 {
	return col.minValue
}

func (col *RawColumn) Max() int64 {
	return col.maxValue
}

func (col *RawColumn) Values() []byte {
	return col.values
}

// Value reads back row i sign-extended to int64.
func (col *RawColumn) Value(i int) int64 {
	switch col.bytesPerValue {
	case 1:
		return int64(util.ToSlice[int8](col.values, 1)[i])
	case 2:
		return int64(util.ToSlice[int16](col.values, 2)[i])
	case 4:
		return int64(util.ToSlice[int32](col.values, 4)[i])
	default:
		return util.ToSlice[int64](col.values, 8)[i]
	}
}

func (col *RawColumn) Save(serial util.Serialize) error {
	if err := util.Write[uint8](uint8(RawLayout), serial); err != nil {
		return err
	}
	if err := util.Write[int32](int32(col.size), serial); err != nil {
		return err
	}
	if err := util.Write[int32](int32(col.bytesPerValue), serial); err != nil {
		return err
	}
	if err := writeBound(serial, col.typ, col.minValue); err != nil {
		return err
	}
	if err := writeBound(serial, col.typ, col.maxValue); err != nil {
		return err
	}
	return serial.WriteData(col.values, col.size*col.bytesPerValue)
}

// min and max are stored at the width of the type's integer
// representation, not the packed value width.
func writeBound(serial util.Serialize, typ common.AccelType, v int64) error {
	if typ.StorageWidth() == 4 {
		return util.Write[int32](int32(v), serial)
	}
	return util.Write[int64](v, serial)
}

func readBound(deserial util.Deserialize, typ common.AccelType) (int64, error) {
	if typ.StorageWidth() == 4 {
		var v int32
		err := util.Read[int32](&v, deserial)
		return int64(v), err
	}
	var v int64
	err := util.Read[int64](&v, deserial)
	return v, err
}

func loadRawColumn(deserial util.Deserialize, typ common.AccelType) (*RawColumn, error) {
	col := &RawColumn{typ: typ}

	var size, bytesPerValue int32
	if err := util.Read[int32](&size, deserial); err != nil {
		return nil, common.Iof("reading RawColumn header: %v", err)
	}
	if err := util.Read[int32](&bytesPerValue, deserial); err != nil {
		return nil, common.Iof("reading RawColumn header: %v", err)
	}
	col.size = int(size)
	col.bytesPerValue = int(bytesPerValue)

	var err error
	if col.minValue, err = readBound(deserial, typ); err != nil {
		return nil, common.Iof("reading RawColumn bounds: %v", err)
	}
	if col.maxValue, err = readBound(deserial, typ); err != nil {
		return nil, common.Iof("reading RawColumn bounds: %v", err)
	}

	col.values = util.AlignedAlloc(col.size * col.bytesPerValue)
	if err = deserial.ReadData(col.values, col.size*col.bytesPerValue); err != nil {
		return nil, common.Iof("reading RawColumn values: %v", err)
	}

	return col, nil
}
