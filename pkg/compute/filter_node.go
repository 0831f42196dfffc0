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

package compute

import (
	"cmp"
	"slices"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/storage"
	"github.com/pykello/pgaccel/pkg/util"
)

// FilterExec evaluates a predicate over one row group in one of three
// output modes: count only, write a fresh selection bitmap, or AND into
// an existing bitmap. All three return the match count.
type FilterExec interface {
	ExecuteCount(rg *storage.RowGroup) (int, error)
	ExecuteSet(rg *storage.RowGroup, bitmap []byte) (int, error)
	ExecuteAnd(rg *storage.RowGroup, bitmap []byte) (int, error)
}

type outMode int

const (
	modeCount outMode = iota
	modeSet
	modeAnd
)

// DictIndex resolves a comparison value to a dictionary index by binary
// search. On a miss the returned "virtual" index is tie-broken by the
// operator so that index comparisons reproduce value comparisons:
// for < and >= the first entry not below value, for <= and > the last
// entry not above it, and -1 for equality operators.
func DictIndex[T cmp.Ordered](dict []T, value T, op CompareOp) int {
	idx, found := slices.BinarySearch(dict, value)
	if found {
		return idx
	}
	switch op {
	case CmpLt, CmpGte:
		return idx
	case CmpLte, CmpGt:
		return idx - 1
	}
	return -1
}

type skipAction int

const (
	cannotSkip skipAction = iota
	filterNone
	filterAll
)

// computeSkipAction decides from the column's observable range whether
// the predicate provably matches no rows or all rows. With a fused bound
// present the primary value is the opening bound of a range and the
// fused value its closing bound.
func computeSkipAction(value int64, op CompareOp, fusedVal int64, fusedOp CompareOp,
	minValue, maxValue int64) skipAction {
	if fusedOp != CmpNone {
		if value > maxValue {
			return filterNone
		}
		if value < minValue {
			if fusedVal < minValue {
				return filterNone
			}
			if fusedVal > maxValue {
				return filterAll
			}
		}
		return cannotSkip
	}

	switch op {
	case CmpEq:
		if value < minValue || value > maxValue {
			return filterNone
		}

	case CmpLt, CmpLte:
		if value < minValue {
			return filterNone
		}
		if value > maxValue {
			return filterAll
		}

	case CmpGt, CmpGte:
		if value > maxValue {
			return filterNone
		}
		if value < minValue {
			return filterAll
		}
	}

	return cannotSkip
}

func filterNoneResult(size int, mode outMode, bitmap []byte) int {
	if mode != modeCount {
		for i := 0; i < util.EntryCount(size); i++ {
			bitmap[i] = 0
		}
	}
	return 0
}

func filterAllResult(size int, mode outMode, bitmap []byte) int {
	switch mode {
	case modeCount:
		return size
	case modeSet:
		full := size / 8
		for i := 0; i < full; i++ {
			bitmap[i] = 0xFF
		}
		for i := full * 8; i < size; i++ {
			bitmap[i>>3] |= 1 << (i & 7)
		}
		return size
	case modeAnd:
		return util.CountSetBits(bitmap, size)
	}
	return 0
}

// compareFilter filters one column against a constant, optionally fused
// with a second upper bound evaluated in the same pass.
type compareFilter struct {
	columnIdx int
	typ       common.AccelType
	op        CompareOp
	fusedOp   CompareOp

	numValue int64
	numFused int64
	strValue string
	strFused string

	wide bool
}

// NewCompareFilter parses the literal(s) against the column type and
// returns a filter bound to the column's position in the row groups it
// will see.
func NewCompareFilter(desc storage.ColumnDesc, columnIdx int,
	valueStr string, op CompareOp,
	fusedValueStr string, fusedOp CompareOp,
	wide bool) (FilterExec, error) {

	filter := &compareFilter{
		columnIdx: columnIdx,
		typ:       desc.Type,
		op:        op,
		fusedOp:   fusedOp,
		wide:      wide,
	}

	var err error
	if desc.Type.Num == common.TypeString {
		filter.strValue = valueStr
		filter.strFused = fusedValueStr
	} else {
		if filter.numValue, err = desc.Type.ParseValue(valueStr); err != nil {
			return nil, err
		}
		if fusedOp != CmpNone {
			if filter.numFused, err = desc.Type.ParseValue(fusedValueStr); err != nil {
				return nil, err
			}
		}
	}

	return filter, nil
}

func (filter *compareFilter) ExecuteCount(rg *storage.RowGroup) (int, error) {
	return filter.run(rg.Columns[filter.columnIdx], modeCount, nil)
}

func (filter *compareFilter) ExecuteSet(rg *storage.RowGroup, bitmap []byte) (int, error) {
	return filter.run(rg.Columns[filter.columnIdx], modeSet, bitmap)
}

func (filter *compareFilter) ExecuteAnd(rg *storage.RowGroup, bitmap []byte) (int, error) {
	return filter.run(rg.Columns[filter.columnIdx], modeAnd, bitmap)
}

func (filter *compareFilter) run(data storage.ColumnData, mode outMode, bitmap []byte) (int, error) {
	switch col := data.(type) {
	case *storage.RawColumn:
		return filter.runRaw(col, mode, bitmap)
	case *storage.DictColumn[string]:
		return runDict(filter, col, filter.strValue, filter.strFused, mode, bitmap)
	case *storage.DictColumn[int32]:
		return runDict(filter, col, int32(filter.numValue), int32(filter.numFused), mode, bitmap)
	case *storage.DictColumn[int64]:
		return runDict(filter, col, filter.numValue, filter.numFused, mode, bitmap)
	}
	return 0, common.Invalidf("filter over unsupported column data")
}

// Raw columns compare as signed integers at the column's packed width.
// The skip precomputation guarantees any value reaching the kernels fits
// that width.
func (filter *compareFilter) runRaw(col *storage.RawColumn, mode outMode, bitmap []byte) (int, error) {
	switch computeSkipAction(filter.numValue, filter.op, filter.numFused, filter.fusedOp,
		col.Min(), col.Max()) {
	case filterNone:
		return filterNoneResult(col.Len(), mode, bitmap), nil
	case filterAll:
		return filterAllResult(col.Len(), mode, bitmap), nil
	}

	switch col.BytesPerValue() {
	case 1:
		return runKernel(filter, util.ToSlice[int8](col.Values(), 1),
			int8(filter.numValue), int8(filter.numFused), mode, bitmap)
	case 2:
		return runKernel(filter, util.ToSlice[int16](col.Values(), 2),
			int16(filter.numValue), int16(filter.numFused), mode, bitmap)
	case 4:
		return runKernel(filter, util.ToSlice[int32](col.Values(), 4),
			int32(filter.numValue), int32(filter.numFused), mode, bitmap)
	case 8:
		return runKernel(filter, util.ToSlice[int64](col.Values(), 8),
			filter.numValue, filter.numFused, mode, bitmap)
	}
	return 0, common.Invalidf("unsupported value width: %d", col.BytesPerValue())
}

// Dict columns reduce to an unsigned comparison over the index buffer
// after both bounds are resolved to (possibly virtual) dictionary
// indices.
func runDict[T storage.DictValue](filter *compareFilter, col *storage.DictColumn[T],
	value, fusedVal T, mode outMode, bitmap []byte) (int, error) {

	dictIdx := DictIndex(col.Dict(), value, filter.op)
	dictIdx2 := -1
	if filter.fusedOp != CmpNone {
		dictIdx2 = DictIndex(col.Dict(), fusedVal, filter.fusedOp)
	}

	switch computeSkipAction(int64(dictIdx), filter.op, int64(dictIdx2), filter.fusedOp,
		0, int64(col.DictLen()-1)) {
	case filterNone:
		return filterNoneResult(col.Len(), mode, bitmap), nil
	case filterAll:
		return filterAllResult(col.Len(), mode, bitmap), nil
	}

	switch col.BytesPerValue() {
	case 1:
		return runKernel(filter, col.Values()[:col.Len()],
			uint8(dictIdx), uint8(dictIdx2), mode, bitmap)
	case 2:
		return runKernel(filter, util.ToSlice[uint16](col.Values(), 2),
			uint16(dictIdx), uint16(dictIdx2), mode, bitmap)
	}
	return 0, common.Invalidf("unsupported dict index width: %d", col.BytesPerValue())
}

func runKernel[T lane](filter *compareFilter, values []T, value, fusedVal T,
	mode outMode, bitmap []byte) (int, error) {

	kernel, err := kernelFor[T](filter.op, filter.fusedOp, filter.wide)
	if err != nil {
		return 0, err
	}
	switch mode {
	case modeCount:
		return kernel.count(values, value, fusedVal), nil
	case modeSet:
		return kernel.set(values, value, fusedVal, bitmap), nil
	case modeAnd:
		return kernel.and(values, value, fusedVal, bitmap), nil
	}
	return 0, common.Invalidf("unknown filter output mode")
}
