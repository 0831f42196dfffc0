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
	"strconv"

	"github.com/tidwall/btree"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/storage"
	"github.com/pykello/pgaccel/pkg/util"
)

// groupKey is the typed sort key of one group. String group columns use
// str, every numeric group column uses num; comparison picks the side
// from the group column's type so ordering is by value, not by label.
type groupKey struct {
	num int64
	str string
}

// ColumnGroups carries the per-row group IDs of one row group. Group IDs
// are the group-by column's dictionary indices widened to 16 bits; index
// count is a sentinel bucket for rows eliminated by the selection bitmap.
type ColumnGroups struct {
	keys   []groupKey
	labels []string
	groups []uint16
	count  int
}

// AggState is one aggregator's per-group accumulator.
type AggState interface{}

// Aggregator computes per-partition states indexed by group ID, merges
// them pairwise (Combine is commutative and associative), and renders the
// final value as text.
type Aggregator interface {
	LocalAggregate(rg *storage.RowGroup, groups *ColumnGroups, bitmap *util.Bitmap) ([]AggState, error)
	Combine(left, right AggState)
	Finalize(state AggState) string
}

type countState struct {
	value int32
}

type countAgg struct{}

func (agg *countAgg) LocalAggregate(rg *storage.RowGroup, groups *ColumnGroups,
	bitmap *util.Bitmap) ([]AggState, error) {

	counts := make([]int32, groups.count+1)
	if bitmap == nil {
		for i := 0; i < rg.Size; i++ {
			counts[groups.groups[i]]++
		}
	} else {
		for i := 0; i < rg.Size; i++ {
			if bitmap.RowIsSet(i) {
				counts[groups.groups[i]]++
			}
		}
	}

	result := make([]AggState, groups.count)
	for i := 0; i < groups.count; i++ {
		result[i] = &countState{value: counts[i]}
	}
	return result, nil
}

func (agg *countAgg) Combine(left, right AggState) {
	left.(*countState).value += right.(*countState).value
}

func (agg *countAgg) Finalize(state AggState) string {
	return strconv.FormatInt(int64(state.(*countState).value), 10)
}

type sumState struct {
	value int64
	typ   common.AccelType
}

type sumAgg struct {
	columnIdx int
	typ       common.AccelType
}

// Sum accumulates into 64-bit integers regardless of the column's packed
// width. Decimal sums can overflow silently; the accumulator is not
// checked.
func (agg *sumAgg) LocalAggregate(rg *storage.RowGroup, groups *ColumnGroups,
	bitmap *util.Bitmap) ([]AggState, error) {

	col, ok := rg.Columns[agg.columnIdx].(*storage.RawColumn)
	if !ok {
		return nil, common.Invalidf("sum over dictionary-encoded columns is not supported")
	}

	sums := make([]int64, groups.count+1)
	switch col.BytesPerValue() {
	case 1:
		sumTyped(util.ToSlice[int8](col.Values(), 1), rg.Size, groups.groups, bitmap, sums)
	case 2:
		sumTyped(util.ToSlice[int16](col.Values(), 2), rg.Size, groups.groups, bitmap, sums)
	case 4:
		sumTyped(util.ToSlice[int32](col.Values(), 4), rg.Size, groups.groups, bitmap, sums)
	case 8:
		sumTyped(util.ToSlice[int64](col.Values(), 8), rg.Size, groups.groups, bitmap, sums)
	}

	result := make([]AggState, groups.count)
	for i := 0; i < groups.count; i++ {
		result[i] = &sumState{value: sums[i], typ: agg.typ}
	}
	return result, nil
}

func sumTyped[T int8 | int16 | int32 | int64](values []T, size int,
	groups []uint16, bitmap *util.Bitmap, sums []int64) {

	if bitmap == nil {
		for i := 0; i < size; i++ {
			sums[groups[i]] += int64(values[i])
		}
	} else {
		for i := 0; i < size; i++ {
			if bitmap.RowIsSet(i) {
				sums[groups[i]] += int64(values[i])
			}
		}
	}
}

func (agg *sumAgg) Combine(left, right AggState) {
	left.(*sumState).value += right.(*sumState).value
}

func (agg *sumAgg) Finalize(state AggState) string {
	sum := state.(*sumState)
	return sum.typ.FormatValue(sum.value)
}

// groupEntry is one group's row in a local aggregate state: its typed
// key, its label column values, and one state per aggregator.
type groupEntry struct {
	key    groupKey
	labels []string
	states []AggState
}

// LocalAggResult maps group keys to aggregator states, ordered by the
// group column's typed order.
type LocalAggResult struct {
	groups *btree.BTreeG[*groupEntry]
}

func newLocalAggResult(less func(a, b *groupEntry) bool) *LocalAggResult {
	return &LocalAggResult{groups: btree.NewBTreeG[*groupEntry](less)}
}

// aggregateExec holds the lowered aggregation: the aggregator list in
// clause order minus projections, the group column's position in the
// child schema, and the output projection.
type aggregateExec struct {
	aggregators []Aggregator
	groupColPos int
	stringKey   bool
	hasGroups   bool
	projection  []int
	fieldNames  []string
	branchElim  bool
	wide        bool
}

func newAggregateExec(aggClauses []AggregateClause, groupBy []ColumnRef,
	resolve func(ColumnRef) (storage.ColumnDesc, int, error),
	branchElim bool, wide bool) (*aggregateExec, error) {

	if len(groupBy) > 1 {
		return nil, common.Invalidf("grouping by %d columns is not supported", len(groupBy))
	}

	exec := &aggregateExec{
		branchElim: branchElim,
		wide:       wide,
	}

	if len(groupBy) == 1 {
		desc, pos, err := resolve(groupBy[0])
		if err != nil {
			return nil, err
		}
		if desc.Layout != storage.DictLayout {
			return nil, common.Invalidf("group by column %s is not dictionary encoded", desc.Name)
		}
		exec.hasGroups = true
		exec.groupColPos = pos
		exec.stringKey = desc.Type.Num == common.TypeString
	}

	for _, clause := range aggClauses {
		switch clause.Kind {
		case AggCount:
			exec.aggregators = append(exec.aggregators, &countAgg{})
			exec.projection = append(exec.projection, len(groupBy)+len(exec.aggregators)-1)

		case AggSum:
			if clause.ColumnRef == nil {
				return nil, common.Invalidf("sum requires a column argument")
			}
			desc, pos, err := resolve(*clause.ColumnRef)
			if err != nil {
				return nil, err
			}
			if desc.Layout != storage.RawLayout {
				return nil, common.Invalidf("sum over dictionary-encoded column %s is not supported", desc.Name)
			}
			exec.aggregators = append(exec.aggregators, &sumAgg{columnIdx: pos, typ: desc.Type})
			exec.projection = append(exec.projection, len(groupBy)+len(exec.aggregators)-1)

		case AggProject:
			if clause.ColumnRef == nil {
				return nil, common.Invalidf("projection requires a column reference")
			}
			found := false
			for i := range groupBy {
				if groupBy[i].ColumnIdx == clause.ColumnRef.ColumnIdx &&
					groupBy[i].TableIdx == clause.ColumnRef.TableIdx {
					exec.projection = append(exec.projection, i)
					found = true
					break
				}
			}
			if !found {
				return nil, common.Invalidf("projected column %s is not in the group by list",
					clause.ColumnRef.Name)
			}

		default:
			return nil, common.Invalidf("unsupported aggregate")
		}
		exec.fieldNames = append(exec.fieldNames, clause.FieldName())
	}

	return exec, nil
}

func (exec *aggregateExec) FieldNames() []string {
	return exec.fieldNames
}

func (exec *aggregateExec) entryLess() func(a, b *groupEntry) bool {
	if exec.stringKey {
		return func(a, b *groupEntry) bool { return a.key.str < b.key.str }
	}
	return func(a, b *groupEntry) bool { return a.key.num < b.key.num }
}

// deriveGroups computes the per-row group ID array of one row group.
// When a selection bitmap is present and branch elimination is on, the
// IDs of filtered-out rows are reassigned to the sentinel bucket and the
// bitmap is dropped, so the aggregation loops run without a per-row
// bitmap test. The returned bitmap is nil if it was consumed.
func (exec *aggregateExec) deriveGroups(rg *storage.RowGroup) (*ColumnGroups, *util.Bitmap, error) {
	cg := &ColumnGroups{
		groups: make([]uint16, rg.Size),
	}

	if !exec.hasGroups {
		cg.count = 1
		cg.keys = []groupKey{{}}
		return cg, rg.SelBitmap, nil
	}

	switch col := rg.Columns[exec.groupColPos].(type) {
	case *storage.DictColumn[string]:
		col.To16(cg.groups)
		cg.count = col.DictLen()
		cg.labels = col.Labels()
		cg.keys = make([]groupKey, cg.count)
		for i, v := range col.Dict() {
			cg.keys[i] = groupKey{str: v}
		}
	case *storage.DictColumn[int32]:
		col.To16(cg.groups)
		cg.count = col.DictLen()
		cg.labels = col.Labels()
		cg.keys = make([]groupKey, cg.count)
		for i, v := range col.Dict() {
			cg.keys[i] = groupKey{num: int64(v)}
		}
	case *storage.DictColumn[int64]:
		col.To16(cg.groups)
		cg.count = col.DictLen()
		cg.labels = col.Labels()
		cg.keys = make([]groupKey, cg.count)
		for i, v := range col.Dict() {
			cg.keys[i] = groupKey{num: v}
		}
	default:
		return nil, nil, common.Invalidf("group by column is not dictionary encoded")
	}

	bitmap := rg.SelBitmap
	if bitmap != nil && exec.branchElim {
		exec.eliminateFiltered(cg, bitmap, rg.Size)
		bitmap = nil
	}
	return cg, bitmap, nil
}

func (exec *aggregateExec) eliminateFiltered(cg *ColumnGroups, bitmap *util.Bitmap, size int) {
	sentinel := uint16(cg.count)
	if exec.wide {
		// Byte-at-a-time masked broadcast: fully selected blocks are
		// skipped without touching the group array.
		for e := 0; e < size/8; e++ {
			b := bitmap.Bits[e]
			if b == 0xFF {
				continue
			}
			base := e * 8
			for j := 0; j < 8; j++ {
				if b&(1<<j) == 0 {
					cg.groups[base+j] = sentinel
				}
			}
		}
		for i := (size / 8) * 8; i < size; i++ {
			if !bitmap.RowIsSet(i) {
				cg.groups[i] = sentinel
			}
		}
		return
	}
	for i := 0; i < size; i++ {
		if !bitmap.RowIsSet(i) {
			cg.groups[i] = sentinel
		}
	}
}

// processRowGroup aggregates one partition into a keyed local state.
func (exec *aggregateExec) processRowGroup(rg *storage.RowGroup) (*LocalAggResult, error) {
	cg, bitmap, err := exec.deriveGroups(rg)
	if err != nil {
		return nil, err
	}

	local := newLocalAggResult(exec.entryLess())
	states := make([][]AggState, len(exec.aggregators))
	for i, agg := range exec.aggregators {
		if states[i], err = agg.LocalAggregate(rg, cg, bitmap); err != nil {
			return nil, err
		}
	}

	for g := 0; g < cg.count; g++ {
		entry := &groupEntry{key: cg.keys[g]}
		if cg.labels != nil {
			entry.labels = []string{cg.labels[g]}
		}
		entry.states = make([]AggState, len(exec.aggregators))
		for i := range exec.aggregators {
			entry.states[i] = states[i][g]
		}
		local.merge(entry, exec.aggregators)
	}

	return local, nil
}

func (result *LocalAggResult) merge(entry *groupEntry, aggregators []Aggregator) {
	existing, ok := result.groups.Get(entry)
	if !ok {
		result.groups.Set(entry)
		return
	}
	for i := range aggregators {
		aggregators[i].Combine(existing.states[i], entry.states[i])
	}
}

// Combine folds right into left. For each group key present in right the
// states are either moved (absent in left) or pairwise combined.
func (exec *aggregateExec) Combine(left, right *LocalAggResult) {
	right.groups.Scan(func(entry *groupEntry) bool {
		left.merge(entry, exec.aggregators)
		return true
	})
}

// Finalize renders the merged state as output rows, reordered by the
// projection derived from the clause order. Rows come out in the group
// key's typed order.
func (exec *aggregateExec) Finalize(result *LocalAggResult) [][]string {
	rows := make([][]string, 0, result.groups.Len())
	result.groups.Scan(func(entry *groupEntry) bool {
		row := make([]string, 0, len(entry.labels)+len(exec.aggregators))
		row = append(row, entry.labels...)
		for i, agg := range exec.aggregators {
			row = append(row, agg.Finalize(entry.states[i]))
		}
		projected := make([]string, len(exec.projection))
		for i, idx := range exec.projection {
			projected[i] = row[idx]
		}
		rows = append(rows, projected)
		return true
	})
	return rows
}
