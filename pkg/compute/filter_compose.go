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
	"sort"

	"github.com/huandu/go-clone"

	"github.com/pykello/pgaccel/pkg/storage"
	"github.com/pykello/pgaccel/pkg/util"
)

// andFilter composes filters as a conjunction: the first child emits a
// fresh bitmap, each subsequent child ANDs into it.
type andFilter struct {
	children []FilterExec
}

func (filter *andFilter) ExecuteCount(rg *storage.RowGroup) (int, error) {
	bitmap := make([]byte, util.EntryCount(rg.Size))
	return filter.ExecuteSet(rg, bitmap)
}

func (filter *andFilter) ExecuteSet(rg *storage.RowGroup, bitmap []byte) (int, error) {
	result := 0
	var err error
	for i, child := range filter.children {
		if i == 0 {
			result, err = child.ExecuteSet(rg, bitmap)
		} else {
			result, err = child.ExecuteAnd(rg, bitmap)
		}
		if err != nil {
			return 0, err
		}
	}
	return result, nil
}

func (filter *andFilter) ExecuteAnd(rg *storage.RowGroup, bitmap []byte) (int, error) {
	result := 0
	var err error
	for _, child := range filter.children {
		result, err = child.ExecuteAnd(rg, bitmap)
		if err != nil {
			return 0, err
		}
	}
	return result, nil
}

// NewFilterExec lowers a conjunctive clause list to a filter tree. The
// caller's clause order is not significant: clauses are sorted by
// (column, operator) on a private copy, and a > or >= immediately
// followed by a < or <= on the same column is fused into a single
// range node evaluated in one pass.
func NewFilterExec(clauses []FilterClause,
	resolve func(ColumnRef) (storage.ColumnDesc, int, error),
	wide bool) (FilterExec, error) {

	if len(clauses) == 0 {
		return nil, nil
	}

	sorted := clone.Clone(clauses).([]FilterClause)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ColumnRef.TableIdx != b.ColumnRef.TableIdx {
			return a.ColumnRef.TableIdx < b.ColumnRef.TableIdx
		}
		if a.ColumnRef.ColumnIdx != b.ColumnRef.ColumnIdx {
			return a.ColumnRef.ColumnIdx < b.ColumnRef.ColumnIdx
		}
		return a.Op < b.Op
	})

	var children []FilterExec
	for i := 0; i < len(sorted); i++ {
		desc, columnIdx, err := resolve(sorted[i].ColumnRef)
		if err != nil {
			return nil, err
		}

		fusable := i+1 < len(sorted) &&
			sorted[i+1].ColumnRef.TableIdx == sorted[i].ColumnRef.TableIdx &&
			sorted[i+1].ColumnRef.ColumnIdx == sorted[i].ColumnRef.ColumnIdx &&
			(sorted[i].Op == CmpGt || sorted[i].Op == CmpGte) &&
			(sorted[i+1].Op == CmpLt || sorted[i+1].Op == CmpLte)

		var child FilterExec
		if fusable {
			child, err = NewCompareFilter(desc, columnIdx,
				sorted[i].Value, sorted[i].Op,
				sorted[i+1].Value, sorted[i+1].Op,
				wide)
			i++
		} else {
			child, err = NewCompareFilter(desc, columnIdx,
				sorted[i].Value, sorted[i].Op,
				"", CmpNone,
				wide)
		}
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	if len(children) == 1 {
		return children[0], nil
	}
	return &andFilter{children: children}, nil
}
