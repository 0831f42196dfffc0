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
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/storage"
	"github.com/pykello/pgaccel/pkg/util"
)

const DefaultWorkers = 8

type ExecutionParams struct {
	UseSimd    bool
	Parallel   bool
	Workers    int
	BranchElim bool
}

func ParamsFromConfig(cfg *util.Config) ExecutionParams {
	return ExecutionParams{
		UseSimd:    cfg.Engine.UseSimd,
		Parallel:   cfg.Engine.Parallel,
		Workers:    cfg.Engine.Workers,
		BranchElim: cfg.Engine.BranchElim,
	}
}

// ExecuteQuery runs a lowered query. Filters and group-by lower to a
// Scan -> Filter -> Aggregate plan whose leaf partitions fan out across
// a fixed worker pool; the trivial whole-table aggregates take a direct
// fold instead. No partial results are returned on error.
func ExecuteQuery(query *QueryDesc, params ExecutionParams) (*QueryOutput, error) {
	if len(query.Tables) != 1 {
		return nil, common.Invalidf("%d-table queries are not supported", len(query.Tables))
	}
	if len(query.AggregateClauses) == 0 {
		return nil, common.Invalidf("query has no aggregates")
	}

	if len(query.FilterClauses) == 0 && len(query.GroupBy) == 0 {
		return executeSimple(query)
	}
	return executePlan(query, params)
}

// executeSimple answers unfiltered, ungrouped aggregates with a one-level
// fold over the row groups.
func executeSimple(query *QueryDesc) (*QueryOutput, error) {
	table := query.Tables[0]
	output := &QueryOutput{}
	row := make([]string, 0, len(query.AggregateClauses))

	for _, clause := range query.AggregateClauses {
		switch clause.Kind {
		case AggCount:
			row = append(row, strconv.FormatUint(table.RowCount(), 10))

		case AggSum:
			if clause.ColumnRef == nil {
				return nil, common.Invalidf("sum requires a column argument")
			}
			sum, err := SumAll(table, clause.ColumnRef.ColumnIdx)
			if err != nil {
				return nil, err
			}
			row = append(row, clause.ColumnRef.Type.FormatValue(sum))

		default:
			return nil, common.Invalidf("projection without group by")
		}
		output.FieldNames = append(output.FieldNames, clause.FieldName())
	}

	output.Values = append(output.Values, row)
	return output, nil
}

// BuildPlan lowers a query to its Scan -> Filter -> Aggregate tree. The
// scan projects exactly the referenced columns, so column references are
// remapped from table positions to scan positions.
func BuildPlan(query *QueryDesc, params ExecutionParams) (*AggregateNode, error) {
	table := query.Tables[0]

	referenced := make(map[int]struct{})
	for _, clause := range query.FilterClauses {
		referenced[clause.ColumnRef.ColumnIdx] = struct{}{}
	}
	for _, ref := range query.GroupBy {
		referenced[ref.ColumnIdx] = struct{}{}
	}
	for _, clause := range query.AggregateClauses {
		if clause.ColumnRef != nil {
			referenced[clause.ColumnRef.ColumnIdx] = struct{}{}
		}
	}

	columnIdxs := make([]int, 0, len(referenced))
	for idx := range referenced {
		columnIdxs = append(columnIdxs, idx)
	}
	sort.Ints(columnIdxs)

	scanPos := make(map[int]int, len(columnIdxs))
	columnNames := make([]string, 0, len(columnIdxs))
	for pos, idx := range columnIdxs {
		if idx < 0 || idx >= table.ColumnCount() {
			return nil, common.Invalidf("column index out of range: %d", idx)
		}
		scanPos[idx] = pos
		columnNames = append(columnNames, table.Schema()[idx].Name)
	}

	resolve := func(ref ColumnRef) (storage.ColumnDesc, int, error) {
		pos, ok := scanPos[ref.ColumnIdx]
		if !ok {
			return storage.ColumnDesc{}, 0, common.Invalidf("unresolved column reference: %s", ref)
		}
		return table.Schema()[ref.ColumnIdx], pos, nil
	}

	scan, err := NewScanNode(table, columnNames)
	if err != nil {
		return nil, err
	}
	filter, err := NewFilterNode(scan, query.FilterClauses, resolve, params.UseSimd)
	if err != nil {
		return nil, err
	}
	return NewAggregateNode(filter, query.AggregateClauses, query.GroupBy, resolve,
		params.BranchElim, params.UseSimd)
}

func executePlan(query *QueryDesc, params ExecutionParams) (*QueryOutput, error) {
	agg, err := BuildPlan(query, params)
	if err != nil {
		return nil, err
	}

	workers := params.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if !params.Parallel {
		workers = 1
	}

	// Partitions are assigned round-robin; every aggregator merge is
	// commutative and associative, so the assignment does not affect
	// the result.
	locals := make([]*LocalAggResult, workers)
	wg := errgroup.Group{}
	for w := 0; w < workers; w++ {
		wg.Go(func() (retErr error) {
			defer func() {
				if re := recover(); re != nil {
					retErr = util.ConvertPanicError(re)
				}
			}()
			locals[w], retErr = agg.LocalTask(func(partition int) bool {
				return partition%workers == w
			})
			return
		})
	}
	if err = wg.Wait(); err != nil {
		return nil, err
	}

	return &QueryOutput{
		FieldNames: agg.FieldNames(),
		Values:     agg.GlobalTask(locals),
	}, nil
}
