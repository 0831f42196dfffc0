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
	"fmt"
	"strings"

	"github.com/xlab/treeprint"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/storage"
	"github.com/pykello/pgaccel/pkg/util"
)

type Node interface {
	Schema() []storage.ColumnDesc
}

// PartitionedNode produces one borrowed row group per partition. A
// partition is a row group of the underlying table; partitions can be
// executed concurrently.
type PartitionedNode interface {
	Node
	Execute(partition int) (*storage.RowGroup, error)
	PartitionCount() int
}

// ScanNode exposes a projection of a table's columns. Execution borrows
// the selected column datas of the partition's row group; nothing is
// copied.
type ScanNode struct {
	table      *storage.Table
	columnIdxs []int
	schema     []storage.ColumnDesc
}

func NewScanNode(table *storage.Table, columnNames []string) (*ScanNode, error) {
	node := &ScanNode{table: table}
	for _, name := range columnNames {
		idx, found := table.ColumnIndex(name)
		if !found {
			return nil, common.Invalidf("column not found: %s", name)
		}
		node.columnIdxs = append(node.columnIdxs, idx)
		node.schema = append(node.schema, table.Schema()[idx])
	}
	return node, nil
}

func (node *ScanNode) Schema() []storage.ColumnDesc {
	return node.schema
}

func (node *ScanNode) PartitionCount() int {
	return node.table.RowGroupCount()
}

func (node *ScanNode) Execute(partition int) (*storage.RowGroup, error) {
	tableGroup := node.table.RowGroup(partition)
	result := &storage.RowGroup{Size: tableGroup.Size}
	for _, columnIdx := range node.columnIdxs {
		result.Columns = append(result.Columns, tableGroup.Columns[columnIdx])
	}
	return result, nil
}

// FilterNode runs its composite filter over the child's output and
// attaches the resulting selection bitmap to the emitted row group. The
// bitmap is owned by the partition result. An empty filter attaches
// nothing.
type FilterNode struct {
	child PartitionedNode
	exec  FilterExec
}

func NewFilterNode(child PartitionedNode, clauses []FilterClause,
	resolve func(ColumnRef) (storage.ColumnDesc, int, error),
	wide bool) (*FilterNode, error) {

	exec, err := NewFilterExec(clauses, resolve, wide)
	if err != nil {
		return nil, err
	}
	return &FilterNode{child: child, exec: exec}, nil
}

func (node *FilterNode) Schema() []storage.ColumnDesc {
	return node.child.Schema()
}

func (node *FilterNode) PartitionCount() int {
	return node.child.PartitionCount()
}

func (node *FilterNode) Execute(partition int) (*storage.RowGroup, error) {
	result, err := node.child.Execute(partition)
	if err != nil {
		return nil, err
	}
	if node.exec != nil {
		bitmap := &util.Bitmap{}
		bitmap.Init(result.Size)
		if _, err = node.exec.ExecuteSet(result, bitmap.Data()); err != nil {
			return nil, err
		}
		result.SelBitmap = bitmap
	}
	return result, nil
}

// AggregateNode terminates a plan. It does not produce row groups;
// instead it exposes a per-partition local task and a global reduction.
type AggregateNode struct {
	child  PartitionedNode
	exec   *aggregateExec
	schema []storage.ColumnDesc
}

func NewAggregateNode(child PartitionedNode, aggClauses []AggregateClause,
	groupBy []ColumnRef,
	resolve func(ColumnRef) (storage.ColumnDesc, int, error),
	branchElim bool, wide bool) (*AggregateNode, error) {

	exec, err := newAggregateExec(aggClauses, groupBy, resolve, branchElim, wide)
	if err != nil {
		return nil, err
	}

	node := &AggregateNode{child: child, exec: exec}
	for _, fieldName := range exec.FieldNames() {
		node.schema = append(node.schema, storage.ColumnDesc{
			Name:   fieldName,
			Type:   common.StringType(),
			Layout: storage.RawLayout,
		})
	}
	return node, nil
}

func (node *AggregateNode) Schema() []storage.ColumnDesc {
	return node.schema
}

func (node *AggregateNode) PartitionCount() int {
	return node.child.PartitionCount()
}

func (node *AggregateNode) FieldNames() []string {
	return node.exec.FieldNames()
}

// LocalTask aggregates every partition accepted by selectPartition into
// one local state. Each worker runs one LocalTask over its partition set.
func (node *AggregateNode) LocalTask(selectPartition func(int) bool) (*LocalAggResult, error) {
	result := newLocalAggResult(node.exec.entryLess())
	for i := 0; i < node.PartitionCount(); i++ {
		if !selectPartition(i) {
			continue
		}
		rg, err := node.child.Execute(i)
		if err != nil {
			return nil, err
		}
		local, err := node.exec.processRowGroup(rg)
		if err != nil {
			return nil, err
		}
		node.exec.Combine(result, local)
	}
	return result, nil
}

// GlobalTask merges the workers' local states and renders the rows.
func (node *AggregateNode) GlobalTask(locals []*LocalAggResult) [][]string {
	merged := newLocalAggResult(node.exec.entryLess())
	for _, local := range locals {
		node.exec.Combine(merged, local)
	}
	return node.exec.Finalize(merged)
}

// Explain renders the plan tree.
func Explain(node Node) string {
	tree := treeprint.New()
	explainNode(node, tree)
	return tree.String()
}

func explainNode(node Node, tree treeprint.Tree) {
	switch n := node.(type) {
	case *AggregateNode:
		branch := tree.AddBranch(fmt.Sprintf("Aggregate(%s)", strings.Join(n.FieldNames(), ", ")))
		explainNode(n.child, branch)
	case *FilterNode:
		branch := tree.AddBranch("Filter")
		explainNode(n.child, branch)
	case *ScanNode:
		names := make([]string, 0, len(n.schema))
		for _, desc := range n.schema {
			names = append(names, desc.Name)
		}
		tree.AddNode(fmt.Sprintf("Scan(%s: %s)", n.table.Name(), strings.Join(names, ", ")))
	}
}
