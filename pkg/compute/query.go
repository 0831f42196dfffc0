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

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/storage"
)

// ColumnRef points at a column of one of the query's tables.
type ColumnRef struct {
	TableIdx  int
	ColumnIdx int
	Type      common.AccelType
	Name      string
}

func (ref ColumnRef) String() string {
	return fmt.Sprintf("(table=%d,col=%d,type=%s)", ref.TableIdx, ref.ColumnIdx, ref.Type)
}

// FilterClause is one conjunct of the WHERE clause. Value is the literal
// text, already validated to parse under the column's type.
type FilterClause struct {
	Op        CompareOp
	ColumnRef ColumnRef
	Value     string
}

func (clause FilterClause) String() string {
	return fmt.Sprintf("(op=%s,columnRef=%s,value=%s)",
		clause.Op, clause.ColumnRef, clause.Value)
}

type AggregateKind int

const (
	AggCount AggregateKind = iota
	AggSum
	AggProject
)

// AggregateClause is one output expression: count(*), sum(col), or a
// grouping column projected into the result.
type AggregateClause struct {
	Kind      AggregateKind
	ColumnRef *ColumnRef
}

func (clause AggregateClause) FieldName() string {
	switch clause.Kind {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggProject:
		return strings.ToLower(clause.ColumnRef.Name)
	}
	return "?"
}

// QueryDesc is the query surface produced by the front end. Filter
// clauses are implicitly ANDed; OR composition is rejected before it
// reaches the engine.
type QueryDesc struct {
	Tables           []*storage.Table
	FilterClauses    []FilterClause
	GroupBy          []ColumnRef
	AggregateClauses []AggregateClause
}

// QueryOutput holds formatted result rows; every value is its type's
// text rendering.
type QueryOutput struct {
	FieldNames []string
	Values     [][]string
}
