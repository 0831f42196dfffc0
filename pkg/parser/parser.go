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

// Package parser lowers SELECT statements to the engine's query surface.
// It is a front-end collaborator: everything it emits is pre-validated,
// and unsupported shapes (joins, OR filters, other aggregates) are
// rejected here rather than inside the engine.
package parser

import (
	"strconv"

	pg_query "github.com/pganalyze/pg_query_go/v5"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/compute"
	"github.com/pykello/pgaccel/pkg/storage"
)

// ParseQuery parses one SELECT statement against the registry's tables.
func ParseQuery(sql string, registry *storage.Registry) (*compute.QueryDesc, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, common.Parsef("%v", err)
	}
	if len(result.Stmts) != 1 {
		return nil, common.Invalidf("expected a single statement, got %d", len(result.Stmts))
	}
	sel := result.Stmts[0].GetStmt().GetSelectStmt()
	if sel == nil {
		return nil, common.Invalidf("only SELECT statements are supported")
	}

	query := &compute.QueryDesc{}

	if err = parseFrom(sel, registry, query); err != nil {
		return nil, err
	}
	if err = parseTargets(sel, query); err != nil {
		return nil, err
	}
	if err = parseGroupBy(sel, query); err != nil {
		return nil, err
	}
	if sel.WhereClause != nil {
		if err = parseFilters(sel.WhereClause, query); err != nil {
			return nil, err
		}
	}

	return query, nil
}

func parseFrom(sel *pg_query.SelectStmt, registry *storage.Registry, query *compute.QueryDesc) error {
	if len(sel.FromClause) != 1 {
		return common.Invalidf("queries must reference exactly one table")
	}
	rangeVar := sel.FromClause[0].GetRangeVar()
	if rangeVar == nil {
		return common.Invalidf("subqueries and joins are not supported")
	}
	table, err := registry.Lookup(rangeVar.Relname)
	if err != nil {
		return err
	}
	query.Tables = append(query.Tables, table)
	return nil
}

func parseTargets(sel *pg_query.SelectStmt, query *compute.QueryDesc) error {
	if len(sel.TargetList) == 0 {
		return common.Invalidf("SELECT list is empty")
	}
	for _, target := range sel.TargetList {
		res := target.GetResTarget()
		if res == nil || res.Val == nil {
			return common.Invalidf("unsupported SELECT expression")
		}

		if funcCall := res.Val.GetFuncCall(); funcCall != nil {
			clause, err := parseAggregate(funcCall, query)
			if err != nil {
				return err
			}
			query.AggregateClauses = append(query.AggregateClauses, clause)
			continue
		}

		if colRef := res.Val.GetColumnRef(); colRef != nil {
			ref, err := bindColumnRef(colRef, query)
			if err != nil {
				return err
			}
			query.AggregateClauses = append(query.AggregateClauses, compute.AggregateClause{
				Kind:      compute.AggProject,
				ColumnRef: &ref,
			})
			continue
		}

		return common.Invalidf("unsupported SELECT expression")
	}
	return nil
}

func funcName(expr *pg_query.FuncCall) string {
	for _, node := range expr.Funcname {
		sval := node.GetString_().GetSval()
		if sval == "pg_catalog" {
			continue
		}
		return sval
	}
	return ""
}

func parseAggregate(funcCall *pg_query.FuncCall, query *compute.QueryDesc) (compute.AggregateClause, error) {
	switch name := funcName(funcCall); name {
	case "count":
		if !funcCall.AggStar {
			return compute.AggregateClause{}, common.Invalidf("only count(*) is supported")
		}
		return compute.AggregateClause{Kind: compute.AggCount}, nil

	case "sum":
		if len(funcCall.Args) != 1 {
			return compute.AggregateClause{}, common.Invalidf("sum takes exactly one column")
		}
		colRef := funcCall.Args[0].GetColumnRef()
		if colRef == nil {
			return compute.AggregateClause{}, common.Invalidf("sum over expressions is not supported")
		}
		ref, err := bindColumnRef(colRef, query)
		if err != nil {
			return compute.AggregateClause{}, err
		}
		return compute.AggregateClause{Kind: compute.AggSum, ColumnRef: &ref}, nil

	default:
		return compute.AggregateClause{}, common.Invalidf("unsupported aggregate: %s", name)
	}
}

func parseGroupBy(sel *pg_query.SelectStmt, query *compute.QueryDesc) error {
	for _, node := range sel.GroupClause {
		colRef := node.GetColumnRef()
		if colRef == nil {
			return common.Invalidf("GROUP BY supports plain column references only")
		}
		ref, err := bindColumnRef(colRef, query)
		if err != nil {
			return err
		}
		query.GroupBy = append(query.GroupBy, ref)
	}
	return nil
}

// parseFilters flattens a conjunctive WHERE tree into filter clauses.
// Disjunctions are rejected; the engine has no OR composition.
func parseFilters(node *pg_query.Node, query *compute.QueryDesc) error {
	if boolExpr := node.GetBoolExpr(); boolExpr != nil {
		switch boolExpr.Boolop {
		case pg_query.BoolExprType_AND_EXPR:
			for _, arg := range boolExpr.Args {
				if err := parseFilters(arg, query); err != nil {
					return err
				}
			}
			return nil
		case pg_query.BoolExprType_OR_EXPR:
			return common.Invalidf("OR filters are not supported")
		default:
			return common.Invalidf("unsupported boolean operator in WHERE")
		}
	}

	if aExpr := node.GetAExpr(); aExpr != nil {
		return parseFilterAtom(aExpr, query)
	}

	return common.Invalidf("unsupported WHERE expression")
}

func parseFilterAtom(expr *pg_query.A_Expr, query *compute.QueryDesc) error {
	colRef := expr.Lexpr.GetColumnRef()
	if colRef == nil {
		return common.Invalidf("filters must compare a column to a literal")
	}
	ref, err := bindColumnRef(colRef, query)
	if err != nil {
		return err
	}

	switch expr.Kind {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		opName := expr.Name[0].GetString_().GetSval()
		op, err := compareOp(opName)
		if err != nil {
			return err
		}
		value, err := constValue(expr.Rexpr, ref.Type)
		if err != nil {
			return err
		}
		query.FilterClauses = append(query.FilterClauses, compute.FilterClause{
			Op:        op,
			ColumnRef: ref,
			Value:     value,
		})
		return nil

	case pg_query.A_Expr_Kind_AEXPR_BETWEEN:
		// BETWEEN lowers to a >= and a <= clause; the composer fuses
		// them back into a single range pass.
		bounds := expr.Rexpr.GetList()
		if bounds == nil || len(bounds.Items) != 2 {
			return common.Invalidf("malformed BETWEEN expression")
		}
		low, err := constValue(bounds.Items[0], ref.Type)
		if err != nil {
			return err
		}
		high, err := constValue(bounds.Items[1], ref.Type)
		if err != nil {
			return err
		}
		query.FilterClauses = append(query.FilterClauses,
			compute.FilterClause{Op: compute.CmpGte, ColumnRef: ref, Value: low},
			compute.FilterClause{Op: compute.CmpLte, ColumnRef: ref, Value: high})
		return nil
	}

	return common.Invalidf("unsupported filter expression")
}

func compareOp(opName string) (compute.CompareOp, error) {
	switch opName {
	case "=":
		return compute.CmpEq, nil
	case "<>", "!=":
		return compute.CmpNe, nil
	case "<":
		return compute.CmpLt, nil
	case "<=":
		return compute.CmpLte, nil
	case ">":
		return compute.CmpGt, nil
	case ">=":
		return compute.CmpGte, nil
	}
	return compute.CmpNone, common.Invalidf("invalid operator: %s", opName)
}

// constValue extracts a literal and pre-validates it against the column
// type, so the engine never sees an unparseable value.
func constValue(node *pg_query.Node, typ common.AccelType) (string, error) {
	aConst := node.GetAConst()
	if aConst == nil {
		return "", common.Invalidf("filters must compare a column to a literal")
	}

	var text string
	switch val := aConst.GetVal().(type) {
	case *pg_query.A_Const_Sval:
		text = val.Sval.Sval
	case *pg_query.A_Const_Ival:
		text = strconv.FormatInt(int64(val.Ival.Ival), 10)
	case *pg_query.A_Const_Fval:
		text = val.Fval.Fval
	default:
		return "", common.Invalidf("unsupported literal in filter")
	}

	if typ.IsNumeric() {
		if _, err := typ.ParseValue(text); err != nil {
			return "", err
		}
	}
	return text, nil
}

func bindColumnRef(colRef *pg_query.ColumnRef, query *compute.QueryDesc) (compute.ColumnRef, error) {
	if len(colRef.Fields) == 0 {
		return compute.ColumnRef{}, common.Invalidf("empty column reference")
	}
	name := colRef.Fields[len(colRef.Fields)-1].GetString_().GetSval()
	if name == "" {
		return compute.ColumnRef{}, common.Invalidf("unsupported column reference")
	}

	for tableIdx, table := range query.Tables {
		if columnIdx, found := table.ColumnIndex(name); found {
			return compute.ColumnRef{
				TableIdx:  tableIdx,
				ColumnIdx: columnIdx,
				Type:      table.Schema()[columnIdx].Type,
				Name:      name,
			}, nil
		}
	}
	return compute.ColumnRef{}, common.Invalidf("column not found: %s", name)
}
