package compute

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/storage"
)

const testRows = storage.RowGroupSize + 40000

var testModes = []string{"AIR", "FOB", "MAIL", "RAIL", "REG AIR", "SHIP", "TRUCK"}

// buildLineitem constructs a deterministic lineitem-shaped table spanning
// two row groups. The reference results in the tests below are computed
// with plain loops over the same generators.
func buildLineitem(t testing.TB) *storage.Table {
	orderkeys := make([]int64, testRows)
	quantities := make([]int64, testRows)
	shipmodes := make([]string, testRows)
	shipdates := make([]int32, testRows)

	for i := 0; i < testRows; i++ {
		orderkeys[i] = int64(i / 6)
		quantities[i] = int64(i%50+1) * 100
		shipmodes[i] = testModes[(i*7+i/13)%len(testModes)]
		shipdates[i] = int32(9500 + i%365)
	}

	table := storage.NewTable("lineitem")
	require.NoError(t, table.AppendColumn(
		storage.ColumnDesc{Name: "l_orderkey", Type: common.Int32Type(), Layout: storage.RawLayout},
		storage.RawChunks(common.Int32Type(), orderkeys)))
	require.NoError(t, table.AppendColumn(
		storage.ColumnDesc{Name: "l_shipmode", Type: common.StringType(), Layout: storage.DictLayout},
		storage.DictChunks(common.StringType(), shipmodes)))
	require.NoError(t, table.AppendColumn(
		storage.ColumnDesc{Name: "l_shipdate", Type: common.DateType(), Layout: storage.DictLayout},
		storage.DictChunks(common.DateType(), shipdates)))
	require.NoError(t, table.AppendColumn(
		storage.ColumnDesc{Name: "l_quantity", Type: common.DecimalType(2), Layout: storage.RawLayout},
		storage.RawChunks(common.DecimalType(2), quantities)))
	return table
}

func colRef(table *storage.Table, name string) ColumnRef {
	idx, found := table.ColumnIndex(name)
	if !found {
		panic("no column " + name)
	}
	return ColumnRef{
		ColumnIdx: idx,
		Type:      table.Schema()[idx].Type,
		Name:      name,
	}
}

// allParams covers both kernel paths, both worker counts and both
// branch-elimination settings; every query must agree across all of them.
func allParams() []ExecutionParams {
	result := make([]ExecutionParams, 0, 8)
	for _, simd := range []bool{false, true} {
		for _, workers := range []int{1, 4} {
			for _, branchElim := range []bool{false, true} {
				result = append(result, ExecutionParams{
					UseSimd:    simd,
					Parallel:   true,
					Workers:    workers,
					BranchElim: branchElim,
				})
			}
		}
	}
	return result
}

func runAll(t *testing.T, query *QueryDesc) *QueryOutput {
	var baseline *QueryOutput
	for _, params := range allParams() {
		output, err := ExecuteQuery(query, params)
		require.NoError(t, err)
		if baseline == nil {
			baseline = output
		} else {
			require.Equal(t, baseline.FieldNames, output.FieldNames)
			require.Equal(t, baseline.Values, output.Values, "params %+v", params)
		}
	}
	return baseline
}

func Test_count_all(t *testing.T) {
	table := buildLineitem(t)
	query := &QueryDesc{
		Tables:           []*storage.Table{table},
		AggregateClauses: []AggregateClause{{Kind: AggCount}},
	}
	output := runAll(t, query)
	assert.Equal(t, []string{"count"}, output.FieldNames)
	assert.Equal(t, [][]string{{"105536"}}, output.Values)
}

func Test_sum_all(t *testing.T) {
	table := buildLineitem(t)

	var expected int64
	for i := 0; i < testRows; i++ {
		expected += int64(i%50+1) * 100
	}

	ref := colRef(table, "l_quantity")
	query := &QueryDesc{
		Tables:           []*storage.Table{table},
		AggregateClauses: []AggregateClause{{Kind: AggSum, ColumnRef: &ref}},
	}
	output := runAll(t, query)
	assert.Equal(t, []string{"sum"}, output.FieldNames)
	assert.Equal(t, common.DecimalType(2).FormatValue(expected), output.Values[0][0])
}

func Test_filtered_count(t *testing.T) {
	table := buildLineitem(t)

	expected := 0
	for i := 0; i < testRows; i++ {
		if i/6 == 77 {
			expected++
		}
	}
	assert.Equal(t, 6, expected)

	query := &QueryDesc{
		Tables: []*storage.Table{table},
		FilterClauses: []FilterClause{
			{Op: CmpEq, ColumnRef: colRef(table, "l_orderkey"), Value: "77"},
		},
		AggregateClauses: []AggregateClause{{Kind: AggCount}},
	}
	output := runAll(t, query)
	assert.Equal(t, [][]string{{"6"}}, output.Values)
}

func Test_filtered_count_dict(t *testing.T) {
	table := buildLineitem(t)

	expected := 0
	for i := 0; i < testRows; i++ {
		if testModes[(i*7+i/13)%len(testModes)] == "AIR" {
			expected++
		}
	}

	query := &QueryDesc{
		Tables: []*storage.Table{table},
		FilterClauses: []FilterClause{
			{Op: CmpEq, ColumnRef: colRef(table, "l_shipmode"), Value: "AIR"},
		},
		AggregateClauses: []AggregateClause{{Kind: AggCount}},
	}
	output := runAll(t, query)
	assert.Equal(t, [][]string{{common.Int32Type().FormatValue(int64(expected))}}, output.Values)
}

func Test_conjunctive_filters_with_range(t *testing.T) {
	table := buildLineitem(t)

	dateLow := common.FormatDate(9600)
	dateHigh := common.FormatDate(9700)

	expected := 0
	for i := 0; i < testRows; i++ {
		mode := testModes[(i*7+i/13)%len(testModes)]
		day := 9500 + i%365
		quantity := (i%50 + 1) * 100
		if mode == "AIR" && day > 9600 && day <= 9700 && quantity <= 1000 {
			expected++
		}
	}
	require.Greater(t, expected, 0)

	query := &QueryDesc{
		Tables: []*storage.Table{table},
		FilterClauses: []FilterClause{
			{Op: CmpEq, ColumnRef: colRef(table, "l_shipmode"), Value: "AIR"},
			{Op: CmpGt, ColumnRef: colRef(table, "l_shipdate"), Value: dateLow},
			{Op: CmpLte, ColumnRef: colRef(table, "l_shipdate"), Value: dateHigh},
			{Op: CmpLte, ColumnRef: colRef(table, "l_quantity"), Value: "10"},
		},
		AggregateClauses: []AggregateClause{{Kind: AggCount}},
	}
	output := runAll(t, query)
	assert.Equal(t, [][]string{{common.Int32Type().FormatValue(int64(expected))}}, output.Values)
}

func Test_empty_range(t *testing.T) {
	table := buildLineitem(t)
	query := &QueryDesc{
		Tables: []*storage.Table{table},
		FilterClauses: []FilterClause{
			{Op: CmpGt, ColumnRef: colRef(table, "l_orderkey"), Value: "100"},
			{Op: CmpLt, ColumnRef: colRef(table, "l_orderkey"), Value: "50"},
		},
		AggregateClauses: []AggregateClause{{Kind: AggCount}},
	}
	output := runAll(t, query)
	assert.Equal(t, [][]string{{"0"}}, output.Values)
}

func Test_group_by(t *testing.T) {
	table := buildLineitem(t)

	expectedCounts := make(map[string]int)
	expectedSums := make(map[string]int64)
	for i := 0; i < testRows; i++ {
		mode := testModes[(i*7+i/13)%len(testModes)]
		expectedCounts[mode]++
		expectedSums[mode] += int64(i%50+1) * 100
	}

	modeRef := colRef(table, "l_shipmode")
	quantityRef := colRef(table, "l_quantity")
	query := &QueryDesc{
		Tables:  []*storage.Table{table},
		GroupBy: []ColumnRef{modeRef},
		AggregateClauses: []AggregateClause{
			{Kind: AggProject, ColumnRef: &modeRef},
			{Kind: AggCount},
			{Kind: AggSum, ColumnRef: &quantityRef},
		},
	}
	output := runAll(t, query)

	assert.Equal(t, []string{"l_shipmode", "count", "sum"}, output.FieldNames)
	require.Equal(t, len(testModes), len(output.Values))

	// rows come out in the group key's order
	prev := ""
	for _, row := range output.Values {
		require.Len(t, row, 3)
		mode := row[0]
		assert.Greater(t, mode, prev)
		prev = mode
		assert.Equal(t, common.Int32Type().FormatValue(int64(expectedCounts[mode])), row[1])
		assert.Equal(t, common.DecimalType(2).FormatValue(expectedSums[mode]), row[2])
	}
}

func Test_group_by_with_filter(t *testing.T) {
	table := buildLineitem(t)

	expected := make(map[string]int)
	for i := 0; i < testRows; i++ {
		mode := testModes[(i*7+i/13)%len(testModes)]
		if (i%50+1)*100 <= 1000 {
			expected[mode]++
		}
	}

	modeRef := colRef(table, "l_shipmode")
	query := &QueryDesc{
		Tables:  []*storage.Table{table},
		GroupBy: []ColumnRef{modeRef},
		FilterClauses: []FilterClause{
			{Op: CmpLte, ColumnRef: colRef(table, "l_quantity"), Value: "10"},
		},
		AggregateClauses: []AggregateClause{
			{Kind: AggProject, ColumnRef: &modeRef},
			{Kind: AggCount},
		},
	}
	output := runAll(t, query)
	require.Equal(t, len(testModes), len(output.Values))
	for _, row := range output.Values {
		assert.Equal(t, common.Int32Type().FormatValue(int64(expected[row[0]])), row[1])
	}
}

func Test_group_by_date(t *testing.T) {
	table := buildLineitem(t)

	expected := make(map[int]int)
	for i := 0; i < testRows; i++ {
		expected[9500+i%365]++
	}

	dateRef := colRef(table, "l_shipdate")
	query := &QueryDesc{
		Tables:  []*storage.Table{table},
		GroupBy: []ColumnRef{dateRef},
		AggregateClauses: []AggregateClause{
			{Kind: AggProject, ColumnRef: &dateRef},
			{Kind: AggCount},
		},
	}
	output := runAll(t, query)
	require.Equal(t, 365, len(output.Values))

	// group keys compare by day number, so rows come out in date order
	assert.Equal(t, common.FormatDate(9500), output.Values[0][0])
	assert.Equal(t, common.FormatDate(9864), output.Values[364][0])
	for _, row := range output.Values {
		day, err := common.ParseDate(row[0])
		require.NoError(t, err)
		assert.Equal(t, common.Int32Type().FormatValue(int64(expected[int(day)])), row[1])
	}
}

func Test_errors(t *testing.T) {
	table := buildLineitem(t)
	modeRef := colRef(table, "l_shipmode")

	// sum over a dictionary-encoded column is reported before execution
	query := &QueryDesc{
		Tables: []*storage.Table{table},
		FilterClauses: []FilterClause{
			{Op: CmpEq, ColumnRef: colRef(table, "l_orderkey"), Value: "1"},
		},
		AggregateClauses: []AggregateClause{{Kind: AggSum, ColumnRef: &modeRef}},
	}
	_, err := ExecuteQuery(query, ExecutionParams{Workers: 2, Parallel: true})
	assert.ErrorIs(t, err, common.ErrInvalid)

	// multi-column grouping is rejected
	query = &QueryDesc{
		Tables:           []*storage.Table{table},
		GroupBy:          []ColumnRef{modeRef, colRef(table, "l_shipdate")},
		FilterClauses:    query.FilterClauses,
		AggregateClauses: []AggregateClause{{Kind: AggCount}},
	}
	_, err = ExecuteQuery(query, ExecutionParams{Workers: 2, Parallel: true})
	assert.ErrorIs(t, err, common.ErrInvalid)

	// no aggregates
	query = &QueryDesc{Tables: []*storage.Table{table}}
	_, err = ExecuteQuery(query, ExecutionParams{})
	assert.ErrorIs(t, err, common.ErrInvalid)
}

// A saved and reloaded table answers every query identically.
func Test_persistence_semantic_identity(t *testing.T) {
	table := buildLineitem(t)
	path := filepath.Join(t.TempDir(), "lineitem.pgaccel")
	require.NoError(t, table.Save(path))

	loaded, err := storage.LoadTable("lineitem", path, nil)
	require.NoError(t, err)

	modeRef := colRef(table, "l_shipmode")
	quantityRef := colRef(table, "l_quantity")
	build := func(tbl *storage.Table) *QueryDesc {
		return &QueryDesc{
			Tables:  []*storage.Table{tbl},
			GroupBy: []ColumnRef{modeRef},
			FilterClauses: []FilterClause{
				{Op: CmpGt, ColumnRef: colRef(table, "l_orderkey"), Value: "1000"},
			},
			AggregateClauses: []AggregateClause{
				{Kind: AggProject, ColumnRef: &modeRef},
				{Kind: AggCount},
				{Kind: AggSum, ColumnRef: &quantityRef},
			},
		}
	}

	params := ExecutionParams{UseSimd: true, Parallel: true, Workers: 4, BranchElim: true}
	origOutput, err := ExecuteQuery(build(table), params)
	require.NoError(t, err)
	loadedOutput, err := ExecuteQuery(build(loaded), params)
	require.NoError(t, err)
	assert.Equal(t, origOutput, loadedOutput)
}

func Test_explain(t *testing.T) {
	table := buildLineitem(t)
	modeRef := colRef(table, "l_shipmode")
	query := &QueryDesc{
		Tables:  []*storage.Table{table},
		GroupBy: []ColumnRef{modeRef},
		FilterClauses: []FilterClause{
			{Op: CmpEq, ColumnRef: colRef(table, "l_orderkey"), Value: "1"},
		},
		AggregateClauses: []AggregateClause{
			{Kind: AggProject, ColumnRef: &modeRef},
			{Kind: AggCount},
		},
	}
	plan, err := BuildPlan(query, ExecutionParams{UseSimd: true})
	require.NoError(t, err)

	assert.Equal(t, table.RowGroupCount(), plan.PartitionCount())

	rendered := Explain(plan)
	assert.Contains(t, rendered, "Aggregate")
	assert.Contains(t, rendered, "Filter")
	assert.Contains(t, rendered, "Scan")
}

func Test_format_output(t *testing.T) {
	output := &QueryOutput{
		FieldNames: []string{"l_shipmode", "count"},
		Values:     [][]string{{"AIR", "28551"}, {"FOB", "28528"}},
	}
	rendered := FormatOutput(output)
	assert.Contains(t, rendered, "l_shipmode")
	assert.Contains(t, rendered, "AIR")
	assert.Contains(t, rendered, "=====")
}
