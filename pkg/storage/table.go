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
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/util"
)

type ColumnDesc struct {
	Name   string
	Type   common.AccelType
	Layout ColumnLayout
}

// Table owns an ordered schema and an ordered list of row groups. Row
// groups are immutable after construction and interchangeable for
// aggregation.
type Table struct {
	name      string
	schema    []ColumnDesc
	rowGroups []*RowGroup
}

func NewTable(name string) *Table {
	return &Table{name: name}
}

func (table *Table) Name() string {
	return table.name
}

func (table *Table) Schema() []ColumnDesc {
	return table.schema
}

func (table *Table) ColumnCount() int {
	return len(table.schema)
}

func (table *Table) RowGroup(idx int) *RowGroup {
	return table.rowGroups[idx]
}

func (table *Table) RowGroupCount() int {
	return len(table.rowGroups)
}

// ColumnIndex resolves a column by name, case-insensitively.
func (table *Table) ColumnIndex(name string) (int, bool) {
	lcName := strings.ToLower(name)
	for i := range table.schema {
		if strings.ToLower(table.schema[i].Name) == lcName {
			return i, true
		}
	}
	return 0, false
}

// RowCount sums the sizes of all row groups, asserting that every column
// of a group carries the same number of rows.
func (table *Table) RowCount() uint64 {
	var total uint64
	for _, rg := range table.rowGroups {
		for _, col := range rg.Columns {
			util.AssertFunc(col.Len() == rg.Size)
		}
		total += uint64(rg.Size)
	}
	return total
}

// AppendColumn adds the next schema column together with its per-row-group
// chunks. Row groups materialize lazily as chunks arrive; every column
// must split its rows at the same group boundaries.
func (table *Table) AppendColumn(desc ColumnDesc, chunks []ColumnData) error {
	for len(table.rowGroups) < len(chunks) {
		table.rowGroups = append(table.rowGroups, &RowGroup{})
	}
	for g, data := range chunks {
		rg := table.rowGroups[g]
		if len(rg.Columns) == 0 {
			rg.Size = data.Len()
		} else if rg.Size != data.Len() {
			return common.Invalidf(
				"column %s has %d rows in group %d, expected %d",
				desc.Name, data.Len(), g, rg.Size)
		}
		rg.Columns = append(rg.Columns, data)
	}
	table.schema = append(table.schema, desc)
	return nil
}

// RawChunks applies the raw build rule to a full column of values,
// splitting at row group boundaries.
func RawChunks(typ common.AccelType, vals []int64) []ColumnData {
	var result []ColumnData
	for offset := 0; offset < len(vals); offset += RowGroupSize {
		end := offset + RowGroupSize
		if end > len(vals) {
			end = len(vals)
		}
		result = append(result, NewRawColumn(typ, vals[offset:end]))
	}
	return result
}

// DictChunks applies the dict build rule to a full column of values,
// splitting at row group boundaries. Each group gets its own dictionary.
func DictChunks[T DictValue](typ common.AccelType, vals []T) []ColumnData {
	var result []ColumnData
	for offset := 0; offset < len(vals); offset += RowGroupSize {
		end := offset + RowGroupSize
		if end > len(vals) {
			end = len(vals)
		}
		result = append(result, NewDictColumn(typ, vals[offset:end]))
	}
	return result
}

// Save emits two sibling streams: <path> holds the serialized column
// datas grouped by column (all row groups of column 0, then column 1, ...)
// and <path>.metadata holds a text description with per-column offsets
// into the data stream.
func (table *Table) Save(path string) error {
	serial, err := util.NewFileSerialize(path)
	if err != nil {
		return common.Iof("creating %s: %v", path, err)
	}
	defer serial.Close()

	positions := make([]uint64, 0, len(table.schema))
	for colIdx := range table.schema {
		pos, err := serial.Position()
		if err != nil {
			return common.Iof("saving %s: %v", path, err)
		}
		positions = append(positions, pos)
		for _, rg := range table.rowGroups {
			if err = rg.Columns[colIdx].Save(serial); err != nil {
				return common.Iof("saving column %s: %v", table.schema[colIdx].Name, err)
			}
		}
	}

	metaFile, err := os.Create(path + ".metadata")
	if err != nil {
		return common.Iof("creating %s.metadata: %v", path, err)
	}
	defer metaFile.Close()

	writer := bufio.NewWriter(metaFile)
	fmt.Fprintf(writer, "%d\n", len(table.schema))
	for colIdx, desc := range table.schema {
		fmt.Fprintf(writer, "%d %d %s %d",
			positions[colIdx], len(table.rowGroups), desc.Name, desc.Type.Num)
		if desc.Type.Num == common.TypeDecimal {
			fmt.Fprintf(writer, " %d", desc.Type.Scale)
		}
		fmt.Fprintf(writer, "\n")
	}
	return writer.Flush()
}

type columnMeta struct {
	position   uint64
	groupCount int
	desc       ColumnDesc
}

func parseMetadata(path string) ([]columnMeta, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, common.Iof("opening %s: %v", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return nil, common.Invalidf("empty metadata file: %s", path)
	}
	numCols, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, common.Invalidf("malformed column count in %s", path)
	}

	result := make([]columnMeta, 0, numCols)
	for colIdx := 0; colIdx < numCols; colIdx++ {
		if !scanner.Scan() {
			return nil, common.Invalidf("metadata ends after %d of %d columns", colIdx, numCols)
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			return nil, common.Invalidf("malformed metadata line: %s", scanner.Text())
		}

		var meta columnMeta
		if meta.position, err = strconv.ParseUint(fields[0], 10, 64); err != nil {
			return nil, common.Invalidf("malformed column offset: %s", fields[0])
		}
		if meta.groupCount, err = strconv.Atoi(fields[1]); err != nil {
			return nil, common.Invalidf("malformed group count: %s", fields[1])
		}
		meta.desc.Name = strings.ToLower(fields[2])

		typeNum, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, common.Invalidf("malformed type number: %s", fields[3])
		}
		scale := 0
		if common.TypeNum(typeNum) == common.TypeDecimal {
			if len(fields) < 5 {
				return nil, common.Invalidf("Decimal column %s has no scale", meta.desc.Name)
			}
			if scale, err = strconv.Atoi(fields[4]); err != nil {
				return nil, common.Invalidf("malformed Decimal scale: %s", fields[4])
			}
		}
		if meta.desc.Type, err = common.TypeFromNum(typeNum, scale); err != nil {
			return nil, err
		}
		meta.desc.Layout = DefaultLayout(meta.desc.Type)

		result = append(result, meta)
	}
	return result, nil
}

// LoadTable reads a table previously written by Save. When fields is
// non-nil only the named columns (case-insensitive) are materialized.
func LoadTable(name string, path string, fields []string) (*Table, error) {
	metas, err := parseMetadata(path + ".metadata")
	if err != nil {
		return nil, err
	}

	loadAll := fields == nil
	fieldsToLoad := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		fieldsToLoad[strings.ToLower(f)] = struct{}{}
	}

	deserial, err := util.NewFileDeserialize(path)
	if err != nil {
		return nil, common.Iof("opening %s: %v", path, err)
	}
	defer deserial.Close()

	table := NewTable(name)
	for _, meta := range metas {
		if !loadAll {
			if _, has := fieldsToLoad[meta.desc.Name]; !has {
				continue
			}
		}

		if err = deserial.Seek(meta.position); err != nil {
			return nil, common.Iof("seeking to column %s: %v", meta.desc.Name, err)
		}

		chunks := make([]ColumnData, 0, meta.groupCount)
		for g := 0; g < meta.groupCount; g++ {
			data, err := LoadColumnData(deserial, meta.desc.Type)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, data)
		}
		if err = table.AppendColumn(meta.desc, chunks); err != nil {
			return nil, err
		}
	}

	return table, nil
}
