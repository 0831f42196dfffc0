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

// Package parquet imports parquet files into columnar tables. It is an
// adapter around the engine: everything it produces goes through the
// storage build rules.
package parquet

import (
	"strings"
	"sync"

	pqLocal "github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	pqReader "github.com/xitongsys/parquet-go/reader"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pykello/pgaccel/pkg/common"
	"github.com/pykello/pgaccel/pkg/storage"
	"github.com/pykello/pgaccel/pkg/util"
)

type parquetColumn struct {
	leafIdx int
	desc    storage.ColumnDesc
}

// ImportTable reads a parquet file into a columnar table. When fields is
// non-nil only the named columns (case-insensitive) are imported. Column
// values are read serially and encoded concurrently, one goroutine per
// column; storing the encoded chunks is serialized behind a mutex.
func ImportTable(name string, path string, fields []string) (*storage.Table, error) {
	file, err := pqLocal.NewLocalFileReader(path)
	if err != nil {
		return nil, common.Iof("opening %s: %v", path, err)
	}
	defer file.Close()

	reader, err := pqReader.NewParquetColumnReader(file, 1)
	if err != nil {
		return nil, common.Iof("reading parquet footer of %s: %v", path, err)
	}
	defer reader.ReadStop()

	columns, err := selectColumns(reader, fields)
	if err != nil {
		return nil, err
	}

	// Column values are read serially (the parquet reader keeps
	// per-column cursors on one file handle) and encoded concurrently.
	numRows := reader.GetNumRows()
	chunksByCol := make([][]storage.ColumnData, len(columns))

	var appendLock sync.Mutex
	wg := errgroup.Group{}
	for colPos, column := range columns {
		build, err := readColumn(reader, column, numRows)
		if err != nil {
			return nil, err
		}
		wg.Go(func() (retErr error) {
			defer func() {
				if re := recover(); re != nil {
					retErr = util.ConvertPanicError(re)
				}
			}()
			chunks := build()
			appendLock.Lock()
			defer appendLock.Unlock()
			chunksByCol[colPos] = chunks
			util.Info("imported column",
				zap.String("table", name),
				zap.String("column", column.desc.Name),
				zap.Int("groups", len(chunks)))
			return nil
		})
	}
	if err = wg.Wait(); err != nil {
		return nil, err
	}

	table := storage.NewTable(name)
	for colPos, column := range columns {
		if err = table.AppendColumn(column.desc, chunksByCol[colPos]); err != nil {
			return nil, err
		}
	}
	return table, nil
}

// selectColumns maps the parquet schema leaves onto engine column
// descriptors, applying the default layout policy.
func selectColumns(reader *pqReader.ParquetReader, fields []string) ([]parquetColumn, error) {
	loadAll := fields == nil
	fieldsToLoad := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		fieldsToLoad[strings.ToLower(f)] = struct{}{}
	}

	elements := reader.SchemaHandler.SchemaElements
	if len(elements) < 2 {
		return nil, common.Invalidf("parquet file has no columns")
	}

	var result []parquetColumn
	for leafIdx, element := range elements[1:] {
		if !loadAll {
			if _, has := fieldsToLoad[strings.ToLower(element.Name)]; !has {
				continue
			}
		}

		typ, err := columnType(element)
		if err != nil {
			return nil, err
		}
		result = append(result, parquetColumn{
			leafIdx: leafIdx,
			desc: storage.ColumnDesc{
				Name:   element.Name,
				Type:   typ,
				Layout: storage.DefaultLayout(typ),
			},
		})
	}
	return result, nil
}

func columnType(element *parquet.SchemaElement) (common.AccelType, error) {
	if element.Type == nil {
		return common.AccelType{}, common.Invalidf("column %s has no physical type", element.Name)
	}

	switch *element.Type {
	case parquet.Type_BYTE_ARRAY:
		return common.StringType(), nil

	case parquet.Type_INT32:
		if element.ConvertedType != nil && *element.ConvertedType == parquet.ConvertedType_DATE {
			return common.DateType(), nil
		}
		return common.Int32Type(), nil

	case parquet.Type_INT64:
		if element.ConvertedType != nil && *element.ConvertedType == parquet.ConvertedType_DECIMAL {
			scale := 0
			if element.Scale != nil {
				scale = int(*element.Scale)
			}
			return common.DecimalType(scale), nil
		}
		return common.Int64Type(), nil
	}

	return common.AccelType{}, common.Invalidf("unsupported parquet type for column %s: %s",
		element.Name, element.Type)
}

// readColumn drains one parquet column and returns a deferred builder
// that packs the values into per-row-group column datas. Parquet DATE
// values are epoch days already and are stored as read.
func readColumn(reader *pqReader.ParquetReader, column parquetColumn,
	numRows int64) (func() []storage.ColumnData, error) {

	switch column.desc.Type.Num {
	case common.TypeString:
		vals, err := readValues(reader, column, numRows, func(v interface{}) (string, bool) {
			s, ok := v.(string)
			return s, ok
		})
		if err != nil {
			return nil, err
		}
		return func() []storage.ColumnData {
			return storage.DictChunks(column.desc.Type, vals)
		}, nil

	case common.TypeDate:
		vals, err := readValues(reader, column, numRows, func(v interface{}) (int32, bool) {
			n, ok := v.(int32)
			return n, ok
		})
		if err != nil {
			return nil, err
		}
		return func() []storage.ColumnData {
			return storage.DictChunks(column.desc.Type, vals)
		}, nil

	case common.TypeInt32:
		vals, err := readValues(reader, column, numRows, func(v interface{}) (int64, bool) {
			n, ok := v.(int32)
			return int64(n), ok
		})
		if err != nil {
			return nil, err
		}
		return func() []storage.ColumnData {
			return storage.RawChunks(column.desc.Type, vals)
		}, nil

	case common.TypeInt64, common.TypeDecimal:
		vals, err := readValues(reader, column, numRows, func(v interface{}) (int64, bool) {
			n, ok := v.(int64)
			return n, ok
		})
		if err != nil {
			return nil, err
		}
		return func() []storage.ColumnData {
			return storage.RawChunks(column.desc.Type, vals)
		}, nil
	}

	return nil, common.Invalidf("unsupported column type: %s", column.desc.Type)
}

func readValues[T any](reader *pqReader.ParquetReader, column parquetColumn,
	numRows int64, convert func(interface{}) (T, bool)) ([]T, error) {

	result := make([]T, 0, numRows)
	for int64(len(result)) < numRows {
		values, _, _, err := reader.ReadColumnByIndex(int64(column.leafIdx), storage.RowGroupSize)
		if err != nil {
			return nil, common.Iof("reading column %s: %v", column.desc.Name, err)
		}
		if len(values) == 0 {
			break
		}
		for _, v := range values {
			converted, ok := convert(v)
			if !ok {
				return nil, common.Invalidf("unexpected value type in column %s", column.desc.Name)
			}
			result = append(result, converted)
		}
	}
	return result, nil
}
