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

package common

import (
	"fmt"
	"strconv"
)

// TypeNum values are persisted in table metadata. Do not reorder.
type TypeNum int

const (
	TypeString TypeNum = iota
	TypeInt32
	TypeInt64
	TypeDecimal
	TypeDate
	TypeInvalid
)

// AccelType describes a column's value type. All numeric types (everything
// except String) are carried through the engine as int64; the storage layer
// narrows them to the smallest width that fits.
type AccelType struct {
	Num   TypeNum
	Scale int
}

func StringType() AccelType {
	return AccelType{Num: TypeString}
}

func Int32Type() AccelType {
	return AccelType{Num: TypeInt32}
}

func Int64Type() AccelType {
	return AccelType{Num: TypeInt64}
}

func DecimalType(scale int) AccelType {
	return AccelType{Num: TypeDecimal, Scale: scale}
}

func DateType() AccelType {
	return AccelType{Num: TypeDate}
}

func TypeFromNum(num int, scale int) (AccelType, error) {
	switch TypeNum(num) {
	case TypeString:
		return StringType(), nil
	case TypeInt32:
		return Int32Type(), nil
	case TypeInt64:
		return Int64Type(), nil
	case TypeDecimal:
		return DecimalType(scale), nil
	case TypeDate:
		return DateType(), nil
	}
	return AccelType{Num: TypeInvalid}, Invalidf("unknown type number: %d", num)
}

func (typ AccelType) String() string {
	switch typ.Num {
	case TypeString:
		return "String"
	case TypeInt32:
		return "Int32"
	case TypeInt64:
		return "Int64"
	case TypeDecimal:
		return fmt.Sprintf("Decimal(%d)", typ.Scale)
	case TypeDate:
		return "Date"
	}
	return "INVALID"
}

func (typ AccelType) IsNumeric() bool {
	return typ.Num != TypeString && typ.Num != TypeInvalid
}

// StorageWidth is the size in bytes of the type's integer representation
// as persisted for Raw min/max values. String has no integer representation.
func (typ AccelType) StorageWidth() int {
	switch typ.Num {
	case TypeInt32, TypeDate:
		return 4
	case TypeInt64, TypeDecimal:
		return 8
	}
	return 0
}

// ParseValue parses a literal of a numeric type into its int64
// representation (scaled units for Decimal, days since epoch for Date).
func (typ AccelType) ParseValue(text string) (int64, error) {
	switch typ.Num {
	case TypeInt32:
		v, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return 0, Parsef("invalid Int32 literal: %s", text)
		}
		return v, nil
	case TypeInt64:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, Parsef("invalid Int64 literal: %s", text)
		}
		return v, nil
	case TypeDecimal:
		return ParseDecimal(typ.Scale, text)
	case TypeDate:
		return ParseDate(text)
	}
	return 0, Invalidf("type %s has no numeric representation", typ)
}

// FormatValue renders the int64 representation back to text. It round-trips
// with ParseValue for every value the engine produces.
func (typ AccelType) FormatValue(value int64) string {
	switch typ.Num {
	case TypeDecimal:
		return FormatDecimal(typ.Scale, value)
	case TypeDate:
		return FormatDate(value)
	}
	return strconv.FormatInt(value, 10)
}
