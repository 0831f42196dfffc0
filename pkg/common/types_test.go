package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_decimal(t *testing.T) {
	typ := DecimalType(2)

	v, err := typ.ParseValue("5.1")
	require.NoError(t, err)
	assert.Equal(t, int64(510), v)

	// fractional digits beyond the scale are trimmed, not rounded
	v, err = typ.ParseValue("5.129")
	require.NoError(t, err)
	assert.Equal(t, int64(512), v)

	v, err = typ.ParseValue("5")
	require.NoError(t, err)
	assert.Equal(t, int64(500), v)

	assert.Equal(t, "5103301.00", typ.FormatValue(510330100))
	assert.Equal(t, "0.07", typ.FormatValue(7))

	_, err = typ.ParseValue("abc")
	assert.ErrorIs(t, err, ErrParse)
}

func Test_decimal_roundtrip(t *testing.T) {
	typ := DecimalType(2)
	for _, text := range []string{"0.00", "1.50", "123.45", "99999.99"} {
		v, err := typ.ParseValue(text)
		require.NoError(t, err)
		assert.Equal(t, text, typ.FormatValue(v))
	}

	// canonicalization pads the fraction to the scale
	v, err := typ.ParseValue("7.5")
	require.NoError(t, err)
	assert.Equal(t, "7.50", typ.FormatValue(v))
}

func Test_date(t *testing.T) {
	typ := DateType()

	for _, text := range []string{"1970-01-01", "1996-02-12", "2024-12-31"} {
		v, err := typ.ParseValue(text)
		require.NoError(t, err)
		assert.Equal(t, text, typ.FormatValue(v))
	}

	a, err := typ.ParseValue("1996-02-11")
	require.NoError(t, err)
	b, err := typ.ParseValue("1996-02-12")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b-a)

	_, err = typ.ParseValue("not-a-date")
	assert.ErrorIs(t, err, ErrParse)
}

func Test_int_types(t *testing.T) {
	v, err := Int32Type().ParseValue("-12345")
	require.NoError(t, err)
	assert.Equal(t, int64(-12345), v)
	assert.Equal(t, "-12345", Int32Type().FormatValue(v))

	_, err = Int32Type().ParseValue("3000000000")
	assert.ErrorIs(t, err, ErrParse)

	v, err = Int64Type().ParseValue("3000000000")
	require.NoError(t, err)
	assert.Equal(t, int64(3000000000), v)
}

func Test_type_from_num(t *testing.T) {
	typ, err := TypeFromNum(3, 2)
	require.NoError(t, err)
	assert.Equal(t, TypeDecimal, typ.Num)
	assert.Equal(t, 2, typ.Scale)
	assert.Equal(t, "Decimal(2)", typ.String())

	_, err = TypeFromNum(9, 0)
	assert.ErrorIs(t, err, ErrInvalid)
}
