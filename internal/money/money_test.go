package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfAwayFromZero(t *testing.T) {
	require.True(t, Round(decimal.RequireFromString("10.005")).Equal(decimal.RequireFromString("10.01")))
	require.True(t, Round(decimal.RequireFromString("-10.005")).Equal(decimal.RequireFromString("-10.01")))
	require.True(t, Round(decimal.RequireFromString("10.004")).Equal(decimal.RequireFromString("10")))
}

func TestPercent(t *testing.T) {
	got := Percent(decimal.NewFromInt(10000), decimal.NewFromInt(8))
	require.True(t, got.Equal(decimal.NewFromInt(800)), got.String())

	got = Percent(decimal.RequireFromString("333.33"), decimal.RequireFromString("12.5"))
	require.Equal(t, "41.67", got.StringFixed(2))
}

func TestParse(t *testing.T) {
	d, err := Parse(" 1,250.50 ")
	require.NoError(t, err)
	require.Equal(t, "1250.5", d.String())

	d, err = Parse("")
	require.NoError(t, err)
	require.True(t, d.IsZero())

	_, err = Parse("abc")
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "KES 12,500.00", Format("KES", decimal.NewFromInt(12500)))
	require.Equal(t, "0.50", Format("", decimal.RequireFromString("0.5")))
}

func TestFormatKeepsEveryDigit(t *testing.T) {
	require.Equal(t, "12,345,678,901,234,567.89", Format("", decimal.RequireFromString("12345678901234567.89")))
	require.Equal(t, "123,456,789,012,345,678,901.50", Format("", decimal.RequireFromString("123456789012345678901.5")))
	require.Equal(t, "KES -1,234.50", Format("KES", decimal.RequireFromString("-1234.5")))
	require.Equal(t, "0.01", Format("", decimal.RequireFromString("0.005")))
}

func TestFitsPlaces(t *testing.T) {
	require.True(t, FitsPlaces(decimal.RequireFromString("33.33"), MinorUnits))
	require.True(t, FitsPlaces(decimal.RequireFromString("2500.00"), MinorUnits))
	require.False(t, FitsPlaces(decimal.RequireFromString("33.333"), MinorUnits))
	require.True(t, FitsPlaces(decimal.RequireFromString("12.345"), FinePlaces))
	require.False(t, FitsPlaces(decimal.RequireFromString("12.3456"), FinePlaces))
}
