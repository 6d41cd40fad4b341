package consol

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testParams() RunParams {
	return RunParams{
		DateFrom: time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2018, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func lv(debit, credit string) LineValues {
	return LineValues{Debit: decimal.RequireFromString(debit), Credit: decimal.RequireFromString(credit)}
}

func TestExchangeDifferenceLine(t *testing.T) {
	diff := int64(99)
	holding := Company{Name: "Holding", Currency: "USD", DiffAccountID: &diff}

	line, err := ExchangeDifferenceLine([]LineValues{lv("10", "0"), lv("0", "10")}, holding, testParams())
	require.NoError(t, err)
	require.Nil(t, line)

	line, err = ExchangeDifferenceLine([]LineValues{lv("10", "0"), lv("0", "12.5")}, holding, testParams())
	require.NoError(t, err)
	require.NotNil(t, line)
	require.Equal(t, diff, line.AccountID)
	require.True(t, line.Debit.Equal(decimal.RequireFromString("2.5")))
	require.True(t, line.Credit.IsZero())
	require.Equal(t, "Consolidation difference (2018-01-01 - 2018-01-31)", line.Name)

	line, err = ExchangeDifferenceLine([]LineValues{lv("7.25", "0")}, holding, testParams())
	require.NoError(t, err)
	require.True(t, line.Credit.Equal(decimal.RequireFromString("7.25")))
	require.True(t, line.Debit.IsZero())
}

func TestExchangeDifferenceLineBelowPrecision(t *testing.T) {
	holding := Company{Name: "Holding", Currency: "USD"}
	line, err := ExchangeDifferenceLine([]LineValues{lv("10.001", "0"), lv("0", "10")}, holding, testParams())
	require.NoError(t, err)
	require.Nil(t, line)

	jpy := Company{Name: "Holding", Currency: "JPY"}
	line, err = ExchangeDifferenceLine([]LineValues{lv("10.4", "0"), lv("0", "10")}, jpy, testParams())
	require.NoError(t, err)
	require.Nil(t, line)
}

func TestExchangeDifferenceLineRequiresAccount(t *testing.T) {
	holding := Company{Name: "Holding", Currency: "USD"}
	_, err := ExchangeDifferenceLine([]LineValues{lv("1", "0")}, holding, testParams())
	require.ErrorIs(t, err, ErrDiffAccountMissing)
	require.ErrorIs(t, err, ErrConfiguration)
	require.ErrorContains(t, err, "Holding")
}
