package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
)

func TestQuoteForDateLookupRules(t *testing.T) {
	s := New()
	s.SetRate("USDCHF", date(2018, 1, 1), decimal.RequireFromString("1.3"), decimal.RequireFromString("1.36"))
	s.SetRate("USDCHF", date(2018, 2, 10), decimal.RequireFromString("1.2"), decimal.RequireFromString("1.25"))
	ctx := context.Background()

	quote, found, err := s.QuoteForDate(ctx, date(2018, 2, 5), "usdchf")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, quote.Average.IsZero(), "no average published yet in February")
	require.Equal(t, "1.36", quote.Spot.String())

	quote, found, err = s.QuoteForDate(ctx, date(2018, 2, 28), "USDCHF")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1.2", quote.Average.String())
	require.Equal(t, "1.25", quote.Spot.String())

	_, found, err = s.QuoteForDate(ctx, date(2017, 12, 31), "USDCHF")
	require.NoError(t, err)
	require.False(t, found)
}

func TestUpsertFxRatesReplacesSameDay(t *testing.T) {
	s := New()
	ctx := context.Background()
	asOf := time.Date(2018, 1, 1, 15, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertFxRates(ctx, []consol.FxRateInput{{AsOf: asOf, Pair: "USDEUR", Average: decimal.NewFromInt(1), Spot: decimal.NewFromInt(1)}}))
	require.NoError(t, s.UpsertFxRates(ctx, []consol.FxRateInput{{AsOf: asOf, Pair: "USDEUR", Average: decimal.NewFromInt(2), Spot: decimal.NewFromInt(3)}}))

	rates := s.Dump().Rates
	require.Len(t, rates, 1)
	require.Equal(t, "2", rates[0].Average.String())
	require.Equal(t, date(2018, 1, 1), rates[0].AsOf)
}

func TestUpsertFxRatesRejectsWholeBatch(t *testing.T) {
	s := New()
	err := s.UpsertFxRates(context.Background(), []consol.FxRateInput{
		{AsOf: date(2018, 1, 1), Pair: "USDEUR", Average: decimal.NewFromInt(1), Spot: decimal.NewFromInt(1)},
		{AsOf: date(2018, 1, 2), Pair: "USDEUR", Average: decimal.Zero, Spot: decimal.NewFromInt(1)},
	})
	require.ErrorIs(t, err, consol.ErrFxRateInvalid)
	require.Empty(t, s.Dump().Rates)
}

func TestReferenceDump(t *testing.T) {
	s, sc := Reference()
	rec := s.Dump()

	require.Len(t, rec.Companies, 3)
	require.Equal(t, sc.Holding.ID, rec.Companies[0].ID)
	require.Len(t, rec.Journals, 3)
	require.Len(t, rec.Moves, 6)
	require.Len(t, rec.Rates, 2)
	for i := 1; i < len(rec.Accounts); i++ {
		require.Less(t, rec.Accounts[i-1].ID, rec.Accounts[i].ID)
	}
	for _, acc := range rec.Accounts {
		if acc.ConsolidationAccountID != nil {
			require.Less(t, *acc.ConsolidationAccountID, acc.ID, "targets precede their referrers")
		}
	}
}
