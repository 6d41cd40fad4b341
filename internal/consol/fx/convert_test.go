package fx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeProvider struct {
	quotes map[string]Quote
	err    error
	calls  int
}

func (f *fakeProvider) QuoteForDate(ctx context.Context, asOf time.Time, pair string) (Quote, bool, error) {
	f.calls++
	if f.err != nil {
		return Quote{}, false, f.err
	}
	quote, ok := f.quotes[pair]
	return quote, ok, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var jan31 = time.Date(2018, 1, 31, 0, 0, 0, 0, time.UTC)

func TestConvertAverageUsesReversePair(t *testing.T) {
	provider := &fakeProvider{quotes: map[string]Quote{
		"USDCHF": {Average: dec("1.3"), Spot: dec("1.36")},
	}}
	converter := NewConverter(provider)
	got, rate, err := converter.Convert(context.Background(), dec("15"), "chf", "USD", jan31, MethodAverage)
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if !got.Equal(dec("11.54")) {
		t.Fatalf("expected 11.54 got %s", got)
	}
	if !rate.Inverse || rate.Pair != "USDCHF" {
		t.Fatalf("expected inverse USDCHF rate, got %+v", rate)
	}
	if rate.Note() != "monthly rate : 1.3" {
		t.Fatalf("unexpected note %q", rate.Note())
	}
}

func TestConvertSpotDirectPair(t *testing.T) {
	provider := &fakeProvider{quotes: map[string]Quote{
		"JPYUSD": {Average: dec("0.009"), Spot: dec("0.0095")},
	}}
	converter := NewConverter(provider)
	got, rate, err := converter.Convert(context.Background(), dec("10000"), "JPY", "USD", jan31, MethodSpot)
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if !got.Equal(dec("95")) {
		t.Fatalf("expected 95 got %s", got)
	}
	if rate.Inverse {
		t.Fatalf("expected direct rate")
	}
}

func TestConvertRoundsToTargetPrecision(t *testing.T) {
	provider := &fakeProvider{quotes: map[string]Quote{
		"USDJPY": {Average: dec("148.123"), Spot: dec("149.5")},
	}}
	got, _, err := NewConverter(provider).Convert(context.Background(), dec("10.5"), "USD", "JPY", jan31, MethodAverage)
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if !got.Equal(dec("1555")) {
		t.Fatalf("expected JPY amount rounded to 1555 got %s", got)
	}
}

func TestConvertMissingRate(t *testing.T) {
	converter := NewConverter(&fakeProvider{quotes: map[string]Quote{
		"EURUSD": {Spot: dec("1.1")},
	}})
	_, _, err := converter.Convert(context.Background(), dec("100"), "EUR", "USD", jan31, MethodAverage)
	var missing *MissingRateError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRateError got %T", err)
	}
	if missing.Method != MethodAverage || missing.Pair != "EURUSD" {
		t.Fatalf("unexpected missing rate details %+v", missing)
	}
}

func TestConvertDefaultsToParity(t *testing.T) {
	provider := &fakeProvider{}
	got, rate, err := NewConverter(provider).Convert(context.Background(), dec("50.125"), "usd", "USD", jan31, MethodSpot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(dec("50.13")) {
		t.Fatalf("expected 50.13 got %s", got)
	}
	if !rate.Value.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected parity rate got %s", rate.Value)
	}
	if provider.calls != 0 {
		t.Fatalf("parity conversion should not query quotes")
	}
}

func TestConvertPropagatesProviderError(t *testing.T) {
	wantErr := errors.New("boom")
	_, _, err := NewConverter(&fakeProvider{err: wantErr}).Convert(context.Background(), dec("1"), "EUR", "USD", jan31, MethodSpot)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected provider error got %v", err)
	}
}

func TestPolicyMethodFor(t *testing.T) {
	policy := DefaultPolicy()
	if policy.MethodFor(true) != MethodSpot {
		t.Fatalf("balance sheet accounts must use spot rate")
	}
	if policy.MethodFor(false) != MethodAverage {
		t.Fatalf("flow accounts must use the period average")
	}
	if (Policy{}).MethodFor(false) != MethodAverage {
		t.Fatalf("empty policy should fall back to defaults")
	}
}

func TestCurrencyPrecision(t *testing.T) {
	if CurrencyOf("jpy").Scale != 0 {
		t.Fatalf("expected JPY scale 0")
	}
	if CurrencyOf("USD").Scale != 2 {
		t.Fatalf("expected USD scale 2")
	}
	if CurrencyOf("ZZZ").Scale != 2 {
		t.Fatalf("unknown codes fall back to two decimals")
	}
	usd := CurrencyOf("USD")
	if !usd.IsZero(dec("0.004")) {
		t.Fatalf("0.004 USD rounds to zero")
	}
	if usd.IsZero(dec("0.005")) {
		t.Fatalf("0.005 USD rounds to one cent")
	}
}
