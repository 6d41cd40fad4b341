package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quote holds the rates known for a pair at a date. One unit of the base currency buys Rate units
// of the quote currency.
type Quote struct {
	Average decimal.Decimal `json:"average"`
	Spot    decimal.Decimal `json:"spot"`
}

// Rate returns the rate for the method, zero when not configured.
func (q Quote) Rate(method Method) decimal.Decimal {
	switch method {
	case MethodAverage:
		return q.Average
	case MethodSpot:
		return q.Spot
	default:
		return decimal.Zero
	}
}

// QuoteProvider exposes quote lookups. Average is the average of asOf's month, Spot the latest
// rate effective on or before asOf.
type QuoteProvider interface {
	QuoteForDate(ctx context.Context, asOf time.Time, pair string) (Quote, bool, error)
}

// ErrProviderRequired is returned when a converter has no quote source.
var ErrProviderRequired = errors.New("fx: quote provider required")

// MissingRateError signals no usable quote for a pair.
type MissingRateError struct {
	Pair   string
	Method Method
	AsOf   time.Time
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("fx: %s rate missing for %s at %s", e.Method, e.Pair, e.AsOf.Format("2006-01-02"))
}

// Rate is a resolved conversion rate. When only the reverse pair is quoted the stored value is kept
// and amounts are divided by it.
type Rate struct {
	Pair    string
	Method  Method
	Value   decimal.Decimal
	Inverse bool
}

// Apply converts amount with the rate, without rounding.
func (r Rate) Apply(amount decimal.Decimal) decimal.Decimal {
	if r.Value.IsZero() {
		return amount
	}
	if r.Inverse {
		return amount.Div(r.Value)
	}
	return amount.Mul(r.Value)
}

// Note renders the rate as it is printed on move lines, e.g. "monthly rate : 1.3".
func (r Rate) Note() string {
	return fmt.Sprintf("%s : %s", r.Method.Label(), r.Value.String())
}

// Converter applies FX rates between currencies.
type Converter struct {
	provider QuoteProvider
}

// NewConverter constructs a converter instance.
func NewConverter(provider QuoteProvider) *Converter {
	return &Converter{provider: provider}
}

// Rate resolves the rate converting from into to at asOf using method.
func (c *Converter) Rate(ctx context.Context, from, to string, asOf time.Time, method Method) (Rate, error) {
	from, to = NormalizeCode(from), NormalizeCode(to)
	if !method.Valid() {
		return Rate{}, fmt.Errorf("fx: unsupported method %q", method)
	}
	if from == to {
		return Rate{Pair: Pair(from, to), Method: method, Value: decimal.NewFromInt(1)}, nil
	}
	if c == nil || c.provider == nil {
		return Rate{}, ErrProviderRequired
	}
	direct := Pair(from, to)
	quote, ok, err := c.provider.QuoteForDate(ctx, asOf, direct)
	if err != nil {
		return Rate{}, err
	}
	if ok && quote.Rate(method).IsPositive() {
		return Rate{Pair: direct, Method: method, Value: quote.Rate(method)}, nil
	}
	reverse := Pair(to, from)
	quote, ok, err = c.provider.QuoteForDate(ctx, asOf, reverse)
	if err != nil {
		return Rate{}, err
	}
	if ok && quote.Rate(method).IsPositive() {
		return Rate{Pair: reverse, Method: method, Value: quote.Rate(method), Inverse: true}, nil
	}
	return Rate{}, &MissingRateError{Pair: direct, Method: method, AsOf: asOf}
}

// Convert converts amount from one currency to another and rounds it to the target precision.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string, asOf time.Time, method Method) (decimal.Decimal, Rate, error) {
	rate, err := c.Rate(ctx, from, to, asOf, method)
	if err != nil {
		return decimal.Zero, Rate{}, err
	}
	return CurrencyOf(to).Round(rate.Apply(amount)), rate, nil
}
