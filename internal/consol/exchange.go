package consol

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
)

// ExchangeDifferenceLine returns the line that balances lines on the holding's consolidation
// difference account. It returns nil when the lines already balance at the holding currency
// precision.
func ExchangeDifferenceLine(lines []LineValues, holding Company, params RunParams) (*LineValues, error) {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Debit).Sub(l.Credit)
	}
	cur := fx.CurrencyOf(holding.Currency)
	if cur.IsZero(total) {
		return nil, nil
	}
	if holding.DiffAccountID == nil {
		return nil, fmt.Errorf("%w: please set the consolidation difference account on company %s", ErrDiffAccountMissing, holding.Name)
	}
	total = cur.Round(total)
	vals := LineValues{
		AccountID: *holding.DiffAccountID,
		Name:      fmt.Sprintf("Consolidation difference (%s)", params.Period()),
	}
	if total.IsNegative() {
		vals.Debit = total.Abs()
	} else {
		vals.Credit = total
	}
	return &vals, nil
}
