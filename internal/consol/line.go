package consol

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
)

// CurrencyConverter converts subsidiary balances into the holding currency.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string, asOf time.Time, method fx.Method) (decimal.Decimal, fx.Rate, error)
}

// lineName is the label of generated lines.
func lineName(params RunParams) string {
	return fmt.Sprintf("Consolidation (%s)", params.Period())
}

// splitAmount places a signed amount on the debit or credit side.
func splitAmount(amount decimal.Decimal) (debit, credit decimal.Decimal) {
	if amount.IsNegative() {
		return decimal.Zero, amount.Neg()
	}
	return amount, decimal.Zero
}

// buildLine consolidates the sources mapped onto holdingAccount. It returns nil when there are no
// sources or when any of them has a zero balance over the period. Sources do not add up; the last one
// by code overwrites debit and credit. Currency fields come from the last foreign source.
func (s *Service) buildLine(ctx context.Context, holding Company, holdingAccount Account, subsidiary Company, sources []Account, balances map[int64]decimal.Decimal, params RunParams) (*LineValues, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	holdingCur := holdingAccount.CurrencyOr(holding)
	vals := LineValues{AccountID: holdingAccount.ID, Name: lineName(params)}
	for _, acc := range sources {
		balance := balances[acc.ID]
		if balance.IsZero() {
			return nil, nil
		}
		weighted := balance.Mul(subsidiary.Weight())
		accCur := acc.CurrencyOr(subsidiary)
		if accCur == holdingCur {
			vals.Debit, vals.Credit = splitAmount(fx.CurrencyOf(holdingCur).Round(weighted))
			continue
		}
		method := holdingAccount.RateMethod(s.policy)
		converted, rate, err := s.converter.Convert(ctx, weighted, accCur, holdingCur, params.DateTo, method)
		if err != nil {
			return nil, fmt.Errorf("consol: convert account %s of %s to %s: %w", acc.DisplayName(), subsidiary.Name, holdingCur, err)
		}
		vals.Currency = accCur
		vals.AmountCurrency = fx.CurrencyOf(accCur).Round(weighted)
		vals.Debit, vals.Credit = splitAmount(converted)
		vals.Name = fmt.Sprintf("%s - %s", vals.Name, rate.Note())
	}
	return &vals, nil
}
