package consol

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceFilter selects ledger lines of one company. DateFrom and DateTo are inclusive.
type BalanceFilter struct {
	CompanyID  int64
	AccountIDs []int64
	DateFrom   time.Time
	DateTo     time.Time
	TargetMove TargetMove
}

// Balance returns the signed balance (debit - credit) of account over the range. Accounts without
// matching lines have a zero balance.
func (s *Service) Balance(ctx context.Context, account Account, dateFrom, dateTo time.Time, target TargetMove) (decimal.Decimal, error) {
	if err := s.ready(); err != nil {
		return decimal.Zero, err
	}
	balances, err := s.balances(ctx, account.CompanyID, []Account{account}, dateFrom, dateTo, target)
	if err != nil {
		return decimal.Zero, err
	}
	return balances[account.ID], nil
}

// balances computes every account balance of a company in one query.
func (s *Service) balances(ctx context.Context, companyID int64, accounts []Account, dateFrom, dateTo time.Time, target TargetMove) (map[int64]decimal.Decimal, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unsupported target move %q", ErrInvalidParams, target)
	}
	ids := make([]int64, 0, len(accounts))
	out := make(map[int64]decimal.Decimal, len(accounts))
	for _, acc := range accounts {
		ids = append(ids, acc.ID)
		out[acc.ID] = decimal.Zero
	}
	if len(ids) == 0 {
		return out, nil
	}
	sums, err := s.repo.AccountBalances(ctx, BalanceFilter{
		CompanyID:  companyID,
		AccountIDs: ids,
		DateFrom:   dateFrom,
		DateTo:     dateTo,
		TargetMove: target,
	})
	if err != nil {
		return nil, fmt.Errorf("consol: account balances of company %d: %w", companyID, err)
	}
	for id, sum := range sums {
		if _, ok := out[id]; ok {
			out[id] = sum
		}
	}
	return out, nil
}
