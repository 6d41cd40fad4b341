package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
)

// FXStore reads and writes FX quotes.
type FXStore interface {
	fx.QuoteProvider
	UpsertFxRates(ctx context.Context, rows []consol.FxRateInput) error
}

// CurrencySource lists the currencies involved in a consolidation.
type CurrencySource interface {
	Currencies(ctx context.Context, params consol.CheckParams) (string, []string, error)
}

// CacheFlusher drops cached quotes after an import.
type CacheFlusher interface {
	Flush(ctx context.Context) error
}

// FXOpsCLI offers operational helpers to manage FX rates used by consolidation.
type FXOpsCLI struct {
	repo       FXStore
	quotes     fx.QuoteProvider
	cache      CacheFlusher
	currencies CurrencySource
}

// FXOption customises the helper.
type FXOption func(*FXOpsCLI)

// WithQuoteCache reads quotes through cache and flushes it after imports.
func WithQuoteCache(cache *fx.CachedProvider) FXOption {
	return func(c *FXOpsCLI) {
		if cache != nil {
			c.quotes = cache
			c.cache = cache
		}
	}
}

// WithCurrencySource derives the pairs to validate from a holding's subsidiaries.
func WithCurrencySource(src CurrencySource) FXOption {
	return func(c *FXOpsCLI) {
		c.currencies = src
	}
}

// NewFXOpsCLI constructs a new helper instance.
func NewFXOpsCLI(repo FXStore, opts ...FXOption) (*FXOpsCLI, error) {
	if repo == nil {
		return nil, errors.New("fx cli: store required")
	}
	c := &FXOpsCLI{repo: repo, quotes: repo}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ValidateParams scopes a gap check. Explicit pairs take precedence over the holding's currencies.
type ValidateParams struct {
	HoldingID     int64
	SubsidiaryIDs []int64
	AsOf          time.Time
	Pairs         []string
}

// ValidateResult wraps the validation outcome with its scope.
type ValidateResult struct {
	HoldingID          int64
	HoldingCurrency    string
	ConsideredPairs    []string
	RequestedPairNames []string
	Result             fx.Result
}

// ValidateGaps checks that every pair needed at AsOf has both an average and a spot rate.
func (c *FXOpsCLI) ValidateGaps(ctx context.Context, params ValidateParams) (ValidateResult, error) {
	res := ValidateResult{HoldingID: params.HoldingID}
	var reqs []fx.Requirement
	if len(params.Pairs) > 0 {
		seen := make(map[string]struct{}, len(params.Pairs))
		for _, raw := range params.Pairs {
			pair := strings.ToUpper(strings.TrimSpace(raw))
			if pair == "" {
				continue
			}
			if _, ok := seen[pair]; ok {
				continue
			}
			seen[pair] = struct{}{}
			res.RequestedPairNames = append(res.RequestedPairNames, pair)
			reqs = append(reqs, fx.Requirement{Pair: pair, Methods: []fx.Method{fx.MethodAverage, fx.MethodSpot}})
		}
	} else {
		if c.currencies == nil {
			return res, errors.New("pairs required when no holding is configured")
		}
		if params.HoldingID <= 0 {
			return res, errors.New("holding id must be positive")
		}
		target, currencies, err := c.currencies.Currencies(ctx, consol.CheckParams{HoldingID: params.HoldingID, SubsidiaryIDs: params.SubsidiaryIDs})
		if err != nil {
			return res, err
		}
		res.HoldingCurrency = target
		reqs = fx.RequirementsFor(target, currencies)
	}
	for _, req := range reqs {
		res.ConsideredPairs = append(res.ConsideredPairs, req.Pair)
	}
	sort.Strings(res.ConsideredPairs)
	result, err := fx.Validate(ctx, c.quotes, params.AsOf, reqs)
	if err != nil {
		return res, fmt.Errorf("validate: %w", err)
	}
	res.Result = result
	return res, nil
}
