package fx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Requirement declares which conversion methods must be available for a pair.
type Requirement struct {
	Pair    string
	Methods []Method
}

// Gap contains missing conversion methods for a pair.
type Gap struct {
	Pair    string
	Methods []Method
}

// Result summarises the validation outcome.
type Result struct {
	AsOf      time.Time
	Checked   int
	Gaps      []Gap
	Available map[string]Quote
}

// OK reports whether every requirement is covered.
func (r Result) OK() bool {
	return len(r.Gaps) == 0
}

// RequirementsFor lists the pairs needed to convert every foreign currency into target with both methods.
func RequirementsFor(target string, currencies []string) []Requirement {
	target = NormalizeCode(target)
	seen := make(map[string]struct{}, len(currencies))
	reqs := make([]Requirement, 0, len(currencies))
	for _, cur := range currencies {
		cur = NormalizeCode(cur)
		if cur == "" || cur == target {
			continue
		}
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		reqs = append(reqs, Requirement{Pair: Pair(cur, target), Methods: []Method{MethodAverage, MethodSpot}})
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Pair < reqs[j].Pair })
	return reqs
}

// Validate ensures all requested conversion methods are quoted at asOf. A pair counts as quoted when
// either direction carries the method.
func Validate(ctx context.Context, provider QuoteProvider, asOf time.Time, reqs []Requirement) (Result, error) {
	var res Result
	if provider == nil {
		return res, ErrProviderRequired
	}
	if asOf.IsZero() {
		return res, fmt.Errorf("fx: date is required")
	}
	res.AsOf = asOf
	res.Available = make(map[string]Quote)
	res.Gaps = make([]Gap, 0)
	if len(reqs) == 0 {
		return res, nil
	}
	pairs := make(map[string]map[Method]struct{})
	for _, req := range reqs {
		pair := strings.ToUpper(strings.TrimSpace(req.Pair))
		if len(pair) != 6 {
			return Result{}, fmt.Errorf("fx: invalid pair %q", req.Pair)
		}
		if len(req.Methods) == 0 {
			return Result{}, fmt.Errorf("fx: methods required for pair %s", pair)
		}
		methodSet := pairs[pair]
		if methodSet == nil {
			methodSet = make(map[Method]struct{}, len(req.Methods))
			pairs[pair] = methodSet
		}
		for _, method := range req.Methods {
			if !method.Valid() {
				return Result{}, fmt.Errorf("fx: unsupported method %q for pair %s", method, pair)
			}
			methodSet[method] = struct{}{}
		}
	}
	keys := make([]string, 0, len(pairs))
	for pair := range pairs {
		keys = append(keys, pair)
	}
	sort.Strings(keys)
	converter := NewConverter(provider)
	for _, pair := range keys {
		res.Checked++
		var quote Quote
		missing := make([]Method, 0, len(pairs[pair]))
		for _, method := range sortedMethods(pairs[pair]) {
			rate, err := converter.Rate(ctx, pair[:3], pair[3:], asOf, method)
			var missingErr *MissingRateError
			if errors.As(err, &missingErr) {
				missing = append(missing, method)
				continue
			}
			if err != nil {
				return Result{}, err
			}
			value := rate.Apply(decimal.NewFromInt(1))
			switch method {
			case MethodAverage:
				quote.Average = value
			case MethodSpot:
				quote.Spot = value
			}
		}
		if len(missing) < len(pairs[pair]) {
			res.Available[pair] = quote
		}
		if len(missing) > 0 {
			res.Gaps = append(res.Gaps, Gap{Pair: pair, Methods: missing})
		}
	}
	return res, nil
}

func sortedMethods(methods map[Method]struct{}) []Method {
	out := make([]Method, 0, len(methods))
	for method := range methods {
		out = append(out, method)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i]) < string(out[j]) })
	return out
}
