package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
)

// FXValidateOptions defines available flags for the fx validate command.
type FXValidateOptions struct {
	HoldingID     int64
	SubsidiaryIDs []int64
	Date          string
	Pairs         []string
	JSONOutput    bool
	Stdout        io.Writer
	Stderr        io.Writer
}

// FXValidateSummary describes the JSON response for fx validate.
type FXValidateSummary struct {
	OK              bool                       `json:"ok"`
	Date            string                     `json:"date"`
	Gaps            []FXValidationGap          `json:"gaps"`
	AvailableQuotes []FXValidationAvailability `json:"available_quotes"`
}

// FXValidationGap captures a missing FX method for a pair.
type FXValidationGap struct {
	Pair   string `json:"pair"`
	Method string `json:"method"`
}

// FXValidationAvailability reports a configured FX quote.
type FXValidationAvailability struct {
	Pair   string `json:"pair"`
	Method string `json:"method"`
	Rate   string `json:"rate"`
}

// ValidateCommand executes the fx validate workflow and prints the outcome.
func (c *FXOpsCLI) ValidateCommand(ctx context.Context, opts FXValidateOptions) int {
	opts.Stdout, opts.Stderr = defaultWriters(opts.Stdout, opts.Stderr)
	if opts.HoldingID <= 0 && len(opts.Pairs) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "fx validate: --holding or --pair is required")
		return ExitFailure
	}
	asOf, err := time.Parse("2006-01-02", strings.TrimSpace(opts.Date))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx validate: invalid date %q (expected YYYY-MM-DD)\n", opts.Date)
		return ExitFailure
	}
	result, err := c.ValidateGaps(ctx, ValidateParams{
		HoldingID:     opts.HoldingID,
		SubsidiaryIDs: opts.SubsidiaryIDs,
		AsOf:          asOf,
		Pairs:         opts.Pairs,
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx validate: %v\n", err)
		return ExitFailure
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(buildValidateSummary(result)); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx validate: encode json: %v\n", err)
			return ExitFailure
		}
	} else {
		renderValidateHuman(opts.Stdout, result)
	}
	if !result.Result.OK() {
		return ExitDefects
	}
	return ExitOK
}

func buildValidateSummary(result ValidateResult) FXValidateSummary {
	gaps := make([]FXValidationGap, 0, len(result.Result.Gaps))
	for _, gap := range result.Result.Gaps {
		for _, method := range gap.Methods {
			gaps = append(gaps, FXValidationGap{Pair: gap.Pair, Method: string(method)})
		}
	}
	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].Pair == gaps[j].Pair {
			return gaps[i].Method < gaps[j].Method
		}
		return gaps[i].Pair < gaps[j].Pair
	})
	available := make([]FXValidationAvailability, 0, len(result.Result.Available)*2)
	for pair, quote := range result.Result.Available {
		for _, method := range quotedMethods(quote) {
			available = append(available, FXValidationAvailability{Pair: pair, Method: string(method), Rate: quote.Rate(method).String()})
		}
	}
	sort.Slice(available, func(i, j int) bool {
		if available[i].Pair == available[j].Pair {
			return available[i].Method < available[j].Method
		}
		return available[i].Pair < available[j].Pair
	})
	return FXValidateSummary{
		OK:              len(gaps) == 0,
		Date:            result.Result.AsOf.Format("2006-01-02"),
		Gaps:            gaps,
		AvailableQuotes: available,
	}
}

func quotedMethods(quote fx.Quote) []fx.Method {
	methods := make([]fx.Method, 0, 2)
	if quote.Average.IsPositive() {
		methods = append(methods, fx.MethodAverage)
	}
	if quote.Spot.IsPositive() {
		methods = append(methods, fx.MethodSpot)
	}
	return methods
}

func renderValidateHuman(out io.Writer, result ValidateResult) {
	date := result.Result.AsOf.Format("2006-01-02")
	if result.HoldingCurrency != "" {
		_, _ = fmt.Fprintf(out, "FX validation for holding %d (%s) on %s\n", result.HoldingID, result.HoldingCurrency, date)
	} else {
		_, _ = fmt.Fprintf(out, "FX validation on %s\n", date)
	}
	if len(result.Result.Gaps) == 0 {
		_, _ = fmt.Fprintln(out, "All required FX rates are present.")
	} else {
		_, _ = fmt.Fprintf(out, "%d gap(s) detected:\n", len(result.Result.Gaps))
		for _, gap := range result.Result.Gaps {
			missing := make([]string, len(gap.Methods))
			for i, method := range gap.Methods {
				missing[i] = string(method)
			}
			_, _ = fmt.Fprintf(out, " - %s missing %s\n", gap.Pair, strings.Join(missing, ", "))
		}
	}
	if len(result.ConsideredPairs) > 0 {
		_, _ = fmt.Fprintln(out, "Checked pairs:")
		for _, pair := range result.ConsideredPairs {
			quote, ok := result.Result.Available[pair]
			if !ok {
				_, _ = fmt.Fprintf(out, " - %s (missing)\n", pair)
				continue
			}
			methods := quotedMethods(quote)
			names := make([]string, len(methods))
			for i, method := range methods {
				names[i] = fmt.Sprintf("%s %s", method, quote.Rate(method).String())
			}
			_, _ = fmt.Fprintf(out, " - %s (%s)\n", pair, strings.Join(names, ", "))
		}
	}
	if len(result.RequestedPairNames) > 0 {
		_, _ = fmt.Fprintf(out, "Requested pairs: %s\n", strings.Join(result.RequestedPairNames, ", "))
	}
}
