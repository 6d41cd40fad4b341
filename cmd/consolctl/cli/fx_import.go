package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
)

// FXImportMode enumerates supported execution strategies.
type FXImportMode string

const (
	// FXImportModeDry previews gaps and source rows without applying changes.
	FXImportModeDry FXImportMode = "dry"
	// FXImportModeApply persists rates after confirmation.
	FXImportModeApply FXImportMode = "apply"
)

// FXImportOptions configures the import command execution.
type FXImportOptions struct {
	Pair         string
	From         string
	To           string
	Mode         FXImportMode
	Source       string
	SourceReader io.Reader
	JSONOutput   bool
	Yes          bool
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
	Confirm      func(io.Reader, io.Writer) (bool, error)
}

// FXImportSummary captures the structured reporting outcome.
type FXImportSummary struct {
	Pair       string              `json:"pair"`
	Mode       FXImportMode        `json:"mode"`
	From       string              `json:"from"`
	To         string              `json:"to"`
	Missing    []FXImportGap       `json:"missing"`
	Candidates []FXImportCandidate `json:"candidates"`
	Applied    []FXImportCandidate `json:"applied,omitempty"`
}

// FXImportGap describes the methods missing at the end of a month.
type FXImportGap struct {
	Period  string   `json:"period"`
	Missing []string `json:"missing_methods"`
}

// FXImportCandidate is a rate read from the CSV source.
type FXImportCandidate struct {
	Date    string          `json:"date"`
	Average decimal.Decimal `json:"average"`
	Spot    decimal.Decimal `json:"spot"`
}

// ImportCommand checks the months between From and To for missing quotes of Pair and imports rates
// from a CSV source with columns date, pair, average and spot. Dry mode exits with ExitDefects while
// gaps remain.
func (c *FXOpsCLI) ImportCommand(ctx context.Context, opts FXImportOptions) int {
	opts.Stdout, opts.Stderr = defaultWriters(opts.Stdout, opts.Stderr)
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = FXImportModeDry
	}
	mode := FXImportMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case FXImportModeDry, FXImportModeApply:
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return ExitFailure
	}
	pair := strings.ToUpper(strings.TrimSpace(opts.Pair))
	if len(pair) != 6 {
		_, _ = fmt.Fprintln(opts.Stderr, "fx import: --pair is required (e.g. USDCHF)")
		return ExitFailure
	}
	from, err := time.Parse("2006-01", strings.TrimSpace(opts.From))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: invalid --from %q (expected YYYY-MM)\n", opts.From)
		return ExitFailure
	}
	to, err := time.Parse("2006-01", strings.TrimSpace(opts.To))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: invalid --to %q (expected YYYY-MM)\n", opts.To)
		return ExitFailure
	}
	if from.After(to) {
		_, _ = fmt.Fprintln(opts.Stderr, "fx import: --from must be earlier than --to")
		return ExitFailure
	}
	periods := enumeratePeriods(from, to)
	gaps, err := c.findGaps(ctx, pair, periods)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
		return ExitFailure
	}
	candidates, err := loadImportCandidates(pair, opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
		return ExitFailure
	}
	summary := FXImportSummary{
		Pair:       pair,
		Mode:       mode,
		From:       from.Format("2006-01"),
		To:         to.Format("2006-01"),
		Missing:    gaps,
		Candidates: inRange(candidates, from, to),
	}
	if mode == FXImportModeDry {
		if err := writeImportOutput(opts, summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
			return ExitFailure
		}
		if len(gaps) > 0 {
			return ExitDefects
		}
		return ExitOK
	}
	rows, err := prepareUpserts(pair, summary.Candidates, gaps)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
		return ExitFailure
	}
	if len(rows) == 0 {
		if err := writeImportOutput(opts, summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
			return ExitFailure
		}
		return ExitOK
	}
	if !opts.Yes {
		confirm := opts.Confirm
		if confirm == nil {
			confirm = defaultImportConfirm
		}
		ok, err := confirm(opts.Stdin, opts.Stdout)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx import: confirmation failed: %v\n", err)
			return ExitFailure
		}
		if !ok {
			_, _ = fmt.Fprintln(opts.Stderr, "fx import: cancelled by user")
			return ExitFailure
		}
	}
	if err := c.repo.UpsertFxRates(ctx, rows); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: apply failed: %v\n", err)
		return ExitFailure
	}
	if c.cache != nil {
		if err := c.cache.Flush(ctx); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx import: flush quote cache: %v\n", err)
		}
	}
	summary.Applied = summary.Candidates
	if err := writeImportOutput(opts, summary); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
		return ExitFailure
	}
	return ExitOK
}

func (c *FXOpsCLI) findGaps(ctx context.Context, pair string, periods []time.Time) ([]FXImportGap, error) {
	gaps := make([]FXImportGap, 0)
	for _, period := range periods {
		res, err := fx.Validate(ctx, c.quotes, monthEnd(period), []fx.Requirement{{Pair: pair, Methods: []fx.Method{fx.MethodAverage, fx.MethodSpot}}})
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", period.Format("2006-01"), err)
		}
		for _, gap := range res.Gaps {
			missing := make([]string, len(gap.Methods))
			for i, method := range gap.Methods {
				missing[i] = string(method)
			}
			sort.Strings(missing)
			gaps = append(gaps, FXImportGap{Period: period.Format("2006-01"), Missing: missing})
		}
	}
	return gaps, nil
}

func enumeratePeriods(from, to time.Time) []time.Time {
	start := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	var periods []time.Time
	for current := start; !current.After(end); current = current.AddDate(0, 1, 0) {
		periods = append(periods, current)
	}
	return periods
}

func monthEnd(period time.Time) time.Time {
	return time.Date(period.Year(), period.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
}

func loadImportCandidates(pair string, opts FXImportOptions) (map[string]FXImportCandidate, error) {
	var data []byte
	var err error
	switch {
	case opts.SourceReader != nil:
		data, err = io.ReadAll(opts.SourceReader)
	case opts.Source == "-":
		data, err = io.ReadAll(opts.Stdin)
	case strings.TrimSpace(opts.Source) == "":
		return map[string]FXImportCandidate{}, nil
	default:
		data, err = os.ReadFile(opts.Source)
	}
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return map[string]FXImportCandidate{}, nil
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	header, err := nextNonEmptyRecord(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]FXImportCandidate{}, nil
		}
		return nil, err
	}
	indexes := map[string]int{"date": -1, "pair": -1, "average": -1, "spot": -1}
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "date", "as_of", "as_of_date":
			indexes["date"] = i
		case "pair":
			indexes["pair"] = i
		case "average", "average_rate":
			indexes["average"] = i
		case "spot", "spot_rate", "closing":
			indexes["spot"] = i
		}
	}
	for _, idx := range indexes {
		if idx < 0 {
			return nil, errors.New("missing required columns in source (need date, pair, average, spot)")
		}
	}
	result := make(map[string]FXImportCandidate)
	for {
		record, err := nextNonEmptyRecord(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		for _, idx := range indexes {
			if idx >= len(record) {
				return nil, errors.New("invalid record length in source")
			}
		}
		if strings.ToUpper(strings.TrimSpace(record[indexes["pair"]])) != pair {
			continue
		}
		raw := strings.TrimSpace(record[indexes["date"]])
		asOf, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q in source", raw)
		}
		key := asOf.Format("2006-01-02")
		avg, err := decimal.NewFromString(strings.TrimSpace(record[indexes["average"]]))
		if err != nil {
			return nil, fmt.Errorf("invalid average for %s: %v", key, err)
		}
		spot, err := decimal.NewFromString(strings.TrimSpace(record[indexes["spot"]]))
		if err != nil {
			return nil, fmt.Errorf("invalid spot for %s: %v", key, err)
		}
		result[key] = FXImportCandidate{Date: key, Average: avg, Spot: spot}
	}
	return result, nil
}

func nextNonEmptyRecord(r *csv.Reader) ([]string, error) {
	for {
		record, err := r.Read()
		if err != nil {
			return nil, err
		}
		skip := true
		for _, field := range record {
			trimmed := strings.TrimSpace(field)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			skip = false
		}
		if skip {
			continue
		}
		return record, nil
	}
}

func inRange(candidates map[string]FXImportCandidate, from, to time.Time) []FXImportCandidate {
	first := from.Format("2006-01")
	last := to.Format("2006-01")
	rows := make([]FXImportCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		month := candidate.Date[:7]
		if month < first || month > last {
			continue
		}
		rows = append(rows, candidate)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows
}

// prepareUpserts converts the candidates into rows and fails when a month with a gap has no source
// rate to fill it.
func prepareUpserts(pair string, candidates []FXImportCandidate, gaps []FXImportGap) ([]consol.FxRateInput, error) {
	months := make(map[string]struct{}, len(candidates))
	rows := make([]consol.FxRateInput, 0, len(candidates))
	for _, candidate := range candidates {
		if !candidate.Average.IsPositive() || !candidate.Spot.IsPositive() {
			return nil, fmt.Errorf("non-positive rates for %s", candidate.Date)
		}
		asOf, err := time.Parse("2006-01-02", candidate.Date)
		if err != nil {
			return nil, err
		}
		months[candidate.Date[:7]] = struct{}{}
		rows = append(rows, consol.FxRateInput{
			AsOf:    asOf,
			Pair:    pair,
			Average: candidate.Average,
			Spot:    candidate.Spot,
		})
	}
	for _, gap := range gaps {
		if _, ok := months[gap.Period]; !ok {
			return nil, fmt.Errorf("missing source rates for %s", gap.Period)
		}
	}
	return rows, nil
}

func writeImportOutput(opts FXImportOptions, summary FXImportSummary) error {
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(summary)
	}
	renderImportHuman(opts.Stdout, summary)
	return nil
}

func renderImportHuman(out io.Writer, summary FXImportSummary) {
	_, _ = fmt.Fprintf(out, "FX import (%s) for %s from %s to %s\n", summary.Mode, summary.Pair, summary.From, summary.To)
	if len(summary.Missing) == 0 {
		_, _ = fmt.Fprintln(out, "No gaps detected.")
	} else {
		_, _ = fmt.Fprintf(out, "%d gap(s) detected:\n", len(summary.Missing))
		for _, gap := range summary.Missing {
			_, _ = fmt.Fprintf(out, " - %s missing %s\n", gap.Period, strings.Join(gap.Missing, ", "))
		}
	}
	if len(summary.Candidates) > 0 {
		_, _ = fmt.Fprintln(out, "Source rates:")
		for _, candidate := range summary.Candidates {
			_, _ = fmt.Fprintf(out, " - %s average %s spot %s\n", candidate.Date, candidate.Average, candidate.Spot)
		}
	}
	if len(summary.Applied) > 0 {
		_, _ = fmt.Fprintf(out, "Applied %d rate(s).\n", len(summary.Applied))
	}
}

func defaultImportConfirm(r io.Reader, w io.Writer) (bool, error) {
	_, _ = fmt.Fprint(w, "Apply FX import? Type YES to confirm: ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "YES"), nil
}
