package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/jobs"
)

// Exit codes shared by the consolidation commands.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitDefects = 10
)

// ConsolService is the part of the consolidation service driven from the command line.
type ConsolService interface {
	CheckMapping(ctx context.Context, params consol.CheckParams) (consol.MappingReport, error)
	Run(ctx context.Context, params consol.RunParams) (consol.RunResult, error)
	Currencies(ctx context.Context, params consol.CheckParams) (string, []string, error)
}

// RunEnqueuer queues runs for the background worker.
type RunEnqueuer interface {
	EnqueueRun(ctx context.Context, params consol.RunParams) (string, string, error)
}

// ConsolOpsCLI exposes mapping checks and consolidation runs.
type ConsolOpsCLI struct {
	service  ConsolService
	enqueuer RunEnqueuer
	clock    func() time.Time
}

// NewConsolOpsCLI constructs the helper. The enqueuer is optional.
func NewConsolOpsCLI(service ConsolService, enqueuer RunEnqueuer) (*ConsolOpsCLI, error) {
	if service == nil {
		return nil, errors.New("consol cli: service required")
	}
	return &ConsolOpsCLI{
		service:  service,
		enqueuer: enqueuer,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// CheckOptions configures the check command.
type CheckOptions struct {
	HoldingID     int64
	SubsidiaryIDs []int64
	JSONOutput    bool
	Stdout        io.Writer
	Stderr        io.Writer
}

// CheckSummary is the JSON output of the check command.
type CheckSummary struct {
	OK           bool                 `json:"ok"`
	Message      string               `json:"message"`
	Subsidiaries []CheckSubsidiaryRow `json:"subsidiaries"`
}

// CheckSubsidiaryRow lists the defective accounts of one subsidiary.
type CheckSubsidiaryRow struct {
	CompanyID int64             `json:"company_id"`
	Name      string            `json:"name"`
	Accounts  []CheckAccountRow `json:"accounts"`
}

// CheckAccountRow lists the defects of one account.
type CheckAccountRow struct {
	AccountID int64    `json:"account_id"`
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Defects   []string `json:"defects"`
}

// CheckCommand prints the mapping report. It exits with ExitDefects when any account is defective.
func (c *ConsolOpsCLI) CheckCommand(ctx context.Context, opts CheckOptions) int {
	opts.Stdout, opts.Stderr = defaultWriters(opts.Stdout, opts.Stderr)
	if opts.HoldingID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "consol check: --holding is required and must be positive")
		return ExitFailure
	}
	report, err := c.service.CheckMapping(ctx, consol.CheckParams{HoldingID: opts.HoldingID, SubsidiaryIDs: opts.SubsidiaryIDs})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consol check: %v\n", err)
		return ExitFailure
	}
	if err := writeReport(opts.Stdout, report, opts.JSONOutput); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consol check: %v\n", err)
		return ExitFailure
	}
	if !report.OK() {
		return ExitDefects
	}
	return ExitOK
}

func writeReport(out io.Writer, report consol.MappingReport, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprintln(out, strings.TrimRight(report.Render(), "\n"))
		return err
	}
	summary := CheckSummary{OK: report.OK(), Subsidiaries: make([]CheckSubsidiaryRow, 0, len(report.Subsidiaries))}
	summary.Message = strings.SplitN(report.Render(), "\n", 2)[0]
	for _, sub := range report.Subsidiaries {
		row := CheckSubsidiaryRow{CompanyID: sub.Company.ID, Name: sub.Company.Name}
		for _, acc := range sub.Accounts {
			row.Accounts = append(row.Accounts, CheckAccountRow{
				AccountID: acc.Account.ID,
				Code:      acc.Account.Code,
				Name:      acc.Account.Name,
				Defects:   acc.Defects,
			})
		}
		summary.Subsidiaries = append(summary.Subsidiaries, row)
	}
	return json.NewEncoder(out).Encode(summary)
}

// RunOptions configures the run command. Empty dates select the previous calendar month.
type RunOptions struct {
	HoldingID     int64
	SubsidiaryIDs []int64
	From          string
	To            string
	TargetMove    string
	JournalID     int64
	Async         bool
	JSONOutput    bool
	Stdout        io.Writer
	Stderr        io.Writer
}

// RunSummary is the JSON output of a synchronous run.
type RunSummary struct {
	RunID string       `json:"run_id"`
	Moves []MoveRecord `json:"moves"`
}

// MoveRecord describes a generated move.
type MoveRecord struct {
	ID           int64        `json:"id"`
	SubsidiaryID int64        `json:"subsidiary_id"`
	Date         string       `json:"date"`
	Ref          string       `json:"ref"`
	Lines        []LineRecord `json:"lines"`
}

// LineRecord describes a generated line.
type LineRecord struct {
	AccountID      int64  `json:"account_id"`
	Name           string `json:"name"`
	Debit          string `json:"debit"`
	Credit         string `json:"credit"`
	Currency       string `json:"currency,omitempty"`
	AmountCurrency string `json:"amount_currency,omitempty"`
}

// RunCommand runs a consolidation, or enqueues it with Async. A defective mapping exits with
// ExitDefects after printing the report.
func (c *ConsolOpsCLI) RunCommand(ctx context.Context, opts RunOptions) int {
	opts.Stdout, opts.Stderr = defaultWriters(opts.Stdout, opts.Stderr)
	params, err := c.runParams(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consol run: %v\n", err)
		return ExitFailure
	}
	if opts.Async {
		if c.enqueuer == nil {
			_, _ = fmt.Fprintln(opts.Stderr, "consol run: background queue not configured")
			return ExitFailure
		}
		taskID, queue, err := c.enqueuer.EnqueueRun(ctx, params)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "consol run: enqueue: %v\n", err)
			return ExitFailure
		}
		_, _ = fmt.Fprintf(opts.Stdout, "Enqueued run for holding %d (%s) as task %s on queue %s\n", params.HoldingID, params.Period(), taskID, queue)
		return ExitOK
	}
	res, err := c.service.Run(ctx, params)
	if err != nil {
		var mappingErr *consol.MappingError
		if errors.As(err, &mappingErr) {
			if werr := writeReport(opts.Stdout, mappingErr.Report, opts.JSONOutput); werr != nil {
				_, _ = fmt.Fprintf(opts.Stderr, "consol run: %v\n", werr)
			}
			return ExitDefects
		}
		_, _ = fmt.Fprintf(opts.Stderr, "consol run: %v\n", err)
		return ExitFailure
	}
	if err := writeRun(opts.Stdout, res, opts.JSONOutput); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consol run: %v\n", err)
		return ExitFailure
	}
	return ExitOK
}

func (c *ConsolOpsCLI) runParams(opts RunOptions) (consol.RunParams, error) {
	params := consol.RunParams{
		HoldingID:     opts.HoldingID,
		SubsidiaryIDs: opts.SubsidiaryIDs,
		TargetMove:    consol.TargetMove(strings.ToLower(strings.TrimSpace(opts.TargetMove))),
		JournalID:     opts.JournalID,
	}
	if params.HoldingID <= 0 {
		return params, errors.New("--holding is required and must be positive")
	}
	from, to := strings.TrimSpace(opts.From), strings.TrimSpace(opts.To)
	switch {
	case from == "" && to == "":
		params.DateFrom, params.DateTo = jobs.PreviousMonth(c.clock())
	case from == "" || to == "":
		return params, errors.New("--from and --to must be given together")
	default:
		var err error
		if params.DateFrom, err = time.Parse("2006-01-02", from); err != nil {
			return params, fmt.Errorf("invalid --from %q (expected YYYY-MM-DD)", opts.From)
		}
		if params.DateTo, err = time.Parse("2006-01-02", to); err != nil {
			return params, fmt.Errorf("invalid --to %q (expected YYYY-MM-DD)", opts.To)
		}
	}
	return params, nil
}

func writeRun(out io.Writer, res consol.RunResult, asJSON bool) error {
	summary := RunSummary{RunID: res.RunID.String(), Moves: make([]MoveRecord, 0, len(res.Moves))}
	for _, move := range res.Moves {
		record := MoveRecord{ID: move.ID, Date: move.Date.Format("2006-01-02"), Ref: move.Ref}
		if move.ConsolidatedFromCompanyID != nil {
			record.SubsidiaryID = *move.ConsolidatedFromCompanyID
		}
		for _, line := range move.Lines {
			lr := LineRecord{
				AccountID: line.AccountID,
				Name:      line.Name,
				Debit:     line.Debit.StringFixed(2),
				Credit:    line.Credit.StringFixed(2),
				Currency:  line.Currency,
			}
			if line.Currency != "" {
				lr.AmountCurrency = line.AmountCurrency.StringFixed(2)
			}
			record.Lines = append(record.Lines, lr)
		}
		summary.Moves = append(summary.Moves, record)
	}
	if asJSON {
		return json.NewEncoder(out).Encode(summary)
	}
	_, _ = fmt.Fprintf(out, "Run %s created %d move(s)\n", summary.RunID, len(summary.Moves))
	for _, move := range summary.Moves {
		_, _ = fmt.Fprintf(out, "\nMove %d from company %d on %s\n", move.ID, move.SubsidiaryID, move.Date)
		for _, line := range move.Lines {
			_, _ = fmt.Fprintf(out, "  %-60s %12s %12s\n", line.Name, line.Debit, line.Credit)
		}
	}
	return nil
}

func defaultWriters(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
