package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
	"github.com/odyssey-erp/account-consolidation/internal/consol/memstore"
)

func newReferenceFX(t *testing.T) (*FXOpsCLI, memstore.Scenario) {
	t.Helper()
	store, sc := memstore.Reference()
	svc := consol.NewService(store, fx.NewConverter(store), slog.New(slog.NewTextHandler(io.Discard, nil)))
	cli, err := NewFXOpsCLI(store, WithCurrencySource(svc))
	require.NoError(t, err)
	return cli, sc
}

func TestValidateCommandJSONSuccess(t *testing.T) {
	cli, sc := newReferenceFX(t)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.ValidateCommand(context.Background(), FXValidateOptions{
		HoldingID:  sc.Holding.ID,
		Date:       "2018-01-31",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, ExitOK, exitCode)
	require.Empty(t, stderr.String())

	var summary FXValidateSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Empty(t, summary.Gaps)
	require.Len(t, summary.AvailableQuotes, 2)
	require.Equal(t, "CHFUSD", summary.AvailableQuotes[0].Pair)
}

func TestValidateCommandJSONGaps(t *testing.T) {
	cli, _ := newReferenceFX(t)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.ValidateCommand(context.Background(), FXValidateOptions{
		Pairs:      []string{"eurusd"},
		Date:       "2018-01-31",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, ExitDefects, exitCode)
	require.Empty(t, stderr.String())

	var summary FXValidateSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Len(t, summary.Gaps, 2)
	require.Equal(t, "EURUSD", summary.Gaps[0].Pair)
}

func TestValidateCommandBeforeFirstQuote(t *testing.T) {
	cli, sc := newReferenceFX(t)

	stdout := new(bytes.Buffer)
	exitCode := cli.ValidateCommand(context.Background(), FXValidateOptions{
		HoldingID: sc.Holding.ID,
		Date:      "2017-12-31",
		Stdout:    stdout,
		Stderr:    new(bytes.Buffer),
	})
	require.Equal(t, ExitDefects, exitCode)
	require.Contains(t, stdout.String(), "CHFUSD missing AVERAGE, SPOT")
}

func TestValidateCommandInvalidDate(t *testing.T) {
	cli, sc := newReferenceFX(t)

	stderr := new(bytes.Buffer)
	exitCode := cli.ValidateCommand(context.Background(), FXValidateOptions{
		HoldingID: sc.Holding.ID,
		Date:      "201801",
		Stdout:    new(bytes.Buffer),
		Stderr:    stderr,
	})
	require.Equal(t, ExitFailure, exitCode)
	require.Contains(t, stderr.String(), "invalid date")
}

const importCSV = `date,pair,average,spot
# January
2018-01-15,USDEUR,0.83,0.84
2018-02-15,USDEUR,0.81,0.80
2018-02-15,USDGBP,0.72,0.71
`

func TestImportCommandDryReportsGaps(t *testing.T) {
	cli, err := NewFXOpsCLI(memstore.New())
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	exitCode := cli.ImportCommand(context.Background(), FXImportOptions{
		Pair:         "USDEUR",
		From:         "2018-01",
		To:           "2018-02",
		SourceReader: strings.NewReader(importCSV),
		JSONOutput:   true,
		Stdout:       stdout,
		Stderr:       new(bytes.Buffer),
	})
	require.Equal(t, ExitDefects, exitCode)

	var summary FXImportSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Len(t, summary.Missing, 2)
	require.Len(t, summary.Candidates, 2)
	require.Empty(t, summary.Applied)
}

func TestImportCommandApply(t *testing.T) {
	store := memstore.New()
	cli, err := NewFXOpsCLI(store)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.ImportCommand(context.Background(), FXImportOptions{
		Pair:         "usdeur",
		From:         "2018-01",
		To:           "2018-02",
		Mode:         FXImportModeApply,
		SourceReader: strings.NewReader(importCSV),
		Yes:          true,
		Stdout:       stdout,
		Stderr:       stderr,
	})
	require.Equal(t, ExitOK, exitCode, stderr.String())
	require.Contains(t, stdout.String(), "Applied 2 rate(s).")

	quote, found, err := store.QuoteForDate(context.Background(), time.Date(2018, 2, 28, 0, 0, 0, 0, time.UTC), "USDEUR")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "0.81", quote.Average.String())
	require.Equal(t, "0.8", quote.Spot.String())
}

func TestImportCommandApplyRequiresEveryGapMonth(t *testing.T) {
	store := memstore.New()
	cli, err := NewFXOpsCLI(store)
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	exitCode := cli.ImportCommand(context.Background(), FXImportOptions{
		Pair:         "USDEUR",
		From:         "2018-01",
		To:           "2018-03",
		Mode:         FXImportModeApply,
		SourceReader: strings.NewReader(importCSV),
		Yes:          true,
		Stdout:       new(bytes.Buffer),
		Stderr:       stderr,
	})
	require.Equal(t, ExitFailure, exitCode)
	require.Contains(t, stderr.String(), "missing source rates for 2018-03")

	_, found, err := store.QuoteForDate(context.Background(), time.Date(2018, 1, 31, 0, 0, 0, 0, time.UTC), "USDEUR")
	require.NoError(t, err)
	require.False(t, found)
}

func TestImportCommandCancelled(t *testing.T) {
	cli, err := NewFXOpsCLI(memstore.New())
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	exitCode := cli.ImportCommand(context.Background(), FXImportOptions{
		Pair:         "USDEUR",
		From:         "2018-01",
		To:           "2018-02",
		Mode:         FXImportModeApply,
		SourceReader: strings.NewReader(importCSV),
		Stdin:        strings.NewReader("no\n"),
		Stdout:       new(bytes.Buffer),
		Stderr:       stderr,
	})
	require.Equal(t, ExitFailure, exitCode)
	require.Contains(t, stderr.String(), "cancelled")
}
