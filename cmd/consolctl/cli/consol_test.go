package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/internal/consol/fx"
	"github.com/odyssey-erp/account-consolidation/internal/consol/memstore"
)

type recordingEnqueuer struct {
	params []consol.RunParams
}

func (r *recordingEnqueuer) EnqueueRun(_ context.Context, params consol.RunParams) (string, string, error) {
	r.params = append(r.params, params)
	return "task-1", "consol", nil
}

func newReferenceConsol(t *testing.T, enqueuer RunEnqueuer) (*ConsolOpsCLI, *memstore.Store, memstore.Scenario) {
	t.Helper()
	store, sc := memstore.Reference()
	svc := consol.NewService(store, fx.NewConverter(store), slog.New(slog.NewTextHandler(io.Discard, nil)))
	cli, err := NewConsolOpsCLI(svc, enqueuer)
	require.NoError(t, err)
	return cli, store, sc
}

func TestCheckCommandOK(t *testing.T) {
	cli, _, sc := newReferenceConsol(t, nil)

	stdout := new(bytes.Buffer)
	exitCode := cli.CheckCommand(context.Background(), CheckOptions{HoldingID: sc.Holding.ID, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitOK, exitCode)
	require.Equal(t, "Checks ok !\n", stdout.String())
}

func TestCheckCommandDefects(t *testing.T) {
	cli, store, sc := newReferenceConsol(t, nil)
	exp1 := sc.Account(sc.SubA.ID, "exp1")
	exp1.ConsolidationAccountID = nil
	store.AddAccount(exp1)

	stdout := new(bytes.Buffer)
	exitCode := cli.CheckCommand(context.Background(), CheckOptions{HoldingID: sc.Holding.ID, JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitDefects, exitCode)

	var summary CheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.OK)
	require.Equal(t, "Invalid account mapping", summary.Message)
	require.Len(t, summary.Subsidiaries, 1)
	require.Equal(t, sc.SubA.ID, summary.Subsidiaries[0].CompanyID)
	require.Equal(t, []string{"No consolidation account defined for this account"}, summary.Subsidiaries[0].Accounts[0].Defects)
}

func TestRunCommandPostedJanuary(t *testing.T) {
	cli, store, sc := newReferenceConsol(t, nil)
	before := len(store.Moves())

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.RunCommand(context.Background(), RunOptions{
		HoldingID:  sc.Holding.ID,
		From:       "2018-01-01",
		To:         "2018-01-31",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Equal(t, ExitOK, exitCode, stderr.String())

	var summary RunSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Len(t, summary.Moves, 1)
	require.Equal(t, sc.SubB.ID, summary.Moves[0].SubsidiaryID)
	require.Equal(t, "2018-01-31", summary.Moves[0].Date)
	require.Equal(t, "Consolidation", summary.Moves[0].Ref)
	require.Len(t, store.Moves(), before+1)
}

func TestRunCommandMappingDefects(t *testing.T) {
	cli, store, sc := newReferenceConsol(t, nil)
	exp1 := sc.Account(sc.SubA.ID, "exp1")
	exp1.ConsolidationAccountID = nil
	store.AddAccount(exp1)

	stdout := new(bytes.Buffer)
	exitCode := cli.RunCommand(context.Background(), RunOptions{
		HoldingID:  sc.Holding.ID,
		From:       "2018-01-01",
		To:         "2018-01-31",
		TargetMove: "all",
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Equal(t, ExitDefects, exitCode)
	require.Contains(t, stdout.String(), "Invalid account mapping")
	require.Contains(t, stdout.String(), "Subsidiary A")
}

func TestRunCommandRejectsHalfRange(t *testing.T) {
	cli, _, sc := newReferenceConsol(t, nil)

	stderr := new(bytes.Buffer)
	exitCode := cli.RunCommand(context.Background(), RunOptions{HoldingID: sc.Holding.ID, From: "2018-01-01", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, ExitFailure, exitCode)
	require.Contains(t, stderr.String(), "--from and --to")
}

func TestRunCommandAsyncDefaultsToPreviousMonth(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	cli, _, sc := newReferenceConsol(t, enqueuer)
	cli.clock = func() time.Time { return time.Date(2018, 3, 5, 0, 0, 0, 0, time.UTC) }

	stdout := new(bytes.Buffer)
	exitCode := cli.RunCommand(context.Background(), RunOptions{HoldingID: sc.Holding.ID, Async: true, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, ExitOK, exitCode)
	require.Len(t, enqueuer.params, 1)
	require.Equal(t, "2018-02-01 - 2018-02-28", enqueuer.params[0].Period())
	require.Contains(t, stdout.String(), "task-1")
}

func TestRunCommandAsyncWithoutQueue(t *testing.T) {
	cli, _, sc := newReferenceConsol(t, nil)

	stderr := new(bytes.Buffer)
	exitCode := cli.RunCommand(context.Background(), RunOptions{HoldingID: sc.Holding.ID, Async: true, Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, ExitFailure, exitCode)
	require.Contains(t, stderr.String(), "not configured")
}
