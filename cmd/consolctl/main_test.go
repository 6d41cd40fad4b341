package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/account-consolidation/cmd/consolctl/cli"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd, env := newRootCommand()
	t.Cleanup(env.close)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDemoCheck(t *testing.T) {
	out, err := execute(t, "--demo", "check")
	require.NoError(t, err)
	require.Equal(t, "Checks ok !\n", out)
}

func TestDemoRunAllMoves(t *testing.T) {
	out, err := execute(t, "--demo", "run", "--from", "2018-01-01", "--to", "2018-01-31", "--target", "all", "--json")
	require.NoError(t, err)

	var summary cli.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Len(t, summary.Moves, 2)
}

func TestDemoFXValidateGapsExitCode(t *testing.T) {
	_, err := execute(t, "--demo", "fx", "validate", "--date", "2017-12-31")
	var exit exitError
	require.True(t, errors.As(err, &exit))
	require.Equal(t, cli.ExitDefects, exit.code)
}

func TestDemoQueueUnavailable(t *testing.T) {
	_, err := execute(t, "--demo", "queue", "stats")
	require.ErrorContains(t, err, "demo mode")
}
