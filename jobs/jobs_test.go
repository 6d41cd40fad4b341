package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
	jobmetrics "github.com/odyssey-erp/account-consolidation/internal/jobs"
)

type fakeRunner struct {
	params []consol.RunParams
	result consol.RunResult
	err    error
}

func (f *fakeRunner) Run(_ context.Context, params consol.RunParams) (consol.RunResult, error) {
	f.params = append(f.params, params)
	return f.result, f.err
}

func TestPreviousMonth(t *testing.T) {
	from, to := PreviousMonth(time.Date(2018, 3, 15, 10, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2018, 2, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2018, 2, 28, 0, 0, 0, 0, time.UTC), to)

	from, to = PreviousMonth(time.Date(2019, 1, 2, 0, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2018, 12, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2018, 12, 31, 0, 0, 0, 0, time.UTC), to)
}

func TestPayloadParams(t *testing.T) {
	now := time.Date(2018, 2, 10, 0, 0, 0, 0, time.UTC)

	params, err := ConsolidateRunPayload{HoldingID: 1}.Params(now)
	require.NoError(t, err)
	require.Equal(t, consol.TargetMovePosted, params.TargetMove)
	require.Equal(t, "2018-01-01 - 2018-01-31", params.Period())

	params, err = ConsolidateRunPayload{HoldingID: 1, DateFrom: "2018-02-01", DateTo: "2018-02-28", TargetMove: "all"}.Params(now)
	require.NoError(t, err)
	require.Equal(t, consol.TargetMoveAll, params.TargetMove)
	require.Equal(t, "2018-02-01 - 2018-02-28", params.Period())

	_, err = ConsolidateRunPayload{}.Params(now)
	require.Error(t, err)
	_, err = ConsolidateRunPayload{HoldingID: 1, TargetMove: "draft"}.Params(now)
	require.Error(t, err)
	_, err = ConsolidateRunPayload{HoldingID: 1, DateFrom: "2018-02-01"}.Params(now)
	require.Error(t, err)
}

func TestPayloadFromParamsRoundTrip(t *testing.T) {
	in := consol.RunParams{
		HoldingID:     3,
		SubsidiaryIDs: []int64{4, 5},
		DateFrom:      time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:        time.Date(2018, 1, 31, 0, 0, 0, 0, time.UTC),
		TargetMove:    consol.TargetMoveAll,
		JournalID:     9,
	}
	out, err := PayloadFromParams(in).Params(time.Now())
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestNewConsolidateRunTask(t *testing.T) {
	task, err := NewConsolidateRunTask(ConsolidateRunPayload{HoldingID: 7}, "")
	require.NoError(t, err)
	require.Equal(t, TaskConsolidateRun, task.Type())

	var payload ConsolidateRunPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(7), payload.HoldingID)
}

func TestCronForHoldings(t *testing.T) {
	regs, err := CronForHoldings("", []int64{1}, "")
	require.NoError(t, err)
	require.Empty(t, regs)

	regs, err = CronForHoldings("0 2 1 * *", []int64{1, 2}, "consol")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	for i, reg := range regs {
		require.Equal(t, "0 2 1 * *", reg.Spec)
		var payload ConsolidateRunPayload
		require.NoError(t, json.Unmarshal(reg.Task.Payload(), &payload))
		require.Equal(t, int64(i+1), payload.HoldingID)
		require.Empty(t, payload.DateFrom)
	}
}

func newTestJob(runner ConsolidationRunner) *ConsolidateRunJob {
	job := NewConsolidateRunJob(runner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.WithClock(func() time.Time { return time.Date(2018, 2, 10, 0, 0, 0, 0, time.UTC) })
	return job
}

func TestConsolidateRunJobHandle(t *testing.T) {
	runner := &fakeRunner{result: consol.RunResult{RunID: uuid.New(), Moves: []consol.Move{{ID: 1}, {ID: 2}}}}
	job := newTestJob(runner)

	task, err := NewConsolidateRunTask(ConsolidateRunPayload{HoldingID: 1}, "")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, runner.params, 1)
	require.Equal(t, int64(1), runner.params[0].HoldingID)
	require.Equal(t, "2018-01-01 - 2018-01-31", runner.params[0].Period())
}

func TestConsolidateRunJobSkipsRetry(t *testing.T) {
	runner := &fakeRunner{err: consol.ErrConfiguration}
	job := newTestJob(runner)

	task, err := NewConsolidateRunTask(ConsolidateRunPayload{HoldingID: 1}, "")
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))

	err = job.Handle(context.Background(), asynq.NewTask(TaskConsolidateRun, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	err = (&ConsolidateRunJob{}).Handle(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}
