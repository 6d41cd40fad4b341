package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
	jobmetrics "github.com/odyssey-erp/account-consolidation/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ConsolidationRunner runs a consolidation.
type ConsolidationRunner interface {
	Run(ctx context.Context, params consol.RunParams) (consol.RunResult, error)
}

// ConsolidateRunJob executes queued consolidation runs.
type ConsolidateRunJob struct {
	Service ConsolidationRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewConsolidateRunJob constructs the job handler.
func NewConsolidateRunJob(service ConsolidationRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolidateRunJob {
	return &ConsolidateRunJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the consolidation run. Every failure skips retries: a run that failed for a
// configuration or validation reason fails again until someone fixes the data.
func (j *ConsolidateRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return fmt.Errorf("consolidate run: dependencies not configured: %w", asynq.SkipRetry)
	}
	var payload ConsolidateRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		j.log().Error("decode payload", slog.Any("error", err))
		return fmt.Errorf("consolidate run: decode payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskConsolidateRun, payload.HoldingID)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	params, err := payload.Params(j.now())
	if err != nil {
		resultErr = err
		j.log().Error("resolve payload", slog.Int64("holding_id", payload.HoldingID), slog.Any("error", err))
		return fmt.Errorf("consolidate run: %v: %w", err, asynq.SkipRetry)
	}

	start := j.now()
	res, err := j.Service.Run(ctx, params)
	if err != nil {
		resultErr = err
		j.log().Error("consolidation run failed",
			slog.Int64("holding_id", params.HoldingID),
			slog.String("period", params.Period()),
			slog.Bool("configuration", errors.Is(err, consol.ErrConfiguration)),
			slog.Any("error", err))
		return fmt.Errorf("consolidate run: %v: %w", err, asynq.SkipRetry)
	}

	j.metrics().AddMoves(params.HoldingID, len(res.Moves))
	j.log().Info("consolidation run completed",
		slog.String("run_id", res.RunID.String()),
		slog.Int64("holding_id", params.HoldingID),
		slog.String("period", params.Period()),
		slog.Int("moves", len(res.Moves)),
		slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *ConsolidateRunJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ConsolidateRunJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskConsolidateRun))
	}
	return slog.Default().With(slog.String("job", TaskConsolidateRun))
}

func (j *ConsolidateRunJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ConsolidateRunJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
