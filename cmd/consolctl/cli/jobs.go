package cli

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
	"github.com/odyssey-erp/account-consolidation/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
	queue     string
}

// NewJobsCLI initialises the CLI helpers against the queue's Redis instance.
func NewJobsCLI(opts asynq.RedisClientOpt, queue string) (*JobsCLI, error) {
	if queue == "" {
		queue = jobs.QueueDefault
	}
	client, err := jobs.NewClient(opts, queue)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts), queue: queue}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// EnqueueRun queues a consolidation run for the worker.
func (c *JobsCLI) EnqueueRun(ctx context.Context, params consol.RunParams) (string, string, error) {
	if c == nil || c.client == nil {
		return "", "", errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueRun(ctx, params)
}

// InspectQueue reports the counters of the consolidation queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.InspectQueue(c.inspector, c.queue)
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(c.queue, asynq.PageSize(size), asynq.Page(1))
}
