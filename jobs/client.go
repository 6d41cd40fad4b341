package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/account-consolidation/internal/consol"
)

// Client submits consolidation runs to the queue.
type Client struct {
	client *asynq.Client
	queue  string
}

// NewClient constructs an Asynq client bound to queue.
func NewClient(redisOpts asynq.RedisClientOpt, queue string) (*Client, error) {
	if queue == "" {
		queue = QueueDefault
	}
	return &Client{client: asynq.NewClient(redisOpts), queue: queue}, nil
}

// EnqueueConsolidateRun enqueues a consolidation run task.
func (c *Client) EnqueueConsolidateRun(ctx context.Context, payload ConsolidateRunPayload) (*asynq.TaskInfo, error) {
	if payload.HoldingID <= 0 {
		return nil, errors.New("jobs: holding id must be positive")
	}
	task, err := NewConsolidateRunTask(payload, c.queue)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueRun enqueues params and reports the task id and queue.
func (c *Client) EnqueueRun(ctx context.Context, params consol.RunParams) (string, string, error) {
	info, err := c.EnqueueConsolidateRun(ctx, PayloadFromParams(params))
	if err != nil {
		return "", "", err
	}
	return info.ID, info.Queue, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
