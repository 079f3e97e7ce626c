package task

import (
	"context"

	"github.com/hibiken/asynq"
)

// Enqueuer is the subset of *asynq.Client the services depend on.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func NewEnqueuer(client *asynq.Client) Enqueuer {
	return client
}
