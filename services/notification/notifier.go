package notification

import (
	"context"
	"encoding/json"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/logger"
	"medvive-settlement/pkg/task"
	"medvive-settlement/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Notifier is fire and forget. Delivery failures never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

type TaskNotifier struct {
	enqueuer task.Enqueuer
	queue    string
	maxRetry int
}

type NotifierParams struct {
	fx.In
	Enqueuer task.Enqueuer
	Config   *config.Config `optional:"true"`
}

func NewTaskNotifier(p NotifierParams) *TaskNotifier {
	n := &TaskNotifier{
		enqueuer: p.Enqueuer,
		queue:    "default",
		maxRetry: 5,
	}
	if p.Config != nil {
		if p.Config.Notification.Queue != "" {
			n.queue = p.Config.Notification.Queue
		}
		if p.Config.Notification.MaxRetry > 0 {
			n.maxRetry = p.Config.Notification.MaxRetry
		}
	}
	return n
}

func (n *TaskNotifier) Notify(ctx context.Context, msg Message) {
	log := logger.FromContext(ctx).With(
		zap.String("template", msg.Template),
		zap.String("recipient", msg.To.UserID),
	)

	if msg.To.Email == "" {
		log.Warn("skipping notification without recipient email")
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error("failed to encode notification", zap.Error(err))
		return
	}

	info, err := n.enqueuer.EnqueueContext(ctx,
		asynq.NewTask(taskname.NotificationSend, payload),
		asynq.Queue(n.queue),
		asynq.MaxRetry(n.maxRetry),
	)
	if err != nil {
		log.Error("failed to enqueue notification", zap.Error(err))
		return
	}

	log.Info("notification enqueued", zap.String("task_id", info.ID), zap.String("queue", info.Queue))
}
