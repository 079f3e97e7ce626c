package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"medvive-settlement/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Worker struct {
	deliverer Deliverer
}

func NewWorker(d Deliverer) *Worker {
	return &Worker{deliverer: d}
}

// HandleSend delivers one queued message. Malformed payloads are not retried.
func (w *Worker) HandleSend(ctx context.Context, t *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
	}

	if err := w.deliverer.Deliver(ctx, msg); err != nil {
		zap.L().Warn("notification delivery failed",
			zap.String("template", msg.Template),
			zap.String("to", msg.To.Email),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func registerWorker(mux *asynq.ServeMux, w *Worker) {
	mux.HandleFunc(taskname.NotificationSend, w.HandleSend)
}
