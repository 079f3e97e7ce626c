package messaging

import (
	"context"
	"fmt"

	"medvive-settlement/services/scheduler"
)

func registerJobs(s *scheduler.Scheduler, svc *Service) {
	s.Handle(scheduler.UnseenNotification, svc.handleUnseen)
}

func (s *Service) handleUnseen(ctx context.Context, job *scheduler.Job) error {
	var p unseenPayload
	if err := job.Decode(&p); err != nil {
		return fmt.Errorf("decode unseen payload: %w", err)
	}
	if p.ChatID == "" || p.SenderID == "" || p.ReceiverID == "" {
		return fmt.Errorf("unseen job %s is missing chat participants", job.ID)
	}
	_, err := s.notifyUnseen(ctx, p)
	return err
}
