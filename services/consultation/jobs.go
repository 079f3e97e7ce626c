package consultation

import (
	"context"
	"fmt"

	"medvive-settlement/pkg/errutil"
	"medvive-settlement/services/scheduler"

	"go.uber.org/zap"
)

func registerJobs(s *scheduler.Scheduler, svc *Service) {
	s.Handle(scheduler.PendingExpiry, svc.handleExpiry)
	s.Handle(scheduler.PendingReminder, svc.handleReminder)
}

func decodeJob(job *scheduler.Job) (jobPayload, error) {
	var p jobPayload
	if err := job.Decode(&p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", job.Type, err)
	}
	if p.TransactionID == "" {
		return p, fmt.Errorf("%s job %s has no transaction id", job.Type, job.ID)
	}
	return p, nil
}

func (s *Service) handleExpiry(ctx context.Context, job *scheduler.Job) error {
	p, err := decodeJob(job)
	if err != nil {
		return err
	}
	_, expired, err := s.ExpireTransaction(ctx, p.TransactionID)
	if errutil.Is(err, errutil.StatusNotFound) {
		zap.L().Warn("expiry job for unknown transaction", zap.String("transaction_id", p.TransactionID))
		return nil
	}
	if err == nil && !expired {
		zap.L().Debug("expiry skipped, transaction no longer pending", zap.String("transaction_id", p.TransactionID))
	}
	return err
}

func (s *Service) handleReminder(ctx context.Context, job *scheduler.Job) error {
	p, err := decodeJob(job)
	if err != nil {
		return err
	}
	_, err = s.SendPendingReminder(ctx, p.TransactionID, p.Force)
	if errutil.Is(err, errutil.StatusNotFound) {
		return nil
	}
	return err
}
