package approval

import (
	"context"
	"time"

	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/logger"
	"medvive-settlement/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PayoutSettler interface {
	ApprovePayout(ctx context.Context, p PayoutPayload, actor string) (Outcome, error)
	RejectPayout(ctx context.Context, p PayoutPayload, actor, reason string) (Outcome, error)
}

type WithdrawalSettler interface {
	ApproveWithdrawal(ctx context.Context, p WithdrawalPayload, actor, note string) (Outcome, error)
	RejectWithdrawal(ctx context.Context, p WithdrawalPayload, actor, reason string) (Outcome, error)
}

type Service struct {
	authorizer  Authorizer
	channel     Channel
	payouts     PayoutSettler
	withdrawals WithdrawalSettler
	now         func() time.Time

	tokens repository.Repository[Token]
}

type ServiceParams struct {
	fx.In
	DB          *gorm.DB
	Authorizer  Authorizer
	Channel     Channel
	Payouts     PayoutSettler     `optional:"true"`
	Withdrawals WithdrawalSettler `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		authorizer:  p.Authorizer,
		channel:     p.Channel,
		payouts:     p.Payouts,
		withdrawals: p.Withdrawals,
		now:         time.Now,
		tokens:      repository.ProvideStore[Token](p.DB),
	}
}

func (s *Service) GetToken(ctx context.Context, id string) (*Token, error) {
	token, err := s.tokens.FindOne(ctx, &Token{ID: id})
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, errutil.NotFound("approval token not found", nil)
	}
	return token, nil
}

// ResolveDecision applies one decision to a PENDING token. Deliveries to a
// token that already left PENDING report ALREADY_PROCESSED.
func (s *Service) ResolveDecision(ctx context.Context, tokenID string, action Action, actorID, reason string) (Outcome, error) {
	log := logger.FromContext(ctx).With(
		zap.String("token_id", tokenID),
		zap.String("action", string(action)),
		zap.String("actor", actorID),
	)

	if !action.Valid() {
		return Outcome{}, errutil.ValidationFailed("unknown decision action", nil)
	}

	token, err := s.GetToken(ctx, tokenID)
	if err != nil {
		return Outcome{}, err
	}

	if err := s.authorizer.Authorize(actorID, token.Kind, action); err != nil {
		return Outcome{}, err
	}

	if token.Status != StatusPending {
		log.Info("decision on processed token ignored", zap.String("status", string(token.Status)))
		return AlreadyProcessed(string(token.Status)), nil
	}

	payload, err := DecodePayload(token.Kind, token.Payload)
	if err != nil {
		return Outcome{}, errutil.Internal("failed to decode token payload", err)
	}

	outcome, err := s.dispatch(ctx, payload, action, actorID, reason)
	if err != nil {
		return Outcome{}, err
	}

	if outcome.Applied {
		now := s.now().UTC()
		rows, err := s.tokens.UpdateIf(ctx, token.ID,
			map[string]any{"status": string(StatusPending)},
			map[string]any{
				"status":       string(action.terminal()),
				"processed_at": now,
				"processed_by": actorID,
			},
		)
		switch {
		case err != nil:
			log.Error("failed to close approval token", zap.Error(err))
		case rows == 0:
			log.Warn("approval token closed concurrently")
		default:
			token.Status = action.terminal()
			token.ProcessedAt = &now
			token.ProcessedBy = actorID
		}
	}

	if err := s.channel.Report(ctx, token, outcome); err != nil {
		log.Warn("failed to report decision outcome", zap.Error(err))
	}

	log.Info("decision resolved", zap.String("reason", outcome.Reason))
	return outcome, nil
}

func (s *Service) dispatch(ctx context.Context, payload Payload, action Action, actor, reason string) (Outcome, error) {
	switch p := payload.(type) {
	case PayoutPayload:
		if s.payouts == nil {
			return Outcome{}, errutil.Internal("payout settlement is not configured", nil)
		}
		if action == ActionApprove {
			return s.payouts.ApprovePayout(ctx, p, actor)
		}
		return s.payouts.RejectPayout(ctx, p, actor, reason)
	case WithdrawalPayload:
		if s.withdrawals == nil {
			return Outcome{}, errutil.Internal("withdrawal settlement is not configured", nil)
		}
		if action == ActionApprove {
			return s.withdrawals.ApproveWithdrawal(ctx, p, actor, reason)
		}
		return s.withdrawals.RejectWithdrawal(ctx, p, actor, reason)
	default:
		return Outcome{}, errutil.Internal("unsupported approval payload", nil)
	}
}
