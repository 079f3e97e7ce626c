package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/logger"
	"medvive-settlement/pkg/repository"
	"medvive-settlement/services/approval"
	"medvive-settlement/services/wallet"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletLedger is the single balance mutation path.
type WalletLedger interface {
	AccountTx(ctx context.Context, tx *gorm.DB, providerID string) (*wallet.Account, error)
	UpdateBalanceTx(ctx context.Context, tx *gorm.DB, req wallet.UpdateBalanceRequest) (*wallet.JournalEntry, error)
}

type TokenIssuer interface {
	Request(ctx context.Context, payload approval.Payload, prompt approval.Prompt) (*approval.Token, error)
}

// TransactionLookup finds the completed consultation payment behind a payout
// when the caller did not hand one over.
type TransactionLookup interface {
	CompletedForConsultation(ctx context.Context, consultationID, providerID string) (*LinkedTransaction, error)
}

var errAlreadyProcessed = errors.New("payout already processed")

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	charges  *Charges
	ledger   WalletLedger
	issuer   TokenIssuer
	lookup   TransactionLookup
	currency string
	now      func() time.Time

	payouts repository.Repository[Payout]
	fees    repository.Repository[ProviderFee]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Charges *Charges
	Ledger  WalletLedger
	Issuer  TokenIssuer
	Lookup  TransactionLookup `optional:"true"`
	Config  *config.Config    `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	currency := "NGN"
	if p.Config != nil && p.Config.Fees.Currency != "" {
		currency = p.Config.Fees.Currency
	}
	return &Service{
		db:       p.DB,
		node:     p.Node,
		charges:  p.Charges,
		ledger:   p.Ledger,
		issuer:   p.Issuer,
		lookup:   p.Lookup,
		currency: currency,
		now:      time.Now,
		payouts:  repository.ProvideStore[Payout](p.DB),
		fees:     repository.ProvideStore[ProviderFee](p.DB),
	}
}

func (s *Service) GetPayout(ctx context.Context, id string) (*Payout, error) {
	payout, err := s.payouts.FindOne(ctx, &Payout{ID: id})
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, errutil.NotFound("payout not found", nil)
	}
	return payout, nil
}

func (s *Service) SetProviderFee(ctx context.Context, providerID string, fee int64, currency string) (*ProviderFee, error) {
	if providerID == "" {
		return nil, errutil.ValidationFailed("provider id is required", nil)
	}
	if fee <= 0 {
		return nil, errutil.ValidationFailed("consultation fee must be greater than zero", nil)
	}
	if currency == "" {
		currency = s.currency
	}

	rec := &ProviderFee{ProviderID: providerID, ConsultationFee: fee, Currency: currency, UpdatedAt: s.now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"consultation_fee", "currency", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// InitializePendingPayout records the provider's share of a consultation and
// requests a PAYOUT decision for it.
func (s *Service) InitializePendingPayout(ctx context.Context, req PendingPayoutRequest) (*Payout, error) {
	log := logger.FromContext(ctx).With(
		zap.String("consultation_id", req.ConsultationID),
		zap.String("provider_id", req.ProviderID),
	)

	if req.ConsultationID == "" || req.ProviderID == "" {
		return nil, errutil.ValidationFailed("consultation id and provider id are required", nil)
	}
	if req.Amount < 0 {
		return nil, errutil.ValidationFailed("amount must not be negative", nil)
	}

	if req.Linked == nil && s.lookup != nil {
		linked, err := s.lookup.CompletedForConsultation(ctx, req.ConsultationID, req.ProviderID)
		if err != nil {
			return nil, err
		}
		req.Linked = linked
	}

	var linkedID string
	if req.Linked != nil {
		linkedID = req.Linked.ID
		existing, err := s.payouts.FindOne(ctx, &Payout{LinkedTransactionID: linkedID})
		if err != nil {
			return nil, err
		}
		if existing != nil {
			log.Info("payout already initialized for transaction", zap.String("payout_id", existing.ID))
			return existing, nil
		}
	}

	amount, currency, err := s.resolveAmount(ctx, req)
	if err != nil {
		return nil, err
	}

	payout := &Payout{
		ID:                  s.node.Generate().String(),
		Type:                TypeConsultationEarnings,
		ProviderID:          req.ProviderID,
		PatientID:           req.PatientID,
		ConsultationID:      req.ConsultationID,
		LinkedTransactionID: linkedID,
		Amount:              amount,
		Currency:            currency,
		Status:              PayoutPending,
	}
	if err := s.payouts.Create(ctx, payout); err != nil {
		log.Error("failed to create payout", zap.Error(err))
		return nil, err
	}

	payload := approval.PayoutPayload{
		PayoutID:       payout.ID,
		ConsultationID: payout.ConsultationID,
		ProviderID:     payout.ProviderID,
		PatientID:      payout.PatientID,
	}
	if _, err := s.issuer.Request(ctx, payload, payoutPrompt(payout)); err != nil {
		log.Error("failed to request payout approval", zap.String("payout_id", payout.ID), zap.Error(err))
		return payout, errutil.PartialFailure("payout created without approval token", err)
	}

	log.Info("pending payout initialized", zap.String("payout_id", payout.ID), zap.Int64("amount", amount))
	return payout, nil
}

func (s *Service) resolveAmount(ctx context.Context, req PendingPayoutRequest) (int64, string, error) {
	currency := req.Currency
	pick := func(c string) string {
		switch {
		case currency != "":
			return currency
		case c != "":
			return c
		default:
			return s.currency
		}
	}

	if req.Amount > 0 {
		return req.Amount, pick(""), nil
	}

	if l := req.Linked; l != nil {
		if l.ProviderShare > 0 {
			return l.ProviderShare, pick(l.Currency), nil
		}
		if l.Amount > 0 {
			split, err := s.charges.Split(l.Amount)
			if err != nil {
				return 0, "", errutil.Internal("failed to compute fee split", err)
			}
			return split.ProviderShare, pick(l.Currency), nil
		}
	}

	fee, err := s.fees.FindOne(ctx, &ProviderFee{ProviderID: req.ProviderID})
	if err != nil {
		return 0, "", err
	}
	if fee == nil || fee.ConsultationFee <= 0 {
		return 0, "", errutil.NotFound("no payout amount source for consultation", nil)
	}
	split, err := s.charges.Split(fee.ConsultationFee)
	if err != nil {
		return 0, "", errutil.Internal("failed to compute fee split", err)
	}
	return split.ProviderShare, pick(fee.Currency), nil
}

func payoutPrompt(p *Payout) approval.Prompt {
	return approval.Prompt{
		Title: "Consultation payout approval",
		Fields: []approval.Field{
			{Label: "provider", Value: p.ProviderID},
			{Label: "patient", Value: p.PatientID},
			{Label: "consultation", Value: p.ConsultationID},
			{Label: "amount", Value: strconv.FormatInt(p.Amount, 10)},
			{Label: "currency", Value: p.Currency},
		},
	}
}

// locate finds the payout by id, else the PENDING payout of the pair. A pair
// with only processed payouts returns the latest of them.
func (s *Service) locate(ctx context.Context, p approval.PayoutPayload) (*Payout, error) {
	if p.PayoutID != "" {
		return s.GetPayout(ctx, p.PayoutID)
	}
	if p.ConsultationID == "" || p.ProviderID == "" {
		return nil, errutil.ValidationFailed("payout id or consultation and provider ids are required", nil)
	}

	payout, err := s.payouts.FindOne(ctx, &Payout{
		ConsultationID: p.ConsultationID,
		ProviderID:     p.ProviderID,
		Status:         PayoutPending,
	})
	if err != nil || payout != nil {
		return payout, err
	}

	payout, err = s.payouts.FindOne(ctx, &Payout{ConsultationID: p.ConsultationID, ProviderID: p.ProviderID})
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, errutil.NotFound("payout not found", nil)
	}
	return payout, nil
}

// ApprovePayout credits the wallet and completes the payout in one
// transaction. Repeated approvals credit once.
func (s *Service) ApprovePayout(ctx context.Context, p approval.PayoutPayload, actor string) (approval.Outcome, error) {
	payout, err := s.locate(ctx, p)
	if err != nil {
		return approval.Outcome{}, err
	}

	log := logger.FromContext(ctx).With(zap.String("payout_id", payout.ID), zap.String("actor", actor))

	if payout.Status != PayoutPending {
		return approval.AlreadyProcessed(string(payout.Status)), nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.ledger.AccountTx(ctx, tx, payout.ProviderID)
		if errutil.Is(err, errutil.StatusNotFound) || (err == nil && !account.Active) {
			return errutil.Conflict("wallet not activated", nil)
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		rows, err := s.payouts.WithTrx(tx).UpdateIf(ctx, payout.ID,
			map[string]any{"status": string(PayoutPending)},
			map[string]any{
				"status":       string(PayoutCompleted),
				"completed_at": now,
				"processed_by": actor,
				"updated_at":   now,
			},
		)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errAlreadyProcessed
		}

		_, err = s.ledger.UpdateBalanceTx(ctx, tx, wallet.UpdateBalanceRequest{
			ProviderID:  payout.ProviderID,
			Amount:      payout.Amount,
			Type:        wallet.Credit,
			Source:      SourceConsultationPayout,
			ReferenceID: payout.ID,
			Note:        fmt.Sprintf("consultation %s", payout.ConsultationID),
		})
		return err
	})
	if errors.Is(err, errAlreadyProcessed) {
		log.Info("payout settled concurrently")
		return approval.AlreadyProcessed(string(PayoutCompleted)), nil
	}
	if err != nil {
		log.Error("failed to approve payout", zap.Error(err))
		return approval.Outcome{}, err
	}

	log.Info("payout approved", zap.Int64("amount", payout.Amount))
	return approval.Applied(string(PayoutCompleted), "Consultation payout approved."), nil
}

// RejectPayout never touches the wallet.
func (s *Service) RejectPayout(ctx context.Context, p approval.PayoutPayload, actor, reason string) (approval.Outcome, error) {
	payout, err := s.locate(ctx, p)
	if err != nil {
		return approval.Outcome{}, err
	}
	if payout.Status != PayoutPending {
		return approval.AlreadyProcessed(string(payout.Status)), nil
	}
	if reason == "" {
		reason = DefaultRejectReason
	}

	now := s.now().UTC()
	rows, err := s.payouts.UpdateIf(ctx, payout.ID,
		map[string]any{"status": string(PayoutPending)},
		map[string]any{
			"status":        string(PayoutRejected),
			"reject_reason": reason,
			"rejected_at":   now,
			"processed_by":  actor,
			"updated_at":    now,
		},
	)
	if err != nil {
		return approval.Outcome{}, err
	}
	if rows == 0 {
		current, err := s.GetPayout(ctx, payout.ID)
		if err != nil {
			return approval.Outcome{}, err
		}
		return approval.AlreadyProcessed(string(current.Status)), nil
	}

	logger.FromContext(ctx).Info("payout rejected", zap.String("payout_id", payout.ID), zap.String("reason", reason))
	return approval.Applied(string(PayoutRejected), "Consultation payout rejected."), nil
}
