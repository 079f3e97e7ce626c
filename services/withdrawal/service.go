package withdrawal

import (
	"context"
	"errors"
	"strconv"
	"time"

	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/featureflags"
	"medvive-settlement/pkg/logger"
	"medvive-settlement/pkg/repository"
	"medvive-settlement/pkg/sequence"
	"medvive-settlement/services/approval"
	"medvive-settlement/services/wallet"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WalletLedger interface {
	GetAccount(ctx context.Context, providerID string) (*wallet.Account, error)
	UpdateBalanceTx(ctx context.Context, tx *gorm.DB, req wallet.UpdateBalanceRequest) (*wallet.JournalEntry, error)
}

type TokenIssuer interface {
	Request(ctx context.Context, payload approval.Payload, prompt approval.Prompt) (*approval.Token, error)
}

var errNotOpen = errors.New("withdrawal is no longer open")

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	ledger   WalletLedger
	issuer   TokenIssuer
	sequence sequence.Generator
	flags    featureflags.FeatureFlag
	now      func() time.Time

	withdrawals repository.Repository[Withdrawal]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Ledger   WalletLedger
	Issuer   TokenIssuer
	Sequence sequence.Generator
	Flags    featureflags.FeatureFlag `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		ledger:      p.Ledger,
		issuer:      p.Issuer,
		sequence:    p.Sequence,
		flags:       p.Flags,
		now:         time.Now,
		withdrawals: repository.ProvideStore[Withdrawal](p.DB),
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Withdrawal, error) {
	w, err := s.withdrawals.FindOne(ctx, &Withdrawal{ID: id})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errutil.NotFound("withdrawal not found", nil)
	}
	return w, nil
}

func validateInitiate(req InitiateRequest) error {
	var details []errutil.Detail
	if req.ProviderID == "" {
		details = append(details, errutil.Detail{Field: "provider_id", Message: "is required"})
	}
	if req.Amount <= 0 {
		details = append(details, errutil.Detail{Field: "amount", Message: "must be greater than zero"})
	}
	if req.Bank.BankName == "" {
		details = append(details, errutil.Detail{Field: "bank.bank_name", Message: "is required"})
	}
	if req.Bank.AccountNumber == "" {
		details = append(details, errutil.Detail{Field: "bank.account_number", Message: "is required"})
	}
	if req.Bank.AccountName == "" {
		details = append(details, errutil.Detail{Field: "bank.account_name", Message: "is required"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid withdrawal request", nil, errutil.WithDetails(details...))
	}
	return nil
}

// Initiate records a PENDING withdrawal and requests a decision for it. The
// wallet is only debited on approval.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*Withdrawal, error) {
	log := logger.FromContext(ctx).With(zap.String("provider_id", req.ProviderID), zap.Int64("amount", req.Amount))

	if err := validateInitiate(req); err != nil {
		return nil, err
	}

	account, err := s.ledger.GetAccount(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}

	if s.flags != nil && s.flags.IsEnabled(ctx, featureflags.WithdrawalInitiationBalanceCheck) && req.Amount > account.Balance {
		return nil, errutil.Conflict("insufficient wallet balance", nil)
	}

	reference, err := s.sequence.NextWithdrawalCode(ctx)
	if err != nil {
		log.Error("failed to generate withdrawal reference", zap.Error(err))
		return nil, errutil.Internal("failed to generate withdrawal reference", err)
	}

	w := &Withdrawal{
		ID:         s.node.Generate().String(),
		Reference:  reference,
		ProviderID: req.ProviderID,
		Amount:     req.Amount,
		Currency:   account.Currency,
		Method:     MethodBankTransfer,
		Status:     StatusPending,
		Bank:       req.Bank,
	}
	if err := s.withdrawals.Create(ctx, w); err != nil {
		log.Error("failed to create withdrawal", zap.Error(err))
		return nil, err
	}

	payload := approval.WithdrawalPayload{WithdrawalID: w.ID, ProviderID: w.ProviderID}
	if _, err := s.issuer.Request(ctx, payload, withdrawalPrompt(w, account.Balance)); err != nil {
		log.Error("failed to request withdrawal approval", zap.String("withdrawal_id", w.ID), zap.Error(err))
		return w, errutil.PartialFailure("withdrawal created without approval token", err)
	}

	log.Info("withdrawal initiated", zap.String("withdrawal_id", w.ID), zap.String("reference", w.Reference))
	return w, nil
}

func withdrawalPrompt(w *Withdrawal, balance int64) approval.Prompt {
	return approval.Prompt{
		Title: "Withdrawal approval",
		Fields: []approval.Field{
			{Label: "reference", Value: w.Reference},
			{Label: "provider", Value: w.ProviderID},
			{Label: "amount", Value: strconv.FormatInt(w.Amount, 10)},
			{Label: "currency", Value: w.Currency},
			{Label: "current balance", Value: strconv.FormatInt(balance, 10)},
			{Label: "bank", Value: w.Bank.BankName},
			{Label: "account number", Value: w.Bank.AccountNumber},
			{Label: "account name", Value: w.Bank.AccountName},
		},
	}
}

func (s *Service) MarkProcessing(ctx context.Context, id string) (*Withdrawal, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.withdrawals.UpdateIf(ctx, id,
		map[string]any{"status": string(StatusPending)},
		map[string]any{"status": string(StatusProcessing), "processing_at": s.now().UTC()},
	)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, errutil.Conflict("withdrawal is "+string(w.Status)+", not PENDING", nil)
	}
	return s.Get(ctx, id)
}

// Approve debits the wallet and marks the withdrawal PAID in one transaction.
// A ledger failure leaves the withdrawal untouched.
func (s *Service) Approve(ctx context.Context, id, approverID, note string) (*Withdrawal, error) {
	log := logger.FromContext(ctx).With(zap.String("withdrawal_id", id), zap.String("approver", approverID))

	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !w.Status.Open() {
		return nil, errutil.Conflict("withdrawal is already "+string(w.Status), nil)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()
		rows, err := s.withdrawals.WithTrx(tx).UpdateIf(ctx, id,
			map[string]any{"status": openStatuses},
			map[string]any{
				"status":        string(StatusPaid),
				"approved_at":   now,
				"approved_by":   approverID,
				"approval_note": note,
			},
		)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errNotOpen
		}

		_, err = s.ledger.UpdateBalanceTx(ctx, tx, wallet.UpdateBalanceRequest{
			ProviderID:  w.ProviderID,
			Amount:      w.Amount,
			Type:        wallet.Debit,
			Source:      SourceWithdrawal,
			ReferenceID: w.ID,
			Note:        w.Reference,
		})
		return err
	})
	if errors.Is(err, errNotOpen) {
		return nil, errutil.Conflict("withdrawal changed concurrently", nil)
	}
	if err != nil {
		log.Error("failed to approve withdrawal", zap.Error(err))
		return nil, err
	}

	log.Info("withdrawal paid", zap.Int64("amount", w.Amount))
	return s.Get(ctx, id)
}

func (s *Service) Reject(ctx context.Context, id, actor, reason string) (*Withdrawal, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !w.Status.Open() {
		return nil, errutil.Conflict("withdrawal is already "+string(w.Status), nil)
	}

	rows, err := s.withdrawals.UpdateIf(ctx, id,
		map[string]any{"status": openStatuses},
		map[string]any{
			"status":           string(StatusRejected),
			"rejected_at":      s.now().UTC(),
			"rejected_by":      actor,
			"rejection_reason": reason,
		},
	)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, errutil.Conflict("withdrawal changed concurrently", nil)
	}

	logger.FromContext(ctx).Info("withdrawal rejected", zap.String("withdrawal_id", id), zap.String("actor", actor))
	return s.Get(ctx, id)
}

func (s *Service) ApproveWithdrawal(ctx context.Context, p approval.WithdrawalPayload, actor, note string) (approval.Outcome, error) {
	return s.settle(ctx, p.WithdrawalID, func() (*Withdrawal, error) {
		return s.Approve(ctx, p.WithdrawalID, actor, note)
	}, "Withdrawal approved.")
}

func (s *Service) RejectWithdrawal(ctx context.Context, p approval.WithdrawalPayload, actor, reason string) (approval.Outcome, error) {
	return s.settle(ctx, p.WithdrawalID, func() (*Withdrawal, error) {
		return s.Reject(ctx, p.WithdrawalID, actor, reason)
	}, "Withdrawal rejected.")
}

// settle maps terminal-state conflicts to ALREADY_PROCESSED for the token path.
func (s *Service) settle(ctx context.Context, id string, apply func() (*Withdrawal, error), message string) (approval.Outcome, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return approval.Outcome{}, err
	}
	if !w.Status.Open() {
		return approval.AlreadyProcessed(string(w.Status)), nil
	}

	done, err := apply()
	if errutil.Is(err, errutil.StatusConflict) {
		current, gerr := s.Get(ctx, id)
		if gerr == nil && !current.Status.Open() {
			return approval.AlreadyProcessed(string(current.Status)), nil
		}
	}
	if err != nil {
		return approval.Outcome{}, err
	}
	return approval.Applied(string(done.Status), message), nil
}
