package consultation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/logger"
	"medvive-settlement/pkg/repository"
	"medvive-settlement/pkg/sequence"
	"medvive-settlement/services/gateway"
	"medvive-settlement/services/notification"
	"medvive-settlement/services/scheduler"
	"medvive-settlement/services/settlement"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultReminderDelay = 30 * time.Minute
	defaultExpiry        = time.Hour

	reminderSubject = "Payment Reminder: Complete Your Consultation"
	expiredSubject  = "Your consultation payment window has expired"
)

type PayoutInitializer interface {
	InitializePendingPayout(ctx context.Context, req settlement.PendingPayoutRequest) (*settlement.Payout, error)
}

type JobScheduler interface {
	Schedule(ctx context.Context, req scheduler.ScheduleRequest) (*scheduler.Job, error)
	Cancel(ctx context.Context, ids ...string) error
}

type Service struct {
	gateway   gateway.Client
	charges   *settlement.Charges
	payouts   PayoutInitializer
	jobs      JobScheduler
	sequence  sequence.Generator
	notifier  notification.Notifier
	directory notification.Directory
	node      *snowflake.Node
	now       func() time.Time
	group     singleflight.Group

	currency      string
	reminderDelay time.Duration
	defaultExpiry time.Duration
	frontendURL   string

	db            *gorm.DB
	transactions  repository.Repository[Transaction]
	consultations repository.Repository[Consultation]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Gateway   gateway.Client
	Charges   *settlement.Charges
	Payouts   PayoutInitializer
	Jobs      JobScheduler
	Sequence  sequence.Generator
	Notifier  notification.Notifier
	Directory notification.Directory `optional:"true"`
	Config    *config.Config         `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		gateway:   p.Gateway,
		charges:   p.Charges,
		payouts:   p.Payouts,
		jobs:      p.Jobs,
		sequence:  p.Sequence,
		notifier:  p.Notifier,
		directory: p.Directory,
		node:      p.Node,
		now:       time.Now,

		currency:      "NGN",
		reminderDelay: defaultReminderDelay,
		defaultExpiry: defaultExpiry,

		db:            p.DB,
		transactions:  repository.ProvideStore[Transaction](p.DB),
		consultations: repository.ProvideStore[Consultation](p.DB),
	}

	if c := p.Config; c != nil {
		if c.Fees.Currency != "" {
			s.currency = c.Fees.Currency
		}
		if c.Consultation.ReminderDelay > 0 {
			s.reminderDelay = c.Consultation.ReminderDelay
		}
		if c.Consultation.DefaultExpiry > 0 {
			s.defaultExpiry = c.Consultation.DefaultExpiry
		}
		s.frontendURL = strings.TrimRight(c.Consultation.FrontendBaseURL, "/")
	}
	return s
}

func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	txn, err := s.transactions.FindOne(ctx, &Transaction{ID: id})
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, errutil.NotFound("transaction not found", nil)
	}
	return txn, nil
}

// InitializeTransaction opens a virtual account for the consultation fee. The
// record is stored whether or not the gateway call succeeds.
func (s *Service) InitializeTransaction(ctx context.Context, req InitializeRequest) (*Transaction, error) {
	log := logger.FromContext(ctx).With(
		zap.String("consultation_id", req.ConsultationID),
		zap.String("provider_id", req.ProviderID),
	)

	if req.ConsultationID == "" || req.ProviderID == "" || req.PatientID == "" {
		return nil, errutil.ValidationFailed("consultation, provider and patient ids are required", nil)
	}
	if req.Amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be greater than zero", nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "must be greater than zero"}))
	}
	if req.Currency == "" {
		req.Currency = s.currency
	}

	pending, err := s.transactions.FindOne(ctx, &Transaction{ConsultationID: req.ConsultationID, Status: StatusPending})
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, errutil.Conflict("a pending transaction already exists for this consultation", nil)
	}

	split, err := s.charges.Split(req.Amount)
	if err != nil {
		return nil, errutil.Internal("failed to compute fee split", err)
	}

	orderID, err := s.sequence.NextOrderCode(ctx)
	if err != nil {
		log.Error("failed to generate order id", zap.Error(err))
		return nil, errutil.Internal("failed to generate order id", err)
	}

	txn := &Transaction{
		ID:               s.node.Generate().String(),
		OrderID:          orderID,
		ConsultationID:   req.ConsultationID,
		PatientID:        req.PatientID,
		ProviderID:       req.ProviderID,
		Amount:           split.Amount,
		ProviderShare:    split.ProviderShare,
		PlatformFee:      split.PlatformFee,
		Currency:         req.Currency,
		Status:           StatusPending,
		PaymentMethod:    PaymentMethodBankTransfer,
		PatientEmail:     req.PatientEmail,
		PatientName:      req.PatientName,
		ConsultationDate: req.ConsultationDate,
		ConsultationTime: req.ConsultationTime,
	}

	first, last := splitName(req.PatientName)
	account, gwErr := s.gateway.CreateVirtualAccount(ctx, gateway.VirtualAccountRequest{
		Amount:      txn.Amount,
		Currency:    txn.Currency,
		OrderID:     txn.OrderID,
		Description: "Consultation " + txn.ConsultationID,
		Customer: gateway.Customer{
			Email:     req.PatientEmail,
			Phone:     req.PatientPhone,
			FirstName: first,
			LastName:  last,
		},
	})
	if gwErr != nil {
		txn.Status = StatusFailed
		txn.GatewayError = gwErr.Error()
	} else {
		raw, err := json.Marshal(account)
		if err != nil {
			return nil, errutil.Internal("failed to encode gateway account", err)
		}
		txn.GatewayAccountData = raw
		txn.GatewayTransactionID = account.TransactionID
		txn.GatewayExpiresAt = parseExpiry(account.ExpiredAt)
	}

	if err := s.transactions.Create(ctx, txn); err != nil {
		log.Error("failed to store transaction", zap.Error(err))
		return nil, err
	}

	if gwErr != nil {
		log.Warn("virtual account creation failed", zap.String("transaction_id", txn.ID), zap.Error(gwErr))
		return txn, errutil.BadGateway("failed to create virtual account", gwErr)
	}

	s.scheduleFollowUps(ctx, txn)
	log.Info("transaction initialized", zap.String("transaction_id", txn.ID), zap.String("order_id", txn.OrderID))
	return txn, nil
}

func (s *Service) scheduleFollowUps(ctx context.Context, txn *Transaction) {
	log := logger.FromContext(ctx).With(zap.String("transaction_id", txn.ID))
	now := s.now().UTC()

	if _, err := s.jobs.Schedule(ctx, scheduler.ScheduleRequest{
		ID:      reminderJobID(txn.ID),
		Type:    scheduler.PendingReminder,
		RunAt:   now.Add(s.reminderDelay),
		Payload: jobPayload{TransactionID: txn.ID},
	}); err != nil {
		log.Error("failed to schedule pending reminder", zap.Error(err))
	}

	expiry := now.Add(s.defaultExpiry)
	if txn.GatewayExpiresAt != nil {
		expiry = *txn.GatewayExpiresAt
	}
	if _, err := s.jobs.Schedule(ctx, scheduler.ScheduleRequest{
		ID:      expiryJobID(txn.ID),
		Type:    scheduler.PendingExpiry,
		RunAt:   expiry,
		Payload: jobPayload{TransactionID: txn.ID},
	}); err != nil {
		log.Error("failed to schedule pending expiry", zap.Error(err))
	}
}

func (s *Service) cancelFollowUps(ctx context.Context, txnID string, ids ...string) {
	if err := s.jobs.Cancel(ctx, ids...); err != nil {
		logger.FromContext(ctx).Warn("failed to cancel follow up jobs", zap.String("transaction_id", txnID), zap.Error(err))
	}
}

// ConfirmPaymentStatus polls the gateway once per transaction at a time.
// Concurrent callers share the in-flight result.
func (s *Service) ConfirmPaymentStatus(ctx context.Context, id string) (*ConfirmResult, error) {
	v, err, _ := s.group.Do(id, func() (any, error) {
		return s.confirm(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ConfirmResult), nil
}

func (s *Service) confirm(ctx context.Context, id string) (*ConfirmResult, error) {
	log := logger.FromContext(ctx).With(zap.String("transaction_id", id))

	txn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.Status != StatusPending {
		return &ConfirmResult{Transaction: txn, AlreadyProcessed: true}, nil
	}

	ref := txn.GatewayTransactionID
	if ref == "" {
		ref = txn.OrderID
	}

	now := s.now().UTC()
	status, gwErr := s.gateway.GetTransactionStatus(ctx, ref)
	if gwErr != nil {
		if err := s.transactions.Update(ctx, txn.ID, map[string]any{
			"status_check_failed":  true,
			"status_check_error":   gwErr.Error(),
			"last_status_check_at": now,
		}); err != nil {
			log.Error("failed to record status check failure", zap.Error(err))
		}
		return nil, errutil.BadGateway("failed to fetch transaction status", gwErr)
	}

	if err := s.transactions.Update(ctx, txn.ID, map[string]any{
		"status_check_failed":  false,
		"status_check_error":   "",
		"last_status_check_at": now,
	}); err != nil {
		log.Warn("failed to record status check", zap.Error(err))
	}

	outcome := status.Normalize()
	switch outcome {
	case gateway.OutcomeCompleted:
		return s.complete(ctx, txn.ID, now)
	case gateway.OutcomeFailed:
		return s.fail(ctx, txn.ID, status.StatusReason)
	default:
		current, err := s.Get(ctx, txn.ID)
		if err != nil {
			return nil, err
		}
		return &ConfirmResult{Transaction: current, Outcome: outcome}, nil
	}
}

func (s *Service) complete(ctx context.Context, id string, now time.Time) (*ConfirmResult, error) {
	log := logger.FromContext(ctx).With(zap.String("transaction_id", id))

	rows, err := s.transactions.UpdateIf(ctx, id,
		map[string]any{"status": string(StatusPending)},
		map[string]any{"status": string(StatusCompleted), "payment_confirmed_at": now},
	)
	if err != nil {
		return nil, err
	}

	txn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return &ConfirmResult{Transaction: txn, AlreadyProcessed: true}, nil
	}

	s.cancelFollowUps(ctx, id, reminderJobID(id), expiryJobID(id))
	result := &ConfirmResult{Transaction: txn, Outcome: gateway.OutcomeCompleted}

	if err := s.book(ctx, txn, now); err != nil {
		log.Error("failed to activate consultation", zap.Error(err))
		result.Warnings = append(result.Warnings, Warning{
			Code:    string(errutil.StatusPartialFailure),
			Message: "consultation booking failed: " + err.Error(),
		})
	}

	payout, err := s.payouts.InitializePendingPayout(ctx, settlement.FromTransaction(txn.Linked()))
	result.Payout = payout
	if err != nil {
		log.Error("failed to initialize pending payout", zap.Error(err))
		result.Warnings = append(result.Warnings, Warning{
			Code:    string(errutil.StatusPartialFailure),
			Message: "payout initialization failed: " + err.Error(),
		})
	}

	log.Info("payment confirmed", zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

func (s *Service) book(ctx context.Context, txn *Transaction, now time.Time) error {
	c := &Consultation{
		ID:         txn.ConsultationID,
		PatientID:  txn.PatientID,
		ProviderID: txn.ProviderID,
		Status:     BookingActive,
		BookedAt:   &now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "booked_at", "updated_at"}),
	}).Create(c).Error
}

func (s *Service) fail(ctx context.Context, id, reason string) (*ConfirmResult, error) {
	if reason == "" {
		reason = "payment failed at gateway"
	}
	rows, err := s.transactions.UpdateIf(ctx, id,
		map[string]any{"status": string(StatusPending)},
		map[string]any{"status": string(StatusFailed), "gateway_error": reason},
	)
	if err != nil {
		return nil, err
	}

	txn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return &ConfirmResult{Transaction: txn, AlreadyProcessed: true}, nil
	}

	s.cancelFollowUps(ctx, id, reminderJobID(id), expiryJobID(id))
	return &ConfirmResult{Transaction: txn, Outcome: gateway.OutcomeFailed}, nil
}

// ExpireTransaction moves a still PENDING transaction to EXPIRED and tells the
// patient. It reports whether this call made the transition.
func (s *Service) ExpireTransaction(ctx context.Context, id string) (*Transaction, bool, error) {
	txn, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if txn.Status != StatusPending {
		return txn, false, nil
	}

	expiredAt := s.now().UTC()
	if txn.GatewayExpiresAt != nil {
		expiredAt = txn.GatewayExpiresAt.UTC()
	}

	rows, err := s.transactions.UpdateIf(ctx, id,
		map[string]any{"status": string(StatusPending)},
		map[string]any{"status": string(StatusExpired), "expired_at": expiredAt},
	)
	if err != nil {
		return nil, false, err
	}

	txn, err = s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if rows == 0 {
		return txn, false, nil
	}

	s.cancelFollowUps(ctx, id, reminderJobID(id))
	s.notifyPatient(ctx, txn, notification.TemplatePendingExpired, expiredSubject)
	logger.FromContext(ctx).Info("transaction expired", zap.String("transaction_id", id))
	return txn, true, nil
}

// SendPendingReminder nudges the patient while the transaction is PENDING,
// or unconditionally with force.
func (s *Service) SendPendingReminder(ctx context.Context, id string, force bool) (bool, error) {
	txn, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if txn.Status != StatusPending && !force {
		return false, nil
	}

	if !s.notifyPatient(ctx, txn, notification.TemplatePendingReminder, reminderSubject) {
		return false, nil
	}

	if err := s.transactions.Update(ctx, id, map[string]any{"pending_reminder_sent_at": s.now().UTC()}); err != nil {
		logger.FromContext(ctx).Warn("failed to record reminder", zap.String("transaction_id", id), zap.Error(err))
	}
	return true, nil
}

func (s *Service) notifyPatient(ctx context.Context, txn *Transaction, template, subject string) bool {
	to := notification.Recipient{UserID: txn.PatientID, Email: txn.PatientEmail, Name: txn.PatientName}
	if to.Email == "" && s.directory != nil {
		if contact, err := s.directory.Lookup(ctx, txn.PatientID); err == nil {
			to = contact.Recipient()
		}
	}
	if to.Email == "" {
		logger.FromContext(ctx).Warn("no email for patient", zap.String("transaction_id", txn.ID), zap.String("patient_id", txn.PatientID))
		return false
	}

	data := map[string]any{
		"name":             to.Name,
		"orderId":          txn.OrderID,
		"amount":           txn.Amount,
		"currency":         txn.Currency,
		"consultationDate": txn.ConsultationDate,
		"consultationTime": txn.ConsultationTime,
	}
	if s.frontendURL != "" {
		data["paymentLink"] = s.frontendURL + "/payments/" + txn.ID
	}

	s.notifier.Notify(ctx, notification.Message{To: to, Template: template, Subject: subject, Data: data})
	return true
}

func parseExpiry(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
