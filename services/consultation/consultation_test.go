package consultation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/errutil"
	"medvive-settlement/services/gateway"
	gatewaymock "medvive-settlement/services/gateway/mock"
	"medvive-settlement/services/notification"
	"medvive-settlement/services/scheduler"
	"medvive-settlement/services/settlement"
	"medvive-settlement/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeSequence struct {
	mu sync.Mutex
	n  int
}

func (f *fakeSequence) NextOrderCode(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("ORD-260101-%04d", f.n), nil
}

func (f *fakeSequence) NextWithdrawalCode(context.Context) (string, error) {
	return "", errors.New("not used")
}

type fakeJobs struct {
	mu        sync.Mutex
	scheduled []scheduler.ScheduleRequest
	canceled  []string
}

func (f *fakeJobs) Schedule(_ context.Context, req scheduler.ScheduleRequest) (*scheduler.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, req)
	return &scheduler.Job{ID: req.ID, Type: req.Type, RunAt: req.RunAt}, nil
}

func (f *fakeJobs) Cancel(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, ids...)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (f *fakeNotifier) Notify(_ context.Context, msg notification.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

func (f *fakeNotifier) messages() []notification.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification.Message(nil), f.sent...)
}

type fakePayouts struct {
	mu       sync.Mutex
	requests []settlement.PendingPayoutRequest
	err      error
}

func (f *fakePayouts) InitializePendingPayout(_ context.Context, req settlement.PendingPayoutRequest) (*settlement.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &settlement.Payout{ID: "po-1", Amount: req.Linked.ProviderShare, Status: settlement.PayoutPending}, nil
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	gateway  *gatewaymock.MockClient
	jobs     *fakeJobs
	notifier *fakeNotifier
	payouts  *fakePayouts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &Transaction{}, &Consultation{}, &notification.Contact{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	charges, err := settlement.NewCharges(nil)
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		gateway:  gatewaymock.NewMockClient(gomock.NewController(t)),
		jobs:     &fakeJobs{},
		notifier: &fakeNotifier{},
		payouts:  &fakePayouts{},
	}
	f.svc = NewService(ServiceParams{
		DB:        db,
		Node:      node,
		Gateway:   f.gateway,
		Charges:   charges,
		Payouts:   f.payouts,
		Jobs:      f.jobs,
		Sequence:  &fakeSequence{},
		Notifier:  f.notifier,
		Directory: notification.NewContactDirectory(db),
	})
	return f
}

func request() InitializeRequest {
	return InitializeRequest{
		ConsultationID:   "c-1",
		ProviderID:       "prov-1",
		PatientID:        "pat-1",
		Amount:           10000,
		PatientEmail:     "ada@example.com",
		PatientName:      "Ada Lovelace",
		ConsultationDate: "2026-01-02",
		ConsultationTime: "10:00",
	}
}

func (f *fixture) initialize(t *testing.T, expiredAt string) *Transaction {
	t.Helper()
	f.gateway.EXPECT().CreateVirtualAccount(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req gateway.VirtualAccountRequest) (*gateway.VirtualAccount, error) {
			return &gateway.VirtualAccount{
				TransactionID:            "gw-" + req.OrderID,
				VirtualBankAccountNumber: "9900112233",
				VirtualBankCode:          "035",
				ExpiredAt:                expiredAt,
				Amount:                   float64(req.Amount),
				OrderID:                  req.OrderID,
			}, nil
		})
	txn, err := f.svc.InitializeTransaction(context.Background(), request())
	require.NoError(t, err)
	return txn
}

func (f *fixture) reload(t *testing.T, id string) *Transaction {
	t.Helper()
	txn, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return txn
}

func TestInitializeTransaction(t *testing.T) {
	f := newFixture(t)
	expiry := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)

	var sent gateway.VirtualAccountRequest
	f.gateway.EXPECT().CreateVirtualAccount(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req gateway.VirtualAccountRequest) (*gateway.VirtualAccount, error) {
			sent = req
			return &gateway.VirtualAccount{TransactionID: "gw-1", ExpiredAt: expiry.Format(time.RFC3339)}, nil
		})

	txn, err := f.svc.InitializeTransaction(context.Background(), request())
	require.NoError(t, err)
	require.Equal(t, StatusPending, txn.Status)
	require.Equal(t, int64(7000), txn.ProviderShare)
	require.Equal(t, int64(3000), txn.PlatformFee)
	require.Equal(t, "NGN", txn.Currency)
	require.Equal(t, "ORD-260101-0001", txn.OrderID)
	require.Equal(t, "gw-1", txn.GatewayTransactionID)
	require.Equal(t, PaymentMethodBankTransfer, txn.PaymentMethod)
	require.NotEmpty(t, txn.GatewayAccountData)

	require.Equal(t, txn.OrderID, sent.OrderID)
	require.Equal(t, int64(10000), sent.Amount)
	require.Equal(t, "Ada", sent.Customer.FirstName)
	require.Equal(t, "Lovelace", sent.Customer.LastName)

	require.Len(t, f.jobs.scheduled, 2)
	require.Equal(t, reminderJobID(txn.ID), f.jobs.scheduled[0].ID)
	require.Equal(t, scheduler.PendingReminder, f.jobs.scheduled[0].Type)
	require.Equal(t, expiryJobID(txn.ID), f.jobs.scheduled[1].ID)
	require.Equal(t, scheduler.PendingExpiry, f.jobs.scheduled[1].Type)
	require.True(t, expiry.Equal(f.jobs.scheduled[1].RunAt))

	_, err = f.svc.InitializeTransaction(context.Background(), request())
	require.True(t, errutil.Is(err, errutil.StatusConflict))
}

func TestInitializeTransactionDefaultExpiry(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	f.initialize(t, "not a timestamp")
	require.Len(t, f.jobs.scheduled, 2)
	require.Equal(t, now.Add(defaultReminderDelay), f.jobs.scheduled[0].RunAt)
	require.Equal(t, now.Add(defaultExpiry), f.jobs.scheduled[1].RunAt)
}

func TestInitializeTransactionGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.EXPECT().CreateVirtualAccount(gomock.Any(), gomock.Any()).
		Return(nil, errutil.BadGateway("invalid business", nil))

	txn, err := f.svc.InitializeTransaction(context.Background(), request())
	require.True(t, errutil.Is(err, errutil.StatusBadGateway))
	require.NotNil(t, txn)

	stored := f.reload(t, txn.ID)
	require.Equal(t, StatusFailed, stored.Status)
	require.Contains(t, stored.GatewayError, "invalid business")
	require.Empty(t, f.jobs.scheduled)

	f.initialize(t, "")
}

func TestInitializeTransactionValidation(t *testing.T) {
	f := newFixture(t)

	req := request()
	req.Amount = 0
	_, err := f.svc.InitializeTransaction(context.Background(), req)
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	req = request()
	req.PatientID = ""
	_, err = f.svc.InitializeTransaction(context.Background(), req)
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestConfirmPaymentCompletes(t *testing.T) {
	f := newFixture(t)
	txn := f.initialize(t, "")

	f.gateway.EXPECT().GetTransactionStatus(gomock.Any(), txn.GatewayTransactionID).
		Return(&gateway.TransactionStatus{Status: "SUCCESSFUL"}, nil).Times(1)

	result, err := f.svc.ConfirmPaymentStatus(context.Background(), txn.ID)
	require.NoError(t, err)
	require.False(t, result.AlreadyProcessed)
	require.Equal(t, gateway.OutcomeCompleted, result.Outcome)
	require.Equal(t, StatusCompleted, result.Transaction.Status)
	require.NotNil(t, result.Transaction.PaymentConfirmedAt)
	require.Empty(t, result.Warnings)
	require.Equal(t, int64(7000), result.Payout.Amount)

	var booking Consultation
	require.NoError(t, f.db.First(&booking, "id = ?", "c-1").Error)
	require.Equal(t, BookingActive, booking.Status)

	require.Len(t, f.payouts.requests, 1)
	require.Equal(t, txn.ID, f.payouts.requests[0].Linked.ID)
	require.ElementsMatch(t, []string{reminderJobID(txn.ID), expiryJobID(txn.ID)}, f.jobs.canceled)

	again, err := f.svc.ConfirmPaymentStatus(context.Background(), txn.ID)
	require.NoError(t, err)
	require.True(t, again.AlreadyProcessed)
	require.Len(t, f.payouts.requests, 1)
}

func TestConfirmPaymentConcurrentPolls(t *testing.T) {
	f := newFixture(t)
	txn := f.initialize(t, "")

	f.gateway.EXPECT().GetTransactionStatus(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string) (*gateway.TransactionStatus, error) {
			time.Sleep(20 * time.Millisecond)
			return &gateway.TransactionStatus{Status: "COMPLETED"}, nil
		}).Times(1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.ConfirmPaymentStatus(context.Background(), txn.ID)
		}()
	}
	wg.Wait()

	require.Equal(t, StatusCompleted, f.reload(t, txn.ID).Status)
	require.Len(t, f.payouts.requests, 1)
}

func TestConfirmPaymentStillPending(t *testing.T) {
	f := newFixture(t)
	txn := f.initialize(t, "")

	f.gateway.EXPECT().GetTransactionStatus(gomock.Any(), gomock.Any()).
		Return(&gateway.TransactionStatus{Status: "PROCESSING"}, nil)

	result, err := f.svc.ConfirmPaymentStatus(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, gateway.OutcomePending, result.Outcome)
	require.Equal(t, StatusPending, result.Transaction.Status)
	require.NotNil(t, result.Transaction.LastStatusCheckAt)
	require.Empty(t, f.payouts.requests)
}

func TestConfirmPaymentGatewayError(t *testing.T) {
	f := newFixture(t)
	txn := f.initialize(t, "")

	f.gateway.EXPECT().GetTransactionStatus(gomock.Any(), gomock.Any()).
		Return(nil, errutil.BadGateway("timeout", nil))

	_, err := f.svc.ConfirmPaymentStatus(context.Background(), txn.ID)
	require.True(t, errutil.Is(err, errutil.StatusBadGateway))

	stored := f.reload(t, txn.ID)
	require.Equal(t, StatusPending, stored.Status)
	require.True(t, stored.StatusCheckFailed)
	require.Contains(t, stored.StatusCheckError, "timeout")
	require.NotNil(t, stored.LastStatusCheckAt)
}

func TestConfirmPaymentDeclined(t *testing.T) {
	f := newFixture(t)
	txn := f.initialize(t, "")

	f.gateway.EXPECT().GetTransactionStatus(gomock.Any(), gomock.Any()).
		Return(&gateway.TransactionStatus{Status: "declined", StatusReason: "insufficient funds"}, nil)

	result, err := f.svc.ConfirmPaymentStatus(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, gateway.OutcomeFailed, result.Outcome)
	require.Equal(t, StatusFailed, result.Transaction.Status)
	require.Equal(t, "insufficient funds", result.Transaction.GatewayError)
	require.Empty(t, f.payouts.requests)
}

func TestConfirmPaymentPayoutFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	f.payouts.err = errutil.NotFound("no payout amount source for consultation", nil)
	txn := f.initialize(t, "")

	f.gateway.EXPECT().GetTransactionStatus(gomock.Any(), gomock.Any()).
		Return(&gateway.TransactionStatus{Status: ""}, nil)

	result, err := f.svc.ConfirmPaymentStatus(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Transaction.Status)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, string(errutil.StatusPartialFailure), result.Warnings[0].Code)
	require.Equal(t, StatusCompleted, f.reload(t, txn.ID).Status)
}

func TestExpireTransaction(t *testing.T) {
	f := newFixture(t)
	txn := f.initialize(t, "")

	expired, changed, err := f.svc.ExpireTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, StatusExpired, expired.Status)
	require.NotNil(t, expired.ExpiredAt)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, notification.TemplatePendingExpired, msgs[0].Template)
	require.Equal(t, "ada@example.com", msgs[0].To.Email)

	_, changed, err = f.svc.ExpireTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	require.False(t, changed)
	require.Len(t, f.notifier.messages(), 1)
}

func TestExpiryJobSkipsCompletedTransaction(t *testing.T) {
	f := newFixture(t)
	txn := f.initialize(t, "")

	f.gateway.EXPECT().GetTransactionStatus(gomock.Any(), gomock.Any()).
		Return(&gateway.TransactionStatus{Status: "PAID"}, nil)
	_, err := f.svc.ConfirmPaymentStatus(context.Background(), txn.ID)
	require.NoError(t, err)

	job := &scheduler.Job{ID: expiryJobID(txn.ID), Type: scheduler.PendingExpiry, Payload: []byte(`{"transaction_id":"` + txn.ID + `"}`)}
	require.NoError(t, f.svc.handleExpiry(context.Background(), job))

	require.Equal(t, StatusCompleted, f.reload(t, txn.ID).Status)
	require.Empty(t, f.notifier.messages())

	missing := &scheduler.Job{ID: "x", Type: scheduler.PendingExpiry, Payload: []byte(`{"transaction_id":"nope"}`)}
	require.NoError(t, f.svc.handleExpiry(context.Background(), missing))

	broken := &scheduler.Job{ID: "y", Type: scheduler.PendingExpiry, Payload: []byte(`{}`)}
	require.Error(t, f.svc.handleExpiry(context.Background(), broken))
}

func TestSendPendingReminder(t *testing.T) {
	f := newFixture(t)
	txn := f.initialize(t, "")

	sent, err := f.svc.SendPendingReminder(context.Background(), txn.ID, false)
	require.NoError(t, err)
	require.True(t, sent)
	require.NotNil(t, f.reload(t, txn.ID).PendingReminderSentAt)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, notification.TemplatePendingReminder, msgs[0].Template)
	require.Equal(t, reminderSubject, msgs[0].Subject)
	require.Equal(t, txn.OrderID, msgs[0].Data["orderId"])

	_, _, err = f.svc.ExpireTransaction(context.Background(), txn.ID)
	require.NoError(t, err)

	sent, err = f.svc.SendPendingReminder(context.Background(), txn.ID, false)
	require.NoError(t, err)
	require.False(t, sent)

	sent, err = f.svc.SendPendingReminder(context.Background(), txn.ID, true)
	require.NoError(t, err)
	require.True(t, sent)
}

func TestReminderUsesDirectoryWhenEmailMissing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, notification.NewContactDirectory(f.db).Upsert(context.Background(), &notification.Contact{
		UserID: "pat-1", Role: notification.RolePatient, FullName: "Ada L", Email: "ada@directory.example.com",
	}))

	f.gateway.EXPECT().CreateVirtualAccount(gomock.Any(), gomock.Any()).
		Return(&gateway.VirtualAccount{TransactionID: "gw-1"}, nil)
	req := request()
	req.PatientEmail = ""
	txn, err := f.svc.InitializeTransaction(context.Background(), req)
	require.NoError(t, err)

	job := &scheduler.Job{ID: reminderJobID(txn.ID), Type: scheduler.PendingReminder, Payload: []byte(`{"transaction_id":"` + txn.ID + `"}`)}
	require.NoError(t, f.svc.handleReminder(context.Background(), job))

	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "ada@directory.example.com", msgs[0].To.Email)
	require.Equal(t, "Ada L", msgs[0].Data["name"])
}

func TestExpiryFiresThroughScheduler(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.AutoMigrate(&scheduler.Job{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	var cfg config.Config
	cfg.Scheduler.GraceDelay = 10 * time.Millisecond
	sched := scheduler.NewScheduler(scheduler.Params{DB: f.db, Node: node, Config: &cfg})
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	f.svc.jobs = sched
	registerJobs(sched, f.svc)
	require.NoError(t, sched.Start(context.Background()))

	txn := f.initialize(t, time.Now().Add(50*time.Millisecond).UTC().Format(time.RFC3339Nano))

	require.Eventually(t, func() bool {
		var stored Transaction
		if err := f.db.First(&stored, "id = ?", txn.ID).Error; err != nil {
			return false
		}
		return stored.Status == StatusExpired
	}, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(f.notifier.messages()) == 1
	}, time.Second, 10*time.Millisecond)
	require.False(t, sched.Armed(reminderJobID(txn.ID)))
}
