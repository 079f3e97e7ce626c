package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"medvive-settlement/pkg/config"
	"medvive-settlement/services/testutil"

	"github.com/bwmarrin/snowflake"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestScheduler(t *testing.T, db *gorm.DB, instance string) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	var cfg config.Config
	cfg.Scheduler.InstanceID = instance
	cfg.Scheduler.GraceDelay = 10 * time.Millisecond
	cfg.Scheduler.RetryDelay = 10 * time.Millisecond
	cfg.Scheduler.MaxAttempts = 3
	cfg.Scheduler.ClaimTimeout = time.Minute

	s := NewScheduler(Params{DB: db, Node: node, Config: &cfg})
	t.Cleanup(func() {
		_ = s.Stop(context.Background())
	})
	return s
}

func loadJob(t *testing.T, db *gorm.DB, id string) *Job {
	t.Helper()
	var job Job
	require.NoError(t, db.First(&job, "id = ?", id).Error)
	return &job
}

func waitForStatus(t *testing.T, db *gorm.DB, id string, status Status) *Job {
	t.Helper()
	require.Eventually(t, func() bool {
		var job Job
		if err := db.First(&job, "id = ?", id).Error; err != nil {
			return false
		}
		return job.Status == status
	}, 2*time.Second, 10*time.Millisecond)
	return loadJob(t, db, id)
}

type reminderPayload struct {
	TransactionID string `json:"transaction_id"`
}

func TestScheduleFiresHandlerOnce(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})
	s := newTestScheduler(t, db, "node-a")

	var calls atomic.Int32
	var got reminderPayload
	s.Handle(PendingReminder, func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return job.Decode(&got)
	})

	job, err := s.Schedule(context.Background(), ScheduleRequest{
		Type:    PendingReminder,
		RunAt:   time.Now().Add(20 * time.Millisecond),
		Payload: reminderPayload{TransactionID: "txn-1"},
	})
	require.NoError(t, err)
	require.True(t, s.Armed(job.ID))

	done := waitForStatus(t, db, job.ID, StatusExecuted)
	require.NotNil(t, done.ExecutedAt)
	require.Equal(t, "node-a", done.ClaimedBy)
	require.Equal(t, 1, done.Attempts)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, "txn-1", got.TransactionID)
	require.False(t, s.Armed(job.ID))
}

func TestScheduleValidatesRequest(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})
	s := newTestScheduler(t, db, "node-a")

	_, err := s.Schedule(context.Background(), ScheduleRequest{RunAt: time.Now()})
	require.Error(t, err)

	_, err = s.Schedule(context.Background(), ScheduleRequest{Type: PendingExpiry})
	require.Error(t, err)
}

func TestCancelStopsTimerAndMarksJob(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})
	s := newTestScheduler(t, db, "node-a")

	var calls atomic.Int32
	s.Handle(UnseenNotification, func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return nil
	})

	_, err := s.Schedule(context.Background(), ScheduleRequest{
		ID:    "unseen:a:b",
		Type:  UnseenNotification,
		RunAt: time.Now().Add(50 * time.Millisecond),
	})
	require.NoError(t, err)

	require.NoError(t, s.Cancel(context.Background(), "unseen:a:b", "unseen:b:a"))
	require.False(t, s.Armed("unseen:a:b"))

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, int32(0), calls.Load())

	job := loadJob(t, db, "unseen:a:b")
	require.Equal(t, StatusCanceled, job.Status)
	require.NotNil(t, job.CanceledAt)
}

func TestRescheduleSameIDReplacesPendingJob(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})
	s := newTestScheduler(t, db, "node-a")

	var calls atomic.Int32
	s.Handle(UnseenNotification, func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return nil
	})

	ctx := context.Background()
	_, err := s.Schedule(ctx, ScheduleRequest{ID: "unseen:a:b", Type: UnseenNotification, RunAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.Schedule(ctx, ScheduleRequest{ID: "unseen:a:b", Type: UnseenNotification, RunAt: time.Now().Add(20 * time.Millisecond)})
	require.NoError(t, err)

	waitForStatus(t, db, "unseen:a:b", StatusExecuted)
	require.Equal(t, int32(1), calls.Load())

	var count int64
	require.NoError(t, db.Model(&Job{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestStartRestoresPersistedJobs(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})
	now := time.Now().UTC()
	require.NoError(t, db.Create(&Job{ID: "past", Type: PendingExpiry, RunAt: now.Add(-time.Hour), Status: StatusScheduled}).Error)
	require.NoError(t, db.Create(&Job{ID: "future", Type: PendingExpiry, RunAt: now.Add(time.Hour), Status: StatusScheduled}).Error)
	require.NoError(t, db.Create(&Job{ID: "done", Type: PendingExpiry, RunAt: now.Add(-time.Hour), Status: StatusExecuted}).Error)

	s := newTestScheduler(t, db, "node-a")
	var calls atomic.Int32
	s.Handle(PendingExpiry, func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, s.Start(context.Background()))
	require.True(t, s.Armed("future"))
	require.False(t, s.Armed("done"))

	waitForStatus(t, db, "past", StatusExecuted)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, StatusScheduled, loadJob(t, db, "future").Status)
}

func TestStartReclaimsAbandonedClaims(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})
	claimedAt := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Create(&Job{
		ID:        "stale",
		Type:      PendingReminder,
		RunAt:     claimedAt,
		Status:    StatusRunning,
		Attempts:  1,
		ClaimedBy: "node-dead",
		ClaimedAt: &claimedAt,
	}).Error)

	s := newTestScheduler(t, db, "node-a")
	s.Handle(PendingReminder, func(ctx context.Context, job *Job) error { return nil })

	require.NoError(t, s.Start(context.Background()))

	job := waitForStatus(t, db, "stale", StatusExecuted)
	require.Equal(t, "node-a", job.ClaimedBy)
	require.Equal(t, 2, job.Attempts)
}

func TestClaimAllowsSingleExecutionAcrossInstances(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})

	var calls atomic.Int32
	handler := func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return nil
	}

	a := newTestScheduler(t, db, "node-a")
	b := newTestScheduler(t, db, "node-b")
	a.Handle(PendingExpiry, handler)
	b.Handle(PendingExpiry, handler)

	job, err := a.Schedule(context.Background(), ScheduleRequest{
		Type:  PendingExpiry,
		RunAt: time.Now().Add(30 * time.Millisecond),
	})
	require.NoError(t, err)

	require.NoError(t, b.Start(context.Background()))
	require.True(t, b.Armed(job.ID))

	waitForStatus(t, db, job.ID, StatusExecuted)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestFailingHandlerRetriesThenFails(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})
	s := newTestScheduler(t, db, "node-a")

	var calls atomic.Int32
	s.Handle(PendingReminder, func(ctx context.Context, job *Job) error {
		calls.Add(1)
		return errors.New("mail relay unavailable")
	})

	job, err := s.Schedule(context.Background(), ScheduleRequest{Type: PendingReminder, RunAt: time.Now()})
	require.NoError(t, err)

	failed := waitForStatus(t, db, job.ID, StatusFailed)
	require.Equal(t, 3, failed.Attempts)
	require.Equal(t, "mail relay unavailable", failed.LastError)
	require.Equal(t, int32(3), calls.Load())
}

func TestHandlerRecoveredAfterRetry(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})
	s := newTestScheduler(t, db, "node-a")

	var calls atomic.Int32
	s.Handle(PendingReminder, func(ctx context.Context, job *Job) error {
		if calls.Add(1) == 1 {
			panic("first attempt blew up")
		}
		return nil
	})

	job, err := s.Schedule(context.Background(), ScheduleRequest{Type: PendingReminder, RunAt: time.Now()})
	require.NoError(t, err)

	done := waitForStatus(t, db, job.ID, StatusExecuted)
	require.Equal(t, 2, done.Attempts)
	require.Empty(t, done.LastError)
}

func TestUnknownJobTypeFails(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})
	s := newTestScheduler(t, db, "node-a")

	job, err := s.Schedule(context.Background(), ScheduleRequest{Type: "mystery", RunAt: time.Now()})
	require.NoError(t, err)

	failed := waitForStatus(t, db, job.ID, StatusFailed)
	require.Contains(t, failed.LastError, "no handler")
}

func TestStopDisarmsTimers(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})
	s := newTestScheduler(t, db, "node-a")

	job, err := s.Schedule(context.Background(), ScheduleRequest{Type: PendingExpiry, RunAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.True(t, s.Armed(job.ID))

	require.NoError(t, s.Stop(context.Background()))
	require.False(t, s.Armed(job.ID))

	// persisted jobs survive for the next process
	require.Equal(t, StatusScheduled, loadJob(t, db, job.ID).Status)
}

func TestJobMetrics(t *testing.T) {
	db := testutil.NewTestDB(t, &Job{})
	s := newTestScheduler(t, db, "node-a")

	job, err := s.Schedule(context.Background(), ScheduleRequest{Type: "metered", RunAt: time.Now()})
	require.NoError(t, err)
	require.Equal(t, float64(1), promtest.ToFloat64(jobsScheduled.WithLabelValues("metered")))

	waitForStatus(t, db, job.ID, StatusFailed)
	require.Equal(t, float64(1), promtest.ToFloat64(jobsFinished.WithLabelValues("metered", "failed")))
	require.Zero(t, promtest.ToFloat64(jobsFinished.WithLabelValues("metered", "executed")))
}
