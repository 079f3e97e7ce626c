package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"medvive-settlement/pkg/config"
	"medvive-settlement/pkg/db/option"
	"medvive-settlement/pkg/errutil"
	"medvive-settlement/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	defaultGraceDelay   = 10 * time.Second
	defaultClaimTimeout = 5 * time.Minute
	defaultRetryDelay   = 30 * time.Second
	defaultMaxAttempts  = 5
)

type handle struct {
	timer *time.Timer
	runAt time.Time
}

type Scheduler struct {
	db   *gorm.DB
	node *snowflake.Node
	jobs repository.Repository[Job]
	now  func() time.Time

	instanceID     string
	graceDelay     time.Duration
	claimTimeout   time.Duration
	retryDelay     time.Duration
	maxAttempts    int
	resyncInterval time.Duration

	mu       sync.Mutex
	handles  map[string]*handle
	handlers map[JobType]Handler
	stopped  bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

type Params struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config `optional:"true"`
}

func NewScheduler(p Params) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		db:   p.DB,
		node: p.Node,
		jobs: repository.ProvideStore[Job](p.DB),
		now:  func() time.Time { return time.Now().UTC() },

		graceDelay:   defaultGraceDelay,
		claimTimeout: defaultClaimTimeout,
		retryDelay:   defaultRetryDelay,
		maxAttempts:  defaultMaxAttempts,

		handles:  make(map[string]*handle),
		handlers: make(map[JobType]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}

	if p.Config != nil {
		c := p.Config.Scheduler
		s.instanceID = c.InstanceID
		if c.GraceDelay > 0 {
			s.graceDelay = c.GraceDelay
		}
		if c.ClaimTimeout > 0 {
			s.claimTimeout = c.ClaimTimeout
		}
		if c.RetryDelay > 0 {
			s.retryDelay = c.RetryDelay
		}
		if c.MaxAttempts > 0 {
			s.maxAttempts = c.MaxAttempts
		}
		s.resyncInterval = c.ResyncInterval
	}

	if s.instanceID == "" {
		host, _ := os.Hostname()
		s.instanceID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	return s
}

// Handle registers the handler for a job type. Registration happens before Start.
func (s *Scheduler) Handle(t JobType, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[t] = h
}

// Schedule persists the job and then arms its timer.
func (s *Scheduler) Schedule(ctx context.Context, req ScheduleRequest) (*Job, error) {
	if req.Type == "" {
		return nil, errutil.ValidationFailed("job type is required", nil)
	}
	if req.RunAt.IsZero() {
		return nil, errutil.ValidationFailed("job run time is required", nil)
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, errutil.ValidationFailed("job payload is not serializable", err)
	}

	id := req.ID
	if id == "" {
		id = s.node.Generate().String()
	}

	now := s.now()
	job := &Job{
		ID:        id,
		Type:      req.Type,
		RunAt:     req.RunAt.UTC(),
		Status:    StatusScheduled,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "run_at", "status", "payload", "attempts", "last_error",
			"claimed_by", "claimed_at", "executed_at", "canceled_at", "updated_at",
		}),
	}).Create(job).Error; err != nil {
		zap.L().Error("[Scheduler] failed to persist job", zap.String("job_id", id), zap.Error(err))
		return nil, err
	}

	s.arm(job.ID, job.RunAt)
	jobsScheduled.WithLabelValues(string(job.Type)).Inc()
	zap.L().Debug("[Scheduler] job scheduled",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Time("run_at", job.RunAt),
	)
	return job, nil
}

// Cancel stops the in-memory timers, then marks still scheduled jobs canceled.
// Timers are stopped even when the store update fails.
func (s *Scheduler) Cancel(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	for _, id := range ids {
		if h, ok := s.handles[id]; ok {
			h.timer.Stop()
			delete(s.handles, id)
		}
	}
	armedTimers.Set(float64(len(s.handles)))
	s.mu.Unlock()

	var errs []error
	now := s.now()
	for _, id := range ids {
		if _, err := s.jobs.UpdateIf(ctx, id,
			map[string]any{"status": StatusScheduled},
			map[string]any{"status": StatusCanceled, "canceled_at": now, "updated_at": now},
		); err != nil {
			zap.L().Warn("[Scheduler] failed to mark job canceled", zap.String("job_id", id), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Armed reports whether a timer is pending for id in this process.
func (s *Scheduler) Armed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[id]
	return ok
}

// Start reclaims abandoned claims and arms every scheduled job before
// returning. The periodic resync runs in the background afterwards.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.reclaim(ctx); err != nil {
		return err
	}

	restored, err := s.restore(ctx)
	if err != nil {
		return err
	}
	zap.L().Info("[Scheduler] started",
		zap.String("instance_id", s.instanceID),
		zap.Int("restored", restored),
	)

	if s.resyncInterval > 0 {
		go wait.JitterUntilWithContext(s.ctx, func(ctx context.Context) {
			if err := s.reclaim(ctx); err != nil {
				zap.L().Warn("[Scheduler] resync reclaim failed", zap.Error(err))
			}
			if n, err := s.restore(ctx); err != nil {
				zap.L().Warn("[Scheduler] resync restore failed", zap.Error(err))
			} else if n > 0 {
				zap.L().Info("[Scheduler] resync armed jobs", zap.Int("armed", n))
			}
		}, s.resyncInterval, 0.2, true)
	}
	return nil
}

// Stop cancels every timer and waits for running handlers.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for id, h := range s.handles {
		h.timer.Stop()
		delete(s.handles, id)
	}
	armedTimers.Set(0)
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("[Scheduler] stopped")
		return nil
	case <-ctx.Done():
		zap.L().Warn("[Scheduler] stopped before handlers finished")
		return ctx.Err()
	}
}

// reclaim returns jobs whose claim outlived the claim timeout to scheduled.
func (s *Scheduler) reclaim(ctx context.Context) error {
	cutoff := s.now().Add(-s.claimTimeout)
	stale, err := s.jobs.Find(ctx, &Job{Status: StatusRunning},
		option.ApplyOperator(option.Condition{Field: "claimed_at", Operator: option.LT, Value: cutoff}),
	)
	if err != nil {
		zap.L().Error("[Scheduler] failed to list stale claims", zap.Error(err))
		return err
	}

	for _, job := range stale {
		rows, err := s.jobs.UpdateIf(ctx, job.ID,
			map[string]any{"status": StatusRunning, "claimed_by": job.ClaimedBy},
			map[string]any{"status": StatusScheduled, "claimed_by": "", "claimed_at": nil, "updated_at": s.now()},
		)
		if err != nil {
			return err
		}
		if rows > 0 {
			zap.L().Warn("[Scheduler] reclaimed abandoned job",
				zap.String("job_id", job.ID),
				zap.String("claimed_by", job.ClaimedBy),
			)
		}
	}
	return nil
}

// restore arms stored scheduled jobs that have no local timer. Past due jobs
// run after the grace delay.
func (s *Scheduler) restore(ctx context.Context) (int, error) {
	pending, err := s.jobs.Find(ctx, &Job{Status: StatusScheduled})
	if err != nil {
		zap.L().Error("[Scheduler] failed to list scheduled jobs", zap.Error(err))
		return 0, err
	}

	now := s.now()
	armed := 0
	for _, job := range pending {
		if s.Armed(job.ID) {
			continue
		}
		runAt := job.RunAt
		if !runAt.After(now) {
			runAt = now.Add(s.graceDelay)
		}
		if s.arm(job.ID, runAt) {
			armed++
		}
	}
	return armed, nil
}

func (s *Scheduler) arm(id string, runAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if h, ok := s.handles[id]; ok {
		h.timer.Stop()
	}

	delay := runAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	h := &handle{runAt: runAt}
	h.timer = time.AfterFunc(delay, func() { s.fire(id, h) })
	s.handles[id] = h
	armedTimers.Set(float64(len(s.handles)))
	return true
}

func (s *Scheduler) fire(id string, h *handle) {
	s.mu.Lock()
	if current, ok := s.handles[id]; !ok || current != h || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.handles, id)
	armedTimers.Set(float64(len(s.handles)))
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.execute(s.ctx, id)
}

func (s *Scheduler) execute(ctx context.Context, id string) {
	log := zap.L().With(zap.String("job_id", id), zap.String("instance_id", s.instanceID))
	now := s.now()

	rows, err := s.jobs.UpdateIf(ctx, id,
		map[string]any{"status": StatusScheduled},
		map[string]any{
			"status":     StatusRunning,
			"claimed_by": s.instanceID,
			"claimed_at": now,
			"attempts":   gorm.Expr("attempts + ?", 1),
			"updated_at": now,
		},
	)
	if err != nil {
		log.Error("[Scheduler] failed to claim job", zap.Error(err))
		return
	}
	if rows == 0 {
		log.Debug("[Scheduler] job already claimed or no longer scheduled")
		return
	}

	job, err := s.jobs.FindOne(ctx, &Job{ID: id})
	if err != nil || job == nil {
		log.Error("[Scheduler] claimed job disappeared", zap.Error(err))
		return
	}
	log = log.With(zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempts))

	s.mu.Lock()
	handler, ok := s.handlers[job.Type]
	s.mu.Unlock()
	if !ok {
		log.Error("[Scheduler] no handler registered for job type")
		jobsFinished.WithLabelValues(string(job.Type), "failed").Inc()
		s.finish(ctx, job, StatusFailed, "no handler registered for job type "+string(job.Type))
		return
	}

	if err := runHandler(ctx, handler, job); err != nil {
		if job.Attempts >= s.maxAttempts {
			log.Error("[Scheduler] job failed permanently", zap.Error(err))
			jobsFinished.WithLabelValues(string(job.Type), "failed").Inc()
			s.finish(ctx, job, StatusFailed, err.Error())
			return
		}

		retryAt := s.now().Add(s.retryDelay)
		rows, uerr := s.jobs.UpdateIf(ctx, id,
			map[string]any{"status": StatusRunning, "claimed_by": s.instanceID},
			map[string]any{
				"status":     StatusScheduled,
				"run_at":     retryAt,
				"last_error": err.Error(),
				"claimed_by": "",
				"claimed_at": nil,
				"updated_at": s.now(),
			},
		)
		if uerr != nil {
			log.Error("[Scheduler] failed to reschedule job", zap.Error(uerr))
			return
		}
		if rows > 0 {
			log.Warn("[Scheduler] job failed, retrying", zap.Time("retry_at", retryAt), zap.Error(err))
			jobsFinished.WithLabelValues(string(job.Type), "retried").Inc()
			s.arm(id, retryAt)
		}
		return
	}

	s.finish(ctx, job, StatusExecuted, "")
	jobsFinished.WithLabelValues(string(job.Type), "executed").Inc()
	log.Info("[Scheduler] job executed")
}

func (s *Scheduler) finish(ctx context.Context, job *Job, status Status, lastError string) {
	now := s.now()
	updates := map[string]any{
		"status":     status,
		"last_error": lastError,
		"updated_at": now,
	}
	if status == StatusExecuted {
		updates["executed_at"] = now
	}

	if _, err := s.jobs.UpdateIf(ctx, job.ID,
		map[string]any{"status": StatusRunning, "claimed_by": s.instanceID},
		updates,
	); err != nil {
		zap.L().Error("[Scheduler] failed to record job result",
			zap.String("job_id", job.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func runHandler(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}
