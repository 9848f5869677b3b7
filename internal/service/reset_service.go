package service

import (
	"context"
	"time"

	"roomchat/internal/cache"
	"roomchat/internal/model"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	periodLayout    = "2006-01"
	resetRunTimeout = time.Minute
	resetNotice     = "Monthly reset: all messages and sessions have been cleared"
)

// ResetConfig configures the periodic wipe.
type ResetConfig struct {
	Location *time.Location
	Schedule string
	LockTTL  time.Duration
}

// ResetService wipes all room and session state once per calendar month.
// Only one instance performs a given period's reset.
type ResetService struct {
	system      cache.SystemCache
	messages    cache.MessageLog
	broadcaster Broadcaster
	audit       *AuditService
	cfg         ResetConfig
	now         func() time.Time
	log         *zap.Logger

	cron *cron.Cron
}

// NewResetService creates a new reset service
func NewResetService(system cache.SystemCache, messages cache.MessageLog, cfg ResetConfig, audit *AuditService, log *zap.Logger) *ResetService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 0 1 * *"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &ResetService{
		system:      system,
		messages:    messages,
		broadcaster: nopBroadcaster{},
		audit:       audit,
		cfg:         cfg,
		now:         time.Now,
		log:         log,
	}
}

// SetBroadcaster sets the broadcaster used to tell clients about a reset
func (s *ResetService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetClock replaces the time source.
func (s *ResetService) SetClock(now func() time.Time) {
	s.now = now
}

// Period returns the period identifier for t in the reset timezone.
func (s *ResetService) Period(t time.Time) string {
	return t.In(s.cfg.Location).Format(periodLayout)
}

// RunOnce performs the reset if the stored period marker is stale. With
// force the marker is ignored but the lock is still taken. It reports
// whether this call performed the wipe; losing the lock is not an error.
func (s *ResetService) RunOnce(ctx context.Context, force bool) (bool, error) {
	period := s.Period(s.now())

	if !force {
		current, err := s.system.CurrentPeriod(ctx)
		if err != nil {
			return false, storeError("read period", err)
		}
		if current == period {
			return false, nil
		}
	}

	token, ok, err := s.system.AcquireResetLock(ctx, s.cfg.LockTTL)
	if err != nil {
		return false, storeError("acquire reset lock", err)
	}
	if !ok {
		s.log.Debug("reset lock held elsewhere", zap.String("period", period))
		return false, nil
	}
	defer func() {
		if err := s.system.ReleaseResetLock(context.WithoutCancel(ctx), token); err != nil {
			s.log.Warn("release reset lock", zap.Error(err))
		}
	}()

	// Another instance may have finished between the first read and the lock.
	if !force {
		current, err := s.system.CurrentPeriod(ctx)
		if err != nil {
			return false, storeError("read period", err)
		}
		if current == period {
			return false, nil
		}
	}

	rooms, err := s.messages.Rooms(ctx)
	if err != nil {
		return false, storeError("list rooms", err)
	}
	deleted, err := s.system.Wipe(ctx, cache.WipePatterns...)
	if err != nil {
		return false, storeError("wipe", err)
	}
	if err := s.system.SetPeriod(ctx, period); err != nil {
		return false, storeError("write period", err)
	}

	s.log.Info("monthly reset done",
		zap.String("period", period),
		zap.Int("rooms", len(rooms)),
		zap.Int64("keys", deleted),
		zap.Bool("forced", force))

	s.broadcaster.BroadcastToAll(model.EventClearMessages, nil)
	s.broadcaster.BroadcastToAll(model.EventNotify, model.NotifyPayload{
		Message: resetNotice,
		Type:    model.NotifyWarning,
	})
	s.broadcaster.BroadcastToAll(model.EventAuthRequired, nil)

	s.audit.Record(ctx, model.AuditEvent{
		Action: model.ActionReset,
		Extra:  map[string]string{"period": period},
	})
	return true, nil
}

// Start runs the check once and then on the configured schedule.
func (s *ResetService) Start(ctx context.Context) error {
	s.run(ctx)

	c := cron.New(cron.WithLocation(s.cfg.Location))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.run(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.cron = c

	s.log.Info("reset scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.String("tz", s.cfg.Location.String()))
	return nil
}

// Stop halts the schedule and waits for a running reset to finish.
func (s *ResetService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *ResetService) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, resetRunTimeout)
	defer cancel()
	if _, err := s.RunOnce(runCtx, false); err != nil {
		s.log.Error("monthly reset failed", zap.Error(err))
	}
}
