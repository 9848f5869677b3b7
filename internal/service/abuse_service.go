package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"roomchat/internal/cache"
	"roomchat/internal/model"

	"go.uber.org/zap"
)

// AbuseService gates message sends with the flat cooldown and the cadence
// detector.
type AbuseService struct {
	cache       cache.AbuseCache
	policy      model.AbusePolicy
	broadcaster Broadcaster
	audit       *AuditService
	now         func() time.Time
	log         *zap.Logger
}

// NewAbuseService creates a new abuse service
func NewAbuseService(abuse cache.AbuseCache, policy model.AbusePolicy, audit *AuditService, log *zap.Logger) *AbuseService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AbuseService{
		cache:       abuse,
		policy:      policy,
		broadcaster: nopBroadcaster{},
		audit:       audit,
		now:         time.Now,
		log:         log,
	}
}

// SetBroadcaster sets the broadcaster used for mute notices
func (s *AbuseService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetClock replaces the time source.
func (s *AbuseService) SetClock(now func() time.Time) {
	s.now = now
}

// Policy returns the active policy.
func (s *AbuseService) Policy() model.AbusePolicy {
	return s.policy
}

// Gate evaluates one send attempt. A rejected attempt returns a
// *RateLimitError. The attempt that triggers a mute is itself rejected and
// the session is told once why.
func (s *AbuseService) Gate(ctx context.Context, sessionID, username string) error {
	decision, err := s.cache.Check(ctx, sessionID, s.now(), s.policy)
	if err != nil {
		return storeError("abuse check", err)
	}

	switch decision.Verdict {
	case model.VerdictAllowed:
		return nil
	case model.VerdictCooldown:
		return &RateLimitError{
			Reason:     "You are sending messages too fast",
			RetryAfter: decision.RetryAfter,
		}
	case model.VerdictMuted:
		return &RateLimitError{
			Reason:     fmt.Sprintf("You are muted, retry in %ds", seconds(decision.RetryAfter)),
			RetryAfter: decision.RetryAfter,
		}
	case model.VerdictMutedNow:
		reason := fmt.Sprintf("Spam detected, you are muted for %ds", seconds(decision.RetryAfter))
		s.log.Info("session muted",
			zap.String("sessionId", sessionID),
			zap.Int("repeat", decision.Repeat),
			zap.Duration("mute", decision.RetryAfter))

		s.broadcaster.BroadcastToSession(sessionID, model.EventNotify, model.NotifyPayload{
			Message: reason,
			Type:    model.NotifyWarning,
		})
		s.audit.Record(ctx, model.AuditEvent{
			Action:    model.ActionMute,
			SessionID: sessionID,
			Username:  username,
			Extra:     map[string]string{"repeat": fmt.Sprint(decision.Repeat)},
		})
		return &RateLimitError{Reason: reason, RetryAfter: decision.RetryAfter}
	default:
		return storeError("abuse check", fmt.Errorf("unknown verdict %d", decision.Verdict))
	}
}

// Unmute lifts a mute and forgets the cadence record.
func (s *AbuseService) Unmute(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return validationError("sessionId is required")
	}
	if err := s.cache.Unmute(ctx, sessionID); err != nil {
		return storeError("unmute", err)
	}
	s.broadcaster.BroadcastToSession(sessionID, model.EventNotify, model.NotifyPayload{
		Message: "You can send messages again",
		Type:    model.NotifyInfo,
	})
	s.log.Info("session unmuted", zap.String("sessionId", sessionID))
	return nil
}

func seconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}
