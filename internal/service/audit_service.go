package service

import (
	"context"
	"time"

	"roomchat/internal/model"
	"roomchat/internal/repository"

	"go.uber.org/zap"
)

const auditWriteTimeout = 2 * time.Second

// AuditService records user actions. Entries go to the audit repository
// when one is configured and to the structured log otherwise. Recording
// never fails the calling operation.
type AuditService struct {
	repo repository.AuditRepo
	log  *zap.Logger
	now  func() time.Time
}

// NewAuditService creates a new audit service. repo may be nil.
func NewAuditService(repo repository.AuditRepo, log *zap.Logger) *AuditService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditService{repo: repo, log: log, now: time.Now}
}

// Enabled reports whether entries are persisted.
func (s *AuditService) Enabled() bool {
	return s != nil && s.repo != nil
}

// Record stores one audit entry.
func (s *AuditService) Record(ctx context.Context, event model.AuditEvent) {
	if s == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}

	fields := []zap.Field{
		zap.String("action", event.Action),
		zap.String("sessionId", event.SessionID),
		zap.String("roomId", event.RoomID),
		zap.String("addr", event.Addr),
	}
	if s.repo == nil {
		s.log.Info("audit", fields...)
		return
	}

	// The entry is written even when the request context is already done.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	if err := s.repo.Insert(wctx, &event); err != nil {
		s.log.Warn("audit write failed", append(fields, zap.Error(err))...)
	}
}

// Recent returns the newest entries. Without a repository the result is
// always empty.
func (s *AuditService) Recent(ctx context.Context, limit int64) ([]model.AuditEvent, error) {
	if !s.Enabled() {
		return []model.AuditEvent{}, nil
	}
	events, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, storeError("read audit", err)
	}
	return events, nil
}
