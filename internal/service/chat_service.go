package service

import (
	"context"
	"time"

	"roomchat/internal/cache"
	"roomchat/internal/model"

	"go.uber.org/zap"
)

// ChatService accepts messages into room logs and serves history.
type ChatService struct {
	log   cache.MessageLog
	auth  *AuthService
	abuse *AbuseService
	admin *AdminService
	audit *AuditService
	now   func() time.Time
	zl    *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(messages cache.MessageLog, auth *AuthService, abuse *AbuseService, admin *AdminService, audit *AuditService, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		log:   messages,
		auth:  auth,
		abuse: abuse,
		admin: admin,
		audit: audit,
		now:   time.Now,
		zl:    log,
	}
}

// SetClock replaces the time source used for message timestamps.
func (s *ChatService) SetClock(now func() time.Time) {
	s.now = now
}

// Send validates req, authenticates its token, passes the abuse gate and
// appends the message. Room members receive it through the log's publish.
func (s *ChatService) Send(ctx context.Context, req *model.SendMessageRequest, addr string) (*model.Message, error) {
	text := req.Body()
	if err := ValidateRoomID(req.RoomID); err != nil {
		return nil, err
	}
	if err := ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := ValidateText(text); err != nil {
		return nil, err
	}
	if err := ValidateSeed(req.Seed); err != nil {
		return nil, err
	}

	sessionID, err := s.auth.RequireSession(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	username := escape(req.Username)
	if err := s.abuse.Gate(ctx, sessionID, username); err != nil {
		return nil, err
	}

	msg := &model.Message{
		Username:  username,
		Text:      escape(text),
		Time:      s.now().UTC(),
		SessionID: sessionID,
		Seed:      req.Seed,
	}
	if err := s.log.Append(ctx, req.RoomID, msg); err != nil {
		return nil, storeError("append message", err)
	}

	s.audit.Record(ctx, model.AuditEvent{
		Action:    model.ActionSendMessage,
		SessionID: sessionID,
		Username:  username,
		RoomID:    req.RoomID,
		Addr:      addr,
	})
	return msg, nil
}

// History returns the retained messages of a room, oldest first.
func (s *ChatService) History(ctx context.Context, roomID string) ([]model.Message, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	messages, err := s.log.Read(ctx, roomID)
	if err != nil {
		return nil, storeError("read messages", err)
	}
	return messages, nil
}

// Clear empties one room's log. The caller must present the admin password
// or an admin bearer token.
func (s *ChatService) Clear(ctx context.Context, req *model.ClearRoomRequest, bearer, addr string) error {
	if err := s.admin.Authorize(req.Password, bearer); err != nil {
		return err
	}
	if err := ValidateRoomID(req.RoomID); err != nil {
		return err
	}

	// The session token only attributes the action.
	var sessionID string
	if req.Token != "" {
		if res, err := s.auth.Validate(ctx, req.Token); err == nil && res.Valid() {
			sessionID = res.SessionID
		}
	}

	if err := s.log.Clear(ctx, req.RoomID); err != nil {
		return storeError("clear messages", err)
	}

	s.zl.Info("room cleared", zap.String("roomId", req.RoomID), zap.String("addr", addr))
	s.audit.Record(ctx, model.AuditEvent{
		Action:    model.ActionClearRoom,
		SessionID: sessionID,
		RoomID:    req.RoomID,
		Addr:      addr,
	})
	return nil
}
