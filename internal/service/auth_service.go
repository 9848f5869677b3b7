package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"roomchat/internal/cache"
	"roomchat/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthConfig configures session token issuance and validation.
type AuthConfig struct {
	Secret          string
	TTL             time.Duration
	MaxAge          time.Duration
	ClockSkew       time.Duration
	ReissueCooldown time.Duration
}

// AuthService issues and validates session tokens. A token is
// "<sessionId>.<issuedAtMillis>.<hex hmac>" and is only accepted while it is
// the session's current token in the store.
type AuthService struct {
	tokens      cache.TokenCache
	secret      []byte
	cfg         AuthConfig
	broadcaster Broadcaster
	now         func() time.Time
	log         *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(tokens cache.TokenCache, cfg AuthConfig, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &AuthService{
		tokens:      tokens,
		secret:      []byte(cfg.Secret),
		cfg:         cfg,
		broadcaster: nopBroadcaster{},
		now:         time.Now,
		log:         log,
	}
}

// SetBroadcaster sets the broadcaster used to reach revoked sessions
func (s *AuthService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetClock replaces the time source.
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *AuthService) sign(sessionID string, issuedAt int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(sessionID + "." + strconv.FormatInt(issuedAt, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue creates a token for sessionID and makes it the session's only
// valid token.
func (s *AuthService) Issue(ctx context.Context, sessionID string) (string, error) {
	issuedAt := s.now().UnixMilli()
	token := sessionID + "." + strconv.FormatInt(issuedAt, 10) + "." + s.sign(sessionID, issuedAt)

	if err := s.tokens.SetToken(ctx, sessionID, token, s.cfg.TTL); err != nil {
		return "", storeError("store token", err)
	}
	return token, nil
}

// Validate checks a token. The error is non-nil only when the store could
// not be consulted.
func (s *AuthService) Validate(ctx context.Context, token string) (model.TokenResult, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return model.TokenResult{Status: model.TokenMalformed}, nil
	}
	sessionID, tsPart, sigPart := parts[0], parts[1], parts[2]

	issuedAt, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return model.TokenResult{Status: model.TokenMalformed}, nil
	}
	sig, err := hex.DecodeString(sigPart)
	if err != nil {
		return model.TokenResult{Status: model.TokenMalformed}, nil
	}
	want, _ := hex.DecodeString(s.sign(sessionID, issuedAt))
	if !hmac.Equal(sig, want) {
		return model.TokenResult{Status: model.TokenSignatureMismatch}, nil
	}

	issued := time.UnixMilli(issuedAt)
	stored, err := s.tokens.GetToken(ctx, sessionID)
	if err != nil {
		return model.TokenResult{}, storeError("load token", err)
	}
	if !hmac.Equal([]byte(stored), []byte(token)) {
		return model.TokenResult{Status: model.TokenRevoked, IssuedAt: issued}, nil
	}

	res := model.TokenResult{
		Status:    model.TokenValid,
		SessionID: sessionID,
		IssuedAt:  issued,
	}
	if s.cfg.MaxAge > 0 {
		age := s.now().Sub(issued)
		if age > s.cfg.MaxAge || age < -s.cfg.ClockSkew {
			res.Status = model.TokenExpired
		}
	}
	return res, nil
}

// RequireSession validates token and returns its session id, or ErrAuth.
func (s *AuthService) RequireSession(ctx context.Context, token string) (string, error) {
	res, err := s.Validate(ctx, token)
	if err != nil {
		return "", err
	}
	if !res.Valid() {
		return "", ErrAuth
	}
	return res.SessionID, nil
}

// Authenticate resumes the session behind token or, when the token is not
// valid, mints a new session. A token that aged out while still being the
// session's current one is rotated for the same session. The returned token
// is empty when the presented one is still valid. Both fresh sessions and
// rotations are limited per client address.
func (s *AuthService) Authenticate(ctx context.Context, token, username, addr string) (*model.Session, string, error) {
	if token != "" {
		res, err := s.Validate(ctx, token)
		if err != nil {
			return nil, "", err
		}
		if res.Valid() {
			session := &model.Session{ID: res.SessionID, IssuedAt: res.IssuedAt}
			if err := s.applyUsername(ctx, session, username); err != nil {
				return nil, "", err
			}
			return session, "", nil
		}
		if res.Status == model.TokenExpired && res.SessionID != "" {
			return s.rotate(ctx, res.SessionID, username, addr)
		}
		s.log.Debug("token rejected", zap.String("status", res.Status.String()), zap.String("addr", addr))
	}

	if err := s.reserveReissue(ctx, addr); err != nil {
		return nil, "", err
	}

	session := &model.Session{ID: uuid.NewString()}
	newToken, err := s.Issue(ctx, session.ID)
	if err != nil {
		return nil, "", err
	}
	session.IssuedAt = s.now()
	if err := s.applyUsername(ctx, session, username); err != nil {
		return nil, "", err
	}

	s.log.Info("session issued", zap.String("sessionId", session.ID), zap.String("addr", addr))
	return session, newToken, nil
}

// rotate issues a new token for an existing session, invalidating the
// aged-out one.
func (s *AuthService) rotate(ctx context.Context, sessionID, username, addr string) (*model.Session, string, error) {
	if err := s.reserveReissue(ctx, addr); err != nil {
		return nil, "", err
	}

	newToken, err := s.Issue(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	session := &model.Session{ID: sessionID, IssuedAt: s.now()}
	if err := s.applyUsername(ctx, session, username); err != nil {
		return nil, "", err
	}

	s.log.Info("session token rotated", zap.String("sessionId", sessionID), zap.String("addr", addr))
	return session, newToken, nil
}

func (s *AuthService) reserveReissue(ctx context.Context, addr string) error {
	ok, err := s.tokens.ReserveReissue(ctx, addr, s.cfg.ReissueCooldown)
	if err != nil {
		return storeError("reserve reissue", err)
	}
	if !ok {
		return &RateLimitError{
			Reason:     "Too many new sessions, retry later",
			RetryAfter: s.cfg.ReissueCooldown,
		}
	}
	return nil
}

// applyUsername stores a valid display name on the session. Invalid names
// are ignored here; sends validate them strictly.
func (s *AuthService) applyUsername(ctx context.Context, session *model.Session, username string) error {
	if ValidateUsername(username) != nil {
		name, err := s.tokens.GetUsername(ctx, session.ID)
		if err != nil {
			return storeError("load username", err)
		}
		session.Username = name
		return nil
	}
	name, err := s.SetUsername(ctx, session.ID, username)
	if err != nil {
		return err
	}
	session.Username = name
	return nil
}

// SetUsername validates, escapes and stores the session's display name.
func (s *AuthService) SetUsername(ctx context.Context, sessionID, username string) (string, error) {
	if err := ValidateUsername(username); err != nil {
		return "", err
	}
	name := escape(username)
	if err := s.tokens.SetUsername(ctx, sessionID, name, s.cfg.TTL); err != nil {
		return "", storeError("store username", err)
	}
	return name, nil
}

// Revoke invalidates the session's token and forgets its display name. The
// session's live connections are told to authenticate again.
func (s *AuthService) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return validationError("sessionId is required")
	}
	if err := s.tokens.Delete(ctx, sessionID); err != nil {
		return storeError("revoke token", err)
	}
	s.broadcaster.BroadcastToSession(sessionID, model.EventAuthRequired, nil)
	s.log.Info("session revoked", zap.String("sessionId", sessionID))
	return nil
}
