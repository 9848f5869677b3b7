package model

import "time"

// Session is a server-recognized client identity. It is not tied to any
// human login; the display name is self-declared.
type Session struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	IssuedAt time.Time `json:"issuedAt"`
}

// TokenStatus is the outcome of validating a session token.
type TokenStatus int

const (
	TokenValid TokenStatus = iota
	TokenMalformed
	TokenSignatureMismatch
	TokenRevoked
	TokenExpired
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenMalformed:
		return "malformed"
	case TokenSignatureMismatch:
		return "signature_mismatch"
	case TokenRevoked:
		return "revoked"
	case TokenExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// TokenResult carries the session id when the token is still the session's
// current one: Status is TokenValid, or TokenExpired under a max age.
type TokenResult struct {
	Status    TokenStatus
	SessionID string
	IssuedAt  time.Time
}

// Valid reports whether the token was accepted.
func (r TokenResult) Valid() bool {
	return r.Status == TokenValid
}
