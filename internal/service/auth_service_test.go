package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"roomchat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthIssueAndValidate(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	token, err := env.auth.Issue(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)
	assert.True(t, strings.HasPrefix(token, "s1."))

	res, err := env.auth.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.TokenValid, res.Status)
	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, env.clock.Now().UnixMilli(), res.IssuedAt.UnixMilli())
}

func TestAuthReissueInvalidatesOldToken(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	old, err := env.auth.Issue(ctx, "s1")
	require.NoError(t, err)
	env.clock.Advance(time.Second)
	fresh, err := env.auth.Issue(ctx, "s1")
	require.NoError(t, err)
	require.NotEqual(t, old, fresh)

	res, err := env.auth.Validate(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, model.TokenRevoked, res.Status)
	assert.Empty(t, res.SessionID)

	res, err = env.auth.Validate(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, res.Valid())
}

func TestAuthValidateRejectsMalformed(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	for _, token := range []string{"", "abc", "a.b", "a..ff", "a.b.c.d", "s1.notanumber.ff", "s1.123.nothex"} {
		res, err := env.auth.Validate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, model.TokenMalformed, res.Status, "token %q", token)
	}
}

func TestAuthValidateRejectsForgedSignature(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	token, err := env.auth.Issue(ctx, "s1")
	require.NoError(t, err)
	parts := strings.Split(token, ".")

	forged := "s2." + parts[1] + "." + parts[2]
	res, err := env.auth.Validate(ctx, forged)
	require.NoError(t, err)
	assert.Equal(t, model.TokenSignatureMismatch, res.Status)

	other := NewAuthService(env.tokens, AuthConfig{Secret: "other-secret"}, nil)
	res, err = other.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.TokenSignatureMismatch, res.Status)
}

func TestAuthValidateMaxAge(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	auth := NewAuthService(env.tokens, AuthConfig{
		Secret:    testSecret,
		MaxAge:    10 * time.Minute,
		ClockSkew: 5 * time.Second,
	}, nil)
	auth.SetClock(env.clock.Now)

	token, err := auth.Issue(ctx, "s1")
	require.NoError(t, err)

	env.clock.Advance(9 * time.Minute)
	res, err := auth.Validate(ctx, token)
	require.NoError(t, err)
	assert.True(t, res.Valid())

	env.clock.Advance(2 * time.Minute)
	res, err = auth.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.TokenExpired, res.Status)

	// Issued too far in the future.
	env.clock.Advance(time.Hour)
	future, err := auth.Issue(ctx, "s2")
	require.NoError(t, err)
	env.clock.Advance(-time.Minute)
	res, err = auth.Validate(ctx, future)
	require.NoError(t, err)
	assert.Equal(t, model.TokenExpired, res.Status)
}

func TestAuthAuthenticateMintsSessionAndResumes(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	session, token, err := env.auth.Authenticate(ctx, "", "Alice", "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "Alice", session.Username)

	resumed, newToken, err := env.auth.Authenticate(ctx, token, "", "10.0.0.1")
	require.NoError(t, err)
	assert.Empty(t, newToken)
	assert.Equal(t, session.ID, resumed.ID)
	assert.Equal(t, "Alice", resumed.Username)
}

func TestAuthAuthenticateReissueCooldown(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	_, _, err := env.auth.Authenticate(ctx, "", "", "10.0.0.1")
	require.NoError(t, err)

	_, _, err = env.auth.Authenticate(ctx, "garbage", "", "10.0.0.1")
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 30*time.Second, RetryAfter(err))
	assert.Contains(t, PublicMessage(err), "retry later")

	// Other addresses are not affected.
	_, token, err := env.auth.Authenticate(ctx, "", "", "10.0.0.2")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	env.advance(31 * time.Second)
	_, token, err = env.auth.Authenticate(ctx, "", "", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestAuthSetUsernameEscapes(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	name, err := env.auth.SetUsername(ctx, "s1", " <b>bob</b> ")
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;bob&lt;/b&gt;", name)

	_, err = env.auth.SetUsername(ctx, "s1", strings.Repeat("x", MaxUsernameLength+1))
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.auth.SetUsername(ctx, "s1", "   ")
	require.ErrorIs(t, err, ErrValidation)

	// The bound applies to the stored, escaped form.
	_, err = env.auth.SetUsername(ctx, "s1", strings.Repeat("<", MaxUsernameLength))
	require.ErrorIs(t, err, ErrValidation)

	name, err = env.auth.SetUsername(ctx, "s1", strings.Repeat("<", 6))
	require.NoError(t, err)
	assert.Equal(t, MaxUsernameLength, len([]rune(name)))

	stored, err := env.tokens.GetUsername(ctx, "s1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(stored)), MaxUsernameLength)
}

func TestAuthRevoke(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	token, err := env.auth.Issue(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, env.auth.Revoke(ctx, "s1"))

	res, err := env.auth.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.TokenRevoked, res.Status)

	_, err = env.auth.RequireSession(ctx, token)
	require.ErrorIs(t, err, ErrAuth)

	events := env.bc.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "session:s1", events[0].Target)
	assert.Equal(t, model.EventAuthRequired, events[0].Type)

	require.ErrorIs(t, env.auth.Revoke(ctx, ""), ErrValidation)
}

func TestAuthAuthenticateRotatesAgedOutToken(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	auth := NewAuthService(env.tokens, AuthConfig{
		Secret:          testSecret,
		TTL:             24 * time.Hour,
		MaxAge:          10 * time.Minute,
		ReissueCooldown: 30 * time.Second,
	}, nil)
	auth.SetClock(env.clock.Now)

	session, old, err := auth.Authenticate(ctx, "", "alice", "10.0.0.1")
	require.NoError(t, err)

	env.advance(11 * time.Minute)
	res, err := auth.Validate(ctx, old)
	require.NoError(t, err)
	require.Equal(t, model.TokenExpired, res.Status)
	assert.Equal(t, session.ID, res.SessionID)

	rotated, fresh, err := auth.Authenticate(ctx, old, "", "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, fresh)
	assert.Equal(t, session.ID, rotated.ID)
	assert.Equal(t, "alice", rotated.Username)

	res, err = auth.Validate(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, model.TokenRevoked, res.Status)

	sessionID, err := auth.RequireSession(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, session.ID, sessionID)
}

func TestAuthRotationHonoursReissueCooldown(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	auth := NewAuthService(env.tokens, AuthConfig{
		Secret:          testSecret,
		MaxAge:          time.Minute,
		ReissueCooldown: 5 * time.Minute,
	}, nil)
	auth.SetClock(env.clock.Now)

	_, token, err := auth.Authenticate(ctx, "", "", "10.0.0.1")
	require.NoError(t, err)

	env.clock.Advance(2 * time.Minute)
	_, _, err = auth.Authenticate(ctx, token, "", "10.0.0.1")
	require.ErrorIs(t, err, ErrRateLimited)

	res, err := auth.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.TokenExpired, res.Status)
}

func TestAuthStoreUnavailable(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	token, err := env.auth.Issue(ctx, "s1")
	require.NoError(t, err)
	env.mr.Close()

	_, err = env.auth.Validate(ctx, token)
	require.ErrorIs(t, err, ErrStore)
	assert.Equal(t, "Internal server error", PublicMessage(err))
}
