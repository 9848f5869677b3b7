package service

import (
	"context"
	"testing"
	"time"

	"roomchat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbuseGateFlatCooldown(t *testing.T) {
	env := newTestEnv(t, model.DefaultAbusePolicy())
	ctx := context.Background()

	require.NoError(t, env.abuse.Gate(ctx, "s1", "alice"))

	env.advance(400 * time.Millisecond)
	err := env.abuse.Gate(ctx, "s1", "alice")
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Greater(t, RetryAfter(err), time.Duration(0))
	assert.LessOrEqual(t, RetryAfter(err), time.Second)

	// Other sessions are throttled independently.
	require.NoError(t, env.abuse.Gate(ctx, "s2", "bob"))

	env.advance(700 * time.Millisecond)
	require.NoError(t, env.abuse.Gate(ctx, "s1", "alice"))
}

func TestAbuseGateMutesFixedCadence(t *testing.T) {
	policy := model.DefaultAbusePolicy()
	policy.Cooldown = 0
	env := newTestEnv(t, policy)
	ctx := context.Background()

	for i, d := range []time.Duration{0, 500, 550, 450, 500} {
		env.advance(d * time.Millisecond)
		err := env.abuse.Gate(ctx, "s1", "alice")
		if i < 4 {
			require.NoError(t, err, "send %d", i+1)
			continue
		}
		require.ErrorIs(t, err, ErrRateLimited, "send %d", i+1)
		assert.Equal(t, policy.MuteTTL, RetryAfter(err))
		assert.Contains(t, PublicMessage(err), "muted for 20s")
	}

	events := env.bc.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "session:s1", events[0].Target)
	assert.Equal(t, model.EventNotify, events[0].Type)
	assert.Equal(t, model.NotifyWarning, events[0].Payload.(model.NotifyPayload).Type)

	// Sends during the mute are rejected without another notice.
	env.advance(3 * time.Second)
	err := env.abuse.Gate(ctx, "s1", "alice")
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, PublicMessage(err), "You are muted")
	assert.Len(t, env.bc.Events(), 1)

	env.advance(policy.MuteTTL)
	require.NoError(t, env.abuse.Gate(ctx, "s1", "alice"))
}

func TestAbuseGateIrregularSendsStayAllowed(t *testing.T) {
	policy := model.DefaultAbusePolicy()
	policy.Cooldown = 0
	env := newTestEnv(t, policy)
	ctx := context.Background()

	for _, d := range []time.Duration{0, 500, 900, 300, 1400, 700, 2000, 450} {
		env.advance(d * time.Millisecond)
		require.NoError(t, env.abuse.Gate(ctx, "s1", "alice"))
	}
	assert.Empty(t, env.bc.Events())
}

func TestAbuseUnmute(t *testing.T) {
	policy := model.DefaultAbusePolicy()
	policy.Cooldown = 0
	policy.Threshold = 3
	env := newTestEnv(t, policy)
	ctx := context.Background()

	for _, d := range []time.Duration{0, 500, 500} {
		env.advance(d * time.Millisecond)
		_ = env.abuse.Gate(ctx, "s1", "alice")
	}
	env.advance(500 * time.Millisecond)
	require.ErrorIs(t, env.abuse.Gate(ctx, "s1", "alice"), ErrRateLimited)

	require.NoError(t, env.abuse.Unmute(ctx, "s1"))
	require.NoError(t, env.abuse.Gate(ctx, "s1", "alice"))

	events := env.bc.Events()
	last := events[len(events)-1]
	assert.Equal(t, "session:s1", last.Target)
	assert.Equal(t, model.EventNotify, last.Type)

	require.ErrorIs(t, env.abuse.Unmute(ctx, ""), ErrValidation)
}
