package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"roomchat/internal/model"

	"github.com/redis/go-redis/v9"
)

// AbuseCache evaluates one send attempt against the mute flag, the flat
// cooldown and the cadence record of a session, atomically.
type AbuseCache interface {
	Check(ctx context.Context, sessionID string, now time.Time, policy model.AbusePolicy) (model.AbuseDecision, error)
	// Unmute clears the mute flag and the cadence record.
	Unmute(ctx context.Context, sessionID string) error
}

type abuseCache struct {
	client redis.UniversalClient
}

// NewAbuseCache creates a new abuse cache
func NewAbuseCache(client redis.UniversalClient) AbuseCache {
	return &abuseCache{client: client}
}

// KEYS: record hash, mute flag, cooldown marker.
// ARGV: now ms, cooldown ms, tolerance ms, threshold, mute ms, window ms.
// Returns {verdict, retry_after_ms, repeat}; verdicts match model.AbuseVerdict.
var abuseScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])
local tolerance = tonumber(ARGV[3])
local threshold = tonumber(ARGV[4])

local mute_ttl = redis.call('PTTL', KEYS[2])
if mute_ttl ~= -2 then
	return {2, math.max(mute_ttl, 0), 0}
end

if cooldown > 0 then
	local ok = redis.call('SET', KEYS[3], ARGV[1], 'PX', ARGV[2], 'NX')
	if not ok then
		local ttl = redis.call('PTTL', KEYS[3])
		if ttl < 0 then
			ttl = cooldown
		end
		return {1, ttl, 0}
	end
end

local last = tonumber(redis.call('HGET', KEYS[1], 'last') or '')
local prev = tonumber(redis.call('HGET', KEYS[1], 'interval') or '')
local rep = tonumber(redis.call('HGET', KEYS[1], 'repeat') or '') or 0

if not last then
	rep = 1
else
	local interval = now - last
	if prev and math.abs(interval - prev) <= tolerance then
		rep = rep + 1
	else
		rep = 2
		redis.call('HSET', KEYS[1], 'interval', tostring(interval))
	end
end

if rep >= threshold then
	redis.call('SET', KEYS[2], '1', 'PX', ARGV[5])
	redis.call('DEL', KEYS[1])
	return {3, tonumber(ARGV[5]), rep}
end

redis.call('HSET', KEYS[1], 'last', ARGV[1])
redis.call('HSET', KEYS[1], 'repeat', tostring(rep))
redis.call('PEXPIRE', KEYS[1], ARGV[6])
return {0, 0, rep}
`)

func (c *abuseCache) Check(ctx context.Context, sessionID string, now time.Time, policy model.AbusePolicy) (model.AbuseDecision, error) {
	keys := []string{abuseKey(sessionID), muteKey(sessionID), cooldownKey(sessionID)}
	res, err := abuseScript.Run(ctx, c.client, keys,
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(policy.Cooldown.Milliseconds(), 10),
		strconv.FormatInt(policy.Tolerance.Milliseconds(), 10),
		strconv.Itoa(policy.Threshold),
		strconv.FormatInt(policy.MuteTTL.Milliseconds(), 10),
		strconv.FormatInt(policy.Window.Milliseconds(), 10),
	).Int64Slice()
	if err != nil {
		return model.AbuseDecision{}, fmt.Errorf("abuse check: %w", err)
	}
	if len(res) < 3 {
		return model.AbuseDecision{}, fmt.Errorf("abuse check: unexpected result length %d", len(res))
	}

	return model.AbuseDecision{
		Verdict:    model.AbuseVerdict(res[0]),
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Repeat:     int(res[2]),
	}, nil
}

func (c *abuseCache) Unmute(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, muteKey(sessionID), abuseKey(sessionID)).Err()
}
