package service

import (
	"sync"
	"testing"
	"time"

	"roomchat/internal/cache"
	"roomchat/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type sentEvent struct {
	Target  string
	Type    string
	Payload interface{}
}

// recordingBroadcaster captures events instead of delivering them.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
}

func (b *recordingBroadcaster) BroadcastToRoom(roomID, msgType string, payload interface{}) {
	b.add("room:"+roomID, msgType, payload)
}

func (b *recordingBroadcaster) BroadcastToSession(sessionID, msgType string, payload interface{}) {
	b.add("session:"+sessionID, msgType, payload)
}

func (b *recordingBroadcaster) BroadcastToAll(msgType string, payload interface{}) {
	b.add("all", msgType, payload)
}

func (b *recordingBroadcaster) add(target, msgType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{Target: target, Type: msgType, Payload: payload})
}

func (b *recordingBroadcaster) Events() []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentEvent(nil), b.events...)
}

// fakeClock is a settable time source shared by the services under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type testEnv struct {
	mr     *miniredis.Miniredis
	client *redis.Client
	clock  *fakeClock
	bc     *recordingBroadcaster

	tokens   cache.TokenCache
	messages cache.MessageLog
	system   cache.SystemCache

	auth  *AuthService
	admin *AdminService
	abuse *AbuseService
	chat  *ChatService
	audit *AuditService
}

const (
	testSecret    = "test-secret"
	testAdminPass = "admin-pass"
)

func newTestEnv(t *testing.T, policy model.AbusePolicy) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		mr:       mr,
		client:   client,
		clock:    newFakeClock(),
		bc:       &recordingBroadcaster{},
		tokens:   cache.NewTokenCache(client),
		messages: cache.NewMessageLog(client, 100, cache.EventChannel),
		system:   cache.NewSystemCache(client),
	}

	env.audit = NewAuditService(nil, nil)
	env.auth = NewAuthService(env.tokens, AuthConfig{
		Secret:          testSecret,
		TTL:             24 * time.Hour,
		ReissueCooldown: 30 * time.Second,
	}, nil)
	env.auth.SetClock(env.clock.Now)
	env.auth.SetBroadcaster(env.bc)

	env.admin = NewAdminService(testAdminPass, "jwt-secret")
	env.admin.now = env.clock.Now

	env.abuse = NewAbuseService(cache.NewAbuseCache(client), policy, env.audit, nil)
	env.abuse.SetBroadcaster(env.bc)
	env.abuse.SetClock(env.clock.Now)

	env.chat = NewChatService(env.messages, env.auth, env.abuse, env.admin, env.audit, nil)
	env.chat.SetClock(env.clock.Now)
	return env
}

// advance moves both the service clock and the store's TTL clock.
func (e *testEnv) advance(d time.Duration) {
	e.clock.Advance(d)
	e.mr.FastForward(d)
}
