package cache

import "fmt"

// EventChannel is the Pub/Sub channel carrying room events between
// process instances.
const EventChannel = "roomchat:events"

const (
	periodKey    = "system:current_month"
	resetLockKey = "system:reset_lock"
)

// WipePatterns lists every key family holding room or session state.
var WipePatterns = []string{
	"messages:*",
	"token:*",
	"username:*",
	"abuse:*",
	"msg:mute:*",
	"ratelimit:*",
}

func tokenKey(sessionID string) string {
	return fmt.Sprintf("token:%s", sessionID)
}

func usernameKey(sessionID string) string {
	return fmt.Sprintf("username:%s", sessionID)
}

func messagesKey(roomID string) string {
	return fmt.Sprintf("messages:%s", roomID)
}

func reissueKey(addr string) string {
	return fmt.Sprintf("ratelimit:reissue:%s", addr)
}

func cooldownKey(sessionID string) string {
	return fmt.Sprintf("ratelimit:msg:%s", sessionID)
}

func muteKey(sessionID string) string {
	return fmt.Sprintf("msg:mute:%s", sessionID)
}

func abuseKey(sessionID string) string {
	return fmt.Sprintf("abuse:%s", sessionID)
}
