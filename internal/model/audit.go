package model

import "time"

// Audited user actions
const (
	ActionAuthenticate = "authenticate"
	ActionJoinRoom     = "joinRoom"
	ActionSendMessage  = "sendMessage"
	ActionDisconnect   = "disconnect"
	ActionMute         = "mute"
	ActionClearRoom    = "clearRoom"
	ActionReset        = "reset"
	ActionUnmute       = "unmute"
	ActionRevoke       = "revoke"
)

// AuditEvent is one entry of the user action trail.
type AuditEvent struct {
	ID        string            `json:"id" bson:"_id,omitempty"`
	Action    string            `json:"action" bson:"action"`
	SessionID string            `json:"sessionId,omitempty" bson:"sessionId,omitempty"`
	Username  string            `json:"username,omitempty" bson:"username,omitempty"`
	RoomID    string            `json:"roomId,omitempty" bson:"roomId,omitempty"`
	Addr      string            `json:"addr,omitempty" bson:"addr,omitempty"`
	Extra     map[string]string `json:"extra,omitempty" bson:"extra,omitempty"`
	CreatedAt time.Time         `json:"createdAt" bson:"createdAt"`
}
