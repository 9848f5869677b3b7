package model

import "encoding/json"

// Real-time event types sent to clients
const (
	EventAssignToken   = "assignToken"
	EventAuthenticated = "authenticated"
	EventAuthRequired  = "authRequired"
	EventJoinedRoom    = "joinedRoom"
	EventRoomUserCount = "roomUserCount"
	EventNewMessage    = "newMessage"
	EventClearMessages = "clearMessages"
	EventNotify        = "notify"
)

// Real-time event types received from clients
const (
	EventAuthenticate = "authenticate"
	EventJoinRoom     = "joinRoom"
	EventSetUsername  = "setUsername"
)

// Notify levels
const (
	NotifyInfo    = "info"
	NotifyWarning = "warning"
	NotifyError   = "error"
)

// AuthenticatePayload is sent by the client right after connecting.
type AuthenticatePayload struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// JoinRoomPayload is sent by the client to switch rooms.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// SetUsernamePayload changes the session's display name.
type SetUsernamePayload struct {
	Username string `json:"username"`
}

// AssignTokenPayload delivers a freshly issued token.
type AssignTokenPayload struct {
	Token string `json:"token"`
}

// AuthenticatedPayload confirms authentication.
type AuthenticatedPayload struct {
	SessionID string `json:"sessionId"`
}

// RoomUserCountPayload carries the live member count of a room.
type RoomUserCountPayload struct {
	N int `json:"n"`
}

// NotifyPayload is a user-visible toast.
type NotifyPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// RoomEvent is the unit carried on the cross-instance event bus. An event
// with neither RoomID nor SessionID set is delivered to every connection.
type RoomEvent struct {
	RoomID    string          `json:"roomId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewRoomEvent marshals payload into a RoomEvent. A nil payload is omitted.
func NewRoomEvent(roomID, sessionID, eventType string, payload interface{}) (*RoomEvent, error) {
	ev := &RoomEvent{RoomID: roomID, SessionID: sessionID, Type: eventType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		ev.Payload = data
	}
	return ev, nil
}
