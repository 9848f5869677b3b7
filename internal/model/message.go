package model

import "time"

// Message is a single chat line as stored in a room's log.
type Message struct {
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Time      time.Time `json:"time"`
	SessionID string    `json:"sessionId"`
	Seed      string    `json:"seed,omitempty"`
}

// NewMessagePayload is what room members receive for a newMessage event.
type NewMessagePayload struct {
	Username string    `json:"username"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
	Seed     string    `json:"seed,omitempty"`
}

// Payload strips the sender's session id before fan-out.
func (m *Message) Payload() NewMessagePayload {
	return NewMessagePayload{
		Username: m.Username,
		Text:     m.Text,
		Time:     m.Time,
		Seed:     m.Seed,
	}
}

// SendMessageRequest is the request body for POST /api/messages.
// Message is accepted as an alias of Text for older clients.
type SendMessageRequest struct {
	Username string `json:"username"`
	Text     string `json:"text"`
	Message  string `json:"message,omitempty"`
	Token    string `json:"token"`
	Seed     string `json:"seed"`
	RoomID   string `json:"roomId"`
}

// Body returns the message text, preferring Text over the Message alias.
func (r *SendMessageRequest) Body() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Message
}

// ClearRoomRequest is the request body for POST /api/clear.
type ClearRoomRequest struct {
	Password string `json:"password"`
	RoomID   string `json:"roomId"`
	Token    string `json:"token"`
}
