package service

// Broadcaster delivers real-time events to connected clients on every
// process instance (avoids import cycle with the transport layer).
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgType string, payload interface{})
	BroadcastToSession(sessionID string, msgType string, payload interface{})
	BroadcastToAll(msgType string, payload interface{})
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastToRoom(string, string, interface{})    {}
func (nopBroadcaster) BroadcastToSession(string, string, interface{}) {}
func (nopBroadcaster) BroadcastToAll(string, interface{})             {}
