package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"roomchat/internal/model"
	"roomchat/internal/service"
	"roomchat/internal/transport/rest/middleware"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	opTimeout      = 5 * time.Second
)

// Handler handles WebSocket connections
type Handler struct {
	hub      *Hub
	authSvc  *service.AuthService
	audit    *service.AuditService
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler creates a new WebSocket handler. An empty origin list or "*"
// accepts any origin.
func NewHandler(hub *Hub, authSvc *service.AuthService, audit *service.AuditService, allowedOrigins []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		hub:     hub,
		authSvc: authSvc,
		audit:   audit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		log: log,
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS handles GET /ws
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	addr := middleware.ClientAddr(r)

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.String("addr", addr), zap.Error(err))
		return
	}

	conn := NewConnection(addr)
	h.hub.Register(conn)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		if sessionID := h.hub.Unregister(conn); sessionID != "" {
			h.audit.Record(context.Background(), model.AuditEvent{
				Action:    model.ActionDisconnect,
				SessionID: sessionID,
				Addr:      conn.Addr,
			})
		}
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket read error", zap.String("addr", conn.Addr), zap.Error(err))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.notify(conn, "Malformed message", model.NotifyError)
			continue
		}
		h.dispatch(conn, &msg)
	}
}

func (h *Handler) dispatch(conn *Connection, msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch msg.Type {
	case model.EventAuthenticate:
		var p model.AuthenticatePayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				h.notify(conn, "Malformed message", model.NotifyError)
				return
			}
		}
		h.handleAuthenticate(ctx, conn, p)

	case model.EventJoinRoom:
		var p model.JoinRoomPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.notify(conn, "Malformed message", model.NotifyError)
			return
		}
		h.handleJoinRoom(ctx, conn, p)

	case model.EventSetUsername:
		var p model.SetUsernamePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.notify(conn, "Malformed message", model.NotifyError)
			return
		}
		h.handleSetUsername(ctx, conn, p)

	default:
		h.notify(conn, "Unknown event", model.NotifyError)
	}
}

func (h *Handler) handleAuthenticate(ctx context.Context, conn *Connection, p model.AuthenticatePayload) {
	session, newToken, err := h.authSvc.Authenticate(ctx, p.Token, p.Username, conn.Addr)
	if err != nil {
		if !errors.Is(err, service.ErrRateLimited) {
			h.log.Error("authenticate", zap.String("addr", conn.Addr), zap.Error(err))
		}
		h.notify(conn, service.PublicMessage(err), model.NotifyError)
		return
	}

	token := p.Token
	if newToken != "" {
		token = newToken
		h.send(conn, model.EventAssignToken, model.AssignTokenPayload{Token: newToken})
	}

	roomID := h.hub.Attach(conn, session.ID, token)
	h.send(conn, model.EventAuthenticated, model.AuthenticatedPayload{SessionID: session.ID})
	if roomID != "" {
		h.send(conn, model.EventJoinedRoom, model.JoinRoomPayload{RoomID: roomID})
		h.send(conn, model.EventRoomUserCount, model.RoomUserCountPayload{N: h.hub.RoomCount(roomID)})
	}

	h.audit.Record(ctx, model.AuditEvent{
		Action:    model.ActionAuthenticate,
		SessionID: session.ID,
		Username:  session.Username,
		Addr:      conn.Addr,
		Extra:     map[string]string{"reissued": strconv.FormatBool(newToken != "")},
	})
}

// requireSession revalidates the connection's token; a reset or a
// reissue elsewhere invalidates it.
func (h *Handler) requireSession(ctx context.Context, conn *Connection) (string, bool) {
	sessionID := conn.SessionID()
	if sessionID == "" {
		h.send(conn, model.EventAuthRequired, nil)
		return "", false
	}
	if _, err := h.authSvc.RequireSession(ctx, conn.Token()); err != nil {
		if errors.Is(err, service.ErrAuth) {
			h.send(conn, model.EventAuthRequired, nil)
		} else {
			h.notify(conn, service.PublicMessage(err), model.NotifyError)
		}
		return "", false
	}
	return sessionID, true
}

func (h *Handler) handleJoinRoom(ctx context.Context, conn *Connection, p model.JoinRoomPayload) {
	sessionID, ok := h.requireSession(ctx, conn)
	if !ok {
		return
	}

	if _, err := h.hub.Join(sessionID, p.RoomID); err != nil {
		h.notify(conn, service.PublicMessage(err), model.NotifyError)
		return
	}
	if data, err := encode(model.EventJoinedRoom, model.JoinRoomPayload{RoomID: p.RoomID}); err == nil {
		h.hub.SendToSession(sessionID, data)
	}

	h.audit.Record(ctx, model.AuditEvent{
		Action:    model.ActionJoinRoom,
		SessionID: sessionID,
		RoomID:    p.RoomID,
		Addr:      conn.Addr,
	})
}

func (h *Handler) handleSetUsername(ctx context.Context, conn *Connection, p model.SetUsernamePayload) {
	sessionID, ok := h.requireSession(ctx, conn)
	if !ok {
		return
	}

	name, err := h.authSvc.SetUsername(ctx, sessionID, p.Username)
	if err != nil {
		h.notify(conn, service.PublicMessage(err), model.NotifyError)
		return
	}
	h.notify(conn, "Username set to "+name, model.NotifyInfo)
}

func (h *Handler) send(conn *Connection, msgType string, payload interface{}) {
	data, err := encode(msgType, payload)
	if err != nil {
		h.log.Warn("encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	conn.enqueue(data)
}

func (h *Handler) notify(conn *Connection, message, level string) {
	h.send(conn, model.EventNotify, model.NotifyPayload{Message: message, Type: level})
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
