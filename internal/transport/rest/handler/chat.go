package handler

import (
	"errors"
	"net/http"

	"roomchat/internal/model"
	"roomchat/internal/service"
	"roomchat/internal/transport/rest/middleware"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ChatHandler handles message endpoints
type ChatHandler struct {
	chatSvc *service.ChatService
	log     *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatSvc *service.ChatService, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{chatSvc: chatSvc, log: log}
}

// History handles GET /api/messages/{roomId}
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	messages, err := h.chatSvc.History(r.Context(), roomID)
	if err != nil {
		h.logFailure("history", roomID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// Send handles POST /api/messages
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.chatSvc.Send(r.Context(), &req, middleware.ClientAddr(r)); err != nil {
		h.logFailure("send", req.RoomID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Clear handles POST /api/clear
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req model.ClearRoomRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.chatSvc.Clear(r.Context(), &req, middleware.BearerToken(r), middleware.ClientAddr(r)); err != nil {
		h.logFailure("clear", req.RoomID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *ChatHandler) logFailure(op, roomID string, err error) {
	if errors.Is(err, service.ErrStore) {
		h.log.Error(op+" failed", zap.String("roomId", roomID), zap.Error(err))
	}
}
