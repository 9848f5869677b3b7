package handler

import (
	"context"
	"net/http"

	"roomchat/internal/model"
	"roomchat/internal/service"
	"roomchat/internal/transport/rest/middleware"
)

// AdminHandler handles session moderation endpoints. Routes are expected
// behind RequireAdmin.
type AdminHandler struct {
	authSvc  *service.AuthService
	abuseSvc *service.AbuseService
	auditSvc *service.AuditService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(authSvc *service.AuthService, abuseSvc *service.AbuseService, auditSvc *service.AuditService) *AdminHandler {
	return &AdminHandler{authSvc: authSvc, abuseSvc: abuseSvc, auditSvc: auditSvc}
}

// Unmute handles POST /api/admin/unmute
func (h *AdminHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, model.ActionUnmute, h.abuseSvc.Unmute)
}

// Revoke handles POST /api/admin/revoke
func (h *AdminHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, model.ActionRevoke, h.authSvc.Revoke)
}

func (h *AdminHandler) sessionAction(w http.ResponseWriter, r *http.Request, action string, apply func(ctx context.Context, sessionID string) error) {
	var req model.SessionActionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := apply(r.Context(), req.SessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	h.auditSvc.Record(r.Context(), model.AuditEvent{
		Action:    action,
		SessionID: req.SessionID,
		Addr:      middleware.ClientAddr(r),
		Extra:     map[string]string{"by": middleware.AdminSubject(r.Context())},
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
