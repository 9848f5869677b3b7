package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"roomchat/internal/model"
	"roomchat/internal/service"
)

const maxBodyBytes = 16 << 10

// AuthHandler handles admin authentication endpoints
type AuthHandler struct {
	adminSvc *service.AdminService
	auditSvc *service.AuditService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(adminSvc *service.AdminService, auditSvc *service.AuditService) *AuthHandler {
	return &AuthHandler{adminSvc: adminSvc, auditSvc: auditSvc}
}

// Login handles POST /api/admin/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.AdminLoginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.adminSvc.Login(req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Audit handles GET /api/admin/audit
func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	if limit <= 0 {
		limit = 100
	}

	events, err := h.auditSvc.Recent(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": h.auditSvc.Enabled(),
		"events":  events,
	})
}

// Helper functions

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrAuth), errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrRateLimited):
		status = http.StatusTooManyRequests
		if d := service.RetryAfter(err); d > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(d.Seconds())), 10))
		}
	}
	writeError(w, status, service.PublicMessage(err))
}
