package rest

import (
	"net/http"

	"roomchat/internal/service"
	"roomchat/internal/transport/rest/handler"
	"roomchat/internal/transport/rest/middleware"
	"roomchat/internal/transport/ws"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService  *service.AuthService
	AdminService *service.AdminService
	AbuseService *service.AbuseService
	ChatService  *service.ChatService
	AuditService *service.AuditService
	WSHub        *ws.Hub

	AllowedOrigins []string
	Edge           middleware.EdgeConfig
	Logger         *zap.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AdminService, c.AuditService)
	chatHandler := handler.NewChatHandler(c.ChatService, log)
	adminHandler := handler.NewAdminHandler(c.AuthService, c.AbuseService, c.AuditService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.AuditService, c.AllowedOrigins, log)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AdminService)

	// Health check stays reachable for probes that bypass the edge.
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	edge := r.NewRoute().Subrouter()
	edge.Use(corsMiddleware(c.AllowedOrigins))
	edge.Use(middleware.EdgeGuard(c.Edge, log))

	// WebSocket endpoint
	edge.HandleFunc("/ws", wsHandler.ServeWS).Methods("GET")

	api := edge.PathPrefix("/api").Subrouter()

	// Public routes
	api.HandleFunc("/messages/{roomId}", chatHandler.History).Methods("GET", "OPTIONS")
	api.HandleFunc("/messages", chatHandler.Send).Methods("POST", "OPTIONS")
	api.HandleFunc("/clear", chatHandler.Clear).Methods("POST", "OPTIONS")
	api.HandleFunc("/admin/login", authHandler.Login).Methods("POST", "OPTIONS")

	// Admin routes (require admin auth)
	adminRoutes := api.PathPrefix("/admin").Subrouter()
	adminRoutes.Use(authMW.RequireAdmin)
	adminRoutes.HandleFunc("/audit", authHandler.Audit).Methods("GET")
	adminRoutes.HandleFunc("/unmute", adminHandler.Unmute).Methods("POST")
	adminRoutes.HandleFunc("/revoke", adminHandler.Revoke).Methods("POST")

	return r
}

func corsMiddleware(allowed []string) mux.MiddlewareFunc {
	allowAll := len(allowed) == 0
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := set[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
