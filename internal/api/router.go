package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
// API routes are mounted under /{prefix}/v{version} and the permission
// evaluator strips the same prefix when matching permission paths.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.metrics.instrument)

	r.Handle("/metrics", s.metrics.handler())

	mount := fmt.Sprintf("/%s/v%d", s.cfg.NormalizedPrefix(), s.cfg.DefaultVersion)
	r.Route(mount, func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Use(s.guard(Public))

			r.Get("/health", s.handleHealth)

			r.Group(func(r chi.Router) {
				r.Use(s.rateLimitMiddleware)
				r.Post("/auth/login", s.handleLogin)
				r.Post("/auth/refresh", s.handleRefresh)
				r.Post("/auth/logout", s.handleLogout)
			})
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(s.guard(Protected))

			r.Get("/auth/me", s.handleMe)
			r.Get("/auth/sessions", s.handleSessions)
		})

		// WebSocket upgrade, token via header or query parameter
		r.Group(func(r chi.Router) {
			r.Use(s.authenticateWS)
			r.Get("/ws", s.handleWebSocket)
		})

		// Permission-checked routes
		r.Group(func(r chi.Router) {
			r.Use(s.guard(PermissionChecked))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Get("/{id}", s.handleGetUser)
				r.Patch("/{id}", s.handleUpdateUser)
				r.Delete("/{id}", s.handleDeleteUser)
				r.Put("/{id}/password", s.handleChangePassword)
				r.Post("/{id}/roles", s.handleAssignRole)
				r.Delete("/{id}/roles/{roleID}", s.handleRemoveRole)
			})

			r.Route("/roles", func(r chi.Router) {
				r.Get("/", s.handleListRoles)
				r.Post("/", s.handleCreateRole)
				r.Get("/{id}", s.handleGetRole)
				r.Patch("/{id}", s.handleUpdateRole)
				r.Delete("/{id}", s.handleDeleteRole)
				r.Post("/{id}/permissions", s.handleGrantPermission)
				r.Delete("/{id}/permissions/{permissionID}", s.handleRevokePermission)
			})

			r.Route("/permissions", func(r chi.Router) {
				r.Get("/", s.handleListPermissions)
				r.Post("/", s.handleCreatePermission)
				r.Get("/{id}", s.handleGetPermission)
				r.Patch("/{id}", s.handleUpdatePermission)
				r.Delete("/{id}", s.handleDeletePermission)
			})

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Get("/{id}", s.handleGetDevice)
				r.Patch("/{id}", s.handleUpdateDevice)
				r.Delete("/{id}", s.handleDeleteDevice)
				r.Post("/{id}/command", s.handleDeviceCommand)
				r.Get("/{id}/readings", s.handleDeviceReadings)
				r.Get("/{id}/readings/{metric}/latest", s.handleLatestReading)
			})

			r.Get("/audit", s.handleListAuditEvents)
		})
	})

	return r
}
