package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumina-home/lumina-core/internal/auth"
)

// roleRequest is the request body for role create and update.
type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsSystem    bool   `json:"is_system"`
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.rbac.ListRoles(r.Context())
	if err != nil {
		s.logger.Error("listing roles failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	role := &auth.Role{
		Name:        req.Name,
		Description: req.Description,
		IsSystem:    req.IsSystem,
	}
	if err := s.rbac.CreateRole(r.Context(), role); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.rbac.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.rbac.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name != "" {
		role.Name = req.Name
	}
	role.Description = req.Description

	if err := s.rbac.UpdateRole(r.Context(), role); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.rbac.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	if role.IsSystem {
		writeConflict(w, "system roles cannot be deleted")
		return
	}

	if err := s.rbac.DeleteRole(r.Context(), role.ID); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// grantPermissionRequest is the request body for POST /roles/{id}/permissions.
type grantPermissionRequest struct {
	PermissionID string `json:"permission_id"`
}

func (s *Server) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	var req grantPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.PermissionID == "" {
		writeBadRequest(w, "permission_id is required")
		return
	}

	err := s.rbac.GrantPermission(r.Context(), chi.URLParam(r, "id"), req.PermissionID)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	err := s.rbac.RevokePermission(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "permissionID"))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
