package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumina-home/lumina-core/internal/auth"
)

// permissionRequest is the request body for permission create and update.
type permissionRequest struct {
	Name        string `json:"name"`
	Module      string `json:"module"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.rbac.ListPermissions(r.Context())
	if err != nil {
		s.logger.Error("listing permissions failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (s *Server) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Method == "" || req.Path == "" {
		writeBadRequest(w, "name, method, and path are required")
		return
	}

	perm := &auth.Permission{
		Name:        req.Name,
		Module:      req.Module,
		Method:      req.Method,
		Path:        req.Path,
		Description: req.Description,
	}
	if err := s.rbac.CreatePermission(r.Context(), perm); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, perm)
}

func (s *Server) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := s.rbac.GetPermission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

func (s *Server) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	perm, err := s.rbac.GetPermission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name != "" {
		perm.Name = req.Name
	}
	if req.Module != "" {
		perm.Module = req.Module
	}
	if req.Method != "" {
		perm.Method = req.Method
	}
	if req.Path != "" {
		perm.Path = req.Path
	}
	perm.Description = req.Description

	if err := s.rbac.UpdatePermission(r.Context(), perm); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perm)
}

func (s *Server) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	if err := s.rbac.DeletePermission(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
