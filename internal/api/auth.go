package api

import (
	"encoding/json"
	"net/http"

	"github.com/lumina-home/lumina-core/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is the response body for login and refresh.
type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	User         *auth.User `json:"user,omitempty"`
}

// refreshRequest is the request body for POST /auth/refresh and logout.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// requestClient captures the caller's network identity for token binding.
func requestClient(r *http.Request) auth.Client {
	return auth.Client{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// handleLogin authenticates a user and issues a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	pair, user, err := s.auth.Login(r.Context(), req.Username, req.Password, requestClient(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		User:         user,
	})
}

// handleRefresh rotates a refresh token and returns a fresh pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken, requestClient(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	})
}

// handleLogout revokes the session behind a refresh token. Always
// returns 200 with a confirmation message: after logout the session is
// gone regardless of what was presented.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	//nolint:errcheck // an unreadable body is treated as an empty token
	json.NewDecoder(r.Body).Decode(&req)

	s.auth.Logout(r.Context(), req.RefreshToken, requestClient(r))
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// handleMe returns the authenticated user with roles and permissions.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleSessions lists the caller's active refresh sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	sessions, err := s.auth.Sessions(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("listing sessions failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
