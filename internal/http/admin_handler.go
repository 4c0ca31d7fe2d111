package httpapi

import (
	"errors"
	"net/http"

	"laser-repair/internal/auth"

	"go.uber.org/zap"
)

// AdminHandler 管理员会话
type AdminHandler struct {
	sessions *auth.SessionManager
	logger   *zap.Logger
}

func NewAdminHandler(sessions *auth.SessionManager, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{sessions: sessions, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login POST /api/v1/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	token, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusOK, Fail("invalid username or password"))
			return
		}
		h.logger.Error("Admin login failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("login failed"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"token": token,
		"state": auth.Admin.String(),
	}))
}

// Logout POST /api/v1/admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), sessionToken(r)); err != nil {
		h.logger.Error("Admin logout failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("logout failed"))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	writeJSON(w, http.StatusOK, Ok(map[string]any{"state": auth.Anonymous.String()}))
}

// Status GET /api/v1/admin/status
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	gate := h.sessions.Gate(r.Context(), sessionToken(r))
	writeJSON(w, http.StatusOK, Ok(map[string]any{"state": gate.State().String()}))
}
