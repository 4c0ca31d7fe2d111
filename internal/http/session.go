package httpapi

import (
	"net/http"
	"strings"

	"laser-repair/internal/auth"
)

const (
	// SessionHeader 会话 token 请求头
	SessionHeader = "X-Session-Token"
	// SessionCookie 浏览器使用的会话 cookie
	SessionCookie = "laser_session"
)

// SessionMiddleware 从请求中取会话 token，把对应 Gate 放入 context
type SessionMiddleware struct {
	sessions *auth.SessionManager
}

func NewSessionMiddleware(sessions *auth.SessionManager) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

func (m *SessionMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gate := m.sessions.Gate(r.Context(), sessionToken(r))
		next.ServeHTTP(w, r.WithContext(auth.WithGate(r.Context(), gate)))
	})
}

func sessionToken(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(SessionHeader)); t != "" {
		return t
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
