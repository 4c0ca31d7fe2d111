package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	r.mux.ServeHTTP(w, req)
	r.logger.Debug("http request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// RegisterHealthRoutes /healthz
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	})
}

// RegisterRecordRoutes 工单录入、历史、报告、导出
func (r *Router) RegisterRecordRoutes(h *RecordsHandler, sessions *SessionMiddleware) {
	r.HandleHandler(apiPrefix+"/records", sessions.Wrap(h))
	r.HandleHandler(apiPrefix+"/records/", sessions.Wrap(h))
}

// RegisterAdminRoutes 管理员登录/登出/状态
func (r *Router) RegisterAdminRoutes(h *AdminHandler) {
	r.Handle(apiPrefix+"/admin/login", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Login(w, req)
	})
	r.Handle(apiPrefix+"/admin/logout", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Logout(w, req)
	})
	r.Handle(apiPrefix+"/admin/status", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Status(w, req)
	})
}

// pathID 取 prefix 之后的第一段；rest 为剩余部分（不含前导 /）
func pathID(path, prefix string) (id, rest string) {
	p := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if p == "" {
		return "", ""
	}
	parts := strings.SplitN(p, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}
