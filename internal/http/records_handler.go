package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"laser-repair/internal/auth"
	"laser-repair/internal/domain"
	"laser-repair/internal/repository"
	"laser-repair/internal/service"

	"go.uber.org/zap"
)

// RecordsHandler 维修工单 Handler
type RecordsHandler struct {
	records service.RecordService
	reports service.ReportService
	exports service.ExportService
	logger  *zap.Logger
}

func NewRecordsHandler(records service.RecordService, reports service.ReportService, exports service.ExportService, logger *zap.Logger) *RecordsHandler {
	return &RecordsHandler{
		records: records,
		reports: reports,
		exports: exports,
		logger:  logger,
	}
}

// ServeHTTP 路由：
//   - GET    /api/v1/records?sn=        历史（最新在前）
//   - POST   /api/v1/records            提交工单
//   - GET    /api/v1/records/draft      空白工单
//   - GET    /api/v1/records/export     导出 xlsx
//   - GET    /api/v1/records/:id        工单详情
//   - DELETE /api/v1/records/:id        删除（管理员）
//   - GET    /api/v1/records/:id/report 下载 Word 报告
func (h *RecordsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	seg, rest := pathID(r.URL.Path, apiPrefix+"/records")

	switch {
	case seg == "":
		switch r.Method {
		case http.MethodGet:
			h.List(w, r)
		case http.MethodPost:
			h.Create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	case seg == "draft" && rest == "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Draft(w, r)
		return
	case seg == "export" && rest == "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Export(w, r)
		return
	}

	id, err := strconv.Atoi(seg)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusOK, Fail("invalid record id"))
		return
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.Get(w, r, id)
	case rest == "" && r.Method == http.MethodDelete:
		h.Delete(w, r, id)
	case rest == "report" && r.Method == http.MethodGet:
		h.Report(w, r, id)
	case rest == "" || rest == "report":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Draft GET /api/v1/records/draft
func (h *RecordsHandler) Draft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.records.Draft(r.Context())))
}

// Create POST /api/v1/records
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var rec domain.Record
	if err := readBodyJSON(r, maxBodyBytes, &rec); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	saved, err := h.records.Create(r.Context(), rec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(saved))
}

// List GET /api/v1/records?sn=
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.records.List(r.Context(), service.ListRecordsRequest{SN: r.URL.Query().Get("sn")})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Get GET /api/v1/records/:id
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request, id int) {
	rec, err := h.records.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(rec))
}

// Delete DELETE /api/v1/records/:id
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request, id int) {
	deleted, err := h.records.Delete(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id, "deleted": deleted}))
}

// Report GET /api/v1/records/:id/report
func (h *RecordsHandler) Report(w http.ResponseWriter, r *http.Request, id int) {
	rep, err := h.reports.Generate(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeFile(w, rep.Filename, rep.ContentType, rep.Data)
}

// Export GET /api/v1/records/export?sn=
func (h *RecordsHandler) Export(w http.ResponseWriter, r *http.Request) {
	exp, err := h.exports.Export(r.Context(), service.ListRecordsRequest{SN: r.URL.Query().Get("sn")})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeFile(w, exp.Filename, exp.ContentType, exp.Data)
}

// writeError 业务错误统一转成 Fail 响应
func (h *RecordsHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSerialRequired):
		writeJSON(w, http.StatusOK, Fail("serial number is required"))
	case errors.Is(err, repository.ErrRecordNotFound):
		writeJSON(w, http.StatusOK, Fail("record not found"))
	case errors.Is(err, auth.ErrAdminRequired):
		writeJSON(w, http.StatusOK, Fail("admin login required"))
	case errors.Is(err, service.ErrReportNotAvailable):
		writeJSON(w, http.StatusOK, Fail("report not available"))
	default:
		h.logger.Error("Record request failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
	}
}
