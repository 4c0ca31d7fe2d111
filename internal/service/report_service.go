package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"laser-repair/internal/domain"
	"laser-repair/internal/report"

	"go.uber.org/zap"
)

// ErrReportNotAvailable 模板缺失或渲染失败（统一为一种结果）
var ErrReportNotAvailable = errors.New("report not available")

// Report 生成好的维修报告
type Report struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReportService 维修报告服务接口
type ReportService interface {
	// Generate 按工单 id 生成报告
	Generate(ctx context.Context, id int) (*Report, error)
	// Render 直接用给定工单生成报告（不查库）
	Render(ctx context.Context, rec domain.Record) (*Report, error)
	// ValidateTemplate 检查模板占位符与 schema 是否一致
	ValidateTemplate(ctx context.Context) (report.ValidationReport, error)
}

type reportService struct {
	records      RecordService
	renderer     report.Renderer
	schema       report.Schema
	templatePath string
	logger       *zap.Logger
}

func NewReportService(records RecordService, renderer report.Renderer, templatePath string, logger *zap.Logger) ReportService {
	return &reportService{
		records:      records,
		renderer:     renderer,
		schema:       report.SchemaV1,
		templatePath: templatePath,
		logger:       logger,
	}
}

func (s *reportService) Generate(ctx context.Context, id int) (*Report, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Render(ctx, *rec)
}

func (s *reportService) Render(_ context.Context, rec domain.Record) (*Report, error) {
	if _, err := os.Stat(s.templatePath); err != nil {
		s.logger.Warn("Report template not available",
			zap.String("template", s.templatePath),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: template %s: %v", ErrReportNotAvailable, s.templatePath, err)
	}

	data, err := s.renderer.Render(s.templatePath, s.schema.Flatten(rec))
	if err != nil {
		s.logger.Error("Failed to render report",
			zap.Int("id", rec.ID),
			zap.String("sn", rec.SN),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrReportNotAvailable, err)
	}

	return &Report{
		Filename:    ReportFilename(rec.SN),
		ContentType: report.ContentType,
		Data:        data,
	}, nil
}

func (s *reportService) ValidateTemplate(_ context.Context) (report.ValidationReport, error) {
	placeholders, err := report.TemplatePlaceholders(s.templatePath)
	if err != nil {
		return report.ValidationReport{}, fmt.Errorf("%w: %v", ErrReportNotAvailable, err)
	}

	result := s.schema.Validate(placeholders)
	if len(result.Unknown) > 0 {
		s.logger.Warn("Template placeholders not produced by schema",
			zap.String("schema", s.schema.Version),
			zap.Strings("placeholders", result.Unknown),
		)
	}
	if len(result.MissingScalars) > 0 {
		s.logger.Info("Schema fields not used by template",
			zap.String("schema", s.schema.Version),
			zap.Strings("fields", result.MissingScalars),
		)
	}
	return result, nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "\"", "_",
	"*", "_", "?", "_", "<", "_", ">", "_", "|", "_",
)

// ReportFilename Report_<sn>.docx，序列号中不能用于文件名的字符替换为 _
func ReportFilename(sn string) string {
	return "Report_" + filenameReplacer.Replace(strings.TrimSpace(sn)) + report.Extension
}
