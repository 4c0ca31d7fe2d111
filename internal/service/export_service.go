package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"laser-repair/internal/domain"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ExportContentType xlsx MIME
const ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	recordsSheet = "Records"
	powerSheet   = "Power"
	outputSheet  = "Output"
	actionsSheet = "Actions"
)

// RecordsExportHeader 历史导出表头（工单全部标量字段）
var RecordsExportHeader = []string{
	"ID", "Date", "Serial Number", "Model", "Voltage", "Operator",
	"Case", "Mechanics", "Work Hours", "Alarms", "HV", "Current", "Pulse",
	"TEC1 Set", "TEC1 Read", "TEC1 Peltier", "TEC2 Set", "TEC2 Read", "TEC2 Peltier",
	"Problem", "Action", "Note",
}

// PowerExportHeader 功率测试明细表头
var PowerExportHeader = []string{
	"ID", "Serial Number", "Row",
	domain.ColCurrent, domain.ColPulseWidth, domain.ColWavelength, domain.ColPower,
}

// OutputExportHeader 输出功率明细表头
var OutputExportHeader = []string{
	"ID", "Serial Number", "Row", domain.Col355nm, domain.Col532nm, domain.Col1064nm,
}

// ActionsExportHeader 维修步骤明细表头
var ActionsExportHeader = []string{
	"ID", "Serial Number", "Row", domain.ColAction, domain.ColActionOperator, domain.ColActionDate,
}

var recordsColumnWidths = []float64{
	8, 12, 20, 15, 10, 12,
	15, 15, 12, 15, 10, 10, 10,
	10, 10, 12, 10, 10, 12,
	30, 30, 30,
}

var exportSheets = []struct {
	name    string
	headers []string
}{
	{recordsSheet, RecordsExportHeader},
	{powerSheet, PowerExportHeader},
	{outputSheet, OutputExportHeader},
	{actionsSheet, ActionsExportHeader},
}

// Export 导出的 Excel 文件
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService 历史记录导出
type ExportService interface {
	Export(ctx context.Context, req ListRecordsRequest) (*Export, error)
}

type exportService struct {
	records RecordService
	logger  *zap.Logger
	now     func() time.Time
}

func NewExportService(records RecordService, logger *zap.Logger) ExportService {
	return &exportService{records: records, logger: logger, now: time.Now}
}

func (s *exportService) Export(ctx context.Context, req ListRecordsRequest) (*Export, error) {
	list, err := s.records.List(ctx, req)
	if err != nil {
		return nil, err
	}

	data, err := GenerateRecordsExport(list.Items)
	if err != nil {
		s.logger.Error("Failed to generate export", zap.Error(err))
		return nil, err
	}

	s.logger.Info("Records exported", zap.Int("count", len(list.Items)), zap.String("sn", req.SN))
	return &Export{
		Filename:    "Repair_History_" + s.now().Format("20060102") + ".xlsx",
		ContentType: ExportContentType,
		Data:        data,
	}, nil
}

// GenerateRecordsExport 生成工单历史 Excel：Records 为每单一行，
// Power / Output / Actions 为三个子表的明细（按 ID 关联）
func GenerateRecordsExport(records []domain.Record) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 之前不能 Close

	for _, sheet := range exportSheets {
		if _, err := f.NewSheet(sheet.name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet: %w", err)
		}
	}
	f.DeleteSheet("Sheet1")
	// 删除 Sheet1 后索引会变化，重新取
	if index, err := f.GetSheetIndex(recordsSheet); err == nil {
		f.SetActiveSheet(index)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for _, sheet := range exportSheets {
		if err := writeHeader(f, sheet.name, sheet.headers, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	for i, w := range recordsColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(recordsSheet, col, col, w); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// 各明细表下一行的行号
	next := map[string]int{powerSheet: 2, outputSheet: 2, actionsSheet: 2}
	appendDetail := func(sheet string, values []any) error {
		if err := writeRow(f, sheet, next[sheet], values); err != nil {
			return err
		}
		next[sheet]++
		return nil
	}

	for i, rec := range records {
		values := []any{
			rec.ID, rec.Date, rec.SN, rec.Model, rec.Voltage, rec.Operator,
			rec.ObsCase, rec.ObsMech, rec.WorkHours, rec.Alarms, rec.HV, rec.Current, rec.Pulse,
			rec.TEC1Set, rec.TEC1Read, rec.TEC1Peltier, rec.TEC2Set, rec.TEC2Read, rec.TEC2Peltier,
			rec.Problem, rec.Action, rec.Note,
		}
		if err := writeRow(f, recordsSheet, i+2, values); err != nil {
			f.Close()
			return nil, err
		}

		for n, p := range rec.PowerTable {
			if err := appendDetail(powerSheet, []any{rec.ID, rec.SN, n + 1, p.Current, p.PulseWidth, p.Wavelength, p.Power}); err != nil {
				f.Close()
				return nil, err
			}
		}
		for n, o := range rec.OutputTable {
			if err := appendDetail(outputSheet, []any{rec.ID, rec.SN, n + 1, o.P355, o.P532, o.P1064}); err != nil {
				f.Close()
				return nil, err
			}
		}
		for n, a := range rec.ActionTable {
			if err := appendDetail(actionsSheet, []any{rec.ID, rec.SN, n + 1, a.Action, a.Operator, a.Date}); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	// 冻结表头
	for _, sheet := range exportSheets {
		if err := f.SetPanes(sheet.name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to freeze panes: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
