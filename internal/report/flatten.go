package report

import (
	"strconv"

	"laser-repair/internal/domain"
)

// Flatten 使用 SchemaV1 拍平工单
func Flatten(rec domain.Record) map[string]string {
	return SchemaV1.Flatten(rec)
}

// Flatten 把工单拍平成 占位符 -> 文本
// 标量字段沿用原键名；子表每行每列生成 "<前缀>_<行号>"，行数不设上限，缺失值为空串
func (s Schema) Flatten(rec domain.Record) map[string]string {
	out := make(map[string]string, len(s.Scalars)+8*len(s.Tables))

	scalars := scalarValues(rec)
	for _, k := range s.Scalars {
		out[k] = scalars[k]
	}

	for _, t := range s.Tables {
		for i, row := range tableRows(rec, t.Field) {
			suffix := "_" + strconv.Itoa(i+1)
			for _, c := range t.Columns {
				out[c.Placeholder+suffix] = row.Cell(c.Name)
			}
		}
	}
	return out
}

func scalarValues(rec domain.Record) map[string]string {
	return map[string]string{
		"id":           strconv.Itoa(rec.ID),
		"date":         rec.Date,
		"sn":           rec.SN,
		"model":        rec.Model,
		"voltage":      rec.Voltage,
		"operator":     rec.Operator,
		"obs_case":     rec.ObsCase,
		"obs_mech":     rec.ObsMech,
		"work_hours":   rec.WorkHours,
		"alarms":       rec.Alarms,
		"hv":           rec.HV,
		"current":      rec.Current,
		"pulse":        rec.Pulse,
		"tec1_set":     rec.TEC1Set,
		"tec1_read":    rec.TEC1Read,
		"tec1_peltier": rec.TEC1Peltier,
		"tec2_set":     rec.TEC2Set,
		"tec2_read":    rec.TEC2Read,
		"tec2_peltier": rec.TEC2Peltier,
		"problem":      rec.Problem,
		"action":       rec.Action,
		"note":         rec.Note,
	}
}

func tableRows(rec domain.Record, field string) []domain.Row {
	var rows []domain.Row
	switch field {
	case "power_table":
		for _, r := range rec.PowerTable {
			rows = append(rows, r)
		}
	case "output_table":
		for _, r := range rec.OutputTable {
			rows = append(rows, r)
		}
	case "action_table":
		for _, r := range rec.ActionTable {
			rows = append(rows, r)
		}
	}
	return rows
}
