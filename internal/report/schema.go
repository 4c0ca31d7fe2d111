package report

import (
	"sort"
	"strconv"
	"strings"

	"laser-repair/internal/domain"
)

// Column 子表列名 -> 模板占位符前缀
type Column struct {
	Name        string
	Placeholder string
}

// Table 一个子表的映射；第 i 行（从 1 开始）的列写入 "<Placeholder>_<i>"
type Table struct {
	Field   string // 工单 JSON 中的字段名
	Columns []Column
}

// Schema 工单 -> 模板占位符的完整映射，带版本号
type Schema struct {
	Version string
	Scalars []string
	Tables  []Table
}

// SchemaV1 与现有 template.docx 约定的占位符
var SchemaV1 = Schema{
	Version: "v1",
	Scalars: []string{
		"id", "date", "sn", "model", "voltage", "operator",
		"obs_case", "obs_mech", "work_hours", "alarms",
		"hv", "current", "pulse",
		"tec1_set", "tec1_read", "tec1_peltier",
		"tec2_set", "tec2_read", "tec2_peltier",
		"problem", "action", "note",
	},
	Tables: []Table{
		{Field: "power_table", Columns: []Column{
			{Name: domain.ColCurrent, Placeholder: "current"},
			{Name: domain.ColPulseWidth, Placeholder: "pulse"},
			{Name: domain.ColWavelength, Placeholder: "nm"},
			{Name: domain.ColPower, Placeholder: "power"},
		}},
		{Field: "output_table", Columns: []Column{
			{Name: domain.Col355nm, Placeholder: "power_355"},
			{Name: domain.Col532nm, Placeholder: "power_532"},
			{Name: domain.Col1064nm, Placeholder: "power_1064"},
		}},
		{Field: "action_table", Columns: []Column{
			{Name: domain.ColAction, Placeholder: "action"},
			{Name: domain.ColActionOperator, Placeholder: "operator"},
			{Name: domain.ColActionDate, Placeholder: "date"},
		}},
	},
}

// ValidationReport 模板与映射的差异
type ValidationReport struct {
	// Unknown 模板里出现、但映射永远不会产生的占位符
	Unknown []string
	// MissingScalars 映射会产生、但模板里没有的标量占位符
	MissingScalars []string
}

// OK reports whether the template and the schema agree.
func (v ValidationReport) OK() bool {
	return len(v.Unknown) == 0 && len(v.MissingScalars) == 0
}

// Validate 对照模板占位符检查映射
func (s Schema) Validate(placeholders []string) ValidationReport {
	var rep ValidationReport
	present := make(map[string]bool, len(placeholders))
	for _, p := range placeholders {
		present[p] = true
		if !s.Produces(p) {
			rep.Unknown = append(rep.Unknown, p)
		}
	}
	for _, k := range s.Scalars {
		if !present[k] {
			rep.MissingScalars = append(rep.MissingScalars, k)
		}
	}
	sort.Strings(rep.Unknown)
	return rep
}

// Produces reports whether Flatten can ever emit the key.
// 表格占位符必须是 "<列前缀>_<行号>"；缺少行号的列前缀（如 power_355）不算
func (s Schema) Produces(key string) bool {
	for _, k := range s.Scalars {
		if k == key {
			return true
		}
	}
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			if c.Placeholder == key {
				return false
			}
		}
	}
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			rest, ok := strings.CutPrefix(key, c.Placeholder+"_")
			if !ok {
				continue
			}
			if n, err := strconv.Atoi(rest); err == nil && n >= 1 && strconv.Itoa(n) == rest {
				return true
			}
		}
	}
	return false
}
