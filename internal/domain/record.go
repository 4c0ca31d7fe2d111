package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// DateLayout 工单日期格式（与旧数据文件一致）
const DateLayout = "2006-01-02"

// ErrSerialRequired 提交时序列号为空
var ErrSerialRequired = errors.New("serial number is required")

// Record 激光器维修工单
// JSON 字段名与旧版 laser_database.json 保持一致，旧文件可直接加载
type Record struct {
	ID   int    `json:"id"`
	Date string `json:"date"`

	// 基础信息
	SN       string `json:"sn"`
	Model    string `json:"model"`
	Voltage  string `json:"voltage"`
	Operator string `json:"operator"`

	// 外观检查
	ObsCase string `json:"obs_case"`
	ObsMech string `json:"obs_mech"`

	// 电子参数
	WorkHours string `json:"work_hours"`
	Alarms    string `json:"alarms"`

	// 驱动参数
	HV      string `json:"hv"`
	Current string `json:"current"`
	Pulse   string `json:"pulse"`

	// TEC 参数（两路）
	TEC1Set     string `json:"tec1_set"`
	TEC1Read    string `json:"tec1_read"`
	TEC1Peltier string `json:"tec1_peltier"`
	TEC2Set     string `json:"tec2_set"`
	TEC2Read    string `json:"tec2_read"`
	TEC2Peltier string `json:"tec2_peltier"`

	// 故障与措施
	Problem string `json:"problem"`
	Action  string `json:"action"`
	Note    string `json:"note"`

	PowerTable  []PowerRow  `json:"power_table"`
	OutputTable []OutputRow `json:"output_table"`
	ActionTable []ActionRow `json:"action_table"`
}

// Normalize replaces nil sub-tables with empty ones so they persist as [] rather than null.
func (r *Record) Normalize() {
	if r.PowerTable == nil {
		r.PowerTable = []PowerRow{}
	}
	if r.OutputTable == nil {
		r.OutputTable = []OutputRow{}
	}
	if r.ActionTable == nil {
		r.ActionTable = []ActionRow{}
	}
}

// ValidateForSubmit 提交校验：仅要求序列号非空，其余字段均可为空
func (r *Record) ValidateForSubmit() error {
	if strings.TrimSpace(r.SN) == "" {
		return ErrSerialRequired
	}
	return nil
}

// MatchesSerial 序列号子串匹配（不区分大小写）；空关键字匹配所有
func (r *Record) MatchesSerial(term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.SN), strings.ToLower(term))
}

// Clone returns a deep copy so callers never share row slices with the store.
func (r Record) Clone() Record {
	out := r
	if r.PowerTable != nil {
		out.PowerTable = make([]PowerRow, len(r.PowerTable))
		for i, row := range r.PowerTable {
			out.PowerTable[i] = row.clone()
		}
	}
	if r.OutputTable != nil {
		out.OutputTable = make([]OutputRow, len(r.OutputTable))
		copy(out.OutputTable, r.OutputTable)
	}
	if r.ActionTable != nil {
		out.ActionTable = make([]ActionRow, len(r.ActionTable))
		copy(out.ActionTable, r.ActionTable)
	}
	return out
}

// MarshalJSON keeps empty sub-tables as [] rather than null.
// <, >, & are escaped only when the caller's encoder escapes HTML (json.Marshal does,
// the store and the API encoders do not).
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	cp := r
	cp.Normalize()
	return marshalNoEscape(plain(cp))
}

// marshalNoEscape 内层不转义，外层 encoder 的 escapeHTML 设置决定最终输出
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
