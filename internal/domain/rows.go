package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// 子表列名（即 JSON 中每行的键，沿用录入表格的表头）
const (
	ColCurrent    = "电流 I [A]"
	ColPulseWidth = "脉宽 [us]"
	ColWavelength = "波长 λ"
	ColPower      = "功率 P [W]"

	Col355nm  = "355nm"
	Col532nm  = "532nm"
	Col1064nm = "1064nm"

	ColAction         = "维修措施"
	ColActionOperator = "操作员"
	ColActionDate     = "日期"
)

// Row is a sub-table row addressable by column name.
type Row interface {
	Cell(column string) string
}

// PowerRow 功率测量（动态行数）
// Extra 保存录入端追加的自定义列，读写时原样保留
type PowerRow struct {
	Current    string
	PulseWidth string
	Wavelength string
	Power      string
	Extra      map[string]string
}

func (r PowerRow) Cell(column string) string {
	switch column {
	case ColCurrent:
		return r.Current
	case ColPulseWidth:
		return r.PulseWidth
	case ColWavelength:
		return r.Wavelength
	case ColPower:
		return r.Power
	}
	return r.Extra[column]
}

func (r PowerRow) clone() PowerRow {
	if r.Extra == nil {
		return r
	}
	extra := make(map[string]string, len(r.Extra))
	for k, v := range r.Extra {
		extra[k] = v
	}
	r.Extra = extra
	return r
}

func (r PowerRow) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, 4+len(r.Extra))
	for k, v := range r.Extra {
		m[k] = v
	}
	m[ColCurrent] = r.Current
	m[ColPulseWidth] = r.PulseWidth
	m[ColWavelength] = r.Wavelength
	m[ColPower] = r.Power
	return marshalNoEscape(m)
}

func (r *PowerRow) UnmarshalJSON(data []byte) error {
	cells, err := decodeCells(data)
	if err != nil {
		return fmt.Errorf("power row: %w", err)
	}
	*r = PowerRow{
		Current:    take(cells, ColCurrent),
		PulseWidth: take(cells, ColPulseWidth),
		Wavelength: take(cells, ColWavelength),
		Power:      take(cells, ColPower),
	}
	if len(cells) > 0 {
		r.Extra = cells
	}
	return nil
}

// OutputRow 输出功率（固定三列）
type OutputRow struct {
	P355  string `json:"355nm"`
	P532  string `json:"532nm"`
	P1064 string `json:"1064nm"`
}

func (r OutputRow) Cell(column string) string {
	switch column {
	case Col355nm:
		return r.P355
	case Col532nm:
		return r.P532
	case Col1064nm:
		return r.P1064
	}
	return ""
}

func (r *OutputRow) UnmarshalJSON(data []byte) error {
	cells, err := decodeCells(data)
	if err != nil {
		return fmt.Errorf("output row: %w", err)
	}
	*r = OutputRow{P355: cells[Col355nm], P532: cells[Col532nm], P1064: cells[Col1064nm]}
	return nil
}

// ActionRow 详细维修步骤（动态行数）
type ActionRow struct {
	Action   string `json:"维修措施"`
	Operator string `json:"操作员"`
	Date     string `json:"日期"`
}

func (r ActionRow) Cell(column string) string {
	switch column {
	case ColAction:
		return r.Action
	case ColActionOperator:
		return r.Operator
	case ColActionDate:
		return r.Date
	}
	return ""
}

func (r *ActionRow) UnmarshalJSON(data []byte) error {
	cells, err := decodeCells(data)
	if err != nil {
		return fmt.Errorf("action row: %w", err)
	}
	*r = ActionRow{Action: cells[ColAction], Operator: cells[ColActionOperator], Date: cells[ColActionDate]}
	return nil
}

// decodeCells 把一行解析为 列名 -> 文本；null 为空串，数字保留原始写法
func decodeCells(data []byte) (map[string]string, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = cellString(v)
	}
	return out, nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func take(m map[string]string, key string) string {
	v := m[key]
	delete(m, key)
	return v
}
