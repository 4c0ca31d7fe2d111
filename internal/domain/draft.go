package domain

import "time"

// 录入表单默认值
const (
	DefaultModel    = "WYP-"
	DefaultVoltage  = "24V"
	DefaultOperator = "Guest"
	DefaultObsCase  = "完好 Normal"
	DefaultObsMech  = "无 None"
	DefaultAlarms   = "No Alarm"
)

// NewDraft 返回一张空白工单（录入页初始状态 / 保存后重置）
// 功率、输出功率、维修步骤各带一行空白，维修步骤默认当天日期
func NewDraft(now time.Time) Record {
	return Record{
		Model:    DefaultModel,
		Voltage:  DefaultVoltage,
		Operator: DefaultOperator,
		ObsCase:  DefaultObsCase,
		ObsMech:  DefaultObsMech,
		Alarms:   DefaultAlarms,

		PowerTable:  []PowerRow{{}},
		OutputTable: []OutputRow{{}},
		ActionTable: []ActionRow{{Operator: DefaultOperator, Date: now.Format(DateLayout)}},
	}
}
