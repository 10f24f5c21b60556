package models

// DefinitionPatch 部分更新载荷
// 每个可变字段是一个显式可选槽：nil 表示"未提供、保持原值"，
// 非 nil 的空值（空字符串、空列表）表示"清空"。
// 不使用 map[string]interface{}，缺席与显式置空必须可区分。
type DefinitionPatch struct {
	Name                *string     `json:"name,omitempty"`
	Description         *string     `json:"description,omitempty"` // 空字符串 = 清空描述
	Severity            *string     `json:"severity,omitempty"`
	Expression          *string     `json:"expression,omitempty"` // 提供时整体替换，不支持局部编辑
	MatchBy             *[]string   `json:"match_by,omitempty"`   // 整列表替换，不做逐元素合并
	ActionsEnabled      *bool       `json:"actions_enabled,omitempty"`
	AlarmActions        *[]string   `json:"alarm_actions,omitempty"` // 空列表 = 清空
	OkActions           *[]string   `json:"ok_actions,omitempty"`
	UndeterminedActions *[]string   `json:"undetermined_actions,omitempty"`
	State               *AlarmState `json:"state,omitempty"` // 一次性状态转发，不落库
}

// IsEmpty 是否没有任何字段
func (p *DefinitionPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Severity == nil &&
		p.Expression == nil && p.MatchBy == nil && p.ActionsEnabled == nil &&
		p.AlarmActions == nil && p.OkActions == nil &&
		p.UndeterminedActions == nil && p.State == nil
}
