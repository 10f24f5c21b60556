package models

import (
	"strings"
	"time"
)

// AlarmDefinition 报警定义（对应 alarm_definitions 表）
// 租户级的命名阈值规则：表达式 + 匹配维度 + 通知动作
type AlarmDefinition struct {
	ID                   string    `json:"id" db:"id"`
	TenantID             string    `json:"tenant_id" db:"tenant_id"`
	Name                 string    `json:"name" db:"name"`
	Description          string    `json:"description" db:"description"`
	Severity             Severity  `json:"severity" db:"severity"`                           // LOW, MEDIUM, HIGH, CRITICAL
	Expression           string    `json:"expression" db:"expression"`                       // 用户提交的原始表达式
	NormalizedExpression string    `json:"normalized_expression" db:"normalized_expression"` // 规范化后的表达式（下游评估器使用）
	MatchBy              []string  `json:"match_by" db:"match_by"`
	ActionsEnabled       bool      `json:"actions_enabled" db:"actions_enabled"`
	AlarmActions         []string  `json:"alarm_actions" db:"alarm_actions"`
	OkActions            []string  `json:"ok_actions" db:"ok_actions"`
	UndeterminedActions  []string  `json:"undetermined_actions" db:"undetermined_actions"`
	Version              int64     `json:"-" db:"version"` // 乐观并发控制
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`

	// 展示层链接（由 LinkHydrator 填充，不持久化）
	Links []Link `json:"links,omitempty" db:"-"`
}

// Link 导航链接
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// Severity 报警级别
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity 解析报警级别（大小写不敏感，返回规范大写形式）
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	case SeverityCritical:
		return SeverityCritical, true
	}
	return "", false
}

// AlarmState 报警实例状态（仅用于 patch 的状态转发，不持久化到定义上）
type AlarmState string

const (
	StateOK           AlarmState = "OK"
	StateAlarm        AlarmState = "ALARM"
	StateUndetermined AlarmState = "UNDETERMINED"
)

// ParseAlarmState 解析报警实例状态（大小写不敏感）
func ParseAlarmState(s string) (AlarmState, bool) {
	switch AlarmState(strings.ToUpper(strings.TrimSpace(s))) {
	case StateOK:
		return StateOK, true
	case StateAlarm:
		return StateAlarm, true
	case StateUndetermined:
		return StateUndetermined, true
	}
	return "", false
}

// Clone 深拷贝（patch 合并前复制，保证失败时不污染原实体）
func (d *AlarmDefinition) Clone() *AlarmDefinition {
	c := *d
	c.MatchBy = append([]string(nil), d.MatchBy...)
	c.AlarmActions = append([]string(nil), d.AlarmActions...)
	c.OkActions = append([]string(nil), d.OkActions...)
	c.UndeterminedActions = append([]string(nil), d.UndeterminedActions...)
	c.Links = nil
	return &c
}
