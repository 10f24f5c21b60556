// Package validation 报警定义非表达式字段的校验
// 一次遍历收集全部字段错误，调用方可整体上报，而不是只见第一个
package validation

import (
	"context"
	"fmt"
	"strings"

	"wisefido-alarm-rules/internal/errs"
	"wisefido-alarm-rules/internal/expression"
	"wisefido-alarm-rules/internal/models"
)

const (
	maxNameLen        = 255
	maxDescriptionLen = 255
	maxActionIDLen    = 50
	maxActionsPerList = 50
)

// ActionRegistry 动作注册表（可选能力）
// 严格模式下校验 action id 是否真实存在
type ActionRegistry interface {
	ExistingActionIDs(ctx context.Context, tenantID string, ids []string) (map[string]bool, error)
}

// Options 校验策略
type Options struct {
	// RejectDuplicateActions 同一动作列表内的重复 id：
	// false（默认）作为警告上报；true 作为错误拒绝
	RejectDuplicateActions bool

	// Registry 非 nil 时启用严格模式：每个 action id 必须存在
	Registry ActionRegistry
}

// Validator 定义字段校验器
type Validator struct {
	opts Options
}

// NewValidator 创建校验器
func NewValidator(opts Options) *Validator {
	return &Validator{opts: opts}
}

// ValidateFields 校验 patch 中出现的字段（nil 槽位跳过）
// 创建/全量更新复用同一入口：把全部字段填进 DefinitionPatch 即可
// 返回警告列表和错误；错误为 *errs.ValidationError
func (v *Validator) ValidateFields(ctx context.Context, tenantID string, p *models.DefinitionPatch) ([]errs.FieldError, error) {
	ve := &errs.ValidationError{}

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			ve.Add("name", "name is required and must be non-empty")
		} else if len(name) > maxNameLen {
			ve.Add("name", fmt.Sprintf("name must not exceed %d characters", maxNameLen))
		}
	}

	if p.Description != nil && len(*p.Description) > maxDescriptionLen {
		ve.Add("description", fmt.Sprintf("description must not exceed %d characters", maxDescriptionLen))
	}

	if p.Severity != nil {
		if _, ok := models.ParseSeverity(*p.Severity); !ok {
			ve.Add("severity", fmt.Sprintf("severity %q is not one of LOW, MEDIUM, HIGH, CRITICAL", *p.Severity))
		}
	}

	if p.MatchBy != nil {
		seen := make(map[string]bool, len(*p.MatchBy))
		for _, key := range *p.MatchBy {
			if !expression.ValidIdentifier(key) {
				ve.Add("match_by", fmt.Sprintf("invalid dimension key %q", key))
				continue
			}
			if seen[key] {
				ve.Add("match_by", fmt.Sprintf("duplicate dimension key %q", key))
			}
			seen[key] = true
		}
	}

	if p.State != nil {
		if _, ok := models.ParseAlarmState(string(*p.State)); !ok {
			ve.Add("state", fmt.Sprintf("state %q is not one of OK, ALARM, UNDETERMINED", string(*p.State)))
		}
	}

	v.validateActions(ve, "alarm_actions", p.AlarmActions)
	v.validateActions(ve, "ok_actions", p.OkActions)
	v.validateActions(ve, "undetermined_actions", p.UndeterminedActions)

	if v.opts.Registry != nil && !ve.HasErrors() {
		if err := v.checkRegistry(ctx, tenantID, ve, p); err != nil {
			return nil, err
		}
	}

	if ve.HasErrors() {
		return ve.Warnings, ve
	}
	return ve.Warnings, nil
}

func (v *Validator) validateActions(ve *errs.ValidationError, field string, actions *[]string) {
	if actions == nil {
		return
	}
	if len(*actions) > maxActionsPerList {
		ve.Add(field, fmt.Sprintf("at most %d actions are allowed", maxActionsPerList))
	}
	seen := make(map[string]bool, len(*actions))
	for _, id := range *actions {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			ve.Add(field, "action id must be non-empty")
			continue
		}
		if len(trimmed) > maxActionIDLen {
			ve.Add(field, fmt.Sprintf("action id %q exceeds %d characters", trimmed, maxActionIDLen))
			continue
		}
		if seen[trimmed] {
			if v.opts.RejectDuplicateActions {
				ve.Add(field, fmt.Sprintf("duplicate action id %q", trimmed))
			} else {
				ve.Warn(field, fmt.Sprintf("duplicate action id %q", trimmed))
			}
		}
		seen[trimmed] = true
	}
}

// checkRegistry 严格模式：所有 action id 必须在注册表中存在
func (v *Validator) checkRegistry(ctx context.Context, tenantID string, ve *errs.ValidationError, p *models.DefinitionPatch) error {
	lists := map[string]*[]string{
		"alarm_actions":        p.AlarmActions,
		"ok_actions":           p.OkActions,
		"undetermined_actions": p.UndeterminedActions,
	}
	var all []string
	for _, ids := range lists {
		if ids != nil {
			all = append(all, *ids...)
		}
	}
	if len(all) == 0 {
		return nil
	}

	existing, err := v.opts.Registry.ExistingActionIDs(ctx, tenantID, all)
	if err != nil {
		return fmt.Errorf("failed to check action registry: %w", err)
	}
	for field, ids := range lists {
		if ids == nil {
			continue
		}
		for _, id := range *ids {
			if !existing[id] {
				ve.Add(field, fmt.Sprintf("action %q does not exist", id))
			}
		}
	}
	return nil
}
