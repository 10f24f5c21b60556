// Package errs 核心层对外暴露的错误类别
// 每种失败类别独立可测，上层按类别映射传输层响应，核心层从不降级转换
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError 单个字段的校验失败
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError 语义校验失败（可携带多个字段，一次报告全部问题）
type ValidationError struct {
	Fields   []FieldError `json:"fields"`
	Warnings []FieldError `json:"warnings,omitempty"` // 警告不阻止操作（如默认策略下的重复 action）
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add 追加一个字段错误
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// Warn 追加一个警告
func (e *ValidationError) Warn(field, reason string) {
	e.Warnings = append(e.Warnings, FieldError{Field: field, Reason: reason})
}

// HasErrors 是否存在阻止操作的错误
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// Validation 构造单字段校验错误
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// NotFoundError 目标定义不存在，或属于其他租户
// 两种情况返回同一信号，避免跨租户泄露存在性
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("alarm definition not found: %s", e.ID)
}

// ConflictError 持久化层检测到并发修改（可重试）
type ConflictError struct {
	ID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("alarm definition modified concurrently: %s", e.ID)
}

// InUseError 定义仍被活动报警实例引用，删除被拒绝
type InUseError struct {
	ID string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("alarm definition is referenced by active alarms: %s", e.ID)
}

// IsValidation 判断是否校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound 判断是否未找到
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict 判断是否并发冲突
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsInUse 判断是否被引用
func IsInUse(err error) bool {
	var ue *InUseError
	return errors.As(err, &ue)
}
