package repository

import (
	"context"
	"errors"

	"wisefido-alarm-rules/internal/models"
)

// 仓库层哨兵错误；service 层负责映射为对外的错误类别
var (
	// ErrNotFound 记录不存在，或 tenant_id 不匹配（两者不区分）
	ErrNotFound = errors.New("alarm definition not found")
	// ErrConflict 乐观并发校验失败（version 不匹配或唯一约束冲突）
	ErrConflict = errors.New("alarm definition version conflict")
)

// AlarmDefinitionsRepository 报警定义仓库接口
// 使用强类型领域模型，不使用map[string]any
type AlarmDefinitionsRepository interface {
	// 查询（全部带 tenant_id 隔离）
	FindByID(ctx context.Context, tenantID, id string) (*models.AlarmDefinition, error)
	FindByName(ctx context.Context, tenantID, name string) (*models.AlarmDefinition, error)
	List(ctx context.Context, tenantID string, filters DefinitionFilters, page, size int) ([]*models.AlarmDefinition, int, error)

	// 创建
	Create(ctx context.Context, def *models.AlarmDefinition) error

	// 更新（CAS：expectedVersion 不匹配返回 ErrConflict；成功后 def.Version 递增）
	Update(ctx context.Context, def *models.AlarmDefinition, expectedVersion int64) error

	// 删除（物理删除）
	Delete(ctx context.Context, tenantID, id string) error

	// CountActiveAlarms 统计引用该定义的活动报警实例数（删除前的 in-use 检查）
	CountActiveAlarms(ctx context.Context, tenantID, id string) (int, error)
}

// DefinitionFilters 定义列表过滤器
type DefinitionFilters struct {
	Name *string // 名称精确匹配

	// Dimensions 维度过滤：每个键值对须出现在表达式某个子表达式的维度中
	Dimensions map[string]string
}

// ActionsRepository 动作注册表仓库（严格模式下校验 action id 存在性）
type ActionsRepository interface {
	ExistingActionIDs(ctx context.Context, tenantID string, ids []string) (map[string]bool, error)
}
