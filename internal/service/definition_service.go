package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"wisefido-alarm-rules/internal/cache"
	"wisefido-alarm-rules/internal/errs"
	"wisefido-alarm-rules/internal/events"
	"wisefido-alarm-rules/internal/expression"
	"wisefido-alarm-rules/internal/metrics"
	"wisefido-alarm-rules/internal/models"
	"wisefido-alarm-rules/internal/repository"
	"wisefido-alarm-rules/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlarmStateWriter 报警实例状态协作方
// patch 载荷中的 state 是对当前报警实例状态的一次性转换请求，
// 转发给该协作方处理，不持久化到定义上
type AlarmStateWriter interface {
	SetState(ctx context.Context, tenantID, definitionID string, state models.AlarmState) error
}

// LinkHydrator 链接填充协作方（纯展示层，核心工作完成后调用）
type LinkHydrator interface {
	Hydrate(def *models.AlarmDefinition)
}

// DefinitionService 报警定义生命周期管理（创建/全量更新/部分更新/删除）
// 核心层无共享可变状态；同一定义的并发修改由仓库层 CAS 语义兜底
type DefinitionService struct {
	repo        repository.AlarmDefinitionsRepository
	validator   *validation.Validator
	defCache    *cache.DefinitionCache // 可为 nil（未启用缓存）
	publisher   events.Publisher
	stateWriter AlarmStateWriter // 可为 nil（无状态协作方）
	hydrator    LinkHydrator     // 可为 nil
	logger      *zap.Logger
}

// NewDefinitionService 创建定义服务
func NewDefinitionService(
	repo repository.AlarmDefinitionsRepository,
	validator *validation.Validator,
	defCache *cache.DefinitionCache,
	publisher events.Publisher,
	stateWriter AlarmStateWriter,
	hydrator LinkHydrator,
	logger *zap.Logger,
) *DefinitionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &DefinitionService{
		repo:        repo,
		validator:   validator,
		defCache:    defCache,
		publisher:   publisher,
		stateWriter: stateWriter,
		hydrator:    hydrator,
		logger:      logger,
	}
}

// CreateRequest 创建定义的入参
type CreateRequest struct {
	Name                string
	Description         string
	Severity            string
	Expression          string
	MatchBy             []string
	AlarmActions        []string
	OkActions           []string
	UndeterminedActions []string
}

// ReplaceRequest 全量更新的入参（PUT 语义：所有可变字段都必须提供）
type ReplaceRequest struct {
	Name                string
	Description         string
	Severity            string
	Expression          string
	MatchBy             []string
	ActionsEnabled      bool
	AlarmActions        []string
	OkActions           []string
	UndeterminedActions []string
}

// CreateDefinition 创建定义
// 前置条件：名称租户内唯一、表达式可解析校验、字段校验通过
func (s *DefinitionService) CreateDefinition(ctx context.Context, tenantID string, req CreateRequest) (*models.AlarmDefinition, error) {
	def, err := s.createDefinition(ctx, tenantID, req)
	s.record("create", err)
	return def, err
}

func (s *DefinitionService) createDefinition(ctx context.Context, tenantID string, req CreateRequest) (*models.AlarmDefinition, error) {
	if tenantID == "" {
		return nil, errs.Validation("tenant_id", "tenant_id is required")
	}

	// 表达式：解析 + 校验 + 规范化
	normalized, err := s.parseExpression(req.Expression)
	if err != nil {
		return nil, err
	}

	// 非表达式字段校验（一次收集全部问题）
	full := &models.DefinitionPatch{
		Name:                &req.Name,
		Description:         &req.Description,
		Severity:            &req.Severity,
		MatchBy:             &req.MatchBy,
		AlarmActions:        &req.AlarmActions,
		OkActions:           &req.OkActions,
		UndeterminedActions: &req.UndeterminedActions,
	}
	warnings, err := s.validator.ValidateFields(ctx, tenantID, full)
	if err != nil {
		return nil, err
	}
	s.logWarnings(tenantID, warnings)

	name := strings.TrimSpace(req.Name)
	if err := s.checkNameUnique(ctx, tenantID, name); err != nil {
		return nil, err
	}

	severity, _ := models.ParseSeverity(req.Severity)
	now := time.Now().UTC()
	def := &models.AlarmDefinition{
		ID:                   uuid.NewString(),
		TenantID:             tenantID,
		Name:                 name,
		Description:          req.Description,
		Severity:             severity,
		Expression:           strings.TrimSpace(req.Expression),
		NormalizedExpression: normalized,
		MatchBy:              emptyIfNil(req.MatchBy),
		ActionsEnabled:       true,
		AlarmActions:         emptyIfNil(req.AlarmActions),
		OkActions:            emptyIfNil(req.OkActions),
		UndeterminedActions:  emptyIfNil(req.UndeterminedActions),
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Create(ctx, def); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// 唯一索引竞争下的重复名称
			return nil, errs.Validation("name", "an alarm definition with this name already exists")
		}
		return nil, err
	}

	s.logger.Info("Created alarm definition",
		zap.String("tenant_id", tenantID),
		zap.String("id", def.ID),
		zap.String("name", def.Name),
	)

	s.cacheSet(ctx, def)
	s.publish(ctx, events.TypeDefinitionCreated, def)
	s.hydrate(def)
	return def, nil
}

// GetDefinition 获取单个定义（读路径走缓存）
func (s *DefinitionService) GetDefinition(ctx context.Context, tenantID, id string) (*models.AlarmDefinition, error) {
	def, err := s.getDefinition(ctx, tenantID, id)
	s.record("get", err)
	return def, err
}

func (s *DefinitionService) getDefinition(ctx context.Context, tenantID, id string) (*models.AlarmDefinition, error) {
	if s.defCache != nil {
		cached, err := s.defCache.Get(ctx, tenantID, id)
		switch {
		case err != nil:
			metrics.CacheHitsTotal.WithLabelValues("error").Inc()
			s.logger.Warn("Definition cache read failed", zap.Error(err))
		case cached != nil:
			metrics.CacheHitsTotal.WithLabelValues("hit").Inc()
			s.hydrate(cached)
			return cached, nil
		default:
			metrics.CacheHitsTotal.WithLabelValues("miss").Inc()
		}
	}

	def, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}
	s.cacheSet(ctx, def)
	s.hydrate(def)
	return def, nil
}

// ListDefinitions 列表查询（名称/维度过滤 + 分页）
// dimensions 的每个键值对须出现在定义表达式的某个子表达式维度中
func (s *DefinitionService) ListDefinitions(ctx context.Context, tenantID string, name *string, dimensions map[string]string, page, size int) ([]*models.AlarmDefinition, int, error) {
	defs, total, err := s.repo.List(ctx, tenantID, repository.DefinitionFilters{Name: name, Dimensions: dimensions}, page, size)
	s.record("list", err)
	if err != nil {
		return nil, 0, err
	}
	for _, def := range defs {
		s.hydrate(def)
	}
	return defs, total, nil
}

// ReplaceDefinition 全量更新
// 表达式从头重新解析；所有可变字段覆盖；id/tenant_id/created_at 保留
func (s *DefinitionService) ReplaceDefinition(ctx context.Context, tenantID, id string, req ReplaceRequest) (*models.AlarmDefinition, error) {
	def, err := s.replaceDefinition(ctx, tenantID, id, req)
	s.record("replace", err)
	return def, err
}

func (s *DefinitionService) replaceDefinition(ctx context.Context, tenantID, id string, req ReplaceRequest) (*models.AlarmDefinition, error) {
	existing, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}

	normalized, err := s.parseExpression(req.Expression)
	if err != nil {
		return nil, err
	}

	full := &models.DefinitionPatch{
		Name:                &req.Name,
		Description:         &req.Description,
		Severity:            &req.Severity,
		MatchBy:             &req.MatchBy,
		AlarmActions:        &req.AlarmActions,
		OkActions:           &req.OkActions,
		UndeterminedActions: &req.UndeterminedActions,
	}
	warnings, err := s.validator.ValidateFields(ctx, tenantID, full)
	if err != nil {
		return nil, err
	}
	s.logWarnings(tenantID, warnings)

	name := strings.TrimSpace(req.Name)
	if name != existing.Name {
		if err := s.checkNameUnique(ctx, tenantID, name); err != nil {
			return nil, err
		}
	}

	severity, _ := models.ParseSeverity(req.Severity)
	updated := existing.Clone()
	updated.Name = name
	updated.Description = req.Description
	updated.Severity = severity
	updated.Expression = strings.TrimSpace(req.Expression)
	updated.NormalizedExpression = normalized
	updated.MatchBy = emptyIfNil(req.MatchBy)
	updated.ActionsEnabled = req.ActionsEnabled
	updated.AlarmActions = emptyIfNil(req.AlarmActions)
	updated.OkActions = emptyIfNil(req.OkActions)
	updated.UndeterminedActions = emptyIfNil(req.UndeterminedActions)

	if err := s.persistUpdate(ctx, updated, existing.Version); err != nil {
		return nil, err
	}

	s.logger.Info("Replaced alarm definition",
		zap.String("tenant_id", tenantID),
		zap.String("id", id),
	)
	s.hydrate(updated)
	return updated, nil
}

// PatchDefinition 部分更新
// 只合并载荷中出现的字段；任何校验失败都不落任何变更
func (s *DefinitionService) PatchDefinition(ctx context.Context, tenantID, id string, patch *models.DefinitionPatch) (*models.AlarmDefinition, error) {
	def, err := s.patchDefinition(ctx, tenantID, id, patch)
	s.record("patch", err)
	return def, err
}

func (s *DefinitionService) patchDefinition(ctx context.Context, tenantID, id string, patch *models.DefinitionPatch) (*models.AlarmDefinition, error) {
	if patch == nil || patch.IsEmpty() {
		return nil, errs.Validation("patch", "at least one field must be supplied")
	}

	existing, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}

	// 提供的字段逐个校验；失败即整体拒绝，存储状态保持原样
	warnings, err := s.validator.ValidateFields(ctx, tenantID, patch)
	if err != nil {
		return nil, err
	}
	s.logWarnings(tenantID, warnings)

	// 表达式提供时整体替换，从头解析，不做增量编辑
	var normalized string
	if patch.Expression != nil {
		if normalized, err = s.parseExpression(*patch.Expression); err != nil {
			return nil, err
		}
	}

	merged := existing.Clone()
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name != existing.Name {
			if err := s.checkNameUnique(ctx, tenantID, name); err != nil {
				return nil, err
			}
		}
		merged.Name = name
	}
	if patch.Description != nil {
		// 空字符串 = 清空描述
		merged.Description = *patch.Description
	}
	if patch.Severity != nil {
		severity, _ := models.ParseSeverity(*patch.Severity)
		merged.Severity = severity
	}
	if patch.Expression != nil {
		merged.Expression = strings.TrimSpace(*patch.Expression)
		merged.NormalizedExpression = normalized
	}
	if patch.MatchBy != nil {
		// 整列表替换
		merged.MatchBy = emptyIfNil(*patch.MatchBy)
	}
	if patch.ActionsEnabled != nil {
		merged.ActionsEnabled = *patch.ActionsEnabled
	}
	if patch.AlarmActions != nil {
		// 空列表 = 清空
		merged.AlarmActions = emptyIfNil(*patch.AlarmActions)
	}
	if patch.OkActions != nil {
		merged.OkActions = emptyIfNil(*patch.OkActions)
	}
	if patch.UndeterminedActions != nil {
		merged.UndeterminedActions = emptyIfNil(*patch.UndeterminedActions)
	}

	// 仅包含 state 的 patch 不触发定义写入
	if s.hasPersistentChange(patch) {
		if err := s.persistUpdate(ctx, merged, existing.Version); err != nil {
			return nil, err
		}
	}

	if patch.State != nil {
		s.forwardState(ctx, tenantID, id, *patch.State)
	}

	s.logger.Info("Patched alarm definition",
		zap.String("tenant_id", tenantID),
		zap.String("id", id),
	)
	s.hydrate(merged)
	return merged, nil
}

// DeleteDefinition 删除定义
// 仍被活动报警实例引用时拒绝（InUseError）
func (s *DefinitionService) DeleteDefinition(ctx context.Context, tenantID, id string) error {
	err := s.deleteDefinition(ctx, tenantID, id)
	s.record("delete", err)
	return err
}

func (s *DefinitionService) deleteDefinition(ctx context.Context, tenantID, id string) error {
	def, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return s.mapRepoError(err, id)
	}

	count, err := s.repo.CountActiveAlarms(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return &errs.InUseError{ID: id}
	}

	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return s.mapRepoError(err, id)
	}

	s.logger.Info("Deleted alarm definition",
		zap.String("tenant_id", tenantID),
		zap.String("id", id),
		zap.String("name", def.Name),
	)

	s.cacheInvalidate(ctx, tenantID, id)
	s.publish(ctx, events.TypeDefinitionDeleted, def)
	return nil
}

// ============================================
// 内部辅助
// ============================================

// parseExpression 解析 + 校验 + 规范化表达式文本
func (s *DefinitionService) parseExpression(text string) (string, error) {
	start := time.Now()
	defer func() {
		metrics.ParseDuration.Observe(time.Since(start).Seconds())
	}()

	tree, err := expression.Parse(text)
	if err != nil {
		return "", err
	}
	_, canonical, err := expression.ValidateAndNormalize(tree)
	if err != nil {
		return "", err
	}
	return canonical, nil
}

// checkNameUnique 名称租户内唯一性检查
func (s *DefinitionService) checkNameUnique(ctx context.Context, tenantID, name string) error {
	existing, err := s.repo.FindByName(ctx, tenantID, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if existing != nil {
		return errs.Validation("name", "an alarm definition with this name already exists")
	}
	return nil
}

// persistUpdate CAS 更新 + 缓存失效 + 事件发布
func (s *DefinitionService) persistUpdate(ctx context.Context, def *models.AlarmDefinition, expectedVersion int64) error {
	if err := s.repo.Update(ctx, def, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return &errs.ConflictError{ID: def.ID}
		}
		return s.mapRepoError(err, def.ID)
	}
	s.cacheInvalidate(ctx, def.TenantID, def.ID)
	s.publish(ctx, events.TypeDefinitionUpdated, def)
	return nil
}

func (s *DefinitionService) hasPersistentChange(patch *models.DefinitionPatch) bool {
	return patch.Name != nil || patch.Description != nil || patch.Severity != nil ||
		patch.Expression != nil || patch.MatchBy != nil || patch.ActionsEnabled != nil ||
		patch.AlarmActions != nil || patch.OkActions != nil || patch.UndeterminedActions != nil
}

// forwardState 把 state 转发给报警实例状态协作方（不落库）
func (s *DefinitionService) forwardState(ctx context.Context, tenantID, id string, state models.AlarmState) {
	if s.stateWriter == nil {
		s.logger.Warn("No alarm state writer configured, state transition dropped",
			zap.String("tenant_id", tenantID),
			zap.String("id", id),
			zap.String("state", string(state)),
		)
		return
	}
	if err := s.stateWriter.SetState(ctx, tenantID, id, state); err != nil {
		s.logger.Error("Failed to forward alarm state transition",
			zap.String("tenant_id", tenantID),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}

// mapRepoError 仓库哨兵错误映射为对外错误类别
func (s *DefinitionService) mapRepoError(err error, id string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &errs.NotFoundError{ID: id}
	case errors.Is(err, repository.ErrConflict):
		return &errs.ConflictError{ID: id}
	}
	return err
}

func (s *DefinitionService) cacheSet(ctx context.Context, def *models.AlarmDefinition) {
	if s.defCache == nil {
		return
	}
	if err := s.defCache.Set(ctx, def); err != nil {
		s.logger.Warn("Definition cache write failed", zap.Error(err))
	}
}

func (s *DefinitionService) cacheInvalidate(ctx context.Context, tenantID, id string) {
	if s.defCache == nil {
		return
	}
	if err := s.defCache.Invalidate(ctx, tenantID, id); err != nil {
		s.logger.Warn("Definition cache invalidation failed", zap.Error(err))
	}
}

func (s *DefinitionService) publish(ctx context.Context, eventType string, def *models.AlarmDefinition) {
	if err := s.publisher.Publish(ctx, events.NewDefinitionEvent(eventType, def)); err != nil {
		s.logger.Error("Failed to publish definition event",
			zap.String("type", eventType),
			zap.String("id", def.ID),
			zap.Error(err),
		)
	}
}

func (s *DefinitionService) hydrate(def *models.AlarmDefinition) {
	if s.hydrator != nil {
		s.hydrator.Hydrate(def)
	}
}

func (s *DefinitionService) logWarnings(tenantID string, warnings []errs.FieldError) {
	for _, w := range warnings {
		s.logger.Warn("Definition validation warning",
			zap.String("tenant_id", tenantID),
			zap.String("field", w.Field),
			zap.String("reason", w.Reason),
		)
	}
}

// record 操作结果计数
func (s *DefinitionService) record(operation string, err error) {
	result := "ok"
	if err != nil {
		var pe *expression.ParseError
		switch {
		case errors.As(err, &pe):
			result = "parse_error"
		case errs.IsValidation(err):
			result = "validation_error"
		case errs.IsNotFound(err):
			result = "not_found"
		case errs.IsConflict(err):
			result = "conflict"
		case errs.IsInUse(err):
			result = "in_use"
		default:
			result = "error"
		}
	}
	metrics.OperationsTotal.WithLabelValues(operation, result).Inc()
}

// emptyIfNil 规约 nil 切片为空切片（持久化与 JSON 输出一致）
func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
