package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"wisefido-alarm-rules/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresAlarmDefinitionsRepo 报警定义仓库（对应 alarm_definitions 表）
type PostgresAlarmDefinitionsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlarmDefinitionsRepo 创建报警定义仓库
func NewPostgresAlarmDefinitionsRepo(db *sql.DB, logger *zap.Logger) *PostgresAlarmDefinitionsRepo {
	return &PostgresAlarmDefinitionsRepo{
		db:     db,
		logger: logger,
	}
}

const definitionColumns = `
	id,
	tenant_id,
	name,
	description,
	severity,
	expression,
	normalized_expression,
	match_by,
	actions_enabled,
	alarm_actions,
	ok_actions,
	undetermined_actions,
	version,
	created_at,
	updated_at`

// FindByID 按 id 获取定义（需验证 tenant_id）
func (r *PostgresAlarmDefinitionsRepo) FindByID(ctx context.Context, tenantID, id string) (*models.AlarmDefinition, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alarm_definitions
		WHERE id = $1
		  AND tenant_id = $2
	`, definitionColumns)

	row := r.db.QueryRowContext(ctx, query, id, tenantID)
	def, err := scanDefinition(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alarm definition: %w", err)
	}
	return def, nil
}

// FindByName 按名称获取定义（创建/改名时的唯一性检查）
func (r *PostgresAlarmDefinitionsRepo) FindByName(ctx context.Context, tenantID, name string) (*models.AlarmDefinition, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alarm_definitions
		WHERE tenant_id = $1
		  AND name = $2
	`, definitionColumns)

	row := r.db.QueryRowContext(ctx, query, tenantID, name)
	def, err := scanDefinition(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alarm definition by name: %w", err)
	}
	return def, nil
}

// List 列表查询（支持名称过滤、分页）
func (r *PostgresAlarmDefinitionsRepo) List(ctx context.Context, tenantID string, filters DefinitionFilters, page, size int) ([]*models.AlarmDefinition, int, error) {
	if tenantID == "" {
		return []*models.AlarmDefinition{}, 0, nil
	}

	where := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	argN := 2

	if filters.Name != nil {
		where = append(where, fmt.Sprintf("name = $%d", argN))
		args = append(args, *filters.Name)
		argN++
	}

	dimKeys := make([]string, 0, len(filters.Dimensions))
	for k := range filters.Dimensions {
		dimKeys = append(dimKeys, k)
	}
	sort.Strings(dimKeys)
	for _, k := range dimKeys {
		where = append(where, fmt.Sprintf("normalized_expression ~ $%d", argN))
		args = append(args, dimensionPattern(k, filters.Dimensions[k]))
		argN++
	}

	whereClause := "WHERE " + strings.Join(where, " AND ")

	var total int
	queryCount := fmt.Sprintf(`SELECT COUNT(*) FROM alarm_definitions %s`, whereClause)
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alarm definitions: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT %s
		FROM alarm_definitions
		%s
		ORDER BY name ASC
		LIMIT $%d OFFSET $%d
	`, definitionColumns, whereClause, argN, argN+1)
	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query alarm definitions: %w", err)
	}
	defer rows.Close()

	defs := []*models.AlarmDefinition{}
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alarm definition: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alarm definitions: %w", err)
	}

	return defs, total, nil
}

// Create 创建定义
func (r *PostgresAlarmDefinitionsRepo) Create(ctx context.Context, def *models.AlarmDefinition) error {
	if def == nil {
		return fmt.Errorf("definition is required")
	}
	if def.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}

	query := `
		INSERT INTO alarm_definitions (
			id,
			tenant_id,
			name,
			description,
			severity,
			expression,
			normalized_expression,
			match_by,
			actions_enabled,
			alarm_actions,
			ok_actions,
			undetermined_actions,
			version,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		def.ID,
		def.TenantID,
		def.Name,
		def.Description,
		string(def.Severity),
		def.Expression,
		def.NormalizedExpression,
		pq.Array(def.MatchBy),
		def.ActionsEnabled,
		pq.Array(def.AlarmActions),
		pq.Array(def.OkActions),
		pq.Array(def.UndeterminedActions),
		def.Version,
		def.CreatedAt,
		def.UpdatedAt,
	)
	if err != nil {
		// 唯一索引 (tenant_id, name) 竞争下的重复创建
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to create alarm definition: %w", err)
	}
	return nil
}

// Update CAS 更新：WHERE 带 expectedVersion，0 行受影响时区分不存在与并发冲突
func (r *PostgresAlarmDefinitionsRepo) Update(ctx context.Context, def *models.AlarmDefinition, expectedVersion int64) error {
	if def == nil {
		return fmt.Errorf("definition is required")
	}
	if def.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if def.ID == "" {
		return fmt.Errorf("id is required")
	}

	query := `
		UPDATE alarm_definitions
		SET name = $1,
		    description = $2,
		    severity = $3,
		    expression = $4,
		    normalized_expression = $5,
		    match_by = $6,
		    actions_enabled = $7,
		    alarm_actions = $8,
		    ok_actions = $9,
		    undetermined_actions = $10,
		    version = version + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $11
		  AND tenant_id = $12
		  AND version = $13
	`

	result, err := r.db.ExecContext(ctx, query,
		def.Name,
		def.Description,
		string(def.Severity),
		def.Expression,
		def.NormalizedExpression,
		pq.Array(def.MatchBy),
		def.ActionsEnabled,
		pq.Array(def.AlarmActions),
		pq.Array(def.OkActions),
		pq.Array(def.UndeterminedActions),
		def.ID,
		def.TenantID,
		expectedVersion,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to update alarm definition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// 要么记录不存在，要么 version 不匹配
		var v int64
		err := r.db.QueryRowContext(ctx,
			`SELECT version FROM alarm_definitions WHERE id = $1 AND tenant_id = $2`,
			def.ID, def.TenantID,
		).Scan(&v)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check alarm definition version: %w", err)
		}
		return ErrConflict
	}

	def.Version = expectedVersion + 1
	return nil
}

// Delete 物理删除（需验证 tenant_id）
func (r *PostgresAlarmDefinitionsRepo) Delete(ctx context.Context, tenantID, id string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if id == "" {
		return fmt.Errorf("id is required")
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM alarm_definitions WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete alarm definition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	r.logger.Info("Deleted alarm definition",
		zap.String("tenant_id", tenantID),
		zap.String("id", id),
	)
	return nil
}

// CountActiveAlarms 统计引用该定义的活动报警实例数
func (r *PostgresAlarmDefinitionsRepo) CountActiveAlarms(ctx context.Context, tenantID, id string) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenant_id is required")
	}
	if id == "" {
		return 0, fmt.Errorf("id is required")
	}

	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM alarms
		WHERE alarm_definition_id = $1
		  AND tenant_id = $2
	`, id, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active alarms: %w", err)
	}
	return count, nil
}

// dimensionPattern 维度键值对在规范化表达式中的匹配模式
// 规范文本把维度渲染为 {k=v,k2=v2}（键排序、无空格），键值对两侧只能是 { , }
func dimensionPattern(key, value string) string {
	return `[{,]` + regexp.QuoteMeta(key+"="+value) + `[,}]`
}

// scanDefinition 从单行扫描定义（处理数组与可空字段）
func scanDefinition(row interface {
	Scan(dest ...interface{}) error
}) (*models.AlarmDefinition, error) {
	var def models.AlarmDefinition
	var description sql.NullString
	var severity string
	var matchBy, alarmActions, okActions, undeterminedActions pq.StringArray

	err := row.Scan(
		&def.ID,
		&def.TenantID,
		&def.Name,
		&description,
		&severity,
		&def.Expression,
		&def.NormalizedExpression,
		&matchBy,
		&def.ActionsEnabled,
		&alarmActions,
		&okActions,
		&undeterminedActions,
		&def.Version,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		def.Description = description.String
	}
	def.Severity = models.Severity(severity)
	def.MatchBy = []string(matchBy)
	def.AlarmActions = []string(alarmActions)
	def.OkActions = []string(okActions)
	def.UndeterminedActions = []string(undeterminedActions)

	return &def, nil
}
