package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"database/sql"
)

// PostgresActionsRepo 通知动作注册表（对应 notification_methods 表）
// 严格模式下定义校验器用它确认 action id 真实存在
type PostgresActionsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresActionsRepo 创建动作注册表仓库
func NewPostgresActionsRepo(db *sql.DB, logger *zap.Logger) *PostgresActionsRepo {
	return &PostgresActionsRepo{
		db:     db,
		logger: logger,
	}
}

// ExistingActionIDs 返回给定 id 中真实存在的子集（需验证 tenant_id）
func (r *PostgresActionsRepo) ExistingActionIDs(ctx context.Context, tenantID string, ids []string) (map[string]bool, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM notification_methods
		WHERE tenant_id = $1
		  AND id = ANY($2)
	`, tenantID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query notification methods: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan notification method id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification methods: %w", err)
	}
	return existing, nil
}

// MemoryActionsRepo in-memory action registry for tests.
type MemoryActionsRepo struct {
	mu  sync.RWMutex
	ids map[string]map[string]bool // tenantID -> action id set
}

func NewMemoryActionsRepo() *MemoryActionsRepo {
	return &MemoryActionsRepo{ids: map[string]map[string]bool{}}
}

// Register adds an action id for a tenant.
func (r *MemoryActionsRepo) Register(tenantID, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids[tenantID] == nil {
		r.ids[tenantID] = map[string]bool{}
	}
	r.ids[tenantID][id] = true
}

func (r *MemoryActionsRepo) ExistingActionIDs(_ context.Context, tenantID string, ids []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing := make(map[string]bool, len(ids))
	for _, id := range ids {
		if r.ids[tenantID][id] {
			existing[id] = true
		}
	}
	return existing, nil
}
