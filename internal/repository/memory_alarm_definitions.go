package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"wisefido-alarm-rules/internal/expression"
	"wisefido-alarm-rules/internal/models"
)

// MemoryAlarmDefinitionsRepo supports tests and DB-less development.
// Per-id CAS semantics match the postgres implementation.
type MemoryAlarmDefinitionsRepo struct {
	mu     sync.RWMutex
	defs   map[string]*models.AlarmDefinition // id -> definition
	alarms map[string]int                     // id -> active alarm count (in-use check)
}

func NewMemoryAlarmDefinitionsRepo() *MemoryAlarmDefinitionsRepo {
	return &MemoryAlarmDefinitionsRepo{
		defs:   map[string]*models.AlarmDefinition{},
		alarms: map[string]int{},
	}
}

func (r *MemoryAlarmDefinitionsRepo) FindByID(_ context.Context, tenantID, id string) (*models.AlarmDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	if !ok || def.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return def.Clone(), nil
}

func (r *MemoryAlarmDefinitionsRepo) FindByName(_ context.Context, tenantID, name string) (*models.AlarmDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, def := range r.defs {
		if def.TenantID == tenantID && def.Name == name {
			return def.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryAlarmDefinitionsRepo) List(_ context.Context, tenantID string, filters DefinitionFilters, page, size int) ([]*models.AlarmDefinition, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*models.AlarmDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		if def.TenantID != tenantID {
			continue
		}
		if filters.Name != nil && def.Name != *filters.Name {
			continue
		}
		if len(filters.Dimensions) > 0 && !matchesDimensions(def.NormalizedExpression, filters.Dimensions) {
			continue
		}
		all = append(all, def.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name < all[j].Name
	})

	total := len(all)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *MemoryAlarmDefinitionsRepo) Create(_ context.Context, def *models.AlarmDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.defs {
		if existing.TenantID == def.TenantID && existing.Name == def.Name {
			return ErrConflict
		}
	}
	r.defs[def.ID] = def.Clone()
	return nil
}

func (r *MemoryAlarmDefinitionsRepo) Update(_ context.Context, def *models.AlarmDefinition, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.defs[def.ID]
	if !ok || existing.TenantID != def.TenantID {
		return ErrNotFound
	}
	if existing.Version != expectedVersion {
		return ErrConflict
	}

	updated := def.Clone()
	updated.Version = expectedVersion + 1
	updated.UpdatedAt = time.Now()
	r.defs[def.ID] = updated
	def.Version = updated.Version
	return nil
}

func (r *MemoryAlarmDefinitionsRepo) Delete(_ context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[id]
	if !ok || def.TenantID != tenantID {
		return ErrNotFound
	}
	delete(r.defs, id)
	delete(r.alarms, id)
	return nil
}

func (r *MemoryAlarmDefinitionsRepo) CountActiveAlarms(_ context.Context, tenantID, id string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	if !ok || def.TenantID != tenantID {
		return 0, nil
	}
	return r.alarms[id], nil
}

// matchesDimensions reports whether every filter pair appears in some
// sub-expression of the normalized expression.
func matchesDimensions(normalized string, dims map[string]string) bool {
	node, err := expression.Parse(normalized)
	if err != nil {
		return false
	}
	for k, v := range dims {
		if !hasDimension(node, k, v) {
			return false
		}
	}
	return true
}

func hasDimension(n expression.Node, key, value string) bool {
	switch e := n.(type) {
	case *expression.SubExpression:
		return e.Dimensions[key] == value
	case *expression.BooleanExpression:
		for _, op := range e.Operands {
			if hasDimension(op, key, value) {
				return true
			}
		}
	}
	return false
}

// SetActiveAlarms test helper: marks a definition as referenced by live alarms.
func (r *MemoryAlarmDefinitionsRepo) SetActiveAlarms(id string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alarms[id] = count
}
