package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-alarm-rules/internal/models"
)

func memDef(tenantID, name string) *models.AlarmDefinition {
	return &models.AlarmDefinition{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
		Severity: models.SeverityLow,
		Version:  1,
	}
}

func TestMemoryRepo_CreateAndFind(t *testing.T) {
	repo := NewMemoryAlarmDefinitionsRepo()
	ctx := context.Background()

	def := memDef("t1", "cpu high")
	require.NoError(t, repo.Create(ctx, def))

	got, err := repo.FindByID(ctx, "t1", def.ID)
	require.NoError(t, err)
	assert.Equal(t, "cpu high", got.Name)

	got, err = repo.FindByName(ctx, "t1", "cpu high")
	require.NoError(t, err)
	assert.Equal(t, def.ID, got.ID)
}

func TestMemoryRepo_CreateDuplicateName(t *testing.T) {
	repo := NewMemoryAlarmDefinitionsRepo()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, memDef("t1", "n")))
	assert.ErrorIs(t, repo.Create(ctx, memDef("t1", "n")), ErrConflict)

	// 不同租户不冲突
	require.NoError(t, repo.Create(ctx, memDef("t2", "n")))
}

func TestMemoryRepo_TenantIsolation(t *testing.T) {
	repo := NewMemoryAlarmDefinitionsRepo()
	ctx := context.Background()

	def := memDef("tenantB", "n")
	require.NoError(t, repo.Create(ctx, def))

	_, err := repo.FindByID(ctx, "tenantA", def.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "tenantA", def.ID), ErrNotFound)
}

func TestMemoryRepo_CloneIsolation(t *testing.T) {
	repo := NewMemoryAlarmDefinitionsRepo()
	ctx := context.Background()

	def := memDef("t1", "n")
	def.AlarmActions = []string{"a1"}
	require.NoError(t, repo.Create(ctx, def))

	got, err := repo.FindByID(ctx, "t1", def.ID)
	require.NoError(t, err)
	got.Name = "mutated"
	got.AlarmActions[0] = "mutated"

	again, err := repo.FindByID(ctx, "t1", def.ID)
	require.NoError(t, err)
	assert.Equal(t, "n", again.Name)
	assert.Equal(t, []string{"a1"}, again.AlarmActions)
}

func TestMemoryRepo_UpdateCAS(t *testing.T) {
	repo := NewMemoryAlarmDefinitionsRepo()
	ctx := context.Background()

	def := memDef("t1", "n")
	require.NoError(t, repo.Create(ctx, def))

	def.Name = "n2"
	require.NoError(t, repo.Update(ctx, def, 1))
	assert.Equal(t, int64(2), def.Version)

	// 过期版本再次更新 = 冲突
	stale := def.Clone()
	stale.Name = "n3"
	assert.ErrorIs(t, repo.Update(ctx, stale, 1), ErrConflict)

	assert.ErrorIs(t, repo.Update(ctx, memDef("t1", "x"), 1), ErrNotFound)
}

func TestMemoryRepo_ListPagination(t *testing.T) {
	repo := NewMemoryAlarmDefinitionsRepo()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, memDef("t1", "charlie")))
	require.NoError(t, repo.Create(ctx, memDef("t1", "alpha")))
	require.NoError(t, repo.Create(ctx, memDef("t1", "bravo")))
	require.NoError(t, repo.Create(ctx, memDef("t2", "other")))

	defs, total, err := repo.List(ctx, "t1", DefinitionFilters{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, defs, 2)
	// 按名称排序
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "bravo", defs[1].Name)

	defs, _, err = repo.List(ctx, "t1", DefinitionFilters{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "charlie", defs[0].Name)
}

func TestMemoryRepo_ListDimensionFilter(t *testing.T) {
	repo := NewMemoryAlarmDefinitionsRepo()
	ctx := context.Background()

	web := memDef("t1", "web")
	web.NormalizedExpression = "avg(cpu{host=web1,service=web}, 60) > 10"
	require.NoError(t, repo.Create(ctx, web))

	db := memDef("t1", "db")
	db.NormalizedExpression = "avg(cpu{host=db1,service=db}, 60) > 10 and max(mem{service=db}, 60) > 1"
	require.NoError(t, repo.Create(ctx, db))

	defs, total, err := repo.List(ctx, "t1", DefinitionFilters{
		Dimensions: map[string]string{"service": "db"},
	}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, defs, 1)
	assert.Equal(t, "db", defs[0].Name)

	// 所有键值对都要命中
	defs, total, err = repo.List(ctx, "t1", DefinitionFilters{
		Dimensions: map[string]string{"service": "db", "host": "web1"},
	}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, defs)

	// 值不匹配时不命中（不是仅按键匹配）
	defs, total, err = repo.List(ctx, "t1", DefinitionFilters{
		Dimensions: map[string]string{"service": "cache"},
	}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, defs)
}

func TestMemoryRepo_CountActiveAlarms(t *testing.T) {
	repo := NewMemoryAlarmDefinitionsRepo()
	ctx := context.Background()

	def := memDef("t1", "n")
	require.NoError(t, repo.Create(ctx, def))

	count, err := repo.CountActiveAlarms(ctx, "t1", def.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	repo.SetActiveAlarms(def.ID, 4)
	count, err = repo.CountActiveAlarms(ctx, "t1", def.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
