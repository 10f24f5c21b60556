package validation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-alarm-rules/internal/errs"
	"wisefido-alarm-rules/internal/models"
	"wisefido-alarm-rules/internal/repository"
)

func strPtr(s string) *string       { return &s }
func listPtr(s ...string) *[]string { return &s }

func fullPatch() *models.DefinitionPatch {
	return &models.DefinitionPatch{
		Name:                strPtr("cpu high"),
		Description:         strPtr("cpu usage too high"),
		Severity:            strPtr("HIGH"),
		MatchBy:             listPtr("hostname"),
		AlarmActions:        listPtr("a1"),
		OkActions:           listPtr("a2"),
		UndeterminedActions: listPtr("a3"),
	}
}

func TestValidateFields_Valid(t *testing.T) {
	v := NewValidator(Options{})

	warnings, err := v.ValidateFields(context.Background(), "t1", fullPatch())

	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestValidateFields_SkipsAbsentSlots(t *testing.T) {
	v := NewValidator(Options{})

	// 只提供 name；其余 nil 槽位不校验
	warnings, err := v.ValidateFields(context.Background(), "t1", &models.DefinitionPatch{
		Name: strPtr("n2"),
	})

	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestValidateFields_CollectsAllFailures(t *testing.T) {
	v := NewValidator(Options{})

	p := fullPatch()
	p.Name = strPtr("   ")
	p.Severity = strPtr("BOGUS")
	p.AlarmActions = listPtr("")
	p.MatchBy = listPtr("hostname", "hostname")

	_, err := v.ValidateFields(context.Background(), "t1", p)

	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := make([]string, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		fields = append(fields, f.Field)
	}
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "severity")
	assert.Contains(t, fields, "alarm_actions")
	assert.Contains(t, fields, "match_by")
	assert.Len(t, ve.Fields, 4)
}

func TestValidateFields_NameTooLong(t *testing.T) {
	v := NewValidator(Options{})

	p := fullPatch()
	p.Name = strPtr(strings.Repeat("x", 256))

	_, err := v.ValidateFields(context.Background(), "t1", p)

	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Fields[0].Field)
}

func TestValidateFields_SeverityCaseInsensitive(t *testing.T) {
	v := NewValidator(Options{})

	p := fullPatch()
	p.Severity = strPtr("critical")

	_, err := v.ValidateFields(context.Background(), "t1", p)
	require.NoError(t, err)
}

func TestValidateFields_InvalidState(t *testing.T) {
	v := NewValidator(Options{})

	state := models.AlarmState("BROKEN")
	_, err := v.ValidateFields(context.Background(), "t1", &models.DefinitionPatch{State: &state})

	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "state", ve.Fields[0].Field)
}

func TestValidateFields_InvalidMatchByKey(t *testing.T) {
	v := NewValidator(Options{})

	p := fullPatch()
	p.MatchBy = listPtr("bad key")

	_, err := v.ValidateFields(context.Background(), "t1", p)

	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "match_by", ve.Fields[0].Field)
}

// ============================================
// 重复 action 策略（可配置）
// ============================================

func TestValidateFields_DuplicateActionsWarnByDefault(t *testing.T) {
	v := NewValidator(Options{RejectDuplicateActions: false})

	p := fullPatch()
	p.AlarmActions = listPtr("a1", "a1")

	warnings, err := v.ValidateFields(context.Background(), "t1", p)

	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "alarm_actions", warnings[0].Field)
}

func TestValidateFields_DuplicateActionsRejectedWhenConfigured(t *testing.T) {
	v := NewValidator(Options{RejectDuplicateActions: true})

	p := fullPatch()
	p.AlarmActions = listPtr("a1", "a1")

	_, err := v.ValidateFields(context.Background(), "t1", p)

	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "alarm_actions", ve.Fields[0].Field)
}

// ============================================
// 严格模式（动作注册表）
// ============================================

func TestValidateFields_StrictModeUnknownAction(t *testing.T) {
	registry := repository.NewMemoryActionsRepo()
	registry.Register("t1", "a1")
	v := NewValidator(Options{Registry: registry})

	p := fullPatch()
	p.AlarmActions = listPtr("a1", "missing")
	p.OkActions = nil
	p.UndeterminedActions = nil

	_, err := v.ValidateFields(context.Background(), "t1", p)

	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "alarm_actions", ve.Fields[0].Field)
	assert.Contains(t, ve.Fields[0].Reason, "missing")
}

func TestValidateFields_StrictModeAllKnown(t *testing.T) {
	registry := repository.NewMemoryActionsRepo()
	registry.Register("t1", "a1")
	registry.Register("t1", "a2")
	registry.Register("t1", "a3")
	v := NewValidator(Options{Registry: registry})

	_, err := v.ValidateFields(context.Background(), "t1", fullPatch())
	require.NoError(t, err)
}
