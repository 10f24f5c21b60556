package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-alarm-rules/internal/errs"
)

func mustNormalize(t *testing.T, input string) string {
	t.Helper()
	node, err := Parse(input)
	require.NoError(t, err)
	_, canonical, err := ValidateAndNormalize(node)
	require.NoError(t, err)
	return canonical
}

// ============================================
// 规范化渲染
// ============================================

func TestNormalize_CanonicalForm(t *testing.T) {
	canonical := mustNormalize(t, "AVG( cpu.idle_perc { zone = z1 , hostname = host1 } )>10.0 times 3")
	assert.Equal(t, "avg(cpu.idle_perc{hostname=host1,zone=z1}, 60) > 10 times 3", canonical)
}

func TestNormalize_PeriodAlwaysRendered(t *testing.T) {
	canonical := mustNormalize(t, "max(mem.used) > 1024")
	assert.Equal(t, "max(mem.used, 60) > 1024", canonical)
}

func TestNormalize_TimesOmittedWhenOne(t *testing.T) {
	canonical := mustNormalize(t, "max(mem.used, 300) > 1024 times 1")
	assert.Equal(t, "max(mem.used, 300) > 1024", canonical)
}

func TestNormalize_WhitespaceVariantsConverge(t *testing.T) {
	a := mustNormalize(t, "avg(cpu){host=x} > 10")
	b := mustNormalize(t, "avg(cpu){host=x}>10")
	assert.Equal(t, a, b)
}

func TestNormalize_DimensionOrderConverges(t *testing.T) {
	a := mustNormalize(t, "avg(cpu{b=2,a=1}) > 10")
	b := mustNormalize(t, "avg(cpu{a=1,b=2}) > 10")
	assert.Equal(t, a, b)
}

func TestNormalize_DimensionPlacementConverges(t *testing.T) {
	inside := mustNormalize(t, "avg(cpu{host=x}) > 10")
	outside := mustNormalize(t, "avg(cpu){host=x} > 10")
	assert.Equal(t, inside, outside)
}

func TestNormalize_BooleanRendering(t *testing.T) {
	canonical := mustNormalize(t, "(avg(a) > 1 AND avg(b) > 2) OR avg(c) > 3")
	assert.Equal(t, "(avg(a, 60) > 1 and avg(b, 60) > 2) or avg(c, 60) > 3", canonical)
}

// ============================================
// 往返幂等性
// ============================================

func TestNormalize_RoundTripIdempotent(t *testing.T) {
	inputs := []string{
		"avg(cpu.idle_perc{hostname=host1}, 60) < 10 times 3",
		"max(mem.used) > 1024",
		"min(temp) <= -3.25 times 2",
		"avg(a{k=v}) > 1 and sum(b, 300) >= 2",
		"(avg(a) > 1 and avg(b) > 2) or (avg(c) > 3 and avg(d) > 4)",
		"count(errors{svc=api,env=prod}, 120) > 0",
	}

	for _, input := range inputs {
		node1, err := Parse(input)
		require.NoError(t, err, input)
		tree1, canonical1, err := ValidateAndNormalize(node1)
		require.NoError(t, err, input)

		node2, err := Parse(canonical1)
		require.NoError(t, err, "canonical text must re-parse: %q", canonical1)
		tree2, canonical2, err := ValidateAndNormalize(node2)
		require.NoError(t, err, canonical1)

		assert.Equal(t, canonical1, canonical2, input)
		assert.Equal(t, tree1, tree2, input)
	}
}

// ============================================
// 校验
// ============================================

func TestValidate_RejectsInvalidTrees(t *testing.T) {
	tests := []struct {
		name string
		node Node
	}{
		{"nil tree", nil},
		{"unknown function", &SubExpression{Function: "MEDIAN", MetricName: "cpu", Operator: OpGT, Threshold: 1, Period: 60, Periods: 1}},
		{"empty metric", &SubExpression{Function: FuncAvg, MetricName: "", Operator: OpGT, Threshold: 1, Period: 60, Periods: 1}},
		{"zero period", &SubExpression{Function: FuncAvg, MetricName: "cpu", Operator: OpGT, Threshold: 1, Period: 0, Periods: 1}},
		{"zero periods", &SubExpression{Function: FuncAvg, MetricName: "cpu", Operator: OpGT, Threshold: 1, Period: 60, Periods: 0}},
		{"single operand", &BooleanExpression{Connective: ConnAnd, Operands: []Node{
			&SubExpression{Function: FuncAvg, MetricName: "cpu", Operator: OpGT, Threshold: 1, Period: 60, Periods: 1},
		}}},
		{"bad connective", &BooleanExpression{Connective: "XOR", Operands: []Node{
			&SubExpression{Function: FuncAvg, MetricName: "cpu", Operator: OpGT, Threshold: 1, Period: 60, Periods: 1},
			&SubExpression{Function: FuncAvg, MetricName: "mem", Operator: OpGT, Threshold: 1, Period: 60, Periods: 1},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ValidateAndNormalize(tt.node)
			var ve *errs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.True(t, ve.HasErrors())
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	node := &SubExpression{
		Function:   "MEDIAN",
		MetricName: "",
		Operator:   OpGT,
		Threshold:  1,
		Period:     0,
		Periods:    0,
	}

	_, _, err := ValidateAndNormalize(node)
	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 4)
}

func TestValidate_PureFunction(t *testing.T) {
	node, err := Parse("avg(cpu{b=2,a=1}) > 10")
	require.NoError(t, err)

	_, first, err := ValidateAndNormalize(node)
	require.NoError(t, err)
	_, second, err := ValidateAndNormalize(node)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("cpu.idle_perc"))
	assert.True(t, ValidIdentifier("host-1"))
	assert.False(t, ValidIdentifier(""))
	assert.False(t, ValidIdentifier("bad key"))
	assert.False(t, ValidIdentifier("quote\"d"))
}
