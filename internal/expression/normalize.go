package expression

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"wisefido-alarm-rules/internal/errs"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,255}$`)

// ValidIdentifier 指标名、维度键/值、match_by 键共用的标识符语法
func ValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// ValidateAndNormalize 递归校验表达式树并生成规范文本
// 纯函数：不修改入参、无 I/O；语义相同的输入得到相同的规范文本，
// 这是生命周期层幂等重提交和更新差异比较所依赖的契约。
// 失败返回 *errs.ValidationError，一次性报告所有问题。
func ValidateAndNormalize(root Node) (Node, string, error) {
	ve := &errs.ValidationError{}
	if root == nil {
		ve.Add("expression", "expression tree is empty")
		return nil, "", ve
	}
	validateNode(root, ve)
	if ve.HasErrors() {
		return nil, "", ve
	}
	return root, Render(root), nil
}

func validateNode(n Node, ve *errs.ValidationError) {
	switch e := n.(type) {
	case *SubExpression:
		switch e.Function {
		case FuncMax, FuncMin, FuncAvg, FuncSum, FuncCount:
		default:
			ve.Add("expression", fmt.Sprintf("unknown aggregate function %q", string(e.Function)))
		}
		if !ValidIdentifier(e.MetricName) {
			ve.Add("expression", fmt.Sprintf("invalid metric name %q", e.MetricName))
		}
		for k, v := range e.Dimensions {
			if !ValidIdentifier(k) {
				ve.Add("expression", fmt.Sprintf("invalid dimension key %q", k))
			}
			if !ValidIdentifier(v) {
				ve.Add("expression", fmt.Sprintf("invalid dimension value %q", v))
			}
		}
		switch e.Operator {
		case OpLT, OpLTE, OpGT, OpGTE:
		default:
			ve.Add("expression", fmt.Sprintf("unknown operator %q", string(e.Operator)))
		}
		if math.IsNaN(e.Threshold) || math.IsInf(e.Threshold, 0) {
			ve.Add("expression", "threshold must be a finite number")
		}
		if e.Period <= 0 {
			ve.Add("expression", fmt.Sprintf("period must be positive, got %d", e.Period))
		}
		if e.Periods < 1 {
			ve.Add("expression", fmt.Sprintf("periods must be at least 1, got %d", e.Periods))
		}
	case *BooleanExpression:
		if e.Connective != ConnAnd && e.Connective != ConnOr {
			ve.Add("expression", fmt.Sprintf("unknown connective %q", string(e.Connective)))
		}
		if len(e.Operands) < 2 {
			ve.Add("expression", "boolean expression requires at least 2 operands")
		}
		for _, op := range e.Operands {
			validateNode(op, ve)
		}
	default:
		ve.Add("expression", "unknown expression node")
	}
}

// Render 规范文本渲染
// 固定的 token 顺序与空白：函数名小写、维度按键排序且花括号内不含空格、
// 关系运算符两侧各一个空格、period 总是显式渲染、periods 为 1 时省略 times
func Render(n Node) string {
	switch e := n.(type) {
	case *SubExpression:
		return renderSub(e)
	case *BooleanExpression:
		parts := make([]string, 0, len(e.Operands))
		for _, op := range e.Operands {
			if _, nested := op.(*BooleanExpression); nested {
				parts = append(parts, "("+Render(op)+")")
			} else {
				parts = append(parts, Render(op))
			}
		}
		return strings.Join(parts, " "+strings.ToLower(string(e.Connective))+" ")
	}
	return ""
}

func renderSub(e *SubExpression) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(e.Function)))
	b.WriteByte('(')
	b.WriteString(e.MetricName)
	if len(e.Dimensions) > 0 {
		keys := make([]string, 0, len(e.Dimensions))
		for k := range e.Dimensions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(e.Dimensions[k])
		}
		b.WriteByte('}')
	}
	fmt.Fprintf(&b, ", %d) %s %s", e.Period, e.Operator.Symbol(),
		strconv.FormatFloat(e.Threshold, 'f', -1, 64))
	if e.Periods > 1 {
		fmt.Fprintf(&b, " times %d", e.Periods)
	}
	return b.String()
}
