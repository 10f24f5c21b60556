// Package expression 阈值表达式 DSL：词法分析、语法分析、校验与规范化。
//
// 表达式示例：
//
//	avg(cpu.idle_perc{hostname=host1}, 60) < 10 times 3
//	max(mem.used{host=a}) > 1024 and max(swap.used{host=a}) > 512
//
// 同一分组层级内不允许混用 and/or，必须加括号消除歧义。
package expression

// Node 表达式树节点（封闭变体集：SubExpression 或 BooleanExpression）
type Node interface {
	node()
}

// Function 聚合函数
type Function string

const (
	FuncMax   Function = "MAX"
	FuncMin   Function = "MIN"
	FuncAvg   Function = "AVG"
	FuncSum   Function = "SUM"
	FuncCount Function = "COUNT"
)

// Operator 关系运算符
type Operator string

const (
	OpLT  Operator = "LT"
	OpLTE Operator = "LTE"
	OpGT  Operator = "GT"
	OpGTE Operator = "GTE"
)

// Symbol 运算符的文本形式
func (o Operator) Symbol() string {
	switch o {
	case OpLT:
		return "<"
	case OpLTE:
		return "<="
	case OpGT:
		return ">"
	case OpGTE:
		return ">="
	}
	return "?"
}

// Connective 布尔连接词
type Connective string

const (
	ConnAnd Connective = "AND"
	ConnOr  Connective = "OR"
)

// DefaultPeriod 默认统计周期（秒）
const DefaultPeriod = 60

// DefaultPeriods 默认连续周期数
const DefaultPeriods = 1

// SubExpression 叶子节点：单个指标聚合比较
type SubExpression struct {
	Function   Function          `json:"function"`
	MetricName string            `json:"metric_name"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Operator   Operator          `json:"operator"`
	Threshold  float64           `json:"threshold"`
	Period     int               `json:"period"`  // 秒
	Periods    int               `json:"periods"` // 连续满足比较的周期数
}

func (*SubExpression) node() {}

// BooleanExpression 内部节点：and/or 连接的子树（≥2 个操作数）
type BooleanExpression struct {
	Connective Connective `json:"connective"`
	Operands   []Node     `json:"operands"`
}

func (*BooleanExpression) node() {}
