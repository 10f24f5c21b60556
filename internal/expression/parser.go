package expression

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse 解析表达式文本为表达式树
// 仅做语法分析；语义约束（函数枚举、period/periods 取值等）由 ValidateAndNormalize 检查
func Parse(text string) (Node, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{0, "expression is empty"}
	}
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, &ParseError{p.peek().pos, fmt.Sprintf("unexpected %q after expression", p.peek().text)}
	}
	return node, nil
}

type parser struct {
	tokens []token
	idx    int
}

func (p *parser) peek() token {
	return p.tokens[p.idx]
}

func (p *parser) next() token {
	t := p.tokens[p.idx]
	if t.kind != tokenEOF {
		p.idx++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, &ParseError{t.pos, fmt.Sprintf("expected %s, got %q", what, t.text)}
	}
	return t, nil
}

// parseExpr := boolterm (AND boolterm)* | boolterm (OR boolterm)*
// 同一层级混用 and/or 是语法错误，不按运算符优先级猜测
func (p *parser) parseExpr() (Node, error) {
	first, err := p.parseBoolTerm()
	if err != nil {
		return nil, err
	}

	var connective Connective
	operands := []Node{first}
	for {
		t := p.peek()
		if t.kind != tokenAtom {
			break
		}
		var conn Connective
		switch strings.ToLower(t.text) {
		case "and":
			conn = ConnAnd
		case "or":
			conn = ConnOr
		default:
			return nil, &ParseError{t.pos, fmt.Sprintf("expected 'and', 'or' or end of expression, got %q", t.text)}
		}
		if connective != "" && conn != connective {
			return nil, &ParseError{t.pos, "ambiguous mix of 'and' and 'or' at the same level; use parentheses"}
		}
		connective = conn
		p.next()

		operand, err := p.parseBoolTerm()
		if err != nil {
			return nil, err
		}
		operands = append(operands, operand)
	}

	if len(operands) == 1 {
		return first, nil
	}
	return &BooleanExpression{Connective: connective, Operands: operands}, nil
}

// parseBoolTerm := subexpr | '(' expr ')'
func (p *parser) parseBoolTerm() (Node, error) {
	if p.peek().kind == tokenLParen {
		p.next()
		node, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, "')'"); err != nil {
			return nil, err
		}
		return node, nil
	}
	return p.parseSubExpression()
}

// parseSubExpression := FUNC '(' METRIC dims? [',' PERIOD] ')' dims? OP NUMBER ['times' INT]
// 维度块允许出现在指标名之后或右括号之后（两种历史写法），规范化时统一到指标名之后
func (p *parser) parseSubExpression() (Node, error) {
	fn, err := p.expect(tokenAtom, "aggregate function")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}
	metric, err := p.expect(tokenAtom, "metric name")
	if err != nil {
		return nil, err
	}

	var dims map[string]string
	if p.peek().kind == tokenLBrace {
		if dims, err = p.parseDimensions(); err != nil {
			return nil, err
		}
	}

	period := DefaultPeriod
	if p.peek().kind == tokenComma {
		p.next()
		t, err := p.expect(tokenAtom, "period in seconds")
		if err != nil {
			return nil, err
		}
		period, err = strconv.Atoi(t.text)
		if err != nil {
			return nil, &ParseError{t.pos, fmt.Sprintf("period must be an integer, got %q", t.text)}
		}
	}

	if _, err := p.expect(tokenRParen, "')'"); err != nil {
		return nil, err
	}

	if p.peek().kind == tokenLBrace {
		if dims != nil {
			return nil, &ParseError{p.peek().pos, "dimensions specified twice"}
		}
		if dims, err = p.parseDimensions(); err != nil {
			return nil, err
		}
	}

	opTok, err := p.expect(tokenOp, "relational operator")
	if err != nil {
		return nil, err
	}
	var op Operator
	switch opTok.text {
	case "<":
		op = OpLT
	case "<=":
		op = OpLTE
	case ">":
		op = OpGT
	case ">=":
		op = OpGTE
	}

	thTok, err := p.expect(tokenAtom, "threshold number")
	if err != nil {
		return nil, err
	}
	threshold, err := strconv.ParseFloat(thTok.text, 64)
	if err != nil {
		return nil, &ParseError{thTok.pos, fmt.Sprintf("threshold must be a number, got %q", thTok.text)}
	}

	periods := DefaultPeriods
	if t := p.peek(); t.kind == tokenAtom && strings.EqualFold(t.text, "times") {
		p.next()
		ct, err := p.expect(tokenAtom, "periods count")
		if err != nil {
			return nil, err
		}
		periods, err = strconv.Atoi(ct.text)
		if err != nil {
			return nil, &ParseError{ct.pos, fmt.Sprintf("periods count must be an integer, got %q", ct.text)}
		}
	}

	return &SubExpression{
		Function:   Function(strings.ToUpper(fn.text)),
		MetricName: metric.text,
		Dimensions: dims,
		Operator:   op,
		Threshold:  threshold,
		Period:     period,
		Periods:    periods,
	}, nil
}

// parseDimensions := '{' key '=' value (',' key '=' value)* '}'
func (p *parser) parseDimensions() (map[string]string, error) {
	if _, err := p.expect(tokenLBrace, "'{'"); err != nil {
		return nil, err
	}
	dims := make(map[string]string)
	for {
		key, err := p.expect(tokenAtom, "dimension key")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenEquals, "'='"); err != nil {
			return nil, err
		}
		value, err := p.expect(tokenAtom, "dimension value")
		if err != nil {
			return nil, err
		}
		if _, dup := dims[key.text]; dup {
			return nil, &ParseError{key.pos, fmt.Sprintf("duplicate dimension key %q", key.text)}
		}
		dims[key.text] = value.text

		t := p.next()
		if t.kind == tokenRBrace {
			return dims, nil
		}
		if t.kind != tokenComma {
			return nil, &ParseError{t.pos, fmt.Sprintf("expected ',' or '}', got %q", t.text)}
		}
	}
}
