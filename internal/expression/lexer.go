package expression

import "fmt"

// ParseError 表达式语法错误
type ParseError struct {
	Position int // 出错处的字节偏移
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Position, e.Message)
}

type tokenKind int

const (
	tokenEOF  tokenKind = iota
	tokenAtom           // 标识符或数字字面量（字母、数字、. _ -）
	tokenLParen
	tokenRParen
	tokenLBrace
	tokenRBrace
	tokenComma
	tokenEquals
	tokenOp // < <= > >=
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// maxIdentifierLen 标识符最大长度
const maxIdentifierLen = 255

func isAtomChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '.' || c == '_' || c == '-'
}

// lex 一次性切分全部 token；非法字符返回 ParseError
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{tokenLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokenRParen, ")", i})
			i++
		case c == '{':
			tokens = append(tokens, token{tokenLBrace, "{", i})
			i++
		case c == '}':
			tokens = append(tokens, token{tokenRBrace, "}", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokenComma, ",", i})
			i++
		case c == '=':
			tokens = append(tokens, token{tokenEquals, "=", i})
			i++
		case c == '<' || c == '>':
			start := i
			i++
			if i < len(input) && input[i] == '=' {
				i++
			}
			tokens = append(tokens, token{tokenOp, input[start:i], start})
		case isAtomChar(c):
			start := i
			for i < len(input) && isAtomChar(input[i]) {
				i++
			}
			if i-start > maxIdentifierLen {
				return nil, &ParseError{start, fmt.Sprintf("token exceeds %d characters", maxIdentifierLen)}
			}
			tokens = append(tokens, token{tokenAtom, input[start:i], start})
		default:
			return nil, &ParseError{i, fmt.Sprintf("unexpected character %q", c)}
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(input)})
	return tokens, nil
}
