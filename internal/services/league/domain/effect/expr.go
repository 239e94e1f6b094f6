package effect

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Eval evaluates a restricted numeric expression against ctx. The grammar
// covers arithmetic, comparisons, boolean logic, namespaced field paths, and
// a fixed function table (logistic, clamp, min, max, abs, floor,
// weighted_choice). Booleans are 1 and 0. There is no assignment, no loops,
// and no way to reach arbitrary code.
func Eval(expr string, ctx *Context) (float64, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	p := &parser{tokens: tokens, ctx: ctx}
	value, err := p.parseOr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.tokens) {
		return 0, fmt.Errorf("parse %q: unexpected token %q", expr, p.tokens[p.pos].text)
	}
	return value, nil
}

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenIdent
	tokenOp
	tokenLParen
	tokenRParen
	tokenComma
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(input) && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokenNumber, input[i:j]})
			i = j
		case isPathChar(c):
			j := i
			for j < len(input) && (isPathChar(input[j]) || input[j] == '.' || input[j] == ':' || input[j] >= '0' && input[j] <= '9') {
				j++
			}
			tokens = append(tokens, token{tokenIdent, input[i:j]})
			i = j
		case c == '(':
			tokens = append(tokens, token{tokenLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokenRParen, ")"})
			i++
		case c == ',':
			tokens = append(tokens, token{tokenComma, ","})
			i++
		case strings.ContainsRune("+-*/%", rune(c)):
			tokens = append(tokens, token{tokenOp, string(c)})
			i++
		case c == '=' || c == '!':
			if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{tokenOp, input[i : i+2]})
				i += 2
			} else {
				return nil, fmt.Errorf("tokenize %q: unexpected %q", input, string(c))
			}
		case c == '<' || c == '>':
			if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{tokenOp, input[i : i+2]})
				i += 2
			} else {
				tokens = append(tokens, token{tokenOp, string(c)})
				i++
			}
		default:
			return nil, fmt.Errorf("tokenize %q: unexpected %q", input, string(c))
		}
	}
	return tokens, nil
}

func isPathChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

type parser struct {
	tokens []token
	pos    int
	ctx    *Context
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) accept(kind tokenKind, text string) bool {
	t, ok := p.peek()
	if !ok || t.kind != kind || (text != "" && t.text != text) {
		return false
	}
	p.pos++
	return true
}

func (p *parser) parseOr() (float64, error) {
	left, err := p.parseAnd()
	if err != nil {
		return 0, err
	}
	for p.accept(tokenIdent, "or") {
		right, err := p.parseAnd()
		if err != nil {
			return 0, err
		}
		left = boolToFloat(left != 0 || right != 0)
	}
	return left, nil
}

func (p *parser) parseAnd() (float64, error) {
	left, err := p.parseNot()
	if err != nil {
		return 0, err
	}
	for p.accept(tokenIdent, "and") {
		right, err := p.parseNot()
		if err != nil {
			return 0, err
		}
		left = boolToFloat(left != 0 && right != 0)
	}
	return left, nil
}

func (p *parser) parseNot() (float64, error) {
	if p.accept(tokenIdent, "not") {
		value, err := p.parseNot()
		if err != nil {
			return 0, err
		}
		return boolToFloat(value == 0), nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (float64, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return 0, err
	}
	t, ok := p.peek()
	if !ok || t.kind != tokenOp {
		return left, nil
	}
	switch t.text {
	case "==", "!=", "<", "<=", ">", ">=":
		p.pos++
		right, err := p.parseAdditive()
		if err != nil {
			return 0, err
		}
		switch t.text {
		case "==":
			return boolToFloat(left == right), nil
		case "!=":
			return boolToFloat(left != right), nil
		case "<":
			return boolToFloat(left < right), nil
		case "<=":
			return boolToFloat(left <= right), nil
		case ">":
			return boolToFloat(left > right), nil
		default:
			return boolToFloat(left >= right), nil
		}
	}
	return left, nil
}

func (p *parser) parseAdditive() (float64, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case p.accept(tokenOp, "+"):
			right, err := p.parseMultiplicative()
			if err != nil {
				return 0, err
			}
			left += right
		case p.accept(tokenOp, "-"):
			right, err := p.parseMultiplicative()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *parser) parseMultiplicative() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case p.accept(tokenOp, "*"):
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case p.accept(tokenOp, "/"):
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case p.accept(tokenOp, "%"):
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (float64, error) {
	if p.accept(tokenOp, "-") {
		value, err := p.parseUnary()
		return -value, err
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (float64, error) {
	t, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	switch t.kind {
	case tokenNumber:
		p.pos++
		value, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return 0, fmt.Errorf("bad number %q: %w", t.text, err)
		}
		return value, nil
	case tokenLParen:
		p.pos++
		value, err := p.parseOr()
		if err != nil {
			return 0, err
		}
		if !p.accept(tokenRParen, "") {
			return 0, fmt.Errorf("missing closing paren")
		}
		return value, nil
	case tokenIdent:
		p.pos++
		if p.accept(tokenLParen, "") {
			return p.parseCall(t.text)
		}
		switch t.text {
		case "true":
			return 1, nil
		case "false":
			return 0, nil
		}
		return p.ctx.ResolveNumber(t.text)
	}
	return 0, fmt.Errorf("unexpected token %q", t.text)
}

func (p *parser) parseCall(name string) (float64, error) {
	var args []float64
	if !p.accept(tokenRParen, "") {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return 0, err
			}
			args = append(args, arg)
			if p.accept(tokenComma, "") {
				continue
			}
			if p.accept(tokenRParen, "") {
				break
			}
			return 0, fmt.Errorf("call %s: expected comma or closing paren", name)
		}
	}
	return applyFunc(name, args, p.ctx)
}

func applyFunc(name string, args []float64, ctx *Context) (float64, error) {
	arity := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s expects %d args, got %d", name, n, len(args))
		}
		return nil
	}
	switch name {
	case "logistic":
		// logistic(x, midpoint, steepness)
		if err := arity(3); err != nil {
			return 0, err
		}
		return 1 / (1 + math.Exp(-args[2]*(args[0]-args[1]))), nil
	case "clamp":
		if err := arity(3); err != nil {
			return 0, err
		}
		return math.Min(math.Max(args[0], args[1]), args[2]), nil
	case "min":
		if len(args) < 2 {
			return 0, fmt.Errorf("min expects at least 2 args")
		}
		result := args[0]
		for _, a := range args[1:] {
			result = math.Min(result, a)
		}
		return result, nil
	case "max":
		if len(args) < 2 {
			return 0, fmt.Errorf("max expects at least 2 args")
		}
		result := args[0]
		for _, a := range args[1:] {
			result = math.Max(result, a)
		}
		return result, nil
	case "abs":
		if err := arity(1); err != nil {
			return 0, err
		}
		return math.Abs(args[0]), nil
	case "floor":
		if err := arity(1); err != nil {
			return 0, err
		}
		return math.Floor(args[0]), nil
	case "weighted_choice":
		// weighted_choice(w1, v1, w2, v2, ...) picks a value with the game RNG.
		if len(args) < 2 || len(args)%2 != 0 {
			return 0, fmt.Errorf("weighted_choice expects weight/value pairs")
		}
		if ctx == nil || ctx.Rand == nil {
			return 0, fmt.Errorf("weighted_choice needs a game RNG")
		}
		total := 0.0
		for i := 0; i < len(args); i += 2 {
			if args[i] < 0 {
				return 0, fmt.Errorf("weighted_choice weight must be non-negative")
			}
			total += args[i]
		}
		if total == 0 {
			return args[1], nil
		}
		draw := ctx.Rand.Float64() * total
		for i := 0; i < len(args); i += 2 {
			draw -= args[i]
			if draw < 0 {
				return args[i+1], nil
			}
		}
		return args[len(args)-1], nil
	}
	return 0, fmt.Errorf("unknown function %q", name)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
