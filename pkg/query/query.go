// Package query compiles the clause-list find DSL into a predicate over
// node property maps.
//
// A query is an ordered list of clauses. Each clause is exactly one of a
// condition (prop, op, value), a boolean connector, or a parenthesis:
//
//	[
//	  {"prop": "department", "op": "starts with", "value": "sal"},
//	  {"bool": "and"},
//	  {"parens": "("},
//	  {"prop": "targetRate", "op": ">=", "value": 4.22},
//	  {"bool": "and"},
//	  {"prop": "quotaCarrying", "op": "=", "value": true},
//	  {"parens": ")"}
//	]
//
// Operators and connectors are case-insensitive. Property names outside the
// reserved set (key, name, description, createdAt, modifiedAt) address
// caller metadata. Precedence is NOT, then AND, then XOR, then OR; the
// trailing NOT forms (AND NOT, OR NOT, XOR NOT) negate their right operand.
// A condition on a property the node does not carry is false.
package query

import (
	"strings"
	"time"

	"github.com/castellan-io/castellan/pkg/domain"
)

// Clause is one element of a query. Exactly one of Prop, Bool or Parens
// must be set; Op and Value accompany Prop.
type Clause struct {
	Prop   string `json:"prop,omitempty"`
	Op     string `json:"op,omitempty"`
	Value  any    `json:"value,omitempty"`
	Bool   string `json:"bool,omitempty"`
	Parens string `json:"parens,omitempty"`
}

// Matcher is a compiled query. It receives the node's property map with the
// node key exposed under "key" and reserved properties under their stored
// names.
type Matcher func(props map[string]any) bool

// reservedProps are addressed directly; everything else is a metadata
// property and resolves through the metadata namespace.
var reservedProps = map[string]bool{
	"key":                  true,
	domain.PropName:        true,
	domain.PropDescription: true,
	domain.PropCreatedAt:   true,
	domain.PropModifiedAt:  true,
}

var validOps = map[string]bool{
	"=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
	"STARTS WITH": true, "ENDS WITH": true, "CONTAINS": true,
}

var validBools = map[string]bool{
	"AND": true, "OR": true, "XOR": true, "NOT": true,
	"AND NOT": true, "OR NOT": true, "XOR NOT": true,
}

type tokenKind int

const (
	tokCond tokenKind = iota
	tokAnd
	tokOr
	tokXor
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	match Matcher
}

// Compile turns a clause list into a Matcher. A nil or empty query compiles
// to a nil Matcher; callers treat that as matching nothing.
//
// Per-clause failures (unknown operator or connector, whitespace in a
// property name, a clause that is neither condition, connector nor
// parenthesis) return InvalidQuerySyntax. Structural failures (unbalanced
// parentheses, dangling connectors, adjacent conditions) return
// QueryCompile.
func Compile(clauses []Clause) (Matcher, error) {
	if len(clauses) == 0 {
		return nil, nil
	}

	tokens, err := tokenize(clauses)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	m, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, domain.QueryCompile("unexpected clause after end of expression")
	}
	return m, nil
}

func tokenize(clauses []Clause) ([]token, error) {
	var tokens []token
	for _, c := range clauses {
		switch {
		case c.Prop != "":
			m, err := compileCondition(c)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokCond, match: m})

		case c.Bool != "":
			op := strings.ToUpper(strings.Join(strings.Fields(c.Bool), " "))
			if !validBools[op] {
				return nil, domain.InvalidQuerySyntax("the specified boolean operator %q is not valid", c.Bool)
			}
			parts := strings.Split(op, " ")
			switch parts[0] {
			case "AND":
				tokens = append(tokens, token{kind: tokAnd})
			case "OR":
				tokens = append(tokens, token{kind: tokOr})
			case "XOR":
				tokens = append(tokens, token{kind: tokXor})
			case "NOT":
				tokens = append(tokens, token{kind: tokNot})
			}
			if len(parts) == 2 {
				tokens = append(tokens, token{kind: tokNot})
			}

		case c.Parens != "":
			switch c.Parens {
			case "(":
				tokens = append(tokens, token{kind: tokLParen})
			case ")":
				tokens = append(tokens, token{kind: tokRParen})
			default:
				return nil, domain.InvalidQuerySyntax("the specified parens %q is not valid", c.Parens)
			}

		default:
			return nil, domain.InvalidQuerySyntax("the query section specified is not valid")
		}
	}
	return tokens, nil
}

func compileCondition(c Clause) (Matcher, error) {
	prop := c.Prop
	if !reservedProps[prop] {
		prop = domain.MetadataKey(prop)
	}
	if strings.ContainsAny(prop, " \t\n\r") {
		return nil, domain.InvalidQuerySyntax("the specified property %q cannot contain whitespace", c.Prop)
	}

	op := strings.ToUpper(strings.Join(strings.Fields(c.Op), " "))
	if !validOps[op] {
		return nil, domain.InvalidQuerySyntax("the specified operator %q is not valid", c.Op)
	}

	want := normalizeValue(c.Value)
	return func(props map[string]any) bool {
		stored, ok := props[prop]
		if !ok {
			return false
		}
		return evalCondition(stored, op, want)
	}, nil
}

// normalizeValue folds the JSON value space into the property value space.
// String values that parse as RFC 3339 timestamps become time.Time, matching
// how datetime metadata is stored.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339, val); err == nil {
			return ts.UTC()
		}
		return val
	case int:
		return int64(val)
	default:
		return v
	}
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseOr() (Matcher, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOr {
			return left, nil
		}
		p.pos++
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(props map[string]any) bool {
			return l(props) || r(props)
		}
	}
}

func (p *parser) parseXor() (Matcher, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokXor {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(props map[string]any) bool {
			return l(props) != r(props)
		}
	}
}

func (p *parser) parseAnd() (Matcher, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokAnd {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(props map[string]any) bool {
			return l(props) && r(props)
		}
	}
}

func (p *parser) parseUnary() (Matcher, error) {
	t, ok := p.peek()
	if ok && t.kind == tokNot {
		p.pos++
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return func(props map[string]any) bool {
			return !inner(props)
		}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Matcher, error) {
	t, ok := p.peek()
	if !ok {
		return nil, domain.QueryCompile("expression ends with a dangling operator")
	}
	switch t.kind {
	case tokCond:
		p.pos++
		return t.match, nil
	case tokLParen:
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		t, ok := p.peek()
		if !ok || t.kind != tokRParen {
			return nil, domain.QueryCompile("unbalanced parentheses")
		}
		p.pos++
		return inner, nil
	default:
		return nil, domain.QueryCompile("expected a condition or opening parenthesis")
	}
}
