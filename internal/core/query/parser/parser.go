// Package parser parses the textual filter language used on the command line
// and in task parameters into query specification values.
//
// A filter is a list of conditions joined by "and":
//
//	status = "active" and age > 18 and id in (1, 2, 3) and name like 'bo%'
//
// An order clause is a comma separated list of fields with an optional
// direction:
//
//	id desc, name
package parser

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
)

// FilterExpr is the parse tree of a filter.
type FilterExpr struct {
	Pos        lexer.Position
	Conditions []*ConditionExpr `parser:"@@ ( \"and\" @@ )*"`
}

// ConditionExpr is a single "field operator value" term.
type ConditionExpr struct {
	Pos      lexer.Position
	Field    string     `parser:"@Ident"`
	Operator string     `parser:"( @Operator | @( \"like\" | \"in\" ) )"`
	Value    *ValueExpr `parser:"@@"`
}

// ValueExpr is a scalar or a parenthesized list of scalars.
type ValueExpr struct {
	List   []*ScalarExpr `parser:"  \"(\" ( @@ ( \",\" @@ )* )? \")\""`
	Scalar *ScalarExpr   `parser:"| @@"`
}

// ScalarExpr is a literal value.
type ScalarExpr struct {
	String *string `parser:"  @String"`
	Number *string `parser:"| @Number"`
	Bool   *string `parser:"| @( \"true\" | \"false\" )"`
	Null   bool    `parser:"| @\"null\""`
}

// OrderExpr is the parse tree of an order clause.
type OrderExpr struct {
	Terms []*OrderTerm `parser:"@@ ( \",\" @@ )*"`
}

// OrderTerm is one sort key.
type OrderTerm struct {
	Field     string `parser:"@Ident"`
	Direction string `parser:"@( \"asc\" | \"desc\" )?"`
}

var (
	filterParser = participle.MustBuild[FilterExpr](
		participle.Lexer(FilterLexer),
		participle.Elide("Whitespace"),
		participle.CaseInsensitive("Keyword"),
		participle.UseLookahead(2),
	)

	orderParser = participle.MustBuild[OrderExpr](
		participle.Lexer(FilterLexer),
		participle.Elide("Whitespace"),
		participle.CaseInsensitive("Keyword"),
	)
)

// ParseFilter parses input into a FilterMap. Blank input yields a nil filter.
func ParseFilter(input string) (domain.FilterMap, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}

	expr, err := filterParser.ParseString("filter", input)
	if err != nil {
		return nil, parseError(err)
	}

	filter := make(domain.FilterMap, 0, len(expr.Conditions))
	for _, c := range expr.Conditions {
		cond, err := c.toCondition()
		if err != nil {
			return nil, err
		}
		filter = append(filter, cond)
	}
	return filter, nil
}

func (c *ConditionExpr) toCondition() (domain.Condition, error) {
	op := domain.Operator(strings.ToLower(c.Operator))
	isList := c.Value.Scalar == nil

	if isList && op != domain.In {
		return domain.Condition{}, domain.NewValidationError("parse",
			"%s: list operand is only valid with in", c.Pos)
	}

	var operand any
	if isList {
		values := make([]any, 0, len(c.Value.List))
		for _, s := range c.Value.List {
			values = append(values, s.value())
		}
		operand = values
	} else {
		operand = c.Value.Scalar.value()
	}

	if op == domain.Eq {
		return domain.Condition{Field: c.Field, Value: operand}, nil
	}
	return domain.Condition{
		Field: c.Field,
		Ops:   []domain.Op{{Operator: op, Operand: operand}},
	}, nil
}

func (s *ScalarExpr) value() any {
	switch {
	case s.String != nil:
		return unquote(*s.String)
	case s.Number != nil:
		if n, err := strconv.Atoi(*s.Number); err == nil {
			return n
		}
		f, _ := strconv.ParseFloat(*s.Number, 64)
		return f
	case s.Bool != nil:
		return strings.EqualFold(*s.Bool, "true")
	}
	return nil
}

// unquote strips the surrounding quotes of a string token and resolves
// backslash escapes.
func unquote(token string) string {
	if len(token) < 2 {
		return token
	}
	body := token[1 : len(token)-1]
	if !strings.Contains(body, `\`) {
		return body
	}

	var sb strings.Builder
	escaped := false
	for _, r := range body {
		if escaped {
			sb.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ParseOrder parses an order clause such as "id desc, name".
func ParseOrder(input string) (domain.OrderSpec, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}

	expr, err := orderParser.ParseString("order", input)
	if err != nil {
		return nil, parseError(err)
	}

	order := make(domain.OrderSpec, 0, len(expr.Terms))
	for _, term := range expr.Terms {
		dir := domain.Ascending
		if strings.EqualFold(term.Direction, "desc") {
			dir = domain.Descending
		}
		order = append(order, domain.Order{Field: term.Field, Direction: dir})
	}
	return order, nil
}

// ParseKeys parses a key list. "a" is a single field, "a,b" a list, and
// "out:src,other:src2" a mapping.
func ParseKeys(input string) (domain.Keys, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return domain.Keys{}, nil
	}

	parts := strings.Split(input, ",")
	if strings.Contains(input, ":") {
		pairs := make([]domain.KeyField, 0, len(parts))
		for _, p := range parts {
			name, source, ok := strings.Cut(strings.TrimSpace(p), ":")
			if !ok || name == "" || source == "" {
				return domain.Keys{}, domain.NewValidationError("parse", "malformed key mapping %q", p)
			}
			pairs = append(pairs, domain.As(strings.TrimSpace(name), strings.TrimSpace(source)))
		}
		return domain.Mapping(pairs...), nil
	}

	if len(parts) == 1 {
		return domain.Field(input), nil
	}
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return domain.Fields(names...), nil
}

func parseError(err error) error {
	return &domain.Error{
		Kind:    domain.KindValidation,
		Op:      "parse",
		Message: "invalid expression",
		Err:     err,
	}
}
