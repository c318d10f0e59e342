// Package compiler turns a domain.Options value into backend-native artifacts:
// SQL statements for the relational store and aggregation pipelines for the
// document store.
package compiler

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
)

const andDelimiter = " AND "

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLPredicate compiles filter into a WHERE predicate, without the keyword,
// and its bound arguments. Conditions that cannot be expressed are skipped,
// so the predicate may be empty even for a non-empty filter. Raw fragments
// are parenthesized and must not contain unquoted placeholders.
func SQLPredicate(filter domain.FilterMap) (string, []any, error) {
	var (
		parts []string
		args  []any
	)

	for _, cond := range filter {
		if cond.IsRaw() {
			if text, ok := cond.Raw.(string); ok && strings.TrimSpace(text) != "" {
				if hasPlaceholder(text) {
					return "", nil, domain.NewValidationError("where", "raw fragment %q contains a ? placeholder", text)
				}
				parts = append(parts, "("+text+")")
			}
			continue
		}
		if cond.Field == "" {
			continue
		}

		column := quoteIdentifier(cond.Field)
		if len(cond.Ops) == 0 {
			if isScalar(cond.Value) {
				parts = append(parts, column+" = ?")
				args = append(args, cond.Value)
			}
			continue
		}

		for _, op := range cond.Ops {
			switch {
			case op.Operator == domain.In:
				values, ok := membership(op.Operand)
				if !ok {
					continue
				}
				if len(values) == 0 {
					parts = append(parts, "1 = 0")
					continue
				}
				parts = append(parts, column+" IN ("+placeholders(len(values))+")")
				args = append(args, values...)
			case op.Operator == domain.Like:
				if !isScalar(op.Operand) {
					continue
				}
				parts = append(parts, column+" LIKE ?")
				args = append(args, stripQuotes(text(op.Operand)))
			case op.Operator.IsComparison():
				if !isScalar(op.Operand) {
					continue
				}
				parts = append(parts, column+" "+string(op.Operator)+" ?")
				args = append(args, text(op.Operand))
			}
		}
	}

	return strings.Join(parts, andDelimiter), args, nil
}

// hasPlaceholder reports whether text holds a ? outside quoted literals and
// quoted identifiers.
func hasPlaceholder(text string) bool {
	var quote rune
	escaped := false
	for _, r := range text {
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if r == '\\' && quote != '`' {
				escaped = true
			} else if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '?':
			return true
		}
	}
	return false
}

// MatchDocument compiles filter into a $match document. Several operators on
// one field are merged into a single operator document.
func MatchDocument(filter domain.FilterMap) bson.D {
	var (
		doc   bson.D
		index = map[string]int{}
	)

	set := func(key string, value any) {
		if i, ok := index[key]; ok {
			existing, wasOps := doc[i].Value.(bson.D)
			incoming, isOps := value.(bson.D)
			if wasOps && isOps && isOperatorDoc(existing) && isOperatorDoc(incoming) {
				doc[i].Value = append(existing, incoming...)
				return
			}
			doc[i].Value = value
			return
		}
		index[key] = len(doc)
		doc = append(doc, bson.E{Key: key, Value: value})
	}

	for _, cond := range filter {
		if cond.IsRaw() {
			for _, e := range rawDocument(cond.Raw) {
				set(e.Key, e.Value)
			}
			continue
		}
		if cond.Field == "" {
			continue
		}

		if len(cond.Ops) == 0 {
			if isScalar(cond.Value) {
				set(cond.Field, cond.Value)
			}
			continue
		}

		var ops bson.D
		for _, op := range cond.Ops {
			switch {
			case op.Operator == domain.In:
				values, ok := membership(op.Operand)
				if !ok {
					continue
				}
				ops = append(ops, bson.E{Key: "$in", Value: bson.A(values)})
			case op.Operator == domain.Like:
				if !isScalar(op.Operand) {
					continue
				}
				ops = append(ops, bson.E{Key: "$regex", Value: likePattern(stripQuotes(text(op.Operand)))})
			case op.Operator.IsComparison():
				if !isScalar(op.Operand) {
					continue
				}
				ops = append(ops, bson.E{Key: mongoOperators[op.Operator], Value: op.Operand})
			}
		}
		if len(ops) > 0 {
			set(cond.Field, ops)
		}
	}

	return doc
}

var mongoOperators = map[domain.Operator]string{
	domain.Eq:    "$eq",
	domain.Ne:    "$ne",
	domain.NeAlt: "$ne",
	domain.Gt:    "$gt",
	domain.Lt:    "$lt",
	domain.Gte:   "$gte",
	domain.Lte:   "$lte",
}

func isOperatorDoc(d bson.D) bool {
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return false
		}
	}
	return true
}

func rawDocument(raw any) bson.D {
	switch v := raw.(type) {
	case bson.D:
		return v
	case bson.M:
		return sortedDocument(v)
	case map[string]any:
		return sortedDocument(v)
	}
	return nil
}

func sortedDocument(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: m[k]})
	}
	return doc
}

// membership resolves an `in` operand. It accepts a slice, a
// pre-parenthesized list string or a single number.
func membership(operand any) ([]any, bool) {
	if operand == nil {
		return nil, false
	}
	if s, ok := operand.(string); ok {
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
			return nil, false
		}
		return splitList(s[1 : len(s)-1]), true
	}
	if isNumber(operand) {
		return []any{operand}, true
	}

	rv := reflect.ValueOf(operand)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if _, isBytes := operand.([]byte); isBytes {
		return nil, false
	}
	values := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		values = append(values, rv.Index(i).Interface())
	}
	return values, true
}

func splitList(s string) []any {
	if strings.TrimSpace(s) == "" {
		return []any{}
	}
	items := strings.Split(s, ",")
	values := make([]any, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if unquoted := stripQuotes(item); unquoted != item {
			values = append(values, unquoted)
			continue
		}
		if n, err := strconv.ParseInt(item, 10, 64); err == nil {
			values = append(values, n)
			continue
		}
		if f, err := strconv.ParseFloat(item, 64); err == nil {
			values = append(values, f)
			continue
		}
		values = append(values, item)
	}
	return values
}

// likePattern converts a SQL LIKE pattern into an anchored regular expression.
func likePattern(pattern string) string {
	var sb strings.Builder
	sb.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteByte('.')
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteByte('$')
	return sb.String()
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func isScalar(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(time.Time); ok {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.String, reflect.Bool:
		return true
	}
	return isNumber(v)
}

func isNumber(v any) bool {
	if _, ok := v.(json.Number); ok {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// text renders a scalar the way it is compared in SQL.
func text(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprint(v)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// quoteIdentifier quotes a possibly dotted column reference with backticks.
func quoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
