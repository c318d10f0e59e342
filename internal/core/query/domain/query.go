// Package domain contains the backend-agnostic query specification shared by
// the relational and the aggregation compilers.
package domain

import (
	"sort"
	"strconv"
)

// Operator is a comparison operator recognized inside a filter condition.
type Operator string

const (
	// Eq checks equality.
	Eq Operator = "="
	// Ne checks inequality.
	Ne Operator = "!="
	// NeAlt is the alternative spelling of Ne.
	NeAlt Operator = "<>"
	// Gt checks if value is greater than.
	Gt Operator = ">"
	// Lt checks if value is less than.
	Lt Operator = "<"
	// Gte checks if value is greater than or equal.
	Gte Operator = ">="
	// Lte checks if value is less than or equal.
	Lte Operator = "<="
	// Like matches a pattern using % and _ wildcards.
	Like Operator = "like"
	// In checks membership.
	In Operator = "in"
)

// IsComparison reports whether op is one of the scalar comparison operators.
func (op Operator) IsComparison() bool {
	switch op {
	case Eq, Ne, NeAlt, Gt, Lt, Gte, Lte:
		return true
	}
	return false
}

// Op is one operator/operand pair of a condition sub-mapping.
type Op struct {
	Operator Operator
	Operand  any
}

// Condition is a single entry of a FilterMap.
//
// A condition is exactly one of:
//   - Field with Value set: equality against a direct scalar
//   - Field with Ops set: operator sub-mapping, evaluated in order
//   - Raw set and Field empty: a caller-supplied fragment used verbatim
type Condition struct {
	Field string
	Value any
	Ops   []Op
	Raw   any
}

// IsRaw reports whether the condition is a raw fragment.
func (c Condition) IsRaw() bool {
	return c.Field == "" && c.Raw != nil
}

// FilterMap is an ordered, AND-combined list of conditions.
type FilterMap []Condition

// IsEmpty reports whether the filter has no conditions.
func (f FilterMap) IsEmpty() bool {
	return len(f) == 0
}

// FilterFromMap converts a plain map into a FilterMap. Keys are sorted so the
// result is deterministic. Numeric keys denote raw fragments and nested
// map[string]any values denote operator sub-mappings.
func FilterFromMap(m map[string]any) FilterMap {
	if len(m) == 0 {
		return nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filter := make(FilterMap, 0, len(keys))
	for _, k := range keys {
		v := m[k]
		if _, err := strconv.Atoi(k); err == nil {
			filter = append(filter, Condition{Raw: v})
			continue
		}
		sub, ok := v.(map[string]any)
		if !ok {
			filter = append(filter, Condition{Field: k, Value: v})
			continue
		}
		ops := make([]string, 0, len(sub))
		for op := range sub {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		cond := Condition{Field: k, Ops: make([]Op, 0, len(ops))}
		for _, op := range ops {
			cond.Ops = append(cond.Ops, Op{Operator: Operator(op), Operand: sub[op]})
		}
		filter = append(filter, cond)
	}
	return filter
}

// Direction is a sort direction.
type Direction int

const (
	// Ascending sorts from lowest to highest.
	Ascending Direction = 1
	// Descending sorts from highest to lowest.
	Descending Direction = -1
)

// SQL returns the textual keyword for the direction.
func (d Direction) SQL() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// Order is one entry of an OrderSpec.
type Order struct {
	Field     string
	Direction Direction
}

// OrderSpec is an ordered list of sort keys. Entry order is significant.
type OrderSpec []Order

// Pagination describes a page window. A zero Size disables pagination.
type Pagination struct {
	Page int
	Size int
}

// Enabled reports whether a page window applies.
func (p Pagination) Enabled() bool {
	return p.Size > 0
}

// Skip returns the number of rows to skip.
func (p Pagination) Skip() int {
	if !p.Enabled() {
		return 0
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	return p.Size * (page - 1)
}

// Limit returns the page size.
func (p Pagination) Limit() int {
	return p.Size
}

// FieldSelection is one entry of a Projection.
type FieldSelection struct {
	Field   string
	Include bool
}

// Projection is an ordered set of fields to include or exclude.
type Projection []FieldSelection

// Included returns the names of included fields, in order.
func (p Projection) Included() []string {
	var fields []string
	for _, f := range p {
		if f.Include {
			fields = append(fields, f.Field)
		}
	}
	return fields
}

// Record is a single normalized row or document.
type Record = map[string]any

// Options is the immutable per-call query configuration. It is consumed by
// one terminal operation and never stored on an adapter.
type Options struct {
	Filter FilterMap
	Order  OrderSpec
	Group  Keys
	Page   Pagination
	Fields Projection
	// Offset is the row offset used by single-row selects.
	Offset int
	DryRun bool
}
