package builder

import "github.com/pandasAtHome/TimeTask/internal/core/query/domain"

// Filter helpers for building conditions with a fluent API.

// Equals creates a direct equality condition.
func Equals(field string, value any) domain.Condition {
	return domain.Condition{Field: field, Value: value}
}

// NotEquals creates a not equals condition.
func NotEquals(field string, value any) domain.Condition {
	return Match(field, domain.Op{Operator: domain.Ne, Operand: value})
}

// Gt creates a greater than condition.
func Gt(field string, value any) domain.Condition {
	return Match(field, domain.Op{Operator: domain.Gt, Operand: value})
}

// Gte creates a greater than or equal condition.
func Gte(field string, value any) domain.Condition {
	return Match(field, domain.Op{Operator: domain.Gte, Operand: value})
}

// Lt creates a less than condition.
func Lt(field string, value any) domain.Condition {
	return Match(field, domain.Op{Operator: domain.Lt, Operand: value})
}

// Lte creates a less than or equal condition.
func Lte(field string, value any) domain.Condition {
	return Match(field, domain.Op{Operator: domain.Lte, Operand: value})
}

// Like creates a pattern match condition.
func Like(field, pattern string) domain.Condition {
	return Match(field, domain.Op{Operator: domain.Like, Operand: pattern})
}

// In creates a membership condition. values may be a slice, a
// pre-parenthesized list string such as "(1,2,3)", or a single number.
func In(field string, values any) domain.Condition {
	return Match(field, domain.Op{Operator: domain.In, Operand: values})
}

// Match creates a condition from an operator sub-mapping. Operators are
// applied in the given order.
func Match(field string, ops ...domain.Op) domain.Condition {
	return domain.Condition{Field: field, Ops: ops}
}

// Raw creates a caller-supplied fragment that is used verbatim: SQL text for
// the relational backend, a document for the aggregation backend.
func Raw(fragment any) domain.Condition {
	return domain.Condition{Raw: fragment}
}
