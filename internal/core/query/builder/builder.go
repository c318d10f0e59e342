// Package builder implements the query options builder.
package builder

import (
	"slices"

	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
)

// QueryBuilder assembles a domain.Options value. It has value semantics: every
// method returns a new builder and never mutates the receiver, so a partially
// configured builder can be shared and extended safely.
type QueryBuilder struct {
	opts domain.Options
}

// New creates an empty query builder.
func New() QueryBuilder {
	return QueryBuilder{}
}

// From starts a builder from existing options.
func From(opts domain.Options) QueryBuilder {
	return QueryBuilder{opts: opts}
}

// Where appends AND-combined conditions.
func (b QueryBuilder) Where(conditions ...domain.Condition) QueryBuilder {
	b.opts.Filter = append(slices.Clip(b.opts.Filter), conditions...)
	return b
}

// Filter replaces the filter.
func (b QueryBuilder) Filter(filter domain.FilterMap) QueryBuilder {
	b.opts.Filter = slices.Clone(filter)
	return b
}

// OrderBy appends a sort key.
func (b QueryBuilder) OrderBy(field string, direction domain.Direction) QueryBuilder {
	b.opts.Order = append(slices.Clip(b.opts.Order), domain.Order{Field: field, Direction: direction})
	return b
}

// Asc appends an ascending sort key.
func (b QueryBuilder) Asc(field string) QueryBuilder {
	return b.OrderBy(field, domain.Ascending)
}

// Desc appends a descending sort key.
func (b QueryBuilder) Desc(field string) QueryBuilder {
	return b.OrderBy(field, domain.Descending)
}

// Order replaces the order spec.
func (b QueryBuilder) Order(order domain.OrderSpec) QueryBuilder {
	b.opts.Order = slices.Clone(order)
	return b
}

// GroupBy sets the group key.
func (b QueryBuilder) GroupBy(keys domain.Keys) QueryBuilder {
	b.opts.Group = keys
	return b
}

// Page sets the page window. A zero size disables pagination.
func (b QueryBuilder) Page(page, size int) QueryBuilder {
	b.opts.Page = domain.Pagination{Page: page, Size: size}
	return b
}

// Offset sets the row offset used by single-row selects.
func (b QueryBuilder) Offset(offset int) QueryBuilder {
	b.opts.Offset = offset
	return b
}

// Select includes fields in the projection.
func (b QueryBuilder) Select(fields ...string) QueryBuilder {
	return b.project(true, fields)
}

// Exclude excludes fields from the projection.
func (b QueryBuilder) Exclude(fields ...string) QueryBuilder {
	return b.project(false, fields)
}

func (b QueryBuilder) project(include bool, fields []string) QueryBuilder {
	projection := slices.Clip(b.opts.Fields)
	for _, f := range fields {
		projection = append(projection, domain.FieldSelection{Field: f, Include: include})
	}
	b.opts.Fields = projection
	return b
}

// DryRun makes the terminal operation return its compiled artifact instead of
// executing it.
func (b QueryBuilder) DryRun() QueryBuilder {
	b.opts.DryRun = true
	return b
}

// Build returns the options. The returned value shares no slices with the
// builder.
func (b QueryBuilder) Build() domain.Options {
	opts := b.opts
	opts.Filter = slices.Clone(b.opts.Filter)
	opts.Order = slices.Clone(b.opts.Order)
	opts.Fields = slices.Clone(b.opts.Fields)
	return opts
}
