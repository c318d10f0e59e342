package compiler

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
)

// SQLCompiler compiles query options into MySQL statements.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQL compiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// SelectOne compiles a single-row select at opts.Offset.
func (c *SQLCompiler) SelectOne(table string, opts domain.Options) (Statement, error) {
	var sb strings.Builder
	args, err := c.selectBase(&sb, "selectOne", table, opts)
	if err != nil {
		return Statement{}, err
	}
	if err := c.buildOrderBy(&sb, "selectOne", opts.Order); err != nil {
		return Statement{}, err
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	fmt.Fprintf(&sb, " LIMIT %d,1", offset)

	return Statement{SQL: sb.String(), Args: args}, nil
}

// SelectMany compiles a multi-row select with grouping and pagination.
func (c *SQLCompiler) SelectMany(table string, opts domain.Options) (Statement, error) {
	var sb strings.Builder
	args, err := c.selectBase(&sb, "selectMany", table, opts)
	if err != nil {
		return Statement{}, err
	}

	if !opts.Group.IsZero() {
		columns := opts.Group.Sources()
		for _, col := range columns {
			if !validIdentifier(col) {
				return Statement{}, domain.NewValidationError("selectMany", "invalid group field %q", col)
			}
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(columns, ", "))
	}
	if err := c.buildOrderBy(&sb, "selectMany", opts.Order); err != nil {
		return Statement{}, err
	}
	if opts.Page.Enabled() {
		fmt.Fprintf(&sb, " LIMIT %d,%d", opts.Page.Skip(), opts.Page.Limit())
	}

	return Statement{SQL: sb.String(), Args: args}, nil
}

func (c *SQLCompiler) selectBase(sb *strings.Builder, op, table string, opts domain.Options) ([]any, error) {
	if !validIdentifier(table) {
		return nil, domain.NewValidationError(op, "invalid table name %q", table)
	}

	fields := opts.Fields.Included()
	for _, f := range fields {
		if f != "*" && !validIdentifier(f) {
			return nil, domain.NewValidationError(op, "invalid field %q", f)
		}
	}
	selectList := "*"
	if len(fields) > 0 {
		selectList = strings.Join(fields, ", ")
	}

	sb.WriteString("SELECT ")
	sb.WriteString(selectList)
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	return c.buildWhere(sb, opts.Filter)
}

// InsertOne compiles an insert of a single record.
func (c *SQLCompiler) InsertOne(table string, record domain.Record) (Statement, error) {
	return c.insert("insertOne", table, []domain.Record{record})
}

// InsertMany compiles a batch insert. The column list comes from the first
// record; records with a different key set are reported in Skipped.
func (c *SQLCompiler) InsertMany(table string, records []domain.Record) (Statement, error) {
	return c.insert("insertMany", table, records)
}

func (c *SQLCompiler) insert(op, table string, records []domain.Record) (Statement, error) {
	if !validIdentifier(table) {
		return Statement{}, domain.NewValidationError(op, "invalid table name %q", table)
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return Statement{}, domain.NewValidationError(op, "nothing to insert")
	}

	columns := sortedKeys(records[0])
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdentifier(col)
	}
	row := "(" + placeholders(len(columns)) + ")"

	var (
		sb      strings.Builder
		args    []any
		rows    []string
		skipped []int
	)
	for i, record := range records {
		if !sameKeys(record, columns) {
			skipped = append(skipped, i)
			continue
		}
		for _, col := range columns {
			args = append(args, columnValue(record[col]))
		}
		rows = append(rows, row)
	}

	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES ")
	sb.WriteString(strings.Join(rows, ", "))

	return Statement{SQL: sb.String(), Args: args, Skipped: skipped}, nil
}

// Update compiles an update. An empty filter is rejected so a missing WHERE
// can never touch the whole table. single appends LIMIT 1.
func (c *SQLCompiler) Update(table string, set domain.Record, opts domain.Options, single bool) (Statement, error) {
	if !validIdentifier(table) {
		return Statement{}, domain.NewValidationError("update", "invalid table name %q", table)
	}
	if len(set) == 0 {
		return Statement{}, domain.NewValidationError("update", "nothing to set")
	}
	where, whereArgs, err := SQLPredicate(opts.Filter)
	if err != nil {
		return Statement{}, err
	}
	if where == "" {
		return Statement{}, domain.NewValidationError("update", "refusing to update %s without a filter", table)
	}

	var (
		sb          strings.Builder
		args        []any
		assignments []string
	)
	for _, col := range sortedKeys(set) {
		v := columnValue(set[col])
		if v == nil {
			assignments = append(assignments, quoteIdentifier(col)+" = NULL")
			continue
		}
		assignments = append(assignments, quoteIdentifier(col)+" = ?")
		args = append(args, v)
	}

	sb.WriteString("UPDATE ")
	sb.WriteString(table)
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(assignments, ", "))
	sb.WriteString(" WHERE ")
	sb.WriteString(where)
	if single {
		sb.WriteString(" LIMIT 1")
	}

	return Statement{SQL: sb.String(), Args: append(args, whereArgs...)}, nil
}

// Delete compiles a delete. An empty filter is rejected. single appends
// LIMIT 1.
func (c *SQLCompiler) Delete(table string, opts domain.Options, single bool) (Statement, error) {
	if !validIdentifier(table) {
		return Statement{}, domain.NewValidationError("delete", "invalid table name %q", table)
	}
	where, args, err := SQLPredicate(opts.Filter)
	if err != nil {
		return Statement{}, err
	}
	if where == "" {
		return Statement{}, domain.NewValidationError("delete", "refusing to delete from %s without a filter", table)
	}

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(table)
	sb.WriteString(" WHERE ")
	sb.WriteString(where)
	if single {
		sb.WriteString(" LIMIT 1")
	}

	return Statement{SQL: sb.String(), Args: args}, nil
}

// Count compiles SELECT COUNT(*).
func (c *SQLCompiler) Count(table string, opts domain.Options) (Statement, error) {
	return c.aggregate("count", "COUNT(*)", table, opts)
}

// Sum compiles SELECT SUM(key).
func (c *SQLCompiler) Sum(table, key string, opts domain.Options) (Statement, error) {
	if !validIdentifier(key) {
		return Statement{}, domain.NewValidationError("sum", "invalid sum key %q", key)
	}
	return c.aggregate("sum", "SUM("+key+")", table, opts)
}

func (c *SQLCompiler) aggregate(op, expr, table string, opts domain.Options) (Statement, error) {
	if !validIdentifier(table) {
		return Statement{}, domain.NewValidationError(op, "invalid table name %q", table)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(expr)
	sb.WriteString(" total FROM ")
	sb.WriteString(table)
	args, err := c.buildWhere(&sb, opts.Filter)
	if err != nil {
		return Statement{}, err
	}

	return Statement{SQL: sb.String(), Args: args}, nil
}

func (c *SQLCompiler) buildWhere(sb *strings.Builder, filter domain.FilterMap) ([]any, error) {
	where, args, err := SQLPredicate(filter)
	if err != nil {
		return nil, err
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	return args, nil
}

func (c *SQLCompiler) buildOrderBy(sb *strings.Builder, op string, order domain.OrderSpec) error {
	if len(order) == 0 {
		return nil
	}
	terms := make([]string, 0, len(order))
	for _, o := range order {
		if !validIdentifier(o.Field) {
			return domain.NewValidationError(op, "invalid order field %q", o.Field)
		}
		terms = append(terms, o.Field+" "+o.Direction.SQL())
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(terms, ", "))
	return nil
}

// columnValue maps a record value to its bound form: empty values become
// NULL and composites are stored as JSON text.
func columnValue(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return nil
		}
		return s
	}
	if _, ok := v.([]byte); ok {
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		if rv.Len() == 0 {
			return nil
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sameKeys(record domain.Record, columns []string) bool {
	if len(record) != len(columns) {
		return false
	}
	for _, col := range columns {
		if _, ok := record[col]; !ok {
			return false
		}
	}
	return true
}
