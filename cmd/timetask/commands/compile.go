package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pandasAtHome/TimeTask/internal/core/query/builder"
	"github.com/pandasAtHome/TimeTask/internal/core/query/compiler"
	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
	"github.com/pandasAtHome/TimeTask/internal/core/query/parser"
)

// compileFlags holds the query description shared by compile subcommands.
type compileFlags struct {
	op       string
	where    string
	order    string
	group    string
	key      string
	dedupe   string
	fields   string
	exclude  string
	set      []string
	page     int
	size     int
	offset   int
	multi    bool
	database string
}

func newCompileCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the statement a query compiles to without connecting",
	}

	cmd.AddCommand(newCompileSQLCommand())
	cmd.AddCommand(newCompileMongoCommand(a))

	return cmd
}

func newCompileSQLCommand() *cobra.Command {
	f := &compileFlags{}

	cmd := &cobra.Command{
		Use:   "sql <table>",
		Short: "Compile a query to MySQL",
		Example: `  timetask compile sql users --op many --where 'status = "active" and age > 18' --order 'id desc' --size 2
  timetask compile sql orders --op update --where 'id = 5' --set status=paid`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			stmt, err := f.compileSQL(compiler.NewSQLCompiler(), args[0], opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), stmt.String())
			return err
		},
	}

	f.register(cmd, "one, many, count, sum, insert, update, delete")
	cmd.Flags().StringVar(&f.key, "key", "", "Column summed by --op sum")
	cmd.Flags().BoolVar(&f.multi, "multi", false, "Allow update and delete to touch more than one row")

	return cmd
}

func newCompileMongoCommand(a *app) *cobra.Command {
	f := &compileFlags{}

	cmd := &cobra.Command{
		Use:   "mongo <collection>",
		Short: "Compile a query to a MongoDB command",
		Example: `  timetask compile mongo orders --op count --dedupe uid --group country
  timetask compile mongo orders --op sum --key amount,fee --where 'status = "paid"'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			database := f.database
			if database == "" {
				database = a.cfg.Mongo.Database
			}
			command, err := f.compileMongo(compiler.NewPipelineCompiler(database), args[0], opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), command.String())
			return err
		},
	}

	f.register(cmd, "one, many, count, sum, distinct, insert, update, delete")
	cmd.Flags().StringVar(&f.key, "key", "", "Fields summed by --op sum, or the field of --op distinct")
	cmd.Flags().StringVar(&f.dedupe, "dedupe", "", "Fields counted once by --op count")
	cmd.Flags().StringVar(&f.database, "database", "", "Database name (default mongo.database)")
	cmd.Flags().BoolVar(&f.multi, "multi", false, "Allow update and delete to touch more than one document")

	return cmd
}

func (f *compileFlags) register(cmd *cobra.Command, ops string) {
	flags := cmd.Flags()
	flags.StringVar(&f.op, "op", "many", "Operation: "+ops)
	flags.StringVarP(&f.where, "where", "w", "", "Filter expression")
	flags.StringVarP(&f.order, "order", "o", "", "Order expression, e.g. 'id desc, name'")
	flags.StringVarP(&f.group, "group", "g", "", "Group keys, e.g. 'country' or 'out:src'")
	flags.StringVar(&f.fields, "fields", "", "Comma separated fields to include")
	flags.StringVar(&f.exclude, "exclude", "", "Comma separated fields to exclude")
	flags.StringArrayVar(&f.set, "set", nil, "Field assignment key=value for insert and update (repeatable)")
	flags.IntVar(&f.page, "page", 1, "Page number")
	flags.IntVar(&f.size, "size", 0, "Page size, 0 disables paging")
	flags.IntVar(&f.offset, "offset", 0, "Row offset used by --op one")
}

func (f *compileFlags) options() (domain.Options, error) {
	filter, err := parser.ParseFilter(f.where)
	if err != nil {
		return domain.Options{}, err
	}
	order, err := parser.ParseOrder(f.order)
	if err != nil {
		return domain.Options{}, err
	}
	group, err := parser.ParseKeys(f.group)
	if err != nil {
		return domain.Options{}, err
	}

	qb := builder.New().
		Filter(filter).
		Order(order).
		GroupBy(group).
		Page(f.page, f.size).
		Offset(f.offset)
	if fields := splitFields(f.fields); len(fields) > 0 {
		qb = qb.Select(fields...)
	}
	if fields := splitFields(f.exclude); len(fields) > 0 {
		qb = qb.Exclude(fields...)
	}
	return qb.Build(), nil
}

func (f *compileFlags) record() (domain.Record, error) {
	if len(f.set) == 0 {
		return nil, domain.NewValidationError(f.op, "at least one --set is required")
	}
	rec := domain.Record{}
	for _, pair := range f.set {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, domain.NewValidationError(f.op, "invalid assignment %q, expected key=value", pair)
		}
		rec[k] = scalar(v)
	}
	return rec, nil
}

func (f *compileFlags) compileSQL(c *compiler.SQLCompiler, table string, opts domain.Options) (compiler.Statement, error) {
	switch f.op {
	case "one", "select":
		return c.SelectOne(table, opts)
	case "many":
		return c.SelectMany(table, opts)
	case "count":
		return c.Count(table, opts)
	case "sum":
		if f.key == "" {
			return compiler.Statement{}, domain.NewValidationError("sum", "--key is required")
		}
		return c.Sum(table, f.key, opts)
	case "insert":
		rec, err := f.record()
		if err != nil {
			return compiler.Statement{}, err
		}
		return c.InsertOne(table, rec)
	case "update":
		rec, err := f.record()
		if err != nil {
			return compiler.Statement{}, err
		}
		return c.Update(table, rec, opts, !f.multi)
	case "delete":
		return c.Delete(table, opts, !f.multi)
	}
	return compiler.Statement{}, domain.NewValidationError("compile", "unknown operation %q", f.op)
}

func (f *compileFlags) compileMongo(c *compiler.PipelineCompiler, collection string, opts domain.Options) (compiler.Command, error) {
	switch f.op {
	case "one", "select":
		return c.SelectOne(collection, opts)
	case "many":
		return c.SelectMany(collection, opts)
	case "count":
		dedupe, err := parser.ParseKeys(f.dedupe)
		if err != nil {
			return compiler.Command{}, err
		}
		return c.Count(collection, dedupe, opts)
	case "sum":
		key, err := parser.ParseKeys(f.key)
		if err != nil {
			return compiler.Command{}, err
		}
		return c.Sum(collection, key, opts)
	case "distinct":
		return c.Distinct(collection, f.key, opts)
	case "insert":
		rec, err := f.record()
		if err != nil {
			return compiler.Command{}, err
		}
		return c.InsertOne(collection, rec)
	case "update":
		rec, err := f.record()
		if err != nil {
			return compiler.Command{}, err
		}
		return c.Update(collection, rec, opts, f.multi)
	case "delete":
		return c.Delete(collection, opts, f.multi)
	}
	return compiler.Command{}, domain.NewValidationError("compile", "unknown operation %q", f.op)
}

func splitFields(s string) []string {
	var fields []string
	for _, field := range strings.Split(s, ",") {
		if field = strings.TrimSpace(field); field != "" {
			fields = append(fields, field)
		}
	}
	return fields
}

// scalar reads integers and booleans as such and keeps everything else a string.
func scalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}
