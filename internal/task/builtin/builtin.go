// Package builtin provides the tasks shipped with the runner.
package builtin

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pandasAtHome/TimeTask/internal/core/query/builder"
	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
	"github.com/pandasAtHome/TimeTask/internal/core/query/parser"
	"github.com/pandasAtHome/TimeTask/internal/task"
)

// Tasks returns the built-in tasks.
func Tasks() []task.Task {
	return []task.Task{
		{
			Path:        "test/params",
			Summary:     "Print the run context",
			Description: paramsDoc,
			Handler:     printParams,
		},
		{
			Path:        "test/chain",
			Summary:     "Print the run context, then chain test/params",
			Description: chainDoc,
			Handler:     chain,
		},
		{
			Path:        "mysql/count",
			Summary:     "Count rows of a MySQL table",
			Description: mysqlCountDoc,
			Handler:     mysqlCount,
		},
		{
			Path:        "mysql/sum",
			Summary:     "Sum a column of a MySQL table",
			Description: mysqlSumDoc,
			Handler:     mysqlSum,
		},
		{
			Path:        "mongo/count",
			Summary:     "Count documents of a MongoDB collection",
			Description: mongoCountDoc,
			Handler:     mongoCount,
		},
		{
			Path:        "mongo/distinct",
			Summary:     "List distinct values of a MongoDB field",
			Description: mongoDistinctDoc,
			Handler:     mongoDistinct,
		},
	}
}

// Register adds the built-in tasks to r.
func Register(r *task.Registry) error {
	return r.Register(Tasks()...)
}

func printParams(_ context.Context, rc *task.RunContext) error {
	fmt.Fprintf(rc.Out, "request id: %s\n", rc.RequestID)
	fmt.Fprintf(rc.Out, "create time: %s\n", rc.CreatedAt.Format(time.DateTime))
	fmt.Fprintf(rc.Out, "path: %s\n", rc.Path)

	keys := make([]string, 0, len(rc.Params))
	for k := range rc.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(rc.Out, "param %s: %s\n", k, strings.Join(rc.Params[k], ", "))
	}
	for i, arg := range rc.Args {
		fmt.Fprintf(rc.Out, "arg %d: %s\n", i, arg)
	}
	return nil
}

func chain(ctx context.Context, rc *task.RunContext) error {
	if err := printParams(ctx, rc); err != nil {
		return err
	}
	rc.Chain("test/params", rc.Params)
	return nil
}

// options builds query options from the where, order and dry_run params.
func options(rc *task.RunContext) (builder.QueryBuilder, error) {
	filter, err := parser.ParseFilter(rc.Param("where", ""))
	if err != nil {
		return builder.QueryBuilder{}, err
	}
	order, err := parser.ParseOrder(rc.Param("order", ""))
	if err != nil {
		return builder.QueryBuilder{}, err
	}

	qb := builder.New().Filter(filter).Order(order)
	if rc.DryRun() {
		qb = qb.DryRun()
	}
	return qb, nil
}

func mysqlCount(ctx context.Context, rc *task.RunContext) error {
	table, err := rc.Require("table")
	if err != nil {
		return err
	}
	qb, err := options(rc)
	if err != nil {
		return err
	}

	db, err := rc.Container.MySQL(ctx)
	if err != nil {
		return err
	}
	res, err := db.Count(ctx, table, qb.Build())
	if err != nil {
		return err
	}
	return report(rc, res.DryRun, res.Artifact, func() {
		fmt.Fprintf(rc.Out, "%s: %d\n", table, res.Value)
	})
}

func mysqlSum(ctx context.Context, rc *task.RunContext) error {
	table, err := rc.Require("table")
	if err != nil {
		return err
	}
	key, err := rc.Require("key")
	if err != nil {
		return err
	}
	qb, err := options(rc)
	if err != nil {
		return err
	}

	db, err := rc.Container.MySQL(ctx)
	if err != nil {
		return err
	}
	res, err := db.Sum(ctx, table, key, qb.Build())
	if err != nil {
		return err
	}
	return report(rc, res.DryRun, res.Artifact, func() {
		fmt.Fprintf(rc.Out, "%s.%s: %s\n", table, key, strconv.FormatFloat(res.Value, 'f', -1, 64))
	})
}

func mongoCount(ctx context.Context, rc *task.RunContext) error {
	collection, err := rc.Require("collection")
	if err != nil {
		return err
	}
	qb, err := options(rc)
	if err != nil {
		return err
	}
	group, err := parser.ParseKeys(rc.Param("group", ""))
	if err != nil {
		return err
	}
	dedupe, err := parser.ParseKeys(rc.Param("dedupe", ""))
	if err != nil {
		return err
	}

	db, err := rc.Container.Mongo(ctx)
	if err != nil {
		return err
	}
	res, err := db.Count(ctx, collection, dedupe, qb.GroupBy(group).Build())
	if err != nil {
		return err
	}
	return report(rc, res.DryRun, res.Artifact, func() {
		fmt.Fprintf(rc.Out, "%s: %d\n", collection, res.Value.Total)
		for _, g := range res.Value.Groups {
			fmt.Fprintf(rc.Out, "  %v: %d\n", g.Key, g.Total)
		}
	})
}

func mongoDistinct(ctx context.Context, rc *task.RunContext) error {
	collection, err := rc.Require("collection")
	if err != nil {
		return err
	}
	key, err := rc.Require("key")
	if err != nil {
		return err
	}
	qb, err := options(rc)
	if err != nil {
		return err
	}

	db, err := rc.Container.Mongo(ctx)
	if err != nil {
		return err
	}
	res, err := db.Distinct(ctx, collection, key, qb.Build())
	if err != nil {
		return err
	}
	return report(rc, res.DryRun, res.Artifact, func() {
		for _, v := range res.Value {
			fmt.Fprintf(rc.Out, "%v\n", v)
		}
	})
}

func report(rc *task.RunContext, dryRun bool, artifact domain.Artifact, print func()) error {
	if dryRun {
		fmt.Fprintln(rc.Out, artifact.String())
		return nil
	}
	print()
	rc.Logger.Debug("executed", "statement", artifact.String())
	return nil
}

const paramsDoc = `# test/params

Prints the request id, creation time, path and every parameter of the run.

    timetask run /test/params 'a=1&b=2' c=3
`

const chainDoc = `# test/chain

Prints the run context and then schedules **test/params** with the same
parameters. The chained task runs only when this one succeeds.
`

const mysqlCountDoc = `# mysql/count

Counts rows of a table on the configured MySQL server.

| Parameter | Required | Meaning |
|-----------|----------|---------|
| table     | yes      | table name |
| where     | no       | filter, e.g. ` + "`status = \"paid\" and amount > 10`" + ` |
| dry_run   | no       | print the statement instead of running it |
`

const mysqlSumDoc = `# mysql/sum

Sums a column over the matching rows. Prints 0 when nothing matches.

| Parameter | Required | Meaning |
|-----------|----------|---------|
| table     | yes      | table name |
| key       | yes      | column to sum |
| where     | no       | filter |
| dry_run   | no       | print the statement instead of running it |
`

const mongoCountDoc = `# mongo/count

Counts documents of a collection, optionally de-duplicated and grouped.

| Parameter  | Required | Meaning |
|------------|----------|---------|
| collection | yes      | ` + "`db.collection`" + ` or a collection of the configured database |
| where      | no       | filter |
| dedupe     | no       | fields that identify one document, e.g. ` + "`uid`" + ` |
| group      | no       | fields to bucket totals by, e.g. ` + "`country`" + ` |
| dry_run    | no       | print the pipeline instead of running it |
`

const mongoDistinctDoc = `# mongo/distinct

Lists the distinct non-null values of a field in ascending order.

| Parameter  | Required | Meaning |
|------------|----------|---------|
| collection | yes      | collection |
| key        | yes      | field |
| where      | no       | filter |
`
