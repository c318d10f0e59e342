package compiler

import (
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
)

// TotalField is the accumulator name used by count pipelines.
const TotalField = "total"

// PipelineCompiler compiles query options into document store commands.
// Collections are addressed as "database.collection" or by bare name within
// the default database.
type PipelineCompiler struct {
	database string
}

// NewPipelineCompiler creates a pipeline compiler with a default database.
func NewPipelineCompiler(database string) *PipelineCompiler {
	return &PipelineCompiler{database: database}
}

// SelectOne compiles a pipeline returning at most one document.
func (c *PipelineCompiler) SelectOne(collection string, opts domain.Options) (Command, error) {
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	return c.selectPipeline("selectOne", collection, opts, offset, 1)
}

// SelectMany compiles a pipeline honoring grouping and pagination.
func (c *PipelineCompiler) SelectMany(collection string, opts domain.Options) (Command, error) {
	if !opts.Page.Enabled() {
		return c.selectPipeline("selectMany", collection, opts, 0, 0)
	}
	return c.selectPipeline("selectMany", collection, opts, opts.Page.Skip(), opts.Page.Limit())
}

func (c *PipelineCompiler) selectPipeline(op, collection string, opts domain.Options, skip, limit int) (Command, error) {
	cmd, err := c.command(op, AggregateCommand, collection)
	if err != nil {
		return Command{}, err
	}

	pipeline := c.matchStage(opts.Filter)
	if !opts.Group.IsZero() {
		pipeline = append(pipeline, bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: identity(opts.Group)}}}})
	}
	if len(opts.Order) > 0 {
		sortDoc := make(bson.D, 0, len(opts.Order))
		for _, o := range opts.Order {
			sortDoc = append(sortDoc, bson.E{Key: o.Field, Value: int(o.Direction)})
		}
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sortDoc}})
	}
	if limit > 0 {
		pipeline = append(pipeline,
			bson.D{{Key: "$skip", Value: skip}},
			bson.D{{Key: "$limit", Value: limit}},
		)
	}
	if len(opts.Fields) > 0 {
		project := make(bson.D, 0, len(opts.Fields))
		for _, f := range opts.Fields {
			flag := 0
			if f.Include {
				flag = 1
			}
			project = append(project, bson.E{Key: f.Field, Value: flag})
		}
		pipeline = append(pipeline, bson.D{{Key: "$project", Value: project}})
	}

	cmd.Pipeline = pipeline
	return cmd, nil
}

// Count compiles a counting pipeline. dedupe collapses duplicates before
// counting and opts.Group buckets the totals.
//
// With both keys, the first $group builds a composite identity of the group
// and dedupe fields, and the second regroups by the group fields extracted
// from that identity.
func (c *PipelineCompiler) Count(collection string, dedupe domain.Keys, opts domain.Options) (Command, error) {
	cmd, err := c.command("count", AggregateCommand, collection)
	if err != nil {
		return Command{}, err
	}

	pipeline := c.matchStage(opts.Filter)
	group := opts.Group

	var bucket any
	switch {
	case !dedupe.IsZero() && !group.IsZero():
		composite := bson.D{}
		seen := map[string]bool{}
		for _, f := range append(append([]domain.KeyField{}, group.Fields...), dedupe.Fields...) {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			composite = append(composite, bson.E{Key: f.Name, Value: "$" + f.Source})
		}
		pipeline = append(pipeline, bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: composite}}}})

		if group.Shape == domain.KeySingle {
			bucket = "$_id." + group.Fields[0].Name
		} else {
			regroup := make(bson.D, 0, len(group.Fields))
			for _, f := range group.Fields {
				regroup = append(regroup, bson.E{Key: f.Name, Value: "$_id." + f.Name})
			}
			bucket = regroup
		}
	case !dedupe.IsZero():
		pipeline = append(pipeline, bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: identity(dedupe)}}}})
	case !group.IsZero():
		bucket = identity(group)
	}

	pipeline = append(pipeline, bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: bucket},
		{Key: TotalField, Value: bson.D{{Key: "$sum", Value: 1}}},
	}}})

	cmd.Pipeline = pipeline
	return cmd, nil
}

// Sum compiles a summing pipeline. Each key field produces one accumulator
// named after its output name.
func (c *PipelineCompiler) Sum(collection string, key domain.Keys, opts domain.Options) (Command, error) {
	if key.IsZero() {
		return Command{}, domain.NewValidationError("sum", "sum key is required")
	}
	cmd, err := c.command("sum", AggregateCommand, collection)
	if err != nil {
		return Command{}, err
	}

	pipeline := c.matchStage(opts.Filter)

	var id any
	if !opts.Group.IsZero() {
		id = identity(opts.Group)
	}
	group := bson.D{{Key: "_id", Value: id}}
	for _, f := range key.Fields {
		group = append(group, bson.E{Key: f.Name, Value: bson.D{{Key: "$sum", Value: "$" + f.Source}}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$group", Value: group}})

	cmd.Pipeline = pipeline
	return cmd, nil
}

// Distinct compiles a pipeline listing the distinct values of key, sorted
// ascending. Array values are unwound so each element counts on its own.
func (c *PipelineCompiler) Distinct(collection, key string, opts domain.Options) (Command, error) {
	if key == "" {
		return Command{}, domain.NewValidationError("distinct", "distinct key is required")
	}
	cmd, err := c.command("distinct", AggregateCommand, collection)
	if err != nil {
		return Command{}, err
	}

	path := "$" + strings.TrimPrefix(key, "$")
	pipeline := c.matchStage(opts.Filter)
	pipeline = append(pipeline,
		bson.D{{Key: "$unwind", Value: bson.D{{Key: "path", Value: path}}}},
		bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: path}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	)

	cmd.Pipeline = pipeline
	return cmd, nil
}

// Aggregate wraps a caller-built pipeline.
func (c *PipelineCompiler) Aggregate(collection string, pipeline mongo.Pipeline) (Command, error) {
	cmd, err := c.command("aggregate", AggregateCommand, collection)
	if err != nil {
		return Command{}, err
	}
	cmd.Pipeline = pipeline
	return cmd, nil
}

// InsertOne compiles an insert of one document.
func (c *PipelineCompiler) InsertOne(collection string, doc domain.Record) (Command, error) {
	if len(doc) == 0 {
		return Command{}, domain.NewValidationError("insertOne", "nothing to insert")
	}
	return c.InsertMany(collection, []domain.Record{doc})
}

// InsertMany compiles an insert of several documents.
func (c *PipelineCompiler) InsertMany(collection string, docs []domain.Record) (Command, error) {
	if len(docs) == 0 {
		return Command{}, domain.NewValidationError("insertMany", "nothing to insert")
	}
	cmd, err := c.command("insertMany", InsertCommand, collection)
	if err != nil {
		return Command{}, err
	}
	cmd.Documents = make([]any, 0, len(docs))
	for _, doc := range docs {
		cmd.Documents = append(cmd.Documents, sortedDocument(doc))
	}
	return cmd, nil
}

// Update compiles an update. The filter must not be empty. set is either a
// plain field map, which is wrapped in $set, or a document using only $set
// and $unset.
func (c *PipelineCompiler) Update(collection string, set domain.Record, opts domain.Options, multi bool) (Command, error) {
	if len(set) == 0 {
		return Command{}, domain.NewValidationError("update", "nothing to set")
	}
	filter := MatchDocument(opts.Filter)
	if len(filter) == 0 {
		return Command{}, domain.NewValidationError("update", "refusing to update %s without a filter", collection)
	}

	var update bson.D
	operators, plain := 0, 0
	for k := range set {
		if strings.HasPrefix(k, "$") {
			operators++
		} else {
			plain++
		}
	}
	switch {
	case operators > 0 && plain > 0:
		return Command{}, domain.NewValidationError("update", "cannot mix update operators with plain fields")
	case operators > 0:
		keys := make([]string, 0, len(set))
		for k := range set {
			if k != "$set" && k != "$unset" {
				return Command{}, domain.NewValidationError("update", "unsupported update operator %q", k)
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			update = append(update, bson.E{Key: k, Value: set[k]})
		}
	default:
		update = bson.D{{Key: "$set", Value: sortedDocument(set)}}
	}

	cmd, err := c.command("update", UpdateCommand, collection)
	if err != nil {
		return Command{}, err
	}
	cmd.Filter = filter
	cmd.Update = update
	cmd.Multi = multi
	return cmd, nil
}

// Delete compiles a delete. The filter must not be empty.
func (c *PipelineCompiler) Delete(collection string, opts domain.Options, multi bool) (Command, error) {
	filter := MatchDocument(opts.Filter)
	if len(filter) == 0 {
		return Command{}, domain.NewValidationError("delete", "refusing to delete from %s without a filter", collection)
	}
	cmd, err := c.command("delete", DeleteCommand, collection)
	if err != nil {
		return Command{}, err
	}
	cmd.Filter = filter
	cmd.Multi = multi
	return cmd, nil
}

// Namespace splits collection into database and collection names.
func (c *PipelineCompiler) Namespace(collection string) (string, string, bool) {
	database, name := c.database, collection
	if i := strings.Index(collection, "."); i > 0 {
		database, name = collection[:i], collection[i+1:]
	}
	if database == "" || name == "" {
		return "", "", false
	}
	return database, name, true
}

func (c *PipelineCompiler) command(op string, kind CommandKind, collection string) (Command, error) {
	database, name, ok := c.Namespace(collection)
	if !ok {
		return Command{}, domain.NewValidationError(op, "cannot resolve collection %q", collection)
	}
	return Command{Kind: kind, Database: database, Collection: name}, nil
}

func (c *PipelineCompiler) matchStage(filter domain.FilterMap) mongo.Pipeline {
	match := MatchDocument(filter)
	if len(match) == 0 {
		return mongo.Pipeline{}
	}
	return mongo.Pipeline{bson.D{{Key: "$match", Value: match}}}
}

// identity renders keys as a $group identity expression: a field path for a
// single key, a document of field paths otherwise.
func identity(keys domain.Keys) any {
	if keys.Shape == domain.KeySingle {
		return "$" + keys.Fields[0].Source
	}
	doc := make(bson.D, 0, len(keys.Fields))
	for _, f := range keys.Fields {
		doc = append(doc, bson.E{Key: f.Name, Value: "$" + f.Source})
	}
	return doc
}
