// Package database defines the session adapter contracts shared by the
// relational and the document store backends.
package database

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
)

// Relational defines the relational store adapter.
//
// Every terminal operation compiles a statement from its arguments alone.
// When opts.DryRun is set the statement is returned in the result instead of
// being executed.
type Relational interface {
	// SelectOne returns the row at opts.Offset, or an empty record.
	SelectOne(ctx context.Context, table string, opts domain.Options) (domain.Result[domain.Record], error)

	// SelectMany returns all matching rows, or an empty slice.
	SelectMany(ctx context.Context, table string, opts domain.Options) (domain.Result[[]domain.Record], error)

	// InsertOne inserts a row and returns its identifier.
	InsertOne(ctx context.Context, table string, record domain.Record, opts domain.Options) (domain.Result[int64], error)

	// InsertMany inserts rows sharing the first record's keys and returns the
	// affected row count.
	InsertMany(ctx context.Context, table string, records []domain.Record, opts domain.Options) (domain.Result[int64], error)

	// Update updates matching rows and returns the affected row count.
	Update(ctx context.Context, table string, set domain.Record, opts domain.Options, single bool) (domain.Result[int64], error)

	// Delete deletes matching rows and returns the affected row count.
	Delete(ctx context.Context, table string, opts domain.Options, single bool) (domain.Result[int64], error)

	// Count counts matching rows.
	Count(ctx context.Context, table string, opts domain.Options) (domain.Result[int64], error)

	// Sum sums key over matching rows.
	Sum(ctx context.Context, table, key string, opts domain.Options) (domain.Result[float64], error)

	// Close releases the connection.
	Close(ctx context.Context) error
}

// Document defines the document store adapter. Collections are addressed as
// "database.collection" or by bare name within the configured database.
type Document interface {
	// SelectOne returns the first matching document, or an empty record.
	SelectOne(ctx context.Context, collection string, opts domain.Options) (domain.Result[domain.Record], error)

	// SelectMany returns all matching documents, or an empty slice.
	SelectMany(ctx context.Context, collection string, opts domain.Options) (domain.Result[[]domain.Record], error)

	// Count counts matching documents, deduplicated by dedupe and bucketed
	// by opts.Group.
	Count(ctx context.Context, collection string, dedupe domain.Keys, opts domain.Options) (domain.Result[domain.Tally], error)

	// Sum sums key over matching documents.
	Sum(ctx context.Context, collection string, key domain.Keys, opts domain.Options) (domain.Result[domain.Sums], error)

	// Distinct returns the distinct values of key.
	Distinct(ctx context.Context, collection, key string, opts domain.Options) (domain.Result[[]any], error)

	// Aggregate runs a caller-built pipeline.
	Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, opts domain.Options) (domain.Result[[]domain.Record], error)

	// InsertOne inserts a document and returns its identifier.
	InsertOne(ctx context.Context, collection string, doc domain.Record, opts domain.Options) (domain.Result[any], error)

	// InsertMany inserts documents and returns their identifiers.
	InsertMany(ctx context.Context, collection string, docs []domain.Record, opts domain.Options) (domain.Result[[]any], error)

	// Update updates matching documents and returns the modified count.
	Update(ctx context.Context, collection string, set domain.Record, opts domain.Options, multi bool) (domain.Result[int64], error)

	// Delete deletes matching documents and returns the deleted count.
	Delete(ctx context.Context, collection string, opts domain.Options, multi bool) (domain.Result[int64], error)

	// Close disconnects the client.
	Close(ctx context.Context) error
}
