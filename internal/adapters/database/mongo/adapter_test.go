package mongo_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	drivermongo "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/pandasAtHome/TimeTask/internal/adapters/database"
	"github.com/pandasAtHome/TimeTask/internal/adapters/database/mongo"
	"github.com/pandasAtHome/TimeTask/internal/core/query/builder"
	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
	"github.com/pandasAtHome/TimeTask/internal/logging"
)

type aggregateCall struct {
	database   string
	collection string
	pipeline   drivermongo.Pipeline
}

type fakeBackend struct {
	docs        []bson.M
	err         error
	aggregates  []aggregateCall
	inserted    []any
	filter      bson.D
	update      bson.D
	multi       bool
	collections []string
	dropped     string
	closed      bool
	renamed     [2]string
	databases   []drivermongo.DatabaseSpecification
	indexes     []bson.M
	models      []drivermongo.IndexModel
	droppedIdx  []string
}

func (f *fakeBackend) Aggregate(_ context.Context, database, collection string, pipeline drivermongo.Pipeline) ([]bson.M, error) {
	f.aggregates = append(f.aggregates, aggregateCall{database, collection, pipeline})
	return f.docs, f.err
}

func (f *fakeBackend) InsertMany(_ context.Context, _, _ string, docs []any) ([]any, error) {
	f.inserted = append(f.inserted, docs...)
	ids := make([]any, len(docs))
	for i := range docs {
		ids[i] = i + 1
	}
	return ids, f.err
}

func (f *fakeBackend) Update(_ context.Context, _, _ string, filter, update bson.D, multi bool) (int64, error) {
	f.filter, f.update, f.multi = filter, update, multi
	return 2, f.err
}

func (f *fakeBackend) Delete(_ context.Context, _, _ string, filter bson.D, multi bool) (int64, error) {
	f.filter, f.multi = filter, multi
	return 1, f.err
}

func (f *fakeBackend) ListCollections(context.Context, string) ([]string, error) {
	return f.collections, f.err
}

func (f *fakeBackend) DropCollection(_ context.Context, database, collection string) error {
	f.dropped = database + "." + collection
	return f.err
}

func (f *fakeBackend) RenameCollection(_ context.Context, from, to string) error {
	f.renamed = [2]string{from, to}
	return f.err
}

func (f *fakeBackend) ListDatabases(context.Context) ([]drivermongo.DatabaseSpecification, error) {
	return f.databases, f.err
}

func (f *fakeBackend) DropDatabase(_ context.Context, database string) error {
	f.dropped = database
	return f.err
}

func (f *fakeBackend) CreateIndexes(_ context.Context, _, _ string, models []drivermongo.IndexModel) ([]string, error) {
	f.models = append(f.models, models...)
	names := make([]string, len(models))
	for i := range models {
		names[i] = fmt.Sprintf("idx_%d", i)
	}
	return names, f.err
}

func (f *fakeBackend) ListIndexes(context.Context, string, string) ([]bson.M, error) {
	return f.indexes, f.err
}

func (f *fakeBackend) DropIndex(_ context.Context, database, collection, name string) error {
	f.droppedIdx = append(f.droppedIdx, database+"."+collection+":"+name)
	return f.err
}

func (f *fakeBackend) Disconnect(context.Context) error {
	f.closed = true
	return nil
}

func TestAuthMechanism(t *testing.T) {
	tests := []struct {
		version string
		want    string
		wantErr bool
	}{
		{version: "4.0", want: mongo.MechanismSCRAM},
		{version: "3.6.8", want: mongo.MechanismSCRAM},
		{version: "2.6", want: mongo.MechanismCR},
		{version: "not-a-version", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got, err := mongo.AuthMechanism(tt.version)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	ctx := context.Background()

	adapter, err := mongo.New(ctx, database.MongoConfig{Host: "mongo"})
	require.Error(t, err)
	assert.Nil(t, adapter)
	assert.True(t, domain.IsConfiguration(err))

	adapter, err = mongo.New(ctx, database.MongoConfig{Host: "mongo", Username: "root", Password: "pw", Version: "2.4"})
	require.Error(t, err)
	assert.Nil(t, adapter)
	assert.True(t, domain.IsConfiguration(err))
	assert.Contains(t, err.Error(), mongo.MechanismCR)
}

func TestAdapter_SelectMany(t *testing.T) {
	fake := &fakeBackend{docs: []bson.M{{"name": "ann"}, {"name": "dee"}}}
	adapter := mongo.NewWithBackend(fake, "app")

	opts := builder.New().
		Where(builder.Equals("status", "active"), builder.Gt("age", 18)).
		Desc("id").
		Build()

	res, err := adapter.SelectMany(context.Background(), "crm.users", opts)
	require.NoError(t, err)
	assert.Equal(t, []domain.Record{{"name": "ann"}, {"name": "dee"}}, res.Value)

	require.Len(t, fake.aggregates, 1)
	call := fake.aggregates[0]
	assert.Equal(t, "crm", call.database)
	assert.Equal(t, "users", call.collection)
	assert.Equal(t, drivermongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "status", Value: "active"},
			{Key: "age", Value: bson.D{{Key: "$gt", Value: 18}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "id", Value: -1}}}},
	}, call.pipeline)
}

func TestAdapter_SelectOneEmpty(t *testing.T) {
	fake := &fakeBackend{}
	adapter := mongo.NewWithBackend(fake, "app")

	res, err := adapter.SelectOne(context.Background(), "users", domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.Record{}, res.Value)
	assert.Equal(t, "app", fake.aggregates[0].database)
}

func TestAdapter_DryRunDoesNoIO(t *testing.T) {
	fake := &fakeBackend{}
	adapter := mongo.NewWithBackend(fake, "app")
	ctx := context.Background()
	opts := builder.New().Where(builder.Equals("id", 3)).DryRun().Build()

	res, err := adapter.Count(ctx, "users", domain.Field("uid"), opts)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Contains(t, res.Artifact.String(), `"aggregate":"users"`)

	_, err = adapter.Update(ctx, "users", domain.Record{"name": "x"}, opts, false)
	require.NoError(t, err)
	_, err = adapter.Delete(ctx, "users", opts, true)
	require.NoError(t, err)
	_, err = adapter.InsertOne(ctx, "users", domain.Record{"name": "x"}, opts)
	require.NoError(t, err)

	assert.Empty(t, fake.aggregates)
	assert.Empty(t, fake.inserted)
	assert.Nil(t, fake.filter)
}

func TestAdapter_Count(t *testing.T) {
	ctx := context.Background()

	t.Run("ungrouped", func(t *testing.T) {
		adapter := mongo.NewWithBackend(&fakeBackend{docs: []bson.M{{"_id": nil, "total": int32(7)}}}, "app")
		res, err := adapter.Count(ctx, "users", domain.Keys{}, domain.Options{})
		require.NoError(t, err)
		assert.Equal(t, int64(7), res.Value.Total)
		assert.Nil(t, res.Value.Groups)
	})

	t.Run("nothing matched", func(t *testing.T) {
		adapter := mongo.NewWithBackend(&fakeBackend{}, "app")
		res, err := adapter.Count(ctx, "users", domain.Field("uid"), domain.Options{})
		require.NoError(t, err)
		assert.Zero(t, res.Value.Total)
	})

	t.Run("grouped", func(t *testing.T) {
		adapter := mongo.NewWithBackend(&fakeBackend{docs: []bson.M{
			{"_id": "cn", "total": int32(3)},
			{"_id": "us", "total": int64(2)},
		}}, "app")
		opts := builder.New().GroupBy(domain.Field("country")).Build()

		res, err := adapter.Count(ctx, "users", domain.Field("uid"), opts)
		require.NoError(t, err)
		assert.Equal(t, int64(5), res.Value.Total)
		assert.Equal(t, []domain.GroupTotal{{Key: "cn", Total: 3}, {Key: "us", Total: 2}}, res.Value.Groups)
	})
}

func TestAdapter_Sum(t *testing.T) {
	ctx := context.Background()

	t.Run("single key", func(t *testing.T) {
		adapter := mongo.NewWithBackend(&fakeBackend{docs: []bson.M{{"_id": nil, "amount": 12.5}}}, "app")
		res, err := adapter.Sum(ctx, "orders", domain.Field("amount"), domain.Options{})
		require.NoError(t, err)
		assert.InDelta(t, 12.5, res.Value.Total, 0.0001)
	})

	t.Run("list key", func(t *testing.T) {
		adapter := mongo.NewWithBackend(&fakeBackend{docs: []bson.M{{"_id": nil, "a": int32(1), "b": int64(2)}}}, "app")
		res, err := adapter.Sum(ctx, "orders", domain.Fields("a", "b"), domain.Options{})
		require.NoError(t, err)
		assert.Equal(t, domain.Record{"a": int32(1), "b": int64(2)}, res.Value.Totals)
	})

	t.Run("list key nothing matched", func(t *testing.T) {
		adapter := mongo.NewWithBackend(&fakeBackend{}, "app")
		res, err := adapter.Sum(ctx, "orders", domain.Fields("a", "b"), domain.Options{})
		require.NoError(t, err)
		assert.Equal(t, domain.Record{}, res.Value.Totals)
	})

	t.Run("grouped", func(t *testing.T) {
		docs := []bson.M{{"_id": "cn", "amount": int32(4)}}
		adapter := mongo.NewWithBackend(&fakeBackend{docs: docs}, "app")
		opts := builder.New().GroupBy(domain.Field("country")).Build()

		res, err := adapter.Sum(ctx, "orders", domain.Field("amount"), opts)
		require.NoError(t, err)
		assert.Equal(t, []domain.Record{{"_id": "cn", "amount": int32(4)}}, res.Value.Groups)
	})
}

func TestAdapter_Distinct(t *testing.T) {
	adapter := mongo.NewWithBackend(&fakeBackend{docs: []bson.M{{"_id": nil}, {"_id": "a"}, {"_id": "b"}}}, "app")

	res, err := adapter.Distinct(context.Background(), "users", "tag", domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, res.Value)
}

func TestAdapter_Writes(t *testing.T) {
	fake := &fakeBackend{}
	adapter := mongo.NewWithBackend(fake, "app")
	ctx := context.Background()
	byID := builder.New().Where(builder.Equals("id", 3)).Build()

	ids, err := adapter.InsertMany(ctx, "users", []domain.Record{{"b": 2, "a": 1}, {"a": 3}}, domain.Options{})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, ids.Value)
	assert.Equal(t, bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 2}}, fake.inserted[0])

	upd, err := adapter.Update(ctx, "users", domain.Record{"name": "x"}, byID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), upd.Value)
	assert.Equal(t, bson.D{{Key: "id", Value: 3}}, fake.filter)
	assert.Equal(t, bson.D{{Key: "$set", Value: bson.D{{Key: "name", Value: "x"}}}}, fake.update)
	assert.True(t, fake.multi)

	del, err := adapter.Delete(ctx, "users", byID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), del.Value)
	assert.False(t, fake.multi)

	_, err = adapter.Delete(ctx, "users", domain.Options{}, true)
	assert.True(t, domain.IsValidation(err))
}

func TestAdapter_ExecutionErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Format: "json"}, &buf)
	fake := &fakeBackend{err: errors.New("connection reset")}
	adapter := mongo.NewWithBackend(fake, "app", mongo.WithLogger(logger))

	_, err := adapter.Distinct(context.Background(), "users", "tag", domain.Options{})
	require.Error(t, err)
	assert.True(t, domain.IsExecution(err))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, buf.String(), `"op":"distinct"`)
	assert.Contains(t, buf.String(), `"backend":"mongo"`)
}

func TestAdapter_Collections(t *testing.T) {
	fake := &fakeBackend{collections: []string{"users", "orders"}}
	adapter := mongo.NewWithBackend(fake, "app")
	ctx := context.Background()

	names, err := adapter.ListCollections(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, names)

	found, err := adapter.HasCollection(ctx, "app.users")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = adapter.HasCollection(ctx, "logs")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, adapter.DropCollection(ctx, "crm.users"))
	assert.Equal(t, "crm.users", fake.dropped)

	require.NoError(t, adapter.Close(ctx))
	assert.True(t, fake.closed)
}
