package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Backend is the slice of the driver the adapter needs. It is satisfied by a
// connected client and by fakes in tests.
type Backend interface {
	Aggregate(ctx context.Context, database, collection string, pipeline mongo.Pipeline) ([]bson.M, error)
	InsertMany(ctx context.Context, database, collection string, docs []any) ([]any, error)
	Update(ctx context.Context, database, collection string, filter, update bson.D, multi bool) (int64, error)
	Delete(ctx context.Context, database, collection string, filter bson.D, multi bool) (int64, error)
	ListCollections(ctx context.Context, database string) ([]string, error)
	DropCollection(ctx context.Context, database, collection string) error
	RenameCollection(ctx context.Context, from, to string) error
	ListDatabases(ctx context.Context) ([]mongo.DatabaseSpecification, error)
	DropDatabase(ctx context.Context, database string) error
	CreateIndexes(ctx context.Context, database, collection string, models []mongo.IndexModel) ([]string, error)
	ListIndexes(ctx context.Context, database, collection string) ([]bson.M, error)
	// DropIndex drops the named index, or every index but _id when name is empty.
	DropIndex(ctx context.Context, database, collection, name string) error
	Disconnect(ctx context.Context) error
}

type clientBackend struct {
	client *mongo.Client
}

func (b *clientBackend) Aggregate(ctx context.Context, database, collection string, pipeline mongo.Pipeline) ([]bson.M, error) {
	cursor, err := b.client.Database(database).Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to read cursor: %w", err)
	}
	return docs, nil
}

func (b *clientBackend) InsertMany(ctx context.Context, database, collection string, docs []any) ([]any, error) {
	res, err := b.client.Database(database).Collection(collection).InsertMany(ctx, docs)
	if err != nil {
		return nil, err
	}
	return res.InsertedIDs, nil
}

func (b *clientBackend) Update(ctx context.Context, database, collection string, filter, update bson.D, multi bool) (int64, error) {
	coll := b.client.Database(database).Collection(collection)

	var (
		res *mongo.UpdateResult
		err error
	)
	if multi {
		res, err = coll.UpdateMany(ctx, filter, update)
	} else {
		res, err = coll.UpdateOne(ctx, filter, update)
	}
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (b *clientBackend) Delete(ctx context.Context, database, collection string, filter bson.D, multi bool) (int64, error) {
	coll := b.client.Database(database).Collection(collection)

	var (
		res *mongo.DeleteResult
		err error
	)
	if multi {
		res, err = coll.DeleteMany(ctx, filter)
	} else {
		res, err = coll.DeleteOne(ctx, filter)
	}
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (b *clientBackend) ListCollections(ctx context.Context, database string) ([]string, error) {
	return b.client.Database(database).ListCollectionNames(ctx, bson.D{})
}

func (b *clientBackend) DropCollection(ctx context.Context, database, collection string) error {
	return b.client.Database(database).Collection(collection).Drop(ctx)
}

// RenameCollection renames between full "database.collection" namespaces.
func (b *clientBackend) RenameCollection(ctx context.Context, from, to string) error {
	cmd := bson.D{{Key: "renameCollection", Value: from}, {Key: "to", Value: to}}
	return b.client.Database(AuthSource).RunCommand(ctx, cmd).Err()
}

func (b *clientBackend) ListDatabases(ctx context.Context) ([]mongo.DatabaseSpecification, error) {
	res, err := b.client.ListDatabases(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	return res.Databases, nil
}

func (b *clientBackend) DropDatabase(ctx context.Context, database string) error {
	return b.client.Database(database).Drop(ctx)
}

func (b *clientBackend) CreateIndexes(ctx context.Context, database, collection string, models []mongo.IndexModel) ([]string, error) {
	return b.client.Database(database).Collection(collection).Indexes().CreateMany(ctx, models)
}

func (b *clientBackend) ListIndexes(ctx context.Context, database, collection string) ([]bson.M, error) {
	cursor, err := b.client.Database(database).Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var specs []bson.M
	if err := cursor.All(ctx, &specs); err != nil {
		return nil, fmt.Errorf("failed to read cursor: %w", err)
	}
	return specs, nil
}

func (b *clientBackend) DropIndex(ctx context.Context, database, collection, name string) error {
	indexes := b.client.Database(database).Collection(collection).Indexes()
	if name == "" {
		return indexes.DropAll(ctx)
	}
	return indexes.DropOne(ctx, name)
}

func (b *clientBackend) Disconnect(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}
