package mongo

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pandasAtHome/TimeTask/internal/core/query/compiler"
	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
)

// DatabaseFilter selects databases by whether they hold data.
type DatabaseFilter int

const (
	// AllDatabases lists every user database.
	AllDatabases DatabaseFilter = iota
	// EmptyDatabases lists databases without data.
	EmptyDatabases
	// NonEmptyDatabases lists databases holding data.
	NonEmptyDatabases
)

// systemDatabases are never listed.
var systemDatabases = []string{"admin", "local"}

// Index describes an index to create. Keys keep their order and direction.
// An empty Name lets the server derive one, e.g. "uid_1_day_-1".
type Index struct {
	Keys        domain.OrderSpec
	Name        string
	Unique      bool
	Sparse      bool
	ExpireAfter time.Duration
}

func (i Index) model() mongo.IndexModel {
	keys := make(bson.D, 0, len(i.Keys))
	for _, k := range i.Keys {
		keys = append(keys, bson.E{Key: k.Field, Value: int(k.Direction)})
	}

	opts := options.Index()
	if i.Name != "" {
		opts.SetName(i.Name)
	}
	if i.Unique {
		opts.SetUnique(true)
	}
	if i.Sparse {
		opts.SetSparse(true)
	}
	if i.ExpireAfter > 0 {
		opts.SetExpireAfterSeconds(int32(i.ExpireAfter / time.Second))
	}
	return mongo.IndexModel{Keys: keys, Options: opts}
}

// ListDatabases lists database names matching filter, sorted, without the
// admin and local databases.
func (a *Adapter) ListDatabases(ctx context.Context, filter DatabaseFilter) ([]string, error) {
	specs, err := a.backend.ListDatabases(ctx)
	if err != nil {
		return nil, a.fail(ctx, "listDatabases", compiler.Command{}, err)
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if slices.Contains(systemDatabases, spec.Name) {
			continue
		}
		switch {
		case filter == EmptyDatabases && !spec.Empty:
			continue
		case filter == NonEmptyDatabases && spec.Empty:
			continue
		}
		names = append(names, spec.Name)
	}
	slices.Sort(names)
	return names, nil
}

// HasDatabase reports whether the server knows database.
func (a *Adapter) HasDatabase(ctx context.Context, database string) (bool, error) {
	if database == "" {
		return false, domain.NewValidationError("hasDatabase", "database is required")
	}
	specs, err := a.backend.ListDatabases(ctx)
	if err != nil {
		return false, a.fail(ctx, "hasDatabase", compiler.Command{Database: database}, err)
	}
	return slices.ContainsFunc(specs, func(s mongo.DatabaseSpecification) bool {
		return s.Name == database
	}), nil
}

// DropDatabase drops database.
func (a *Adapter) DropDatabase(ctx context.Context, database string) error {
	if database == "" {
		return domain.NewValidationError("dropDatabase", "database is required")
	}
	if err := a.backend.DropDatabase(ctx, database); err != nil {
		return a.fail(ctx, "dropDatabase", compiler.Command{Database: database}, err)
	}
	return nil
}

// RenameCollection renames collection to to. A bare target name stays in
// the source database; "database.collection" moves it.
func (a *Adapter) RenameCollection(ctx context.Context, collection, to string) error {
	database, name, ok := a.compiler.Namespace(collection)
	if !ok {
		return domain.NewValidationError("renameCollection", "cannot resolve collection %q", collection)
	}
	if to == "" {
		return domain.NewValidationError("renameCollection", "new name is required")
	}
	if !strings.Contains(to, ".") {
		to = database + "." + to
	}

	from := compiler.Command{Database: database, Collection: name}
	if err := a.backend.RenameCollection(ctx, from.Namespace(), to); err != nil {
		return a.fail(ctx, "renameCollection", from, err)
	}
	return nil
}

// CreateIndexes creates indexes on collection and returns their names.
// With limit above zero nothing is created once the collection already has
// more than limit indexes; the returned names are then nil.
func (a *Adapter) CreateIndexes(ctx context.Context, collection string, indexes []Index, limit int) ([]string, error) {
	if len(indexes) == 0 {
		return nil, domain.NewValidationError("createIndexes", "no indexes given")
	}
	models := make([]mongo.IndexModel, 0, len(indexes))
	for i, idx := range indexes {
		if len(idx.Keys) == 0 {
			return nil, domain.NewValidationError("createIndexes", "index %d has no keys", i)
		}
		models = append(models, idx.model())
	}

	if limit > 0 {
		existing, err := a.ListIndexes(ctx, collection)
		if err != nil {
			return nil, err
		}
		if len(existing) > limit {
			a.logger.DebugContext(ctx, "index limit reached", "collection", collection, "indexes", len(existing), "limit", limit)
			return nil, nil
		}
	}

	database, name, ok := a.compiler.Namespace(collection)
	if !ok {
		return nil, domain.NewValidationError("createIndexes", "cannot resolve collection %q", collection)
	}
	start := time.Now()
	names, err := a.backend.CreateIndexes(ctx, database, name, models)
	a.record(ctx, "createIndexes", start, err == nil, int64(len(names)))
	if err != nil {
		return nil, a.fail(ctx, "createIndexes", compiler.Command{Database: database, Collection: name}, err)
	}
	return names, nil
}

// ListIndexes returns the index specifications of collection.
func (a *Adapter) ListIndexes(ctx context.Context, collection string) ([]domain.Record, error) {
	database, name, ok := a.compiler.Namespace(collection)
	if !ok {
		return nil, domain.NewValidationError("listIndexes", "cannot resolve collection %q", collection)
	}
	specs, err := a.backend.ListIndexes(ctx, database, name)
	if err != nil {
		return nil, a.fail(ctx, "listIndexes", compiler.Command{Database: database, Collection: name}, err)
	}
	return records(specs), nil
}

// DropIndexes drops the named index, or every index except _id when name
// is empty.
func (a *Adapter) DropIndexes(ctx context.Context, collection, name string) error {
	database, coll, ok := a.compiler.Namespace(collection)
	if !ok {
		return domain.NewValidationError("dropIndexes", "cannot resolve collection %q", collection)
	}
	if err := a.backend.DropIndex(ctx, database, coll, name); err != nil {
		return a.fail(ctx, "dropIndexes", compiler.Command{Database: database, Collection: coll}, err)
	}
	return nil
}
