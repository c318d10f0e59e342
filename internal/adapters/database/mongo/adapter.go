// Package mongo implements the document store session adapter. Every read
// runs as an aggregation pipeline compiled from domain.Options.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"time"

	goversion "github.com/hashicorp/go-version"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/pandasAtHome/TimeTask/internal/adapters/database"
	"github.com/pandasAtHome/TimeTask/internal/core/query/compiler"
	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
	"github.com/pandasAtHome/TimeTask/internal/logging"
	"github.com/pandasAtHome/TimeTask/internal/metrics"
)

const backend = "mongo"

// Authentication mechanisms selected by server version.
const (
	MechanismSCRAM = "SCRAM-SHA-1"
	MechanismCR    = "MONGODB-CR"
)

// AuthSource is the database credentials are checked against.
const AuthSource = "admin"

// AuthMechanism returns SCRAM-SHA-1 for servers from 3.0 on and MONGODB-CR
// for older ones.
func AuthMechanism(serverVersion string) (string, error) {
	v, err := goversion.NewVersion(serverVersion)
	if err != nil {
		return "", fmt.Errorf("invalid server version %q: %w", serverVersion, err)
	}
	if v.Segments()[0] >= 3 {
		return MechanismSCRAM, nil
	}
	return MechanismCR, nil
}

// Adapter owns one document store client.
type Adapter struct {
	backend  Backend
	compiler *compiler.PipelineCompiler
	database string
	logger   *slog.Logger
	recorder metrics.Recorder
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger used for failed commands.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder metrics.Recorder) Option {
	return func(a *Adapter) {
		a.recorder = recorder
	}
}

// New validates cfg, connects and pings the server. Any failure is returned
// as a configuration error and no adapter is created.
func New(ctx context.Context, cfg database.MongoConfig, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	mechanism, err := AuthMechanism(cfg.Version)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindConfiguration, Op: "connect", Backend: backend, Err: err}
	}
	if mechanism == MechanismCR {
		return nil, domain.NewConfigurationError(backend, "%s authentication (server version %s) is not supported by the driver", mechanism, cfg.Version)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	clientOpts := options.Client().
		ApplyURI("mongodb://" + addr).
		SetAuth(options.Credential{
			AuthMechanism: mechanism,
			AuthSource:    AuthSource,
			Username:      cfg.Username,
			Password:      cfg.Password,
		}).
		SetMaxPoolSize(1).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindConfiguration, Op: "connect", Backend: backend, Message: "failed to create client", Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, &domain.Error{Kind: domain.KindConfiguration, Op: "connect", Backend: backend, Message: "failed to connect to " + addr, Err: err}
	}

	return NewWithBackend(&clientBackend{client: client}, cfg.Database, opts...), nil
}

// NewWithBackend wraps a backend. database is used for collections named
// without a database prefix.
func NewWithBackend(b Backend, database string, opts ...Option) *Adapter {
	a := &Adapter{
		backend:  b,
		compiler: compiler.NewPipelineCompiler(database),
		database: database,
		recorder: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrDiscard(a.logger).With("backend", backend)
	return a
}

// SelectOne returns the document at opts.Offset, or an empty record.
func (a *Adapter) SelectOne(ctx context.Context, collection string, opts domain.Options) (domain.Result[domain.Record], error) {
	cmd, err := a.compiler.SelectOne(collection, opts)
	if err != nil {
		return domain.Result[domain.Record]{}, err
	}
	if opts.DryRun {
		return domain.Planned[domain.Record](cmd), nil
	}

	docs, err := a.aggregate(ctx, "selectOne", cmd)
	if err != nil {
		return domain.Result[domain.Record]{}, err
	}
	record := domain.Record{}
	if len(docs) > 0 {
		record = domain.Record(docs[0])
	}
	return domain.Executed(record, cmd), nil
}

// SelectMany returns all matching documents, or an empty slice.
func (a *Adapter) SelectMany(ctx context.Context, collection string, opts domain.Options) (domain.Result[[]domain.Record], error) {
	cmd, err := a.compiler.SelectMany(collection, opts)
	if err != nil {
		return domain.Result[[]domain.Record]{}, err
	}
	if opts.DryRun {
		return domain.Planned[[]domain.Record](cmd), nil
	}

	docs, err := a.aggregate(ctx, "selectMany", cmd)
	if err != nil {
		return domain.Result[[]domain.Record]{}, err
	}
	return domain.Executed(records(docs), cmd), nil
}

// Count counts matching documents. With a group key the totals are returned
// per bucket and Total is their sum.
func (a *Adapter) Count(ctx context.Context, collection string, dedupe domain.Keys, opts domain.Options) (domain.Result[domain.Tally], error) {
	cmd, err := a.compiler.Count(collection, dedupe, opts)
	if err != nil {
		return domain.Result[domain.Tally]{}, err
	}
	if opts.DryRun {
		return domain.Planned[domain.Tally](cmd), nil
	}

	docs, err := a.aggregate(ctx, "count", cmd)
	if err != nil {
		return domain.Result[domain.Tally]{}, err
	}

	var tally domain.Tally
	if opts.Group.IsZero() {
		if len(docs) > 0 {
			tally.Total = toInt64(docs[0][compiler.TotalField])
		}
		return domain.Executed(tally, cmd), nil
	}

	tally.Groups = make([]domain.GroupTotal, 0, len(docs))
	for _, doc := range docs {
		n := toInt64(doc[compiler.TotalField])
		tally.Groups = append(tally.Groups, domain.GroupTotal{Key: doc["_id"], Total: n})
		tally.Total += n
	}
	return domain.Executed(tally, cmd), nil
}

// Sum sums key over matching documents.
func (a *Adapter) Sum(ctx context.Context, collection string, key domain.Keys, opts domain.Options) (domain.Result[domain.Sums], error) {
	cmd, err := a.compiler.Sum(collection, key, opts)
	if err != nil {
		return domain.Result[domain.Sums]{}, err
	}
	if opts.DryRun {
		return domain.Planned[domain.Sums](cmd), nil
	}

	docs, err := a.aggregate(ctx, "sum", cmd)
	if err != nil {
		return domain.Result[domain.Sums]{}, err
	}

	var sums domain.Sums
	switch {
	case !opts.Group.IsZero():
		sums.Groups = records(docs)
	case key.Shape == domain.KeySingle:
		if len(docs) > 0 {
			sums.Total = toFloat64(docs[0][key.Fields[0].Name])
		}
	default:
		sums.Totals = domain.Record{}
		if len(docs) > 0 {
			for _, name := range key.Names() {
				sums.Totals[name] = docs[0][name]
			}
		}
	}
	return domain.Executed(sums, cmd), nil
}

// Distinct returns the distinct non-null values of key in ascending order.
func (a *Adapter) Distinct(ctx context.Context, collection, key string, opts domain.Options) (domain.Result[[]any], error) {
	cmd, err := a.compiler.Distinct(collection, key, opts)
	if err != nil {
		return domain.Result[[]any]{}, err
	}
	if opts.DryRun {
		return domain.Planned[[]any](cmd), nil
	}

	docs, err := a.aggregate(ctx, "distinct", cmd)
	if err != nil {
		return domain.Result[[]any]{}, err
	}
	values := make([]any, 0, len(docs))
	for _, doc := range docs {
		if v := doc["_id"]; v != nil {
			values = append(values, v)
		}
	}
	return domain.Executed(values, cmd), nil
}

// Aggregate runs a caller-built pipeline.
func (a *Adapter) Aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, opts domain.Options) (domain.Result[[]domain.Record], error) {
	cmd, err := a.compiler.Aggregate(collection, slices.Clone(pipeline))
	if err != nil {
		return domain.Result[[]domain.Record]{}, err
	}
	if opts.DryRun {
		return domain.Planned[[]domain.Record](cmd), nil
	}

	docs, err := a.aggregate(ctx, "aggregate", cmd)
	if err != nil {
		return domain.Result[[]domain.Record]{}, err
	}
	return domain.Executed(records(docs), cmd), nil
}

// InsertOne inserts a document and returns its identifier.
func (a *Adapter) InsertOne(ctx context.Context, collection string, doc domain.Record, opts domain.Options) (domain.Result[any], error) {
	cmd, err := a.compiler.InsertOne(collection, doc)
	if err != nil {
		return domain.Result[any]{}, err
	}
	if opts.DryRun {
		return domain.Planned[any](cmd), nil
	}

	ids, err := a.insert(ctx, "insertOne", cmd)
	if err != nil {
		return domain.Result[any]{}, err
	}
	var id any
	if len(ids) > 0 {
		id = ids[0]
	}
	return domain.Executed(id, cmd), nil
}

// InsertMany inserts documents and returns their identifiers.
func (a *Adapter) InsertMany(ctx context.Context, collection string, docs []domain.Record, opts domain.Options) (domain.Result[[]any], error) {
	cmd, err := a.compiler.InsertMany(collection, docs)
	if err != nil {
		return domain.Result[[]any]{}, err
	}
	if opts.DryRun {
		return domain.Planned[[]any](cmd), nil
	}

	ids, err := a.insert(ctx, "insertMany", cmd)
	if err != nil {
		return domain.Result[[]any]{}, err
	}
	return domain.Executed(ids, cmd), nil
}

// Update updates the first or, with multi, every matching document and
// returns the modified count. An empty filter is rejected before any I/O.
func (a *Adapter) Update(ctx context.Context, collection string, set domain.Record, opts domain.Options, multi bool) (domain.Result[int64], error) {
	cmd, err := a.compiler.Update(collection, set, opts, multi)
	if err != nil {
		return domain.Result[int64]{}, err
	}
	if opts.DryRun {
		return domain.Planned[int64](cmd), nil
	}

	start := time.Now()
	n, err := a.backend.Update(ctx, cmd.Database, cmd.Collection, cmd.Filter, cmd.Update, cmd.Multi)
	a.record(ctx, "update", start, err == nil, n)
	if err != nil {
		return domain.Result[int64]{}, a.fail(ctx, "update", cmd, err)
	}
	return domain.Executed(n, cmd), nil
}

// Delete deletes the first or, with multi, every matching document and
// returns the deleted count. An empty filter is rejected before any I/O.
func (a *Adapter) Delete(ctx context.Context, collection string, opts domain.Options, multi bool) (domain.Result[int64], error) {
	cmd, err := a.compiler.Delete(collection, opts, multi)
	if err != nil {
		return domain.Result[int64]{}, err
	}
	if opts.DryRun {
		return domain.Planned[int64](cmd), nil
	}

	start := time.Now()
	n, err := a.backend.Delete(ctx, cmd.Database, cmd.Collection, cmd.Filter, cmd.Multi)
	a.record(ctx, "delete", start, err == nil, n)
	if err != nil {
		return domain.Result[int64]{}, a.fail(ctx, "delete", cmd, err)
	}
	return domain.Executed(n, cmd), nil
}

// ListCollections lists the collections of database, or of the configured
// database when empty.
func (a *Adapter) ListCollections(ctx context.Context, database string) ([]string, error) {
	if database == "" {
		database = a.database
	}
	if database == "" {
		return nil, domain.NewValidationError("listCollections", "database is required")
	}

	names, err := a.backend.ListCollections(ctx, database)
	if err != nil {
		return nil, a.fail(ctx, "listCollections", compiler.Command{Database: database}, err)
	}
	slices.Sort(names)
	return names, nil
}

// HasCollection reports whether collection exists.
func (a *Adapter) HasCollection(ctx context.Context, collection string) (bool, error) {
	database, name, ok := a.compiler.Namespace(collection)
	if !ok {
		return false, domain.NewValidationError("hasCollection", "cannot resolve collection %q", collection)
	}
	names, err := a.ListCollections(ctx, database)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(names, name)
	return found, nil
}

// DropCollection drops collection.
func (a *Adapter) DropCollection(ctx context.Context, collection string) error {
	database, name, ok := a.compiler.Namespace(collection)
	if !ok {
		return domain.NewValidationError("dropCollection", "cannot resolve collection %q", collection)
	}
	if err := a.backend.DropCollection(ctx, database, name); err != nil {
		return a.fail(ctx, "dropCollection", compiler.Command{Database: database, Collection: name}, err)
	}
	return nil
}

// Close disconnects the client.
func (a *Adapter) Close(ctx context.Context) error {
	if a.backend == nil {
		return nil
	}
	if err := a.backend.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

func (a *Adapter) aggregate(ctx context.Context, op string, cmd compiler.Command) ([]bson.M, error) {
	start := time.Now()
	docs, err := a.backend.Aggregate(ctx, cmd.Database, cmd.Collection, cmd.Pipeline)
	a.record(ctx, op, start, err == nil, int64(len(docs)))
	if err != nil {
		return nil, a.fail(ctx, op, cmd, err)
	}
	return docs, nil
}

func (a *Adapter) insert(ctx context.Context, op string, cmd compiler.Command) ([]any, error) {
	start := time.Now()
	ids, err := a.backend.InsertMany(ctx, cmd.Database, cmd.Collection, cmd.Documents)
	a.record(ctx, op, start, err == nil, int64(len(ids)))
	if err != nil {
		return nil, a.fail(ctx, op, cmd, err)
	}
	return ids, nil
}

// fail logs a driver failure with its command and converts it into an
// execution error.
func (a *Adapter) fail(ctx context.Context, op string, cmd compiler.Command, err error) error {
	statement := cmd.Namespace()
	if cmd.Kind != "" {
		statement = cmd.String()
	}

	attrs := []any{
		"op", op,
		"command", statement,
		"error", err,
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		attrs = append(attrs, "code", cmdErr.Code)
	}
	a.logger.ErrorContext(ctx, "command failed", attrs...)
	return domain.NewExecutionError(backend, op, statement, err)
}

func (a *Adapter) record(ctx context.Context, op string, start time.Time, success bool, rows int64) {
	a.recorder.RecordQuery(ctx, metrics.QueryInfo{
		Backend:   backend,
		Operation: op,
		Duration:  time.Since(start),
		Success:   success,
		Rows:      rows,
	})
}

func records(docs []bson.M) []domain.Record {
	out := make([]domain.Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.Record(doc))
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	case bson.Decimal128:
		f, err := strconv.ParseFloat(n.String(), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// Ensure Adapter implements the Document interface.
var _ database.Document = (*Adapter)(nil)
