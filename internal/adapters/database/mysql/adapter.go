// Package mysql implements the relational session adapter on top of
// database/sql and the MySQL driver.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/pandasAtHome/TimeTask/internal/adapters/database"
	"github.com/pandasAtHome/TimeTask/internal/core/query/compiler"
	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
	"github.com/pandasAtHome/TimeTask/internal/logging"
	"github.com/pandasAtHome/TimeTask/internal/metrics"
)

const backend = "mysql"

// Adapter owns one MySQL connection. It keeps no per-call state, but the
// connection itself must not be shared between goroutines.
type Adapter struct {
	db       *sql.DB
	compiler *compiler.SQLCompiler
	logger   *slog.Logger
	recorder metrics.Recorder
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger used for failed statements.
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
func New(ctx context.Context, cfg database.MySQLConfig, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	dc := gomysql.NewConfig()
	dc.User = cfg.Username
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dc.DBName = cfg.Database
	dc.Params = map[string]string{"charset": cfg.Charset}
	dc.Timeout = cfg.ConnectTimeout

	connector, err := gomysql.NewConnector(dc)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindConfiguration, Op: "connect", Backend: backend, Message: "invalid connection settings", Err: err}
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &domain.Error{Kind: domain.KindConfiguration, Op: "connect", Backend: backend, Message: "failed to connect to " + dc.Addr, Err: err}
	}

	return NewWithDB(db, opts...), nil
}

// NewWithDB wraps an open database handle.
func NewWithDB(db *sql.DB, opts ...Option) *Adapter {
	a := &Adapter{
		db:       db,
		compiler: compiler.NewSQLCompiler(),
		recorder: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrDiscard(a.logger).With("backend", backend)
	return a
}

// SelectOne returns the row at opts.Offset, or an empty record.
func (a *Adapter) SelectOne(ctx context.Context, table string, opts domain.Options) (domain.Result[domain.Record], error) {
	stmt, err := a.compiler.SelectOne(table, opts)
	if err != nil {
		return domain.Result[domain.Record]{}, err
	}
	if opts.DryRun {
		return domain.Planned[domain.Record](stmt), nil
	}

	rows, err := a.query(ctx, "selectOne", stmt)
	if err != nil {
		return domain.Result[domain.Record]{}, err
	}
	record := domain.Record{}
	if len(rows) > 0 {
		record = rows[0]
	}
	return domain.Executed(record, stmt), nil
}

// SelectMany returns all matching rows, or an empty slice.
func (a *Adapter) SelectMany(ctx context.Context, table string, opts domain.Options) (domain.Result[[]domain.Record], error) {
	stmt, err := a.compiler.SelectMany(table, opts)
	if err != nil {
		return domain.Result[[]domain.Record]{}, err
	}
	if opts.DryRun {
		return domain.Planned[[]domain.Record](stmt), nil
	}

	rows, err := a.query(ctx, "selectMany", stmt)
	if err != nil {
		return domain.Result[[]domain.Record]{}, err
	}
	return domain.Executed(rows, stmt), nil
}

// InsertOne inserts a row and returns the last insert id.
func (a *Adapter) InsertOne(ctx context.Context, table string, record domain.Record, opts domain.Options) (domain.Result[int64], error) {
	stmt, err := a.compiler.InsertOne(table, record)
	if err != nil {
		return domain.Result[int64]{}, err
	}
	if opts.DryRun {
		return domain.Planned[int64](stmt), nil
	}

	res, err := a.exec(ctx, "insertOne", stmt)
	if err != nil {
		return domain.Result[int64]{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Result[int64]{}, a.fail(ctx, "insertOne", stmt, err)
	}
	return domain.Executed(id, stmt), nil
}

// InsertMany inserts rows and returns the affected row count. Records whose
// keys differ from the first record are logged and left out.
func (a *Adapter) InsertMany(ctx context.Context, table string, records []domain.Record, opts domain.Options) (domain.Result[int64], error) {
	stmt, err := a.compiler.InsertMany(table, records)
	if err != nil {
		return domain.Result[int64]{}, err
	}
	for _, i := range stmt.Skipped {
		a.logger.WarnContext(ctx, "skipping record with unexpected keys",
			"table", table,
			"index", i,
			"record", records[i],
		)
	}
	if opts.DryRun {
		return domain.Planned[int64](stmt), nil
	}

	return a.affected(ctx, "insertMany", stmt)
}

// Update updates matching rows. An empty filter is rejected before any I/O.
func (a *Adapter) Update(ctx context.Context, table string, set domain.Record, opts domain.Options, single bool) (domain.Result[int64], error) {
	stmt, err := a.compiler.Update(table, set, opts, single)
	if err != nil {
		return domain.Result[int64]{}, err
	}
	if opts.DryRun {
		return domain.Planned[int64](stmt), nil
	}
	return a.affected(ctx, "update", stmt)
}

// Delete deletes matching rows. An empty filter is rejected before any I/O.
func (a *Adapter) Delete(ctx context.Context, table string, opts domain.Options, single bool) (domain.Result[int64], error) {
	stmt, err := a.compiler.Delete(table, opts, single)
	if err != nil {
		return domain.Result[int64]{}, err
	}
	if opts.DryRun {
		return domain.Planned[int64](stmt), nil
	}
	return a.affected(ctx, "delete", stmt)
}

// Count counts matching rows. No row yields 0.
func (a *Adapter) Count(ctx context.Context, table string, opts domain.Options) (domain.Result[int64], error) {
	stmt, err := a.compiler.Count(table, opts)
	if err != nil {
		return domain.Result[int64]{}, err
	}
	if opts.DryRun {
		return domain.Planned[int64](stmt), nil
	}

	var total sql.NullInt64
	if err := a.scalar(ctx, "count", stmt, &total); err != nil {
		return domain.Result[int64]{}, err
	}
	return domain.Executed(total.Int64, stmt), nil
}

// Sum sums key over matching rows. No row or a NULL sum yields 0.
func (a *Adapter) Sum(ctx context.Context, table, key string, opts domain.Options) (domain.Result[float64], error) {
	stmt, err := a.compiler.Sum(table, key, opts)
	if err != nil {
		return domain.Result[float64]{}, err
	}
	if opts.DryRun {
		return domain.Planned[float64](stmt), nil
	}

	var total sql.NullFloat64
	if err := a.scalar(ctx, "sum", stmt, &total); err != nil {
		return domain.Result[float64]{}, err
	}
	return domain.Executed(total.Float64, stmt), nil
}

// Ping checks that the connection is alive.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close releases the connection.
func (a *Adapter) Close(ctx context.Context) error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) query(ctx context.Context, op string, stmt compiler.Statement) ([]domain.Record, error) {
	start := time.Now()
	rows, err := a.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		a.record(ctx, op, start, false, 0)
		return nil, a.fail(ctx, op, stmt, err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		a.record(ctx, op, start, false, 0)
		return nil, a.fail(ctx, op, stmt, err)
	}
	a.record(ctx, op, start, true, int64(len(records)))
	return records, nil
}

func (a *Adapter) exec(ctx context.Context, op string, stmt compiler.Statement) (sql.Result, error) {
	start := time.Now()
	res, err := a.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		a.record(ctx, op, start, false, 0)
		return nil, a.fail(ctx, op, stmt, err)
	}
	rows, _ := res.RowsAffected()
	a.record(ctx, op, start, true, rows)
	return res, nil
}

func (a *Adapter) affected(ctx context.Context, op string, stmt compiler.Statement) (domain.Result[int64], error) {
	res, err := a.exec(ctx, op, stmt)
	if err != nil {
		return domain.Result[int64]{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Result[int64]{}, a.fail(ctx, op, stmt, err)
	}
	return domain.Executed(n, stmt), nil
}

// scalar scans a single-column aggregate. A missing row leaves dest at its
// zero value.
func (a *Adapter) scalar(ctx context.Context, op string, stmt compiler.Statement, dest any) error {
	start := time.Now()
	err := a.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(dest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		a.record(ctx, op, start, false, 0)
		return a.fail(ctx, op, stmt, err)
	}
	a.record(ctx, op, start, true, 1)
	return nil
}

// fail logs a driver failure with its statement and converts it into an
// execution error.
func (a *Adapter) fail(ctx context.Context, op string, stmt compiler.Statement, err error) error {
	attrs := []any{
		"op", op,
		"sql", stmt.String(),
		"error", err,
	}
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		attrs = append(attrs, "code", myErr.Number)
	}
	a.logger.ErrorContext(ctx, "statement failed", attrs...)
	return domain.NewExecutionError(backend, op, stmt.String(), err)
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

// scanRows scans every row into a record. Byte slices are converted to
// strings.
func scanRows(rows *sql.Rows) ([]domain.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	records := []domain.Record{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		record := make(domain.Record, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Ensure Adapter implements the Relational interface.
var _ database.Relational = (*Adapter)(nil)
