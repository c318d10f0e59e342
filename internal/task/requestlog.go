package task

import (
	"context"
	"os"
	"time"

	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
)

// Table names the request and error logs are written to unless configured.
const (
	DefaultRequestLogTable = "_log_python_request"
	DefaultErrorLogTable   = "_log_error"
)

// timeLayout matches the DATETIME columns of the log tables.
const timeLayout = time.DateTime

// RequestLog returns a hook inserting one row per run into table through
// the MySQL adapter. Dry runs are not logged.
//
// Columns: pid, type, params, error, remark, create_time, update_time.
// params and error are stored as JSON; empty values as NULL.
func RequestLog(table string) Hook {
	return func(ctx context.Context, rc *RunContext, err error) error {
		if rc.DryRun() {
			return nil
		}
		db, derr := rc.Container.MySQL(ctx)
		if derr != nil {
			return derr
		}

		var errs []string
		if err != nil {
			errs = []string{err.Error()}
		}
		row := domain.Record{
			"pid":         os.Getpid(),
			"type":        rc.Path,
			"params":      rc.Params,
			"error":       errs,
			"remark":      map[string]string{"request_id": rc.RequestID.String()},
			"create_time": rc.CreatedAt.Format(timeLayout),
			"update_time": time.Now().Format(timeLayout),
		}
		_, ierr := db.InsertOne(ctx, table, row, domain.Options{})
		return ierr
	}
}

// ErrorLog returns a hook inserting a row into table for every failed run.
//
// Columns: path, remark, add_time.
func ErrorLog(table string) Hook {
	return func(ctx context.Context, rc *RunContext, err error) error {
		if err == nil || rc.DryRun() {
			return nil
		}
		db, derr := rc.Container.MySQL(ctx)
		if derr != nil {
			return derr
		}

		row := domain.Record{
			"path":     rc.Path,
			"remark":   err.Error(),
			"add_time": time.Now().Format(timeLayout),
		}
		_, ierr := db.InsertOne(ctx, table, row, domain.Options{})
		return ierr
	}
}
