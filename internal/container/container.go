// Package container provides per-run dependency wiring. Adapters are built
// on first use and released by Close.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pandasAtHome/TimeTask/internal/adapters/database"
	"github.com/pandasAtHome/TimeTask/internal/adapters/database/mongo"
	"github.com/pandasAtHome/TimeTask/internal/adapters/database/mysql"
	"github.com/pandasAtHome/TimeTask/internal/config"
	"github.com/pandasAtHome/TimeTask/internal/logging"
	"github.com/pandasAtHome/TimeTask/internal/metrics"
)

// Container holds the adapters of one task run. It is not safe for
// concurrent use; every concurrently running task gets its own.
type Container struct {
	// Configuration
	config *config.Config

	logger   *slog.Logger
	recorder metrics.Recorder

	// Adapters
	relational database.Relational
	document   database.Document
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger handed to adapters.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithRecorder sets the metrics recorder handed to adapters.
func WithRecorder(recorder metrics.Recorder) Option {
	return func(c *Container) {
		c.recorder = recorder
	}
}

// WithRelational installs a ready relational adapter.
func WithRelational(adapter database.Relational) Option {
	return func(c *Container) {
		c.relational = adapter
	}
}

// WithDocument installs a ready document adapter.
func WithDocument(adapter database.Document) Option {
	return func(c *Container) {
		c.document = adapter
	}
}

// New creates a container for cfg.
func New(cfg *config.Config, opts ...Option) *Container {
	if cfg == nil {
		cfg = &config.Config{}
	}
	c := &Container{
		config:   cfg,
		recorder: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// Config returns the configuration the container was built from.
func (c *Container) Config() *config.Config {
	return c.config
}

// MySQL returns the relational adapter, connecting on first use.
func (c *Container) MySQL(ctx context.Context) (database.Relational, error) {
	if c.relational != nil {
		return c.relational, nil
	}
	adapter, err := mysql.New(ctx, c.config.MySQL,
		mysql.WithLogger(c.logger),
		mysql.WithRecorder(c.recorder),
	)
	if err != nil {
		return nil, err
	}
	c.relational = adapter
	return adapter, nil
}

// Mongo returns the document adapter, connecting on first use.
func (c *Container) Mongo(ctx context.Context) (database.Document, error) {
	if c.document != nil {
		return c.document, nil
	}
	adapter, err := mongo.New(ctx, c.config.Mongo,
		mongo.WithLogger(c.logger),
		mongo.WithRecorder(c.recorder),
	)
	if err != nil {
		return nil, err
	}
	c.document = adapter
	return adapter, nil
}

// Close cleans up resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.relational != nil {
		if err := c.relational.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close mysql: %w", err))
		}
		c.relational = nil
	}
	if c.document != nil {
		if err := c.document.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close mongo: %w", err))
		}
		c.document = nil
	}
	return errors.Join(errs...)
}
