package database

import (
	"strings"
	"time"

	"github.com/pandasAtHome/TimeTask/internal/core/query/domain"
)

const (
	// DefaultMySQLPort is used when no port is configured.
	DefaultMySQLPort = 3306
	// DefaultMongoPort is the driver's default port.
	DefaultMongoPort = 27017
	// DefaultCharset is the default MySQL connection charset.
	DefaultCharset = "utf8mb4"
	// DefaultMongoVersion selects the modern authentication mechanism.
	DefaultMongoVersion = "4.0"
	// DefaultConnectTimeout bounds connecting and the initial ping.
	DefaultConnectTimeout = 10 * time.Second
)

// MySQLConfig holds relational connection settings.
type MySQLConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	// User is accepted as an alias of Username.
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"database"`
	Charset        string        `mapstructure:"charset"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// WithDefaults fills in the port, charset, timeout and user alias.
func (c MySQLConfig) WithDefaults() MySQLConfig {
	if c.Port == 0 {
		c.Port = DefaultMySQLPort
	}
	if c.Charset == "" {
		c.Charset = DefaultCharset
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Username == "" {
		c.Username = c.User
	}
	return c
}

// Validate reports missing required fields as a configuration error.
func (c MySQLConfig) Validate() error {
	c = c.WithDefaults()
	return requireFields("mysql", map[string]string{
		"host":     c.Host,
		"username": c.Username,
		"password": c.Password,
		"database": c.Database,
	})
}

// MongoConfig holds document store connection settings.
type MongoConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	// User is accepted as an alias of Username.
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// Database is used for collections addressed without a database prefix.
	Database string `mapstructure:"database"`
	// Version is the server version; it selects the auth mechanism.
	Version        string        `mapstructure:"version"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// WithDefaults fills in the port, version, timeout and user alias.
func (c MongoConfig) WithDefaults() MongoConfig {
	if c.Port == 0 {
		c.Port = DefaultMongoPort
	}
	if c.Version == "" {
		c.Version = DefaultMongoVersion
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Username == "" {
		c.Username = c.User
	}
	return c
}

// Validate reports missing required fields as a configuration error.
func (c MongoConfig) Validate() error {
	c = c.WithDefaults()
	return requireFields("mongo", map[string]string{
		"host":     c.Host,
		"username": c.Username,
		"password": c.Password,
	})
}

func requireFields(backend string, fields map[string]string) error {
	var missing []string
	for _, name := range []string{"host", "username", "password", "database"} {
		value, required := fields[name]
		if required && strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return domain.NewConfigurationError(backend, "missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}
