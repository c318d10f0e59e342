// Package config loads runner settings from a YAML file, dotenv files and
// TIMETASK_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/pandasAtHome/TimeTask/internal/adapters/database"
	"github.com/pandasAtHome/TimeTask/internal/logging"
)

// AppFs is the filesystem config and dotenv files are read from.
var AppFs = afero.NewOsFs()

const (
	// FileName is the config file name searched for without extension.
	FileName = ".timetask"
	// EnvPrefix prefixes every environment override, e.g. TIMETASK_MYSQL_HOST.
	EnvPrefix = "TIMETASK"
	// DefaultConcurrency bounds parallel task runs.
	DefaultConcurrency = 4
)

// Config holds the application configuration
type Config struct {
	MySQL   database.MySQLConfig `mapstructure:"mysql"`
	Mongo   database.MongoConfig `mapstructure:"mongo"`
	Log     logging.Config       `mapstructure:"log"`
	Run     RunConfig            `mapstructure:"run"`
	Metrics MetricsConfig        `mapstructure:"metrics"`
}

// RunConfig controls the task runner.
type RunConfig struct {
	// Concurrency is the maximum number of tasks run at once.
	Concurrency int `mapstructure:"concurrency"`
	// RequestLog is the MySQL table every run is recorded in. Empty disables it.
	RequestLog string `mapstructure:"request_log"`
	// ErrorLog is the MySQL table failed runs are recorded in. Empty disables it.
	ErrorLog string `mapstructure:"error_log"`
}

// MetricsConfig controls metrics output.
type MetricsConfig struct {
	// Textfile is written in Prometheus text format after a run when set.
	Textfile string `mapstructure:"textfile"`
}

var defaults = map[string]any{
	"mysql.host":            "",
	"mysql.port":            database.DefaultMySQLPort,
	"mysql.username":        "",
	"mysql.user":            "",
	"mysql.password":        "",
	"mysql.database":        "",
	"mysql.charset":         database.DefaultCharset,
	"mysql.connect_timeout": database.DefaultConnectTimeout,
	"mongo.host":            "",
	"mongo.port":            database.DefaultMongoPort,
	"mongo.username":        "",
	"mongo.user":            "",
	"mongo.password":        "",
	"mongo.database":        "",
	"mongo.version":         database.DefaultMongoVersion,
	"mongo.connect_timeout": database.DefaultConnectTimeout,
	"log.level":             "info",
	"log.format":            "text",
	"run.concurrency":       DefaultConcurrency,
	"run.request_log":       "",
	"run.error_log":         "",
	"metrics.textfile":      "",
}

// Load loads configuration from various sources. An explicit configFile
// must exist; otherwise .timetask.yaml is searched for in the working
// directory, the home directory and ~/.config/timetask.
func Load(configFile string) (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}

	v := newViper()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "timetask"))

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// username is accepted in place of user
	if cfg.MySQL.User == "" {
		cfg.MySQL.User = v.GetString("mysql.username")
	}
	if cfg.Mongo.User == "" {
		cfg.Mongo.User = v.GetString("mongo.username")
	}
	if cfg.Run.Concurrency < 1 {
		cfg.Run.Concurrency = 1
	}
	return cfg, nil
}

// WriteDefault writes a config file holding every key with its default.
func WriteDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := AppFs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	v := newViper()
	v.SetConfigType("yaml")
	return v.WriteConfigAs(path)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetFs(AppFs)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// loadDotenv exports .env without overriding the environment, then
// .env.local overriding it.
func loadDotenv() error {
	for _, f := range []struct {
		name     string
		override bool
	}{
		{name: ".env"},
		{name: ".env.local", override: true},
	} {
		file, err := AppFs.Open(f.name)
		if err != nil {
			continue
		}
		values, err := godotenv.Parse(file)
		file.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", f.name, err)
		}
		for key, value := range values {
			if _, set := os.LookupEnv(key); set && !f.override {
				continue
			}
			os.Setenv(key, value)
		}
	}
	return nil
}
