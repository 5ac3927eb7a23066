// Package config loads server configuration from jsonapi.yaml and JSONAPI_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. JSONAPI_SERVER_PORT
const EnvPrefix = "JSONAPI"

// Config is the complete server configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Schema     SchemaConfig     `mapstructure:"schema"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Log        LogConfig        `mapstructure:"log"`
	Pagination PaginationConfig `mapstructure:"pagination"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	APIPrefix       string        `mapstructure:"api_prefix"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns host:port
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig configures the store
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// MigrationsDir overrides the bundled migrations
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// SchemaConfig controls how entity names become resource type names.
// To-many relationships are saved through the model getter named after the
// target type name, so the resulting names must match those getters (the
// default "s" suffix turns Comment into Comments for GetComments). The server
// refuses to start otherwise.
type SchemaConfig struct {
	TypePrefix string `mapstructure:"type_prefix"`
	TypeSuffix string `mapstructure:"type_suffix"`
}

// CacheConfig selects the response cache backend
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig is used when the cache backend is redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PaginationConfig bounds page[limit]
type PaginationConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// Cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

var (
	drivers       = []string{"pgx", "postgres", "sqlite3"}
	cacheBackends = []string{CacheNone, CacheMemory, CacheRedis}
	logFormats    = []string{"json", "console"}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_prefix", "/api/v1")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "")

	v.SetDefault("schema.type_prefix", "")
	v.SetDefault("schema.type_suffix", "s")

	v.SetDefault("cache.backend", CacheNone)
	v.SetDefault("cache.ttl", time.Minute)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("pagination.default_limit", 20)
	v.SetDefault("pagination.max_limit", 100)
}

// Load reads the configuration. An explicit path must exist; otherwise
// jsonapi.yaml in the working directory is used when present. Environment
// variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("jsonapi")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	prefix := c.Server.APIPrefix
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("server.api_prefix must start with '/', got: %q", prefix)
	}
	if strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("server.api_prefix must not end with '/', got: %q", prefix)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if !oneOf(c.Database.Driver, drivers) {
		return fmt.Errorf("database.driver must be one of %s, got: %q", strings.Join(drivers, ", "), c.Database.Driver)
	}
	if !oneOf(c.Cache.Backend, cacheBackends) {
		return fmt.Errorf("cache.backend must be one of %s, got: %q", strings.Join(cacheBackends, ", "), c.Cache.Backend)
	}
	if c.Cache.Backend == CacheRedis && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required for the redis cache backend")
	}
	if !oneOf(c.Log.Format, logFormats) {
		return fmt.Errorf("log.format must be one of %s, got: %q", strings.Join(logFormats, ", "), c.Log.Format)
	}
	if c.Pagination.DefaultLimit < 1 {
		return fmt.Errorf("pagination.default_limit must be positive, got: %d", c.Pagination.DefaultLimit)
	}
	if c.Pagination.MaxLimit < c.Pagination.DefaultLimit {
		return fmt.Errorf("pagination.max_limit (%d) must not be below pagination.default_limit (%d)",
			c.Pagination.MaxLimit, c.Pagination.DefaultLimit)
	}
	return nil
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
