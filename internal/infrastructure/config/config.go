package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Supported snapshot cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config is the refund tracker's configuration, read from config.toml and
// REFUND_* environment variables
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Accounting AccountingConfig `mapstructure:"accounting"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// LogConfig selects the process logger
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, or file path
}

// AppConfig names the deployment
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver             string        `mapstructure:"driver"` // postgres or sqlite
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	DBName             string        `mapstructure:"dbname"`
	SSLMode            string        `mapstructure:"sslmode"`
	Path               string        `mapstructure:"path"` // sqlite file, ":memory:" when empty
	MaxOpenConns       int           `mapstructure:"max_open_conns"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    int           `mapstructure:"conn_max_lifetime"`  // minutes
	ConnMaxIdleTime    int           `mapstructure:"conn_max_idle_time"` // minutes
	LogLevel           string        `mapstructure:"log_level"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	AutoMigrate        bool          `mapstructure:"auto_migrate"`
}

// RedisConfig locates the snapshot cache's Redis server
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port of the Redis server
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds bearer token verification settings
type JWTConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
	Issuer  string `mapstructure:"issuer"`

	// Required rejects unauthenticated requests; otherwise X-User-ID is accepted as the actor
	Required bool `mapstructure:"required"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	MaxBodySize    int64         `mapstructure:"max_body_size"`
	AllowOrigins   []string      `mapstructure:"allow_origins"` // CORS origins; "*" allows any, empty allows none
	HSTSMaxAge     time.Duration `mapstructure:"hsts_max_age"`  // 0 omits Strict-Transport-Security
}

// AccountingConfig holds the refund accounting engine settings
type AccountingConfig struct {
	Epsilon              float64       `mapstructure:"epsilon"`               // Tolerance for monetary equality
	SnapshotCacheTTL     time.Duration `mapstructure:"snapshot_cache_ttl"`    // 0 disables the snapshot cache
	CacheBackend         string        `mapstructure:"cache_backend"`         // memory or redis
	QueryChunkSize       int           `mapstructure:"query_chunk_size"`      // Ids per IN query
	WriteBatchSize       int           `mapstructure:"write_batch_size"`      // Rows per batched insert
	RecomputeConcurrency int           `mapstructure:"recompute_concurrency"` // Orders recomputed in parallel by bulk operations
	OptimisticTolerance  time.Duration `mapstructure:"optimistic_tolerance"`  // Allowed drift of a caller's last-known updatedAt
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"` // OTLP gRPC collector, e.g. "localhost:4317"
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`     // Fraction of new traces sampled, 0.0 to 1.0
	ServiceName       string        `mapstructure:"service_name"`       // service.name of spans and metrics, app.name when empty
	Insecure          bool          `mapstructure:"insecure"`           // Plaintext gRPC to the collector
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`   // Trace GORM statements with otelgorm
	ExportInterval    time.Duration `mapstructure:"export_interval"`    // Metric export period
}

// defaults holds every key with its built-in value. Registering each key also
// lets viper bind its REFUND_* environment variable during Unmarshal.
var defaults = map[string]any{
	"app.name": "refund-tracker",
	"app.env":  "development",
	"app.port": "8080",

	"database.driver":               DriverPostgres,
	"database.host":                 "localhost",
	"database.port":                 5432,
	"database.user":                 "postgres",
	"database.password":             "",
	"database.dbname":               "refunds",
	"database.sslmode":              "disable",
	"database.path":                 "",
	"database.max_open_conns":       25,
	"database.max_idle_conns":       5,
	"database.conn_max_lifetime":    60,
	"database.conn_max_idle_time":   30,
	"database.log_level":            "warn",
	"database.slow_query_threshold": 200 * time.Millisecond,
	"database.auto_migrate":         false,

	"redis.enabled":  false,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"jwt.enabled":  false,
	"jwt.secret":   "",
	"jwt.issuer":   "refund-tracker",
	"jwt.required": true,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":     15 * time.Second,
	"http.write_timeout":    30 * time.Second,
	"http.idle_timeout":     60 * time.Second,
	"http.max_header_bytes": 1 << 20,
	"http.max_body_size":    10 << 20, // order sheets included
	"http.allow_origins":    []string{},
	"http.hsts_max_age":     time.Duration(0),

	"accounting.epsilon":               0.01,
	"accounting.snapshot_cache_ttl":    5 * time.Minute,
	"accounting.cache_backend":         CacheBackendMemory,
	"accounting.query_chunk_size":      10,
	"accounting.write_batch_size":      500,
	"accounting.recompute_concurrency": 4,
	"accounting.optimistic_tolerance":  2 * time.Second,

	"telemetry.enabled":            false,
	"telemetry.collector_endpoint": "localhost:4317",
	"telemetry.sampling_ratio":     1.0,
	"telemetry.service_name":       "",
	"telemetry.insecure":           false,
	"telemetry.db_trace_enabled":   false,
	"telemetry.export_interval":    time.Minute,
}

// Load reads ./config.toml, ./config/config.toml or /app/config.toml when present.
// REFUND_* environment variables override the file, e.g. REFUND_ACCOUNTING_EPSILON.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

// LoadFile reads the given TOML file, then applies the environment
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("REFUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate reports every invalid setting at once
func (c *Config) validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Database.Driver == DriverPostgres || c.Database.Driver == DriverSQLite,
		"database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	check(c.Database.MaxOpenConns > 0, "database.max_open_conns must be positive")
	check(c.Database.MaxIdleConns >= 0, "database.max_idle_conns cannot be negative")
	check(c.Database.MaxIdleConns <= c.Database.MaxOpenConns,
		"database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
		c.Database.MaxIdleConns, c.Database.MaxOpenConns)

	check(c.Accounting.Epsilon >= 0, "accounting.epsilon cannot be negative, got %g", c.Accounting.Epsilon)
	check(c.Accounting.SnapshotCacheTTL >= 0, "accounting.snapshot_cache_ttl cannot be negative")
	check(c.Accounting.CacheBackend == CacheBackendMemory || c.Accounting.CacheBackend == CacheBackendRedis,
		"accounting.cache_backend must be %q or %q, got %q",
		CacheBackendMemory, CacheBackendRedis, c.Accounting.CacheBackend)
	check(c.Accounting.QueryChunkSize >= 0 && c.Accounting.WriteBatchSize >= 0 && c.Accounting.RecomputeConcurrency >= 0,
		"accounting chunk, batch and concurrency sizes cannot be negative")

	check(!c.JWT.Enabled || c.JWT.Secret != "", "jwt.secret is required when jwt.enabled is true")
	check(c.Telemetry.SamplingRatio >= 0 && c.Telemetry.SamplingRatio <= 1,
		"telemetry.sampling_ratio must be between 0.0 and 1.0, got %g", c.Telemetry.SamplingRatio)

	if c.App.Env == "production" {
		check(c.Database.Driver != DriverSQLite, "database.driver sqlite is not allowed in production")
		check(c.Database.Password != "", "database.password is required in production")
		check(c.Database.SSLMode != "disable", "database.sslmode cannot be 'disable' in production")
		check(!c.JWT.Enabled || len(c.JWT.Secret) >= 32, "jwt.secret must be at least 32 characters in production")
	}

	return errors.Join(errs...)
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// SQLitePath returns the sqlite file, or a shared in-memory database when none is configured
func (d *DatabaseConfig) SQLitePath() string {
	if d.Path == "" {
		return "file::memory:?cache=shared"
	}
	return d.Path
}
