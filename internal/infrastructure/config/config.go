package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database for minimal containers

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Pipeline  PipelineConfig
	Ingest    IngestConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Docs      DocsConfig
}

// DocsConfig controls the Swagger UI endpoint
type DocsConfig struct {
	Enabled    bool
	AllowedIPs []string // IPs or CIDRs; empty allows all
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string // used when Driver is sqlite
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings.
// An empty Host disables Redis; in-process lock and idempotency are used instead.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Enabled reports whether a Redis host is configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	QueryTimeout     time.Duration // deadline of ledger reads
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	RateLimitRPS     float64 // sustained write requests per second per client, 0 disables
	RateLimitBurst   int
	HSTSMaxAge       time.Duration // Strict-Transport-Security max-age, 0 omits the header
}

// PipelineConfig holds reconciliation run settings
type PipelineConfig struct {
	Timezone        string        // IANA zone used to derive "today" for scheduled runs
	Tolerance       string        // AMOUNT_MISMATCH tolerance, decimal string
	GracePeriodDays int           // MISSING_INVOICE grace period
	DuePolicy       string        // end_of_following_month or net_<days>
	ScheduleEnabled bool          // run automatically once a day
	ScheduleHour    int           // local hour of the daily run
	ScheduleMinute  int           // local minute of the daily run
	RunTimeout      time.Duration // upper bound for one run
	LockTTL         time.Duration // distributed run lock TTL
	RetryAttempts   int           // retries of a failed scheduled run
	RetryDelay      time.Duration
	ArchiveEnabled  bool // copy published snapshots to object storage
}

// IngestConfig holds raw ingestion settings
type IngestConfig struct {
	MaxUploadBytes  int64
	MaxRowErrors    int    // row errors retained in a batch report
	MappingsFile    string // YAML schema mappings; empty uses built-in mappings
	DefaultEncoding string // utf-8 or shift_jis
	IdempotencyTTL  time.Duration
}

// StorageConfig holds snapshot archive settings
type StorageConfig struct {
	Backend         string // local, s3, gcs, none
	LocalDir        string
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // custom S3 endpoint (MinIO, RustFS)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	LogsEnabled       bool // bridge zap logs to OTEL
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LEDGER_ prefix (e.g., LEDGER_DATABASE_PASSWORD),
// including those loaded from a .env file
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")
	if path := os.Getenv("LEDGER_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

// loadDotEnv loads LEDGER_ENV_FILE (default .env) into the process
// environment. A missing file is not an error.
func loadDotEnv() error {
	path := os.Getenv("LEDGER_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading env file %s: %w", path, err)
	}
	return nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	// Zero is a valid hour, so this default cannot live in applyDefaults.
	v.SetDefault("pipeline.schedule_hour", 6)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			QueryTimeout:     v.GetDuration("http.query_timeout"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			RateLimitRPS:     v.GetFloat64("http.rate_limit_rps"),
			RateLimitBurst:   v.GetInt("http.rate_limit_burst"),
			HSTSMaxAge:       v.GetDuration("http.hsts_max_age"),
		},
		Pipeline: PipelineConfig{
			Timezone:        v.GetString("pipeline.timezone"),
			Tolerance:       v.GetString("pipeline.tolerance"),
			GracePeriodDays: v.GetInt("pipeline.grace_period_days"),
			DuePolicy:       v.GetString("pipeline.due_policy"),
			ScheduleEnabled: v.GetBool("pipeline.schedule_enabled"),
			ScheduleHour:    v.GetInt("pipeline.schedule_hour"),
			ScheduleMinute:  v.GetInt("pipeline.schedule_minute"),
			RunTimeout:      v.GetDuration("pipeline.run_timeout"),
			LockTTL:         v.GetDuration("pipeline.lock_ttl"),
			RetryAttempts:   v.GetInt("pipeline.retry_attempts"),
			RetryDelay:      v.GetDuration("pipeline.retry_delay"),
			ArchiveEnabled:  v.GetBool("pipeline.archive_enabled"),
		},
		Ingest: IngestConfig{
			MaxUploadBytes:  v.GetInt64("ingest.max_upload_bytes"),
			MaxRowErrors:    v.GetInt("ingest.max_row_errors"),
			MappingsFile:    v.GetString("ingest.mappings_file"),
			DefaultEncoding: v.GetString("ingest.default_encoding"),
			IdempotencyTTL:  v.GetDuration("ingest.idempotency_ttl"),
		},
		Storage: StorageConfig{
			Backend:         v.GetString("storage.backend"),
			LocalDir:        v.GetString("storage.local_dir"),
			Bucket:          v.GetString("storage.bucket"),
			Prefix:          v.GetString("storage.prefix"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Docs: DocsConfig{
			Enabled:    v.GetBool("docs.enabled"),
			AllowedIPs: v.GetStringSlice("docs.allowed_ips"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "procurement-ledger"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "ledger"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "ledger.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB for JSON bodies
	}
	if cfg.HTTP.QueryTimeout == 0 {
		cfg.HTTP.QueryTimeout = 30 * time.Second
	}
	if cfg.HTTP.RateLimitRPS > 0 && cfg.HTTP.RateLimitBurst <= 0 {
		cfg.HTTP.RateLimitBurst = int(cfg.HTTP.RateLimitRPS) + 1
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "X-Request-ID", "Idempotency-Key"}
	}
	if cfg.Pipeline.Timezone == "" {
		cfg.Pipeline.Timezone = "Asia/Tokyo"
	}
	if cfg.Pipeline.Tolerance == "" {
		cfg.Pipeline.Tolerance = "0"
	}
	if cfg.Pipeline.GracePeriodDays == 0 {
		cfg.Pipeline.GracePeriodDays = 30
	}
	if cfg.Pipeline.DuePolicy == "" {
		cfg.Pipeline.DuePolicy = "end_of_following_month"
	}
	if cfg.Pipeline.RunTimeout == 0 {
		cfg.Pipeline.RunTimeout = 10 * time.Minute
	}
	if cfg.Pipeline.LockTTL == 0 {
		cfg.Pipeline.LockTTL = 15 * time.Minute
	}
	if cfg.Pipeline.RetryAttempts == 0 {
		cfg.Pipeline.RetryAttempts = 3
	}
	if cfg.Pipeline.RetryDelay == 0 {
		cfg.Pipeline.RetryDelay = 5 * time.Minute
	}
	if cfg.Ingest.MaxUploadBytes == 0 {
		cfg.Ingest.MaxUploadBytes = 50 << 20 // 50MB
	}
	if cfg.Ingest.MaxRowErrors == 0 {
		cfg.Ingest.MaxRowErrors = 100
	}
	if cfg.Ingest.DefaultEncoding == "" {
		cfg.Ingest.DefaultEncoding = "utf-8"
	}
	if cfg.Ingest.IdempotencyTTL == 0 {
		cfg.Ingest.IdempotencyTTL = 30 * 24 * time.Hour
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = "./data/snapshots"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "snapshots"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "procurement-ledger"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}

	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	tol, err := decimal.NewFromString(c.Pipeline.Tolerance)
	if err != nil {
		return fmt.Errorf("pipeline.tolerance must be a decimal: %w", err)
	}
	if tol.IsNegative() {
		return fmt.Errorf("pipeline.tolerance cannot be negative")
	}
	if c.Pipeline.GracePeriodDays < 0 {
		return fmt.Errorf("pipeline.grace_period_days cannot be negative")
	}
	if c.Pipeline.ScheduleHour < 0 || c.Pipeline.ScheduleHour > 23 {
		return fmt.Errorf("pipeline.schedule_hour must be between 0 and 23")
	}
	if c.Pipeline.ScheduleMinute < 0 || c.Pipeline.ScheduleMinute > 59 {
		return fmt.Errorf("pipeline.schedule_minute must be between 0 and 59")
	}
	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		return fmt.Errorf("pipeline.timezone is invalid: %w", err)
	}

	switch strings.ToLower(c.Ingest.DefaultEncoding) {
	case "utf-8", "utf8", "shift_jis", "sjis":
	default:
		return fmt.Errorf("ingest.default_encoding must be utf-8 or shift_jis, got %q", c.Ingest.DefaultEncoding)
	}

	switch c.Storage.Backend {
	case "none", "local":
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the %s backend", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage.backend must be one of none, local, s3, gcs, got %q", c.Storage.Backend)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
		if c.Docs.Enabled && len(c.Docs.AllowedIPs) == 0 {
			return fmt.Errorf("docs endpoint must be disabled or restricted by docs.allowed_ips in production")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
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

// ToleranceDecimal returns the parsed tolerance. validate guarantees it parses.
func (p PipelineConfig) ToleranceDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(p.Tolerance)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// GracePeriod returns the grace period as a duration
func (p PipelineConfig) GracePeriod() time.Duration {
	return time.Duration(p.GracePeriodDays) * 24 * time.Hour
}

// Location returns the configured time zone, UTC when unknown
func (p PipelineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
