package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Telemetry   TelemetryConfig
	Entitlement EntitlementConfig
	Usage       UsageConfig
	Archive     ArchiveConfig
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
	SQLitePath      string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	SlowThreshold   time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds session token settings
type JWTConfig struct {
	Secret                  string
	Issuer                  string
	AccessTokenExpiration   time.Duration
	ImpersonationExpiration time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled                bool
	CollectorEndpoint      string  // OTLP gRPC endpoint, e.g. localhost:4317
	SamplingRatio          float64 // 0.0-1.0
	ServiceName            string
	Insecure               bool
	MetricsInterval        time.Duration
	DBTraceEnabled         bool
	DBLogFullSQL           bool
	ProfilingEnabled       bool   // pyroscope agent, CPU profiles linked to spans
	ProfilingServerAddress string // e.g. http://pyroscope:4040
}

// EntitlementConfig holds credential issuance settings
type EntitlementConfig struct {
	// MasterLicenseKey is the license with unrestricted read access
	MasterLicenseKey  string
	KeygenMaxAttempts int
	ProductKeyLength  int
	// LegacyProduct is the product legacy single credentials belonged to
	LegacyProduct string
}

// UsageConfig holds usage metering settings
type UsageConfig struct {
	Enabled       bool
	EnforceLimits bool
	WriteTimeout  time.Duration
	SkipPaths     []string
}

// ArchiveConfig holds the daily audit archive settings. Any S3-compatible
// store works (AWS S3, MinIO, RustFS).
type ArchiveConfig struct {
	Enabled       bool
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	UsePathStyle  bool
	Prefix        string
	Hour          int // UTC hour the previous day is archived at
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LICENSEHUB_ prefix (e.g., LICENSEHUB_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("LICENSEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("usage.enabled", true)
	v.SetDefault("usage.enforce_limits", true)
	v.SetDefault("archive.hour", 2)
	v.SetDefault("archive.use_path_style", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                  v.GetString("jwt.secret"),
			Issuer:                  v.GetString("jwt.issuer"),
			AccessTokenExpiration:   v.GetDuration("jwt.access_token_expiration"),
			ImpersonationExpiration: v.GetDuration("jwt.impersonation_expiration"),
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
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:                v.GetBool("telemetry.enabled"),
			CollectorEndpoint:      v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:          v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:            v.GetString("telemetry.service_name"),
			Insecure:               v.GetBool("telemetry.insecure"),
			MetricsInterval:        v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:         v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:           v.GetBool("telemetry.db_log_full_sql"),
			ProfilingEnabled:       v.GetBool("telemetry.profiling_enabled"),
			ProfilingServerAddress: v.GetString("telemetry.profiling_server_address"),
		},
		Entitlement: EntitlementConfig{
			MasterLicenseKey:  v.GetString("entitlement.master_license_key"),
			KeygenMaxAttempts: v.GetInt("entitlement.keygen_max_attempts"),
			ProductKeyLength:  v.GetInt("entitlement.product_key_length"),
			LegacyProduct:     v.GetString("entitlement.legacy_product"),
		},
		Usage: UsageConfig{
			Enabled:       v.GetBool("usage.enabled"),
			EnforceLimits: v.GetBool("usage.enforce_limits"),
			WriteTimeout:  v.GetDuration("usage.write_timeout"),
			SkipPaths:     v.GetStringSlice("usage.skip_paths"),
		},
		Archive: ArchiveConfig{
			Enabled:       v.GetBool("archive.enabled"),
			Endpoint:      v.GetString("archive.endpoint"),
			Region:        v.GetString("archive.region"),
			Bucket:        v.GetString("archive.bucket"),
			AccessKey:     v.GetString("archive.access_key"),
			SecretKey:     v.GetString("archive.secret_key"),
			UseSSL:        v.GetBool("archive.use_ssl"),
			UsePathStyle:  v.GetBool("archive.use_path_style"),
			Prefix:        v.GetString("archive.prefix"),
			Hour:          v.GetInt("archive.hour"),
			JobTimeout:    v.GetDuration("archive.job_timeout"),
			RetryAttempts: v.GetInt("archive.retry_attempts"),
			RetryDelay:    v.GetDuration("archive.retry_delay"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "licensehub"
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
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "licensehub.db"
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
		cfg.Database.DBName = "licensehub"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
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
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "licensehub"
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 12 * time.Hour
	}
	if cfg.JWT.ImpersonationExpiration == 0 {
		cfg.JWT.ImpersonationExpiration = 30 * time.Minute
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
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	// No default for CORS origins: an empty list allows no cross-origin requests.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Product-Key"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "licensehub"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Entitlement.KeygenMaxAttempts == 0 {
		cfg.Entitlement.KeygenMaxAttempts = 10
	}
	if cfg.Entitlement.ProductKeyLength == 0 {
		cfg.Entitlement.ProductKeyLength = 32
	}
	if cfg.Entitlement.LegacyProduct == "" {
		cfg.Entitlement.LegacyProduct = "chatbot"
	}
	cfg.Entitlement.MasterLicenseKey = strings.ToUpper(strings.TrimSpace(cfg.Entitlement.MasterLicenseKey))
	if cfg.Usage.WriteTimeout == 0 {
		cfg.Usage.WriteTimeout = 2 * time.Second
	}
	if len(cfg.Usage.SkipPaths) == 0 {
		cfg.Usage.SkipPaths = []string{"/health"}
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = "us-east-1"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "audit"
	}
	if cfg.Archive.JobTimeout == 0 {
		cfg.Archive.JobTimeout = 10 * time.Minute
	}
	if cfg.Archive.RetryAttempts == 0 {
		cfg.Archive.RetryAttempts = 3
	}
	if cfg.Archive.RetryDelay == 0 {
		cfg.Archive.RetryDelay = 5 * time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
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

	if c.Entitlement.KeygenMaxAttempts < 1 || c.Entitlement.KeygenMaxAttempts > 100 {
		return fmt.Errorf("entitlement.keygen_max_attempts must be between 1 and 100, got %d", c.Entitlement.KeygenMaxAttempts)
	}
	if c.Entitlement.ProductKeyLength < 16 || c.Entitlement.ProductKeyLength > 64 {
		return fmt.Errorf("entitlement.product_key_length must be between 16 and 64, got %d", c.Entitlement.ProductKeyLength)
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("database.driver must be postgres in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Entitlement.MasterLicenseKey == "" {
			return fmt.Errorf("entitlement.master_license_key is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" || c.Archive.AccessKey == "" || c.Archive.SecretKey == "" {
			return fmt.Errorf("archive.bucket, archive.access_key and archive.secret_key are required when the archive is enabled")
		}
		if c.Archive.Hour < 0 || c.Archive.Hour > 23 {
			return fmt.Errorf("archive.hour must be between 0 and 23, got %d", c.Archive.Hour)
		}
	}

	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingServerAddress == "" {
		return fmt.Errorf("telemetry.profiling_server_address is required when profiling is enabled")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
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
