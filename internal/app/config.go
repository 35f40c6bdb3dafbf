package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/beliefpath-sync/internal/data/db"
	"github.com/yungbote/beliefpath-sync/internal/http/handlers"
	"github.com/yungbote/beliefpath-sync/internal/observability"
	"github.com/yungbote/beliefpath-sync/internal/platform/envutil"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

type Config struct {
	Env      string         `yaml:"env"`
	HTTP     HTTPConfig     `yaml:"http"`
	DB       DBConfig       `yaml:"db"`
	Identity IdentityConfig `yaml:"identity"`
	Sync     SyncConfig     `yaml:"sync"`
	Redis    RedisConfig    `yaml:"redis"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Otel     OtelConfig     `yaml:"otel"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type DBConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlite_path"`
}

func (c DBConfig) toDB() db.Config {
	return db.Config{
		Driver:     c.Driver,
		Host:       c.Host,
		Port:       c.Port,
		User:       c.User,
		Password:   c.Password,
		Name:       c.Name,
		SSLMode:    c.SSLMode,
		SQLitePath: c.SQLitePath,
	}
}

type IdentityConfig struct {
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSTTL      time.Duration `yaml:"jwks_ttl"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// TrustClientHeader accepts X-External-User-Id without a token. Local
	// development only.
	TrustClientHeader bool `yaml:"trust_client_header"`
}

type SyncConfig struct {
	TxRetries int `yaml:"tx_retries"`
	// Serializable nil means "on for postgres".
	Serializable *bool         `yaml:"serializable"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type OtelConfig struct {
	Enabled     bool              `yaml:"enabled"`
	ServiceName string            `yaml:"service_name"`
	Version     string            `yaml:"version"`
	Endpoint    string            `yaml:"endpoint"`
	Headers     map[string]string `yaml:"headers"`
	Insecure    bool              `yaml:"insecure"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

func defaultConfig() Config {
	return Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    handlers.DefaultMaxBodyBytes,
		},
		DB: DBConfig{
			Driver:  db.DriverPostgres,
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "beliefpath",
			SSLMode: "disable",
		},
		Identity: IdentityConfig{
			Issuer:       "https://appleid.apple.com",
			JWKSURL:      "https://appleid.apple.com/auth/keys",
			JWKSTTL:      6 * time.Hour,
			FetchTimeout: 5 * time.Second,
		},
		Sync: SyncConfig{
			TxRetries: 3,
			LockTTL:   10 * time.Second,
		},
		Otel: OtelConfig{
			ServiceName: "beliefpath-sync",
			SampleRatio: 1,
		},
	}
}

// LoadConfig builds the config from defaults, then the optional YAML file
// named by CONFIG_FILE, then the environment (including a .env file).
func LoadConfig(log *logger.Logger) (Config, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := loadDotEnv(log); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
		log.Info("config file loaded", "path", path)
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(log *logger.Logger) error {
	path := envutil.String("ENV_FILE", ".env")
	// Existing process env wins over the file.
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	log.Debug("env file loaded", "path", path)
	return nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("APP_ENV", cfg.Env)

	cfg.HTTP.Addr = envutil.String("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.ShutdownTimeout = envutil.Duration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout)
	cfg.HTTP.MaxBodyBytes = envutil.Int64("HTTP_MAX_BODY_BYTES", cfg.HTTP.MaxBodyBytes)

	cfg.DB.Driver = strings.ToLower(envutil.String("DB_DRIVER", cfg.DB.Driver))
	cfg.DB.Host = envutil.String("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = envutil.String("POSTGRES_PORT", cfg.DB.Port)
	cfg.DB.User = envutil.String("POSTGRES_USER", cfg.DB.User)
	cfg.DB.Password = envutil.String("POSTGRES_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = envutil.String("POSTGRES_NAME", cfg.DB.Name)
	cfg.DB.SSLMode = envutil.String("POSTGRES_SSLMODE", cfg.DB.SSLMode)
	cfg.DB.SQLitePath = envutil.String("SQLITE_PATH", cfg.DB.SQLitePath)

	cfg.Identity.Issuer = envutil.String("IDENTITY_ISSUER", cfg.Identity.Issuer)
	cfg.Identity.Audience = envutil.String("IDENTITY_AUDIENCE", cfg.Identity.Audience)
	cfg.Identity.JWKSURL = envutil.String("IDENTITY_JWKS_URL", cfg.Identity.JWKSURL)
	cfg.Identity.JWKSTTL = envutil.Duration("IDENTITY_JWKS_TTL", cfg.Identity.JWKSTTL)
	cfg.Identity.FetchTimeout = envutil.Duration("IDENTITY_FETCH_TIMEOUT", cfg.Identity.FetchTimeout)
	cfg.Identity.TrustClientHeader = envutil.Bool("AUTH_TRUST_CLIENT_HEADER", cfg.Identity.TrustClientHeader)

	cfg.Sync.TxRetries = envutil.Int("SYNC_TX_RETRIES", cfg.Sync.TxRetries)
	if strings.TrimSpace(os.Getenv("SYNC_SERIALIZABLE")) != "" {
		v := envutil.Bool("SYNC_SERIALIZABLE", cfg.SerializableTx())
		cfg.Sync.Serializable = &v
	}
	cfg.Sync.LockTTL = envutil.Duration("SYNC_LOCK_TTL", cfg.Sync.LockTTL)

	cfg.Redis.Addr = envutil.String("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Metrics.Addr = envutil.String("METRICS_ADDR", cfg.Metrics.Addr)

	cfg.Otel.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Otel.Enabled)
	cfg.Otel.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Otel.ServiceName)
	cfg.Otel.Version = envutil.String("OTEL_SERVICE_VERSION", cfg.Otel.Version)
	cfg.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Otel.Endpoint)
	cfg.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Otel.Insecure)
	cfg.Otel.SampleRatio = envutil.Float64("OTEL_SAMPLER_RATIO", cfg.Otel.SampleRatio)
	if h := observability.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); len(h) > 0 {
		if cfg.Otel.Headers == nil {
			cfg.Otel.Headers = map[string]string{}
		}
		for k, v := range h {
			cfg.Otel.Headers[k] = v
		}
	}
}

// SerializableTx reports whether sync transactions run at SERIALIZABLE.
// SQLite serializes writers on its own, so the setting only applies to postgres.
func (c Config) SerializableTx() bool {
	if c.DB.Driver != "" && c.DB.Driver != db.DriverPostgres {
		return false
	}
	if c.Sync.Serializable == nil {
		return true
	}
	return *c.Sync.Serializable
}

func (c Config) Validate() error {
	switch c.DB.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", db.DriverPostgres, db.DriverSQLite, c.DB.Driver)
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("HTTP_MAX_BODY_BYTES must be positive")
	}
	if c.Sync.TxRetries < 1 {
		return fmt.Errorf("SYNC_TX_RETRIES must be at least 1")
	}
	if strings.TrimSpace(c.Identity.Audience) == "" && !c.Identity.TrustClientHeader {
		return fmt.Errorf("IDENTITY_AUDIENCE is required unless AUTH_TRUST_CLIENT_HEADER is on")
	}
	if strings.TrimSpace(c.Identity.Audience) != "" {
		if strings.TrimSpace(c.Identity.Issuer) == "" {
			return fmt.Errorf("IDENTITY_ISSUER is required")
		}
		if strings.TrimSpace(c.Identity.JWKSURL) == "" {
			return fmt.Errorf("IDENTITY_JWKS_URL is required")
		}
	}
	return nil
}

func (o OtelConfig) toObservability(env string) observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:     o.Enabled,
		ServiceName: o.ServiceName,
		Environment: env,
		Version:     o.Version,
		Endpoint:    o.Endpoint,
		Headers:     o.Headers,
		Insecure:    o.Insecure,
		SampleRatio: o.SampleRatio,
	}
}
