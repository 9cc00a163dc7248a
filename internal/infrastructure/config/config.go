package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ProviderNames lists every provider section the gateway understands
var ProviderNames = []string{
	"meld", "onramp", "moonpay", "finchpay",
	"changelly", "exolix", "letsexchange", "simpleswap",
}

// Config holds all configuration for the application
type Config struct {
	Environment  string                    `mapstructure:"environment"`
	LogLevel     string                    `mapstructure:"log_level"`
	LogFile      LogFileConfig             `mapstructure:"log_file"`
	Server       ServerConfig              `mapstructure:"server"`
	Database     DatabaseConfig            `mapstructure:"database"`
	Redis        RedisConfig               `mapstructure:"redis"`
	JWT          JWTConfig                 `mapstructure:"jwt"`
	Auth         AuthConfig                `mapstructure:"auth"`
	Providers    map[string]ProviderConfig `mapstructure:"providers"`
	Transactions TransactionsConfig        `mapstructure:"transactions"`
	Idempotency  IdempotencyConfig         `mapstructure:"idempotency"`
	Workers      WorkerConfig              `mapstructure:"workers"`
	Messaging    MessagingConfig           `mapstructure:"messaging"`
	Tracing      TracingConfig             `mapstructure:"tracing"`
	Security     SecurityConfig            `mapstructure:"security"`
}

type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
	MaxBodyBytes    int64    `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// AuthConfig decides which routes need a bearer token. Entries are route
// patterns such as "meld/*" or "exolix/transactions", relative to /api/v1.
type AuthConfig struct {
	RequiredRoutes []string `mapstructure:"required_routes"`
	OptionalRoutes []string `mapstructure:"optional_routes"`
}

// ProviderConfig is one providers.<name> section
type ProviderConfig struct {
	Enabled                 bool          `mapstructure:"enabled"`
	BaseURL                 string        `mapstructure:"base_url"`
	APIKey                  string        `mapstructure:"api_key"`
	APISecret               string        `mapstructure:"api_secret"`
	WebhookSecret           string        `mapstructure:"webhook_secret"`
	AllowUnverifiedWebhooks bool          `mapstructure:"allow_unverified_webhooks"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	MaxRetries              int           `mapstructure:"max_retries"`
	RateLimitPerSec         float64       `mapstructure:"rate_limit_per_sec"`
	// WidgetURL and SellWidgetURL override hosted widget hosts
	WidgetURL               string        `mapstructure:"widget_url"`
	SellWidgetURL           string        `mapstructure:"sell_widget_url"`
	AffiliateID             string        `mapstructure:"affiliate_id"`
	DefaultCountry          string        `mapstructure:"default_country"`
	DefaultServiceProvider  string        `mapstructure:"default_service_provider"`
	CatalogTTL              time.Duration `mapstructure:"catalog_ttl"`
}

type TransactionsConfig struct {
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	DedupTTL         time.Duration `mapstructure:"dedup_ttl"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	FreshnessWindow  time.Duration `mapstructure:"freshness_window"`
	PendingTimeout   time.Duration `mapstructure:"pending_timeout"`
	PersistAnonymous bool          `mapstructure:"persist_anonymous"`
}

type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type WorkerConfig struct {
	StatusPoller StatusPollerConfig `mapstructure:"status_poller"`
}

type StatusPollerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Schedule       string        `mapstructure:"schedule"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxAge         time.Duration `mapstructure:"max_age"`
}

type MessagingConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

type SecurityConfig struct {
	SecretsProvider  string        `mapstructure:"secrets_provider"` // "env" or "aws_secrets_manager"
	AWSSecretsRegion string        `mapstructure:"aws_secrets_region"`
	AWSSecretsPrefix string        `mapstructure:"aws_secrets_prefix"`
	SecretsCacheTTL  time.Duration `mapstructure:"secrets_cache_ttl"`
}

// IsProduction returns true for production and staging
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "staging"
}

// Provider returns the named section, zero valued when absent
func (c *Config) Provider(name string) ProviderConfig {
	return c.Providers[name]
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file.max_size_mb", 100)
	v.SetDefault("log_file.max_backups", 5)
	v.SetDefault("log_file.max_age_days", 30)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_min", 120)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "gateway_service")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("jwt.issuer", "gateway_service")

	v.SetDefault("auth.required_routes", []string{
		"meld/*",
		"exolix/transactions",
		"transactions/*",
	})

	for _, name := range ProviderNames {
		v.SetDefault("providers."+name+".enabled", true)
		v.SetDefault("providers."+name+".timeout", "30s")
		v.SetDefault("providers."+name+".max_retries", 3)
	}
	v.SetDefault("providers.meld.timeout", "20s")
	v.SetDefault("providers.meld.default_country", "US")

	v.SetDefault("transactions.cache_ttl", "24h")
	v.SetDefault("transactions.dedup_ttl", "168h")
	v.SetDefault("transactions.lock_ttl", "10s")
	v.SetDefault("transactions.freshness_window", "2m")
	v.SetDefault("transactions.pending_timeout", "30m")
	v.SetDefault("transactions.persist_anonymous", false)

	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("idempotency.ttl", "24h")

	v.SetDefault("workers.status_poller.enabled", true)
	v.SetDefault("workers.status_poller.schedule", "@every 1m")
	v.SetDefault("workers.status_poller.batch_size", 100)
	v.SetDefault("workers.status_poller.max_concurrency", 5)
	v.SetDefault("workers.status_poller.max_age", "24h")

	v.SetDefault("messaging.enabled", false)
	v.SetDefault("messaging.topic", "gateway.transaction-status")
	v.SetDefault("messaging.client_id", "gateway_service")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.collector_url", "localhost:4317")
	v.SetDefault("tracing.sample_rate", 0.1)

	v.SetDefault("security.secrets_provider", "env")
	v.SetDefault("security.aws_secrets_region", "us-east-1")
	v.SetDefault("security.aws_secrets_prefix", "gateway/")
	v.SetDefault("security.secrets_cache_ttl", "5m")
}

func overrideFromEnv(v *viper.Viper) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("server.port", p)
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		v.Set("database.url", dbURL)
	}
	if redisURL := os.Getenv("REDIS_HOST"); redisURL != "" {
		v.Set("redis.host", redisURL)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		v.Set("redis.password", redisPassword)
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		v.Set("jwt.secret", jwtSecret)
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		v.Set("messaging.brokers", splitList(brokers))
		v.Set("messaging.enabled", true)
	}

	// <PROVIDER>_API_KEY, <PROVIDER>_API_SECRET, <PROVIDER>_WEBHOOK_SECRET
	for _, name := range ProviderNames {
		prefix := strings.ToUpper(name) + "_"
		for env, key := range map[string]string{
			"API_KEY":        "api_key",
			"API_SECRET":     "api_secret",
			"WEBHOOK_SECRET": "webhook_secret",
			"BASE_URL":       "base_url",
		} {
			if val := os.Getenv(prefix + env); val != "" {
				v.Set("providers."+name+"."+key, val)
			}
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func validate(config *Config) error {
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}

	if config.Transactions.PendingTimeout <= config.Transactions.FreshnessWindow {
		return fmt.Errorf("transactions.pending_timeout must exceed transactions.freshness_window")
	}

	for name := range config.Providers {
		if !isKnownProvider(name) {
			return fmt.Errorf("unknown provider section %q", name)
		}
	}

	if config.Messaging.Enabled && len(config.Messaging.Brokers) == 0 {
		return fmt.Errorf("messaging.brokers is required when messaging is enabled")
	}

	switch config.Security.SecretsProvider {
	case "", "env", "aws_secrets_manager":
	default:
		return fmt.Errorf("unsupported secrets provider %q", config.Security.SecretsProvider)
	}

	return nil
}

func isKnownProvider(name string) bool {
	for _, n := range ProviderNames {
		if n == name {
			return true
		}
	}
	return false
}

// ProviderCredentials is the JSON document stored per provider in the
// secrets backend
type ProviderCredentials struct {
	APIKey        string `json:"api_key"`
	APISecret     string `json:"api_secret"`
	WebhookSecret string `json:"webhook_secret"`
}

// SecretSource reads a JSON secret by key
type SecretSource interface {
	GetSecretJSON(ctx context.Context, key string, v interface{}) error
}

// ApplySecrets fills provider credentials from the secrets backend. Values
// already present in the file or environment win. A missing secret is
// reported through onMissing and skipped.
func (c *Config) ApplySecrets(ctx context.Context, src SecretSource, onMissing func(provider string, err error)) {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for _, name := range ProviderNames {
		pc := c.Providers[name]
		if !pc.Enabled {
			continue
		}
		var creds ProviderCredentials
		if err := src.GetSecretJSON(ctx, "providers/"+name, &creds); err != nil {
			if onMissing != nil {
				onMissing(name, err)
			}
			continue
		}
		if pc.APIKey == "" {
			pc.APIKey = creds.APIKey
		}
		if pc.APISecret == "" {
			pc.APISecret = creds.APISecret
		}
		if pc.WebhookSecret == "" {
			pc.WebhookSecret = creds.WebhookSecret
		}
		c.Providers[name] = pc
	}
}
