package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreCMS      = "cms"
	StorePostgres = "postgres"

	ProviderMercadoPago = "mercadopago"
	ProviderStripe      = "stripe"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	CMS       CMSConfig       `mapstructure:"cms"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Plans     PlansConfig     `mapstructure:"plans"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Hosting   HostingConfig   `mapstructure:"hosting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Workers   int             `mapstructure:"workers"`

	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

type AppConfig struct {
	Name      string `mapstructure:"name"`
	BaseURL   string `mapstructure:"base_url"`
	SecretKey string `mapstructure:"secret_key"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	RootDomain   string        `mapstructure:"root_domain"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// CMSConfig lists the content backend endpoints in priority order, typically
// the public URL first and the internal network address second.
type CMSConfig struct {
	URLs      []string      `mapstructure:"urls"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	VerifyTLS bool          `mapstructure:"verify_tls"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type PaymentConfig struct {
	Provider        string `mapstructure:"provider"`
	AccessToken     string `mapstructure:"access_token"`
	Currency        string `mapstructure:"currency"`
	NotificationURL string `mapstructure:"notification_url"`
}

type TierConfig struct {
	Plan       string `mapstructure:"plan"`
	Price      string `mapstructure:"price"`
	MinAmount  string `mapstructure:"min_amount"`
	GuestLimit int    `mapstructure:"guest_limit"`
}

type PlansConfig struct {
	FreeGuestLimit int          `mapstructure:"free_guest_limit"`
	Tiers          []TierConfig `mapstructure:"tiers"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type RabbitMQConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	RequireAuth bool          `mapstructure:"require_auth"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
	ResetExpiry time.Duration `mapstructure:"reset_expiry"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// HostingConfig points at the hosting panel that issues a domain and
// certificate for every new tenant subdomain.
type HostingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Token         string `mapstructure:"token"`
	ApplicationID string `mapstructure:"application_id"`
	Port          int    `mapstructure:"port"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type TelemetryConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Read from config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.App.BaseURL = strings.TrimRight(cfg.App.BaseURL, "/")

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "confras")
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.secret_key", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.root_domain", "")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_upload_mb", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("store.driver", StoreCMS)
	v.SetDefault("cms.urls", []string{})
	v.SetDefault("cms.token", "")
	v.SetDefault("cms.timeout", "5s")
	v.SetDefault("cms.verify_tls", true)
	v.SetDefault("database.url", "")

	v.SetDefault("payment.provider", ProviderMercadoPago)
	v.SetDefault("payment.access_token", "")
	v.SetDefault("payment.currency", "BRL")
	v.SetDefault("payment.notification_url", "")

	v.SetDefault("plans.free_guest_limit", 20)
	v.SetDefault("plans.tiers", []map[string]interface{}{
		{"plan": "plus", "price": "9.99", "min_amount": "9.99", "guest_limit": 50},
		{"plan": "pro", "price": "29.99", "min_amount": "29.99", "guest_limit": 500},
	})

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "Confras <nao-responda@confras.app>")

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("workers", 3)

	v.SetDefault("auth.require_auth", false)
	v.SetDefault("auth.token_expiry", "24h")
	v.SetDefault("auth.reset_expiry", "30m")

	v.SetDefault("ratelimit.requests", 30)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("hosting.enabled", false)
	v.SetDefault("hosting.url", "")
	v.SetDefault("hosting.token", "")
	v.SetDefault("hosting.application_id", "")
	v.SetDefault("hosting.port", 8080)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "confras")
	v.SetDefault("telemetry.collector_addr", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("graceful_shutdown_timeout", "30s")
}

func validateConfig(cfg *Config) error {
	if cfg.App.SecretKey == "" {
		return fmt.Errorf("app.secret_key is required")
	}

	switch cfg.Store.Driver {
	case StoreCMS:
		if len(cfg.CMS.URLs) == 0 {
			return fmt.Errorf("cms.urls is required when store.driver is %q", StoreCMS)
		}
	case StorePostgres:
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required when store.driver is %q", StorePostgres)
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q", StoreCMS, StorePostgres)
	}

	switch cfg.Payment.Provider {
	case ProviderMercadoPago, ProviderStripe:
	default:
		return fmt.Errorf("payment.provider must be %q or %q", ProviderMercadoPago, ProviderStripe)
	}

	if cfg.Hosting.Enabled {
		if cfg.Hosting.URL == "" || cfg.Hosting.Token == "" || cfg.Hosting.ApplicationID == "" {
			return fmt.Errorf("hosting.url, hosting.token and hosting.application_id are required when hosting is enabled")
		}
		if cfg.Server.RootDomain == "" {
			return fmt.Errorf("server.root_domain is required when hosting is enabled")
		}
	}

	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if cfg.CMS.Timeout <= 0 {
		return fmt.Errorf("cms.timeout must be positive")
	}

	return nil
}
