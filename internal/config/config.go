package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	AMQP      AMQPConfig `mapstructure:"amqp"`
	Telemetry TelemetryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	RateLimit       float64       `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst       int           `mapstructure:"rate_burst" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DebugRoutes     bool          `mapstructure:"debug_routes"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

type StoreConfig struct {
	Driver    string `mapstructure:"driver" validate:"oneof=redis postgres"`
	Namespace string `mapstructure:"namespace"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required"`
	Issuer    string `mapstructure:"issuer"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type TelemetryConfig struct {
	ServiceName   string `mapstructure:"service_name" validate:"required"`
	Environment   string `mapstructure:"environment"`
	TraceExporter string `mapstructure:"trace_exporter" validate:"oneof=none otlp"`
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	SentryDSN     string `mapstructure:"sentry_dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Load reads ./config/config.yaml (optional), applies defaults and environment overrides and
// validates the result.
func Load() (*Config, error) {
	return LoadFrom("./config")
}

// LoadFrom is Load with an explicit config directory.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8083)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug_routes", false)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("store.driver", "redis")
	v.SetDefault("store.namespace", "friendchat")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "friendchat.events")
	v.SetDefault("telemetry.service_name", "friendchat-service")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.trace_exporter", "none")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.rate_limit", "RATE_LIMIT")
	_ = v.BindEnv("server.rate_burst", "RATE_BURST")
	_ = v.BindEnv("server.debug_routes", "DEBUG_ROUTES")
	_ = v.BindEnv("server.trusted_proxies", "TRUSTED_PROXIES")
	_ = v.BindEnv("store.driver", "STORE_DRIVER")
	_ = v.BindEnv("store.namespace", "STORE_NAMESPACE")
	_ = v.BindEnv("database.dsn", "DB_DSN")
	_ = v.BindEnv("database.max_open_conns", "DB_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.max_idle_conns", "DB_MAX_IDLE_CONNS")
	_ = v.BindEnv("redis.address", "REDIS_ADDRESS")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.issuer", "JWT_ISSUER")
	_ = v.BindEnv("amqp.url", "AMQP_URL")
	_ = v.BindEnv("amqp.exchange", "AMQP_EXCHANGE")
	_ = v.BindEnv("telemetry.service_name", "SERVICE_NAME")
	_ = v.BindEnv("telemetry.environment", "ENVIRONMENT")
	_ = v.BindEnv("telemetry.trace_exporter", "TRACE_EXPORTER")
	_ = v.BindEnv("telemetry.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("telemetry.sentry_dsn", "SENTRY_DSN")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.pretty", "LOG_PRETTY")
}

var validate = validator.New()

// Validate checks field constraints and the cross-section ones the struct tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Driver == "postgres" && c.Database.DSN == "" {
		return errors.New("invalid config: database.dsn is required for the postgres store")
	}
	return nil
}
