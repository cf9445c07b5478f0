// Package config предоставялет структуры и функции для парсинга и загрузки конфига.
// Конфиг читается один раз при старте и передаётся компонентам явно.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Поддерживаемые драйверы хранилища и бэкенды кеша.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"

	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env" env-default:"local"`
	Storage         `yaml:"storage"`
	QueryCache      `yaml:"query_cache"`
	Instrumentation `yaml:"instrumentation"`
	RedisConnection `yaml:"redis_connection"`
	HTTPServer      `yaml:"http_server"`
	Auth            `yaml:"auth"`
	Notifications   `yaml:"notifications"`
	Tracing         `yaml:"tracing"`
}

// Storage структура для настройки подключения к базе и пула соединений
type Storage struct {
	Driver           string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"pgx"`
	ConnectionString string `yaml:"connection_string" env:"STORAGE_CONNECTION_STRING"`
	PoolSize         int    `yaml:"pool_size" env:"STORAGE_POOL_SIZE" env-default:"5"`
	SkipMigrations   bool   `yaml:"skip_migrations" env:"STORAGE_SKIP_MIGRATIONS"`
}

// QueryCache структура для настройки кеша SELECT-запросов
type QueryCache struct {
	Backend   string        `yaml:"backend" env:"QUERY_CACHE_BACKEND" env-default:"memory"`
	TTL       time.Duration `yaml:"ttl" env:"QUERY_CACHE_TTL" env-default:"15s"`
	KeyPrefix string        `yaml:"key_prefix" env-default:"datagate:query:"`
}

// Instrumentation структура для настройки логирования запросов.
// Логирование включено по умолчанию, DisableQueryLog его выключает.
type Instrumentation struct {
	DisableQueryLog    bool          `yaml:"disable_query_log" env:"DB_DISABLE_QUERY_LOG"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" env:"DB_SLOW_QUERY_THRESHOLD" env-default:"250ms"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// HTTPServer структура для настройки служебного сервера (health, metrics)
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Auth структура со сроками жизни сессий, токенов и подписок
type Auth struct {
	SessionTTL       time.Duration `yaml:"session_ttl" env-default:"24h"`
	ResetTokenTTL    time.Duration `yaml:"reset_token_ttl" env-default:"1h"`
	SubscriptionDays int           `yaml:"subscription_days" env-default:"30"`
	BcryptCost       int           `yaml:"bcrypt_cost" env-default:"10"`
}

// Notifications структура для публикации уведомлений в RabbitMQ.
// Пустой AMQPURL означает, что уведомления только логируются.
type Notifications struct {
	AMQPURL    string `yaml:"amqp_url" env:"AMQP_URL"`
	Exchange   string `yaml:"exchange" env-default:"notifications"`
	RoutingKey string `yaml:"routing_key" env-default:"password_reset"`
}

// Tracing структура для настройки экспорта трейсов
type Tracing struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env-default:"datagate"`
}

// Load читает конфиг из файла path и проверяет его.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига по пути из CONFIG_PATH, завершает процесс при ошибке
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Validate проверяет значения, без которых слой доступа к данным не может стартовать.
func (c *Config) Validate() error {
	var errs []error
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Driver))
	}
	if c.ConnectionString == "" {
		errs = append(errs, errors.New("storage connection string is empty"))
	}
	if c.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("pool size must be positive, got %d", c.PoolSize))
	}
	switch c.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.AddressRedis == "" {
			errs = append(errs, errors.New("redis cache backend requires redis_connection.addressredis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown query cache backend %q", c.Backend))
	}
	if c.TTL <= 0 {
		errs = append(errs, fmt.Errorf("query cache ttl must be positive, got %s", c.TTL))
	}
	return errors.Join(errs...)
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"  PoolSize: %d\n"+
			"QueryCache:\n"+
			"  Backend: %s\n"+
			"  TTL: %s\n"+
			"Instrumentation:\n"+
			"  DisableQueryLog: %t\n"+
			"  SlowQueryThreshold: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"Auth:\n"+
			"  SessionTTL: %s\n"+
			"  ResetTokenTTL: %s\n"+
			"  SubscriptionDays: %d\n",
		c.Env,
		c.Driver,
		c.PoolSize,
		c.Backend,
		c.TTL,
		c.DisableQueryLog,
		c.SlowQueryThreshold,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.SessionTTL,
		c.ResetTokenTTL,
		c.SubscriptionDays,
	)
}
