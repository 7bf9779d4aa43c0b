package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kirinyoku/tripgo/internal/service/routing"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    string         `yaml:"store"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Events   EventsConfig   `yaml:"events"`
	Payment  PaymentConfig  `yaml:"payment"`
	Booking  BookingConfig  `yaml:"booking"`
	Routing  routing.Config `yaml:"routing"`
	LogLevel string         `yaml:"log_level"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	// Disabled runs without cache, rate limiting and idempotency.
	Disabled bool `yaml:"disabled"`
}

type PostgresConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

// DSN renders the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSLMode,
	)
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type EventsConfig struct {
	// Sink is one of kafka, redis, both or none.
	Sink           string        `yaml:"sink"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type PaymentConfig struct {
	// Provider is stripe or mock.
	Provider        string        `yaml:"provider"`
	SecretKey       string        `yaml:"secret_key"`
	SuccessURL      string        `yaml:"success_url"`
	CancelURL       string        `yaml:"cancel_url"`
	Currency        string        `yaml:"currency"`
	MinChargeMinor  int64         `yaml:"min_charge_minor"`
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerOpenFor  time.Duration `yaml:"breaker_open_for"`
}

type BookingConfig struct {
	PendingTTL         time.Duration `yaml:"pending_ttl"`
	MaxPaymentAttempts int           `yaml:"max_payment_attempts"`
	CommissionRateBps  int           `yaml:"commission_rate_bps"`
	ExpireInterval     time.Duration `yaml:"expire_interval"`
	// CreateLimit bookings per customer per CreateWindow.
	CreateLimit  int           `yaml:"create_limit"`
	CreateWindow time.Duration `yaml:"create_window"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	IdemTTL      time.Duration `yaml:"idempotency_ttl"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "localhost", Port: 8080},
		Store:  "postgres",
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "tripgo.bookings"},
		Events: EventsConfig{
			Sink:           "redis",
			PublishTimeout: 3 * time.Second,
		},
		Payment: PaymentConfig{
			Provider:        "mock",
			SuccessURL:      "http://localhost:3000/bookings/{booking_id}/paid?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:       "http://localhost:3000/bookings/{booking_id}",
			Currency:        "usd",
			MinChargeMinor:  50,
			Timeout:         10 * time.Second,
			BreakerFailures: 5,
			BreakerOpenFor:  30 * time.Second,
		},
		Booking: BookingConfig{
			PendingTTL:         24 * time.Hour,
			MaxPaymentAttempts: 5,
			CommissionRateBps:  1000,
			ExpireInterval:     5 * time.Minute,
			CreateLimit:        10,
			CreateWindow:       time.Minute,
			CacheTTL:           5 * time.Minute,
			IdemTTL:            2 * time.Hour,
		},
		Routing: routing.Config{
			LargePartyThreshold:  8,
			MaxSelfServiceNights: 21,
			SuggestionCount:      3,
			SuggestionHorizon:    60,
		},
		LogLevel: "info",
	}
}

// New builds the configuration from defaults, then the YAML file named by
// CONFIG_PATH if set, then environment variables (a .env file is loaded first).
func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

func applyEnv(cfg *Config) error {
	envString(&cfg.Server.Host, "SERVER_HOST")
	envString(&cfg.Store, "STORE")
	envString(&cfg.Postgres.Host, "POSTGRES_HOST")
	envString(&cfg.Postgres.User, "POSTGRES_USER")
	envString(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	envString(&cfg.Postgres.Name, "POSTGRES_DB")
	envString(&cfg.Postgres.SSLMode, "POSTGRES_SSLMODE")
	envString(&cfg.Redis.Addr, "REDIS_ADDR")
	envString(&cfg.Redis.Password, "REDIS_PASSWORD")
	envString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
	envString(&cfg.Events.Sink, "EVENTS_SINK")
	envString(&cfg.Payment.Provider, "PAYMENT_PROVIDER")
	envString(&cfg.Payment.SecretKey, "STRIPE_SECRET_KEY")
	envString(&cfg.Payment.SuccessURL, "PAYMENT_SUCCESS_URL")
	envString(&cfg.Payment.CancelURL, "PAYMENT_CANCEL_URL")
	envString(&cfg.Payment.Currency, "PAYMENT_CURRENCY")
	envString(&cfg.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SERVER_PORT", &cfg.Server.Port},
		{"POSTGRES_PORT", &cfg.Postgres.Port},
		{"REDIS_DB", &cfg.Redis.DB},
		{"REDIS_POOL_SIZE", &cfg.Redis.PoolSize},
		{"MAX_PAYMENT_ATTEMPTS", &cfg.Booking.MaxPaymentAttempts},
		{"COMMISSION_RATE_BPS", &cfg.Booking.CommissionRateBps},
		{"BOOKING_CREATE_LIMIT", &cfg.Booking.CreateLimit},
		{"LARGE_PARTY_THRESHOLD", &cfg.Routing.LargePartyThreshold},
		{"MAX_SELF_SERVICE_NIGHTS", &cfg.Routing.MaxSelfServiceNights},
	}
	for _, e := range ints {
		if err := envInt(e.dst, e.key); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PAYMENT_TIMEOUT", &cfg.Payment.Timeout},
		{"BOOKING_PENDING_TTL", &cfg.Booking.PendingTTL},
		{"BOOKING_EXPIRE_INTERVAL", &cfg.Booking.ExpireInterval},
	}
	for _, e := range durations {
		if err := envDuration(e.dst, e.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("PAYMENT_MIN_CHARGE_MINOR"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid PAYMENT_MIN_CHARGE_MINOR: %w", err)
		}
		cfg.Payment.MinChargeMinor = n
	}

	if v := os.Getenv("REDIS_DISABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DISABLED: %w", err)
		}
		cfg.Redis.Disabled = b
	}

	return nil
}

func (c *Config) validate() error {
	switch c.Store {
	case "postgres":
		if c.Postgres.User == "" {
			return fmt.Errorf("missing POSTGRES_USER")
		}
		if c.Postgres.Password == "" {
			return fmt.Errorf("missing POSTGRES_PASSWORD")
		}
		if c.Postgres.Name == "" {
			return fmt.Errorf("missing POSTGRES_DB")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid STORE %q: want postgres or memory", c.Store)
	}

	switch c.Payment.Provider {
	case "stripe":
		if c.Payment.SecretKey == "" {
			return fmt.Errorf("missing STRIPE_SECRET_KEY")
		}
	case "mock":
	default:
		return fmt.Errorf("invalid PAYMENT_PROVIDER %q: want stripe or mock", c.Payment.Provider)
	}

	switch c.Events.Sink {
	case "kafka", "both":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("missing KAFKA_BROKERS")
		}
	case "redis", "none":
	default:
		return fmt.Errorf("invalid EVENTS_SINK %q: want kafka, redis, both or none", c.Events.Sink)
	}

	if c.Booking.CommissionRateBps < 0 || c.Booking.CommissionRateBps > 10000 {
		return fmt.Errorf("invalid COMMISSION_RATE_BPS %d: want 0..10000", c.Booking.CommissionRateBps)
	}

	return nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}

	*dst = n
	return nil
}

func envDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}

	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
