// Package config assembles the service configuration from the environment,
// loading a .env file first when one is present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"balance-ledger/pkg/ledger"
	"balance-ledger/pkg/store/postgres"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// Backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	QueueMemory = "memory"
	QueueRedis  = "redis"
	QueueKafka  = "kafka"
)

// Config is the configuration of the ledger service and CLI.
type Config struct {
	Port int

	// Store selects the ledger store: memory or postgres (LEDGER_STORE)
	Store    string
	Postgres postgres.Config

	// Queue selects the dispatch queue: memory, redis or kafka (LEDGER_QUEUE)
	Queue        string
	RedisAddr    string
	KafkaBrokers []string
	// EventsTopic receives ledger events when Kafka brokers are configured
	EventsTopic string

	MaxAmount   decimal.Decimal
	LockTimeout time.Duration

	DispatchWorkers     int
	DispatchMaxAttempts int
	DispatchRetryBase   time.Duration

	// CacheTTL is the lifetime of cached reports; 0 disables the cache
	CacheTTL time.Duration
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		Port:                8080,
		Store:               StoreMemory,
		Postgres:            postgres.DefaultConfig(),
		Queue:               QueueMemory,
		EventsTopic:         "ledger.events",
		MaxAmount:           ledger.DefaultMaxAmount,
		LockTimeout:         5 * time.Second,
		DispatchWorkers:     2,
		DispatchMaxAttempts: 5,
		DispatchRetryBase:   100 * time.Millisecond,
		CacheTTL:            5 * time.Minute,
	}
}

// Load reads the given env files (".env" when none are named) and then the
// environment. Missing files are ignored; variables already set win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment and
// validates it.
func FromEnv() (Config, error) {
	c := Default()
	p := &parser{}

	c.Port = p.int("PORT", c.Port)
	c.Store = strings.ToLower(p.string("LEDGER_STORE", c.Store))
	c.Queue = strings.ToLower(p.string("LEDGER_QUEUE", c.Queue))

	c.Postgres.DSN = p.string("POSTGRES_DSN", c.Postgres.DSN)
	c.Postgres.Host = p.string("POSTGRES_HOST", c.Postgres.Host)
	c.Postgres.Port = p.int("POSTGRES_PORT", c.Postgres.Port)
	c.Postgres.User = p.string("POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = p.string("POSTGRES_PASSWORD", c.Postgres.Password)
	c.Postgres.Database = p.string("POSTGRES_DB", c.Postgres.Database)
	c.Postgres.SSLMode = p.string("POSTGRES_SSLMODE", c.Postgres.SSLMode)
	c.Postgres.MaxOpenConns = p.int("POSTGRES_MAX_OPEN_CONNS", c.Postgres.MaxOpenConns)

	c.RedisAddr = p.string("REDIS_ADDR", c.RedisAddr)
	if brokers := p.string("KAFKA_BROKERS", ""); brokers != "" {
		c.KafkaBrokers = splitList(brokers)
	}
	c.EventsTopic = p.string("KAFKA_EVENTS_TOPIC", c.EventsTopic)

	c.MaxAmount = p.decimal("LEDGER_MAX_AMOUNT", c.MaxAmount)
	c.LockTimeout = p.duration("LEDGER_LOCK_TIMEOUT", c.LockTimeout)
	c.Postgres.LockTimeout = c.LockTimeout

	c.DispatchWorkers = p.int("DISPATCH_WORKERS", c.DispatchWorkers)
	c.DispatchMaxAttempts = p.int("DISPATCH_MAX_ATTEMPTS", c.DispatchMaxAttempts)
	c.DispatchRetryBase = p.duration("DISPATCH_RETRY_BASE", c.DispatchRetryBase)
	c.CacheTTL = p.duration("CACHE_TTL", c.CacheTTL)

	if p.errs != nil {
		return Config{}, p.errs
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every invalid value at once.
func (c Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("config: "+format, args...))
	}

	if c.Port <= 0 || c.Port > 65535 {
		add("PORT %d out of range", c.Port)
	}
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		add("LEDGER_STORE %q must be memory or postgres", c.Store)
	}
	switch c.Queue {
	case QueueMemory:
	case QueueRedis:
		if c.RedisAddr == "" {
			add("LEDGER_QUEUE=redis requires REDIS_ADDR")
		}
	case QueueKafka:
		if len(c.KafkaBrokers) == 0 {
			add("LEDGER_QUEUE=kafka requires KAFKA_BROKERS")
		}
	default:
		add("LEDGER_QUEUE %q must be memory, redis or kafka", c.Queue)
	}
	if !c.MaxAmount.IsPositive() {
		add("LEDGER_MAX_AMOUNT must be positive")
	}
	if c.LockTimeout <= 0 {
		add("LEDGER_LOCK_TIMEOUT must be positive")
	}
	if c.DispatchWorkers <= 0 {
		add("DISPATCH_WORKERS must be positive")
	}
	if c.DispatchMaxAttempts <= 0 {
		add("DISPATCH_MAX_ATTEMPTS must be positive")
	}
	if c.DispatchRetryBase <= 0 {
		add("DISPATCH_RETRY_BASE must be positive")
	}
	if c.CacheTTL < 0 {
		add("CACHE_TTL must not be negative")
	}
	return errs
}

// parser reads typed variables and collects the parse failures.
type parser struct {
	errs error
}

func (p *parser) string(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := p.string(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = multierr.Append(p.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.string(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = multierr.Append(p.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v := p.string(key, "")
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		p.errs = multierr.Append(p.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
