// Package postgres implements ledger.Store on PostgreSQL through lib/pq.
//
// Account rows are locked with SELECT ... FOR UPDATE under a transaction-local
// lock_timeout, so a blocked apply fails with ledger.ErrContention instead of
// waiting forever. Reads run in REPEATABLE READ, READ ONLY transactions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"balance-ledger/pkg/ledger"

	_ "github.com/lib/pq"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// DSN overrides the individual connection fields when set
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// LockTimeout bounds the wait for an account row lock (default: 5s)
	LockTimeout time.Duration
}

// DefaultConfig returns default PostgreSQL configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "ledger",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		LockTimeout:     5 * time.Second,
	}
}

func (c Config) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Store is a ledger.Store backed by PostgreSQL.
type Store struct {
	db     *sql.DB
	config Config
}

// NewStore opens a connection pool, checks it and creates the schema if
// missing.
func NewStore(cfg Config) (*Store, error) {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}

	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{db: db, config: cfg}
	if err := s.initTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init tables: %w", err)
	}

	return s, nil
}

func (s *Store) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			principal TEXT,
			balance NUMERIC(15,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT clock_timestamp(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT clock_timestamp()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_principal ON accounts(lower(principal))`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_balance ON accounts(balance DESC)`,
		`CREATE TABLE IF NOT EXISTS operations (
			id BIGSERIAL PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			amount NUMERIC(15,2) NOT NULL CHECK (amount > 0),
			kind TEXT NOT NULL CHECK (kind IN ('deposit', 'withdraw')),
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_account_created ON operations(account_id, created_at, id)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	return nil
}

// InTx runs fn in a READ COMMITTED transaction with a local lock_timeout.
func (s *Store) InTx(ctx context.Context, fn func(ledger.Tx) error) error {
	return s.inTx(ctx, func(t *tx) error { return fn(t) })
}

func (s *Store) inTx(ctx context.Context, fn func(*tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err, "begin")
	}

	setTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.config.LockTimeout.Milliseconds())
	if _, err := sqlTx.ExecContext(ctx, setTimeout); err != nil {
		sqlTx.Rollback()
		return mapError(err, "set lock_timeout")
	}

	t := &tx{reader: reader{q: sqlTx}, sqlTx: sqlTx, locked: make(map[string]bool)}
	if err := fn(t); err != nil {
		sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapError(err, "commit")
	}
	return nil
}

// Snapshot runs fn in a REPEATABLE READ, READ ONLY transaction.
func (s *Store) Snapshot(ctx context.Context, fn func(ledger.Reader) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return mapError(err, "begin snapshot")
	}
	defer sqlTx.Rollback()

	return fn(reader{q: sqlTx})
}

// CreateAccount inserts a new account. Principals are unique,
// case-insensitive.
func (s *Store) CreateAccount(ctx context.Context, account ledger.NewAccount) (*ledger.Account, error) {
	principal := sql.NullString{String: strings.TrimSpace(account.Principal)}
	principal.Valid = principal.String != ""

	query := `
		INSERT INTO accounts (id, principal, balance)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`

	created := ledger.Account{
		ID:        account.ID,
		Principal: principal.String,
		Balance:   account.InitialBalance,
	}
	err := s.db.QueryRowContext(ctx, query, account.ID, principal, account.InitialBalance).
		Scan(&created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "account "+account.ID)
	}

	created.CreatedAt = created.CreatedAt.UTC()
	created.UpdatedAt = created.UpdatedAt.UTC()
	return &created, nil
}

// DeleteAccount removes the account. Its operations go with it through the
// ON DELETE CASCADE foreign key.
func (s *Store) DeleteAccount(ctx context.Context, accountID string) error {
	return s.inTx(ctx, func(t *tx) error {
		if _, err := t.LockAccount(ctx, accountID); err != nil {
			return err
		}
		if _, err := t.sqlTx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, accountID); err != nil {
			return mapError(err, "account "+accountID)
		}
		return nil
	})
}

// ResolvePrincipal implements ledger.Resolver.
func (s *Store) ResolvePrincipal(ctx context.Context, principal string) (string, error) {
	account, err := reader{q: s.db}.FindAccountByPrincipal(ctx, principal)
	if err != nil {
		return "", err
	}
	return account.ID, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.db.PingContext(ctx), "ping")
}

func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.Resolver = (*Store)(nil)
)
