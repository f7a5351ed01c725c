package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"balance-ledger/pkg/ledger"
)

// Config configures the in-memory store.
type Config struct {
	// LockTimeout bounds the wait for an account row lock (default: 5s)
	LockTimeout time.Duration

	// Now is the clock used for CreatedAt and UpdatedAt (default: time.Now)
	Now func() time.Time
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		LockTimeout: 5 * time.Second,
		Now:         time.Now,
	}
}

// Store is a non-durable ledger.Store. Units of work stage their writes and
// publish them atomically on commit; snapshots hold a read lock.
type Store struct {
	mu         sync.RWMutex
	accounts   map[string]ledger.Account
	principals map[string]string
	operations map[string][]ledger.Operation
	nextID     int64
	closed     bool

	rows   *ledger.Locker
	config Config
}

// NewStore creates an empty store.
func NewStore(config Config) *Store {
	if config.LockTimeout <= 0 {
		config.LockTimeout = 5 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Store{
		accounts:   make(map[string]ledger.Account),
		principals: make(map[string]string),
		operations: make(map[string][]ledger.Operation),
		rows:       ledger.NewLocker(),
		config:     config,
	}
}

var errClosed = fmt.Errorf("memory: store closed: %w", ledger.ErrStorageFault)

// InTx runs fn in a unit of work. Staged writes are published only when fn
// returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ledger.Tx) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	t := newTx(s)
	defer t.release()

	if err := fn(t); err != nil {
		return err
	}
	return s.commit(t)
}

// Snapshot runs fn under a read lock, so every read in fn sees one state.
func (s *Store) Snapshot(ctx context.Context, fn func(ledger.Reader) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.view()
	return fn(reader{with: func(read func(*view) error) error { return read(v) }})
}

// CreateAccount stores a new account. Principals are unique, case-insensitive.
func (s *Store) CreateAccount(ctx context.Context, account ledger.NewAccount) (*ledger.Account, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return nil, fmt.Errorf("account %s: %w", account.ID, ledger.ErrAlreadyExists)
	}
	key := principalKey(account.Principal)
	if key != "" {
		if _, ok := s.principals[key]; ok {
			return nil, fmt.Errorf("principal %s: %w", account.Principal, ledger.ErrAlreadyExists)
		}
	}

	now := s.config.Now()
	created := ledger.Account{
		ID:        account.ID,
		Principal: account.Principal,
		Balance:   account.InitialBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[account.ID] = created
	if key != "" {
		s.principals[key] = account.ID
	}

	return &created, nil
}

// DeleteAccount removes the account and all its operations.
func (s *Store) DeleteAccount(ctx context.Context, accountID string) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	release, err := s.rows.Acquire(ctx, accountID, s.config.LockTimeout)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, ledger.ErrAccountNotFound)
	}
	delete(s.accounts, accountID)
	delete(s.operations, accountID)
	if key := principalKey(account.Principal); key != "" {
		delete(s.principals, key)
	}
	return nil
}

// ResolvePrincipal implements ledger.Resolver.
func (s *Store) ResolvePrincipal(ctx context.Context, principal string) (string, error) {
	var id string
	err := s.Snapshot(ctx, func(r ledger.Reader) error {
		account, err := r.FindAccountByPrincipal(ctx, principal)
		if err != nil {
			return err
		}
		id = account.ID
		return nil
	})
	return id, err
}

// Close marks the store closed. Later calls fail with ledger.ErrStorageFault.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// view must be called with s.mu held.
func (s *Store) view() *view {
	return &view{
		accounts:   s.accounts,
		principals: s.principals,
		operations: s.operations,
	}
}

func (s *Store) allocateID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

func (s *Store) commit(t *tx) error {
	if len(t.balances) == 0 && len(t.appended) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	for id := range t.balances {
		if _, ok := s.accounts[id]; !ok {
			return fmt.Errorf("account %s: %w", id, ledger.ErrAccountNotFound)
		}
	}

	now := s.config.Now()
	for id, balance := range t.balances {
		account := s.accounts[id]
		account.Balance = balance
		account.UpdatedAt = now
		s.accounts[id] = account
	}
	for _, op := range t.appended {
		s.operations[op.AccountID] = append(s.operations[op.AccountID], op)
	}
	return nil
}

func principalKey(principal string) string {
	return strings.ToLower(strings.TrimSpace(principal))
}

var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.Resolver = (*Store)(nil)
)
