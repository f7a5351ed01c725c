package resilience

import (
	"context"
	"fmt"

	"balance-ledger/pkg/ledger"
	"balance-ledger/pkg/logging"
	"balance-ledger/pkg/metrics"
)

var (
	errStoreOpen    = fmt.Errorf("%w: circuit open", ledger.ErrStorageFault)
	errStoreTimeout = fmt.Errorf("%w: timed out", ledger.ErrStorageFault)
)

// ResilientStore guards a ledger.Store. An open breaker or an expired timeout
// surfaces as ledger.ErrStorageFault, which the dispatcher retries. Business
// rejections and lock contention do not count against the breaker.
type ResilientStore struct {
	store ledger.Store
	guard *breaker
}

// NewResilientStore wraps store without metrics.
func NewResilientStore(store ledger.Store, name string, config ResilientConfig) *ResilientStore {
	return NewResilientStoreWithMetrics(store, name, config, metrics.NoOpCollector{})
}

// NewResilientStoreWithMetrics wraps store and reports breaker state to
// collector under the component "store:<name>".
func NewResilientStoreWithMetrics(store ledger.Store, name string, config ResilientConfig, collector metrics.MetricsCollector) *ResilientStore {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if name == "" {
		name = "store"
	}
	logger := logging.Global().Named("resilience").Named(name)

	return &ResilientStore{
		store: store,
		guard: newBreaker("store:"+name, config, collector, logger,
			func(err error) bool {
				return err == nil ||
					ledger.IsTerminal(err) ||
					ledger.IsContention(err) ||
					canceledByCaller(err)
			},
			errStoreOpen, errStoreTimeout,
		),
	}
}

func (s *ResilientStore) InTx(ctx context.Context, fn func(ledger.Tx) error) error {
	return s.guard.do(ctx, "tx", func(ctx context.Context) error {
		return s.store.InTx(ctx, fn)
	})
}

func (s *ResilientStore) Snapshot(ctx context.Context, fn func(ledger.Reader) error) error {
	return s.guard.do(ctx, "snapshot", func(ctx context.Context) error {
		return s.store.Snapshot(ctx, fn)
	})
}

func (s *ResilientStore) CreateAccount(ctx context.Context, account ledger.NewAccount) (*ledger.Account, error) {
	var created *ledger.Account
	err := s.guard.do(ctx, "create_account", func(ctx context.Context) error {
		var err error
		created, err = s.store.CreateAccount(ctx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *ResilientStore) DeleteAccount(ctx context.Context, accountID string) error {
	return s.guard.do(ctx, "delete_account", func(ctx context.Context) error {
		return s.store.DeleteAccount(ctx, accountID)
	})
}

// ResolvePrincipal uses the wrapped store's resolver when it has one and a
// snapshot lookup otherwise.
func (s *ResilientStore) ResolvePrincipal(ctx context.Context, principal string) (string, error) {
	var id string
	err := s.guard.do(ctx, "resolve_principal", func(ctx context.Context) error {
		if r, ok := s.store.(ledger.Resolver); ok {
			var err error
			id, err = r.ResolvePrincipal(ctx, principal)
			return err
		}
		return s.store.Snapshot(ctx, func(r ledger.Reader) error {
			account, err := r.FindAccountByPrincipal(ctx, principal)
			if err != nil {
				return err
			}
			id = account.ID
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// State returns the current breaker state.
func (s *ResilientStore) State() metrics.CircuitState {
	return s.guard.state()
}

func (s *ResilientStore) Close() error {
	return s.store.Close()
}

var (
	_ ledger.Store    = (*ResilientStore)(nil)
	_ ledger.Resolver = (*ResilientStore)(nil)
)
