package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"balance-ledger/pkg/logging"
	"balance-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Observer is notified after a unit of work commits. Observer errors are
// logged and never undo the committed change.
type Observer interface {
	OperationApplied(ctx context.Context, result Result) error
	AccountDeleted(ctx context.Context, accountID string) error
}

// EngineConfig configures the ledger engine.
type EngineConfig struct {
	// MaxAmount is the largest accepted operation amount (default: 1,000,000)
	MaxAmount decimal.Decimal

	// LockTimeout bounds the wait for the per-account lock (default: 5s)
	LockTimeout time.Duration

	// Logger defaults to the global logger
	Logger *logging.Logger

	// Metrics defaults to a no-op collector
	Metrics metrics.MetricsCollector

	// Observers are called in order after every committed change
	Observers []Observer
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxAmount:   DefaultMaxAmount,
		LockTimeout: 5 * time.Second,
	}
}

// Engine validates and atomically applies operations to account balances.
// Calls on the same account are serialized; calls on different accounts
// proceed independently.
type Engine struct {
	store     Store
	locker    *Locker
	config    EngineConfig
	logger    *logging.Logger
	metrics   metrics.MetricsCollector
	observers []Observer
}

// NewEngine creates an engine over store.
func NewEngine(store Store, config EngineConfig) *Engine {
	if config.MaxAmount.IsZero() {
		config.MaxAmount = DefaultMaxAmount
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = logging.Global()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}

	return &Engine{
		store:     store,
		locker:    NewLocker(),
		config:    config,
		logger:    config.Logger.Named("engine"),
		metrics:   config.Metrics,
		observers: config.Observers,
	}
}

// AddObserver registers o for subsequent changes. It is not safe to call
// concurrently with Apply.
func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// MaxAmount returns the configured amount ceiling.
func (e *Engine) MaxAmount() decimal.Decimal {
	return e.config.MaxAmount
}

// Apply validates the operation and applies it to the account in one unit of
// work: the operation is recorded and the balance updated, or neither.
func (e *Engine) Apply(ctx context.Context, accountID string, amount decimal.Decimal, kind Kind, description string) (*Result, error) {
	start := time.Now()
	result, err := e.apply(ctx, accountID, amount, kind, description)
	duration := time.Since(start)

	if err != nil {
		e.metrics.RecordApply(kind.String(), ClassifyError(err), duration)
		e.logFailure(accountID, amount, kind, err)
		return nil, err
	}

	e.metrics.RecordApply(kind.String(), metrics.OutcomeSuccess, duration)
	e.logger.Info("operation applied",
		logging.AccountID(accountID),
		logging.OperationID(result.Operation.ID),
		logging.Kind(kind.String()),
		logging.Amount(amount),
		logging.Decimal("old_balance", result.OldBalance),
		logging.Decimal("new_balance", result.NewBalance),
		zap.Duration("duration", duration),
	)

	for _, o := range e.observers {
		if err := o.OperationApplied(ctx, *result); err != nil {
			e.logger.Warn("observer failed",
				logging.AccountID(accountID),
				logging.OperationID(result.Operation.ID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

func (e *Engine) apply(ctx context.Context, accountID string, amount decimal.Decimal, kind Kind, description string) (*Result, error) {
	if err := Validate(amount, kind, description, e.config.MaxAmount); err != nil {
		return nil, err
	}

	lockStart := time.Now()
	release, err := e.locker.Acquire(ctx, accountID, e.config.LockTimeout)
	e.metrics.RecordLockWait(time.Since(lockStart), err == nil)
	if err != nil {
		return nil, err
	}
	defer release()

	var result Result
	err = e.store.InTx(ctx, func(tx Tx) error {
		account, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}

		newBalance, err := ApplyDelta(account.Balance, amount, kind)
		if err != nil {
			return err
		}
		if newBalance.IsNegative() {
			return fmt.Errorf("account %s: balance %s, %s %s: %w",
				accountID, account.Balance.StringFixed(2), kind, amount.StringFixed(2), ErrInsufficientFunds)
		}

		op, err := tx.AppendOperation(ctx, NewOperation{
			AccountID:   accountID,
			Amount:      amount,
			Kind:        kind,
			Description: description,
		})
		if err != nil {
			return err
		}

		if err := tx.SetBalance(ctx, accountID, newBalance); err != nil {
			return err
		}

		result = Result{
			Operation:  op,
			OldBalance: account.Balance,
			NewBalance: newBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (e *Engine) logFailure(accountID string, amount decimal.Decimal, kind Kind, err error) {
	fields := []zap.Field{
		logging.AccountID(accountID),
		logging.Kind(kind.String()),
		logging.Amount(amount),
		zap.String("class", ClassifyError(err)),
		zap.Error(err),
	}

	switch {
	case IsValidation(err), IsInsufficientFunds(err), IsNotFound(err):
		e.logger.Info("operation rejected", fields...)
	case IsRetryable(err):
		e.logger.Warn("operation not applied", fields...)
	default:
		e.logger.Error("operation failed", fields...)
	}
}

// Submit parses raw boundary input and applies it.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	amount, kind, err := req.Parse(e.config.MaxAmount)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, req.AccountID, amount, kind, req.Description)
}

// OpenAccount creates an account with an optional non-negative initial
// balance. An empty id is replaced by a generated one.
func (e *Engine) OpenAccount(ctx context.Context, account NewAccount) (*Account, error) {
	ve := &ValidationError{}
	if account.InitialBalance.IsNegative() {
		ve.Add("initial balance must not be negative")
	}
	if !account.InitialBalance.Equal(account.InitialBalance.Truncate(2)) {
		ve.Add("initial balance must have at most 2 decimal places")
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.Principal = strings.TrimSpace(account.Principal)

	created, err := e.store.CreateAccount(ctx, account)
	if err != nil {
		return nil, err
	}

	e.logger.Info("account opened",
		logging.AccountID(created.ID),
		logging.Decimal("balance", created.Balance),
	)
	return created, nil
}

// DeleteAccount removes the account and its operations.
func (e *Engine) DeleteAccount(ctx context.Context, accountID string) error {
	release, err := e.locker.Acquire(ctx, accountID, e.config.LockTimeout)
	if err != nil {
		return err
	}
	defer release()

	if err := e.store.DeleteAccount(ctx, accountID); err != nil {
		return err
	}

	e.logger.Info("account deleted", logging.AccountID(accountID))
	for _, o := range e.observers {
		if err := o.AccountDeleted(ctx, accountID); err != nil {
			e.logger.Warn("observer failed", logging.AccountID(accountID), zap.Error(err))
		}
	}
	return nil
}

// Account returns the current state of an account.
func (e *Engine) Account(ctx context.Context, accountID string) (*Account, error) {
	var account *Account
	err := e.store.Snapshot(ctx, func(r Reader) error {
		var err error
		account, err = r.GetAccount(ctx, accountID)
		return err
	})
	return account, err
}

// ResolvePrincipal implements Resolver.
func (e *Engine) ResolvePrincipal(ctx context.Context, principal string) (string, error) {
	var id string
	err := e.store.Snapshot(ctx, func(r Reader) error {
		account, err := r.FindAccountByPrincipal(ctx, strings.TrimSpace(principal))
		if err != nil {
			return err
		}
		id = account.ID
		return nil
	})
	return id, err
}

var _ Resolver = (*Engine)(nil)
