package history

import (
	"context"
	"time"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/ledger"
	"balance-ledger/pkg/logging"

	"github.com/shopspring/decimal"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 1000
	DefaultRecentLimit  = 5
	DefaultTrendDays    = 30
	MaxTrendDays        = 366
)

// Cache stores serialized reports. A miss returns an error matching
// cache.IsNotFound.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ReporterConfig configures a Reporter.
type ReporterConfig struct {
	// Cache holds statistics and monthly summaries (optional)
	Cache Cache

	// CacheTTL is the lifetime of cached reports (default: 5m)
	CacheTTL time.Duration

	// Now is the clock used by Trend (default: time.Now)
	Now func() time.Time

	// Logger defaults to the global logger
	Logger *logging.Logger
}

// Reporter serves the read side of the ledger. Each report reads the account
// and its operations from one store snapshot.
type Reporter struct {
	store  ledger.Store
	cache  Cache
	ttl    time.Duration
	now    func() time.Time
	keys   *cache.KeyPattern
	logger *logging.Logger
}

// NewReporter creates a Reporter over store.
func NewReporter(store ledger.Store, config ReporterConfig) *Reporter {
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = logging.Global()
	}

	return &Reporter{
		store:  store,
		cache:  config.Cache,
		ttl:    config.CacheTTL,
		now:    config.Now,
		keys:   cache.NewKeyPattern("ledger", ":"),
		logger: config.Logger.Named("history"),
	}
}

// History returns the last limit operations, newest first, each with the
// balance right after it.
func (r *Reporter) History(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	var entries []Entry
	err := r.store.Snapshot(ctx, func(rd ledger.Reader) error {
		account, err := rd.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		ops, err := rd.RecentOperations(ctx, accountID, limit)
		if err != nil {
			return err
		}
		entries, err = Reconstruct(account.Balance, ops)
		return err
	})
	return entries, err
}

// Trend is the balance trajectory over a trailing window.
type Trend struct {
	Days         int             `json:"days"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	StartBalance decimal.Decimal `json:"start_balance"`
	EndBalance   decimal.Decimal `json:"end_balance"`
	Points       []Point         `json:"points"`
}

// Trend rebuilds the balance at the start of the last days days and replays
// every operation since then.
func (r *Reporter) Trend(ctx context.Context, accountID string, days int) (*Trend, error) {
	if days == 0 {
		days = DefaultTrendDays
	}
	if days < 0 || days > MaxTrendDays {
		ve := &ledger.ValidationError{}
		ve.Add("days must be between 1 and %d", MaxTrendDays)
		return nil, ve
	}

	to := r.now()
	from := to.AddDate(0, 0, -days)

	var trend *Trend
	err := r.store.Snapshot(ctx, func(rd ledger.Reader) error {
		account, err := rd.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		ops, err := rd.OperationsSince(ctx, accountID, from)
		if err != nil {
			return err
		}

		start, _, err := Rewind(account.Balance, ops)
		if err != nil {
			return err
		}
		points, err := Replay(start, ops)
		if err != nil {
			return err
		}

		trend = &Trend{
			Days:         days,
			From:         from,
			To:           to,
			StartBalance: start,
			EndBalance:   account.Balance,
			Points:       points,
		}
		return nil
	})
	return trend, err
}

// Operations returns one page of operations.
func (r *Reporter) Operations(ctx context.Context, accountID string, filter ledger.Filter) (ledger.Page, error) {
	var page ledger.Page
	err := r.store.Snapshot(ctx, func(rd ledger.Reader) error {
		var err error
		page, err = rd.QueryOperations(ctx, accountID, filter)
		return err
	})
	return page, err
}

// Range returns operations created within [start, end], oldest first.
func (r *Reporter) Range(ctx context.Context, accountID string, start, end time.Time) ([]ledger.Operation, error) {
	if end.Before(start) {
		ve := &ledger.ValidationError{}
		ve.Add("end must not be before start")
		return nil, ve
	}

	var ops []ledger.Operation
	err := r.store.Snapshot(ctx, func(rd ledger.Reader) error {
		var err error
		ops, err = rd.RangeOperations(ctx, accountID, start, end)
		return err
	})
	return ops, err
}

// Recent returns the newest limit operations.
func (r *Reporter) Recent(ctx context.Context, accountID string, limit int) ([]ledger.Operation, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, ledger.MaxPerPage)

	var ops []ledger.Operation
	err := r.store.Snapshot(ctx, func(rd ledger.Reader) error {
		var err error
		ops, err = rd.RecentOperations(ctx, accountID, limit)
		return err
	})
	return ops, err
}

// TopAccounts returns the accounts with the highest balances.
func (r *Reporter) TopAccounts(ctx context.Context, limit int) ([]ledger.Account, error) {
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, ledger.MaxPerPage)

	var accounts []ledger.Account
	err := r.store.Snapshot(ctx, func(rd ledger.Reader) error {
		var err error
		accounts, err = rd.TopAccounts(ctx, limit)
		return err
	})
	return accounts, err
}

// Statistics returns aggregate figures for an account. The cache is consulted
// outside any store snapshot.
func (r *Reporter) Statistics(ctx context.Context, accountID string) (*Statistics, error) {
	key := r.statisticsKey(accountID)

	var stats Statistics
	if r.lookup(ctx, accountID, key, &stats) {
		return &stats, nil
	}

	var account *ledger.Account
	err := r.store.Snapshot(ctx, func(rd ledger.Reader) error {
		var err error
		account, err = rd.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		totals, err := rd.Totals(ctx, accountID)
		if err != nil {
			return err
		}
		stats = Compute(account.Balance, totals)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.remember(ctx, key, account, stats)
	return &stats, nil
}

// MonthlySummary returns per-month deposit, withdrawal and net totals for
// year, always twelve months.
func (r *Reporter) MonthlySummary(ctx context.Context, accountID string, year int) (*MonthlySummary, error) {
	if year < 1970 || year > 9999 {
		ve := &ledger.ValidationError{}
		ve.Add("year must be between 1970 and 9999")
		return nil, ve
	}

	key := r.monthlyKey(accountID, year)

	var summary MonthlySummary
	if r.lookup(ctx, accountID, key, &summary) {
		return &summary, nil
	}

	var account *ledger.Account
	err := r.store.Snapshot(ctx, func(rd ledger.Reader) error {
		var err error
		account, err = rd.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		totals, err := rd.MonthlyTotals(ctx, accountID, year)
		if err != nil {
			return err
		}
		summary = Summarize(year, totals)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.remember(ctx, key, account, summary)
	return &summary, nil
}
