package history

import (
	"context"
	"encoding/json"
	"strconv"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/ledger"
	"balance-ledger/pkg/logging"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// cachedReport tags a report with the account state it was computed from, so
// a report written after a concurrent apply is never served.
type cachedReport struct {
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
	Report    json.RawMessage `json:"report"`
}

func (r *Reporter) statisticsKey(accountID string) string {
	return r.keys.Build("stats", accountID)
}

func (r *Reporter) monthlyKey(accountID string, year int) string {
	return r.keys.Build("monthly", accountID, strconv.Itoa(year))
}

// lookup reads the current account state in its own snapshot and then checks
// the cache for a report computed from that state. Store errors count as a
// miss; the computing snapshot reports them.
func (r *Reporter) lookup(ctx context.Context, accountID, key string, out any) bool {
	if r.cache == nil {
		return false
	}

	var account *ledger.Account
	err := r.store.Snapshot(ctx, func(rd ledger.Reader) error {
		var err error
		account, err = rd.GetAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return false
	}
	return r.cached(ctx, key, account, out)
}

// cached decodes the report stored under key into out. It reports false on a
// miss, on any cache error, or when the entry belongs to another account state.
func (r *Reporter) cached(ctx context.Context, key string, account *ledger.Account, out any) bool {
	if r.cache == nil {
		return false
	}

	data, err := r.cache.Get(ctx, key)
	if err != nil {
		if !cache.IsNotFound(err) {
			r.logger.Debug("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}

	var entry cachedReport
	if err := json.Unmarshal(data, &entry); err != nil {
		r.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	if entry.CreatedAt != account.CreatedAt.UnixNano() || entry.UpdatedAt != account.UpdatedAt.UnixNano() {
		return false
	}
	return json.Unmarshal(entry.Report, out) == nil
}

func (r *Reporter) remember(ctx context.Context, key string, account *ledger.Account, report any) {
	if r.cache == nil {
		return
	}

	body, err := json.Marshal(report)
	if err != nil {
		return
	}
	data, err := json.Marshal(cachedReport{
		CreatedAt: account.CreatedAt.UnixNano(),
		UpdatedAt: account.UpdatedAt.UnixNano(),
		Report:    body,
	})
	if err != nil {
		return
	}

	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// OperationApplied drops the reports an applied operation changes.
func (r *Reporter) OperationApplied(ctx context.Context, result ledger.Result) error {
	if r.cache == nil {
		return nil
	}
	op := result.Operation
	return r.invalidate(ctx, op.AccountID,
		r.statisticsKey(op.AccountID),
		r.monthlyKey(op.AccountID, op.CreatedAt.UTC().Year()),
	)
}

// AccountDeleted drops the statistics of a deleted account. Monthly entries of
// other years are rejected on read because the account state no longer matches.
func (r *Reporter) AccountDeleted(ctx context.Context, accountID string) error {
	if r.cache == nil {
		return nil
	}
	return r.invalidate(ctx, accountID,
		r.statisticsKey(accountID),
		r.monthlyKey(accountID, r.now().UTC().Year()),
	)
}

func (r *Reporter) invalidate(ctx context.Context, accountID string, keys ...string) error {
	var err error
	for _, key := range keys {
		err = multierr.Append(err, r.cache.Delete(ctx, key))
	}
	if err != nil {
		r.logger.Warn("cache invalidation failed", logging.AccountID(accountID), zap.Error(err))
	}
	return err
}

var _ ledger.Observer = (*Reporter)(nil)
