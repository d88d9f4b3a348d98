package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

const transactionCacheKeyPrefix = "txprocessor::transaction::v1"

// CachedTransactionStore is a read-through wrapper for the lookup path.
// Mutations pass through to the base store and invalidate the cached entry,
// so a lookup racing settlement observes either PROCESSING or PROCESSED,
// never a stale terminal state.
type CachedTransactionStore struct {
	base  core.TransactionStore
	cache repositorycache.CacheService
}

func NewCachedTransactionStore(
	base core.TransactionStore,
	cacheService repositorycache.CacheService,
) (*CachedTransactionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base transaction store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: transaction cache service is required")
	}
	return &CachedTransactionStore{base: base, cache: cacheService}, nil
}

// TransactionCacheKey returns the deterministic cache key:
// txprocessor::transaction::v1::<transaction_id> with the id URL-path
// escaped.
func TransactionCacheKey(transactionID string) (string, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return "", fmt.Errorf("sqlstore: transaction id is required")
	}
	return transactionCacheKeyPrefix + "::" + url.PathEscape(transactionID), nil
}

func (s *CachedTransactionStore) InsertIfAbsent(ctx context.Context, txn core.Transaction) (bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return false, fmt.Errorf("sqlstore: cached transaction store is not configured")
	}
	inserted, err := s.base.InsertIfAbsent(ctx, txn)
	if err != nil {
		return inserted, err
	}
	if err := s.invalidate(ctx, txn.TransactionID); err != nil {
		return inserted, err
	}
	return inserted, nil
}

func (s *CachedTransactionStore) FindByTransactionID(ctx context.Context, transactionID string) (core.Transaction, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Transaction{}, fmt.Errorf("sqlstore: cached transaction store is not configured")
	}
	cacheKey, err := TransactionCacheKey(transactionID)
	if err != nil {
		return core.Transaction{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Transaction, error) {
		return s.base.FindByTransactionID(ctx, transactionID)
	})
}

func (s *CachedTransactionStore) MarkProcessed(ctx context.Context, transactionID string, at time.Time) (bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return false, fmt.Errorf("sqlstore: cached transaction store is not configured")
	}
	updated, err := s.base.MarkProcessed(ctx, transactionID, at)
	if err != nil {
		return updated, err
	}
	if err := s.invalidate(ctx, transactionID); err != nil {
		return updated, err
	}
	return updated, nil
}

func (s *CachedTransactionStore) invalidate(ctx context.Context, transactionID string) error {
	cacheKey, err := TransactionCacheKey(transactionID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.TransactionStore = (*CachedTransactionStore)(nil)
