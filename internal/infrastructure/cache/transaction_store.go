package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
)

const (
	defaultEntryTTL = 24 * time.Hour
	defaultDedupTTL = 7 * 24 * time.Hour
	defaultLockTTL  = 10 * time.Second

	lockAttempts = 5
	lockBackoff  = 50 * time.Millisecond
	scanBatch    = 200
)

// StoreConfig sets the TTLs used by TransactionStore
type StoreConfig struct {
	EntryTTL time.Duration
	DedupTTL time.Duration
	LockTTL  time.Duration
}

// TransactionStore keeps the short lived transaction projection used to
// correlate webhooks and polls. Keys:
//
//	txn_<provider>_<providerId>   the entry
//	<provider>_id_<aliasId>       alias pointing at an entry key
//	webhook_evt_<provider>_<id>   processed webhook event marker
//	db_txn_<transactionId>        database id of a persisted transaction
//	lock:<key>                    short lived write lock on an entry
type TransactionStore struct {
	client RedisClient
	config StoreConfig
	logger *zap.Logger
}

// NewTransactionStore creates a store, filling zero TTLs with defaults
func NewTransactionStore(client RedisClient, cfg StoreConfig, logger *zap.Logger) *TransactionStore {
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = defaultEntryTTL
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaultDedupTTL
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionStore{client: client, config: cfg, logger: logger}
}

// EntryKey is the cache key of a provider transaction
func EntryKey(provider entities.Provider, providerID string) string {
	return fmt.Sprintf("txn_%s_%s", provider.Slug(), providerID)
}

func aliasKey(provider entities.Provider, id string) string {
	return fmt.Sprintf("%s_id_%s", provider.Slug(), id)
}

func eventKey(provider entities.Provider, eventID string) string {
	return fmt.Sprintf("webhook_evt_%s_%s", provider.Slug(), eventID)
}

func dbKey(transactionID string) string {
	return "db_txn_" + transactionID
}

func lockKey(key string) string {
	return "lock:" + key
}

// Save writes the entry under its key with the entry TTL
func (s *TransactionStore) Save(ctx context.Context, entry *entities.CacheEntry) error {
	if entry.Key == "" {
		return errors.New("cache entry has no key")
	}
	if err := s.client.Set(ctx, entry.Key, entry, s.config.EntryTTL); err != nil {
		return fmt.Errorf("failed to save cache entry %s: %w", entry.Key, err)
	}
	return nil
}

// Get loads an entry by its exact key
func (s *TransactionStore) Get(ctx context.Context, key string) (*entities.CacheEntry, error) {
	var entry entities.CacheEntry
	if err := s.client.Get(ctx, key, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Alias points another provider identifier at an entry key
func (s *TransactionStore) Alias(ctx context.Context, provider entities.Provider, aliasID, key string) error {
	if aliasID == "" {
		return nil
	}
	if err := s.client.Set(ctx, aliasKey(provider, aliasID), key, s.config.EntryTTL); err != nil {
		return fmt.Errorf("failed to save alias %s: %w", aliasID, err)
	}
	return nil
}

// Find tries each correlation key as a direct entry id and then as an
// alias. It returns ErrCacheMiss when none resolve.
func (s *TransactionStore) Find(ctx context.Context, provider entities.Provider, keys ...string) (*entities.CacheEntry, error) {
	for _, id := range keys {
		if id == "" {
			continue
		}
		entry, err := s.Get(ctx, EntryKey(provider, id))
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}

		var target string
		err = s.client.Get(ctx, aliasKey(provider, id), &target)
		if errors.Is(err, ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entry, err = s.Get(ctx, target)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			return nil, err
		}
	}
	return nil, ErrCacheMiss
}

// ScanPending walks every entry of the provider and returns those still
// PENDING, oldest first. It is O(n) over the provider's keyspace.
func (s *TransactionStore) ScanPending(ctx context.Context, provider entities.Provider) ([]*entities.CacheEntry, error) {
	match := fmt.Sprintf("txn_%s_*", provider.Slug())
	var (
		cursor uint64
		out    []*entities.CacheEntry
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanBatch)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s entries: %w", provider.Slug(), err)
		}
		for _, key := range keys {
			entry, err := s.Get(ctx, key)
			if err != nil {
				// expired between SCAN and GET
				continue
			}
			if entry.Status == entities.TransactionStatusPending {
				out = append(out, entry)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ClaimEvent marks a webhook event as processed. It returns false when the
// event was already claimed.
func (s *TransactionStore) ClaimEvent(ctx context.Context, provider entities.Provider, eventID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, eventKey(provider, eventID), time.Now().UTC(), s.config.DedupTTL)
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", eventID, err)
	}
	return ok, nil
}

// ReleaseEvent drops a claim so the provider's retry is processed again
func (s *TransactionStore) ReleaseEvent(ctx context.Context, provider entities.Provider, eventID string) error {
	return s.client.Del(ctx, eventKey(provider, eventID))
}

// Lock takes the write lock for an entry key, retrying briefly. The returned
// function releases it, unless the lock expired and was taken by another
// writer in the meantime.
func (s *TransactionStore) Lock(ctx context.Context, key string) (func(), error) {
	lk := lockKey(key)
	token := uuid.NewString()
	for attempt := 0; attempt < lockAttempts; attempt++ {
		ok, err := s.client.SetNX(ctx, lk, token, s.config.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to lock %s: %w", key, err)
		}
		if ok {
			return func() { s.unlock(context.Background(), key, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockBackoff * time.Duration(attempt+1)):
		}
	}
	return nil, fmt.Errorf("%w: %s", domainerrors.ErrEntryLocked, key)
}

func (s *TransactionStore) unlock(ctx context.Context, key, token string) {
	released, err := s.client.DelIfEqual(ctx, lockKey(key), token)
	if err != nil {
		s.logger.Warn("Failed to release cache lock", zap.String("key", key), zap.Error(err))
		return
	}
	if !released {
		s.logger.Warn("Cache lock expired before release", zap.String("key", key), zap.Duration("ttl", s.config.LockTTL))
	}
}

// SetDBID records the database id of a persisted transaction
func (s *TransactionStore) SetDBID(ctx context.Context, transactionID string, id int64) error {
	return s.client.Set(ctx, dbKey(transactionID), strconv.FormatInt(id, 10), s.config.EntryTTL)
}

// DBID returns the database id recorded for a transaction
func (s *TransactionStore) DBID(ctx context.Context, transactionID string) (int64, error) {
	var raw string
	if err := s.client.Get(ctx, dbKey(transactionID), &raw); err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid db id for %s: %w", transactionID, err)
	}
	return id, nil
}
