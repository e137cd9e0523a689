package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"EntryGate/internal/domain/models"
	"EntryGate/internal/domain/repository"
	"EntryGate/pkg/cache"
)

const (
	keyVersionCounter = "conditions:version"
	keyCurrent        = "conditions:current"
	keyWriteLock      = "conditions:lock"
	keyDocPrefix      = "conditions:doc"
)

// CachePointerKeys must never be served from an in-process L1, other
// instances move them.
var CachePointerKeys = []string{keyVersionCounter, keyCurrent, keyWriteLock}

// CachePinnedPrefixes covers every store key. A bounded memory backend must
// pin them or old versions fall out of History.
var CachePinnedPrefixes = []string{"conditions:"}

// CacheConditionStore keeps versions in any cache.Service: in memory for a
// single instance, Redis (optionally layered) when instances share state.
// Versions are written without a TTL.
type CacheConditionStore struct {
	cache   cache.Service
	lockTTL time.Duration
	now     func() time.Time
}

func NewCacheConditionStore(c cache.Service) *CacheConditionStore {
	return &CacheConditionStore{cache: c, lockTTL: 5 * time.Second, now: time.Now}
}

func docKey(version int64) string { return cache.Key(keyDocPrefix, version) }

func (s *CacheConditionStore) Current(ctx context.Context) (*models.VersionedConditions, error) {
	v, err := s.currentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if v == 0 {
		return emptyVersion(), nil
	}
	return s.Get(ctx, v)
}

func (s *CacheConditionStore) currentVersion(ctx context.Context) (int64, error) {
	var raw string
	if err := s.cache.Get(ctx, keyCurrent, &raw); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return 0, nil
		}
		return 0, fmt.Errorf("read current version: %w", err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("current version %q: %w", raw, err)
	}
	return v, nil
}

// Save stores doc as the next version and moves the current pointer. A
// concurrent writer gets ErrStoreBusy instead of interleaving.
func (s *CacheConditionStore) Save(ctx context.Context, doc *models.TradeConditions) (*models.VersionedConditions, error) {
	ok, err := s.cache.TryLock(ctx, keyWriteLock, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !ok {
		return nil, models.ErrStoreBusy
	}
	defer func() { _ = s.cache.Unlock(context.WithoutCancel(ctx), keyWriteLock) }()

	next, err := s.cache.Increment(ctx, keyVersionCounter)
	if err != nil {
		return nil, fmt.Errorf("next version: %w", err)
	}
	v := &models.VersionedConditions{
		Version:  next,
		SavedAt:  s.now().UTC(),
		Document: doc.Clone(),
	}
	b, err := encodeRecord(v)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, docKey(next), b, 0); err != nil {
		return nil, fmt.Errorf("write version %d: %w", next, err)
	}
	if err := s.cache.Set(ctx, keyCurrent, strconv.FormatInt(next, 10), 0); err != nil {
		return nil, fmt.Errorf("publish version %d: %w", next, err)
	}
	return v, nil
}

func (s *CacheConditionStore) Get(ctx context.Context, version int64) (*models.VersionedConditions, error) {
	var b []byte
	if err := s.cache.Get(ctx, docKey(version), &b); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %d", models.ErrVersionNotFound, version)
		}
		return nil, fmt.Errorf("read version %d: %w", version, err)
	}
	return decodeRecord(b)
}

// History lists up to limit versions, newest first.
func (s *CacheConditionStore) History(ctx context.Context, limit int) ([]models.VersionMeta, error) {
	cur, err := s.currentVersion(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.VersionMeta, 0, min(int64(limit), cur))
	for v := cur; v > 0 && len(out) < limit; v-- {
		vc, err := s.Get(ctx, v)
		if errors.Is(err, models.ErrVersionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, vc.Meta())
	}
	return out, nil
}

func (s *CacheConditionStore) Close() error {
	return s.cache.Close()
}

var _ repository.ConditionStore = (*CacheConditionStore)(nil)
