package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hedgex/options-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the cache;
// reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) SaveOption(ctx context.Context, opt *model.Option) error {
	if err := s.primary.SaveOption(ctx, opt); err != nil {
		return err
	}
	s.cacheOption(ctx, opt)
	// The holder listing is stale now; drop it.
	s.rdb.Del(ctx, holderKey(opt.Holder))
	return nil
}

func (s *CachedStore) InsertEvent(ctx context.Context, e *model.Event) error {
	// The journal is append-only and read rarely; no caching.
	return s.primary.InsertEvent(ctx, e)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetOption(ctx context.Context, id uint64) (*model.Option, error) {
	data, err := s.rdb.Get(ctx, optionKey(id)).Bytes()
	if err == nil {
		var opt model.Option
		if json.Unmarshal(data, &opt) == nil {
			return &opt, nil
		}
	}

	// Cache miss: read from primary.
	opt, err := s.primary.GetOption(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheOption(ctx, opt)
	return opt, nil
}

func (s *CachedStore) ListOptionsByHolder(ctx context.Context, holder string) ([]model.Option, error) {
	data, err := s.rdb.Get(ctx, holderKey(holder)).Bytes()
	if err == nil {
		var options []model.Option
		if json.Unmarshal(data, &options) == nil {
			return options, nil
		}
	}

	// Cache miss.
	options, err := s.primary.ListOptionsByHolder(ctx, holder)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(options); err == nil {
		s.rdb.Set(ctx, holderKey(holder), data, s.ttl)
	}
	return options, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListOptions(ctx context.Context) ([]model.Option, error) {
	return s.primary.ListOptions(ctx)
}

func (s *CachedStore) GetEventsByOption(ctx context.Context, optionID uint64) ([]model.Event, error) {
	return s.primary.GetEventsByOption(ctx, optionID)
}

func (s *CachedStore) GetEventsByAccount(ctx context.Context, account string) ([]model.Event, error) {
	return s.primary.GetEventsByAccount(ctx, account)
}

func (s *CachedStore) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	return s.primary.ListEvents(ctx, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cacheOption(ctx context.Context, opt *model.Option) {
	if data, err := json.Marshal(opt); err == nil {
		s.rdb.Set(ctx, optionKey(opt.ID), data, s.ttl)
	}
}

func optionKey(id uint64) string { return fmt.Sprintf("option:%d", id) }

func holderKey(holder string) string { return fmt.Sprintf("options:holder:%s", holder) }
