package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retail-analytics/engine/config"
	"github.com/retail-analytics/engine/types"
)

// ReportCache stores executed report results by query key
type ReportCache interface {
	Get(ctx context.Context, key string) (*types.ReportResult, bool, error)
	Set(ctx context.Context, key string, value *types.ReportResult, ttl time.Duration) error
}

// Key derives a deterministic cache key from a report query
func Key(query types.ReportQuery) string {
	payload, _ := json.Marshal(query)
	sum := sha256.Sum256(payload)
	return "report:" + hex.EncodeToString(sum[:])
}

// New builds the cache backend selected by cfg
func New(ctx context.Context, cfg config.CacheConfig, log logrus.FieldLogger) (ReportCache, error) {
	log = log.WithField("component", "report-cache")

	switch cfg.Backend {
	case config.CacheNoop:
		log.Info("Report cache disabled")
		return NoopCache{}, nil
	case config.CacheMemory, "":
		interval := cfg.TTL
		if interval <= 0 {
			interval = DefaultPurgeInterval
		}
		log.WithFields(logrus.Fields{
			"ttl":            cfg.TTL,
			"purge_interval": interval,
		}).Info("Using in-memory report cache")
		c := NewMemoryCache(nil)
		c.StartJanitor(interval)
		return c, nil
	case config.CacheRedis:
		c := NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := c.Ping(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.WithFields(logrus.Fields{
			"addr": cfg.Redis.Addr,
			"db":   cfg.Redis.DB,
			"ttl":  cfg.TTL,
		}).Info("Using Redis report cache")
		return c, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

// NoopCache never stores anything
type NoopCache struct{}

func (NoopCache) Get(_ context.Context, _ string) (*types.ReportResult, bool, error) {
	return nil, false, nil
}

func (NoopCache) Set(_ context.Context, _ string, _ *types.ReportResult, _ time.Duration) error {
	return nil
}

type memoryEntry struct {
	payload []byte
	expires time.Time
}

// DefaultPurgeInterval is used when the cache ttl does not give one
const DefaultPurgeInterval = time.Minute

// MemoryCache keeps serialized results in process memory. Entries are
// decoded on every Get so callers never share a result.
type MemoryCache struct {
	entries sync.Map
	now     func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewMemoryCache creates an in-memory cache. A nil clock uses time.Now.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{now: now, stopCh: make(chan struct{})}
}

// StartJanitor purges expired entries every interval until Close is called.
// Only the first call starts the janitor.
func (c *MemoryCache) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-c.stopCh:
					return
				case <-ticker.C:
					c.Purge()
				}
			}
		}()
	})
}

// Close stops the janitor and drops every entry
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
	return nil
}

// Get returns the unexpired entry stored under key
func (c *MemoryCache) Get(_ context.Context, key string) (*types.ReportResult, bool, error) {
	raw, ok := c.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := raw.(memoryEntry)
	if !entry.expires.IsZero() && !c.now().Before(entry.expires) {
		c.entries.Delete(key)
		return nil, false, nil
	}

	var result types.ReportResult
	if err := json.Unmarshal(entry.payload, &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

// Set stores value under key. A zero ttl never expires.
func (c *MemoryCache) Set(_ context.Context, key string, value *types.ReportResult, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expires = c.now().Add(ttl)
	}
	c.entries.Store(key, entry)
	return nil
}

// Purge drops every expired entry and returns how many were removed
func (c *MemoryCache) Purge() int {
	removed := 0
	now := c.now()
	c.entries.Range(func(key, value any) bool {
		entry := value.(memoryEntry)
		if !entry.expires.IsZero() && !now.Before(entry.expires) {
			c.entries.Delete(key)
			removed++
		}
		return true
	})
	return removed
}
