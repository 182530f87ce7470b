package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/repositories"
)

const (
	defaultZoneTTL    = 10 * time.Minute
	zoneGenerationKey = "shipping:zones:gen"
)

// ShippingZoneCache is a read-through cache in front of a ShippingZoneRepository. Region lookups
// are cached per generation; every write bumps the generation so stale entries simply age out.
// Redis failures fall through to the underlying repository.
type ShippingZoneCache struct {
	next   repositories.ShippingZoneRepository
	client redis.UniversalClient
	ttl    time.Duration
	logger func(ctx context.Context, event string, fields map[string]any)
}

var _ repositories.ShippingZoneRepository = (*ShippingZoneCache)(nil)

// Option customises the cache.
type Option func(*ShippingZoneCache)

// WithTTL overrides how long a cached zone lives.
func WithTTL(ttl time.Duration) Option {
	return func(c *ShippingZoneCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger receives cache degradation events.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) Option {
	return func(c *ShippingZoneCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewShippingZoneCache wraps next with a Redis cache.
func NewShippingZoneCache(next repositories.ShippingZoneRepository, client redis.UniversalClient, opts ...Option) (*ShippingZoneCache, error) {
	if next == nil {
		return nil, errors.New("shipping zone cache: repository is required")
	}
	if client == nil {
		return nil, errors.New("shipping zone cache: redis client is required")
	}
	c := &ShippingZoneCache{
		next:   next,
		client: client,
		ttl:    defaultZoneTTL,
		logger: func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type cachedZone struct {
	ID                string    `json:"id"`
	RegionName        string    `json:"region_name"`
	ShippingRate      int64     `json:"shipping_rate"`
	EstimatedDays     int       `json:"estimated_days"`
	IsRemote          bool      `json:"is_remote"`
	SupportedCouriers []string  `json:"supported_couriers"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (c *ShippingZoneCache) FindByRegion(ctx context.Context, region string) (domain.ShippingZone, error) {
	regionKey := domain.RegionKey(region)
	key, err := c.entryKey(ctx, regionKey)
	if err == nil {
		raw, getErr := c.client.Get(ctx, key).Bytes()
		switch {
		case getErr == nil:
			var cached cachedZone
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return cached.toDomain(), nil
			}
		case !errors.Is(getErr, redis.Nil):
			c.degraded(ctx, "get", getErr)
		}
	} else {
		c.degraded(ctx, "generation", err)
	}

	zone, err := c.next.FindByRegion(ctx, region)
	if err != nil {
		return domain.ShippingZone{}, err
	}
	if key != "" {
		payload, _ := json.Marshal(newCachedZone(zone))
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.degraded(ctx, "set", err)
		}
	}
	return zone, nil
}

func (c *ShippingZoneCache) List(ctx context.Context) ([]domain.ShippingZone, error) {
	return c.next.List(ctx)
}

func (c *ShippingZoneCache) Upsert(ctx context.Context, zone domain.ShippingZone) (domain.ShippingZone, error) {
	saved, err := c.next.Upsert(ctx, zone)
	if err != nil {
		return domain.ShippingZone{}, err
	}
	c.invalidate(ctx)
	return saved, nil
}

func (c *ShippingZoneCache) Delete(ctx context.Context, zoneID string) error {
	if err := c.next.Delete(ctx, zoneID); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *ShippingZoneCache) entryKey(ctx context.Context, regionKey string) (string, error) {
	gen, err := c.client.Get(ctx, zoneGenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("shipping:zone:%d:%s", gen, regionKey), nil
}

func (c *ShippingZoneCache) invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, zoneGenerationKey).Err(); err != nil {
		c.degraded(ctx, "invalidate", err)
	}
}

func (c *ShippingZoneCache) degraded(ctx context.Context, op string, err error) {
	c.logger(ctx, "shipping.zone_cache.degraded", map[string]any{"op": op, "error": err.Error()})
}

func newCachedZone(z domain.ShippingZone) cachedZone {
	return cachedZone{
		ID:                z.ID,
		RegionName:        z.RegionName,
		ShippingRate:      z.ShippingRate,
		EstimatedDays:     z.EstimatedDays,
		IsRemote:          z.IsRemote,
		SupportedCouriers: z.SupportedCouriers,
		UpdatedAt:         z.UpdatedAt,
	}
}

func (z cachedZone) toDomain() domain.ShippingZone {
	return domain.ShippingZone{
		ID:                z.ID,
		RegionName:        z.RegionName,
		ShippingRate:      z.ShippingRate,
		EstimatedDays:     z.EstimatedDays,
		IsRemote:          z.IsRemote,
		SupportedCouriers: z.SupportedCouriers,
		UpdatedAt:         z.UpdatedAt,
	}
}
