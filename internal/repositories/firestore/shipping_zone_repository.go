package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/jara-commerce/api/internal/domain"
	pfirestore "github.com/jara-commerce/api/internal/platform/firestore"
	"github.com/jara-commerce/api/internal/repositories"
)

const shippingZonesCollection = "shippingZones"

type shippingZoneDocument struct {
	ID                string    `firestore:"id"`
	RegionName        string    `firestore:"regionName"`
	RegionKey         string    `firestore:"regionKey"`
	ShippingRate      int64     `firestore:"shippingRate"`
	EstimatedDays     int       `firestore:"estimatedDays"`
	IsRemote          bool      `firestore:"isRemote"`
	SupportedCouriers []string  `firestore:"supportedCouriers"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func (d shippingZoneDocument) toDomain() domain.ShippingZone {
	return domain.ShippingZone{
		ID:                d.ID,
		RegionName:        d.RegionName,
		ShippingRate:      d.ShippingRate,
		EstimatedDays:     d.EstimatedDays,
		IsRemote:          d.IsRemote,
		SupportedCouriers: append([]string(nil), d.SupportedCouriers...),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

// ShippingZoneRepository stores zones keyed by id with a normalised regionKey for lookups.
type ShippingZoneRepository struct {
	provider *pfirestore.Provider
	zones    *pfirestore.BaseRepository[shippingZoneDocument]
	now      func() time.Time
}

var _ repositories.ShippingZoneRepository = (*ShippingZoneRepository)(nil)

// NewShippingZoneRepository constructs a Firestore-backed shipping zone repository.
func NewShippingZoneRepository(provider *pfirestore.Provider) (*ShippingZoneRepository, error) {
	if provider == nil {
		return nil, errors.New("shipping zone repository requires firestore provider")
	}
	return &ShippingZoneRepository{
		provider: provider,
		zones:    pfirestore.NewBaseRepository[shippingZoneDocument](provider, shippingZonesCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// FindByRegion matches the province case-insensitively.
func (r *ShippingZoneRepository) FindByRegion(ctx context.Context, region string) (domain.ShippingZone, error) {
	key := domain.RegionKey(region)
	if key == "" {
		return domain.ShippingZone{}, pfirestore.NotFound("shippingZones.findByRegion", "shipping zone")
	}
	docs, err := r.zones.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("regionKey", "==", key).Limit(1)
	})
	if err != nil {
		return domain.ShippingZone{}, err
	}
	if len(docs) == 0 {
		return domain.ShippingZone{}, pfirestore.NotFound("shippingZones.findByRegion", "shipping zone "+key)
	}
	return docs[0].toDomain(), nil
}

func (r *ShippingZoneRepository) List(ctx context.Context) ([]domain.ShippingZone, error) {
	docs, err := r.zones.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("regionKey", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	zones := make([]domain.ShippingZone, 0, len(docs))
	for _, doc := range docs {
		zones = append(zones, doc.toDomain())
	}
	return zones, nil
}

// Upsert writes the zone. A different zone already holding the region yields a conflict.
func (r *ShippingZoneRepository) Upsert(ctx context.Context, zone domain.ShippingZone) (domain.ShippingZone, error) {
	if strings.TrimSpace(zone.ID) == "" {
		return domain.ShippingZone{}, errors.New("shipping zone upsert: id is required")
	}
	doc := shippingZoneDocument{
		ID:                zone.ID,
		RegionName:        strings.TrimSpace(zone.RegionName),
		RegionKey:         domain.RegionKey(zone.RegionName),
		ShippingRate:      zone.ShippingRate,
		EstimatedDays:     zone.EstimatedDays,
		IsRemote:          zone.IsRemote,
		SupportedCouriers: append([]string(nil), zone.SupportedCouriers...),
		UpdatedAt:         r.now(),
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		docs, err := r.zones.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("regionKey", "==", doc.RegionKey).Limit(2)
		})
		if err != nil {
			return err
		}
		for _, existing := range docs {
			if existing.ID != doc.ID {
				return pfirestore.Conflict("shippingZones.upsert", "shipping zone for "+doc.RegionName)
			}
		}
		return r.zones.Set(ctx, doc.ID, doc)
	})
	if err != nil {
		return domain.ShippingZone{}, err
	}
	return doc.toDomain(), nil
}

func (r *ShippingZoneRepository) Delete(ctx context.Context, zoneID string) error {
	id := strings.TrimSpace(zoneID)
	if _, err := r.zones.Get(ctx, id); err != nil {
		return err
	}
	return r.zones.Delete(ctx, id)
}
