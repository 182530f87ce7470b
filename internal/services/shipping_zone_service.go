package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/repositories"
)

const shippingZoneIDPrefix = "zone_"

// ShippingZoneServiceDeps bundles collaborators required to construct the zone admin service.
type ShippingZoneServiceDeps struct {
	Zones       repositories.ShippingZoneRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type shippingZoneService struct {
	zones  repositories.ShippingZoneRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

var _ ShippingZoneService = (*shippingZoneService)(nil)

// NewShippingZoneService constructs the admin service for shipping zones.
func NewShippingZoneService(deps ShippingZoneServiceDeps) (ShippingZoneService, error) {
	if deps.Zones == nil {
		return nil, errors.New("shipping zone service: zone repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &shippingZoneService{
		zones:  deps.Zones,
		clock:  func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *shippingZoneService) ListZones(ctx context.Context, actor Actor) ([]domain.ShippingZone, error) {
	if !actor.Can(domain.CapShippingManage) {
		return nil, ErrNotAuthorized
	}
	zones, err := s.zones.List(ctx)
	if err != nil {
		return nil, mapRepositoryError(err, ErrShippingZoneNotFound, nil)
	}
	return zones, nil
}

func (s *shippingZoneService) UpsertZone(ctx context.Context, actor Actor, cmd UpsertShippingZoneCommand) (domain.ShippingZone, error) {
	if !actor.Can(domain.CapShippingManage) {
		return domain.ShippingZone{}, ErrNotAuthorized
	}
	region := strings.Join(strings.Fields(cmd.RegionName), " ")
	switch {
	case region == "":
		return domain.ShippingZone{}, fmt.Errorf("%w: region name is required", ErrShippingZoneInvalid)
	case cmd.ShippingRate < 0:
		return domain.ShippingZone{}, fmt.Errorf("%w: shipping rate must not be negative", ErrShippingZoneInvalid)
	case cmd.EstimatedDays < 0:
		return domain.ShippingZone{}, fmt.Errorf("%w: estimated days must not be negative", ErrShippingZoneInvalid)
	}

	couriers := make([]string, 0, len(cmd.SupportedCouriers))
	for _, c := range cmd.SupportedCouriers {
		if c = strings.TrimSpace(c); c != "" && !slices.Contains(couriers, c) {
			couriers = append(couriers, c)
		}
	}
	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		id = shippingZoneIDPrefix + s.newID()
	}

	zone, err := s.zones.Upsert(ctx, domain.ShippingZone{
		ID:                id,
		RegionName:        region,
		ShippingRate:      cmd.ShippingRate,
		EstimatedDays:     cmd.EstimatedDays,
		IsRemote:          cmd.IsRemote,
		SupportedCouriers: couriers,
		UpdatedAt:         s.clock(),
	})
	if err != nil {
		return domain.ShippingZone{}, mapRepositoryError(err, ErrShippingZoneNotFound, ErrShippingZoneConflict)
	}
	s.logger(ctx, "shipping.zone.upserted", map[string]any{"zoneId": zone.ID, "region": zone.RegionName, "actorId": actor.ID})
	return zone, nil
}

func (s *shippingZoneService) DeleteZone(ctx context.Context, actor Actor, zoneID string) error {
	if !actor.Can(domain.CapShippingManage) {
		return ErrNotAuthorized
	}
	zoneID = strings.TrimSpace(zoneID)
	if zoneID == "" {
		return fmt.Errorf("%w: zone id is required", ErrShippingZoneInvalid)
	}
	if err := s.zones.Delete(ctx, zoneID); err != nil {
		return mapRepositoryError(err, ErrShippingZoneNotFound, nil)
	}
	s.logger(ctx, "shipping.zone.deleted", map[string]any{"zoneId": zoneID, "actorId": actor.ID})
	return nil
}
