// Package buildings implements the building service.
package buildings

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/orgmgr/orgmgr/internal/domain/building"
	apperrors "github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/storage"
	"github.com/orgmgr/orgmgr/pkg/logger"
)

// Service manages building entities.
type Service struct {
	store storage.BuildingStore
	log   *logger.Logger
}

// New constructs a building service.
func New(store storage.BuildingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("buildings")
	}
	return &Service{store: store, log: log}
}

// Create registers a new building.
func (s *Service) Create(ctx context.Context, b building.Building) (building.Building, error) {
	b.Address = strings.TrimSpace(b.Address)
	if b.Address == "" {
		return building.Building{}, apperrors.Validation("address", "address is required")
	}
	if err := building.ValidateCoordinate(b.Latitude, b.Longitude); err != nil {
		return building.Building{}, err
	}

	created, err := s.store.CreateBuilding(ctx, b)
	if err != nil {
		return building.Building{}, err
	}
	s.log.WithContext(ctx).
		WithField("building_id", created.ID).
		Info("building created")
	return created, nil
}

// Get retrieves a building by id.
func (s *Service) Get(ctx context.Context, id string) (building.Building, error) {
	b, err := s.store.GetBuilding(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return building.Building{}, apperrors.NotFound("building", id)
		}
		return building.Building{}, err
	}
	return b, nil
}

// List returns a page of buildings matching the filter.
func (s *Service) List(ctx context.Context, filter storage.BuildingFilter, p storage.Pagination) ([]building.Building, int, error) {
	return s.store.ListBuildings(ctx, filter, p)
}

// Update replaces a building's mutable fields.
func (s *Service) Update(ctx context.Context, b building.Building) (building.Building, error) {
	b.Address = strings.TrimSpace(b.Address)
	if b.Address == "" {
		return building.Building{}, apperrors.Validation("address", "address is required")
	}
	if err := building.ValidateCoordinate(b.Latitude, b.Longitude); err != nil {
		return building.Building{}, err
	}

	updated, err := s.store.UpdateBuilding(ctx, b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return building.Building{}, apperrors.NotFound("building", b.ID)
		}
		return building.Building{}, err
	}
	s.log.WithContext(ctx).
		WithField("building_id", updated.ID).
		Info("building updated")
	return updated, nil
}

// Delete removes a building. Buildings still referenced by organizations are
// reported as a conflict.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteBuilding(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("building", id)
		}
		return err
	}
	s.log.WithContext(ctx).
		WithField("building_id", id).
		Info("building deleted")
	return nil
}
