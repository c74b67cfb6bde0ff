// Package organizations implements the organization service, tying together
// buildings and the activity tree.
package organizations

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/orgmgr/orgmgr/internal/domain/organization"
	apperrors "github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/storage"
	"github.com/orgmgr/orgmgr/pkg/logger"
)

const maxNameLength = 255

// Service manages organization entities.
type Service struct {
	store      storage.OrganizationStore
	buildings  storage.BuildingStore
	activities storage.ActivityStore
	log        *logger.Logger
}

// New constructs an organization service.
func New(store storage.OrganizationStore, buildings storage.BuildingStore, activities storage.ActivityStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("organizations")
	}
	return &Service{store: store, buildings: buildings, activities: activities, log: log}
}

// Create registers a new organization after validating its fields and
// references.
func (s *Service) Create(ctx context.Context, o organization.Organization) (organization.Organization, error) {
	if err := s.validate(ctx, &o); err != nil {
		return organization.Organization{}, err
	}

	created, err := s.store.CreateOrganization(ctx, o)
	if err != nil {
		return organization.Organization{}, err
	}
	s.log.WithContext(ctx).
		WithField("organization_id", created.ID).
		Info("organization created")
	return created, nil
}

// Get retrieves an organization by id.
func (s *Service) Get(ctx context.Context, id string) (organization.Organization, error) {
	o, err := s.store.GetOrganization(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return organization.Organization{}, apperrors.NotFound("organization", id)
		}
		return organization.Organization{}, err
	}
	return o, nil
}

// List returns a page of organizations matching the filter.
func (s *Service) List(ctx context.Context, filter storage.OrganizationFilter, p storage.Pagination) ([]organization.Organization, int, error) {
	return s.store.ListOrganizations(ctx, filter, p)
}

// Update replaces an organization's mutable fields.
func (s *Service) Update(ctx context.Context, o organization.Organization) (organization.Organization, error) {
	if err := s.validate(ctx, &o); err != nil {
		return organization.Organization{}, err
	}

	updated, err := s.store.UpdateOrganization(ctx, o)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return organization.Organization{}, apperrors.NotFound("organization", o.ID)
		}
		return organization.Organization{}, err
	}
	s.log.WithContext(ctx).
		WithField("organization_id", updated.ID).
		Info("organization updated")
	return updated, nil
}

// Delete removes an organization together with its activity links.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteOrganization(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("organization", id)
		}
		return err
	}
	s.log.WithContext(ctx).
		WithField("organization_id", id).
		Info("organization deleted")
	return nil
}

func (s *Service) validate(ctx context.Context, o *organization.Organization) error {
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return apperrors.Validation("name", "name is required")
	}
	if utf8.RuneCountInString(o.Name) > maxNameLength {
		return apperrors.Validation("name", "name must be at most 255 characters")
	}
	for i, phone := range o.PhoneNumbers {
		phone = strings.TrimSpace(phone)
		if err := organization.ValidatePhoneNumber(phone); err != nil {
			return err
		}
		o.PhoneNumbers[i] = phone
	}
	if strings.TrimSpace(o.BuildingID) == "" {
		return apperrors.Validation("building_id", "building_id is required")
	}
	if _, err := s.buildings.GetBuilding(ctx, o.BuildingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("building", o.BuildingID)
		}
		return err
	}
	if len(o.ActivityIDs) > 0 {
		ids := dedupe(o.ActivityIDs)
		found, err := s.activities.CountActivities(ctx, ids)
		if err != nil {
			return err
		}
		if found != len(ids) {
			return apperrors.BadRequest("one or more activity ids do not exist")
		}
		o.ActivityIDs = ids
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
