// Package activities implements the activity service, including the nesting
// depth rule for the category tree.
package activities

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/orgmgr/orgmgr/internal/domain/activity"
	apperrors "github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/storage"
	"github.com/orgmgr/orgmgr/pkg/logger"
)

// Service manages activity entities.
type Service struct {
	store storage.ActivityStore
	log   *logger.Logger
}

// New constructs an activity service.
func New(store storage.ActivityStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("activities")
	}
	return &Service{store: store, log: log}
}

// Create registers a new activity after validating its parent and the nesting
// limit.
func (s *Service) Create(ctx context.Context, a activity.Activity) (activity.Activity, error) {
	if err := validateName(a.Name); err != nil {
		return activity.Activity{}, err
	}
	a.Name = strings.TrimSpace(a.Name)
	if a.ParentID != nil {
		if _, err := s.Get(ctx, *a.ParentID); err != nil {
			return activity.Activity{}, err
		}
		if err := s.validateNesting(ctx, *a.ParentID); err != nil {
			return activity.Activity{}, err
		}
	}

	created, err := s.store.CreateActivity(ctx, a)
	if err != nil {
		return activity.Activity{}, err
	}
	s.log.WithContext(ctx).
		WithField("activity_id", created.ID).
		Info("activity created")
	return created, nil
}

// Get retrieves an activity by id.
func (s *Service) Get(ctx context.Context, id string) (activity.Activity, error) {
	a, err := s.store.GetActivity(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return activity.Activity{}, apperrors.NotFound("activity", id)
		}
		return activity.Activity{}, err
	}
	return a, nil
}

// List returns a page of activities matching the filter.
func (s *Service) List(ctx context.Context, filter storage.ActivityFilter, p storage.Pagination) ([]activity.Activity, int, error) {
	return s.store.ListActivities(ctx, filter, p)
}

// Update replaces an activity's mutable fields, revalidating parent and depth.
func (s *Service) Update(ctx context.Context, a activity.Activity) (activity.Activity, error) {
	if err := validateName(a.Name); err != nil {
		return activity.Activity{}, err
	}
	a.Name = strings.TrimSpace(a.Name)
	if a.ParentID != nil {
		if *a.ParentID == a.ID {
			return activity.Activity{}, apperrors.Conflict("activity cannot be its own parent")
		}
		if _, err := s.Get(ctx, *a.ParentID); err != nil {
			return activity.Activity{}, err
		}
		if err := s.validateNesting(ctx, *a.ParentID); err != nil {
			return activity.Activity{}, err
		}
	}

	updated, err := s.store.UpdateActivity(ctx, a)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return activity.Activity{}, apperrors.NotFound("activity", a.ID)
		}
		return activity.Activity{}, err
	}
	s.log.WithContext(ctx).
		WithField("activity_id", updated.ID).
		Info("activity updated")
	return updated, nil
}

// Delete removes an activity and, through the schema, its descendants.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteActivity(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("activity", id)
		}
		return err
	}
	s.log.WithContext(ctx).
		WithField("activity_id", id).
		Info("activity deleted")
	return nil
}

// validateName enforces the shared name rules; the limit counts characters,
// matching the VARCHAR(128) column.
func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.Validation("name", "name is required")
	}
	if utf8.RuneCountInString(name) > 128 {
		return apperrors.Validation("name", "name must be at most 128 characters")
	}
	return nil
}

// validateNesting walks the parent chain and rejects attachments that would
// reach MaxNestingLevel.
func (s *Service) validateNesting(ctx context.Context, parentID string) error {
	depth := 1
	current, err := s.store.GetActivity(ctx, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("activity", parentID)
		}
		return err
	}
	for current.ParentID != nil {
		depth++
		if depth >= activity.MaxNestingLevel {
			return apperrors.Conflict("activity maximum nesting level exceeded")
		}
		current, err = s.store.GetActivity(ctx, *current.ParentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
	}
	return nil
}
