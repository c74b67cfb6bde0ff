// Package storage defines the persistence interfaces for the directory
// entities, plus the filter and pagination types shared by implementations.
package storage

import (
	"context"

	"github.com/orgmgr/orgmgr/internal/domain/activity"
	"github.com/orgmgr/orgmgr/internal/domain/building"
	"github.com/orgmgr/orgmgr/internal/domain/organization"
)

// Pagination selects a 1-based page of at most Limit items.
type Pagination struct {
	Page  int
	Limit int
}

// Offset returns the row offset for the page.
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Normalize clamps the pagination to the allowed window.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 10
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// BoundingBox is a rectangular latitude/longitude window.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// RadiusSearch selects points within Meters of the centre by great-circle
// distance.
type RadiusSearch struct {
	Lat    float64
	Lon    float64
	Meters float64
}

// BuildingFilter narrows building listings. Zero values mean "no constraint".
type BuildingFilter struct {
	IDs          []string
	AddressILike string
	LatitudeGE   *float64
	LatitudeLE   *float64
	LongitudeGE  *float64
	LongitudeLE  *float64
}

// ActivityFilter narrows activity listings.
type ActivityFilter struct {
	IDs       []string
	ParentID  *string
	NameILike string
}

// OrganizationFilter narrows organization listings. ActivityIDs matches direct
// links only; ActivityIDsWithChildren expands each id over the activity tree.
type OrganizationFilter struct {
	IDs                     []string
	BuildingIDs             []string
	NameILike               string
	ActivityIDs             []string
	ActivityIDsWithChildren []string
	BBox                    *BoundingBox
	Radius                  *RadiusSearch
}

// BuildingStore persists buildings. Get and Delete report missing rows with
// sql.ErrNoRows; Delete reports referencing organizations as a conflict.
type BuildingStore interface {
	CreateBuilding(ctx context.Context, b building.Building) (building.Building, error)
	UpdateBuilding(ctx context.Context, b building.Building) (building.Building, error)
	GetBuilding(ctx context.Context, id string) (building.Building, error)
	ListBuildings(ctx context.Context, filter BuildingFilter, p Pagination) ([]building.Building, int, error)
	DeleteBuilding(ctx context.Context, id string) error
}

// ActivityStore persists the activity tree.
type ActivityStore interface {
	CreateActivity(ctx context.Context, a activity.Activity) (activity.Activity, error)
	UpdateActivity(ctx context.Context, a activity.Activity) (activity.Activity, error)
	GetActivity(ctx context.Context, id string) (activity.Activity, error)
	ListActivities(ctx context.Context, filter ActivityFilter, p Pagination) ([]activity.Activity, int, error)
	DeleteActivity(ctx context.Context, id string) error

	// CountActivities reports how many of the given ids exist.
	CountActivities(ctx context.Context, ids []string) (int, error)
}

// OrganizationStore persists organizations and their activity links.
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, o organization.Organization) (organization.Organization, error)
	UpdateOrganization(ctx context.Context, o organization.Organization) (organization.Organization, error)
	GetOrganization(ctx context.Context, id string) (organization.Organization, error)
	ListOrganizations(ctx context.Context, filter OrganizationFilter, p Pagination) ([]organization.Organization, int, error)
	DeleteOrganization(ctx context.Context, id string) error
}
