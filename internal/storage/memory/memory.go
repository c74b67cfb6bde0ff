// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orgmgr/orgmgr/internal/domain/activity"
	"github.com/orgmgr/orgmgr/internal/domain/building"
	"github.com/orgmgr/orgmgr/internal/domain/organization"
	"github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/storage"
)

// Store is the in-memory store.
type Store struct {
	mu            sync.RWMutex
	buildings     map[string]building.Building
	activities    map[string]activity.Activity
	organizations map[string]organization.Organization
}

var _ storage.BuildingStore = (*Store)(nil)
var _ storage.ActivityStore = (*Store)(nil)
var _ storage.OrganizationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		buildings:     make(map[string]building.Building),
		activities:    make(map[string]activity.Activity),
		organizations: make(map[string]organization.Organization),
	}
}

// --- BuildingStore ----------------------------------------------------------

func (s *Store) CreateBuilding(_ context.Context, b building.Building) (building.Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.buildings[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBuilding(_ context.Context, b building.Building) (building.Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.buildings[b.ID]
	if !ok {
		return building.Building{}, sql.ErrNoRows
	}
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	s.buildings[b.ID] = b
	return b, nil
}

func (s *Store) GetBuilding(_ context.Context, id string) (building.Building, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buildings[id]
	if !ok {
		return building.Building{}, sql.ErrNoRows
	}
	return b, nil
}

func (s *Store) ListBuildings(_ context.Context, filter storage.BuildingFilter, p storage.Pagination) ([]building.Building, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []building.Building
	for _, b := range s.buildings {
		if !matchBuilding(b, filter) {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })

	total := len(matched)
	return paginate(matched, p), total, nil
}

func (s *Store) DeleteBuilding(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buildings[id]; !ok {
		return sql.ErrNoRows
	}
	for _, o := range s.organizations {
		if o.BuildingID == id {
			return errors.Conflict("building " + id + " is referenced by organizations")
		}
	}
	delete(s.buildings, id)
	return nil
}

func matchBuilding(b building.Building, f storage.BuildingFilter) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, b.ID) {
		return false
	}
	if f.AddressILike != "" && !icontains(b.Address, f.AddressILike) {
		return false
	}
	if f.LatitudeGE != nil && b.Latitude < *f.LatitudeGE {
		return false
	}
	if f.LatitudeLE != nil && b.Latitude > *f.LatitudeLE {
		return false
	}
	if f.LongitudeGE != nil && b.Longitude < *f.LongitudeGE {
		return false
	}
	if f.LongitudeLE != nil && b.Longitude > *f.LongitudeLE {
		return false
	}
	return true
}

// --- ActivityStore ----------------------------------------------------------

func (s *Store) CreateActivity(_ context.Context, a activity.Activity) (activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.activities[a.ID] = a
	return a, nil
}

func (s *Store) UpdateActivity(_ context.Context, a activity.Activity) (activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.activities[a.ID]
	if !ok {
		return activity.Activity{}, sql.ErrNoRows
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.activities[a.ID] = a
	return a, nil
}

func (s *Store) GetActivity(_ context.Context, id string) (activity.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.activities[id]
	if !ok {
		return activity.Activity{}, sql.ErrNoRows
	}
	return a, nil
}

func (s *Store) ListActivities(_ context.Context, filter storage.ActivityFilter, p storage.Pagination) ([]activity.Activity, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []activity.Activity
	for _, a := range s.activities {
		if len(filter.IDs) > 0 && !contains(filter.IDs, a.ID) {
			continue
		}
		if filter.ParentID != nil && (a.ParentID == nil || *a.ParentID != *filter.ParentID) {
			continue
		}
		if filter.NameILike != "" && !icontains(a.Name, filter.NameILike) {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })

	total := len(matched)
	return paginate(matched, p), total, nil
}

// DeleteActivity removes the activity, its descendants, and any organization
// links, mirroring the CASCADE behavior of the SQL schema.
func (s *Store) DeleteActivity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.activities[id]; !ok {
		return sql.ErrNoRows
	}

	doomed := s.expandWithChildrenLocked([]string{id})
	for _, aid := range doomed {
		delete(s.activities, aid)
	}
	for oid, o := range s.organizations {
		o.ActivityIDs = without(o.ActivityIDs, doomed)
		s.organizations[oid] = o
	}
	return nil
}

func (s *Store) CountActivities(_ context.Context, ids []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range ids {
		if _, ok := s.activities[id]; ok {
			count++
		}
	}
	return count, nil
}

// expandWithChildrenLocked returns the given ids plus all their descendants.
func (s *Store) expandWithChildrenLocked(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	queue := append([]string(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, a := range s.activities {
			if a.ParentID != nil && *a.ParentID == id {
				queue = append(queue, a.ID)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// --- OrganizationStore ------------------------------------------------------

func (s *Store) CreateOrganization(_ context.Context, o organization.Organization) (organization.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.PhoneNumbers = append([]string(nil), o.PhoneNumbers...)
	o.ActivityIDs = append([]string(nil), o.ActivityIDs...)
	s.organizations[o.ID] = o
	return o, nil
}

func (s *Store) UpdateOrganization(_ context.Context, o organization.Organization) (organization.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.organizations[o.ID]
	if !ok {
		return organization.Organization{}, sql.ErrNoRows
	}
	o.CreatedAt = existing.CreatedAt
	o.UpdatedAt = time.Now().UTC()
	o.PhoneNumbers = append([]string(nil), o.PhoneNumbers...)
	o.ActivityIDs = append([]string(nil), o.ActivityIDs...)
	s.organizations[o.ID] = o
	return o, nil
}

func (s *Store) GetOrganization(_ context.Context, id string) (organization.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.organizations[id]
	if !ok {
		return organization.Organization{}, sql.ErrNoRows
	}
	return o, nil
}

func (s *Store) ListOrganizations(_ context.Context, filter storage.OrganizationFilter, p storage.Pagination) ([]organization.Organization, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Direct and tree-expanded activity filters are independent conditions,
	// matching the SQL store.
	var expandedIDs []string
	if len(filter.ActivityIDsWithChildren) > 0 {
		expandedIDs = s.expandWithChildrenLocked(filter.ActivityIDsWithChildren)
	}

	var matched []organization.Organization
	for _, o := range s.organizations {
		if len(filter.IDs) > 0 && !contains(filter.IDs, o.ID) {
			continue
		}
		if len(filter.BuildingIDs) > 0 && !contains(filter.BuildingIDs, o.BuildingID) {
			continue
		}
		if filter.NameILike != "" && !icontains(o.Name, filter.NameILike) {
			continue
		}
		if len(filter.ActivityIDs) > 0 && !intersects(o.ActivityIDs, filter.ActivityIDs) {
			continue
		}
		if len(expandedIDs) > 0 && !intersects(o.ActivityIDs, expandedIDs) {
			continue
		}
		if filter.BBox != nil || filter.Radius != nil {
			b, ok := s.buildings[o.BuildingID]
			if !ok {
				continue
			}
			if filter.BBox != nil && !inBBox(b, *filter.BBox) {
				continue
			}
			if filter.Radius != nil &&
				haversineMeters(filter.Radius.Lat, filter.Radius.Lon, b.Latitude, b.Longitude) > filter.Radius.Meters {
				continue
			}
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })

	total := len(matched)
	return paginate(matched, p), total, nil
}

func (s *Store) DeleteOrganization(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.organizations[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.organizations, id)
	return nil
}

// --- helpers ----------------------------------------------------------------

func paginate[T any](items []T, p storage.Pagination) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return append([]T(nil), items[start:end]...)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		if contains(b, x) {
			return true
		}
	}
	return false
}

func without(list []string, remove []string) []string {
	var out []string
	for _, x := range list {
		if !contains(remove, x) {
			out = append(out, x)
		}
	}
	return out
}

func icontains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func inBBox(b building.Building, box storage.BoundingBox) bool {
	return b.Latitude >= box.MinLat && b.Latitude <= box.MaxLat &&
		b.Longitude >= box.MinLon && b.Longitude <= box.MaxLon
}

const earthRadiusMeters = 6371000

// haversineMeters computes the great-circle distance between two points.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
