package organizations

import (
	"context"
	"strings"
	"testing"

	"github.com/orgmgr/orgmgr/internal/domain/activity"
	"github.com/orgmgr/orgmgr/internal/domain/building"
	"github.com/orgmgr/orgmgr/internal/domain/organization"
	apperrors "github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/storage"
	"github.com/orgmgr/orgmgr/internal/storage/memory"
)

type fixture struct {
	svc   *Service
	store *memory.Store
}

func newFixture() fixture {
	store := memory.New()
	return fixture{svc: New(store, store, store, nil), store: store}
}

func (f fixture) building(t *testing.T, address string, lat, lon float64) building.Building {
	t.Helper()
	b, err := f.store.CreateBuilding(context.Background(), building.Building{Address: address, Latitude: lat, Longitude: lon})
	if err != nil {
		t.Fatalf("create building: %v", err)
	}
	return b
}

func (f fixture) activity(t *testing.T, name string, parentID *string) activity.Activity {
	t.Helper()
	a, err := f.store.CreateActivity(context.Background(), activity.Activity{Name: name, ParentID: parentID})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	return a
}

func TestCreateOrganization(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	b := f.building(t, "1 Main St", 55.75, 37.61)
	a := f.activity(t, "Food", nil)

	created, err := f.svc.Create(ctx, organization.Organization{
		Name:         "  Horns and Hooves  ",
		BuildingID:   b.ID,
		PhoneNumbers: []string{"+74951234567"},
		ActivityIDs:  []string{a.ID, a.ID},
	})
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	if created.Name != "Horns and Hooves" {
		t.Fatalf("expected trimmed name, got %q", created.Name)
	}
	if len(created.ActivityIDs) != 1 {
		t.Fatalf("expected deduplicated activity ids, got %v", created.ActivityIDs)
	}
}

func TestCreateOrganizationValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.building(t, "1 Main St", 0, 0)

	cases := []struct {
		name string
		org  organization.Organization
		code apperrors.Code
	}{
		{
			name: "empty name",
			org:  organization.Organization{BuildingID: b.ID},
			code: apperrors.CodeValidationFailed,
		},
		{
			name: "bad phone",
			org:  organization.Organization{Name: "x", BuildingID: b.ID, PhoneNumbers: []string{"12345"}},
			code: apperrors.CodeValidationFailed,
		},
		{
			name: "missing building",
			org:  organization.Organization{Name: "x", BuildingID: "missing"},
			code: apperrors.CodeNotFound,
		},
		{
			name: "missing activity",
			org:  organization.Organization{Name: "x", BuildingID: b.ID, ActivityIDs: []string{"missing"}},
			code: apperrors.CodeBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.org)
			se := apperrors.GetServiceError(err)
			if se == nil || se.Code != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, err)
			}
		})
	}
}

func TestUpdateOrganization(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.building(t, "1 Main St", 0, 0)

	created, err := f.svc.Create(ctx, organization.Organization{Name: "old", BuildingID: b.ID})
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}

	created.Name = "new"
	updated, err := f.svc.Update(ctx, created)
	if err != nil {
		t.Fatalf("update organization: %v", err)
	}
	if updated.Name != "new" {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}

	created.ID = "missing"
	if _, err := f.svc.Update(ctx, created); err == nil {
		t.Fatal("expected not found for missing id")
	}
}

func TestListOrganizationsByActivityWithChildren(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.building(t, "1 Main St", 0, 0)

	food := f.activity(t, "Food", nil)
	meat := f.activity(t, "Meat", &food.ID)
	cars := f.activity(t, "Cars", nil)

	if _, err := f.svc.Create(ctx, organization.Organization{Name: "Butcher", BuildingID: b.ID, ActivityIDs: []string{meat.ID}}); err != nil {
		t.Fatalf("create organization: %v", err)
	}
	if _, err := f.svc.Create(ctx, organization.Organization{Name: "Garage", BuildingID: b.ID, ActivityIDs: []string{cars.ID}}); err != nil {
		t.Fatalf("create organization: %v", err)
	}

	// Direct match only finds organizations linked to the exact id.
	_, total, err := f.svc.List(ctx, storage.OrganizationFilter{ActivityIDs: []string{food.ID}}, storage.Pagination{})
	if err != nil {
		t.Fatalf("list organizations: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected 0 direct matches, got %d", total)
	}

	// Tree expansion pulls in descendants.
	items, total, err := f.svc.List(ctx, storage.OrganizationFilter{ActivityIDsWithChildren: []string{food.ID}}, storage.Pagination{})
	if err != nil {
		t.Fatalf("list organizations: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Name != "Butcher" {
		t.Fatalf("expected the butcher via tree expansion, got total=%d items=%v", total, items)
	}
}

func TestListOrganizationsCombinedActivityFilters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.building(t, "1 Main St", 0, 0)

	food := f.activity(t, "Food", nil)
	meat := f.activity(t, "Meat", &food.ID)
	cars := f.activity(t, "Cars", nil)

	if _, err := f.svc.Create(ctx, organization.Organization{Name: "Garage", BuildingID: b.ID, ActivityIDs: []string{cars.ID}}); err != nil {
		t.Fatalf("create organization: %v", err)
	}
	if _, err := f.svc.Create(ctx, organization.Organization{Name: "Butcher", BuildingID: b.ID, ActivityIDs: []string{meat.ID, cars.ID}}); err != nil {
		t.Fatalf("create organization: %v", err)
	}

	// Both filters apply as independent conditions: the garage matches the
	// direct filter but not the tree filter.
	items, total, err := f.svc.List(ctx, storage.OrganizationFilter{
		ActivityIDs:             []string{cars.ID},
		ActivityIDsWithChildren: []string{food.ID},
	}, storage.Pagination{})
	if err != nil {
		t.Fatalf("list organizations: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Name != "Butcher" {
		t.Fatalf("expected only the butcher to match both filters, got total=%d items=%v", total, items)
	}
}

func TestNameLengthCountsRunes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.building(t, "1 Main St", 0, 0)

	_, err := f.svc.Create(ctx, organization.Organization{Name: strings.Repeat("x", 256), BuildingID: b.ID})
	se := apperrors.GetServiceError(err)
	if se == nil || se.Code != apperrors.CodeValidationFailed {
		t.Fatalf("expected validation error for long name, got %v", err)
	}

	// 255 Cyrillic characters exceed 255 bytes but stay within the limit.
	if _, err := f.svc.Create(ctx, organization.Organization{Name: strings.Repeat("щ", 255), BuildingID: b.ID}); err != nil {
		t.Fatalf("expected 255-rune name to pass, got %v", err)
	}
}

func TestListOrganizationsGeo(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	near := f.building(t, "Near", 55.7500, 37.6100)
	far := f.building(t, "Far", 59.9300, 30.3600)

	if _, err := f.svc.Create(ctx, organization.Organization{Name: "Near Org", BuildingID: near.ID}); err != nil {
		t.Fatalf("create organization: %v", err)
	}
	if _, err := f.svc.Create(ctx, organization.Organization{Name: "Far Org", BuildingID: far.ID}); err != nil {
		t.Fatalf("create organization: %v", err)
	}

	items, total, err := f.svc.List(ctx, storage.OrganizationFilter{
		BBox: &storage.BoundingBox{MinLat: 55, MinLon: 37, MaxLat: 56, MaxLon: 38},
	}, storage.Pagination{})
	if err != nil {
		t.Fatalf("list organizations: %v", err)
	}
	if total != 1 || items[0].Name != "Near Org" {
		t.Fatalf("expected only the near org in bbox, got total=%d", total)
	}

	items, total, err = f.svc.List(ctx, storage.OrganizationFilter{
		Radius: &storage.RadiusSearch{Lat: 55.7500, Lon: 37.6100, Meters: 5000},
	}, storage.Pagination{})
	if err != nil {
		t.Fatalf("list organizations: %v", err)
	}
	if total != 1 || items[0].Name != "Near Org" {
		t.Fatalf("expected only the near org in radius, got total=%d", total)
	}
}

func TestDeleteOrganization(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.building(t, "1 Main St", 0, 0)

	created, err := f.svc.Create(ctx, organization.Organization{Name: "x", BuildingID: b.ID})
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	if err := f.svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete organization: %v", err)
	}

	err = f.svc.Delete(ctx, created.ID)
	se := apperrors.GetServiceError(err)
	if se == nil || se.Code != apperrors.CodeNotFound {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteBuildingReferencedByOrganization(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	b := f.building(t, "1 Main St", 0, 0)

	if _, err := f.svc.Create(ctx, organization.Organization{Name: "x", BuildingID: b.ID}); err != nil {
		t.Fatalf("create organization: %v", err)
	}

	err := f.store.DeleteBuilding(ctx, b.ID)
	se := apperrors.GetServiceError(err)
	if se == nil || se.Code != apperrors.CodeConflict {
		t.Fatalf("expected conflict deleting referenced building, got %v", err)
	}
}
