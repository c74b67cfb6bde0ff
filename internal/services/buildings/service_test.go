package buildings

import (
	"context"
	"testing"

	"github.com/orgmgr/orgmgr/internal/domain/building"
	apperrors "github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/storage"
	"github.com/orgmgr/orgmgr/internal/storage/memory"
)

func newService() *Service {
	return New(memory.New(), nil)
}

func TestCreateBuilding(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.Create(ctx, building.Building{
		Address:   "  1 Main St  ",
		Latitude:  55.75,
		Longitude: 37.61,
	})
	if err != nil {
		t.Fatalf("create building: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.Address != "1 Main St" {
		t.Fatalf("expected trimmed address, got %q", created.Address)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get building: %v", err)
	}
	if got.Latitude != 55.75 || got.Longitude != 37.61 {
		t.Fatalf("unexpected coordinates: %v %v", got.Latitude, got.Longitude)
	}
}

func TestCreateBuildingValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, building.Building{Address: "   "}); err == nil {
		t.Fatal("expected error for empty address")
	}

	_, err := svc.Create(ctx, building.Building{Address: "x", Latitude: 91})
	se := apperrors.GetServiceError(err)
	if se == nil || se.Code != apperrors.CodeValidationFailed {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := svc.Create(ctx, building.Building{Address: "x", Longitude: -181}); err == nil {
		t.Fatal("expected error for longitude out of range")
	}
}

func TestGetBuildingNotFound(t *testing.T) {
	svc := newService()

	_, err := svc.Get(context.Background(), "missing")
	se := apperrors.GetServiceError(err)
	if se == nil || se.Code != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateBuilding(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.Create(ctx, building.Building{Address: "old", Latitude: 1, Longitude: 2})
	if err != nil {
		t.Fatalf("create building: %v", err)
	}

	created.Address = "new"
	updated, err := svc.Update(ctx, created)
	if err != nil {
		t.Fatalf("update building: %v", err)
	}
	if updated.Address != "new" {
		t.Fatalf("expected updated address, got %q", updated.Address)
	}

	created.ID = "missing"
	if _, err := svc.Update(ctx, created); err == nil {
		t.Fatal("expected not found for missing id")
	}
}

func TestListBuildingsFilterAndPagination(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		if _, err := svc.Create(ctx, building.Building{
			Address:   "Lenina Ave",
			Latitude:  float64(i),
			Longitude: 10,
		}); err != nil {
			t.Fatalf("create building: %v", err)
		}
	}

	items, total, err := svc.List(ctx, storage.BuildingFilter{AddressILike: "lenina"}, storage.Pagination{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("list buildings: %v", err)
	}
	if total != 15 {
		t.Fatalf("expected total 15, got %d", total)
	}
	if len(items) != 5 {
		t.Fatalf("expected 5 items on page 2, got %d", len(items))
	}

	min := 5.0
	items, total, err = svc.List(ctx, storage.BuildingFilter{LatitudeGE: &min}, storage.Pagination{Page: 1, Limit: 100})
	if err != nil {
		t.Fatalf("list buildings: %v", err)
	}
	if total != 10 || len(items) != 10 {
		t.Fatalf("expected 10 matches for latitude >= 5, got total=%d len=%d", total, len(items))
	}
}

func TestDeleteBuilding(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.Create(ctx, building.Building{Address: "x", Latitude: 0, Longitude: 0})
	if err != nil {
		t.Fatalf("create building: %v", err)
	}
	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete building: %v", err)
	}
	if err := svc.Delete(ctx, created.ID); err == nil {
		t.Fatal("expected not found on second delete")
	}
}
