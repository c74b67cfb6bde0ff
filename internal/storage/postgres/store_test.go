package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/orgmgr/orgmgr/internal/domain/building"
	"github.com/orgmgr/orgmgr/internal/domain/organization"
	apperrors "github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestCreateBuildingInsert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO buildings")).
		WithArgs(sqlmock.AnyArg(), "1 Main St", 55.75, 37.61, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.CreateBuilding(context.Background(), building.Building{
		Address:   "1 Main St",
		Latitude:  55.75,
		Longitude: 37.61,
	})
	if err != nil {
		t.Fatalf("create building: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetBuildingMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, address, latitude, longitude, created_at, updated_at")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetBuilding(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestDeleteBuildingFKConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM buildings WHERE id = $1")).
		WithArgs("b1").
		WillReturnError(&pq.Error{Code: pq.ErrorCode(fkViolation)})

	err := store.DeleteBuilding(context.Background(), "b1")
	se := apperrors.GetServiceError(err)
	if se == nil || se.Code != apperrors.CodeConflict {
		t.Fatalf("expected conflict for FK violation, got %v", err)
	}
}

func TestDeleteBuildingMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM buildings WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteBuilding(context.Background(), "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestListBuildingsFilterArgs(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM buildings WHERE address ILIKE $1 AND latitude >= $2")).
		WithArgs("%lenina%", 50.0).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectQuery("SELECT id, address, latitude, longitude, created_at, updated_at").
		WithArgs("%lenina%", 50.0, 10, 0).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "address", "latitude", "longitude", "created_at", "updated_at"}).
			AddRow("b1", "Lenina Ave", 55.75, 37.61, now, now))

	min := 50.0
	items, total, err := store.ListBuildings(context.Background(),
		storage.BuildingFilter{AddressILike: "lenina", LatitudeGE: &min},
		storage.Pagination{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list buildings: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != "b1" {
		t.Fatalf("unexpected result: total=%d items=%v", total, items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateOrganizationTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO organizations")).
		WithArgs(sqlmock.AnyArg(), "b1", "Butcher", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM organization_activities WHERE organization_id = $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO organization_activities")).
		WithArgs(sqlmock.AnyArg(), "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := store.CreateOrganization(context.Background(), organization.Organization{
		BuildingID:  "b1",
		Name:        "Butcher",
		ActivityIDs: []string{"a1"},
	})
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateOrganizationRollsBackOnLinkFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO organizations")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM organization_activities")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO organization_activities")).
		WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	_, err := store.CreateOrganization(context.Background(), organization.Organization{
		BuildingID:  "b1",
		Name:        "Butcher",
		ActivityIDs: []string{"missing"},
	})
	if err == nil {
		t.Fatal("expected error from link insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListOrganizationsRecursiveTree(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("WITH RECURSIVE activity_tree").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT o.id, o.building_id, o.name").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "building_id", "name", "phone_numbers", "created_at", "updated_at"}).
			AddRow("o1", "b1", "Butcher", "{}", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT organization_id, activity_id")).
		WillReturnRows(sqlmock.NewRows([]string{"organization_id", "activity_id"}).
			AddRow("o1", "a2"))

	items, total, err := store.ListOrganizations(context.Background(),
		storage.OrganizationFilter{ActivityIDsWithChildren: []string{"a1"}},
		storage.Pagination{})
	if err != nil {
		t.Fatalf("list organizations: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("unexpected result: total=%d len=%d", total, len(items))
	}
	if len(items[0].ActivityIDs) != 1 || items[0].ActivityIDs[0] != "a2" {
		t.Fatalf("expected linked activity ids, got %v", items[0].ActivityIDs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCountActivitiesEmpty(t *testing.T) {
	store, _ := newMockStore(t)

	n, err := store.CountActivities(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("expected 0 without query, got n=%d err=%v", n, err)
	}
}
