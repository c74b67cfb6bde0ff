// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/orgmgr/orgmgr/internal/domain/activity"
	"github.com/orgmgr/orgmgr/internal/domain/building"
	"github.com/orgmgr/orgmgr/internal/domain/organization"
	"github.com/orgmgr/orgmgr/internal/errors"
	"github.com/orgmgr/orgmgr/internal/storage"
)

// Store implements the storage interfaces using a sqlx database handle.
type Store struct {
	db *sqlx.DB
}

var _ storage.BuildingStore = (*Store)(nil)
var _ storage.ActivityStore = (*Store)(nil)
var _ storage.OrganizationStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const fkViolation = "23503"

// --- BuildingStore ----------------------------------------------------------

type buildingRow struct {
	ID        string    `db:"id"`
	Address   string    `db:"address"`
	Latitude  float64   `db:"latitude"`
	Longitude float64   `db:"longitude"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r buildingRow) toDomain() building.Building {
	return building.Building(r)
}

func (s *Store) CreateBuilding(ctx context.Context, b building.Building) (building.Building, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buildings (id, address, latitude, longitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.Address, b.Latitude, b.Longitude, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return building.Building{}, err
	}
	return b, nil
}

func (s *Store) UpdateBuilding(ctx context.Context, b building.Building) (building.Building, error) {
	existing, err := s.GetBuilding(ctx, b.ID)
	if err != nil {
		return building.Building{}, err
	}
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE buildings
		SET address = $2, latitude = $3, longitude = $4, updated_at = $5
		WHERE id = $1
	`, b.ID, b.Address, b.Latitude, b.Longitude, b.UpdatedAt)
	if err != nil {
		return building.Building{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return building.Building{}, sql.ErrNoRows
	}
	return b, nil
}

func (s *Store) GetBuilding(ctx context.Context, id string) (building.Building, error) {
	var row buildingRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, address, latitude, longitude, created_at, updated_at
		FROM buildings
		WHERE id = $1
	`, id)
	if err != nil {
		return building.Building{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListBuildings(ctx context.Context, filter storage.BuildingFilter, p storage.Pagination) ([]building.Building, int, error) {
	p = p.Normalize()

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.IDs) > 0 {
		conds = append(conds, "id = ANY("+arg(pq.Array(filter.IDs))+")")
	}
	if filter.AddressILike != "" {
		conds = append(conds, "address ILIKE "+arg("%"+filter.AddressILike+"%"))
	}
	if filter.LatitudeGE != nil {
		conds = append(conds, "latitude >= "+arg(*filter.LatitudeGE))
	}
	if filter.LatitudeLE != nil {
		conds = append(conds, "latitude <= "+arg(*filter.LatitudeLE))
	}
	if filter.LongitudeGE != nil {
		conds = append(conds, "longitude >= "+arg(*filter.LongitudeGE))
	}
	if filter.LongitudeLE != nil {
		conds = append(conds, "longitude <= "+arg(*filter.LongitudeLE))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT count(*) FROM buildings"+where, args...); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, address, latitude, longitude, created_at, updated_at
		FROM buildings` + where +
		" ORDER BY created_at LIMIT " + arg(p.Limit) + " OFFSET " + arg(p.Offset())

	var rows []buildingRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, err
	}

	result := make([]building.Building, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, total, nil
}

func (s *Store) DeleteBuilding(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM buildings WHERE id = $1`, id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == fkViolation {
			return errors.Conflict("building " + id + " is referenced by organizations")
		}
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- ActivityStore ----------------------------------------------------------

type activityRow struct {
	ID        string         `db:"id"`
	ParentID  sql.NullString `db:"parent_id"`
	Name      string         `db:"name"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r activityRow) toDomain() activity.Activity {
	a := activity.Activity{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ParentID.Valid {
		parent := r.ParentID.String
		a.ParentID = &parent
	}
	return a
}

func nullableID(id *string) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func (s *Store) CreateActivity(ctx context.Context, a activity.Activity) (activity.Activity, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, parent_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, nullableID(a.ParentID), a.Name, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return activity.Activity{}, err
	}
	return a, nil
}

func (s *Store) UpdateActivity(ctx context.Context, a activity.Activity) (activity.Activity, error) {
	existing, err := s.GetActivity(ctx, a.ID)
	if err != nil {
		return activity.Activity{}, err
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE activities
		SET parent_id = $2, name = $3, updated_at = $4
		WHERE id = $1
	`, a.ID, nullableID(a.ParentID), a.Name, a.UpdatedAt)
	if err != nil {
		return activity.Activity{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return activity.Activity{}, sql.ErrNoRows
	}
	return a, nil
}

func (s *Store) GetActivity(ctx context.Context, id string) (activity.Activity, error) {
	var row activityRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, parent_id, name, created_at, updated_at
		FROM activities
		WHERE id = $1
	`, id)
	if err != nil {
		return activity.Activity{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListActivities(ctx context.Context, filter storage.ActivityFilter, p storage.Pagination) ([]activity.Activity, int, error) {
	p = p.Normalize()

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.IDs) > 0 {
		conds = append(conds, "id = ANY("+arg(pq.Array(filter.IDs))+")")
	}
	if filter.ParentID != nil {
		conds = append(conds, "parent_id = "+arg(*filter.ParentID))
	}
	if filter.NameILike != "" {
		conds = append(conds, "name ILIKE "+arg("%"+filter.NameILike+"%"))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT count(*) FROM activities"+where, args...); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, parent_id, name, created_at, updated_at
		FROM activities` + where +
		" ORDER BY created_at LIMIT " + arg(p.Limit) + " OFFSET " + arg(p.Offset())

	var rows []activityRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, err
	}

	result := make([]activity.Activity, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, total, nil
}

// DeleteActivity removes the activity; descendants and organization links go
// with it via ON DELETE CASCADE.
func (s *Store) DeleteActivity(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) CountActivities(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT count(*) FROM activities WHERE id = ANY($1)`, pq.Array(ids))
	return count, err
}

// --- OrganizationStore ------------------------------------------------------

type organizationRow struct {
	ID           string         `db:"id"`
	BuildingID   string         `db:"building_id"`
	Name         string         `db:"name"`
	PhoneNumbers pq.StringArray `db:"phone_numbers"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r organizationRow) toDomain() organization.Organization {
	return organization.Organization{
		ID:           r.ID,
		BuildingID:   r.BuildingID,
		Name:         r.Name,
		PhoneNumbers: append([]string(nil), r.PhoneNumbers...),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (s *Store) CreateOrganization(ctx context.Context, o organization.Organization) (organization.Organization, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return organization.Organization{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organizations (id, building_id, name, phone_numbers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.ID, o.BuildingID, o.Name, pq.Array(o.PhoneNumbers), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return organization.Organization{}, err
	}

	if err := replaceActivityLinks(ctx, tx, o.ID, o.ActivityIDs); err != nil {
		return organization.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return organization.Organization{}, err
	}
	return o, nil
}

func (s *Store) UpdateOrganization(ctx context.Context, o organization.Organization) (organization.Organization, error) {
	existing, err := s.GetOrganization(ctx, o.ID)
	if err != nil {
		return organization.Organization{}, err
	}
	o.CreatedAt = existing.CreatedAt
	o.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return organization.Organization{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx, `
		UPDATE organizations
		SET building_id = $2, name = $3, phone_numbers = $4, updated_at = $5
		WHERE id = $1
	`, o.ID, o.BuildingID, o.Name, pq.Array(o.PhoneNumbers), o.UpdatedAt)
	if err != nil {
		return organization.Organization{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return organization.Organization{}, sql.ErrNoRows
	}

	if err := replaceActivityLinks(ctx, tx, o.ID, o.ActivityIDs); err != nil {
		return organization.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return organization.Organization{}, err
	}
	return o, nil
}

func replaceActivityLinks(ctx context.Context, tx *sqlx.Tx, orgID string, activityIDs []string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM organization_activities WHERE organization_id = $1`, orgID); err != nil {
		return err
	}
	for _, aid := range activityIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO organization_activities (organization_id, activity_id)
			VALUES ($1, $2)
		`, orgID, aid); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (organization.Organization, error) {
	var row organizationRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, building_id, name, phone_numbers, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`, id)
	if err != nil {
		return organization.Organization{}, err
	}

	o := row.toDomain()
	if err := s.db.SelectContext(ctx, &o.ActivityIDs, `
		SELECT activity_id FROM organization_activities WHERE organization_id = $1 ORDER BY activity_id
	`, id); err != nil {
		return organization.Organization{}, err
	}
	return o, nil
}

func (s *Store) ListOrganizations(ctx context.Context, filter storage.OrganizationFilter, p storage.Pagination) ([]organization.Organization, int, error) {
	p = p.Normalize()

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.IDs) > 0 {
		conds = append(conds, "o.id = ANY("+arg(pq.Array(filter.IDs))+")")
	}
	if len(filter.BuildingIDs) > 0 {
		conds = append(conds, "o.building_id = ANY("+arg(pq.Array(filter.BuildingIDs))+")")
	}
	if filter.NameILike != "" {
		conds = append(conds, "o.name ILIKE "+arg("%"+filter.NameILike+"%"))
	}
	if len(filter.ActivityIDs) > 0 {
		conds = append(conds, `o.id IN (
			SELECT organization_id FROM organization_activities
			WHERE activity_id = ANY(`+arg(pq.Array(filter.ActivityIDs))+`)
		)`)
	}
	if len(filter.ActivityIDsWithChildren) > 0 {
		conds = append(conds, `o.id IN (
			WITH RECURSIVE activity_tree AS (
				SELECT id FROM activities WHERE id = ANY(`+arg(pq.Array(filter.ActivityIDsWithChildren))+`)
				UNION ALL
				SELECT a.id FROM activities a
				JOIN activity_tree t ON a.parent_id = t.id
			)
			SELECT organization_id FROM organization_activities
			WHERE activity_id IN (SELECT id FROM activity_tree)
		)`)
	}

	join := ""
	if filter.BBox != nil || filter.Radius != nil {
		join = " JOIN buildings b ON b.id = o.building_id"
	}
	if box := filter.BBox; box != nil {
		conds = append(conds,
			"b.latitude >= "+arg(box.MinLat),
			"b.longitude >= "+arg(box.MinLon),
			"b.latitude <= "+arg(box.MaxLat),
			"b.longitude <= "+arg(box.MaxLon),
		)
	}
	if r := filter.Radius; r != nil {
		// Haversine great-circle distance in meters.
		lat := arg(r.Lat)
		lon := arg(r.Lon)
		conds = append(conds, `2 * 6371000 * asin(sqrt(
			power(sin(radians(b.latitude - `+lat+`) / 2), 2) +
			cos(radians(`+lat+`)) * cos(radians(b.latitude)) *
			power(sin(radians(b.longitude - `+lon+`) / 2), 2)
		)) <= `+arg(r.Meters))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total,
		"SELECT count(*) FROM organizations o"+join+where, args...); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT o.id, o.building_id, o.name, o.phone_numbers, o.created_at, o.updated_at
		FROM organizations o` + join + where +
		" ORDER BY o.created_at LIMIT " + arg(p.Limit) + " OFFSET " + arg(p.Offset())

	var rows []organizationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, err
	}

	result := make([]organization.Organization, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
		ids = append(ids, r.ID)
	}

	if len(ids) > 0 {
		type link struct {
			OrganizationID string `db:"organization_id"`
			ActivityID     string `db:"activity_id"`
		}
		var links []link
		if err := s.db.SelectContext(ctx, &links, `
			SELECT organization_id, activity_id
			FROM organization_activities
			WHERE organization_id = ANY($1)
			ORDER BY activity_id
		`, pq.Array(ids)); err != nil {
			return nil, 0, err
		}
		byOrg := make(map[string][]string, len(ids))
		for _, l := range links {
			byOrg[l.OrganizationID] = append(byOrg[l.OrganizationID], l.ActivityID)
		}
		for i := range result {
			result[i].ActivityIDs = byOrg[result[i].ID]
		}
	}

	return result, total, nil
}

func (s *Store) DeleteOrganization(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
