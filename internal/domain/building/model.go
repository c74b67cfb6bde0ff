// Package building defines the building entity.
package building

import (
	"time"

	"github.com/orgmgr/orgmgr/internal/errors"
)

// Building is an addressable location that organizations occupy.
type Building struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateCoordinate checks latitude/longitude bounds.
func ValidateCoordinate(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return errors.Validation("latitude", "latitude must be between -90 and 90 degrees")
	}
	if lon < -180 || lon > 180 {
		return errors.Validation("longitude", "longitude must be between -180 and 180 degrees")
	}
	return nil
}
