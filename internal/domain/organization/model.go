// Package organization defines the organization entity.
package organization

import (
	"regexp"
	"time"

	"github.com/orgmgr/orgmgr/internal/errors"
)

// Organization is a company located in exactly one building and linked to any
// number of activities.
type Organization struct {
	ID           string    `json:"id"`
	BuildingID   string    `json:"building_id"`
	Name         string    `json:"name"`
	PhoneNumbers []string  `json:"phone_numbers"`
	ActivityIDs  []string  `json:"activity_ids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// phoneRe matches international format, e.g. +79998887766.
var phoneRe = regexp.MustCompile(`^\+\d{6,15}$`)

// ValidatePhoneNumber checks the international phone format.
func ValidatePhoneNumber(number string) error {
	if !phoneRe.MatchString(number) {
		return errors.Validation("phone_numbers",
			"invalid phone number "+number+": must be in international format, e.g. +1234567890")
	}
	return nil
}

// ValidatePhoneNumbers checks every number in the list.
func ValidatePhoneNumbers(numbers []string) error {
	for _, n := range numbers {
		if err := ValidatePhoneNumber(n); err != nil {
			return err
		}
	}
	return nil
}
