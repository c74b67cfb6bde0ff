// Package activity defines the activity (business category) entity.
package activity

import "time"

// MaxNestingLevel caps the depth of the activity tree.
const MaxNestingLevel = 3

// Activity is a node in the category tree. A nil ParentID marks a root.
type Activity struct {
	ID        string    `json:"id"`
	ParentID  *string   `json:"parent_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
