package models

import "time"

// Skill is one entry of the taxonomy shared by profiles and jobs.
// Names are unique by convention only.
type Skill struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"type:varchar(120);not null;index" json:"name"`
	Category string `gorm:"type:varchar(120);index" json:"category"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
