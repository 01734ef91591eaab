package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ServiceArea is a circle a freelancer is willing to travel within.
type ServiceArea struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Label    string    `gorm:"type:varchar(120)" json:"label"`
	Center   Point     `gorm:"not null" json:"center"`
	RadiusKm float64   `gorm:"not null" json:"radius_km"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *ServiceArea) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return
}

type SavedLocation struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID      `gorm:"type:uuid;index;not null" json:"user_id"`
	Label            string         `gorm:"type:varchar(120)" json:"label"`
	Address          string         `gorm:"type:text" json:"address"`
	FormattedAddress string         `gorm:"type:text" json:"formatted_address"`
	Location         Point          `json:"location"`
	Components       datatypes.JSON `json:"components,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *SavedLocation) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return
}
