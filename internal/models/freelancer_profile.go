// internal/models/freelancer_profile.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type FreelancerProfile struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	Bio         string          `gorm:"type:text" json:"bio"`
	HourlyRate  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"hourly_rate"`
	IsAvailable bool            `gorm:"default:true;index" json:"is_available"`

	// Derived from reviews, recomputed by the rating service.
	AvgRating   float64 `gorm:"not null;default:0" json:"avg_rating"`
	ReviewCount int     `gorm:"not null;default:0" json:"review_count"`

	Skills []Skill `gorm:"many2many:freelancer_skills;constraint:OnDelete:CASCADE" json:"skills"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (p *FreelancerProfile) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return
}

type ClientProfile struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	CompanyName string `gorm:"type:varchar(160)" json:"company_name"`
	Website     string `gorm:"type:varchar(255)" json:"website"`
	About       string `gorm:"type:text" json:"about"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *ClientProfile) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return
}
