package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

// ErrRoleImmutable is returned when an update tries to change User.Role.
var ErrRoleImmutable = errors.New("user role cannot be changed after creation")

func (r Role) Valid() bool {
	return r == RoleClient || r == RoleFreelancer || r == RoleAdmin
}

// internal/models/user.go
type User struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name  string    `gorm:"not null" json:"name"`
	Email string    `gorm:"uniqueIndex;not null" json:"email"`
	Phone *string   `gorm:"type:varchar(30);uniqueIndex" json:"phone"`

	Password   string `gorm:"not null" json:"-"`
	Role       Role   `gorm:"type:varchar(20);not null;index" json:"role"`
	IsActive   bool   `gorm:"default:true" json:"is_active"`
	IsVerified bool   `gorm:"default:false;index" json:"is_verified"`

	// Location + address
	Location          Point          `json:"location"`
	AddressLine       string         `gorm:"type:text" json:"address_line"`
	City              string         `gorm:"type:varchar(120)" json:"city"`
	State             string         `gorm:"type:varchar(120)" json:"state"`
	PostalCode        string         `gorm:"type:varchar(20)" json:"postal_code"`
	Country           string         `gorm:"type:varchar(80)" json:"country"`
	FormattedAddress  string         `gorm:"type:text" json:"formatted_address"`
	AddressComponents datatypes.JSON `json:"address_components,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FreelancerProfile *FreelancerProfile `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"freelancer_profile,omitempty"`
	ClientProfile     *ClientProfile     `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"client_profile,omitempty"`
	ServiceAreas      []ServiceArea      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	SavedLocations    []SavedLocation    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}

// BeforeUpdate rejects role changes; role is fixed at registration.
// Changed catches Update/Updates with a role column. Save writes the model
// itself, so the stored role is read back and compared.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("Role") {
		return ErrRoleImmutable
	}
	if u.ID == uuid.Nil || u.Role == "" {
		return nil
	}

	var stored User
	err := tx.Session(&gorm.Session{NewDB: true}).
		Select("role").
		Where("id = ?", u.ID).
		Take(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if stored.Role != u.Role {
		return ErrRoleImmutable
	}
	return nil
}
