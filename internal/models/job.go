// internal/models/job.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatusDraft      JobStatus = "draft"
	JobStatusOpen       JobStatus = "open"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// jobTransitions lists the forward moves a job may make.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusDraft:      {JobStatusOpen, JobStatusCancelled},
	JobStatusOpen:       {JobStatusInProgress, JobStatusCancelled},
	JobStatusInProgress: {JobStatusCompleted, JobStatusCancelled},
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusDraft, JobStatusOpen, JobStatusInProgress, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, to := range jobTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return len(jobTransitions[s]) == 0
}

type BudgetType string

const (
	BudgetFixed  BudgetType = "fixed"
	BudgetHourly BudgetType = "hourly"
)

type Job struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID uuid.UUID `gorm:"type:uuid;index;not null" json:"client_id"`

	Title       string `gorm:"type:varchar(200);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Category    string `gorm:"type:varchar(120);index" json:"category"`

	BudgetType BudgetType      `gorm:"type:varchar(20);not null;default:'fixed'" json:"budget_type"`
	Budget     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"budget"`
	HourlyRate decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"hourly_rate"`

	Location         Point  `json:"location"`
	AddressLine      string `gorm:"type:text" json:"address_line"`
	City             string `gorm:"type:varchar(120)" json:"city"`
	FormattedAddress string `gorm:"type:text" json:"formatted_address"`

	Status JobStatus `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Client *User   `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE" json:"client,omitempty"`
	Skills []Skill `gorm:"many2many:job_skills;constraint:OnDelete:CASCADE" json:"skills"`
	Bids   []Bid   `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"-"`
}

func (j *Job) BeforeCreate(tx *gorm.DB) (err error) {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = JobStatusDraft
	}
	return
}
