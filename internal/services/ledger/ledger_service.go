package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/realtime"
)

// JobInput carries the editable fields of a job. Location is expected to be
// resolved by the caller.
type JobInput struct {
	Title            string
	Description      string
	Category         string
	BudgetType       models.BudgetType
	Budget           decimal.Decimal
	HourlyRate       decimal.Decimal
	Location         models.Point
	AddressLine      string
	City             string
	FormattedAddress string
	SkillIDs         []uint
	Publish          bool
}

type JobListFilter struct {
	Status   models.JobStatus
	Category string
	ClientID *uuid.UUID
	Page     int
	PageSize int
}

type LedgerService struct {
	DB  *gorm.DB
	Hub realtime.Notifier
	Log *zap.Logger
}

func NewLedgerService(db *gorm.DB, hub realtime.Notifier, log *zap.Logger) *LedgerService {
	if hub == nil {
		hub = realtime.NopNotifier{}
	}
	return &LedgerService{DB: db, Hub: hub, Log: log.Named("ledger")}
}

func (s *LedgerService) userWithRole(tx *gorm.DB, id uuid.UUID, role models.Role, roleErr error) (*models.User, error) {
	var u models.User
	if err := tx.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if u.Role != role {
		return nil, roleErr
	}
	return &u, nil
}

func loadSkills(tx *gorm.DB, ids []uint) ([]models.Skill, error) {
	if len(ids) == 0 {
		return []models.Skill{}, nil
	}
	uniq := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		uniq[id] = struct{}{}
	}

	var skills []models.Skill
	if err := tx.Where("id IN ?", ids).Find(&skills).Error; err != nil {
		return nil, err
	}
	if len(skills) != len(uniq) {
		return nil, ErrUnknownSkill
	}
	return skills, nil
}

func validateBudget(in JobInput) error {
	switch in.BudgetType {
	case models.BudgetFixed:
		if !in.Budget.IsPositive() {
			return fmt.Errorf("%w: fixed budget must be greater than zero", ErrInvalidBudget)
		}
	case models.BudgetHourly:
		if !in.HourlyRate.IsPositive() {
			return fmt.Errorf("%w: hourly rate must be greater than zero", ErrInvalidBudget)
		}
	default:
		return fmt.Errorf("%w: budget type must be fixed or hourly", ErrInvalidBudget)
	}
	return nil
}

// CreateJob stores a new job owned by clientID, as open when in.Publish is set
// and as draft otherwise.
func (s *LedgerService) CreateJob(ctx context.Context, clientID uuid.UUID, in JobInput) (*models.Job, error) {
	if err := validateBudget(in); err != nil {
		return nil, err
	}

	job := models.Job{
		ClientID:         clientID,
		Title:            strings.TrimSpace(in.Title),
		Description:      strings.TrimSpace(in.Description),
		Category:         strings.TrimSpace(in.Category),
		BudgetType:       in.BudgetType,
		Budget:           in.Budget,
		HourlyRate:       in.HourlyRate,
		Location:         in.Location,
		AddressLine:      in.AddressLine,
		City:             in.City,
		FormattedAddress: in.FormattedAddress,
		Status:           models.JobStatusDraft,
	}
	if in.Publish {
		job.Status = models.JobStatusOpen
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.userWithRole(tx, clientID, models.RoleClient, ErrNotClient); err != nil {
			return err
		}
		skills, err := loadSkills(tx, in.SkillIDs)
		if err != nil {
			return err
		}
		job.Skills = skills
		return tx.Omit("Skills.*").Create(&job).Error
	})
	if err != nil {
		return nil, err
	}

	if job.Status == models.JobStatusOpen {
		s.Hub.Broadcast(jobPostedEvent(&job))
	}
	return &job, nil
}

func jobPostedEvent(job *models.Job) realtime.Event {
	return realtime.Event{
		Type: realtime.EventJobPosted,
		Data: map[string]interface{}{
			"job_id":   job.ID,
			"title":    job.Title,
			"category": job.Category,
			"city":     job.City,
			"location": job.Location,
		},
	}
}

// UpdateJob replaces the editable fields of a draft or open job. Status is
// not touched; use TransitionJob.
func (s *LedgerService) UpdateJob(ctx context.Context, clientID, jobID uuid.UUID, in JobInput) (*models.Job, error) {
	if err := validateBudget(in); err != nil {
		return nil, err
	}

	var job models.Job
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findJob(tx, jobID, &job); err != nil {
			return err
		}
		if job.ClientID != clientID {
			return ErrForbidden
		}
		if job.Status != models.JobStatusDraft && job.Status != models.JobStatusOpen {
			return ErrJobNotEditable
		}

		skills, err := loadSkills(tx, in.SkillIDs)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"title":             strings.TrimSpace(in.Title),
			"description":       strings.TrimSpace(in.Description),
			"category":          strings.TrimSpace(in.Category),
			"budget_type":       in.BudgetType,
			"budget":            in.Budget,
			"hourly_rate":       in.HourlyRate,
			"location":          in.Location,
			"address_line":      in.AddressLine,
			"city":              in.City,
			"formatted_address": in.FormattedAddress,
		}
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status IN ?", jobID, []models.JobStatus{models.JobStatusDraft, models.JobStatusOpen}).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrJobNotEditable
		}

		if err := tx.Model(&job).Association("Skills").Replace(skills); err != nil {
			return err
		}
		return findJob(tx, jobID, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// TransitionJob moves a job to next on behalf of its client. Entering
// in_progress only happens through bid acceptance. Cancelling rejects every
// pending bid.
func (s *LedgerService) TransitionJob(ctx context.Context, clientID, jobID uuid.UUID, next models.JobStatus) (*models.Job, error) {
	if !next.Valid() || next == models.JobStatusInProgress {
		return nil, ErrInvalidTransition
	}

	var (
		job      models.Job
		rejected []models.Bid
		hired    *uuid.UUID
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findJob(tx, jobID, &job); err != nil {
			return err
		}
		if job.ClientID != clientID {
			return ErrForbidden
		}
		if job.Status.Terminal() {
			return fmt.Errorf("%w: job is already %s", ErrInvalidTransition, job.Status)
		}
		if !job.Status.CanTransitionTo(next) {
			return ErrInvalidTransition
		}

		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", jobID, job.Status).
			Update("status", next)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// lost a race with another transition
			return ErrInvalidTransition
		}

		if next == models.JobStatusCancelled {
			if err := tx.Where("job_id = ? AND status = ?", jobID, models.BidStatusPending).
				Find(&rejected).Error; err != nil {
				return err
			}
			if len(rejected) > 0 {
				if err := tx.Model(&models.Bid{}).
					Where("job_id = ? AND status = ?", jobID, models.BidStatusPending).
					Update("status", models.BidStatusRejected).Error; err != nil {
					return err
				}
			}
		}

		var accepted models.Bid
		err := tx.Where("job_id = ? AND status = ?", jobID, models.BidStatusAccepted).First(&accepted).Error
		if err == nil {
			hired = &accepted.FreelancerID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		job.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("job transitioned", zap.String("job_id", jobID.String()), zap.String("status", string(next)))

	if hired != nil {
		s.Hub.SendToUser(*hired, realtime.Event{
			Type: realtime.EventJobStatusUpdate,
			Data: map[string]interface{}{"job_id": job.ID, "status": job.Status},
		})
	}
	for _, b := range rejected {
		s.Hub.SendToUser(b.FreelancerID, bidEvent(b.ID, job.ID, models.BidStatusRejected))
	}
	if next == models.JobStatusOpen {
		s.Hub.Broadcast(jobPostedEvent(&job))
	}
	return &job, nil
}

func findJob(tx *gorm.DB, id uuid.UUID, job *models.Job) error {
	if err := tx.Preload("Skills").First(job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJobNotFound
		}
		return err
	}
	return nil
}

func (s *LedgerService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := findJob(s.DB.WithContext(ctx), jobID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *LedgerService) ListJobs(ctx context.Context, f JobListFilter) ([]models.Job, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Job{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.ClientID != nil {
		q = q.Where("client_id = ?", *f.ClientID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := paginate(f.Page, f.PageSize)
	var jobs []models.Job
	err := q.Preload("Skills").
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func paginate(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

// PlaceBid records a pending bid. A second bid by the same freelancer on the
// same job is rejected by the unique index and reported as ErrDuplicateBid.
func (s *LedgerService) PlaceBid(ctx context.Context, freelancerID, jobID uuid.UUID, amount decimal.Decimal, proposal string) (*models.Bid, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var (
		job    models.Job
		bid    models.Bid
		bidder *models.User
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if bidder, err = s.userWithRole(tx, freelancerID, models.RoleFreelancer, ErrNotFreelancer); err != nil {
			return err
		}
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.ClientID == freelancerID {
			return ErrOwnJob
		}
		if job.Status != models.JobStatusOpen {
			return ErrJobNotOpen
		}

		bid = models.Bid{
			JobID:        jobID,
			FreelancerID: freelancerID,
			Amount:       amount,
			Proposal:     strings.TrimSpace(proposal),
			Status:       models.BidStatusPending,
		}
		if err := tx.Create(&bid).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateBid
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"bid_id":        bid.ID,
		"job_id":        job.ID,
		"job_title":     job.Title,
		"freelancer_id": freelancerID,
		"amount":        bid.Amount,
	}
	if job.Location.Valid && bidder.Location.Valid {
		data["distance_km"] = job.Location.DistanceKm(bidder.Location)
	}
	s.Hub.SendToUser(job.ClientID, realtime.Event{Type: realtime.EventNewBid, Data: data})
	return &bid, nil
}

func findBid(tx *gorm.DB, id uuid.UUID, bid *models.Bid) error {
	if err := tx.Preload("Job").First(bid, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBidNotFound
		}
		return err
	}
	if bid.Job == nil {
		return ErrJobNotFound
	}
	return nil
}

// GetBid is visible to the bidder and to the job's client.
func (s *LedgerService) GetBid(ctx context.Context, viewerID, bidID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	if err := findBid(s.DB.WithContext(ctx), bidID, &bid); err != nil {
		return nil, err
	}
	if bid.FreelancerID != viewerID && bid.Job.ClientID != viewerID {
		return nil, ErrForbidden
	}
	return &bid, nil
}

// ListBidsForJob returns every bid to the job's client and only the viewer's
// own bid to anyone else.
func (s *LedgerService) ListBidsForJob(ctx context.Context, viewerID, jobID uuid.UUID) ([]models.Bid, error) {
	db := s.DB.WithContext(ctx)

	var job models.Job
	if err := db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	q := db.Where("job_id = ?", jobID)
	if job.ClientID != viewerID {
		q = q.Where("freelancer_id = ?", viewerID)
	}

	var bids []models.Bid
	if err := q.Preload("Freelancer").Order("created_at ASC").Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}

func (s *LedgerService) ListBidsForFreelancer(ctx context.Context, freelancerID uuid.UUID, status models.BidStatus) ([]models.Bid, error) {
	q := s.DB.WithContext(ctx).Where("freelancer_id = ?", freelancerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var bids []models.Bid
	if err := q.Preload("Job").Order("created_at DESC").Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}

// DecideBid accepts or rejects a pending bid on behalf of the job's client.
// Acceptance rejects the job's other pending bids and moves the job from
// open to in_progress in the same transaction.
func (s *LedgerService) DecideBid(ctx context.Context, clientID, bidID uuid.UUID, accept bool) (*models.Bid, error) {
	var (
		bid      models.Bid
		rejected []models.Bid
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findBid(tx, bidID, &bid); err != nil {
			return err
		}
		if bid.Job.ClientID != clientID {
			return ErrForbidden
		}
		if bid.Status != models.BidStatusPending {
			return ErrBidNotPending
		}

		next := models.BidStatusRejected
		if accept {
			if bid.Job.Status != models.JobStatusOpen {
				return ErrJobNotOpen
			}
			next = models.BidStatusAccepted
		}

		if err := setBidStatus(tx, bid.ID, next); err != nil {
			return err
		}
		bid.Status = next
		if !accept {
			return nil
		}

		if err := tx.Where("job_id = ? AND id <> ? AND status = ?", bid.JobID, bid.ID, models.BidStatusPending).
			Find(&rejected).Error; err != nil {
			return err
		}
		if len(rejected) > 0 {
			if err := tx.Model(&models.Bid{}).
				Where("job_id = ? AND id <> ? AND status = ?", bid.JobID, bid.ID, models.BidStatusPending).
				Update("status", models.BidStatusRejected).Error; err != nil {
				return err
			}
		}

		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", bid.JobID, models.JobStatusOpen).
			Update("status", models.JobStatusInProgress)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrJobNotOpen
		}
		bid.Job.Status = models.JobStatusInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("bid decided",
		zap.String("bid_id", bid.ID.String()),
		zap.String("status", string(bid.Status)),
		zap.Int("auto_rejected", len(rejected)),
	)

	s.Hub.SendToUser(bid.FreelancerID, bidEvent(bid.ID, bid.JobID, bid.Status))
	if accept {
		s.Hub.SendToUser(bid.FreelancerID, realtime.Event{
			Type: realtime.EventJobStatusUpdate,
			Data: map[string]interface{}{"job_id": bid.JobID, "status": models.JobStatusInProgress},
		})
	}
	for _, r := range rejected {
		s.Hub.SendToUser(r.FreelancerID, bidEvent(r.ID, r.JobID, models.BidStatusRejected))
	}
	return &bid, nil
}

// WithdrawBid lets the bidder pull back a pending bid.
func (s *LedgerService) WithdrawBid(ctx context.Context, freelancerID, bidID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findBid(tx, bidID, &bid); err != nil {
			return err
		}
		if bid.FreelancerID != freelancerID {
			return ErrForbidden
		}
		if bid.Status != models.BidStatusPending {
			return ErrBidNotPending
		}
		if err := setBidStatus(tx, bid.ID, models.BidStatusWithdrawn); err != nil {
			return err
		}
		bid.Status = models.BidStatusWithdrawn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Hub.SendToUser(bid.Job.ClientID, bidEvent(bid.ID, bid.JobID, bid.Status))
	return &bid, nil
}

// setBidStatus only moves bids that are still pending.
func setBidStatus(tx *gorm.DB, bidID uuid.UUID, next models.BidStatus) error {
	res := tx.Model(&models.Bid{}).
		Where("id = ? AND status = ?", bidID, models.BidStatusPending).
		Update("status", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBidNotPending
	}
	return nil
}

func bidEvent(bidID, jobID uuid.UUID, status models.BidStatus) realtime.Event {
	return realtime.Event{
		Type: realtime.EventBidStatusUpdate,
		Data: map[string]interface{}{"bid_id": bidID, "job_id": jobID, "status": status},
	}
}
