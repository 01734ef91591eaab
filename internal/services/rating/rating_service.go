package rating

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/realtime"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrForbidden       = errors.New("only the job's client can review it")
	ErrJobNotCompleted = errors.New("job must be completed before it can be reviewed")
	ErrNoAcceptedBid   = errors.New("job has no hired freelancer")
	ErrAlreadyReviewed = errors.New("job already reviewed")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrProfileNotFound = errors.New("freelancer profile not found")
)

type RatingService struct {
	DB  *gorm.DB
	Hub realtime.Notifier
	Log *zap.Logger
}

func NewRatingService(db *gorm.DB, hub realtime.Notifier, log *zap.Logger) *RatingService {
	if hub == nil {
		hub = realtime.NopNotifier{}
	}
	return &RatingService{DB: db, Hub: hub, Log: log.Named("rating")}
}

// AddReview records the client's review of the freelancer hired for jobID and
// refreshes that freelancer's aggregate rating in the same transaction.
func (s *RatingService) AddReview(ctx context.Context, jobID, clientID uuid.UUID, rating int, comment string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	var review models.Review
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.ClientID != clientID {
			return ErrForbidden
		}
		if job.Status != models.JobStatusCompleted {
			return ErrJobNotCompleted
		}

		var bid models.Bid
		if err := tx.Where("job_id = ? AND status = ?", jobID, models.BidStatusAccepted).First(&bid).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoAcceptedBid
			}
			return err
		}

		review = models.Review{
			JobID:        jobID,
			ClientID:     clientID,
			FreelancerID: bid.FreelancerID,
			Rating:       rating,
			Comment:      strings.TrimSpace(comment),
		}
		if err := tx.Create(&review).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyReviewed
			}
			return err
		}

		return recompute(tx, bid.FreelancerID)
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("review added", zap.String("job_id", jobID.String()), zap.Int("rating", rating))
	s.Hub.SendToUser(review.FreelancerID, realtime.Event{
		Type: realtime.EventReviewReceived,
		Data: map[string]interface{}{"job_id": jobID, "rating": rating},
	})
	return &review, nil
}

// recompute rebuilds avg_rating and review_count from every stored review.
func recompute(tx *gorm.DB, freelancerID uuid.UUID) error {
	var agg struct {
		AvgRating   float64
		ReviewCount int
	}
	if err := tx.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS avg_rating, COUNT(*) AS review_count").
		Where("freelancer_id = ?", freelancerID).
		Scan(&agg).Error; err != nil {
		return err
	}

	res := tx.Model(&models.FreelancerProfile{}).
		Where("user_id = ?", freelancerID).
		Updates(map[string]interface{}{"avg_rating": agg.AvgRating, "review_count": agg.ReviewCount})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// ListForFreelancer returns the reviews a freelancer received, newest first.
func (s *RatingService) ListForFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]models.Review, error) {
	var reviews []models.Review
	err := s.DB.WithContext(ctx).
		Where("freelancer_id = ?", freelancerID).
		Order("created_at DESC").
		Find(&reviews).Error
	return reviews, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint")
}
