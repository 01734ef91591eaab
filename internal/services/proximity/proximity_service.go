package proximity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/config"
	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
)

var (
	ErrInvalidPoint  = errors.New("search point is missing or out of range")
	ErrInvalidRadius = errors.New("search radius is out of range")
	ErrInvalidStatus = errors.New("unknown job status")
)

const (
	defaultLimit = 100
	maxLimit     = 500

	// slack for float noise between ST_DWithin and ST_Distance
	radiusEpsilonKm = 1e-9
)

// queryPoint is the search origin as a geography literal. Arguments are lng, lat.
const queryPoint = "ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography"

type FreelancerQuery struct {
	Point    models.Point
	RadiusKm float64
	SkillIDs []uint
	Category string
	Limit    int
}

type JobQuery struct {
	Point    models.Point
	RadiusKm float64
	SkillIDs []uint
	Category string
	Status   models.JobStatus
	Limit    int
}

type JobFilters struct {
	SkillIDs []uint
	Category string
	Limit    int
}

type SkillRef struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type FreelancerMatch struct {
	UserID           uuid.UUID       `json:"user_id"`
	ProfileID        uuid.UUID       `json:"profile_id"`
	Name             string          `json:"name"`
	Bio              string          `json:"bio"`
	HourlyRate       decimal.Decimal `json:"hourly_rate"`
	AvgRating        float64         `json:"avg_rating"`
	ReviewCount      int             `json:"review_count"`
	City             string          `json:"city"`
	FormattedAddress string          `json:"formatted_address"`
	Location         models.Point    `json:"location"`
	DistanceKm       float64         `json:"distance_km"`
	Skills           []SkillRef      `json:"skills"`
}

type JobMatch struct {
	JobID            uuid.UUID         `json:"job_id"`
	ClientID         uuid.UUID         `json:"client_id"`
	Title            string            `json:"title"`
	Category         string            `json:"category"`
	BudgetType       models.BudgetType `json:"budget_type"`
	Budget           decimal.Decimal   `json:"budget"`
	HourlyRate       decimal.Decimal   `json:"hourly_rate"`
	Status           models.JobStatus  `json:"status"`
	City             string            `json:"city"`
	FormattedAddress string            `json:"formatted_address"`
	Location         models.Point      `json:"location"`
	DistanceKm       float64           `json:"distance_km"`
	CreatedAt        time.Time         `json:"created_at"`
}

// scan targets; coordinates and distance are nullable so the guard can see them
type freelancerRow struct {
	UserID           uuid.UUID
	ProfileID        uuid.UUID
	Name             string
	Bio              string
	HourlyRate       decimal.Decimal
	AvgRating        float64
	ReviewCount      int
	City             string
	FormattedAddress string
	Lat              *float64
	Lng              *float64
	DistanceKm       *float64
}

type jobRow struct {
	JobID            uuid.UUID
	ClientID         uuid.UUID
	Title            string
	Category         string
	BudgetType       models.BudgetType
	Budget           decimal.Decimal
	HourlyRate       decimal.Decimal
	Status           models.JobStatus
	City             string
	FormattedAddress string
	CreatedAt        time.Time
	Lat              *float64
	Lng              *float64
	DistanceKm       *float64
}

type ProximityService struct {
	DB              *gorm.DB
	DefaultRadiusKm float64
	MaxRadiusKm     float64
}

func NewProximityService(db *gorm.DB, cfg *config.Config) *ProximityService {
	return &ProximityService{
		DB:              db,
		DefaultRadiusKm: cfg.SearchDefaultRadiusKm,
		MaxRadiusKm:     cfg.SearchMaxRadiusKm,
	}
}

func (s *ProximityService) radius(r float64) (float64, error) {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, fmt.Errorf("%w: must be a finite number", ErrInvalidRadius)
	}
	if r == 0 {
		return s.DefaultRadiusKm, nil
	}
	if r < 0 || r > s.MaxRadiusKm {
		return 0, fmt.Errorf("%w: must be in (0, %g] km", ErrInvalidRadius, s.MaxRadiusKm)
	}
	return r, nil
}

func limit(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// FindFreelancersNear returns verified, available freelancers whose stored
// location lies within q.RadiusKm of q.Point, nearest first.
func (s *ProximityService) FindFreelancersNear(ctx context.Context, q FreelancerQuery) ([]FreelancerMatch, error) {
	if !q.Point.Valid || !models.ValidCoordinates(q.Point.Lat, q.Point.Lng) {
		return nil, ErrInvalidPoint
	}
	radiusKm, err := s.radius(q.RadiusKm)
	if err != nil {
		return nil, err
	}

	tx := s.DB.WithContext(ctx).
		Table("users AS u").
		Select(`u.id AS user_id, fp.id AS profile_id, u.name, u.city, u.formatted_address,
			fp.bio, fp.hourly_rate, fp.avg_rating, fp.review_count,
			ST_Y(u.location::geometry) AS lat, ST_X(u.location::geometry) AS lng,
			ST_Distance(u.location, `+queryPoint+`) / 1000 AS distance_km`, q.Point.Lng, q.Point.Lat).
		Joins("JOIN freelancer_profiles AS fp ON fp.user_id = u.id").
		Where("u.role = ?", models.RoleFreelancer).
		Where("u.location IS NOT NULL").
		Where("u.is_active AND u.is_verified AND fp.is_available").
		Where("ST_DWithin(u.location, "+queryPoint+", ?)", q.Point.Lng, q.Point.Lat, radiusKm*1000)

	if len(q.SkillIDs) > 0 {
		tx = tx.Where(`EXISTS (SELECT 1 FROM freelancer_skills AS fs
			WHERE fs.freelancer_profile_id = fp.id AND fs.skill_id IN ?)`, q.SkillIDs)
	}
	if q.Category != "" {
		tx = tx.Where(`EXISTS (SELECT 1 FROM freelancer_skills AS fs
			JOIN skills AS sk ON sk.id = fs.skill_id
			WHERE fs.freelancer_profile_id = fp.id AND sk.category = ?)`, q.Category)
	}

	var rows []freelancerRow
	if err := tx.Order("distance_km ASC").Limit(limit(q.Limit)).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("find freelancers near: %w", err)
	}

	rows = keepWithin(rows, radiusKm, func(r *freelancerRow) (float64, bool) {
		return deref(r.DistanceKm), r.Lat != nil && r.Lng != nil && r.DistanceKm != nil
	})

	out := make([]FreelancerMatch, 0, len(rows))
	for _, r := range rows {
		out = append(out, FreelancerMatch{
			UserID:           r.UserID,
			ProfileID:        r.ProfileID,
			Name:             r.Name,
			Bio:              r.Bio,
			HourlyRate:       r.HourlyRate,
			AvgRating:        r.AvgRating,
			ReviewCount:      r.ReviewCount,
			City:             r.City,
			FormattedAddress: r.FormattedAddress,
			Location:         models.NewPoint(*r.Lat, *r.Lng),
			DistanceKm:       *r.DistanceKm,
			Skills:           []SkillRef{},
		})
	}

	if err := s.attachSkills(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ProximityService) attachSkills(ctx context.Context, matches []FreelancerMatch) error {
	if len(matches) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(matches))
	byProfile := make(map[uuid.UUID]int, len(matches))
	for i, m := range matches {
		ids = append(ids, m.ProfileID)
		byProfile[m.ProfileID] = i
	}

	var rows []struct {
		FreelancerProfileID uuid.UUID
		ID                  uint
		Name                string
		Category            string
	}
	err := s.DB.WithContext(ctx).
		Table("freelancer_skills AS fs").
		Select("fs.freelancer_profile_id, sk.id, sk.name, sk.category").
		Joins("JOIN skills AS sk ON sk.id = fs.skill_id").
		Where("fs.freelancer_profile_id IN ?", ids).
		Order("sk.name").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("load freelancer skills: %w", err)
	}

	for _, r := range rows {
		if i, ok := byProfile[r.FreelancerProfileID]; ok {
			matches[i].Skills = append(matches[i].Skills, SkillRef{ID: r.ID, Name: r.Name, Category: r.Category})
		}
	}
	return nil
}

// FindJobsNear returns jobs in q.Status (open by default) within q.RadiusKm
// of q.Point, nearest first.
func (s *ProximityService) FindJobsNear(ctx context.Context, q JobQuery) ([]JobMatch, error) {
	if !q.Point.Valid || !models.ValidCoordinates(q.Point.Lat, q.Point.Lng) {
		return nil, ErrInvalidPoint
	}
	radiusKm, err := s.radius(q.RadiusKm)
	if err != nil {
		return nil, err
	}
	status := q.Status
	if status == "" {
		status = models.JobStatusOpen
	}
	// drafts are private to their client
	if !status.Valid() || status == models.JobStatusDraft {
		return nil, ErrInvalidStatus
	}

	tx := s.DB.WithContext(ctx).
		Table("jobs AS j").
		Select(jobColumns+`,
			ST_Distance(j.location, `+queryPoint+`) / 1000 AS distance_km`, q.Point.Lng, q.Point.Lat).
		Where("j.status = ?", status).
		Where("j.location IS NOT NULL").
		Where("ST_DWithin(j.location, "+queryPoint+", ?)", q.Point.Lng, q.Point.Lat, radiusKm*1000)
	tx = applyJobFilters(tx, q.SkillIDs, q.Category)

	var rows []jobRow
	if err := tx.Order("distance_km ASC").Limit(limit(q.Limit)).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("find jobs near: %w", err)
	}

	return toJobMatches(keepWithin(rows, radiusKm, jobDistance)), nil
}

// FindJobsInServiceAreas returns open jobs inside any of the freelancer's
// service areas, ordered by distance to the nearest matching area centre.
func (s *ProximityService) FindJobsInServiceAreas(ctx context.Context, freelancerID uuid.UUID, f JobFilters) ([]JobMatch, error) {
	tx := s.DB.WithContext(ctx).
		Table("jobs AS j").
		Select(jobColumns+`,
			MIN(ST_Distance(j.location, sa.center)) / 1000 AS distance_km`).
		Joins("JOIN service_areas AS sa ON sa.user_id = ? AND ST_DWithin(j.location, sa.center, sa.radius_km * 1000)", freelancerID).
		Where("j.status = ?", models.JobStatusOpen).
		Where("j.location IS NOT NULL").
		Where("j.client_id <> ?", freelancerID)
	tx = applyJobFilters(tx, f.SkillIDs, f.Category)

	var rows []jobRow
	err := tx.Group("j.id").Order("distance_km ASC").Limit(limit(f.Limit)).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find jobs in service areas: %w", err)
	}

	// each area has its own radius, already enforced by the join
	return toJobMatches(keepWithin(rows, 0, jobDistance)), nil
}

const jobColumns = `j.id AS job_id, j.client_id, j.title, j.category, j.budget_type, j.budget,
			j.hourly_rate, j.status, j.city, j.formatted_address, j.created_at,
			ST_Y(j.location::geometry) AS lat, ST_X(j.location::geometry) AS lng`

func applyJobFilters(tx *gorm.DB, skillIDs []uint, category string) *gorm.DB {
	if len(skillIDs) > 0 {
		tx = tx.Where(`EXISTS (SELECT 1 FROM job_skills AS js
			WHERE js.job_id = j.id AND js.skill_id IN ?)`, skillIDs)
	}
	if category != "" {
		tx = tx.Where("j.category = ?", category)
	}
	return tx
}

func jobDistance(r *jobRow) (float64, bool) {
	return deref(r.DistanceKm), r.Lat != nil && r.Lng != nil && r.DistanceKm != nil
}

func toJobMatches(rows []jobRow) []JobMatch {
	out := make([]JobMatch, 0, len(rows))
	for _, r := range rows {
		out = append(out, JobMatch{
			JobID:            r.JobID,
			ClientID:         r.ClientID,
			Title:            r.Title,
			Category:         r.Category,
			BudgetType:       r.BudgetType,
			Budget:           r.Budget,
			HourlyRate:       r.HourlyRate,
			Status:           r.Status,
			City:             r.City,
			FormattedAddress: r.FormattedAddress,
			Location:         models.NewPoint(*r.Lat, *r.Lng),
			DistanceKm:       *r.DistanceKm,
			CreatedAt:        r.CreatedAt,
		})
	}
	return out
}

// keepWithin drops rows without coordinates or farther than radiusKm
// (radiusKm <= 0 disables the distance check) and stable-sorts by distance.
func keepWithin[T any](rows []T, radiusKm float64, dist func(*T) (float64, bool)) []T {
	kept := rows[:0]
	for i := range rows {
		d, ok := dist(&rows[i])
		if !ok || math.IsNaN(d) {
			continue
		}
		if radiusKm > 0 && d > radiusKm+radiusEpsilonKm {
			continue
		}
		kept = append(kept, rows[i])
	}
	sort.SliceStable(kept, func(a, b int) bool {
		da, _ := dist(&kept[a])
		db, _ := dist(&kept[b])
		return da < db
	})
	return kept
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
