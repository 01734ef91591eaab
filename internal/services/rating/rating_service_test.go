package rating

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/realtime"
	"github.com/Windi-Fikriyansyah/geojoki/internal/testutil"
)

// hiredJob inserts a job in status with an accepted bid from freelancer.
func hiredJob(t *testing.T, gdb *gorm.DB, client, freelancer *models.User, status models.JobStatus) *models.Job {
	t.Helper()
	job := &models.Job{
		ClientID:   client.ID,
		Title:      "Paint fence",
		BudgetType: models.BudgetFixed,
		Budget:     decimal.NewFromInt(800),
		Status:     status,
	}
	require.NoError(t, gdb.Create(job).Error)
	require.NoError(t, gdb.Create(&models.Bid{
		JobID:        job.ID,
		FreelancerID: freelancer.ID,
		Amount:       decimal.NewFromInt(750),
		Status:       models.BidStatusAccepted,
	}).Error)
	return job
}

func TestAddReview_RecomputesAggregate(t *testing.T) {
	gdb := testutil.NewSQLiteDB(t)
	hub := &testutil.RecordingNotifier{}
	svc := NewRatingService(gdb, hub, zap.NewNop())
	ctx := context.Background()

	client := testutil.CreateUser(t, gdb, models.RoleClient, models.Point{})
	fl := testutil.CreateUser(t, gdb, models.RoleFreelancer, models.Point{})

	j1 := hiredJob(t, gdb, client, fl, models.JobStatusCompleted)
	j2 := hiredJob(t, gdb, client, fl, models.JobStatusCompleted)

	r, err := svc.AddReview(ctx, j1.ID, client.ID, 5, " great ")
	require.NoError(t, err)
	assert.Equal(t, fl.ID, r.FreelancerID)
	assert.Equal(t, "great", r.Comment)

	_, err = svc.AddReview(ctx, j2.ID, client.ID, 2, "")
	require.NoError(t, err)

	var p models.FreelancerProfile
	require.NoError(t, gdb.First(&p, "user_id = ?", fl.ID).Error)
	assert.InDelta(t, 3.5, p.AvgRating, 1e-9)
	assert.Equal(t, 2, p.ReviewCount)

	assert.Equal(t, []string{realtime.EventReviewReceived, realtime.EventReviewReceived}, hub.Types(fl.ID))

	list, err := svc.ListForFreelancer(ctx, fl.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAddReview_Rules(t *testing.T) {
	gdb := testutil.NewSQLiteDB(t)
	svc := NewRatingService(gdb, nil, zap.NewNop())
	ctx := context.Background()

	client := testutil.CreateUser(t, gdb, models.RoleClient, models.Point{})
	fl := testutil.CreateUser(t, gdb, models.RoleFreelancer, models.Point{})
	done := hiredJob(t, gdb, client, fl, models.JobStatusCompleted)
	running := hiredJob(t, gdb, client, fl, models.JobStatusInProgress)

	_, err := svc.AddReview(ctx, done.ID, client.ID, 0, "")
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = svc.AddReview(ctx, done.ID, fl.ID, 4, "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.AddReview(ctx, running.ID, client.ID, 4, "")
	assert.ErrorIs(t, err, ErrJobNotCompleted)

	_, err = svc.AddReview(ctx, uuid.New(), client.ID, 4, "")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = svc.AddReview(ctx, done.ID, client.ID, 4, "")
	require.NoError(t, err)
	_, err = svc.AddReview(ctx, done.ID, client.ID, 1, "changed my mind")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	var p models.FreelancerProfile
	require.NoError(t, gdb.First(&p, "user_id = ?", fl.ID).Error)
	assert.Equal(t, 1, p.ReviewCount)
	assert.InDelta(t, 4.0, p.AvgRating, 1e-9)
}

func TestAddReview_NoHire(t *testing.T) {
	gdb := testutil.NewSQLiteDB(t)
	svc := NewRatingService(gdb, nil, zap.NewNop())

	client := testutil.CreateUser(t, gdb, models.RoleClient, models.Point{})
	job := &models.Job{ClientID: client.ID, Title: "x", BudgetType: models.BudgetFixed, Budget: decimal.NewFromInt(1), Status: models.JobStatusCompleted}
	require.NoError(t, gdb.Create(job).Error)

	_, err := svc.AddReview(context.Background(), job.ID, client.ID, 5, "")
	assert.ErrorIs(t, err, ErrNoAcceptedBid)
}
