package proximity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/testutil"
)

var bangalore = models.NewPoint(12.9, 77.6)

// northOf returns the point km kilometres due north of origin.
func northOf(origin models.Point, km float64) models.Point {
	p := geo.PointAtBearingAndDistance(orb.Point{origin.Lng, origin.Lat}, 0, km*1000)
	return models.NewPoint(p.Y(), p.X())
}

func createJob(t *testing.T, gdb *gorm.DB, clientID uuid.UUID, title string, status models.JobStatus, loc models.Point) models.Job {
	t.Helper()
	job := models.Job{
		ClientID: clientID,
		Title:    title,
		Category: "home",
		Budget:   decimal.NewFromInt(100),
		Location: loc,
		Status:   status,
	}
	require.NoError(t, gdb.Create(&job).Error)
	return job
}

func TestProximity_PostGIS(t *testing.T) {
	gdb := testutil.NewPostGISDB(t)
	svc := &ProximityService{DB: gdb, DefaultRadiusKm: 10, MaxRadiusKm: 100}
	ctx := context.Background()

	plumbing := testutil.CreateSkills(t, gdb, "home", "Plumbing")[0]

	byKm := map[float64]*models.User{}
	for _, km := range []float64{2, 5, 9, 15} {
		byKm[km] = testutil.CreateUser(t, gdb, models.RoleFreelancer, northOf(bangalore, km))
	}
	for _, km := range []float64{2, 9} {
		require.NoError(t, gdb.Model(byKm[km].FreelancerProfile).Association("Skills").Append(&plumbing))
	}

	nowhere := testutil.CreateUser(t, gdb, models.RoleFreelancer, models.Point{})
	unverified := testutil.CreateUser(t, gdb, models.RoleFreelancer, northOf(bangalore, 1))
	require.NoError(t, gdb.Model(unverified).Update("is_verified", false).Error)
	busy := testutil.CreateUser(t, gdb, models.RoleFreelancer, northOf(bangalore, 3))
	require.NoError(t, gdb.Model(busy.FreelancerProfile).Update("is_available", false).Error)

	t.Run("freelancers within radius nearest first", func(t *testing.T) {
		got, err := svc.FindFreelancersNear(ctx, FreelancerQuery{Point: bangalore, RadiusKm: 10})
		require.NoError(t, err)
		require.Len(t, got, 3)

		for i, km := range []float64{2, 5, 9} {
			assert.Equal(t, byKm[km].ID, got[i].UserID)
			assert.InDelta(t, km, got[i].DistanceKm, 0.1)
			assert.True(t, got[i].Location.Valid)
		}
		for _, m := range got {
			assert.NotEqual(t, nowhere.ID, m.UserID, "no stored location")
			assert.NotEqual(t, unverified.ID, m.UserID, "unverified")
			assert.NotEqual(t, busy.ID, m.UserID, "unavailable")
			assert.NotEqual(t, byKm[15].ID, m.UserID, "outside radius")
		}
	})

	t.Run("skill filter is a subset", func(t *testing.T) {
		all, err := svc.FindFreelancersNear(ctx, FreelancerQuery{Point: bangalore, RadiusKm: 10})
		require.NoError(t, err)
		filtered, err := svc.FindFreelancersNear(ctx, FreelancerQuery{Point: bangalore, RadiusKm: 10, SkillIDs: []uint{plumbing.ID}})
		require.NoError(t, err)

		unfiltered := map[uuid.UUID]bool{}
		for _, m := range all {
			unfiltered[m.UserID] = true
		}
		require.Len(t, filtered, 2)
		assert.Equal(t, byKm[2].ID, filtered[0].UserID)
		assert.Equal(t, byKm[9].ID, filtered[1].UserID)
		for _, m := range filtered {
			assert.True(t, unfiltered[m.UserID])
			require.Len(t, m.Skills, 1)
			assert.Equal(t, "Plumbing", m.Skills[0].Name)
		}
	})

	client := testutil.CreateUser(t, gdb, models.RoleClient, bangalore)
	near := createJob(t, gdb, client.ID, "Fix the sink", models.JobStatusOpen, northOf(bangalore, 1))
	createJob(t, gdb, client.ID, "Unpublished", models.JobStatusDraft, northOf(bangalore, 2))
	createJob(t, gdb, client.ID, "Too far", models.JobStatusOpen, northOf(bangalore, 20))

	t.Run("jobs near skip drafts", func(t *testing.T) {
		got, err := svc.FindJobsNear(ctx, JobQuery{Point: bangalore, RadiusKm: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, near.ID, got[0].JobID)
		assert.InDelta(t, 1, got[0].DistanceKm, 0.1)

		_, err = svc.FindJobsNear(ctx, JobQuery{Point: bangalore, RadiusKm: 10, Status: models.JobStatusDraft})
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("service areas deduplicate overlapping circles", func(t *testing.T) {
		worker := byKm[2]
		areas := []models.ServiceArea{
			{UserID: worker.ID, Label: "home", Center: bangalore, RadiusKm: 5},
			{UserID: worker.ID, Label: "north", Center: northOf(bangalore, 3), RadiusKm: 5},
		}
		require.NoError(t, gdb.Create(&areas).Error)
		own := createJob(t, gdb, worker.ID, "My own errand", models.JobStatusOpen, northOf(bangalore, 1.5))

		got, err := svc.FindJobsInServiceAreas(ctx, worker.ID, JobFilters{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, near.ID, got[0].JobID)
		assert.InDelta(t, 1, got[0].DistanceKm, 0.1, "distance to the nearest area centre")
		assert.NotEqual(t, own.ID, got[0].JobID)
	})
}
