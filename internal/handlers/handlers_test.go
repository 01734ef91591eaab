package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/config"
	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/geocoding"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/ledger"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/proximity"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/rating"
	"github.com/Windi-Fikriyansyah/geojoki/internal/testutil"
	"github.com/Windi-Fikriyansyah/geojoki/internal/utils"
)

const testSecret = "handler-test-secret"

type fakeGeo struct {
	forward map[string]geocoding.Result
	reverse map[[2]float64]geocoding.Result
}

func (g *fakeGeo) Geocode(_ context.Context, address string) (geocoding.Result, bool) {
	r, ok := g.forward[strings.ToLower(strings.TrimSpace(address))]
	return r, ok
}

func (g *fakeGeo) ReverseGeocode(_ context.Context, lat, lng float64) (geocoding.Result, bool) {
	r, ok := g.reverse[[2]float64{lat, lng}]
	return r, ok
}

type fakeSearch struct {
	mu          sync.Mutex
	freelancers []proximity.FreelancerQuery
	jobs        []proximity.JobQuery
	areas       []uuid.UUID
	err         error
}

func (s *fakeSearch) FindFreelancersNear(_ context.Context, q proximity.FreelancerQuery) ([]proximity.FreelancerMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freelancers = append(s.freelancers, q)
	if s.err != nil {
		return nil, s.err
	}
	return []proximity.FreelancerMatch{{UserID: uuid.New(), Name: "near", DistanceKm: 1.5, Location: q.Point}}, nil
}

func (s *fakeSearch) FindJobsNear(_ context.Context, q proximity.JobQuery) ([]proximity.JobMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, q)
	return []proximity.JobMatch{}, s.err
}

func (s *fakeSearch) FindJobsInServiceAreas(_ context.Context, freelancerID uuid.UUID, _ proximity.JobFilters) ([]proximity.JobMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas = append(s.areas, freelancerID)
	return []proximity.JobMatch{}, s.err
}

var bangalore = geocoding.Result{
	Latitude:         12.9716,
	Longitude:        77.5946,
	FormattedAddress: "MG Road, Bengaluru, Karnataka 560001, India",
	Components: []geocoding.AddressComponent{
		{LongName: "Bengaluru", Types: []string{"locality", "political"}},
		{LongName: "Karnataka", Types: []string{"administrative_area_level_1"}},
		{LongName: "560001", Types: []string{"postal_code"}},
		{LongName: "India", Types: []string{"country"}},
	},
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	geo    *fakeGeo
	search *fakeSearch
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb := testutil.NewSQLiteDB(t)
	geo := &fakeGeo{
		forward: map[string]geocoding.Result{"mg road, bengaluru": bangalore},
		reverse: map[[2]float64]geocoding.Result{{12.9716, 77.5946}: bangalore},
	}
	search := &fakeSearch{}
	log := zap.NewNop()

	cfg := &config.Config{
		AppEnv:                "test",
		CORSOrigins:           "http://localhost:3000",
		JWTSecret:             testSecret,
		JWTExpiresMin:         60,
		SearchDefaultRadiusKm: 10,
		SearchMaxRadiusKm:     100,
	}

	app := NewApp(Deps{
		Config:  cfg,
		DB:      gdb,
		Geo:     geo,
		Search:  search,
		Ledger:  ledger.NewLedgerService(gdb, nil, log),
		Reviews: rating.NewRatingService(gdb, nil, log),
		Log:     log,
	})
	return &testEnv{app: app, db: gdb, geo: geo, search: search}
}

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
}

func token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := utils.SignJWT(testSecret, u.ID.String(), string(u.Role), 60)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, tok string) (*http.Response, envelope) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp, env
}

func TestAuth_RegisterLoginMe(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, http.MethodPost, "/api/auth/register", fiber.Map{
		"name":     "Asha",
		"email":    "Asha@Example.com ",
		"password": "secret123",
		"phone":    "+91 98450 00000",
		"role":     "freelancer",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	assert.True(t, env.Success)

	var u models.User
	require.NoError(t, e.db.Preload("FreelancerProfile").First(&u, "email = ?", "asha@example.com").Error)
	assert.Equal(t, models.RoleFreelancer, u.Role)
	require.NotNil(t, u.FreelancerProfile)
	assert.True(t, u.FreelancerProfile.IsAvailable)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "jm_token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "session cookie is set")
	assert.True(t, cookie.HttpOnly)

	resp, env = e.do(t, http.MethodPost, "/api/auth/register", fiber.Map{
		"name": "Other", "email": "asha@example.com", "password": "secret123",
	}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, env.Errors, "email")

	resp, _ = e.do(t, http.MethodPost, "/api/auth/login", fiber.Map{"email": "asha@example.com", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, env = e.do(t, http.MethodPost, "/api/auth/login", fiber.Map{"email": "asha@example.com", "password": "secret123"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))

	resp, env = e.do(t, http.MethodGet, "/api/me", nil, login.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me models.User
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, u.ID, me.ID)
	assert.NotNil(t, me.FreelancerProfile)
}

func TestAuth_RegisterValidation(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, http.MethodPost, "/api/auth/register", fiber.Map{
		"name": "", "email": "not-an-email", "password": "123", "role": "admin",
	}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.False(t, env.Success)
	for _, field := range []string{"name", "email", "password", "role"} {
		assert.Contains(t, env.Errors, field)
	}

	resp, env = e.do(t, http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestLocation_UpdateMine(t *testing.T) {
	e := newTestEnv(t)
	u := testutil.CreateUser(t, e.db, models.RoleFreelancer, models.Point{})
	tok := token(t, u)

	resp, env := e.do(t, http.MethodPatch, "/api/me/location", fiber.Map{"address": "MG Road, Bengaluru"}, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	var got models.User
	require.NoError(t, e.db.First(&got, "id = ?", u.ID).Error)
	require.True(t, got.Location.Valid)
	assert.InDelta(t, 12.9716, got.Location.Lat, 1e-9)
	assert.InDelta(t, 77.5946, got.Location.Lng, 1e-9)
	assert.Equal(t, "Bengaluru", got.City)
	assert.Equal(t, "Karnataka", got.State)
	assert.Equal(t, "560001", got.PostalCode)
	assert.Equal(t, bangalore.FormattedAddress, got.FormattedAddress)
	assert.NotEmpty(t, got.AddressComponents)

	resp, env = e.do(t, http.MethodPatch, "/api/me/location", fiber.Map{"address": "Nowhere at all"}, tok)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, env.Errors, "address")

	// coordinates are kept even when reverse lookup finds nothing
	resp, _ = e.do(t, http.MethodPatch, "/api/me/location", fiber.Map{"lat": 1.5, "lng": 2.5}, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, e.db.First(&got, "id = ?", u.ID).Error)
	assert.InDelta(t, 1.5, got.Location.Lat, 1e-9)
	assert.Empty(t, got.City)

	resp, _ = e.do(t, http.MethodPatch, "/api/me/location", fiber.Map{"lat": 91, "lng": 0}, tok)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestLocation_ServiceAreas(t *testing.T) {
	e := newTestEnv(t)
	owner := testutil.CreateUser(t, e.db, models.RoleFreelancer, models.Point{})
	other := testutil.CreateUser(t, e.db, models.RoleFreelancer, models.Point{})

	resp, env := e.do(t, http.MethodPost, "/api/me/service-areas", fiber.Map{"address": "MG Road, Bengaluru", "radius_km": 15}, token(t, owner))
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	var area models.ServiceArea
	require.NoError(t, json.Unmarshal(env.Data, &area))
	assert.Equal(t, "Bengaluru", area.Label)
	assert.InDelta(t, 15, area.RadiusKm, 1e-9)

	resp, env = e.do(t, http.MethodPost, "/api/me/service-areas", fiber.Map{"lat": 12.9, "lng": 77.6, "radius_km": 0}, token(t, owner))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, env.Errors, "radius_km")

	resp, _ = e.do(t, http.MethodDelete, "/api/me/service-areas/"+area.ID.String(), nil, token(t, other))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, env = e.do(t, http.MethodGet, "/api/me/service-areas", nil, token(t, owner))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var areas []models.ServiceArea
	require.NoError(t, json.Unmarshal(env.Data, &areas))
	assert.Len(t, areas, 1)

	resp, _ = e.do(t, http.MethodDelete, "/api/me/service-areas/"+area.ID.String(), nil, token(t, owner))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLocation_SavedLocations(t *testing.T) {
	e := newTestEnv(t)
	u := testutil.CreateUser(t, e.db, models.RoleClient, models.Point{})
	tok := token(t, u)

	resp, env := e.do(t, http.MethodPost, "/api/me/saved-locations", fiber.Map{"label": "Office", "address": "MG Road, Bengaluru"}, tok)
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	var loc models.SavedLocation
	require.NoError(t, json.Unmarshal(env.Data, &loc))
	assert.True(t, loc.Location.Valid)
	assert.Equal(t, bangalore.FormattedAddress, loc.FormattedAddress)

	resp, env = e.do(t, http.MethodPost, "/api/me/saved-locations", fiber.Map{"address": "MG Road, Bengaluru"}, tok)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, env.Errors, "label")

	resp, _ = e.do(t, http.MethodDelete, "/api/me/saved-locations/"+loc.ID.String(), nil, tok)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, http.MethodDelete, "/api/me/saved-locations/"+loc.ID.String(), nil, tok)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSearch_FreelancersNearby(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, http.MethodGet, "/api/freelancers/nearby?lat=12.9&lng=77.6&distance=5&skills[]=3&skills[]=7&category_type=Plumbing", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	require.Len(t, e.search.freelancers, 1)
	q := e.search.freelancers[0]
	assert.InDelta(t, 12.9, q.Point.Lat, 1e-9)
	assert.InDelta(t, 5, q.RadiusKm, 1e-9)
	assert.Equal(t, []uint{3, 7}, q.SkillIDs)
	assert.Equal(t, "Plumbing", q.Category)

	var matches []proximity.FreelancerMatch
	require.NoError(t, json.Unmarshal(env.Data, &matches))
	assert.Len(t, matches, 1)

	// an address is geocoded first
	resp, _ = e.do(t, http.MethodGet, "/api/freelancers/nearby?address=MG%20Road,%20Bengaluru", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, e.search.freelancers, 2)
	assert.InDelta(t, bangalore.Latitude, e.search.freelancers[1].Point.Lat, 1e-9)
	assert.Zero(t, e.search.freelancers[1].RadiusKm)
}

func TestSearch_UnlocatedAddressDegrades(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, http.MethodGet, "/api/freelancers/nearby?address=atlantis", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Message)
	assert.JSONEq(t, `[]`, string(env.Data))
	assert.Empty(t, e.search.freelancers, "no query without an origin")

	resp, _ = e.do(t, http.MethodGet, "/api/jobs/nearby?address=atlantis", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, e.search.jobs)
}

func TestSearch_Validation(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, http.MethodGet, "/api/freelancers/nearby", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, env.Errors, "address")

	resp, env = e.do(t, http.MethodGet, "/api/freelancers/nearby?lat=12.9&lng=77.6&skills[]=abc", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, env.Errors, "skills")

	resp, _ = e.do(t, http.MethodGet, "/api/freelancers/nearby?lat=200&lng=77.6", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	for _, d := range []string{"NaN", "Inf", "-Inf"} {
		resp, env = e.do(t, http.MethodGet, "/api/freelancers/nearby?lat=12.9&lng=77.6&distance="+d, nil, "")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, d)
		assert.Contains(t, env.Errors, "distance", d)
	}
	assert.Empty(t, e.search.freelancers, "non-finite radius never reaches the store")

	e.search.err = proximity.ErrInvalidRadius
	resp, env = e.do(t, http.MethodGet, "/api/jobs/nearby?lat=12.9&lng=77.6&distance=5000", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestSearch_JobsNearbyAndMatching(t *testing.T) {
	e := newTestEnv(t)
	fl := testutil.CreateUser(t, e.db, models.RoleFreelancer, models.Point{})
	cl := testutil.CreateUser(t, e.db, models.RoleClient, models.Point{})

	resp, _ := e.do(t, http.MethodGet, "/api/jobs/nearby?lat=12.9&lng=77.6&status=in_progress&category=Painting&skills=1,2", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, e.search.jobs, 1)
	assert.Equal(t, models.JobStatusInProgress, e.search.jobs[0].Status)
	assert.Equal(t, "Painting", e.search.jobs[0].Category)
	assert.Equal(t, []uint{1, 2}, e.search.jobs[0].SkillIDs)

	resp, _ = e.do(t, http.MethodGet, "/api/freelancer/jobs/matching", nil, token(t, fl))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []uuid.UUID{fl.ID}, e.search.areas)

	resp, _ = e.do(t, http.MethodGet, "/api/freelancer/jobs/matching", nil, token(t, cl))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSearch_JobsNearbyHidesDrafts(t *testing.T) {
	e := newTestEnv(t)

	for _, status := range []string{"draft", "archived"} {
		resp, env := e.do(t, http.MethodGet, "/api/jobs/nearby?lat=12.9&lng=77.6&status="+status, nil, "")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, status)
		assert.Contains(t, env.Errors, "status", status)
	}
	assert.Empty(t, e.search.jobs)

	resp, _ := e.do(t, http.MethodGet, "/api/jobs/nearby?lat=12.9&lng=77.6", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, e.search.jobs, 1)
	assert.Empty(t, e.search.jobs[0].Status, "service applies its open default")
}

func TestGeocodeEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, http.MethodGet, "/api/geocode?address=MG%20Road,%20Bengaluru", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res geocoding.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, bangalore.FormattedAddress, res.FormattedAddress)

	resp, _ = e.do(t, http.MethodGet, "/api/geocode?address=atlantis", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/api/geocode/reverse?lat=12.9716&lng=77.5946", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/api/geocode/reverse?lat=x&lng=1", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestJobs_BidAcceptReviewFlow(t *testing.T) {
	e := newTestEnv(t)
	client := testutil.CreateUser(t, e.db, models.RoleClient, models.Point{})
	fl1 := testutil.CreateUser(t, e.db, models.RoleFreelancer, models.Point{})
	fl2 := testutil.CreateUser(t, e.db, models.RoleFreelancer, models.Point{})
	skills := testutil.CreateSkills(t, e.db, "Home", "Painting")

	resp, env := e.do(t, http.MethodPost, "/api/client/jobs", fiber.Map{
		"title":       "Paint the living room",
		"budget_type": "fixed",
		"budget":      1200,
		"address":     "MG Road, Bengaluru",
		"skill_ids":   []uint{skills[0].ID},
		"publish":     true,
	}, token(t, client))
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	var job models.Job
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, models.JobStatusOpen, job.Status)
	assert.True(t, job.Location.Valid)
	assert.Equal(t, "Bengaluru", job.City)

	jobPath := "/api/jobs/" + job.ID.String()

	resp, _ = e.do(t, http.MethodPost, "/api/client/jobs", fiber.Map{"title": "x", "budget_type": "fixed", "budget": 1}, token(t, fl1))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env = e.do(t, http.MethodPost, jobPath+"/bids", fiber.Map{"amount": 1100, "proposal": "Two days"}, token(t, fl1))
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	var bid1 models.Bid
	require.NoError(t, json.Unmarshal(env.Data, &bid1))

	resp, _ = e.do(t, http.MethodPost, jobPath+"/bids", fiber.Map{"amount": 1000}, token(t, fl1))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, env = e.do(t, http.MethodPost, jobPath+"/bids", fiber.Map{"amount": 0}, token(t, fl2))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, env.Errors, "amount")

	resp, env = e.do(t, http.MethodPost, jobPath+"/bids", fiber.Map{"amount": 900}, token(t, fl2))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var bid2 models.Bid
	require.NoError(t, json.Unmarshal(env.Data, &bid2))

	// each freelancer sees only their own bid, the client sees both
	resp, env = e.do(t, http.MethodGet, jobPath+"/bids", nil, token(t, fl2))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var seen []models.Bid
	require.NoError(t, json.Unmarshal(env.Data, &seen))
	assert.Len(t, seen, 1)

	resp, env = e.do(t, http.MethodGet, jobPath+"/bids", nil, token(t, client))
	require.NoError(t, json.Unmarshal(env.Data, &seen))
	assert.Len(t, seen, 2)

	resp, _ = e.do(t, http.MethodPatch, "/api/bids/"+bid1.ID.String()+"/decision", fiber.Map{"decision": "maybe"}, token(t, client))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, env = e.do(t, http.MethodPatch, "/api/bids/"+bid1.ID.String()+"/decision", fiber.Map{"decision": "accept"}, token(t, client))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	var stored models.Bid
	require.NoError(t, e.db.First(&stored, "id = ?", bid2.ID).Error)
	assert.Equal(t, models.BidStatusRejected, stored.Status)
	require.NoError(t, e.db.First(&job, "id = ?", job.ID).Error)
	assert.Equal(t, models.JobStatusInProgress, job.Status)

	resp, _ = e.do(t, http.MethodPatch, "/api/bids/"+bid2.ID.String()+"/withdraw", nil, token(t, fl2))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, jobPath+"/review", fiber.Map{"rating": 5}, token(t, client))
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "job is not completed yet")

	resp, _ = e.do(t, http.MethodPatch, "/api/client/jobs/"+job.ID.String()+"/status", fiber.Map{"status": "draft"}, token(t, client))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, env = e.do(t, http.MethodPatch, "/api/client/jobs/"+job.ID.String()+"/status", fiber.Map{"status": "completed"}, token(t, client))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	resp, _ = e.do(t, http.MethodPatch, "/api/client/jobs/"+job.ID.String()+"/status", fiber.Map{"status": "cancelled"}, token(t, client))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, env = e.do(t, http.MethodPost, jobPath+"/review", fiber.Map{"rating": 4, "comment": "Neat work"}, token(t, client))
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)

	resp, _ = e.do(t, http.MethodPost, jobPath+"/review", fiber.Map{"rating": 1}, token(t, client))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, env = e.do(t, http.MethodGet, "/api/freelancers/"+fl1.ID.String()+"/reviews", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reviews []models.Review
	require.NoError(t, json.Unmarshal(env.Data, &reviews))
	assert.Len(t, reviews, 1)

	resp, env = e.do(t, http.MethodGet, "/api/freelancer/bids?status=accepted", nil, token(t, fl1))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &seen))
	assert.Len(t, seen, 1)
}

func TestJobs_PublicVisibility(t *testing.T) {
	e := newTestEnv(t)
	client := testutil.CreateUser(t, e.db, models.RoleClient, models.Point{})

	resp, env := e.do(t, http.MethodPost, "/api/client/jobs", fiber.Map{
		"title": "Draft job", "budget_type": "hourly", "hourly_rate": 15,
	}, token(t, client))
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	var draft models.Job
	require.NoError(t, json.Unmarshal(env.Data, &draft))
	assert.Equal(t, models.JobStatusDraft, draft.Status)
	assert.False(t, draft.Location.Valid)

	resp, _ = e.do(t, http.MethodGet, "/api/jobs/"+draft.ID.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/api/jobs?status=draft", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, env = e.do(t, http.MethodGet, "/api/client/jobs", nil, token(t, client))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine []models.Job
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 1)

	// publishing keeps the stored fields when no location is sent
	resp, env = e.do(t, http.MethodPut, "/api/client/jobs/"+draft.ID.String(), fiber.Map{
		"title": "Renamed", "budget_type": "fixed", "budget": 300,
	}, token(t, client))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	resp, _ = e.do(t, http.MethodPatch, "/api/client/jobs/"+draft.ID.String()+"/status", fiber.Map{"status": "open"}, token(t, client))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = e.do(t, http.MethodGet, "/api/jobs", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var open []models.Job
	require.NoError(t, json.Unmarshal(env.Data, &open))
	require.Len(t, open, 1)
	assert.Equal(t, "Renamed", open[0].Title)

	resp, _ = e.do(t, http.MethodGet, "/api/jobs/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProfiles(t *testing.T) {
	e := newTestEnv(t)
	fl := testutil.CreateUser(t, e.db, models.RoleFreelancer, models.Point{})
	cl := testutil.CreateUser(t, e.db, models.RoleClient, models.Point{})
	skills := testutil.CreateSkills(t, e.db, "Trades", "Plumbing", "Tiling")

	resp, env := e.do(t, http.MethodPut, "/api/freelancer/profile", fiber.Map{
		"bio":          "Ten years on the tools",
		"hourly_rate":  "22.50",
		"is_available": false,
		"skill_ids":    []uint{skills[0].ID, skills[1].ID},
	}, token(t, fl))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var p models.FreelancerProfile
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "22.5", p.HourlyRate.String())
	assert.False(t, p.IsAvailable)
	assert.Len(t, p.Skills, 2)

	resp, env = e.do(t, http.MethodPut, "/api/freelancer/profile", fiber.Map{"role": "client"}, token(t, fl))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, env.Errors, "role")

	resp, env = e.do(t, http.MethodPut, "/api/freelancer/profile", fiber.Map{"skill_ids": []uint{9999}}, token(t, fl))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, env.Errors, "skill_ids")

	resp, _ = e.do(t, http.MethodGet, "/api/freelancer/profile", nil, token(t, cl))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env = e.do(t, http.MethodPut, "/api/client/profile", fiber.Map{"company_name": "Acme", "website": "https://acme.example"}, token(t, cl))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	resp, env = e.do(t, http.MethodPut, "/api/client/profile", fiber.Map{"website": "not a url"}, token(t, cl))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, env.Errors, "website")

	var stored models.User
	require.NoError(t, e.db.First(&stored, "id = ?", fl.ID).Error)
	assert.Equal(t, models.RoleFreelancer, stored.Role)
}

func TestSkills(t *testing.T) {
	e := newTestEnv(t)
	testutil.CreateSkills(t, e.db, "Trades", "Plumbing", "Tiling")
	testutil.CreateSkills(t, e.db, "Design", "Logo")

	resp, env := e.do(t, http.MethodGet, "/api/skills?category=Trades", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var skills []models.Skill
	require.NoError(t, json.Unmarshal(env.Data, &skills))
	assert.Len(t, skills, 2)

	resp, env = e.do(t, http.MethodGet, "/api/skills/categories", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cats []string
	require.NoError(t, json.Unmarshal(env.Data, &cats))
	assert.Equal(t, []string{"Design", "Trades"}, cats)
}

func TestAdmin_VerifyUser(t *testing.T) {
	e := newTestEnv(t)
	admin := testutil.CreateUser(t, e.db, models.RoleAdmin, models.Point{})
	fl := testutil.CreateUser(t, e.db, models.RoleFreelancer, models.Point{})
	require.NoError(t, e.db.Model(fl).Update("is_verified", false).Error)

	resp, _ := e.do(t, http.MethodPatch, "/api/admin/users/"+fl.ID.String()+"/verify", nil, token(t, fl))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env := e.do(t, http.MethodPatch, "/api/admin/users/"+fl.ID.String()+"/verify", nil, token(t, admin))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	var got models.User
	require.NoError(t, e.db.First(&got, "id = ?", fl.ID).Error)
	assert.True(t, got.IsVerified)

	resp, _ = e.do(t, http.MethodPatch, "/api/admin/users/"+fl.ID.String()+"/verify", fiber.Map{"verified": false}, token(t, admin))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, e.db.First(&got, "id = ?", fl.ID).Error)
	assert.False(t, got.IsVerified)

	resp, _ = e.do(t, http.MethodPatch, "/api/admin/users/"+uuid.NewString()+"/verify", nil, token(t, admin))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndNotFound(t *testing.T) {
	e := newTestEnv(t)

	resp, env := e.do(t, http.MethodGet, "/api/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	resp, env = e.do(t, http.MethodGet, "/api/nothing-here", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestValidationMessagesUseJSONNames(t *testing.T) {
	errs := validateStruct(&RegisterReq{Email: "bad", Password: "1"})
	require.NotNil(t, errs)
	assert.Equal(t, []string{"This field is required"}, errs["name"])
	assert.Equal(t, []string{"Invalid email format"}, errs["email"])
	assert.Equal(t, []string{"Must be at least 6 characters"}, errs["password"])
	assert.Nil(t, validateStruct(&RegisterReq{Name: "a", Email: "a@b.co", Password: "123456"}))
}
