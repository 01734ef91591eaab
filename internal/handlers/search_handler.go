package handlers

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/proximity"
)

// Searcher is the proximity layer as seen by the search endpoints.
type Searcher interface {
	FindFreelancersNear(ctx context.Context, q proximity.FreelancerQuery) ([]proximity.FreelancerMatch, error)
	FindJobsNear(ctx context.Context, q proximity.JobQuery) ([]proximity.JobMatch, error)
	FindJobsInServiceAreas(ctx context.Context, freelancerID uuid.UUID, f proximity.JobFilters) ([]proximity.JobMatch, error)
}

type SearchHandler struct {
	Search Searcher
	Geo    Geocoder
	Log    *zap.Logger
}

func NewSearchHandler(search Searcher, geo Geocoder, log *zap.Logger) *SearchHandler {
	return &SearchHandler{Search: search, Geo: geo, Log: log.Named("search")}
}

func (h *SearchHandler) Routes(r fiber.Router, freelancer []fiber.Handler) {
	r.Get("/freelancers/nearby", h.FreelancersNearby)
	r.Get("/jobs/nearby", h.JobsNearby)
	r.Get("/freelancer/jobs/matching", chain(freelancer, h.MatchingJobs)...)

	r.Get("/geocode", h.Geocode)
	r.Get("/geocode/reverse", h.ReverseGeocode)
}

// searchOrigin is the parsed location part of a search query.
type searchOrigin struct {
	Point    models.Point
	RadiusKm float64
	Address  string
}

// parseOrigin reads lat&lng or address plus distance. located is false when
// an address was given but could not be geocoded.
func (h *SearchHandler) parseOrigin(c *fiber.Ctx) (o searchOrigin, located bool, errs FieldErrors) {
	errs = FieldErrors{}

	if d := strings.TrimSpace(c.Query("distance")); d != "" {
		v, err := strconv.ParseFloat(d, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			errs.Add("distance", "Must be a number of kilometres")
		}
		o.RadiusKm = v
	}

	latS, lngS := strings.TrimSpace(c.Query("lat")), strings.TrimSpace(c.Query("lng"))
	o.Address = strings.TrimSpace(c.Query("address"))

	switch {
	case latS != "" || lngS != "":
		lat, errLat := strconv.ParseFloat(latS, 64)
		lng, errLng := strconv.ParseFloat(lngS, 64)
		if errLat != nil || errLng != nil || !models.ValidCoordinates(lat, lng) {
			errs.Add("lat", "lat and lng must be valid coordinates")
			break
		}
		o.Point = models.NewPoint(lat, lng)
	case o.Address != "":
		res, found := h.Geo.Geocode(c.UserContext(), o.Address)
		if !found {
			if len(errs) > 0 {
				return o, true, errs
			}
			return o, false, nil
		}
		o.Point = res.Point()
	default:
		errs.Add("address", "Provide an address or lat and lng")
	}

	if len(errs) > 0 {
		return o, true, errs
	}
	return o, true, nil
}

// skillIDs accepts skills[]=1&skills[]=2 as well as skills=1,2.
func skillIDs(c *fiber.Ctx) ([]uint, bool) {
	var raw []string
	for _, key := range []string{"skills[]", "skills"} {
		for _, v := range c.Context().QueryArgs().PeekMulti(key) {
			raw = append(raw, strings.Split(string(v), ",")...)
		}
	}

	ids := make([]uint, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseUint(s, 10, 32)
		if err != nil || id == 0 {
			return nil, false
		}
		ids = append(ids, uint(id))
	}
	return ids, true
}

func (h *SearchHandler) notLocated(c *fiber.Ctx, address string) error {
	h.Log.Info("search address not located", zap.String("address", address))
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Address could not be located",
		"data":    []interface{}{},
	})
}

func (h *SearchHandler) FreelancersNearby(c *fiber.Ctx) error {
	o, located, errs := h.parseOrigin(c)
	ids, idsOK := skillIDs(c)
	if !idsOK {
		if errs == nil {
			errs = FieldErrors{}
		}
		errs.Add("skills", "Skill ids must be positive integers")
	}
	if errs != nil {
		return validationFail(c, errs)
	}
	if !located {
		return h.notLocated(c, o.Address)
	}

	matches, err := h.Search.FindFreelancersNear(c.UserContext(), proximity.FreelancerQuery{
		Point:    o.Point,
		RadiusKm: o.RadiusKm,
		SkillIDs: ids,
		Category: strings.TrimSpace(c.Query("category_type")),
		Limit:    c.QueryInt("limit", 0),
	})
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    matches,
		"meta": fiber.Map{
			"origin": o.Point,
			"count":  len(matches),
		},
	})
}

func (h *SearchHandler) JobsNearby(c *fiber.Ctx) error {
	o, located, errs := h.parseOrigin(c)
	ids, idsOK := skillIDs(c)
	if !idsOK {
		if errs == nil {
			errs = FieldErrors{}
		}
		errs.Add("skills", "Skill ids must be positive integers")
	}
	status := models.JobStatus(strings.TrimSpace(c.Query("status")))
	if status != "" && (!status.Valid() || status == models.JobStatusDraft) {
		if errs == nil {
			errs = FieldErrors{}
		}
		errs.Add("status", "Must be one of: open in_progress completed cancelled")
	}
	if errs != nil {
		return validationFail(c, errs)
	}
	if !located {
		return h.notLocated(c, o.Address)
	}

	matches, err := h.Search.FindJobsNear(c.UserContext(), proximity.JobQuery{
		Point:    o.Point,
		RadiusKm: o.RadiusKm,
		SkillIDs: ids,
		Category: strings.TrimSpace(c.Query("category")),
		Status:   status,
		Limit:    c.QueryInt("limit", 0),
	})
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    matches,
		"meta": fiber.Map{
			"origin": o.Point,
			"count":  len(matches),
		},
	})
}

// MatchingJobs lists open jobs inside the caller's service areas.
func (h *SearchHandler) MatchingJobs(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	ids, idsOK := skillIDs(c)
	if !idsOK {
		errs := FieldErrors{}
		errs.Add("skills", "Skill ids must be positive integers")
		return validationFail(c, errs)
	}

	matches, err := h.Search.FindJobsInServiceAreas(c.UserContext(), userID, proximity.JobFilters{
		SkillIDs: ids,
		Category: strings.TrimSpace(c.Query("category")),
		Limit:    c.QueryInt("limit", 0),
	})
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, fiber.StatusOK, "", matches)
}

func (h *SearchHandler) Geocode(c *fiber.Ctx) error {
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		errs := FieldErrors{}
		errs.Add("address", "This field is required")
		return validationFail(c, errs)
	}

	res, found := h.Geo.Geocode(c.UserContext(), address)
	if !found {
		return fail(c, fiber.StatusNotFound, "Address could not be located")
	}
	return ok(c, fiber.StatusOK, "", res)
}

func (h *SearchHandler) ReverseGeocode(c *fiber.Ctx) error {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil || !models.ValidCoordinates(lat, lng) {
		errs := FieldErrors{}
		errs.Add("lat", "lat and lng must be valid coordinates")
		return validationFail(c, errs)
	}

	res, found := h.Geo.ReverseGeocode(c.UserContext(), lat, lng)
	if !found {
		return fail(c, fiber.StatusNotFound, "No address found for these coordinates")
	}
	return ok(c, fiber.StatusOK, "", res)
}
