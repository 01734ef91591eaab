package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/geocoding"
)

// place is a coordinate plus whatever address the geocoder returned for it.
type place struct {
	Point   models.Point
	Address geocoding.Result
	Found   bool
}

func (p place) components() datatypes.JSON {
	if !p.Found || len(p.Address.Components) == 0 {
		return nil
	}
	b, err := json.Marshal(p.Address.Components)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// resolvePlace turns an address or a lat/lng pair into a place. An address
// must geocode; a coordinate is kept even when reverse geocoding fails.
func resolvePlace(ctx context.Context, geo Geocoder, address string, lat, lng *float64) (place, FieldErrors) {
	address = strings.TrimSpace(address)
	errs := FieldErrors{}

	switch {
	case lat != nil || lng != nil:
		if lat == nil || lng == nil {
			errs.Add("lat", "lat and lng must be given together")
			return place{}, errs
		}
		if !models.ValidCoordinates(*lat, *lng) {
			errs.Add("lat", "Coordinates are out of range")
			return place{}, errs
		}
		p := place{Point: models.NewPoint(*lat, *lng)}
		if res, found := geo.ReverseGeocode(ctx, *lat, *lng); found {
			p.Address, p.Found = res, true
		}
		return p, nil

	case address != "":
		res, found := geo.Geocode(ctx, address)
		if !found {
			errs.Add("address", "Address could not be located")
			return place{}, errs
		}
		return place{Point: res.Point(), Address: res, Found: true}, nil
	}

	errs.Add("address", "Provide an address or lat and lng")
	return place{}, errs
}

type LocationHandler struct {
	DB  *gorm.DB
	Geo Geocoder
	Log *zap.Logger
}

func NewLocationHandler(db *gorm.DB, geo Geocoder, log *zap.Logger) *LocationHandler {
	return &LocationHandler{DB: db, Geo: geo, Log: log.Named("location")}
}

func (h *LocationHandler) Routes(r fiber.Router, protected ...fiber.Handler) {
	g := r.Group("/me", protected...)
	g.Patch("/location", h.UpdateMyLocation)

	g.Get("/service-areas", h.ListServiceAreas)
	g.Post("/service-areas", h.CreateServiceArea)
	g.Delete("/service-areas/:id", h.DeleteServiceArea)

	g.Get("/saved-locations", h.ListSavedLocations)
	g.Post("/saved-locations", h.CreateSavedLocation)
	g.Delete("/saved-locations/:id", h.DeleteSavedLocation)
}

type locationReq struct {
	Address     string   `json:"address" validate:"max=500"`
	AddressLine string   `json:"address_line" validate:"max=500"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
}

func (h *LocationHandler) UpdateMyLocation(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req locationReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if errs := validateStruct(&req); errs != nil {
		return validationFail(c, errs)
	}

	p, errs := resolvePlace(c.UserContext(), h.Geo, req.Address, req.Lat, req.Lng)
	if errs != nil {
		return validationFail(c, errs)
	}

	line := strings.TrimSpace(req.AddressLine)
	if line == "" {
		line = strings.TrimSpace(req.Address)
	}

	updates := map[string]interface{}{
		"location":           p.Point,
		"address_line":       line,
		"city":               p.Address.City(),
		"state":              p.Address.State(),
		"postal_code":        p.Address.PostalCode(),
		"country":            p.Address.Country(),
		"formatted_address":  p.Address.FormattedAddress,
		"address_components": p.components(),
	}

	db := h.DB.WithContext(c.UserContext())
	res := db.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fail(c, fiber.StatusNotFound, "user not found")
	}

	var u models.User
	if err := db.First(&u, "id = ?", userID).Error; err != nil {
		return err
	}

	h.Log.Debug("location updated", zap.String("user_id", userID.String()), zap.Bool("geocoded", p.Found))
	return ok(c, fiber.StatusOK, "Location updated", u)
}

func (h *LocationHandler) ListServiceAreas(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	areas := []models.ServiceArea{}
	err = h.DB.WithContext(c.UserContext()).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&areas).Error
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "", areas)
}

type serviceAreaReq struct {
	Label    string   `json:"label" validate:"max=120"`
	Address  string   `json:"address" validate:"max=500"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	RadiusKm float64  `json:"radius_km" validate:"gt=0,lte=500"`
}

func (h *LocationHandler) CreateServiceArea(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req serviceAreaReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if errs := validateStruct(&req); errs != nil {
		return validationFail(c, errs)
	}

	p, errs := resolvePlace(c.UserContext(), h.Geo, req.Address, req.Lat, req.Lng)
	if errs != nil {
		return validationFail(c, errs)
	}

	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = p.Address.City()
	}

	area := models.ServiceArea{
		UserID:   userID,
		Label:    label,
		Center:   p.Point,
		RadiusKm: req.RadiusKm,
	}
	if err := h.DB.WithContext(c.UserContext()).Create(&area).Error; err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, "Service area added", area)
}

func (h *LocationHandler) DeleteServiceArea(c *fiber.Ctx) error {
	return h.deleteOwned(c, &models.ServiceArea{}, "service area")
}

func (h *LocationHandler) ListSavedLocations(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	locs := []models.SavedLocation{}
	err = h.DB.WithContext(c.UserContext()).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&locs).Error
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "", locs)
}

type savedLocationReq struct {
	Label   string   `json:"label" validate:"required,max=120"`
	Address string   `json:"address" validate:"max=500"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

func (h *LocationHandler) CreateSavedLocation(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req savedLocationReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	req.Label = strings.TrimSpace(req.Label)
	if errs := validateStruct(&req); errs != nil {
		return validationFail(c, errs)
	}

	p, errs := resolvePlace(c.UserContext(), h.Geo, req.Address, req.Lat, req.Lng)
	if errs != nil {
		return validationFail(c, errs)
	}

	loc := models.SavedLocation{
		UserID:           userID,
		Label:            req.Label,
		Address:          strings.TrimSpace(req.Address),
		FormattedAddress: p.Address.FormattedAddress,
		Location:         p.Point,
		Components:       p.components(),
	}
	if err := h.DB.WithContext(c.UserContext()).Create(&loc).Error; err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, "Location saved", loc)
}

func (h *LocationHandler) DeleteSavedLocation(c *fiber.Ctx) error {
	return h.deleteOwned(c, &models.SavedLocation{}, "saved location")
}

// deleteOwned removes the row named by :id when it belongs to the caller.
// Rows owned by someone else read as missing.
func (h *LocationHandler) deleteOwned(c *fiber.Ctx, model interface{}, what string) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	res := h.DB.WithContext(c.UserContext()).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fail(c, fiber.StatusNotFound, what+" not found")
	}
	return ok(c, fiber.StatusOK, strings.ToUpper(what[:1])+what[1:]+" deleted", nil)
}
