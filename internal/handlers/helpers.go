package handlers

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/geojoki/internal/services/geocoding"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/ledger"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/proximity"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/rating"
)

// Geocoder is the slice of the geocoding service the handlers use.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geocoding.Result, bool)
	ReverseGeocode(ctx context.Context, lat, lng float64) (geocoding.Result, bool)
}

type FieldErrors map[string][]string

func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func validationFail(c *fiber.Ctx, errs FieldErrors) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"success": false,
		"message": "Validation error",
		"errors":  errs,
	})
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": msg,
	})
}

func ok(c *fiber.Ctx, status int, msg string, data interface{}) error {
	body := fiber.Map{"success": true, "data": data}
	if msg != "" {
		body["message"] = msg
	}
	return c.Status(status).JSON(body)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names in the errors map
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the validator and returns nil when req is valid.
func validateStruct(req interface{}) FieldErrors {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	errs := FieldErrors{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.Add("_", err.Error())
		return errs
	}
	for _, e := range verrs {
		errs.Add(e.Field(), validationMessage(e))
	}
	return errs
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "latitude":
		return "Invalid latitude"
	case "longitude":
		return "Invalid longitude"
	case "url":
		return "Invalid URL format"
	default:
		return "Invalid value"
	}
}

// chain appends h to a copy of mw.
func chain(mw []fiber.Handler, h ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(mw)+len(h))
	out = append(out, mw...)
	return append(out, h...)
}

func getUserUUID(c *fiber.Ctx) (uuid.UUID, error) {
	v := c.Locals("userId")
	if v == nil {
		return uuid.Nil, fmt.Errorf("unauthorized")
	}

	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case string:
		return uuid.Parse(t)
	default:
		return uuid.Nil, fmt.Errorf("invalid userId type: %T", v)
	}
}

// getAuth returns the caller's id or writes a 401 response.
func getAuth(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := getUserUUID(c)
	if err != nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return id, nil
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// serviceError maps service sentinels to HTTP status codes.
func serviceError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrJobNotFound), errors.Is(err, ledger.ErrBidNotFound),
		errors.Is(err, ledger.ErrUserNotFound), errors.Is(err, rating.ErrJobNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ledger.ErrForbidden), errors.Is(err, ledger.ErrNotClient),
		errors.Is(err, ledger.ErrNotFreelancer), errors.Is(err, rating.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, ledger.ErrDuplicateBid), errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrJobNotOpen), errors.Is(err, ledger.ErrBidNotPending),
		errors.Is(err, ledger.ErrJobNotEditable), errors.Is(err, rating.ErrAlreadyReviewed),
		errors.Is(err, rating.ErrJobNotCompleted), errors.Is(err, rating.ErrNoAcceptedBid):
		status = fiber.StatusConflict
	case errors.Is(err, ledger.ErrOwnJob), errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrUnknownSkill), errors.Is(err, ledger.ErrInvalidBudget),
		errors.Is(err, rating.ErrInvalidRating),
		errors.Is(err, proximity.ErrInvalidPoint), errors.Is(err, proximity.ErrInvalidRadius),
		errors.Is(err, proximity.ErrInvalidStatus):
		status = fiber.StatusBadRequest
	}

	if status == fiber.StatusInternalServerError {
		return err
	}
	return fail(c, status, err.Error())
}
