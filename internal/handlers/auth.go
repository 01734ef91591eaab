package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/middleware"
	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/utils"
)

type AuthHandler struct {
	DB        *gorm.DB
	JWTSecret string
	Expires   int
	Secure    bool
	Log       *zap.Logger
}

func NewAuthHandler(db *gorm.DB, jwtSecret string, expires int, secure bool, log *zap.Logger) *AuthHandler {
	return &AuthHandler{DB: db, JWTSecret: jwtSecret, Expires: expires, Secure: secure, Log: log.Named("auth")}
}

func (h *AuthHandler) Routes(r fiber.Router, protected ...fiber.Handler) {
	g := r.Group("/auth")
	g.Post("/register", h.Register)
	g.Post("/login", h.Login)
	g.Post("/logout", h.Logout)

	r.Get("/me", chain(protected, h.Me)...)
}

type RegisterReq struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Phone    string `json:"phone" validate:"omitempty,min=8,max=30"`
	Role     string `json:"role" validate:"omitempty,oneof=client freelancer"` // admin is never self-assigned
}

func (h *AuthHandler) setSession(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.Secure,
		SameSite: "Lax",
		MaxAge:   h.Expires * 60,
	})
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.Password = strings.TrimSpace(req.Password)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))

	if errs := validateStruct(&req); errs != nil {
		return validationFail(c, errs)
	}

	role := models.RoleClient
	if req.Role != "" {
		role = models.Role(req.Role)
	}

	var existing models.User
	if err := h.DB.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		errs := FieldErrors{}
		errs.Add("email", "Email is already registered")
		return validationFail(c, errs)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var phone *string
	if req.Phone != "" {
		var byPhone models.User
		if err := h.DB.Where("phone = ?", req.Phone).First(&byPhone).Error; err == nil {
			errs := FieldErrors{}
			errs.Add("phone", "Phone is already registered")
			return validationFail(c, errs)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		phone = &req.Phone
	}

	pw, err := utils.HashPassword(req.Password)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to process password")
	}

	u := models.User{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    phone,
		Password: pw,
		Role:     role,
		IsActive: true,
	}

	err = h.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		if role == models.RoleFreelancer {
			return tx.Create(&models.FreelancerProfile{UserID: u.ID, IsAvailable: true}).Error
		}
		return tx.Create(&models.ClientProfile{UserID: u.ID}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fail(c, fiber.StatusConflict, "account already exists")
		}
		return err
	}

	token, err := utils.SignJWT(h.JWTSecret, u.ID.String(), string(u.Role), h.Expires)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to sign token")
	}
	h.setSession(c, token)

	h.Log.Info("user registered", zap.String("user_id", u.ID.String()), zap.String("role", string(u.Role)))

	return ok(c, fiber.StatusCreated, "Registered", fiber.Map{
		"user": fiber.Map{
			"id":    u.ID,
			"name":  u.Name,
			"email": u.Email,
			"phone": u.Phone,
			"role":  u.Role,
		},
		"token": token,
	})
}

type LoginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Password = strings.TrimSpace(req.Password)

	if errs := validateStruct(&req); errs != nil {
		return validationFail(c, errs)
	}

	var u models.User
	if err := h.DB.Where("email = ?", req.Email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusUnauthorized, "invalid email or password")
		}
		return err
	}

	if !utils.CheckPassword(u.Password, req.Password) {
		return fail(c, fiber.StatusUnauthorized, "invalid email or password")
	}
	if !u.IsActive {
		return fail(c, fiber.StatusForbidden, "account is inactive")
	}

	token, err := utils.SignJWT(h.JWTSecret, u.ID.String(), string(u.Role), h.Expires)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to sign token")
	}
	h.setSession(c, token)

	return ok(c, fiber.StatusOK, "Logged in", fiber.Map{
		"user": fiber.Map{
			"id":    u.ID,
			"name":  u.Name,
			"email": u.Email,
			"role":  u.Role,
		},
		"token": token,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   h.Secure,
		SameSite: "Lax",
	})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out",
	})
}

// Me returns the caller with whichever profile their role carries.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var u models.User
	err = h.DB.WithContext(c.UserContext()).
		Preload("FreelancerProfile.Skills").
		Preload("ClientProfile").
		First(&u, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusNotFound, "user not found")
		}
		return err
	}

	return ok(c, fiber.StatusOK, "", u)
}
