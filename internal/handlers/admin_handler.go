package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
)

type AdminHandler struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewAdminHandler(db *gorm.DB, log *zap.Logger) *AdminHandler {
	return &AdminHandler{DB: db, Log: log.Named("admin")}
}

func (h *AdminHandler) Routes(r fiber.Router, admin []fiber.Handler) {
	r.Patch("/admin/users/:id/verify", chain(admin, h.VerifyUser)...)
}

type verifyReq struct {
	Verified *bool `json:"verified"`
}

// VerifyUser sets is_verified; an empty body verifies.
func (h *AdminHandler) VerifyUser(c *fiber.Ctx) error {
	adminID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req verifyReq
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid body")
		}
	}
	verified := req.Verified == nil || *req.Verified

	db := h.DB.WithContext(c.UserContext())
	res := db.Model(&models.User{}).Where("id = ?", id).Update("is_verified", verified)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fail(c, fiber.StatusNotFound, "user not found")
	}

	var u models.User
	if err := db.First(&u, "id = ?", id).Error; err != nil {
		return err
	}

	h.Log.Info("user verification changed",
		zap.String("admin_id", adminID.String()),
		zap.String("user_id", id.String()),
		zap.Bool("verified", verified),
	)
	return ok(c, fiber.StatusOK, "User updated", u)
}
