package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
)

type SkillHandler struct {
	DB *gorm.DB
}

func NewSkillHandler(db *gorm.DB) *SkillHandler {
	return &SkillHandler{DB: db}
}

func (h *SkillHandler) Routes(r fiber.Router) {
	r.Get("/skills", h.List)
	r.Get("/skills/categories", h.Categories)
}

func (h *SkillHandler) List(c *fiber.Ctx) error {
	q := h.DB.WithContext(c.UserContext()).Order("category, name")
	if cat := strings.TrimSpace(c.Query("category")); cat != "" {
		q = q.Where("category = ?", cat)
	}

	var skills []models.Skill
	if err := q.Find(&skills).Error; err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to load skills")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    skills,
	})
}

func (h *SkillHandler) Categories(c *fiber.Ctx) error {
	var categories []string

	err := h.DB.WithContext(c.UserContext()).
		Model(&models.Skill{}).
		Where("category <> ''").
		Distinct("category").
		Order("category").
		Pluck("category", &categories).
		Error
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to load categories")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    categories,
	})
}
