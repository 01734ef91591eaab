package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/rating"
)

type ProfileHandler struct {
	DB      *gorm.DB
	Reviews *rating.RatingService
}

func NewProfileHandler(db *gorm.DB, reviews *rating.RatingService) *ProfileHandler {
	return &ProfileHandler{DB: db, Reviews: reviews}
}

func (h *ProfileHandler) Routes(r fiber.Router, freelancer, client []fiber.Handler) {
	r.Get("/freelancer/profile", chain(freelancer, h.GetFreelancer)...)
	r.Put("/freelancer/profile", chain(freelancer, h.UpdateFreelancer)...)

	r.Get("/client/profile", chain(client, h.GetClient)...)
	r.Put("/client/profile", chain(client, h.UpdateClient)...)

	r.Get("/freelancers/:id/reviews", h.FreelancerReviews)
}

func (h *ProfileHandler) loadFreelancer(tx *gorm.DB, userID uuid.UUID) (*models.FreelancerProfile, error) {
	var p models.FreelancerProfile
	err := tx.Preload("Skills").Where("user_id = ?", userID).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// accounts created before profiles were mandatory
	p = models.FreelancerProfile{UserID: userID, IsAvailable: true}
	if err := tx.Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (h *ProfileHandler) GetFreelancer(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	p, err := h.loadFreelancer(h.DB.WithContext(c.UserContext()), userID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load profile")
	}

	return c.JSON(fiber.Map{"success": true, "data": p})
}

type updateFreelancerReq struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=120"`
	Bio         *string          `json:"bio" validate:"omitempty,max=5000"`
	HourlyRate  *decimal.Decimal `json:"hourly_rate"`
	IsAvailable *bool            `json:"is_available"`
	SkillIDs    *[]uint          `json:"skill_ids" validate:"omitempty,max=50"`
	Role        *string          `json:"role"`
}

func (h *ProfileHandler) UpdateFreelancer(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req updateFreelancerReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}

	errs := validateStruct(&req)
	if errs == nil {
		errs = FieldErrors{}
	}
	if req.Role != nil {
		errs.Add("role", "Role cannot be changed")
	}
	if req.HourlyRate != nil && req.HourlyRate.IsNegative() {
		errs.Add("hourly_rate", "Must be greater than or equal to 0")
	}

	var skills []models.Skill
	if req.SkillIDs != nil {
		skills, err = findSkills(h.DB.WithContext(c.UserContext()), *req.SkillIDs)
		if err != nil {
			errs.Add("skill_ids", err.Error())
		}
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	var p *models.FreelancerProfile
	err = h.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = h.loadFreelancer(tx, userID); err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("name", name).Error; err != nil {
				return err
			}
		}

		updates := map[string]interface{}{}
		if req.Bio != nil {
			updates["bio"] = strings.TrimSpace(*req.Bio)
		}
		if req.HourlyRate != nil {
			updates["hourly_rate"] = *req.HourlyRate
		}
		if req.IsAvailable != nil {
			updates["is_available"] = *req.IsAvailable
		}
		if len(updates) > 0 {
			if err := tx.Model(p).Updates(updates).Error; err != nil {
				return err
			}
		}

		if req.SkillIDs != nil {
			if err := tx.Model(p).Association("Skills").Replace(skills); err != nil {
				return err
			}
		}
		return tx.Preload("Skills").First(p, "id = ?", p.ID).Error
	})
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to update profile")
	}

	return ok(c, fiber.StatusOK, "Profile updated", p)
}

func (h *ProfileHandler) loadClient(tx *gorm.DB, userID uuid.UUID) (*models.ClientProfile, error) {
	var p models.ClientProfile
	err := tx.Where("user_id = ?", userID).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p = models.ClientProfile{UserID: userID}
	if err := tx.Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (h *ProfileHandler) GetClient(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	p, err := h.loadClient(h.DB.WithContext(c.UserContext()), userID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load profile")
	}

	return c.JSON(fiber.Map{"success": true, "data": p})
}

type updateClientReq struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=120"`
	CompanyName *string `json:"company_name" validate:"omitempty,max=160"`
	Website     *string `json:"website" validate:"omitempty,url,max=255"`
	About       *string `json:"about" validate:"omitempty,max=5000"`
	Role        *string `json:"role"`
}

func (h *ProfileHandler) UpdateClient(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var req updateClientReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}

	errs := validateStruct(&req)
	if errs == nil {
		errs = FieldErrors{}
	}
	if req.Role != nil {
		errs.Add("role", "Role cannot be changed")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	var p *models.ClientProfile
	err = h.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = h.loadClient(tx, userID); err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("name", name).Error; err != nil {
				return err
			}
		}

		updates := map[string]interface{}{}
		if req.CompanyName != nil {
			updates["company_name"] = strings.TrimSpace(*req.CompanyName)
		}
		if req.Website != nil {
			updates["website"] = strings.TrimSpace(*req.Website)
		}
		if req.About != nil {
			updates["about"] = strings.TrimSpace(*req.About)
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(p).Updates(updates).Error
	})
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "failed to update profile")
	}

	return ok(c, fiber.StatusOK, "Profile updated", p)
}

func (h *ProfileHandler) FreelancerReviews(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	reviews, err := h.Reviews.ListForFreelancer(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "", reviews)
}

// findSkills loads ids and fails if any of them is unknown.
func findSkills(tx *gorm.DB, ids []uint) ([]models.Skill, error) {
	skills := []models.Skill{}
	if len(ids) == 0 {
		return skills, nil
	}

	uniq := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		uniq[id] = struct{}{}
	}

	if err := tx.Where("id IN ?", ids).Find(&skills).Error; err != nil {
		return nil, err
	}
	if len(skills) != len(uniq) {
		return nil, errors.New("Unknown skill id")
	}
	return skills, nil
}
