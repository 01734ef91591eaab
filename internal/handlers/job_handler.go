package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/ledger"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/rating"
)

type JobHandler struct {
	Ledger  *ledger.LedgerService
	Reviews *rating.RatingService
	Geo     Geocoder
	Log     *zap.Logger
}

func NewJobHandler(l *ledger.LedgerService, reviews *rating.RatingService, geo Geocoder, log *zap.Logger) *JobHandler {
	return &JobHandler{Ledger: l, Reviews: reviews, Geo: geo, Log: log.Named("jobs")}
}

// Routes registers the job and bid endpoints. The freelancer and client
// chains are expected to start with auth.
func (h *JobHandler) Routes(r fiber.Router, auth, freelancer, client []fiber.Handler) {
	r.Get("/jobs", h.ListPublic)
	r.Get("/jobs/:id", h.GetPublic)

	r.Get("/client/jobs", chain(client, h.ListMine)...)
	r.Post("/client/jobs", chain(client, h.Create)...)
	r.Put("/client/jobs/:id", chain(client, h.Update)...)
	r.Patch("/client/jobs/:id/status", chain(client, h.UpdateStatus)...)

	r.Post("/jobs/:id/bids", chain(freelancer, h.PlaceBid)...)
	r.Get("/jobs/:id/bids", chain(auth, h.ListBids)...)
	r.Post("/jobs/:id/review", chain(client, h.Review)...)

	r.Get("/bids/:id", chain(auth, h.GetBid)...)
	r.Patch("/bids/:id/decision", chain(client, h.DecideBid)...)
	r.Patch("/bids/:id/withdraw", chain(freelancer, h.WithdrawBid)...)
	r.Get("/freelancer/bids", chain(freelancer, h.MyBids)...)
}

func pageParams(c *fiber.Ctx) (int, int) {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func (h *JobHandler) list(c *fiber.Ctx, f ledger.JobListFilter) error {
	f.Page, f.PageSize = pageParams(c)
	f.Category = strings.TrimSpace(c.Query("category"))

	jobs, total, err := h.Ledger.ListJobs(c.UserContext(), f)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    jobs,
		"meta": fiber.Map{
			"page":  f.Page,
			"limit": f.PageSize,
			"total": total,
		},
	})
}

// ListPublic lists published jobs; drafts never leave their owner.
func (h *JobHandler) ListPublic(c *fiber.Ctx) error {
	status := models.JobStatus(strings.TrimSpace(c.Query("status", string(models.JobStatusOpen))))
	if !status.Valid() || status == models.JobStatusDraft {
		errs := FieldErrors{}
		errs.Add("status", "Must be one of: open in_progress completed cancelled")
		return validationFail(c, errs)
	}
	return h.list(c, ledger.JobListFilter{Status: status})
}

func (h *JobHandler) GetPublic(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	job, err := h.Ledger.GetJob(c.UserContext(), id)
	if err != nil {
		return serviceError(c, err)
	}
	if job.Status == models.JobStatusDraft {
		return fail(c, fiber.StatusNotFound, ledger.ErrJobNotFound.Error())
	}
	return ok(c, fiber.StatusOK, "", job)
}

func (h *JobHandler) ListMine(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	status := models.JobStatus(strings.TrimSpace(c.Query("status")))
	if status != "" && !status.Valid() {
		errs := FieldErrors{}
		errs.Add("status", "Invalid value")
		return validationFail(c, errs)
	}
	return h.list(c, ledger.JobListFilter{Status: status, ClientID: &userID})
}

type jobReq struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=10000"`
	Category    string          `json:"category" validate:"max=120"`
	BudgetType  string          `json:"budget_type" validate:"required,oneof=fixed hourly"`
	Budget      decimal.Decimal `json:"budget"`
	HourlyRate  decimal.Decimal `json:"hourly_rate"`
	Address     string          `json:"address" validate:"max=500"`
	AddressLine string          `json:"address_line" validate:"max=500"`
	Lat         *float64        `json:"lat"`
	Lng         *float64        `json:"lng"`
	SkillIDs    []uint          `json:"skill_ids" validate:"max=50"`
	Publish     bool            `json:"publish"`
}

func (r *jobReq) hasPlace() bool {
	return r.Lat != nil || r.Lng != nil || strings.TrimSpace(r.Address) != ""
}

// parseJobReq binds and validates the body, resolving any location given.
func (h *JobHandler) parseJobReq(c *fiber.Ctx) (ledger.JobInput, *jobReq, FieldErrors) {
	var req jobReq
	if err := c.BodyParser(&req); err != nil {
		errs := FieldErrors{}
		errs.Add("_", "invalid body")
		return ledger.JobInput{}, nil, errs
	}
	req.Title = strings.TrimSpace(req.Title)

	errs := validateStruct(&req)
	if errs == nil {
		errs = FieldErrors{}
	}
	switch models.BudgetType(req.BudgetType) {
	case models.BudgetFixed:
		if !req.Budget.IsPositive() {
			errs.Add("budget", "Must be greater than 0")
		}
	case models.BudgetHourly:
		if !req.HourlyRate.IsPositive() {
			errs.Add("hourly_rate", "Must be greater than 0")
		}
	}
	if len(errs) > 0 {
		return ledger.JobInput{}, nil, errs
	}

	in := ledger.JobInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		BudgetType:  models.BudgetType(req.BudgetType),
		Budget:      req.Budget,
		HourlyRate:  req.HourlyRate,
		AddressLine: strings.TrimSpace(req.AddressLine),
		SkillIDs:    req.SkillIDs,
		Publish:     req.Publish,
	}

	if req.hasPlace() {
		p, perrs := resolvePlace(c.UserContext(), h.Geo, req.Address, req.Lat, req.Lng)
		if perrs != nil {
			return ledger.JobInput{}, nil, perrs
		}
		in.Location = p.Point
		in.City = p.Address.City()
		in.FormattedAddress = p.Address.FormattedAddress
		if in.AddressLine == "" {
			in.AddressLine = strings.TrimSpace(req.Address)
		}
	}
	return in, &req, nil
}

func (h *JobHandler) Create(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	in, _, errs := h.parseJobReq(c)
	if errs != nil {
		return validationFail(c, errs)
	}

	job, err := h.Ledger.CreateJob(c.UserContext(), userID, in)
	if err != nil {
		return serviceError(c, err)
	}

	h.Log.Info("job created",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(job.Status)),
		zap.Bool("located", job.Location.Valid),
	)
	return ok(c, fiber.StatusCreated, "Job created", job)
}

// Update replaces the job's fields. The stored location is kept when the
// body names none.
func (h *JobHandler) Update(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	in, req, errs := h.parseJobReq(c)
	if errs != nil {
		return validationFail(c, errs)
	}

	if !req.hasPlace() {
		current, err := h.Ledger.GetJob(c.UserContext(), id)
		if err != nil {
			return serviceError(c, err)
		}
		in.Location = current.Location
		in.City = current.City
		in.FormattedAddress = current.FormattedAddress
		if in.AddressLine == "" {
			in.AddressLine = current.AddressLine
		}
	}

	job, err := h.Ledger.UpdateJob(c.UserContext(), userID, id, in)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, fiber.StatusOK, "Job updated", job)
}

type statusReq struct {
	Status string `json:"status" validate:"required,oneof=open completed cancelled"`
}

func (h *JobHandler) UpdateStatus(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req statusReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if errs := validateStruct(&req); errs != nil {
		return validationFail(c, errs)
	}

	job, err := h.Ledger.TransitionJob(c.UserContext(), userID, id, models.JobStatus(req.Status))
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, fiber.StatusOK, "Job status updated", job)
}

type bidReq struct {
	Amount   decimal.Decimal `json:"amount"`
	Proposal string          `json:"proposal" validate:"max=5000"`
}

func (h *JobHandler) PlaceBid(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	jobID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req bidReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	errs := validateStruct(&req)
	if errs == nil {
		errs = FieldErrors{}
	}
	if !req.Amount.IsPositive() {
		errs.Add("amount", "Must be greater than 0")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	bid, err := h.Ledger.PlaceBid(c.UserContext(), userID, jobID, req.Amount, req.Proposal)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, fiber.StatusCreated, "Bid placed", bid)
}

func (h *JobHandler) ListBids(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	jobID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	bids, err := h.Ledger.ListBidsForJob(c.UserContext(), userID, jobID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, fiber.StatusOK, "", bids)
}

func (h *JobHandler) GetBid(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	bidID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	bid, err := h.Ledger.GetBid(c.UserContext(), userID, bidID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, fiber.StatusOK, "", bid)
}

type decisionReq struct {
	Decision string `json:"decision" validate:"required,oneof=accept reject"`
}

func (h *JobHandler) DecideBid(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	bidID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req decisionReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	req.Decision = strings.ToLower(strings.TrimSpace(req.Decision))
	if errs := validateStruct(&req); errs != nil {
		return validationFail(c, errs)
	}

	bid, err := h.Ledger.DecideBid(c.UserContext(), userID, bidID, req.Decision == "accept")
	if err != nil {
		return serviceError(c, err)
	}

	msg := "Bid rejected"
	if bid.Status == models.BidStatusAccepted {
		msg = "Bid accepted"
	}
	return ok(c, fiber.StatusOK, msg, bid)
}

func (h *JobHandler) WithdrawBid(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	bidID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	bid, err := h.Ledger.WithdrawBid(c.UserContext(), userID, bidID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, fiber.StatusOK, "Bid withdrawn", bid)
}

func (h *JobHandler) MyBids(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	status := models.BidStatus(strings.TrimSpace(c.Query("status")))
	if status != "" && !status.Valid() {
		errs := FieldErrors{}
		errs.Add("status", "Must be one of: pending accepted rejected withdrawn")
		return validationFail(c, errs)
	}

	bids, err := h.Ledger.ListBidsForFreelancer(c.UserContext(), userID, status)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, fiber.StatusOK, "", bids)
}

type reviewReq struct {
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

func (h *JobHandler) Review(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}
	jobID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	var req reviewReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if errs := validateStruct(&req); errs != nil {
		return validationFail(c, errs)
	}

	review, err := h.Reviews.AddReview(c.UserContext(), jobID, userID, req.Rating, req.Comment)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, fiber.StatusCreated, "Review submitted", review)
}
