package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/geojoki/internal/config"
	"github.com/Windi-Fikriyansyah/geojoki/internal/middleware"
	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
	"github.com/Windi-Fikriyansyah/geojoki/internal/realtime"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/ledger"
	"github.com/Windi-Fikriyansyah/geojoki/internal/services/rating"
)

// Deps is everything the HTTP layer needs. Redis and Hub may be nil.
type Deps struct {
	Config  *config.Config
	DB      *gorm.DB
	Redis   *redis.Client
	Hub     *realtime.Hub
	Geo     Geocoder
	Search  Searcher
	Ledger  *ledger.LedgerService
	Reviews *rating.RatingService
	Log     *zap.Logger
}

// ErrorHandler renders returned errors in the response envelope.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		} else {
			log.Error("unhandled error",
				zap.Error(err),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Any("request_id", c.Locals("requestid")),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"message": msg,
		})
	}
}

// NewApp builds the fiber app with middleware and every route mounted.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "geojoki",
		ErrorHandler: ErrorHandler(d.Log),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: !d.Config.IsProduction()}))
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(d.Log.Named("http")))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(d.Config.AllowedOrigins(), ","),
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))

	Mount(app, d)
	return app
}

// Mount registers the routes. Literal paths go before parameterised siblings.
func Mount(app *fiber.App, d Deps) {
	cfg := d.Config
	secure := cfg.IsProduction()

	auth := middleware.Protected(cfg.JWTSecret)
	freelancer := chain(auth, middleware.RequireRoles(models.RoleFreelancer))
	client := chain(auth, middleware.RequireRoles(models.RoleClient))
	admin := chain(auth, middleware.RequireRoles(models.RoleAdmin))

	api := app.Group("/api")

	NewHealthHandler(d.DB, d.Redis).Routes(api)
	NewAuthHandler(d.DB, cfg.JWTSecret, cfg.JWTExpiresMin, secure, d.Log).Routes(api, auth...)
	if cfg.GoogleEnabled() {
		(&GoogleOAuthHandler{
			DB:              d.DB,
			JWTSecret:       cfg.JWTSecret,
			Expires:         cfg.JWTExpiresMin,
			Secure:          secure,
			GoogleClientID:  cfg.GoogleClientID,
			GoogleSecret:    cfg.GoogleSecret,
			GoogleRedirect:  cfg.GoogleRedirect,
			FrontendBaseURL: cfg.FrontendBaseURL,
			Log:             d.Log.Named("google"),
		}).Routes(api)
	}

	NewSkillHandler(d.DB).Routes(api)
	NewSearchHandler(d.Search, d.Geo, d.Log).Routes(api, freelancer)
	NewJobHandler(d.Ledger, d.Reviews, d.Geo, d.Log).Routes(api, auth, freelancer, client)
	NewProfileHandler(d.DB, d.Reviews).Routes(api, freelancer, client)
	NewLocationHandler(d.DB, d.Geo, d.Log).Routes(api, auth...)
	NewAdminHandler(d.DB, d.Log).Routes(api, admin)

	if d.Hub != nil {
		NewNotificationHandler(d.Hub, d.Log).Routes(app, auth...)
	}
}
