package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/jaat-ai/ledger/internal/pkg/apierror"
	"github.com/jaat-ai/ledger/internal/pkg/constants"
	"github.com/jaat-ai/ledger/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, h.limiter())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from the entitlement ledger",
		})
	})

	lc := h.deps.Controller
	v1 := api.Group(constants.APIVersionPath)

	v1.Get("/plans", lc.HandleListPlans)
	v1.Get("/plans/:planId", lc.HandleGetPlan)

	sub := v1.Group("/subscribers/:id", middleware.ResolveSubscriber("id"))
	sub.Get("/", lc.HandleGetSubscriber)
	sub.Get("/capabilities", lc.HandleGetCapabilities)
	sub.Get("/history", lc.HandleGetHistory)
	sub.Get("/quotas/:quota", lc.HandleCheckQuota)
	sub.Get("/modes/:mode", lc.HandleCheckMode)
	sub.Get("/uploads", lc.HandleCheckUpload)
	sub.Post("/usage", lc.HandleRecordUsage)
	sub.Post("/license", lc.HandleActivateLicense)

	admin := v1.Group("/admin/subscribers/:id", middleware.AdminAPIKey(h.deps.AdminKeyHash), middleware.ResolveSubscriber("id"))
	admin.Post("/activate", lc.HandleAdminActivate)
	admin.Post("/renew", lc.HandleAdminRenew)
	admin.Post("/upgrade", lc.HandleAdminChangePlan)
	admin.Post("/cancel", lc.HandleAdminCancel)
}

func (h ApiRouter) limiter() fiber.Handler {
	cfg := limiter.Config{
		Storage: h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return apierror.New(c, fiber.StatusTooManyRequests, "rate_limited", "Too many requests")
		},
	}
	if h.deps.RateLimitMax > 0 {
		cfg.Max = h.deps.RateLimitMax
	}
	if h.deps.RateLimitWindow > 0 {
		cfg.Expiration = h.deps.RateLimitWindow
	}
	return limiter.New(cfg)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
