package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jaat-ai/ledger/internal/pkg/apierror"
	"github.com/jaat-ai/ledger/internal/pkg/constants"
)

// SystemRouter serves health, metrics and provider webhooks, none of which
// are rate limited.
type SystemRouter struct {
	deps Dependencies
}

func (h SystemRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, h.handleHealth)

	if h.deps.Gatherer != nil {
		app.Get(constants.MetricsRoute, adaptor.HTTPHandler(promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	app.Post(constants.FastSpringWebhookRoute, h.deps.Controller.HandleFastSpringWebhook)
}

func (h SystemRouter) handleHealth(c *fiber.Ctx) error {
	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.deps.Health(ctx); err != nil {
			return apierror.New(c, fiber.StatusServiceUnavailable, "unhealthy", err.Error())
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func NewSystemRouter(deps Dependencies) *SystemRouter {
	return &SystemRouter{deps: deps}
}
