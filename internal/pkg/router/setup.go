package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jaat-ai/ledger/app/controllers"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the collaborators the routes need.
type Dependencies struct {
	Controller   *controllers.LedgerController
	AdminKeyHash string

	// LimiterStorage backs the API rate limiter; nil keeps counters in memory.
	LimiterStorage  fiber.Storage
	RateLimitMax    int
	RateLimitWindow time.Duration

	Gatherer prometheus.Gatherer
	Health   func(ctx context.Context) error
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewSystemRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
