package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jaat-ai/ledger/app/models"
	"github.com/jaat-ai/ledger/internal/pkg/apierror"
)

// HandleListPlans lists the catalog for a billing cycle, cheapest first.
func (lc *LedgerController) HandleListPlans(c *fiber.Ctx) error {
	cycle := strings.ToLower(strings.TrimSpace(c.Query("cycle", models.BillingCycleMonthly)))
	if !models.IsKnownBillingCycle(cycle) {
		return apierror.New(c, fiber.StatusBadRequest, "bad_request", "cycle must be monthly or annual")
	}
	return c.JSON(fiber.Map{
		"cycle": cycle,
		"plans": lc.catalog.ListPlans(cycle),
	})
}

// HandleGetPlan returns a single plan definition.
func (lc *LedgerController) HandleGetPlan(c *fiber.Ctx) error {
	plan, err := lc.catalog.GetPlan(c.Params("planId"))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(plan)
}
