package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jaat-ai/ledger/internal/pkg/apierror"
	"github.com/jaat-ai/ledger/internal/pkg/middleware"
)

type usageRequest struct {
	Quota string `json:"quota" validate:"required"`
	Delta *int64 `json:"delta" validate:"required,min=0"`
}

type licenseRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required"`
}

// HandleGetSubscriber returns the subscriber's entitlement summary.
func (lc *LedgerController) HandleGetSubscriber(c *fiber.Ctx) error {
	sum, err := lc.engine.Status(c.UserContext(), middleware.SubscriberID(c))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(sum)
}

// HandleGetCapabilities lists the capabilities of the effective plan.
func (lc *LedgerController) HandleGetCapabilities(c *fiber.Ctx) error {
	id := middleware.SubscriberID(c)
	caps, err := lc.engine.GetCapabilities(c.UserContext(), id)
	if err != nil {
		return apierror.Respond(c, err)
	}
	if capability := c.Query("has"); capability != "" {
		return c.JSON(fiber.Map{"subscriberId": id, "capability": capability, "granted": caps.Has(capability)})
	}
	return c.JSON(fiber.Map{
		"subscriberId": id,
		"capabilities": caps.List(),
		"wildcard":     caps.IsWildcard(),
	})
}

// HandleGetHistory lists the subscriber's entitlement history, newest first.
func (lc *LedgerController) HandleGetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return apierror.New(c, fiber.StatusBadRequest, "bad_request", "limit must not be negative")
	}
	events, err := lc.engine.History(c.UserContext(), middleware.SubscriberID(c), limit)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"subscriberId": middleware.SubscriberID(c), "events": events})
}

// HandleCheckQuota reports the subscriber's standing against one quota.
func (lc *LedgerController) HandleCheckQuota(c *fiber.Ctx) error {
	st, err := lc.engine.CheckQuota(c.UserContext(), middleware.SubscriberID(c), c.Params("quota"))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(st)
}

// HandleCheckMode reports whether an AI mode is available to the subscriber.
func (lc *LedgerController) HandleCheckMode(c *fiber.Ctx) error {
	mode := c.Params("mode")
	allowed, err := lc.engine.CanUseMode(c.UserContext(), middleware.SubscriberID(c), mode)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"mode": mode, "allowed": allowed})
}

// HandleCheckUpload reports whether a single file of ?size= bytes may be uploaded.
func (lc *LedgerController) HandleCheckUpload(c *fiber.Ctx) error {
	size := int64(c.QueryInt("size", -1))
	if size < 0 {
		return apierror.New(c, fiber.StatusBadRequest, "bad_request", "size must be a non-negative byte count")
	}
	allowed, err := lc.engine.CanUploadFile(c.UserContext(), middleware.SubscriberID(c), size)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(fiber.Map{"size": size, "allowed": allowed})
}

// HandleRecordUsage consumes quota for the subscriber.
func (lc *LedgerController) HandleRecordUsage(c *fiber.Ctx) error {
	var req usageRequest
	if err := lc.parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}
	st, err := lc.engine.RecordUsage(c.UserContext(), middleware.SubscriberID(c), req.Quota, *req.Delta)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(st)
}

// HandleActivateLicense redeems a license key.
func (lc *LedgerController) HandleActivateLicense(c *fiber.Ctx) error {
	var req licenseRequest
	if err := lc.parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}
	rec, err := lc.billing.ActivateLicense(c.UserContext(), middleware.SubscriberID(c), req.LicenseKey)
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}
