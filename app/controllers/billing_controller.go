package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/jaat-ai/ledger/internal/pkg/apierror"
	"github.com/jaat-ai/ledger/internal/pkg/billing"
	"github.com/jaat-ai/ledger/internal/pkg/constants"
	"github.com/jaat-ai/ledger/internal/pkg/entitlements"
)

// HandleFastSpringWebhook applies a signed FastSpring webhook delivery.
// Transient failures answer 503 so FastSpring redelivers; events that can
// never succeed are logged and acknowledged.
func (lc *LedgerController) HandleFastSpringWebhook(c *fiber.Ctx) error {
	if strings.TrimSpace(lc.webhookSecret) == "" {
		return apierror.New(c, fiber.StatusServiceUnavailable, "webhook_disabled", "FastSpring webhook secret is not configured")
	}
	rawBody := append([]byte(nil), c.BodyRaw()...)
	if !billing.VerifyFastSpringSignature(rawBody, c.Get(constants.HeaderFastSpringSignature), lc.webhookSecret) {
		return apierror.New(c, fiber.StatusUnauthorized, "invalid_signature", "Invalid webhook signature")
	}

	res, err := lc.billing.HandleFastSpringWebhook(c.UserContext(), rawBody)
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrMalformedPayload):
		return apierror.Respond(c, err)
	case entitlements.IsTransient(err):
		log.Warnf("[Billing] webhook will be redelivered: %v", err)
		return apierror.Respond(c, err)
	default:
		log.Errorf("[Billing] webhook events rejected: %v", err)
		return c.JSON(fiber.Map{"ok": true, "result": res, "error": err.Error()})
	}
	return c.JSON(fiber.Map{"ok": true, "result": res})
}
