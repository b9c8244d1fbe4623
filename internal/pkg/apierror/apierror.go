// Package apierror renders ledger errors as JSON API responses.
package apierror

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/jaat-ai/ledger/internal/pkg/billing"
	"github.com/jaat-ai/ledger/internal/pkg/catalog"
	"github.com/jaat-ai/ledger/internal/pkg/entitlements"
)

// Response is the body of every error reply.
type Response struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Status maps err to an HTTP status and a stable error code.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, entitlements.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, entitlements.ErrQuotaExceeded):
		return fiber.StatusPaymentRequired, "quota_exceeded"
	case errors.Is(err, entitlements.ErrUnknownPlan), errors.Is(err, catalog.ErrPlanNotFound):
		return fiber.StatusNotFound, "unknown_plan"
	case errors.Is(err, entitlements.ErrNoActiveEntitlement):
		return fiber.StatusConflict, "no_active_entitlement"
	case errors.Is(err, entitlements.ErrUnknownQuota):
		return fiber.StatusNotFound, "unknown_quota"
	case errors.Is(err, entitlements.ErrInvalidPayment),
		errors.Is(err, entitlements.ErrInvalidSubscriber),
		errors.Is(err, entitlements.ErrInvalidUsage),
		errors.Is(err, billing.ErrMalformedPayload):
		return fiber.StatusBadRequest, "bad_request"
	case errors.Is(err, billing.ErrInvalidLicense):
		return fiber.StatusUnprocessableEntity, "invalid_license"
	default:
		return fiber.StatusInternalServerError, "internal_server_error"
	}
}

// Respond writes err as a JSON error reply.
func Respond(c *fiber.Ctx, err error) error {
	status, code := Status(err)
	msg := err.Error()
	switch status {
	case fiber.StatusServiceUnavailable:
		c.Set(fiber.HeaderRetryAfter, "5")
		msg = "Entitlement storage is temporarily unavailable, try again"
	case fiber.StatusInternalServerError:
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		msg = "Internal server error"
	}
	return c.Status(status).JSON(Response{Error: code, Message: msg})
}

// New writes a JSON error reply with an explicit status and code.
func New(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(Response{Error: code, Message: message})
}
