package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jaat-ai/ledger/internal/pkg/apierror"
	"github.com/jaat-ai/ledger/internal/pkg/entitlements"
	"github.com/jaat-ai/ledger/internal/pkg/middleware"
)

type activateRequest struct {
	PlanID           string `json:"planId" validate:"required"`
	PaymentReference string `json:"paymentReference" validate:"required"`
	PaymentMethod    string `json:"paymentMethod" validate:"omitempty,max=32"`
}

type renewRequest struct {
	PaymentReference string `json:"paymentReference" validate:"required"`
	PaymentMethod    string `json:"paymentMethod" validate:"omitempty,max=32"`
}

// HandleAdminActivate grants a plan after an out-of-band payment.
func (lc *LedgerController) HandleAdminActivate(c *fiber.Ctx) error {
	var req activateRequest
	if err := lc.parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}
	rec, err := lc.engine.Activate(c.UserContext(), middleware.SubscriberID(c), req.PlanID, req.PaymentReference,
		entitlements.WithPaymentMethod(req.PaymentMethod))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// HandleAdminRenew restarts the term of the subscriber's current plan.
func (lc *LedgerController) HandleAdminRenew(c *fiber.Ctx) error {
	var req renewRequest
	if err := lc.parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}
	rec, err := lc.engine.Renew(c.UserContext(), middleware.SubscriberID(c), req.PaymentReference,
		entitlements.WithPaymentMethod(req.PaymentMethod))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(rec)
}

// HandleAdminChangePlan moves an active subscriber to another plan.
func (lc *LedgerController) HandleAdminChangePlan(c *fiber.Ctx) error {
	var req activateRequest
	if err := lc.parseBody(c, &req); err != nil {
		return badRequest(c, err)
	}
	rec, err := lc.engine.ChangePlan(c.UserContext(), middleware.SubscriberID(c), req.PlanID, req.PaymentReference,
		entitlements.WithPaymentMethod(req.PaymentMethod))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(rec)
}

// HandleAdminCancel ends the subscriber's active entitlement.
func (lc *LedgerController) HandleAdminCancel(c *fiber.Ctx) error {
	rec, err := lc.engine.Cancel(c.UserContext(), middleware.SubscriberID(c))
	if err != nil {
		return apierror.Respond(c, err)
	}
	return c.JSON(rec)
}
