package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/jaat-ai/ledger/internal/pkg/apierror"
	"github.com/jaat-ai/ledger/internal/pkg/billing"
	"github.com/jaat-ai/ledger/internal/pkg/catalog"
	"github.com/jaat-ai/ledger/internal/pkg/entitlements"
)

// LedgerController serves the entitlement API.
type LedgerController struct {
	engine        *entitlements.Engine
	catalog       *catalog.Catalog
	billing       *billing.Service
	webhookSecret string
	validate      *validator.Validate
}

// NewLedgerController wires the handlers to their collaborators.
func NewLedgerController(engine *entitlements.Engine, cat *catalog.Catalog, svc *billing.Service, webhookSecret string) *LedgerController {
	return &LedgerController{
		engine:        engine,
		catalog:       cat,
		billing:       svc,
		webhookSecret: webhookSecret,
		validate:      validator.New(),
	}
}

// parseBody decodes and validates a JSON request body into out.
func (lc *LedgerController) parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errors.New("invalid request body")
	}
	return lc.validate.Struct(out)
}

func badRequest(c *fiber.Ctx, err error) error {
	return apierror.New(c, fiber.StatusBadRequest, "bad_request", err.Error())
}
