package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/jaat-ai/ledger/internal/pkg/apierror"
	"github.com/jaat-ai/ledger/internal/pkg/constants"
	"github.com/jaat-ai/ledger/internal/pkg/entitlements"
)

// KeySubscriberID is the Locals key holding the resolved subscriber.
const KeySubscriberID = "SUBSCRIBER_ID"

// Gatekeeper is the part of the engine used to guard routes.
type Gatekeeper interface {
	GetCapabilities(ctx context.Context, subscriberID string) (entitlements.CapabilitySet, error)
	CanUseMode(ctx context.Context, subscriberID, mode string) (bool, error)
	CheckQuota(ctx context.Context, subscriberID, quota string) (entitlements.QuotaStatus, error)
	RecordUsage(ctx context.Context, subscriberID, quota string, delta int64) (entitlements.QuotaStatus, error)
}

// ResolveSubscriber stores the subscriber from the named route param, or the
// X-Subscriber-ID header when the route has none, in Locals.
func ResolveSubscriber(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Params(param))
		if id == "" {
			id = strings.TrimSpace(c.Get(constants.HeaderSubscriberID))
		}
		if id == "" {
			return apierror.New(c, fiber.StatusBadRequest, "bad_request", "Missing subscriber id")
		}
		c.Locals(KeySubscriberID, id)
		return c.Next()
	}
}

// SubscriberID returns the subscriber resolved for this request.
func SubscriberID(c *fiber.Ctx) string {
	if id, ok := c.Locals(KeySubscriberID).(string); ok {
		return id
	}
	return strings.TrimSpace(c.Get(constants.HeaderSubscriberID))
}

// RequireCapability rejects subscribers whose effective plan lacks capability.
func RequireCapability(g Gatekeeper, capability string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caps, err := g.GetCapabilities(c.UserContext(), SubscriberID(c))
		if err != nil {
			return apierror.Respond(c, err)
		}
		if !caps.Has(capability) {
			return apierror.New(c, fiber.StatusForbidden, "upgrade_required", "Your plan does not include "+capability)
		}
		return c.Next()
	}
}

// RequireMode rejects subscribers whose plan does not include the AI mode
// returned by mode.
func RequireMode(g Gatekeeper, mode func(*fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m := mode(c)
		ok, err := g.CanUseMode(c.UserContext(), SubscriberID(c), m)
		if err != nil {
			return apierror.Respond(c, err)
		}
		if !ok {
			return apierror.New(c, fiber.StatusForbidden, "upgrade_required", "Your plan does not include the "+m+" mode")
		}
		return c.Next()
	}
}

// EnforceQuota rejects the request when delta more units of quota would not
// fit, and charges the units only after the handler succeeds.
func EnforceQuota(g Gatekeeper, quota string, delta func(*fiber.Ctx) int64) fiber.Handler {
	if delta == nil {
		delta = func(*fiber.Ctx) int64 { return 1 }
	}
	return func(c *fiber.Ctx) error {
		id, d := SubscriberID(c), delta(c)
		if d < 0 {
			return apierror.Respond(c, fmt.Errorf("%w: delta must not be negative", entitlements.ErrInvalidUsage))
		}
		st, err := g.CheckQuota(c.UserContext(), id, quota)
		if err != nil {
			return apierror.Respond(c, err)
		}
		if !st.Allows(d) {
			return apierror.Respond(c, entitlements.ErrQuotaExceeded)
		}

		if err := c.Next(); err != nil {
			return err
		}
		if c.Response().StatusCode() >= fiber.StatusBadRequest {
			return nil
		}

		st, err = g.RecordUsage(c.UserContext(), id, quota, d)
		if err != nil {
			// The response is already written; a concurrent request may
			// have taken the last unit between the check and the charge.
			log.Warnf("[API] charge %s for %s failed: %v", quota, id, err)
			return nil
		}
		if st.State != entitlements.QuotaUnlimited {
			c.Set(constants.HeaderQuotaRemaining, fmt.Sprint(st.Remaining))
		}
		return nil
	}
}
