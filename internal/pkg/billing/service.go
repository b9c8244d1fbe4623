// Package billing turns payment provider events and license keys into
// entitlement changes.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/jaat-ai/ledger/app/models"
	"github.com/jaat-ai/ledger/internal/pkg/entitlements"
)

// Entitlements is the subset of the engine billing drives.
type Entitlements interface {
	Activate(ctx context.Context, subscriberID, planID, paymentReference string, opts ...entitlements.ActivateOption) (*models.EntitlementRecord, error)
	Renew(ctx context.Context, subscriberID, paymentReference string, opts ...entitlements.ActivateOption) (*models.EntitlementRecord, error)
	Cancel(ctx context.Context, subscriberID string) (*models.EntitlementRecord, error)
}

// ProductResolver maps a provider product path to a catalog plan.
type ProductResolver interface {
	ResolveProduct(ref string) (models.PlanDefinition, error)
}

// Service applies billing events to the entitlement engine.
type Service struct {
	engine   Entitlements
	products ProductResolver
	events   EventLog
	clock    func() time.Time
}

// NewService creates a billing service. events may be nil to disable deduplication.
func NewService(engine Entitlements, products ProductResolver, events EventLog) *Service {
	return &Service{engine: engine, products: products, events: events, clock: time.Now}
}

// HandleFastSpringWebhook applies every event of a verified delivery. Events
// are processed independently; the returned error joins the failures so the
// caller can ask FastSpring to redeliver when any of them is transient.
func (s *Service) HandleFastSpringWebhook(ctx context.Context, payload []byte) (WebhookResult, error) {
	var res WebhookResult
	events, err := ParseFastSpringWebhook(payload)
	if err != nil {
		return res, err
	}

	var errs []error
	for _, ev := range events {
		applied, dup, err := s.handleEvent(ctx, ev)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("event %s: %w", ev.ID, err))
		case dup:
			res.Duplicates++
		case applied:
			res.Applied++
		default:
			res.Ignored++
		}
	}
	return res, errors.Join(errs...)
}

func (s *Service) handleEvent(ctx context.Context, ev FastSpringEvent) (applied, duplicate bool, err error) {
	if s.events != nil {
		fresh, err := s.events.Begin(ctx, WebhookEventInput{
			Provider:        models.BillingProviderFastSpring,
			ProviderEventID: ev.ID,
			EventType:       ev.Type,
			SubscriberID:    ev.SubscriberID(),
			PayloadJSON:     ev.Raw(),
			SignatureValid:  true,
		})
		if err != nil {
			return false, false, fmt.Errorf("%w: record webhook event: %w", entitlements.ErrStorageUnavailable, err)
		}
		if !fresh {
			log.Debugf("[Billing] skipping duplicate event %s", ev.ID)
			return false, true, nil
		}
	}

	applied, err = s.ApplyEvent(ctx, ev)
	if s.events != nil {
		if ferr := s.events.Finish(ctx, models.BillingProviderFastSpring, ev.ID, err); ferr != nil {
			log.Warnf("[Billing] failed to mark event %s processed: %v", ev.ID, ferr)
		}
	}
	return applied, false, err
}

// ApplyEvent maps one FastSpring event onto the engine. It reports false for
// event types the ledger does not act on.
func (s *Service) ApplyEvent(ctx context.Context, ev FastSpringEvent) (bool, error) {
	subscriberID := ev.SubscriberID()

	switch ev.Type {
	case EventSubscriptionActivated, EventSubscriptionUpdated:
		// An update carries the subscription's current product, so a plan
		// change is an activation of the new product.
		return true, s.activateProduct(ctx, subscriberID, ev)

	case EventSubscriptionChargeCompleted, EventSubscriptionPaymentComplete:
		_, err := s.engine.Renew(ctx, subscriberID, ev.PaymentReference(),
			entitlements.WithPaymentMethod(models.BillingProviderFastSpring))
		if errors.Is(err, entitlements.ErrNoActiveEntitlement) {
			// Charge arrived before the activation event.
			return true, s.activateProduct(ctx, subscriberID, ev)
		}
		return true, err

	case EventSubscriptionCanceled, EventSubscriptionDeactivated:
		_, err := s.engine.Cancel(ctx, subscriberID)
		if errors.Is(err, entitlements.ErrNoActiveEntitlement) {
			log.Infof("[Billing] %s for subscriber %s without an active entitlement", ev.Type, subscriberID)
			return true, nil
		}
		return true, err

	default:
		log.Infof("[Billing] unhandled FastSpring event type: %s", ev.Type)
		return false, nil
	}
}

func (s *Service) activateProduct(ctx context.Context, subscriberID string, ev FastSpringEvent) error {
	plan, err := s.products.ResolveProduct(ev.Data.Product)
	if err != nil {
		return fmt.Errorf("%w: product %q", entitlements.ErrUnknownPlan, ev.Data.Product)
	}
	_, err = s.engine.Activate(ctx, subscriberID, plan.ID, ev.PaymentReference(),
		entitlements.WithPaymentMethod(models.BillingProviderFastSpring))
	return err
}

// ActivateLicense redeems a license key for subscriberID.
func (s *Service) ActivateLicense(ctx context.Context, subscriberID, licenseKey string) (*models.EntitlementRecord, error) {
	lic, err := ParseLicenseKey(licenseKey, s.clock())
	if err != nil {
		return nil, err
	}
	rec, err := s.engine.Activate(ctx, subscriberID, lic.PlanID, "license:"+strings.ToUpper(lic.Key),
		entitlements.WithPaymentMethod(models.BillingProviderLicense))
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] license %s redeemed by subscriber %s", lic.Key, rec.SubscriberID)
	return rec, nil
}
