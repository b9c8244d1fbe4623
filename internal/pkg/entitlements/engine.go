// Package entitlements decides what a subscriber may do: which plan is
// active, which capabilities it grants and how much of each quota is left.
package entitlements

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/jaat-ai/ledger/app/models"
	"github.com/jaat-ai/ledger/internal/pkg/locks"
	"github.com/jaat-ai/ledger/internal/pkg/metrics"
	"github.com/jaat-ai/ledger/internal/pkg/storage"
)

const defaultStoreTimeout = 5 * time.Second

// Catalog is the plan lookup the engine depends on.
type Catalog interface {
	GetPlan(id string) (models.PlanDefinition, error)
	FreePlan() models.PlanDefinition
}

// Engine is the entitlement authority. It is safe for concurrent use; writes
// for the same subscriber are serialized through its Locker.
type Engine struct {
	catalog Catalog
	store   storage.Store
	locker  locks.Locker
	reset   ResetPolicy
	timeout time.Duration
	clock   func() time.Time
	metrics *metrics.Ledger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker replaces the default in-process locker.
func WithLocker(l locks.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithResetPolicy sets how usage periods roll over.
func WithResetPolicy(p ResetPolicy) Option {
	return func(e *Engine) { e.reset = p }
}

// WithStoreTimeout bounds every store call and lock acquisition.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithMetrics records operation counters.
func WithMetrics(m *metrics.Ledger) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine builds an engine over an explicit catalog and store.
func NewEngine(catalog Catalog, store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		store:   store,
		locker:  locks.NewKeyedMutex(),
		reset:   CalendarMonthly{Location: time.Local},
		timeout: defaultStoreTimeout,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ActivateOption adjusts a single activation.
type ActivateOption func(*activateOptions)

type activateOptions struct {
	method string
}

// WithPaymentMethod records how the activation was paid for.
func WithPaymentMethod(method string) ActivateOption {
	return func(o *activateOptions) {
		if m := strings.TrimSpace(method); m != "" {
			o.method = m
		}
	}
}

// Activate grants planID to the subscriber starting now. Any previous record
// is overwritten; the newest activation always wins.
func (e *Engine) Activate(ctx context.Context, subscriberID, planID, paymentReference string, opts ...ActivateOption) (*models.EntitlementRecord, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return nil, err
	}
	plan, err := e.catalog.GetPlan(planID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}
	ref := strings.TrimSpace(paymentReference)
	if ref == "" {
		return nil, ErrInvalidPayment
	}
	ao := activateOptions{method: models.PaymentMethodManual}
	for _, opt := range opts {
		opt(&ao)
	}

	rec := newRecord(id, plan, ref, ao.method, e.now())
	err = e.withLock(ctx, id, func(ctx context.Context) error {
		prev, err := e.getRecord(ctx, id)
		if err != nil {
			return err
		}
		if err := e.putRecord(ctx, rec); err != nil {
			return err
		}
		e.appendHistory(ctx, historyEntry(activationAction(prev, rec), prev, rec))
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.ObserveActivation(plan.ID)
	log.Infof("[Ledger] activated plan %s for subscriber %s until %s (ref %s)", plan.ID, id, rec.ExpiresAt.Format(time.RFC3339), ref)
	return rec.Clone(), nil
}

// Renew re-activates the plan of the subscriber's current record with a new
// payment reference. The record may be in any status.
func (e *Engine) Renew(ctx context.Context, subscriberID, paymentReference string, opts ...ActivateOption) (*models.EntitlementRecord, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(paymentReference)
	if ref == "" {
		return nil, ErrInvalidPayment
	}

	var renewed *models.EntitlementRecord
	err = e.withLock(ctx, id, func(ctx context.Context) error {
		current, err := e.getRecord(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNoActiveEntitlement
		}
		plan, err := e.catalog.GetPlan(current.PlanID)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownPlan, current.PlanID)
		}
		ao := activateOptions{method: current.PaymentMethod}
		if ao.method == "" {
			ao.method = models.PaymentMethodManual
		}
		for _, opt := range opts {
			opt(&ao)
		}
		renewed = newRecord(id, plan, ref, ao.method, e.now())
		if err := e.putRecord(ctx, renewed); err != nil {
			return err
		}
		e.appendHistory(ctx, historyEntry(models.EntitlementActionRenewed, current, renewed))
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.ObserveActivation(renewed.PlanID)
	log.Infof("[Ledger] renewed plan %s for subscriber %s until %s", renewed.PlanID, id, renewed.ExpiresAt.Format(time.RFC3339))
	return renewed.Clone(), nil
}

// Cancel ends the subscriber's active entitlement immediately. ExpiresAt is kept.
func (e *Engine) Cancel(ctx context.Context, subscriberID string) (*models.EntitlementRecord, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return nil, err
	}

	var cancelled *models.EntitlementRecord
	err = e.withLock(ctx, id, func(ctx context.Context) error {
		rec, err := e.getRecord(ctx, id)
		if err != nil {
			return err
		}
		now := e.now()
		if rec == nil || EffectiveStatus(rec, now) != models.EntitlementStatusActive {
			return ErrNoActiveEntitlement
		}
		rec.Status = models.EntitlementStatusCancelled
		rec.CancelledAt = &now
		if err := e.putRecord(ctx, rec); err != nil {
			return err
		}
		ev := historyEntry(models.EntitlementActionCancelled, nil, rec)
		ev.OccurredAt = now
		e.appendHistory(ctx, ev)
		cancelled = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.ObserveCancellation()
	log.Infof("[Ledger] cancelled plan %s for subscriber %s", cancelled.PlanID, id)
	return cancelled.Clone(), nil
}

// ChangePlan moves a subscriber with an active entitlement to planID. The new
// plan starts a fresh term now; the previous plan is kept in the history.
func (e *Engine) ChangePlan(ctx context.Context, subscriberID, planID, paymentReference string, opts ...ActivateOption) (*models.EntitlementRecord, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return nil, err
	}
	plan, err := e.catalog.GetPlan(planID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}
	ref := strings.TrimSpace(paymentReference)
	if ref == "" {
		return nil, ErrInvalidPayment
	}

	var changed *models.EntitlementRecord
	err = e.withLock(ctx, id, func(ctx context.Context) error {
		current, err := e.getRecord(ctx, id)
		if err != nil {
			return err
		}
		now := e.now()
		if current == nil || EffectiveStatus(current, now) != models.EntitlementStatusActive {
			return ErrNoActiveEntitlement
		}
		ao := activateOptions{method: current.PaymentMethod}
		if ao.method == "" {
			ao.method = models.PaymentMethodManual
		}
		for _, opt := range opts {
			opt(&ao)
		}
		changed = newRecord(id, plan, ref, ao.method, now)
		if err := e.putRecord(ctx, changed); err != nil {
			return err
		}
		e.appendHistory(ctx, historyEntry(activationAction(current, changed), current, changed))
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.ObserveActivation(plan.ID)
	log.Infof("[Ledger] changed plan for subscriber %s to %s until %s", id, plan.ID, changed.ExpiresAt.Format(time.RFC3339))
	return changed.Clone(), nil
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// History lists the subscriber's activations, renewals, plan changes and
// cancellations, newest first. limit defaults to 50 and is capped at 500.
func (e *Engine) History(ctx context.Context, subscriberID string, limit int) ([]models.EntitlementEvent, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	events, err := e.store.ListHistory(ctx, id, limit)
	if err != nil {
		e.metrics.ObserveStorageFailure("list_history")
		log.Errorf("[Ledger] failed to load history for subscriber %s: %v", id, err)
		return nil, storageUnavailable("list history", err)
	}
	if events == nil {
		events = []models.EntitlementEvent{}
	}
	return events, nil
}

// IsActive evaluates the subscriber's record against the current time.
func (e *Engine) IsActive(ctx context.Context, subscriberID string) (bool, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return false, err
	}
	rec, err := e.getRecord(ctx, id)
	if err != nil {
		return false, err
	}
	return rec != nil && EffectiveStatus(rec, e.now()) == models.EntitlementStatusActive, nil
}

// GetCapabilities returns the capabilities of the subscriber's effective plan,
// which is the free plan unless an entitlement is active.
func (e *Engine) GetCapabilities(ctx context.Context, subscriberID string) (CapabilitySet, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return nil, err
	}
	plan, _, err := e.effectivePlan(ctx, id, e.now())
	if err != nil {
		return nil, err
	}
	return NewCapabilitySet(plan.Capabilities), nil
}

// CanUseMode reports whether the subscriber's effective plan includes an AI mode.
func (e *Engine) CanUseMode(ctx context.Context, subscriberID, mode string) (bool, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return false, err
	}
	plan, _, err := e.effectivePlan(ctx, id, e.now())
	if err != nil {
		return false, err
	}
	return plan.AllowsMode(mode), nil
}

// CanUploadFile checks a single file against the plan's per-file size ceiling.
// Period totals are checked separately through the uploadBytes quota.
func (e *Engine) CanUploadFile(ctx context.Context, subscriberID string, size int64) (bool, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return false, err
	}
	if size < 0 {
		return false, nil
	}
	plan, _, err := e.effectivePlan(ctx, id, e.now())
	if err != nil {
		return false, err
	}
	max := plan.MaxUploadBytes()
	return max == models.UnlimitedQuota || size <= max, nil
}

// CheckQuota reports the subscriber's standing against quota after applying
// the period reset.
func (e *Engine) CheckQuota(ctx context.Context, subscriberID, quota string) (QuotaStatus, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return QuotaStatus{}, err
	}

	var st QuotaStatus
	err = e.withLock(ctx, id, func(ctx context.Context) error {
		limit, usage, err := e.loadQuota(ctx, id, quota)
		if err != nil {
			return err
		}
		used, _ := usage.Used(quota)
		st = quotaStatus(quota, limit, used)
		return nil
	})
	return st, err
}

// RecordUsage adds delta to the subscriber's counter for quota. It fails with
// ErrQuotaExceeded, leaving counters untouched, when delta does not fit.
func (e *Engine) RecordUsage(ctx context.Context, subscriberID, quota string, delta int64) (QuotaStatus, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return QuotaStatus{}, err
	}
	if delta < 0 {
		return QuotaStatus{}, ErrInvalidUsage
	}

	var st QuotaStatus
	err = e.withLock(ctx, id, func(ctx context.Context) error {
		limit, usage, err := e.loadQuota(ctx, id, quota)
		if err != nil {
			return err
		}
		used, _ := usage.Used(quota)
		st = quotaStatus(quota, limit, used)
		if st.State == QuotaUnlimited && !st.Allows(delta) {
			return fmt.Errorf("%w: %s counter would overflow", ErrInvalidUsage, quota)
		}
		if !st.Allows(delta) {
			e.metrics.ObserveQuotaDenial(quota)
			log.Debugf("[Ledger] quota %s exceeded for subscriber %s (%d/%d, +%d)", quota, id, used, limit, delta)
			return ErrQuotaExceeded
		}

		if !usage.Add(quota, delta) {
			return fmt.Errorf("%w: %s counter would overflow", ErrInvalidUsage, quota)
		}
		if err := e.putUsage(ctx, usage); err != nil {
			return err
		}
		used, _ = usage.Used(quota)
		st = quotaStatus(quota, limit, used)
		return nil
	})
	if err != nil {
		return st, err
	}
	e.metrics.ObserveUsage(quota, delta)
	return st, nil
}

// Summary is a read-only view of a subscriber's entitlement.
type Summary struct {
	SubscriberID string                    `json:"subscriberId"`
	Active       bool                      `json:"active"`
	Status       string                    `json:"status"`
	Plan         models.PlanDefinition     `json:"plan"`
	Record       *models.EntitlementRecord `json:"record,omitempty"`
	DaysLeft     int                       `json:"daysLeft"`
}

// Status summarises the subscriber's record, effective status and plan.
// Subscribers without a record report status "none" and the free plan.
func (e *Engine) Status(ctx context.Context, subscriberID string) (*Summary, error) {
	id, err := normalizeSubscriber(subscriberID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	plan, rec, err := e.effectivePlan(ctx, id, now)
	if err != nil {
		return nil, err
	}

	sum := &Summary{SubscriberID: id, Status: "none", Plan: plan, Record: rec}
	if rec != nil {
		sum.Status = EffectiveStatus(rec, now)
		sum.Active = sum.Status == models.EntitlementStatusActive
		sum.DaysLeft = DaysLeft(rec, now)
	}
	return sum, nil
}

// EffectiveStatus applies lazy expiry: an active record past its expiry is expired.
func EffectiveStatus(rec *models.EntitlementRecord, now time.Time) string {
	if rec.Status == models.EntitlementStatusActive && !now.Before(rec.ExpiresAt) {
		return models.EntitlementStatusExpired
	}
	return rec.Status
}

// DaysLeft returns the whole days, rounded up, until an active record expires.
func DaysLeft(rec *models.EntitlementRecord, now time.Time) int {
	if rec == nil || EffectiveStatus(rec, now) != models.EntitlementStatusActive {
		return 0
	}
	return int(math.Ceil(rec.ExpiresAt.Sub(now).Hours() / 24))
}

func newRecord(id string, plan models.PlanDefinition, ref, method string, now time.Time) *models.EntitlementRecord {
	return &models.EntitlementRecord{
		SubscriberID:     id,
		PlanID:           plan.ID,
		ActivatedAt:      now,
		ExpiresAt:        now.AddDate(0, 0, plan.DurationDays),
		Status:           models.EntitlementStatusActive,
		PaymentReference: ref,
		PaymentMethod:    method,
	}
}

// activationAction names a transition from prev to next. Activating a
// different plan over an existing record is a plan change.
func activationAction(prev, next *models.EntitlementRecord) string {
	if prev != nil && prev.PlanID != next.PlanID {
		return models.EntitlementActionPlanChanged
	}
	return models.EntitlementActionActivated
}

func historyEntry(action string, prev, rec *models.EntitlementRecord) *models.EntitlementEvent {
	ev := &models.EntitlementEvent{
		SubscriberID:     rec.SubscriberID,
		Action:           action,
		PlanID:           rec.PlanID,
		PaymentReference: rec.PaymentReference,
		PaymentMethod:    rec.PaymentMethod,
		OccurredAt:       rec.ActivatedAt,
		ExpiresAt:        rec.ExpiresAt,
	}
	if prev != nil && prev.PlanID != rec.PlanID {
		ev.FromPlanID = prev.PlanID
	}
	return ev
}

// effectivePlan resolves the plan in force at now, falling back to the free plan.
func (e *Engine) effectivePlan(ctx context.Context, id string, now time.Time) (models.PlanDefinition, *models.EntitlementRecord, error) {
	rec, err := e.getRecord(ctx, id)
	if err != nil {
		return models.PlanDefinition{}, nil, err
	}
	if rec == nil || EffectiveStatus(rec, now) != models.EntitlementStatusActive {
		return e.catalog.FreePlan(), rec, nil
	}
	plan, err := e.catalog.GetPlan(rec.PlanID)
	if err != nil {
		e.metrics.ObserveStorageFailure("resolve_plan")
		return models.PlanDefinition{}, nil, storageUnavailable("resolve plan "+rec.PlanID, err)
	}
	return plan, rec, nil
}

// loadQuota must run under the subscriber's lock. It returns the plan limit and
// the subscriber's counters with the period reset already applied and persisted.
func (e *Engine) loadQuota(ctx context.Context, id, quota string) (int64, *models.UsageCounters, error) {
	now := e.now()
	plan, _, err := e.effectivePlan(ctx, id, now)
	if err != nil {
		return 0, nil, err
	}
	limit, ok := plan.QuotaLimit(quota)
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownQuota, quota)
	}

	usage, err := e.getUsage(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	stored := usage != nil
	if !stored {
		usage = &models.UsageCounters{SubscriberID: id}
	}
	if _, ok := usage.Used(quota); !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownQuota, quota)
	}
	if ensureFreshPeriod(usage, now, e.reset) && stored {
		log.Debugf("[Ledger] usage period reset for subscriber %s, next reset %s", id, usage.PeriodResetAt.Format(time.RFC3339))
		if err := e.putUsage(ctx, usage); err != nil {
			return 0, nil, err
		}
	}
	return limit, usage, nil
}

func (e *Engine) withLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, e.timeout)
	unlock, err := e.locker.Lock(lockCtx, "subscriber:"+id)
	cancel()
	if err != nil {
		e.metrics.ObserveStorageFailure("lock")
		return storageUnavailable("lock subscriber", err)
	}
	defer unlock()
	return fn(ctx)
}

func (e *Engine) getRecord(ctx context.Context, id string) (*models.EntitlementRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	rec, err := e.store.GetEntitlement(ctx, id)
	if err != nil {
		e.metrics.ObserveStorageFailure("get_entitlement")
		log.Errorf("[Ledger] failed to load entitlement for subscriber %s: %v", id, err)
		return nil, storageUnavailable("get entitlement", err)
	}
	return rec, nil
}

func (e *Engine) putRecord(ctx context.Context, rec *models.EntitlementRecord) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.store.PutEntitlement(ctx, rec); err != nil {
		e.metrics.ObserveStorageFailure("put_entitlement")
		log.Errorf("[Ledger] failed to save entitlement for subscriber %s: %v", rec.SubscriberID, err)
		return storageUnavailable("put entitlement", err)
	}
	return nil
}

// appendHistory runs after the record is committed. The record stays
// authoritative, so a failed append is logged and not returned.
func (e *Engine) appendHistory(ctx context.Context, ev *models.EntitlementEvent) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.store.AppendHistory(ctx, ev); err != nil {
		e.metrics.ObserveStorageFailure("append_history")
		log.Errorf("[Ledger] failed to append %s history for subscriber %s: %v", ev.Action, ev.SubscriberID, err)
	}
}

func (e *Engine) getUsage(ctx context.Context, id string) (*models.UsageCounters, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	u, err := e.store.GetUsage(ctx, id)
	if err != nil {
		e.metrics.ObserveStorageFailure("get_usage")
		log.Errorf("[Ledger] failed to load usage for subscriber %s: %v", id, err)
		return nil, storageUnavailable("get usage", err)
	}
	return u, nil
}

func (e *Engine) putUsage(ctx context.Context, u *models.UsageCounters) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.store.PutUsage(ctx, u); err != nil {
		e.metrics.ObserveStorageFailure("put_usage")
		log.Errorf("[Ledger] failed to save usage for subscriber %s: %v", u.SubscriberID, err)
		return storageUnavailable("put usage", err)
	}
	return nil
}

// now truncates to microseconds so records survive a round trip through DATETIME(6).
func (e *Engine) now() time.Time {
	return e.clock().Truncate(time.Microsecond)
}

func normalizeSubscriber(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidSubscriber
	}
	return id, nil
}
