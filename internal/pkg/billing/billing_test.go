package billing

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaat-ai/ledger/app/models"
	"github.com/jaat-ai/ledger/internal/pkg/catalog"
	"github.com/jaat-ai/ledger/internal/pkg/entitlements"
	"github.com/jaat-ai/ledger/internal/pkg/storage"
)

type call struct {
	op, subscriber, plan, ref string
}

type fakeEngine struct {
	calls     []call
	renewErr  error
	cancelErr error
}

func (f *fakeEngine) Activate(_ context.Context, subscriberID, planID, ref string, _ ...entitlements.ActivateOption) (*models.EntitlementRecord, error) {
	f.calls = append(f.calls, call{"activate", subscriberID, planID, ref})
	return &models.EntitlementRecord{SubscriberID: subscriberID, PlanID: planID, PaymentReference: ref}, nil
}

func (f *fakeEngine) Renew(_ context.Context, subscriberID, ref string, _ ...entitlements.ActivateOption) (*models.EntitlementRecord, error) {
	f.calls = append(f.calls, call{"renew", subscriberID, "", ref})
	if f.renewErr != nil {
		return nil, f.renewErr
	}
	return &models.EntitlementRecord{SubscriberID: subscriberID}, nil
}

func (f *fakeEngine) Cancel(_ context.Context, subscriberID string) (*models.EntitlementRecord, error) {
	f.calls = append(f.calls, call{"cancel", subscriberID, "", ""})
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &models.EntitlementRecord{SubscriberID: subscriberID}, nil
}

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New("free", catalog.DefaultPlans())
	require.NoError(t, err)
	return c
}

func newFakeService(t *testing.T) (*Service, *fakeEngine) {
	t.Helper()
	events, err := NewMemoryEventLog(16)
	require.NoError(t, err)
	eng := &fakeEngine{}
	return NewService(eng, defaultCatalog(t), events), eng
}

const activationPayload = `{"events":[{"id":"evt-1","type":"subscription.activated","live":false,"created":1710000000000,
	"data":{"id":"sub-42","product":"jaat-premium-monthly","account":"acct-9","state":"active","tags":{"subscriberId":"user-1"}}}]}`

func TestParseFastSpringWebhook(t *testing.T) {
	events, err := ParseFastSpringWebhook([]byte(activationPayload))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, EventSubscriptionActivated, ev.Type)
	assert.Equal(t, "user-1", ev.SubscriberID())
	assert.Equal(t, "fastspring:sub-42:evt-1", ev.PaymentReference())
	assert.Contains(t, ev.Raw(), `"sub-42"`)

	ev.Data.Tags = nil
	assert.Equal(t, "acct-9", ev.SubscriberID())
}

func TestParseFastSpringWebhookRejectsMalformed(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{}`,
		`{"events":[{"type":"subscription.activated"}]}`,
	} {
		_, err := ParseFastSpringWebhook([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedPayload, payload)
	}
}

func TestVerifyFastSpringSignature(t *testing.T) {
	payload := []byte(activationPayload)
	sig := SignFastSpringPayload(payload, "top-secret")

	assert.True(t, VerifyFastSpringSignature(payload, sig, "top-secret"))
	assert.False(t, VerifyFastSpringSignature(payload, sig, "other-secret"))
	assert.False(t, VerifyFastSpringSignature([]byte(`{}`), sig, "top-secret"))
	assert.False(t, VerifyFastSpringSignature(payload, "%%%not-base64", "top-secret"))
	assert.False(t, VerifyFastSpringSignature(payload, sig, ""))
	assert.False(t, VerifyFastSpringSignature(payload, "", "top-secret"))
}

func TestParseLicenseKey(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	lic, err := ParseLicenseKey("PREMIUM-20251231-AB12", now)
	require.NoError(t, err)
	assert.Equal(t, "premium", lic.PlanID)
	assert.True(t, lic.ValidThru.Equal(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)))

	lic, err = ParseLicenseKey("ent-20250615-0001", now)
	require.NoError(t, err, "a key stays valid through its last day")
	assert.Equal(t, "enterprise", lic.PlanID)

	tests := []string{
		"PREMIUM-20251231",
		"GOLD-20251231-AB12",
		"BASIC-2025123-AB12",
		"BASIC-20251340-AB12",
		"BASIC-20250614-AB12",
		"BASIC-20251231-",
	}
	for _, key := range tests {
		_, err := ParseLicenseKey(key, now)
		assert.ErrorIs(t, err, ErrInvalidLicense, key)
	}
}

func TestHandleWebhookActivatesMappedPlan(t *testing.T) {
	s, eng := newFakeService(t)

	res, err := s.HandleFastSpringWebhook(context.Background(), []byte(activationPayload))
	require.NoError(t, err)
	assert.Equal(t, WebhookResult{Applied: 1}, res)
	require.Len(t, eng.calls, 1)
	assert.Equal(t, call{"activate", "user-1", "premium", "fastspring:sub-42:evt-1"}, eng.calls[0])
}

func TestHandleWebhookSkipsDuplicates(t *testing.T) {
	s, eng := newFakeService(t)
	ctx := context.Background()

	_, err := s.HandleFastSpringWebhook(ctx, []byte(activationPayload))
	require.NoError(t, err)
	res, err := s.HandleFastSpringWebhook(ctx, []byte(activationPayload))
	require.NoError(t, err)

	assert.Equal(t, WebhookResult{Duplicates: 1}, res)
	assert.Len(t, eng.calls, 1)
}

func TestHandleWebhookEventTypes(t *testing.T) {
	s, eng := newFakeService(t)
	eng.cancelErr = entitlements.ErrNoActiveEntitlement

	payload := `{"events":[
		{"id":"evt-2","type":"subscription.charge.completed","data":{"id":"sub-1","product":"jaat-basic-monthly","tags":{"subscriberId":"user-2"}}},
		{"id":"evt-3","type":"subscription.canceled","data":{"id":"sub-1","tags":{"subscriberId":"user-3"}}},
		{"id":"evt-4","type":"order.completed","data":{"id":"ord-1"}}
	]}`
	res, err := s.HandleFastSpringWebhook(context.Background(), []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, WebhookResult{Applied: 2, Ignored: 1}, res)
	assert.Equal(t, []call{
		{"renew", "user-2", "", "fastspring:sub-1:evt-2"},
		{"cancel", "user-3", "", ""},
	}, eng.calls)
}

func TestChargeWithoutRecordActivates(t *testing.T) {
	s, eng := newFakeService(t)
	eng.renewErr = entitlements.ErrNoActiveEntitlement

	payload := `{"events":[{"id":"evt-5","type":"subscription.charge.completed","data":{"id":"sub-7","product":"jaat-basic-annual","tags":{"subscriberId":"user-5"}}}]}`
	_, err := s.HandleFastSpringWebhook(context.Background(), []byte(payload))
	require.NoError(t, err)
	require.Len(t, eng.calls, 2)
	assert.Equal(t, call{"activate", "user-5", "basic_annual", "fastspring:sub-7:evt-5"}, eng.calls[1])
}

func TestFailedEventIsRetriedOnRedelivery(t *testing.T) {
	s, eng := newFakeService(t)
	eng.renewErr = entitlements.ErrStorageUnavailable
	ctx := context.Background()

	payload := `{"events":[{"id":"evt-6","type":"subscription.charge.completed","data":{"id":"sub-1","tags":{"subscriberId":"user-6"}}}]}`
	_, err := s.HandleFastSpringWebhook(ctx, []byte(payload))
	require.Error(t, err)
	assert.True(t, entitlements.IsTransient(err))

	eng.renewErr = nil
	res, err := s.HandleFastSpringWebhook(ctx, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Len(t, eng.calls, 2)
}

func TestUnknownProductFails(t *testing.T) {
	s, eng := newFakeService(t)

	payload := `{"events":[{"id":"evt-7","type":"subscription.activated","data":{"id":"sub-1","product":"mystery-box","tags":{"subscriberId":"user-7"}}}]}`
	_, err := s.HandleFastSpringWebhook(context.Background(), []byte(payload))
	assert.ErrorIs(t, err, entitlements.ErrUnknownPlan)
	assert.Empty(t, eng.calls)
}

func TestServiceAgainstEngine(t *testing.T) {
	cat := defaultCatalog(t)
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "current-plan.json"))
	engine := entitlements.NewEngine(cat, store)
	s := NewService(engine, cat, nil)
	ctx := context.Background()

	_, err := s.HandleFastSpringWebhook(ctx, []byte(activationPayload))
	require.NoError(t, err)

	rec, err := store.GetEntitlement(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "premium", rec.PlanID)
	assert.Equal(t, models.BillingProviderFastSpring, rec.PaymentMethod)

	cancel := `{"events":[{"id":"evt-8","type":"subscription.deactivated","data":{"id":"sub-42","tags":{"subscriberId":"user-1"}}}]}`
	_, err = s.HandleFastSpringWebhook(ctx, []byte(cancel))
	require.NoError(t, err)

	active, err := engine.IsActive(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestSubscriptionUpdatedChangesPlan(t *testing.T) {
	cat := defaultCatalog(t)
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "current-plan.json"))
	engine := entitlements.NewEngine(cat, store)
	s := NewService(engine, cat, nil)
	ctx := context.Background()

	_, err := s.HandleFastSpringWebhook(ctx, []byte(activationPayload))
	require.NoError(t, err)

	update := `{"events":[{"id":"evt-9","type":"subscription.updated","data":{"id":"sub-42","product":"jaat-enterprise-monthly","tags":{"subscriberId":"user-1"}}}]}`
	res, err := s.HandleFastSpringWebhook(ctx, []byte(update))
	require.NoError(t, err)
	assert.Equal(t, WebhookResult{Applied: 1}, res)

	rec, err := store.GetEntitlement(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "enterprise", rec.PlanID)
	assert.Equal(t, "fastspring:sub-42:evt-9", rec.PaymentReference)

	history, err := engine.History(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.EntitlementActionPlanChanged, history[0].Action)
	assert.Equal(t, "premium", history[0].FromPlanID)
	assert.Equal(t, "fastspring:sub-42:evt-1", history[1].PaymentReference)
}

func TestActivateLicense(t *testing.T) {
	cat := defaultCatalog(t)
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "current-plan.json"))
	s := NewService(entitlements.NewEngine(cat, store), cat, nil)
	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	rec, err := s.ActivateLicense(ctx, "user-1", "basic-20251231-xy99")
	require.NoError(t, err)
	assert.Equal(t, "basic", rec.PlanID)
	assert.Equal(t, "license:BASIC-20251231-XY99", rec.PaymentReference)
	assert.Equal(t, models.BillingProviderLicense, rec.PaymentMethod)

	_, err = s.ActivateLicense(ctx, "user-2", "basic-20241231-xy99")
	assert.ErrorIs(t, err, ErrInvalidLicense)

	_, err = s.ActivateLicense(ctx, "", "basic-20251231-xy99")
	assert.True(t, errors.Is(err, entitlements.ErrInvalidSubscriber))
}
