package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanDefinitionAllowsMode(t *testing.T) {
	basic := PlanDefinition{Modes: []string{"basic", "creative"}}
	assert.True(t, basic.AllowsMode("creative"))
	assert.False(t, basic.AllowsMode("philosopher"))

	enterprise := PlanDefinition{Modes: []string{WildcardCapability}}
	assert.True(t, enterprise.AllowsMode("philosopher"))
}

func TestPlanDefinitionMaxUploadBytes(t *testing.T) {
	assert.Equal(t, int64(5*1024*1024), PlanDefinition{MaxUploadSizeMB: 5}.MaxUploadBytes())
	assert.Equal(t, UnlimitedQuota, PlanDefinition{MaxUploadSizeMB: UnlimitedQuota}.MaxUploadBytes())
}

func TestIsKnownBillingCycle(t *testing.T) {
	assert.True(t, IsKnownBillingCycle("monthly"))
	assert.True(t, IsKnownBillingCycle(" Annual "))
	assert.False(t, IsKnownBillingCycle("weekly"))
}

func TestUsageCountersAddAndReset(t *testing.T) {
	u := &UsageCounters{SubscriberID: "s1"}
	assert.True(t, u.Add(QuotaChats, 3))
	assert.True(t, u.Add(QuotaUploadBytes, 1024))
	assert.False(t, u.Add("tokens", 1))

	used, ok := u.Used(QuotaChats)
	assert.True(t, ok)
	assert.Equal(t, int64(3), used)

	next := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	u.Reset(next)
	assert.Zero(t, u.PeriodChatCount)
	assert.Zero(t, u.PeriodUploadedBytes)
	assert.Equal(t, next, u.PeriodResetAt)
}

func TestUsageCountersAddRefusesOverflow(t *testing.T) {
	u := &UsageCounters{SubscriberID: "s1"}
	require.True(t, u.Add(QuotaChats, 1))
	assert.False(t, u.Add(QuotaChats, math.MaxInt64))
	assert.False(t, u.Add(QuotaChats, -1))
	assert.Equal(t, int64(1), u.PeriodChatCount)

	assert.True(t, u.Add(QuotaUploadBytes, math.MaxInt64))
	assert.False(t, u.Add(QuotaUploadBytes, 1))
	assert.Equal(t, int64(math.MaxInt64), u.PeriodUploadedBytes)
}

func TestEntitlementRecordClone(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &EntitlementRecord{SubscriberID: "s1", PlanID: "premium", CancelledAt: &at}
	c := r.Clone()
	c.PlanID = "basic"
	*c.CancelledAt = at.Add(time.Hour)

	assert.Equal(t, "premium", r.PlanID)
	assert.Equal(t, at, *r.CancelledAt)
	assert.Nil(t, (*EntitlementRecord)(nil).Clone())
}
