package models

import (
	"math"
	"time"
)

// UsageCounters holds per-subscriber consumption for the current period.
type UsageCounters struct {
	SubscriberID        string    `gorm:"primaryKey;type:varchar(191)" json:"-"`
	PeriodChatCount     int64     `gorm:"not null;default:0" json:"periodChatCount"`
	PeriodUploadedBytes int64     `gorm:"not null;default:0" json:"periodUploadedBytes"`
	PeriodResetAt       time.Time `gorm:"type:datetime(6);not null" json:"periodResetAt"`
}

func (UsageCounters) TableName() string {
	return "usage_counters"
}

// Used returns the counter backing quota.
func (u *UsageCounters) Used(quota string) (int64, bool) {
	switch quota {
	case QuotaChats:
		return u.PeriodChatCount, true
	case QuotaUploadBytes:
		return u.PeriodUploadedBytes, true
	default:
		return 0, false
	}
}

// Add increments the counter backing quota by delta. It refuses unknown
// quotas, negative deltas and increments that would overflow the counter.
func (u *UsageCounters) Add(quota string, delta int64) bool {
	var counter *int64
	switch quota {
	case QuotaChats:
		counter = &u.PeriodChatCount
	case QuotaUploadBytes:
		counter = &u.PeriodUploadedBytes
	default:
		return false
	}
	if delta < 0 || delta > math.MaxInt64-*counter {
		return false
	}
	*counter += delta
	return true
}

// Reset zeroes both counters and moves the boundary to next.
func (u *UsageCounters) Reset(next time.Time) {
	u.PeriodChatCount = 0
	u.PeriodUploadedBytes = 0
	u.PeriodResetAt = next
}
