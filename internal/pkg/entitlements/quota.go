package entitlements

import (
	"math"

	"github.com/jaat-ai/ledger/app/models"
)

// QuotaState is the outcome of a quota check.
type QuotaState int

const (
	QuotaRemaining QuotaState = iota
	QuotaUnlimited
	QuotaExceeded
)

func (s QuotaState) String() string {
	switch s {
	case QuotaUnlimited:
		return "unlimited"
	case QuotaExceeded:
		return "exceeded"
	default:
		return "remaining"
	}
}

func (s QuotaState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// QuotaStatus describes a subscriber's standing against one quota. Limit and
// Remaining are -1 when the quota is unlimited.
type QuotaStatus struct {
	Quota     string     `json:"quota"`
	State     QuotaState `json:"state"`
	Limit     int64      `json:"limit"`
	Used      int64      `json:"used"`
	Remaining int64      `json:"remaining"`
}

// Allows reports whether consuming delta more units stays within the quota.
// Used and Limit are never negative here, so Limit-Used cannot overflow.
func (q QuotaStatus) Allows(delta int64) bool {
	if delta < 0 {
		return false
	}
	if q.State == QuotaUnlimited {
		return delta <= math.MaxInt64-q.Used
	}
	return delta <= q.Limit-q.Used
}

func quotaStatus(quota string, limit, used int64) QuotaStatus {
	if limit == models.UnlimitedQuota {
		return QuotaStatus{
			Quota:     quota,
			State:     QuotaUnlimited,
			Limit:     models.UnlimitedQuota,
			Used:      used,
			Remaining: models.UnlimitedQuota,
		}
	}
	st := QuotaStatus{Quota: quota, State: QuotaRemaining, Limit: limit, Used: used}
	if used >= limit {
		st.State = QuotaExceeded
	} else {
		st.Remaining = limit - used
	}
	return st
}
