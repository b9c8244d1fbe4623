package models

import (
	"math"
	"strings"
)

const (
	BillingCycleMonthly = "monthly"
	BillingCycleAnnual  = "annual"
)

// WildcardCapability grants every capability or mode a caller may ask about.
const WildcardCapability = "*"

// UnlimitedQuota marks a quota that never blocks usage.
const UnlimitedQuota int64 = -1

// MaxUploadSizeMBLimit is the largest MaxUploadSizeMB whose byte count fits in an int64.
const MaxUploadSizeMBLimit int64 = math.MaxInt64 / (1024 * 1024)

// Quota names understood by the entitlement engine.
const (
	QuotaChats       = "chats"
	QuotaUploadBytes = "uploadBytes"
)

// PlanDefinition is an immutable catalog entry describing what a plan sells.
type PlanDefinition struct {
	ID              string           `yaml:"id" json:"id"`
	DisplayName     string           `yaml:"displayName" json:"displayName"`
	PriceCents      int64            `yaml:"priceCents" json:"priceCents"`
	BillingCycle    string           `yaml:"billingCycle" json:"billingCycle"`
	DurationDays    int              `yaml:"durationDays" json:"durationDays"`
	Capabilities    []string         `yaml:"capabilities" json:"capabilities"`
	Modes           []string         `yaml:"modes" json:"modes"`
	Quotas          map[string]int64 `yaml:"quotas" json:"quotas"`
	MaxUploadSizeMB int64            `yaml:"maxUploadSizeMB" json:"maxUploadSizeMB"`
	ProductRefs     []string         `yaml:"productRefs" json:"-"`
}

// IsKnownBillingCycle reports whether cycle is one of the supported billing cycles.
func IsKnownBillingCycle(cycle string) bool {
	switch strings.ToLower(strings.TrimSpace(cycle)) {
	case BillingCycleMonthly, BillingCycleAnnual:
		return true
	default:
		return false
	}
}

// QuotaLimit returns the configured limit for quota and whether the plan defines it.
func (p PlanDefinition) QuotaLimit(quota string) (int64, bool) {
	v, ok := p.Quotas[quota]
	return v, ok
}

// AllowsMode reports whether the plan includes mode, honouring the wildcard.
func (p PlanDefinition) AllowsMode(mode string) bool {
	for _, m := range p.Modes {
		if m == WildcardCapability || m == mode {
			return true
		}
	}
	return false
}

// MaxUploadBytes converts MaxUploadSizeMB to bytes; -1 stays unlimited.
func (p PlanDefinition) MaxUploadBytes() int64 {
	if p.MaxUploadSizeMB == UnlimitedQuota {
		return UnlimitedQuota
	}
	return p.MaxUploadSizeMB * 1024 * 1024
}
