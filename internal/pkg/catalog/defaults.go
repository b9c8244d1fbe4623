package catalog

import "github.com/jaat-ai/ledger/app/models"

const mb = 1024 * 1024

var (
	freeModes  = []string{"basic", "creative", "precise"}
	basicModes = []string{"basic", "creative", "precise", "academic", "business", "storyteller", "tutor", "coder", "assistant", "summarizer"}

	premiumModes = append(append([]string(nil), basicModes...),
		"researcher", "translator", "editor", "marketer", "analyst", "designer", "planner", "mentor",
		"critic", "consultant", "expert", "poet", "philosopher", "historian", "scientist", "engineer",
		"mathematician", "linguist", "journalist", "legal_advisor")

	freeFeatures    = []string{"basic_ui", "text_generation"}
	basicFeatures   = []string{"basic_ui", "enhanced_ui", "text_generation", "text_analysis", "priority_support"}
	premiumFeatures = []string{"basic_ui", "enhanced_ui", "advanced_ui", "holographic_ui", "text_generation", "text_analysis", "image_generation", "code_analysis", "priority_support", "custom_training"}
)

// DefaultPlans is the built-in catalog used when no catalog file is configured.
func DefaultPlans() []models.PlanDefinition {
	return []models.PlanDefinition{
		{
			ID: "free", DisplayName: "Free Trial", PriceCents: 0,
			BillingCycle: models.BillingCycleMonthly, DurationDays: 1,
			Capabilities: freeFeatures, Modes: freeModes, MaxUploadSizeMB: 5,
			Quotas: map[string]int64{models.QuotaChats: 20, models.QuotaUploadBytes: 50 * mb},
		},
		{
			ID: "basic", DisplayName: "Basic Plan", PriceCents: 4900,
			BillingCycle: models.BillingCycleMonthly, DurationDays: 30,
			Capabilities: basicFeatures, Modes: basicModes, MaxUploadSizeMB: 20,
			Quotas:      map[string]int64{models.QuotaChats: 1000, models.QuotaUploadBytes: 1024 * mb},
			ProductRefs: []string{"jaat-basic-monthly"},
		},
		{
			ID: "premium", DisplayName: "Premium Plan", PriceCents: 9900,
			BillingCycle: models.BillingCycleMonthly, DurationDays: 30,
			Capabilities: premiumFeatures, Modes: premiumModes, MaxUploadSizeMB: 100,
			Quotas:      map[string]int64{models.QuotaChats: models.UnlimitedQuota, models.QuotaUploadBytes: 10 * 1024 * mb},
			ProductRefs: []string{"jaat-premium-monthly"},
		},
		{
			ID: "enterprise", DisplayName: "Enterprise Plan", PriceCents: 19900,
			BillingCycle: models.BillingCycleMonthly, DurationDays: 30,
			Capabilities: []string{models.WildcardCapability}, Modes: []string{models.WildcardCapability}, MaxUploadSizeMB: 500,
			Quotas:      map[string]int64{models.QuotaChats: models.UnlimitedQuota, models.QuotaUploadBytes: models.UnlimitedQuota},
			ProductRefs: []string{"jaat-enterprise-monthly"},
		},
		{
			ID: "basic_annual", DisplayName: "Basic Plan - Annual", PriceCents: 47000,
			BillingCycle: models.BillingCycleAnnual, DurationDays: 365,
			Capabilities: basicFeatures, Modes: basicModes, MaxUploadSizeMB: 20,
			Quotas:      map[string]int64{models.QuotaChats: 1000, models.QuotaUploadBytes: 1024 * mb},
			ProductRefs: []string{"jaat-basic-annual"},
		},
		{
			ID: "premium_annual", DisplayName: "Premium Plan - Annual", PriceCents: 95000,
			BillingCycle: models.BillingCycleAnnual, DurationDays: 365,
			Capabilities: premiumFeatures, Modes: premiumModes, MaxUploadSizeMB: 100,
			Quotas:      map[string]int64{models.QuotaChats: models.UnlimitedQuota, models.QuotaUploadBytes: 10 * 1024 * mb},
			ProductRefs: []string{"jaat-premium-annual"},
		},
		{
			ID: "enterprise_annual", DisplayName: "Enterprise Plan - Annual", PriceCents: 199000,
			BillingCycle: models.BillingCycleAnnual, DurationDays: 365,
			Capabilities: []string{models.WildcardCapability}, Modes: []string{models.WildcardCapability}, MaxUploadSizeMB: 500,
			Quotas:      map[string]int64{models.QuotaChats: models.UnlimitedQuota, models.QuotaUploadBytes: models.UnlimitedQuota},
			ProductRefs: []string{"jaat-enterprise-annual"},
		},
	}
}
