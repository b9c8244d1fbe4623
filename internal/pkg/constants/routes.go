package constants

// Static route constants
const (
	HealthRoute            = "/healthz"
	MetricsRoute           = "/metrics"
	MonitorRoute           = "/monitor"
	FastSpringWebhookRoute = "/webhooks/fastspring"
	APIRoute               = "/api"
	// Versioned API prefix relative to APIRoute
	APIVersionPath = "/v1"
)

// Request and response headers shared by middleware and controllers.
const (
	HeaderAPIKey              = "X-API-Key"
	HeaderSubscriberID        = "X-Subscriber-ID"
	HeaderQuotaRemaining      = "X-Quota-Remaining"
	HeaderFastSpringSignature = "X-FS-Signature"
)
