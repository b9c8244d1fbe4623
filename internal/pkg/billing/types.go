package billing

// FastSpring event types the ledger reacts to.
const (
	EventSubscriptionActivated       = "subscription.activated"
	EventSubscriptionUpdated         = "subscription.updated"
	EventSubscriptionChargeCompleted = "subscription.charge.completed"
	EventSubscriptionPaymentComplete = "subscription.payment.completed"
	EventSubscriptionCanceled        = "subscription.canceled"
	EventSubscriptionDeactivated     = "subscription.deactivated"
)

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	SubscriberID    string
	PayloadJSON     string
	SignatureValid  bool
}

// WebhookResult counts what happened to the events of one webhook delivery.
type WebhookResult struct {
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Ignored    int `json:"ignored"`
}
