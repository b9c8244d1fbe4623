package models

import "time"

// Actions recorded in the entitlement history.
const (
	EntitlementActionActivated   = "activated"
	EntitlementActionRenewed     = "renewed"
	EntitlementActionPlanChanged = "plan_changed"
	EntitlementActionCancelled   = "cancelled"
)

// EntitlementEvent is one append-only history entry. Every activation, renewal,
// plan change and cancellation adds a row; rows are never updated.
type EntitlementEvent struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SubscriberID     string    `gorm:"type:varchar(191);not null;index:idx_entitlement_history_subscriber_occurred,priority:1" json:"subscriberId"`
	Action           string    `gorm:"type:varchar(16);not null" json:"action"`
	PlanID           string    `gorm:"type:varchar(50);not null" json:"planId"`
	FromPlanID       string    `gorm:"type:varchar(50);not null;default:''" json:"fromPlanId,omitempty"`
	PaymentReference string    `gorm:"type:varchar(191);not null;default:''" json:"paymentReference,omitempty"`
	PaymentMethod    string    `gorm:"type:varchar(32);not null;default:''" json:"paymentMethod,omitempty"`
	OccurredAt       time.Time `gorm:"type:datetime(6);not null;index:idx_entitlement_history_subscriber_occurred,priority:2" json:"occurredAt"`
	ExpiresAt        time.Time `gorm:"type:datetime(6);not null" json:"expiresAt"`
}

func (EntitlementEvent) TableName() string {
	return "entitlement_history"
}
