package models

import "time"

const (
	EntitlementStatusActive    = "active"
	EntitlementStatusExpired   = "expired"
	EntitlementStatusCancelled = "cancelled"
)

// PaymentMethodManual is recorded when a caller does not name a payment method.
const PaymentMethodManual = "manual"

// EntitlementRecord is the per-subscriber plan assignment. Records are never
// deleted; cancellation is a status transition.
type EntitlementRecord struct {
	SubscriberID     string     `gorm:"primaryKey;type:varchar(191)" json:"-"`
	PlanID           string     `gorm:"type:varchar(50);not null;index" json:"planId"`
	ActivatedAt      time.Time  `gorm:"type:datetime(6);not null" json:"activatedAt"`
	ExpiresAt        time.Time  `gorm:"type:datetime(6);not null" json:"expiresAt"`
	Status           string     `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	PaymentReference string     `gorm:"type:varchar(191);not null" json:"paymentReference"`
	PaymentMethod    string     `gorm:"type:varchar(32);not null;default:'manual'" json:"paymentMethod,omitempty"`
	CancelledAt      *time.Time `gorm:"type:datetime(6);default:null" json:"cancelledAt,omitempty"`
}

func (EntitlementRecord) TableName() string {
	return "entitlement_records"
}

// Clone returns a deep copy so callers cannot mutate stored state through a shared pointer.
func (r *EntitlementRecord) Clone() *EntitlementRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}
