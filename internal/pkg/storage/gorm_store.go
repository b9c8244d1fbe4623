package storage

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jaat-ai/ledger/app/models"
)

var _ Store = (*GormStore)(nil)

// GormStore keeps one row per subscriber in entitlement_records and
// usage_counters, and appends to entitlement_history.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a database-backed store from a GORM handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the ledger tables.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&models.EntitlementRecord{}, &models.UsageCounters{}, &models.EntitlementEvent{})
}

func (s *GormStore) GetEntitlement(ctx context.Context, subscriberID string) (*models.EntitlementRecord, error) {
	var rec models.EntitlementRecord
	err := s.db.WithContext(ctx).Where("subscriber_id = ?", subscriberID).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) PutEntitlement(ctx context.Context, rec *models.EntitlementRecord) error {
	if rec == nil || strings.TrimSpace(rec.SubscriberID) == "" {
		return errors.New("entitlement record with subscriber id is required")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subscriber_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_id",
			"activated_at",
			"expires_at",
			"status",
			"payment_reference",
			"payment_method",
			"cancelled_at",
		}),
	}).Create(rec).Error
}

func (s *GormStore) GetUsage(ctx context.Context, subscriberID string) (*models.UsageCounters, error) {
	var u models.UsageCounters
	err := s.db.WithContext(ctx).Where("subscriber_id = ?", subscriberID).Take(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *GormStore) PutUsage(ctx context.Context, usage *models.UsageCounters) error {
	if usage == nil || strings.TrimSpace(usage.SubscriberID) == "" {
		return errors.New("usage counters with subscriber id are required")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subscriber_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"period_chat_count",
			"period_uploaded_bytes",
			"period_reset_at",
		}),
	}).Create(usage).Error
}

func (s *GormStore) AppendHistory(ctx context.Context, ev *models.EntitlementEvent) error {
	if ev == nil || strings.TrimSpace(ev.SubscriberID) == "" {
		return errors.New("history entry with subscriber id is required")
	}
	return s.db.WithContext(ctx).Create(ev).Error
}

func (s *GormStore) ListHistory(ctx context.Context, subscriberID string, limit int) ([]models.EntitlementEvent, error) {
	var events []models.EntitlementEvent
	q := s.db.WithContext(ctx).Where("subscriber_id = ?", subscriberID).Order("occurred_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
