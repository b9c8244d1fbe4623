package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jaat-ai/ledger/app/models"
)

func newMockGormStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormStore(db), mock
}

func TestGormStoreGetEntitlement(t *testing.T) {
	s, mock := newMockGormStore(t)
	activated := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"subscriber_id", "plan_id", "activated_at", "expires_at", "status", "payment_reference", "payment_method", "cancelled_at",
	}).AddRow("sub-1", "premium", activated, activated.AddDate(0, 0, 30), "active", "pay-1", "manual", nil)
	mock.ExpectQuery("SELECT \\* FROM `entitlement_records` WHERE subscriber_id = \\?").
		WillReturnRows(rows)

	rec, err := s.GetEntitlement(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "sub-1", rec.SubscriberID)
	assert.Equal(t, "premium", rec.PlanID)
	assert.True(t, rec.ExpiresAt.Equal(activated.AddDate(0, 0, 30)))
	assert.Nil(t, rec.CancelledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreGetEntitlementNotFound(t *testing.T) {
	s, mock := newMockGormStore(t)
	mock.ExpectQuery("SELECT \\* FROM `entitlement_records`").
		WillReturnRows(sqlmock.NewRows([]string{"subscriber_id"}))

	rec, err := s.GetEntitlement(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreGetEntitlementError(t *testing.T) {
	s, mock := newMockGormStore(t)
	mock.ExpectQuery("SELECT \\* FROM `entitlement_records`").
		WillReturnError(errors.New("connection refused"))

	_, err := s.GetEntitlement(context.Background(), "sub-1")
	assert.Error(t, err)
}

func TestGormStorePutEntitlementUpserts(t *testing.T) {
	s, mock := newMockGormStore(t)
	mock.ExpectExec("INSERT INTO `entitlement_records` .* ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.PutEntitlement(context.Background(), sampleRecord("sub-1")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStorePutUsageUpserts(t *testing.T) {
	s, mock := newMockGormStore(t)
	mock.ExpectExec("INSERT INTO `usage_counters` .* ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.PutUsage(context.Background(), &models.UsageCounters{
		SubscriberID:    "sub-1",
		PeriodChatCount: 3,
		PeriodResetAt:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreGetUsage(t *testing.T) {
	s, mock := newMockGormStore(t)
	reset := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"subscriber_id", "period_chat_count", "period_uploaded_bytes", "period_reset_at"}).
		AddRow("sub-1", 15, 4096, reset)
	mock.ExpectQuery("SELECT \\* FROM `usage_counters` WHERE subscriber_id = \\?").WillReturnRows(rows)

	u, err := s.GetUsage(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, int64(15), u.PeriodChatCount)
	assert.Equal(t, int64(4096), u.PeriodUploadedBytes)
	assert.True(t, u.PeriodResetAt.Equal(reset))
}

func TestGormStoreRejectsMissingSubscriber(t *testing.T) {
	s, _ := newMockGormStore(t)
	assert.Error(t, s.PutEntitlement(context.Background(), nil))
	assert.Error(t, s.PutUsage(context.Background(), &models.UsageCounters{}))
}

func TestGormStoreAppendHistory(t *testing.T) {
	s, mock := newMockGormStore(t)
	mock.ExpectExec("INSERT INTO `entitlement_history`").
		WillReturnResult(sqlmock.NewResult(7, 1))

	ev := &models.EntitlementEvent{
		SubscriberID: "sub-1",
		Action:       models.EntitlementActionActivated,
		PlanID:       "premium",
		OccurredAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.AppendHistory(context.Background(), ev))
	assert.Equal(t, uint(7), ev.ID)
	assert.Error(t, s.AppendHistory(context.Background(), &models.EntitlementEvent{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreListHistory(t *testing.T) {
	s, mock := newMockGormStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "subscriber_id", "action", "plan_id", "from_plan_id", "payment_reference", "payment_method", "occurred_at", "expires_at",
	}).
		AddRow(2, "sub-1", "plan_changed", "premium", "basic", "pay-2", "card", at.Add(time.Hour), at.AddDate(0, 0, 30)).
		AddRow(1, "sub-1", "activated", "basic", "", "pay-1", "card", at, at.AddDate(0, 0, 30))
	mock.ExpectQuery("SELECT \\* FROM `entitlement_history` WHERE subscriber_id = \\? ORDER BY occurred_at DESC, id DESC LIMIT").
		WillReturnRows(rows)

	events, err := s.ListHistory(context.Background(), "sub-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "plan_changed", events[0].Action)
	assert.Equal(t, "basic", events[0].FromPlanID)
	assert.Equal(t, uint(1), events[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
