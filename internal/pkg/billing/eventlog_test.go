package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func exerciseEventLog(t *testing.T, log EventLog) {
	t.Helper()
	ctx := context.Background()
	in := WebhookEventInput{Provider: "FastSpring", ProviderEventID: "evt-1", EventType: EventSubscriptionActivated}

	fresh, err := log.Begin(ctx, in)
	require.NoError(t, err)
	assert.True(t, fresh)

	require.NoError(t, log.Finish(ctx, "fastspring", "evt-1", errors.New("boom")))
	fresh, err = log.Begin(ctx, in)
	require.NoError(t, err)
	assert.True(t, fresh, "failed events are retried")

	require.NoError(t, log.Finish(ctx, "fastspring", "evt-1", nil))
	fresh, err = log.Begin(ctx, in)
	require.NoError(t, err)
	assert.False(t, fresh)

	_, err = log.Begin(ctx, WebhookEventInput{ProviderEventID: "evt-2"})
	assert.Error(t, err)
}

func TestMemoryEventLog(t *testing.T) {
	l, err := NewMemoryEventLog(8)
	require.NoError(t, err)
	exerciseEventLog(t, l)
}

func TestMemoryEventLogHashesMissingID(t *testing.T) {
	l, err := NewMemoryEventLog(8)
	require.NoError(t, err)
	ctx := context.Background()
	in := WebhookEventInput{Provider: "fastspring", PayloadJSON: `{"a":1}`}

	fresh, err := l.Begin(ctx, in)
	require.NoError(t, err)
	assert.True(t, fresh)
	fresh, err = l.Begin(ctx, in)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestRedisEventLog(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRedisEventLog(client, time.Hour)
	exerciseEventLog(t, l)

	assert.True(t, mr.Exists("ledger:webhook:fastspring:evt-1"))
	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("ledger:webhook:fastspring:evt-1"))
}

func newMockGormEventLog(t *testing.T) (*GormEventLog, sqlmock.Sqlmock) {
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
	return NewGormEventLog(db), mock
}

func TestGormEventLogBeginNewEvent(t *testing.T) {
	l, mock := newMockGormEventLog(t)
	mock.ExpectExec("INSERT INTO `billing_webhook_events`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	fresh, err := l.Begin(context.Background(), WebhookEventInput{Provider: "fastspring", ProviderEventID: "evt-1"})
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormEventLogBeginProcessedEvent(t *testing.T) {
	l, mock := newMockGormEventLog(t)
	mock.ExpectExec("INSERT INTO `billing_webhook_events`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE `billing_webhook_events` SET .* WHERE .*processing_error <> '' OR \\(processed_at IS NULL AND updated_at < \\?\\)").
		WillReturnResult(sqlmock.NewResult(0, 0))

	fresh, err := l.Begin(context.Background(), WebhookEventInput{Provider: "fastspring", ProviderEventID: "evt-1"})
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormEventLogBeginFailedEvent(t *testing.T) {
	l, mock := newMockGormEventLog(t)
	mock.ExpectExec("INSERT INTO `billing_webhook_events`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE `billing_webhook_events` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	fresh, err := l.Begin(context.Background(), WebhookEventInput{Provider: "fastspring", ProviderEventID: "evt-1"})
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormEventLogInFlightEventIsClaimedOnce(t *testing.T) {
	l, mock := newMockGormEventLog(t)
	// First delivery inserts the row; the concurrent redelivery finds it
	// unfinished and fresh, so the conditional update matches nothing.
	mock.ExpectExec("INSERT INTO `billing_webhook_events`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `billing_webhook_events`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE `billing_webhook_events` SET .* WHERE .*processed_at IS NULL AND updated_at < \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))

	in := WebhookEventInput{Provider: "fastspring", ProviderEventID: "evt-1"}
	first, err := l.Begin(context.Background(), in)
	require.NoError(t, err)
	second, err := l.Begin(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormEventLogFinish(t *testing.T) {
	l, mock := newMockGormEventLog(t)
	mock.ExpectExec("UPDATE `billing_webhook_events` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, l.Finish(context.Background(), "fastspring", "evt-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
