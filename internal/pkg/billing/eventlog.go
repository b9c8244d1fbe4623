package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jaat-ai/ledger/app/models"
)

// EventLog deduplicates webhook deliveries. Begin returns false when the
// event was already applied; Finish records the outcome. A failed event may
// be attempted again on redelivery.
type EventLog interface {
	Begin(ctx context.Context, in WebhookEventInput) (bool, error)
	Finish(ctx context.Context, provider, eventID string, processingErr error) error
}

func normalizeEventInput(in WebhookEventInput) (WebhookEventInput, error) {
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	if in.Provider == "" {
		return in, errors.New("provider is required")
	}
	in.ProviderEventID = strings.TrimSpace(in.ProviderEventID)
	if in.ProviderEventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		in.ProviderEventID = "hash:" + hex.EncodeToString(sum[:])
	}
	return in, nil
}

// GormEventLog persists every delivery in billing_webhook_events.
type GormEventLog struct {
	db         *gorm.DB
	staleAfter time.Duration
	clock      func() time.Time
}

// staleClaimAfter is how long an unfinished claim blocks redeliveries.
const staleClaimAfter = 10 * time.Minute

func NewGormEventLog(db *gorm.DB) *GormEventLog {
	return &GormEventLog{db: db, staleAfter: staleClaimAfter, clock: time.Now}
}

// Begin inserts the event, or atomically reclaims a stored one that failed or
// whose claim went stale. An event still in flight is not handed out twice.
func (l *GormEventLog) Begin(ctx context.Context, in WebhookEventInput) (bool, error) {
	in, err := normalizeEventInput(in)
	if err != nil {
		return false, err
	}

	event := &models.BillingWebhookEvent{
		Provider:        in.Provider,
		ProviderEventID: in.ProviderEventID,
		EventType:       strings.TrimSpace(in.EventType),
		SubscriberID:    in.SubscriberID,
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	db := l.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected > 0 {
		return true, nil
	}

	now := l.clock()
	tx = db.Model(&models.BillingWebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", in.Provider, in.ProviderEventID).
		Where("processing_error <> '' OR (processed_at IS NULL AND updated_at < ?)", now.Add(-l.staleAfter)).
		Updates(map[string]interface{}{
			"processed_at":     nil,
			"processing_error": "",
			"updated_at":       now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (l *GormEventLog) Finish(ctx context.Context, provider, eventID string, processingErr error) error {
	now := time.Now()
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": errMsg,
	}
	return l.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", strings.ToLower(strings.TrimSpace(provider)), eventID).
		Updates(updates).Error
}

// RedisEventLog keeps a short-lived claim per event in Redis.
type RedisEventLog struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisEventLog remembers applied events for ttl.
func NewRedisEventLog(client redis.Cmdable, ttl time.Duration) *RedisEventLog {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisEventLog{client: client, prefix: "ledger:webhook:", ttl: ttl}
}

func (l *RedisEventLog) key(provider, eventID string) string {
	return l.prefix + provider + ":" + eventID
}

func (l *RedisEventLog) Begin(ctx context.Context, in WebhookEventInput) (bool, error) {
	in, err := normalizeEventInput(in)
	if err != nil {
		return false, err
	}
	return l.client.SetNX(ctx, l.key(in.Provider, in.ProviderEventID), "pending", l.ttl).Result()
}

func (l *RedisEventLog) Finish(ctx context.Context, provider, eventID string, processingErr error) error {
	key := l.key(strings.ToLower(strings.TrimSpace(provider)), eventID)
	if processingErr != nil {
		// Release the claim so the provider's retry is applied.
		return l.client.Del(ctx, key).Err()
	}
	return l.client.Set(ctx, key, "done", l.ttl).Err()
}

// MemoryEventLog is an in-process log bounded to the most recent events.
type MemoryEventLog struct {
	mu    sync.Mutex
	cache *lru.Cache[string, bool]
}

func NewMemoryEventLog(size int) (*MemoryEventLog, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, bool](size)
	if err != nil {
		return nil, err
	}
	return &MemoryEventLog{cache: cache}, nil
}

func (l *MemoryEventLog) Begin(_ context.Context, in WebhookEventInput) (bool, error) {
	in, err := normalizeEventInput(in)
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := in.Provider + ":" + in.ProviderEventID
	if _, seen := l.cache.Get(key); seen {
		return false, nil
	}
	l.cache.Add(key, false)
	return true, nil
}

func (l *MemoryEventLog) Finish(_ context.Context, provider, eventID string, processingErr error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(provider)) + ":" + eventID
	if processingErr != nil {
		l.cache.Remove(key)
		return nil
	}
	l.cache.Add(key, true)
	return nil
}
