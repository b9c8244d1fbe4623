// Package storage persists entitlement records and usage counters.
package storage

import (
	"context"

	"github.com/jaat-ai/ledger/app/models"
)

// Store is the persistence boundary of the entitlement ledger. Get methods
// return (nil, nil) when the subscriber has nothing stored. A Put is atomic
// from the caller's point of view: a concurrent Get observes either the old
// or the new value.
type Store interface {
	GetEntitlement(ctx context.Context, subscriberID string) (*models.EntitlementRecord, error)
	PutEntitlement(ctx context.Context, rec *models.EntitlementRecord) error
	GetUsage(ctx context.Context, subscriberID string) (*models.UsageCounters, error)
	PutUsage(ctx context.Context, usage *models.UsageCounters) error
	// AppendHistory adds an entry to the subscriber's history.
	AppendHistory(ctx context.Context, ev *models.EntitlementEvent) error
	// ListHistory returns up to limit entries, newest first. A limit of zero
	// or less returns everything.
	ListHistory(ctx context.Context, subscriberID string, limit int) ([]models.EntitlementEvent, error)
}
