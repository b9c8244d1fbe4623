package entitlements

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPlan         = errors.New("unknown plan")
	ErrInvalidPayment      = errors.New("invalid payment reference")
	ErrNoActiveEntitlement = errors.New("no active entitlement")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	// ErrStorageUnavailable is the only transient error; callers may retry or
	// degrade to free-tier behaviour.
	ErrStorageUnavailable = errors.New("entitlement storage unavailable")

	ErrUnknownQuota      = errors.New("unknown quota")
	ErrInvalidSubscriber = errors.New("subscriber id is required")
	ErrInvalidUsage      = errors.New("usage delta must not be negative")
)

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

func storageUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
