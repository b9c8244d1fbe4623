package billing

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidLicense is returned for malformed, unknown-tier or expired keys.
var ErrInvalidLicense = errors.New("invalid license key")

var licenseDatePattern = regexp.MustCompile(`^\d{8}$`)

// licenseTiers maps the tier code of a key to a catalog plan ID.
var licenseTiers = map[string]string{
	"BASIC":   "basic",
	"PREMIUM": "premium",
	"ENT":     "enterprise",
}

// License is a decoded license key of the form TIER-YYYYMMDD-XXXX.
type License struct {
	Key       string    `json:"licenseKey"`
	PlanID    string    `json:"planId"`
	ValidThru time.Time `json:"validThru"`
}

// ParseLicenseKey validates key at now. The date segment is the last day the
// key may be redeemed, interpreted in UTC.
func ParseLicenseKey(key string, now time.Time) (License, error) {
	key = strings.TrimSpace(key)
	parts := strings.Split(key, "-")
	if len(parts) != 3 || parts[2] == "" {
		return License{}, fmt.Errorf("%w: expected TIER-YYYYMMDD-XXXX", ErrInvalidLicense)
	}

	plan, ok := licenseTiers[strings.ToUpper(parts[0])]
	if !ok {
		return License{}, fmt.Errorf("%w: unknown tier %q", ErrInvalidLicense, parts[0])
	}
	if !licenseDatePattern.MatchString(parts[1]) {
		return License{}, fmt.Errorf("%w: invalid date format", ErrInvalidLicense)
	}
	day, err := time.ParseInLocation("20060102", parts[1], time.UTC)
	if err != nil {
		return License{}, fmt.Errorf("%w: invalid date", ErrInvalidLicense)
	}
	if !now.Before(day.AddDate(0, 0, 1)) {
		return License{}, fmt.Errorf("%w: key expired on %s", ErrInvalidLicense, day.Format("2006-01-02"))
	}

	return License{Key: key, PlanID: plan, ValidThru: day}, nil
}
