package entitlements

import (
	"sort"

	"github.com/jaat-ai/ledger/app/models"
)

// CapabilitySet is the set of capability flags a plan grants. Check membership
// with Has; a wildcard entry grants everything, so the set is not an
// exhaustive list.
type CapabilitySet map[string]struct{}

// NewCapabilitySet builds a set from a plan's capability list.
func NewCapabilitySet(capabilities []string) CapabilitySet {
	set := make(CapabilitySet, len(capabilities))
	for _, c := range capabilities {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether capability is granted directly or through the wildcard.
func (s CapabilitySet) Has(capability string) bool {
	if _, ok := s[models.WildcardCapability]; ok {
		return true
	}
	_, ok := s[capability]
	return ok
}

// IsWildcard reports whether the set grants every capability.
func (s CapabilitySet) IsWildcard() bool {
	_, ok := s[models.WildcardCapability]
	return ok
}

// List returns the explicit entries in sorted order.
func (s CapabilitySet) List() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
