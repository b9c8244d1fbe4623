// Package catalog holds the read-only plan catalog loaded at process start.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jaat-ai/ledger/app/models"
)

// ErrPlanNotFound is returned when a plan ID is not in the catalog.
var ErrPlanNotFound = errors.New("plan not found")

// Catalog is an immutable lookup table of plan definitions.
type Catalog struct {
	plans    map[string]models.PlanDefinition
	products map[string]string
	freeID   string
}

type document struct {
	FreePlan string                  `yaml:"freePlan"`
	Plans    []models.PlanDefinition `yaml:"plans"`
}

// New validates plans and builds a catalog whose fallback plan is freeID.
func New(freeID string, plans []models.PlanDefinition) (*Catalog, error) {
	freeID = strings.TrimSpace(freeID)
	if freeID == "" {
		return nil, errors.New("free plan id is required")
	}

	c := &Catalog{
		plans:    make(map[string]models.PlanDefinition, len(plans)),
		products: make(map[string]string),
		freeID:   freeID,
	}
	for _, p := range plans {
		p = normalize(p)
		if err := validate(p); err != nil {
			return nil, err
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %q", p.ID)
		}
		for _, ref := range p.ProductRefs {
			if owner, dup := c.products[ref]; dup {
				return nil, fmt.Errorf("product ref %q mapped to both %q and %q", ref, owner, p.ID)
			}
			c.products[ref] = p.ID
		}
		c.plans[p.ID] = p
	}
	if _, ok := c.plans[freeID]; !ok {
		return nil, fmt.Errorf("free plan %q is not defined", freeID)
	}
	return c, nil
}

// Load reads a YAML catalog from path. An empty path yields the built-in catalog.
func Load(path, freeID string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return New(freeID, DefaultPlans())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return Parse(data, freeID)
}

// Parse decodes a YAML catalog document. A freePlan key in the document
// overrides freeID.
func Parse(data []byte, freeID string) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode plan catalog: %w", err)
	}
	if doc.FreePlan != "" {
		freeID = doc.FreePlan
	}
	if len(doc.Plans) == 0 {
		return nil, errors.New("plan catalog contains no plans")
	}
	return New(freeID, doc.Plans)
}

// GetPlan returns the plan with the given id.
func (c *Catalog) GetPlan(id string) (models.PlanDefinition, error) {
	p, ok := c.plans[strings.TrimSpace(id)]
	if !ok {
		return models.PlanDefinition{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return p, nil
}

// FreePlan returns the fallback plan used for subscribers without an active entitlement.
func (c *Catalog) FreePlan() models.PlanDefinition {
	return c.plans[c.freeID]
}

// ListPlans returns the plans offered under cycle ordered by ascending price.
// Zero-priced plans are offered under every cycle.
func (c *Catalog) ListPlans(cycle string) []models.PlanDefinition {
	cycle = strings.ToLower(strings.TrimSpace(cycle))
	out := make([]models.PlanDefinition, 0, len(c.plans))
	for _, p := range c.plans {
		if p.BillingCycle == cycle || p.PriceCents == 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceCents != out[j].PriceCents {
			return out[i].PriceCents < out[j].PriceCents
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ResolveProduct maps a payment-provider product reference onto a plan.
func (c *Catalog) ResolveProduct(ref string) (models.PlanDefinition, error) {
	ref = strings.TrimSpace(ref)
	if id, ok := c.products[ref]; ok {
		return c.plans[id], nil
	}
	// Product paths that equal a plan id need no explicit mapping.
	return c.GetPlan(ref)
}

func normalize(p models.PlanDefinition) models.PlanDefinition {
	p.ID = strings.TrimSpace(p.ID)
	p.BillingCycle = strings.ToLower(strings.TrimSpace(p.BillingCycle))
	if p.DisplayName == "" {
		p.DisplayName = p.ID
	}
	p.Capabilities = append([]string(nil), p.Capabilities...)
	p.Modes = append([]string(nil), p.Modes...)
	quotas := make(map[string]int64, len(p.Quotas))
	for k, v := range p.Quotas {
		quotas[k] = v
	}
	p.Quotas = quotas
	return p
}

func validate(p models.PlanDefinition) error {
	if p.ID == "" {
		return errors.New("plan id is required")
	}
	if !models.IsKnownBillingCycle(p.BillingCycle) {
		return fmt.Errorf("plan %q: unknown billing cycle %q", p.ID, p.BillingCycle)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("plan %q: negative price", p.ID)
	}
	if p.DurationDays <= 0 {
		return fmt.Errorf("plan %q: durationDays must be positive", p.ID)
	}
	if p.MaxUploadSizeMB < models.UnlimitedQuota || p.MaxUploadSizeMB > models.MaxUploadSizeMBLimit {
		return fmt.Errorf("plan %q: invalid maxUploadSizeMB %d", p.ID, p.MaxUploadSizeMB)
	}
	for _, q := range []string{models.QuotaChats, models.QuotaUploadBytes} {
		if _, ok := p.Quotas[q]; !ok {
			return fmt.Errorf("plan %q: quota %q is not defined", p.ID, q)
		}
	}
	for name, v := range p.Quotas {
		if v < models.UnlimitedQuota {
			return fmt.Errorf("plan %q: quota %q has invalid value %d", p.ID, name, v)
		}
	}
	return nil
}
