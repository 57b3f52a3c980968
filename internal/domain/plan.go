package domain

import "strings"

// PlanFamily is the normalized family a concrete plan variant belongs
// to. Voucher restrictions and subscription order counting both match
// on the family, never on the raw variant string.
type PlanFamily string

const (
	FamilySingle       PlanFamily = "single"
	FamilyAlbum        PlanFamily = "album"
	FamilySubscription PlanFamily = "subscription"
	FamilyUnknown      PlanFamily = ""
)

// NormalizeFamily maps a plan identifier to its base family, e.g.
// "single", "single_instrumental" and "single_custom_lyric" all
// normalize to FamilySingle.
func NormalizeFamily(planID string) PlanFamily {
	base, _, _ := strings.Cut(planID, "_")
	switch base {
	case "single":
		return FamilySingle
	case "album":
		return FamilyAlbum
	case "subscription", "sub":
		return FamilySubscription
	default:
		return FamilyUnknown
	}
}

// Plan is one row of the plan catalog. The catalog is data, loaded
// from the plans table at startup, so the plan→credit mapping lives in
// exactly one place.
type Plan struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Family     PlanFamily `json:"family"`
	PriceCents int64      `json:"priceCents"`
	// Credits is the number of units a one-time purchase grants. For
	// subscription plans it is the per-period quota instead.
	Credits int  `json:"credits"`
	Active  bool `json:"active"`
}

// PlanCatalog is the startup-loaded set of plans, keyed by plan ID.
type PlanCatalog struct {
	plans map[string]Plan
	order []string
}

// NewPlanCatalog builds a catalog preserving the given order for
// listing.
func NewPlanCatalog(plans []Plan) *PlanCatalog {
	c := &PlanCatalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c
}

// Get returns the plan for the given ID.
func (c *PlanCatalog) Get(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// List returns all active plans in catalog order.
func (c *PlanCatalog) List() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		if p := c.plans[id]; p.Active {
			out = append(out, p)
		}
	}
	return out
}
