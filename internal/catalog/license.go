// Package catalog provides the permission catalog snapshot and the role
// license composition calculator
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// LicenseTier is a priced access level with a strict total order by rank.
// A higher rank means a more expensive license.
type LicenseTier struct {
	Name      string  `json:"name"`
	Rank      int     `json:"rank"`
	ListPrice float64 `json:"list_price"` // monthly, per user
}

// Standard tier names, ascending by rank
const (
	TierTeamMembers = "Team Members"
	TierOperations  = "Operations"
	TierCommerce    = "Commerce"
	TierSCM         = "SCM"
	TierFinance     = "Finance"
)

// StandardTiers returns the built-in license tiers in ascending rank order.
// These always exist in a registry, even when no grant references them.
func StandardTiers() []LicenseTier {
	return []LicenseTier{
		{Name: TierTeamMembers, Rank: 10, ListPrice: 8},
		{Name: TierOperations, Rank: 20, ListPrice: 50},
		{Name: TierCommerce, Rank: 30, ListPrice: 170},
		{Name: TierSCM, Rank: 40, ListPrice: 180},
		{Name: TierFinance, Rank: 50, ListPrice: 210},
	}
}

// TierRegistry resolves tier names to tiers. Tiers encountered in data but
// not in the standard set are appended dynamically, ranked below all
// standard tiers. The registry is mutated only during snapshot ingestion;
// after NewSnapshot returns it is read-only.
type TierRegistry struct {
	tiers           map[string]LicenseTier
	nextDynamicRank int
}

// NewTierRegistry creates a registry seeded with the standard tiers
func NewTierRegistry() *TierRegistry {
	r := &TierRegistry{
		tiers:           make(map[string]LicenseTier),
		nextDynamicRank: 0,
	}
	for _, t := range StandardTiers() {
		r.tiers[t.Name] = t
	}
	return r
}

// Resolve returns the tier for name, registering it as a dynamic tier with
// zero list price when unknown. Dynamic ranks descend from 0 so every
// dynamic tier sorts below every standard tier.
func (r *TierRegistry) Resolve(name string) LicenseTier {
	if t, ok := r.tiers[name]; ok {
		return t
	}
	t := LicenseTier{Name: name, Rank: r.nextDynamicRank, ListPrice: 0}
	r.nextDynamicRank--
	r.tiers[name] = t
	return t
}

// Lookup returns the tier for name without registering it
func (r *TierRegistry) Lookup(name string) (LicenseTier, bool) {
	t, ok := r.tiers[name]
	return t, ok
}

// IsStandard reports whether name is one of the built-in tiers
func (r *TierRegistry) IsStandard(name string) bool {
	for _, t := range StandardTiers() {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Tiers returns every registered tier in ascending rank order
func (r *TierRegistry) Tiers() []LicenseTier {
	out := make([]LicenseTier, 0, len(r.tiers))
	for _, t := range r.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// labelSeparator joins the constituent tiers of a composite license label,
// e.g. "Finance + SCM"
const labelSeparator = "+"

// LicenseLabel is a parsed license label: a single tier or a composite
// naming two or more tiers jointly. Composite labels are not tiers
// themselves; each constituent is counted independently at composition time.
type LicenseLabel struct {
	Raw   string        `json:"raw"`
	Tiers []LicenseTier `json:"tiers"`
}

// IsComposite reports whether the label names more than one tier
func (l LicenseLabel) IsComposite() bool {
	return len(l.Tiers) > 1
}

// ParseLabel parses a raw license label against the registry, registering
// dynamic tiers as needed. Labels are validated here, at ingestion, so
// downstream composition logic never re-parses strings.
func ParseLabel(reg *TierRegistry, raw string) (LicenseLabel, error) {
	if strings.TrimSpace(raw) == "" {
		return LicenseLabel{}, fmt.Errorf("empty license label")
	}

	parts := strings.Split(raw, labelSeparator)
	label := LicenseLabel{Raw: raw, Tiers: make([]LicenseTier, 0, len(parts))}
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if name == "" {
			return LicenseLabel{}, fmt.Errorf("malformed license label %q", raw)
		}
		label.Tiers = append(label.Tiers, reg.Resolve(name))
	}
	return label, nil
}

// PricingTable maps tiers to monthly cost. Deployments may override list
// prices per tier; a lookup without an override falls back to the tier's
// list price and reports the fallback so results can be tagged.
type PricingTable struct {
	overrides map[string]float64
}

// NewPricingTable creates a pricing table with per-deployment overrides.
// A nil map means every price is a list-price fallback.
func NewPricingTable(overrides map[string]float64) *PricingTable {
	if overrides == nil {
		overrides = make(map[string]float64)
	}
	return &PricingTable{overrides: overrides}
}

// Price returns the monthly cost for a tier and whether the list price was
// used because no deployment override exists.
func (p *PricingTable) Price(tier LicenseTier) (cost float64, listFallback bool) {
	if c, ok := p.overrides[tier.Name]; ok {
		return c, false
	}
	return tier.ListPrice, true
}
