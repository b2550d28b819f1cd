package catalog

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrInvariantViolation marks a composition whose tier counts contradict the
// grant count. It signals corrupted ingestion upstream and must stop the
// computation rather than produce a silently-wrong recommendation.
type ErrInvariantViolation struct {
	RoleName   string
	GrantCount int
	TierSum    int
}

func (e *ErrInvariantViolation) Error() string {
	return fmt.Sprintf("composition invariant violated for role %q: %d grants but tier counts sum to %d",
		e.RoleName, e.GrantCount, e.TierSum)
}

// TierCount is the per-tier slice of a role composition
type TierCount struct {
	Tier    LicenseTier `json:"tier"`
	Count   int         `json:"count"`
	Percent float64     `json:"percent"`
}

// RoleComposition is the derived license breakdown for one role (or a role
// set). A composite-labeled grant increments every tier it names, so the
// per-tier counts may sum past TotalPermissionCount and the percentages may
// sum past 100%; TotalPermissionCount is always the literal grant count.
type RoleComposition struct {
	RoleName             string      `json:"role_name"`
	TotalPermissionCount int         `json:"total_permission_count"`
	Tiers                []TierCount `json:"tiers"`
	HighestTier          LicenseTier `json:"highest_tier"`
}

// Calculator computes role license compositions from a catalog snapshot
type Calculator struct {
	snap   *Snapshot
	logger *zap.Logger
}

// NewCalculator creates a calculator bound to one snapshot
func NewCalculator(snap *Snapshot, logger *zap.Logger) *Calculator {
	return &Calculator{
		snap:   snap,
		logger: logger.With(zap.String("component", "composition_calculator")),
	}
}

// Compose returns the composition for one role, or nil when the role has
// zero grants or is absent from the catalog. Both cases mean "no
// recommendation possible" and are reported identically.
func (c *Calculator) Compose(role string) (*RoleComposition, error) {
	grants := c.snap.GrantsForRole(role)
	if len(grants) == 0 {
		c.logger.Debug("No grants for role", zap.String("role", role))
		return nil, nil
	}
	return c.composeGrants(role, grants)
}

// ComposeAll computes compositions for every role in the catalog. The role
// universe comes from the snapshot itself, so roles with zero grants are
// naturally excluded. Results are ordered by role name.
func (c *Calculator) ComposeAll() ([]*RoleComposition, error) {
	roles := c.snap.Roles()
	out := make([]*RoleComposition, 0, len(roles))
	for _, role := range roles {
		comp, err := c.composeGrants(role, c.snap.GrantsForRole(role))
		if err != nil {
			return nil, err
		}
		out = append(out, comp)
	}
	return out, nil
}

// ComposeSet computes the composition of the union of grants across a role
// set. The composite double-counting rule still applies per grant; the
// resulting HighestTier is the maximum across all member roles.
func (c *Calculator) ComposeSet(roles []string) (*RoleComposition, error) {
	var union []PermissionGrant
	for _, role := range roles {
		union = append(union, c.snap.GrantsForRole(role)...)
	}
	if len(union) == 0 {
		return nil, nil
	}

	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	return c.composeGrants(strings.Join(sorted, ","), union)
}

func (c *Calculator) composeGrants(name string, grants []PermissionGrant) (*RoleComposition, error) {
	counts := make(map[string]int)
	tiers := make(map[string]LicenseTier)

	// Standard tiers always report, even at zero
	for _, t := range StandardTiers() {
		counts[t.Name] = 0
		tiers[t.Name] = t
	}

	hasComposite := false
	for _, g := range grants {
		if g.License.IsComposite() {
			hasComposite = true
		}
		for _, t := range g.License.Tiers {
			counts[t.Name]++
			tiers[t.Name] = t
		}
	}

	total := len(grants)
	tierSum := 0
	for _, n := range counts {
		tierSum += n
	}
	if hasComposite && tierSum < total {
		return nil, &ErrInvariantViolation{RoleName: name, GrantCount: total, TierSum: tierSum}
	}

	comp := &RoleComposition{
		RoleName:             name,
		TotalPermissionCount: total,
		Tiers:                make([]TierCount, 0, len(counts)),
	}

	for tierName, n := range counts {
		tier := tiers[tierName]
		comp.Tiers = append(comp.Tiers, TierCount{
			Tier:    tier,
			Count:   n,
			Percent: float64(n) / float64(total) * 100,
		})
		if n > 0 && tier.Rank > comp.HighestTier.Rank {
			comp.HighestTier = tier
		}
	}

	// Most expensive tier first; rank is a strict total order so no ties
	sort.Slice(comp.Tiers, func(i, j int) bool {
		return comp.Tiers[i].Tier.Rank > comp.Tiers[j].Tier.Rank
	})

	if comp.HighestTier.Name == "" {
		// Only possible when every grant resolved to a dynamic tier with
		// rank <= 0; pick the max-rank nonzero tier explicitly.
		for _, tc := range comp.Tiers {
			if tc.Count > 0 {
				comp.HighestTier = tc.Tier
				break
			}
		}
	}

	return comp, nil
}
