package recommend

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/optirole/optirole/internal/catalog"
	"github.com/optirole/optirole/internal/conflict"
)

// DefaultMaxCandidates bounds alternative-solution generation when the
// caller does not say otherwise
const DefaultMaxCandidates = 10

// Confidence labels how much a candidate can be trusted before observed
// usage corroborates it
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// Warning codes attached to recommendation results
const (
	WarnUncoverablePermission = "UNCOVERABLE_PERMISSION"
	WarnPartialCoverage       = "PARTIAL_COVERAGE"
	WarnListPriceFallback     = "LIST_PRICE_FALLBACK"
)

// Warning is a structured, non-fatal annotation on a result. Data gaps and
// pricing fallbacks are recovered locally and reported here, never thrown.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Candidate is one recommended covering role set. It is a transient
// computation, never persisted as authoritative state.
type Candidate struct {
	Roles              []string                 `json:"roles"` // greedy selection order
	CoveredPermissions []string                 `json:"covered_permissions"`
	MissingPermissions []string                 `json:"missing_permissions,omitempty"`
	CoveragePercent    float64                  `json:"coverage_percent"`
	Composition        *catalog.RoleComposition `json:"composition"`
	RequiredLicense    catalog.LicenseTier      `json:"required_license"`
	MonthlyCost        float64                  `json:"monthly_cost"`
	ListPriceFallback  bool                     `json:"list_price_fallback"`
	TriggeredConflicts []conflict.Rule          `json:"triggered_conflicts,omitempty"`
	Confidence         Confidence               `json:"confidence"`
}

// Result is the full recommendation outcome: best-effort candidates plus
// every gap and fallback the caller should know about.
type Result struct {
	SnapshotVersion        string      `json:"snapshot_version"`
	Candidates             []Candidate `json:"candidates"`
	UncoverablePermissions []string    `json:"uncoverable_permissions,omitempty"`
	Warnings               []Warning   `json:"warnings,omitempty"`
}

// Engine approximates minimum set cover over the reverse index, prices each
// candidate via the composition calculator, screens it against the conflict
// matrix, and ranks the survivors. The greedy approximation is not
// guaranteed minimal: results are a small covering set, not the smallest.
type Engine struct {
	calc    *catalog.Calculator
	pricing *catalog.PricingTable
	matrix  *conflict.Matrix
	logger  *zap.Logger
}

// NewEngine creates a recommendation engine bound to one snapshot's
// calculator and the current conflict matrix
func NewEngine(calc *catalog.Calculator, pricing *catalog.PricingTable, matrix *conflict.Matrix, logger *zap.Logger) *Engine {
	return &Engine{
		calc:    calc,
		pricing: pricing,
		matrix:  matrix,
		logger:  logger.With(zap.String("component", "setcover_engine")),
	}
}

// Recommend produces up to maxCandidates ranked covering role sets for the
// requested permissions. Callers typically keep the top 3. Permissions no
// role grants are reported as uncoverable, never silently dropped; if
// nothing is coverable the candidate list is empty and the whole request is
// the gap.
func (e *Engine) Recommend(idx *ReverseIndex, required []string, maxCandidates int) (*Result, error) {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}

	requested := dedupeSorted(required)
	result := &Result{SnapshotVersion: idx.Version()}

	coverable := make(map[string]bool, len(requested))
	for _, p := range requested {
		if idx.Covers(p) {
			coverable[p] = true
			continue
		}
		result.UncoverablePermissions = append(result.UncoverablePermissions, p)
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarnUncoverablePermission,
			Message: fmt.Sprintf("no role grants permission %q", p),
		})
	}
	sort.Strings(result.UncoverablePermissions)

	if len(coverable) == 0 {
		e.logger.Warn("No coverable permissions in request",
			zap.Int("requested", len(requested)))
		return result, nil
	}

	// Primary greedy solution, then one variant per excluded role. Roles
	// chosen by the primary run are excluded first since removing them is
	// what actually diversifies the outcome.
	primary := e.greedyCover(idx, coverable, "")

	exclusions := append([]string(nil), primary...)
	for _, r := range e.eligibleRoles(idx, coverable) {
		if !contains(primary, r) {
			exclusions = append(exclusions, r)
		}
	}

	seen := make(map[string]bool)
	var solutions [][]string
	addSolution := func(roles []string) {
		if len(roles) == 0 {
			return
		}
		key := canonicalKey(roles)
		if seen[key] {
			return
		}
		seen[key] = true
		solutions = append(solutions, roles)
	}

	addSolution(primary)
	for _, excluded := range exclusions {
		if len(solutions) >= maxCandidates {
			break
		}
		addSolution(e.greedyCover(idx, coverable, excluded))
	}

	fallbackTagged := false
	for _, roles := range solutions {
		cand, err := e.buildCandidate(idx, roles, requested, coverable)
		if err != nil {
			return nil, err
		}
		if cand.ListPriceFallback && !fallbackTagged {
			fallbackTagged = true
			result.Warnings = append(result.Warnings, Warning{
				Code:    WarnListPriceFallback,
				Message: "no pricing override configured; costs use list price",
			})
		}
		result.Candidates = append(result.Candidates, *cand)
	}

	rankCandidates(result.Candidates)

	if len(result.Candidates) > 0 && result.Candidates[0].CoveragePercent < 100 {
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarnPartialCoverage,
			Message: "no candidate fully covers the requested permissions",
		})
	}

	return result, nil
}

// greedyCover runs the classical greedy set-cover approximation over the
// reverse index. Selection is a pure fold over the sorted role list: the
// role covering the most uncovered permissions wins each round, ties broken
// by lexicographic role name. Stops at full coverage or when no remaining
// role makes progress.
func (e *Engine) greedyCover(idx *ReverseIndex, target map[string]bool, excluded string) []string {
	coverage := make(map[string][]string)
	for p := range target {
		for _, role := range idx.RolesFor(p) {
			if role == excluded {
				continue
			}
			coverage[role] = append(coverage[role], p)
		}
	}

	roles := make([]string, 0, len(coverage))
	for r := range coverage {
		roles = append(roles, r)
	}
	sort.Strings(roles)

	uncovered := make(map[string]bool, len(target))
	for p := range target {
		uncovered[p] = true
	}

	var solution []string
	for len(uncovered) > 0 {
		best := ""
		bestCount := 0
		for _, role := range roles {
			count := 0
			for _, p := range coverage[role] {
				if uncovered[p] {
					count++
				}
			}
			if count > bestCount {
				best, bestCount = role, count
			}
		}
		if bestCount == 0 {
			break // residual gap, surfaced by the caller
		}
		solution = append(solution, best)
		for _, p := range coverage[best] {
			delete(uncovered, p)
		}
	}

	return solution
}

func (e *Engine) buildCandidate(idx *ReverseIndex, roles, requested []string, coverable map[string]bool) (*Candidate, error) {
	covered := make(map[string]bool)
	for p := range coverable {
		for _, role := range idx.RolesFor(p) {
			if contains(roles, role) {
				covered[p] = true
				break
			}
		}
	}

	cand := &Candidate{Roles: roles}
	for _, p := range requested {
		if covered[p] {
			cand.CoveredPermissions = append(cand.CoveredPermissions, p)
		} else {
			cand.MissingPermissions = append(cand.MissingPermissions, p)
		}
	}
	cand.CoveragePercent = float64(len(cand.CoveredPermissions)) / float64(len(requested)) * 100

	comp, err := e.calc.ComposeSet(roles)
	if err != nil {
		return nil, err
	}
	cand.Composition = comp
	if comp != nil {
		cand.RequiredLicense = comp.HighestTier
		cand.MonthlyCost, cand.ListPriceFallback = e.pricing.Price(comp.HighestTier)
	}

	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if rule, ok := e.matrix.Lookup(sorted[i], sorted[j]); ok {
				cand.TriggeredConflicts = append(cand.TriggeredConflicts, rule)
			}
		}
	}

	if len(cand.TriggeredConflicts) == 0 && cand.CoveragePercent >= 100 {
		cand.Confidence = ConfidenceHigh
	} else {
		cand.Confidence = ConfidenceMedium
	}

	return cand, nil
}

// rankCandidates sorts by coverage descending, then ascending by monthly
// cost, role count, and conflict count; remaining ties fall back to the
// canonical role list so the ordering is total and stable across runs.
// Coverage ranks first so a cheap partial variant never displaces a full
// cover.
func rankCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CoveragePercent != b.CoveragePercent {
			return a.CoveragePercent > b.CoveragePercent
		}
		if a.MonthlyCost != b.MonthlyCost {
			return a.MonthlyCost < b.MonthlyCost
		}
		if len(a.Roles) != len(b.Roles) {
			return len(a.Roles) < len(b.Roles)
		}
		if len(a.TriggeredConflicts) != len(b.TriggeredConflicts) {
			return len(a.TriggeredConflicts) < len(b.TriggeredConflicts)
		}
		return canonicalKey(a.Roles) < canonicalKey(b.Roles)
	})
}

func canonicalKey(roles []string) string {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func (e *Engine) eligibleRoles(idx *ReverseIndex, target map[string]bool) []string {
	set := make(map[string]bool)
	for p := range target {
		for _, r := range idx.RolesFor(p) {
			set[r] = true
		}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func dedupeSorted(in []string) []string {
	set := make(map[string]bool, len(in))
	for _, s := range in {
		if s != "" {
			set[s] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
