// Package conflict provides the separation-of-duties conflict matrix and
// severity scoring
package conflict

import (
	"sort"

	"go.uber.org/zap"
)

// Severity is the ordinal severity of a conflict finding
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rule states that two roles must not co-occur on one identity. Rules are
// symmetric: a rule for (A, B) also matches (B, A).
type Rule struct {
	ID             string   `json:"id"`
	RoleA          string   `json:"role_a"`
	RoleB          string   `json:"role_b"`
	ConflictType   string   `json:"conflict_type"`
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	RegulatoryRefs []string `json:"regulatory_refs,omitempty"`
}

// pairKey returns the order-independent lookup key for a role pair
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

// Matrix is the effective SoD rule set: base rules overlaid by customer
// overrides. At most one rule applies to any unordered role pair.
type Matrix struct {
	byPair map[string]Rule
	logger *zap.Logger
}

// NewMatrix builds the effective rule set. Overrides are keyed by rule ID;
// an override with the same ID fully replaces the base rule, no field-level
// merging. When two effective rules target the same pair the later one wins
// and the collision is logged, since the source tables should never do that.
func NewMatrix(base, overrides []Rule, logger *zap.Logger) *Matrix {
	m := &Matrix{
		byPair: make(map[string]Rule),
		logger: logger.With(zap.String("component", "conflict_matrix")),
	}

	effective := make(map[string]Rule, len(base))
	order := make([]string, 0, len(base))
	for _, r := range base {
		if _, seen := effective[r.ID]; !seen {
			order = append(order, r.ID)
		}
		effective[r.ID] = r
	}
	for _, r := range overrides {
		if _, seen := effective[r.ID]; !seen {
			order = append(order, r.ID)
		}
		effective[r.ID] = r
	}

	for _, id := range order {
		r := effective[id]
		key := pairKey(r.RoleA, r.RoleB)
		if prev, dup := m.byPair[key]; dup {
			m.logger.Warn("Duplicate conflict rule for role pair, keeping later rule",
				zap.String("kept", r.ID),
				zap.String("dropped", prev.ID),
				zap.String("role_a", r.RoleA),
				zap.String("role_b", r.RoleB))
		}
		m.byPair[key] = r
	}

	return m
}

// Lookup returns the single applicable rule for an unordered role pair, or
// false when the pair does not conflict.
func (m *Matrix) Lookup(roleA, roleB string) (Rule, bool) {
	r, ok := m.byPair[pairKey(roleA, roleB)]
	return r, ok
}

// Rules returns every effective rule, ordered by rule ID
func (m *Matrix) Rules() []Rule {
	out := make([]Rule, 0, len(m.byPair))
	for _, r := range m.byPair {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of effective rules
func (m *Matrix) Len() int {
	return len(m.byPair)
}

// Finding is one triggered rule from a batch SoD scan
type Finding struct {
	Identity string   `json:"identity"`
	Rule     Rule     `json:"rule"`
	Score    int      `json:"score"`
	Severity Severity `json:"severity"`
}

// Assignment is one identity with its assigned roles and the usage signal
// supplied by the telemetry collaborator.
type Assignment struct {
	Identity string      `json:"identity"`
	Roles    []string    `json:"roles"`
	Usage    UsageSignal `json:"usage"`
}

// ScanAssignments checks every role pair of every assignment against the
// matrix and scores the triggered rules. Findings are ordered by identity,
// then rule ID, for reproducible reports.
func (m *Matrix) ScanAssignments(assignments []Assignment, scorer *Scorer) []Finding {
	var findings []Finding
	for _, a := range assignments {
		roles := append([]string(nil), a.Roles...)
		sort.Strings(roles)
		for i := 0; i < len(roles); i++ {
			for j := i + 1; j < len(roles); j++ {
				rule, ok := m.Lookup(roles[i], roles[j])
				if !ok {
					continue
				}
				score, severity := scorer.Score(rule, a.Usage)
				findings = append(findings, Finding{
					Identity: a.Identity,
					Rule:     rule,
					Score:    score,
					Severity: severity,
				})
			}
		}
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Identity != findings[j].Identity {
			return findings[i].Identity < findings[j].Identity
		}
		return findings[i].Rule.ID < findings[j].Rule.ID
	})
	return findings
}
