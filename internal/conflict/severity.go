package conflict

import (
	"time"

	"go.uber.org/zap"
)

// UsageSignal carries per-role last-use observations for one identity,
// supplied by an external telemetry collaborator. AsOf anchors the recency
// comparison so scoring stays deterministic for identical inputs.
type UsageSignal struct {
	LastUsed map[string]time.Time `json:"last_used"`
	AsOf     time.Time            `json:"as_of"`
}

// ScorerConfig holds the severity scoring weights and thresholds
type ScorerConfig struct {
	// A role counts as recently used when its last use falls within this
	// window of AsOf
	RecencyWindow time.Duration

	// Recency increments: recent use of both roles contributes the most,
	// recent use of exactly one a smaller amount, none contributes zero
	BothRecentIncrement int
	OneRecentIncrement  int

	// Intrinsic weight per conflict type; unknown types fall back to
	// DefaultTypeWeight
	TypeWeights       map[string]int
	DefaultTypeWeight int

	// Score thresholds mapping the numeric score to ordinal severity
	CriticalThreshold int
	HighThreshold     int
	MediumThreshold   int
}

// DefaultScorerConfig returns the default scoring configuration
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		RecencyWindow:       90 * 24 * time.Hour,
		BothRecentIncrement: 40,
		OneRecentIncrement:  20,
		TypeWeights: map[string]int{
			"authorization_vs_custody":    55,
			"authorization_vs_recording":  50,
			"custody_vs_recording":        45,
			"master_data_vs_transaction":  35,
			"configuration_vs_processing": 30,
		},
		DefaultTypeWeight: 30,
		CriticalThreshold: 85,
		HighThreshold:     60,
		MediumThreshold:   35,
	}
}

// Scorer turns a triggered rule plus a usage signal into a numeric score
// and an ordinal severity. Score is a pure function: no clock, no side
// effects, identical inputs always give identical outputs.
type Scorer struct {
	config ScorerConfig
	logger *zap.Logger
}

// NewScorer creates a severity scorer
func NewScorer(config ScorerConfig, logger *zap.Logger) *Scorer {
	return &Scorer{
		config: config,
		logger: logger.With(zap.String("component", "conflict_scorer")),
	}
}

// Score computes the numeric score for a triggered rule and maps it to a
// severity level.
func (s *Scorer) Score(rule Rule, usage UsageSignal) (int, Severity) {
	score := s.typeWeight(rule.ConflictType)

	recentA := s.recentlyUsed(rule.RoleA, usage)
	recentB := s.recentlyUsed(rule.RoleB, usage)
	switch {
	case recentA && recentB:
		score += s.config.BothRecentIncrement
	case recentA || recentB:
		score += s.config.OneRecentIncrement
	}

	return score, s.classify(score)
}

func (s *Scorer) typeWeight(conflictType string) int {
	if w, ok := s.config.TypeWeights[conflictType]; ok {
		return w
	}
	return s.config.DefaultTypeWeight
}

func (s *Scorer) recentlyUsed(role string, usage UsageSignal) bool {
	last, ok := usage.LastUsed[role]
	if !ok || last.IsZero() {
		return false
	}
	asOf := usage.AsOf
	if asOf.IsZero() {
		// No anchor supplied; fall back to the observation itself being
		// the anchor, which makes the role trivially recent
		return true
	}
	if last.After(asOf) {
		return true
	}
	return asOf.Sub(last) <= s.config.RecencyWindow
}

func (s *Scorer) classify(score int) Severity {
	switch {
	case score >= s.config.CriticalThreshold:
		return SeverityCritical
	case score >= s.config.HighThreshold:
		return SeverityHigh
	case score >= s.config.MediumThreshold:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
