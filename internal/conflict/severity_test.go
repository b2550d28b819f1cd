package conflict

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

var scoreAsOf = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func usageAt(days map[string]int) UsageSignal {
	u := UsageSignal{AsOf: scoreAsOf, LastUsed: make(map[string]time.Time)}
	for role, d := range days {
		u.LastUsed[role] = scoreAsOf.AddDate(0, 0, -d)
	}
	return u
}

func TestScore_RecencyBranches(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig(), zap.NewNop())
	rule := Rule{ID: "SOD-001", RoleA: "A", RoleB: "B", ConflictType: "authorization_vs_custody"}

	tests := []struct {
		name         string
		usage        UsageSignal
		wantScore    int
		wantSeverity Severity
	}{
		{"both recent", usageAt(map[string]int{"A": 3, "B": 30}), 95, SeverityCritical},
		{"one recent", usageAt(map[string]int{"A": 3, "B": 200}), 75, SeverityHigh},
		{"none recent", usageAt(map[string]int{"A": 120, "B": 200}), 55, SeverityMedium},
		{"no usage data", UsageSignal{AsOf: scoreAsOf}, 55, SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, severity := scorer.Score(rule, tt.usage)
			if score != tt.wantScore {
				t.Errorf("score = %d, want %d", score, tt.wantScore)
			}
			if severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", severity, tt.wantSeverity)
			}
		})
	}
}

func TestScore_WindowBoundaryInclusive(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig(), zap.NewNop())
	rule := Rule{RoleA: "A", RoleB: "B", ConflictType: "custody_vs_recording"}

	// Exactly 90 days back is still inside the window
	onEdge := UsageSignal{
		AsOf:     scoreAsOf,
		LastUsed: map[string]time.Time{"A": scoreAsOf.Add(-90 * 24 * time.Hour)},
	}
	score, _ := scorer.Score(rule, onEdge)
	if score != 45+20 {
		t.Errorf("score = %d, want 65 (edge of window counts as recent)", score)
	}

	past := UsageSignal{
		AsOf:     scoreAsOf,
		LastUsed: map[string]time.Time{"A": scoreAsOf.Add(-90*24*time.Hour - time.Second)},
	}
	score, _ = scorer.Score(rule, past)
	if score != 45 {
		t.Errorf("score = %d, want 45 (just past the window)", score)
	}
}

func TestScore_UnknownTypeFallsBack(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig(), zap.NewNop())
	rule := Rule{RoleA: "A", RoleB: "B", ConflictType: "something_new"}

	score, severity := scorer.Score(rule, UsageSignal{AsOf: scoreAsOf})
	if score != 30 {
		t.Errorf("score = %d, want default type weight 30", score)
	}
	if severity != SeverityLow {
		t.Errorf("severity = %q, want low", severity)
	}
}

func TestScore_Deterministic(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig(), zap.NewNop())
	rule := Rule{RoleA: "A", RoleB: "B", ConflictType: "authorization_vs_recording"}
	usage := usageAt(map[string]int{"A": 1, "B": 89})

	first, firstSev := scorer.Score(rule, usage)
	for i := 0; i < 50; i++ {
		score, severity := scorer.Score(rule, usage)
		if score != first || severity != firstSev {
			t.Fatalf("iteration %d: score drifted from %d/%s to %d/%s", i, first, firstSev, score, severity)
		}
	}
}

func TestClassify_Thresholds(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig(), zap.NewNop())

	tests := []struct {
		score int
		want  Severity
	}{
		{100, SeverityCritical},
		{85, SeverityCritical},
		{84, SeverityHigh},
		{60, SeverityHigh},
		{59, SeverityMedium},
		{35, SeverityMedium},
		{34, SeverityLow},
		{0, SeverityLow},
	}
	for _, tt := range tests {
		if got := scorer.classify(tt.score); got != tt.want {
			t.Errorf("classify(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
