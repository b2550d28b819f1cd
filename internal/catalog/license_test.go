package catalog

import (
	"testing"
)

func TestParseLabel_SingleTier(t *testing.T) {
	reg := NewTierRegistry()

	label, err := ParseLabel(reg, "Finance")
	if err != nil {
		t.Fatalf("ParseLabel failed: %v", err)
	}
	if label.IsComposite() {
		t.Error("single-tier label reported as composite")
	}
	if len(label.Tiers) != 1 || label.Tiers[0].Name != TierFinance {
		t.Errorf("expected [Finance], got %v", label.Tiers)
	}
}

func TestParseLabel_Composite(t *testing.T) {
	reg := NewTierRegistry()

	label, err := ParseLabel(reg, "Finance + SCM")
	if err != nil {
		t.Fatalf("ParseLabel failed: %v", err)
	}
	if !label.IsComposite() {
		t.Error("composite label not reported as composite")
	}
	if len(label.Tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(label.Tiers))
	}
	if label.Tiers[0].Name != TierFinance || label.Tiers[1].Name != TierSCM {
		t.Errorf("expected [Finance SCM], got %v", label.Tiers)
	}
}

func TestParseLabel_Malformed(t *testing.T) {
	reg := NewTierRegistry()

	for _, raw := range []string{"", "   ", "Finance +", "+ SCM", "Finance + + SCM"} {
		if _, err := ParseLabel(reg, raw); err == nil {
			t.Errorf("expected error for label %q", raw)
		}
	}
}

func TestTierRegistry_DynamicTierRanksBelowStandard(t *testing.T) {
	reg := NewTierRegistry()

	first := reg.Resolve("Project Operations")
	second := reg.Resolve("Field Service")

	lowest := StandardTiers()[0]
	if first.Rank >= lowest.Rank {
		t.Errorf("dynamic tier rank %d should be below lowest standard rank %d", first.Rank, lowest.Rank)
	}
	if second.Rank >= first.Rank {
		t.Errorf("later dynamic tier should rank below earlier one: %d vs %d", second.Rank, first.Rank)
	}

	// Resolving again must not re-register
	again := reg.Resolve("Project Operations")
	if again.Rank != first.Rank {
		t.Errorf("re-resolving dynamic tier changed rank: %d vs %d", again.Rank, first.Rank)
	}
}

func TestTierRegistry_Tiers_Ordered(t *testing.T) {
	reg := NewTierRegistry()
	reg.Resolve("Project Operations")

	tiers := reg.Tiers()
	for i := 1; i < len(tiers); i++ {
		if tiers[i].Rank <= tiers[i-1].Rank {
			t.Fatalf("tiers not strictly ascending by rank: %v", tiers)
		}
	}
}

func TestPricingTable_OverrideAndFallback(t *testing.T) {
	reg := NewTierRegistry()
	finance := reg.Resolve(TierFinance)
	scm := reg.Resolve(TierSCM)

	table := NewPricingTable(map[string]float64{TierFinance: 199.99})

	cost, fallback := table.Price(finance)
	if fallback {
		t.Error("override price reported as list-price fallback")
	}
	if cost != 199.99 {
		t.Errorf("expected override price 199.99, got %v", cost)
	}

	cost, fallback = table.Price(scm)
	if !fallback {
		t.Error("missing override must report list-price fallback")
	}
	if cost != scm.ListPrice {
		t.Errorf("expected list price %v, got %v", scm.ListPrice, cost)
	}
}
