package catalog

import (
	"testing"

	"go.uber.org/zap"
)

func mustSnapshot(t *testing.T, grants []PermissionGrant) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot("test-v1", grants, NewTierRegistry())
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	return snap
}

func TestCompose_CompositeDoubleCounting(t *testing.T) {
	snap := mustSnapshot(t, []PermissionGrant{
		{RoleName: "AP Clerk", PermissionID: "VendorPayments", AccessMode: AccessWrite, LicenseLabel: "Finance + SCM"},
	})
	calc := NewCalculator(snap, zap.NewNop())

	comp, err := calc.Compose("AP Clerk")
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if comp == nil {
		t.Fatal("Compose returned nil for role with grants")
	}

	if comp.TotalPermissionCount != 1 {
		t.Errorf("TotalPermissionCount = %d, want 1 (literal grant count)", comp.TotalPermissionCount)
	}

	counts := make(map[string]TierCount)
	for _, tc := range comp.Tiers {
		counts[tc.Tier.Name] = tc
	}
	for _, tier := range []string{TierFinance, TierSCM} {
		if counts[tier].Count != 1 {
			t.Errorf("%s count = %d, want 1", tier, counts[tier].Count)
		}
		if counts[tier].Percent != 100 {
			t.Errorf("%s percent = %v, want 100", tier, counts[tier].Percent)
		}
	}
}

func TestCompose_EmptyAndUnknownRole(t *testing.T) {
	snap := mustSnapshot(t, []PermissionGrant{
		{RoleName: "Buyer", PermissionID: "PurchaseOrders", AccessMode: AccessWrite, LicenseLabel: "SCM"},
	})
	calc := NewCalculator(snap, zap.NewNop())

	comp, err := calc.Compose("NoSuchRole")
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if comp != nil {
		t.Error("unknown role must compose to nil, same as a role with zero grants")
	}
}

func TestCompose_HighestTierDeterminism(t *testing.T) {
	grants := []PermissionGrant{
		{RoleName: "Controller", PermissionID: "Timesheets", AccessMode: AccessRead, LicenseLabel: "Team Members"},
		{RoleName: "Controller", PermissionID: "WorkOrders", AccessMode: AccessUpdate, LicenseLabel: "Operations"},
		{RoleName: "Controller", PermissionID: "GeneralLedger", AccessMode: AccessWrite, LicenseLabel: "Finance"},
	}

	// Grant ordering in the input must not matter
	orderings := [][]int{{0, 1, 2}, {2, 0, 1}, {1, 2, 0}}
	for _, order := range orderings {
		shuffled := make([]PermissionGrant, 0, len(grants))
		for _, i := range order {
			shuffled = append(shuffled, grants[i])
		}
		snap := mustSnapshot(t, shuffled)
		calc := NewCalculator(snap, zap.NewNop())

		comp, err := calc.Compose("Controller")
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		if comp.HighestTier.Name != TierFinance {
			t.Errorf("ordering %v: highest tier = %q, want Finance", order, comp.HighestTier.Name)
		}
	}
}

func TestCompose_StandardTiersAlwaysReported(t *testing.T) {
	snap := mustSnapshot(t, []PermissionGrant{
		{RoleName: "Cashier", PermissionID: "Registers", AccessMode: AccessWrite, LicenseLabel: "Commerce"},
	})
	calc := NewCalculator(snap, zap.NewNop())

	comp, err := calc.Compose("Cashier")
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	seen := make(map[string]bool)
	for _, tc := range comp.Tiers {
		seen[tc.Tier.Name] = true
	}
	for _, std := range StandardTiers() {
		if !seen[std.Name] {
			t.Errorf("standard tier %q missing from composition (zero counts still report)", std.Name)
		}
	}
}

func TestCompose_DynamicTierOnly(t *testing.T) {
	snap := mustSnapshot(t, []PermissionGrant{
		{RoleName: "Dispatcher", PermissionID: "ServiceBoard", AccessMode: AccessUpdate, LicenseLabel: "Field Service"},
	})
	calc := NewCalculator(snap, zap.NewNop())

	comp, err := calc.Compose("Dispatcher")
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if comp.HighestTier.Name != "Field Service" {
		t.Errorf("highest tier = %q, want the dynamic tier", comp.HighestTier.Name)
	}
}

func TestComposeAll_DiscoversRoleUniverse(t *testing.T) {
	snap := mustSnapshot(t, []PermissionGrant{
		{RoleName: "Buyer", PermissionID: "PurchaseOrders", AccessMode: AccessWrite, LicenseLabel: "SCM"},
		{RoleName: "AP Clerk", PermissionID: "VendorPayments", AccessMode: AccessWrite, LicenseLabel: "Finance"},
		{RoleName: "Buyer", PermissionID: "Vendors", AccessMode: AccessRead, LicenseLabel: "SCM"},
	})
	calc := NewCalculator(snap, zap.NewNop())

	comps, err := calc.ComposeAll()
	if err != nil {
		t.Fatalf("ComposeAll failed: %v", err)
	}
	if len(comps) != 2 {
		t.Fatalf("expected 2 compositions, got %d", len(comps))
	}
	// Ordered by role name
	if comps[0].RoleName != "AP Clerk" || comps[1].RoleName != "Buyer" {
		t.Errorf("unexpected ordering: %s, %s", comps[0].RoleName, comps[1].RoleName)
	}
	if comps[1].TotalPermissionCount != 2 {
		t.Errorf("Buyer grant count = %d, want 2", comps[1].TotalPermissionCount)
	}
}

func TestComposeSet_UnionAcrossRoles(t *testing.T) {
	snap := mustSnapshot(t, []PermissionGrant{
		{RoleName: "Timekeeper", PermissionID: "Timesheets", AccessMode: AccessWrite, LicenseLabel: "Team Members"},
		{RoleName: "AP Clerk", PermissionID: "VendorPayments", AccessMode: AccessWrite, LicenseLabel: "Finance"},
	})
	calc := NewCalculator(snap, zap.NewNop())

	comp, err := calc.ComposeSet([]string{"Timekeeper", "AP Clerk"})
	if err != nil {
		t.Fatalf("ComposeSet failed: %v", err)
	}
	if comp.TotalPermissionCount != 2 {
		t.Errorf("union grant count = %d, want 2", comp.TotalPermissionCount)
	}
	if comp.HighestTier.Name != TierFinance {
		t.Errorf("set highest tier = %q, want Finance (max across members)", comp.HighestTier.Name)
	}
}

func TestComposeSet_EmptyUnion(t *testing.T) {
	snap := mustSnapshot(t, nil)
	calc := NewCalculator(snap, zap.NewNop())

	comp, err := calc.ComposeSet([]string{"Ghost"})
	if err != nil {
		t.Fatalf("ComposeSet failed: %v", err)
	}
	if comp != nil {
		t.Error("empty union must compose to nil")
	}
}
