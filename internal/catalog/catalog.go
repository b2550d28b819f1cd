package catalog

import (
	"fmt"
	"sort"
	"time"
)

// AccessMode is the kind of access a grant conveys
type AccessMode string

const (
	AccessRead   AccessMode = "read"
	AccessWrite  AccessMode = "write"
	AccessUpdate AccessMode = "update"
	AccessDelete AccessMode = "delete"
)

// PermissionGrant is one immutable fact from the host application's security
// configuration export: a role grants a permission at an access mode, and
// holding that permission requires a license label.
type PermissionGrant struct {
	RoleName     string     `json:"role_name"`
	PermissionID string     `json:"permission_id"`
	AccessMode   AccessMode `json:"access_mode"`
	LicenseLabel string     `json:"license_label"`

	// License is the parsed label, populated during snapshot construction
	License LicenseLabel `json:"-"`
}

// Snapshot is a full, versioned view of the permission catalog. It is
// read-only after construction; a refresh replaces the whole snapshot,
// never patches it incrementally.
type Snapshot struct {
	version  string
	builtAt  time.Time
	grants   []PermissionGrant
	byRole   map[string][]PermissionGrant
	registry *TierRegistry
}

// NewSnapshot builds a snapshot from raw grants, parsing and validating
// every license label against the registry. Unknown tiers are registered
// dynamically; malformed labels fail the whole build, since a half-ingested
// snapshot would silently misprice roles.
func NewSnapshot(version string, grants []PermissionGrant, reg *TierRegistry) (*Snapshot, error) {
	if reg == nil {
		reg = NewTierRegistry()
	}

	s := &Snapshot{
		version:  version,
		builtAt:  time.Now(),
		grants:   make([]PermissionGrant, 0, len(grants)),
		byRole:   make(map[string][]PermissionGrant),
		registry: reg,
	}

	for _, g := range grants {
		if g.RoleName == "" || g.PermissionID == "" {
			return nil, fmt.Errorf("grant missing role or permission: %+v", g)
		}
		label, err := ParseLabel(reg, g.LicenseLabel)
		if err != nil {
			return nil, fmt.Errorf("grant (%s, %s): %w", g.RoleName, g.PermissionID, err)
		}
		g.License = label
		s.grants = append(s.grants, g)
		s.byRole[g.RoleName] = append(s.byRole[g.RoleName], g)
	}

	return s, nil
}

// Version returns the snapshot version
func (s *Snapshot) Version() string {
	return s.version
}

// BuiltAt returns the snapshot build time
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Grants returns every grant in the snapshot
func (s *Snapshot) Grants() []PermissionGrant {
	return s.grants
}

// GrantsForRole returns the grants for one role; nil when the role has no
// grants or does not appear in the catalog (the two are deliberately
// indistinguishable here, see Calculator.Compose).
func (s *Snapshot) GrantsForRole(role string) []PermissionGrant {
	return s.byRole[role]
}

// Roles returns the role universe discovered from the catalog itself,
// sorted by name. Roles with zero grants never appear.
func (s *Snapshot) Roles() []string {
	out := make([]string, 0, len(s.byRole))
	for r := range s.byRole {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Registry returns the tier registry the snapshot was ingested against
func (s *Snapshot) Registry() *TierRegistry {
	return s.registry
}
