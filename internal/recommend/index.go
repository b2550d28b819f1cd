// Package recommend provides the permission reverse index and the set-cover
// recommendation engine
package recommend

import (
	"sort"
	"sync/atomic"

	"github.com/optirole/optirole/internal/catalog"
)

// ReverseIndex maps each permission to the set of roles that grant it. It is
// built once per catalog snapshot, carries the snapshot version, and is
// read-only afterwards. A catalog refresh rebuilds the index in full; there
// is no incremental-update path, because a permission's owning-role set is a
// global aggregate.
type ReverseIndex struct {
	version      string
	byPermission map[string]map[string]bool
	roles        []string
}

// BuildIndex constructs the reverse index from a snapshot in O(grants).
// Building twice from the same snapshot yields identical results.
func BuildIndex(snap *catalog.Snapshot) *ReverseIndex {
	idx := &ReverseIndex{
		version:      snap.Version(),
		byPermission: make(map[string]map[string]bool),
	}

	for _, g := range snap.Grants() {
		roles := idx.byPermission[g.PermissionID]
		if roles == nil {
			roles = make(map[string]bool)
			idx.byPermission[g.PermissionID] = roles
		}
		roles[g.RoleName] = true
	}

	idx.roles = snap.Roles()
	return idx
}

// Version returns the catalog snapshot version this index was built from
func (idx *ReverseIndex) Version() string {
	return idx.version
}

// Covers reports whether any role in the catalog grants the permission
func (idx *ReverseIndex) Covers(permission string) bool {
	return len(idx.byPermission[permission]) > 0
}

// RolesFor returns the roles granting a permission, sorted by name. The
// returned slice is a copy; callers may not mutate index state.
func (idx *ReverseIndex) RolesFor(permission string) []string {
	set := idx.byPermission[permission]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Roles returns the full role universe, sorted by name
func (idx *ReverseIndex) Roles() []string {
	return idx.roles
}

// PermissionCount returns the number of distinct indexed permissions
func (idx *ReverseIndex) PermissionCount() int {
	return len(idx.byPermission)
}

// IndexCache holds the process-wide current reverse index. Rebuilds swap the
// pointer atomically so readers never observe a partially-built index.
type IndexCache struct {
	current atomic.Pointer[ReverseIndex]
}

// NewIndexCache creates an empty cache
func NewIndexCache() *IndexCache {
	return &IndexCache{}
}

// Get returns the current index, or nil before the first swap
func (c *IndexCache) Get() *ReverseIndex {
	return c.current.Load()
}

// Swap replaces the current index wholesale
func (c *IndexCache) Swap(idx *ReverseIndex) {
	c.current.Store(idx)
}
