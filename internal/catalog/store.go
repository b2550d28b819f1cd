package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/optirole/optirole/internal/common/database"
)

// Store loads permission catalog snapshots and pricing overrides from
// Postgres. Rows are written by the ingestion pipeline; the engine only ever
// reads a full snapshot at a time.
type Store struct {
	db     *database.PostgresDB
	logger *zap.Logger
}

// NewStore creates a catalog store
func NewStore(db *database.PostgresDB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "catalog_store")),
	}
}

// LoadSnapshot reads every permission grant and builds a fresh snapshot with
// a new version. Refresh semantics are replace-wholesale: the caller swaps
// the returned snapshot in atomically and discards the old one.
func (s *Store) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT role_name, permission_id, access_mode, license_label
		FROM permission_grants
		ORDER BY role_name, permission_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query permission grants: %w", err)
	}
	defer rows.Close()

	var grants []PermissionGrant
	for rows.Next() {
		var g PermissionGrant
		if err := rows.Scan(&g.RoleName, &g.PermissionID, &g.AccessMode, &g.LicenseLabel); err != nil {
			return nil, fmt.Errorf("scan permission grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read permission grants: %w", err)
	}

	version := uuid.New().String()
	snap, err := NewSnapshot(version, grants, NewTierRegistry())
	if err != nil {
		return nil, err
	}

	s.logger.Info("Loaded catalog snapshot",
		zap.String("version", version),
		zap.Int("grants", len(grants)),
		zap.Int("roles", len(snap.Roles())))

	return snap, nil
}

// LoadPricingOverrides reads per-deployment license prices. An empty table
// is not an error; it just means every price falls back to list price and
// results get tagged accordingly.
func (s *Store) LoadPricingOverrides(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT tier_name, monthly_cost FROM license_prices
	`)
	if err != nil {
		return nil, fmt.Errorf("query license prices: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]float64)
	for rows.Next() {
		var name string
		var cost float64
		if err := rows.Scan(&name, &cost); err != nil {
			return nil, fmt.Errorf("scan license price: %w", err)
		}
		overrides[name] = cost
	}
	return overrides, rows.Err()
}
