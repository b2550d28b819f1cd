package conflict

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/optirole/optirole/internal/common/database"
)

// Store loads conflict rule tables from Postgres. The base table ships with
// the product; the override table is customer-managed.
type Store struct {
	db     *database.PostgresDB
	logger *zap.Logger
}

// NewStore creates a conflict rule store
func NewStore(db *database.PostgresDB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "conflict_store")),
	}
}

// LoadMatrix reads the base and override rule tables and builds the
// effective matrix.
func (s *Store) LoadMatrix(ctx context.Context) (*Matrix, error) {
	base, err := s.loadRules(ctx, "conflict_rules")
	if err != nil {
		return nil, err
	}
	overrides, err := s.loadRules(ctx, "conflict_rule_overrides")
	if err != nil {
		return nil, err
	}

	s.logger.Info("Loaded conflict rules",
		zap.Int("base", len(base)),
		zap.Int("overrides", len(overrides)))

	return NewMatrix(base, overrides, s.logger), nil
}

func (s *Store) loadRules(ctx context.Context, table string) ([]Rule, error) {
	rows, err := s.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT id, role_a, role_b, conflict_type, severity, category, regulatory_refs
		FROM %s
		ORDER BY id
	`, table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.RoleA, &r.RoleB, &r.ConflictType, &r.Severity, &r.Category, &r.RegulatoryRefs); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
