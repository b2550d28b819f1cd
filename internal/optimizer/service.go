// Package optimizer wires the license and role optimization engine behind a
// service surface: catalog snapshot lifecycle, cached compositions,
// recommendations, and SoD conflict scoring.
package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/optirole/optirole/internal/catalog"
	"github.com/optirole/optirole/internal/common/config"
	"github.com/optirole/optirole/internal/common/database"
	apperrors "github.com/optirole/optirole/internal/common/errors"
	"github.com/optirole/optirole/internal/common/middleware"
	"github.com/optirole/optirole/internal/conflict"
	"github.com/optirole/optirole/internal/recommend"
	"github.com/optirole/optirole/pkg/auditlog"
)

// snapshotState bundles everything derived from one catalog snapshot. It is
// immutable after construction; RefreshSnapshot builds a new state and swaps
// it atomically, so readers never see a half-refreshed engine.
type snapshotState struct {
	snap    *catalog.Snapshot
	calc    *catalog.Calculator
	pricing *catalog.PricingTable
	matrix  *conflict.Matrix
	engine  *recommend.Engine
	index   *recommend.ReverseIndex
}

// Service provides license and role optimization operations
type Service struct {
	db     *database.PostgresDB
	redis  *database.RedisClient
	es     *database.ElasticsearchClient // optional audit sink
	cfg    *config.Config
	logger *zap.Logger

	catalogStore  *catalog.Store
	conflictStore *conflict.Store
	scorer        *conflict.Scorer
	trail         *auditlog.Trail // optional tamper-evident decision trail

	state      atomic.Pointer[snapshotState]
	indexCache *recommend.IndexCache
	refreshMu  sync.Mutex
}

// NewService creates the optimizer service. Call RefreshSnapshot before
// serving requests; until then every operation reports the snapshot as not
// loaded.
func NewService(db *database.PostgresDB, redis *database.RedisClient, es *database.ElasticsearchClient, cfg *config.Config, logger *zap.Logger) *Service {
	log := logger.With(zap.String("service", "optimizer"))

	scorerCfg := conflict.DefaultScorerConfig()
	if cfg.RecencyWindowDays > 0 {
		scorerCfg.RecencyWindow = time.Duration(cfg.RecencyWindowDays) * 24 * time.Hour
	}

	return &Service{
		db:            db,
		redis:         redis,
		es:            es,
		cfg:           cfg,
		logger:        log,
		catalogStore:  catalog.NewStore(db, log),
		conflictStore: conflict.NewStore(db, log),
		scorer:        conflict.NewScorer(scorerCfg, log),
		indexCache:    recommend.NewIndexCache(),
	}
}

// SetAuditTrail attaches a tamper-evident trail that records every
// recommendation decision. Call before serving requests.
func (s *Service) SetAuditTrail(trail *auditlog.Trail) {
	s.trail = trail
}

// RefreshSnapshot replaces the whole catalog snapshot: grants, pricing
// overrides, and conflict rules are reloaded, the reverse index and engine
// are rebuilt, and the new state is swapped in atomically. The old state is
// simply dropped; composition cache keys are namespaced by snapshot version
// and age out on their TTL.
func (s *Service) RefreshSnapshot(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	snap, err := s.catalogStore.LoadSnapshot(ctx)
	if err != nil {
		middleware.SnapshotRefreshTotal.WithLabelValues("error").Inc()
		return apperrors.Database(err)
	}

	overrides, err := s.catalogStore.LoadPricingOverrides(ctx)
	if err != nil {
		middleware.SnapshotRefreshTotal.WithLabelValues("error").Inc()
		return apperrors.Database(err)
	}

	matrix, err := s.conflictStore.LoadMatrix(ctx)
	if err != nil {
		middleware.SnapshotRefreshTotal.WithLabelValues("error").Inc()
		return apperrors.Database(err)
	}

	calc := catalog.NewCalculator(snap, s.logger)
	pricing := catalog.NewPricingTable(overrides)
	index := recommend.BuildIndex(snap)

	state := &snapshotState{
		snap:    snap,
		calc:    calc,
		pricing: pricing,
		matrix:  matrix,
		engine:  recommend.NewEngine(calc, pricing, matrix, s.logger),
		index:   index,
	}

	s.indexCache.Swap(index)
	s.state.Store(state)

	middleware.SnapshotRefreshTotal.WithLabelValues("success").Inc()
	middleware.SnapshotGrantsGauge.Set(float64(len(snap.Grants())))

	s.logger.Info("Catalog snapshot refreshed",
		zap.String("version", snap.Version()),
		zap.Int("grants", len(snap.Grants())),
		zap.Int("roles", len(snap.Roles())),
		zap.Int("permissions", index.PermissionCount()),
		zap.Int("conflict_rules", matrix.Len()))

	return nil
}

// UseSnapshot installs an already-prepared snapshot, pricing override set,
// and conflict matrix, bypassing the Postgres stores. Loading the inputs is
// the collaborator's business; this is the entry point for batch callers
// (and tests) that prepare them in memory.
func (s *Service) UseSnapshot(snap *catalog.Snapshot, pricingOverrides map[string]float64, matrix *conflict.Matrix) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	calc := catalog.NewCalculator(snap, s.logger)
	pricing := catalog.NewPricingTable(pricingOverrides)
	index := recommend.BuildIndex(snap)

	state := &snapshotState{
		snap:    snap,
		calc:    calc,
		pricing: pricing,
		matrix:  matrix,
		engine:  recommend.NewEngine(calc, pricing, matrix, s.logger),
		index:   index,
	}

	s.indexCache.Swap(index)
	s.state.Store(state)

	middleware.SnapshotGrantsGauge.Set(float64(len(snap.Grants())))
}

// LoadState returns the current snapshot state, or an error before the
// first refresh
func (s *Service) loadState() (*snapshotState, error) {
	state := s.state.Load()
	if state == nil {
		return nil, apperrors.SnapshotNotLoaded()
	}
	return state, nil
}

// SnapshotInfo describes the currently loaded snapshot
type SnapshotInfo struct {
	Version         string    `json:"version"`
	BuiltAt         time.Time `json:"built_at"`
	GrantCount      int       `json:"grant_count"`
	RoleCount       int       `json:"role_count"`
	PermissionCount int       `json:"permission_count"`
	ConflictRules   int       `json:"conflict_rules"`
}

// SnapshotInfo returns metadata about the loaded snapshot
func (s *Service) SnapshotInfo() (*SnapshotInfo, error) {
	state, err := s.loadState()
	if err != nil {
		return nil, err
	}
	return &SnapshotInfo{
		Version:         state.snap.Version(),
		BuiltAt:         state.snap.BuiltAt(),
		GrantCount:      len(state.snap.Grants()),
		RoleCount:       len(state.snap.Roles()),
		PermissionCount: state.index.PermissionCount(),
		ConflictRules:   state.matrix.Len(),
	}, nil
}

// ComputeRoleComposition returns the cached composition for one role, or nil
// when the role has zero grants or is unknown (both mean "no recommendation
// possible"). Cache keys carry the snapshot version so a refresh naturally
// invalidates them.
func (s *Service) ComputeRoleComposition(ctx context.Context, role string) (*catalog.RoleComposition, error) {
	state, err := s.loadState()
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("optirole:composition:%s:%s", state.snap.Version(), role)
	if s.redis != nil {
		if cached, err := s.redis.Client.Get(ctx, cacheKey).Result(); err == nil {
			var comp catalog.RoleComposition
			if err := json.Unmarshal([]byte(cached), &comp); err == nil {
				return &comp, nil
			}
		}
	}

	comp, err := state.calc.Compose(role)
	if err != nil {
		return nil, apperrors.InvariantViolation(err)
	}
	if comp == nil {
		return nil, nil
	}

	if s.redis != nil {
		if data, err := json.Marshal(comp); err == nil {
			ttl := time.Duration(s.cfg.CompositionCacheTTL) * time.Second
			if err := s.redis.Client.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
				s.logger.Warn("Failed to cache composition",
					zap.String("role", role), zap.Error(err))
			}
		}
	}

	return comp, nil
}

// ComputeAllCompositions runs the calculator over the whole role universe
// discovered from the snapshot
func (s *Service) ComputeAllCompositions(ctx context.Context) ([]*catalog.RoleComposition, error) {
	state, err := s.loadState()
	if err != nil {
		return nil, err
	}
	comps, err := state.calc.ComposeAll()
	if err != nil {
		return nil, apperrors.InvariantViolation(err)
	}
	return comps, nil
}

// RecommendRoleSets runs the set-cover engine for the requested permissions
func (s *Service) RecommendRoleSets(ctx context.Context, permissions []string, maxCandidates int) (*recommend.Result, error) {
	state, err := s.loadState()
	if err != nil {
		return nil, err
	}
	if len(permissions) == 0 {
		return nil, apperrors.New(apperrors.ErrEmptyRequest, "at least one permission is required", 400)
	}
	if maxCandidates <= 0 {
		maxCandidates = s.cfg.MaxCandidates
	}

	result, err := state.engine.Recommend(state.index, permissions, maxCandidates)
	if err != nil {
		middleware.RecommendationsTotal.WithLabelValues("error").Inc()
		return nil, apperrors.InvariantViolation(err)
	}

	outcome := "full_coverage"
	if len(result.Candidates) == 0 {
		outcome = "uncoverable"
	} else if result.Candidates[0].CoveragePercent < 100 {
		outcome = "partial_coverage"
	}
	middleware.RecommendationsTotal.WithLabelValues(outcome).Inc()

	s.indexRecommendationAudit(ctx, permissions, result, outcome)
	s.recordDecision(permissions, result, outcome)

	return result, nil
}

// recordDecision appends the recommendation to the local tamper-evident
// trail. Like the Elasticsearch sink, failures are logged and never
// propagated.
func (s *Service) recordDecision(permissions []string, result *recommend.Result, outcome string) {
	if s.trail == nil {
		return
	}
	var bestRoles []string
	var bestCost float64
	if len(result.Candidates) > 0 {
		bestRoles = result.Candidates[0].Roles
		bestCost = result.Candidates[0].MonthlyCost
	}
	if err := s.trail.Record(result.SnapshotVersion, permissions, outcome, bestRoles, bestCost); err != nil {
		s.logger.Warn("Failed to record decision in audit trail", zap.Error(err))
	}
}

// indexRecommendationAudit writes an audit document of the recommendation to
// Elasticsearch when configured. Indexing failures are logged, never
// propagated; the recommendation itself already succeeded.
func (s *Service) indexRecommendationAudit(ctx context.Context, permissions []string, result *recommend.Result, outcome string) {
	if s.es == nil || !s.cfg.EnableAuditIndexing {
		return
	}

	doc := map[string]interface{}{
		"requested_permissions": permissions,
		"snapshot_version":      result.SnapshotVersion,
		"candidate_count":       len(result.Candidates),
		"uncoverable":           result.UncoverablePermissions,
		"outcome":               outcome,
		"timestamp":             time.Now().UTC(),
	}
	if len(result.Candidates) > 0 {
		doc["best_roles"] = result.Candidates[0].Roles
		doc["best_monthly_cost"] = result.Candidates[0].MonthlyCost
		doc["best_coverage_percent"] = result.Candidates[0].CoveragePercent
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := s.es.Index("optirole-recommendations", uuid.New().String(), body); err != nil {
		s.logger.Warn("Failed to index recommendation audit", zap.Error(err))
	}
}

// ScoreConflict looks up the effective rule for an unordered role pair and
// scores its severity against the usage signal. A nil rule means the pair
// does not conflict.
func (s *Service) ScoreConflict(roleA, roleB string, usage conflict.UsageSignal) (*conflict.Rule, int, conflict.Severity, error) {
	state, err := s.loadState()
	if err != nil {
		return nil, 0, "", err
	}

	rule, ok := state.matrix.Lookup(roleA, roleB)
	if !ok {
		return nil, 0, "", nil
	}

	score, severity := s.scorer.Score(rule, usage)
	return &rule, score, severity, nil
}

// ScanConflicts runs the batch SoD scan over identity role assignments
func (s *Service) ScanConflicts(assignments []conflict.Assignment) ([]conflict.Finding, error) {
	state, err := s.loadState()
	if err != nil {
		return nil, err
	}
	return state.matrix.ScanAssignments(assignments, s.scorer), nil
}

// Index returns the current reverse index from the process-wide cache
func (s *Service) Index() *recommend.ReverseIndex {
	return s.indexCache.Get()
}
