package optimizer

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/optirole/optirole/internal/common/errors"
	"github.com/optirole/optirole/internal/common/middleware"
	"github.com/optirole/optirole/internal/conflict"
)

// RegisterRoutes registers optimizer service routes
func RegisterRoutes(router *gin.Engine, svc *Service) {
	opt := router.Group("/api/v1/optimizer")
	{
		opt.GET("/compositions", svc.handleListCompositions)
		opt.GET("/compositions/:role", svc.handleGetComposition)
		opt.POST("/recommendations", svc.handleRecommend)
		opt.POST("/conflicts/score", svc.handleScoreConflict)
		opt.POST("/conflicts/scan", svc.handleScanConflicts)
		opt.GET("/snapshot", svc.handleSnapshotInfo)
		opt.GET("/index/stats", svc.handleIndexStats)

		refresh := opt.Group("")
		if svc.cfg.RefreshRequiresAuth && svc.cfg.JWTSecret != "" {
			refresh.Use(middleware.Auth(svc.cfg.JWTSecret))
		}
		refresh.POST("/snapshot/refresh", svc.handleRefreshSnapshot)
	}
}

func (s *Service) handleListCompositions(c *gin.Context) {
	comps, err := s.ComputeAllCompositions(c.Request.Context())
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(len(comps)))
	c.JSON(http.StatusOK, comps)
}

func (s *Service) handleGetComposition(c *gin.Context) {
	comp, err := s.ComputeRoleComposition(c.Request.Context(), c.Param("role"))
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	if comp == nil {
		// Unknown role and empty role report identically: no grants, no
		// recommendation possible
		c.JSON(http.StatusOK, gin.H{
			"role":        c.Param("role"),
			"composition": nil,
			"warnings": []gin.H{{
				"code":    "ROLE_WITHOUT_GRANTS",
				"message": "role has no permission grants in the current catalog snapshot",
			}},
		})
		return
	}
	c.JSON(http.StatusOK, comp)
}

type recommendRequest struct {
	Permissions   []string `json:"permissions" binding:"required"`
	MaxCandidates int      `json:"max_candidates"`
	Top           int      `json:"top"`
}

func (s *Service) handleRecommend(c *gin.Context) {
	var req recommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondWithError(c, apperrors.BadRequest(err.Error()))
		return
	}

	result, err := s.RecommendRoleSets(c.Request.Context(), req.Permissions, req.MaxCandidates)
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}

	// Callers typically keep the top few candidates
	top := req.Top
	if top <= 0 {
		top = s.cfg.TopCandidates
	}
	if top < len(result.Candidates) {
		result.Candidates = result.Candidates[:top]
	}

	c.JSON(http.StatusOK, result)
}

type scoreConflictRequest struct {
	RoleA string               `json:"role_a" binding:"required"`
	RoleB string               `json:"role_b" binding:"required"`
	Usage conflict.UsageSignal `json:"usage"`
}

func (s *Service) handleScoreConflict(c *gin.Context) {
	var req scoreConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondWithError(c, apperrors.BadRequest(err.Error()))
		return
	}

	rule, score, severity, err := s.ScoreConflict(req.RoleA, req.RoleB, req.Usage)
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	if rule == nil {
		c.JSON(http.StatusOK, gin.H{"conflict": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conflict": true,
		"rule":     rule,
		"score":    score,
		"severity": severity,
	})
}

type scanConflictsRequest struct {
	Assignments []conflict.Assignment `json:"assignments" binding:"required"`
}

func (s *Service) handleScanConflicts(c *gin.Context) {
	var req scanConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondWithError(c, apperrors.BadRequest(err.Error()))
		return
	}

	findings, err := s.ScanConflicts(req.Assignments)
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(len(findings)))
	c.JSON(http.StatusOK, findings)
}

func (s *Service) handleSnapshotInfo(c *gin.Context) {
	info, err := s.SnapshotInfo()
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Service) handleIndexStats(c *gin.Context) {
	idx := s.Index()
	if idx == nil {
		apperrors.RespondWithError(c, apperrors.SnapshotNotLoaded())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshot_version": idx.Version(),
		"permissions":      idx.PermissionCount(),
		"roles":            len(idx.Roles()),
	})
}

func (s *Service) handleRefreshSnapshot(c *gin.Context) {
	if err := s.RefreshSnapshot(c.Request.Context()); err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	info, err := s.SnapshotInfo()
	if err != nil {
		apperrors.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
