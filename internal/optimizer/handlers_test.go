package optimizer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, loaded bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, _ := newTestService(t)
	if loaded {
		svc.UseSnapshot(testSnapshot(t), map[string]float64{"Finance": 195}, testMatrix())
	}

	router := gin.New()
	RegisterRoutes(router, svc)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleGetComposition(t *testing.T) {
	router := newTestRouter(t, true)

	w := doJSON(router, http.MethodGet, "/api/v1/optimizer/compositions/RoleB", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var comp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comp))
	assert.Equal(t, "RoleB", comp["role_name"])
	assert.Equal(t, float64(1), comp["total_permission_count"])
}

func TestHandleGetComposition_UnknownRole(t *testing.T) {
	router := newTestRouter(t, true)

	w := doJSON(router, http.MethodGet, "/api/v1/optimizer/compositions/Ghost", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Nil(t, body["composition"])
	warnings := body["warnings"].([]interface{})
	require.Len(t, warnings, 1)
	assert.Equal(t, "ROLE_WITHOUT_GRANTS", warnings[0].(map[string]interface{})["code"])
}

func TestHandleListCompositions(t *testing.T) {
	router := newTestRouter(t, true)

	w := doJSON(router, http.MethodGet, "/api/v1/optimizer/compositions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3", w.Header().Get("X-Total-Count"))
}

func TestHandleRecommend(t *testing.T) {
	router := newTestRouter(t, true)

	w := doJSON(router, http.MethodPost, "/api/v1/optimizer/recommendations", map[string]interface{}{
		"permissions": []string{"MenuX", "MenuY"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		SnapshotVersion string `json:"snapshot_version"`
		Candidates      []struct {
			Roles           []string `json:"roles"`
			CoveragePercent float64  `json:"coverage_percent"`
		} `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "svc-v1", result.SnapshotVersion)
	require.NotEmpty(t, result.Candidates)
	assert.Equal(t, []string{"RoleA", "RoleB"}, result.Candidates[0].Roles)

	// TopCandidates defaults to 3 in the test config
	assert.LessOrEqual(t, len(result.Candidates), 3)
}

func TestHandleRecommend_MissingPermissions(t *testing.T) {
	router := newTestRouter(t, true)

	w := doJSON(router, http.MethodPost, "/api/v1/optimizer/recommendations", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleScoreConflict(t *testing.T) {
	router := newTestRouter(t, true)

	w := doJSON(router, http.MethodPost, "/api/v1/optimizer/conflicts/score", map[string]interface{}{
		"role_a": "RoleA",
		"role_b": "AP Clerk",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["conflict"])
	assert.Equal(t, "medium", body["severity"])

	w = doJSON(router, http.MethodPost, "/api/v1/optimizer/conflicts/score", map[string]interface{}{
		"role_a": "RoleA",
		"role_b": "RoleB",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["conflict"])
}

func TestHandleSnapshotInfo_NotLoaded(t *testing.T) {
	router := newTestRouter(t, false)

	w := doJSON(router, http.MethodGet, "/api/v1/optimizer/snapshot", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SNAPSHOT_NOT_LOADED", body["code"])
}

func TestHandleIndexStats(t *testing.T) {
	router := newTestRouter(t, true)

	w := doJSON(router, http.MethodGet, "/api/v1/optimizer/index/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "svc-v1", body["snapshot_version"])
	assert.Equal(t, float64(3), body["permissions"])
	assert.Equal(t, float64(3), body["roles"])
}
