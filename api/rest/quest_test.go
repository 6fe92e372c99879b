package rest_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumigames/petrealm/server/api/rest"
	"github.com/lumigames/petrealm/server/audit"
	"github.com/lumigames/petrealm/server/config"
	"github.com/lumigames/petrealm/server/game/account"
	"github.com/lumigames/petrealm/server/game/item"
	"github.com/lumigames/petrealm/server/game/pet"
	"github.com/lumigames/petrealm/server/game/quest"
	"github.com/lumigames/petrealm/server/game/reward"
	mw "github.com/lumigames/petrealm/server/middleware"
	"github.com/lumigames/petrealm/server/scheduler"
	"github.com/lumigames/petrealm/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminKey = "test-admin-key"

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	quests *quest.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}

	accounts := account.NewService(db, logger)
	items := item.NewInventoryService(db, logger)
	pets := pet.NewService(db, logger)
	resolver := reward.NewResolver(accounts, items, pets, logger)
	catalog := quest.NewCatalog(db, c, time.Minute, logger)
	records := quest.NewRecords(db, catalog, logger)
	quests := quest.NewService(db, catalog, records, resolver, accounts, c, ps, logger)

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(nil) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	authH := rest.NewAuthHandler(db, c, sec, quests, logger)
	questH := rest.NewQuestHandler(quests, accounts, auditSvc, logger)
	adminH := rest.NewAdminHandler(db, quests, sched, auditSvc, logger)

	r := gin.New()
	r.POST("/api/auth/login", authH.Login)
	r.POST("/api/auth/logout", mw.Auth(sec, c), authH.Logout)
	r.POST("/api/auth/refresh", mw.Auth(sec, c), authH.Refresh)

	questsG := r.Group("/api/quests")
	questsG.Use(mw.Auth(sec, c))
	questsG.GET("", questH.List)
	questsG.GET("/available", questH.Available)
	questsG.POST("/action", questH.Action)
	questsG.POST("/:quest_id/activate", questH.Activate)
	questsG.POST("/:quest_id/claim", questH.Claim)
	questsG.GET("/stats", questH.Stats)
	questsG.GET("/search", questH.Search)

	adminG := r.Group("/api/admin")
	adminG.Use(rest.AdminAuth(testAdminKey))
	adminG.POST("/quests", adminH.CreateQuest)
	adminG.PUT("/quests/:quest_id", adminH.UpdateQuest)
	adminG.DELETE("/quests/:quest_id", adminH.DeleteQuest)
	adminG.POST("/quests/reset", adminH.TriggerReset)
	adminG.GET("/metrics", adminH.Metrics)

	return &testEnv{db: db, router: r, quests: quests}
}

func doJSON(r *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		buf.Write(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodPost, path, body, headers...)
}

func login(t *testing.T, r *gin.Engine, username string) string {
	t.Helper()
	w := postJSON(r, "/api/auth/login", map[string]string{"username": username, "password": "pass1234"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["token"].(string)
}

func adminCreateQuest(t *testing.T, r *gin.Engine, body map[string]interface{}) {
	t.Helper()
	w := postJSON(r, "/api/admin/quests", body, "X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestQuestLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	r := env.router

	adminCreateQuest(t, r, map[string]interface{}{
		"quest_id":    "q_slimes",
		"name":        "Slime Cull",
		"type":        "story",
		"requirement": map[string]interface{}{"action": "kill_slime", "target": 5},
		"rewards": map[string]interface{}{
			"gold":  100,
			"items": []map[string]interface{}{{"item_id": "potion", "quantity": 2, "chance": 100}},
		},
	})

	// Login seeds the starter quest.
	token := login(t, r, "ash")
	auth := []string{"Authorization", "Bearer " + token}

	w := doJSON(r, http.MethodGet, "/api/quests", nil, auth...)
	require.Equal(t, http.StatusOK, w.Code)
	var listResp struct {
		Quests []quest.UserQuestView `json:"quests"`
		Count  int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Equal(t, 1, listResp.Count)
	assert.Equal(t, "q_slimes", listResp.Quests[0].QuestID)

	// Claim before completion is rejected.
	w = postJSON(r, "/api/quests/q_slimes/claim", nil, auth...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for i := 1; i <= 5; i++ {
		w = postJSON(r, "/api/quests/action", map[string]interface{}{"action": "kill_slime"}, auth...)
		require.Equal(t, http.StatusOK, w.Code)
		var actResp struct {
			Updated []quest.ProgressDelta `json:"updated"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &actResp))
		require.Len(t, actResp.Updated, 1)
		assert.Equal(t, i, actResp.Updated[0].NewProgress)
	}

	w = postJSON(r, "/api/quests/q_slimes/claim", nil, auth...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var claimResp struct {
		Rewards reward.Result `json:"rewards"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claimResp))
	assert.Equal(t, 100, claimResp.Rewards.Gold)
	require.Len(t, claimResp.Rewards.Items, 1)

	// Double claim conflicts.
	w = postJSON(r, "/api/quests/q_slimes/claim", nil, auth...)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Unknown quest.
	w = postJSON(r, "/api/quests/q_nope/claim", nil, auth...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Stats reflect the claim.
	w = doJSON(r, http.MethodGet, "/api/quests/stats", nil, auth...)
	require.Equal(t, http.StatusOK, w.Code)
	var stats quest.Statistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.ByStatus["claimed"])
	assert.Equal(t, 100, stats.ClaimedRewards.Gold)
}

func TestActivateGateOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	r := env.router

	adminCreateQuest(t, r, map[string]interface{}{
		"quest_id": "q_elite",
		"name":     "Elite Hunt",
		"type":     "daily",
		"requirement": map[string]interface{}{
			"action": "kill_wolf", "target": 3,
			"conditions": map[string]interface{}{"min_level": 10},
		},
	})

	token := login(t, r, "rookie")
	w := postJSON(r, "/api/quests/q_elite/activate", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Available still reports the quest, just not activatable.
	w = doJSON(r, http.MethodGet, "/api/quests/available", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	var availResp struct {
		Quests []quest.AvailableQuest `json:"quests"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &availResp))
	require.Len(t, availResp.Quests, 1)
	assert.False(t, availResp.Quests[0].CanActivate)
}

func TestAdminQuestCRUD(t *testing.T) {
	env := newTestEnv(t)
	r := env.router

	// Wrong key is rejected outright.
	w := postJSON(r, "/api/admin/quests", map[string]interface{}{}, "X-Admin-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	adminCreateQuest(t, r, map[string]interface{}{
		"quest_id":    "q_tmp",
		"name":        "Temp",
		"type":        "story",
		"requirement": map[string]interface{}{"action": "x", "target": 1},
	})

	// Duplicate quest_id conflicts.
	w = postJSON(r, "/api/admin/quests", map[string]interface{}{
		"quest_id":    "q_tmp",
		"name":        "Temp Again",
		"type":        "story",
		"requirement": map[string]interface{}{"action": "x", "target": 1},
	}, "X-Admin-Key", testAdminKey)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Seed a user record, then delete and verify the cascade.
	token := login(t, r, "victim")
	auth := []string{"Authorization", "Bearer " + token}
	w = doJSON(r, http.MethodGet, "/api/quests", nil, auth...)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPut, "/api/admin/quests/q_tmp",
		map[string]interface{}{"name": "Renamed"}, "X-Admin-Key", testAdminKey)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/admin/quests/q_tmp", nil, "X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/quests", nil, auth...)
	require.Equal(t, http.StatusOK, w.Code)
	var listResp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Equal(t, 0, listResp.Count)

	w = doJSON(r, http.MethodDelete, "/api/admin/quests/q_tmp", nil, "X-Admin-Key", testAdminKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminTriggerReset(t *testing.T) {
	env := newTestEnv(t)
	r := env.router

	adminCreateQuest(t, r, map[string]interface{}{
		"quest_id":    "q_daily",
		"name":        "Daily Feed",
		"type":        "daily",
		"requirement": map[string]interface{}{"action": "feed_pet", "target": 3},
	})
	token := login(t, r, "feeder")
	w := postJSON(r, "/api/quests/q_daily/activate", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	// Age the record past a daily boundary.
	past := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, env.db.Exec(
		"UPDATE user_quests SET cycle_start = ?, progress = 2 WHERE quest_id = ?", past, "q_daily").Error)

	w = postJSON(r, "/api/admin/quests/reset", nil, "X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resetResp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resetResp))
	assert.Equal(t, 1, resetResp.Count)
}

func TestAdminMetrics(t *testing.T) {
	env := newTestEnv(t)
	r := env.router

	adminCreateQuest(t, r, map[string]interface{}{
		"quest_id":    fmt.Sprintf("q_%d", time.Now().UnixNano()),
		"name":        "Any",
		"type":        "story",
		"requirement": map[string]interface{}{"action": "x", "target": 1},
	})

	w := doJSON(r, http.MethodGet, "/api/admin/metrics", nil, "X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["quest_definitions"])
}
