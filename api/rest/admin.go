package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumigames/petrealm/server/audit"
	"github.com/lumigames/petrealm/server/game/quest"
	mw "github.com/lumigames/petrealm/server/middleware"
	"github.com/lumigames/petrealm/server/model"
	"github.com/lumigames/petrealm/server/scheduler"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	quests *quest.Service
	sched  *scheduler.Scheduler
	audit  *audit.Service
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, quests *quest.Service, sched *scheduler.Scheduler, auditSvc *audit.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, quests: quests, sched: sched, audit: auditSvc, logger: logger}
}

func (h *AdminHandler) logAdmin(c *gin.Context, action string, request, response interface{}, err error) {
	entry := audit.AuditEntry{
		TraceID:  mw.GetTraceID(c),
		Action:   action,
		Request:  request,
		Response: response,
		IP:       c.ClientIP(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}

type questDefRequest struct {
	QuestID     string                 `json:"quest_id" binding:"required,max=64"`
	Name        string                 `json:"name" binding:"required,max=128"`
	Description string                 `json:"description" binding:"max=512"`
	Type        string                 `json:"type" binding:"required,oneof=tutorial story daily weekly achievement event"`
	Category    string                 `json:"category" binding:"max=64"`
	Difficulty  string                 `json:"difficulty" binding:"max=16"`
	SortOrder   int                    `json:"sort_order"`
	IsActive    *bool                  `json:"is_active"`
	Requirement map[string]interface{} `json:"requirement" binding:"required"`
	Rewards     map[string]interface{} `json:"rewards"`
}

// CreateQuest handles POST /api/admin/quests.
func (h *AdminHandler) CreateQuest(c *gin.Context) {
	var req questDefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def := &model.QuestDefinition{
		QuestID:     req.QuestID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Category:    req.Category,
		Difficulty:  req.Difficulty,
		SortOrder:   req.SortOrder,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	var err error
	if def.Requirement, err = toJSON(req.Requirement); err == nil && req.Rewards != nil {
		def.Rewards, err = toJSON(req.Rewards)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad requirement or rewards"})
		return
	}

	err = h.quests.CreateQuest(c.Request.Context(), def)
	h.logAdmin(c, "admin_quest_create", req, nil, err)
	if err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "quest_id already exists"})
			return
		}
		questError(c, err)
		return
	}
	h.logger.Info("quest definition created", zap.String("quest_id", req.QuestID))
	c.JSON(http.StatusCreated, def)
}

// UpdateQuest handles PUT /api/admin/quests/:quest_id.
// Only supplied fields are changed.
func (h *AdminHandler) UpdateQuest(c *gin.Context) {
	questID := c.Param("quest_id")
	var req struct {
		Name        *string                `json:"name"`
		Description *string                `json:"description"`
		Category    *string                `json:"category"`
		Difficulty  *string                `json:"difficulty"`
		SortOrder   *int                   `json:"sort_order"`
		IsActive    *bool                  `json:"is_active"`
		Requirement map[string]interface{} `json:"requirement"`
		Rewards     map[string]interface{} `json:"rewards"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.Difficulty != nil {
		updates["difficulty"] = *req.Difficulty
	}
	if req.SortOrder != nil {
		updates["sort_order"] = *req.SortOrder
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Requirement != nil {
		raw, err := toJSON(req.Requirement)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad requirement"})
			return
		}
		updates["requirement"] = raw
	}
	if req.Rewards != nil {
		raw, err := toJSON(req.Rewards)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad rewards"})
			return
		}
		updates["rewards"] = raw
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	err := h.quests.UpdateQuest(c.Request.Context(), questID, updates)
	h.logAdmin(c, "admin_quest_update", gin.H{"quest_id": questID, "updates": req}, nil, err)
	if err != nil {
		questError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteQuest handles DELETE /api/admin/quests/:quest_id.
// Removes the definition and every user record that references it.
func (h *AdminHandler) DeleteQuest(c *gin.Context) {
	questID := c.Param("quest_id")
	err := h.quests.DeleteQuest(c.Request.Context(), questID)
	h.logAdmin(c, "admin_quest_delete", gin.H{"quest_id": questID}, nil, err)
	if err != nil {
		questError(c, err)
		return
	}
	h.logger.Info("quest definition deleted", zap.String("quest_id", questID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// TriggerReset handles POST /api/admin/quests/reset.
// Runs the same sweep the scheduler ticker runs, on demand.
func (h *AdminHandler) TriggerReset(c *gin.Context) {
	resets, err := h.quests.ResetDailyWeeklyQuests(c.Request.Context())
	h.logAdmin(c, "admin_quest_reset", nil, gin.H{"count": len(resets)}, err)
	if err != nil {
		questError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resets": resets, "count": len(resets)})
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	var definitions, records, accounts int64
	h.db.Model(&model.QuestDefinition{}).Count(&definitions)
	h.db.Model(&model.UserQuest{}).Count(&records)
	h.db.Model(&model.Account{}).Count(&accounts)
	c.JSON(http.StatusOK, gin.H{
		"quest_definitions": definitions,
		"user_quests":       records,
		"accounts":          accounts,
		"scheduler_tasks":   h.sched.ListTickers(),
	})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func toJSON(v interface{}) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
