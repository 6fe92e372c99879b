package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumigames/petrealm/server/audit"
	"github.com/lumigames/petrealm/server/game/quest"
	"github.com/lumigames/petrealm/server/game/reward"
	mw "github.com/lumigames/petrealm/server/middleware"
	"go.uber.org/zap"
)

// QuestHandler handles player-facing quest REST endpoints.
type QuestHandler struct {
	quests *quest.Service
	levels reward.LevelSource
	audit  *audit.Service
	logger *zap.Logger
}

// NewQuestHandler creates a QuestHandler.
func NewQuestHandler(quests *quest.Service, levels reward.LevelSource, auditSvc *audit.Service, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{quests: quests, levels: levels, audit: auditSvc, logger: logger}
}

// questError maps engine sentinels to HTTP responses.
func questError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quest.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
	case errors.Is(err, quest.ErrAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": "rewards already claimed"})
	case errors.Is(err, quest.ErrNotCompleted):
		c.JSON(http.StatusBadRequest, gin.H{"error": "quest not completed"})
	case errors.Is(err, quest.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quest state"})
	case errors.Is(err, quest.ErrGateFailed):
		c.JSON(http.StatusForbidden, gin.H{"error": "requirements not met"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// List handles GET /api/quests.
func (h *QuestHandler) List(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	views, err := h.quests.GetUserQuests(c.Request.Context(), accountID,
		c.Query("type"), c.Query("status"))
	if err != nil {
		questError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": views, "count": len(views)})
}

// Available handles GET /api/quests/available.
func (h *QuestHandler) Available(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	level, err := h.levels.Level(c.Request.Context(), accountID)
	if err != nil {
		questError(c, err)
		return
	}
	avail, err := h.quests.GetAvailableQuests(c.Request.Context(), accountID, level)
	if err != nil {
		questError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": avail, "count": len(avail)})
}

type actionRequest struct {
	Action  string              `json:"action" binding:"required,max=64"`
	Payload quest.ActionPayload `json:"payload"`
}

// Action handles POST /api/quests/action.
func (h *QuestHandler) Action(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accountID := mw.GetAccountID(c)
	deltas, err := h.quests.ProcessGameAction(c.Request.Context(), accountID, req.Action, req.Payload)
	if err != nil {
		questError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": deltas, "count": len(deltas)})
}

// Activate handles POST /api/quests/:quest_id/activate.
func (h *QuestHandler) Activate(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	questID := c.Param("quest_id")
	rec, err := h.quests.ActivateQuest(c.Request.Context(), accountID, questID)
	if err != nil {
		questError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quest_id": rec.QuestID, "status": rec.Status})
}

// Claim handles POST /api/quests/:quest_id/claim.
func (h *QuestHandler) Claim(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	questID := c.Param("quest_id")

	result, err := h.quests.ClaimQuestRewards(c.Request.Context(), accountID, questID)

	entry := audit.AuditEntry{
		TraceID:   mw.GetTraceID(c),
		AccountID: &accountID,
		Action:    "quest_claim",
		Request:   gin.H{"quest_id": questID},
		Response:  result,
		IP:        c.ClientIP(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)

	if errors.Is(err, quest.ErrGrantFailed) {
		// The claim committed; the degraded grants are an operator problem.
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "some rewards could not be granted",
			"rewards": result,
		})
		return
	}
	if err != nil {
		questError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": result})
}

// Stats handles GET /api/quests/stats.
func (h *QuestHandler) Stats(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	stats, err := h.quests.GetQuestStatistics(c.Request.Context(), accountID)
	if err != nil {
		questError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Search handles GET /api/quests/search.
func (h *QuestHandler) Search(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	filter := quest.SearchFilter{
		Type:       c.Query("type"),
		Category:   c.Query("category"),
		Status:     c.Query("status"),
		Difficulty: c.Query("difficulty"),
		Keyword:    c.Query("keyword"),
	}
	views, err := h.quests.SearchQuests(c.Request.Context(), accountID, filter)
	if err != nil {
		questError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": views, "count": len(views)})
}
