package quest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lumigames/petrealm/server/cache"
	"github.com/lumigames/petrealm/server/game/reward"
	"github.com/lumigames/petrealm/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CompletedChannel is the pub/sub channel completion events are published on.
const CompletedChannel = "quest.completed"

// resetSweepLock guards the reset sweep so the scheduler ticker and an
// admin-triggered sweep (or another instance) do not run concurrently.
const resetSweepLock = "quest:reset_sweep"

// Service is the quest engine's public surface. It is passive: resets are
// driven by an external scheduler calling ResetDailyWeeklyQuests.
type Service struct {
	db       *gorm.DB
	catalog  *Catalog
	records  *Records
	resolver *reward.Resolver
	levels   reward.LevelSource
	cache    cache.Cache
	pubsub   cache.PubSub
	logger   *zap.Logger
}

// NewService creates the quest Service.
func NewService(db *gorm.DB, catalog *Catalog, records *Records, resolver *reward.Resolver, levels reward.LevelSource, c cache.Cache, pubsub cache.PubSub, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		catalog:  catalog,
		records:  records,
		resolver: resolver,
		levels:   levels,
		cache:    c,
		pubsub:   pubsub,
		logger:   logger,
	}
}

// UserQuestView joins a user record with its definition for listing.
type UserQuestView struct {
	QuestID     string     `json:"quest_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Category    string     `json:"category"`
	Difficulty  string     `json:"difficulty"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Target      int        `json:"target"`
	CycleStart  time.Time  `json:"cycle_start"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	sortOrder int
}

// ProgressDelta summarizes one record change from ProcessGameAction.
type ProgressDelta struct {
	QuestID     string `json:"quest_id"`
	QuestName   string `json:"quest_name"`
	OldProgress int    `json:"old_progress"`
	NewProgress int    `json:"new_progress"`
	Target      int    `json:"target"`
	Completed   bool   `json:"completed"`
	Status      string `json:"status"`
}

// AvailableQuest describes an untracked quest and whether the caller may
// activate it now.
type AvailableQuest struct {
	QuestID     string `json:"quest_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	CanActivate bool   `json:"can_activate"`
}

// ResetEntry records one performed reset.
type ResetEntry struct {
	AccountID int64  `json:"account_id"`
	QuestID   string `json:"quest_id"`
	Type      string `json:"type"`
}

// InitializeUserQuests creates records for every active tutorial/story
// quest a fresh level-1 account qualifies for. Safe to call repeatedly.
func (svc *Service) InitializeUserQuests(ctx context.Context, accountID int64) error {
	defs, err := svc.catalog.ListActive(ctx, model.QuestTypeTutorial, model.QuestTypeStory)
	if err != nil {
		return err
	}
	for i := range defs {
		req, err := DecodeRequirement(&defs[i])
		if err != nil {
			svc.logger.Warn("bad requirement in definition",
				zap.String("quest_id", defs[i].QuestID), zap.Error(err))
			continue
		}
		if req.Conditions.MinLevel > 1 || req.Conditions.Prerequisite != "" {
			continue
		}
		if _, err := svc.records.GetOrCreate(ctx, accountID, defs[i].QuestID); err != nil {
			return err
		}
	}
	return nil
}

// GetUserQuests returns the account's records, optionally filtered by quest
// type and record status, ordered by definition sort order then creation
// time descending.
func (svc *Service) GetUserQuests(ctx context.Context, accountID int64, questType, status string) ([]UserQuestView, error) {
	recs, err := svc.records.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	views := make([]UserQuestView, 0, len(recs))
	for i := range recs {
		if status != "" && recs[i].Status != status {
			continue
		}
		view, def, err := svc.view(ctx, &recs[i])
		if err != nil {
			continue
		}
		if questType != "" && def.Type != questType {
			continue
		}
		views = append(views, view)
	}
	sortViews(views)
	return views, nil
}

func sortViews(views []UserQuestView) {
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].sortOrder != views[j].sortOrder {
			return views[i].sortOrder < views[j].sortOrder
		}
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
}

func (svc *Service) view(ctx context.Context, rec *model.UserQuest) (UserQuestView, *model.QuestDefinition, error) {
	def, err := svc.catalog.Get(ctx, rec.QuestID)
	if err != nil {
		return UserQuestView{}, nil, err
	}
	req, _ := DecodeRequirement(def)
	return UserQuestView{
		QuestID:     rec.QuestID,
		Name:        def.Name,
		Description: def.Description,
		Type:        def.Type,
		Category:    def.Category,
		Difficulty:  def.Difficulty,
		Status:      rec.Status,
		Progress:    rec.Progress,
		Target:      req.Target,
		CycleStart:  rec.CycleStart,
		CompletedAt: rec.CompletedAt,
		ClaimedAt:   rec.ClaimedAt,
		CreatedAt:   rec.CreatedAt,
		sortOrder:   def.SortOrder,
	}, def, nil
}

// GetAvailableQuests surveys daily/weekly/achievement/event definitions the
// account does not track yet. Records are lazily created for those whose
// gates pass; the rest are reported with CanActivate=false.
func (svc *Service) GetAvailableQuests(ctx context.Context, accountID int64, level int) ([]AvailableQuest, error) {
	defs, err := svc.catalog.ListActive(ctx,
		model.QuestTypeDaily, model.QuestTypeWeekly,
		model.QuestTypeAchievement, model.QuestTypeEvent)
	if err != nil {
		return nil, err
	}
	recs, err := svc.records.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	tracked := make(map[string]*model.UserQuest, len(recs))
	for i := range recs {
		tracked[recs[i].QuestID] = &recs[i]
	}

	var out []AvailableQuest
	for i := range defs {
		def := &defs[i]
		if _, ok := tracked[def.QuestID]; ok {
			continue
		}
		req, err := DecodeRequirement(def)
		if err != nil {
			continue
		}
		ok := svc.gateSatisfied(req.Conditions, level, tracked)
		if ok {
			if _, err := svc.records.GetOrCreate(ctx, accountID, def.QuestID); err != nil {
				return nil, err
			}
		}
		out = append(out, AvailableQuest{
			QuestID:     def.QuestID,
			Name:        def.Name,
			Description: def.Description,
			Type:        def.Type,
			CanActivate: ok,
		})
	}
	return out, nil
}

// ActivateQuest explicitly starts tracking one quest, enforcing its gates.
// Returns ErrGateFailed when the level or prerequisite condition is unmet.
func (svc *Service) ActivateQuest(ctx context.Context, accountID int64, questID string) (*model.UserQuest, error) {
	def, err := svc.catalog.Get(ctx, questID)
	if err != nil {
		return nil, err
	}
	if !def.IsActive {
		return nil, ErrInvalidState
	}
	req, err := DecodeRequirement(def)
	if err != nil {
		return nil, fmt.Errorf("decode requirement for %s: %w", questID, err)
	}

	level := 0
	if svc.levels != nil {
		if lv, err := svc.levels.Level(ctx, accountID); err == nil {
			level = lv
		}
	}
	recs, err := svc.records.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	tracked := make(map[string]*model.UserQuest, len(recs))
	for i := range recs {
		tracked[recs[i].QuestID] = &recs[i]
	}
	if !svc.gateSatisfied(req.Conditions, level, tracked) {
		return nil, ErrGateFailed
	}
	return svc.records.GetOrCreate(ctx, accountID, questID)
}

func (svc *Service) gateSatisfied(cond Conditions, level int, tracked map[string]*model.UserQuest) bool {
	if cond.MinLevel > 0 && level < cond.MinLevel {
		return false
	}
	if cond.Prerequisite != "" {
		prereq, ok := tracked[cond.Prerequisite]
		if !ok || prereq.Status != model.QuestClaimed {
			return false
		}
	}
	return true
}

// ProcessGameAction feeds one game action through every matching active
// record. An empty result is the normal outcome when nothing matched, not
// an error. Completion events are published on CompletedChannel.
func (svc *Service) ProcessGameAction(ctx context.Context, accountID int64, action string, payload ActionPayload) ([]ProgressDelta, error) {
	if payload.ActorLevel == 0 && svc.levels != nil {
		if level, err := svc.levels.Level(ctx, accountID); err == nil {
			payload.ActorLevel = level
		}
	}

	changed, err := svc.records.ApplyAction(ctx, accountID, action, payload)
	if err != nil {
		return nil, err
	}

	deltas := make([]ProgressDelta, 0, len(changed))
	for _, rec := range changed {
		def, err := svc.catalog.Get(ctx, rec.QuestID)
		if err != nil {
			continue
		}
		req, _ := DecodeRequirement(def)
		delta := ProgressDelta{
			QuestID:     rec.QuestID,
			QuestName:   def.Name,
			NewProgress: rec.Progress,
			Target:      req.Target,
			Completed:   rec.Status == model.QuestCompleted,
			Status:      rec.Status,
		}
		if last, ok := LastActivity(rec); ok {
			delta.OldProgress = last.ProgressBefore
			delta.NewProgress = last.ProgressAfter
		}
		deltas = append(deltas, delta)

		if delta.Completed {
			svc.publishCompleted(ctx, accountID, rec.QuestID, def.Name)
		}
	}
	return deltas, nil
}

func (svc *Service) publishCompleted(ctx context.Context, accountID int64, questID, name string) {
	if svc.pubsub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"account_id": accountID,
		"quest_id":   questID,
		"name":       name,
	})
	if err := svc.pubsub.Publish(ctx, CompletedChannel, string(payload)); err != nil {
		svc.logger.Warn("completion publish failed",
			zap.String("quest_id", questID), zap.Error(err))
	}
}

// ClaimQuestRewards converts a completed record's reward table into actual
// grants. The completed → claimed transition commits before any grant call,
// so a degraded grant never blocks the quest; it surfaces as ErrGrantFailed
// with the realized result still returned.
func (svc *Service) ClaimQuestRewards(ctx context.Context, accountID int64, questID string) (*reward.Result, error) {
	rec, err := svc.records.Get(ctx, accountID, questID)
	if err != nil {
		return nil, err
	}
	def, err := svc.catalog.Get(ctx, questID)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case model.QuestActive:
		return nil, ErrNotCompleted
	case model.QuestClaimed:
		return nil, ErrAlreadyClaimed
	case model.QuestFailed:
		return nil, ErrInvalidState
	}

	if err := svc.records.MarkClaimed(ctx, rec.ID); err != nil {
		return nil, err
	}

	var table reward.Table
	if len(def.Rewards) > 0 {
		if err := json.Unmarshal(def.Rewards, &table); err != nil {
			return nil, fmt.Errorf("decode rewards for %s: %w", questID, err)
		}
	}

	result, grantErr := svc.resolver.Resolve(ctx, accountID, table)
	if err := svc.records.StoreClaimResult(ctx, rec.ID, result); err != nil {
		svc.logger.Error("claim snapshot write failed",
			zap.String("quest_id", questID), zap.Error(err))
	}

	svc.logger.Info("quest claimed",
		zap.Int64("account_id", accountID),
		zap.String("quest_id", questID))

	if grantErr != nil {
		return result, fmt.Errorf("%w: %v", ErrGrantFailed, grantErr)
	}
	return result, nil
}

// ResetDailyWeeklyQuests sweeps every daily/weekly record past its cycle
// boundary and resets it. Intended to be driven by a periodic scheduler
// task; the engine takes no action on its own.
func (svc *Service) ResetDailyWeeklyQuests(ctx context.Context) ([]ResetEntry, error) {
	acquired, err := svc.cache.SetNX(ctx, resetSweepLock, "1", 30*time.Second)
	if err == nil && !acquired {
		// Another sweep is running; skip this round.
		return nil, nil
	}
	defer func() { _ = svc.cache.Del(ctx, resetSweepLock) }()

	var defs []model.QuestDefinition
	err = svc.db.WithContext(ctx).
		Where("type IN ?", []string{model.QuestTypeDaily, model.QuestTypeWeekly}).
		Find(&defs).Error
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, nil
	}
	types := make(map[string]string, len(defs))
	ids := make([]string, 0, len(defs))
	for i := range defs {
		types[defs[i].QuestID] = defs[i].Type
		ids = append(ids, defs[i].QuestID)
	}

	var recs []model.UserQuest
	if err := svc.db.WithContext(ctx).Where("quest_id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var resets []ResetEntry
	for i := range recs {
		rec := &recs[i]
		questType := types[rec.QuestID]
		if !CanReset(questType, rec.CycleStart, now) {
			continue
		}
		if err := svc.records.Reset(ctx, rec, questType); err != nil {
			svc.logger.Warn("quest reset failed",
				zap.Int64("account_id", rec.AccountID),
				zap.String("quest_id", rec.QuestID),
				zap.Error(err))
			continue
		}
		resets = append(resets, ResetEntry{
			AccountID: rec.AccountID,
			QuestID:   rec.QuestID,
			Type:      questType,
		})
	}
	if len(resets) > 0 {
		svc.logger.Info("recurring quests reset", zap.Int("count", len(resets)))
	}
	return resets, nil
}

// CreateQuest adds a definition to the catalog.
func (svc *Service) CreateQuest(ctx context.Context, def *model.QuestDefinition) error {
	return svc.catalog.Create(ctx, def)
}

// UpdateQuest edits a definition.
func (svc *Service) UpdateQuest(ctx context.Context, questID string, updates map[string]interface{}) error {
	return svc.catalog.Update(ctx, questID, updates)
}

// DeleteQuest removes a definition and cascades to all user records.
func (svc *Service) DeleteQuest(ctx context.Context, questID string) error {
	return svc.catalog.Delete(ctx, questID)
}

// ClaimedTotals aggregates realized rewards across claimed records.
type ClaimedTotals struct {
	Gold         int `json:"gold"`
	Diamonds     int `json:"diamonds"`
	StandardFate int `json:"standard_fate"`
	SpecialFate  int `json:"special_fate"`
	Exp          int `json:"exp"`
	Items        int `json:"items"`
	Pets         int `json:"pets"`
}

// Statistics summarizes an account's quest records. Purely derived; the
// engine keeps no separate counters.
type Statistics struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	ByType         map[string]int `json:"by_type"`
	ByCategory     map[string]int `json:"by_category"`
	ClaimedRewards ClaimedTotals  `json:"claimed_rewards"`
}

// GetQuestStatistics aggregates counts and claimed reward sums for an
// account.
func (svc *Service) GetQuestStatistics(ctx context.Context, accountID int64) (*Statistics, error) {
	recs, err := svc.records.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	stats := &Statistics{
		Total:      len(recs),
		ByStatus:   make(map[string]int),
		ByType:     make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for i := range recs {
		rec := &recs[i]
		stats.ByStatus[rec.Status]++

		if def, err := svc.catalog.Get(ctx, rec.QuestID); err == nil {
			stats.ByType[def.Type]++
			if def.Category != "" {
				stats.ByCategory[def.Category]++
			}
		}

		if len(rec.RewardsClaimed) == 0 {
			continue
		}
		var res reward.Result
		if err := json.Unmarshal(rec.RewardsClaimed, &res); err != nil {
			continue
		}
		stats.ClaimedRewards.Gold += res.Gold
		stats.ClaimedRewards.Diamonds += res.Diamonds
		stats.ClaimedRewards.StandardFate += res.StandardFate
		stats.ClaimedRewards.SpecialFate += res.SpecialFate
		stats.ClaimedRewards.Exp += res.Exp
		stats.ClaimedRewards.Items += len(res.Items)
		stats.ClaimedRewards.Pets += len(res.Pets)
	}
	return stats, nil
}

// SearchFilter selects user quest records by definition- and record-level
// predicates. Keyword matches name/description, case-insensitively.
type SearchFilter struct {
	Type       string
	Category   string
	Status     string
	Difficulty string
	Keyword    string
}

// SearchQuests filters the account's records.
func (svc *Service) SearchQuests(ctx context.Context, accountID int64, filter SearchFilter) ([]UserQuestView, error) {
	recs, err := svc.records.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	keyword := strings.ToLower(filter.Keyword)

	var views []UserQuestView
	for i := range recs {
		rec := &recs[i]
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		view, def, err := svc.view(ctx, rec)
		if err != nil {
			continue
		}
		if filter.Type != "" && def.Type != filter.Type {
			continue
		}
		if filter.Category != "" && def.Category != filter.Category {
			continue
		}
		if filter.Difficulty != "" && def.Difficulty != filter.Difficulty {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(def.Name), keyword) &&
			!strings.Contains(strings.ToLower(def.Description), keyword) {
			continue
		}
		views = append(views, view)
	}
	sortViews(views)
	return views, nil
}
