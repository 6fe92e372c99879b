package quest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/lumigames/petrealm/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recurring cycle lengths. Boundaries are aligned to the Unix epoch in
// UTC, not to the time of the last reset.
const (
	dailyCycle  = 24 * time.Hour
	weeklyCycle = 7 * 24 * time.Hour
)

const lockStripes = 64

// Records owns the per-(account, quest) mutable state and its transitions.
// Mutation of a record is serialized through a striped mutex so concurrent
// actions cannot double-increment or race past the target.
type Records struct {
	db      *gorm.DB
	catalog *Catalog
	locks   [lockStripes]sync.Mutex
	logger  *zap.Logger
}

// NewRecords creates a Records manager.
func NewRecords(db *gorm.DB, catalog *Catalog, logger *zap.Logger) *Records {
	return &Records{db: db, catalog: catalog, logger: logger}
}

func (m *Records) lock(accountID int64, questID string) *sync.Mutex {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d/%s", accountID, questID)
	return &m.locks[h.Sum32()%lockStripes]
}

// GetOrCreate returns the record for (accountID, questID), creating it in
// the active state on first access. Safe under concurrent first access:
// the unique (account, quest) index backs up the in-process lock.
func (m *Records) GetOrCreate(ctx context.Context, accountID int64, questID string) (*model.UserQuest, error) {
	mu := m.lock(accountID, questID)
	mu.Lock()
	defer mu.Unlock()

	rec := &model.UserQuest{
		AccountID:  accountID,
		QuestID:    questID,
		Status:     model.QuestActive,
		Progress:   0,
		CycleStart: time.Now().UTC(),
	}
	err := m.db.WithContext(ctx).
		Where("account_id = ? AND quest_id = ?", accountID, questID).
		FirstOrCreate(rec).Error
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the record for (accountID, questID) or ErrNotFound.
func (m *Records) Get(ctx context.Context, accountID int64, questID string) (*model.UserQuest, error) {
	var rec model.UserQuest
	err := m.db.WithContext(ctx).
		Where("account_id = ? AND quest_id = ?", accountID, questID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByAccount returns all records for an account.
func (m *Records) ListByAccount(ctx context.Context, accountID int64) ([]model.UserQuest, error) {
	var recs []model.UserQuest
	err := m.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&recs).Error
	return recs, err
}

// ApplyAction runs the evaluator over every active record of accountID
// whose quest requirement matches the action, persists new progress,
// appends an activity entry, and flips active → completed when the target
// is reached. Returns the records that changed.
func (m *Records) ApplyAction(ctx context.Context, accountID int64, action string, payload ActionPayload) ([]*model.UserQuest, error) {
	var active []model.UserQuest
	err := m.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, model.QuestActive).
		Find(&active).Error
	if err != nil {
		return nil, err
	}

	var changed []*model.UserQuest
	for i := range active {
		questID := active[i].QuestID
		def, err := m.catalog.Get(ctx, questID)
		if err != nil {
			m.logger.Warn("record references unknown quest",
				zap.String("quest_id", questID), zap.Error(err))
			continue
		}
		req, err := DecodeRequirement(def)
		if err != nil || req.Action != action {
			continue
		}

		mu := m.lock(accountID, questID)
		mu.Lock()
		rec, err := m.applyToRecord(ctx, accountID, questID, req, action, payload)
		mu.Unlock()
		if err != nil {
			return changed, err
		}
		if rec != nil {
			changed = append(changed, rec)
		}
	}
	return changed, nil
}

// applyToRecord re-reads the record under its lock and applies one action.
// Returns nil if nothing changed.
func (m *Records) applyToRecord(ctx context.Context, accountID int64, questID string, req Requirement, action string, payload ActionPayload) (*model.UserQuest, error) {
	var rec model.UserQuest
	err := m.db.WithContext(ctx).
		Where("account_id = ? AND quest_id = ?", accountID, questID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.Status != model.QuestActive {
		return nil, nil
	}

	newProgress := Evaluate(req, rec.Progress, action, payload)
	if newProgress == rec.Progress {
		return nil, nil
	}

	now := time.Now().UTC()
	log := decodeActivityLog(rec.ActivityLog)
	log = append(log, ActivityEntry{
		Action:         action,
		ProgressBefore: rec.Progress,
		ProgressAfter:  newProgress,
		At:             now,
	})
	logJSON, _ := json.Marshal(log)

	updates := map[string]interface{}{
		"progress":     newProgress,
		"activity_log": datatypes.JSON(logJSON),
	}
	if newProgress >= req.Target {
		updates["status"] = model.QuestCompleted
		updates["completed_at"] = now
	}
	if err := m.db.WithContext(ctx).Model(&rec).Updates(updates).Error; err != nil {
		return nil, err
	}
	rec.Progress = newProgress
	rec.ActivityLog = datatypes.JSON(logJSON)
	if newProgress >= req.Target {
		rec.Status = model.QuestCompleted
		rec.CompletedAt = &now
	}
	return &rec, nil
}

// MarkClaimed transitions completed → claimed. The conditional UPDATE is
// the at-most-once serialization point: a second concurrent claim sees
// zero affected rows and gets ErrAlreadyClaimed.
func (m *Records) MarkClaimed(ctx context.Context, recordID int64) error {
	res := m.db.WithContext(ctx).Model(&model.UserQuest{}).
		Where("id = ? AND status = ?", recordID, model.QuestCompleted).
		Updates(map[string]interface{}{
			"status":     model.QuestClaimed,
			"claimed_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

// StoreClaimResult snapshots the realized rewards onto the record.
func (m *Records) StoreClaimResult(ctx context.Context, recordID int64, result interface{}) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return m.db.WithContext(ctx).Model(&model.UserQuest{}).
		Where("id = ?", recordID).
		Update("rewards_claimed", datatypes.JSON(raw)).Error
}

// CanReset reports whether a record of the given quest type is past the
// calendar boundary following its cycle anchor. Only daily and weekly
// quests recur.
func CanReset(questType string, cycleStart, now time.Time) bool {
	var period time.Duration
	switch questType {
	case model.QuestTypeDaily:
		period = dailyCycle
	case model.QuestTypeWeekly:
		period = weeklyCycle
	default:
		return false
	}
	return cycleIndex(now, period) > cycleIndex(cycleStart, period)
}

// cycleIndex numbers calendar windows from the Unix epoch in UTC, so the
// boundary is inclusive at exactly the cycle length.
func cycleIndex(t time.Time, period time.Duration) int64 {
	return t.UTC().Unix() / int64(period/time.Second)
}

// Reset returns a daily/weekly record to the active zero-progress state
// with a fresh cycle anchor. Prior claimed/active state does not matter:
// an uncompleted record is reset the same way, progress is not carried
// over. Fails with ErrInvalidState when the boundary has not been crossed
// or the quest type does not recur.
func (m *Records) Reset(ctx context.Context, rec *model.UserQuest, questType string) error {
	now := time.Now().UTC()
	if !CanReset(questType, rec.CycleStart, now) {
		return ErrInvalidState
	}

	mu := m.lock(rec.AccountID, rec.QuestID)
	mu.Lock()
	defer mu.Unlock()

	log := decodeActivityLog(rec.ActivityLog)
	log = append(log, ActivityEntry{
		Action:         "quest_reset",
		ProgressBefore: rec.Progress,
		ProgressAfter:  0,
		At:             now,
	})
	logJSON, _ := json.Marshal(log)

	return m.db.WithContext(ctx).Model(rec).Updates(map[string]interface{}{
		"status":          model.QuestActive,
		"progress":        0,
		"cycle_start":     now,
		"completed_at":    nil,
		"claimed_at":      nil,
		"rewards_claimed": nil,
		"activity_log":    datatypes.JSON(logJSON),
	}).Error
}

func decodeActivityLog(raw datatypes.JSON) []ActivityEntry {
	if len(raw) == 0 {
		return nil
	}
	var log []ActivityEntry
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil
	}
	return log
}

// LastActivity returns the most recent activity entry, if any.
func LastActivity(rec *model.UserQuest) (ActivityEntry, bool) {
	log := decodeActivityLog(rec.ActivityLog)
	if len(log) == 0 {
		return ActivityEntry{}, false
	}
	return log[len(log)-1], true
}
