package model

import (
	"time"

	"gorm.io/datatypes"
)

// Quest lifecycle states for a user quest record.
const (
	QuestActive    = "active"
	QuestCompleted = "completed"
	QuestClaimed   = "claimed"
	QuestFailed    = "failed"
)

// Quest template types.
const (
	QuestTypeTutorial    = "tutorial"
	QuestTypeStory       = "story"
	QuestTypeDaily       = "daily"
	QuestTypeWeekly      = "weekly"
	QuestTypeAchievement = "achievement"
	QuestTypeEvent       = "event"
)

// QuestDefinition is an admin-managed quest template. It is never mutated
// by play; user state lives in UserQuest.
type QuestDefinition struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	QuestID     string         `gorm:"uniqueIndex;size:64;not null" json:"quest_id"`
	Name        string         `gorm:"size:128;not null" json:"name"`
	Description string         `gorm:"size:512" json:"description"`
	Type        string         `gorm:"size:16;index;not null" json:"type"`
	Category    string         `gorm:"size:64;index" json:"category"`
	Difficulty  string         `gorm:"size:16" json:"difficulty"`
	SortOrder   int            `gorm:"default:0" json:"sort_order"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	Requirement datatypes.JSON `json:"requirement"` // quest.Requirement
	Rewards     datatypes.JSON `json:"rewards"`     // reward.Table
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserQuest tracks one account's progress on one quest definition.
// Exactly one row exists per (account, quest) pair.
type UserQuest struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID      int64          `gorm:"uniqueIndex:idx_account_quest;not null" json:"account_id"`
	QuestID        string         `gorm:"uniqueIndex:idx_account_quest;size:64;not null" json:"quest_id"`
	Status         string         `gorm:"size:16;index;default:active" json:"status"`
	Progress       int            `gorm:"default:0" json:"progress"`
	RewardsClaimed datatypes.JSON `json:"rewards_claimed"` // reward.Result snapshot
	ActivityLog    datatypes.JSON `json:"activity_log"`    // []quest.ActivityEntry, append-only
	CycleStart     time.Time      `json:"cycle_start"`     // start of the current daily/weekly window
	CompletedAt    *time.Time     `json:"completed_at"`
	ClaimedAt      *time.Time     `json:"claimed_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
