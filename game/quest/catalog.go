package quest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lumigames/petrealm/server/cache"
	"github.com/lumigames/petrealm/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defCachePrefix = "questdef:"

// Catalog is the quest definition store: DB-backed with a read-through
// cache in front of single-definition lookups.
type Catalog struct {
	db     *gorm.DB
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalog creates a Catalog. ttl bounds staleness of cached definitions.
func NewCatalog(db *gorm.DB, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Catalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Catalog{db: db, cache: c, ttl: ttl, logger: logger}
}

// Get returns the definition for questID, consulting the cache first.
func (c *Catalog) Get(ctx context.Context, questID string) (*model.QuestDefinition, error) {
	if cached, err := c.cache.Get(ctx, defCachePrefix+questID); err == nil {
		var def model.QuestDefinition
		if err := json.Unmarshal([]byte(cached), &def); err == nil {
			return &def, nil
		}
		// Unreadable cache entry: fall through to the DB.
		_ = c.cache.Del(ctx, defCachePrefix+questID)
	}

	var def model.QuestDefinition
	err := c.db.WithContext(ctx).Where("quest_id = ?", questID).First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(&def); err == nil {
		if err := c.cache.Set(ctx, defCachePrefix+questID, string(raw), c.ttl); err != nil {
			c.logger.Warn("definition cache set failed", zap.Error(err))
		}
	}
	return &def, nil
}

// ListActive returns all offerable definitions, optionally filtered by type.
func (c *Catalog) ListActive(ctx context.Context, types ...string) ([]model.QuestDefinition, error) {
	q := c.db.WithContext(ctx).Where("is_active = ?", true)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	var defs []model.QuestDefinition
	if err := q.Order("sort_order ASC").Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}

// Create inserts a new definition. QuestID must be unique.
func (c *Catalog) Create(ctx context.Context, def *model.QuestDefinition) error {
	return c.db.WithContext(ctx).Create(def).Error
}

// Update modifies an existing definition and invalidates its cache entry.
func (c *Catalog) Update(ctx context.Context, questID string, updates map[string]interface{}) error {
	res := c.db.WithContext(ctx).Model(&model.QuestDefinition{}).
		Where("quest_id = ?", questID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return c.cache.Del(ctx, defCachePrefix+questID)
}

// Delete removes a definition and cascades to every user record that
// references it, so no orphaned record survives.
func (c *Catalog) Delete(ctx context.Context, questID string) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("quest_id = ?", questID).Delete(&model.QuestDefinition{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("quest_id = ?", questID).Delete(&model.UserQuest{}).Error
	})
	if err != nil {
		return err
	}
	return c.cache.Del(ctx, defCachePrefix+questID)
}

// Requirement decodes a definition's requirement block.
func DecodeRequirement(def *model.QuestDefinition) (Requirement, error) {
	var req Requirement
	if len(def.Requirement) == 0 {
		return req, nil
	}
	err := json.Unmarshal(def.Requirement, &req)
	return req, err
}
