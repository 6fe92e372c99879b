package item

import (
	"context"
	"errors"

	"github.com/lumigames/petrealm/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxStackSize = 999

// InventoryService handles item grants into account inventories.
type InventoryService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(db *gorm.DB, logger *zap.Logger) *InventoryService {
	return &InventoryService{db: db, logger: logger}
}

// GrantItem adds qty of itemID to accountID's inventory, stacking onto an
// existing slot when possible.
func (svc *InventoryService) GrantItem(ctx context.Context, accountID int64, itemID string, qty int) error {
	if qty <= 0 {
		return errors.New("item: quantity must be positive")
	}
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Inventory
		err := tx.Where("account_id = ? AND item_id = ?", accountID, itemID).
			First(&existing).Error
		if err == nil {
			newQty := existing.Qty + qty
			if newQty > maxStackSize {
				return errors.New("item: stack full")
			}
			return tx.Model(&existing).Update("qty", newQty).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		inv := &model.Inventory{AccountID: accountID, ItemID: itemID, Qty: qty}
		return tx.Create(inv).Error
	})
}

// List returns all inventory rows for accountID.
func (svc *InventoryService) List(ctx context.Context, accountID int64) ([]model.Inventory, error) {
	var items []model.Inventory
	err := svc.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&items).Error
	return items, err
}
