package model

import "time"

// Inventory represents a single item stack owned by an account.
type Inventory struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"index:idx_account_inventory;not null" json:"account_id"`
	ItemID    string    `gorm:"size:64;not null" json:"item_id"`
	Qty       int       `gorm:"default:1" json:"qty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
