package model

import "time"

// Pet placement values.
const (
	PetPlacementReserve   = "reserve"
	PetPlacementFormation = "formation"
)

// Pet represents a pet owned by an account.
type Pet struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"index:idx_account_pet;not null" json:"account_id"`
	PetID     string    `gorm:"size:64;not null" json:"pet_id"`
	Level     int       `gorm:"default:1" json:"level"`
	Placement string    `gorm:"size:16;default:reserve" json:"placement"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
