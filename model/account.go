package model

import "time"

// Account represents a player account. It doubles as the currency ledger:
// all grantable balances live directly on the row.
type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string     `gorm:"size:128;not null" json:"-"`
	Level        int        `gorm:"default:1" json:"level"`
	Exp          int64      `gorm:"default:0" json:"exp"`
	Gold         int64      `gorm:"default:0" json:"gold"`
	Diamonds     int64      `gorm:"default:0" json:"diamonds"`
	StandardFate int64      `gorm:"default:0" json:"standard_fate"`
	SpecialFate  int64      `gorm:"default:0" json:"special_fate"`
	Status       int        `gorm:"default:1" json:"status"` // 0=banned 1=active
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
