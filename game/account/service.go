package account

import (
	"context"
	"errors"

	"github.com/lumigames/petrealm/server/game/reward"
	"github.com/lumigames/petrealm/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned when the account does not exist.
var ErrNotFound = errors.New("account: not found")

// Service is the currency ledger and level source for an account.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a new account Service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// GrantCurrency atomically increments the account's balances.
func (svc *Service) GrantCurrency(ctx context.Context, accountID int64, grant reward.CurrencyGrant) error {
	updates := map[string]interface{}{}
	if grant.Gold != 0 {
		updates["gold"] = gorm.Expr("gold + ?", grant.Gold)
	}
	if grant.Diamonds != 0 {
		updates["diamonds"] = gorm.Expr("diamonds + ?", grant.Diamonds)
	}
	if grant.StandardFate != 0 {
		updates["standard_fate"] = gorm.Expr("standard_fate + ?", grant.StandardFate)
	}
	if grant.SpecialFate != 0 {
		updates["special_fate"] = gorm.Expr("special_fate + ?", grant.SpecialFate)
	}
	if len(updates) == 0 {
		return nil
	}
	res := svc.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", accountID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddExp adds experience and applies any level-ups it pays for.
func (svc *Service) AddExp(ctx context.Context, accountID int64, exp int) error {
	if exp <= 0 {
		return nil
	}
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc model.Account
		if err := tx.Where("id = ?", accountID).First(&acc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		acc.Exp += int64(exp)
		newLevel := acc.Level
		for acc.Exp >= int64(ExpNeeded(newLevel)) {
			newLevel++
		}
		updates := map[string]interface{}{"exp": acc.Exp}
		if newLevel != acc.Level {
			updates["level"] = newLevel
			svc.logger.Info("account leveled up",
				zap.Int64("account_id", accountID),
				zap.Int("level", newLevel))
		}
		return tx.Model(&acc).Updates(updates).Error
	})
}

// Level returns the account's current level.
func (svc *Service) Level(ctx context.Context, accountID int64) (int, error) {
	var acc model.Account
	err := svc.db.WithContext(ctx).Select("level").Where("id = ?", accountID).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return acc.Level, nil
}

// ExpNeeded returns the cumulative exp needed to reach the next level.
// Simple quadratic curve: each level costs a little more than the last.
func ExpNeeded(level int) int {
	if level <= 0 {
		return 30
	}
	return 30*level + 20*(level-1)*level/2
}
