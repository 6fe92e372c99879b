package pet

import (
	"context"
	"errors"

	"github.com/lumigames/petrealm/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service handles pet grants into account collections.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a new pet Service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// GrantPet adds a pet to accountID's collection. An empty placement puts
// the pet in the reserve.
func (svc *Service) GrantPet(ctx context.Context, accountID int64, petID string, level int, placement string) error {
	if petID == "" {
		return errors.New("pet: missing pet id")
	}
	if level <= 0 {
		level = 1
	}
	if placement == "" {
		placement = model.PetPlacementReserve
	}
	p := &model.Pet{
		AccountID: accountID,
		PetID:     petID,
		Level:     level,
		Placement: placement,
	}
	if err := svc.db.WithContext(ctx).Create(p).Error; err != nil {
		return err
	}
	svc.logger.Info("pet granted",
		zap.Int64("account_id", accountID),
		zap.String("pet_id", petID),
		zap.Int("level", level))
	return nil
}

// List returns all pets owned by accountID.
func (svc *Service) List(ctx context.Context, accountID int64) ([]model.Pet, error) {
	var pets []model.Pet
	err := svc.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&pets).Error
	return pets, err
}
