package reward

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"
)

// Table is the reward block of a quest definition. Currency and exp are
// granted in full; each item/pet entry rolls independently against Chance.
type Table struct {
	Gold         int          `json:"gold,omitempty"`
	Diamonds     int          `json:"diamonds,omitempty"`
	StandardFate int          `json:"standard_fate,omitempty"`
	SpecialFate  int          `json:"special_fate,omitempty"`
	Exp          int          `json:"exp,omitempty"`
	Items        []ItemReward `json:"items,omitempty"`
	Pets         []PetReward  `json:"pets,omitempty"`
	Title        string       `json:"title,omitempty"`
	Avatar       string       `json:"avatar,omitempty"`
	Achievement  string       `json:"achievement,omitempty"`
}

// ItemReward is a probability-weighted item entry. Chance is a percentage
// in [0,100]; 100 always drops, 0 never does.
type ItemReward struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Chance   int    `json:"chance"`
}

// PetReward is a probability-weighted pet entry.
type PetReward struct {
	PetID  string `json:"pet_id"`
	Level  int    `json:"level"`
	Chance int    `json:"chance"`
}

// ItemGrant is an item that actually dropped.
type ItemGrant struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// PetGrant is a pet that actually dropped.
type PetGrant struct {
	PetID string `json:"pet_id"`
	Level int    `json:"level"`
}

// Result is the realized outcome of one claim. It is what gets stored on
// the user quest record, not the definition's potential table.
type Result struct {
	Gold         int         `json:"gold,omitempty"`
	Diamonds     int         `json:"diamonds,omitempty"`
	StandardFate int         `json:"standard_fate,omitempty"`
	SpecialFate  int         `json:"special_fate,omitempty"`
	Exp          int         `json:"exp,omitempty"`
	Items        []ItemGrant `json:"items,omitempty"`
	Pets         []PetGrant  `json:"pets,omitempty"`
	Title        string      `json:"title,omitempty"`
	Avatar       string      `json:"avatar,omitempty"`
	Achievement  string      `json:"achievement,omitempty"`
}

// CurrencyGrant is a bundle of balance increments.
type CurrencyGrant struct {
	Gold         int
	Diamonds     int
	StandardFate int
	SpecialFate  int
}

// Ledger grants currency and experience to an account.
type Ledger interface {
	GrantCurrency(ctx context.Context, accountID int64, grant CurrencyGrant) error
	AddExp(ctx context.Context, accountID int64, exp int) error
}

// ItemGranter adds items to an account's inventory.
type ItemGranter interface {
	GrantItem(ctx context.Context, accountID int64, itemID string, qty int) error
}

// PetGranter adds a pet to an account's collection.
type PetGranter interface {
	GrantPet(ctx context.Context, accountID int64, petID string, level int, placement string) error
}

// LevelSource reports an account's current level, for gating checks.
type LevelSource interface {
	Level(ctx context.Context, accountID int64) (int, error)
}

// Resolver rolls a reward table and invokes the grant collaborators.
// It reports what was granted; the balances themselves live elsewhere.
type Resolver struct {
	ledger Ledger
	items  ItemGranter
	pets   PetGranter
	roll   func(n int) int
	logger *zap.Logger
}

// NewResolver creates a Resolver using math/rand for chance rolls.
func NewResolver(ledger Ledger, items ItemGranter, pets PetGranter, logger *zap.Logger) *Resolver {
	return &Resolver{ledger: ledger, items: items, pets: pets, roll: rand.Intn, logger: logger}
}

// SetRollFunc replaces the RNG. Tests use this for deterministic draws.
func (r *Resolver) SetRollFunc(roll func(n int) int) {
	r.roll = roll
}

// Resolve rolls the table for accountID and grants everything that dropped.
// The Result is always returned; if one or more grant calls failed, the
// joined error is returned alongside it and the remaining grants still run.
func (r *Resolver) Resolve(ctx context.Context, accountID int64, table Table) (*Result, error) {
	result := &Result{
		Gold:         table.Gold,
		Diamonds:     table.Diamonds,
		StandardFate: table.StandardFate,
		SpecialFate:  table.SpecialFate,
		Exp:          table.Exp,
		Title:        table.Title,
		Avatar:       table.Avatar,
		Achievement:  table.Achievement,
	}

	for _, it := range table.Items {
		if it.Chance <= 0 {
			continue
		}
		if it.Chance >= 100 || r.roll(100) < it.Chance {
			result.Items = append(result.Items, ItemGrant{ItemID: it.ItemID, Quantity: it.Quantity})
		}
	}
	for _, p := range table.Pets {
		if p.Chance <= 0 {
			continue
		}
		if p.Chance >= 100 || r.roll(100) < p.Chance {
			result.Pets = append(result.Pets, PetGrant{PetID: p.PetID, Level: p.Level})
		}
	}

	var grantErrs []error

	currency := CurrencyGrant{
		Gold:         result.Gold,
		Diamonds:     result.Diamonds,
		StandardFate: result.StandardFate,
		SpecialFate:  result.SpecialFate,
	}
	if currency != (CurrencyGrant{}) {
		if err := r.ledger.GrantCurrency(ctx, accountID, currency); err != nil {
			grantErrs = append(grantErrs, fmt.Errorf("grant currency: %w", err))
		}
	}
	if result.Exp > 0 {
		if err := r.ledger.AddExp(ctx, accountID, result.Exp); err != nil {
			grantErrs = append(grantErrs, fmt.Errorf("grant exp: %w", err))
		}
	}
	for _, g := range result.Items {
		if err := r.items.GrantItem(ctx, accountID, g.ItemID, g.Quantity); err != nil {
			grantErrs = append(grantErrs, fmt.Errorf("grant item %s: %w", g.ItemID, err))
		}
	}
	for _, g := range result.Pets {
		if err := r.pets.GrantPet(ctx, accountID, g.PetID, g.Level, ""); err != nil {
			grantErrs = append(grantErrs, fmt.Errorf("grant pet %s: %w", g.PetID, err))
		}
	}

	if len(grantErrs) > 0 {
		r.logger.Error("reward grants degraded",
			zap.Int64("account_id", accountID),
			zap.Int("failed", len(grantErrs)))
		return result, errors.Join(grantErrs...)
	}
	return result, nil
}
