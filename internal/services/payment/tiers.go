package payment

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/galihcitta/confras/internal/models"
)

// TierSpec is one configured plan tier with amounts as decimal strings.
type TierSpec struct {
	Plan       string
	Price      string
	MinAmount  string
	GuestLimit int
}

type Tier struct {
	Plan       models.Plan
	Price      decimal.Decimal
	MinAmount  decimal.Decimal
	GuestLimit int
}

// Tiers maps paid amounts to plans.
type Tiers struct {
	tiers          []Tier
	freeGuestLimit int
}

func NewTiers(specs []TierSpec, freeGuestLimit int) (*Tiers, error) {
	tiers := make([]Tier, 0, len(specs))
	for _, spec := range specs {
		price, err := decimal.NewFromString(spec.Price)
		if err != nil {
			return nil, fmt.Errorf("tier %s: invalid price %q: %w", spec.Plan, spec.Price, err)
		}
		minAmount := price
		if spec.MinAmount != "" {
			if minAmount, err = decimal.NewFromString(spec.MinAmount); err != nil {
				return nil, fmt.Errorf("tier %s: invalid min_amount %q: %w", spec.Plan, spec.MinAmount, err)
			}
		}
		if spec.Plan == "" || spec.GuestLimit <= 0 {
			return nil, fmt.Errorf("tier %q: plan and a positive guest_limit are required", spec.Plan)
		}
		tiers = append(tiers, Tier{
			Plan:       models.Plan(spec.Plan),
			Price:      price,
			MinAmount:  minAmount,
			GuestLimit: spec.GuestLimit,
		})
	}

	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MinAmount.LessThan(tiers[j].MinAmount)
	})

	return &Tiers{tiers: tiers, freeGuestLimit: freeGuestLimit}, nil
}

// ForAmount returns the highest tier whose minimum the amount reaches.
func (t *Tiers) ForAmount(amount decimal.Decimal) (Tier, bool) {
	var match Tier
	found := false
	for _, tier := range t.tiers {
		if amount.GreaterThanOrEqual(tier.MinAmount) {
			match, found = tier, true
		}
	}
	return match, found
}

func (t *Tiers) ByPlan(plan models.Plan) (Tier, bool) {
	for _, tier := range t.tiers {
		if tier.Plan == plan {
			return tier, true
		}
	}
	return Tier{}, false
}

func (t *Tiers) FreeGuestLimit() int {
	return t.freeGuestLimit
}

// IsPaid reports whether plan needs a checkout.
func (t *Tiers) IsPaid(plan models.Plan) bool {
	_, ok := t.ByPlan(plan)
	return ok
}

// All returns the paid tiers ordered by minimum amount.
func (t *Tiers) All() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}
