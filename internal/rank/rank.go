package rank

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidTier is returned for any value outside the closed tier set
var ErrInvalidTier = errors.New("invalid rank tier")

// InvalidTierError carries the offending tier value
type InvalidTierError struct {
	Tier Tier
}

func (e *InvalidTierError) Error() string {
	return fmt.Sprintf("invalid rank tier %q", string(e.Tier))
}

// Unwrap lets errors.Is match ErrInvalidTier
func (e *InvalidTierError) Unwrap() error {
	return ErrInvalidTier
}

// Tier is one of the six ordered skill bands, weakest first
type Tier string

const (
	E Tier = "E"
	D Tier = "D"
	C Tier = "C"
	B Tier = "B"
	A Tier = "A"
	S Tier = "S"
)

// tiers is ordered weakest to strongest; the index is the tier order
var tiers = []Tier{E, D, C, B, A, S}

var multipliers = map[Tier]decimal.Decimal{
	E: decimal.NewFromInt(1),
	D: decimal.RequireFromString("1.5"),
	C: decimal.NewFromInt(2),
	B: decimal.RequireFromString("2.5"),
	A: decimal.NewFromInt(3),
	S: decimal.NewFromInt(4),
}

// All returns every tier in ascending order
func All() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// Valid reports whether t belongs to the tier enumeration
func (t Tier) Valid() bool {
	_, err := TierOrder(t)
	return err == nil
}

// String returns the tier label
func (t Tier) String() string {
	return string(t)
}

// ParseTier converts user or storage input into a Tier
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &InvalidTierError{Tier: Tier(s)}
	}
	return t, nil
}

// TierOrder returns 0..5 for E..S
func TierOrder(t Tier) (int, error) {
	for i, candidate := range tiers {
		if candidate == t {
			return i, nil
		}
	}
	return 0, &InvalidTierError{Tier: t}
}

// NextTier returns the tier after t. The boolean is false when t is S.
func NextTier(t Tier) (Tier, bool, error) {
	order, err := TierOrder(t)
	if err != nil {
		return "", false, err
	}
	if order == len(tiers)-1 {
		return "", false, nil
	}
	return tiers[order+1], true, nil
}

// RewardMultiplier returns the reward/target scale factor for a tier
func RewardMultiplier(t Tier) (decimal.Decimal, error) {
	m, ok := multipliers[t]
	if !ok {
		return decimal.Zero, &InvalidTierError{Tier: t}
	}
	return m, nil
}

// Scale multiplies base by the tier multiplier and floors the result
func Scale(base int, t Tier) (int, error) {
	m, err := RewardMultiplier(t)
	if err != nil {
		return 0, err
	}
	return int(decimal.NewFromInt(int64(base)).Mul(m).Floor().IntPart()), nil
}
