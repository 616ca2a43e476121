package rank

import (
	"errors"
	"fmt"
)

// ErrInvalidBoundaries is returned when a boundary table cannot be used for promotion
var ErrInvalidBoundaries = errors.New("invalid rank boundaries")

// Boundaries maps each promotable tier to the minimum level required to hold it.
// E is the starting tier and never appears in the table.
type Boundaries map[Tier]int

// DefaultBoundaries returns the level thresholds used when no rules file overrides them
func DefaultBoundaries() Boundaries {
	return Boundaries{
		D: 5,
		C: 15,
		B: 30,
		A: 42,
		S: 48,
	}
}

// Validate checks that every tier above E has a positive, strictly increasing threshold
func (b Boundaries) Validate() error {
	if _, ok := b[E]; ok {
		return fmt.Errorf("%w: tier E cannot have a boundary", ErrInvalidBoundaries)
	}

	prev := 1
	for _, t := range All()[1:] {
		level, ok := b[t]
		if !ok {
			return fmt.Errorf("%w: missing boundary for tier %s", ErrInvalidBoundaries, t)
		}
		if level <= prev {
			return fmt.Errorf("%w: tier %s boundary %d must be greater than %d", ErrInvalidBoundaries, t, level, prev)
		}
		prev = level
	}

	for t := range b {
		if !t.Valid() {
			return &InvalidTierError{Tier: t}
		}
	}

	return nil
}

// MinLevel returns the level threshold for t. E is always 1.
func (b Boundaries) MinLevel(t Tier) (int, error) {
	if !t.Valid() {
		return 0, &InvalidTierError{Tier: t}
	}
	if t == E {
		return 1, nil
	}
	level, ok := b[t]
	if !ok {
		return 0, fmt.Errorf("%w: missing boundary for tier %s", ErrInvalidBoundaries, t)
	}
	return level, nil
}

// Clone returns a copy safe to modify
func (b Boundaries) Clone() Boundaries {
	out := make(Boundaries, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Info describes a tier for display and API listings
type Info struct {
	Tier       Tier   `json:"tier"`
	Order      int    `json:"order"`
	Multiplier string `json:"multiplier"`
	MinLevel   int    `json:"min_level"`
}

// Describe returns Info for every tier in ascending order
func (b Boundaries) Describe() []Info {
	out := make([]Info, 0, len(tiers))
	for i, t := range All() {
		minLevel, err := b.MinLevel(t)
		if err != nil {
			minLevel = 0
		}
		out = append(out, Info{
			Tier:       t,
			Order:      i,
			Multiplier: multipliers[t].String(),
			MinLevel:   minLevel,
		})
	}
	return out
}
