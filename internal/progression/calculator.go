package progression

import (
	"errors"
	"fmt"
	"math"

	"github.com/terra-clan/progression-engine/internal/rank"
)

var (
	// ErrInvalidAward is returned for a negative experience award or a malformed state
	ErrInvalidAward = errors.New("invalid award")
	// ErrProgressionOverflow is returned when one award would resolve more level-ups than allowed
	ErrProgressionOverflow = errors.New("progression overflow")
)

// DefaultMaxLevelUps bounds the level-up loop of a single award
const DefaultMaxLevelUps = 1000

// EventKind identifies a progression event
type EventKind string

const (
	EventLevelUp EventKind = "level_up"
	EventRankUp  EventKind = "rank_up"
)

// Event is emitted for every level gained and for a rank promotion
type Event struct {
	Kind     EventKind `json:"kind"`
	OldLevel int       `json:"old_level,omitempty"`
	NewLevel int       `json:"new_level,omitempty"`
	OldRank  rank.Tier `json:"old_rank,omitempty"`
	NewRank  rank.Tier `json:"new_rank,omitempty"`
}

// WorkoutCompletion is the reward for finishing a workout
type WorkoutCompletion struct {
	ExperienceAward int `json:"experience_award"`
	CoinAward       int `json:"coin_award"`
}

// DefaultWorkoutCompletion is granted when a workout carries no explicit reward
var DefaultWorkoutCompletion = WorkoutCompletion{ExperienceAward: 50, CoinAward: 25}

// Calculator applies awards using a fixed promotion table
type Calculator struct {
	boundaries  rank.Boundaries
	maxLevelUps int
}

// Option configures a Calculator
type Option func(*Calculator)

// WithMaxLevelUps overrides the level-up loop bound
func WithMaxLevelUps(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.maxLevelUps = n
		}
	}
}

// NewCalculator validates the promotion table and builds a Calculator
func NewCalculator(boundaries rank.Boundaries, opts ...Option) (*Calculator, error) {
	if boundaries == nil {
		boundaries = rank.DefaultBoundaries()
	}
	if err := boundaries.Validate(); err != nil {
		return nil, err
	}

	c := &Calculator{
		boundaries:  boundaries.Clone(),
		maxLevelUps: DefaultMaxLevelUps,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Boundaries returns a copy of the promotion table
func (c *Calculator) Boundaries() rank.Boundaries {
	return c.boundaries.Clone()
}

// ApplyAward adds experience and coins to state and resolves level-ups and
// at most one rank promotion. Experience is a running total: it is never
// reduced when a level is gained. Level-up events precede the rank-up event.
func (c *Calculator) ApplyAward(state State, experienceAward, coinAward int) (State, []Event, error) {
	if experienceAward < 0 {
		return State{}, nil, fmt.Errorf("%w: experience award %d must be >= 0", ErrInvalidAward, experienceAward)
	}
	if err := state.Validate(); err != nil {
		return State{}, nil, err
	}

	if experienceAward > math.MaxInt-state.Experience {
		return State{}, nil, fmt.Errorf("%w: experience %d + %d overflows", ErrProgressionOverflow, state.Experience, experienceAward)
	}
	if coinAward > 0 && coinAward > math.MaxInt-state.Coins {
		return State{}, nil, fmt.Errorf("%w: coins %d + %d overflows", ErrProgressionOverflow, state.Coins, coinAward)
	}

	next := state
	next.Experience = state.Experience + experienceAward
	next.Coins = state.Coins + coinAward
	if next.Coins < 0 {
		next.Coins = 0
	}

	var events []Event
	for iterations := 0; next.Experience >= RequiredForLevel(next.Level); iterations++ {
		if iterations >= c.maxLevelUps {
			return State{}, nil, fmt.Errorf("%w: more than %d level-ups from level %d", ErrProgressionOverflow, c.maxLevelUps, state.Level)
		}
		events = append(events, Event{
			Kind:     EventLevelUp,
			OldLevel: next.Level,
			NewLevel: next.Level + 1,
		})
		next.Level++
	}

	promoted, err := c.promote(next)
	if err != nil {
		return State{}, nil, err
	}
	if promoted.Rank != next.Rank {
		events = append(events, Event{
			Kind:    EventRankUp,
			OldRank: next.Rank,
			NewRank: promoted.Rank,
		})
	}

	return promoted, events, nil
}

// ApplyWorkoutCompletion applies the reward of a finished workout
func (c *Calculator) ApplyWorkoutCompletion(state State, completion WorkoutCompletion) (State, []Event, error) {
	return c.ApplyAward(state, completion.ExperienceAward, completion.CoinAward)
}

// promote moves the state up one tier when its level has reached the next boundary
func (c *Calculator) promote(s State) (State, error) {
	next, ok, err := rank.NextTier(s.Rank)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return s, nil
	}

	minLevel, err := c.boundaries.MinLevel(next)
	if err != nil {
		return State{}, err
	}
	if s.Level >= minLevel {
		s.Rank = next
	}
	return s, nil
}

// LevelUps counts the level-up events in events
func LevelUps(events []Event) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == EventLevelUp {
			n++
		}
	}
	return n
}

// RankUp returns the rank-up event if one is present
func RankUp(events []Event) (Event, bool) {
	for _, ev := range events {
		if ev.Kind == EventRankUp {
			return ev, true
		}
	}
	return Event{}, false
}
