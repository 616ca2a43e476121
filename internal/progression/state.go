// Package progression folds experience and coin awards into a user's
// progression snapshot, resolving level-ups and rank promotions.
//
// Every function here is pure: callers pass a State value in and receive a
// new State plus the events it produced. Persisting the result, and making
// that write atomic against concurrent updates, is the caller's job.
package progression

import (
	"fmt"
	"time"

	"github.com/terra-clan/progression-engine/internal/rank"
)

// ExperiencePerLevel is the per-level factor of the experience requirement
const ExperiencePerLevel = 100

// State is a snapshot of a user's progression
type State struct {
	Level      int       `json:"level"`
	Experience int       `json:"experience"`
	Rank       rank.Tier `json:"rank"`
	Coins      int       `json:"coins"`
	StreakDays int       `json:"streak_days"`
}

// NewState returns the snapshot every new profile starts from
func NewState(startingCoins int) State {
	return State{
		Level: 1,
		Rank:  rank.E,
		Coins: startingCoins,
	}
}

// Validate checks the snapshot invariants
func (s State) Validate() error {
	if s.Level < 1 {
		return fmt.Errorf("%w: level %d must be >= 1", ErrInvalidAward, s.Level)
	}
	if s.Experience < 0 {
		return fmt.Errorf("%w: experience %d must be >= 0", ErrInvalidAward, s.Experience)
	}
	if s.Coins < 0 {
		return fmt.Errorf("%w: coins %d must be >= 0", ErrInvalidAward, s.Coins)
	}
	if s.StreakDays < 0 {
		return fmt.Errorf("%w: streak %d must be >= 0", ErrInvalidAward, s.StreakDays)
	}
	if !s.Rank.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidAward, &rank.InvalidTierError{Tier: s.Rank})
	}
	return nil
}

// RequiredForLevel returns the cumulative experience needed to leave level
func RequiredForLevel(level int) int {
	return level * ExperiencePerLevel
}

// Snapshot is the progress-bar view of a State
type Snapshot struct {
	Level      int       `json:"level"`
	Rank       rank.Tier `json:"rank"`
	Experience int       `json:"experience"`
	Required   int       `json:"required"`
	Percent    float64   `json:"percent"`
}

// Progress reports how far the state is toward its next level, capped at 100%
func Progress(s State) Snapshot {
	required := RequiredForLevel(s.Level)
	pct := 0.0
	if required > 0 {
		pct = float64(s.Experience) / float64(required) * 100
	}
	if pct > 100 {
		pct = 100
	}
	return Snapshot{
		Level:      s.Level,
		Rank:       s.Rank,
		Experience: s.Experience,
		Required:   required,
		Percent:    pct,
	}
}

// AdvanceStreak records an activity at now given the previous activity time.
// Same calendar day keeps the streak, the following day extends it, and any
// longer gap restarts it at one. Days are compared in now's location.
func AdvanceStreak(s State, lastActive, now time.Time) State {
	next := s
	if lastActive.IsZero() {
		next.StreakDays = 1
		return next
	}

	loc := now.Location()
	last := truncateDay(lastActive.In(loc))
	today := truncateDay(now)

	switch {
	case last.Equal(today):
		if next.StreakDays == 0 {
			next.StreakDays = 1
		}
	case last.AddDate(0, 0, 1).Equal(today):
		next.StreakDays++
	case last.After(today):
		// clock skew between devices; leave the streak alone
	default:
		next.StreakDays = 1
	}
	return next
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
