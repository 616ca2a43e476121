package models

import (
	"time"

	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/rank"
)

// Profile is a user's persisted progression record.
// Version increases by one on every successful write and guards
// compare-and-set updates.
type Profile struct {
	UserID            string     `json:"user_id" firestore:"user_id"`
	Username          string     `json:"username" firestore:"username"`
	Level             int        `json:"level" firestore:"level"`
	Experience        int        `json:"experience" firestore:"experience"`
	Rank              rank.Tier  `json:"rank" firestore:"rank"`
	Coins             int        `json:"coins" firestore:"coins"`
	StreakDays        int        `json:"streak_days" firestore:"streak_days"`
	WorkoutsCompleted int        `json:"workouts_completed" firestore:"workouts_completed"`
	LastActiveAt      *time.Time `json:"last_active_at,omitempty" firestore:"last_active_at"`
	Version           int64      `json:"version" firestore:"version"`
	CreatedAt         time.Time  `json:"created_at" firestore:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" firestore:"updated_at"`
}

// NewProfile returns a profile at the starting progression state
func NewProfile(userID, username string, startingCoins int, now time.Time) *Profile {
	p := &Profile{
		UserID:    userID,
		Username:  username,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.SetState(progression.NewState(startingCoins))
	return p
}

// State extracts the engine snapshot
func (p *Profile) State() progression.State {
	return progression.State{
		Level:      p.Level,
		Experience: p.Experience,
		Rank:       p.Rank,
		Coins:      p.Coins,
		StreakDays: p.StreakDays,
	}
}

// SetState copies an engine snapshot into the profile
func (p *Profile) SetState(s progression.State) {
	p.Level = s.Level
	p.Experience = s.Experience
	p.Rank = s.Rank
	p.Coins = s.Coins
	p.StreakDays = s.StreakDays
}

// LastActive returns the last activity time or the zero time
func (p *Profile) LastActive() time.Time {
	if p.LastActiveAt == nil {
		return time.Time{}
	}
	return *p.LastActiveAt
}

// Clone returns a deep copy
func (p *Profile) Clone() *Profile {
	cp := *p
	if p.LastActiveAt != nil {
		t := *p.LastActiveAt
		cp.LastActiveAt = &t
	}
	return &cp
}

// LeaderboardEntry is one row of the experience leaderboard
type LeaderboardEntry struct {
	Position   int       `json:"position"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	Experience int       `json:"experience"`
	Level      int       `json:"level,omitempty"`
	Rank       rank.Tier `json:"rank,omitempty"`
}
