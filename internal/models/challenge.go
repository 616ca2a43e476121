package models

import (
	"time"

	"github.com/terra-clan/progression-engine/internal/challenge"
)

// ChallengeStatus is the lifecycle state of a challenge
type ChallengeStatus string

const (
	ChallengeOpen      ChallengeStatus = "open"      // accepting entries and results
	ChallengeSettling  ChallengeStatus = "settling"  // claimed by a settler
	ChallengeSettled   ChallengeStatus = "settled"   // outcomes written
	ChallengeCancelled ChallengeStatus = "cancelled" // closed without settlement
)

// IsTerminal returns true if the challenge can no longer change
func (s ChallengeStatus) IsTerminal() bool {
	return s == ChallengeSettled || s == ChallengeCancelled
}

// Challenge categories
const (
	CategoryDaily   = "daily"
	CategoryWeekly  = "weekly"
	CategoryMonthly = "monthly"
	CategorySpecial = "special"
)

// Challenge is a wagered goal that participants race to reach before EndsAt
type Challenge struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description,omitempty"`
	Category         string           `json:"category"`
	Difficulty       string           `json:"difficulty,omitempty"`
	TargetValue      float64          `json:"target_value"`
	Unit             string           `json:"unit,omitempty"`
	Stake            int              `json:"stake"`
	RewardExperience int              `json:"reward_experience"`
	Status           ChallengeStatus  `json:"status"`
	CreatedBy        string           `json:"created_by,omitempty"`
	EndsAt           time.Time        `json:"ends_at"`
	CreatedAt        time.Time        `json:"created_at"`
	SettledAt        *time.Time       `json:"settled_at,omitempty"`
	Entries          []ChallengeEntry `json:"entries,omitempty"`
}

// IsExpired reports whether the challenge window has closed
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.EndsAt)
}

// Participants converts entries to settlement input
func (c *Challenge) Participants() []challenge.Participant {
	out := make([]challenge.Participant, 0, len(c.Entries))
	for _, e := range c.Entries {
		out = append(out, challenge.Participant{ID: e.UserID, AchievedValue: e.AchievedValue})
	}
	return out
}

// Entry returns the entry for userID, if any
func (c *Challenge) Entry(userID string) *ChallengeEntry {
	for i := range c.Entries {
		if c.Entries[i].UserID == userID {
			return &c.Entries[i]
		}
	}
	return nil
}

// ChallengeEntry is one participant's stake and reported result
type ChallengeEntry struct {
	ChallengeID   string     `json:"challenge_id"`
	UserID        string     `json:"user_id"`
	AchievedValue float64    `json:"achieved_value"`
	JoinedAt      time.Time  `json:"joined_at"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
}

// SettlementRecord is the persisted outcome for one participant. CoinDelta
// is the net change against the balance before joining; the stake held at
// join is already part of it.
type SettlementRecord struct {
	ChallengeID     string    `json:"challenge_id"`
	UserID          string    `json:"user_id"`
	Won             bool      `json:"won"`
	Place           int       `json:"place,omitempty"`
	CoinDelta       int       `json:"coin_delta"`
	ExperienceAward int       `json:"experience_award"`
	CoinsAfter      int       `json:"coins_after"`
	ExperienceAfter int       `json:"experience_after"`
	SettledAt       time.Time `json:"settled_at"`
}

// ChallengeSettlement is the full result of settling a challenge
type ChallengeSettlement struct {
	Challenge *Challenge         `json:"challenge"`
	Records   []SettlementRecord `json:"records"`
}
