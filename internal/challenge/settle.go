// Package challenge resolves wagered challenges into coin transfers.
//
// Participants who reach the target split the stakes forfeited by those who
// did not. When nobody qualifies no coins move. Settle is deterministic for a
// given input, but it keeps no record of what it has settled: making sure a
// challenge is settled only once is up to the caller.
package challenge

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrInvalidChallengeConfig is returned for a target, stake or participant list that cannot be settled
var ErrInvalidChallengeConfig = errors.New("invalid challenge config")

// Target is the value a participant must reach to qualify
type Target struct {
	Value float64 `json:"value"`
}

// Participant is one entrant and the value they achieved
type Participant struct {
	ID            string  `json:"id"`
	AchievedValue float64 `json:"achieved_value"`
}

// Outcome is a participant's result. Place is 1-based among qualifiers and
// zero for everyone else.
type Outcome struct {
	Won       bool `json:"won"`
	CoinDelta int  `json:"coin_delta"`
	Place     int  `json:"place,omitempty"`
}

// SettlementResult maps participant ID to outcome
type SettlementResult map[string]Outcome

// TotalDelta sums the coin deltas of result
func TotalDelta(result SettlementResult) int {
	total := 0
	for _, o := range result {
		total += o.CoinDelta
	}
	return total
}

// Winners returns the IDs of winning participants ordered by place
func (r SettlementResult) Winners() []string {
	ids := make([]string, 0, len(r))
	for id, o := range r {
		if o.Won {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return r[ids[i]].Place < r[ids[j]].Place
	})
	return ids
}

// Policy decides how the pot is divided among qualifiers. ranked is ordered
// best first. The returned shares must sum to pot.
type Policy interface {
	Split(pot int, ranked []Participant) []int
}

// EvenSplit divides the pot equally. The remainder goes one coin at a time
// to the best-ranked qualifiers.
type EvenSplit struct{}

// Split implements Policy
func (EvenSplit) Split(pot int, ranked []Participant) []int {
	shares := make([]int, len(ranked))
	if len(ranked) == 0 {
		return shares
	}
	each := pot / len(ranked)
	rem := pot % len(ranked)
	for i := range shares {
		shares[i] = each
		if i < rem {
			shares[i]++
		}
	}
	return shares
}

// Settler settles challenges with a fixed Policy
type Settler struct {
	policy Policy
}

// NewSettler creates a Settler. A nil policy means EvenSplit.
func NewSettler(policy Policy) *Settler {
	if policy == nil {
		policy = EvenSplit{}
	}
	return &Settler{policy: policy}
}

var defaultSettler = NewSettler(EvenSplit{})

// Settle settles with the even-split policy
func Settle(target Target, participants []Participant, stake int) (SettlementResult, error) {
	return defaultSettler.Settle(target, participants, stake)
}

// Settle computes each participant's outcome. Qualifiers are those with
// AchievedValue >= target.Value, ranked by achieved value descending and
// then by ID.
func (s *Settler) Settle(target Target, participants []Participant, stake int) (SettlementResult, error) {
	if err := validate(target, participants, stake); err != nil {
		return nil, err
	}

	var qualifiers []Participant
	losers := 0
	for _, p := range participants {
		if p.AchievedValue >= target.Value {
			qualifiers = append(qualifiers, p)
		} else {
			losers++
		}
	}

	result := make(SettlementResult, len(participants))
	if len(qualifiers) == 0 {
		for _, p := range participants {
			result[p.ID] = Outcome{}
		}
		return result, nil
	}

	sort.SliceStable(qualifiers, func(i, j int) bool {
		if qualifiers[i].AchievedValue != qualifiers[j].AchievedValue {
			return qualifiers[i].AchievedValue > qualifiers[j].AchievedValue
		}
		return qualifiers[i].ID < qualifiers[j].ID
	})

	pot := losers * stake
	shares := s.policy.Split(pot, qualifiers)
	if len(shares) != len(qualifiers) {
		return nil, fmt.Errorf("policy returned %d shares for %d qualifiers", len(shares), len(qualifiers))
	}
	sum := 0
	for _, v := range shares {
		if v < 0 {
			return nil, fmt.Errorf("policy returned negative share %d", v)
		}
		sum += v
	}
	if sum != pot {
		return nil, fmt.Errorf("policy shares sum to %d, pot is %d", sum, pot)
	}

	for i, q := range qualifiers {
		result[q.ID] = Outcome{Won: true, CoinDelta: shares[i], Place: i + 1}
	}
	for _, p := range participants {
		if _, ok := result[p.ID]; !ok {
			result[p.ID] = Outcome{CoinDelta: -stake}
		}
	}
	return result, nil
}

func validate(target Target, participants []Participant, stake int) error {
	if stake < 0 {
		return fmt.Errorf("%w: stake %d must not be negative", ErrInvalidChallengeConfig, stake)
	}
	if math.IsNaN(target.Value) || math.IsInf(target.Value, 0) || target.Value <= 0 {
		return fmt.Errorf("%w: target %v must be a positive number", ErrInvalidChallengeConfig, target.Value)
	}
	if len(participants) == 0 {
		return fmt.Errorf("%w: at least one participant is required", ErrInvalidChallengeConfig)
	}
	if stake > math.MaxInt/len(participants) {
		return fmt.Errorf("%w: stake %d is too large for %d participants", ErrInvalidChallengeConfig, stake, len(participants))
	}

	seen := make(map[string]struct{}, len(participants))
	for i, p := range participants {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: participant %d has no id", ErrInvalidChallengeConfig, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate participant %q", ErrInvalidChallengeConfig, p.ID)
		}
		seen[p.ID] = struct{}{}
		if math.IsNaN(p.AchievedValue) || math.IsInf(p.AchievedValue, 0) {
			return fmt.Errorf("%w: participant %q achieved value is not finite", ErrInvalidChallengeConfig, p.ID)
		}
	}
	return nil
}
