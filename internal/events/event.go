package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/progression-engine/internal/progression"
)

// Type names an event kind on the wire
type Type string

const (
	TypeLevelUp          Type = "progression.level_up"
	TypeRankUp           Type = "progression.rank_up"
	TypeWorkoutCompleted Type = "progression.workout_completed"
	TypeChallengeSettled Type = "challenge.settled"
)

// Event is the envelope published after a committed write
type Event struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	UserID      string          `json:"user_id,omitempty"`
	ChallengeID string          `json:"challenge_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Publisher delivers events to a sink
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// New builds an event with a fresh ID. A payload that cannot be encoded is left empty.
func New(t Type, userID string, payload any, at time.Time) Event {
	e := Event{
		ID:         uuid.NewString(),
		Type:       t,
		UserID:     userID,
		OccurredAt: at.UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			e.Payload = raw
		}
	}
	return e
}

// FromProgression converts calculator events for userID
func FromProgression(userID string, evs []progression.Event, at time.Time) []Event {
	out := make([]Event, 0, len(evs))
	for _, ev := range evs {
		t := TypeLevelUp
		if ev.Kind == progression.EventRankUp {
			t = TypeRankUp
		}
		out = append(out, New(t, userID, ev, at))
	}
	return out
}

// MultiPublisher publishes to every sink and joins their errors
type MultiPublisher []Publisher

// Publish delivers to all sinks even if some fail
func (m MultiPublisher) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event
type Discard struct{}

func (Discard) Publish(ctx context.Context, events ...Event) error { return nil }
