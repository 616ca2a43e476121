package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/rank"
)

func TestFromProgressionMapsKinds(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	evs := FromProgression("u1", []progression.Event{
		{Kind: progression.EventLevelUp, OldLevel: 4, NewLevel: 5},
		{Kind: progression.EventRankUp, OldRank: rank.E, NewRank: rank.D},
	}, at)

	require.Len(t, evs, 2)
	assert.Equal(t, TypeLevelUp, evs[0].Type)
	assert.Equal(t, TypeRankUp, evs[1].Type)
	assert.Equal(t, "u1", evs[1].UserID)
	assert.NotEqual(t, evs[0].ID, evs[1].ID)

	var payload progression.Event
	require.NoError(t, json.Unmarshal(evs[1].Payload, &payload))
	assert.Equal(t, rank.D, payload.NewRank)
}

func TestHubFiltersAndDrops(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(1)

	mine := hub.Subscribe(ForUser("u1"))
	all := hub.Subscribe(nil)
	defer mine.Close()

	require.NoError(t, hub.Publish(ctx, New(TypeLevelUp, "u1", nil, time.Now()), New(TypeLevelUp, "u2", nil, time.Now())))

	got := <-mine.C
	assert.Equal(t, "u1", got.UserID)
	select {
	case e := <-mine.C:
		t.Fatalf("unexpected event %v", e)
	default:
	}

	// buffer of one: the second event was dropped for the unfiltered subscriber
	got = <-all.C
	assert.Equal(t, "u1", got.UserID)

	all.Close()
	all.Close()
	_, open := <-all.C
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers())
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherKeysByUser(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	settled := New(TypeChallengeSettled, "", map[string]int{"pot": 20}, time.Now())
	settled.ChallengeID = "c1"
	require.NoError(t, p.Publish(context.Background(), New(TypeLevelUp, "u1", nil, time.Now()), settled))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "u1", string(w.msgs[0].Key))
	assert.Equal(t, "c1", string(w.msgs[1].Key))
	assert.Equal(t, string(TypeChallengeSettled), string(w.msgs[1].Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &decoded))
	assert.Equal(t, TypeChallengeSettled, decoded.Type)

	require.NoError(t, p.Publish(context.Background()))
	assert.Len(t, w.msgs, 2)
}

type failing struct{ err error }

func (f failing) Publish(ctx context.Context, events ...Event) error { return f.err }

func TestMultiPublisherJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	hub := NewHub(4)
	sub := hub.Subscribe(nil)
	defer sub.Close()

	m := MultiPublisher{failing{boom}, nil, hub, Discard{}}
	err := m.Publish(context.Background(), New(TypeRankUp, "u1", nil, time.Now()))
	assert.ErrorIs(t, err, boom)

	got := <-sub.C
	assert.Equal(t, TypeRankUp, got.Type)
}
