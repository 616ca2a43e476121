package progress

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/progression-engine/internal/catalog"
	"github.com/terra-clan/progression-engine/internal/engine"
	"github.com/terra-clan/progression-engine/internal/events"
	"github.com/terra-clan/progression-engine/internal/leaderboard"
	"github.com/terra-clan/progression-engine/internal/locking"
	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/rank"
	"github.com/terra-clan/progression-engine/internal/storage"
	"github.com/terra-clan/progression-engine/internal/workout"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeBoard struct {
	mu     sync.Mutex
	scores map[string]int
}

func (b *fakeBoard) Record(ctx context.Context, userID string, experience int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scores[userID] = experience
	return nil
}

func (b *fakeBoard) Top(ctx context.Context, limit, offset int) ([]leaderboard.Standing, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []leaderboard.Standing
	for id, xp := range b.scores {
		out = append(out, leaderboard.Standing{UserID: id, Experience: xp})
	}
	// tests only rely on the single top entry
	best := 0
	for i := range out {
		if out[i].Experience > out[best].Experience {
			best = i
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	top := out[best]
	top.Position = 1
	return []leaderboard.Standing{top}, nil
}

type fixture struct {
	svc       *Service
	repo      *storage.MemoryRepository
	clock     *clock
	publisher *recordingPublisher
	board     *fakeBoard
	locker    *locking.LocalLocker
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.New(engine.DefaultRules(), logger)
	require.NoError(t, err)

	cat := catalog.NewLoader(nil)
	require.NoError(t, cat.LoadDefaults())

	f := &fixture{
		repo:      storage.NewMemoryRepository(),
		clock:     &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
		publisher: &recordingPublisher{},
		board:     &fakeBoard{scores: map[string]int{}},
		locker:    locking.NewLocalLocker(),
	}

	deps := Deps{
		Engine:        eng,
		Profiles:      f.repo,
		Challenges:    f.repo,
		Settlements:   f.repo,
		Catalog:       cat,
		Locker:        f.locker,
		Board:         f.board,
		Publisher:     f.publisher,
		StartingCoins: 100,
		MaxRetries:    3,
		Now:           f.clock.Now,
		Logger:        logger,
	}
	for _, m := range mutate {
		m(&deps)
	}

	f.svc, err = NewService(deps)
	require.NoError(t, err)
	return f
}

func (f *fixture) createProfile(t *testing.T, userID string) *models.Profile {
	t.Helper()
	p, err := f.svc.CreateProfile(context.Background(), models.CreateProfileRequest{UserID: userID, Username: "user-" + userID})
	require.NoError(t, err)
	return p
}

func TestCreateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.createProfile(t, "u1")
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 0, p.Experience)
	assert.Equal(t, rank.E, p.Rank)
	assert.Equal(t, 100, p.Coins)
	assert.Contains(t, f.board.scores, "u1")

	_, err := f.svc.CreateProfile(ctx, models.CreateProfileRequest{UserID: "u1", Username: "again"})
	assert.ErrorIs(t, err, ErrProfileExists)

	_, err = f.svc.CreateProfile(ctx, models.CreateProfileRequest{UserID: "u2"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestCompleteWorkoutAppliesRewardAndStreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProfile(t, "u1")

	res, err := f.svc.CompleteWorkout(ctx, "u1", models.CompleteWorkoutRequest{})
	require.NoError(t, err)
	assert.Equal(t, 50, res.Profile.Experience)
	assert.Equal(t, 125, res.Profile.Coins)
	assert.Equal(t, 1, res.Profile.StreakDays)
	assert.Equal(t, 1, res.Profile.WorkoutsCompleted)
	assert.Empty(t, res.Events)
	assert.InDelta(t, 50.0, res.Progress.Percent, 0.001)

	f.clock.Advance(24 * time.Hour)
	res, err = f.svc.CompleteWorkout(ctx, "u1", models.CompleteWorkoutRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Profile.Level)
	assert.Equal(t, 2, res.Profile.StreakDays)
	require.Len(t, res.Events, 1)
	assert.Equal(t, progression.EventLevelUp, res.Events[0].Kind)

	stored, err := f.svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Version)
	assert.Equal(t, 100, f.board.scores["u1"])
	assert.Contains(t, f.publisher.types(), events.TypeLevelUp)
	assert.Contains(t, f.publisher.types(), events.TypeWorkoutCompleted)
}

func TestCompleteWorkoutUsesCatalogReward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProfile(t, "u1")

	xp := 10
	res, err := f.svc.CompleteWorkout(ctx, "u1", models.CompleteWorkoutRequest{WorkoutID: "workout2", ExperienceAward: &xp})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Profile.Experience)
	assert.Equal(t, 125, res.Profile.Coins)

	_, err = f.svc.CompleteWorkout(ctx, "u1", models.CompleteWorkoutRequest{WorkoutID: "nope"})
	assert.ErrorIs(t, err, ErrWorkoutNotFound)

	_, err = f.svc.CompleteWorkout(ctx, "ghost", models.CompleteWorkoutRequest{})
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

// racingProfiles bumps the stored profile behind the caller's back before
// the first n updates, simulating a concurrent writer
type racingProfiles struct {
	*storage.MemoryRepository
	races int
}

func (r *racingProfiles) UpdateProfile(ctx context.Context, p *models.Profile, expectedVersion int64) error {
	if r.races > 0 {
		r.races--
		current, err := r.MemoryRepository.GetProfile(ctx, p.UserID)
		if err != nil {
			return err
		}
		current.Coins += 7
		if err := r.MemoryRepository.UpdateProfile(ctx, current, current.Version); err != nil {
			return err
		}
	}
	return r.MemoryRepository.UpdateProfile(ctx, p, expectedVersion)
}

func TestCompleteWorkoutRetriesOnConflict(t *testing.T) {
	var racing *racingProfiles
	f := newFixture(t, func(d *Deps) {
		racing = &racingProfiles{MemoryRepository: d.Profiles.(*storage.MemoryRepository)}
		d.Profiles = racing
	})
	ctx := context.Background()
	f.createProfile(t, "u1")

	racing.races = 1
	res, err := f.svc.CompleteWorkout(ctx, "u1", models.CompleteWorkoutRequest{})
	require.NoError(t, err)
	// both the concurrent +7 and the workout +25 survive
	assert.Equal(t, 132, res.Profile.Coins)

	racing.races = 10
	_, err = f.svc.CompleteWorkout(ctx, "u1", models.CompleteWorkoutRequest{})
	assert.ErrorIs(t, err, ErrTooManyConflicts)
}

func TestWorkoutsForUserScaleWithRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createProfile(t, "u1")

	list, err := f.svc.WorkoutsForUser(ctx, "u1", catalog.Filter{Type: "strength"})
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, rank.E, list[0].Rank)
	assert.Equal(t, 8, *list[0].Exercises[0].Reps)

	w, err := f.svc.GetWorkout("workout1", rank.C)
	require.NoError(t, err)
	assert.Equal(t, 16, *w.Exercises[0].Reps)

	_, err = f.svc.GetWorkout("missing", rank.C)
	assert.ErrorIs(t, err, ErrWorkoutNotFound)

	_, err = f.svc.ListWorkouts(rank.Tier("Q"), catalog.Filter{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Len(t, f.svc.RankTiers(), 6)
}

func TestEstimateWorkout(t *testing.T) {
	f := newFixture(t)

	sets, reps := 3, 10
	report, err := f.svc.EstimateWorkout(models.EstimateRequest{Exercises: []workout.Exercise{
		{Name: "Squats", Sets: &sets, Reps: &reps},
		{Name: "Run", Duration: "2 min"},
		{Name: "Stretch"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 3*45+2*60+120+60, report.TotalSeconds)
	assert.Equal(t, 1, report.Fallbacks)

	zero := 0
	_, err = f.svc.EstimateWorkout(models.EstimateRequest{Exercises: []workout.Exercise{{Sets: &zero}}})
	assert.ErrorIs(t, err, workout.ErrInvalidExerciseDescriptor)
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, func(d *Deps) { d.Board = nil })
	f.createProfile(t, "a")
	f.createProfile(t, "b")
	_, err := f.svc.CompleteWorkout(ctx, "b", models.CompleteWorkoutRequest{})
	require.NoError(t, err)

	entries, err := f.svc.Leaderboard(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].UserID)
	assert.Equal(t, 1, entries[0].Position)
	assert.Equal(t, "user-b", entries[0].Username)

	withBoard := newFixture(t)
	withBoard.createProfile(t, "c")
	_, err = withBoard.svc.CompleteWorkout(ctx, "c", models.CompleteWorkoutRequest{})
	require.NoError(t, err)

	entries, err = withBoard.svc.Leaderboard(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LeaderboardEntry{Position: 1, UserID: "c", Username: "user-c", Experience: 50, Level: 1, Rank: rank.E}, entries[0])
}
