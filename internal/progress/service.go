package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/terra-clan/progression-engine/internal/catalog"
	"github.com/terra-clan/progression-engine/internal/engine"
	"github.com/terra-clan/progression-engine/internal/events"
	"github.com/terra-clan/progression-engine/internal/leaderboard"
	"github.com/terra-clan/progression-engine/internal/locking"
	"github.com/terra-clan/progression-engine/internal/metrics"
	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/rank"
	"github.com/terra-clan/progression-engine/internal/storage"
	"github.com/terra-clan/progression-engine/internal/workout"
)

// Common errors
var (
	ErrProfileNotFound      = errors.New("profile not found")
	ErrProfileExists        = errors.New("profile already exists")
	ErrWorkoutNotFound      = errors.New("workout not found")
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrChallengeClosed      = errors.New("challenge is not accepting changes")
	ErrChallengeNotEnded    = errors.New("challenge has not ended yet")
	ErrAlreadyJoined        = errors.New("user already joined the challenge")
	ErrNotParticipant       = errors.New("user is not a participant")
	ErrInsufficientCoins    = errors.New("insufficient coins for stake")
	ErrSettlementInProgress = errors.New("settlement already in progress")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrTooManyConflicts     = errors.New("too many concurrent updates, retry later")
)

const (
	defaultMaxRetries = 5
	defaultLockTTL    = 30 * time.Second
)

// Board is the leaderboard used for rankings
type Board interface {
	Record(ctx context.Context, userID string, experience int) error
	Top(ctx context.Context, limit, offset int) ([]leaderboard.Standing, error)
}

// Deps holds everything a Service needs. Board, Locker and Publisher are optional.
type Deps struct {
	Engine        *engine.Engine
	Profiles      storage.ProfileStore
	Challenges    storage.ChallengeStore
	Settlements   storage.SettlementCommitter
	Catalog       *catalog.Loader
	Locker        locking.Locker
	Board         Board
	Publisher     events.Publisher
	StartingCoins int
	MaxRetries    int
	LockTTL       time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

// Service runs the engine against stored profiles and challenges. Every
// profile write is a compare-and-set on the version read, retried a bounded
// number of times.
type Service struct {
	engine        *engine.Engine
	profiles      storage.ProfileStore
	challenges    storage.ChallengeStore
	settlements   storage.SettlementCommitter
	catalog       *catalog.Loader
	locker        locking.Locker
	board         Board
	publisher     events.Publisher
	startingCoins int
	maxRetries    int
	lockTTL       time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// NewService validates deps and fills defaults
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Engine == nil:
		return nil, fmt.Errorf("engine is required")
	case d.Profiles == nil:
		return nil, fmt.Errorf("profile store is required")
	case d.Challenges == nil:
		return nil, fmt.Errorf("challenge store is required")
	case d.Settlements == nil:
		return nil, fmt.Errorf("settlement committer is required")
	case d.Catalog == nil:
		return nil, fmt.Errorf("workout catalog is required")
	case d.StartingCoins < 0:
		return nil, fmt.Errorf("starting coins must not be negative")
	}

	s := &Service{
		engine:        d.Engine,
		profiles:      d.Profiles,
		challenges:    d.Challenges,
		settlements:   d.Settlements,
		catalog:       d.Catalog,
		locker:        d.Locker,
		board:         d.Board,
		publisher:     d.Publisher,
		startingCoins: d.StartingCoins,
		maxRetries:    d.MaxRetries,
		lockTTL:       d.LockTTL,
		now:           d.Now,
		logger:        d.Logger,
	}
	if s.locker == nil {
		s.locker = locking.NewLocalLocker()
	}
	if s.publisher == nil {
		s.publisher = events.Discard{}
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Engine exposes the pure rules for stateless callers
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

// --- Profiles ---

// CreateProfile registers a user at the starting state
func (s *Service) CreateProfile(ctx context.Context, req models.CreateProfileRequest) (*models.Profile, error) {
	if err := models.Validate(req); err != nil {
		return nil, invalid(err)
	}

	p := models.NewProfile(req.UserID, req.Username, s.startingCoins, s.now().UTC())
	if err := s.profiles.CreateProfile(ctx, p); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrProfileExists
		}
		return nil, err
	}

	s.recordScore(ctx, p)
	s.logger.Info("profile created", "user_id", p.UserID)
	return p, nil
}

// GetProfile returns the stored profile
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

// CompleteWorkout applies a workout reward to the user's profile and
// advances the daily streak
func (s *Service) CompleteWorkout(ctx context.Context, userID string, req models.CompleteWorkoutRequest) (*models.CompleteWorkoutResponse, error) {
	if err := models.Validate(req); err != nil {
		return nil, invalid(err)
	}

	completion, err := s.completionFor(req)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		p, err := s.GetProfile(ctx, userID)
		if err != nil {
			return nil, err
		}

		now := s.now().UTC()
		state := progression.AdvanceStreak(p.State(), p.LastActive(), now)
		next, evs, err := s.engine.ApplyCompletion(state, completion)
		if err != nil {
			return nil, fmt.Errorf("failed to apply workout: %w", err)
		}

		updated := p.Clone()
		updated.SetState(next)
		updated.WorkoutsCompleted++
		updated.LastActiveAt = &now

		err = s.profiles.UpdateProfile(ctx, updated, p.Version)
		if errors.Is(err, storage.ErrVersionConflict) {
			metrics.RecordVersionConflict("complete_workout")
			s.logger.Debug("profile changed during workout completion, retrying", "user_id", userID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.RecordWorkoutCompleted()
		extra := events.New(events.TypeWorkoutCompleted, userID, map[string]any{
			"workout_id":       req.WorkoutID,
			"experience_award": completion.ExperienceAward,
			"coin_award":       completion.CoinAward,
			"streak_days":      updated.StreakDays,
		}, now)
		s.afterProfileWrite(ctx, updated, evs, extra)

		return &models.CompleteWorkoutResponse{
			Profile:  updated,
			Events:   evs,
			Progress: progression.Progress(next),
		}, nil
	}

	return nil, ErrTooManyConflicts
}

// completionFor picks the reward: the catalog workout's when an ID is given,
// else the configured default with any explicit overrides
func (s *Service) completionFor(req models.CompleteWorkoutRequest) (progression.WorkoutCompletion, error) {
	completion := s.engine.WorkoutCompletion()

	if req.WorkoutID != "" {
		w := s.catalog.Get(req.WorkoutID)
		if w == nil {
			return completion, ErrWorkoutNotFound
		}
		completion = progression.WorkoutCompletion{ExperienceAward: w.ExperienceAward, CoinAward: w.CoinAward}
	}
	if req.ExperienceAward != nil {
		completion.ExperienceAward = *req.ExperienceAward
	}
	if req.CoinAward != nil {
		completion.CoinAward = *req.CoinAward
	}
	return completion, nil
}

// afterProfileWrite runs the side effects of a committed profile write.
// Failures are logged; the write itself already succeeded.
func (s *Service) afterProfileWrite(ctx context.Context, p *models.Profile, evs []progression.Event, extra ...events.Event) {
	s.recordScore(ctx, p)

	metrics.RecordLevelUps(progression.LevelUps(evs))
	if up, ok := progression.RankUp(evs); ok {
		metrics.RecordRankUp(string(up.NewRank))
		s.logger.Info("rank up", "user_id", p.UserID, "from", up.OldRank, "to", up.NewRank)
	}

	out := append(events.FromProgression(p.UserID, evs, s.now()), extra...)
	s.publish(ctx, out...)
}

func (s *Service) recordScore(ctx context.Context, p *models.Profile) {
	if s.board == nil {
		return
	}
	if err := s.board.Record(ctx, p.UserID, p.Experience); err != nil {
		s.logger.Warn("failed to update leaderboard", "user_id", p.UserID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, evs ...events.Event) {
	if len(evs) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.logger.Warn("failed to publish events", "count", len(evs), "error", err)
	}
}

// --- Workouts ---

// EstimateWorkout estimates the total length of an exercise list
func (s *Service) EstimateWorkout(req models.EstimateRequest) (workout.Report, error) {
	if err := models.Validate(req); err != nil {
		return workout.Report{}, invalid(err)
	}

	report, err := s.engine.EstimateWorkout(workout.Descriptors(req.Exercises))
	if err != nil {
		return workout.Report{}, err
	}
	metrics.RecordEstimatorFallbacks(report.Fallbacks)
	return report, nil
}

// ListWorkouts returns the catalog scaled for tier. An empty tier means E.
func (s *Service) ListWorkouts(tier rank.Tier, f catalog.Filter) ([]*models.Workout, error) {
	if tier == "" {
		tier = rank.E
	}
	list, err := s.catalog.ForRank(tier, f)
	if err != nil {
		return nil, invalid(err)
	}
	return list, nil
}

// WorkoutsForUser returns the catalog scaled for the user's current rank
func (s *Service) WorkoutsForUser(ctx context.Context, userID string, f catalog.Filter) ([]*models.Workout, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ListWorkouts(p.Rank, f)
}

// GetWorkout returns one workout scaled for tier
func (s *Service) GetWorkout(id string, tier rank.Tier) (*models.Workout, error) {
	if tier == "" {
		tier = rank.E
	}
	w, err := s.catalog.GetForRank(id, tier)
	if err != nil {
		return nil, invalid(err)
	}
	if w == nil {
		return nil, ErrWorkoutNotFound
	}
	return w, nil
}

// RankTiers describes every tier with its multiplier and level threshold
func (s *Service) RankTiers() []rank.Info {
	return s.engine.TierInfo()
}

// --- Leaderboard ---

// Leaderboard returns users by experience. The Redis board is preferred;
// without it, or when it fails, profiles are read from storage.
func (s *Service) Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	if s.board != nil {
		standings, err := s.board.Top(ctx, limit, offset)
		if err == nil {
			return s.enrich(ctx, standings), nil
		}
		s.logger.Warn("leaderboard unavailable, reading from storage", "error", err)
	}

	profiles, err := s.profiles.ListProfiles(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]models.LeaderboardEntry, 0, len(profiles))
	for i, p := range profiles {
		out = append(out, models.LeaderboardEntry{
			Position:   offset + i + 1,
			UserID:     p.UserID,
			Username:   p.Username,
			Experience: p.Experience,
			Level:      p.Level,
			Rank:       p.Rank,
		})
	}
	return out, nil
}

func (s *Service) enrich(ctx context.Context, standings []leaderboard.Standing) []models.LeaderboardEntry {
	out := make([]models.LeaderboardEntry, 0, len(standings))
	for _, st := range standings {
		entry := models.LeaderboardEntry{
			Position:   st.Position,
			UserID:     st.UserID,
			Experience: st.Experience,
		}
		if p, err := s.profiles.GetProfile(ctx, st.UserID); err == nil && p != nil {
			entry.Username = p.Username
			entry.Level = p.Level
			entry.Rank = p.Rank
		}
		out = append(out, entry)
	}
	return out
}
