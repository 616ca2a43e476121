package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/rank"
	"github.com/terra-clan/progression-engine/internal/workout"
)

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Type       string
	Difficulty string
}

func (f Filter) match(w *models.Workout) bool {
	if f.Type != "" && !strings.EqualFold(f.Type, w.Type) {
		return false
	}
	if f.Difficulty != "" && !strings.EqualFold(f.Difficulty, w.Difficulty) {
		return false
	}
	return true
}

// Loader manages loading and caching of workout templates
type Loader struct {
	mu        sync.RWMutex
	workouts  map[string]*models.Workout
	estimator *workout.Estimator
}

// NewLoader creates an empty catalog. A nil estimator uses the default logger.
func NewLoader(estimator *workout.Estimator) *Loader {
	if estimator == nil {
		estimator = workout.NewEstimator(nil)
	}
	return &Loader{
		workouts:  make(map[string]*models.Workout),
		estimator: estimator,
	}
}

// LoadFromDir loads every YAML workout in dir. A missing directory falls
// back to the built-in workouts.
func (l *Loader) LoadFromDir(dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Info("workout directory not found, using built-in catalog", "dir", dir)
		return l.LoadDefaults()
	}

	slog.Info("loading workouts from directory", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load workout", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("workouts loaded", "count", loaded, "total_files", len(files))

	if loaded == 0 {
		return l.LoadDefaults()
	}
	return nil
}

// LoadFromFile loads a single workout from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var w models.Workout
	if err := yaml.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if w.ID == "" {
		base := filepath.Base(path)
		w.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return l.Add(&w)
}

// LoadDefaults registers the built-in workouts
func (l *Loader) LoadDefaults() error {
	for _, w := range DefaultWorkouts() {
		if err := l.Add(w); err != nil {
			return err
		}
	}
	return nil
}

// Add validates and stores a workout, replacing any with the same ID
func (l *Loader) Add(w *models.Workout) error {
	if w.ID == "" {
		return fmt.Errorf("workout id is required")
	}
	if w.Title == "" {
		return fmt.Errorf("workout %s: title is required", w.ID)
	}
	if len(w.Exercises) == 0 {
		return fmt.Errorf("workout %s: at least one exercise is required", w.ID)
	}
	if w.ExperienceAward < 0 {
		return fmt.Errorf("workout %s: experience award must not be negative", w.ID)
	}

	stored := w.Clone()
	seconds, err := l.estimator.EstimateTotalSeconds(workout.Descriptors(stored.Exercises))
	if err != nil {
		return fmt.Errorf("workout %s: %w", w.ID, err)
	}
	stored.EstimatedSeconds = seconds

	l.mu.Lock()
	l.workouts[stored.ID] = stored
	l.mu.Unlock()

	slog.Debug("workout loaded", "id", stored.ID, "exercises", len(stored.Exercises), "estimated_seconds", seconds)
	return nil
}

// Remove removes a workout by ID
func (l *Loader) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.workouts, id)
}

// Get returns a copy of the base workout, or nil
func (l *Loader) Get(id string) *models.Workout {
	l.mu.RLock()
	defer l.mu.RUnlock()

	w, ok := l.workouts[id]
	if !ok {
		return nil
	}
	return w.Clone()
}

// List returns copies of the base workouts matching f, ordered by ID
func (l *Loader) List(f Filter) []*models.Workout {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.Workout, 0, len(l.workouts))
	for _, w := range l.workouts {
		if f.match(w) {
			result = append(result, w.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ForRank returns the workouts matching f with reps scaled for tier
func (l *Loader) ForRank(tier rank.Tier, f Filter) ([]*models.Workout, error) {
	base := l.List(f)
	out := make([]*models.Workout, 0, len(base))
	for _, w := range base {
		scaled, err := l.scale(w, tier)
		if err != nil {
			return nil, err
		}
		out = append(out, scaled)
	}
	return out, nil
}

// GetForRank returns one workout scaled for tier, or nil
func (l *Loader) GetForRank(id string, tier rank.Tier) (*models.Workout, error) {
	w := l.Get(id)
	if w == nil {
		return nil, nil
	}
	return l.scale(w, tier)
}

// scale multiplies reps by the tier multiplier, rounding down. Sets, rest and
// timed exercises are unchanged.
func (l *Loader) scale(w *models.Workout, tier rank.Tier) (*models.Workout, error) {
	for i, e := range w.Exercises {
		if e.Reps == nil {
			continue
		}
		reps, err := rank.Scale(*e.Reps, tier)
		if err != nil {
			return nil, err
		}
		w.Exercises[i].Reps = &reps
	}
	w.Rank = tier

	seconds, err := l.estimator.EstimateTotalSeconds(workout.Descriptors(w.Exercises))
	if err != nil {
		return nil, err
	}
	w.EstimatedSeconds = seconds
	return w, nil
}
