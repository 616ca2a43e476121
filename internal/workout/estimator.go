package workout

import (
	"log/slog"
	"math"
)

const (
	// SecondsPerSet approximates the work time of one set
	SecondsPerSet = 45
	// DefaultRestSeconds is the rest between sets when none is given
	DefaultRestSeconds = 60
	// FallbackSeconds is used for exercises whose length cannot be derived
	FallbackSeconds = 60
	// MaxExerciseSeconds caps a single exercise at one week. Longer
	// descriptors are rejected as invalid.
	MaxExerciseSeconds = 7 * 24 * 60 * 60
)

// ExerciseEstimate is the estimate for one exercise
type ExerciseEstimate struct {
	Index    int    `json:"index"`
	Kind     string `json:"kind"`
	Seconds  int    `json:"seconds"`
	Fallback bool   `json:"fallback"`
}

// Report is the breakdown of a workout estimate
type Report struct {
	TotalSeconds int                `json:"total_seconds"`
	Exercises    []ExerciseEstimate `json:"exercises"`
	Fallbacks    int                `json:"fallbacks"`
}

// Estimator turns exercise lists into a total duration
type Estimator struct {
	logger *slog.Logger
}

// NewEstimator creates an Estimator. A nil logger uses slog.Default().
func NewEstimator(logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{logger: logger}
}

// EstimateTotalSeconds returns the total estimated length of exercises
func (e *Estimator) EstimateTotalSeconds(exercises []Descriptor) (int, error) {
	report, err := e.Estimate(exercises)
	if err != nil {
		return 0, err
	}
	return report.TotalSeconds, nil
}

// Estimate validates every descriptor, then estimates each one. Unrecognised
// units and unshaped exercises count as FallbackSeconds and are logged.
func (e *Estimator) Estimate(exercises []Descriptor) (Report, error) {
	for i, d := range exercises {
		if err := validate(i, d); err != nil {
			return Report{}, err
		}
	}

	report := Report{Exercises: make([]ExerciseEstimate, 0, len(exercises))}
	for i, d := range exercises {
		est := e.estimateOne(i, d)
		if est.Fallback {
			report.Fallbacks++
		}
		report.TotalSeconds = addSaturating(report.TotalSeconds, est.Seconds)
		report.Exercises = append(report.Exercises, est)
	}
	return report, nil
}

func (e *Estimator) estimateOne(i int, d Descriptor) ExerciseEstimate {
	est := ExerciseEstimate{Index: i, Kind: Kind(d)}

	switch v := d.(type) {
	case Timed:
		switch v.Unit {
		case UnitSeconds, UnitMinutes:
			est.Seconds = int(timedSeconds(v))
		default:
			e.logger.Warn("unrecognised duration unit, using fallback",
				"index", i,
				"unit", string(v.Unit),
				"fallback_seconds", FallbackSeconds,
			)
			est.Seconds = FallbackSeconds
			est.Fallback = true
		}
	case SetsReps:
		est.Seconds = int(setsRepsSeconds(v))
	default:
		e.logger.Warn("exercise has no duration or sets, using fallback",
			"index", i,
			"fallback_seconds", FallbackSeconds,
		)
		est.Seconds = FallbackSeconds
		est.Fallback = true
	}

	return est
}

// timedSeconds converts a validated Timed to seconds. Unknown units yield 0.
func timedSeconds(v Timed) float64 {
	switch v.Unit {
	case UnitSeconds:
		return math.Round(v.Value)
	case UnitMinutes:
		return math.Round(v.Value * 60)
	default:
		return 0
	}
}

// setsRepsSeconds is computed in int64 so the bounds check in validate
// sees the true value. Sets and rest are already capped there.
func setsRepsSeconds(v SetsReps) int64 {
	rest := int64(DefaultRestSeconds)
	if v.RestSeconds != nil {
		rest = int64(*v.RestSeconds)
	}
	sets := int64(v.Sets)
	return sets*SecondsPerSet + (sets-1)*rest
}

func addSaturating(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}
