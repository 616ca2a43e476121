// Package engine bundles the progression rules behind one value.
//
// An Engine holds only configuration. Every method is a pure function of its
// arguments, so a single Engine can be shared by any number of goroutines.
package engine

import (
	"log/slog"

	"github.com/terra-clan/progression-engine/internal/challenge"
	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/rank"
	"github.com/terra-clan/progression-engine/internal/workout"
)

// Rules configures an Engine
type Rules struct {
	Boundaries        rank.Boundaries
	MaxLevelUps       int
	WorkoutCompletion progression.WorkoutCompletion
	SettlementPolicy  challenge.Policy
}

// DefaultRules returns the built-in rule set
func DefaultRules() Rules {
	return Rules{
		Boundaries:        rank.DefaultBoundaries(),
		MaxLevelUps:       progression.DefaultMaxLevelUps,
		WorkoutCompletion: progression.DefaultWorkoutCompletion,
		SettlementPolicy:  challenge.EvenSplit{},
	}
}

// Engine composes the calculator, estimator and settler
type Engine struct {
	calculator *progression.Calculator
	estimator  *workout.Estimator
	settler    *challenge.Settler
	completion progression.WorkoutCompletion
}

// New builds an Engine from rules
func New(rules Rules, logger *slog.Logger) (*Engine, error) {
	calc, err := progression.NewCalculator(rules.Boundaries, progression.WithMaxLevelUps(rules.MaxLevelUps))
	if err != nil {
		return nil, err
	}

	completion := rules.WorkoutCompletion
	if completion == (progression.WorkoutCompletion{}) {
		completion = progression.DefaultWorkoutCompletion
	}

	return &Engine{
		calculator: calc,
		estimator:  workout.NewEstimator(logger),
		settler:    challenge.NewSettler(rules.SettlementPolicy),
		completion: completion,
	}, nil
}

// ApplyAward folds an award into state
func (e *Engine) ApplyAward(state progression.State, experienceAward, coinAward int) (progression.State, []progression.Event, error) {
	return e.calculator.ApplyAward(state, experienceAward, coinAward)
}

// ApplyWorkoutCompletion applies the configured workout reward
func (e *Engine) ApplyWorkoutCompletion(state progression.State) (progression.State, []progression.Event, error) {
	return e.calculator.ApplyWorkoutCompletion(state, e.completion)
}

// ApplyCompletion applies an explicit workout reward
func (e *Engine) ApplyCompletion(state progression.State, completion progression.WorkoutCompletion) (progression.State, []progression.Event, error) {
	return e.calculator.ApplyWorkoutCompletion(state, completion)
}

// WorkoutCompletion returns the configured workout reward
func (e *Engine) WorkoutCompletion() progression.WorkoutCompletion {
	return e.completion
}

// EstimateWorkout estimates the length of an exercise list
func (e *Engine) EstimateWorkout(exercises []workout.Descriptor) (workout.Report, error) {
	return e.estimator.Estimate(exercises)
}

// SettleChallenge settles a challenge with the configured policy
func (e *Engine) SettleChallenge(target challenge.Target, participants []challenge.Participant, stake int) (challenge.SettlementResult, error) {
	return e.settler.Settle(target, participants, stake)
}

// TierInfo describes every tier under the configured boundaries
func (e *Engine) TierInfo() []rank.Info {
	return e.calculator.Boundaries().Describe()
}
