package models

import (
	"github.com/terra-clan/progression-engine/internal/rank"
	"github.com/terra-clan/progression-engine/internal/workout"
)

// Workout is a catalog workout
type Workout struct {
	ID               string             `yaml:"id" json:"id"`
	Title            string             `yaml:"title" json:"title"`
	Description      string             `yaml:"description" json:"description"`
	Difficulty       string             `yaml:"difficulty" json:"difficulty"` // beginner | intermediate | advanced
	Type             string             `yaml:"type" json:"type"`             // strength | cardio | ...
	Duration         string             `yaml:"duration" json:"duration"`     // display text, e.g. "15-20 min"
	ExperienceAward  int                `yaml:"experience" json:"experience_award"`
	CoinAward        int                `yaml:"coins" json:"coin_award"`
	Exercises        []workout.Exercise `yaml:"exercises" json:"exercises"`
	Rank             rank.Tier          `yaml:"-" json:"rank,omitempty"`
	EstimatedSeconds int                `yaml:"-" json:"estimated_seconds"`
}

// Clone returns a deep copy
func (w *Workout) Clone() *Workout {
	cp := *w
	cp.Exercises = make([]workout.Exercise, len(w.Exercises))
	for i, e := range w.Exercises {
		cp.Exercises[i] = e.Clone()
	}
	return &cp
}
