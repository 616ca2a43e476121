package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/workout"
)

var validate = validator.New()

// Validate checks v against its validate tags and flattens the result into
// one readable message.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// CreateProfileRequest registers a new user
type CreateProfileRequest struct {
	UserID   string `json:"user_id" validate:"required,max=128"`
	Username string `json:"username" validate:"required,min=2,max=64"`
}

// CompleteWorkoutRequest records a finished workout. When WorkoutID is set the
// catalog reward is used, otherwise the explicit award or the default one.
type CompleteWorkoutRequest struct {
	WorkoutID       string `json:"workout_id,omitempty" validate:"omitempty,max=128"`
	ExperienceAward *int   `json:"experience_award,omitempty" validate:"omitempty,min=0"`
	CoinAward       *int   `json:"coin_award,omitempty"`
}

// CompleteWorkoutResponse is the result of recording a workout
type CompleteWorkoutResponse struct {
	Profile  *Profile             `json:"profile"`
	Events   []progression.Event  `json:"events"`
	Progress progression.Snapshot `json:"progress"`
}

// AwardRequest drives the stateless award endpoint
type AwardRequest struct {
	State           progression.State `json:"state"`
	ExperienceAward int               `json:"experience_award" validate:"min=0"`
	CoinAward       int               `json:"coin_award"`
}

// AwardResponse is the stateless award result
type AwardResponse struct {
	State  progression.State   `json:"state"`
	Events []progression.Event `json:"events"`
}

// EstimateRequest lists exercises to estimate
type EstimateRequest struct {
	Exercises []workout.Exercise `json:"exercises" validate:"max=500"`
}

// SettleRequest drives the stateless settlement endpoint
type SettleRequest struct {
	TargetValue  float64              `json:"target_value" validate:"gt=0"`
	Stake        int                  `json:"stake" validate:"min=0"`
	Participants []ParticipantRequest `json:"participants" validate:"required,min=1,dive"`
}

// ParticipantRequest is one entrant of SettleRequest
type ParticipantRequest struct {
	ID            string  `json:"id" validate:"required"`
	AchievedValue float64 `json:"achieved_value"`
}

// CreateChallengeRequest opens a new challenge
type CreateChallengeRequest struct {
	Title            string    `json:"title" validate:"required,max=200"`
	Description      string    `json:"description,omitempty" validate:"max=2000"`
	Category         string    `json:"category" validate:"required,oneof=daily weekly monthly special"`
	Difficulty       string    `json:"difficulty,omitempty"`
	TargetValue      float64   `json:"target_value" validate:"gt=0"`
	Unit             string    `json:"unit,omitempty"`
	Stake            int       `json:"stake" validate:"min=0,max=1000000"`
	RewardExperience int       `json:"reward_experience" validate:"min=0,max=1000000"`
	EndsAt           time.Time `json:"ends_at" validate:"required"`
}

// JoinChallengeRequest enters a user into a challenge
type JoinChallengeRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// SubmitResultRequest reports a participant's achieved value
type SubmitResultRequest struct {
	UserID        string  `json:"user_id" validate:"required"`
	AchievedValue float64 `json:"achieved_value" validate:"min=0"`
}
