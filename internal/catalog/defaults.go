package catalog

import (
	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/workout"
)

func reps(name string, n, sets int) workout.Exercise {
	return workout.Exercise{Name: name, Reps: &n, Sets: &sets}
}

func timed(name, duration string, sets int) workout.Exercise {
	return workout.Exercise{Name: name, Duration: duration, Sets: &sets}
}

// DefaultWorkouts returns the built-in catalog at base (rank E) volume
func DefaultWorkouts() []*models.Workout {
	xp := progression.DefaultWorkoutCompletion.ExperienceAward
	coins := progression.DefaultWorkoutCompletion.CoinAward

	return []*models.Workout{
		{
			ID: "workout1", Title: "Beginner Full Body", Description: "A full body workout for beginners",
			Difficulty: "beginner", Type: "strength", Duration: "15-20 min",
			ExperienceAward: xp, CoinAward: coins,
			Exercises: []workout.Exercise{
				reps("Push-ups", 8, 3),
				reps("Squats", 12, 3),
				timed("Plank", "30 seconds", 3),
				reps("Jumping Jacks", 20, 3),
			},
		},
		{
			ID: "workout2", Title: "Cardio Blast", Description: "High intensity cardio workout",
			Difficulty: "intermediate", Type: "cardio", Duration: "20-25 min",
			ExperienceAward: xp, CoinAward: coins,
			Exercises: []workout.Exercise{
				timed("High Knees", "45 seconds", 3),
				reps("Burpees", 10, 3),
				timed("Mountain Climbers", "45 seconds", 3),
				timed("Jump Rope", "1 minute", 3),
			},
		},
		{
			ID: "workout3", Title: "Core Crusher", Description: "Focus on strengthening your core",
			Difficulty: "intermediate", Type: "strength", Duration: "15-20 min",
			ExperienceAward: xp, CoinAward: coins,
			Exercises: []workout.Exercise{
				reps("Sit-ups", 15, 3),
				reps("Russian Twists", 20, 3),
				reps("Leg Raises", 12, 3),
				timed("Plank", "45 seconds", 3),
			},
		},
		{
			ID: "workout4", Title: "Upper Body Focus", Description: "Build strength in your upper body",
			Difficulty: "advanced", Type: "strength", Duration: "25-30 min",
			ExperienceAward: xp, CoinAward: coins,
			Exercises: []workout.Exercise{
				reps("Push-ups", 15, 4),
				reps("Dips", 12, 3),
				reps("Pull-ups", 8, 3),
				reps("Shoulder Taps", 16, 3),
			},
		},
		{
			ID: "workout5", Title: "Lower Body Power", Description: "Build strength in your legs",
			Difficulty: "intermediate", Type: "strength", Duration: "20-25 min",
			ExperienceAward: xp, CoinAward: coins,
			Exercises: []workout.Exercise{
				reps("Squats", 20, 4),
				reps("Lunges", 12, 3),
				reps("Calf Raises", 15, 3),
				reps("Glute Bridges", 15, 3),
			},
		},
		{
			ID: "workout6", Title: "HIIT Challenge", Description: "High intensity interval training",
			Difficulty: "advanced", Type: "cardio", Duration: "25-30 min",
			ExperienceAward: xp, CoinAward: coins,
			Exercises: []workout.Exercise{
				reps("Burpees", 12, 4),
				reps("Jump Squats", 15, 4),
				timed("Mountain Climbers", "45 seconds", 4),
				reps("Jumping Lunges", 12, 4),
			},
		},
	}
}
