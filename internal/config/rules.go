package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/progression-engine/internal/engine"
	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/rank"
)

// DefaultStartingCoins is the balance of a newly created profile
const DefaultStartingCoins = 100

// Rules is the parsed rule policy
type Rules struct {
	Engine        engine.Rules
	StartingCoins int
}

// rulesFile represents the YAML structure of a rules file
type rulesFile struct {
	Boundaries  map[string]int `yaml:"boundaries"`
	MaxLevelUps int            `yaml:"max_level_ups"`
	Workout     struct {
		Experience *int `yaml:"experience"`
		Coins      *int `yaml:"coins"`
	} `yaml:"workout"`
	StartingCoins *int `yaml:"starting_coins"`
}

// DefaultRules returns the rules used when no file is configured
func DefaultRules() Rules {
	return Rules{
		Engine:        engine.DefaultRules(),
		StartingCoins: DefaultStartingCoins,
	}
}

// LoadRules reads a rules file. An empty path returns DefaultRules.
// Fields missing from the file keep their defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses YAML rule policy on top of DefaultRules
func ParseRules(data []byte) (Rules, error) {
	rules := DefaultRules()

	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	if len(rf.Boundaries) > 0 {
		b := rank.Boundaries{}
		for name, level := range rf.Boundaries {
			tier, err := rank.ParseTier(name)
			if err != nil {
				return Rules{}, fmt.Errorf("rules boundaries: %w", err)
			}
			b[tier] = level
		}
		if err := b.Validate(); err != nil {
			return Rules{}, fmt.Errorf("rules boundaries: %w", err)
		}
		rules.Engine.Boundaries = b
	}

	if rf.MaxLevelUps < 0 {
		return Rules{}, fmt.Errorf("max_level_ups must not be negative")
	}
	if rf.MaxLevelUps > 0 {
		rules.Engine.MaxLevelUps = rf.MaxLevelUps
	}

	completion := progression.DefaultWorkoutCompletion
	if rf.Workout.Experience != nil {
		if *rf.Workout.Experience < 0 {
			return Rules{}, fmt.Errorf("workout experience must not be negative")
		}
		completion.ExperienceAward = *rf.Workout.Experience
	}
	if rf.Workout.Coins != nil {
		completion.CoinAward = *rf.Workout.Coins
	}
	rules.Engine.WorkoutCompletion = completion

	if rf.StartingCoins != nil {
		if *rf.StartingCoins < 0 {
			return Rules{}, fmt.Errorf("starting_coins must not be negative")
		}
		rules.StartingCoins = *rf.StartingCoins
	}

	return rules, nil
}
