package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/progression-engine/internal/rank"
)

func TestLoadFromRepositoryTemplates(t *testing.T) {
	dir := filepath.Join("..", "..", "templates")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Skip("templates directory not found, skipping")
	}

	l := NewLoader(nil)
	require.NoError(t, l.LoadFromDir(dir))

	all := l.List(Filter{})
	require.Len(t, all, len(DefaultWorkouts()))
	for i, w := range DefaultWorkouts() {
		assert.Equal(t, w.ID, all[i].ID)
		assert.Equal(t, w.Title, all[i].Title)
	}

	hiit := l.Get("workout6")
	require.NotNil(t, hiit)
	assert.Equal(t, 60, hiit.ExperienceAward)
	assert.Equal(t, "advanced", hiit.Difficulty)
}

func TestMissingDirUsesDefaults(t *testing.T) {
	l := NewLoader(nil)
	require.NoError(t, l.LoadFromDir(filepath.Join(t.TempDir(), "nope")))

	w := l.Get("workout1")
	require.NotNil(t, w)
	// 3 sets of reps is 3*45 + 2*60 = 255, three of those plus a 30 s plank
	assert.Equal(t, 795, w.EstimatedSeconds)
}

func TestForRankScalesRepsOnly(t *testing.T) {
	l := NewLoader(nil)
	require.NoError(t, l.LoadDefaults())

	tests := []struct {
		tier    rank.Tier
		pushUps int
		squats  int
	}{
		{rank.E, 8, 12},
		{rank.D, 12, 18},
		{rank.B, 20, 30},
		{rank.S, 32, 48},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			w, err := l.GetForRank("workout1", tt.tier)
			require.NoError(t, err)
			require.NotNil(t, w)

			assert.Equal(t, tt.tier, w.Rank)
			assert.Equal(t, tt.pushUps, *w.Exercises[0].Reps)
			assert.Equal(t, tt.squats, *w.Exercises[1].Reps)
			assert.Equal(t, 3, *w.Exercises[0].Sets)
			assert.Equal(t, 795, w.EstimatedSeconds)
		})
	}

	// the stored base workout is untouched
	assert.Equal(t, 8, *l.Get("workout1").Exercises[0].Reps)

	_, err := l.ForRank(rank.Tier("Z"), Filter{})
	assert.ErrorIs(t, err, rank.ErrInvalidTier)
}

func TestListFilter(t *testing.T) {
	l := NewLoader(nil)
	require.NoError(t, l.LoadDefaults())

	cardio := l.List(Filter{Type: "cardio"})
	require.Len(t, cardio, 2)
	assert.Equal(t, "workout2", cardio[0].ID)
	assert.Equal(t, "workout6", cardio[1].ID)

	advancedStrength := l.List(Filter{Type: "strength", Difficulty: "Advanced"})
	require.Len(t, advancedStrength, 1)
	assert.Equal(t, "workout4", advancedStrength[0].ID)
}

func TestLoadFromFileValidates(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(nil)

	good := filepath.Join(dir, "stretch.yaml")
	require.NoError(t, os.WriteFile(good, []byte("title: Stretch\nexercises:\n  - name: Hamstring\n    duration: 2 min\n"), 0o644))
	require.NoError(t, l.LoadFromFile(good))

	w := l.Get("stretch")
	require.NotNil(t, w, "id falls back to the file name")
	assert.Equal(t, 120, w.EstimatedSeconds)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("id: empty\ntitle: Empty\n"), 0o644))
	assert.Error(t, l.LoadFromFile(empty))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("id: bad\ntitle: Bad\nexercises:\n  - name: X\n    sets: 0\n"), 0o644))
	assert.Error(t, l.LoadFromFile(bad))

	l.Remove("stretch")
	assert.Nil(t, l.Get("stretch"))
}
