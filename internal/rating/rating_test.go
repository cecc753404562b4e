package rating

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/academy-store/internal/model"
)

func material(id, topic string, rating int) model.Material {
	return model.Material{MaterialID: id, Subject: "math", Topic: topic, DifficultyRating: rating}
}

func TestExpectedProbability(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedProbability(1000, 1000), 1e-9)
	assert.Greater(t, ExpectedProbability(1400, 1000), 0.9)
	assert.Less(t, ExpectedProbability(1000, 1400), 0.1)
}

func TestApply_Direction(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := material("m1", "algebra", 1000)

	tests := []struct {
		d    model.Difficulty
		sign int
	}{
		{d: model.DifficultyEasy, sign: 1},
		{d: model.DifficultyNormal, sign: 0},
		{d: model.DifficultyHard, sign: -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.d), func(t *testing.T) {
			skill := NewSkill(1)
			out := Apply(skill, m, tt.d, now)

			switch tt.sign {
			case 1:
				assert.Greater(t, out.Record.RatingChange, 0)
				assert.Less(t, out.Record.MaterialChange, 0)
			case -1:
				assert.Less(t, out.Record.RatingChange, 0)
				assert.Greater(t, out.Record.MaterialChange, 0)
			default:
				assert.Equal(t, 0, out.Record.RatingChange)
			}
			assert.Equal(t, 1, skill.TopicSkills["algebra"].Attempts)
			assert.Equal(t, 1, skill.TotalAttempts)
			assert.Equal(t, IsCorrect(tt.d), skill.TotalCorrect == 1)
		})
	}
}

func TestApply_HardOnStrongTopic(t *testing.T) {
	now := time.Now()
	skill := NewSkill(7)
	skill.TopicSkills["geometry"] = model.TopicSkill{Rating: 1200, Attempts: 3, Correct: 3}
	m := material("m-normal", "geometry", DefaultMaterialRating(3))

	hard := Apply(skill, m, model.DifficultyHard, now)
	require.Equal(t, 1200, hard.Record.RatingBefore)

	easySkill := NewSkill(7)
	easySkill.TopicSkills["geometry"] = model.TopicSkill{Rating: 1200}
	easy := Apply(easySkill, m, model.DifficultyEasy, now)

	assert.Less(t, hard.Record.RatingChange, 0)
	assert.Greater(t, easy.Record.RatingChange, 0)
	assert.Greater(t, -hard.Record.RatingChange, easy.Record.RatingChange)

	Revert(skill, hard.NewMaterialRating, hard.Record, now)
	assert.Equal(t, 1200, skill.TopicSkills["geometry"].Rating)
	assert.Equal(t, 3, skill.TopicSkills["geometry"].Attempts)
}

func TestApplyRevert_RoundTrip(t *testing.T) {
	now := time.Now()
	rng := rand.New(rand.NewSource(42))
	difficulties := []model.Difficulty{model.DifficultyEasy, model.DifficultyNormal, model.DifficultyHard}

	for i := 0; i < 500; i++ {
		skill := NewSkill(1)
		skill.OverallRating = Min + rng.Intn(Max-Min+1)
		topicRating := Min + rng.Intn(Max-Min+1)
		skill.TopicSkills["t"] = model.TopicSkill{Rating: topicRating, Attempts: 2, Correct: 1}
		skill.TotalAttempts = 2
		skill.TotalCorrect = 1

		matRating := Min + rng.Intn(Max-Min+1)
		m := material("m", "t", matRating)
		d := difficulties[rng.Intn(len(difficulties))]

		overall := skill.OverallRating
		out := Apply(skill, m, d, now)
		restored := Revert(skill, out.NewMaterialRating, out.Record, now)

		require.Equal(t, topicRating, skill.TopicSkills["t"].Rating)
		require.Equal(t, overall, skill.OverallRating)
		require.Equal(t, matRating, restored)
		require.Equal(t, 2, skill.TotalAttempts)
		require.Equal(t, 1, skill.TotalCorrect)
	}
}

func TestApply_AlwaysClamped(t *testing.T) {
	now := time.Now()
	rng := rand.New(rand.NewSource(7))
	difficulties := []model.Difficulty{model.DifficultyEasy, model.DifficultyNormal, model.DifficultyHard}

	skill := NewSkill(1)
	matRating := 1000
	for i := 0; i < 2000; i++ {
		var d model.Difficulty
		if i < 1000 {
			d = model.DifficultyEasy
		} else {
			d = difficulties[rng.Intn(len(difficulties))]
		}
		out := Apply(skill, material("m", "t", matRating), d, now)
		matRating = out.NewMaterialRating

		r := skill.TopicSkills["t"].Rating
		require.GreaterOrEqual(t, r, Min)
		require.LessOrEqual(t, r, Max)
		require.GreaterOrEqual(t, skill.OverallRating, Min)
		require.LessOrEqual(t, skill.OverallRating, Max)
		require.GreaterOrEqual(t, matRating, Min)
		require.LessOrEqual(t, matRating, Max)
	}
}

func TestRevert_MissingTopic(t *testing.T) {
	skill := NewSkill(1)
	rec := model.FeedbackRecord{Topic: "gone", RatingChange: 10, OverallChange: 10, MaterialChange: -3, Difficulty: model.DifficultyEasy}
	skill.OverallRating = 1010
	skill.TotalAttempts = 1
	skill.TotalCorrect = 1

	mr := Revert(skill, 997, rec, time.Now())

	assert.Equal(t, 1000, skill.OverallRating)
	assert.Equal(t, 1000, mr)
	assert.Equal(t, 0, skill.TotalAttempts)
	assert.Equal(t, 0, skill.TotalCorrect)
	_, ok := skill.TopicSkills["gone"]
	assert.False(t, ok)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, 5, LevelFor(1500).Star)
	assert.Equal(t, 4, LevelFor(1499).Star)
	assert.Equal(t, 2, LevelFor(900).Star)
	assert.Equal(t, 0, LevelFor(100).Star)
}

func TestDefaultMaterialRating(t *testing.T) {
	assert.Equal(t, 600, DefaultMaterialRating(1))
	assert.Equal(t, 1000, DefaultMaterialRating(3))
	assert.Equal(t, 1600, DefaultMaterialRating(5))
	assert.Equal(t, 1000, DefaultMaterialRating(0))
}
