// Package rating реализует ELO-подобную модель навыков пользователя и ранжирование рекомендаций.
package rating

import (
	"math"
	"time"

	"github.com/mmeshcher/academy-store/internal/model"
)

const (
	// Min и Max задают допустимые границы любого рейтинга.
	Min = 100
	Max = 3000

	// Default присваивается новой теме и новому пользователю.
	Default = 1000

	// K определяет шаг изменения рейтинга пользователя.
	K = 32

	// MaterialK определяет шаг изменения рейтинга сложности материала.
	MaterialK = 8
)

// Clamp ограничивает значение границами [Min, Max].
func Clamp(v int) int {
	if v < Min {
		return Min
	}
	if v > Max {
		return Max
	}
	return v
}

// ExpectedProbability возвращает ожидаемый результат пользователя против материала.
func ExpectedProbability(userRating, materialRating int) float64 {
	return 1 / (1 + math.Pow(10, float64(materialRating-userRating)/400))
}

// Score переводит оценку сложности в результат партии: лёгкий материал считается победой.
func Score(d model.Difficulty) float64 {
	switch d {
	case model.DifficultyEasy:
		return 1
	case model.DifficultyNormal:
		return 0.5
	default:
		return 0
	}
}

// IsCorrect сообщает, засчитывается ли оценка как успешная попытка.
func IsCorrect(d model.Difficulty) bool {
	return d == model.DifficultyEasy || d == model.DifficultyNormal
}

// DefaultMaterialRating возвращает стартовый рейтинг материала по уровню сложности 1..5.
func DefaultMaterialRating(difficulty int) int {
	switch difficulty {
	case 1:
		return 600
	case 2:
		return 800
	case 4:
		return 1300
	case 5:
		return 1600
	default:
		return 1000
	}
}

// NewSkill возвращает пустой профиль навыков пользователя.
func NewSkill(userID int64) *model.UserSkill {
	return &model.UserSkill{
		UserID:        userID,
		OverallRating: Default,
		TopicSkills:   map[string]model.TopicSkill{},
	}
}

// Outcome описывает результат применения оценки.
type Outcome struct {
	Record            model.FeedbackRecord
	NewRating         int
	NewMaterialRating int
}

// Apply применяет оценку к профилю и возвращает запись с фактически применёнными изменениями.
// Профиль изменяется на месте.
func Apply(skill *model.UserSkill, material model.Material, d model.Difficulty, now time.Time) Outcome {
	if skill.TopicSkills == nil {
		skill.TopicSkills = map[string]model.TopicSkill{}
	}

	topic := material.TopicKey()
	current, ok := skill.TopicSkills[topic]
	if !ok {
		current = model.TopicSkill{Rating: Default}
	}

	p := ExpectedProbability(current.Rating, material.DifficultyRating)
	s := Score(d)
	delta := int(math.Round(K * (s - p)))

	before := current.Rating
	current.Rating = Clamp(before + delta)
	topicChange := current.Rating - before

	current.Attempts++
	if IsCorrect(d) {
		current.Correct++
	}
	ts := now
	current.LastAttempted = &ts
	skill.TopicSkills[topic] = current

	overallBefore := skill.OverallRating
	if overallBefore == 0 {
		overallBefore = Default
	}
	skill.OverallRating = Clamp(overallBefore + topicChange)
	overallChange := skill.OverallRating - overallBefore

	skill.TotalAttempts++
	if IsCorrect(d) {
		skill.TotalCorrect++
	}
	skill.UpdatedAt = now

	materialDelta := int(math.Round(MaterialK * (p - s)))
	materialAfter := Clamp(material.DifficultyRating + materialDelta)

	return Outcome{
		Record: model.FeedbackRecord{
			UserID:               skill.UserID,
			MaterialID:           material.MaterialID,
			Difficulty:           d,
			Topic:                topic,
			RatingBefore:         before,
			RatingChange:         topicChange,
			OverallChange:        overallChange,
			MaterialRatingBefore: material.DifficultyRating,
			MaterialChange:       materialAfter - material.DifficultyRating,
			CreatedAt:            now,
		},
		NewRating:         current.Rating,
		NewMaterialRating: materialAfter,
	}
}

// Revert отменяет ранее применённую оценку, вычитая сохранённые изменения.
// Возвращает восстановленный рейтинг сложности материала.
func Revert(skill *model.UserSkill, materialRating int, rec model.FeedbackRecord, now time.Time) int {
	correct := IsCorrect(rec.Difficulty)

	if ts, ok := skill.TopicSkills[rec.Topic]; ok {
		ts.Rating = Clamp(ts.Rating - rec.RatingChange)
		ts.Attempts = max(0, ts.Attempts-1)
		if correct {
			ts.Correct = max(0, ts.Correct-1)
		}
		skill.TopicSkills[rec.Topic] = ts
	}

	skill.OverallRating = Clamp(skill.OverallRating - rec.OverallChange)
	skill.TotalAttempts = max(0, skill.TotalAttempts-1)
	if correct {
		skill.TotalCorrect = max(0, skill.TotalCorrect-1)
	}
	skill.UpdatedAt = now

	return Clamp(materialRating - rec.MaterialChange)
}

// Level описывает словесный уровень рейтинга.
type Level struct {
	Label string `json:"label"`
	Star  int    `json:"star"`
}

// LevelFor переводит рейтинг в уровень для отображения.
func LevelFor(r int) Level {
	switch {
	case r >= 1500:
		return Level{Label: "최상", Star: 5}
	case r >= 1300:
		return Level{Label: "상", Star: 4}
	case r >= 1100:
		return Level{Label: "중상", Star: 3}
	case r >= 900:
		return Level{Label: "중", Star: 2}
	case r >= 700:
		return Level{Label: "중하", Star: 1}
	default:
		return Level{Label: "기초", Star: 0}
	}
}
