package rating

import (
	"sort"

	"github.com/mmeshcher/academy-store/internal/model"
)

const (
	// Window задаёт полуширину окна рейтинга кандидатов для персональных рекомендаций.
	Window = 350

	// SimilarWindow задаёт полуширину окна для поиска пользователей схожего уровня.
	SimilarWindow = 200

	// PerTopicLimit ограничивает число рекомендаций по одной теме.
	PerTopicLimit = 2

	// UnknownTopicWeakness используется для тем без истории оценок.
	UnknownTopicWeakness = 100

	targetOffset = 50
)

// ScoreMaterial оценивает соответствие материала навыкам пользователя; больше значит лучше.
func ScoreMaterial(skill *model.UserSkill, m model.Material) int {
	overall := Default
	if skill != nil && skill.OverallRating != 0 {
		overall = skill.OverallRating
	}

	topicRating := overall
	weakness := UnknownTopicWeakness
	if skill != nil {
		if ts, ok := skill.TopicSkills[m.TopicKey()]; ok {
			topicRating = ts.Rating
			weakness = Default - ts.Rating
		}
	}

	diff := m.DifficultyRating - (topicRating + targetOffset)
	if diff < 0 {
		diff = -diff
	}
	return weakness*2 - diff
}

// RankForStudent упорядочивает кандидатов по соответствию навыкам и ограничивает
// выдачу limit материалами, не более PerTopicLimit на тему.
func RankForStudent(skill *model.UserSkill, candidates []model.Material, limit int) []model.Material {
	type scored struct {
		m     model.Material
		score int
	}

	items := make([]scored, 0, len(candidates))
	for _, m := range candidates {
		items = append(items, scored{m: m, score: ScoreMaterial(skill, m)})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	perTopic := make(map[string]int)
	result := make([]model.Material, 0, min(limit, len(items)))
	for _, it := range items {
		if len(result) >= limit {
			break
		}
		key := it.m.TopicKey()
		if perTopic[key] >= PerTopicLimit {
			continue
		}
		perTopic[key]++
		result = append(result, it.m)
	}

	return result
}

// WindowBounds возвращает границы окна рейтинга сложности вокруг общего рейтинга пользователя.
func WindowBounds(skill *model.UserSkill) (lo, hi int) {
	overall := Default
	if skill != nil && skill.OverallRating != 0 {
		overall = skill.OverallRating
	}
	return overall - Window, overall + Window
}
