package matching

import (
	"math"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPATIBILITY FACTORS
// Каждый калькулятор - чистая тотальная функция (requester, candidate) -> Factor.
// Никогда не паникует и не возвращает ошибку: отсутствующие данные дают
// задокументированное нейтральное значение.
// ══════════════════════════════════════════════════════════════════════════════

// FactorName - имя фактора совместимости (фиксированный словарь).
type FactorName string

const (
	FactorSkillComplementarity FactorName = "skill_complementarity"
	FactorLocationProximity    FactorName = "location_proximity"
	FactorStageAlignment       FactorName = "stage_alignment"
	FactorInvestmentAlignment  FactorName = "investment_alignment"
	FactorIndustryExpertise    FactorName = "industry_expertise"
	FactorAvailabilityMatch    FactorName = "availability_match"
)

// AllFactors - все факторы в каноническом порядке.
var AllFactors = []FactorName{
	FactorSkillComplementarity,
	FactorLocationProximity,
	FactorStageAlignment,
	FactorInvestmentAlignment,
	FactorIndustryExpertise,
	FactorAvailabilityMatch,
}

// IsValid проверяет, что имя фактора из словаря.
func (f FactorName) IsValid() bool {
	for _, name := range AllFactors {
		if name == f {
			return true
		}
	}
	return false
}

// Нейтральные значения и константы факторов.
const (
	neutralScore = 0.5

	locationSameCity   = 1.0
	locationSameRegion = 0.7
	locationElsewhere  = 0.3

	industryHit  = 1.0
	industryMiss = 0.3
	roundHit     = 1.0
	roundMiss    = 0.2

	availabilityPlaceholder = 0.8
	availabilitySame        = 1.0
	availabilityDifferent   = 0.6
)

// Factor - промежуточный результат расчёта одного фактора для пары.
type Factor struct {
	// Name - имя фактора.
	Name FactorName `json:"name"`

	// Score - нормализованная оценка [0,1].
	Score float64 `json:"score"`

	// Description - описание для человека.
	Description string `json:"description"`

	// Weight - вес фактора в таблице пары. Заполняется Scorer'ом.
	Weight float64 `json:"weight"`

	// Matched - значения, на которых совпали профили (навыки, город, стадия...).
	// Используется для текстов причин.
	Matched []string `json:"matched,omitempty"`
}

// Contribution возвращает вклад фактора в итоговую оценку (score * weight).
func (f Factor) Contribution() float64 {
	return f.Score * f.Weight
}

// FactorCalculator вычисляет один фактор для пары профилей.
type FactorCalculator func(requester, candidate *Profile) Factor

// DefaultCalculators возвращает стандартный набор калькуляторов.
func DefaultCalculators() map[FactorName]FactorCalculator {
	return map[FactorName]FactorCalculator{
		FactorSkillComplementarity: SkillComplementarity,
		FactorLocationProximity:    LocationProximity,
		FactorStageAlignment:       StageAlignment,
		FactorInvestmentAlignment:  InvestmentAlignment,
		FactorIndustryExpertise:    IndustryExpertise,
		FactorAvailabilityMatch:    AvailabilityMatch,
	}
}

// clamp01 ограничивает значение диапазоном [0,1].
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ratio возвращает hits / max(1, total).
func ratio(hits, total int) float64 {
	if total < 1 {
		total = 1
	}
	return float64(hits) / float64(total)
}

// mean возвращает среднее значение или fallback для пустого набора.
func mean(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ─────────────────────────────────────────────────────────────────────────────
// skill_complementarity
// ─────────────────────────────────────────────────────────────────────────────

// SkillComplementarity - насколько навыки каждой стороны закрывают потребности другой.
// Если обе стороны ничего не ищут, оценка ровно 0.5 ("неизвестно", а не "нет совпадения").
func SkillComplementarity(requester, candidate *Profile) Factor {
	rLooking := foldSet(requester.LookingFor)
	cLooking := foldSet(candidate.LookingFor)

	if len(rLooking) == 0 && len(cLooking) == 0 {
		return Factor{
			Name:        FactorSkillComplementarity,
			Score:       neutralScore,
			Description: "Neither side listed what they are looking for",
		}
	}

	offeredToRequester := intersect(candidate.Skills, rLooking)
	offeredToCandidate := intersect(requester.Skills, cLooking)

	satisfactionOfRequester := ratio(len(offeredToRequester), len(rLooking))
	satisfactionOfCandidate := ratio(len(offeredToCandidate), len(cLooking))

	score := clamp01((satisfactionOfRequester + satisfactionOfCandidate) / 2)

	var desc string
	switch {
	case score >= 1:
		desc = "Skills fully complement each other"
	case len(offeredToRequester) > 0:
		desc = "Brings skills you are looking for: " + strings.Join(offeredToRequester, ", ")
	case len(offeredToCandidate) > 0:
		desc = "Looking for skills you offer: " + strings.Join(offeredToCandidate, ", ")
	default:
		desc = "Little overlap between skills and needs"
	}

	return Factor{
		Name:        FactorSkillComplementarity,
		Score:       score,
		Description: desc,
		Matched:     offeredToRequester,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// location_proximity
// ─────────────────────────────────────────────────────────────────────────────

// LocationProximity сравнивает локации без геокодинга.
// Расстояние никогда не обнуляет совпадение: минимум 0.3.
// Пустая локация у любой из сторон (или у обеих) даёт нейтральные 0.5:
// отсутствующее поле не штрафуется и не считается совпадением подстроки.
func LocationProximity(requester, candidate *Profile) Factor {
	rLoc := strings.TrimSpace(requester.Location)
	cLoc := strings.TrimSpace(candidate.Location)

	if rLoc == "" || cLoc == "" {
		return Factor{
			Name:        FactorLocationProximity,
			Score:       neutralScore,
			Description: "Location not specified",
		}
	}

	rCity, cCity := requester.City(), candidate.City()
	if rCity != "" && strings.EqualFold(rCity, cCity) {
		return Factor{
			Name:        FactorLocationProximity,
			Score:       locationSameCity,
			Description: "Both based in " + cCity,
			Matched:     []string{cCity},
		}
	}

	rLower, cLower := strings.ToLower(rLoc), strings.ToLower(cLoc)
	if strings.Contains(rLower, cLower) || strings.Contains(cLower, rLower) {
		return Factor{
			Name:        FactorLocationProximity,
			Score:       locationSameRegion,
			Description: "Same region",
		}
	}

	return Factor{
		Name:        FactorLocationProximity,
		Score:       locationElsewhere,
		Description: "Based in " + cLoc,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// stage_alignment
// ─────────────────────────────────────────────────────────────────────────────

// StageAlignment - близость стадий: max(0, 1 - |diff|/6).
func StageAlignment(requester, candidate *Profile) Factor {
	if !requester.HasStage() || !candidate.HasStage() {
		return Factor{
			Name:        FactorStageAlignment,
			Score:       neutralScore,
			Description: "Stage not specified",
		}
	}

	diff := requester.Stage.Ordinal() - candidate.Stage.Ordinal()
	if diff < 0 {
		diff = -diff
	}
	score := clamp01(1 - float64(diff)/stageCount)

	if diff == 0 {
		return Factor{
			Name:        FactorStageAlignment,
			Score:       score,
			Description: "Both at " + candidate.Stage.DisplayName() + " stage",
			Matched:     []string{candidate.Stage.DisplayName()},
		}
	}

	return Factor{
		Name:        FactorStageAlignment,
		Score:       score,
		Description: requester.Stage.DisplayName() + " vs " + candidate.Stage.DisplayName() + " stage",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// investment_alignment
// ─────────────────────────────────────────────────────────────────────────────

// InvestmentAlignment - совпадение индустрии и раунда с фокусом инвестора.
// Подоценка пропускается, если нужного поля нет хотя бы у одной стороны.
func InvestmentAlignment(requester, candidate *Profile) Factor {
	subScores := make([]float64, 0, 2)
	matched := make([]string, 0, 2)
	parts := make([]string, 0, 2)

	if strings.TrimSpace(requester.Industry) != "" && len(candidate.InvestmentFocus) > 0 {
		if containsFold(candidate.InvestmentFocus, requester.Industry) {
			subScores = append(subScores, industryHit)
			matched = append(matched, strings.TrimSpace(requester.Industry))
			parts = append(parts, "Invests in "+strings.TrimSpace(requester.Industry))
		} else {
			subScores = append(subScores, industryMiss)
		}
	}

	if requester.HasStage() && len(candidate.Sectors) > 0 {
		if round, ok := firstRoundHit(requester.Stage, candidate.Sectors); ok {
			subScores = append(subScores, roundHit)
			matched = append(matched, round)
			parts = append(parts, "Funds "+round+" rounds")
		} else {
			subScores = append(subScores, roundMiss)
		}
	}

	desc := "Investment focus partially known"
	switch {
	case len(subScores) == 0:
		desc = "Investment focus not specified"
	case len(parts) > 0:
		desc = strings.Join(parts, "; ")
	case len(subScores) > 0:
		desc = "Outside current investment focus"
	}

	return Factor{
		Name:        FactorInvestmentAlignment,
		Score:       clamp01(mean(subScores, neutralScore)),
		Description: desc,
		Matched:     matched,
	}
}

// firstRoundHit ищет первый раунд стадии, присутствующий в секторах инвестора.
func firstRoundHit(stage Stage, sectors []string) (string, bool) {
	for _, round := range stage.FundingRounds() {
		if containsFold(sectors, round) {
			return round, true
		}
	}
	return "", false
}

// ─────────────────────────────────────────────────────────────────────────────
// industry_expertise
// ─────────────────────────────────────────────────────────────────────────────

// IndustryExpertise - экспертиза ментора в индустрии и навыках, нужных requester.
func IndustryExpertise(requester, candidate *Profile) Factor {
	subScores := make([]float64, 0, 2)
	matched := make([]string, 0)
	parts := make([]string, 0, 2)

	if strings.TrimSpace(requester.Industry) != "" && len(candidate.MentoringAreas) > 0 {
		if containsFold(candidate.MentoringAreas, requester.Industry) {
			subScores = append(subScores, industryHit)
			matched = append(matched, strings.TrimSpace(requester.Industry))
			parts = append(parts, "Mentors in "+strings.TrimSpace(requester.Industry))
		} else {
			subScores = append(subScores, industryMiss)
		}
	}

	rLooking := foldSet(requester.LookingFor)
	if len(rLooking) > 0 {
		overlap := intersect(candidate.Skills, rLooking)
		subScores = append(subScores, ratio(len(overlap), len(rLooking)))
		if len(overlap) > 0 {
			matched = append(matched, overlap...)
			parts = append(parts, "Expertise in "+strings.Join(overlap, ", "))
		}
	}

	desc := "Mentoring focus not specified"
	switch {
	case len(parts) > 0:
		desc = strings.Join(parts, "; ")
	case len(subScores) > 0:
		desc = "Mentoring focus differs from your needs"
	}

	return Factor{
		Name:        FactorIndustryExpertise,
		Score:       clamp01(mean(subScores, neutralScore)),
		Description: desc,
		Matched:     matched,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// availability_match
// ─────────────────────────────────────────────────────────────────────────────

// AvailabilityMatch - заглушка 0.8 при отсутствии данных о расписании.
// TODO: заменить сравнение строк пересечением слотов, когда профили начнут хранить расписание.
func AvailabilityMatch(requester, candidate *Profile) Factor {
	rAvail := strings.TrimSpace(requester.Availability)
	cAvail := strings.TrimSpace(candidate.Availability)

	if rAvail == "" || cAvail == "" {
		return Factor{
			Name:        FactorAvailabilityMatch,
			Score:       availabilityPlaceholder,
			Description: "Flexible availability",
		}
	}

	if strings.EqualFold(rAvail, cAvail) {
		return Factor{
			Name:        FactorAvailabilityMatch,
			Score:       availabilitySame,
			Description: "Both available " + cAvail,
			Matched:     []string{cAvail},
		}
	}

	return Factor{
		Name:        FactorAvailabilityMatch,
		Score:       availabilityDifferent,
		Description: "Available " + cAvail,
	}
}
