package matching

import (
	"sort"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH REASONS
// Причины - топ-3 фактора по вкладу (score * weight > 0), отрендеренные
// шаблонами с учётом роли кандидата. Если таких меньше трёх, список
// добивается общими фразами для роли: для оцениваемой пары он не бывает пустым.
// ══════════════════════════════════════════════════════════════════════════════

// MaxReasons - максимальное число причин у кандидата.
const MaxReasons = 3

// maxListedItems - сколько значений перечислять в одной причине.
const maxListedItems = 3

// roleFallbackReasons - общие причины для добивки списка.
var roleFallbackReasons = map[Role][]string{
	RoleFounder: {
		"Building a startup",
		"Open to collaboration",
		"Growing founder network",
	},
	RoleCoFounder: {
		"Looking for a co-founder",
		"Open to collaboration",
		"Ready to build together",
	},
	RoleInvestor: {
		"Active startup investor",
		"Open to new deals",
		"Backs early-stage teams",
	},
	RoleMentor: {
		"Experienced mentor",
		"Open to mentoring founders",
		"Shares industry know-how",
	},
}

// buildReasons выбирает и рендерит причины.
func buildReasons(factors []Factor, candidate *Profile) []string {
	ranked := make([]Factor, 0, len(factors))
	for _, f := range factors {
		if f.Contribution() > 0 {
			ranked = append(ranked, f)
		}
	}

	// Стабильная сортировка: при равном вкладе сохраняется канонический порядок.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Contribution() > ranked[j].Contribution()
	})

	reasons := make([]string, 0, MaxReasons)
	seen := make(map[string]struct{}, MaxReasons)
	add := func(text string) {
		if text == "" || len(reasons) >= MaxReasons {
			return
		}
		if _, dup := seen[text]; dup {
			return
		}
		seen[text] = struct{}{}
		reasons = append(reasons, text)
	}

	for _, f := range ranked {
		add(renderReason(f, candidate))
	}
	for _, text := range roleFallbackReasons[candidate.Role] {
		add(text)
	}
	return reasons
}

// renderReason превращает фактор в короткую фразу для пользователя.
func renderReason(f Factor, candidate *Profile) string {
	switch f.Name {
	case FactorSkillComplementarity:
		if len(f.Matched) > 0 {
			return "Shared skills: " + listItems(f.Matched)
		}
		return "Complementary skill sets"

	case FactorLocationProximity:
		switch {
		case f.Score >= locationSameCity:
			return "Both based in " + candidate.City()
		case f.Score >= locationSameRegion:
			return "Same region"
		case strings.TrimSpace(candidate.Location) == "":
			return "Open to remote collaboration"
		default:
			return "Based in " + strings.TrimSpace(candidate.Location)
		}

	case FactorStageAlignment:
		switch {
		case len(f.Matched) > 0:
			return "Both at " + f.Matched[0] + " stage"
		case candidate.HasStage():
			return "Building at " + candidate.Stage.DisplayName() + " stage"
		default:
			return "Flexible on company stage"
		}

	case FactorInvestmentAlignment:
		if len(f.Matched) > 0 {
			return f.Description
		}
		if len(candidate.InvestmentFocus) > 0 {
			return "Invests in " + listItems(candidate.InvestmentFocus)
		}
		return "Active startup investor"

	case FactorIndustryExpertise:
		if len(f.Matched) > 0 {
			return f.Description
		}
		if len(candidate.MentoringAreas) > 0 {
			return "Mentors in " + listItems(candidate.MentoringAreas)
		}
		return "Experienced mentor"

	case FactorAvailabilityMatch:
		if avail := strings.TrimSpace(candidate.Availability); avail != "" {
			return "Available " + avail
		}
		return "Flexible availability"

	default:
		return f.Description
	}
}

// listItems перечисляет до maxListedItems значений через запятую.
func listItems(items []string) string {
	cleaned := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			cleaned = append(cleaned, it)
		}
		if len(cleaned) == maxListedItems {
			break
		}
	}
	return strings.Join(cleaned, ", ")
}
