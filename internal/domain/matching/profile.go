// Package matching содержит ядро подбора: калькуляторы факторов совместимости,
// таблицы весов, скоринг пары (requester, candidate), ранжирование пула кандидатов
// и очередь свайпов с продвижением взаимных совпадений в Connections.
//
// Пакет не выполняет I/O на горячем пути скоринга: профили приходят снимком
// (read-only), а всё, что требует хранилища, описано интерфейсами в repository.go.
package matching

import (
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLE
// ══════════════════════════════════════════════════════════════════════════════

// Role определяет роль участника платформы.
type Role string

const (
	// RoleFounder - основатель стартапа.
	RoleFounder Role = "founder"

	// RoleCoFounder - ищет сооснователя / готов им стать.
	RoleCoFounder Role = "cofounder"

	// RoleInvestor - инвестор.
	RoleInvestor Role = "investor"

	// RoleMentor - ментор.
	RoleMentor Role = "mentor"
)

// IsValid проверяет корректность роли.
func (r Role) IsValid() bool {
	switch r {
	case RoleFounder, RoleCoFounder, RoleInvestor, RoleMentor:
		return true
	default:
		return false
	}
}

// IsFounderSide возвращает true для ролей, строящих компанию (Founder, CoFounder).
func (r Role) IsFounderSide() bool {
	return r == RoleFounder || r == RoleCoFounder
}

// String возвращает строковое представление.
func (r Role) String() string {
	return string(r)
}

// ParseRole разбирает роль из пользовательского написания
// ("Co-Founder", "co founder", "Investor" и т.п.).
func ParseRole(s string) (Role, bool) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch key {
	case "founder":
		return RoleFounder, true
	case "cofounder", "cofounderseeker":
		return RoleCoFounder, true
	case "investor":
		return RoleInvestor, true
	case "mentor":
		return RoleMentor, true
	default:
		return "", false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STAGE
// ══════════════════════════════════════════════════════════════════════════════

// Stage - стадия стартапа. Упорядочена: ideation < validation < mvp <
// early_traction < scaling < growth.
type Stage string

const (
	StageIdeation      Stage = "ideation"
	StageValidation    Stage = "validation"
	StageMVP           Stage = "mvp"
	StageEarlyTraction Stage = "early_traction"
	StageScaling       Stage = "scaling"
	StageGrowth        Stage = "growth"
)

// stageOrder - фиксированный порядок стадий.
var stageOrder = []Stage{
	StageIdeation,
	StageValidation,
	StageMVP,
	StageEarlyTraction,
	StageScaling,
	StageGrowth,
}

// stageCount - знаменатель для stage_alignment.
const stageCount = 6

// Funding round labels.
const (
	RoundPreSeed = "Pre-seed"
	RoundSeed    = "Seed"
	RoundSeriesA = "Series A"
	RoundSeriesB = "Series B"
	RoundSeriesC = "Series C+"
)

// stageFundingRounds - соответствие стадии и подходящих раундов финансирования.
var stageFundingRounds = map[Stage][]string{
	StageIdeation:      {RoundPreSeed},
	StageValidation:    {RoundPreSeed, RoundSeed},
	StageMVP:           {RoundPreSeed, RoundSeed},
	StageEarlyTraction: {RoundSeed, RoundSeriesA},
	StageScaling:       {RoundSeriesA, RoundSeriesB, RoundSeriesC},
	StageGrowth:        {RoundSeriesB, RoundSeriesC},
}

// IsValid проверяет, что стадия известна.
func (s Stage) IsValid() bool {
	return s.Ordinal() >= 0
}

// Ordinal возвращает позицию стадии в порядке (0..5) или -1 для неизвестной.
func (s Stage) Ordinal() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// FundingRounds возвращает раунды, уместные для стадии.
func (s Stage) FundingRounds() []string {
	return stageFundingRounds[s]
}

// DisplayName возвращает человекочитаемое название стадии.
func (s Stage) DisplayName() string {
	switch s {
	case StageIdeation:
		return "Ideation"
	case StageValidation:
		return "Validation"
	case StageMVP:
		return "MVP"
	case StageEarlyTraction:
		return "Early Traction"
	case StageScaling:
		return "Scaling"
	case StageGrowth:
		return "Growth"
	default:
		return string(s)
	}
}

// ParseStage разбирает стадию ("Early Traction", "early-traction", "MVP").
// Пустая или неизвестная строка даёт ("", false).
func ParseStage(s string) (Stage, bool) {
	key := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
	st := Stage(key)
	if st.IsValid() {
		return st, true
	}
	return "", false
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile - снимок участника платформы, используемый для подбора.
// Ядро никогда не модифицирует профиль.
type Profile struct {
	// ID - стабильный непрозрачный идентификатор.
	ID string `json:"id"`

	// DisplayName - отображаемое имя.
	DisplayName string `json:"display_name"`

	// Role - роль. Неизменна во время скоринга.
	Role Role `json:"role"`

	// Location - свободный текст "город, регион/страна".
	Location string `json:"location"`

	// Skills - что профиль предлагает.
	Skills []string `json:"skills"`

	// LookingFor - что профиль ищет (может быть пустым).
	LookingFor []string `json:"looking_for"`

	// ─────────────────────────────────────────────────────────────────────────
	// Опциональные атрибуты (зависят от роли)
	// ─────────────────────────────────────────────────────────────────────────

	Industry        string   `json:"industry,omitempty"`
	Stage           Stage    `json:"stage,omitempty"`
	InvestmentFocus []string `json:"investment_focus,omitempty"`
	Sectors         []string `json:"sectors,omitempty"`
	MentoringAreas  []string `json:"mentoring_areas,omitempty"`
	Experience      string   `json:"experience,omitempty"`
	Availability    string   `json:"availability,omitempty"`
}

// Validate проверяет структурные инварианты профиля: непустой ID и известная роль.
// Отсутствие опциональных полей ошибкой не является.
func (p *Profile) Validate() error {
	if p == nil {
		return ErrInvalidProfile
	}
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidProfile
	}
	if !p.Role.IsValid() {
		return ErrInvalidProfile
	}
	return nil
}

// HasStage возвращает true, если стадия указана и известна.
func (p *Profile) HasStage() bool {
	return p.Stage.IsValid()
}

// City возвращает первый сегмент локации (до первой запятой).
func (p *Profile) City() string {
	city, _, _ := strings.Cut(p.Location, ",")
	return strings.TrimSpace(city)
}

// ══════════════════════════════════════════════════════════════════════════════
// SET HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// foldKey нормализует строку для сравнения множеств.
// Применяется одинаково к обеим сторонам пересечения.
func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// foldSet строит множество нормализованных строк (пустые пропускаются).
func foldSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		k := foldKey(v)
		if k == "" {
			continue
		}
		set[k] = struct{}{}
	}
	return set
}

// intersect возвращает элементы offered (в исходном написании и порядке),
// которые присутствуют в wanted. Дубликаты по нормализованному ключу схлопываются.
func intersect(offered []string, wanted map[string]struct{}) []string {
	out := make([]string, 0)
	seen := make(map[string]struct{}, len(offered))
	for _, v := range offered {
		k := foldKey(v)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		if _, ok := wanted[k]; ok {
			seen[k] = struct{}{}
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

// containsFold проверяет вхождение значения в список без учёта регистра.
func containsFold(values []string, needle string) bool {
	n := foldKey(needle)
	if n == "" {
		return false
	}
	for _, v := range values {
		if foldKey(v) == n {
			return true
		}
	}
	return false
}
