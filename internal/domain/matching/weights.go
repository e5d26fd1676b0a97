package matching

import (
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEIGHT CONFIGURATION
// Таблица весов зависит от пары ролей. Неприменимые факторы в таблицу
// не попадают вовсе: нулевой вес всё равно считался бы в знаменателе.
// ══════════════════════════════════════════════════════════════════════════════

// WeightTable - веса применимых факторов. Сумма не обязана быть равна 1,
// Scorer нормализует сам.
type WeightTable map[FactorName]float64

// Factors возвращает факторы таблицы в каноническом порядке.
func (t WeightTable) Factors() []FactorName {
	names := make([]FactorName, 0, len(t))
	for _, name := range AllFactors {
		if _, ok := t[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Has проверяет, применим ли фактор.
func (t WeightTable) Has(name FactorName) bool {
	_, ok := t[name]
	return ok
}

// Total возвращает сумму весов.
func (t WeightTable) Total() float64 {
	total := 0.0
	for _, w := range t {
		total += w
	}
	return total
}

// WeightResolver выбирает таблицу весов для пары ролей.
type WeightResolver interface {
	Resolve(requesterRole, candidateRole Role) WeightTable
}

// Базовые веса.
const (
	DefaultSkillWeight        = 0.30
	DefaultLocationWeight     = 0.15
	DefaultStageWeight        = 0.20
	DefaultInvestmentWeight   = 0.25
	DefaultIndustryWeight     = 0.25
	DefaultAvailabilityWeight = 0.10
)

// DefaultBaseWeights возвращает базовые веса всех факторов.
func DefaultBaseWeights() map[FactorName]float64 {
	return map[FactorName]float64{
		FactorSkillComplementarity: DefaultSkillWeight,
		FactorLocationProximity:    DefaultLocationWeight,
		FactorStageAlignment:       DefaultStageWeight,
		FactorInvestmentAlignment:  DefaultInvestmentWeight,
		FactorIndustryExpertise:    DefaultIndustryWeight,
		FactorAvailabilityMatch:    DefaultAvailabilityWeight,
	}
}

// DefaultRoleOverrides возвращает переопределения весов по роли кандидата.
func DefaultRoleOverrides() map[Role]map[FactorName]float64 {
	return map[Role]map[FactorName]float64{
		RoleInvestor: {
			FactorInvestmentAlignment:  0.40, // Фокус инвестора важнее навыков
			FactorSkillComplementarity: 0.20,
		},
		RoleMentor: {
			FactorIndustryExpertise:    0.40, // Экспертиза ментора решает
			FactorSkillComplementarity: 0.25,
		},
	}
}

// StaticWeightResolver - резолвер на фиксированных таблицах.
type StaticWeightResolver struct {
	base      map[FactorName]float64
	overrides map[Role]map[FactorName]float64
}

// WeightOption настраивает StaticWeightResolver.
type WeightOption func(*StaticWeightResolver)

// WithBaseWeight переопределяет базовый вес фактора.
func WithBaseWeight(name FactorName, weight float64) WeightOption {
	return func(r *StaticWeightResolver) {
		r.base[name] = weight
	}
}

// WithRoleOverride переопределяет вес фактора для роли кандидата.
func WithRoleOverride(role Role, name FactorName, weight float64) WeightOption {
	return func(r *StaticWeightResolver) {
		if r.overrides[role] == nil {
			r.overrides[role] = make(map[FactorName]float64)
		}
		r.overrides[role][name] = weight
	}
}

// NewStaticWeightResolver создаёт резолвер со стандартными весами.
// Отрицательные или неизвестные веса отклоняются.
func NewStaticWeightResolver(opts ...WeightOption) (*StaticWeightResolver, error) {
	r := &StaticWeightResolver{
		base:      DefaultBaseWeights(),
		overrides: DefaultRoleOverrides(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for name, w := range r.base {
		if err := checkWeight(name, w); err != nil {
			return nil, err
		}
	}
	for _, table := range r.overrides {
		for name, w := range table {
			if err := checkWeight(name, w); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// DefaultWeightResolver возвращает резолвер со стандартными весами.
func DefaultWeightResolver() *StaticWeightResolver {
	r, _ := NewStaticWeightResolver()
	return r
}

func checkWeight(name FactorName, w float64) error {
	if !name.IsValid() {
		return fmt.Errorf("unknown factor %q", name)
	}
	if w < 0 {
		return fmt.Errorf("weight for %s must be non-negative, got %v", name, w)
	}
	return nil
}

// Resolve возвращает таблицу только применимых к паре факторов.
func (r *StaticWeightResolver) Resolve(requesterRole, candidateRole Role) WeightTable {
	applicable := ApplicableFactors(requesterRole, candidateRole)
	table := make(WeightTable, len(applicable))
	for _, name := range applicable {
		table[name] = r.base[name]
	}
	for name, w := range r.overrides[candidateRole] {
		if _, ok := table[name]; ok {
			table[name] = w
		}
	}
	return table
}

// ApplicableFactors возвращает факторы, которые имеют смысл для пары ролей:
//   - skill, location, availability - всегда;
//   - stage_alignment - только если обе роли строят компанию;
//   - investment_alignment - только для кандидата-инвестора;
//   - industry_expertise - только для кандидата-ментора.
func ApplicableFactors(requesterRole, candidateRole Role) []FactorName {
	names := []FactorName{
		FactorSkillComplementarity,
		FactorLocationProximity,
	}
	if requesterRole.IsFounderSide() && candidateRole.IsFounderSide() {
		names = append(names, FactorStageAlignment)
	}
	switch candidateRole {
	case RoleInvestor:
		names = append(names, FactorInvestmentAlignment)
	case RoleMentor:
		names = append(names, FactorIndustryExpertise)
	}
	return append(names, FactorAvailabilityMatch)
}
