package matching

import (
	"fmt"
	"math"
	"strings"

	"github.com/founderlink/founder-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH SCORE
// ══════════════════════════════════════════════════════════════════════════════

// MaxMatchScore - верхняя граница оценки. 100 никогда не выдаётся:
// идеальное совпадение не означает идентичность.
const MaxMatchScore MatchScore = 99

// MatchScore представляет оценку совместимости (0-99).
type MatchScore int

// IsValid проверяет корректность оценки.
func (m MatchScore) IsValid() bool {
	return m >= 0 && m <= MaxMatchScore
}

// Quality возвращает качественную оценку совместимости.
func (m MatchScore) Quality() MatchQuality {
	switch {
	case m >= 80:
		return MatchQualityExcellent
	case m >= 60:
		return MatchQualityGood
	case m >= 40:
		return MatchQualityFair
	case m >= 20:
		return MatchQualityPoor
	default:
		return MatchQualityNone
	}
}

// MatchQuality определяет качество подбора.
type MatchQuality string

const (
	MatchQualityExcellent MatchQuality = "excellent"
	MatchQualityGood      MatchQuality = "good"
	MatchQualityFair      MatchQuality = "fair"
	MatchQualityPoor      MatchQuality = "poor"
	MatchQualityNone      MatchQuality = "none"
)

// aggregate вычисляет round(100 * Σ(score·w) / Σw), ограниченное [0,99].
// Нулевая сумма весов даёт 0.
func aggregate(factors []Factor) MatchScore {
	var weighted, total float64
	for _, f := range factors {
		weighted += f.Contribution()
		total += f.Weight
	}
	if total <= 0 {
		return 0
	}

	raw := math.Round(100 * weighted / total)
	switch {
	case math.IsNaN(raw) || raw < 0:
		return 0
	case raw > float64(MaxMatchScore):
		return MaxMatchScore
	default:
		return MatchScore(raw)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORED CANDIDATE
// ══════════════════════════════════════════════════════════════════════════════

// ScoredCandidate - кандидат с рассчитанными для конкретного requester данными.
// Неизменяем в рамках прохода ранжирования.
type ScoredCandidate struct {
	// Profile - снимок профиля кандидата.
	Profile Profile `json:"profile"`

	// Score - итоговая оценка (0-99).
	Score MatchScore `json:"score"`

	// Reasons - до 3 причин совместимости, по убыванию вклада.
	Reasons []string `json:"reasons"`

	// Factors - разбивка по применимым факторам.
	Factors []Factor `json:"factors"`
}

// ID возвращает идентификатор кандидата.
func (c ScoredCandidate) ID() string {
	return c.Profile.ID
}

// Quality возвращает качество подбора.
func (c ScoredCandidate) Quality() MatchQuality {
	return c.Score.Quality()
}

// Factor возвращает фактор по имени.
func (c ScoredCandidate) Factor(name FactorName) (Factor, bool) {
	for _, f := range c.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return Factor{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORER
// ══════════════════════════════════════════════════════════════════════════════

// Scorer считает оценку одной пары (requester, candidate).
// Не выполняет I/O и безопасен для конкурентного использования.
type Scorer struct {
	resolver    WeightResolver
	calculators map[FactorName]FactorCalculator
}

// ScorerOption настраивает Scorer.
type ScorerOption func(*Scorer)

// WithWeightResolver задаёт резолвер весов.
func WithWeightResolver(resolver WeightResolver) ScorerOption {
	return func(s *Scorer) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// WithCalculator подменяет калькулятор фактора (например, шпионом в тестах).
func WithCalculator(name FactorName, calc FactorCalculator) ScorerOption {
	return func(s *Scorer) {
		if calc != nil {
			s.calculators[name] = calc
		}
	}
}

// NewScorer создаёт Scorer со стандартными весами и калькуляторами.
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		resolver:    DefaultWeightResolver(),
		calculators: DefaultCalculators(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score вычисляет оценку, причины и разбивку по факторам.
//
// Вычисляются только факторы из таблицы весов пары: неприменимый
// калькулятор не вызывается вовсе.
func (s *Scorer) Score(requester, candidate *Profile) (ScoredCandidate, error) {
	if err := requester.Validate(); err != nil {
		return ScoredCandidate{}, shared.Detail(ErrInvalidProfile, fmt.Errorf("requester: %s", describeInvalid(requester)))
	}
	if err := candidate.Validate(); err != nil {
		return ScoredCandidate{}, shared.Detail(ErrInvalidProfile, fmt.Errorf("candidate: %s", describeInvalid(candidate)))
	}

	table := s.resolver.Resolve(requester.Role, candidate.Role)
	factors := make([]Factor, 0, len(table))
	for _, name := range table.Factors() {
		calc, ok := s.calculators[name]
		if !ok {
			continue
		}
		f := calc(requester, candidate)
		f.Name = name
		f.Score = clamp01(f.Score)
		f.Weight = table[name]
		factors = append(factors, f)
	}

	return ScoredCandidate{
		Profile: *candidate,
		Score:   aggregate(factors),
		Reasons: buildReasons(factors, candidate),
		Factors: factors,
	}, nil
}

func describeInvalid(p *Profile) string {
	switch {
	case p == nil:
		return "profile is nil"
	case strings.TrimSpace(p.ID) == "":
		return "missing id"
	default:
		return fmt.Sprintf("profile %s has unknown role %q", p.ID, p.Role)
	}
}
