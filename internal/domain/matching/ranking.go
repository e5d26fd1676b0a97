package matching

import (
	"context"
	"errors"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/founderlink/founder-match/internal/domain/shared"
	"github.com/founderlink/founder-match/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING ENGINE
// Скоринг пула - независимые вызовы Scorer'а, распараллеленные ограниченным
// пулом горутин. Сортировка: оценка по убыванию, затем ID по возрастанию.
// Выход - чистая функция (requester, pool, limit).
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultLimit - размер выдачи по умолчанию.
	DefaultLimit = 10

	// DefaultConcurrency - число параллельных воркеров скоринга.
	DefaultConcurrency = 8
)

// Ranker ранжирует пул кандидатов для одного requester.
type Ranker struct {
	scorer      *Scorer
	concurrency int
	log         *logger.Logger
}

// RankerOption настраивает Ranker.
type RankerOption func(*Ranker)

// WithScorer задаёт Scorer.
func WithScorer(s *Scorer) RankerOption {
	return func(r *Ranker) {
		if s != nil {
			r.scorer = s
		}
	}
}

// WithConcurrency ограничивает число параллельных воркеров.
func WithConcurrency(n int) RankerOption {
	return func(r *Ranker) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger задаёт логгер для предупреждений о выброшенных кандидатах.
func WithLogger(l *logger.Logger) RankerOption {
	return func(r *Ranker) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRanker создаёт Ranker.
func NewRanker(opts ...RankerOption) *Ranker {
	r := &Ranker{
		scorer:      NewScorer(),
		concurrency: DefaultConcurrency,
		log:         logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("ranker"))
	return r
}

// Rank оценивает весь пул, сортирует и обрезает до limit (<= 0 - DefaultLimit).
//
// Невалидный requester - ошибка ErrInvalidProfile. Невалидные кандидаты
// выбрасываются с предупреждением в лог, ранжирование продолжается.
// Записи пула с ID самого requester пропускаются.
// Пустой результат - не ошибка.
//
// Если ctx истёк до завершения скоринга всего пула, возвращается
// ErrRankingTimeout и никаких частичных результатов.
func (r *Ranker) Rank(ctx context.Context, requester Profile, pool []Profile, limit int) ([]ScoredCandidate, error) {
	if err := requester.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, shared.Detail(ErrRankingTimeout, err)
	}

	// Слоты заполняются по индексу: без общей изменяемой структуры и без
	// зависимости результата от порядка завершения горутин.
	slots := make([]*ScoredCandidate, len(pool))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := range pool {
		if pool[i].ID == requester.ID {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scored, err := r.scorer.Score(&requester, &pool[i])
			if err != nil {
				if errors.Is(err, ErrInvalidProfile) {
					r.log.Warn("dropping invalid candidate",
						logger.RequesterID(requester.ID),
						logger.CandidateID(pool[i].ID),
						logger.Err(err),
					)
					return nil
				}
				return err
			}
			slots[i] = &scored
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, shared.Detail(ErrRankingTimeout, err)
		}
		return nil, err
	}
	// Скоринг мог закончиться ровно на дедлайне: бюджет вызывающего важнее.
	if err := ctx.Err(); err != nil {
		return nil, shared.Detail(ErrRankingTimeout, err)
	}

	ranked := make([]ScoredCandidate, 0, len(pool))
	for _, s := range slots {
		if s != nil {
			ranked = append(ranked, *s)
		}
	}

	SortCandidates(ranked)

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// SortCandidates сортирует по оценке по убыванию, при равенстве - по ID по возрастанию.
func SortCandidates(list []ScoredCandidate) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].Profile.ID < list[j].Profile.ID
	})
}

// RankCandidates ранжирует пул со стандартными весами и калькуляторами.
func RankCandidates(requester Profile, pool []Profile, limit int) ([]ScoredCandidate, error) {
	return NewRanker().Rank(context.Background(), requester, pool, limit)
}
