// Package main - точка входа сервиса подбора Founder Match.
//
// Команды:
//   - serve: HTTP API с сессиями свайпов, кэшем и обогащением объяснениями;
//   - rank: разовое ранжирование по JSON-снимку профилей, вывод в stdout.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/founderlink/founder-match/config"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/pkg/logger"
)

// version задаётся при сборке через -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "matcher",
	Short:         "Founder Match candidate ranking service",
	Long:          "Ranks founders, co-founders, investors and mentors for a requester and serves swipe sessions over HTTP.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ОБЩАЯ СБОРКА
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger создаёт логгер по настройкам наблюдаемости.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if strings.EqualFold(cfg.Observability.LogFormat, string(logger.FormatConsole)) {
		opts.Format = logger.FormatConsole
	}
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts).With(
		logger.String("service", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// buildRanker собирает ранжировщик: базовые веса из конфигурации
// поверх значений по умолчанию, параллелизм скоринга.
func buildRanker(cfg config.MatchingConfig, log *logger.Logger) (*matching.Ranker, error) {
	weightOpts := make([]matching.WeightOption, 0, len(cfg.Weights))
	for name, w := range cfg.Weights {
		weightOpts = append(weightOpts, matching.WithBaseWeight(matching.FactorName(name), w))
	}
	resolver, err := matching.NewStaticWeightResolver(weightOpts...)
	if err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}

	return matching.NewRanker(
		matching.WithScorer(matching.NewScorer(matching.WithWeightResolver(resolver))),
		matching.WithConcurrency(cfg.Concurrency),
		matching.WithLogger(log),
	), nil
}
