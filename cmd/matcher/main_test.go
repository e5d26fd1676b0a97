package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderlink/founder-match/config"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/pkg/logger"
)

func TestExplanationBudgetCoversRetries(t *testing.T) {
	budget := explanationBudget(config.ExplanationConfig{
		RequestTimeout: 2 * time.Second,
		MaxRetries:     2,
		RetryMaxDelay:  time.Second,
	})
	assert.Equal(t, 8*time.Second, budget)

	assert.Equal(t, 2*time.Second, explanationBudget(config.ExplanationConfig{RequestTimeout: 2 * time.Second}))
}

func TestBuildRanker(t *testing.T) {
	ranker, err := buildRanker(config.MatchingConfig{
		Concurrency: 2,
		Weights:     map[string]float64{string(matching.FactorLocationProximity): 0.4},
	}, logger.NewTest(t))
	require.NoError(t, err)

	requester := matching.Profile{ID: "f", Role: matching.RoleFounder, Location: "Bangalore, India"}
	pool := []matching.Profile{
		{ID: "c", Role: matching.RoleCoFounder, Location: "Bangalore, India"},
		{ID: "bad"},
	}
	ranked, err := ranker.Rank(context.Background(), requester, pool, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "c", ranked[0].ID())

	_, err = buildRanker(config.MatchingConfig{
		Weights: map[string]float64{string(matching.FactorLocationProximity): -1},
	}, logger.NewNop())
	assert.Error(t, err)
}

func TestSetupLoggerDebugOverridesLevel(t *testing.T) {
	cfg := &config.Config{
		App:           config.AppConfig{Name: "founder-match", Debug: true},
		Observability: config.ObservabilityConfig{LogLevel: "error", LogFormat: "console"},
	}
	log := setupLogger(cfg)
	assert.True(t, log.Enabled(logger.LevelDebug))
}
