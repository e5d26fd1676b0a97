package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/founderlink/founder-match/config"
	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/infrastructure/snapshot"
)

// ══════════════════════════════════════════════════════════════════════════════
// КОМАНДА RANK
// Разовое ранжирование без сети: снимок профилей → выдача в JSON.
// ══════════════════════════════════════════════════════════════════════════════

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank a snapshot's pool for one requester and print JSON",
	RunE:  runRank,
}

var (
	rankSnapshot  string
	rankRequester string
	rankLimit     int
)

func init() {
	rankCmd.Flags().StringVarP(&rankSnapshot, "snapshot", "s", "", "Path to the profile snapshot JSON file (required)")
	rankCmd.Flags().StringVarP(&rankRequester, "requester", "r", "", "Requester profile ID (required)")
	rankCmd.Flags().IntVarP(&rankLimit, "limit", "n", 0, "Shortlist size (0 = MATCH_DEFAULT_LIMIT)")

	for _, name := range []string{"snapshot", "requester"} {
		if err := rankCmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", name, err))
		}
	}

	rootCmd.AddCommand(rankCmd)
}

// rankOutput - документ, печатаемый командой rank.
type rankOutput struct {
	RequesterID string                     `json:"requester_id"`
	PoolSize    int                        `json:"pool_size"`
	Candidates  []matching.ScoredCandidate `json:"candidates"`
}

func runRank(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	provider, err := snapshot.Load(rankSnapshot)
	if err != nil {
		return err
	}

	ranker, err := buildRanker(cfg.Matching, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Matching.RankTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Matching.RankTimeout)
		defer cancel()
	}

	requester, err := provider.GetProfile(ctx, rankRequester)
	if err != nil {
		return err
	}
	pool, err := provider.ListCandidates(ctx, requester.ID)
	if err != nil {
		return err
	}

	limit := rankLimit
	if limit <= 0 {
		limit = cfg.Matching.DefaultLimit
	}
	ranked, err := ranker.Rank(ctx, *requester, pool, limit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rankOutput{
		RequesterID: requester.ID,
		PoolSize:    len(pool),
		Candidates:  ranked,
	})
}
