package matching

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderlink/founder-match/internal/domain/shared"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

func bangaloreFounder() Profile {
	return Profile{
		ID:         "founder-1",
		Role:       RoleFounder,
		Location:   "Bangalore, India",
		Skills:     []string{"Design"},
		LookingFor: []string{"Engineering"},
		Stage:      StageMVP,
	}
}

func bangaloreCoFounder() Profile {
	return Profile{
		ID:         "cofounder-1",
		Role:       RoleCoFounder,
		Location:   "Bangalore, India",
		Skills:     []string{"Engineering"},
		LookingFor: []string{"Design"},
		Stage:      StageMVP,
	}
}

func fixtureProfiles() []Profile {
	return []Profile{
		bangaloreFounder(),
		bangaloreCoFounder(),
		{
			ID:              "investor-1",
			Role:            RoleInvestor,
			Location:        "Mumbai, India",
			Skills:          []string{"Fundraising"},
			InvestmentFocus: []string{"Fintech", "SaaS"},
			Sectors:         []string{"Seed", "Series A"},
		},
		{
			ID:             "mentor-1",
			Role:           RoleMentor,
			Location:       "India",
			Skills:         []string{"Hiring", "Engineering"},
			MentoringAreas: []string{"SaaS"},
			Availability:   "Weekends",
		},
		{
			ID:         "founder-2",
			Role:       RoleFounder,
			Location:   "Berlin, Germany",
			Skills:     []string{"Sales", "Marketing"},
			LookingFor: []string{"Engineering", "Design"},
			Industry:   "SaaS",
			Stage:      StageGrowth,
		},
		{
			ID:   "empty-1",
			Role: RoleCoFounder,
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestScorer_BangaloreFounderAndCoFounder(t *testing.T) {
	requester, candidate := bangaloreFounder(), bangaloreCoFounder()

	scored, err := NewScorer().Score(&requester, &candidate)
	require.NoError(t, err)

	for _, name := range []FactorName{FactorSkillComplementarity, FactorLocationProximity, FactorStageAlignment} {
		f, ok := scored.Factor(name)
		require.True(t, ok, name)
		assert.Equal(t, 1.0, f.Score, name)
	}

	// availability_match has no data on either side and stays at the 0.8
	// placeholder: 100 * (0.30+0.15+0.20+0.08) / 0.75 = 97.33. With equal
	// stated availability every factor is 1.0 and the pair reaches 99, see
	// TestScorer_SaturatedPairClampsTo99.
	assert.Equal(t, MatchScore(97), scored.Score)
	assert.Equal(t, MatchQualityExcellent, scored.Quality())

	assert.Equal(t, []string{
		"Shared skills: Engineering",
		"Both at MVP stage",
		"Both based in Bangalore",
	}, scored.Reasons)
}

func TestScorer_SaturatedPairClampsTo99(t *testing.T) {
	requester, candidate := bangaloreFounder(), bangaloreCoFounder()
	requester.Availability = "Full-time"
	candidate.Availability = "full-time"

	scored, err := NewScorer().Score(&requester, &candidate)
	require.NoError(t, err)

	for _, f := range scored.Factors {
		assert.Equal(t, 1.0, f.Score, f.Name)
	}
	assert.Equal(t, MaxMatchScore, scored.Score)
}

func TestScorer_FounderVersusInvestorExcludesStageAndIndustry(t *testing.T) {
	calls := map[FactorName]int{}
	spy := func(name FactorName, inner FactorCalculator) ScorerOption {
		return WithCalculator(name, func(r, c *Profile) Factor {
			calls[name]++
			return inner(r, c)
		})
	}

	opts := make([]ScorerOption, 0, len(AllFactors))
	for name, calc := range DefaultCalculators() {
		opts = append(opts, spy(name, calc))
	}
	scorer := NewScorer(opts...)

	requester := bangaloreFounder()
	investor := fixtureProfiles()[2]

	scored, err := scorer.Score(&requester, &investor)
	require.NoError(t, err)

	assert.Zero(t, calls[FactorStageAlignment])
	assert.Zero(t, calls[FactorIndustryExpertise])
	assert.Equal(t, 1, calls[FactorInvestmentAlignment])
	assert.Equal(t, 1, calls[FactorSkillComplementarity])

	_, hasStage := scored.Factor(FactorStageAlignment)
	_, hasIndustry := scored.Factor(FactorIndustryExpertise)
	assert.False(t, hasStage)
	assert.False(t, hasIndustry)

	table := DefaultWeightResolver().Resolve(RoleFounder, RoleInvestor)
	assert.False(t, table.Has(FactorStageAlignment))
	assert.False(t, table.Has(FactorIndustryExpertise))
	assert.Equal(t, 0.40, table[FactorInvestmentAlignment])
	assert.Equal(t, 0.20, table[FactorSkillComplementarity])
}

func TestScorer_AggregateUsesOnlyApplicableWeights(t *testing.T) {
	// Every calculator returns 0.5 except investment, which returns 1.0.
	opts := []ScorerOption{}
	for _, name := range AllFactors {
		score := 0.5
		if name == FactorInvestmentAlignment {
			score = 1.0
		}
		opts = append(opts, WithCalculator(name, func(_, _ *Profile) Factor {
			return Factor{Score: score}
		}))
	}

	requester := bangaloreFounder()
	investor := fixtureProfiles()[2]
	scored, err := NewScorer(opts...).Score(&requester, &investor)
	require.NoError(t, err)

	// skill .20, location .15, investment .40, availability .10: (0.5*0.45 + 1.0*0.40) / 0.85 = 0.735
	assert.Equal(t, MatchScore(74), scored.Score)
}

func TestScorer_InvalidProfiles(t *testing.T) {
	valid := bangaloreFounder()

	cases := map[string]Profile{
		"missing id":   {Role: RoleFounder},
		"blank id":     {ID: "  ", Role: RoleFounder},
		"unknown role": {ID: "x", Role: "astronaut"},
		"missing role": {ID: "x"},
	}

	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewScorer().Score(&valid, &bad)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidProfile))
			assert.True(t, shared.IsValidation(err))

			_, err = NewScorer().Score(&bad, &valid)
			assert.ErrorIs(t, err, ErrInvalidProfile)
		})
	}

	_, err := NewScorer().Score(nil, &valid)
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestScorer_ScoresAndReasonsBounded(t *testing.T) {
	scorer := NewScorer()
	profiles := fixtureProfiles()

	for i := range profiles {
		for j := range profiles {
			name := fmt.Sprintf("%s->%s", profiles[i].ID, profiles[j].ID)
			scored, err := scorer.Score(&profiles[i], &profiles[j])
			require.NoError(t, err, name)
			assert.True(t, scored.Score.IsValid(), name)
			assert.NotEmpty(t, scored.Reasons, name)
			assert.LessOrEqual(t, len(scored.Reasons), MaxReasons, name)
		}
	}
}

type zeroResolver struct{}

func (zeroResolver) Resolve(_, _ Role) WeightTable {
	return WeightTable{FactorSkillComplementarity: 0, FactorLocationProximity: 0}
}

func TestScorer_ZeroWeightsPadWithRoleFallbacks(t *testing.T) {
	requester, candidate := bangaloreFounder(), bangaloreCoFounder()

	scored, err := NewScorer(WithWeightResolver(zeroResolver{})).Score(&requester, &candidate)
	require.NoError(t, err)

	assert.Equal(t, MatchScore(0), scored.Score)
	assert.Equal(t, roleFallbackReasons[RoleCoFounder], scored.Reasons)
}

func TestScorer_ReasonsHaveNoDuplicates(t *testing.T) {
	requester := Profile{ID: "r", Role: RoleFounder}
	mentor := Profile{ID: "m", Role: RoleMentor}

	scored, err := NewScorer().Score(&requester, &mentor)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, r := range scored.Reasons {
		assert.False(t, seen[r], r)
		seen[r] = true
	}
	assert.Len(t, scored.Reasons, MaxReasons)
}

func TestMatchScoreQuality(t *testing.T) {
	assert.Equal(t, MatchQualityExcellent, MatchScore(99).Quality())
	assert.Equal(t, MatchQualityGood, MatchScore(60).Quality())
	assert.Equal(t, MatchQualityFair, MatchScore(59).Quality())
	assert.Equal(t, MatchQualityPoor, MatchScore(20).Quality())
	assert.Equal(t, MatchQualityNone, MatchScore(0).Quality())
	assert.False(t, MatchScore(100).IsValid())
}
