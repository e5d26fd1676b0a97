package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"Founder":    RoleFounder,
		"Co-Founder": RoleCoFounder,
		"co founder": RoleCoFounder,
		"INVESTOR":   RoleInvestor,
		" mentor ":   RoleMentor,
	}
	for in, want := range cases {
		got, ok := ParseRole(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseRole("astronaut")
	assert.False(t, ok)
}

func TestParseStage(t *testing.T) {
	st, ok := ParseStage("Early Traction")
	assert.True(t, ok)
	assert.Equal(t, StageEarlyTraction, st)

	st, ok = ParseStage("MVP")
	assert.True(t, ok)
	assert.Equal(t, StageMVP, st)

	_, ok = ParseStage("")
	assert.False(t, ok)
}

func TestStageOrderAndRounds(t *testing.T) {
	for i, st := range stageOrder {
		assert.Equal(t, i, st.Ordinal())
		assert.NotEmpty(t, st.FundingRounds(), st)
	}
	assert.Equal(t, -1, Stage("").Ordinal())
	assert.Equal(t, []string{RoundSeed, RoundSeriesA}, StageEarlyTraction.FundingRounds())
}

func TestProfileValidateAndCity(t *testing.T) {
	assert.NoError(t, (&Profile{ID: "x", Role: RoleMentor}).Validate())
	assert.ErrorIs(t, (&Profile{ID: "x"}).Validate(), ErrInvalidProfile)

	p := Profile{Location: " Bangalore , Karnataka, India"}
	assert.Equal(t, "Bangalore", p.City())
}
