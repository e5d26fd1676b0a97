package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
)

const sampleDocument = `{
  "profiles": [
    {"id": "mentor-1", "role": "Mentor", "location": "Pune, India", "mentoring_areas": ["fundraising"]},
    {"id": "founder-1", "role": "founder", "location": "Bangalore, India", "stage": "Early Traction",
     "skills": ["product"], "looking_for": ["engineering"], "industry": "fintech"},
    {"id": "cofounder-1", "role": "Co-Founder", "location": "Bangalore, India", "skills": ["engineering"]}
  ]
}`

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	p, err := Load(writeSnapshot(t, sampleDocument))
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	founder, err := p.GetProfile(context.Background(), "founder-1")
	require.NoError(t, err)
	assert.Equal(t, matching.StageEarlyTraction, founder.Stage)

	pool, err := p.ListCandidates(context.Background(), "founder-1")
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Equal(t, "cofounder-1", pool[0].ID)
	assert.Equal(t, matching.RoleCoFounder, pool[0].Role)
	assert.Equal(t, "mentor-1", pool[1].ID)
	assert.Equal(t, matching.RoleMentor, pool[1].Role)
}

func TestLoadArrayForm(t *testing.T) {
	p, err := Load(writeSnapshot(t, `[{"id":"a","role":"investor"},{"id":"b","role":"mentor"}]`))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`[{"id":"a","role":"investor"},{"id":"a","role":"mentor"}]`))
	assert.ErrorContains(t, err, `duplicate profile id "a"`)
}

func TestGetProfileNotFound(t *testing.T) {
	p := NewProvider(nil)
	_, err := p.GetProfile(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestReloadKeepsSnapshotOnError(t *testing.T) {
	path := writeSnapshot(t, sampleDocument)
	p, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))
	assert.Error(t, p.Reload())
	assert.Equal(t, 3, p.Len())
}

func TestRankFromSnapshot(t *testing.T) {
	p, err := Load(writeSnapshot(t, sampleDocument))
	require.NoError(t, err)

	ctx := context.Background()
	requester, err := p.GetProfile(ctx, "founder-1")
	require.NoError(t, err)
	pool, err := p.ListCandidates(ctx, requester.ID)
	require.NoError(t, err)

	ranked, err := matching.NewRanker().Rank(ctx, *requester, pool, 10)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "cofounder-1", ranked[0].ID())
}
