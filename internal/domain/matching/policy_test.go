package matching

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sequenceSource struct {
	values []float64
	i      int
}

func (s *sequenceSource) Float64() float64 {
	v := s.values[s.i%len(s.values)]
	s.i++
	return v
}

func TestRandomPolicy_UsesInjectedSource(t *testing.T) {
	p := NewRandomPolicy(0.5, &sequenceSource{values: []float64{0.1, 0.9, 0.49, 0.5}})
	ctx := context.Background()

	var got []bool
	for i := 0; i < 4; i++ {
		ok, err := p.IsMutual(ctx, "r", Profile{ID: "c"})
		require.NoError(t, err)
		got = append(got, ok)
	}
	assert.Equal(t, []bool{true, false, true, false}, got)
}

func TestRandomPolicy_SeededIsReproducible(t *testing.T) {
	a := NewRandomPolicy(DefaultMutualProbability, rand.New(rand.NewSource(42)))
	b := NewRandomPolicy(DefaultMutualProbability, rand.New(rand.NewSource(42)))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		x, _ := a.IsMutual(ctx, "r", Profile{})
		y, _ := b.IsMutual(ctx, "r", Profile{})
		assert.Equal(t, x, y)
	}
}

func TestRandomPolicy_ProbabilityClamped(t *testing.T) {
	assert.Equal(t, 1.0, NewRandomPolicy(3, nil).Probability())
	assert.Equal(t, 0.0, NewRandomPolicy(-1, nil).Probability())

	always := NewRandomPolicy(1, nil)
	never := NewRandomPolicy(0, nil)
	for i := 0; i < 50; i++ {
		ok, _ := always.IsMutual(context.Background(), "r", Profile{})
		assert.True(t, ok)
		ok, _ = never.IsMutual(context.Background(), "r", Profile{})
		assert.False(t, ok)
	}
}

type memoryIntents struct {
	mu    sync.Mutex
	likes map[string]map[string]bool
}

func (m *memoryIntents) RecordIntent(_ context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.likes == nil {
		m.likes = map[string]map[string]bool{}
	}
	if m.likes[from] == nil {
		m.likes[from] = map[string]bool{}
	}
	m.likes[from][to] = true
	return nil
}

func (m *memoryIntents) HasIntent(_ context.Context, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.likes[from][to], nil
}

func TestIntentPolicy_PromotesOnlyReciprocatedInterest(t *testing.T) {
	ctx := context.Background()
	store := &memoryIntents{}
	policy := NewIntentPolicy(store)

	alice := Profile{ID: "alice", Role: RoleFounder}
	bob := Profile{ID: "bob", Role: RoleCoFounder}

	mutual, err := policy.IsMutual(ctx, alice.ID, bob)
	require.NoError(t, err)
	assert.False(t, mutual, "bob has not expressed interest yet")

	mutual, err = policy.IsMutual(ctx, bob.ID, alice)
	require.NoError(t, err)
	assert.True(t, mutual)
}

func TestIntentPolicy_DrivesQueue(t *testing.T) {
	ctx := context.Background()
	store := &memoryIntents{}
	require.NoError(t, store.RecordIntent(ctx, "c00", "r"))

	q := NewCandidateQueue("r", rankedFixture(2), WithMutualMatchPolicy(NewIntentPolicy(store)))

	res, err := q.Accept(ctx, "c00")
	require.NoError(t, err)
	assert.True(t, res.Connected)

	res, err = q.Accept(ctx, "c01")
	require.NoError(t, err)
	assert.False(t, res.Connected)

	ok, _ := store.HasIntent(ctx, "r", "c01")
	assert.True(t, ok, "accept records the requester's intent")
}
