package engine

import (
	"testing"

	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// awkwardReqs defeat best fit decreasing: it opens three sets where two hold
// everything (54+33+30 and 37+30+28).
func awkwardReqs() []model.PendingRequirement {
	return []model.PendingRequirement{
		req("a", "o1", 54, 1),
		req("b", "o1", 37, 1),
		req("c", "o2", 33, 1),
		req("d", "o2", 30, 2),
		req("e", "o3", 28, 1),
	}
}

func evolveSettings() model.Settings {
	s := defaultTestSettings()
	s.Evolve = true
	return s
}

func TestPack_EvolveFindsFewerSets(t *testing.T) {
	greedy, err := Pack(awkwardReqs(), nil, defaultTestSettings())
	require.NoError(t, err)
	require.Len(t, greedy.Sets, 3)

	evolved, err := Pack(awkwardReqs(), nil, evolveSettings())
	require.NoError(t, err)
	require.Len(t, evolved.Sets, 2)

	var units int
	for _, s := range evolved.Sets {
		units += len(s.Cuts)
		assert.LessOrEqual(t, s.UsedWidth(), 118.01)
	}
	assert.Equal(t, 6, units, "every unit is still placed")
	assert.InDelta(t, greedy.PlacedWidth(), evolved.PlacedWidth(), 1e-9)
}

func TestPack_EvolveIsDeterministic(t *testing.T) {
	first, err := Pack(awkwardReqs(), nil, evolveSettings())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := Pack(awkwardReqs(), nil, evolveSettings())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPack_EvolveKeepsOptimalGreedy(t *testing.T) {
	reqs := []model.PendingRequirement{req("r1", "o1", 40, 3), req("r2", "o2", 38, 2)}
	greedy, err := Pack(reqs, nil, defaultTestSettings())
	require.NoError(t, err)
	evolved, err := Pack(reqs, nil, evolveSettings())
	require.NoError(t, err)
	assert.Equal(t, greedy, evolved, "a packing already at the set minimum is kept")
}

func TestPack_EvolveLeavesStockCutsAlone(t *testing.T) {
	reqs := append(awkwardReqs(), req("s", "o4", 60, 1))
	result, err := Pack(reqs, []model.ExistingStockRoll{roll("s1", 62)}, evolveSettings())
	require.NoError(t, err)
	require.Len(t, result.ExistingCuts, 1)
	assert.Equal(t, "s", result.ExistingCuts[0].RequirementID)
	assert.Len(t, result.Sets, 2)
}

func TestEvolveSets_SkipsTinyAndHugeInput(t *testing.T) {
	one := []model.Cut{{Width: 50}}
	baseline := []model.Set{{TargetWidth: 118, Cuts: one}}
	sets, improved := evolveSets(one, baseline, 118, 0.01, DefaultEvolveConfig())
	assert.False(t, improved)
	assert.Equal(t, baseline, sets)

	config := DefaultEvolveConfig()
	config.MaxUnits = 2
	cuts := []model.Cut{{Width: 54}, {Width: 37}, {Width: 33}}
	_, improved = evolveSets(cuts, nil, 118, 0.01, config)
	assert.False(t, improved)
}

func TestWithEvolved(t *testing.T) {
	scenarios := WithEvolved(BuildWidthScenarios(defaultTestSettings(), []float64{110}))
	require.Len(t, scenarios, 4)
	assert.Equal(t, `Current 118" evolved`, scenarios[2].Name)
	assert.True(t, scenarios[2].Settings.Evolve)
	assert.False(t, scenarios[0].Settings.Evolve)
	assert.Equal(t, 110.0, scenarios[3].Settings.TargetWidth)

	assert.Len(t, WithEvolved(scenarios[2:3]), 1, "already evolved scenarios are not doubled")
}

func TestCompareScenarios_EvolvedWins(t *testing.T) {
	results := CompareScenarios(WithEvolved(BuildWidthScenarios(defaultTestSettings(), nil)), awkwardReqs(), nil)
	require.Len(t, results, 2)
	assert.Equal(t, 3, results[0].SetsUsed)
	assert.Equal(t, 2, results[1].SetsUsed)
	assert.Equal(t, 1, BestScenario(results))
}
