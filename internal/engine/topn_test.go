package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"terminalsim/internal/engine"
)

func TestFindTopPaths_DirectAndTwoHopDiverse(t *testing.T) {
	e := buildLinearNetwork(t)

	paths, err := e.FindTopPaths("a", "c", 2, engine.ModeTruck, false)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	require.Equal(t, 1, paths[0].PathID)
	require.Equal(t, 2, paths[1].PathID)
	require.LessOrEqual(t, paths[0].TotalPathCost, paths[1].TotalPathCost)

	signatures := make(map[string]bool)
	for _, p := range paths {
		sig := engine.Signature(p.Segments)
		require.False(t, signatures[sig], "duplicate path signature %s", sig)
		signatures[sig] = true
	}
}

func TestFindTopPaths_RequiresPositiveN(t *testing.T) {
	e := buildLinearNetwork(t)
	_, err := e.FindTopPaths("a", "c", 0, engine.ModeTruck, false)
	require.Error(t, err)
}

func TestFindTopPaths_TruncatesToRequestedCount(t *testing.T) {
	e := buildLinearNetwork(t)

	paths, err := e.FindTopPaths("a", "c", 1, engine.ModeTruck, false)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Equal(t, 1, paths[0].PathID)
}

func TestFindTopPaths_UnknownTerminal(t *testing.T) {
	e := buildLinearNetwork(t)
	_, err := e.FindTopPaths("a", "ghost", 1, engine.ModeTruck, false)
	require.Error(t, err)
}

func TestFindTopPaths_DetailCostsSkippedRule(t *testing.T) {
	e := buildLinearNetwork(t)

	paths, err := e.FindTopPaths("a", "c", 1, engine.ModeTruck, true)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	path := paths[0]
	require.NotEmpty(t, path.TerminalsInPath)

	origin := path.TerminalsInPath[0]
	require.Equal(t, "a", origin.Terminal)
	require.True(t, origin.CostsSkipped, "origin must be skipped when skip_delays is set")

	destination := path.TerminalsInPath[len(path.TerminalsInPath)-1]
	require.Equal(t, "c", destination.Terminal)
	require.False(t, destination.CostsSkipped, "destination cost is never skipped")
}

func TestFindTopPaths_CostBreakdownSumsToTotal(t *testing.T) {
	e := buildLinearNetwork(t)

	paths, err := e.FindTopPaths("a", "c", 1, engine.ModeTruck, false)
	require.NoError(t, err)
	path := paths[0]

	require.InDelta(t, path.TotalEdgeCosts+path.TotalTerminalCosts, path.TotalPathCost, 1e-9)
	require.InDelta(t, path.CostBreakdown["edge"], path.TotalEdgeCosts, 1e-9)
	require.InDelta(t, path.CostBreakdown["terminal"], path.TotalTerminalCosts, 1e-9)
	require.InDelta(t, path.CostBreakdown["total"], path.TotalPathCost, 1e-9)
}
