package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"terminalsim/internal/engine"
	"terminalsim/pkg/apperror"
)

// buildLinearNetwork wires a<-truck->b<-truck->c plus a direct a->c truck
// edge that is more expensive than the two-hop route, so shortest-path
// selection actually has something to choose between.
func buildLinearNetwork(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New()
	_, err := e.AddTerminal([]string{"a"}, "A", engine.TerminalConfig{}, landTruck(), "")
	require.NoError(t, err)
	_, err = e.AddTerminal([]string{"b"}, "B", engine.TerminalConfig{}, landTruck(), "")
	require.NoError(t, err)
	_, err = e.AddTerminal([]string{"c"}, "C", engine.TerminalConfig{}, landTruck(), "")
	require.NoError(t, err)

	require.NoError(t, e.AddRoute("a-b", "a", "b", engine.ModeTruck, map[string]float64{"hours": 2}))
	require.NoError(t, e.AddRoute("b-c", "b", "c", engine.ModeTruck, map[string]float64{"hours": 2}))
	require.NoError(t, e.AddRoute("a-c", "a", "c", engine.ModeTruck, map[string]float64{"hours": 10}))
	return e
}

func TestShortestPath_PrefersCheaperTwoHopOverDirect(t *testing.T) {
	e := buildLinearNetwork(t)

	segs, err := e.ShortestPath("a", "c", engine.ModeTruck)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	require.Equal(t, "a", segs[0].From)
	require.Equal(t, "b", segs[0].To)
	require.Equal(t, "b", segs[1].From)
	require.Equal(t, "c", segs[1].To)
}

func TestShortestPath_DirectEdgeWhenCheaper(t *testing.T) {
	e := buildLinearNetwork(t)
	require.NoError(t, e.ChangeRouteWeight("a", "c", engine.ModeTruck, map[string]float64{"hours": 1}))

	segs, err := e.ShortestPath("a", "c", engine.ModeTruck)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, "a", segs[0].From)
	require.Equal(t, "c", segs[0].To)
}

func TestShortestPath_ModeFilterExcludesOtherModeEdges(t *testing.T) {
	e := engine.New()
	ifaces := map[engine.TerminalInterface]map[engine.TransportationMode]bool{
		engine.InterfaceLandSide: {engine.ModeTruck: true},
		engine.InterfaceRailSide: {engine.ModeTrain: true},
	}
	_, _ = e.AddTerminal([]string{"a"}, "A", engine.TerminalConfig{}, ifaces, "")
	_, _ = e.AddTerminal([]string{"b"}, "B", engine.TerminalConfig{}, ifaces, "")
	require.NoError(t, e.AddRoute("a-b-train", "a", "b", engine.ModeTrain, nil))

	_, err := e.ShortestPath("a", "b", engine.ModeTruck)
	require.Error(t, err)
	require.Equal(t, "NO_PATH", string(apperror.Code(err)))

	segs, err := e.ShortestPath("a", "b", engine.ModeTrain)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, engine.ModeTrain, segs[0].Mode)
}

func TestShortestPath_ModeAnyConsidersAllModes(t *testing.T) {
	e := engine.New()
	ifaces := map[engine.TerminalInterface]map[engine.TransportationMode]bool{
		engine.InterfaceLandSide: {engine.ModeTruck: true},
		engine.InterfaceRailSide: {engine.ModeTrain: true},
	}
	_, _ = e.AddTerminal([]string{"a"}, "A", engine.TerminalConfig{}, ifaces, "")
	_, _ = e.AddTerminal([]string{"b"}, "B", engine.TerminalConfig{}, ifaces, "")
	require.NoError(t, e.AddRoute("a-b-train", "a", "b", engine.ModeTrain, nil))

	segs, err := e.ShortestPath("a", "b", engine.ModeAny)
	require.NoError(t, err)
	require.Len(t, segs, 1)
}

func TestShortestPath_NoPathBetweenDisconnectedTerminals(t *testing.T) {
	e := engine.New()
	_, _ = e.AddTerminal([]string{"a"}, "A", engine.TerminalConfig{}, landTruck(), "")
	_, _ = e.AddTerminal([]string{"b"}, "B", engine.TerminalConfig{}, landTruck(), "")

	_, err := e.ShortestPath("a", "b", engine.ModeTruck)
	require.Error(t, err)
	require.Equal(t, "NO_PATH", string(apperror.Code(err)))
}

func TestShortestPath_UnknownTerminal(t *testing.T) {
	e := engine.New()
	_, _ = e.AddTerminal([]string{"a"}, "A", engine.TerminalConfig{}, landTruck(), "")

	_, err := e.ShortestPath("a", "ghost", engine.ModeTruck)
	require.Error(t, err)
	require.Equal(t, "NOT_FOUND", string(apperror.Code(err)))
}

func TestShortestPathWithinRegions_RestrictsToAllowedRegions(t *testing.T) {
	e := engine.New()
	_, _ = e.AddTerminal([]string{"a"}, "A", engine.TerminalConfig{}, landTruck(), "west")
	_, _ = e.AddTerminal([]string{"mid"}, "Mid", engine.TerminalConfig{}, landTruck(), "excluded")
	_, _ = e.AddTerminal([]string{"b"}, "B", engine.TerminalConfig{}, landTruck(), "west")
	require.NoError(t, e.AddRoute("a-mid", "a", "mid", engine.ModeTruck, nil))
	require.NoError(t, e.AddRoute("mid-b", "mid", "b", engine.ModeTruck, nil))
	require.NoError(t, e.AddRoute("a-b", "a", "b", engine.ModeTruck, map[string]float64{"hours": 1}))

	segs, err := e.ShortestPathWithinRegions("a", "b", []string{"west"}, engine.ModeTruck)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, "a", segs[0].From)
	require.Equal(t, "b", segs[0].To)

	_, err = e.ShortestPathWithinRegions("a", "mid", []string{"west"}, engine.ModeTruck)
	require.Error(t, err)
	require.Equal(t, "INVALID_ARGS", string(apperror.Code(err)))
}

func TestShortestPathWithinRegions_RequiresNonEmptyRegionList(t *testing.T) {
	e := buildLinearNetwork(t)
	_, err := e.ShortestPathWithinRegions("a", "c", nil, engine.ModeTruck)
	require.Error(t, err)
	require.Equal(t, "INVALID_ARGS", string(apperror.Code(err)))
}

func TestShortestPathWithExclusions_ExcludedEdgeForcesDetour(t *testing.T) {
	e := buildLinearNetwork(t)

	segs, err := e.ShortestPathWithExclusions("a", "c", engine.ModeTruck,
		map[engine.EdgeKey]bool{{From: "a", To: "c", Mode: engine.ModeTruck}: true}, nil)
	require.NoError(t, err)
	require.Len(t, segs, 2)
}

func TestShortestPathWithExclusions_ExcludedNodeRejectsEndpoint(t *testing.T) {
	e := buildLinearNetwork(t)

	_, err := e.ShortestPathWithExclusions("a", "c", engine.ModeTruck, nil, map[string]bool{"a": true})
	require.Error(t, err)
	require.Equal(t, "INVALID_ARGS", string(apperror.Code(err)))
}

func TestShortestPathWithExclusions_ExcludedIntermediateNode(t *testing.T) {
	e := buildLinearNetwork(t)
	require.NoError(t, e.ChangeRouteWeight("a", "c", engine.ModeTruck, map[string]float64{"hours": 1}))

	segs, err := e.ShortestPathWithExclusions("a", "c", engine.ModeTruck, nil, map[string]bool{"b": true})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, "a", segs[0].From)
	require.Equal(t, "c", segs[0].To)
}
