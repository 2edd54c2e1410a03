package terminal_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"terminalsim/internal/terminal"
	"terminalsim/pkg/apperror"
)

func landTruckIfaces() map[terminal.TerminalInterface]map[terminal.TransportationMode]bool {
	return map[terminal.TerminalInterface]map[terminal.TransportationMode]bool{
		terminal.InterfaceLandSide: {terminal.ModeTruck: true},
	}
}

func TestCheckCapacity_Unbounded(t *testing.T) {
	tm := terminal.New("a", "A", landTruckIfaces(), terminal.Config{})
	ok, msg := tm.CheckCapacity(1000)
	require.True(t, ok)
	require.Equal(t, "OK", msg)
}

func TestCheckCapacity_RejectsOverMax(t *testing.T) {
	max := 2
	cfg := terminal.Config{Capacity: terminal.CapacityConfig{MaxCapacity: &max}}
	tm := terminal.New("a", "A", landTruckIfaces(), cfg)

	ok, msg := tm.CheckCapacity(2)
	require.True(t, ok)
	require.Equal(t, "OK", msg)

	ok, msg = tm.CheckCapacity(3)
	require.False(t, ok)
	require.Contains(t, msg, "Exceeds max capacity")
}

func TestCheckCapacity_WarnsNearCriticalThreshold(t *testing.T) {
	max := 100
	threshold := 0.5
	cfg := terminal.Config{Capacity: terminal.CapacityConfig{MaxCapacity: &max, CriticalThreshold: &threshold}}
	tm := terminal.New("a", "A", landTruckIfaces(), cfg)

	// critical = 50, warning = 45.
	ok, msg := tm.CheckCapacity(46)
	require.True(t, ok)
	require.Contains(t, msg, "Warning")

	ok, msg = tm.CheckCapacity(51)
	require.False(t, ok)
	require.Contains(t, msg, "critical threshold")
}

func TestCheckCapacity_NegativeThresholdDisablesCheck(t *testing.T) {
	max := 10
	threshold := -1.0
	cfg := terminal.Config{Capacity: terminal.CapacityConfig{MaxCapacity: &max, CriticalThreshold: &threshold}}
	tm := terminal.New("a", "A", landTruckIfaces(), cfg)

	ok, msg := tm.CheckCapacity(10)
	require.True(t, ok)
	require.Equal(t, "OK", msg)
}

func TestAvailableCapacity_UnboundedReturnsMaxInt32(t *testing.T) {
	tm := terminal.New("a", "A", landTruckIfaces(), terminal.Config{})
	require.Equal(t, 1<<31-1, tm.AvailableCapacity())
}

func TestAvailableCapacity_ReflectsStoredContainers(t *testing.T) {
	max := 5
	cfg := terminal.Config{Capacity: terminal.CapacityConfig{MaxCapacity: &max}}
	tm := terminal.New("a", "A", landTruckIfaces(), cfg)

	require.NoError(t, tm.AddContainer(terminal.NewRecord("c1"), -1))
	require.Equal(t, 1, tm.ContainerCount())
	require.Equal(t, 4, tm.AvailableCapacity())
}

func TestAddContainer_UnspecifiedAddingTimeSkipsDraws(t *testing.T) {
	cfg := terminal.Config{
		DwellTime: terminal.DwellTimeConfig{Method: terminal.DwellExponential, Parameters: map[string]float64{"scale": 3600}},
	}
	tm := terminal.New("a", "A", landTruckIfaces(), cfg)

	c := terminal.NewRecord("c1")
	require.NoError(t, tm.AddContainer(c, -1))

	timeVal, ok := c.GetVariable("time")
	require.True(t, ok)
	require.Equal(t, 0.0, timeVal)
}

func TestAddContainer_RejectsWhenCapacityExceeded(t *testing.T) {
	max := 1
	cfg := terminal.Config{Capacity: terminal.CapacityConfig{MaxCapacity: &max}}
	tm := terminal.New("a", "A", landTruckIfaces(), cfg)

	require.NoError(t, tm.AddContainer(terminal.NewRecord("c1"), -1))
	err := tm.AddContainer(terminal.NewRecord("c2"), -1)
	require.Error(t, err)
	require.Equal(t, apperror.CodeCapacityExceeded, apperror.Code(err))
}

func TestAddContainer_SetsLocationAndCost(t *testing.T) {
	cfg := terminal.Config{Cost: terminal.CostConfig{FixedFees: 25}}
	tm := terminal.New("rotterdam", "Rotterdam", landTruckIfaces(), cfg)

	c := terminal.NewRecord("c1")
	require.NoError(t, tm.AddContainer(c, -1))
	require.Equal(t, "rotterdam", c.CurrentLocation())

	cost, ok := c.GetVariable("cost")
	require.True(t, ok)
	require.Equal(t, 25.0, cost)
}

func TestEstimateContainerCost_AppliesRiskFactorOnDollarValue(t *testing.T) {
	cfg := terminal.Config{Cost: terminal.CostConfig{FixedFees: 10, CustomsFees: 5, RiskFactor: 0.01}}
	tm := terminal.New("a", "A", landTruckIfaces(), cfg)

	c := terminal.NewRecord("c1")
	c.SetVariable("dollar_value", 1000.0)

	require.Equal(t, 10.0, tm.EstimateContainerCost(nil, false))
	require.Equal(t, 10.0+1000.0*0.01, tm.EstimateContainerCost(c, false))
	require.Equal(t, 10.0+5.0+1000.0*0.01, tm.EstimateContainerCost(c, true))
}

func TestAddContainers_BatchCapacityCheckRejectsWholeBatch(t *testing.T) {
	max := 2
	cfg := terminal.Config{Capacity: terminal.CapacityConfig{MaxCapacity: &max}}
	tm := terminal.New("a", "A", landTruckIfaces(), cfg)

	containers := []terminal.Container{terminal.NewRecord("c1"), terminal.NewRecord("c2"), terminal.NewRecord("c3")}
	err := tm.AddContainers(containers, -1)
	require.Error(t, err)
	require.Equal(t, apperror.CodeCapacityExceeded, apperror.Code(err))
	require.Equal(t, 0, tm.ContainerCount())
}

func TestAddContainers_AddsAllWithinCapacity(t *testing.T) {
	tm := terminal.New("a", "A", landTruckIfaces(), terminal.Config{})
	containers := []terminal.Container{terminal.NewRecord("c1"), terminal.NewRecord("c2")}
	require.NoError(t, tm.AddContainers(containers, -1))
	require.Equal(t, 2, tm.ContainerCount())
}

func TestAddContainersFromJSON_ContainersArrayShape(t *testing.T) {
	tm := terminal.New("a", "A", landTruckIfaces(), terminal.Config{})
	payload := map[string]any{
		"containers": []any{
			map[string]any{"containerID": "c1", "dollar_value": 50.0},
			map[string]any{"containerID": "c2"},
		},
	}
	require.NoError(t, terminal.AddContainersFromJSON(tm, payload, -1))
	require.Equal(t, 2, tm.ContainerCount())
}

func TestAddContainersFromJSON_SingleObjectShape(t *testing.T) {
	tm := terminal.New("a", "A", landTruckIfaces(), terminal.Config{})
	payload := map[string]any{"containerID": "solo", "weight": 42.0}
	require.NoError(t, terminal.AddContainersFromJSON(tm, payload, -1))
	require.Equal(t, 1, tm.ContainerCount())
}

func TestAddContainersFromJSON_MapOfObjectsShape(t *testing.T) {
	tm := terminal.New("a", "A", landTruckIfaces(), terminal.Config{})
	payload := map[string]any{
		"first":  map[string]any{"containerID": "c1"},
		"second": map[string]any{"containerID": "c2"},
	}
	require.NoError(t, terminal.AddContainersFromJSON(tm, payload, -1))
	require.Equal(t, 2, tm.ContainerCount())
}

func TestAddContainersFromJSON_EmptyPayloadIsNoop(t *testing.T) {
	tm := terminal.New("a", "A", landTruckIfaces(), terminal.Config{})
	require.NoError(t, terminal.AddContainersFromJSON(tm, map[string]any{}, -1))
	require.Equal(t, 0, tm.ContainerCount())
}

func TestContainerQueries_ByAddedAndDepartingTimeAndDestination(t *testing.T) {
	tm := terminal.New("a", "A", landTruckIfaces(), terminal.Config{})

	c1 := terminal.NewRecord("c1")
	c1.SetVariable("next_destination", "hamburg")
	require.NoError(t, tm.AddContainer(c1, 0))

	c2 := terminal.NewRecord("c2")
	c2.SetVariable("next_destination", "bremen")
	require.NoError(t, tm.AddContainer(c2, 0))

	byAdded, err := tm.GetContainersByAddedTime(-1, ">=")
	require.NoError(t, err)
	require.Len(t, byAdded, 2)

	byDeparting, err := tm.GetContainersByDepartingTime(0, "==")
	require.NoError(t, err)
	require.Len(t, byDeparting, 2)

	_, err = tm.GetContainersByAddedTime(0, "invalid")
	require.Error(t, err)

	toHamburg := tm.GetContainersByNextDestination("hamburg")
	require.Len(t, toHamburg, 1)
	require.Equal(t, "c1", toHamburg[0].ID())

	dequeued := tm.DequeueContainersByNextDestination("hamburg")
	require.Len(t, dequeued, 1)
	require.Equal(t, 1, tm.ContainerCount())

	toHamburgAgain := tm.GetContainersByNextDestination("hamburg")
	require.Empty(t, toHamburgAgain)
}

func TestClear_EmptiesStorage(t *testing.T) {
	tm := terminal.New("a", "A", landTruckIfaces(), terminal.Config{})
	require.NoError(t, tm.AddContainer(terminal.NewRecord("c1"), -1))
	require.Equal(t, 1, tm.ContainerCount())

	tm.Clear()
	require.Equal(t, 0, tm.ContainerCount())
}

func TestCanAcceptAndAliasByModeNetwork(t *testing.T) {
	tm := terminal.New("a", "A", landTruckIfaces(), terminal.Config{})
	require.True(t, tm.CanAccept(terminal.ModeTruck, terminal.InterfaceLandSide))
	require.False(t, tm.CanAccept(terminal.ModeShip, terminal.InterfaceLandSide))

	require.Equal(t, "", tm.AliasByModeNetwork(terminal.ModeTruck, "us-network"))
	tm.AddAliasForModeNetwork(terminal.ModeTruck, "us-network", "rotterdam-us")
	require.Equal(t, "rotterdam-us", tm.AliasByModeNetwork(terminal.ModeTruck, "us-network"))
}
