package terminal

import (
	"fmt"
	"math"
	"sync"

	"terminalsim/pkg/apperror"
)

// CapacityConfig is a terminal's capacity parameters (spec.md §3).
// MaxCapacity nil means unbounded; CriticalThreshold nil or negative means
// the warning/critical-threshold check is disabled.
type CapacityConfig struct {
	MaxCapacity       *int
	CriticalThreshold *float64
}

// CustomsConfig is a terminal's customs-delay parameters (spec.md §3).
type CustomsConfig struct {
	Probability   float64
	DelayMean     float64
	DelayVariance float64
}

// CostConfig is a terminal's cost-model parameters (spec.md §3).
type CostConfig struct {
	FixedFees   float64
	CustomsFees float64
	RiskFactor  float64
}

// Config bundles a Terminal's configuration blocks, mirroring the
// capacity/dwell_time/customs/cost maps spec.md §3 describes.
type Config struct {
	Capacity  CapacityConfig
	DwellTime DwellTimeConfig
	Customs   CustomsConfig
	Cost      CostConfig
}

// aliasKey is the (mode, network) pair a mode-network alias is registered
// under (spec.md §3's "mode-network alias table").
type aliasKey struct {
	Mode    TransportationMode
	Network string
}

// Terminal is a container-handling node: capacity accounting, stochastic
// dwell-time/customs delay, cost accumulation, and thread-safe container
// storage (spec.md §4.2). Grounded on original_source/src/terminal/terminal.{h,cpp}.
type Terminal struct {
	mu sync.Mutex

	canonicalName string
	displayName   string
	interfaces    map[TerminalInterface]map[TransportationMode]bool
	modeAliases   map[aliasKey]string

	config Config
	store  Storage
}

// New constructs a Terminal with the given canonical name, display name,
// interfaces, and configuration. Storage defaults to an in-memory
// implementation; use NewWithStorage to plug in a persistent backend
// (internal/store/postgres).
func New(canonicalName, displayName string, interfaces map[TerminalInterface]map[TransportationMode]bool, cfg Config) *Terminal {
	return NewWithStorage(canonicalName, displayName, interfaces, cfg, NewMemoryStorage())
}

// NewWithStorage is like New but accepts an explicit Storage backend.
func NewWithStorage(canonicalName, displayName string, interfaces map[TerminalInterface]map[TransportationMode]bool, cfg Config, store Storage) *Terminal {
	ifaces := make(map[TerminalInterface]map[TransportationMode]bool, len(interfaces))
	for iface, modes := range interfaces {
		m := make(map[TransportationMode]bool, len(modes))
		for mode := range modes {
			m[mode] = true
		}
		ifaces[iface] = m
	}
	return &Terminal{
		canonicalName: canonicalName,
		displayName:   displayName,
		interfaces:    ifaces,
		modeAliases:   make(map[aliasKey]string),
		config:        cfg,
		store:         store,
	}
}

// Name returns the terminal's canonical name.
func (t *Terminal) Name() string { return t.canonicalName }

// DisplayName returns the terminal's human-readable display name.
func (t *Terminal) DisplayName() string { return t.displayName }

// Interfaces returns the terminal's interface/mode support table.
func (t *Terminal) Interfaces() map[TerminalInterface]map[TransportationMode]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[TerminalInterface]map[TransportationMode]bool, len(t.interfaces))
	for iface, modes := range t.interfaces {
		m := make(map[TransportationMode]bool, len(modes))
		for mode := range modes {
			m[mode] = true
		}
		out[iface] = m
	}
	return out
}

// Config returns a copy of the terminal's configuration blocks (spec.md §3),
// used when serializing the engine's graph to JSON.
func (t *Terminal) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config
}

// ModeNetworkAliases returns the terminal's full mode-network alias table,
// keyed "mode:network" (spec.md §6's mode_network_aliases wire shape).
func (t *Terminal) ModeNetworkAliases() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.modeAliases))
	for k, v := range t.modeAliases {
		out[fmt.Sprintf("%d:%s", int(k.Mode), k.Network)] = v
	}
	return out
}

// CanAccept reports whether this terminal supports mode on the given
// interface (spec.md §4.2 can_accept).
func (t *Terminal) CanAccept(mode TransportationMode, iface TerminalInterface) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	modes, ok := t.interfaces[iface]
	if !ok {
		return false
	}
	return modes[mode]
}

// AliasByModeNetwork returns the alias registered for (mode, network), or
// "" if none.
func (t *Terminal) AliasByModeNetwork(mode TransportationMode, network string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.modeAliases[aliasKey{Mode: mode, Network: network}]
}

// AddAliasForModeNetwork registers alias under (mode, network).
func (t *Terminal) AddAliasForModeNetwork(mode TransportationMode, network, alias string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modeAliases[aliasKey{Mode: mode, Network: network}] = alias
}

// CheckCapacity implements spec.md §4.2 check_capacity: returns whether
// adding `additional` containers is allowed, plus a human status message.
func (t *Terminal) CheckCapacity(additional int) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkCapacityLocked(additional)
}

func (t *Terminal) checkCapacityLocked(additional int) (bool, string) {
	current := t.store.Count()
	newCount := current + additional

	if t.config.Capacity.MaxCapacity == nil {
		return true, "OK"
	}
	max := *t.config.Capacity.MaxCapacity
	if newCount > max {
		return false, fmt.Sprintf("Exceeds max capacity of %d", max)
	}

	if t.config.Capacity.CriticalThreshold == nil || *t.config.Capacity.CriticalThreshold < 0 {
		return true, "OK"
	}
	threshold := *t.config.Capacity.CriticalThreshold
	critical := float64(max) * threshold
	if float64(newCount) > critical {
		return false, fmt.Sprintf("Exceeds critical threshold (%.0f%% of %d)", threshold*100, max)
	}
	warning := critical * 0.9
	if float64(newCount) > warning {
		return true, fmt.Sprintf("Warning: Approaching critical capacity (%d/%d)", newCount, int(math.Round(critical)))
	}
	return true, "OK"
}

// EstimateHandlingTime returns the expected handling hours: the configured
// dwell distribution's mean plus the expected customs delay
// (probability * delay_mean), per spec.md §4.2.
func (t *Terminal) EstimateHandlingTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var hours float64
	if t.config.DwellTime.Method != "" || len(t.config.DwellTime.Parameters) > 0 {
		method := t.config.DwellTime.Method
		if method == "" {
			method = DwellGamma
		}
		hours += meanDwellSeconds(method, t.config.DwellTime.Parameters) / 3600.0
	}
	if t.config.Customs.Probability > 0 && t.config.Customs.DelayMean > 0 {
		hours += t.config.Customs.Probability * t.config.Customs.DelayMean
	}
	return hours
}

// EstimateContainerCost implements spec.md §4.2 estimate_container_cost:
// fixed fees, plus customs fees when applyCustoms, plus a risk surcharge
// proportional to the container's dollar_value custom variable.
func (t *Terminal) EstimateContainerCost(container Container, applyCustoms bool) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.config.Cost.FixedFees
	if applyCustoms {
		total += t.config.Cost.CustomsFees
	}
	if container != nil && t.config.Cost.RiskFactor > 0 {
		if v, ok := variableAsFloat(container, "dollar_value"); ok {
			total += v * t.config.Cost.RiskFactor
		}
	}
	return total
}

// AddContainer implements spec.md §4.2 add_container. addingTime < 0 means
// "unspecified": no stochastic dwell/customs draws happen, and bookkeeping
// starts at 0, matching original_source/terminal.cpp's addingTime < 0 branch.
func (t *Terminal) AddContainer(c Container, addingTime float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addContainerLocked(c, addingTime)
}

func (t *Terminal) addContainerLocked(c Container, addingTime float64) error {
	ok, msg := t.checkCapacityLocked(1)
	if !ok {
		return apperror.New(apperror.CodeCapacityExceeded, fmt.Sprintf("cannot add container: %s", msg))
	}

	baseAdding := addingTime
	if baseAdding < 0 {
		baseAdding = 0
	}
	baseDeparture := baseAdding
	customsApplied := false

	if addingTime >= 0 {
		method := t.config.DwellTime.Method
		if method != "" || len(t.config.DwellTime.Parameters) > 0 {
			if method == "" {
				method = DwellGamma
			}
			dep, err := GetDepartureTime(baseAdding, method, t.config.DwellTime.Parameters)
			if err != nil {
				return err
			}
			baseDeparture = dep
		}

		if t.config.Customs.Probability > 0 && t.config.Customs.DelayMean > 0 {
			if drawFloat64() < t.config.Customs.Probability {
				stdDev := 1.0
				if t.config.Customs.DelayVariance > 0 {
					stdDev = math.Sqrt(t.config.Customs.DelayVariance)
				}
				delay := math.Max(0, t.config.Customs.DelayMean+stdDev*drawNormFloat64())
				baseDeparture += delay * 3600.0
				customsApplied = true
			}
		}
	}

	containerCost := t.estimateContainerCostLocked(c, customsApplied)
	totalCost := containerCost
	if prior, ok := variableAsFloat(c, "cost"); ok {
		totalCost += prior
	}
	c.SetVariable("cost", totalCost)

	totalTime := baseDeparture - baseAdding
	if prior, ok := variableAsFloat(c, "time"); ok {
		totalTime += prior
	}
	c.SetVariable("time", totalTime)

	c.SetCurrentLocation(t.canonicalName)
	t.store.Add(c, baseAdding, baseDeparture)
	return nil
}

// estimateContainerCostLocked is EstimateContainerCost's body, callable
// while t.mu is already held (addContainerLocked).
func (t *Terminal) estimateContainerCostLocked(container Container, applyCustoms bool) float64 {
	total := t.config.Cost.FixedFees
	if applyCustoms {
		total += t.config.Cost.CustomsFees
	}
	if container != nil && t.config.Cost.RiskFactor > 0 {
		if v, ok := variableAsFloat(container, "dollar_value"); ok {
			total += v * t.config.Cost.RiskFactor
		}
	}
	return total
}

// AddContainers implements spec.md §4.2 add_containers: a capacity check
// against the whole batch, then per-container inserts with the terminal
// lock released between them (SPEC_FULL.md §5 deadlock-discipline item 3),
// matching original_source/terminal.cpp's locker.unlock() before the loop.
func (t *Terminal) AddContainers(containers []Container, addingTime float64) error {
	t.mu.Lock()
	ok, msg := t.checkCapacityLocked(len(containers))
	t.mu.Unlock()
	if !ok {
		return apperror.New(apperror.CodeCapacityExceeded, fmt.Sprintf("cannot add %d containers: %s", len(containers), msg))
	}
	for _, c := range containers {
		if err := t.AddContainer(c, addingTime); err != nil {
			return err
		}
	}
	return nil
}

// AddContainersFromJSON implements spec.md §4.2 add_containers_from_json:
// accepts {"containers": [...]}, a single container object (detected via
// "containerID"), or a map of id -> container.
func AddContainersFromJSON(t *Terminal, data map[string]any, addingTime float64) error {
	var containers []Container

	if raw, ok := data["containers"]; ok {
		if arr, ok := raw.([]any); ok {
			for _, item := range arr {
				if obj, ok := item.(map[string]any); ok {
					containers = append(containers, RecordFromJSON(obj))
				}
			}
		}
	} else if _, ok := data["containerID"]; ok {
		containers = append(containers, RecordFromJSON(data))
	} else {
		for _, v := range data {
			if obj, ok := v.(map[string]any); ok {
				containers = append(containers, RecordFromJSON(obj))
			}
		}
	}

	if len(containers) == 0 {
		return nil
	}
	return t.AddContainers(containers, addingTime)
}

// GetContainersByDepartingTime implements spec.md §4.2's time-indexed query.
func (t *Terminal) GetContainersByDepartingTime(tVal float64, condition string) ([]Container, error) {
	return t.store.ByDepartingTime(tVal, condition)
}

// GetContainersByAddedTime implements spec.md §4.2's time-indexed query.
func (t *Terminal) GetContainersByAddedTime(tVal float64, condition string) ([]Container, error) {
	return t.store.ByAddedTime(tVal, condition)
}

// GetContainersByNextDestination implements spec.md §4.2's destination query.
func (t *Terminal) GetContainersByNextDestination(dest string) []Container {
	return t.store.ByNextDestination(dest)
}

// DequeueContainersByNextDestination removes and returns matching containers.
func (t *Terminal) DequeueContainersByNextDestination(dest string) []Container {
	return t.store.DequeueByNextDestination(dest)
}

// ContainerCount returns the number of containers currently stored.
func (t *Terminal) ContainerCount() int {
	return t.store.Count()
}

// AvailableCapacity returns max_capacity - container_count, or math.MaxInt32
// when capacity is unbounded (spec.md §8 invariant 7).
func (t *Terminal) AvailableCapacity() int {
	t.mu.Lock()
	max := t.config.Capacity.MaxCapacity
	t.mu.Unlock()
	if max == nil {
		return math.MaxInt32
	}
	avail := *max - t.store.Count()
	if avail < 0 {
		return 0
	}
	return avail
}

// MaxCapacity returns the configured max capacity, or nil when unbounded.
func (t *Terminal) MaxCapacity() *int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.config.Capacity.MaxCapacity
}

// Clear empties the container storage.
func (t *Terminal) Clear() {
	t.store.Clear()
}
